package vm

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// ---------------------------------------------------------------------------
// Machine: bytecode interpreter
// ---------------------------------------------------------------------------

// Default memory sizing, matching the original's 256 KiB pools.
const (
	DefaultStackSize = 256 * 1024
	DefaultHeapSize  = 256 * 1024
)

// Config controls machine sizing and observability.
type Config struct {
	StackSize  int       // stack region size in bytes (0 = DefaultStackSize)
	HeapSize   int       // heap region size in bytes (0 = DefaultHeapSize)
	CycleLimit int64     // abort after this many instructions (0 = unlimited)
	Args       []string  // program arguments, exposed as argc/argv to main
	Out        io.Writer // destination for host-bridged output (nil = os.Stdout)
	Trace      bool      // print each executed instruction
	TraceOut   io.Writer // destination for the trace (nil = Out)
}

// Trap is a fatal runtime error. It carries the cycle count and the
// faulting instruction so miscompiled or hostile bytecode can be
// debugged.
type Trap struct {
	Cycle int64
	PC    int
	Instr Instruction
	Msg   string
}

func (t *Trap) Error() string {
	return fmt.Sprintf("runtime error: %s (cycle %d, pc %d: %s)", t.Msg, t.Cycle, t.PC, t.Instr)
}

// Machine executes a Program. It exclusively owns its memory for the
// lifetime of one execution: a single byte-addressed space holding the
// data segment at the bottom, a bump-allocated heap above it, and the
// stack at the top growing toward lower addresses. The code sequence
// is read-only throughout.
type Machine struct {
	code []Instruction
	mem  []byte

	dataEnd   int // end of the static data segment
	heapPtr   int // next free heap byte
	stackBase int // lowest valid stack address

	pc int    // program counter (instruction index)
	sp int    // stack pointer (byte address)
	bp int    // base pointer (byte address)
	ax int64  // accumulator

	cycle      int64
	cycleLimit int64
	halt       int

	args     []string
	out      io.Writer
	trace    bool
	traceOut io.Writer

	files  map[int64]*os.File
	nextFD int64
}

// NewMachine builds a machine around the given program. The program's
// data segment is copied; the caller must not mutate prog.Code during
// execution.
func NewMachine(prog *Program, cfg Config) *Machine {
	stackSize := cfg.StackSize
	if stackSize <= 0 {
		stackSize = DefaultStackSize
	}
	heapSize := cfg.HeapSize
	if heapSize <= 0 {
		heapSize = DefaultHeapSize
	}
	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}
	traceOut := cfg.TraceOut
	if traceOut == nil {
		traceOut = out
	}

	dataEnd := align(len(prog.Data))
	// Keep address 0 unmapped so a live allocation can never alias
	// the NULL sentinel malloc returns on failure.
	heapBase := dataEnd
	if heapBase == 0 {
		heapBase = WordSize
	}
	stackBase := heapBase + heapSize
	mem := make([]byte, stackBase+stackSize)
	copy(mem, prog.Data)

	return &Machine{
		code:       prog.Code,
		mem:        mem,
		dataEnd:    dataEnd,
		heapPtr:    heapBase,
		stackBase:  stackBase,
		halt:       prog.Halt,
		pc:         prog.Entry,
		sp:         len(mem),
		bp:         len(mem),
		cycleLimit: cfg.CycleLimit,
		args:       cfg.Args,
		out:        out,
		trace:      cfg.Trace,
		traceOut:   traceOut,
		files:      make(map[int64]*os.File),
		nextFD:     3,
	}
}

func align(n int) int {
	return (n + WordSize - 1) &^ (WordSize - 1)
}

// Cycles returns the number of instructions executed so far.
func (m *Machine) Cycles() int64 {
	return m.cycle
}

// trap builds a Trap for the instruction currently being executed.
func (m *Machine) trap(format string, args ...interface{}) *Trap {
	pc := m.pc - 1
	var in Instruction
	if pc >= 0 && pc < len(m.code) {
		in = m.code[pc]
	}
	return &Trap{Cycle: m.cycle, PC: pc, Instr: in, Msg: fmt.Sprintf(format, args...)}
}

// --- memory access ---

func (m *Machine) loadWord(addr int64) (int64, *Trap) {
	if addr < 0 || addr+WordSize > int64(len(m.mem)) {
		return 0, m.trap("out-of-bounds int load at address %d", addr)
	}
	return int64(binary.LittleEndian.Uint64(m.mem[addr:])), nil
}

func (m *Machine) storeWord(addr, v int64) *Trap {
	if addr < 0 || addr+WordSize > int64(len(m.mem)) {
		return m.trap("out-of-bounds int store at address %d", addr)
	}
	binary.LittleEndian.PutUint64(m.mem[addr:], uint64(v))
	return nil
}

func (m *Machine) loadByte(addr int64) (int64, *Trap) {
	if addr < 0 || addr >= int64(len(m.mem)) {
		return 0, m.trap("out-of-bounds char load at address %d", addr)
	}
	return int64(m.mem[addr]), nil
}

func (m *Machine) storeByte(addr, v int64) *Trap {
	if addr < 0 || addr >= int64(len(m.mem)) {
		return m.trap("out-of-bounds char store at address %d", addr)
	}
	m.mem[addr] = byte(v)
	return nil
}

// --- stack ---

func (m *Machine) push(v int64) *Trap {
	if m.sp-WordSize < m.stackBase {
		return m.trap("stack overflow")
	}
	m.sp -= WordSize
	binary.LittleEndian.PutUint64(m.mem[m.sp:], uint64(v))
	return nil
}

func (m *Machine) pop() (int64, *Trap) {
	if m.sp+WordSize > len(m.mem) {
		return 0, m.trap("stack underflow")
	}
	v := int64(binary.LittleEndian.Uint64(m.mem[m.sp:]))
	m.sp += WordSize
	return v, nil
}

// alloc reserves n heap bytes and returns their address, or 0 when the
// heap is exhausted (mirroring a failed malloc).
func (m *Machine) alloc(n int64) int64 {
	if n < 0 {
		return 0
	}
	size := int(align(int(n)))
	if m.heapPtr+size > m.stackBase || m.heapPtr+size < m.heapPtr {
		return 0
	}
	addr := m.heapPtr
	m.heapPtr += size
	return int64(addr)
}

// setupArgs copies the program arguments into the heap and
// pushes main's parameters and the synthetic return address.
func (m *Machine) setupArgs() *Trap {
	argc := int64(len(m.args))
	argv := m.alloc(argc * WordSize)
	for i, arg := range m.args {
		p := m.alloc(int64(len(arg)) + 1)
		copy(m.mem[p:], arg)
		m.mem[p+int64(len(arg))] = 0
		if t := m.storeWord(argv+int64(i)*WordSize, p); t != nil {
			return t
		}
	}
	if t := m.push(argc); t != nil {
		return t
	}
	if t := m.push(argv); t != nil {
		return t
	}
	return m.push(int64(m.halt))
}

// Run executes the program until EXIT or a fatal trap, returning the
// program's exit code.
func (m *Machine) Run() (int64, error) {
	if t := m.setupArgs(); t != nil {
		return 0, t
	}

	for {
		if m.pc < 0 || m.pc >= len(m.code) {
			return 0, &Trap{Cycle: m.cycle, PC: m.pc, Msg: "program counter outside code segment"}
		}
		in := m.code[m.pc]
		m.pc++
		m.cycle++
		if m.cycleLimit > 0 && m.cycle > m.cycleLimit {
			return 0, m.trap("cycle limit of %d exceeded", m.cycleLimit)
		}
		if m.trace {
			fmt.Fprintf(m.traceOut, "%6d> %s\n", m.cycle, in)
		}

		var t *Trap
		switch in.Op {
		case OpLEA:
			m.ax = int64(m.bp) + in.Arg*WordSize

		case OpIMM:
			m.ax = in.Arg

		case OpJMP:
			m.pc = int(in.Arg)

		case OpJSR:
			if t = m.push(int64(m.pc)); t == nil {
				m.pc = int(in.Arg)
			}

		case OpBZ:
			if m.ax == 0 {
				m.pc = int(in.Arg)
			}

		case OpBNZ:
			if m.ax != 0 {
				m.pc = int(in.Arg)
			}

		case OpENT:
			if t = m.push(int64(m.bp)); t == nil {
				m.bp = m.sp
				m.sp -= int(in.Arg) * WordSize
				if m.sp < m.stackBase {
					t = m.trap("stack overflow")
				}
			}

		case OpADJ:
			m.sp += int(in.Arg) * WordSize
			if m.sp > len(m.mem) {
				t = m.trap("stack underflow")
			}

		case OpLEV:
			m.sp = m.bp
			var saved, ret int64
			if saved, t = m.pop(); t == nil {
				if ret, t = m.pop(); t == nil {
					m.bp = int(saved)
					m.pc = int(ret)
				}
			}

		case OpLI:
			m.ax, t = m.loadWord(m.ax)

		case OpLC:
			m.ax, t = m.loadByte(m.ax)

		case OpSI:
			var addr int64
			if addr, t = m.pop(); t == nil {
				t = m.storeWord(addr, m.ax)
			}

		case OpSC:
			var addr int64
			if addr, t = m.pop(); t == nil {
				if t = m.storeByte(addr, m.ax); t == nil {
					m.ax = int64(byte(m.ax))
				}
			}

		case OpPSH:
			t = m.push(m.ax)

		case OpOR, OpXOR, OpAND, OpEQ, OpNE, OpLT, OpGT, OpLE, OpGE,
			OpSHL, OpSHR, OpADD, OpSUB, OpMUL, OpDIV, OpMOD:
			t = m.binary(in.Op)

		case OpEXIT:
			code, t := m.loadWord(int64(m.sp))
			if t != nil {
				return 0, t
			}
			return code, nil

		case OpOPEN, OpREAD, OpCLOS, OpPRTF, OpMALC, OpFREE, OpMSET, OpMCMP:
			t = m.syscall(in.Op, in.Arg)

		default:
			t = m.trap("invalid opcode %d", byte(in.Op))
		}

		if t != nil {
			return 0, t
		}
	}
}

// binary pops the left operand and combines it with the accumulator.
func (m *Machine) binary(op Opcode) *Trap {
	v, t := m.pop()
	if t != nil {
		return t
	}
	switch op {
	case OpOR:
		m.ax = v | m.ax
	case OpXOR:
		m.ax = v ^ m.ax
	case OpAND:
		m.ax = v & m.ax
	case OpEQ:
		m.ax = btoi(v == m.ax)
	case OpNE:
		m.ax = btoi(v != m.ax)
	case OpLT:
		m.ax = btoi(v < m.ax)
	case OpGT:
		m.ax = btoi(v > m.ax)
	case OpLE:
		m.ax = btoi(v <= m.ax)
	case OpGE:
		m.ax = btoi(v >= m.ax)
	case OpSHL:
		m.ax = v << uint64(m.ax)
	case OpSHR:
		m.ax = v >> uint64(m.ax)
	case OpADD:
		m.ax = v + m.ax
	case OpSUB:
		m.ax = v - m.ax
	case OpMUL:
		m.ax = v * m.ax
	case OpDIV:
		if m.ax == 0 {
			return m.trap("division by zero")
		}
		m.ax = v / m.ax
	case OpMOD:
		if m.ax == 0 {
			return m.trap("modulo by zero")
		}
		m.ax = v % m.ax
	}
	return nil
}

func btoi(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
