package vm

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode identifies a single VM instruction.
type Opcode byte

// Addressing and data movement
const (
	OpLEA Opcode = iota // load effective address: ax = bp + arg words
	OpIMM               // load immediate: ax = arg
	OpJMP               // jump to instruction arg
	OpJSR               // call: push return address, jump to instruction arg
	OpBZ                // branch to arg if ax == 0
	OpBNZ               // branch to arg if ax != 0
	OpENT               // enter frame: push bp, bp = sp, reserve arg local words
	OpADJ               // pop arg call-temporary words
	OpLEV               // leave frame: restore caller bp and pc
	OpLI                // ax = int cell at address ax
	OpLC                // ax = char cell at address ax
	OpSI                // store ax into int cell at popped address
	OpSC                // store ax into char cell at popped address
	OpPSH               // push ax
)

// Binary operators: pop the left operand, combine with ax, result in ax.
const (
	OpOR Opcode = iota + 14
	OpXOR
	OpAND
	OpEQ
	OpNE
	OpLT
	OpGT
	OpLE
	OpGE
	OpSHL
	OpSHR
	OpADD
	OpSUB
	OpMUL
	OpDIV
	OpMOD
)

// Host-bridged operations. The operand carries the argument count so
// the bridge can locate its arguments on the stack.
const (
	OpOPEN Opcode = iota + 30
	OpREAD
	OpCLOS
	OpPRTF
	OpMALC
	OpFREE
	OpMSET
	OpMCMP
	OpEXIT
)

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name       string
	HasOperand bool
}

var opcodeTable = map[Opcode]OpcodeInfo{
	OpLEA: {"LEA", true},
	OpIMM: {"IMM", true},
	OpJMP: {"JMP", true},
	OpJSR: {"JSR", true},
	OpBZ:  {"BZ", true},
	OpBNZ: {"BNZ", true},
	OpENT: {"ENT", true},
	OpADJ: {"ADJ", true},
	OpLEV: {"LEV", false},
	OpLI:  {"LI", false},
	OpLC:  {"LC", false},
	OpSI:  {"SI", false},
	OpSC:  {"SC", false},
	OpPSH: {"PSH", false},

	OpOR:  {"OR", false},
	OpXOR: {"XOR", false},
	OpAND: {"AND", false},
	OpEQ:  {"EQ", false},
	OpNE:  {"NE", false},
	OpLT:  {"LT", false},
	OpGT:  {"GT", false},
	OpLE:  {"LE", false},
	OpGE:  {"GE", false},
	OpSHL: {"SHL", false},
	OpSHR: {"SHR", false},
	OpADD: {"ADD", false},
	OpSUB: {"SUB", false},
	OpMUL: {"MUL", false},
	OpDIV: {"DIV", false},
	OpMOD: {"MOD", false},

	OpOPEN: {"OPEN", true},
	OpREAD: {"READ", true},
	OpCLOS: {"CLOS", true},
	OpPRTF: {"PRTF", true},
	OpMALC: {"MALC", true},
	OpFREE: {"FREE", true},
	OpMSET: {"MSET", true},
	OpMCMP: {"MCMP", true},
	OpEXIT: {"EXIT", true},
}

// Info returns the metadata for the opcode.
func (op Opcode) Info() (OpcodeInfo, bool) {
	info, ok := opcodeTable[op]
	return info, ok
}

func (op Opcode) String() string {
	if info, ok := opcodeTable[op]; ok {
		return info.Name
	}
	return fmt.Sprintf("Opcode(%d)", byte(op))
}

// Instruction is one opcode with its (possibly unused) operand. Branch
// and call operands are instruction indices; LEA operands are word
// offsets from the base pointer; host-bridge operands are argument
// counts.
type Instruction struct {
	Op  Opcode `cbor:"1,keyasint"`
	Arg int64  `cbor:"2,keyasint"`
}

func (in Instruction) String() string {
	info, ok := in.Op.Info()
	if !ok {
		return fmt.Sprintf("???(%d) %d", byte(in.Op), in.Arg)
	}
	if info.HasOperand {
		return fmt.Sprintf("%-4s %d", info.Name, in.Arg)
	}
	return info.Name
}

// WordSize is the width in bytes of an int cell and of every stack slot.
const WordSize = 8

// Program is the immutable artifact handed from the code generator to
// the machine: the instruction sequence, the initial data segment
// (globals and string literals), the entry point of main, and the halt
// stub that turns main's return value into the process exit code.
type Program struct {
	Code  []Instruction `cbor:"1,keyasint"`
	Data  []byte        `cbor:"2,keyasint"`
	Entry int           `cbor:"3,keyasint"`
	Halt  int           `cbor:"4,keyasint"`
}

// Disassemble renders the instruction sequence as an address-annotated
// listing.
func (p *Program) Disassemble() string {
	var sb strings.Builder
	for i, in := range p.Code {
		fmt.Fprintf(&sb, "%6d  %s\n", i, in)
	}
	return sb.String()
}
