package vm

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// ---------------------------------------------------------------------------
// Host bridges
// ---------------------------------------------------------------------------

// sysArg returns the i-th declared argument of a host-bridged call.
// Arguments are pushed left to right, so the first sits deepest.
func (m *Machine) sysArg(argc int64, i int) (int64, *Trap) {
	return m.loadWord(int64(m.sp) + (argc-1-int64(i))*WordSize)
}

// cstring reads a NUL-terminated string from machine memory.
func (m *Machine) cstring(addr int64) (string, *Trap) {
	if addr < 0 || addr >= int64(len(m.mem)) {
		return "", m.trap("out-of-bounds string at address %d", addr)
	}
	end := bytes.IndexByte(m.mem[addr:], 0)
	if end < 0 {
		return "", m.trap("unterminated string at address %d", addr)
	}
	return string(m.mem[addr : addr+int64(end)]), nil
}

// syscall dispatches one host-bridged operation. The operand is the
// argument count; the result is left in the accumulator. EXIT is
// handled by the dispatch loop.
func (m *Machine) syscall(op Opcode, argc int64) *Trap {
	switch op {
	case OpPRTF:
		return m.sysPrintf(argc)

	case OpMALC:
		n, t := m.sysArg(argc, 0)
		if t != nil {
			return t
		}
		m.ax = m.alloc(n)

	case OpFREE:
		// the bump allocator never reclaims; Go's GC owns the backing store
		m.ax = 0

	case OpMSET:
		p, t := m.sysArg(argc, 0)
		if t != nil {
			return t
		}
		c, t := m.sysArg(argc, 1)
		if t != nil {
			return t
		}
		n, t := m.sysArg(argc, 2)
		if t != nil {
			return t
		}
		if p < 0 || n < 0 || p+n > int64(len(m.mem)) {
			return m.trap("out-of-bounds memset at address %d length %d", p, n)
		}
		for i := int64(0); i < n; i++ {
			m.mem[p+i] = byte(c)
		}
		m.ax = p

	case OpMCMP:
		p1, t := m.sysArg(argc, 0)
		if t != nil {
			return t
		}
		p2, t := m.sysArg(argc, 1)
		if t != nil {
			return t
		}
		n, t := m.sysArg(argc, 2)
		if t != nil {
			return t
		}
		if p1 < 0 || p2 < 0 || n < 0 || p1+n > int64(len(m.mem)) || p2+n > int64(len(m.mem)) {
			return m.trap("out-of-bounds memcmp")
		}
		m.ax = int64(bytes.Compare(m.mem[p1:p1+n], m.mem[p2:p2+n]))

	case OpOPEN:
		path, t := m.sysArg(argc, 0)
		if t != nil {
			return t
		}
		name, t := m.cstring(path)
		if t != nil {
			return t
		}
		f, err := os.Open(name)
		if err != nil {
			m.ax = -1
			return nil
		}
		fd := m.nextFD
		m.nextFD++
		m.files[fd] = f
		m.ax = fd

	case OpREAD:
		fd, t := m.sysArg(argc, 0)
		if t != nil {
			return t
		}
		buf, t := m.sysArg(argc, 1)
		if t != nil {
			return t
		}
		n, t := m.sysArg(argc, 2)
		if t != nil {
			return t
		}
		f, ok := m.files[fd]
		if !ok || buf < 0 || n < 0 || buf+n > int64(len(m.mem)) {
			m.ax = -1
			return nil
		}
		read, err := f.Read(m.mem[buf : buf+n])
		if err != nil && err != io.EOF {
			m.ax = -1
			return nil
		}
		m.ax = int64(read)

	case OpCLOS:
		fd, t := m.sysArg(argc, 0)
		if t != nil {
			return t
		}
		f, ok := m.files[fd]
		if !ok {
			m.ax = -1
			return nil
		}
		f.Close()
		delete(m.files, fd)
		m.ax = 0
	}
	return nil
}

// sysPrintf implements the printf bridge: %d, %x, %c, %s and %%, with
// width and precision passed through to the host formatter.
func (m *Machine) sysPrintf(argc int64) *Trap {
	fp, t := m.sysArg(argc, 0)
	if t != nil {
		return t
	}
	format, t := m.cstring(fp)
	if t != nil {
		return t
	}

	var sb bytes.Buffer
	next := 1
	i := 0
	for i < len(format) {
		c := format[i]
		if c != '%' {
			sb.WriteByte(c)
			i++
			continue
		}
		j := i + 1
		for j < len(format) && (format[j] == '-' || format[j] == '.' || (format[j] >= '0' && format[j] <= '9')) {
			j++
		}
		if j >= len(format) {
			sb.WriteByte('%')
			break
		}
		spec := format[i : j+1]
		switch format[j] {
		case '%':
			sb.WriteByte('%')
		case 'd', 'x', 'c':
			v, t := m.sysArg(argc, next)
			if t != nil {
				return t
			}
			next++
			fmt.Fprintf(&sb, spec, v)
		case 's':
			v, t := m.sysArg(argc, next)
			if t != nil {
				return t
			}
			next++
			s, t := m.cstring(v)
			if t != nil {
				return t
			}
			fmt.Fprintf(&sb, spec, s)
		default:
			sb.WriteString(spec)
		}
		i = j + 1
	}

	n, _ := m.out.Write(sb.Bytes())
	m.ax = int64(n)
	return nil
}
