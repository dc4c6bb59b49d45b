package vm

import (
	"strings"
	"testing"
)

func TestOpcodeTableComplete(t *testing.T) {
	// Every opcode from LEA through EXIT must have metadata.
	for op := OpLEA; op <= OpEXIT; op++ {
		info, ok := op.Info()
		if !ok {
			t.Errorf("opcode %d has no table entry", byte(op))
			continue
		}
		if info.Name == "" {
			t.Errorf("opcode %d has an empty name", byte(op))
		}
	}
}

func TestOpcodeValues(t *testing.T) {
	// The numeric layout is part of the image format and must not drift.
	tests := []struct {
		op   Opcode
		want byte
	}{
		{OpLEA, 0},
		{OpPSH, 13},
		{OpOR, 14},
		{OpMOD, 29},
		{OpOPEN, 30},
		{OpEXIT, 38},
	}
	for _, tc := range tests {
		if byte(tc.op) != tc.want {
			t.Errorf("%s = %d, want %d", tc.op, byte(tc.op), tc.want)
		}
	}
}

func TestOpcodeString(t *testing.T) {
	if OpIMM.String() != "IMM" {
		t.Errorf("OpIMM.String() = %q", OpIMM.String())
	}
	if got := Opcode(250).String(); !strings.Contains(got, "250") {
		t.Errorf("unknown opcode String() = %q, want the raw value", got)
	}
}

func TestInstructionString(t *testing.T) {
	tests := []struct {
		in   Instruction
		want string
	}{
		{Instruction{Op: OpIMM, Arg: 42}, "IMM  42"},
		{Instruction{Op: OpLEA, Arg: -2}, "LEA  -2"},
		{Instruction{Op: OpLEV}, "LEV"},
		{Instruction{Op: OpADD}, "ADD"},
		{Instruction{Op: OpPRTF, Arg: 3}, "PRTF 3"},
	}
	for _, tc := range tests {
		if got := tc.in.String(); got != tc.want {
			t.Errorf("String() = %q, want %q", got, tc.want)
		}
	}
}

func TestDisassemble(t *testing.T) {
	p := &Program{
		Code: []Instruction{
			{Op: OpENT, Arg: 1},
			{Op: OpIMM, Arg: 7},
			{Op: OpLEV},
		},
	}
	out := p.Disassemble()
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("disassembly has %d lines, want 3:\n%s", len(lines), out)
	}
	if !strings.Contains(lines[0], "0") || !strings.Contains(lines[0], "ENT") {
		t.Errorf("line 0 = %q, want address and ENT", lines[0])
	}
	if !strings.Contains(lines[2], "LEV") {
		t.Errorf("line 2 = %q, want LEV", lines[2])
	}
}
