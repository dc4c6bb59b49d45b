package compiler

import (
	"reflect"
	"testing"

	"github.com/chazu/mcc/diag"
	"github.com/chazu/mcc/vm"
)

func TestCompileMinimal(t *testing.T) {
	prog, err := Compile("int main() { return 42; }")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	want := []vm.Instruction{
		{Op: vm.OpENT, Arg: 0},
		{Op: vm.OpIMM, Arg: 42},
		{Op: vm.OpLEV},
		{Op: vm.OpLEV},
		{Op: vm.OpPSH},
		{Op: vm.OpEXIT, Arg: 1},
	}
	if !reflect.DeepEqual(prog.Code, want) {
		t.Errorf("code = \n%swant:\n%s", prog.Disassemble(), (&vm.Program{Code: want}).Disassemble())
	}
	if prog.Entry != 0 {
		t.Errorf("entry = %d, want 0", prog.Entry)
	}
	if prog.Halt != 4 {
		t.Errorf("halt = %d, want 4", prog.Halt)
	}
}

func TestCompileParamsAndCall(t *testing.T) {
	prog, err := Compile(`
int add(int a, int b) { return a + b; }
int main() { return add(2, 3); }
`)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	want := []vm.Instruction{
		// add
		{Op: vm.OpENT, Arg: 0},
		{Op: vm.OpLEA, Arg: 3}, // a: first argument sits deepest
		{Op: vm.OpLI},
		{Op: vm.OpPSH},
		{Op: vm.OpLEA, Arg: 2}, // b
		{Op: vm.OpLI},
		{Op: vm.OpADD},
		{Op: vm.OpLEV},
		{Op: vm.OpLEV},
		// main
		{Op: vm.OpENT, Arg: 0},
		{Op: vm.OpIMM, Arg: 2},
		{Op: vm.OpPSH},
		{Op: vm.OpIMM, Arg: 3},
		{Op: vm.OpPSH},
		{Op: vm.OpJSR, Arg: 0},
		{Op: vm.OpADJ, Arg: 2},
		{Op: vm.OpLEV},
		{Op: vm.OpLEV},
		// halt stub
		{Op: vm.OpPSH},
		{Op: vm.OpEXIT, Arg: 1},
	}
	if !reflect.DeepEqual(prog.Code, want) {
		t.Errorf("code = \n%swant:\n%s", prog.Disassemble(), (&vm.Program{Code: want}).Disassemble())
	}
	if prog.Entry != 9 {
		t.Errorf("entry = %d, want 9", prog.Entry)
	}
}

func TestCompileForwardCall(t *testing.T) {
	prog, err := Compile(`
int main() { return helper(); }
int helper() { return 9; }
`)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	var jsr *vm.Instruction
	for i := range prog.Code {
		if prog.Code[i].Op == vm.OpJSR {
			jsr = &prog.Code[i]
		}
	}
	if jsr == nil {
		t.Fatal("no JSR emitted")
	}
	if jsr.Arg < 0 || int(jsr.Arg) >= len(prog.Code) {
		t.Errorf("JSR target %d not patched into code range", jsr.Arg)
	}
	if prog.Code[jsr.Arg].Op != vm.OpENT {
		t.Errorf("JSR targets %s, want the callee's ENT", prog.Code[jsr.Arg].Op)
	}
}

func TestCompileUndefinedForwardCall(t *testing.T) {
	_, err := Compile("int main() { return ghost(); }")
	if err == nil {
		t.Fatal("expected error for call to undefined function")
	}
	d := err.(*diag.Diagnostic)
	if d.Category != diag.Semantic {
		t.Errorf("category = %v, want semantic", d.Category)
	}
	if d.Line != 1 {
		t.Errorf("error on line %d, want 1 (the call site)", d.Line)
	}
}

func TestCompilePointerScaling(t *testing.T) {
	prog, err := Compile("int main() { int *p; p = p + 1; return 0; }")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	// int* arithmetic scales the integer addend by the word size.
	found := false
	for i := 0; i+1 < len(prog.Code); i++ {
		if prog.Code[i].Op == vm.OpIMM && prog.Code[i].Arg == vm.WordSize &&
			prog.Code[i+1].Op == vm.OpMUL {
			found = true
		}
	}
	if !found {
		t.Errorf("no IMM %d / MUL scaling pair in:\n%s", vm.WordSize, prog.Disassemble())
	}
}

func TestCompileCharPointerNoScaling(t *testing.T) {
	prog, err := Compile("int main() { char *p; p = p + 1; return 0; }")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	for _, in := range prog.Code {
		if in.Op == vm.OpMUL {
			t.Errorf("char* arithmetic should not scale:\n%s", prog.Disassemble())
		}
	}
}

func TestCompileCommutativePointerScaling(t *testing.T) {
	prog, err := Compile("int main() { int *p; p = 1 + p; return 0; }")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	// the integer operand is scaled even when it comes first
	found := false
	for i := 0; i+2 < len(prog.Code); i++ {
		if prog.Code[i].Op == vm.OpIMM && prog.Code[i].Arg == vm.WordSize &&
			prog.Code[i+1].Op == vm.OpMUL && prog.Code[i+2].Op == vm.OpPSH {
			found = true
		}
	}
	if !found {
		t.Errorf("no IMM %d / MUL / PSH scaling for int + int*:\n%s",
			vm.WordSize, prog.Disassemble())
	}
}

func TestCompileStringData(t *testing.T) {
	prog, err := Compile(`int main() { printf("hi"); return 0; }`)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if len(prog.Data) < vm.WordSize+3 || string(prog.Data[vm.WordSize:vm.WordSize+2]) != "hi" {
		t.Errorf("data segment = %q, want \"hi\" after the reserved word", prog.Data)
	}
	if prog.Data[vm.WordSize+2] != 0 {
		t.Error("string literal not NUL-terminated")
	}
	for i := 0; i < vm.WordSize; i++ {
		if prog.Data[i] != 0 {
			t.Fatalf("reserved word byte %d = %d, want 0", i, prog.Data[i])
		}
	}
	if len(prog.Data)%vm.WordSize != 0 {
		t.Errorf("data segment length %d not word aligned", len(prog.Data))
	}
}

func TestCompileEnum(t *testing.T) {
	prog, err := Compile(`
enum { A, B = 5, C };
int main() { return C; }
`)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	found := false
	for _, in := range prog.Code {
		if in.Op == vm.OpIMM && in.Arg == 6 {
			found = true
		}
	}
	if !found {
		t.Errorf("enum member C should fold to IMM 6:\n%s", prog.Disassemble())
	}
}

func TestCompileDeterministic(t *testing.T) {
	src := `
enum { N = 10 };
int g;
int fib(int n) { if (n < 2) return n; return fib(n - 1) + fib(n - 2); }
int main() { g = fib(N); printf("%d\n", g); return 0; }
`
	a, err := Compile(src)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	b, err := Compile(src)
	if err != nil {
		t.Fatalf("Compile (second): %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Error("identical source compiled to different programs")
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		cat  diag.Category
	}{
		{"missing expression", "int main() { return } ", diag.Syntax},
		{"missing semicolon", "int main() { return 0 }", diag.Syntax},
		{"missing paren", "int main( { return 0; }", diag.Syntax},
		{"stray top level token", "42", diag.Syntax},
		{"undefined variable", "int main() { return x; }", diag.Semantic},
		{"call non-function", "int x; int main() { return x(); }", diag.Semantic},
		{"redeclared local", "int main() { int a; int a; return 0; }", diag.Semantic},
		{"redeclared global", "int g; char g; int main() { return 0; }", diag.Semantic},
		{"assignment to rvalue", "int main() { 3 = 4; return 0; }", diag.Semantic},
		{"pointer plus pointer", "int main() { char *c; int *i; c + i; return 0; }", diag.Semantic},
		{"pointer multiply", "int main() { int *p; p * 2; return 0; }", diag.Semantic},
		{"deref non-pointer", "int main() { int n; *n; return 0; }", diag.Semantic},
		{"index non-pointer", "int main() { int n; n[0]; return 0; }", diag.Semantic},
		{"no main", "int f() { return 1; }", diag.Semantic},
		{"lexical error", "int main() { return $; }", diag.Lexical},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Compile(tc.src)
			if err == nil {
				t.Fatalf("Compile(%q): expected error", tc.src)
			}
			d, ok := err.(*diag.Diagnostic)
			if !ok {
				t.Fatalf("error is %T, want *diag.Diagnostic", err)
			}
			if d.Category != tc.cat {
				t.Errorf("category = %v, want %v (%v)", d.Category, tc.cat, d)
			}
		})
	}
}

func TestCompileErrorPosition(t *testing.T) {
	_, err := Compile("int main() {\n    return }\n")
	if err == nil {
		t.Fatal("expected error")
	}
	d := err.(*diag.Diagnostic)
	if d.Line != 2 {
		t.Errorf("error on line %d, want 2", d.Line)
	}
	if d.Column != 12 {
		t.Errorf("error on column %d, want 12 (the closing brace)", d.Column)
	}
}

func TestCompileShadowingOffsets(t *testing.T) {
	// The inner x must get its own slot while the outer one keeps its
	// value; slot reuse across sibling blocks is fine.
	prog, err := Compile(`
int main() {
    int x;
    x = 1;
    {
        int x;
        x = 2;
    }
    return x;
}
`)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	var leas []int64
	for _, in := range prog.Code {
		if in.Op == vm.OpLEA {
			leas = append(leas, in.Arg)
		}
	}
	// Assignments: outer x at -1, inner x at -2, then the return reads -1.
	want := []int64{-1, -2, -1}
	if !reflect.DeepEqual(leas, want) {
		t.Errorf("LEA offsets = %v, want %v", leas, want)
	}
}
