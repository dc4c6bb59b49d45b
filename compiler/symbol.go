package compiler

import (
	"fmt"

	"github.com/chazu/mcc/diag"
	"github.com/chazu/mcc/vm"
)

// ---------------------------------------------------------------------------
// Types
// ---------------------------------------------------------------------------

// BaseType is one of the two scalar bases of the subset.
type BaseType int

const (
	BaseChar BaseType = iota
	BaseInt
)

// Type is a scalar base plus a pointer-indirection level.
type Type struct {
	Base BaseType
	Ptr  int
}

var (
	TypeInt  = Type{Base: BaseInt}
	TypeChar = Type{Base: BaseChar}
)

// Ref returns the type of a pointer to t.
func (t Type) Ref() Type {
	return Type{Base: t.Base, Ptr: t.Ptr + 1}
}

// Deref returns the pointee type. Only valid when t.Ptr > 0.
func (t Type) Deref() Type {
	return Type{Base: t.Base, Ptr: t.Ptr - 1}
}

// IsPtr reports whether the type is a pointer.
func (t Type) IsPtr() bool {
	return t.Ptr > 0
}

// Size returns the storage width of a value of this type in bytes.
func (t Type) Size() int64 {
	if t.Ptr > 0 || t.Base == BaseInt {
		return vm.WordSize
	}
	return 1
}

func (t Type) String() string {
	s := "int"
	if t.Base == BaseChar {
		s = "char"
	}
	for i := 0; i < t.Ptr; i++ {
		s += "*"
	}
	return s
}

// ---------------------------------------------------------------------------
// Symbols
// ---------------------------------------------------------------------------

// Class is a symbol's storage class.
type Class int

const (
	ClassEnum    Class = iota // compile-time integer constant
	ClassFun                  // function with a bytecode entry address
	ClassSys                  // host-bridged function
	ClassGlobal               // data-segment variable
	ClassLocal                // frame-offset variable
)

var classNames = map[Class]string{
	ClassEnum:   "enum constant",
	ClassFun:    "function",
	ClassSys:    "builtin",
	ClassGlobal: "global variable",
	ClassLocal:  "local variable",
}

func (c Class) String() string {
	if name, ok := classNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Class(%d)", int(c))
}

// Symbol is a named binding. Value is interpreted per class: an enum
// constant's literal value, a function's entry address (or -1 while the
// definition is still pending), a global's data-segment byte address,
// a local's word offset from the base pointer, or a host bridge's
// opcode.
type Symbol struct {
	Name  string
	Class Class
	Type  Type
	Value int64
	Depth int // scope depth at declaration; 0 for globals
}

// ---------------------------------------------------------------------------
// Symbol table
// ---------------------------------------------------------------------------

// shadowed records what a declaration displaced so ExitScope can put it
// back exactly.
type shadowed struct {
	name string
	prev *Symbol // nil when the name was previously unbound
}

// SymbolTable maps names to bindings with block-scope discipline. It is
// owned exclusively by the parser for the duration of one compilation.
type SymbolTable struct {
	names  map[string]*Symbol
	scopes [][]shadowed
}

// NewSymbolTable creates an empty table at global scope.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{names: make(map[string]*Symbol)}
}

// Depth returns the current scope depth (0 = global).
func (st *SymbolTable) Depth() int {
	return len(st.scopes)
}

// EnterScope opens a block scope.
func (st *SymbolTable) EnterScope() {
	st.scopes = append(st.scopes, nil)
}

// ExitScope closes the innermost scope, removing every name declared in
// it and restoring any binding it shadowed.
func (st *SymbolTable) ExitScope() {
	if len(st.scopes) == 0 {
		return
	}
	top := st.scopes[len(st.scopes)-1]
	st.scopes = st.scopes[:len(st.scopes)-1]
	for i := len(top) - 1; i >= 0; i-- {
		if top[i].prev != nil {
			st.names[top[i].name] = top[i].prev
		} else {
			delete(st.names, top[i].name)
		}
	}
}

// Declare binds a new symbol in the current scope. Redeclaring a name
// already bound at the same depth is a semantic error.
func (st *SymbolTable) Declare(sym *Symbol, pos Position) (*Symbol, error) {
	prev := st.names[sym.Name]
	if prev != nil && prev.Depth == st.Depth() {
		return nil, diag.Errorf(diag.Semantic, pos.Line, pos.Column,
			"redeclaration of %q (previously a %s)", sym.Name, prev.Class)
	}
	sym.Depth = st.Depth()
	if st.Depth() > 0 {
		top := len(st.scopes) - 1
		st.scopes[top] = append(st.scopes[top], shadowed{name: sym.Name, prev: prev})
	}
	st.names[sym.Name] = sym
	return sym, nil
}

// Lookup resolves a name against the innermost visible binding.
func (st *SymbolTable) Lookup(name string, pos Position) (*Symbol, error) {
	if sym, ok := st.names[name]; ok {
		return sym, nil
	}
	return nil, diag.Errorf(diag.Semantic, pos.Line, pos.Column, "undefined symbol %q", name)
}

// lookupOrNil is Lookup without the error, for call sites that create
// pending function bindings on a miss.
func (st *SymbolTable) lookupOrNil(name string) *Symbol {
	return st.names[name]
}

// DeclareGlobal binds a symbol at global depth regardless of the
// current scope, for implicit forward function references. The caller
// must have checked the name is unbound; an existing binding would be
// clobbered.
func (st *SymbolTable) DeclareGlobal(sym *Symbol) *Symbol {
	sym.Depth = 0
	st.names[sym.Name] = sym
	return sym
}
