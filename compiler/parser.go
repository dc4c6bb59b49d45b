package compiler

import (
	"github.com/chazu/mcc/diag"
	"github.com/chazu/mcc/vm"
)

// ---------------------------------------------------------------------------
// Parser: single-pass recursive descent with direct code generation
// ---------------------------------------------------------------------------

// fixup records a call emitted before its callee's entry address was
// known. All fixups are patched once parsing completes.
type fixup struct {
	pos  int    // index of the JSR instruction to patch
	name string // callee
	at   Position
}

// Parser consumes tokens and emits bytecode as grammar productions are
// recognized; no syntax tree is built. It exclusively owns the symbol
// table for the duration of one compilation, and the first error
// aborts.
type Parser struct {
	lex  *Lexer
	tok  Token
	syms *SymbolTable

	code   []vm.Instruction
	data   []byte
	fixups []fixup

	typ Type // synthesized type of the most recently compiled expression

	// current function context
	localWords int // next local slot, in words from the base pointer
	maxLocals  int // frame high-water mark, patched into ENT
}

// hostBridges maps builtin names to their opcodes. Each is registered
// in the symbol table before parsing begins.
var hostBridges = map[string]vm.Opcode{
	"open":   vm.OpOPEN,
	"read":   vm.OpREAD,
	"close":  vm.OpCLOS,
	"printf": vm.OpPRTF,
	"malloc": vm.OpMALC,
	"free":   vm.OpFREE,
	"memset": vm.OpMSET,
	"memcmp": vm.OpMCMP,
	"exit":   vm.OpEXIT,
}

// Compile translates C-subset source text into a Program.
func Compile(source string) (*vm.Program, error) {
	p := &Parser{
		lex: NewLexer(source),
		// The first data word stays zeroed so no global or string
		// literal lands at address 0 and compares equal to NULL.
		data: make([]byte, vm.WordSize),
		syms: NewSymbolTable(),
	}
	for name, op := range hostBridges {
		p.syms.DeclareGlobal(&Symbol{Name: name, Class: ClassSys, Type: TypeInt, Value: int64(op)})
	}
	if err := p.next(); err != nil {
		return nil, err
	}
	for p.tok.Type != TokenEOF {
		if err := p.globalDecl(); err != nil {
			return nil, err
		}
	}
	return p.finish()
}

// next advances to the next token.
func (p *Parser) next() error {
	tok, err := p.lex.NextToken()
	if err != nil {
		return err
	}
	p.tok = tok
	return nil
}

// expect consumes the current token if it matches, otherwise reports a
// syntax error naming the expected construct.
func (p *Parser) expect(t TokenType, in string) error {
	if p.tok.Type != t {
		return p.syntaxf("expected %q in %s, found %s", t.String(), in, p.tok)
	}
	return p.next()
}

func (p *Parser) syntaxf(format string, args ...interface{}) *diag.Diagnostic {
	return diag.Errorf(diag.Syntax, p.tok.Pos.Line, p.tok.Pos.Column, format, args...)
}

func (p *Parser) semanticf(format string, args ...interface{}) *diag.Diagnostic {
	return diag.Errorf(diag.Semantic, p.tok.Pos.Line, p.tok.Pos.Column, format, args...)
}

// emit appends an instruction and returns its index, so branch
// placeholders can be patched later. The operand is optional for
// opcodes that take none.
func (p *Parser) emit(op vm.Opcode, arg ...int64) int {
	in := vm.Instruction{Op: op}
	if len(arg) > 0 {
		in.Arg = arg[0]
	}
	p.code = append(p.code, in)
	return len(p.code) - 1
}

// patch writes the final branch target into a placeholder.
func (p *Parser) patch(at int, target int) {
	p.code[at].Arg = int64(target)
}

// insertCode splices instructions in at index at. Branch and call
// targets inside the code that moves are rewritten, as are pending
// fixup positions; targets below at (including unpatched placeholders)
// stay put.
func (p *Parser) insertCode(at int, ins ...vm.Instruction) {
	n := len(ins)
	p.code = append(p.code, ins...)
	copy(p.code[at+n:], p.code[at:])
	copy(p.code[at:], ins)
	for i := at + n; i < len(p.code); i++ {
		switch p.code[i].Op {
		case vm.OpJMP, vm.OpJSR, vm.OpBZ, vm.OpBNZ:
			if p.code[i].Arg >= int64(at) {
				p.code[i].Arg += int64(n)
			}
		}
	}
	for i := range p.fixups {
		if p.fixups[i].pos >= at {
			p.fixups[i].pos += n
		}
	}
}

// here is the address the next emitted instruction will occupy.
func (p *Parser) here() int {
	return len(p.code)
}

// internString copies a string literal (plus adjacent literals, C
// style) into the data segment and returns its address.
func (p *Parser) internString() (int64, error) {
	addr := int64(len(p.data))
	for p.tok.Type == TokenString {
		p.data = append(p.data, p.tok.Literal...)
		if err := p.next(); err != nil {
			return 0, err
		}
	}
	p.data = append(p.data, 0)
	for len(p.data)%vm.WordSize != 0 {
		p.data = append(p.data, 0)
	}
	return addr, nil
}

// ---------------------------------------------------------------------------
// Declarations
// ---------------------------------------------------------------------------

// baseType consumes a type keyword. Void is usable only as a function
// return type and behaves as int there.
func (p *Parser) baseType() (Type, error) {
	var t Type
	switch p.tok.Type {
	case TokenInt, TokenVoid:
		t = TypeInt
	case TokenChar:
		t = TypeChar
	default:
		return t, p.syntaxf("expected type name, found %s", p.tok)
	}
	return t, p.next()
}

// stars consumes pointer declarators.
func (p *Parser) stars(t Type) (Type, error) {
	for p.tok.Type == TokenMul {
		t = t.Ref()
		if err := p.next(); err != nil {
			return t, err
		}
	}
	return t, nil
}

// globalDecl parses one top-level declaration: an enum, a function
// definition, or a list of global variables.
func (p *Parser) globalDecl() error {
	if p.tok.Type == TokenEnum {
		return p.enumDecl()
	}

	base, err := p.baseType()
	if err != nil {
		return err
	}

	for {
		typ, err := p.stars(base)
		if err != nil {
			return err
		}
		if p.tok.Type != TokenIdent {
			return p.syntaxf("expected identifier in global declaration, found %s", p.tok)
		}
		name := p.tok.Literal
		namePos := p.tok.Pos
		if err := p.next(); err != nil {
			return err
		}

		if p.tok.Type == TokenLParen {
			// function definitions cannot share a declarator list
			return p.funcDecl(name, namePos, typ)
		}

		addr := int64(len(p.data))
		p.data = append(p.data, make([]byte, vm.WordSize)...)
		if _, err := p.syms.Declare(&Symbol{Name: name, Class: ClassGlobal, Type: typ, Value: addr}, namePos); err != nil {
			return err
		}

		if p.tok.Type == TokenComma {
			if err := p.next(); err != nil {
				return err
			}
			continue
		}
		return p.expect(TokenSemicolon, "global declaration")
	}
}

// enumDecl parses an enum declaration, binding each member as a
// compile-time constant. Enums occupy no runtime storage.
func (p *Parser) enumDecl() error {
	if err := p.next(); err != nil { // consume "enum"
		return err
	}
	if p.tok.Type == TokenIdent { // optional tag, unused by the subset
		if err := p.next(); err != nil {
			return err
		}
	}
	if err := p.expect(TokenLBrace, "enum declaration"); err != nil {
		return err
	}

	val := int64(0)
	for p.tok.Type != TokenRBrace {
		if p.tok.Type != TokenIdent {
			return p.syntaxf("expected enum member name, found %s", p.tok)
		}
		name := p.tok.Literal
		namePos := p.tok.Pos
		if err := p.next(); err != nil {
			return err
		}

		if p.tok.Type == TokenAssign {
			if err := p.next(); err != nil {
				return err
			}
			neg := false
			if p.tok.Type == TokenSub {
				neg = true
				if err := p.next(); err != nil {
					return err
				}
			}
			if p.tok.Type != TokenNumber {
				return p.syntaxf("expected numeric enum initializer, found %s", p.tok)
			}
			val = p.tok.Value
			if neg {
				val = -val
			}
			if err := p.next(); err != nil {
				return err
			}
		}

		if _, err := p.syms.Declare(&Symbol{Name: name, Class: ClassEnum, Type: TypeInt, Value: val}, namePos); err != nil {
			return err
		}
		val++

		if p.tok.Type == TokenComma {
			if err := p.next(); err != nil {
				return err
			}
		}
	}
	if err := p.next(); err != nil { // consume "}"
		return err
	}
	return p.expect(TokenSemicolon, "enum declaration")
}

// funcDecl parses a function definition. The entry address is fixed
// before the body is generated, so recursive calls resolve directly and
// forward calls resolve through the fixup list.
func (p *Parser) funcDecl(name string, namePos Position, ret Type) error {
	sym := p.syms.lookupOrNil(name)
	if sym != nil && sym.Class == ClassFun && sym.Value < 0 && sym.Depth == 0 {
		// a forward call created this pending binding
		sym.Type = ret
	} else {
		var err error
		sym, err = p.syms.Declare(&Symbol{Name: name, Class: ClassFun, Type: ret, Value: -1}, namePos)
		if err != nil {
			return err
		}
	}

	if err := p.next(); err != nil { // consume "("
		return err
	}
	p.syms.EnterScope()
	defer p.syms.ExitScope()

	var params []*Symbol
	for p.tok.Type != TokenRParen {
		if p.tok.Type == TokenVoid && len(params) == 0 {
			// "(void)" parameter list
			if err := p.next(); err != nil {
				return err
			}
			break
		}
		typ, err := p.baseType()
		if err != nil {
			return err
		}
		if typ, err = p.stars(typ); err != nil {
			return err
		}
		if p.tok.Type != TokenIdent {
			return p.syntaxf("expected parameter name, found %s", p.tok)
		}
		param, err := p.syms.Declare(&Symbol{Name: p.tok.Literal, Class: ClassLocal, Type: typ}, p.tok.Pos)
		if err != nil {
			return err
		}
		params = append(params, param)
		if err := p.next(); err != nil {
			return err
		}
		if p.tok.Type == TokenComma {
			if err := p.next(); err != nil {
				return err
			}
		}
	}
	if err := p.next(); err != nil { // consume ")"
		return err
	}

	// Frame layout: saved bp at bp, return address one word up, then
	// arguments in declaration order (first argument deepest).
	for i, param := range params {
		param.Value = int64(len(params) + 1 - i)
	}

	if err := p.expect(TokenLBrace, "function definition"); err != nil {
		return err
	}

	sym.Value = int64(p.here())
	p.localWords = 0
	p.maxLocals = 0
	ent := p.emit(vm.OpENT, 0)

	if err := p.blockBody(); err != nil {
		return err
	}
	if err := p.next(); err != nil { // consume "}"
		return err
	}

	p.emit(vm.OpLEV)
	p.patch(ent, p.maxLocals)
	return nil
}

// localDecls parses the variable declarations at the top of a block,
// assigning each a fresh frame slot.
func (p *Parser) localDecls() error {
	for p.tok.Type == TokenInt || p.tok.Type == TokenChar {
		base, err := p.baseType()
		if err != nil {
			return err
		}
		for {
			typ, err := p.stars(base)
			if err != nil {
				return err
			}
			if p.tok.Type != TokenIdent {
				return p.syntaxf("expected identifier in local declaration, found %s", p.tok)
			}
			p.localWords++
			if p.localWords > p.maxLocals {
				p.maxLocals = p.localWords
			}
			_, err = p.syms.Declare(&Symbol{
				Name:  p.tok.Literal,
				Class: ClassLocal,
				Type:  typ,
				Value: -int64(p.localWords),
			}, p.tok.Pos)
			if err != nil {
				return err
			}
			if err := p.next(); err != nil {
				return err
			}
			if p.tok.Type == TokenComma {
				if err := p.next(); err != nil {
					return err
				}
				continue
			}
			break
		}
		if err := p.expect(TokenSemicolon, "local declaration"); err != nil {
			return err
		}
	}
	return nil
}

// blockBody parses declarations then statements up to the closing
// brace, which is left for the caller to consume.
func (p *Parser) blockBody() error {
	if err := p.localDecls(); err != nil {
		return err
	}
	for p.tok.Type != TokenRBrace {
		if p.tok.Type == TokenEOF {
			return p.syntaxf("unexpected end of input, expected \"}\"")
		}
		if err := p.stmt(); err != nil {
			return err
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (p *Parser) stmt() error {
	switch p.tok.Type {
	case TokenIf:
		return p.ifStmt()

	case TokenWhile:
		return p.whileStmt()

	case TokenReturn:
		if err := p.next(); err != nil {
			return err
		}
		if p.tok.Type != TokenSemicolon {
			if err := p.expr(PrecAssign); err != nil {
				return err
			}
		}
		p.emit(vm.OpLEV)
		return p.expect(TokenSemicolon, "return statement")

	case TokenLBrace:
		if err := p.next(); err != nil {
			return err
		}
		p.syms.EnterScope()
		saved := p.localWords
		err := p.blockBody()
		p.localWords = saved
		p.syms.ExitScope()
		if err != nil {
			return err
		}
		return p.next() // consume "}"

	case TokenSemicolon:
		return p.next()

	default:
		if err := p.expr(PrecAssign); err != nil {
			return err
		}
		return p.expect(TokenSemicolon, "expression statement")
	}
}

func (p *Parser) ifStmt() error {
	if err := p.next(); err != nil { // consume "if"
		return err
	}
	if err := p.expect(TokenLParen, "if condition"); err != nil {
		return err
	}
	if err := p.expr(PrecAssign); err != nil {
		return err
	}
	if err := p.expect(TokenRParen, "if condition"); err != nil {
		return err
	}

	branch := p.emit(vm.OpBZ, 0)
	if err := p.stmt(); err != nil {
		return err
	}

	if p.tok.Type == TokenElse {
		if err := p.next(); err != nil {
			return err
		}
		skip := p.emit(vm.OpJMP, 0)
		p.patch(branch, p.here())
		if err := p.stmt(); err != nil {
			return err
		}
		p.patch(skip, p.here())
		return nil
	}

	p.patch(branch, p.here())
	return nil
}

func (p *Parser) whileStmt() error {
	if err := p.next(); err != nil { // consume "while"
		return err
	}
	test := p.here()
	if err := p.expect(TokenLParen, "while condition"); err != nil {
		return err
	}
	if err := p.expr(PrecAssign); err != nil {
		return err
	}
	if err := p.expect(TokenRParen, "while condition"); err != nil {
		return err
	}

	exit := p.emit(vm.OpBZ, 0)
	if err := p.stmt(); err != nil {
		return err
	}
	p.emit(vm.OpJMP, int64(test))
	p.patch(exit, p.here())
	return nil
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// loadFor emits the memory load matching a type's cell width.
func (p *Parser) loadFor(t Type) {
	if t.Size() == 1 {
		p.emit(vm.OpLC)
	} else {
		p.emit(vm.OpLI)
	}
}

// storeFor emits the memory store matching a type's cell width.
func (p *Parser) storeFor(t Type) {
	if t.Size() == 1 {
		p.emit(vm.OpSC)
	} else {
		p.emit(vm.OpSI)
	}
}

// stepSize is the increment applied by ++/-- for a value of type t.
func stepSize(t Type) int64 {
	if t.IsPtr() {
		return t.Deref().Size()
	}
	return 1
}

// makeLvalue rewrites the trailing load of an lvalue expression into a
// push of its address, re-emitting the load when keep is set. Returns
// the width of the rewritten load, or false when the expression was not
// an lvalue.
func (p *Parser) makeLvalue(keep bool) (vm.Opcode, bool) {
	if len(p.code) == 0 {
		return 0, false
	}
	last := p.code[len(p.code)-1].Op
	if last != vm.OpLI && last != vm.OpLC {
		return 0, false
	}
	p.code[len(p.code)-1] = vm.Instruction{Op: vm.OpPSH}
	if keep {
		p.emit(last)
	}
	return last, true
}

// expr compiles an expression using precedence climbing: a prefix or
// primary production first, then every binary/postfix operator binding
// at least as tightly as min.
func (p *Parser) expr(min int) error {
	if err := p.unary(); err != nil {
		return err
	}

	for p.tok.Type.Precedence() >= min {
		t := p.typ
		var err error
		switch p.tok.Type {
		case TokenAssign:
			err = p.assignExpr(t)
		case TokenCond:
			err = p.condExpr()
		case TokenLor:
			err = p.shortCircuit(vm.OpBNZ, PrecLan)
		case TokenLan:
			err = p.shortCircuit(vm.OpBZ, PrecOr)
		case TokenOr:
			err = p.intBinary(vm.OpOR, PrecXor, t)
		case TokenXor:
			err = p.intBinary(vm.OpXOR, PrecAnd, t)
		case TokenAnd:
			err = p.intBinary(vm.OpAND, PrecEq, t)
		case TokenEq:
			err = p.compare(vm.OpEQ, PrecRel)
		case TokenNe:
			err = p.compare(vm.OpNE, PrecRel)
		case TokenLt:
			err = p.compare(vm.OpLT, PrecShift)
		case TokenGt:
			err = p.compare(vm.OpGT, PrecShift)
		case TokenLe:
			err = p.compare(vm.OpLE, PrecShift)
		case TokenGe:
			err = p.compare(vm.OpGE, PrecShift)
		case TokenShl:
			err = p.intBinary(vm.OpSHL, PrecAdd, t)
		case TokenShr:
			err = p.intBinary(vm.OpSHR, PrecAdd, t)
		case TokenAdd:
			err = p.addExpr(t)
		case TokenSub:
			err = p.subExpr(t)
		case TokenMul:
			err = p.intBinary(vm.OpMUL, PrecPostfix, t)
		case TokenDiv:
			err = p.intBinary(vm.OpDIV, PrecPostfix, t)
		case TokenMod:
			err = p.intBinary(vm.OpMOD, PrecPostfix, t)
		case TokenInc, TokenDec:
			err = p.postfixIncDec(t)
		case TokenBracket:
			err = p.indexExpr(t)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// unary compiles a primary expression or prefix operator.
func (p *Parser) unary() error {
	switch p.tok.Type {
	case TokenNumber:
		p.emit(vm.OpIMM, p.tok.Value)
		p.typ = TypeInt
		return p.next()

	case TokenString:
		addr, err := p.internString()
		if err != nil {
			return err
		}
		p.emit(vm.OpIMM, addr)
		p.typ = TypeChar.Ref()
		return nil

	case TokenSizeof:
		return p.sizeofExpr()

	case TokenIdent:
		return p.identExpr()

	case TokenLParen:
		if err := p.next(); err != nil {
			return err
		}
		if p.tok.Type == TokenInt || p.tok.Type == TokenChar {
			// type cast
			typ, err := p.baseType()
			if err != nil {
				return err
			}
			if typ, err = p.stars(typ); err != nil {
				return err
			}
			if err := p.expect(TokenRParen, "type cast"); err != nil {
				return err
			}
			if err := p.expr(PrecPostfix); err != nil {
				return err
			}
			p.typ = typ
			return nil
		}
		if err := p.expr(PrecAssign); err != nil {
			return err
		}
		return p.expect(TokenRParen, "parenthesized expression")

	case TokenMul: // dereference
		if err := p.next(); err != nil {
			return err
		}
		if err := p.expr(PrecPostfix); err != nil {
			return err
		}
		if !p.typ.IsPtr() {
			return p.semanticf("cannot dereference non-pointer type %s", p.typ)
		}
		p.typ = p.typ.Deref()
		p.loadFor(p.typ)
		return nil

	case TokenAnd: // address-of
		if err := p.next(); err != nil {
			return err
		}
		if err := p.expr(PrecPostfix); err != nil {
			return err
		}
		if len(p.code) == 0 || (p.code[len(p.code)-1].Op != vm.OpLI && p.code[len(p.code)-1].Op != vm.OpLC) {
			return p.semanticf("cannot take the address of a non-lvalue")
		}
		p.code = p.code[:len(p.code)-1]
		p.typ = p.typ.Ref()
		return nil

	case TokenNot:
		if err := p.next(); err != nil {
			return err
		}
		if err := p.expr(PrecPostfix); err != nil {
			return err
		}
		p.emit(vm.OpPSH)
		p.emit(vm.OpIMM, 0)
		p.emit(vm.OpEQ)
		p.typ = TypeInt
		return nil

	case TokenTilde:
		if err := p.next(); err != nil {
			return err
		}
		if err := p.expr(PrecPostfix); err != nil {
			return err
		}
		p.emit(vm.OpPSH)
		p.emit(vm.OpIMM, -1)
		p.emit(vm.OpXOR)
		p.typ = TypeInt
		return nil

	case TokenAdd: // unary plus
		if err := p.next(); err != nil {
			return err
		}
		if err := p.expr(PrecPostfix); err != nil {
			return err
		}
		p.typ = TypeInt
		return nil

	case TokenSub: // negation
		if err := p.next(); err != nil {
			return err
		}
		if p.tok.Type == TokenNumber {
			p.emit(vm.OpIMM, -p.tok.Value)
			if err := p.next(); err != nil {
				return err
			}
		} else {
			p.emit(vm.OpIMM, -1)
			p.emit(vm.OpPSH)
			if err := p.expr(PrecPostfix); err != nil {
				return err
			}
			p.emit(vm.OpMUL)
		}
		p.typ = TypeInt
		return nil

	case TokenInc, TokenDec:
		op := vm.OpADD
		if p.tok.Type == TokenDec {
			op = vm.OpSUB
		}
		if err := p.next(); err != nil {
			return err
		}
		if err := p.expr(PrecPostfix); err != nil {
			return err
		}
		load, ok := p.makeLvalue(true)
		if !ok {
			return p.semanticf("pre-increment target is not an lvalue")
		}
		p.emit(vm.OpPSH)
		p.emit(vm.OpIMM, stepSize(p.typ))
		p.emit(op)
		if load == vm.OpLC {
			p.emit(vm.OpSC)
		} else {
			p.emit(vm.OpSI)
		}
		return nil

	case TokenEOF:
		return p.syntaxf("expected expression, found end of input")

	default:
		return p.syntaxf("expected expression, found %s", p.tok)
	}
}

// sizeofExpr compiles sizeof(type) to an immediate.
func (p *Parser) sizeofExpr() error {
	if err := p.next(); err != nil { // consume "sizeof"
		return err
	}
	if err := p.expect(TokenLParen, "sizeof"); err != nil {
		return err
	}
	typ, err := p.baseType()
	if err != nil {
		return err
	}
	if typ, err = p.stars(typ); err != nil {
		return err
	}
	if err := p.expect(TokenRParen, "sizeof"); err != nil {
		return err
	}
	p.emit(vm.OpIMM, typ.Size())
	p.typ = TypeInt
	return nil
}

// identExpr compiles an identifier use: a call, an enum constant, or a
// variable reference.
func (p *Parser) identExpr() error {
	name := p.tok.Literal
	namePos := p.tok.Pos
	if err := p.next(); err != nil {
		return err
	}

	if p.tok.Type == TokenLParen {
		return p.callExpr(name, namePos)
	}

	sym, err := p.syms.Lookup(name, namePos)
	if err != nil {
		return err
	}
	switch sym.Class {
	case ClassEnum:
		p.emit(vm.OpIMM, sym.Value)
		p.typ = sym.Type

	case ClassLocal:
		p.emit(vm.OpLEA, sym.Value)
		p.typ = sym.Type
		p.loadFor(sym.Type)

	case ClassGlobal:
		p.emit(vm.OpIMM, sym.Value)
		p.typ = sym.Type
		p.loadFor(sym.Type)

	default:
		return diag.Errorf(diag.Semantic, namePos.Line, namePos.Column,
			"%s %q used as a value", sym.Class, name)
	}
	return nil
}

// callExpr compiles a function or host-bridge call. Arguments are
// evaluated left to right and pushed as they go, so the first argument
// ends up deepest in the frame. Calls to functions that have not been
// defined yet go on the fixup list.
func (p *Parser) callExpr(name string, namePos Position) error {
	if err := p.next(); err != nil { // consume "("
		return err
	}

	sym := p.syms.lookupOrNil(name)
	if sym == nil {
		// forward reference; the definition must appear later
		sym = p.syms.DeclareGlobal(&Symbol{Name: name, Class: ClassFun, Type: TypeInt, Value: -1})
	}
	if sym.Class != ClassFun && sym.Class != ClassSys {
		return diag.Errorf(diag.Semantic, namePos.Line, namePos.Column,
			"called object %q is a %s, not a function", name, sym.Class)
	}

	argc := int64(0)
	for p.tok.Type != TokenRParen {
		if err := p.expr(PrecAssign); err != nil {
			return err
		}
		p.emit(vm.OpPSH)
		argc++
		if p.tok.Type == TokenComma {
			if err := p.next(); err != nil {
				return err
			}
			continue
		}
		break
	}
	if err := p.expect(TokenRParen, "call"); err != nil {
		return err
	}

	if sym.Class == ClassSys {
		p.emit(vm.Opcode(sym.Value), argc)
	} else {
		at := p.emit(vm.OpJSR, sym.Value)
		if sym.Value < 0 {
			p.fixups = append(p.fixups, fixup{pos: at, name: name, at: namePos})
		}
	}
	if argc > 0 {
		p.emit(vm.OpADJ, argc)
	}
	p.typ = sym.Type
	return nil
}

// assignExpr compiles the right-hand side of an assignment into the
// address left on the stack by the lvalue rewrite.
func (p *Parser) assignExpr(t Type) error {
	if err := p.next(); err != nil { // consume "="
		return err
	}
	if _, ok := p.makeLvalue(false); !ok {
		return p.semanticf("assignment target is not an lvalue")
	}
	if err := p.expr(PrecAssign); err != nil {
		return err
	}
	p.typ = t
	p.storeFor(t)
	return nil
}

// condExpr compiles the ternary operator like an if/else that leaves a
// value in the accumulator.
func (p *Parser) condExpr() error {
	if err := p.next(); err != nil { // consume "?"
		return err
	}
	branch := p.emit(vm.OpBZ, 0)
	if err := p.expr(PrecAssign); err != nil {
		return err
	}
	if err := p.expect(TokenColon, "conditional expression"); err != nil {
		return err
	}
	skip := p.emit(vm.OpJMP, 0)
	p.patch(branch, p.here())
	if err := p.expr(PrecCond); err != nil {
		return err
	}
	p.patch(skip, p.here())
	return nil
}

// shortCircuit compiles && and ||: the branch skips the right operand
// when the left already decides the result.
func (p *Parser) shortCircuit(branch vm.Opcode, rhs int) error {
	if err := p.next(); err != nil {
		return err
	}
	at := p.emit(branch, 0)
	if err := p.expr(rhs); err != nil {
		return err
	}
	p.patch(at, p.here())
	p.typ = TypeInt
	return nil
}

// compare compiles a relational or equality operator. Pointers may be
// compared freely; the result is always int.
func (p *Parser) compare(op vm.Opcode, rhs int) error {
	if err := p.next(); err != nil {
		return err
	}
	p.emit(vm.OpPSH)
	if err := p.expr(rhs); err != nil {
		return err
	}
	p.emit(op)
	p.typ = TypeInt
	return nil
}

// intBinary compiles a bitwise, shift, or multiplicative operator.
// Pointer operands are outside the subset's legal arithmetic.
func (p *Parser) intBinary(op vm.Opcode, rhs int, t Type) error {
	opTok := p.tok
	if err := p.next(); err != nil {
		return err
	}
	p.emit(vm.OpPSH)
	if err := p.expr(rhs); err != nil {
		return err
	}
	if t.IsPtr() || p.typ.IsPtr() {
		return diag.Errorf(diag.Semantic, opTok.Pos.Line, opTok.Pos.Column,
			"invalid operands to %s: %s and %s", opTok.Type, t, p.typ)
	}
	p.emit(op)
	p.typ = TypeInt
	return nil
}

// addExpr compiles +, scaling the integer operand by the pointee size
// when the left side is a pointer.
func (p *Parser) addExpr(t Type) error {
	opPos := p.tok.Pos
	if err := p.next(); err != nil {
		return err
	}
	p.emit(vm.OpPSH)
	rhs := p.here()
	if err := p.expr(PrecMul); err != nil {
		return err
	}

	switch {
	case t.IsPtr() && !p.typ.IsPtr():
		if size := t.Deref().Size(); size > 1 {
			p.emit(vm.OpPSH)
			p.emit(vm.OpIMM, size)
			p.emit(vm.OpMUL)
		}
		p.emit(vm.OpADD)
		p.typ = t

	case !t.IsPtr() && p.typ.IsPtr():
		// addition commutes: the integer already pushed for the left
		// operand is scaled in place before the pointer lands on it
		if size := p.typ.Deref().Size(); size > 1 {
			p.insertCode(rhs,
				vm.Instruction{Op: vm.OpIMM, Arg: size},
				vm.Instruction{Op: vm.OpMUL},
				vm.Instruction{Op: vm.OpPSH},
			)
		}
		p.emit(vm.OpADD)

	case !t.IsPtr() && !p.typ.IsPtr():
		p.emit(vm.OpADD)
		p.typ = TypeInt

	default:
		return diag.Errorf(diag.Semantic, opPos.Line, opPos.Column,
			"invalid operands to +: %s and %s", t, p.typ)
	}
	return nil
}

// subExpr compiles -: pointer difference (scaled down to elements),
// pointer minus integer (scaled up), or plain integer subtraction.
func (p *Parser) subExpr(t Type) error {
	opPos := p.tok.Pos
	if err := p.next(); err != nil {
		return err
	}
	p.emit(vm.OpPSH)
	if err := p.expr(PrecMul); err != nil {
		return err
	}

	switch {
	case t.IsPtr() && p.typ == t:
		p.emit(vm.OpSUB)
		if size := t.Deref().Size(); size > 1 {
			p.emit(vm.OpPSH)
			p.emit(vm.OpIMM, size)
			p.emit(vm.OpDIV)
		}
		p.typ = TypeInt

	case t.IsPtr() && !p.typ.IsPtr():
		if size := t.Deref().Size(); size > 1 {
			p.emit(vm.OpPSH)
			p.emit(vm.OpIMM, size)
			p.emit(vm.OpMUL)
		}
		p.emit(vm.OpSUB)
		p.typ = t

	case !t.IsPtr() && !p.typ.IsPtr():
		p.emit(vm.OpSUB)
		p.typ = TypeInt

	default:
		return diag.Errorf(diag.Semantic, opPos.Line, opPos.Column,
			"invalid operands to -: %s and %s", t, p.typ)
	}
	return nil
}

// postfixIncDec compiles x++ and x--: the stored value changes while
// the expression yields the original, so the stored delta is undone in
// the accumulator.
func (p *Parser) postfixIncDec(t Type) error {
	inc := p.tok.Type == TokenInc
	if err := p.next(); err != nil {
		return err
	}

	load, ok := p.makeLvalue(true)
	if !ok {
		return p.semanticf("post-increment target is not an lvalue")
	}
	step := stepSize(t)

	p.emit(vm.OpPSH)
	p.emit(vm.OpIMM, step)
	if inc {
		p.emit(vm.OpADD)
	} else {
		p.emit(vm.OpSUB)
	}
	if load == vm.OpLC {
		p.emit(vm.OpSC)
	} else {
		p.emit(vm.OpSI)
	}
	p.emit(vm.OpPSH)
	p.emit(vm.OpIMM, step)
	if inc {
		p.emit(vm.OpSUB)
	} else {
		p.emit(vm.OpADD)
	}
	p.typ = t
	return nil
}

// indexExpr compiles p[i] as scaled pointer addition plus a load.
func (p *Parser) indexExpr(t Type) error {
	opPos := p.tok.Pos
	if err := p.next(); err != nil { // consume "["
		return err
	}
	p.emit(vm.OpPSH)
	if err := p.expr(PrecAssign); err != nil {
		return err
	}
	if err := p.expect(TokenRBracket, "index expression"); err != nil {
		return err
	}

	if !t.IsPtr() {
		return diag.Errorf(diag.Semantic, opPos.Line, opPos.Column,
			"indexed value has non-pointer type %s", t)
	}
	elem := t.Deref()
	if size := elem.Size(); size > 1 {
		p.emit(vm.OpPSH)
		p.emit(vm.OpIMM, size)
		p.emit(vm.OpMUL)
	}
	p.emit(vm.OpADD)
	p.typ = elem
	p.loadFor(elem)
	return nil
}

// ---------------------------------------------------------------------------
// Final resolution
// ---------------------------------------------------------------------------

// finish patches every deferred call, checks the program has an entry
// point, and appends the halt stub that turns main's return value into
// the exit code.
func (p *Parser) finish() (*vm.Program, error) {
	for _, f := range p.fixups {
		sym := p.syms.lookupOrNil(f.name)
		if sym == nil || sym.Class != ClassFun || sym.Value < 0 {
			return nil, diag.Errorf(diag.Semantic, f.at.Line, f.at.Column,
				"call to undefined function %q", f.name)
		}
		p.patch(f.pos, int(sym.Value))
	}
	for i, in := range p.code {
		if in.Op == vm.OpJSR && in.Arg < 0 {
			return nil, diag.Errorf(diag.Internal, 0, 0,
				"unresolved call at instruction %d after fixup pass", i)
		}
	}

	mainSym := p.syms.lookupOrNil("main")
	if mainSym == nil || mainSym.Class != ClassFun || mainSym.Value < 0 {
		return nil, diag.Errorf(diag.Semantic, 0, 0, "main() is not defined")
	}

	halt := p.here()
	p.emit(vm.OpPSH)
	p.emit(vm.OpEXIT, 1)

	return &vm.Program{
		Code:  p.code,
		Data:  p.data,
		Entry: int(mainSym.Value),
		Halt:  halt,
	}, nil
}
