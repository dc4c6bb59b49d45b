package compiler

import "fmt"

// ---------------------------------------------------------------------------
// Token types for the C subset
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota

	// Literals and names
	TokenNumber // 42, 0x2a, 052, 'a'
	TokenString // "hello"
	TokenIdent  // foo, Bar

	// Keywords
	TokenChar
	TokenElse
	TokenEnum
	TokenIf
	TokenInt
	TokenReturn
	TokenSizeof
	TokenWhile
	TokenVoid

	// Operators, in precedence order
	TokenAssign  // =
	TokenCond    // ?
	TokenLor     // ||
	TokenLan     // &&
	TokenOr      // |
	TokenXor     // ^
	TokenAnd     // &
	TokenEq      // ==
	TokenNe      // !=
	TokenLt      // <
	TokenGt      // >
	TokenLe      // <=
	TokenGe      // >=
	TokenShl     // <<
	TokenShr     // >>
	TokenAdd     // +
	TokenSub     // -
	TokenMul     // *
	TokenDiv     // /
	TokenMod     // %
	TokenInc     // ++
	TokenDec     // --
	TokenBracket // [

	// Punctuation
	TokenNot       // !
	TokenTilde     // ~
	TokenSemicolon // ;
	TokenComma     // ,
	TokenColon     // :
	TokenLParen    // (
	TokenRParen    // )
	TokenLBrace    // {
	TokenRBrace    // }
	TokenRBracket  // ]
)

var tokenNames = map[TokenType]string{
	TokenEOF:       "EOF",
	TokenNumber:    "NUMBER",
	TokenString:    "STRING",
	TokenIdent:     "IDENTIFIER",
	TokenChar:      "char",
	TokenElse:      "else",
	TokenEnum:      "enum",
	TokenIf:        "if",
	TokenInt:       "int",
	TokenReturn:    "return",
	TokenSizeof:    "sizeof",
	TokenWhile:     "while",
	TokenVoid:      "void",
	TokenAssign:    "=",
	TokenCond:      "?",
	TokenLor:       "||",
	TokenLan:       "&&",
	TokenOr:        "|",
	TokenXor:       "^",
	TokenAnd:       "&",
	TokenEq:        "==",
	TokenNe:        "!=",
	TokenLt:        "<",
	TokenGt:        ">",
	TokenLe:        "<=",
	TokenGe:        ">=",
	TokenShl:       "<<",
	TokenShr:       ">>",
	TokenAdd:       "+",
	TokenSub:       "-",
	TokenMul:       "*",
	TokenDiv:       "/",
	TokenMod:       "%",
	TokenInc:       "++",
	TokenDec:       "--",
	TokenBracket:   "[",
	TokenNot:       "!",
	TokenTilde:     "~",
	TokenSemicolon: ";",
	TokenComma:     ",",
	TokenColon:     ":",
	TokenLParen:    "(",
	TokenRParen:    ")",
	TokenLBrace:    "{",
	TokenRBrace:    "}",
	TokenRBracket:  "]",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Token(%d)", int(t))
}

// Operator precedence levels, lowest to highest. A zero precedence
// marks a non-operator token, which terminates the precedence climb.
const (
	PrecNone    = 0
	PrecAssign  = 1
	PrecCond    = 2
	PrecLor     = 3
	PrecLan     = 4
	PrecOr      = 5
	PrecXor     = 6
	PrecAnd     = 7
	PrecEq      = 8
	PrecRel     = 9
	PrecShift   = 10
	PrecAdd     = 11
	PrecMul     = 12
	PrecPostfix = 13
)

// Precedence returns the binding level of an operator token.
func (t TokenType) Precedence() int {
	switch t {
	case TokenAssign:
		return PrecAssign
	case TokenCond:
		return PrecCond
	case TokenLor:
		return PrecLor
	case TokenLan:
		return PrecLan
	case TokenOr:
		return PrecOr
	case TokenXor:
		return PrecXor
	case TokenAnd:
		return PrecAnd
	case TokenEq, TokenNe:
		return PrecEq
	case TokenLt, TokenGt, TokenLe, TokenGe:
		return PrecRel
	case TokenShl, TokenShr:
		return PrecShift
	case TokenAdd, TokenSub:
		return PrecAdd
	case TokenMul, TokenDiv, TokenMod:
		return PrecMul
	case TokenInc, TokenDec, TokenBracket:
		return PrecPostfix
	default:
		return PrecNone
	}
}

// Position is a location in the source text.
type Position struct {
	Offset int // byte offset, 0-based
	Line   int // line number, 1-based
	Column int // column number, 1-based
}

// Token represents a lexical token. Value carries the numeric value of
// number tokens; Literal carries identifier text and string contents.
type Token struct {
	Type    TokenType
	Value   int64
	Literal string
	Pos     Position
}

func (t Token) String() string {
	switch t.Type {
	case TokenEOF:
		return "EOF"
	case TokenNumber:
		return fmt.Sprintf("NUMBER(%d)", t.Value)
	case TokenString:
		return fmt.Sprintf("STRING(%q)", t.Literal)
	case TokenIdent:
		return fmt.Sprintf("IDENTIFIER(%s)", t.Literal)
	default:
		return t.Type.String()
	}
}

// Reserved words mapped to their token types.
var reservedWords = map[string]TokenType{
	"char":   TokenChar,
	"else":   TokenElse,
	"enum":   TokenEnum,
	"if":     TokenIf,
	"int":    TokenInt,
	"return": TokenReturn,
	"sizeof": TokenSizeof,
	"while":  TokenWhile,
	"void":   TokenVoid,
}
