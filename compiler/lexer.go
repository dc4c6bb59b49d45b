package compiler

import (
	"github.com/chazu/mcc/diag"
)

// ---------------------------------------------------------------------------
// Lexer: tokenizer for the C subset
// ---------------------------------------------------------------------------

// Lexer tokenizes C-subset source text. The source is ASCII; tokens are
// produced lazily, one per NextToken call.
type Lexer struct {
	input   string
	pos     int  // current position in input
	readPos int  // reading position (after current char)
	ch      byte // current character, 0 at EOF
	line    int  // current line (1-based)
	col     int  // current column (1-based)
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{
		input: input,
		line:  1,
		col:   0,
	}
	l.readChar()
	return l
}

// readChar advances to the next character.
func (l *Lexer) readChar() {
	if l.ch == '\n' {
		l.line++
		l.col = 0
	}
	if l.readPos >= len(l.input) {
		l.ch = 0
		l.pos = len(l.input)
	} else {
		l.ch = l.input[l.readPos]
		l.pos = l.readPos
		l.readPos++
	}
	l.col++
}

// peekChar returns the next character without consuming it.
func (l *Lexer) peekChar() byte {
	if l.readPos >= len(l.input) {
		return 0
	}
	return l.input[l.readPos]
}

// position returns the current position.
func (l *Lexer) position() Position {
	return Position{
		Offset: l.pos,
		Line:   l.line,
		Column: l.col,
	}
}

func (l *Lexer) errorf(pos Position, format string, args ...interface{}) *diag.Diagnostic {
	return diag.Errorf(diag.Lexical, pos.Line, pos.Column, format, args...)
}

// NextToken returns the next token, or a lexical diagnostic.
func (l *Lexer) NextToken() (Token, error) {
	l.skipWhitespaceAndComments()

	pos := l.position()

	switch {
	case l.ch == 0:
		return Token{Type: TokenEOF, Pos: pos}, nil

	case isLetter(l.ch) || l.ch == '_':
		return l.readIdentifierOrKeyword(pos), nil

	case isDigit(l.ch):
		return l.readNumber(pos)

	case l.ch == '"':
		return l.readString(pos)

	case l.ch == '\'':
		return l.readCharLiteral(pos)

	default:
		return l.readOperator(pos)
	}
}

// skipWhitespaceAndComments skips whitespace, // comments, and
// #-prefixed lines (the subset has no preprocessor; such lines are
// ignored wholesale).
func (l *Lexer) skipWhitespaceAndComments() {
	for {
		for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' {
			l.readChar()
		}

		if l.ch == '/' && l.peekChar() == '/' {
			for l.ch != '\n' && l.ch != 0 {
				l.readChar()
			}
			continue
		}

		if l.ch == '#' {
			for l.ch != '\n' && l.ch != 0 {
				l.readChar()
			}
			continue
		}

		break
	}
}

// readIdentifierOrKeyword reads an identifier and classifies it against
// the keyword set.
func (l *Lexer) readIdentifierOrKeyword(pos Position) Token {
	start := l.pos
	for isLetter(l.ch) || isDigit(l.ch) || l.ch == '_' {
		l.readChar()
	}
	literal := l.input[start:l.pos]

	if tokType, ok := reservedWords[literal]; ok {
		return Token{Type: tokType, Literal: literal, Pos: pos}
	}
	return Token{Type: TokenIdent, Literal: literal, Pos: pos}
}

// readNumber reads a decimal, hex (0x), or octal (leading 0) literal.
func (l *Lexer) readNumber(pos Position) (Token, error) {
	var val int64

	if l.ch != '0' {
		for isDigit(l.ch) {
			val = val*10 + int64(l.ch-'0')
			l.readChar()
		}
		return Token{Type: TokenNumber, Value: val, Pos: pos}, nil
	}

	l.readChar()
	if l.ch == 'x' || l.ch == 'X' {
		l.readChar()
		if !isHexDigit(l.ch) {
			return Token{}, l.errorf(pos, "malformed hex literal")
		}
		for isHexDigit(l.ch) {
			val = val*16 + int64(hexValue(l.ch))
			l.readChar()
		}
		return Token{Type: TokenNumber, Value: val, Pos: pos}, nil
	}

	for l.ch >= '0' && l.ch <= '7' {
		val = val*8 + int64(l.ch-'0')
		l.readChar()
	}
	return Token{Type: TokenNumber, Value: val, Pos: pos}, nil
}

// readEscape consumes a backslash escape and returns the encoded byte.
func (l *Lexer) readEscape(pos Position) (byte, error) {
	l.readChar() // consume backslash
	switch l.ch {
	case 'n':
		l.readChar()
		return '\n', nil
	case 't':
		l.readChar()
		return '\t', nil
	case '0':
		l.readChar()
		return 0, nil
	case '\\':
		l.readChar()
		return '\\', nil
	case '"':
		l.readChar()
		return '"', nil
	case '\'':
		l.readChar()
		return '\'', nil
	case 0:
		return 0, l.errorf(pos, "unterminated escape sequence")
	default:
		return 0, l.errorf(l.position(), "invalid escape sequence '\\%c'", l.ch)
	}
}

// readString reads a string literal, handling escapes. The token's
// Literal holds the decoded contents; storage is the code generator's
// concern.
func (l *Lexer) readString(pos Position) (Token, error) {
	l.readChar() // consume opening quote

	var out []byte
	for l.ch != '"' {
		if l.ch == 0 || l.ch == '\n' {
			return Token{}, l.errorf(pos, "unterminated string literal")
		}
		if l.ch == '\\' {
			b, err := l.readEscape(pos)
			if err != nil {
				return Token{}, err
			}
			out = append(out, b)
			continue
		}
		out = append(out, l.ch)
		l.readChar()
	}
	l.readChar() // consume closing quote

	return Token{Type: TokenString, Literal: string(out), Pos: pos}, nil
}

// readCharLiteral reads a character literal as a number token.
func (l *Lexer) readCharLiteral(pos Position) (Token, error) {
	l.readChar() // consume opening quote

	var b byte
	switch l.ch {
	case 0, '\n':
		return Token{}, l.errorf(pos, "unterminated char literal")
	case '\\':
		var err error
		if b, err = l.readEscape(pos); err != nil {
			return Token{}, err
		}
	default:
		b = l.ch
		l.readChar()
	}

	if l.ch != '\'' {
		return Token{}, l.errorf(pos, "unterminated char literal")
	}
	l.readChar() // consume closing quote

	return Token{Type: TokenNumber, Value: int64(b), Pos: pos}, nil
}

// readOperator reads operators and punctuation using longest-match.
func (l *Lexer) readOperator(pos Position) (Token, error) {
	tok := func(t TokenType) (Token, error) {
		return Token{Type: t, Literal: t.String(), Pos: pos}, nil
	}

	ch := l.ch
	l.readChar()
	switch ch {
	case '=':
		if l.ch == '=' {
			l.readChar()
			return tok(TokenEq)
		}
		return tok(TokenAssign)
	case '+':
		if l.ch == '+' {
			l.readChar()
			return tok(TokenInc)
		}
		return tok(TokenAdd)
	case '-':
		if l.ch == '-' {
			l.readChar()
			return tok(TokenDec)
		}
		return tok(TokenSub)
	case '!':
		if l.ch == '=' {
			l.readChar()
			return tok(TokenNe)
		}
		return tok(TokenNot)
	case '<':
		if l.ch == '=' {
			l.readChar()
			return tok(TokenLe)
		}
		if l.ch == '<' {
			l.readChar()
			return tok(TokenShl)
		}
		return tok(TokenLt)
	case '>':
		if l.ch == '=' {
			l.readChar()
			return tok(TokenGe)
		}
		if l.ch == '>' {
			l.readChar()
			return tok(TokenShr)
		}
		return tok(TokenGt)
	case '|':
		if l.ch == '|' {
			l.readChar()
			return tok(TokenLor)
		}
		return tok(TokenOr)
	case '&':
		if l.ch == '&' {
			l.readChar()
			return tok(TokenLan)
		}
		return tok(TokenAnd)
	case '^':
		return tok(TokenXor)
	case '%':
		return tok(TokenMod)
	case '*':
		return tok(TokenMul)
	case '/':
		return tok(TokenDiv)
	case '?':
		return tok(TokenCond)
	case '~':
		return tok(TokenTilde)
	case ';':
		return tok(TokenSemicolon)
	case ',':
		return tok(TokenComma)
	case ':':
		return tok(TokenColon)
	case '(':
		return tok(TokenLParen)
	case ')':
		return tok(TokenRParen)
	case '{':
		return tok(TokenLBrace)
	case '}':
		return tok(TokenRBrace)
	case '[':
		return tok(TokenBracket)
	case ']':
		return tok(TokenRBracket)
	default:
		return Token{}, l.errorf(pos, "unexpected character %q", ch)
	}
}

// Helper functions

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func isHexDigit(b byte) bool {
	return isDigit(b) || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
}

func hexValue(b byte) int {
	switch {
	case b >= 'a':
		return int(b-'a') + 10
	case b >= 'A':
		return int(b-'A') + 10
	default:
		return int(b - '0')
	}
}

// Tokenize returns all tokens from the input, stopping at the first
// lexical error.
func Tokenize(input string) ([]Token, error) {
	l := NewLexer(input)
	var tokens []Token
	for {
		tok, err := l.NextToken()
		if err != nil {
			return tokens, err
		}
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF {
			return tokens, nil
		}
	}
}
