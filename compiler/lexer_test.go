package compiler

import (
	"testing"

	"github.com/chazu/mcc/diag"
)

func TestLexerOperators(t *testing.T) {
	input := `= == + ++ - -- ! != < <= << > >= >> | || & && ^ % * / ? ~ ; , : ( ) { } [ ]`
	expected := []TokenType{
		TokenAssign, TokenEq, TokenAdd, TokenInc, TokenSub, TokenDec,
		TokenNot, TokenNe, TokenLt, TokenLe, TokenShl, TokenGt, TokenGe,
		TokenShr, TokenOr, TokenLor, TokenAnd, TokenLan, TokenXor,
		TokenMod, TokenMul, TokenDiv, TokenCond, TokenTilde,
		TokenSemicolon, TokenComma, TokenColon, TokenLParen, TokenRParen,
		TokenLBrace, TokenRBrace, TokenBracket, TokenRBracket,
		TokenEOF,
	}

	l := NewLexer(input)
	for i, want := range expected {
		tok, err := l.NextToken()
		if err != nil {
			t.Fatalf("token[%d]: unexpected error: %v", i, err)
		}
		if tok.Type != want {
			t.Errorf("token[%d] type = %v, want %v", i, tok.Type, want)
		}
	}
}

func TestLexerKeywords(t *testing.T) {
	input := `char else enum if int return sizeof while void`
	expected := []TokenType{
		TokenChar, TokenElse, TokenEnum, TokenIf, TokenInt,
		TokenReturn, TokenSizeof, TokenWhile, TokenVoid, TokenEOF,
	}

	l := NewLexer(input)
	for i, want := range expected {
		tok, err := l.NextToken()
		if err != nil {
			t.Fatalf("token[%d]: unexpected error: %v", i, err)
		}
		if tok.Type != want {
			t.Errorf("token[%d] type = %v, want %v", i, tok.Type, want)
		}
	}
}

func TestLexerIdentifiers(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"foo", "foo"},
		{"_bar", "_bar"},
		{"x1", "x1"},
		{"snake_case_2", "snake_case_2"},
		{"If", "If"}, // keywords are case sensitive
	}

	for _, tc := range tests {
		l := NewLexer(tc.input)
		tok, err := l.NextToken()
		if err != nil {
			t.Fatalf("Lexer(%q): unexpected error: %v", tc.input, err)
		}
		if tok.Type != TokenIdent {
			t.Errorf("Lexer(%q): type = %v, want IDENTIFIER", tc.input, tok.Type)
		}
		if tok.Literal != tc.want {
			t.Errorf("Lexer(%q): literal = %q, want %q", tc.input, tok.Literal, tc.want)
		}
	}
}

func TestLexerNumbers(t *testing.T) {
	tests := []struct {
		input string
		want  int64
	}{
		{"0", 0},
		{"42", 42},
		{"0x2a", 42},
		{"0X2A", 42},
		{"0xff", 255},
		{"052", 42},
		{"07", 7},
		{"'a'", 97},
		{"'\\n'", 10},
		{"'\\0'", 0},
		{"'\\''", 39},
	}

	for _, tc := range tests {
		l := NewLexer(tc.input)
		tok, err := l.NextToken()
		if err != nil {
			t.Fatalf("Lexer(%q): unexpected error: %v", tc.input, err)
		}
		if tok.Type != TokenNumber {
			t.Errorf("Lexer(%q): type = %v, want NUMBER", tc.input, tok.Type)
		}
		if tok.Value != tc.want {
			t.Errorf("Lexer(%q): value = %d, want %d", tc.input, tok.Value, tc.want)
		}
	}
}

func TestLexerStrings(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`"hello"`, "hello"},
		{`""`, ""},
		{`"a\nb"`, "a\nb"},
		{`"tab\there"`, "tab\there"},
		{`"quote\"inside"`, `quote"inside`},
		{`"back\\slash"`, `back\slash`},
	}

	for _, tc := range tests {
		l := NewLexer(tc.input)
		tok, err := l.NextToken()
		if err != nil {
			t.Fatalf("Lexer(%q): unexpected error: %v", tc.input, err)
		}
		if tok.Type != TokenString {
			t.Errorf("Lexer(%q): type = %v, want STRING", tc.input, tok.Type)
		}
		if tok.Literal != tc.want {
			t.Errorf("Lexer(%q): literal = %q, want %q", tc.input, tok.Literal, tc.want)
		}
	}
}

func TestLexerCommentsAndDirectives(t *testing.T) {
	input := "// a comment\n#include <stdio.h>\nx // trailing\n# another directive\ny"

	toks, err := Tokenize(input)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}

	want := []string{"x", "y"}
	var got []string
	for _, tok := range toks {
		if tok.Type == TokenIdent {
			got = append(got, tok.Literal)
		}
	}
	if len(got) != len(want) {
		t.Fatalf("identifiers = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("identifier[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestLexerPositions(t *testing.T) {
	input := "int x;\n  y = 2;"

	toks, err := Tokenize(input)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}

	expected := []struct {
		line, col int
	}{
		{1, 1}, // int
		{1, 5}, // x
		{1, 6}, // ;
		{2, 3}, // y
		{2, 5}, // =
		{2, 7}, // 2
		{2, 8}, // ;
	}

	for i, exp := range expected {
		if toks[i].Pos.Line != exp.line || toks[i].Pos.Column != exp.col {
			t.Errorf("token[%d] %s at %d:%d, want %d:%d",
				i, toks[i], toks[i].Pos.Line, toks[i].Pos.Column, exp.line, exp.col)
		}
	}
}

func TestLexerErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"unterminated string", `"abc`},
		{"newline in string", "\"abc\ndef\""},
		{"invalid escape", `"\q"`},
		{"unterminated char", "'a"},
		{"malformed hex", "0x"},
		{"unexpected character", "@"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Tokenize(tc.input)
			if err == nil {
				t.Fatalf("Tokenize(%q): expected error, got none", tc.input)
			}
			d, ok := err.(*diag.Diagnostic)
			if !ok {
				t.Fatalf("Tokenize(%q): error is %T, want *diag.Diagnostic", tc.input, err)
			}
			if d.Category != diag.Lexical {
				t.Errorf("Tokenize(%q): category = %v, want lexical", tc.input, d.Category)
			}
			if d.Line == 0 {
				t.Errorf("Tokenize(%q): diagnostic has no position", tc.input)
			}
		})
	}
}

func TestLexerErrorPosition(t *testing.T) {
	_, err := Tokenize("int x;\nchar s = @;")
	if err == nil {
		t.Fatal("expected error for '@'")
	}
	d := err.(*diag.Diagnostic)
	if d.Line != 2 || d.Column != 10 {
		t.Errorf("error at %d:%d, want 2:10", d.Line, d.Column)
	}
}
