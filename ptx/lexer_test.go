package ptx

import (
	"testing"
)

func tokenize(source string) []Token {
	return NewLexer(source).Tokenize()
}

func TestLexer_Kinds(t *testing.T) {
	tokens := tokenize("ld.global.u32 %r1, [%rd2+4];")

	want := []TokenKind{
		TokenIdent,     // ld
		TokenDirective, // .global
		TokenDirective, // .u32
		TokenReg,       // %r1
		TokenComma,
		TokenLeftBracket,
		TokenReg, // %rd2
		TokenPlus,
		TokenIntLiteral, // 4
		TokenRightBracket,
		TokenSemicolon,
		TokenEOF,
	}

	if len(tokens) != len(want) {
		t.Fatalf("Token count: got %d, want %d: %v", len(tokens), len(want), tokens)
	}
	for i, k := range want {
		if tokens[i].Kind != k {
			t.Errorf("Token %d: got %v (%q), want %v", i, tokens[i].Kind, tokens[i].Lexeme, k)
		}
	}
}

func TestLexer_HexFloats(t *testing.T) {
	tokens := tokenize("0f3F800000 0d3FF0000000000000 0x10 42 1.5")

	want := []struct {
		kind   TokenKind
		lexeme string
	}{
		{TokenHexFloat32, "0f3F800000"},
		{TokenHexFloat64, "0d3FF0000000000000"},
		{TokenIntLiteral, "0x10"},
		{TokenIntLiteral, "42"},
		{TokenFloatLiteral, "1.5"},
	}

	for i, w := range want {
		if tokens[i].Kind != w.kind {
			t.Errorf("Token %d: got %v, want %v", i, tokens[i].Kind, w.kind)
		}
		if tokens[i].Lexeme != w.lexeme {
			t.Errorf("Token %d: got lexeme %q, want %q", i, tokens[i].Lexeme, w.lexeme)
		}
	}
}

func TestLexer_Comments(t *testing.T) {
	tokens := tokenize("add // line comment\n/* block\ncomment */ sub")

	var idents []string
	for _, tok := range tokens {
		if tok.Kind == TokenIdent {
			idents = append(idents, tok.Lexeme)
		}
	}
	if len(idents) != 2 || idents[0] != "add" || idents[1] != "sub" {
		t.Errorf("Comments leaked into token stream: %v", idents)
	}
}

func TestLexer_Positions(t *testing.T) {
	tokens := tokenize("mov\n  add")

	if tokens[0].Line != 1 || tokens[0].Column != 1 {
		t.Errorf("First token at %d:%d, want 1:1", tokens[0].Line, tokens[0].Column)
	}
	if tokens[1].Line != 2 || tokens[1].Column != 3 {
		t.Errorf("Second token at %d:%d, want 2:3", tokens[1].Line, tokens[1].Column)
	}
}

func TestLexer_SpecialRegisters(t *testing.T) {
	tokens := tokenize("%tid.x %ntid.y %r10")

	if tokens[0].Kind != TokenReg || tokens[0].Lexeme != "%tid" {
		t.Errorf("Got %v %q, want Reg %%tid", tokens[0].Kind, tokens[0].Lexeme)
	}
	// The component travels as a directive-like suffix token.
	if tokens[1].Kind != TokenDirective || tokens[1].Lexeme != ".x" {
		t.Errorf("Got %v %q, want Directive .x", tokens[1].Kind, tokens[1].Lexeme)
	}
	if tokens[4].Kind != TokenReg || tokens[4].Lexeme != "%r10" {
		t.Errorf("Got %v %q, want Reg %%r10", tokens[4].Kind, tokens[4].Lexeme)
	}
}

func TestLexer_ErrorToken(t *testing.T) {
	tokens := tokenize("add # sub")

	sawError := false
	for _, tok := range tokens {
		if tok.Kind == TokenError {
			sawError = true
		}
	}
	if !sawError {
		t.Error("Unknown character should produce an error token")
	}
}
