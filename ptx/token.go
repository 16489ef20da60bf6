// Package ptx provides PTX (NVIDIA parallel thread execution assembly) parsing.
package ptx

// TokenKind represents the type of token.
type TokenKind uint8

const (
	TokenEOF TokenKind = iota
	TokenError

	// Literals and names
	TokenIdent     // foo, __assertfail
	TokenDirective // .reg, .u64, .visible, ...
	TokenReg       // %rd1, %tid
	TokenIntLiteral
	TokenFloatLiteral
	TokenHexFloat32 // 0f3F800000
	TokenHexFloat64 // 0d3FF0000000000000

	// Punctuation
	TokenAt        // @
	TokenBang      // !
	TokenComma     // ,
	TokenSemicolon // ;
	TokenColon     // :
	TokenPlus      // +
	TokenMinus     // -
	TokenEqual     // =
	TokenLess      // <
	TokenGreater   // >
	TokenLeftParen    // (
	TokenRightParen   // )
	TokenLeftBrace    // {
	TokenRightBrace   // }
	TokenLeftBracket  // [
	TokenRightBracket // ]
)

// String returns the string representation of the token kind.
func (k TokenKind) String() string {
	switch k {
	case TokenEOF:
		return "EOF"
	case TokenError:
		return "Error"
	case TokenIdent:
		return "Ident"
	case TokenDirective:
		return "Directive"
	case TokenReg:
		return "Reg"
	case TokenIntLiteral:
		return "IntLiteral"
	case TokenFloatLiteral:
		return "FloatLiteral"
	case TokenHexFloat32:
		return "HexFloat32"
	case TokenHexFloat64:
		return "HexFloat64"
	case TokenAt:
		return "@"
	case TokenBang:
		return "!"
	case TokenComma:
		return ","
	case TokenSemicolon:
		return ";"
	case TokenColon:
		return ":"
	case TokenPlus:
		return "+"
	case TokenMinus:
		return "-"
	case TokenEqual:
		return "="
	case TokenLess:
		return "<"
	case TokenGreater:
		return ">"
	case TokenLeftParen:
		return "("
	case TokenRightParen:
		return ")"
	case TokenLeftBrace:
		return "{"
	case TokenRightBrace:
		return "}"
	case TokenLeftBracket:
		return "["
	case TokenRightBracket:
		return "]"
	default:
		return "Unknown"
	}
}

// Token represents a lexical token.
type Token struct {
	Kind   TokenKind
	Lexeme string
	Line   int
	Column int
}

// Span represents a source code location span.
type Span struct {
	Start Position
	End   Position
}

// Position represents a position in source code.
type Position struct {
	Line   int
	Column int
	Offset int
}
