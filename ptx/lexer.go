package ptx

import (
	"unicode"
	"unicode/utf8"
)

// Lexer tokenizes PTX source code.
//
// The lexer never fails: characters it cannot place become TokenError
// tokens, which the parser folds into its accumulated error list.
type Lexer struct {
	source string
	pos    int
	line   int
	column int
	start  int
	tokens []Token
}

// NewLexer creates a new lexer for the given source.
func NewLexer(source string) *Lexer {
	// Estimate ~1 token per 5 characters of source.
	estTokens := len(source) / 5
	if estTokens < 16 {
		estTokens = 16
	}
	return &Lexer{
		source: source,
		pos:    0,
		line:   1,
		column: 1,
		tokens: make([]Token, 0, estTokens),
	}
}

// Tokenize returns all tokens from the source.
func (l *Lexer) Tokenize() []Token {
	for !l.isAtEnd() {
		l.start = l.pos
		l.scanToken()
	}

	l.tokens = append(l.tokens, Token{
		Kind:   TokenEOF,
		Line:   l.line,
		Column: l.column,
	})

	return l.tokens
}

func (l *Lexer) scanToken() {
	r := l.advance()

	switch r {
	case '@':
		l.addToken(TokenAt)
	case '!':
		l.addToken(TokenBang)
	case ',':
		l.addToken(TokenComma)
	case ';':
		l.addToken(TokenSemicolon)
	case ':':
		l.addToken(TokenColon)
	case '+':
		l.addToken(TokenPlus)
	case '=':
		l.addToken(TokenEqual)
	case '<':
		l.addToken(TokenLess)
	case '>':
		l.addToken(TokenGreater)
	case '(':
		l.addToken(TokenLeftParen)
	case ')':
		l.addToken(TokenRightParen)
	case '{':
		l.addToken(TokenLeftBrace)
	case '}':
		l.addToken(TokenRightBrace)
	case '[':
		l.addToken(TokenLeftBracket)
	case ']':
		l.addToken(TokenRightBracket)

	case '-':
		// Negative numeric literal; PTX has no binary minus operator
		// outside of address offsets, where the sign binds to the
		// offset literal.
		if isDigit(l.peek()) {
			l.number()
			return
		}
		l.addToken(TokenMinus)

	case '/':
		if l.match('/') {
			for l.peek() != '\n' && !l.isAtEnd() {
				l.advance()
			}
		} else if l.match('*') {
			l.blockComment()
		} else {
			l.addToken(TokenError)
		}

	case '.':
		// Directive: .reg, .u64, .visible, .x ...
		if isAlpha(l.peek()) || l.peek() == '_' || isDigit(l.peek()) {
			l.directive()
		} else {
			l.addToken(TokenError)
		}

	case '%':
		// Register identifier: %rd1, %tid, %p<4>
		if isAlpha(l.peek()) || l.peek() == '_' {
			l.register()
		} else {
			l.addToken(TokenError)
		}

	case ' ', '\r', '\t':
		// Ignore whitespace
	case '\n':
		l.line++
		l.column = 1

	default:
		if isDigit(r) {
			l.number()
		} else if isAlpha(r) || r == '_' || r == '$' {
			l.identifier()
		} else {
			l.addToken(TokenError)
		}
	}
}

func (l *Lexer) blockComment() {
	for !l.isAtEnd() {
		if l.peek() == '*' && l.peekNext() == '/' {
			l.advance()
			l.advance()
			return
		}
		if l.peek() == '\n' {
			l.line++
			l.column = 0
		}
		l.advance()
	}
}

func (l *Lexer) directive() {
	for isAlphaNumeric(l.peek()) || l.peek() == '_' {
		l.advance()
	}
	l.addToken(TokenDirective)
}

func (l *Lexer) register() {
	for isAlphaNumeric(l.peek()) || l.peek() == '_' {
		l.advance()
	}
	l.addToken(TokenReg)
}

// number scans PTX numeric literals: decimal/hex/octal/binary integers
// with an optional U suffix, decimal floats, and the exact-bit hex
// float forms 0f<8 hex digits> and 0d<16 hex digits>.
func (l *Lexer) number() {
	first := l.source[l.start]
	if first == '-' {
		first = l.source[l.start+1]
	}

	if first == '0' && !l.isAtEnd() {
		switch l.peek() {
		case 'x', 'X':
			l.advance()
			for isHexDigit(l.peek()) {
				l.advance()
			}
			l.intSuffix()
			l.addToken(TokenIntLiteral)
			return
		case 'b', 'B':
			l.advance()
			for l.peek() == '0' || l.peek() == '1' {
				l.advance()
			}
			l.intSuffix()
			l.addToken(TokenIntLiteral)
			return
		case 'f', 'F':
			// 0f3F800000 is the IEEE-754 bit pattern of a float
			l.advance()
			for isHexDigit(l.peek()) {
				l.advance()
			}
			l.addToken(TokenHexFloat32)
			return
		case 'd', 'D':
			l.advance()
			for isHexDigit(l.peek()) {
				l.advance()
			}
			l.addToken(TokenHexFloat64)
			return
		}
	}

	for isDigit(l.peek()) {
		l.advance()
	}

	if l.peek() == '.' && isDigit(l.peekNext()) {
		l.advance()
		for isDigit(l.peek()) {
			l.advance()
		}
		if l.peek() == 'e' || l.peek() == 'E' {
			l.advance()
			if l.peek() == '+' || l.peek() == '-' {
				l.advance()
			}
			for isDigit(l.peek()) {
				l.advance()
			}
		}
		l.addToken(TokenFloatLiteral)
		return
	}

	l.intSuffix()
	l.addToken(TokenIntLiteral)
}

func (l *Lexer) intSuffix() {
	if l.peek() == 'U' || l.peek() == 'u' {
		l.advance()
	}
}

func (l *Lexer) identifier() {
	for isAlphaNumeric(l.peek()) || l.peek() == '_' || l.peek() == '$' {
		l.advance()
	}
	l.addToken(TokenIdent)
}

func (l *Lexer) addToken(kind TokenKind) {
	l.tokens = append(l.tokens, Token{
		Kind:   kind,
		Lexeme: l.source[l.start:l.pos],
		Line:   l.line,
		Column: l.column - (l.pos - l.start),
	})
}

func (l *Lexer) advance() rune {
	r, size := utf8.DecodeRuneInString(l.source[l.pos:])
	l.pos += size
	l.column++
	return r
}

func (l *Lexer) peek() rune {
	if l.isAtEnd() {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.source[l.pos:])
	return r
}

func (l *Lexer) peekNext() rune {
	if l.pos+1 >= len(l.source) {
		return 0
	}
	_, size := utf8.DecodeRuneInString(l.source[l.pos:])
	r, _ := utf8.DecodeRuneInString(l.source[l.pos+size:])
	return r
}

func (l *Lexer) match(expected rune) bool {
	if l.isAtEnd() {
		return false
	}
	r, size := utf8.DecodeRuneInString(l.source[l.pos:])
	if r != expected {
		return false
	}
	l.pos += size
	l.column++
	return true
}

func (l *Lexer) isAtEnd() bool {
	return l.pos >= len(l.source)
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func isHexDigit(r rune) bool {
	return isDigit(r) || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

func isAlpha(r rune) bool {
	return unicode.IsLetter(r)
}

func isAlphaNumeric(r rune) bool {
	return isAlpha(r) || isDigit(r)
}
