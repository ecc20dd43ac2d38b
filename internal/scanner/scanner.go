// Package scanner turns source text into a lazy token stream. It has no
// lookahead buffer of its own (§4.D) — the compiler drives it one token at
// a time and keeps whatever lookahead it needs (current/previous).
package scanner

import "github.com/ashlang/ash/internal/token"

// Scanner produces tokens on demand from a fixed source string.
type Scanner struct {
	src     string
	start   int // start of the token being scanned
	current int // next byte to consume
	line    int
}

// New returns a Scanner positioned at the start of source.
func New(source string) *Scanner {
	return &Scanner{src: source, line: 1}
}

// Next scans and returns the next token, skipping whitespace and comments.
func (s *Scanner) Next() token.Token {
	s.skipWhitespace()
	s.start = s.current

	if s.atEnd() {
		return s.make(token.EOF)
	}

	c := s.advance()
	if isAlpha(c) {
		return s.identifier()
	}
	if isDigit(c) {
		return s.number()
	}

	switch c {
	case '(':
		return s.make(token.LeftParen)
	case ')':
		return s.make(token.RightParen)
	case '{':
		return s.make(token.LeftBrace)
	case '}':
		return s.make(token.RightBrace)
	case ',':
		return s.make(token.Comma)
	case '.':
		return s.make(token.Dot)
	case '-':
		return s.make(token.Minus)
	case '+':
		return s.make(token.Plus)
	case ';':
		return s.make(token.Semicolon)
	case '*':
		return s.make(token.Star)
	case '/':
		return s.make(token.Slash)
	case '!':
		return s.make(s.twoCharKind('=', token.BangEqual, token.Bang))
	case '=':
		return s.make(s.twoCharKind('=', token.EqualEqual, token.Equal))
	case '<':
		return s.make(s.twoCharKind('=', token.LessEqual, token.Less))
	case '>':
		return s.make(s.twoCharKind('=', token.GreaterEqual, token.Greater))
	case '"':
		return s.string()
	}

	return s.errorToken("Unexpected character.")
}

func (s *Scanner) twoCharKind(next byte, ifMatch, otherwise token.Type) token.Type {
	if s.match(next) {
		return ifMatch
	}
	return otherwise
}

func (s *Scanner) skipWhitespace() {
	for {
		if s.atEnd() {
			return
		}
		switch s.peek() {
		case ' ', '\r', '\t':
			s.advance()
		case '\n':
			s.line++
			s.advance()
		case '/':
			if s.peekNext() == '/' {
				for !s.atEnd() && s.peek() != '\n' {
					s.advance()
				}
			} else {
				return
			}
		default:
			return
		}
	}
}

func (s *Scanner) string() token.Token {
	for !s.atEnd() && s.peek() != '"' {
		if s.peek() == '\n' {
			s.line++
		}
		s.advance()
	}
	if s.atEnd() {
		return s.errorToken("Unterminated string.")
	}
	s.advance() // closing quote
	tok := s.make(token.String)
	tok.Lexeme = s.src[s.start+1 : s.current-1] // strip the surrounding quotes
	return tok
}

func (s *Scanner) number() token.Token {
	for isDigit(s.peek()) {
		s.advance()
	}
	if s.peek() == '.' && isDigit(s.peekNext()) {
		s.advance() // consume '.'
		for isDigit(s.peek()) {
			s.advance()
		}
	}
	return s.make(token.Number)
}

func (s *Scanner) identifier() token.Token {
	for isAlpha(s.peek()) || isDigit(s.peek()) {
		s.advance()
	}
	text := s.src[s.start:s.current]
	tok := s.make(token.LookupIdent(text))
	return tok
}

func (s *Scanner) make(kind token.Type) token.Token {
	return token.Token{Type: kind, Lexeme: s.src[s.start:s.current], Line: s.line}
}

func (s *Scanner) errorToken(msg string) token.Token {
	return token.Token{Type: token.Error, Lexeme: msg, Line: s.line}
}

func (s *Scanner) atEnd() bool {
	return s.current >= len(s.src)
}

func (s *Scanner) advance() byte {
	c := s.src[s.current]
	s.current++
	return c
}

func (s *Scanner) peek() byte {
	if s.atEnd() {
		return 0
	}
	return s.src[s.current]
}

func (s *Scanner) peekNext() byte {
	if s.current+1 >= len(s.src) {
		return 0
	}
	return s.src[s.current+1]
}

func (s *Scanner) match(want byte) bool {
	if s.atEnd() || s.src[s.current] != want {
		return false
	}
	s.current++
	return true
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isAlpha(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
