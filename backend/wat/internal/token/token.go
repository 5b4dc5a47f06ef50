// Package token splits WebAssembly text into tokens carrying their position.
package token

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

type Kind int

const (
	LParen Kind = iota
	RParen
	Keyword // instruction names, value types, offset=N
	ID      // $name
	String
	Number // also inf, nan and their signed forms
)

func (k Kind) String() string {
	switch k {
	case LParen:
		return "'('"
	case RParen:
		return "')'"
	case Keyword:
		return "keyword"
	case ID:
		return "identifier"
	case String:
		return "string"
	case Number:
		return "number"
	}
	return "unknown"
}

// Pos is a 1-based line and column. Columns count runes.
type Pos struct {
	Line int
	Col  int
}

func (p Pos) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Col)
}

// Token is one lexeme. For strings Text holds the raw contents between the
// quotes; use Bytes to decode escapes.
type Token struct {
	Text string
	Kind Kind
	Pos  Pos
}

// Error is a lexical error.
type Error struct {
	Pos Pos
	Msg string
}

func (e *Error) Error() string {
	return e.Pos.String() + ": " + e.Msg
}

type lexer struct {
	src  string
	off  int
	line int
	col  int
	toks []Token
	errs []*Error
}

// Tokenize splits src. Lexical errors are collected and scanning resumes
// after the offending character.
func Tokenize(src string) ([]Token, []*Error) {
	lx := &lexer{src: src, line: 1, col: 1}
	lx.run()
	return lx.toks, lx.errs
}

func (lx *lexer) peekByte(ahead int) byte {
	if lx.off+ahead < len(lx.src) {
		return lx.src[lx.off+ahead]
	}
	return 0
}

func (lx *lexer) advance() rune {
	r, size := utf8.DecodeRuneInString(lx.src[lx.off:])
	lx.off += size
	if r == '\n' {
		lx.line++
		lx.col = 1
	} else {
		lx.col++
	}
	return r
}

func (lx *lexer) pos() Pos {
	return Pos{Line: lx.line, Col: lx.col}
}

func (lx *lexer) errorf(p Pos, format string, args ...any) {
	lx.errs = append(lx.errs, &Error{Pos: p, Msg: fmt.Sprintf(format, args...)})
}

func (lx *lexer) run() {
	for lx.off < len(lx.src) {
		c := lx.src[lx.off]
		start := lx.pos()
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			lx.advance()
		case c == ';' && lx.peekByte(1) == ';':
			for lx.off < len(lx.src) && lx.src[lx.off] != '\n' {
				lx.advance()
			}
		case c == '(' && lx.peekByte(1) == ';':
			lx.blockComment(start)
		case c == '(':
			lx.advance()
			lx.toks = append(lx.toks, Token{Text: "(", Kind: LParen, Pos: start})
		case c == ')':
			lx.advance()
			lx.toks = append(lx.toks, Token{Text: ")", Kind: RParen, Pos: start})
		case c == '"':
			lx.str(start)
		case isIDChar(c):
			lx.word(start)
		default:
			r := lx.advance()
			lx.errorf(start, "unexpected character %q", r)
		}
	}
}

func (lx *lexer) blockComment(start Pos) {
	lx.advance()
	lx.advance()
	depth := 1
	for lx.off < len(lx.src) {
		switch {
		case lx.src[lx.off] == '(' && lx.peekByte(1) == ';':
			lx.advance()
			lx.advance()
			depth++
		case lx.src[lx.off] == ';' && lx.peekByte(1) == ')':
			lx.advance()
			lx.advance()
			depth--
			if depth == 0 {
				return
			}
		default:
			lx.advance()
		}
	}
	lx.errorf(start, "unterminated block comment")
}

func (lx *lexer) str(start Pos) {
	lx.advance()
	begin := lx.off
	for lx.off < len(lx.src) {
		switch lx.src[lx.off] {
		case '"':
			text := lx.src[begin:lx.off]
			lx.advance()
			lx.toks = append(lx.toks, Token{Text: text, Kind: String, Pos: start})
			return
		case '\\':
			lx.advance()
			if lx.off < len(lx.src) {
				lx.advance()
			}
		case '\n':
			lx.errorf(start, "newline in string literal")
			return
		default:
			lx.advance()
		}
	}
	lx.errorf(start, "unterminated string literal")
}

func (lx *lexer) word(start Pos) {
	begin := lx.off
	for lx.off < len(lx.src) && isIDChar(lx.src[lx.off]) {
		lx.advance()
	}
	text := lx.src[begin:lx.off]
	kind := Keyword
	switch {
	case text[0] == '$':
		kind = ID
		if len(text) == 1 {
			lx.errorf(start, "empty identifier")
			return
		}
	case isNumberStart(text):
		kind = Number
	}
	lx.toks = append(lx.toks, Token{Text: text, Kind: kind, Pos: start})
}

func isNumberStart(s string) bool {
	s = strings.TrimLeft(s, "+-")
	if s == "" {
		return false
	}
	if s[0] >= '0' && s[0] <= '9' {
		return true
	}
	return s == "inf" || s == "nan" || strings.HasPrefix(s, "nan:")
}

// isIDChar reports whether c may appear in a keyword, identifier or number.
func isIDChar(c byte) bool {
	switch {
	case c >= '0' && c <= '9', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		return true
	}
	return strings.IndexByte("!#$%&'*+-./:<=>?@\\^_`|~", c) >= 0
}
