package parser

import (
	"strings"

	"github.com/wippyai/wasm-cook/backend/wat/internal/token"
)

// node is an atom or a parenthesized list.
type node struct {
	tok    token.Token // atom token, or the '(' of a list
	list   []*node
	isList bool
}

func (n *node) pos() token.Pos { return n.tok.Pos }

// head returns the keyword that opens a list, or "".
func (n *node) head() string {
	if !n.isList || len(n.list) == 0 || n.list[0].isList || n.list[0].tok.Kind != token.Keyword {
		return ""
	}
	return n.list[0].tok.Text
}

func (n *node) is(kind token.Kind) bool {
	return !n.isList && n.tok.Kind == kind
}

func (n *node) isID() bool { return n.is(token.ID) }

func (n *node) isKeyword(text string) bool {
	return n.is(token.Keyword) && n.tok.Text == text
}

// describe renders a node for error messages.
func (n *node) describe() string {
	if n.isList {
		if h := n.head(); h != "" {
			return "(" + h + " ...)"
		}
		return "list"
	}
	if n.tok.Kind == token.String {
		return `"` + n.tok.Text + `"`
	}
	return n.tok.Text
}

// build turns the token stream into top level nodes.
func build(toks []token.Token, errorf func(token.Pos, string, string, ...any)) []*node {
	var stack [][]*node
	var opens []token.Token
	var cur []*node
	for _, t := range toks {
		switch t.Kind {
		case token.LParen:
			stack = append(stack, cur)
			opens = append(opens, t)
			cur = nil
		case token.RParen:
			if len(stack) == 0 {
				errorf(t.Pos, CodeSyntax, "unexpected ')'")
				continue
			}
			list := &node{tok: opens[len(opens)-1], list: cur, isList: true}
			cur = append(stack[len(stack)-1], list)
			stack = stack[:len(stack)-1]
			opens = opens[:len(opens)-1]
		default:
			cur = append(cur, &node{tok: t})
		}
	}
	for i := len(opens) - 1; i >= 0; i-- {
		errorf(opens[i].Pos, CodeSyntax, "unclosed '('")
		list := &node{tok: opens[i], list: cur, isList: true}
		cur = append(stack[i], list)
	}
	return cur
}

func trimID(id string) string {
	return strings.TrimPrefix(id, "$")
}
