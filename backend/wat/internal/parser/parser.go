// Package parser compiles WebAssembly text into resolved modules.
//
// Source is first split into tokens and grouped into a tree of lists. Each
// (module ...) form is then resolved in two passes: the first assigns
// indices to every named entity so forward references work, the second
// builds types, imports, definitions and instruction sequences.
//
// The parser keeps going after an error in one module field so a single
// run reports as many problems as possible.
package parser

import (
	"fmt"

	"github.com/wippyai/wasm-cook/backend/wat/internal/ast"
	"github.com/wippyai/wasm-cook/backend/wat/internal/token"
)

// Problem codes.
const (
	CodeSyntax      = "wat.syntax"
	CodeUnknownInst = "wat.unknown-instruction"
	CodeUnknownName = "wat.unknown-identifier"
	CodeDuplicate   = "wat.duplicate"
	CodeDeprecated  = "wat.deprecated"
	CodeLimit       = "wat.limit"
)

// Problem is a positioned error or warning.
type Problem struct {
	Pos     token.Pos
	Code    string
	Msg     string
	Warning bool
}

func (p Problem) String() string {
	kind := "error"
	if p.Warning {
		kind = "warning"
	}
	return fmt.Sprintf("%s: %s: %s (%s)", p.Pos, kind, p.Msg, p.Code)
}

// Result is the outcome of parsing one unit.
type Result struct {
	Modules  []*ast.Module
	Problems []Problem
}

// HasErrors reports whether any problem is an error.
func (r *Result) HasErrors() bool {
	for _, p := range r.Problems {
		if !p.Warning {
			return true
		}
	}
	return false
}

// fieldError aborts the current module field.
type fieldError struct {
	Problem
}

func (e *fieldError) Error() string { return e.Msg }

func errAt(n *node, code, format string, args ...any) error {
	return &fieldError{Problem{Pos: n.pos(), Code: code, Msg: fmt.Sprintf(format, args...)}}
}

type parser struct {
	res *Result
}

func (p *parser) errorf(pos token.Pos, code, format string, args ...any) {
	p.res.Problems = append(p.res.Problems, Problem{Pos: pos, Code: code, Msg: fmt.Sprintf(format, args...)})
}

func (p *parser) warnf(pos token.Pos, code, format string, args ...any) {
	p.res.Problems = append(p.res.Problems, Problem{Pos: pos, Code: code, Msg: fmt.Sprintf(format, args...), Warning: true})
}

func (p *parser) record(err error) {
	if fe, ok := err.(*fieldError); ok {
		p.res.Problems = append(p.res.Problems, fe.Problem)
		return
	}
	p.res.Problems = append(p.res.Problems, Problem{Code: CodeSyntax, Msg: err.Error()})
}

// Parse compiles every module in src. A unit is either a sequence of
// (module ...) forms or the bare fields of a single module.
func Parse(src string) *Result {
	p := &parser{res: &Result{}}

	toks, lexErrs := token.Tokenize(src)
	for _, e := range lexErrs {
		p.errorf(e.Pos, CodeSyntax, "%s", e.Msg)
	}
	top := build(toks, p.errorf)

	if len(top) == 0 {
		p.errorf(token.Pos{Line: 1, Col: 1}, CodeSyntax, "no module found")
		return p.res
	}

	modules := 0
	for _, n := range top {
		if n.head() == "module" {
			modules++
		}
	}

	switch {
	case modules == 0:
		if m := p.module(top[0].pos(), "", top); m != nil {
			p.res.Modules = append(p.res.Modules, m)
		}
	case modules == len(top):
		for _, n := range top {
			if m := p.moduleForm(n); m != nil {
				p.res.Modules = append(p.res.Modules, m)
			}
		}
	default:
		for _, n := range top {
			if n.head() != "module" {
				p.errorf(n.pos(), CodeSyntax, "unexpected %s outside of a module", n.describe())
			}
		}
	}
	return p.res
}

func (p *parser) moduleForm(n *node) *ast.Module {
	fields := n.list[1:]
	name := ""
	if len(fields) > 0 && fields[0].isID() {
		name = fields[0].tok.Text
		fields = fields[1:]
	}
	if len(fields) > 0 && (fields[0].isKeyword("binary") || fields[0].isKeyword("quote")) {
		p.errorf(fields[0].pos(), CodeSyntax, "module %s form is not supported", fields[0].tok.Text)
		return nil
	}
	return p.module(n.pos(), name, fields)
}
