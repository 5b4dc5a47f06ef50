package parser

import (
	"math/bits"
	"strings"

	"github.com/wippyai/wasm-cook/backend/wat/internal/ast"
	"github.com/wippyai/wasm-cook/backend/wat/internal/opcode"
	"github.com/wippyai/wasm-cook/backend/wat/internal/token"
)

// funcCtx compiles one instruction sequence.
type funcCtx struct {
	b       *builder
	locals  map[string]uint32
	nlocals uint32
	labels  []string
	out     []ast.Instr
}

func (b *builder) newFuncCtx() *funcCtx {
	return &funcCtx{b: b, locals: make(map[string]uint32)}
}

func (fc *funcCtx) addLocal(at *node, id string, idx uint32) error {
	if id == "" {
		return nil
	}
	if _, dup := fc.locals[id]; dup {
		return errAt(at, CodeDuplicate, "duplicate local %s", id)
	}
	fc.locals[id] = idx
	return nil
}

func (fc *funcCtx) emit(ins ast.Instr) {
	fc.out = append(fc.out, ins)
}

// body compiles a complete sequence. A stray end or else is an error.
func (fc *funcCtx) body(nodes []*node) error {
	i := 0
	stop, err := fc.seq(nodes, &i)
	if err != nil {
		return err
	}
	if stop != nil {
		return errAt(stop, CodeSyntax, "unexpected %s", stop.tok.Text)
	}
	return nil
}

// seq compiles nodes from *i until the end or an end/else keyword, which
// is returned without being consumed.
func (fc *funcCtx) seq(nodes []*node, i *int) (*node, error) {
	for *i < len(nodes) {
		n := nodes[*i]
		if n.isList {
			*i++
			if err := fc.folded(n); err != nil {
				return nil, err
			}
			continue
		}
		if n.isKeyword("end") || n.isKeyword("else") {
			return n, nil
		}
		if err := fc.plain(nodes, i); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

// mnemonic resolves a keyword node, warning on deprecated spellings.
func (fc *funcCtx) mnemonic(n *node) (string, error) {
	if !n.is(token.Keyword) {
		return "", errAt(n, CodeSyntax, "expected instruction, got %s", n.describe())
	}
	name := n.tok.Text
	if current, ok := opcode.Deprecated(name); ok {
		fc.b.warnf(n.pos(), CodeDeprecated, "%s is deprecated, use %s", name, current)
		name = current
	}
	return name, nil
}

// plain compiles a flat instruction starting at nodes[*i].
func (fc *funcCtx) plain(nodes []*node, i *int) error {
	head := nodes[*i]
	*i++
	name, err := fc.mnemonic(head)
	if err != nil {
		return err
	}

	switch name {
	case "block", "loop", "if":
		label := fc.label(nodes, i)
		bt, err := fc.blockType(nodes, i)
		if err != nil {
			return err
		}
		fc.emit(ast.Instr{Code: structured(name), Imm: bt})
		fc.labels = append(fc.labels, label)
		defer fc.popLabel()

		stop, err := fc.seq(nodes, i)
		if err != nil {
			return err
		}
		if stop != nil && stop.isKeyword("else") {
			if name != "if" {
				return errAt(stop, CodeSyntax, "else outside of if")
			}
			*i++
			if err := fc.closingLabel(nodes, i, label); err != nil {
				return err
			}
			fc.emit(ast.Instr{Code: opcode.Else})
			if stop, err = fc.seq(nodes, i); err != nil {
				return err
			}
		}
		if stop == nil || !stop.isKeyword("end") {
			return errAt(head, CodeSyntax, "%s without matching end", name)
		}
		*i++
		fc.emit(ast.Instr{Code: opcode.End})
		return fc.closingLabel(nodes, i, label)

	case "then":
		return errAt(head, CodeSyntax, "then outside of folded if")
	}

	op, err := fc.lookup(head, name)
	if err != nil {
		return err
	}
	ins, err := fc.immediates(head, op, nodes, i)
	if err != nil {
		return err
	}
	fc.emit(ins)
	return nil
}

// folded compiles a parenthesized instruction.
func (fc *funcCtx) folded(n *node) error {
	if len(n.list) == 0 {
		return errAt(n, CodeSyntax, "empty instruction")
	}
	head := n.list[0]
	name, err := fc.mnemonic(head)
	if err != nil {
		return err
	}
	args := n.list[1:]
	i := 0

	switch name {
	case "block", "loop":
		label := fc.label(args, &i)
		bt, err := fc.blockType(args, &i)
		if err != nil {
			return err
		}
		fc.emit(ast.Instr{Code: structured(name), Imm: bt})
		fc.labels = append(fc.labels, label)
		err = fc.body(args[i:])
		fc.popLabel()
		if err != nil {
			return err
		}
		fc.emit(ast.Instr{Code: opcode.End})
		return nil

	case "if":
		label := fc.label(args, &i)
		bt, err := fc.blockType(args, &i)
		if err != nil {
			return err
		}
		for i < len(args) && args[i].isList && args[i].head() != "then" {
			if err := fc.folded(args[i]); err != nil {
				return err
			}
			i++
		}
		if i >= len(args) || args[i].head() != "then" {
			return errAt(n, CodeSyntax, "folded if needs a (then ...) clause")
		}
		fc.emit(ast.Instr{Code: opcode.If, Imm: bt})
		fc.labels = append(fc.labels, label)
		defer fc.popLabel()

		if err := fc.body(args[i].list[1:]); err != nil {
			return err
		}
		i++
		if i < len(args) && args[i].head() == "else" {
			fc.emit(ast.Instr{Code: opcode.Else})
			if err := fc.body(args[i].list[1:]); err != nil {
				return err
			}
			i++
		}
		if i < len(args) {
			return errAt(args[i], CodeSyntax, "unexpected %s after if clauses", args[i].describe())
		}
		fc.emit(ast.Instr{Code: opcode.End})
		return nil
	}

	op, err := fc.lookup(head, name)
	if err != nil {
		return err
	}
	ins, err := fc.immediates(head, op, args, &i)
	if err != nil {
		return err
	}
	for ; i < len(args); i++ {
		if !args[i].isList {
			return errAt(args[i], CodeSyntax, "unexpected %s in folded %s", args[i].describe(), name)
		}
		if err := fc.folded(args[i]); err != nil {
			return err
		}
	}
	fc.emit(ins)
	return nil
}

func structured(name string) byte {
	switch name {
	case "loop":
		return opcode.Loop
	case "if":
		return opcode.If
	}
	return opcode.Block
}

func (fc *funcCtx) lookup(head *node, name string) (opcode.Op, error) {
	op, ok := opcode.Lookup(name)
	if !ok {
		return op, errAt(head, CodeUnknownInst, "unknown instruction %s", name)
	}
	return op, nil
}

func (fc *funcCtx) popLabel() {
	fc.labels = fc.labels[:len(fc.labels)-1]
}

func (fc *funcCtx) label(nodes []*node, i *int) string {
	if *i < len(nodes) && nodes[*i].isID() {
		*i++
		return nodes[*i-1].tok.Text
	}
	return ""
}

// closingLabel checks the optional label repeated after end or else.
func (fc *funcCtx) closingLabel(nodes []*node, i *int, label string) error {
	if *i < len(nodes) && nodes[*i].isID() {
		n := nodes[*i]
		if n.tok.Text != label {
			return errAt(n, CodeSyntax, "mismatched label %s, expected %q", n.tok.Text, label)
		}
		*i++
	}
	return nil
}

func (fc *funcCtx) blockType(nodes []*node, i *int) (ast.BlockType, error) {
	start := *i
	if *i < len(nodes) && nodes[*i].head() == "type" {
		*i++
	}
	for *i < len(nodes) && (nodes[*i].head() == "param" || nodes[*i].head() == "result") {
		*i++
	}
	spec := nodes[start:*i]
	if len(spec) == 0 {
		return ast.BlockType{}, nil
	}
	if len(spec) == 1 && spec[0].head() == "result" && len(spec[0].list) == 2 {
		vt, err := valType(spec[0].list[1])
		if err != nil {
			return ast.BlockType{}, err
		}
		return ast.BlockType{Result: &vt}, nil
	}
	idx, names, used, err := fc.b.typeUse(spec)
	if err != nil {
		return ast.BlockType{}, err
	}
	if used != len(spec) {
		return ast.BlockType{}, errAt(spec[used], CodeSyntax, "unexpected %s in block type", spec[used].describe())
	}
	for _, name := range names {
		if name != "" {
			return ast.BlockType{}, errAt(spec[0], CodeSyntax, "block parameters cannot be named")
		}
	}
	ft := fc.b.mod.Types[idx]
	if len(ft.Params) == 0 && len(ft.Results) == 0 {
		return ast.BlockType{}, nil
	}
	if len(ft.Params) == 0 && len(ft.Results) == 1 && spec[0].head() != "type" {
		r := ft.Results[0]
		return ast.BlockType{Result: &r}, nil
	}
	return ast.BlockType{TypeIdx: &idx}, nil
}

// atom returns the next node if it is an atom usable as an immediate.
func atom(nodes []*node, i *int) *node {
	if *i < len(nodes) && !nodes[*i].isList {
		n := nodes[*i]
		if n.is(token.Number) || n.isID() {
			*i++
			return n
		}
	}
	return nil
}

func (fc *funcCtx) immediates(head *node, op opcode.Op, nodes []*node, i *int) (ast.Instr, error) {
	ins := ast.Instr{Code: op.Code, Sub: op.Sub}
	need := func() (*node, error) {
		if n := atom(nodes, i); n != nil {
			return n, nil
		}
		return nil, errAt(head, CodeSyntax, "%s needs an immediate", head.tok.Text)
	}

	switch op.Imm {
	case opcode.ImmLocal:
		n, err := need()
		if err != nil {
			return ins, err
		}
		idx, err := fc.local(n)
		ins.Imm = idx
		return ins, err

	case opcode.ImmGlobal, opcode.ImmFunc:
		n, err := need()
		if err != nil {
			return ins, err
		}
		s := fc.b.globals
		if op.Imm == opcode.ImmFunc {
			s = fc.b.funcs
		}
		idx, err := s.resolve(n)
		ins.Imm = idx
		return ins, err

	case opcode.ImmLabel:
		n, err := need()
		if err != nil {
			return ins, err
		}
		depth, err := fc.depth(n)
		ins.Imm = depth
		return ins, err

	case opcode.ImmBrTable:
		var targets []uint32
		for n := atom(nodes, i); n != nil; n = atom(nodes, i) {
			depth, err := fc.depth(n)
			if err != nil {
				return ins, err
			}
			targets = append(targets, depth)
		}
		if len(targets) == 0 {
			return ins, errAt(head, CodeSyntax, "br_table needs at least one label")
		}
		ins.Imm = targets
		return ins, nil

	case opcode.ImmCallIndirect:
		start := *i
		for *i < len(nodes) && (nodes[*i].head() == "type" || nodes[*i].head() == "param" || nodes[*i].head() == "result") {
			*i++
		}
		idx, names, _, err := fc.b.typeUse(nodes[start:*i])
		if err != nil {
			return ins, err
		}
		for _, name := range names {
			if name != "" {
				return ins, errAt(head, CodeSyntax, "call_indirect parameters cannot be named")
			}
		}
		ins.Imm = idx
		return ins, nil

	case opcode.ImmI32:
		n, err := need()
		if err != nil {
			return ins, err
		}
		v, err := parseI32(n)
		ins.Imm = v
		return ins, err

	case opcode.ImmI64:
		n, err := need()
		if err != nil {
			return ins, err
		}
		v, err := parseI64(n)
		ins.Imm = v
		return ins, err

	case opcode.ImmF32:
		n, err := need()
		if err != nil {
			return ins, err
		}
		v, err := parseF32(n)
		ins.Imm = v
		return ins, err

	case opcode.ImmF64:
		n, err := need()
		if err != nil {
			return ins, err
		}
		v, err := parseF64(n)
		ins.Imm = v
		return ins, err

	case opcode.ImmMemarg:
		ma := ast.Memarg{Align: op.Align}
		for *i < len(nodes) && nodes[*i].is(token.Keyword) {
			n := nodes[*i]
			key, value, ok := strings.Cut(n.tok.Text, "=")
			if !ok || (key != "offset" && key != "align") {
				break
			}
			v, ok := intBits(value, 32)
			if !ok {
				return ins, errAt(n, CodeSyntax, "invalid %s", n.tok.Text)
			}
			if key == "offset" {
				ma.Offset = uint32(v)
			} else {
				if v == 0 || v&(v-1) != 0 {
					return ins, errAt(n, CodeSyntax, "alignment must be a power of two")
				}
				ma.Align = uint32(bits.TrailingZeros64(v))
			}
			*i++
		}
		ins.Imm = ma
		return ins, nil

	case opcode.ImmMemory:
		if n := atom(nodes, i); n != nil {
			idx, err := fc.b.mems.resolve(n)
			if err != nil {
				return ins, err
			}
			if idx != 0 {
				return ins, errAt(n, CodeSyntax, "only memory 0 is supported")
			}
		}
		return ins, nil
	}
	return ins, nil
}

func (fc *funcCtx) local(n *node) (uint32, error) {
	if n.isID() {
		idx, ok := fc.locals[n.tok.Text]
		if !ok {
			return 0, errAt(n, CodeUnknownName, "unknown local %s", n.tok.Text)
		}
		return idx, nil
	}
	return parseU32(n)
}

// depth resolves a label name or relative depth.
func (fc *funcCtx) depth(n *node) (uint32, error) {
	if n.isID() {
		for d := len(fc.labels) - 1; d >= 0; d-- {
			if fc.labels[d] == n.tok.Text {
				return uint32(len(fc.labels) - 1 - d), nil
			}
		}
		return 0, errAt(n, CodeUnknownName, "unknown label %s", n.tok.Text)
	}
	return parseU32(n)
}
