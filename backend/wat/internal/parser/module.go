package parser

import (
	"github.com/wippyai/wasm-cook/backend/wat/internal/ast"
	"github.com/wippyai/wasm-cook/backend/wat/internal/opcode"
	"github.com/wippyai/wasm-cook/backend/wat/internal/token"
)

// space is one index space with its symbolic names.
type space struct {
	what  string
	names map[string]uint32
	count uint32
}

func newSpace(what string) *space {
	return &space{what: what, names: make(map[string]uint32)}
}

func (s *space) declare(n *node, id string) (uint32, error) {
	idx := s.count
	s.count++
	if id == "" {
		return idx, nil
	}
	if _, dup := s.names[id]; dup {
		return idx, errAt(n, CodeDuplicate, "duplicate %s %s", s.what, id)
	}
	s.names[id] = idx
	return idx, nil
}

// resolve reads an index or $name atom.
func (s *space) resolve(n *node) (uint32, error) {
	switch {
	case n.isID():
		idx, ok := s.names[n.tok.Text]
		if !ok {
			return 0, errAt(n, CodeUnknownName, "unknown %s %s", s.what, n.tok.Text)
		}
		return idx, nil
	case n.is(token.Number):
		return parseU32(n)
	}
	return 0, errAt(n, CodeSyntax, "expected %s index, got %s", s.what, n.describe())
}

type builder struct {
	*parser
	mod     *ast.Module
	types   *space
	funcs   *space
	tables  *space
	mems    *space
	globals *space
	// defined is set once a non-import function, table, memory or global
	// has been declared.
	defined bool
}

func (p *parser) module(pos token.Pos, name string, fields []*node) *ast.Module {
	b := &builder{
		parser:  p,
		mod:     &ast.Module{Name: trimID(name), Line: pos.Line},
		types:   newSpace("type"),
		funcs:   newSpace("func"),
		tables:  newSpace("table"),
		mems:    newSpace("memory"),
		globals: newSpace("global"),
	}
	before := len(p.res.Problems)

	// Explicit types take the first indices, implicit ones follow.
	for _, f := range fields {
		if f.head() == "type" {
			if err := b.typeField(f); err != nil {
				p.record(err)
			}
		}
	}

	var valid []*node
	for _, f := range fields {
		if err := b.declare(f); err != nil {
			p.record(err)
			continue
		}
		valid = append(valid, f)
	}

	for _, f := range valid {
		if err := b.field(f); err != nil {
			p.record(err)
		}
	}

	for _, prob := range p.res.Problems[before:] {
		if !prob.Warning {
			return nil
		}
	}
	return b.mod
}

// declare assigns indices in the first pass.
func (b *builder) declare(f *node) error {
	if !f.isList {
		return errAt(f, CodeSyntax, "expected module field, got %s", f.describe())
	}
	switch h := f.head(); h {
	case "type", "export", "start", "elem", "data":
		return nil
	case "import":
		if len(f.list) < 4 || !f.list[3].isList {
			return errAt(f, CodeSyntax, "import needs module, name and descriptor")
		}
		desc := f.list[3]
		s, err := b.spaceFor(desc)
		if err != nil {
			return err
		}
		if b.defined {
			return errAt(f, CodeSyntax, "import after definition")
		}
		_, err = s.declare(desc, optionalID(desc.list[1:]))
		return err
	case "func", "table", "memory", "global":
		s, _ := b.spaceFor(f)
		rest := f.list[1:]
		id := optionalID(rest)
		if id != "" {
			rest = rest[1:]
		}
		imported := hasInlineImport(rest)
		if imported && b.defined {
			return errAt(f, CodeSyntax, "import after definition")
		}
		if !imported {
			b.defined = true
		}
		_, err := s.declare(f, id)
		return err
	case "":
		return errAt(f, CodeSyntax, "expected module field, got %s", f.describe())
	default:
		return errAt(f, CodeSyntax, "unknown module field %q", h)
	}
}

func (b *builder) spaceFor(n *node) (*space, error) {
	switch n.head() {
	case "func":
		return b.funcs, nil
	case "table":
		return b.tables, nil
	case "memory":
		return b.mems, nil
	case "global":
		return b.globals, nil
	}
	return nil, errAt(n, CodeSyntax, "unknown import kind %s", n.describe())
}

func optionalID(nodes []*node) string {
	if len(nodes) > 0 && nodes[0].isID() {
		return nodes[0].tok.Text
	}
	return ""
}

func hasInlineImport(nodes []*node) bool {
	for _, n := range nodes {
		switch n.head() {
		case "import":
			return true
		case "export":
			continue
		}
		return false
	}
	return false
}

// field builds one module field in the second pass.
func (b *builder) field(f *node) error {
	switch f.head() {
	case "type":
		return nil
	case "import":
		return b.importField(f)
	case "func":
		return b.funcField(f)
	case "table":
		return b.tableField(f)
	case "memory":
		return b.memoryField(f)
	case "global":
		return b.globalField(f)
	case "export":
		return b.exportField(f)
	case "start":
		return b.startField(f)
	case "elem":
		return b.elemField(f)
	case "data":
		return b.dataField(f)
	}
	return nil
}

func (b *builder) typeField(f *node) error {
	rest := f.list[1:]
	id := optionalID(rest)
	if id != "" {
		rest = rest[1:]
	}
	if len(rest) != 1 || rest[0].head() != "func" {
		return errAt(f, CodeSyntax, "type definition needs a (func ...) signature")
	}
	sig := rest[0].list[1:]
	ft, _, used, err := b.signature(sig, true)
	if err != nil {
		return err
	}
	if used != len(sig) {
		return errAt(sig[used], CodeSyntax, "unexpected %s in type definition", sig[used].describe())
	}
	if _, err := b.types.declare(f, id); err != nil {
		return err
	}
	b.mod.Types = append(b.mod.Types, ft)
	return nil
}

// typeIndex returns the index of ft, adding an implicit type if needed.
func (b *builder) typeIndex(ft ast.FuncType) uint32 {
	for i, t := range b.mod.Types {
		if t.Equal(ft) {
			return uint32(i)
		}
	}
	b.mod.Types = append(b.mod.Types, ft)
	b.types.count++
	return uint32(len(b.mod.Types) - 1)
}

// signature reads (param ...) and (result ...) lists from the front of
// nodes. It returns the number of nodes consumed and, when named is set,
// the parameter identifiers by position.
func (b *builder) signature(nodes []*node, named bool) (ast.FuncType, []string, int, error) {
	var ft ast.FuncType
	var names []string
	i := 0
	for ; i < len(nodes); i++ {
		n := nodes[i]
		switch n.head() {
		case "param":
			if len(ft.Results) > 0 {
				return ft, nil, 0, errAt(n, CodeSyntax, "param after result")
			}
			items := n.list[1:]
			if len(items) > 0 && items[0].isID() {
				if !named {
					return ft, nil, 0, errAt(items[0], CodeSyntax, "named parameter not allowed here")
				}
				if len(items) != 2 {
					return ft, nil, 0, errAt(n, CodeSyntax, "named parameter takes exactly one type")
				}
				vt, err := valType(items[1])
				if err != nil {
					return ft, nil, 0, err
				}
				ft.Params = append(ft.Params, vt)
				names = append(names, items[0].tok.Text)
				continue
			}
			for _, item := range items {
				vt, err := valType(item)
				if err != nil {
					return ft, nil, 0, err
				}
				ft.Params = append(ft.Params, vt)
				names = append(names, "")
			}
		case "result":
			for _, item := range n.list[1:] {
				vt, err := valType(item)
				if err != nil {
					return ft, nil, 0, err
				}
				ft.Results = append(ft.Results, vt)
			}
		default:
			return ft, names, i, nil
		}
	}
	return ft, names, i, nil
}

// typeUse reads an optional (type x) followed by an inline signature.
func (b *builder) typeUse(nodes []*node) (uint32, []string, int, error) {
	i := 0
	var explicit *uint32
	if len(nodes) > 0 && nodes[0].head() == "type" {
		ref := nodes[0]
		if len(ref.list) != 2 {
			return 0, nil, 0, errAt(ref, CodeSyntax, "type use takes one index")
		}
		idx, err := b.types.resolve(ref.list[1])
		if err != nil {
			return 0, nil, 0, err
		}
		if int(idx) >= len(b.mod.Types) {
			return 0, nil, 0, errAt(ref.list[1], CodeUnknownName, "unknown type %d", idx)
		}
		explicit = &idx
		i++
	}

	ft, names, used, err := b.signature(nodes[i:], true)
	if err != nil {
		return 0, nil, 0, err
	}
	i += used

	if explicit != nil {
		declared := b.mod.Types[*explicit]
		if used > 0 && !declared.Equal(ft) {
			return 0, nil, 0, errAt(nodes[0], CodeSyntax, "inline signature does not match type %d", *explicit)
		}
		if used == 0 {
			names = make([]string, len(declared.Params))
		}
		return *explicit, names, i, nil
	}
	return b.typeIndex(ft), names, i, nil
}

func (b *builder) importField(f *node) error {
	if len(f.list) != 4 || !f.list[1].is(token.String) || !f.list[2].is(token.String) {
		return errAt(f, CodeSyntax, `import expects "module" "name" (descriptor)`)
	}
	module, err := text(f.list[1])
	if err != nil {
		return err
	}
	name, err := text(f.list[2])
	if err != nil {
		return err
	}
	desc := f.list[3]
	rest := desc.list[1:]
	id := optionalID(rest)
	if id != "" {
		rest = rest[1:]
	}
	return b.addImport(desc, desc.head(), module, name, id, rest)
}

func (b *builder) addImport(at *node, kind, module, name, id string, rest []*node) error {
	imp := ast.Import{Module: module, Name: name, Line: at.pos().Line, ID: trimID(id)}
	switch kind {
	case "func":
		imp.Kind = ast.KindFunc
		idx, _, used, err := b.typeUse(rest)
		if err != nil {
			return err
		}
		if used != len(rest) {
			return errAt(rest[used], CodeSyntax, "unexpected %s in function import", rest[used].describe())
		}
		imp.TypeIdx = idx
	case "memory":
		imp.Kind = ast.KindMemory
		lim, err := limits(at, rest)
		if err != nil {
			return err
		}
		imp.Limits = lim
	case "table":
		imp.Kind = ast.KindTable
		if len(rest) == 0 {
			return errAt(at, CodeSyntax, "table import needs limits and funcref")
		}
		if err := b.refType(rest[len(rest)-1]); err != nil {
			return err
		}
		lim, err := limits(at, rest[:len(rest)-1])
		if err != nil {
			return err
		}
		imp.Limits = lim
	case "global":
		imp.Kind = ast.KindGlobal
		if len(rest) != 1 {
			return errAt(at, CodeSyntax, "global import takes one type")
		}
		gt, err := globalType(rest[0])
		if err != nil {
			return err
		}
		imp.Global = gt
	}
	b.mod.Imports = append(b.mod.Imports, imp)
	return nil
}

// inline splits leading (export "x") and (import "m" "n") abbreviations.
func inline(nodes []*node) (exports []string, imp []string, rest []*node, err error) {
	for len(nodes) > 0 {
		n := nodes[0]
		switch n.head() {
		case "export":
			if len(n.list) != 2 || !n.list[1].is(token.String) {
				return nil, nil, nil, errAt(n, CodeSyntax, `inline export expects one "name"`)
			}
			name, err := text(n.list[1])
			if err != nil {
				return nil, nil, nil, err
			}
			exports = append(exports, name)
		case "import":
			if imp != nil || len(n.list) != 3 || !n.list[1].is(token.String) || !n.list[2].is(token.String) {
				return nil, nil, nil, errAt(n, CodeSyntax, `inline import expects "module" "name"`)
			}
			module, err := text(n.list[1])
			if err != nil {
				return nil, nil, nil, err
			}
			name, err := text(n.list[2])
			if err != nil {
				return nil, nil, nil, err
			}
			imp = []string{module, name}
		default:
			return exports, imp, nodes, nil
		}
		nodes = nodes[1:]
	}
	return exports, imp, nodes, nil
}

func (b *builder) export(f *node, names []string, kind byte, idx uint32) {
	for _, name := range names {
		b.mod.Exports = append(b.mod.Exports, ast.Export{Name: name, Kind: kind, Index: idx, Line: f.pos().Line})
	}
}

func (b *builder) funcField(f *node) error {
	rest := f.list[1:]
	id := optionalID(rest)
	if id != "" {
		rest = rest[1:]
	}
	idx := b.funcs.names[id]
	if id == "" {
		idx = uint32(b.mod.FuncCount())
	}

	exports, imp, rest, err := inline(rest)
	if err != nil {
		return err
	}
	if imp != nil {
		if err := b.addImport(f, "func", imp[0], imp[1], id, rest); err != nil {
			return err
		}
		b.export(f, exports, ast.KindFunc, idx)
		return nil
	}

	typeIdx, paramNames, used, err := b.typeUse(rest)
	if err != nil {
		return err
	}
	rest = rest[used:]

	fn := ast.Func{
		ID:         trimID(id),
		Line:       f.pos().Line,
		TypeIdx:    typeIdx,
		LocalNames: make(map[uint32]string),
	}
	fc := b.newFuncCtx()
	for i, name := range paramNames {
		if err := fc.addLocal(f, name, uint32(i)); err != nil {
			return err
		}
	}
	fc.nlocals = uint32(len(b.mod.Types[typeIdx].Params))

	for len(rest) > 0 && rest[0].head() == "local" {
		items := rest[0].list[1:]
		if len(items) > 0 && items[0].isID() {
			if len(items) != 2 {
				return errAt(rest[0], CodeSyntax, "named local takes exactly one type")
			}
			vt, err := valType(items[1])
			if err != nil {
				return err
			}
			if err := fc.addLocal(items[0], items[0].tok.Text, fc.nlocals); err != nil {
				return err
			}
			fn.Locals = append(fn.Locals, vt)
			fc.nlocals++
		} else {
			for _, item := range items {
				vt, err := valType(item)
				if err != nil {
					return err
				}
				fn.Locals = append(fn.Locals, vt)
				fc.nlocals++
			}
		}
		rest = rest[1:]
	}

	for name, i := range fc.locals {
		fn.LocalNames[i] = trimID(name)
	}

	if err := fc.body(rest); err != nil {
		return err
	}
	fn.Body = fc.out

	b.mod.Funcs = append(b.mod.Funcs, fn)
	b.export(f, exports, ast.KindFunc, idx)
	return nil
}

func (b *builder) memoryField(f *node) error {
	rest := f.list[1:]
	id := optionalID(rest)
	if id != "" {
		rest = rest[1:]
	}
	idx := uint32(len(b.mod.Mems) + b.countImports(ast.KindMemory))

	exports, imp, rest, err := inline(rest)
	if err != nil {
		return err
	}
	if imp != nil {
		if err := b.addImport(f, "memory", imp[0], imp[1], id, rest); err != nil {
			return err
		}
		b.export(f, exports, ast.KindMemory, idx)
		return nil
	}

	if len(rest) == 1 && rest[0].head() == "data" {
		var data []byte
		for _, s := range rest[0].list[1:] {
			chunk, err := text(s)
			if err != nil {
				return err
			}
			data = append(data, chunk...)
		}
		pages := uint32((len(data) + 0xffff) / 0x10000)
		b.mod.Mems = append(b.mod.Mems, ast.Limits{Min: pages, Max: &pages})
		b.mod.Data = append(b.mod.Data, ast.Data{
			Mem:    idx,
			Offset: []ast.Instr{{Code: opcode.I32Const, Imm: int32(0)}},
			Bytes:  data,
		})
		b.export(f, exports, ast.KindMemory, idx)
		return nil
	}

	lim, err := limits(f, rest)
	if err != nil {
		return err
	}
	b.mod.Mems = append(b.mod.Mems, lim)
	b.export(f, exports, ast.KindMemory, idx)
	return nil
}

func (b *builder) tableField(f *node) error {
	rest := f.list[1:]
	id := optionalID(rest)
	if id != "" {
		rest = rest[1:]
	}
	idx := uint32(len(b.mod.Tables) + b.countImports(ast.KindTable))

	exports, imp, rest, err := inline(rest)
	if err != nil {
		return err
	}
	if imp != nil {
		if err := b.addImport(f, "table", imp[0], imp[1], id, rest); err != nil {
			return err
		}
		b.export(f, exports, ast.KindTable, idx)
		return nil
	}

	// funcref (elem $f ...)
	if len(rest) == 2 && rest[1].head() == "elem" {
		if err := b.refType(rest[0]); err != nil {
			return err
		}
		funcs, err := b.funcList(rest[1].list[1:])
		if err != nil {
			return err
		}
		n := uint32(len(funcs))
		b.mod.Tables = append(b.mod.Tables, ast.Limits{Min: n, Max: &n})
		b.mod.Elems = append(b.mod.Elems, ast.Elem{
			Offset: []ast.Instr{{Code: opcode.I32Const, Imm: int32(0)}},
			Funcs:  funcs,
		})
		b.export(f, exports, ast.KindTable, idx)
		return nil
	}

	if len(rest) == 0 {
		return errAt(f, CodeSyntax, "table needs limits and funcref")
	}
	if err := b.refType(rest[len(rest)-1]); err != nil {
		return err
	}
	lim, err := limits(f, rest[:len(rest)-1])
	if err != nil {
		return err
	}
	b.mod.Tables = append(b.mod.Tables, lim)
	b.export(f, exports, ast.KindTable, idx)
	return nil
}

func (b *builder) globalField(f *node) error {
	rest := f.list[1:]
	id := optionalID(rest)
	if id != "" {
		rest = rest[1:]
	}
	idx := uint32(len(b.mod.Globals) + b.countImports(ast.KindGlobal))

	exports, imp, rest, err := inline(rest)
	if err != nil {
		return err
	}
	if imp != nil {
		if err := b.addImport(f, "global", imp[0], imp[1], id, rest); err != nil {
			return err
		}
		b.export(f, exports, ast.KindGlobal, idx)
		return nil
	}

	if len(rest) == 0 {
		return errAt(f, CodeSyntax, "global needs a type")
	}
	gt, err := globalType(rest[0])
	if err != nil {
		return err
	}
	init, err := b.constExpr(f, rest[1:])
	if err != nil {
		return err
	}
	b.mod.Globals = append(b.mod.Globals, ast.Global{ID: trimID(id), Type: gt, Init: init})
	b.export(f, exports, ast.KindGlobal, idx)
	return nil
}

func (b *builder) countImports(kind byte) int {
	n := 0
	for _, imp := range b.mod.Imports {
		if imp.Kind == kind {
			n++
		}
	}
	return n
}

func (b *builder) exportField(f *node) error {
	if len(f.list) != 3 || !f.list[1].is(token.String) {
		return errAt(f, CodeSyntax, `export expects "name" (kind index)`)
	}
	name, err := text(f.list[1])
	if err != nil {
		return err
	}
	desc := f.list[2]
	if !desc.isList || len(desc.list) != 2 {
		return errAt(desc, CodeSyntax, "export descriptor expects (kind index)")
	}
	s, err := b.spaceFor(desc)
	if err != nil {
		return err
	}
	idx, err := s.resolve(desc.list[1])
	if err != nil {
		return err
	}
	var kind byte
	switch desc.head() {
	case "func":
		kind = ast.KindFunc
	case "table":
		kind = ast.KindTable
	case "memory":
		kind = ast.KindMemory
	case "global":
		kind = ast.KindGlobal
	}
	b.export(f, []string{name}, kind, idx)
	return nil
}

func (b *builder) startField(f *node) error {
	if len(f.list) != 2 {
		return errAt(f, CodeSyntax, "start expects one function index")
	}
	if b.mod.Start != nil {
		return errAt(f, CodeDuplicate, "multiple start functions")
	}
	idx, err := b.funcs.resolve(f.list[1])
	if err != nil {
		return err
	}
	b.mod.Start = &idx
	return nil
}

// elemField accepts active segments for table 0:
// (elem (i32.const 0) $f ...) and (elem (table 0)? (offset ...) func $f ...).
func (b *builder) elemField(f *node) error {
	rest := f.list[1:]
	if len(rest) > 0 && rest[0].isID() {
		rest = rest[1:]
	}
	if len(rest) > 0 && rest[0].head() == "table" {
		if len(rest[0].list) != 2 {
			return errAt(rest[0], CodeSyntax, "table use takes one index")
		}
		idx, err := b.tables.resolve(rest[0].list[1])
		if err != nil {
			return err
		}
		if idx != 0 {
			return errAt(rest[0], CodeSyntax, "element segments for table %d are not supported", idx)
		}
		rest = rest[1:]
	}
	if len(rest) == 0 || !rest[0].isList {
		return errAt(f, CodeSyntax, "element segment needs an offset expression")
	}
	offset, err := b.offset(rest[0])
	if err != nil {
		return err
	}
	rest = rest[1:]
	if len(rest) > 0 && rest[0].isKeyword("func") {
		rest = rest[1:]
	}
	funcs, err := b.funcList(rest)
	if err != nil {
		return err
	}
	b.mod.Elems = append(b.mod.Elems, ast.Elem{Offset: offset, Funcs: funcs})
	return nil
}

func (b *builder) funcList(nodes []*node) ([]uint32, error) {
	funcs := make([]uint32, 0, len(nodes))
	for _, n := range nodes {
		idx, err := b.funcs.resolve(n)
		if err != nil {
			return nil, err
		}
		funcs = append(funcs, idx)
	}
	return funcs, nil
}

// dataField accepts active segments: (data (memory x)? offset "bytes"*).
func (b *builder) dataField(f *node) error {
	rest := f.list[1:]
	if len(rest) > 0 && rest[0].isID() {
		rest = rest[1:]
	}
	var mem uint32
	if len(rest) > 0 && rest[0].head() == "memory" {
		if len(rest[0].list) != 2 {
			return errAt(rest[0], CodeSyntax, "memory use takes one index")
		}
		idx, err := b.mems.resolve(rest[0].list[1])
		if err != nil {
			return err
		}
		mem = idx
		rest = rest[1:]
	}
	if len(rest) == 0 || !rest[0].isList {
		return errAt(f, CodeSyntax, "passive data segments are not supported")
	}
	offset, err := b.offset(rest[0])
	if err != nil {
		return err
	}
	var data []byte
	for _, s := range rest[1:] {
		chunk, err := text(s)
		if err != nil {
			return err
		}
		data = append(data, chunk...)
	}
	b.mod.Data = append(b.mod.Data, ast.Data{Mem: mem, Offset: offset, Bytes: data})
	return nil
}

// offset reads (offset instr*) or a single folded instruction.
func (b *builder) offset(n *node) ([]ast.Instr, error) {
	if n.head() == "offset" {
		return b.constExpr(n, n.list[1:])
	}
	return b.constExpr(n, []*node{n})
}

func (b *builder) constExpr(at *node, nodes []*node) ([]ast.Instr, error) {
	if len(nodes) == 0 {
		return nil, errAt(at, CodeSyntax, "missing initializer expression")
	}
	fc := b.newFuncCtx()
	fc.locals = nil
	if err := fc.body(nodes); err != nil {
		return nil, err
	}
	return fc.out, nil
}

func (b *builder) refType(n *node) error {
	switch {
	case n.isKeyword("funcref"):
		return nil
	case n.isKeyword("anyfunc"):
		b.warnf(n.pos(), CodeDeprecated, "anyfunc is deprecated, use funcref")
		return nil
	}
	return errAt(n, CodeSyntax, "expected funcref, got %s", n.describe())
}
