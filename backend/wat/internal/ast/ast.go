// Package ast holds the resolved form of a text module, ready to encode.
// All symbolic references have been replaced by indices.
package ast

type ValType byte

const (
	I32     ValType = 0x7f
	I64     ValType = 0x7e
	F32     ValType = 0x7d
	F64     ValType = 0x7c
	FuncRef ValType = 0x70
)

func (v ValType) String() string {
	switch v {
	case I32:
		return "i32"
	case I64:
		return "i64"
	case F32:
		return "f32"
	case F64:
		return "f64"
	case FuncRef:
		return "funcref"
	}
	return "?"
}

const (
	KindFunc   byte = 0x00
	KindTable  byte = 0x01
	KindMemory byte = 0x02
	KindGlobal byte = 0x03
)

// Module is one compiled (module ...) form.
type Module struct {
	Name    string // without the leading $; empty when anonymous
	Line    int
	Types   []FuncType
	Imports []Import
	Funcs   []Func
	Tables  []Limits
	Mems    []Limits
	Globals []Global
	Exports []Export
	Start   *uint32
	Elems   []Elem
	Data    []Data
}

type FuncType struct {
	Params  []ValType
	Results []ValType
}

func (ft FuncType) Equal(o FuncType) bool {
	return equalTypes(ft.Params, o.Params) && equalTypes(ft.Results, o.Results)
}

func equalTypes(a, b []ValType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

type Limits struct {
	Min uint32
	Max *uint32
}

type GlobalType struct {
	Type    ValType
	Mutable bool
}

// Import is a function, table, memory or global import. Only the field for
// Kind is meaningful.
type Import struct {
	Module string
	Name   string
	Kind   byte
	Line   int
	ID     string // local $name, if any

	TypeIdx uint32
	Limits  Limits
	Global  GlobalType
}

// Func is a defined function.
type Func struct {
	ID         string
	Line       int
	TypeIdx    uint32
	Locals     []ValType
	LocalNames map[uint32]string // params and locals by index
	Body       []Instr
}

type Global struct {
	ID   string
	Type GlobalType
	Init []Instr
}

type Export struct {
	Name  string
	Kind  byte
	Index uint32
	Line  int
}

// Elem is an active element segment for table 0.
type Elem struct {
	Offset []Instr
	Funcs  []uint32
}

// Data is an active data segment.
type Data struct {
	Mem    uint32
	Offset []Instr
	Bytes  []byte
}

// Instr is one instruction. Imm holds uint32, int32, int64, float32,
// float64, BlockType, Memarg or []uint32 depending on the opcode.
type Instr struct {
	Code byte
	Sub  uint32
	Imm  any
}

// BlockType is empty, a single result, or a type index.
type BlockType struct {
	Result  *ValType
	TypeIdx *uint32
}

type Memarg struct {
	Align  uint32
	Offset uint32
}

// FuncCount returns the size of the function index space.
func (m *Module) FuncCount() int {
	return m.importCount(KindFunc) + len(m.Funcs)
}

// ImportedFuncs returns the number of imported functions.
func (m *Module) ImportedFuncs() int {
	return m.importCount(KindFunc)
}

func (m *Module) importCount(kind byte) int {
	n := 0
	for _, imp := range m.Imports {
		if imp.Kind == kind {
			n++
		}
	}
	return n
}

// FuncType returns the signature of function idx in the index space.
func (m *Module) FuncType(idx uint32) (FuncType, bool) {
	i := int(idx)
	for _, imp := range m.Imports {
		if imp.Kind != KindFunc {
			continue
		}
		if i == 0 {
			return m.Types[imp.TypeIdx], true
		}
		i--
	}
	if i < len(m.Funcs) {
		return m.Types[m.Funcs[i].TypeIdx], true
	}
	return FuncType{}, false
}

// HasExport reports whether the module exports name with the given kind.
func (m *Module) HasExport(name string, kind byte) bool {
	for _, e := range m.Exports {
		if e.Name == name && e.Kind == kind {
			return true
		}
	}
	return false
}
