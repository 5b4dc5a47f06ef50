// Package encoder writes resolved modules in the binary format.
package encoder

import (
	"fmt"
	"slices"

	"github.com/wippyai/wasm-cook/backend/wat/internal/ast"
	"github.com/wippyai/wasm-cook/backend/wat/internal/opcode"
	"github.com/wippyai/wasm-cook/internal/wasmbin"
)

// Debug selects the custom sections appended after the data section.
type Debug struct {
	Names  bool   // name section: module, function and local names
	Lines  bool   // watcook.lines: definition line per function
	Source string // watcook.source payload; empty to omit
}

// Encode returns the binary form of m.
func Encode(m *ast.Module, debug Debug) ([]byte, error) {
	w := &buffer{b: append([]byte(nil), wasmbin.Header...)}

	if len(m.Types) > 0 {
		s := &buffer{}
		s.count(len(m.Types))
		for _, ft := range m.Types {
			s.byte(0x60)
			valTypes(s, ft.Params)
			valTypes(s, ft.Results)
		}
		w.section(wasmbin.SectionType, s)
	}

	if len(m.Imports) > 0 {
		s := &buffer{}
		s.count(len(m.Imports))
		for _, imp := range m.Imports {
			s.name(imp.Module)
			s.name(imp.Name)
			s.byte(imp.Kind)
			switch imp.Kind {
			case ast.KindFunc:
				s.u32(imp.TypeIdx)
			case ast.KindTable:
				s.byte(byte(ast.FuncRef))
				s.limits(imp.Limits.Min, imp.Limits.Max)
			case ast.KindMemory:
				s.limits(imp.Limits.Min, imp.Limits.Max)
			case ast.KindGlobal:
				globalType(s, imp.Global)
			}
		}
		w.section(wasmbin.SectionImport, s)
	}

	if len(m.Funcs) > 0 {
		s := &buffer{}
		s.count(len(m.Funcs))
		for _, f := range m.Funcs {
			s.u32(f.TypeIdx)
		}
		w.section(wasmbin.SectionFunction, s)
	}

	if len(m.Tables) > 0 {
		s := &buffer{}
		s.count(len(m.Tables))
		for _, t := range m.Tables {
			s.byte(byte(ast.FuncRef))
			s.limits(t.Min, t.Max)
		}
		w.section(wasmbin.SectionTable, s)
	}

	if len(m.Mems) > 0 {
		s := &buffer{}
		s.count(len(m.Mems))
		for _, mem := range m.Mems {
			s.limits(mem.Min, mem.Max)
		}
		w.section(wasmbin.SectionMemory, s)
	}

	if len(m.Globals) > 0 {
		s := &buffer{}
		s.count(len(m.Globals))
		for _, g := range m.Globals {
			globalType(s, g.Type)
			if err := expr(s, g.Init); err != nil {
				return nil, err
			}
		}
		w.section(wasmbin.SectionGlobal, s)
	}

	if len(m.Exports) > 0 {
		s := &buffer{}
		s.count(len(m.Exports))
		for _, e := range m.Exports {
			s.name(e.Name)
			s.byte(e.Kind)
			s.u32(e.Index)
		}
		w.section(wasmbin.SectionExport, s)
	}

	if m.Start != nil {
		s := &buffer{}
		s.u32(*m.Start)
		w.section(wasmbin.SectionStart, s)
	}

	if len(m.Elems) > 0 {
		s := &buffer{}
		s.count(len(m.Elems))
		for _, e := range m.Elems {
			s.u32(0) // active, table 0, funcref
			if err := expr(s, e.Offset); err != nil {
				return nil, err
			}
			s.count(len(e.Funcs))
			for _, f := range e.Funcs {
				s.u32(f)
			}
		}
		w.section(wasmbin.SectionElement, s)
	}

	if len(m.Funcs) > 0 {
		s := &buffer{}
		s.count(len(m.Funcs))
		for i, f := range m.Funcs {
			body := &buffer{}
			locals(body, f.Locals)
			if err := expr(body, f.Body); err != nil {
				return nil, fmt.Errorf("function %d: %w", i, err)
			}
			if body.err != nil {
				return nil, body.err
			}
			s.count(len(body.b))
			s.b = append(s.b, body.b...)
		}
		w.section(wasmbin.SectionCode, s)
	}

	if len(m.Data) > 0 {
		s := &buffer{}
		s.count(len(m.Data))
		for _, d := range m.Data {
			if d.Mem == 0 {
				s.u32(0)
			} else {
				s.u32(2)
				s.u32(d.Mem)
			}
			if err := expr(s, d.Offset); err != nil {
				return nil, err
			}
			s.count(len(d.Bytes))
			s.b = append(s.b, d.Bytes...)
		}
		w.section(wasmbin.SectionData, s)
	}

	if debug.Names {
		if payload := names(m); len(payload) > 0 {
			w.b = wasmbin.AppendCustomSection(w.b, wasmbin.NameSection, payload)
		}
	}
	if debug.Lines {
		w.b = wasmbin.AppendCustomSection(w.b, wasmbin.LinesSection, lines(m))
	}
	if debug.Source != "" {
		w.b = wasmbin.AppendCustomSection(w.b, wasmbin.SourceSection, []byte(debug.Source))
	}

	if w.err != nil {
		return nil, w.err
	}
	return w.b, nil
}

func valTypes(s *buffer, types []ast.ValType) {
	s.count(len(types))
	for _, t := range types {
		s.byte(byte(t))
	}
}

func globalType(s *buffer, gt ast.GlobalType) {
	s.byte(byte(gt.Type))
	if gt.Mutable {
		s.byte(0x01)
	} else {
		s.byte(0x00)
	}
}

// locals writes run-length compressed local declarations.
func locals(s *buffer, types []ast.ValType) {
	var runs [][2]int
	for _, t := range types {
		if n := len(runs); n > 0 && runs[n-1][0] == int(t) {
			runs[n-1][1]++
			continue
		}
		runs = append(runs, [2]int{int(t), 1})
	}
	s.count(len(runs))
	for _, r := range runs {
		s.count(r[1])
		s.byte(byte(r[0]))
	}
}

// expr writes an instruction sequence followed by end.
func expr(s *buffer, body []ast.Instr) error {
	for _, ins := range body {
		if err := instr(s, ins); err != nil {
			return err
		}
	}
	s.byte(opcode.End)
	return nil
}

func instr(s *buffer, ins ast.Instr) error {
	s.byte(ins.Code)
	switch imm := ins.Imm.(type) {
	case nil:
		switch ins.Code {
		case opcode.PrefixMisc:
			s.u32(ins.Sub)
		case 0x3f, 0x40: // memory.size, memory.grow
			s.byte(0x00)
		}
	case uint32:
		s.u32(imm)
		if ins.Code == 0x11 { // call_indirect table index
			s.byte(0x00)
		}
	case int32:
		s.i32(imm)
	case int64:
		s.i64(imm)
	case float32:
		s.f32(imm)
	case float64:
		s.f64(imm)
	case []uint32:
		s.count(len(imm) - 1)
		for _, target := range imm {
			s.u32(target)
		}
	case ast.BlockType:
		switch {
		case imm.TypeIdx != nil:
			s.i64(int64(*imm.TypeIdx))
		case imm.Result != nil:
			s.byte(byte(*imm.Result))
		default:
			s.byte(0x40)
		}
	case ast.Memarg:
		s.u32(imm.Align)
		s.u32(imm.Offset)
	default:
		return fmt.Errorf("opcode 0x%02x: unexpected immediate %T", ins.Code, ins.Imm)
	}
	return nil
}

func names(m *ast.Module) []byte {
	s := &buffer{}
	if m.Name != "" {
		sub := &buffer{}
		sub.name(m.Name)
		s.section(0, sub)
	}

	var funcNames []string
	for _, imp := range m.Imports {
		if imp.Kind == ast.KindFunc {
			funcNames = append(funcNames, imp.ID)
		}
	}
	for _, f := range m.Funcs {
		funcNames = append(funcNames, f.ID)
	}
	sub := &buffer{}
	named := 0
	for _, n := range funcNames {
		if n != "" {
			named++
		}
	}
	if named > 0 {
		sub.count(named)
		for i, n := range funcNames {
			if n != "" {
				sub.count(i)
				sub.name(n)
			}
		}
		s.section(1, sub)
	}

	imported := m.ImportedFuncs()
	sub = &buffer{}
	withLocals := 0
	for _, f := range m.Funcs {
		if len(f.LocalNames) > 0 {
			withLocals++
		}
	}
	if withLocals > 0 {
		sub.count(withLocals)
		for i, f := range m.Funcs {
			if len(f.LocalNames) == 0 {
				continue
			}
			sub.count(imported + i)
			idxs := make([]uint32, 0, len(f.LocalNames))
			for idx := range f.LocalNames {
				idxs = append(idxs, idx)
			}
			slices.Sort(idxs)
			sub.count(len(idxs))
			for _, idx := range idxs {
				sub.u32(idx)
				sub.name(f.LocalNames[idx])
			}
		}
		s.section(2, sub)
	}
	return s.b
}

func lines(m *ast.Module) []byte {
	imported := uint32(m.ImportedFuncs())
	entries := make([]wasmbin.FuncLine, 0, len(m.Funcs))
	for i, f := range m.Funcs {
		entries = append(entries, wasmbin.FuncLine{Func: imported + uint32(i), Line: uint32(f.Line)})
	}
	return wasmbin.EncodeLines(entries)
}
