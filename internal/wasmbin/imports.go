package wasmbin

import (
	"fmt"
)

// Import is one entry of the import section.
type Import struct {
	Module string
	Name   string
	Kind   byte
}

// Export is one entry of the export section.
type Export struct {
	Name  string
	Kind  byte
	Index uint32
}

// KindName returns the text format keyword of an external kind.
func KindName(kind byte) string {
	switch kind {
	case KindFunc:
		return "func"
	case KindTable:
		return "table"
	case KindMemory:
		return "memory"
	case KindGlobal:
		return "global"
	default:
		return fmt.Sprintf("kind(0x%02x)", kind)
	}
}

// Imports lists the import section of bin.
func Imports(bin []byte) ([]Import, error) {
	s, ok, err := find(bin, SectionImport)
	if err != nil || !ok {
		return nil, err
	}
	var out []Import
	err = walkImports(bin[s.Start:s.End], func(imp Import, _, _ int) {
		out = append(out, imp)
	})
	return out, err
}

// ImportModules lists the distinct import module names in first-use order.
func ImportModules(bin []byte) ([]string, error) {
	imports, err := Imports(bin)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(imports))
	var out []string
	for _, imp := range imports {
		if !seen[imp.Module] {
			seen[imp.Module] = true
			out = append(out, imp.Module)
		}
	}
	return out, nil
}

// Exports lists the export section of bin.
func Exports(bin []byte) ([]Export, error) {
	s, ok, err := find(bin, SectionExport)
	if err != nil || !ok {
		return nil, err
	}
	r := &reader{data: bin[:s.End], pos: s.Start}
	count := r.u32()
	out := make([]Export, 0, count)
	for i := uint32(0); i < count && r.err == nil; i++ {
		e := Export{Name: r.name(), Kind: r.byte()}
		e.Index = r.u32()
		out = append(out, e)
	}
	if r.err != nil {
		return nil, fmt.Errorf("export section: %w", r.err)
	}
	return out, nil
}

// RewriteImportModules returns a copy of bin whose import module names are
// replaced by rename. bin is returned unchanged when nothing is renamed.
func RewriteImportModules(bin []byte, rename func(module string) string) ([]byte, error) {
	s, ok, err := find(bin, SectionImport)
	if err != nil || !ok {
		return bin, err
	}

	section := bin[s.Start:s.End]
	_, n, err := DecodeULEB128(section)
	if err != nil {
		return nil, fmt.Errorf("import section: %w", err)
	}
	patched := append(make([]byte, 0, len(section)+64), section[:n]...)
	changed := false
	err = walkImports(section, func(imp Import, modEnd, entryEnd int) {
		name := rename(imp.Module)
		if name != imp.Module {
			changed = true
		}
		patched = AppendULEB128(patched, uint32(len(name)))
		patched = append(patched, name...)
		patched = append(patched, section[modEnd:entryEnd]...)
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return bin, nil
	}

	out := make([]byte, 0, len(bin)+len(patched)-len(section))
	out = append(out, bin[:s.Offset]...)
	out = append(out, SectionImport)
	out = AppendULEB128(out, uint32(len(patched)))
	out = append(out, patched...)
	out = append(out, bin[s.End:]...)
	return out, nil
}

// walkImports calls fn for every entry of an import section payload with the
// offsets just past the module name and just past the entry.
func walkImports(section []byte, fn func(imp Import, modEnd, entryEnd int)) error {
	r := &reader{data: section}
	count := r.u32()
	for i := uint32(0); i < count && r.err == nil; i++ {
		var imp Import
		imp.Module = r.name()
		modEnd := r.pos
		imp.Name = r.name()
		imp.Kind = r.byte()
		switch imp.Kind {
		case KindFunc:
			r.u32()
		case KindTable:
			r.byte()
			r.limits()
		case KindMemory:
			r.limits()
		case KindGlobal:
			r.byte()
			r.byte()
		default:
			return fmt.Errorf("import %s#%s: unknown kind 0x%02x", imp.Module, imp.Name, imp.Kind)
		}
		if r.err == nil {
			fn(imp, modEnd, r.pos)
		}
	}
	if r.err != nil {
		return fmt.Errorf("import section: %w", r.err)
	}
	return nil
}
