package wasmbin

import (
	"fmt"
)

// Custom section names written by the compiler when debug info is enabled.
const (
	LinesSection  = "watcook.lines"
	SourceSection = "watcook.source"
	NameSection   = "name"
)

// FuncLine maps a function index to the 1-based line of its definition.
type FuncLine struct {
	Func uint32
	Line uint32
}

// EncodeLines builds a watcook.lines payload.
func EncodeLines(lines []FuncLine) []byte {
	out := AppendULEB128(nil, uint32(len(lines)))
	for _, l := range lines {
		out = AppendULEB128(out, l.Func)
		out = AppendULEB128(out, l.Line)
	}
	return out
}

// DecodeLines parses a watcook.lines payload.
func DecodeLines(payload []byte) ([]FuncLine, error) {
	r := &reader{data: payload}
	count := r.u32()
	if r.err != nil {
		return nil, fmt.Errorf("%s: %w", LinesSection, r.err)
	}
	out := make([]FuncLine, 0, min(count, uint32(len(payload))))
	for i := uint32(0); i < count; i++ {
		l := FuncLine{Func: r.u32(), Line: r.u32()}
		if r.err != nil {
			return nil, fmt.Errorf("%s: %w", LinesSection, r.err)
		}
		out = append(out, l)
	}
	return out, nil
}
