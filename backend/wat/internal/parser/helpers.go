package parser

import (
	"math"
	"strconv"
	"strings"

	"github.com/wippyai/wasm-cook/backend/wat/internal/ast"
	"github.com/wippyai/wasm-cook/backend/wat/internal/token"
)

func text(n *node) (string, error) {
	if !n.is(token.String) {
		return "", errAt(n, CodeSyntax, "expected string, got %s", n.describe())
	}
	b, err := token.Bytes(n.tok.Text)
	if err != nil {
		return "", errAt(n, CodeSyntax, "bad string literal: %v", err)
	}
	return string(b), nil
}

func valType(n *node) (ast.ValType, error) {
	if n.is(token.Keyword) {
		switch n.tok.Text {
		case "i32":
			return ast.I32, nil
		case "i64":
			return ast.I64, nil
		case "f32":
			return ast.F32, nil
		case "f64":
			return ast.F64, nil
		}
	}
	return 0, errAt(n, CodeSyntax, "expected value type, got %s", n.describe())
}

func globalType(n *node) (ast.GlobalType, error) {
	if n.head() == "mut" {
		if len(n.list) != 2 {
			return ast.GlobalType{}, errAt(n, CodeSyntax, "mut takes one value type")
		}
		vt, err := valType(n.list[1])
		return ast.GlobalType{Type: vt, Mutable: true}, err
	}
	vt, err := valType(n)
	return ast.GlobalType{Type: vt}, err
}

func limits(at *node, nodes []*node) (ast.Limits, error) {
	if len(nodes) == 0 || len(nodes) > 2 {
		return ast.Limits{}, errAt(at, CodeSyntax, "expected limits: min [max]")
	}
	minimum, err := parseU32(nodes[0])
	if err != nil {
		return ast.Limits{}, err
	}
	lim := ast.Limits{Min: minimum}
	if len(nodes) == 2 {
		maximum, err := parseU32(nodes[1])
		if err != nil {
			return ast.Limits{}, err
		}
		lim.Max = &maximum
	}
	return lim, nil
}

// intBits parses an integer literal of the given width. Negative values are
// returned in two's complement; unsigned values up to 2^bits-1 are accepted.
func intBits(s string, bits int) (uint64, bool) {
	s = strings.ReplaceAll(s, "_", "")
	neg := false
	switch {
	case strings.HasPrefix(s, "-"):
		neg = true
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}
	base := 10
	if rest, ok := strings.CutPrefix(s, "0x"); ok {
		s, base = rest, 16
	}
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseUint(s, base, bits)
	if err != nil {
		return 0, false
	}
	if neg {
		if v > 1<<(bits-1) {
			return 0, false
		}
		return -v & (1<<bits - 1), true
	}
	return v, true
}

func parseU32(n *node) (uint32, error) {
	if n.is(token.Number) && !strings.HasPrefix(n.tok.Text, "-") && !strings.HasPrefix(n.tok.Text, "+") {
		if v, ok := intBits(n.tok.Text, 32); ok {
			return uint32(v), nil
		}
	}
	return 0, errAt(n, CodeSyntax, "expected unsigned 32-bit integer, got %s", n.describe())
}

func parseI32(n *node) (int32, error) {
	if n.is(token.Number) {
		if v, ok := intBits(n.tok.Text, 32); ok {
			return int32(uint32(v)), nil
		}
	}
	return 0, errAt(n, CodeSyntax, "invalid i32 literal %s", n.describe())
}

func parseI64(n *node) (int64, error) {
	if n.is(token.Number) {
		if v, ok := intBits(n.tok.Text, 64); ok {
			return int64(v), nil
		}
	}
	return 0, errAt(n, CodeSyntax, "invalid i64 literal %s", n.describe())
}

// floatBits parses a float literal into its IEEE bits for the given width.
func floatBits(s string, bits int) (uint64, bool) {
	s = strings.ReplaceAll(s, "_", "")
	sign := uint64(0)
	switch {
	case strings.HasPrefix(s, "-"):
		sign = 1
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}

	expBits, fracBits := 8, 23
	if bits == 64 {
		expBits, fracBits = 11, 52
	}
	expMask := uint64(1)<<expBits - 1
	signed := func(v uint64) uint64 { return sign<<(bits-1) | v }

	switch {
	case s == "inf":
		return signed(expMask << fracBits), true
	case s == "nan":
		return signed(expMask<<fracBits | 1<<(fracBits-1)), true
	case strings.HasPrefix(s, "nan:0x"):
		payload, err := strconv.ParseUint(s[len("nan:0x"):], 16, 64)
		if err != nil || payload == 0 || payload >= 1<<fracBits {
			return 0, false
		}
		return signed(expMask<<fracBits | payload), true
	}

	if strings.HasPrefix(s, "0x") && !strings.ContainsAny(s, "pP") {
		s += "p0"
	}
	f, err := strconv.ParseFloat(s, bits)
	if err != nil {
		return 0, false
	}
	if bits == 32 {
		return signed(uint64(math.Float32bits(float32(f)))), true
	}
	return signed(math.Float64bits(f)), true
}

func parseF32(n *node) (float32, error) {
	if n.is(token.Number) {
		if v, ok := floatBits(n.tok.Text, 32); ok {
			return math.Float32frombits(uint32(v)), nil
		}
	}
	return 0, errAt(n, CodeSyntax, "invalid f32 literal %s", n.describe())
}

func parseF64(n *node) (float64, error) {
	if n.is(token.Number) {
		if v, ok := floatBits(n.tok.Text, 64); ok {
			return math.Float64frombits(v), nil
		}
	}
	return 0, errAt(n, CodeSyntax, "invalid f64 literal %s", n.describe())
}
