package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasm-cook/loader"
)

type funcInfo struct {
	unit    *loader.Unit
	name    string
	params  []paramInfo
	results []wit.Type
}

type paramInfo struct {
	name    string
	witType wit.Type
	typeStr string
}

// describe types an export for argument parsing and display.
func describe(u *loader.Unit, e loader.Export) funcInfo {
	fi := funcInfo{unit: u, name: e.Name}
	for i, p := range e.Params {
		pname := fmt.Sprintf("arg%d", i)
		if i < len(e.ParamNames) && e.ParamNames[i] != "" {
			pname = e.ParamNames[i]
		}
		t := witType(p)
		fi.params = append(fi.params, paramInfo{name: pname, witType: t, typeStr: witTypeStr(t)})
	}
	for _, r := range e.Results {
		fi.results = append(fi.results, witType(r))
	}
	return fi
}

// witType maps a core value type to the WIT type its text form uses.
// Reference types have none.
func witType(t api.ValueType) wit.Type {
	switch t {
	case api.ValueTypeI32:
		return wit.S32{}
	case api.ValueTypeI64:
		return wit.S64{}
	case api.ValueTypeF32:
		return wit.F32{}
	case api.ValueTypeF64:
		return wit.F64{}
	}
	return nil
}

func witTypeStr(t wit.Type) string {
	switch t.(type) {
	case wit.S32:
		return "s32"
	case wit.S64:
		return "s64"
	case wit.F32:
		return "f32"
	case wit.F64:
		return "f64"
	case nil:
		return "ref"
	default:
		return fmt.Sprintf("%T", t)
	}
}

// convertArg parses value as t and encodes it for an api.Function call.
// Integers accept any base strconv understands and the unsigned range.
func convertArg(value string, t wit.Type) (uint64, error) {
	value = strings.TrimSpace(value)
	switch t.(type) {
	case wit.S32:
		if v, err := strconv.ParseInt(value, 0, 32); err == nil {
			return api.EncodeI32(int32(v)), nil
		}
		v, err := strconv.ParseUint(value, 0, 32)
		if err != nil {
			return 0, fmt.Errorf("%q is not an i32", value)
		}
		return api.EncodeU32(uint32(v)), nil
	case wit.S64:
		if v, err := strconv.ParseInt(value, 0, 64); err == nil {
			return api.EncodeI64(v), nil
		}
		v, err := strconv.ParseUint(value, 0, 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not an i64", value)
		}
		return v, nil
	case wit.F32:
		v, err := strconv.ParseFloat(value, 32)
		if err != nil {
			return 0, fmt.Errorf("%q is not an f32", value)
		}
		return api.EncodeF32(float32(v)), nil
	case wit.F64:
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not an f64", value)
		}
		return api.EncodeF64(v), nil
	}
	return 0, fmt.Errorf("cannot pass %s arguments", witTypeStr(t))
}

func convertArgs(fi funcInfo, values []string) ([]uint64, error) {
	if len(values) != len(fi.params) {
		return nil, fmt.Errorf("%s takes %d argument(s), got %d", fi.name, len(fi.params), len(values))
	}
	out := make([]uint64, len(values))
	for i, v := range values {
		enc, err := convertArg(v, fi.params[i].witType)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", fi.params[i].name, err)
		}
		out[i] = enc
	}
	return out, nil
}

func formatResult(v uint64, t wit.Type) string {
	switch t.(type) {
	case wit.S32:
		return strconv.FormatInt(int64(api.DecodeI32(v)), 10)
	case wit.S64:
		return strconv.FormatInt(int64(v), 10)
	case wit.F32:
		return strconv.FormatFloat(float64(api.DecodeF32(v)), 'g', -1, 32)
	case wit.F64:
		return strconv.FormatFloat(api.DecodeF64(v), 'g', -1, 64)
	}
	return fmt.Sprintf("0x%x", v)
}

func formatResults(fi funcInfo, vs []uint64) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		var t wit.Type
		if i < len(fi.results) {
			t = fi.results[i]
		}
		parts[i] = formatResult(v, t)
	}
	return strings.Join(parts, " ")
}

func (fi funcInfo) signature() string {
	params := make([]string, len(fi.params))
	for i, p := range fi.params {
		params[i] = p.name + ": " + p.typeStr
	}
	s := fi.name + "(" + strings.Join(params, ", ") + ")"
	if len(fi.results) > 0 {
		rs := make([]string, len(fi.results))
		for i, r := range fi.results {
			rs[i] = witTypeStr(r)
		}
		s += " -> " + strings.Join(rs, ", ")
	}
	return s
}
