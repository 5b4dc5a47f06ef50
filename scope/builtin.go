package scope

import (
	"context"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-cook/errors"
)

var (
	i32 = api.ValueTypeI32
	i64 = api.ValueTypeI64
	f32 = api.ValueTypeF32
	f64 = api.ValueTypeF64
)

// Builtin module names accepted by AddBuiltin.
const (
	BuiltinConsole = "console"
	BuiltinClock   = "clock"
)

// Builtins lists the names accepted by AddBuiltin.
func Builtins() []string {
	return []string{BuiltinClock, BuiltinConsole}
}

// AddBuiltin registers a built-in module. console writes to out:
//
//	log_i32 (i32)  log_i64 (i64)  log_f32 (f32)  log_f64 (f64)
//	print (ptr i32, len i32)      reads len bytes of the caller's memory
//
// clock provides now_ms () -> i64.
func (h *Host) AddBuiltin(name string, out io.Writer) error {
	switch name {
	case BuiltinConsole:
		return h.Module(name).
			Func("log_i32", func(_ context.Context, _ api.Module, stack []uint64) {
				fmt.Fprintln(out, api.DecodeI32(stack[0]))
			}, []api.ValueType{i32}, nil).
			Func("log_i64", func(_ context.Context, _ api.Module, stack []uint64) {
				fmt.Fprintln(out, int64(stack[0]))
			}, []api.ValueType{i64}, nil).
			Func("log_f32", func(_ context.Context, _ api.Module, stack []uint64) {
				fmt.Fprintln(out, api.DecodeF32(stack[0]))
			}, []api.ValueType{f32}, nil).
			Func("log_f64", func(_ context.Context, _ api.Module, stack []uint64) {
				fmt.Fprintln(out, api.DecodeF64(stack[0]))
			}, []api.ValueType{f64}, nil).
			Func("print", func(_ context.Context, mod api.Module, stack []uint64) {
				ptr, n := api.DecodeU32(stack[0]), api.DecodeU32(stack[1])
				if mem := mod.Memory(); mem != nil {
					if data, ok := mem.Read(ptr, n); ok {
						_, _ = out.Write(data)
					}
				}
			}, []api.ValueType{i32, i32}, nil).
			Err()
	case BuiltinClock:
		return h.Define(name, "now_ms", func(_ context.Context, _ api.Module, stack []uint64) {
			stack[0] = uint64(time.Now().UnixMilli())
		}, nil, []api.ValueType{i64})
	}
	return errors.NotFound(errors.PhaseHost, "builtin module", name)
}

// IsBuiltin reports whether name is accepted by AddBuiltin.
func IsBuiltin(name string) bool {
	return slices.Contains(Builtins(), name)
}
