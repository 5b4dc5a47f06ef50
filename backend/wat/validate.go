package wat

import (
	"context"
	"regexp"
	"strconv"

	"github.com/tetratelabs/wazero"

	"github.com/wippyai/wasm-cook/diag"
	"github.com/wippyai/wasm-cook/errors"
)

// funcRef finds the defined-function index in a wazero validation error.
var funcRef = regexp.MustCompile(`function\[(\d+)\]`)

// validate compiles every artifact with wazero's interpreter. Invalid
// modules are reported as diagnostics at the offending function when it
// can be identified.
func (j *job) validate(ctx context.Context, arts []*artifact) error {
	r := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfigInterpreter())
	defer r.Close(ctx)

	for _, a := range arts {
		compiled, err := r.CompileModule(ctx, a.bin)
		if err != nil {
			if ctx.Err() != nil {
				return errors.Wrap(errors.PhaseCompile, errors.KindCompile, ctx.Err(), "validation cancelled")
			}
			j.report(diag.Error(CodeInvalidModule, j.lineOf(a, err.Error()), err.Error()))
			continue
		}
		_ = compiled.Close(ctx)
	}
	return nil
}

func (j *job) lineOf(a *artifact, msg string) *diag.Location {
	if m := funcRef.FindStringSubmatch(msg); m != nil {
		if idx, err := strconv.Atoi(m[1]); err == nil && idx < len(a.mod.Funcs) {
			return j.at(a.mod.Funcs[idx].Line, 0)
		}
	}
	return j.at(a.mod.Line, 0)
}
