package loader

import (
	"context"
	"slices"
	"strings"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-cook/errors"
)

// Unit is one instantiated artifact.
type Unit struct {
	module   api.Module
	compiled wazero.CompiledModule
	name     string
	instance string
}

// Export describes an exported function.
type Export struct {
	Name       string
	ParamNames []string // empty unless the artifact carries local names
	Params     []api.ValueType
	Results    []api.ValueType
}

// Signature renders the export as name(i32, i64) -> f64.
func (e Export) Signature() string {
	var b strings.Builder
	b.WriteString(e.Name)
	b.WriteByte('(')
	for i, p := range e.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		if i < len(e.ParamNames) && e.ParamNames[i] != "" {
			b.WriteString(e.ParamNames[i])
			b.WriteString(": ")
		}
		b.WriteString(api.ValueTypeName(p))
	}
	b.WriteByte(')')
	if len(e.Results) > 0 {
		b.WriteString(" -> ")
		for i, r := range e.Results {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(api.ValueTypeName(r))
		}
	}
	return b.String()
}

// Name returns the artifact name.
func (u *Unit) Name() string { return u.name }

// Instance returns the module name inside the runtime.
func (u *Unit) Instance() string { return u.instance }

// Module returns the instantiated module.
func (u *Unit) Module() api.Module { return u.module }

// Function returns an exported function.
func (u *Unit) Function(name string) (api.Function, error) {
	fn := u.module.ExportedFunction(name)
	if fn == nil {
		return nil, errors.New(errors.PhaseRuntime, errors.KindResolution).
			Path(u.name, name).
			Detailf("no exported function %q in %q", name, u.name).
			Build()
	}
	return fn, nil
}

// Call invokes an exported function with raw wasm values.
func (u *Unit) Call(ctx context.Context, name string, params ...uint64) ([]uint64, error) {
	fn, err := u.Function(name)
	if err != nil {
		return nil, err
	}
	res, err := fn.Call(ctx, params...)
	if err != nil {
		return nil, errors.New(errors.PhaseRuntime, errors.KindInstantiation).
			Path(u.name, name).
			Detail("call failed").
			Cause(err).
			Build()
	}
	return res, nil
}

// Exports lists the exported functions sorted by name.
func (u *Unit) Exports() []Export {
	defs := u.compiled.ExportedFunctions()
	out := make([]Export, 0, len(defs))
	for name, def := range defs {
		out = append(out, Export{
			Name:       name,
			ParamNames: def.ParamNames(),
			Params:     def.ParamTypes(),
			Results:    def.ResultTypes(),
		})
	}
	slices.SortFunc(out, func(a, b Export) int { return strings.Compare(a.Name, b.Name) })
	return out
}
