package wat

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-cook/backend"
	"github.com/wippyai/wasm-cook/backend/wat/internal/ast"
	"github.com/wippyai/wasm-cook/backend/wat/internal/encoder"
	"github.com/wippyai/wasm-cook/backend/wat/internal/parser"
	"github.com/wippyai/wasm-cook/diag"
	"github.com/wippyai/wasm-cook/errors"
)

// Name identifies this backend.
const Name = "wat"

// Diagnostic codes reported in addition to the parser's wat.* codes.
const (
	CodeInvalidFlag       = "wat.invalid-flag"
	CodeUnresolvedImport  = "wat.unresolved-import"
	CodeMissingExport     = "wat.missing-export"
	CodeInvalidModule     = "wat.invalid-module"
	CodeDuplicateArtifact = "wat.duplicate-artifact"
	CodeUnnamedModule     = "wat.unnamed-module"
)

// Backend compiles WebAssembly text. The zero value is ready to use.
type Backend struct{}

// New returns the WAT backend.
func New() *Backend {
	return &Backend{}
}

// Provider returns a discovery provider for the WAT backend.
func Provider() backend.Provider {
	return backend.NewProvider(Name, func() (backend.Backend, error) {
		return New(), nil
	})
}

// Name implements backend.Backend.
func (b *Backend) Name() string { return Name }

// artifact is one module on its way to the file manager.
type artifact struct {
	name string
	mod  *ast.Module
	bin  []byte
}

// job holds the state of one Compile call.
type job struct {
	task   *backend.Task
	opts   options
	file   string
	errors int
}

// Compile implements backend.Backend. Artifacts are written only when the
// unit compiles without errors.
func (b *Backend) Compile(ctx context.Context, t *backend.Task) (bool, error) {
	if t == nil || t.Unit == nil {
		return false, errors.InvalidInput(errors.PhaseCompile, "task has no unit")
	}
	j := &job{task: t, file: t.Unit.Identity()}

	opts, bad, ok := parseOptions(t.Options)
	if !ok {
		j.report(diag.Error(CodeInvalidFlag, nil, "invalid flag: "+bad))
		return false, nil
	}
	j.opts = opts

	res := parser.Parse(t.Unit.Text())
	for _, p := range res.Problems {
		loc := j.at(p.Pos.Line, p.Pos.Col)
		if p.Warning {
			j.warn(diag.Warning(p.Code, loc, p.Msg))
		} else {
			j.report(diag.Error(p.Code, loc, p.Msg))
		}
	}
	if j.errors > 0 {
		return false, nil
	}

	arts := j.name(res.Modules)
	if j.errors > 0 {
		return false, nil
	}

	for _, a := range arts {
		j.checkImports(a, arts)
	}
	if j.errors > 0 {
		return false, nil
	}

	for _, a := range arts {
		bin, err := encoder.Encode(a.mod, j.debug())
		if err != nil {
			j.report(diag.Error(CodeInvalidModule, j.at(a.mod.Line, 0), err.Error()))
			continue
		}
		a.bin = bin
	}
	if j.errors > 0 {
		return false, nil
	}

	if !opts.noValidate {
		if err := j.validate(ctx, arts); err != nil {
			return false, err
		}
		if j.errors > 0 {
			return false, nil
		}
	}

	names := make([]string, 0, len(arts))
	for _, a := range arts {
		if err := write(t.Files, a); err != nil {
			return false, err
		}
		names = append(names, a.name)
	}

	Logger().Debug("compiled unit",
		zap.String("unit", j.file),
		zap.Strings("artifacts", names),
		zap.String("debug", opts.debug.Token()))
	return true, nil
}

func (j *job) at(line, col int) *diag.Location {
	if line <= 0 {
		return &diag.Location{File: j.file}
	}
	return &diag.Location{File: j.file, Line: line, Column: col}
}

func (j *job) report(d diag.Diagnostic) {
	if d.Severity == diag.SevError {
		j.errors++
	}
	j.task.Report(d)
}

// warn applies -nowarn and -Werror before reporting d.
func (j *job) warn(d diag.Diagnostic) {
	switch {
	case j.opts.werror:
		d.Severity = diag.SevError
	case j.opts.nowarn && d.Severity == diag.SevWarning:
		return
	}
	j.report(d)
}

func (j *job) debug() encoder.Debug {
	d := encoder.Debug{
		Names: j.opts.debug.Vars,
		Lines: j.opts.debug.Lines,
	}
	if j.opts.debug.Source {
		d.Source = j.file
	}
	return d
}

// name assigns artifact names. An unnamed module takes the unit's base
// name, which only works when it is the unit's only module.
func (j *job) name(mods []*ast.Module) []*artifact {
	arts := make([]*artifact, 0, len(mods))
	seen := make(map[string]int)
	for _, m := range mods {
		name := m.Name
		if name == "" {
			if len(mods) > 1 {
				j.report(diag.Error(CodeUnnamedModule, j.at(m.Line, 0),
					"module needs a $name when a unit holds several modules"))
				continue
			}
			name = j.task.Unit.BaseName()
		}
		if line, dup := seen[name]; dup {
			j.report(diag.Error(CodeDuplicateArtifact, j.at(m.Line, 0),
				fmt.Sprintf("module %q already defined on line %d", name, line)))
			continue
		}
		seen[name] = m.Line
		arts = append(arts, &artifact{name: name, mod: m})
	}
	return arts
}

func write(files backend.FileManager, a *artifact) error {
	if files == nil {
		return errors.IllegalState(errors.PhaseCompile, "task has no file manager")
	}
	w, err := files.Output(a.name)
	if err != nil {
		return errors.IO(errors.PhaseCompile, "open artifact "+a.name, err)
	}
	if _, err := w.Write(a.bin); err != nil {
		_ = w.Close()
		return errors.IO(errors.PhaseCompile, "write artifact "+a.name, err)
	}
	if err := w.Close(); err != nil {
		return errors.IO(errors.PhaseCompile, "commit artifact "+a.name, err)
	}
	return nil
}

func readAll(rc io.ReadCloser) ([]byte, error) {
	defer rc.Close()
	return io.ReadAll(rc)
}
