package wat

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-cook/backend/wat/internal/ast"
	"github.com/wippyai/wasm-cook/diag"
	"github.com/wippyai/wasm-cook/errors"
	"github.com/wippyai/wasm-cook/internal/wasmbin"
)

// provider is something that can satisfy imports of one module name.
type provider interface {
	has(name string, kind byte) bool
}

type siblingProvider struct{ mod *ast.Module }

func (p siblingProvider) has(name string, kind byte) bool {
	return p.mod.HasExport(name, kind)
}

type binaryProvider struct{ exports []wasmbin.Export }

func (p binaryProvider) has(name string, kind byte) bool {
	for _, e := range p.exports {
		if e.Name == name && e.Kind == kind {
			return true
		}
	}
	return false
}

// checkImports verifies that every import of a can be linked. Modules are
// searched among siblings first, then in -L locations, then in -extern
// names. Extern modules are only checked by name.
func (j *job) checkImports(a *artifact, arts []*artifact) {
	cache := make(map[string]provider)
	reported := make(map[string]bool)

	for _, imp := range a.mod.Imports {
		p, found := cache[imp.Module]
		if !found {
			p, found = j.lookup(a, imp.Module, arts)
			if !found {
				if !reported[imp.Module] {
					reported[imp.Module] = true
					j.unresolved(a, imp)
				}
				continue
			}
			cache[imp.Module] = p
		}
		if p == nil {
			continue
		}
		if !p.has(imp.Name, imp.Kind) {
			j.report(diag.Error(CodeMissingExport, j.at(imp.Line, 0),
				fmt.Sprintf("module %q has no %s export %q", imp.Module, wasmbin.KindName(imp.Kind), imp.Name)))
		}
	}
}

// lookup returns the provider for module. A nil provider with found set
// means the module is external and its fields are not checked.
func (j *job) lookup(a *artifact, module string, arts []*artifact) (provider, bool) {
	for _, s := range arts {
		if s != a && s.name == module {
			return siblingProvider{mod: s.mod}, true
		}
	}

	if j.task.Files != nil {
		for _, loc := range j.opts.searchPaths {
			exports, ok := j.searchLocation(loc, module)
			if ok {
				return binaryProvider{exports: exports}, true
			}
		}
	}

	if j.opts.hasExtern(module) {
		return nil, true
	}
	return nil, false
}

func (j *job) searchLocation(loc, module string) ([]wasmbin.Export, bool) {
	rc, err := j.task.Files.Input(loc, module+".wasm")
	if err != nil {
		if !errors.IsNotExist(err) {
			Logger().Debug("search location unreadable",
				zap.String("location", loc), zap.String("module", module), zap.Error(err))
		}
		return nil, false
	}
	data, err := readAll(rc)
	if err != nil {
		Logger().Debug("search artifact unreadable",
			zap.String("location", loc), zap.String("module", module), zap.Error(err))
		return nil, false
	}
	exports, err := wasmbin.Exports(data)
	if err != nil {
		j.report(diag.Warning(CodeInvalidModule, nil,
			fmt.Sprintf("ignoring %s/%s.wasm: %v", loc, module, err)))
		return nil, false
	}
	return exports, true
}

func (j *job) unresolved(a *artifact, imp ast.Import) {
	msg := fmt.Sprintf("unresolved import module %q in module %q", imp.Module, a.name)
	loc := j.at(imp.Line, 0)
	if j.opts.allowUnresolved {
		j.warn(diag.Diagnostic{Severity: diag.SevMandatoryWarning, Code: CodeUnresolvedImport, Location: loc, Message: msg})
		return
	}
	j.report(diag.Error(CodeUnresolvedImport, loc, msg))
}
