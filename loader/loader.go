package loader

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/tetratelabs/wazero"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-cook/errors"
	"github.com/wippyai/wasm-cook/internal/wasmbin"
	"github.com/wippyai/wasm-cook/scope"
)

// Searcher finds pre-existing artifacts by file name. store.Store
// implements it.
type Searcher interface {
	Find(name string) (data []byte, location string, err error)
}

// Loader resolves and instantiates the artifacts of one compilation.
// Thread-safe.
type Loader struct {
	runtime     wazero.Runtime
	parent      scope.Context
	search      Searcher
	logger      *zap.Logger
	blobs       map[string][]byte
	units       map[string]*Unit // artifacts and search modules by key
	loading     map[string]bool
	order       []*Unit
	prefix      string
	ownsRuntime bool
	closed      bool
	mu          sync.Mutex
}

// Option configures a Loader.
type Option func(*Loader)

// WithParent sets the context that satisfies imports no artifact or
// search location provides. The loader then shares the parent's runtime.
func WithParent(p scope.Context) Option {
	return func(l *Loader) { l.parent = p }
}

// WithRuntime instantiates into rt. The loader does not close it.
func WithRuntime(rt wazero.Runtime) Option {
	return func(l *Loader) { l.runtime = rt }
}

// WithSearch sets where <module>.wasm artifacts are looked up.
func WithSearch(s Searcher) Option {
	return func(l *Loader) { l.search = s }
}

// WithLogger sets the loader's logger.
func WithLogger(log *zap.Logger) Option {
	return func(l *Loader) { l.logger = log }
}

// New creates a loader owning blobs. Nothing is compiled until Resolve.
func New(ctx context.Context, blobs map[string][]byte, opts ...Option) *Loader {
	l := &Loader{
		blobs:   blobs,
		units:   make(map[string]*Unit),
		loading: make(map[string]bool),
		prefix:  "unit-" + uuid.NewString(),
		logger:  Logger(),
	}
	if l.blobs == nil {
		l.blobs = make(map[string][]byte)
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.runtime == nil {
		if l.parent != nil {
			l.runtime = l.parent.Runtime()
		} else {
			l.runtime = wazero.NewRuntime(ctx)
			l.ownsRuntime = true
		}
	}
	return l
}

// Artifacts returns the artifact names, sorted.
func (l *Loader) Artifacts() []string {
	names := make([]string, 0, len(l.blobs))
	for name := range l.blobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Bytes returns the binary of an artifact.
func (l *Loader) Bytes(name string) ([]byte, bool) {
	b, ok := l.blobs[name]
	return b, ok
}

// Resolve instantiates the named artifact, linking its imports first.
// Repeated calls return the same Unit.
func (l *Loader) Resolve(ctx context.Context, name string) (*Unit, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, errors.IllegalState(errors.PhaseLoad, "loader is closed")
	}
	return l.artifact(ctx, name)
}

func (l *Loader) artifact(ctx context.Context, name string) (*Unit, error) {
	if u, ok := l.units[name]; ok {
		return u, nil
	}
	bin, ok := l.blobs[name]
	if !ok {
		return nil, errors.New(errors.PhaseLinking, errors.KindResolution).
			Path(name).
			Detailf("no artifact named %q", name).
			Build()
	}
	if l.loading[name] {
		return nil, errors.New(errors.PhaseLinking, errors.KindResolution).
			Path(name).
			Detailf("import cycle through %q", name).
			Build()
	}
	l.loading[name] = true
	defer delete(l.loading, name)

	return l.instantiate(ctx, name, name, bin, true)
}

// searched instantiates a module found in the search locations.
func (l *Loader) searched(ctx context.Context, module string, bin []byte) (*Unit, error) {
	k := "search:" + module
	if u, ok := l.units[k]; ok {
		return u, nil
	}
	if l.loading[k] {
		return nil, errors.New(errors.PhaseLinking, errors.KindResolution).
			Path(module).
			Detailf("import cycle through search module %q", module).
			Build()
	}
	l.loading[k] = true
	defer delete(l.loading, k)

	return l.instantiate(ctx, k, module, bin, false)
}

func (l *Loader) instantiate(ctx context.Context, k, name string, bin []byte, siblings bool) (*Unit, error) {
	renamed, err := l.link(ctx, name, bin, siblings)
	if err != nil {
		return nil, err
	}

	compiled, err := l.runtime.CompileModule(ctx, renamed)
	if err != nil {
		return nil, errors.Load("compile "+name, err)
	}

	instance := l.prefix + "/" + k
	mod, err := l.runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(instance))
	if err != nil {
		_ = compiled.Close(ctx)
		return nil, errors.Instantiation(name, err)
	}

	u := &Unit{module: mod, compiled: compiled, name: name, instance: instance}
	l.units[k] = u
	l.order = append(l.order, u)
	l.logger.Debug("unit instantiated", zap.String("name", name), zap.String("instance", instance))
	return u, nil
}

// link maps every import module of bin to an instance name and returns the
// rewritten binary.
func (l *Loader) link(ctx context.Context, name string, bin []byte, siblings bool) ([]byte, error) {
	modules, err := wasmbin.ImportModules(bin)
	if err != nil {
		return nil, errors.Load("read imports of "+name, err)
	}

	targets := make(map[string]string, len(modules))
	var unresolved []string
	for _, m := range modules {
		target, how, err := l.provider(ctx, m, siblings)
		if err != nil {
			return nil, errors.Resolution(m, err)
		}
		if target == "" {
			unresolved = append(unresolved, l.missing(bin, m)...)
			continue
		}
		targets[m] = target
		l.logger.Debug("import linked",
			zap.String("unit", name), zap.String("module", m),
			zap.String("via", how), zap.String("instance", target))
	}
	if len(unresolved) > 0 {
		return nil, errors.Resolution(name, errors.NewUnresolvedImportsError(name, unresolved))
	}

	return wasmbin.RewriteImportModules(bin, func(m string) string { return targets[m] })
}

// provider returns the instance satisfying module, or "" when nothing
// does.
func (l *Loader) provider(ctx context.Context, module string, siblings bool) (string, string, error) {
	if siblings {
		if _, ok := l.blobs[module]; ok {
			u, err := l.artifact(ctx, module)
			if err != nil {
				return "", "", err
			}
			return u.instance, "sibling", nil
		}
	}

	if l.search != nil {
		data, loc, err := l.search.Find(module + ".wasm")
		switch {
		case err == nil:
			u, err := l.searched(ctx, module, data)
			if err != nil {
				return "", "", err
			}
			return u.instance, "search:" + loc, nil
		case !errors.IsNotExist(err):
			return "", "", err
		}
	}

	if l.parent != nil {
		inst, ok, err := l.parent.Lookup(ctx, module)
		if err != nil {
			return "", "", err
		}
		if ok {
			return inst, "parent", nil
		}
	}
	return "", "", nil
}

func (l *Loader) missing(bin []byte, module string) []string {
	imports, err := wasmbin.Imports(bin)
	if err != nil {
		return []string{module}
	}
	var keys []string
	for _, imp := range imports {
		if imp.Module == module {
			keys = append(keys, imp.Module+"#"+imp.Name)
		}
	}
	return keys
}

// Lookup implements scope.Context. Artifacts of this loader are matched by
// name, ignoring a version suffix; anything else is passed to the parent.
func (l *Loader) Lookup(ctx context.Context, module string) (string, bool, error) {
	base, _ := scope.SplitName(module)
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return "", false, errors.IllegalState(errors.PhaseLoad, "loader is closed")
	}
	if _, ok := l.blobs[base]; ok {
		u, err := l.artifact(ctx, base)
		l.mu.Unlock()
		if err != nil {
			return "", false, err
		}
		return u.instance, true, nil
	}
	l.mu.Unlock()

	if l.parent != nil {
		return l.parent.Lookup(ctx, module)
	}
	return "", false, nil
}

// Modules implements scope.Context.
func (l *Loader) Modules() []string {
	names := l.Artifacts()
	if l.parent != nil {
		for _, n := range l.parent.Modules() {
			if !slices.Contains(names, n) {
				names = append(names, n)
			}
		}
	}
	return names
}

// Runtime implements scope.Context.
func (l *Loader) Runtime() wazero.Runtime { return l.runtime }

// Units returns the instantiated units in instantiation order.
func (l *Loader) Units() []*Unit {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.order)
}

// Close closes every instantiated unit in reverse order, then the runtime
// when the loader created it. Closing twice is a no-op.
func (l *Loader) Close(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true

	var err error
	for i := len(l.order) - 1; i >= 0; i-- {
		u := l.order[i]
		err = multierr.Append(err, u.module.Close(ctx))
		err = multierr.Append(err, u.compiled.Close(ctx))
	}
	l.order = nil
	clear(l.units)
	if l.ownsRuntime {
		err = multierr.Append(err, l.runtime.Close(ctx))
	}
	return err
}

var _ scope.Context = (*Loader)(nil)
