package scope

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-cook/errors"
)

// FuncDef is one host function.
type FuncDef struct {
	Handler api.GoModuleFunc
	Name    string
	Params  []api.ValueType
	Results []api.ValueType
}

type hostModule struct {
	version  *Version
	funcs    map[string]*FuncDef
	name     string
	instance string // set once instantiated
	order    []string
}

// Host is a Context backed by Go functions. Modules are instantiated in
// the runtime on first lookup and cannot change afterwards. Thread-safe.
type Host struct {
	runtime     wazero.Runtime
	parent      Context
	logger      *zap.Logger
	modules     map[string]*hostModule
	prefix      string
	instances   []api.Module
	ownsRuntime bool
	closed      bool
	mu          sync.Mutex
}

// Option configures a Host.
type Option func(*Host)

// WithRuntime instantiates host modules in rt. The host does not close it.
func WithRuntime(rt wazero.Runtime) Option {
	return func(h *Host) { h.runtime = rt }
}

// WithParent sets the context consulted when a lookup misses.
func WithParent(p Context) Option {
	return func(h *Host) { h.parent = p }
}

// WithLogger sets the host's logger.
func WithLogger(l *zap.Logger) Option {
	return func(h *Host) { h.logger = l }
}

// NewHost creates an empty host. Without WithRuntime it shares the
// parent's runtime, or creates and owns a new one.
func NewHost(ctx context.Context, opts ...Option) *Host {
	h := &Host{
		modules: make(map[string]*hostModule),
		prefix:  "host-" + uuid.NewString(),
		logger:  Logger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.runtime == nil {
		if h.parent != nil {
			h.runtime = h.parent.Runtime()
		} else {
			h.runtime = wazero.NewRuntime(ctx)
			h.ownsRuntime = true
		}
	}
	return h
}

// Runtime implements Context.
func (h *Host) Runtime() wazero.Runtime { return h.runtime }

// Define registers fn as module#name. module may carry a version:
// "env@1.2.0". Redefining a function replaces it until the module is
// instantiated; after that Define fails.
func (h *Host) Define(module, name string, fn api.GoModuleFunc, params, results []api.ValueType) error {
	if module == "" || name == "" || fn == nil {
		return errors.Registration(module, name, errors.InvalidInput(errors.PhaseHost, "module, name and handler are required"))
	}
	base, v := SplitName(module)
	k := key(base, v)

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return errors.Registration(module, name, errors.IllegalState(errors.PhaseHost, "host is closed"))
	}
	m, ok := h.modules[k]
	if !ok {
		m = &hostModule{name: base, version: v, funcs: make(map[string]*FuncDef)}
		h.modules[k] = m
	}
	if m.instance != "" {
		return errors.Registration(module, name, errors.IllegalState(errors.PhaseHost, "module already instantiated"))
	}
	if _, exists := m.funcs[name]; !exists {
		m.order = append(m.order, name)
	}
	m.funcs[name] = &FuncDef{
		Name:    name,
		Handler: fn,
		Params:  params,
		Results: results,
	}
	return nil
}

// Module starts a builder for module.
func (h *Host) Module(module string) *ModuleBuilder {
	return &ModuleBuilder{host: h, module: module}
}

// ModuleBuilder chains Define calls for one module.
type ModuleBuilder struct {
	host   *Host
	err    error
	module string
}

// Func defines one function. Errors are collected and returned by Err.
func (b *ModuleBuilder) Func(name string, fn api.GoModuleFunc, params, results []api.ValueType) *ModuleBuilder {
	b.err = multierr.Append(b.err, b.host.Define(b.module, name, fn, params, results))
	return b
}

// Err returns every error collected by Func.
func (b *ModuleBuilder) Err() error { return b.err }

// Lookup implements Context.
func (h *Host) Lookup(ctx context.Context, module string) (string, bool, error) {
	base, want := SplitName(module)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return "", false, errors.IllegalState(errors.PhaseHost, "host is closed")
	}
	m := h.match(base, want)
	if m != nil {
		inst, err := h.instantiate(ctx, m)
		h.mu.Unlock()
		if err != nil {
			return "", false, err
		}
		return inst, true, nil
	}
	h.mu.Unlock()

	if h.parent != nil {
		return h.parent.Lookup(ctx, module)
	}
	return "", false, nil
}

// match picks the module for an import. An exact name wins; otherwise a
// versioned import takes the newest compatible version and an unversioned
// one takes the newest version. A versioned import falls back to the
// unversioned module. The rules agree with Serves.
func (h *Host) match(base string, want *Version) *hostModule {
	if m, ok := h.modules[key(base, want)]; ok {
		return m
	}
	var best *hostModule
	for _, m := range h.modules {
		if m.name != base || m.version == nil {
			continue
		}
		if want != nil && !m.version.Compatible(*want) {
			continue
		}
		if best == nil || best.version.Less(*m.version) {
			best = m
		}
	}
	if best == nil && want != nil {
		best = h.modules[base]
	}
	return best
}

func (h *Host) instantiate(ctx context.Context, m *hostModule) (string, error) {
	if m.instance != "" {
		return m.instance, nil
	}
	k := key(m.name, m.version)
	name := h.prefix + "/" + k

	builder := h.runtime.NewHostModuleBuilder(name)
	for _, fname := range m.order {
		f := m.funcs[fname]
		builder.NewFunctionBuilder().
			WithGoModuleFunction(f.Handler, f.Params, f.Results).
			WithName(f.Name).
			Export(f.Name)
	}
	mod, err := builder.Instantiate(ctx)
	if err != nil {
		return "", errors.Instantiation(k, err)
	}
	m.instance = name
	h.instances = append(h.instances, mod)
	h.logger.Debug("host module instantiated",
		zap.String("module", k),
		zap.String("instance", name),
		zap.Int("funcs", len(m.order)))
	return name, nil
}

// Modules implements Context.
func (h *Host) Modules() []string {
	h.mu.Lock()
	names := make([]string, 0, len(h.modules))
	for k := range h.modules {
		names = append(names, k)
	}
	h.mu.Unlock()
	sort.Strings(names)

	if h.parent != nil {
		for _, n := range h.parent.Modules() {
			if !slices.Contains(names, n) {
				names = append(names, n)
			}
		}
	}
	return names
}

// Close closes the instantiated host modules, and the runtime when the
// host created it. Later lookups and definitions fail. Closing twice is a
// no-op.
func (h *Host) Close(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true

	var err error
	for i := len(h.instances) - 1; i >= 0; i-- {
		err = multierr.Append(err, h.instances[i].Close(ctx))
	}
	h.instances = nil
	if h.ownsRuntime {
		err = multierr.Append(err, h.runtime.Close(ctx))
	}
	return err
}
