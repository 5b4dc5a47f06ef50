package session

import (
	"context"
	"io"
	"os"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-cook/backend"
	"github.com/wippyai/wasm-cook/backend/wat"
	"github.com/wippyai/wasm-cook/diag"
	"github.com/wippyai/wasm-cook/errors"
	"github.com/wippyai/wasm-cook/loader"
	"github.com/wippyai/wasm-cook/scope"
	"github.com/wippyai/wasm-cook/source"
	"github.com/wippyai/wasm-cook/store"
)

// Session compiles a single unit and exposes the loaded result.
// Thread-safe; Cook succeeds at most once.
type Session struct {
	parent         scope.Context
	onError        diag.ErrorHandler
	onWarning      diag.WarningHandler
	logger         *zap.Logger
	loader         *loader.Loader
	outcome        *diag.Outcome
	unit           *source.Unit
	resolver       backend.Resolver
	state          State
	searchPaths    []store.Location
	options        []string
	optionContribs []OptionContributor
	searchContribs []SearchPathContributor
	debug          backend.DebugInfo
	mu             sync.Mutex
}

// New creates a Fresh session. Without WithResolver it uses discovery with
// the built-in WAT compiler as the default.
func New(opts ...Option) *Session {
	s := &Session{
		state:    StateFresh,
		resolver: backend.Resolver{Default: wat.New()},
		logger:   Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// configure runs fn under the lock if the session is still Fresh.
func (s *Session) configure(op string, fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateFresh {
		return errors.IllegalState(errors.PhaseConfigure, op+": session is "+string(s.state))
	}
	fn()
	return nil
}

// SetDebugInfo sets the debug information carried by artifacts.
func (s *Session) SetDebugInfo(d backend.DebugInfo) error {
	return s.configure("SetDebugInfo", func() { s.debug = d })
}

// AddSearchPath appends a search location.
func (s *Session) AddSearchPath(loc store.Location) error {
	if loc.Name == "" || loc.FS == nil {
		return errors.InvalidInput(errors.PhaseConfigure, "search path needs a name and a filesystem")
	}
	return s.configure("AddSearchPath", func() { s.searchPaths = append(s.searchPaths, loc) })
}

// AddSearchDir appends a host directory as a search location. The
// directory is only read.
func (s *Session) AddSearchDir(dir string) error {
	return s.AddSearchPath(store.Location{Name: dir, FS: os.DirFS(dir)})
}

// AddOptions appends passthrough compiler options. They follow every
// option the session derives itself.
func (s *Session) AddOptions(opts ...string) error {
	return s.configure("AddOptions", func() { s.options = append(s.options, opts...) })
}

// SetParent sets the context that loaded units link against. Its modules
// are announced to the compiler as -extern tokens.
func (s *Session) SetParent(p scope.Context) error {
	return s.configure("SetParent", func() { s.parent = p })
}

// SetErrorHandler routes error diagnostics to h. A non-nil return from h
// fails the session; returning nil lets compilation continue.
func (s *Session) SetErrorHandler(h diag.ErrorHandler) error {
	return s.configure("SetErrorHandler", func() { s.onError = h })
}

// SetWarningHandler routes warning diagnostics to h. Without one, warnings
// are dropped.
func (s *Session) SetWarningHandler(h diag.WarningHandler) error {
	return s.configure("SetWarningHandler", func() { s.onWarning = h })
}

// AddOptionContributor registers a source of extra option tokens.
func (s *Session) AddOptionContributor(c OptionContributor) error {
	return s.configure("AddOptionContributor", func() { s.optionContribs = append(s.optionContribs, c) })
}

// AddSearchPathContributor registers a source of extra search locations.
func (s *Session) AddSearchPathContributor(c SearchPathContributor) error {
	return s.configure("AddSearchPathContributor", func() { s.searchContribs = append(s.searchContribs, c) })
}

// SetResolver replaces the backend resolver.
func (s *Session) SetResolver(r backend.Resolver) error {
	return s.configure("SetResolver", func() { s.resolver = r })
}

// Cook compiles text as a unit called name. name may be empty.
func (s *Session) Cook(ctx context.Context, name, text string) error {
	if err := s.begin(); err != nil {
		return err
	}
	return s.cook(ctx, source.New(name, text))
}

// CookReader compiles the text read from r. A read failure fails the
// session before any backend is consulted.
func (s *Session) CookReader(ctx context.Context, name string, r io.Reader) error {
	if err := s.begin(); err != nil {
		return err
	}
	unit, err := source.Read(name, r)
	if err != nil {
		return s.fail(err)
	}
	return s.cook(ctx, unit)
}

func (s *Session) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateFresh {
		return errors.IllegalState(errors.PhaseCompile, "cook: session is "+string(s.state))
	}
	s.state = StateCooking
	s.logger.Debug("session cooking")
	return nil
}

// cook runs in state Cooking. Configuration is frozen, so fields are read
// without the lock.
func (s *Session) cook(ctx context.Context, unit *source.Unit) error {
	s.unit = unit

	b, ok := s.resolver.Resolve()
	if !ok {
		return s.fail(errors.BackendUnavailable())
	}
	s.logger.Debug("backend selected", zap.String("backend", b.Name()), zap.Stringer("unit", unit))

	st := store.New(store.WithLogger(s.logger))
	for _, loc := range s.locations() {
		if err := st.AddLocation(loc); err != nil {
			return s.fail(err)
		}
	}

	outcome := &diag.Outcome{}
	bopts := []diag.BridgeOption{diag.WithLogger(s.logger)}
	if s.onError != nil {
		bopts = append(bopts, diag.WithErrorHandler(s.onError))
	}
	if s.onWarning != nil {
		bopts = append(bopts, diag.WithWarningHandler(s.onWarning))
	}
	s.outcome = outcome

	task := &backend.Task{
		Unit:     unit,
		Options:  s.tokens(st),
		Listener: diag.NewBridge(outcome, bopts...),
		Files:    st,
	}
	s.logger.Debug("compiling", zap.Strings("options", task.Options))

	ok, err := compile(ctx, b, task)
	switch {
	case err != nil:
		var e *errors.Error
		if !errors.As(err, &e) {
			err = errors.Wrap(errors.PhaseCompile, errors.KindCompile, err, "backend "+b.Name()+" failed")
		}
		return s.fail(err)
	case outcome.Failed():
		return s.fail(outcome.Failure())
	case !ok:
		return s.fail(errors.Compile("compilation failed", nil))
	}

	lopts := []loader.Option{loader.WithSearch(st), loader.WithLogger(s.logger)}
	if s.parent != nil {
		lopts = append(lopts, loader.WithParent(s.parent))
	}
	l := loader.New(ctx, st.Claim(), lopts...)

	s.mu.Lock()
	s.loader = l
	s.state = StateCooked
	s.mu.Unlock()
	s.logger.Debug("session cooked", zap.Strings("artifacts", l.Artifacts()))
	return nil
}

// compile runs the backend and turns a panic into a compile error.
func compile(ctx context.Context, b backend.Backend, task *backend.Task) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			err = errors.New(errors.PhaseCompile, errors.KindCompile).
				Value(r).
				Detailf("backend %s panicked: %v", b.Name(), r).
				Build()
		}
	}()
	return b.Compile(ctx, task)
}

func (s *Session) fail(err error) error {
	s.mu.Lock()
	s.state = StateFailed
	s.mu.Unlock()
	s.logger.Debug("session failed", zap.Error(err))
	return err
}

// locations returns registered search paths followed by contributed ones.
func (s *Session) locations() []store.Location {
	locs := slices.Clone(s.searchPaths)
	for _, c := range s.searchContribs {
		locs = append(locs, c()...)
	}
	return locs
}

// tokens builds the option list: debug info, search paths, externs,
// contributed options, then passthrough options.
func (s *Session) tokens(st *store.Store) []string {
	opts := []string{s.debug.Token()}
	for _, name := range st.Locations() {
		opts = append(opts, backend.OptSearchPath, name)
	}
	if s.parent != nil {
		for _, m := range s.parent.Modules() {
			opts = append(opts, backend.OptExtern, m)
		}
	}
	for _, c := range s.optionContribs {
		opts = append(opts, c()...)
	}
	return append(opts, s.options...)
}

// Outcome returns what the diagnostic bridge observed, or nil before Cook
// reached the backend.
func (s *Session) Outcome() *diag.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.Done() {
		return nil
	}
	return s.outcome
}

// Unit returns the compiled unit, or nil before Cook.
func (s *Session) Unit() *source.Unit {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.Done() {
		return nil
	}
	return s.unit
}

// Loader returns the loader over the cooked artifacts. The caller owns it
// and should Close it.
func (s *Session) Loader() (*loader.Loader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateCooked {
		return nil, errors.IllegalState(errors.PhaseLoad, "loader: session is "+string(s.state))
	}
	return s.loader, nil
}

// Resolve resolves name through the session's loader.
func (s *Session) Resolve(ctx context.Context, name string) (*loader.Unit, error) {
	l, err := s.Loader()
	if err != nil {
		return nil, err
	}
	return l.Resolve(ctx, name)
}
