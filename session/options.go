package session

import (
	"os"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-cook/backend"
	"github.com/wippyai/wasm-cook/diag"
	"github.com/wippyai/wasm-cook/scope"
	"github.com/wippyai/wasm-cook/store"
)

// OptionContributor returns option tokens to add to every compilation.
type OptionContributor func() []string

// SearchPathContributor returns search locations to add to every
// compilation. Each location yields a -L token and a store location.
type SearchPathContributor func() []store.Location

// Option configures a Session at construction.
type Option func(*Session)

// WithDebugInfo sets the debug information carried by artifacts.
func WithDebugInfo(d backend.DebugInfo) Option {
	return func(s *Session) { s.debug = d }
}

// WithSearchPath appends search locations.
func WithSearchPath(locs ...store.Location) Option {
	return func(s *Session) { s.searchPaths = append(s.searchPaths, locs...) }
}

// WithSearchDir appends a directory of the host filesystem as a search
// location named after the directory.
func WithSearchDir(dir string) Option {
	return WithSearchPath(store.Location{Name: dir, FS: os.DirFS(dir)})
}

// WithOptions appends passthrough compiler options.
func WithOptions(opts ...string) Option {
	return func(s *Session) { s.options = append(s.options, opts...) }
}

// WithParent sets the context that loaded units link against.
func WithParent(p scope.Context) Option {
	return func(s *Session) { s.parent = p }
}

// WithErrorHandler routes error diagnostics to h.
func WithErrorHandler(h diag.ErrorHandler) Option {
	return func(s *Session) { s.onError = h }
}

// WithWarningHandler routes warning diagnostics to h.
func WithWarningHandler(h diag.WarningHandler) Option {
	return func(s *Session) { s.onWarning = h }
}

// WithResolver replaces the backend resolver.
func WithResolver(r backend.Resolver) Option {
	return func(s *Session) { s.resolver = r }
}

// WithLogger sets the session logger. It is handed down to the bridge,
// store and loader.
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) { s.logger = l }
}
