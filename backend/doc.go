// Package backend defines the compiler backend contract and resolves which
// backend a session uses.
//
// A backend turns one source unit into zero or more binary artifacts. It
// writes artifacts through the FileManager it is handed, reports problems
// through a diag.Listener and returns whether compilation succeeded.
//
// Backends other than the built-in WAT compiler are made available the way
// database/sql drivers are: a package calls Register from its init function.
// Discover picks one provider per process and caches the choice:
//
//	backend.Register(backend.NewProvider("mine", openMine))
//
//	r := backend.Resolver{Default: wat.New()}
//	b, ok := r.Resolve()
//
// The WATCOOK_BACKEND environment variable selects a provider by name and
// WATCOOK_SKIP_DISCOVERY disables discovery altogether.
package backend
