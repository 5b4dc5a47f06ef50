package backend

import (
	"go.uber.org/zap"
)

// Resolver chooses the backend for one session.
type Resolver struct {
	// Default is the environment default, used when discovery yields
	// nothing (or first when PreferDefault is set).
	Default Backend

	// SkipDiscovery bypasses the provider registry.
	SkipDiscovery bool

	// PreferDefault tries Default before discovery.
	PreferDefault bool
}

// Resolve returns the chosen backend, or false when none is available.
func (r Resolver) Resolve() (Backend, bool) {
	skip := r.SkipDiscovery || skipDiscoveryEnv()

	if r.PreferDefault && r.Default != nil {
		Logger().Debug("using default backend", zap.String("backend", r.Default.Name()))
		return r.Default, true
	}
	if !skip {
		if b, ok := Discover(); ok {
			return b, true
		}
	}
	if r.Default != nil {
		Logger().Debug("using default backend", zap.String("backend", r.Default.Name()))
		return r.Default, true
	}
	return nil, false
}
