package backend

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Environment variables consulted during resolution.
const (
	EnvBackend       = "WATCOOK_BACKEND"
	EnvSkipDiscovery = "WATCOOK_SKIP_DISCOVERY"
)

// Provider makes a backend available for discovery.
type Provider interface {
	Name() string
	// Open returns a ready backend or an error when the backend cannot run
	// in this environment.
	Open() (Backend, error)
}

type provider struct {
	name string
	open func() (Backend, error)
}

func (p provider) Name() string           { return p.name }
func (p provider) Open() (Backend, error) { return p.open() }

// NewProvider adapts an open function into a Provider.
func NewProvider(name string, open func() (Backend, error)) Provider {
	return provider{name: name, open: open}
}

var (
	registryMu sync.Mutex
	providers  = make(map[string]Provider)
	discovered bool
	cached     Backend
	discovery  singleflight.Group
)

// Register makes a provider available to Discover. Registering the same
// name twice panics.
func Register(p Provider) {
	if p == nil {
		panic("backend: Register provider is nil")
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := providers[p.Name()]; dup {
		panic("backend: Register called twice for provider " + p.Name())
	}
	providers[p.Name()] = p
}

// Providers returns the registered provider names, sorted.
func Providers() []string {
	registryMu.Lock()
	defer registryMu.Unlock()
	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Discover returns the process-wide discovered backend. The first call
// probes providers; later calls return the cached result.
func Discover() (Backend, bool) {
	registryMu.Lock()
	if discovered {
		b := cached
		registryMu.Unlock()
		return b, b != nil
	}
	registryMu.Unlock()

	v, _, _ := discovery.Do("discover", func() (any, error) {
		registryMu.Lock()
		if discovered {
			b := cached
			registryMu.Unlock()
			return b, nil
		}
		candidates := make([]Provider, 0, len(providers))
		for _, p := range providers {
			candidates = append(candidates, p)
		}
		registryMu.Unlock()

		slices.SortFunc(candidates, func(a, b Provider) int {
			return strings.Compare(a.Name(), b.Name())
		})
		b := probe(candidates, os.Getenv(EnvBackend))

		registryMu.Lock()
		cached, discovered = b, true
		registryMu.Unlock()
		return b, nil
	})
	b, _ := v.(Backend)
	return b, b != nil
}

// Rediscover drops the cached discovery result.
func Rediscover() {
	registryMu.Lock()
	cached, discovered = nil, false
	registryMu.Unlock()
}

func probe(candidates []Provider, want string) Backend {
	log := Logger()
	for _, p := range candidates {
		if want != "" && p.Name() != want {
			continue
		}
		b, err := open(p)
		if err != nil {
			log.Warn("skipping backend provider", zap.String("provider", p.Name()), zap.Error(err))
			continue
		}
		if b == nil {
			continue
		}
		log.Debug("discovered backend", zap.String("provider", p.Name()), zap.String("backend", b.Name()))
		return b
	}
	if want != "" {
		log.Warn("requested backend provider not available", zap.String("provider", want))
	}
	return nil
}

func open(p Provider) (b Backend, err error) {
	defer func() {
		if r := recover(); r != nil {
			b, err = nil, fmt.Errorf("provider panicked: %v", r)
		}
	}()
	return p.Open()
}

// skipDiscoveryEnv reports whether WATCOOK_SKIP_DISCOVERY is set to a true
// value.
func skipDiscoveryEnv() bool {
	skip, err := strconv.ParseBool(os.Getenv(EnvSkipDiscovery))
	return err == nil && skip
}
