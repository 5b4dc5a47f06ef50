package backend

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/wippyai/wasm-cook/diag"
	cookerrors "github.com/wippyai/wasm-cook/errors"
)

type stubBackend struct{ name string }

func (s *stubBackend) Name() string { return s.name }

func (s *stubBackend) Compile(context.Context, *Task) (bool, error) { return true, nil }

// withRegistry swaps in an empty registry for the duration of the test.
func withRegistry(t *testing.T, ps ...Provider) {
	t.Helper()
	registryMu.Lock()
	saved := providers
	providers = make(map[string]Provider)
	cached, discovered = nil, false
	registryMu.Unlock()

	SetLogger(zaptest.NewLogger(t))
	for _, p := range ps {
		Register(p)
	}
	t.Cleanup(func() {
		registryMu.Lock()
		providers = saved
		cached, discovered = nil, false
		registryMu.Unlock()
		SetLogger(zap.NewNop())
	})
}

func stubProvider(name string, opens *atomic.Int32) Provider {
	return NewProvider(name, func() (Backend, error) {
		if opens != nil {
			opens.Add(1)
		}
		return &stubBackend{name: name}, nil
	})
}

func TestDiscover_Empty(t *testing.T) {
	withRegistry(t)
	b, ok := Discover()
	assert.False(t, ok)
	assert.Nil(t, b)
}

func TestDiscover_FirstByName(t *testing.T) {
	withRegistry(t, stubProvider("zeta", nil), stubProvider("alpha", nil))
	b, ok := Discover()
	require.True(t, ok)
	assert.Equal(t, "alpha", b.Name())
	assert.Equal(t, []string{"alpha", "zeta"}, Providers())
}

func TestDiscover_SkipsBrokenProviders(t *testing.T) {
	withRegistry(t,
		NewProvider("a-fails", func() (Backend, error) { return nil, errors.New("no toolchain") }),
		NewProvider("b-panics", func() (Backend, error) { panic("boom") }),
		NewProvider("c-nil", func() (Backend, error) { return nil, nil }),
		stubProvider("d-works", nil),
	)
	b, ok := Discover()
	require.True(t, ok)
	assert.Equal(t, "d-works", b.Name())
}

func TestDiscover_EnvSelectsProvider(t *testing.T) {
	withRegistry(t, stubProvider("alpha", nil), stubProvider("beta", nil))
	t.Setenv(EnvBackend, "beta")
	b, ok := Discover()
	require.True(t, ok)
	assert.Equal(t, "beta", b.Name())
}

func TestDiscover_EnvUnknownProvider(t *testing.T) {
	withRegistry(t, stubProvider("alpha", nil))
	t.Setenv(EnvBackend, "missing")
	_, ok := Discover()
	assert.False(t, ok)
}

func TestDiscover_CachedAcrossCalls(t *testing.T) {
	var opens atomic.Int32
	withRegistry(t, stubProvider("only", &opens))

	var wg sync.WaitGroup
	for n := 0; n < 16; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b, ok := Discover()
			assert.True(t, ok)
			assert.Equal(t, "only", b.Name())
		}()
	}
	wg.Wait()

	first, _ := Discover()
	second, _ := Discover()
	assert.Same(t, first, second)
	assert.Equal(t, int32(1), opens.Load())

	Rediscover()
	_, ok := Discover()
	assert.True(t, ok)
	assert.Equal(t, int32(2), opens.Load())
}

func TestRegister_Panics(t *testing.T) {
	withRegistry(t, stubProvider("dup", nil))
	assert.Panics(t, func() { Register(stubProvider("dup", nil)) })
	assert.Panics(t, func() { Register(nil) })
}

func TestResolver(t *testing.T) {
	def := &stubBackend{name: "default"}

	tests := []struct {
		name      string
		providers []Provider
		resolver  Resolver
		env       string
		want      string
		ok        bool
	}{
		{name: "discovery first", providers: []Provider{stubProvider("found", nil)}, resolver: Resolver{Default: def}, want: "found", ok: true},
		{name: "fallback to default", resolver: Resolver{Default: def}, want: "default", ok: true},
		{name: "prefer default", providers: []Provider{stubProvider("found", nil)}, resolver: Resolver{Default: def, PreferDefault: true}, want: "default", ok: true},
		{name: "prefer default without default", providers: []Provider{stubProvider("found", nil)}, resolver: Resolver{PreferDefault: true}, want: "found", ok: true},
		{name: "skip discovery", providers: []Provider{stubProvider("found", nil)}, resolver: Resolver{Default: def, SkipDiscovery: true}, want: "default", ok: true},
		{name: "skip discovery via env", providers: []Provider{stubProvider("found", nil)}, resolver: Resolver{Default: def}, env: "true", want: "default", ok: true},
		{name: "env not truthy", providers: []Provider{stubProvider("found", nil)}, resolver: Resolver{Default: def}, env: "no", want: "found", ok: true},
		{name: "nothing available", resolver: Resolver{}, ok: false},
		{name: "skip with no default", providers: []Provider{stubProvider("found", nil)}, resolver: Resolver{SkipDiscovery: true}, ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withRegistry(t, tt.providers...)
			t.Setenv(EnvSkipDiscovery, tt.env)

			b, ok := tt.resolver.Resolve()
			assert.Equal(t, tt.ok, ok)
			if !tt.ok {
				assert.Nil(t, b)
				return
			}
			require.NotNil(t, b)
			assert.Equal(t, tt.want, b.Name())
		})
	}
}

func TestDebugInfo_Token(t *testing.T) {
	tests := []struct {
		info DebugInfo
		want string
	}{
		{DebugInfo{}, "-g:none"},
		{DebugInfo{Lines: true}, "-g:lines"},
		{DebugInfo{Vars: true}, "-g:vars"},
		{DebugInfo{Lines: true, Vars: true}, "-g:lines,vars"},
		{DebugInfo{Source: true}, "-g:source"},
		{DebugInfo{Source: true, Lines: true}, "-g:source,lines"},
		{DebugInfo{Source: true, Vars: true}, "-g:source,vars"},
		{DebugInfo{Source: true, Lines: true, Vars: true}, "-g:source,lines,vars"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.info.Token())
			parsed, err := ParseDebugInfo(tt.want)
			require.NoError(t, err)
			assert.Equal(t, tt.info, parsed)
		})
	}
}

func TestParseDebugInfo_Invalid(t *testing.T) {
	for _, token := range []string{"-g", "-g:", "-g:all", "-g:lines,bogus", "lines"} {
		_, err := ParseDebugInfo(token)
		assert.Error(t, err, token)
		assert.True(t, cookerrors.Is(err, &cookerrors.Error{Kind: cookerrors.KindInvalidInput}), token)
	}
}

func TestTask_Report(t *testing.T) {
	var got []diag.Diagnostic
	task := &Task{Listener: diag.ListenerFunc(func(d diag.Diagnostic) { got = append(got, d) })}
	task.Report(diag.Warning("", nil, "careful"))
	require.Len(t, got, 1)
	assert.Equal(t, "careful", got[0].Message)

	(&Task{}).Report(diag.Note("", nil, "dropped"))
}
