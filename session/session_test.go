package session

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"testing/iotest"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap/zaptest"

	"github.com/wippyai/wasm-cook/backend"
	"github.com/wippyai/wasm-cook/diag"
	"github.com/wippyai/wasm-cook/errors"
	"github.com/wippyai/wasm-cook/scope"
	"github.com/wippyai/wasm-cook/store"
)

const calc = `(module $calc
  (func (export "add") (param i32 i32) (result i32)
    (i32.add (local.get 0) (local.get 1))))`

func newSession(t *testing.T, opts ...Option) *Session {
	t.Helper()
	s := New(append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)...)
	t.Cleanup(func() {
		if l, err := s.Loader(); err == nil {
			_ = l.Close(context.Background())
		}
	})
	return s
}

// fakeBackend records the task it was given.
type fakeBackend struct {
	task   *backend.Task
	panic  any
	report []diag.Diagnostic
	ok     bool
	err    error
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Compile(_ context.Context, t *backend.Task) (bool, error) {
	f.task = t
	if f.panic != nil {
		panic(f.panic)
	}
	for _, d := range f.report {
		t.Report(d)
	}
	return f.ok, f.err
}

func TestCook_ResolveAndCall(t *testing.T) {
	ctx := context.Background()
	s := newSession(t)
	assert.Equal(t, StateFresh, s.State())

	require.NoError(t, s.Cook(ctx, "calc.wat", calc))
	assert.Equal(t, StateCooked, s.State())
	assert.Equal(t, "memory:///calc.wat", s.Unit().Identity())

	u, err := s.Resolve(ctx, "calc")
	require.NoError(t, err)
	res, err := u.Call(ctx, "add", 40, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint64{42}, res)
}

func TestCook_SyntaxError(t *testing.T) {
	ctx := context.Background()
	s := newSession(t)

	err := s.Cook(ctx, "bad.wat", "(module\n  (func (result i32)\n    i32.frob))")
	require.Error(t, err)
	assert.Equal(t, StateFailed, s.State())
	assert.ErrorIs(t, err, errors.ErrCompile)

	var e *errors.Error
	require.True(t, errors.As(err, &e))
	require.NotNil(t, e.Location)
	assert.Equal(t, "memory:///bad.wat", e.Location.File)
	assert.Equal(t, 3, e.Location.Line)
	assert.Contains(t, e.Detail, "i32.frob")
	assert.Contains(t, e.Detail, "(wat.unknown-instruction)")

	_, err = s.Loader()
	assert.ErrorIs(t, err, errors.ErrIllegalState)
}

func TestCook_ErrorHandler(t *testing.T) {
	ctx := context.Background()

	t.Run("collecting", func(t *testing.T) {
		var lines []int
		s := newSession(t, WithErrorHandler(func(_ string, loc *diag.Location) error {
			lines = append(lines, loc.Line)
			return nil
		}))
		err := s.Cook(ctx, "", "(module\n  (func i32.frob)\n  (func i32.frob))")
		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrCompile)
		assert.Equal(t, StateFailed, s.State())
		assert.Equal(t, []int{2, 3}, lines)
		assert.Equal(t, 2, s.Outcome().Errors())
	})

	t.Run("first failure wins", func(t *testing.T) {
		first := errors.InvalidInput(errors.PhaseCompile, "first")
		calls := 0
		s := newSession(t, WithErrorHandler(func(string, *diag.Location) error {
			calls++
			if calls == 1 {
				return first
			}
			return errors.InvalidInput(errors.PhaseCompile, "second")
		}))
		err := s.Cook(ctx, "", "(module\n  (func i32.frob)\n  (func i32.frob))")
		assert.Same(t, first, err)
		assert.Equal(t, 2, calls)
	})
}

func TestCook_WarningHandler(t *testing.T) {
	ctx := context.Background()
	src := `(module
  (func (export "id") (param i32) (result i32)
    get_local 0
    set_local 0
    local.get 0))`

	var got []string
	s := newSession(t, WithWarningHandler(func(msg string, loc *diag.Location) error {
		got = append(got, msg)
		return nil
	}))
	require.NoError(t, s.Cook(ctx, "", src))
	require.Len(t, got, 2)
	for _, msg := range got {
		assert.True(t, strings.HasSuffix(msg, "(wat.deprecated)"), msg)
	}
	assert.Equal(t, 2, s.Outcome().Warnings())

	t.Run("without handler", func(t *testing.T) {
		s := newSession(t)
		require.NoError(t, s.Cook(ctx, "", src))
		assert.Equal(t, 2, s.Outcome().Warnings())
	})

	t.Run("handler failure", func(t *testing.T) {
		s := newSession(t, WithWarningHandler(func(msg string, loc *diag.Location) error {
			return errors.Compile("no warnings allowed: "+msg, loc)
		}))
		err := s.Cook(ctx, "", src)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no warnings allowed")
		assert.Equal(t, StateFailed, s.State())
	})
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	s := newSession(t)
	require.NoError(t, s.Cook(ctx, "", calc))

	a, err := s.Resolve(ctx, "calc")
	require.NoError(t, err)
	b, err := s.Resolve(ctx, "calc")
	require.NoError(t, err)
	assert.Same(t, a, b)

	_, err = s.Resolve(ctx, "Calc")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrResolution)
}

const app = `(module $app
  (import "lib" "seven" (func $seven (result i32)))
  (func (export "run") (result i32) (i32.mul (call $seven) (i32.const 6))))`

func libWasm(t *testing.T) []byte {
	t.Helper()
	s := newSession(t)
	require.NoError(t, s.Cook(context.Background(), "lib.wat",
		`(func (export "seven") (result i32) (i32.const 7))`))
	l, err := s.Loader()
	require.NoError(t, err)
	bin, ok := l.Bytes("lib")
	require.True(t, ok)
	return bin
}

func TestCook_SearchPath(t *testing.T) {
	ctx := context.Background()
	deps := store.Location{Name: "deps", FS: fstest.MapFS{"lib.wasm": {Data: libWasm(t)}}}

	t.Run("missing", func(t *testing.T) {
		s := newSession(t)
		err := s.Cook(ctx, "", app)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unresolved import module "lib"`)
	})

	t.Run("option", func(t *testing.T) {
		s := newSession(t, WithSearchPath(deps))
		require.NoError(t, s.Cook(ctx, "", app))
		u, err := s.Resolve(ctx, "app")
		require.NoError(t, err)
		res, err := u.Call(ctx, "run")
		require.NoError(t, err)
		assert.Equal(t, []uint64{42}, res)
	})

	t.Run("contributor", func(t *testing.T) {
		s := newSession(t)
		require.NoError(t, s.AddSearchPathContributor(func() []store.Location {
			return []store.Location{deps}
		}))
		require.NoError(t, s.Cook(ctx, "", app))
		_, err := s.Resolve(ctx, "app")
		require.NoError(t, err)
	})

	t.Run("dir", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "lib.wasm"), libWasm(t), 0o644))
		s := newSession(t)
		require.NoError(t, s.AddSearchDir(dir))
		require.NoError(t, s.Cook(ctx, "", app))
		_, err := s.Resolve(ctx, "app")
		require.NoError(t, err)
	})
}

func TestCook_IllegalState(t *testing.T) {
	ctx := context.Background()
	s := newSession(t)

	_, err := s.Loader()
	assert.ErrorIs(t, err, errors.ErrIllegalState)
	_, err = s.Resolve(ctx, "calc")
	assert.ErrorIs(t, err, errors.ErrIllegalState)
	assert.Nil(t, s.Outcome())

	require.NoError(t, s.Cook(ctx, "", calc))
	err = s.Cook(ctx, "", calc)
	assert.ErrorIs(t, err, errors.ErrIllegalState)
	assert.Equal(t, StateCooked, s.State())

	setters := map[string]error{
		"SetDebugInfo":             s.SetDebugInfo(backend.DebugInfo{Lines: true}),
		"AddSearchPath":            s.AddSearchPath(store.Location{Name: "x", FS: fstest.MapFS{}}),
		"AddSearchDir":             s.AddSearchDir(t.TempDir()),
		"AddOptions":               s.AddOptions("-Werror"),
		"SetParent":                s.SetParent(nil),
		"SetErrorHandler":          s.SetErrorHandler(nil),
		"SetWarningHandler":        s.SetWarningHandler(nil),
		"AddOptionContributor":     s.AddOptionContributor(func() []string { return nil }),
		"AddSearchPathContributor": s.AddSearchPathContributor(func() []store.Location { return nil }),
		"SetResolver":              s.SetResolver(backend.Resolver{}),
	}
	for name, err := range setters {
		assert.ErrorIs(t, err, errors.ErrIllegalState, name)
	}

	failed := newSession(t)
	require.Error(t, failed.Cook(ctx, "", "(module"))
	assert.ErrorIs(t, failed.Cook(ctx, "", calc), errors.ErrIllegalState)
	assert.ErrorIs(t, failed.AddOptions("-nowarn"), errors.ErrIllegalState)
}

func TestCook_NoDiskWrites(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lib.wasm"), libWasm(t), 0o644))

	list := func() []string {
		var names []string
		require.NoError(t, fs.WalkDir(os.DirFS(dir), ".", func(p string, _ fs.DirEntry, err error) error {
			names = append(names, p)
			return err
		}))
		return names
	}
	before := list()

	s := newSession(t, WithSearchDir(dir), WithDebugInfo(backend.DebugInfo{Source: true, Lines: true, Vars: true}))
	require.NoError(t, s.Cook(ctx, "app.wat", app))
	_, err := s.Resolve(ctx, "app")
	require.NoError(t, err)

	if diff := cmp.Diff(before, list()); diff != "" {
		t.Errorf("search dir changed (-before +after):\n%s", diff)
	}
}

func TestCook_Concurrent(t *testing.T) {
	ctx := context.Background()
	s := newSession(t)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = s.Cook(ctx, "", calc)
		}()
	}
	wg.Wait()

	var ok, illegal int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, errors.ErrIllegalState):
			illegal++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, illegal)
	assert.Equal(t, StateCooked, s.State())
}

func TestCook_Options(t *testing.T) {
	ctx := context.Background()
	host := scope.NewHost(ctx)
	t.Cleanup(func() { _ = host.Close(ctx) })
	require.NoError(t, host.AddBuiltin(scope.BuiltinConsole, io.Discard))

	fake := &fakeBackend{ok: true}
	s := newSession(t,
		WithResolver(backend.Resolver{Default: fake, SkipDiscovery: true}),
		WithDebugInfo(backend.DebugInfo{Lines: true, Vars: true}),
		WithSearchPath(store.Location{Name: "a", FS: fstest.MapFS{}}),
		WithOptions("-Werror"),
		WithParent(host),
	)
	require.NoError(t, s.AddSearchPath(store.Location{Name: "b", FS: fstest.MapFS{}}))
	require.NoError(t, s.AddOptions("-nowarn"))
	require.NoError(t, s.AddOptionContributor(func() []string { return []string{"-Xno-validate"} }))
	require.NoError(t, s.AddSearchPathContributor(func() []store.Location {
		return []store.Location{{Name: "c", FS: fstest.MapFS{}}}
	}))

	require.NoError(t, s.Cook(ctx, "", calc))
	want := []string{
		"-g:lines,vars",
		"-L", "a", "-L", "b", "-L", "c",
		"-extern", "console",
		"-Xno-validate",
		"-Werror", "-nowarn",
	}
	if diff := cmp.Diff(want, fake.task.Options); diff != "" {
		t.Errorf("options (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"a", "b", "c"}, fake.task.Files.Locations())

	l, err := s.Loader()
	require.NoError(t, err)
	assert.Same(t, host.Runtime(), l.Runtime())
}

func TestCook_VersionedExterns(t *testing.T) {
	ctx := context.Background()
	host := scope.NewHost(ctx)
	t.Cleanup(func() { _ = host.Close(ctx) })
	seven := func(_ context.Context, _ api.Module, stack []uint64) { stack[0] = 7 }
	require.NoError(t, host.Define("env@1.2.0", "seven", seven, nil, []api.ValueType{api.ValueTypeI32}))

	unit := func(version string) string {
		return `(module $app
  (import "env@` + version + `" "seven" (func $seven (result i32)))
  (func (export "run") (result i32) (call $seven)))`
	}

	t.Run("compatible", func(t *testing.T) {
		s := newSession(t, WithParent(host))
		require.NoError(t, s.Cook(ctx, "", unit("1.1.0")))
		u, err := s.Resolve(ctx, "app")
		require.NoError(t, err)
		res, err := u.Call(ctx, "run")
		require.NoError(t, err)
		assert.Equal(t, []uint64{7}, res)
	})

	t.Run("incompatible", func(t *testing.T) {
		s := newSession(t, WithParent(host))
		err := s.Cook(ctx, "", unit("2.0.0"))
		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrCompile)
		assert.Contains(t, err.Error(), `unresolved import module "env@2.0.0"`)
		assert.Equal(t, StateFailed, s.State())
	})
}

func TestCook_BackendOutcomes(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name    string
		fake    *fakeBackend
		wantErr error
	}{
		{
			name:    "reports false",
			fake:    &fakeBackend{},
			wantErr: errors.ErrCompile,
		},
		{
			name:    "breaks",
			fake:    &fakeBackend{err: iotest.ErrTimeout},
			wantErr: iotest.ErrTimeout,
		},
		{
			name: "error diagnostic despite success",
			fake: &fakeBackend{ok: true, report: []diag.Diagnostic{
				diag.Error("x.bad", nil, "bad"),
			}},
			wantErr: errors.ErrCompile,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newSession(t, WithResolver(backend.Resolver{Default: tc.fake, SkipDiscovery: true}))
			err := s.Cook(ctx, "", calc)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.wantErr)
			assert.Equal(t, StateFailed, s.State())
		})
	}

	t.Run("notes are ignored", func(t *testing.T) {
		fake := &fakeBackend{ok: true, report: []diag.Diagnostic{diag.Note("x.note", nil, "fyi")}}
		s := newSession(t, WithResolver(backend.Resolver{Default: fake, SkipDiscovery: true}))
		require.NoError(t, s.Cook(ctx, "", calc))
		assert.Len(t, s.Outcome().Diagnostics(), 1)
	})
}

func TestCook_BackendPanics(t *testing.T) {
	ctx := context.Background()
	fake := &fakeBackend{panic: "boom"}
	s := newSession(t, WithResolver(backend.Resolver{Default: fake, SkipDiscovery: true}))

	var err error
	require.NotPanics(t, func() { err = s.Cook(ctx, "", calc) })
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrCompile)
	assert.Contains(t, err.Error(), "backend fake panicked: boom")
	assert.Equal(t, StateFailed, s.State())
	assert.NotNil(t, s.Outcome())

	err = s.Cook(ctx, "", calc)
	assert.ErrorIs(t, err, errors.ErrIllegalState)
	assert.Equal(t, StateFailed, s.State())
}

func TestCook_BackendUnavailable(t *testing.T) {
	s := newSession(t, WithResolver(backend.Resolver{SkipDiscovery: true}))
	err := s.Cook(context.Background(), "", calc)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrBackendUnavailable)
	assert.Equal(t, "no compiler backend available", err.(*errors.Error).Detail)
	assert.Equal(t, StateFailed, s.State())
}

func TestCookReader(t *testing.T) {
	ctx := context.Background()

	s := newSession(t)
	require.NoError(t, s.CookReader(ctx, "calc.wat", strings.NewReader(calc)))
	_, err := s.Resolve(ctx, "calc")
	require.NoError(t, err)

	fake := &fakeBackend{ok: true}
	s = newSession(t, WithResolver(backend.Resolver{Default: fake, SkipDiscovery: true}))
	err = s.CookReader(ctx, "x.wat", iotest.ErrReader(iotest.ErrTimeout))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrIO)
	assert.ErrorIs(t, err, iotest.ErrTimeout)
	assert.Nil(t, fake.task, "backend must not run")
	assert.Equal(t, StateFailed, s.State())
}

func TestCook_ParentChain(t *testing.T) {
	ctx := context.Background()

	first := newSession(t)
	require.NoError(t, first.Cook(ctx, "", `(module $counter
  (global $n (mut i32) (i32.const 0))
  (func (export "tick") (result i32)
    (global.set $n (i32.add (global.get $n) (i32.const 1)))
    (global.get $n)))`))
	parent, err := first.Loader()
	require.NoError(t, err)

	second := newSession(t, WithParent(parent))
	require.NoError(t, second.Cook(ctx, "", `(module $user
  (import "counter" "tick" (func $tick (result i32)))
  (func (export "run") (result i32) (drop (call $tick)) (call $tick)))`))

	u, err := second.Resolve(ctx, "user")
	require.NoError(t, err)
	res, err := u.Call(ctx, "run")
	require.NoError(t, err)
	assert.Equal(t, []uint64{2}, res)

	l, err := second.Loader()
	require.NoError(t, err)
	assert.Equal(t, []string{"user", "counter"}, l.Modules())
	assert.Same(t, parent.Runtime(), l.Runtime())
}
