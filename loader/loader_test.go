package loader

import (
	"bytes"
	"context"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/wippyai/wasm-cook/backend"
	"github.com/wippyai/wasm-cook/backend/wat"
	"github.com/wippyai/wasm-cook/diag"
	"github.com/wippyai/wasm-cook/errors"
	"github.com/wippyai/wasm-cook/scope"
	"github.com/wippyai/wasm-cook/source"
	"github.com/wippyai/wasm-cook/store"
)

// build compiles src without checking imports and returns the artifacts.
func build(t *testing.T, name, src string, opts ...string) map[string][]byte {
	t.Helper()
	st := store.New()
	ok, err := wat.New().Compile(context.Background(), &backend.Task{
		Unit:    source.New(name, src),
		Options: append([]string{backend.OptAllowUnresolved, backend.OptNoWarn}, opts...),
		Listener: diag.ListenerFunc(func(d diag.Diagnostic) {
			if d.Severity == diag.SevError {
				t.Errorf("compile: %s", d)
			}
		}),
		Files: st,
	})
	require.NoError(t, err)
	require.True(t, ok)
	return st.Claim()
}

func newLoader(t *testing.T, blobs map[string][]byte, opts ...Option) *Loader {
	t.Helper()
	ctx := context.Background()
	l := New(ctx, blobs, append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)...)
	t.Cleanup(func() { _ = l.Close(ctx) })
	return l
}

const adder = `(module $calc
  (func (export "add") (param $a i32) (param $b i32) (result i32)
    (i32.add (local.get $a) (local.get $b)))
  (func (export "boom") unreachable))`

func TestResolve_Call(t *testing.T) {
	ctx := context.Background()
	l := newLoader(t, build(t, "", adder))
	assert.Equal(t, []string{"calc"}, l.Artifacts())

	u, err := l.Resolve(ctx, "calc")
	require.NoError(t, err)
	assert.Equal(t, "calc", u.Name())

	res, err := u.Call(ctx, "add", 2, 3)
	require.NoError(t, err)
	assert.Equal(t, []uint64{5}, res)

	again, err := l.Resolve(ctx, "calc")
	require.NoError(t, err)
	assert.Same(t, u, again)
}

func TestResolve_UnknownName(t *testing.T) {
	l := newLoader(t, build(t, "", adder))
	_, err := l.Resolve(context.Background(), "nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrResolution)

	var e *errors.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, []string{"nope"}, e.Path)
}

func TestUnit_Errors(t *testing.T) {
	ctx := context.Background()
	l := newLoader(t, build(t, "", adder))
	u, err := l.Resolve(ctx, "calc")
	require.NoError(t, err)

	_, err = u.Function("missing")
	assert.ErrorIs(t, err, errors.ErrResolution)

	_, err = u.Call(ctx, "boom")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreachable")
}

func TestUnit_Exports(t *testing.T) {
	ctx := context.Background()

	l := newLoader(t, build(t, "", adder))
	u, err := l.Resolve(ctx, "calc")
	require.NoError(t, err)
	exports := u.Exports()
	require.Len(t, exports, 2)
	assert.Equal(t, "add(i32, i32) -> i32", exports[0].Signature())
	assert.Equal(t, "boom()", exports[1].Signature())

	l = newLoader(t, build(t, "", adder, "-g:vars"))
	u, err = l.Resolve(ctx, "calc")
	require.NoError(t, err)
	assert.Equal(t, "add(a: i32, b: i32) -> i32", u.Exports()[0].Signature())
}

const siblings = `(module $lib
  (func (export "double") (param i32) (result i32)
    (i32.mul (local.get 0) (i32.const 2))))
(module $app
  (import "lib" "double" (func $double (param i32) (result i32)))
  (func (export "run") (result i32) (call $double (i32.const 21))))`

func TestResolve_Siblings(t *testing.T) {
	ctx := context.Background()
	l := newLoader(t, build(t, "", siblings))

	app, err := l.Resolve(ctx, "app")
	require.NoError(t, err)
	res, err := app.Call(ctx, "run")
	require.NoError(t, err)
	assert.Equal(t, []uint64{42}, res)

	units := l.Units()
	require.Len(t, units, 2)
	assert.Equal(t, "lib", units[0].Name())
	assert.Equal(t, "app", units[1].Name())

	lib, err := l.Resolve(ctx, "lib")
	require.NoError(t, err)
	assert.Same(t, units[0], lib)
}

func TestResolve_Cycle(t *testing.T) {
	l := newLoader(t, build(t, "", `(module $a
  (import "b" "g" (func))
  (func (export "f")))
(module $b
  (import "a" "f" (func))
  (func (export "g")))`))

	_, err := l.Resolve(context.Background(), "a")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrResolution)
	assert.Contains(t, err.Error(), "import cycle")
	assert.Empty(t, l.Units())
}

func TestResolve_Unresolved(t *testing.T) {
	l := newLoader(t, build(t, "", `(module $app
  (import "env" "log" (func (param i32)))
  (import "env" "exit" (func)))`))

	_, err := l.Resolve(context.Background(), "app")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrResolution)

	var unresolved *errors.UnresolvedImportsError
	require.True(t, errors.As(err, &unresolved))
	assert.Equal(t, []errors.UnresolvedImport{
		{Module: "env", Name: "log"},
		{Module: "env", Name: "exit"},
	}, unresolved.Imports)
}

func TestResolve_HostParent(t *testing.T) {
	ctx := context.Background()
	var out bytes.Buffer
	host := scope.NewHost(ctx)
	t.Cleanup(func() { _ = host.Close(ctx) })
	require.NoError(t, host.AddBuiltin(scope.BuiltinConsole, &out))

	l := newLoader(t, build(t, "hello.wat", `(module
  (import "console" "log_i32" (func $log (param i32)))
  (import "console" "print" (func $print (param i32 i32)))
  (memory 1)
  (data (i32.const 16) "hi\n")
  (func (export "main")
    (call $log (i32.const 7))
    (call $print (i32.const 16) (i32.const 3))))`), WithParent(host))
	assert.Same(t, host.Runtime(), l.Runtime())

	u, err := l.Resolve(ctx, "hello")
	require.NoError(t, err)
	_, err = u.Call(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, "7\nhi\n", out.String())

	assert.Equal(t, []string{"hello", "console"}, l.Modules())
}

func TestResolve_Search(t *testing.T) {
	ctx := context.Background()
	lib := build(t, "lib.wat", `(func (export "seven") (result i32) (i32.const 7))`)

	st := store.New(store.WithLocations(store.Location{
		Name: "deps",
		FS:   fstest.MapFS{"lib.wasm": {Data: lib["lib"]}},
	}))
	l := newLoader(t, build(t, "app.wat", `(module
  (import "lib" "seven" (func $seven (result i32)))
  (func (export "run") (result i32) (i32.add (call $seven) (call $seven))))`), WithSearch(st))

	u, err := l.Resolve(ctx, "app")
	require.NoError(t, err)
	res, err := u.Call(ctx, "run")
	require.NoError(t, err)
	assert.Equal(t, []uint64{14}, res)
	assert.Len(t, l.Units(), 2)
}

func TestResolve_SiblingBeatsSearch(t *testing.T) {
	ctx := context.Background()
	decoy := build(t, "lib.wat", `(func (export "double") (param i32) (result i32) (i32.const 0))`)
	st := store.New(store.WithLocations(store.Location{
		Name: "deps",
		FS:   fstest.MapFS{"lib.wasm": {Data: decoy["lib"]}},
	}))

	l := newLoader(t, build(t, "", siblings), WithSearch(st))
	u, err := l.Resolve(ctx, "app")
	require.NoError(t, err)
	res, err := u.Call(ctx, "run")
	require.NoError(t, err)
	assert.Equal(t, []uint64{42}, res)
}

func TestLoader_AsParent(t *testing.T) {
	ctx := context.Background()
	first := newLoader(t, build(t, "", `(module $lib
  (global $n (mut i32) (i32.const 0))
  (func (export "next") (result i32)
    (global.set $n (i32.add (global.get $n) (i32.const 1)))
    (global.get $n)))`))

	second := newLoader(t, build(t, "", `(module $app
  (import "lib@1.0.0" "next" (func $next (result i32)))
  (func (export "twice") (result i32) (drop (call $next)) (call $next)))`), WithParent(first))

	u, err := second.Resolve(ctx, "app")
	require.NoError(t, err)
	res, err := u.Call(ctx, "twice")
	require.NoError(t, err)
	assert.Equal(t, []uint64{2}, res)

	lib, err := first.Resolve(ctx, "lib")
	require.NoError(t, err)
	res, err = lib.Call(ctx, "next")
	require.NoError(t, err)
	assert.Equal(t, []uint64{3}, res, "state is shared with the child's import")

	assert.Equal(t, []string{"app", "lib"}, second.Modules())
}

func TestLoader_Close(t *testing.T) {
	ctx := context.Background()
	l := New(ctx, build(t, "", adder))
	_, err := l.Resolve(ctx, "calc")
	require.NoError(t, err)

	require.NoError(t, l.Close(ctx))
	require.NoError(t, l.Close(ctx))

	_, err = l.Resolve(ctx, "calc")
	assert.ErrorIs(t, err, errors.ErrIllegalState)
	_, _, err = l.Lookup(ctx, "calc")
	assert.ErrorIs(t, err, errors.ErrIllegalState)
}
