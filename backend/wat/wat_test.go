package wat

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/wippyai/wasm-cook/backend"
	"github.com/wippyai/wasm-cook/diag"
	"github.com/wippyai/wasm-cook/internal/wasmbin"
	"github.com/wippyai/wasm-cook/source"
	"github.com/wippyai/wasm-cook/store"
)

type result struct {
	ok    bool
	diags []diag.Diagnostic
	store *store.Store
}

func (r result) messages() []string {
	out := make([]string, 0, len(r.diags))
	for _, d := range r.diags {
		out = append(out, d.Message)
	}
	return out
}

func (r result) severities() []diag.Severity {
	out := make([]diag.Severity, 0, len(r.diags))
	for _, d := range r.diags {
		out = append(out, d.Severity)
	}
	return out
}

func compileWith(t *testing.T, st *store.Store, name, text string, opts ...string) result {
	t.Helper()
	SetLogger(zaptest.NewLogger(t))
	t.Cleanup(func() { SetLogger(zap.NewNop()) })

	res := result{store: st}
	task := &backend.Task{
		Unit:    source.New(name, text),
		Options: opts,
		Listener: diag.ListenerFunc(func(d diag.Diagnostic) {
			res.diags = append(res.diags, d)
		}),
		Files: st,
	}
	ok, err := New().Compile(context.Background(), task)
	require.NoError(t, err)
	res.ok = ok
	return res
}

func compile(t *testing.T, name, text string, opts ...string) result {
	t.Helper()
	return compileWith(t, store.New(), name, text, opts...)
}

const adder = `(module
  (func (export "add") (param i32 i32) (result i32)
    (i32.add (local.get 0) (local.get 1))))`

func TestCompile_SingleModule(t *testing.T) {
	res := compile(t, "calc.wat", adder)
	require.True(t, res.ok, res.messages())
	assert.Empty(t, res.diags)
	assert.Equal(t, []string{"calc"}, res.store.Names())

	bin, _ := res.store.Bytes("calc")
	exports, err := wasmbin.Exports(bin)
	require.NoError(t, err)
	require.Len(t, exports, 1)
	assert.Equal(t, "add", exports[0].Name)
}

func TestCompile_ArtifactNames(t *testing.T) {
	tests := []struct {
		name string
		unit string
		src  string
		want []string
	}{
		{"anonymous unit", "", adder, []string{"main"}},
		{"unit base name", "dir/tools.wat", adder, []string{"tools"}},
		{"module name wins", "tools.wat", `(module $math (func))`, []string{"math"}},
		{"several modules", "", `(module $a (func)) (module $b (func))`, []string{"a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := compile(t, tt.unit, tt.src)
			require.True(t, res.ok, res.messages())
			assert.Equal(t, tt.want, res.store.Names())
		})
	}
}

func TestCompile_NamingErrors(t *testing.T) {
	res := compile(t, "", `(module $a (func)) (module (func))`)
	assert.False(t, res.ok)
	require.Len(t, res.diags, 1)
	assert.Equal(t, CodeUnnamedModule, res.diags[0].Code)
	assert.Zero(t, res.store.Len())

	res = compile(t, "", "(module $a (func))\n(module $a (func))")
	assert.False(t, res.ok)
	require.Len(t, res.diags, 1)
	assert.Equal(t, CodeDuplicateArtifact, res.diags[0].Code)
	assert.Equal(t, 2, res.diags[0].Location.Line)
}

func TestCompile_SyntaxError(t *testing.T) {
	res := compile(t, "bad.wat", "(module\n  (func\n    i32.frob))")
	assert.False(t, res.ok)
	require.Len(t, res.diags, 1)

	d := res.diags[0]
	assert.Equal(t, diag.SevError, d.Severity)
	assert.Equal(t, "wat.unknown-instruction", d.Code)
	assert.Equal(t, &diag.Location{File: "memory:///bad.wat", Line: 3, Column: 5}, d.Location)
	assert.Zero(t, res.store.Len())
}

func TestCompile_InvalidFlags(t *testing.T) {
	tests := []struct {
		name string
		opts []string
		want string
	}{
		{"unknown", []string{"-frob"}, "invalid flag: -frob"},
		{"bad debug keyword", []string{"-g:everything"}, "invalid flag: -g:everything"},
		{"search path without value", []string{"-L"}, "invalid flag: -L"},
		{"extern without value", []string{"-g:none", "-extern"}, "invalid flag: -extern"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := compile(t, "", adder, tt.opts...)
			assert.False(t, res.ok)
			assert.Equal(t, []string{tt.want}, res.messages())
			assert.Equal(t, CodeInvalidFlag, res.diags[0].Code)
		})
	}
}

func TestCompile_SiblingImports(t *testing.T) {
	res := compile(t, "", `(module $lib
  (func (export "double") (param i32) (result i32)
    (i32.mul (local.get 0) (i32.const 2))))
(module $app
  (import "lib" "double" (func $double (param i32) (result i32)))
  (func (export "run") (result i32) (call $double (i32.const 21))))`)
	require.True(t, res.ok, res.messages())
	assert.Equal(t, []string{"app", "lib"}, res.store.Names())
}

func TestCompile_MissingSiblingExport(t *testing.T) {
	res := compile(t, "", `(module $lib (func (export "double")))
(module $app
  (import "lib" "triple" (func)))`)
	assert.False(t, res.ok)
	require.Len(t, res.diags, 1)
	assert.Equal(t, CodeMissingExport, res.diags[0].Code)
	assert.Equal(t, `module "lib" has no func export "triple"`, res.diags[0].Message)
	assert.Equal(t, 3, res.diags[0].Location.Line)
}

func TestCompile_UnresolvedImport(t *testing.T) {
	src := `(module
  (import "env" "log" (func (param i32)))
  (import "env" "abort" (func))
  (func (export "run") (call 0 (i32.const 1))))`

	res := compile(t, "", src)
	assert.False(t, res.ok)
	require.Len(t, res.diags, 1, "one diagnostic per module")
	assert.Equal(t, CodeUnresolvedImport, res.diags[0].Code)
	assert.Equal(t, 2, res.diags[0].Location.Line)
	assert.Zero(t, res.store.Len())

	res = compile(t, "", src, backend.OptAllowUnresolved)
	assert.True(t, res.ok)
	assert.Equal(t, []diag.Severity{diag.SevMandatoryWarning}, res.severities())
	assert.Equal(t, 1, res.store.Len())

	res = compile(t, "", src, backend.OptAllowUnresolved, backend.OptNoWarn)
	assert.True(t, res.ok)
	assert.Len(t, res.diags, 1, "mandatory warnings survive -nowarn")

	res = compile(t, "", src, backend.OptAllowUnresolved, backend.OptWarningsAsErrors)
	assert.False(t, res.ok)
	assert.Equal(t, []diag.Severity{diag.SevError}, res.severities())
}

func TestCompile_Extern(t *testing.T) {
	src := `(module (import "env" "log" (func (param i32))))`

	res := compile(t, "", src, backend.OptExtern, "env")
	assert.True(t, res.ok, res.messages())

	res = compile(t, "", src, backend.OptExtern, "env@1.2.0")
	assert.True(t, res.ok, res.messages())

	res = compile(t, "", `(module (import "env@1.0.0" "log" (func)))`, backend.OptExtern, "env@1.4.0")
	assert.True(t, res.ok, res.messages())

	res = compile(t, "", src, backend.OptExtern, "wasi")
	assert.False(t, res.ok)

	res = compile(t, "", `(module (import "env@2.0.0" "log" (func)))`, backend.OptExtern, "env@1.2.0")
	assert.False(t, res.ok)
	require.Len(t, res.diags, 1)
	assert.Equal(t, CodeUnresolvedImport, res.diags[0].Code)
	assert.Contains(t, res.diags[0].Message, `"env@2.0.0"`)

	res = compile(t, "", `(module (import "env@1.3.0" "log" (func)))`, backend.OptExtern, "env@1.2.0")
	assert.False(t, res.ok)
}

func TestCompile_SearchPath(t *testing.T) {
	lib := compile(t, "lib.wat", `(func (export "seven") (result i32) (i32.const 7))`)
	require.True(t, lib.ok)
	libBin, _ := lib.store.Bytes("lib")

	src := `(module (import "lib" "seven" (func (result i32))))`
	newStore := func() *store.Store {
		return store.New(store.WithLocations(store.Location{
			Name: "deps",
			FS:   fstest.MapFS{"lib.wasm": {Data: libBin}},
		}))
	}

	res := compileWith(t, newStore(), "", src, backend.OptSearchPath, "deps")
	assert.True(t, res.ok, res.messages())

	res = compileWith(t, newStore(), "", src)
	assert.False(t, res.ok, "location not named by -L is not searched")

	res = compileWith(t, newStore(), "", src, backend.OptSearchPath, "missing", backend.OptSearchPath, "deps")
	assert.True(t, res.ok, res.messages())

	res = compileWith(t, newStore(), "", `(module (import "lib" "eight" (func)))`, backend.OptSearchPath, "deps")
	assert.False(t, res.ok)
	assert.Equal(t, CodeMissingExport, res.diags[0].Code)
}

func TestCompile_Warnings(t *testing.T) {
	src := "(func (param i32)\n  get_local 0\n  drop)"

	res := compile(t, "", src)
	assert.True(t, res.ok)
	require.Len(t, res.diags, 1)
	assert.Equal(t, diag.SevWarning, res.diags[0].Severity)
	assert.Equal(t, 2, res.diags[0].Location.Line)

	res = compile(t, "", src, backend.OptNoWarn)
	assert.True(t, res.ok)
	assert.Empty(t, res.diags)

	res = compile(t, "", src, backend.OptWarningsAsErrors)
	assert.False(t, res.ok)
	assert.Equal(t, []diag.Severity{diag.SevError}, res.severities())
	assert.Zero(t, res.store.Len())
}

func TestCompile_Validation(t *testing.T) {
	src := "(module\n  (func (export \"f\"))\n  (func (result i32)\n    i64.const 1))"

	res := compile(t, "v.wat", src)
	assert.False(t, res.ok)
	require.Len(t, res.diags, 1)
	assert.Equal(t, CodeInvalidModule, res.diags[0].Code)
	assert.Equal(t, 3, res.diags[0].Location.Line)
	assert.Zero(t, res.store.Len())

	res = compile(t, "v.wat", src, backend.OptNoValidate)
	assert.True(t, res.ok)
	assert.Equal(t, 1, res.store.Len())
}

func TestCompile_DebugInfo(t *testing.T) {
	sections := func(opts ...string) []string {
		res := compile(t, "dbg.wat", `(module $dbg (func $f (param $x i32)))`, opts...)
		require.True(t, res.ok, res.messages())
		bin, _ := res.store.Bytes("dbg")
		var found []string
		for _, name := range []string{wasmbin.NameSection, wasmbin.LinesSection, wasmbin.SourceSection} {
			if _, ok := wasmbin.CustomSection(bin, name); ok {
				found = append(found, name)
			}
		}
		return found
	}

	assert.Empty(t, sections())
	assert.Empty(t, sections("-g:none"))
	assert.Equal(t, []string{wasmbin.LinesSection}, sections("-g:lines"))
	assert.Equal(t, []string{wasmbin.NameSection}, sections("-g:vars"))
	assert.Equal(t, []string{wasmbin.NameSection, wasmbin.LinesSection, wasmbin.SourceSection}, sections("-g:source,lines,vars"))
	assert.Equal(t, []string{wasmbin.NameSection, wasmbin.LinesSection, wasmbin.SourceSection}, sections("-g"))
	assert.Empty(t, sections("-g:lines", "-g:none"), "last debug option wins")
}

func TestCompile_NilListener(t *testing.T) {
	st := store.New()
	ok, err := New().Compile(context.Background(), &backend.Task{
		Unit:  source.New("", "(func i32.frob)"),
		Files: st,
	})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCompile_NoUnit(t *testing.T) {
	_, err := New().Compile(context.Background(), &backend.Task{})
	assert.Error(t, err)
}

func TestProvider(t *testing.T) {
	p := Provider()
	assert.Equal(t, Name, p.Name())
	b, err := p.Open()
	require.NoError(t, err)
	assert.Equal(t, Name, b.Name())
}
