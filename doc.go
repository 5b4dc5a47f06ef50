// Package wasmcook compiles WebAssembly text in memory and loads the result
// into a wazero runtime, without writing artifacts to disk.
//
// # Architecture Overview
//
//	wasmcook/            Root package with the one-call Cook helper
//	├── session/         Single-shot compilation session (Fresh -> Cooked|Failed)
//	├── backend/         Compiler backend interface, provider registry, resolver
//	│   └── wat/         Built-in WAT compiler: parse, link check, encode, validate
//	├── diag/            Diagnostics and the bridge latching the first failure
//	├── source/          Virtual compilation units with memory:/// identities
//	├── store/           In-memory artifact store with read-only search locations
//	├── loader/          Links and instantiates artifacts on demand
//	├── scope/           Parent resolution contexts and Go host modules
//	├── config/          watcook.toml configuration
//	├── errors/          Structured error types for debugging
//	└── cmd/watcook/     CLI: run, check, repl
//
// # Quick Start
//
//	host := scope.NewHost(ctx)
//	defer host.Close(ctx)
//	_ = host.AddBuiltin(scope.BuiltinConsole, os.Stdout)
//
//	l, err := wasmcook.Cook(ctx, "hello.wat", text, session.WithParent(host))
//	if err != nil {
//	    log.Fatal(err) // compile errors carry a Location
//	}
//	defer l.Close(ctx)
//
//	unit, err := l.Resolve(ctx, "hello")
//	res, err := unit.Call(ctx, "add", 1, 2)
//
// # Linking
//
// Each import module of an artifact is satisfied by, in order: an artifact
// of the same unit, a <module>.wasm found in the search locations, and the
// parent context. A loader is itself a context, so units cooked later can
// import units cooked earlier.
//
// # Thread Safety
//
// Sessions, loaders and host scopes are safe for concurrent use. A session
// cooks exactly once; concurrent Cook calls see one winner.
package wasmcook
