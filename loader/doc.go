// Package loader instantiates compiled artifacts on demand.
//
// A Loader owns the artifacts of one successful compilation. Resolving an
// artifact links each of its import modules, in order of preference, to a
// sibling artifact (resolved recursively), to a <module>.wasm artifact
// found in the search locations, or to the parent scope.Context. Import
// module names are rewritten to the instance names chosen for the
// providers before wazero compiles the binary, so artifacts from different
// loaders never collide inside a shared runtime.
//
// A Loader is itself a scope.Context and can parent later compilations.
package loader
