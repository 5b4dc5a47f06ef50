// Package wasmbin reads and patches WebAssembly binaries at the section level.
//
// It is deliberately shallow: sections are located, import and export
// entries are listed, import module names can be rewritten and custom
// sections can be read or appended. Function bodies are never decoded.
//
//	imports, err := wasmbin.Imports(bin)
//	patched, err := wasmbin.RewriteImportModules(bin, func(m string) string {
//		return prefix + m
//	})
//
// This package is internal to the compiler and loader.
package wasmbin
