// Package wat is the built-in compiler backend for WebAssembly text.
//
// A unit holds either one module or a sequence of named (module $name ...)
// forms. Each module becomes one binary artifact named after its $name,
// falling back to the unit's base name. Before anything is written the
// backend checks that every import module is satisfiable by a sibling
// module, by a <module>.wasm artifact in a -L search location, or by an
// -extern module provided at run time, and validates each artifact with
// wazero.
//
// Options:
//
//	-g:none | -g:source,lines,vars   debug information (any subset)
//	-g                               all debug information
//	-L <location>                    search location for <module>.wasm
//	-extern <module>                 module provided by the host at load time
//	-Werror                          treat warnings as errors
//	-nowarn                          drop ordinary warnings
//	-Xallow-unresolved               downgrade unresolved imports to warnings
//	-Xno-validate                    skip the wazero validation pass
package wat
