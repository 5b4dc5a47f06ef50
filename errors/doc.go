// Package errors provides structured error types for wasm-cook.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). The Error type carries a name path, an optional source Location
// and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseCompile, errors.KindCompile).
//		At(&errors.Location{File: "memory:///calc.wat", Line: 3, Column: 7}).
//		Detailf("unknown instruction %q", "i32.addd").
//		Build()
//
// Or use convenience constructors for the common outcomes of a session:
//
//	err := errors.BackendUnavailable()
//	err := errors.Resolution("main", nil)
//	err := errors.IllegalState(errors.PhaseConfigure, "already cooked")
//
// All errors implement the standard error interface and support errors.Is/As.
// The Err* sentinels match on Kind alone:
//
//	if errors.Is(err, errors.ErrIllegalState) { ... }
package errors
