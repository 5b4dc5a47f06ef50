// Package session compiles one unit of WebAssembly text in memory and
// hands back a loader over the result.
//
// A Session is single shot:
//
//	s := session.New(session.WithParent(host))
//	if err := s.Cook(ctx, "calc.wat", text); err != nil {
//	    return err // *errors.Error, with a Location for compile errors
//	}
//	unit, err := s.Resolve(ctx, "calc")
//
// Configuration is accepted only while the session is Fresh. Cook moves it
// to Cooking and then to Cooked or Failed; neither is left again. Using a
// session in the wrong state returns an error of kind illegal_state.
//
// Artifacts never touch a filesystem. Search locations registered with
// AddSearchPath or AddSearchDir are read, never written, both by the
// compiler (through -L tokens) and by the loader when linking.
package session
