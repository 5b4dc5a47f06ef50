package scope

import (
	"context"

	"github.com/tetratelabs/wazero"
)

// Context resolves import module names for a loader.
type Context interface {
	// Lookup returns the name of the instantiated module that satisfies
	// module. ok is false when neither this context nor its parents
	// provide it.
	Lookup(ctx context.Context, module string) (instance string, ok bool, err error)

	// Modules lists the module names this context and its parents provide.
	Modules() []string

	// Runtime is the wazero runtime the instances live in. Units linked
	// against this context must be instantiated in the same runtime.
	Runtime() wazero.Runtime
}
