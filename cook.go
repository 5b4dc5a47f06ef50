package wasmcook

import (
	"context"

	"github.com/wippyai/wasm-cook/loader"
	"github.com/wippyai/wasm-cook/session"
)

// Cook compiles text in a new session and returns its loader. The caller
// owns the loader.
func Cook(ctx context.Context, name, text string, opts ...session.Option) (*loader.Loader, error) {
	s := session.New(opts...)
	if err := s.Cook(ctx, name, text); err != nil {
		return nil, err
	}
	return s.Loader()
}
