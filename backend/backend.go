package backend

import (
	"context"
	"io"

	"github.com/wippyai/wasm-cook/diag"
	"github.com/wippyai/wasm-cook/source"
)

// Backend compiles a single unit.
type Backend interface {
	// Name identifies the backend in logs and diagnostics.
	Name() string

	// Compile compiles t.Unit. Artifacts go to t.Files, problems to
	// t.Listener. The boolean reports overall success; an error means the
	// backend itself broke, not that the source was wrong.
	Compile(ctx context.Context, t *Task) (bool, error)
}

// FileManager is the output sink and search-path view a backend sees.
type FileManager interface {
	// Output returns a writer for the artifact called name. The artifact
	// becomes visible when the writer is closed.
	Output(name string) (io.WriteCloser, error)

	// Input opens a pre-existing artifact from a search location.
	Input(location, name string) (io.ReadCloser, error)

	// Locations lists search location names in search order.
	Locations() []string
}

// Task is one compilation request.
type Task struct {
	Unit     *source.Unit
	Options  []string
	Listener diag.Listener
	Files    FileManager
}

// Report forwards d to the task listener, if any.
func (t *Task) Report(d diag.Diagnostic) {
	if t.Listener != nil {
		t.Listener.Report(d)
	}
}
