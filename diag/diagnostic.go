package diag

import (
	"github.com/wippyai/wasm-cook/errors"
)

// Severity defines the importance of a diagnostic.
type Severity uint8

const (
	// SevOther is for diagnostics a backend could not classify.
	SevOther Severity = iota
	// SevNote is for informational diagnostics.
	SevNote
	// SevWarning is for warnings the backend may suppress.
	SevWarning
	// SevMandatoryWarning is for warnings the backend must report.
	SevMandatoryWarning
	SevError
)

func (s Severity) String() string {
	switch s {
	case SevOther:
		return "OTHER"
	case SevNote:
		return "NOTE"
	case SevWarning:
		return "WARNING"
	case SevMandatoryWarning:
		return "MANDATORY_WARNING"
	case SevError:
		return "ERROR"
	}
	return "UNKNOWN"
}

// IsWarning reports whether s is either warning flavour.
func (s Severity) IsWarning() bool {
	return s == SevWarning || s == SevMandatoryWarning
}

// Location is a 1-based line/column position inside a unit.
type Location = errors.Location

// Diagnostic is one message produced by a backend during compilation.
// It is never mutated after creation.
type Diagnostic struct {
	Location *Location
	Code     string
	Message  string
	Severity Severity
}

// Text returns the message suffixed with the diagnostic code, as handed to
// error and warning handlers.
func (d Diagnostic) Text() string {
	if d.Code == "" {
		return d.Message
	}
	return d.Message + " (" + d.Code + ")"
}

// Err converts the diagnostic into a compile error.
func (d Diagnostic) Err() *errors.Error {
	return errors.Compile(d.Text(), d.Location)
}

func (d Diagnostic) String() string {
	var prefix string
	if d.Location != nil {
		if loc := d.Location.String(); loc != "" {
			prefix = loc + ": "
		}
	}
	return prefix + d.Severity.String() + ": " + d.Text()
}

// Listener receives diagnostics from a backend.
type Listener interface {
	Report(d Diagnostic)
}

// ListenerFunc adapts a function to a Listener.
type ListenerFunc func(d Diagnostic)

// Report calls f(d).
func (f ListenerFunc) Report(d Diagnostic) { f(d) }

// Error is a shortcut for an error diagnostic at loc.
func Error(code string, loc *Location, msg string) Diagnostic {
	return Diagnostic{Severity: SevError, Code: code, Location: loc, Message: msg}
}

// Warning is a shortcut for a warning diagnostic at loc.
func Warning(code string, loc *Location, msg string) Diagnostic {
	return Diagnostic{Severity: SevWarning, Code: code, Location: loc, Message: msg}
}

// Note is a shortcut for an informational diagnostic at loc.
func Note(code string, loc *Location, msg string) Diagnostic {
	return Diagnostic{Severity: SevNote, Code: code, Location: loc, Message: msg}
}
