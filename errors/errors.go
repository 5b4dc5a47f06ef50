package errors

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseConfigure Phase = "configure" // session configuration
	PhaseSource    Phase = "source"    // reading the compilation unit
	PhaseBackend   Phase = "backend"   // backend resolution
	PhaseCompile   Phase = "compile"   // backend compilation
	PhaseLinking   Phase = "linking"   // import resolution
	PhaseLoad      Phase = "load"      // module loading
	PhaseRuntime   Phase = "runtime"   // calls into loaded code
	PhaseHost      Phase = "host"      // host module definition
)

// Kind categorizes the error
type Kind string

const (
	KindBackendUnavailable Kind = "backend_unavailable"
	KindCompile            Kind = "compile"
	KindIO                 Kind = "io"
	KindResolution         Kind = "resolution"
	KindIllegalState       Kind = "illegal_state"
	KindInvalidInput       Kind = "invalid_input"
	KindInvalidData        Kind = "invalid_data"
	KindNotFound           Kind = "not_found"
	KindRegistration       Kind = "registration"
	KindInstantiation      Kind = "instantiation"
)

// Sentinels match any *Error of the same Kind regardless of Phase.
var (
	ErrBackendUnavailable = &Error{Kind: KindBackendUnavailable}
	ErrCompile            = &Error{Kind: KindCompile}
	ErrIO                 = &Error{Kind: KindIO}
	ErrResolution         = &Error{Kind: KindResolution}
	ErrIllegalState       = &Error{Kind: KindIllegalState}
)

// Location is a position in a compilation unit. Line and Column are 1-based;
// zero means unknown.
type Location struct {
	File   string
	Line   int
	Column int
}

// String renders the location as file:line:column, dropping unknown parts.
func (l Location) String() string {
	var b strings.Builder
	b.WriteString(l.File)
	if l.Line > 0 {
		if b.Len() > 0 {
			b.WriteByte(':')
		}
		b.WriteString(strconv.Itoa(l.Line))
		if l.Column > 0 {
			b.WriteByte(':')
			b.WriteString(strconv.Itoa(l.Column))
		}
	}
	return b.String()
}

// Error is the structured error type used throughout the module
type Error struct {
	Value    any
	Cause    error
	Location *Location
	Phase    Phase
	Kind     Kind
	Detail   string
	Path     []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Location != nil {
		if loc := e.Location.String(); loc != "" {
			b.WriteString(" (")
			b.WriteString(loc)
			b.WriteByte(')')
		}
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error. A target without a Phase
// matches on Kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase == "" {
		return e.Kind == t.Kind
	}
	return e.Phase == t.Phase && e.Kind == t.Kind
}

// Message returns the detail, falling back to the full error text.
func (e *Error) Message() string {
	if e.Detail != "" {
		return e.Detail
	}
	return e.Error()
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// IsNotExist reports whether err means a file or artifact does not exist.
func IsNotExist(err error) bool {
	return stderrors.Is(err, fs.ErrNotExist)
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the name path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// At sets the source location
func (b *Builder) At(loc *Location) *Builder {
	b.err.Location = loc
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string) *Builder {
	b.err.Detail = msg
	return b
}

// Detailf sets the detail message from a format string
func (b *Builder) Detailf(format string, args ...any) *Builder {
	b.err.Detail = fmt.Sprintf(format, args...)
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// BackendUnavailable reports that no compiler backend could be resolved.
func BackendUnavailable() *Error {
	return &Error{
		Phase:  PhaseBackend,
		Kind:   KindBackendUnavailable,
		Detail: "no compiler backend available",
	}
}

// Compile creates a compile error carrying an optional location.
func Compile(message string, loc *Location) *Error {
	return &Error{
		Phase:    PhaseCompile,
		Kind:     KindCompile,
		Detail:   message,
		Location: loc,
	}
}

// IO wraps a failure to read or write unit data.
func IO(phase Phase, detail string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindIO,
		Detail: detail,
		Cause:  cause,
	}
}

// Resolution reports that a symbolic name could not be resolved.
func Resolution(name string, cause error) *Error {
	return &Error{
		Phase:  PhaseLinking,
		Kind:   KindResolution,
		Path:   []string{name},
		Detail: fmt.Sprintf("cannot resolve %q", name),
		Cause:  cause,
	}
}

// IllegalState reports misuse of a single-shot object.
func IllegalState(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindIllegalState,
		Detail: detail,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Registration creates a registration error
func Registration(module, name string, cause error) *Error {
	return &Error{
		Phase:  PhaseHost,
		Kind:   KindRegistration,
		Detail: fmt.Sprintf("register %s#%s", module, name),
		Cause:  cause,
	}
}

// Instantiation creates an instantiation error
func Instantiation(name string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInstantiation,
		Path:   []string{name},
		Detail: "instantiate module",
		Cause:  cause,
	}
}

// Load creates a module loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// UnresolvedImport represents a single import no scope could satisfy
type UnresolvedImport struct {
	Module string // e.g., "env" or "wasi:io/streams@0.2.0"
	Name   string // e.g., "log"
}

// UnresolvedImportsError is returned when linking finds imports that no
// sibling, search location or parent scope provides
type UnresolvedImportsError struct {
	Artifact string
	Imports  []UnresolvedImport
}

// NewUnresolvedImportsError creates an error from a list of "module#name" strings
func NewUnresolvedImportsError(artifact string, imports []string) *UnresolvedImportsError {
	result := &UnresolvedImportsError{
		Artifact: artifact,
		Imports:  make([]UnresolvedImport, 0, len(imports)),
	}
	for _, imp := range imports {
		mod, name := parseImportKey(imp)
		result.Imports = append(result.Imports, UnresolvedImport{
			Module: mod,
			Name:   name,
		})
	}
	return result
}

func parseImportKey(key string) (module, name string) {
	mod, name, found := strings.Cut(key, "#")
	if found {
		return mod, name
	}
	return key, ""
}

func (e *UnresolvedImportsError) Error() string {
	if len(e.Imports) == 0 {
		return "[linking] resolution: no imports specified"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d unresolved import(s):\n", e.Artifact, len(e.Imports))

	byModule := make(map[string][]string)
	var order []string
	for _, imp := range e.Imports {
		if _, exists := byModule[imp.Module]; !exists {
			order = append(order, imp.Module)
		}
		if imp.Name != "" {
			byModule[imp.Module] = append(byModule[imp.Module], imp.Name)
		}
	}

	for _, mod := range order {
		b.WriteString("\n  ")
		b.WriteString(mod)
		b.WriteString(":\n")
		for _, name := range byModule[mod] {
			b.WriteString("    - ")
			b.WriteString(name)
			b.WriteByte('\n')
		}
	}

	return strings.TrimSuffix(b.String(), "\n")
}

// Is reports whether target matches this error type
func (e *UnresolvedImportsError) Is(target error) bool {
	_, ok := target.(*UnresolvedImportsError)
	return ok
}
