package diag

import (
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-cook/errors"
)

// ErrorHandler handles an error diagnostic. A non-nil return fails the
// compilation.
type ErrorHandler func(message string, loc *Location) error

// WarningHandler handles a warning diagnostic. A non-nil return fails the
// compilation.
type WarningHandler func(message string, loc *Location) error

// Outcome accumulates what the bridge observed during one compilation.
// Only the first captured failure is kept.
type Outcome struct {
	failure     error
	diagnostics []Diagnostic
	errors      int
	warnings    int
}

// Failure returns the first captured failure, or nil.
func (o *Outcome) Failure() error {
	return o.failure
}

// Failed reports whether a failure was captured.
func (o *Outcome) Failed() bool {
	return o.failure != nil
}

// Diagnostics returns every diagnostic reported, in order.
func (o *Outcome) Diagnostics() []Diagnostic {
	out := make([]Diagnostic, len(o.diagnostics))
	copy(out, o.diagnostics)
	return out
}

// Errors returns the number of error diagnostics seen.
func (o *Outcome) Errors() int { return o.errors }

// Warnings returns the number of warning diagnostics seen.
func (o *Outcome) Warnings() int { return o.warnings }

func (o *Outcome) capture(err error) {
	if o.failure == nil {
		o.failure = err
	}
}

// Bridge routes backend diagnostics to handlers and latches the first
// failure into an Outcome.
type Bridge struct {
	outcome   *Outcome
	onError   ErrorHandler
	onWarning WarningHandler
	logger    *zap.Logger
	mu        sync.Mutex
}

// BridgeOption configures a Bridge.
type BridgeOption func(*Bridge)

// WithErrorHandler routes error diagnostics to h instead of failing on the
// first one.
func WithErrorHandler(h ErrorHandler) BridgeOption {
	return func(b *Bridge) { b.onError = h }
}

// WithWarningHandler routes warning diagnostics to h instead of dropping them.
func WithWarningHandler(h WarningHandler) BridgeOption {
	return func(b *Bridge) { b.onWarning = h }
}

// WithLogger sets the bridge's logger.
func WithLogger(l *zap.Logger) BridgeOption {
	return func(b *Bridge) { b.logger = l }
}

// NewBridge creates a bridge writing into outcome.
func NewBridge(outcome *Outcome, opts ...BridgeOption) *Bridge {
	b := &Bridge{outcome: outcome, logger: Logger()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Report implements Listener.
func (b *Bridge) Report(d Diagnostic) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.outcome.diagnostics = append(b.outcome.diagnostics, d)
	b.logger.Debug("diagnostic",
		zap.Stringer("severity", d.Severity),
		zap.String("code", d.Code),
		zap.String("message", d.Message),
	)

	switch {
	case d.Severity == SevError:
		b.outcome.errors++
		if b.onError == nil {
			b.outcome.capture(d.Err())
			return
		}
		if err := b.invoke(b.onError, d); err != nil {
			b.outcome.capture(err)
		}

	case d.Severity.IsWarning():
		b.outcome.warnings++
		if b.onWarning == nil {
			return
		}
		if err := b.invoke(b.onWarning, d); err != nil {
			b.outcome.capture(err)
		}
	}
}

// invoke calls a handler and converts a panic into a failure.
func (b *Bridge) invoke(h func(string, *Location) error, d Diagnostic) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Warn("diagnostic handler panicked", zap.Any("panic", r))
			err = errors.New(errors.PhaseCompile, errors.KindCompile).
				At(d.Location).
				Value(r).
				Detailf("diagnostic handler panicked: %v", r).
				Build()
		}
	}()
	return h(d.Text(), d.Location)
}
