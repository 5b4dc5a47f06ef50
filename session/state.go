package session

// State is the lifecycle position of a Session.
type State string

const (
	StateFresh   State = "fresh"
	StateCooking State = "cooking"
	StateCooked  State = "cooked"
	StateFailed  State = "failed"
)

// Done reports whether s is terminal.
func (s State) Done() bool {
	return s == StateCooked || s == StateFailed
}
