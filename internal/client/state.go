package client

// State is the connection state of a Manager.
type State int

const (
	// StateIdle means Connect has never been called.
	StateIdle State = iota

	// StateConnecting means a dial is in flight.
	StateConnecting

	// StateOpen means the transport is open and Send writes.
	StateOpen

	// StateClosed means the transport is gone. Unless the close was requested
	// through Disconnect, a reconnect is pending.
	StateClosed
)

// String returns the string representation of a State.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// StateEvent represents a state change.
type StateEvent struct {
	Old State
	New State
	// Err is the transport error behind an unexpected close, if any.
	Err error
	// Intentional is true when the change was caused by Disconnect.
	Intentional bool
}
