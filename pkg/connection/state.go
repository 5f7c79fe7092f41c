package connection

// State represents the daemon connection state.
type State uint8

const (
	// StateDisconnected indicates no active connection.
	StateDisconnected State = iota

	// StateConnecting indicates a connect/authenticate exchange is in
	// progress.
	StateConnecting

	// StateConnected indicates an authenticated connection.
	StateConnected

	// StateClosed indicates the client has been closed.
	StateClosed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}
