package core

// State is the lifecycle state of a chat session.
type State int

const (
	// StateDisconnected means no channel is open. It is also the state after Stop.
	StateDisconnected State = iota

	// StateConnecting means the first connection attempt is in flight.
	StateConnecting

	// StateConnected means the channel is up and the room subscription is active.
	StateConnected

	// StateReconnecting means the channel was lost and a retry is scheduled or in flight.
	StateReconnecting

	// StateFailed means the session gave up: authorization failed or retries ran out.
	StateFailed
)

// String returns the string representation of a State.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// StateEvent represents a state change.
type StateEvent struct {
	OldState State
	NewState State
	Error    error // Optional error that caused the state change
}
