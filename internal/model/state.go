package model

// ConnectionState is the lifecycle state of a managed openvpn daemon.
type ConnectionState int

const (
	// StateDisconnected is the initial state. Leaving it requires a user connect.
	StateDisconnected = ConnectionState(iota)

	// StateConnecting means we launched the daemon or are attaching to it.
	StateConnecting

	// StateReconnecting means the daemon reported RECONNECTING.
	StateReconnecting

	// StateConnected means the daemon reported CONNECTED.
	StateConnected

	// StateDisconnecting means we asked the daemon to exit.
	StateDisconnecting

	// StateSuspending means we asked the daemon to exit because the system suspends.
	StateSuspending

	// StateSuspended means the daemon exited because of a suspend. Leaving it
	// requires a resume.
	StateSuspended

	// StateResuming means we are connecting again after a resume.
	StateResuming

	// StateTimedOut means we could not reach the management interface in time.
	StateTimedOut
)

// String maps a [ConnectionState] to a string.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateReconnecting:
		return "reconnecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	case StateSuspending:
		return "suspending"
	case StateSuspended:
		return "suspended"
	case StateResuming:
		return "resuming"
	case StateTimedOut:
		return "timedout"
	default:
		return "invalid"
	}
}

// IsConnecting returns true for the states in which a connection attempt is
// in progress and the daemon has not yet reported CONNECTED.
func (s ConnectionState) IsConnecting() bool {
	switch s {
	case StateConnecting, StateReconnecting, StateResuming:
		return true
	default:
		return false
	}
}

// IsIdle returns true for the states that require an external action to leave.
func (s ConnectionState) IsIdle() bool {
	return s == StateDisconnected || s == StateSuspended
}
