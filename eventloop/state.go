package eventloop

import "errors"

// SignaledStatus is reported when the child was terminated by a signal.
const SignaledStatus = -1

// ErrSetup marks failures to register the loop's event sources.
var ErrSetup = errors.New("setup failure")

// State is the loop's lifecycle state.
type State int32

const (
	Running      State = iota // watching both sources
	ShuttingDown              // sources released, registry drained or draining
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case Running:
		return "RUNNING"
	case ShuttingDown:
		return "SHUTTING_DOWN"
	default:
		return "UNKNOWN"
	}
}

// Config holds the loop's socket settings.
type Config struct {
	// SocketPath is the filesystem path the listening socket is bound to.
	SocketPath string
	// RemoveStaleSocket unlinks a leftover socket file nobody listens on.
	RemoveStaleSocket bool
}
