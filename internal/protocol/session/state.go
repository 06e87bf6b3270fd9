package session

// State is the connection lifecycle phase.
type State int32

const (
	StateNew State = iota
	StateGreeting
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateGreeting:
		return "GREETING"
	case StateReady:
		return "READY"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}
