package callctl

// State enumerates the lifecycle of one call attempt.
//
//	Idle → Capturing → Initiating → AwaitingAnswer → Connected → Ended
//	                 └→ Answering → Connected
//
// Failed is reachable from any non-terminal state. Ended and Failed are
// transient: cleanup runs, observers are notified, and the controller
// returns to Idle so a new attempt needs no reconnect.
type State int

const (
	StateIdle State = iota
	StateCapturing
	StateInitiating
	StateAwaitingAnswer
	StateAnswering
	StateConnected
	StateEnded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCapturing:
		return "capturing"
	case StateInitiating:
		return "initiating"
	case StateAwaitingAnswer:
		return "awaiting_answer"
	case StateAnswering:
		return "answering"
	case StateConnected:
		return "connected"
	case StateEnded:
		return "ended"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Role is the negotiation role of the local peer transport.
type Role int

const (
	RoleInitiator Role = iota
	RoleResponder
)

func (r Role) String() string {
	if r == RoleInitiator {
		return "initiator"
	}
	return "responder"
}
