package agent

// State is the position of a session in the conversation loop.
type State int32

const (
	StateIdle State = iota
	StateAwaitingModel
	StateToolCallsPending
	StateInvoking
	StateResponding
	// StateError and StateCancelled are exits of an aborted turn; the session
	// returns to StateIdle right after passing through them.
	StateError
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingModel:
		return "awaiting-model"
	case StateToolCallsPending:
		return "tool-calls-pending"
	case StateInvoking:
		return "invoking"
	case StateResponding:
		return "responding"
	case StateError:
		return "error"
	case StateCancelled:
		return "cancelled"
	}
	return "unknown"
}
