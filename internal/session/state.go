package session

// State is a step of the turn lifecycle
type State int

const (
	StateIdle            State = iota // Waiting for input
	StateAwaitingInput                // Input accepted, a client is configured
	StateBuildingRequest              // Appending the question and assembling the request
	StateCallingProvider              // Waiting on the model provider
	StateSuccess                      // Reply received and recorded
	StateFailure                      // Provider call failed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingInput:
		return "awaiting_input"
	case StateBuildingRequest:
		return "building_request"
	case StateCallingProvider:
		return "calling_provider"
	case StateSuccess:
		return "success"
	case StateFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Busy reports whether a turn is in progress in this state
func (s State) Busy() bool {
	return s != StateIdle
}
