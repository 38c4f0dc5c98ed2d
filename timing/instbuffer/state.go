package instbuffer

// State is a state of the controller FSM.
type State int

const (
	// StateIdle waits for a processor request.
	StateIdle State = iota
	// StateTagCheck compares the latched request against the line store.
	StateTagCheck
	// StateReadDataAccessMiss selects the entry a refill replaces.
	StateReadDataAccessMiss
	// StateRefillRequest asserts the memory request for the missing line.
	StateRefillRequest
	// StateRefillWait waits for the memory response.
	StateRefillWait
	// StateRefillUpdate writes the refilled line into the line store.
	StateRefillUpdate
	// StateWaitHit offers the response of a hit.
	StateWaitHit
	// StateWaitMiss offers the response of a refilled miss.
	StateWaitMiss

	numStates
)

// States lists every controller state in encoding order.
var States = []State{
	StateIdle,
	StateTagCheck,
	StateReadDataAccessMiss,
	StateRefillRequest,
	StateRefillWait,
	StateRefillUpdate,
	StateWaitHit,
	StateWaitMiss,
}

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateTagCheck:
		return "TAG_CHECK"
	case StateReadDataAccessMiss:
		return "READ_DATA_ACCESS_MISS"
	case StateRefillRequest:
		return "REFILL_REQUEST"
	case StateRefillWait:
		return "REFILL_WAIT"
	case StateRefillUpdate:
		return "REFILL_UPDATE"
	case StateWaitHit:
		return "WAIT_HIT"
	case StateWaitMiss:
		return "WAIT_MISS"
	default:
		return "UNKNOWN"
	}
}

// Label returns the short two-character label used in line traces. The two
// wait states get distinct labels so a trace shows whether a response came
// from a hit or a refill.
func (s State) Label() string {
	switch s {
	case StateIdle:
		return "I "
	case StateTagCheck:
		return "TC"
	case StateReadDataAccessMiss:
		return "RD"
	case StateRefillRequest:
		return "RR"
	case StateRefillWait:
		return "RW"
	case StateRefillUpdate:
		return "RU"
	case StateWaitHit:
		return "WH"
	case StateWaitMiss:
		return "WM"
	default:
		return "? "
	}
}

// Waiting returns true for the states that offer a response.
func (s State) Waiting() bool {
	return s == StateWaitHit || s == StateWaitMiss
}
