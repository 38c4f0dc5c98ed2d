package instbuffer

// Statistics holds instruction buffer performance counters.
type Statistics struct {
	// Cycles is the number of committed cycles.
	Cycles uint64
	// Requests is the number of processor requests accepted.
	Requests uint64
	// Hits is the number of tag checks that found the line resident.
	Hits uint64
	// Misses is the number of tag checks that required a refill.
	Misses uint64
	// Evictions is the number of refills that displaced a valid line.
	Evictions uint64
	// MemRequests is the number of memory requests accepted by memory.
	MemRequests uint64
	// Refills is the number of lines written into the line store.
	Refills uint64
	// Responses is the number of responses accepted by the response buffer.
	Responses uint64
	// Delivered is the number of responses accepted by the processor.
	Delivered uint64
	// RespStallCycles counts cycles a response was offered to the
	// processor but not accepted.
	RespStallCycles uint64
	// MemReqStallCycles counts cycles a memory request waited for memory.
	MemReqStallCycles uint64
	// RefillWaitCycles counts cycles spent waiting for memory data.
	RefillWaitCycles uint64
	// StateCycles counts committed cycles per controller state.
	StateCycles [numStates]uint64
}

// HitRate returns the fraction of tag checks that hit.
func (s Statistics) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// CyclesIn returns the number of committed cycles spent in a state.
func (s Statistics) CyclesIn(state State) uint64 {
	if state < 0 || state >= numStates {
		return 0
	}
	return s.StateCycles[state]
}
