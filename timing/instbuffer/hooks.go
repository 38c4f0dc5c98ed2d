package instbuffer

import "github.com/sarchlab/akita/v4/sim"

// Hook positions invoked by the Unit at commit time. The HookCtx Detail of
// every position is the cycle number (uint64) being committed.
var (
	// HookPosStateChange is invoked when the controller changes state. The
	// Item is a Transition.
	HookPosStateChange = &sim.HookPos{Name: "InstBuffer State Change"}

	// HookPosReqAccept is invoked when a processor request is accepted. The
	// Item is the msg.Request.
	HookPosReqAccept = &sim.HookPos{Name: "InstBuffer Req Accept"}

	// HookPosRespIssue is invoked when a response enters the response
	// buffer. The Item is the msg.Response.
	HookPosRespIssue = &sim.HookPos{Name: "InstBuffer Resp Issue"}

	// HookPosRefillIssue is invoked when memory accepts a refill request.
	// The Item is the msg.MemRequest.
	HookPosRefillIssue = &sim.HookPos{Name: "InstBuffer Refill Issue"}

	// HookPosRefillDone is invoked when a refilled line is installed. The
	// Item is a Refill.
	HookPosRefillDone = &sim.HookPos{Name: "InstBuffer Refill Done"}
)

// Transition describes one controller state change.
type Transition struct {
	From State
	To   State
}

// Refill describes a line installed into the line store.
type Refill struct {
	// Addr is the line-aligned address of the installed line.
	Addr uint64
	// SetID and WayID locate the entry that was written.
	SetID int
	WayID int
	// Evicted is true if a valid line was displaced.
	Evicted bool
	// EvictedAddr is the line address of the displaced line.
	EvictedAddr uint64
}
