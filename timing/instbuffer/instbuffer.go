// Package instbuffer models a small instruction buffer between a processor's
// instruction-fetch port and main memory.
//
// The Unit accepts one word request at a time on its buffreq interface,
// checks the line store, refills a whole line from memory on a miss and
// returns the requested word on buffresp. All four interfaces follow the
// valid/ready discipline of package handshake.
//
// The model is cycle-based. Each cycle the caller first drives the Unit's
// input signals on Ports, then calls Eval, which writes the Unit's output
// signals and computes its next state without committing it, and finally
// calls Commit once every other component has evaluated too.
package instbuffer

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/instbuf/timing/cache"
	"github.com/sarchlab/instbuf/timing/handshake"
	"github.com/sarchlab/instbuf/timing/msg"
)

// Ports holds the signals of the Unit's four interfaces.
//
// The Unit drives BuffReq.Ready, BuffResp.Valid/Msg, MemReq.Valid/Msg and
// MemResp.Ready. Everything else is driven by the processor and memory.
type Ports struct {
	BuffReq  handshake.Channel[msg.Request]
	BuffResp handshake.Channel[msg.Response]
	MemReq   handshake.Channel[msg.MemRequest]
	MemResp  handshake.Channel[msg.MemResponse]
}

// Option is a functional option for configuring the Unit.
type Option func(*Unit)

// WithLogger sets the logger used for refill and protocol diagnostics.
func WithLogger(logger zerolog.Logger) Option {
	return func(u *Unit) {
		u.logger = logger
	}
}

// WithName sets the name of the Unit. It must be a valid Akita name.
func WithName(name string) Option {
	return func(u *Unit) {
		u.name = name
	}
}

// registers is the sequential state of the controller and datapath.
type registers struct {
	state State

	// req is the latched processor request.
	req msg.Request

	// hitLoc is the entry that serves the response.
	hitLoc cache.Location

	// victim is the entry the current refill replaces.
	victim cache.Location

	// refill is the line received from memory.
	refill []byte

	// memOpaque is the opaque id of the outstanding memory request.
	memOpaque uint8
}

// events records the transfers seen by the last Eval.
type events struct {
	reqFired     bool
	respFired    bool
	deqFired     bool
	respOffered  bool
	memReqFired  bool
	memRespFired bool
	tagHit       bool

	req     msg.Request
	resp    msg.Response
	memReq  msg.MemRequest
	memResp msg.MemResponse
}

// Unit is the instruction buffer: controller FSM, line store datapath and
// a one-slot bypass buffer on the response path.
type Unit struct {
	sim.HookableBase

	name   string
	config Config
	logger zerolog.Logger

	store   *cache.LineStore
	respBuf *handshake.Bypass[msg.Response]

	cur  registers
	next registers
	ev   events

	evaluated bool
	cycle     uint64
	stats     Statistics
}

// New creates an instruction buffer. It returns an error if the
// configuration is malformed.
func New(config Config, opts ...Option) (*Unit, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid instruction buffer config: %w", err)
	}

	u := &Unit{
		name:    "InstBuffer",
		config:  config,
		logger:  zerolog.Nop(),
		store:   cache.New(config.cacheConfig()),
		respBuf: handshake.NewBypass[msg.Response](),
	}

	for _, opt := range opts {
		opt(u)
	}

	sim.NameMustBeValid(u.name)

	u.cur.state = StateIdle
	u.next = u.cur

	return u, nil
}

// Name returns the name of the Unit.
func (u *Unit) Name() string {
	return u.name
}

// Config returns the configuration the Unit was built with.
func (u *Unit) Config() Config {
	return u.config
}

// State returns the current controller state.
func (u *Unit) State() State {
	return u.cur.state
}

// Cycle returns the number of committed cycles.
func (u *Unit) Cycle() uint64 {
	return u.cycle
}

// Store returns the line store. Callers must treat it as read-only.
func (u *Unit) Store() *cache.LineStore {
	return u.store
}

// Stats returns the performance counters.
func (u *Unit) Stats() Statistics {
	return u.stats
}

// ResetStats clears the performance counters.
func (u *Unit) ResetStats() {
	u.stats = Statistics{}
}

// InFlight returns true while an accepted request has not been delivered to
// the processor.
func (u *Unit) InFlight() bool {
	return u.cur.state != StateIdle || u.respBuf.Full()
}

// LineTrace returns the trace label of the current state, e.g. "(TC)".
func (u *Unit) LineTrace() string {
	return "(" + u.cur.state.Label() + ")"
}

// Eval computes every output of the Unit for the current cycle from its
// state and the input signals on p, and prepares the next state. It does
// not change the committed state, so it may be called again in the same
// cycle if inputs change.
func (u *Unit) Eval(p *Ports) {
	cur := &u.cur
	u.next = *cur
	u.ev = events{}

	p.BuffReq.Ready = cur.state == StateIdle && !u.respBuf.Full()

	p.MemReq.Valid = cur.state == StateRefillRequest
	p.MemReq.Msg = msg.MemRequest{}
	if p.MemReq.Valid {
		p.MemReq.Msg = u.memRequest()
	}

	p.MemResp.Ready = cur.state == StateRefillWait

	respValid := cur.state.Waiting()
	var resp msg.Response
	if respValid {
		resp = u.response()
	}
	p.BuffResp.Valid, p.BuffResp.Msg = u.respBuf.Eval(respValid, resp, p.BuffResp.Ready)

	u.ev.reqFired = p.BuffReq.Fire()
	u.ev.req = p.BuffReq.Msg
	u.ev.respFired = respValid && u.respBuf.EnqFired()
	u.ev.resp = resp
	u.ev.deqFired = u.respBuf.DeqFired()
	u.ev.respOffered = p.BuffResp.Valid
	u.ev.memReqFired = p.MemReq.Fire()
	u.ev.memReq = p.MemReq.Msg
	u.ev.memRespFired = p.MemResp.Fire()
	u.ev.memResp = p.MemResp.Msg

	u.evalNextState()
	u.evaluated = true
}

func (u *Unit) evalNextState() {
	cur := &u.cur
	next := &u.next

	switch cur.state {
	case StateIdle:
		if u.ev.reqFired {
			next.req = u.ev.req
			next.hitLoc = cache.Location{}
			next.victim = cache.Location{}
			next.refill = nil
			next.state = StateTagCheck
		}

	case StateTagCheck:
		loc, hit := u.store.Lookup(uint64(cur.req.Addr))
		u.ev.tagHit = hit
		if hit {
			next.hitLoc = loc
			next.state = StateWaitHit
		} else {
			next.state = StateReadDataAccessMiss
		}

	case StateReadDataAccessMiss:
		next.victim = u.store.Victim(uint64(cur.req.Addr))
		next.state = StateRefillRequest

	case StateRefillRequest:
		if u.ev.memReqFired {
			next.state = StateRefillWait
		}

	case StateRefillWait:
		if u.ev.memRespFired {
			line := make([]byte, len(u.ev.memResp.Data))
			copy(line, u.ev.memResp.Data)
			next.refill = line
			next.state = StateRefillUpdate
		}

	case StateRefillUpdate:
		next.hitLoc = cur.victim
		next.memOpaque = cur.memOpaque + 1
		next.state = StateWaitMiss

	case StateWaitHit, StateWaitMiss:
		if u.ev.respFired {
			next.state = StateIdle
		}
	}
}

func (u *Unit) memRequest() msg.MemRequest {
	return msg.MemRequest{
		Type:   msg.TypeRead,
		Opaque: u.cur.memOpaque,
		Addr:   uint32(u.store.LineAddr(uint64(u.cur.req.Addr))),
		Len:    u.config.LineBytes,
	}
}

func (u *Unit) response() msg.Response {
	req := u.cur.req
	return msg.Response{
		Type:   req.Type,
		Opaque: req.Opaque,
		Len:    req.Len,
		Data:   u.store.Word(u.cur.hitLoc, uint64(req.Addr)),
	}
}

// Commit applies the next state computed by the last Eval: controller state,
// datapath registers, the line store write of REFILL_UPDATE and the response
// buffer. Hooks are invoked after the state has been applied.
func (u *Unit) Commit() {
	if !u.evaluated {
		panic("instbuffer: Commit called without Eval")
	}

	cur := u.cur
	ev := u.ev

	var refill *Refill
	switch cur.state {
	case StateTagCheck:
		if ev.tagHit {
			u.store.Touch(u.next.hitLoc)
		}
	case StateRefillUpdate:
		refill = u.install(cur)
	}

	u.respBuf.Commit()
	u.cur = u.next
	u.evaluated = false

	u.countCycle(cur.state, ev, refill)
	u.logCycle(cur, ev, refill)
	u.invokeHooks(cur.state, ev, refill)

	u.cycle++
}

func (u *Unit) install(cur registers) *Refill {
	addr := u.store.LineAddr(uint64(cur.req.Addr))
	refill := &Refill{
		Addr:    addr,
		SetID:   cur.victim.SetID(),
		WayID:   cur.victim.WayID(),
		Evicted: cur.victim.Occupied(),
	}
	if refill.Evicted {
		refill.EvictedAddr = cur.victim.Tag()
	}

	u.store.Install(cur.victim, addr, cur.refill)

	return refill
}

func (u *Unit) countCycle(state State, ev events, refill *Refill) {
	s := &u.stats

	s.Cycles++
	s.StateCycles[state]++

	if ev.reqFired {
		s.Requests++
	}
	if state == StateTagCheck {
		if ev.tagHit {
			s.Hits++
		} else {
			s.Misses++
		}
	}
	if ev.memReqFired {
		s.MemRequests++
	}
	if refill != nil {
		s.Refills++
		if refill.Evicted {
			s.Evictions++
		}
	}
	if ev.respFired {
		s.Responses++
	}
	if ev.deqFired {
		s.Delivered++
	}

	if ev.respOffered && !ev.deqFired {
		s.RespStallCycles++
	}

	switch {
	case state == StateRefillRequest && !ev.memReqFired:
		s.MemReqStallCycles++
	case state == StateRefillWait && !ev.memRespFired:
		s.RefillWaitCycles++
	}
}

func (u *Unit) logCycle(cur registers, ev events, refill *Refill) {
	if ev.memReqFired {
		u.logger.Debug().
			Uint64("cycle", u.cycle).
			Uint32("addr", ev.memReq.Addr).
			Uint8("opaque", ev.memReq.Opaque).
			Msg("refill issued")
	}

	if ev.memRespFired && ev.memResp.Opaque != cur.memOpaque {
		u.logger.Warn().
			Uint64("cycle", u.cycle).
			Uint8("expected", cur.memOpaque).
			Uint8("got", ev.memResp.Opaque).
			Msg("memory response opaque mismatch")
	}

	if ev.memRespFired && len(ev.memResp.Data) != u.config.LineBytes {
		u.logger.Warn().
			Uint64("cycle", u.cycle).
			Int("expected", u.config.LineBytes).
			Int("got", len(ev.memResp.Data)).
			Msg("memory response line size mismatch")
	}

	if refill != nil {
		u.logger.Debug().
			Uint64("cycle", u.cycle).
			Uint64("addr", refill.Addr).
			Int("set", refill.SetID).
			Int("way", refill.WayID).
			Bool("evicted", refill.Evicted).
			Msg("refill installed")
	}
}

func (u *Unit) invokeHooks(from State, ev events, refill *Refill) {
	if u.NumHooks() == 0 {
		return
	}

	if ev.reqFired {
		u.invoke(HookPosReqAccept, ev.req)
	}
	if ev.memReqFired {
		u.invoke(HookPosRefillIssue, ev.memReq)
	}
	if refill != nil {
		u.invoke(HookPosRefillDone, *refill)
	}
	if ev.respFired {
		u.invoke(HookPosRespIssue, ev.resp)
	}
	if to := u.cur.state; to != from {
		u.invoke(HookPosStateChange, Transition{From: from, To: to})
	}
}

func (u *Unit) invoke(pos *sim.HookPos, item interface{}) {
	u.InvokeHook(sim.HookCtx{
		Domain: u,
		Pos:    pos,
		Item:   item,
		Detail: u.cycle,
	})
}

// Tick evaluates and commits one cycle. It is a shortcut for callers whose
// inputs do not depend on the Unit's outputs of the same cycle.
func (u *Unit) Tick(p *Ports) {
	u.Eval(p)
	u.Commit()
}

// Reset returns the Unit to IDLE with an empty line store, an empty
// response buffer and cleared counters.
func (u *Unit) Reset() {
	u.cur = registers{state: StateIdle}
	u.next = u.cur
	u.ev = events{}
	u.evaluated = false
	u.cycle = 0
	u.stats = Statistics{}
	u.store.Reset()
	u.respBuf.Reset()
}
