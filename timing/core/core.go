// Package core provides a processor-side fetch engine that drives the
// instruction buffer with a stream of fetch addresses.
package core

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/sarchlab/instbuf/timing/instbuffer"
	"github.com/sarchlab/instbuf/timing/memory"
	"github.com/sarchlab/instbuf/timing/msg"
)

// ErrNotDone is returned when a run reaches its cycle limit before the
// stream has been fetched.
var ErrNotDone = errors.New("fetch stream not finished")

// Stats holds performance statistics for the core.
type Stats struct {
	// Cycles is the total number of cycles simulated.
	Cycles uint64
	// Issued is the number of fetch requests accepted by the buffer.
	Issued uint64
	// Fetched is the number of instruction words received.
	Fetched uint64
	// StallCycles counts cycles a fetch request waited to be accepted.
	StallCycles uint64
}

// CPF returns the average number of cycles per fetched word.
func (s Stats) CPF() float64 {
	if s.Fetched == 0 {
		return 0
	}
	return float64(s.Cycles) / float64(s.Fetched)
}

// Option is a functional option for the Core.
type Option func(*Core)

// WithRecord keeps every fetched word, retrievable with Fetched.
func WithRecord() Option {
	return func(c *Core) {
		c.record = true
	}
}

// WithLogger sets the core's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Core) {
		c.logger = logger
	}
}

// Core fetches every address of a Stream through the instruction buffer.
// It keeps one fetch request pending at a time and is always ready to take
// a response.
type Core struct {
	unit   *instbuffer.Unit
	ctrl   *memory.Controller
	stream Stream
	ports  instbuffer.Ports

	pending   bool
	pc        uint32
	exhausted bool

	record  bool
	fetched []uint32

	logger zerolog.Logger
	stats  Stats
}

// NewCore creates a Core that fetches stream through unit, backed by ctrl.
func NewCore(
	unit *instbuffer.Unit,
	ctrl *memory.Controller,
	stream Stream,
	opts ...Option,
) *Core {
	c := &Core{
		unit:   unit,
		ctrl:   ctrl,
		stream: stream,
		logger: zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Unit returns the instruction buffer.
func (c *Core) Unit() *instbuffer.Unit {
	return c.unit
}

// Memory returns the backing memory.
func (c *Core) Memory() *memory.Memory {
	return c.ctrl.Memory()
}

// Tick executes one cycle.
func (c *Core) Tick() {
	p := &c.ports

	if !c.pending && !c.exhausted {
		c.pc, c.pending = c.stream.Next()
		c.exhausted = !c.pending
	}

	p.BuffReq.Valid = c.pending
	p.BuffReq.Msg = msg.Request{}
	if c.pending {
		p.BuffReq.Msg = msg.Request{
			Type:   msg.TypeRead,
			Opaque: uint8(c.stats.Issued),
			Addr:   c.pc,
		}
	}
	p.BuffResp.Ready = true

	c.ctrl.Drive(&p.MemReq, &p.MemResp)
	c.unit.Eval(p)

	if p.BuffReq.Fire() {
		c.pending = false
		c.stats.Issued++
	} else if c.pending {
		c.stats.StallCycles++
	}

	if p.BuffResp.Fire() {
		c.stats.Fetched++
		if c.record {
			c.fetched = append(c.fetched, p.BuffResp.Msg.Data)
		}
	}

	c.ctrl.Commit(&p.MemReq, &p.MemResp)
	c.unit.Commit()
	c.stats.Cycles++
}

// Done returns true once every address of the stream has been fetched.
func (c *Core) Done() bool {
	return c.exhausted && !c.pending && c.stats.Fetched == c.stats.Issued
}

// Run ticks until the stream has been fetched. It returns ErrNotDone if
// maxCycles elapse first.
func (c *Core) Run(maxCycles uint64) error {
	for !c.Done() {
		if c.stats.Cycles >= maxCycles {
			return fmt.Errorf("%d words after %d cycles: %w",
				c.stats.Fetched, c.stats.Cycles, ErrNotDone)
		}
		c.Tick()
	}

	c.logger.Debug().
		Uint64("cycles", c.stats.Cycles).
		Uint64("fetched", c.stats.Fetched).
		Float64("cpf", c.stats.CPF()).
		Msg("fetch stream done")

	return nil
}

// RunCycles executes the core for the specified number of cycles.
// Returns true if still running, false if done.
func (c *Core) RunCycles(cycles uint64) bool {
	for i := uint64(0); i < cycles && !c.Done(); i++ {
		c.Tick()
	}
	return !c.Done()
}

// Stats returns performance statistics for the core.
func (c *Core) Stats() Stats {
	return c.stats
}

// Fetched returns the recorded words. It is empty unless the Core was
// created WithRecord.
func (c *Core) Fetched() []uint32 {
	return c.fetched
}

// Reset rewinds the stream and clears the core, the buffer and the memory
// controller. The backing memory keeps its contents.
func (c *Core) Reset() {
	c.stream.Reset()
	c.unit.Reset()
	c.ctrl.Reset()
	c.ports = instbuffer.Ports{}
	c.pending = false
	c.exhausted = false
	c.fetched = nil
	c.stats = Stats{}
}
