package harness

import (
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/instbuf/timing/handshake"
	"github.com/sarchlab/instbuf/timing/instbuffer"
	"github.com/sarchlab/instbuf/timing/memory"
	"github.com/sarchlab/instbuf/timing/msg"
)

// ErrTimeout is returned when a run does not finish within its cycle limit.
var ErrTimeout = errors.New("simulation timed out")

// Config holds the parameters of the components a Bench builds.
type Config struct {
	Buffer instbuffer.Config
	Memory memory.ControllerConfig
}

// DefaultConfig returns the default instruction buffer behind a one-cycle
// memory.
func DefaultConfig() Config {
	return Config{
		Buffer: *instbuffer.DefaultConfig(),
		Memory: *memory.DefaultControllerConfig(),
	}
}

// Transfers counts the transfers seen on each interface.
type Transfers struct {
	BuffReq  uint64
	BuffResp uint64
	MemReq   uint64
	MemResp  uint64
}

// Option is a functional option for the Bench.
type Option func(*Bench)

// WithLogger sets the logger passed to the unit and memory controller.
func WithLogger(logger zerolog.Logger) Option {
	return func(b *Bench) {
		b.logger = logger
	}
}

// WithTrace writes one line trace per cycle to w.
func WithTrace(w io.Writer) Option {
	return func(b *Bench) {
		b.trace = w
	}
}

// WithHook attaches a hook to the instruction buffer.
func WithHook(hook sim.Hook) Option {
	return func(b *Bench) {
		b.hooks = append(b.hooks, hook)
	}
}

// Bench connects a Source and a Sink to an instruction buffer backed by a
// memory controller and advances them cycle by cycle.
type Bench struct {
	unit   *instbuffer.Unit
	ctrl   *memory.Controller
	source *Source
	sink   *Sink

	ports instbuffer.Ports

	buffReqCheck  *handshake.Checker[msg.Request]
	buffRespCheck *handshake.Checker[msg.Response]
	memReqCheck   *handshake.Checker[msg.MemRequest]
	memRespCheck  *handshake.Checker[msg.MemResponse]

	logger zerolog.Logger
	trace  io.Writer
	hooks  []sim.Hook

	cycle     uint64
	transfers Transfers
}

// NewBench builds an instruction buffer and a memory controller in front
// of mem and connects them to src and sink.
func NewBench(
	config Config,
	mem *memory.Memory,
	src *Source,
	sink *Sink,
	opts ...Option,
) (*Bench, error) {
	b := &Bench{
		source:        src,
		sink:          sink,
		buffReqCheck:  handshake.NewChecker[msg.Request]("buffreq"),
		buffRespCheck: handshake.NewChecker[msg.Response]("buffresp"),
		memReqCheck:   handshake.NewChecker[msg.MemRequest]("memreq"),
		memRespCheck:  handshake.NewChecker[msg.MemResponse]("memresp"),
		logger:        zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(b)
	}

	unit, err := instbuffer.New(config.Buffer, instbuffer.WithLogger(b.logger))
	if err != nil {
		return nil, err
	}
	for _, hook := range b.hooks {
		unit.AcceptHook(hook)
	}

	ctrl, err := memory.NewController(config.Memory, mem,
		memory.WithControllerLogger(b.logger))
	if err != nil {
		return nil, err
	}

	b.unit = unit
	b.ctrl = ctrl

	return b, nil
}

// Unit returns the instruction buffer under test.
func (b *Bench) Unit() *instbuffer.Unit {
	return b.unit
}

// Controller returns the memory controller.
func (b *Bench) Controller() *memory.Controller {
	return b.ctrl
}

// Cycle returns the number of cycles run.
func (b *Bench) Cycle() uint64 {
	return b.cycle
}

// Transfers returns the transfer counts per interface.
func (b *Bench) Transfers() Transfers {
	return b.transfers
}

// Done returns true once the source has issued every request and the sink
// has received every response.
func (b *Bench) Done() bool {
	return b.source.Done() && b.sink.Done()
}

// Tick advances the bench by one cycle. The environment drives its outputs
// first, then the unit evaluates, then every component commits.
func (b *Bench) Tick() error {
	p := &b.ports

	b.source.Drive(&p.BuffReq)
	b.sink.Drive(&p.BuffResp)
	b.ctrl.Drive(&p.MemReq, &p.MemResp)

	b.unit.Eval(p)

	if err := b.observe(); err != nil {
		return err
	}

	if b.trace != nil {
		fmt.Fprintf(b.trace, "%4d: %s\n", b.cycle, b.lineTrace())
	}

	b.source.Commit(&p.BuffReq)
	sinkErr := b.sink.Commit(&p.BuffResp)
	b.ctrl.Commit(&p.MemReq, &p.MemResp)
	b.unit.Commit()

	b.cycle++

	return sinkErr
}

func (b *Bench) observe() error {
	p := &b.ports

	if p.BuffReq.Fire() {
		b.transfers.BuffReq++
	}
	if p.BuffResp.Fire() {
		b.transfers.BuffResp++
	}
	if p.MemReq.Fire() {
		b.transfers.MemReq++
	}
	if p.MemResp.Fire() {
		b.transfers.MemResp++
	}

	return errors.Join(
		b.buffReqCheck.Observe(&p.BuffReq),
		b.buffRespCheck.Observe(&p.BuffResp),
		b.memReqCheck.Observe(&p.MemReq),
		b.memRespCheck.Observe(&p.MemResp),
	)
}

func (b *Bench) lineTrace() string {
	p := &b.ports
	return fmt.Sprintf("%s > %s > %s | %s > %s",
		channelTrace(&p.BuffReq),
		b.unit.LineTrace(),
		channelTrace(&p.BuffResp),
		channelTrace(&p.MemReq),
		channelTrace(&p.MemResp),
	)
}

// channelTrace renders a channel the way line traces usually do: the message
// on a transfer, "#" when valid is stalled, "." when idle.
func channelTrace[T fmt.Stringer](ch *handshake.Channel[T]) string {
	switch {
	case ch.Fire():
		return ch.Msg.String()
	case ch.Valid:
		return "#"
	default:
		return "."
	}
}

// Run ticks the bench until it is done or maxCycles have elapsed.
func (b *Bench) Run(maxCycles uint64) error {
	for !b.Done() {
		if b.cycle >= maxCycles {
			return fmt.Errorf("%d of %d responses after %d cycles: %w",
				len(b.sink.Received()), len(b.sink.expected), b.cycle, ErrTimeout)
		}

		if err := b.Tick(); err != nil {
			return err
		}
	}

	b.logger.Debug().
		Uint64("cycles", b.cycle).
		Uint64("requests", b.transfers.BuffReq).
		Uint64("refills", b.transfers.MemReq).
		Msg("bench finished")

	return nil
}
