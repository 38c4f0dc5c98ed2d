package memory

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/rs/zerolog"
	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/instbuf/timing/handshake"
	"github.com/sarchlab/instbuf/timing/msg"
)

var (
	// ErrLatency is returned when the latency is below one cycle.
	ErrLatency = errors.New("latency must be >= 1")

	// ErrQueueDepth is returned when the controller cannot hold a request.
	ErrQueueDepth = errors.New("queue_depth must be > 0")

	// ErrJitter is returned for a negative jitter bound.
	ErrJitter = errors.New("max_jitter must be >= 0")
)

// ControllerConfig holds the timing parameters of the memory controller.
type ControllerConfig struct {
	// Latency is the number of cycles between accepting a request and
	// offering its response. Default: 1.
	Latency int `json:"latency"`

	// QueueDepth is the number of requests that may be in flight.
	// Default: 1.
	QueueDepth int `json:"queue_depth"`

	// MaxJitter adds a random delay of up to MaxJitter cycles to each
	// response. Default: 0.
	MaxJitter int `json:"max_jitter"`

	// Seed seeds the jitter generator.
	Seed int64 `json:"seed"`
}

// DefaultControllerConfig returns a single-entry memory with one-cycle
// latency and no jitter.
func DefaultControllerConfig() *ControllerConfig {
	return &ControllerConfig{
		Latency:    1,
		QueueDepth: 1,
	}
}

// Validate checks the configuration.
func (c *ControllerConfig) Validate() error {
	if c.Latency < 1 {
		return ErrLatency
	}
	if c.QueueDepth <= 0 {
		return ErrQueueDepth
	}
	if c.MaxJitter < 0 {
		return ErrJitter
	}
	return nil
}

// ControllerStats holds memory controller counters.
type ControllerStats struct {
	Cycles uint64
	Reads  uint64
	Writes uint64
	Inits  uint64
	// BytesRead is the total payload returned by reads.
	BytesRead uint64
	// BusyCycles counts cycles with at least one request in flight.
	BusyCycles uint64
	// StallCycles counts cycles a response was offered but not taken.
	StallCycles uint64
}

type inflight struct {
	resp    msg.MemResponse
	readyAt uint64
}

// Controller models the memory side of the memreq/memresp interfaces. It
// accepts requests while its in-flight queue has room and returns responses
// in order, each no earlier than Latency cycles after its request was
// accepted.
//
// Drive sets the controller's outputs from its state alone, so it must be
// called before the instruction buffer evaluates. Commit consumes the
// transfers of the cycle.
type Controller struct {
	name    string
	config  ControllerConfig
	memory  *Memory
	queue   sim.Buffer
	rng     *rand.Rand
	logger  zerolog.Logger
	cycle   uint64
	lastDue uint64
	stats   ControllerStats
}

// ControllerOption is a functional option for the Controller.
type ControllerOption func(*Controller)

// WithControllerLogger sets the controller's logger.
func WithControllerLogger(logger zerolog.Logger) ControllerOption {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithControllerName sets the name of the controller and its queue.
func WithControllerName(name string) ControllerOption {
	return func(c *Controller) {
		c.name = name
	}
}

// NewController creates a memory controller in front of mem.
func NewController(
	config ControllerConfig,
	mem *Memory,
	opts ...ControllerOption,
) (*Controller, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid memory controller config: %w", err)
	}

	c := &Controller{
		name:   "Memory",
		config: config,
		memory: mem,
		rng:    rand.New(rand.NewSource(config.Seed)),
		logger: zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.queue = sim.NewBuffer(c.name+".InflightQueue", config.QueueDepth)

	return c, nil
}

// Name returns the name of the controller.
func (c *Controller) Name() string {
	return c.name
}

// Memory returns the backing memory.
func (c *Controller) Memory() *Memory {
	return c.memory
}

// Stats returns the controller counters.
func (c *Controller) Stats() ControllerStats {
	return c.stats
}

// InFlight returns the number of requests waiting for their response.
func (c *Controller) InFlight() int {
	return c.queue.Size()
}

// Drive sets req.Ready and resp.Valid/Msg for the current cycle.
func (c *Controller) Drive(
	req *handshake.Channel[msg.MemRequest],
	resp *handshake.Channel[msg.MemResponse],
) {
	req.Ready = c.queue.CanPush()

	resp.Valid = false
	resp.Msg = msg.MemResponse{}

	head := c.queue.Peek()
	if head == nil {
		return
	}

	entry := head.(*inflight)
	if entry.readyAt <= c.cycle {
		resp.Valid = true
		resp.Msg = entry.resp
	}
}

// Commit retires the response taken this cycle and accepts the request
// offered this cycle.
func (c *Controller) Commit(
	req *handshake.Channel[msg.MemRequest],
	resp *handshake.Channel[msg.MemResponse],
) {
	c.stats.Cycles++
	if c.queue.Size() > 0 {
		c.stats.BusyCycles++
	}

	if resp.Fire() {
		c.queue.Pop()
	} else if resp.Valid {
		c.stats.StallCycles++
	}

	if req.Fire() {
		c.accept(req.Msg)
	}

	c.cycle++
}

func (c *Controller) accept(req msg.MemRequest) {
	due := c.cycle + uint64(c.config.Latency)
	if c.config.MaxJitter > 0 {
		due += uint64(c.rng.Intn(c.config.MaxJitter + 1))
	}
	if due < c.lastDue {
		due = c.lastDue
	}
	c.lastDue = due

	c.queue.Push(&inflight{
		resp:    c.serve(req),
		readyAt: due,
	})

	c.logger.Trace().
		Uint64("cycle", c.cycle).
		Stringer("req", req).
		Uint64("due", due).
		Msg("memory request accepted")
}

func (c *Controller) serve(req msg.MemRequest) msg.MemResponse {
	resp := msg.MemResponse{
		Type:   req.Type,
		Opaque: req.Opaque,
	}

	switch req.Type {
	case msg.TypeRead:
		resp.Len = req.Len
		resp.Data = make([]byte, req.Len)
		c.memory.ReadBytes(uint64(req.Addr), resp.Data)
		c.stats.Reads++
		c.stats.BytesRead += uint64(req.Len)
	case msg.TypeWrite:
		c.memory.WriteBytes(uint64(req.Addr), req.Data)
		c.stats.Writes++
	case msg.TypeInit:
		c.memory.WriteBytes(uint64(req.Addr), req.Data)
		c.stats.Inits++
	}

	return resp
}

// Reset drops every in-flight request and clears the counters. The backing
// memory is left untouched.
func (c *Controller) Reset() {
	c.queue.Clear()
	c.cycle = 0
	c.lastDue = 0
	c.stats = ControllerStats{}
	c.rng = rand.New(rand.NewSource(c.config.Seed))
}
