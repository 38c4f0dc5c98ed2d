// Package harness provides test sources, sinks and a cycle-level bench that
// wires them to an instruction buffer and a memory controller.
package harness

import (
	"math/rand"

	"github.com/sarchlab/instbuf/timing/handshake"
	"github.com/sarchlab/instbuf/timing/memory"
	"github.com/sarchlab/instbuf/timing/msg"
)

// Source issues a fixed list of requests in order. Valid stays high for a
// request until it is accepted.
type Source struct {
	reqs []msg.Request
	idx  int

	maxDelay int
	rng      *rand.Rand
	wait     int
}

// SourceOption is a functional option for the Source.
type SourceOption func(*Source)

// WithSourceDelay inserts a random gap of up to maxDelay idle cycles before
// each request.
func WithSourceDelay(maxDelay int, seed int64) SourceOption {
	return func(s *Source) {
		s.maxDelay = maxDelay
		s.rng = rand.New(rand.NewSource(seed))
	}
}

// NewSource creates a Source for the given requests.
func NewSource(reqs []msg.Request, opts ...SourceOption) *Source {
	s := &Source{reqs: reqs}
	for _, opt := range opts {
		opt(s)
	}
	s.wait = s.delay()
	return s
}

func (s *Source) delay() int {
	if s.maxDelay <= 0 || s.rng == nil {
		return 0
	}
	return s.rng.Intn(s.maxDelay + 1)
}

// Drive sets Valid and Msg of the request channel.
func (s *Source) Drive(ch *handshake.Channel[msg.Request]) {
	ch.Valid = !s.Done() && s.wait == 0
	ch.Msg = msg.Request{}
	if ch.Valid {
		ch.Msg = s.reqs[s.idx]
	}
}

// Commit advances past an accepted request.
func (s *Source) Commit(ch *handshake.Channel[msg.Request]) {
	if s.Done() {
		return
	}

	if ch.Fire() {
		s.idx++
		s.wait = s.delay()
		return
	}

	if s.wait > 0 {
		s.wait--
	}
}

// Done returns true once every request has been accepted.
func (s *Source) Done() bool {
	return s.idx >= len(s.reqs)
}

// Issued returns the number of requests accepted so far.
func (s *Source) Issued() int {
	return s.idx
}

// Reads builds word read requests for addrs along with the responses a
// correct instruction buffer returns when backed by mem. Opaque fields count
// up from zero and wrap at 256.
func Reads(mem *memory.Memory, addrs ...uint32) ([]msg.Request, []msg.Response) {
	reqs := make([]msg.Request, 0, len(addrs))
	resps := make([]msg.Response, 0, len(addrs))

	for i, addr := range addrs {
		opaque := uint8(i)
		reqs = append(reqs, msg.Request{
			Type:   msg.TypeRead,
			Opaque: opaque,
			Addr:   addr,
		})
		resps = append(resps, msg.Response{
			Type:   msg.TypeRead,
			Opaque: opaque,
			Data:   mem.Read32(uint64(addr &^ (msg.WordBytes - 1))),
		})
	}

	return reqs, resps
}
