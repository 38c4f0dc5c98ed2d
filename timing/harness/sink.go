package harness

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/sarchlab/instbuf/timing/handshake"
	"github.com/sarchlab/instbuf/timing/msg"
)

var (
	// ErrMismatch is returned when a response differs from the expected one.
	ErrMismatch = errors.New("response mismatch")

	// ErrUnexpected is returned when more responses arrive than expected.
	ErrUnexpected = errors.New("unexpected response")
)

// Sink consumes responses and compares them, in order, against a list of
// expected responses.
type Sink struct {
	expected []msg.Response
	received []msg.Response

	stallProb float64
	rng       *rand.Rand

	stallCycles int
	idle        int

	err error
}

// SinkOption is a functional option for the Sink.
type SinkOption func(*Sink)

// WithRandomStall lowers ready with probability prob in every cycle.
func WithRandomStall(prob float64, seed int64) SinkOption {
	return func(s *Sink) {
		s.stallProb = prob
		s.rng = rand.New(rand.NewSource(seed))
	}
}

// WithFixedStall holds ready low for n cycles after every accepted response.
func WithFixedStall(n int) SinkOption {
	return func(s *Sink) {
		s.stallCycles = n
	}
}

// NewSink creates a Sink expecting the given responses.
func NewSink(expected []msg.Response, opts ...SinkOption) *Sink {
	s := &Sink{expected: expected}
	for _, opt := range opts {
		opt(s)
	}
	s.idle = s.stallCycles
	return s
}

// Drive sets Ready of the response channel.
func (s *Sink) Drive(ch *handshake.Channel[msg.Response]) {
	ready := s.idle >= s.stallCycles
	if ready && s.rng != nil && s.rng.Float64() < s.stallProb {
		ready = false
	}
	ch.Ready = ready
}

// Commit records a transferred response and checks it. It returns the first
// error seen.
func (s *Sink) Commit(ch *handshake.Channel[msg.Response]) error {
	if !ch.Fire() {
		s.idle++
		return s.err
	}

	s.idle = 0
	got := ch.Msg
	idx := len(s.received)
	s.received = append(s.received, got)

	if s.err != nil {
		return s.err
	}

	if idx >= len(s.expected) {
		s.err = fmt.Errorf("response %d %s: %w", idx, got, ErrUnexpected)
		return s.err
	}

	if want := s.expected[idx]; got != want {
		s.err = fmt.Errorf("response %d: got %s, want %s: %w",
			idx, got, want, ErrMismatch)
	}

	return s.err
}

// Done returns true once every expected response has arrived.
func (s *Sink) Done() bool {
	return len(s.received) >= len(s.expected)
}

// Received returns the responses accepted so far.
func (s *Sink) Received() []msg.Response {
	return s.received
}

// Err returns the first error seen.
func (s *Sink) Err() error {
	return s.err
}
