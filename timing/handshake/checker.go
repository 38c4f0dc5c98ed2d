package handshake

import (
	"errors"
	"fmt"
	"reflect"
)

var (
	// ErrValidDropped is reported when a producer lowers valid before the
	// message has been accepted.
	ErrValidDropped = errors.New("valid dropped before transfer")

	// ErrMsgChanged is reported when a producer changes the message while
	// valid is high and the message has not been accepted.
	ErrMsgChanged = errors.New("message changed before transfer")
)

// Checker watches one Channel from the outside and reports producer-side
// protocol violations. It never affects the channel.
type Checker[T any] struct {
	name string

	pending    bool
	pendingMsg T

	cycle uint64
	err   error
}

// NewChecker creates a Checker for the channel with the given name.
func NewChecker[T any](name string) *Checker[T] {
	return &Checker[T]{name: name}
}

// Name returns the name of the checked channel.
func (c *Checker[T]) Name() string {
	return c.name
}

// Observe inspects the settled signals of the channel for one cycle. It must
// be called once per cycle after all producers and consumers have driven the
// channel. It returns the first violation seen so far.
func (c *Checker[T]) Observe(ch *Channel[T]) error {
	defer func() { c.cycle++ }()

	if c.err != nil {
		return c.err
	}

	if c.pending {
		if !ch.Valid {
			c.err = fmt.Errorf("%s at cycle %d: %w", c.name, c.cycle, ErrValidDropped)
			return c.err
		}

		if !reflect.DeepEqual(ch.Msg, c.pendingMsg) {
			c.err = fmt.Errorf("%s at cycle %d: %w", c.name, c.cycle, ErrMsgChanged)
			return c.err
		}
	}

	c.pending = ch.Valid && !ch.Ready
	if c.pending {
		c.pendingMsg = ch.Msg
	}

	return nil
}

// Err returns the first violation observed, or nil.
func (c *Checker[T]) Err() error {
	return c.err
}

// Reset forgets all observed history.
func (c *Checker[T]) Reset() {
	var zero T
	c.pending = false
	c.pendingMsg = zero
	c.cycle = 0
	c.err = nil
}
