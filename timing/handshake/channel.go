// Package handshake provides the valid/ready flow-control primitives shared by
// the instruction buffer and the models that surround it.
//
// A transfer on a Channel happens only in a cycle where both Valid and Ready
// are high. Producers drive Valid and Msg, consumers drive Ready.
package handshake

// Channel holds the signals of one valid/ready interface for the current
// cycle.
type Channel[T any] struct {
	Valid bool
	Ready bool
	Msg   T
}

// Fire returns true if a transfer happens on the channel this cycle.
func (c *Channel[T]) Fire() bool {
	return c.Valid && c.Ready
}

// Clear drops all signals to their idle values.
func (c *Channel[T]) Clear() {
	var zero T
	c.Valid = false
	c.Ready = false
	c.Msg = zero
}
