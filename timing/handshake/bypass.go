package handshake

// Bypass is a single-element elastic buffer with a pass-through path.
//
// While empty, an incoming message is presented on the output in the same
// cycle, so it costs no latency when the consumer is already ready. The
// message is only stored when the consumer does not take it. While full, the
// buffer refuses new input and presents the stored message.
//
// Eval computes the outputs and the next state for the cycle without
// changing the current state. Commit applies the next state.
type Bypass[T any] struct {
	full  bool
	entry T

	nextFull  bool
	nextEntry T

	enqFired bool
	deqFired bool
}

// NewBypass creates an empty Bypass buffer.
func NewBypass[T any]() *Bypass[T] {
	return &Bypass[T]{}
}

// EnqReady returns true if the buffer can accept a message this cycle. It
// depends only on the buffer state, never on the consumer's ready signal.
func (b *Bypass[T]) EnqReady() bool {
	return !b.full
}

// Full returns true if a message is stored in the buffer.
func (b *Bypass[T]) Full() bool {
	return b.full
}

// Peek returns the stored message, if any.
func (b *Bypass[T]) Peek() (T, bool) {
	return b.entry, b.full
}

// Eval computes the output side of the buffer for the cycle and the state the
// buffer moves to at the next Commit.
func (b *Bypass[T]) Eval(
	enqValid bool,
	enqMsg T,
	deqReady bool,
) (deqValid bool, deqMsg T) {
	if b.full {
		deqValid = true
		deqMsg = b.entry
	} else {
		deqValid = enqValid
		deqMsg = enqMsg
	}

	b.enqFired = enqValid && b.EnqReady()
	b.deqFired = deqValid && deqReady

	b.nextFull = b.full
	b.nextEntry = b.entry

	switch {
	case b.full && b.deqFired:
		var zero T
		b.nextFull = false
		b.nextEntry = zero
	case !b.full && b.enqFired && !b.deqFired:
		b.nextFull = true
		b.nextEntry = enqMsg
	}

	return deqValid, deqMsg
}

// EnqFired returns true if the last Eval accepted a message.
func (b *Bypass[T]) EnqFired() bool {
	return b.enqFired
}

// DeqFired returns true if the last Eval delivered a message.
func (b *Bypass[T]) DeqFired() bool {
	return b.deqFired
}

// Commit applies the state computed by the last Eval.
func (b *Bypass[T]) Commit() {
	b.full = b.nextFull
	b.entry = b.nextEntry
	b.enqFired = false
	b.deqFired = false
}

// Reset empties the buffer.
func (b *Bypass[T]) Reset() {
	var zero T
	b.full = false
	b.entry = zero
	b.nextFull = false
	b.nextEntry = zero
	b.enqFired = false
	b.deqFired = false
}
