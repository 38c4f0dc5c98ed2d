// Package tracing records instruction buffer events, as delivered by its
// hooks, to a trace Writer such as an SQLite database.
package tracing

import (
	"fmt"

	"github.com/rs/xid"
	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/instbuf/timing/instbuffer"
)

// Event kinds.
const (
	KindState       = "state"
	KindReqAccept   = "req"
	KindRespIssue   = "resp"
	KindRefillIssue = "refill_issue"
	KindRefillDone  = "refill_done"
)

// Event is one traced occurrence.
type Event struct {
	// Session identifies the simulation run that produced the event.
	Session string
	Cycle   uint64
	// Unit is the name of the component that produced the event.
	Unit string
	Kind string
	// What is a short description, e.g. the message or the state change.
	What string
	// Detail carries extra information, e.g. the refilled entry.
	Detail string
}

// Writer persists events.
type Writer interface {
	Init() error
	Write(event Event) error
	Flush() error
	Close() error
}

type named interface {
	Name() string
}

// Recorder is a sim.Hook that turns instruction buffer hook invocations into
// events and passes them to a Writer.
type Recorder struct {
	session string
	writer  Writer
	count   uint64
	err     error
}

// NewRecorder creates a Recorder for a new session.
func NewRecorder(writer Writer) *Recorder {
	return &Recorder{
		session: xid.New().String(),
		writer:  writer,
	}
}

// Session returns the session id stamped on every event.
func (r *Recorder) Session() string {
	return r.session
}

// Count returns the number of events written.
func (r *Recorder) Count() uint64 {
	return r.count
}

// Err returns the first error returned by the writer. Events are dropped
// once an error has occurred.
func (r *Recorder) Err() error {
	return r.err
}

// Func implements sim.Hook.
func (r *Recorder) Func(ctx sim.HookCtx) {
	if r.err != nil {
		return
	}

	event, ok := r.convert(ctx)
	if !ok {
		return
	}

	if err := r.writer.Write(event); err != nil {
		r.err = fmt.Errorf("failed to write trace event: %w", err)
		return
	}
	r.count++
}

func (r *Recorder) convert(ctx sim.HookCtx) (Event, bool) {
	event := Event{Session: r.session}

	if cycle, ok := ctx.Detail.(uint64); ok {
		event.Cycle = cycle
	}
	if d, ok := ctx.Domain.(named); ok {
		event.Unit = d.Name()
	}

	switch ctx.Pos {
	case instbuffer.HookPosStateChange:
		t := ctx.Item.(instbuffer.Transition)
		event.Kind = KindState
		event.What = t.From.String() + "->" + t.To.String()
	case instbuffer.HookPosReqAccept:
		event.Kind = KindReqAccept
		event.What = fmt.Sprint(ctx.Item)
	case instbuffer.HookPosRespIssue:
		event.Kind = KindRespIssue
		event.What = fmt.Sprint(ctx.Item)
	case instbuffer.HookPosRefillIssue:
		event.Kind = KindRefillIssue
		event.What = fmt.Sprint(ctx.Item)
	case instbuffer.HookPosRefillDone:
		refill := ctx.Item.(instbuffer.Refill)
		event.Kind = KindRefillDone
		event.What = fmt.Sprintf("%08x", refill.Addr)
		event.Detail = fmt.Sprintf("set=%d way=%d", refill.SetID, refill.WayID)
		if refill.Evicted {
			event.Detail += fmt.Sprintf(" evicted=%08x", refill.EvictedAddr)
		}
	default:
		return Event{}, false
	}

	return event, true
}

// Flush flushes the writer.
func (r *Recorder) Flush() error {
	return r.writer.Flush()
}
