package espbus

import "sync"

// Topic identifies an event channel. Topics 0..31 are "fast" and
// bitmask-filterable; higher values are allowed for less-frequent
// channels and are matched by an ALL-mask subscription or a predicate.
type Topic uint32

// AsyncResult is reserved by the core for async-continuation routing.
// User code must not publish on it; FlowGraph owns the sole listener.
const AsyncResult Topic = 31

// TopicMask is a 32-bit bitmap over topics 0..31 used to pre-filter
// delivery without running handler code.
type TopicMask uint32

// MaskAll matches every topic, including topics >= 32.
const MaskAll TopicMask = 0xFFFFFFFF

// Bit returns the mask bit for a fast topic (t < 32). Topics >= 32 have
// no bit representation; use MaskAll or a predicate for those.
func Bit(t Topic) TopicMask {
	if t >= 32 {
		return 0
	}
	return TopicMask(1) << uint(t)
}

// Payload is the sum type over event payload variants. Concrete types
// in this package (Hostname, MQTTMessage, PinCommand, ConnectionData,
// ErrorCode, Boxed) implement it; collaborators needing an open
// extension point use Boxed.
type Payload interface {
	isPayload()
}

// releaser is the shared, idempotent destructor cell behind an Event's
// payload. Copies of an Event (which Go produces on ordinary assignment)
// share the same releaser, so calling Release on more than one copy
// still runs the underlying cleanup exactly once.
type releaser struct {
	once sync.Once
	fn   func()
}

func newReleaser(fn func()) *releaser {
	if fn == nil {
		return nil
	}
	return &releaser{fn: fn}
}

func (r *releaser) run() {
	if r == nil {
		return
	}
	r.once.Do(func() {
		if r.fn != nil {
			r.fn()
		}
	})
}

// Event is a move-only-by-convention record carrying a topic, a small
// inline scalar, and an optional owned payload with a release action.
// The zero Event is a valid, payload-less event on topic 0.
type Event struct {
	Topic     Topic
	Scalar    int32
	payload   Payload
	rel       *releaser
	suspended bool
}

// NewEvent constructs an Event. release may be nil when the payload is
// borrowed or static; payload may be nil for a pure signal event.
func NewEvent(topic Topic, scalar int32, payload Payload, release func()) Event {
	return Event{Topic: topic, Scalar: scalar, payload: payload, rel: newReleaser(release)}
}

// Payload returns the event's current payload, or nil if it has none or
// has already been transferred away via Take.
func (e *Event) Payload() Payload {
	return e.payload
}

// HasPayload reports whether the event currently owns a payload.
func (e *Event) HasPayload() bool {
	return e.payload != nil
}

// Take transfers payload ownership out of e into the returned Event and
// clears e's payload and release, so the source is left with no
// observable payload. Use this whenever an event's payload must outlive
// the call that received it - e.g. a continuation handing its payload on
// to a newly published event. (The event-carrying async variant uses
// Clone instead, so the spawn-site event keeps its payload.)
func (e *Event) Take() Event {
	out := Event{Topic: e.Topic, Scalar: e.Scalar, payload: e.payload, rel: e.rel, suspended: e.suspended}
	e.payload = nil
	e.rel = nil
	return out
}

// SuspendAutoRelease tells the bus/queue/dispatcher not to run this
// event's release automatically at the end of delivery. The caller
// assumes responsibility for eventually calling Release (or Take-ing
// the payload into a longer-lived Event that will).
func (e *Event) SuspendAutoRelease() {
	e.suspended = true
}

// Suspended reports whether auto-release has been suspended for e.
func (e *Event) Suspended() bool {
	return e.suspended
}

// Release runs the event's release action, if any, exactly once, and
// clears the payload. Safe to call on an event with no payload/release
// (no-op) and safe to call more than once, including from copies that
// share the same underlying releaser.
func (e *Event) Release() {
	e.rel.run()
	e.payload = nil
	e.rel = nil
}

// Clone makes an independent copy of e that shares payload ownership
// (the same releaser) with e - both copies may call Release safely, but
// only one destructor call actually fires. Used by the event-carrying
// async variant, where the trigger event must be visible to a worker
// task without detaching it from the delivery that is still fanning out.
func (e *Event) Clone() Event {
	return Event{Topic: e.Topic, Scalar: e.Scalar, payload: e.payload, rel: e.rel, suspended: e.suspended}
}
