package espbus

import "sync"

// FlowGraph owns a set of installed Flows plus the single internal
// listener that completes AsyncBlocking/AsyncBlockingWithEvent round
// trips. There is exactly one router per FlowGraph, subscribed once at
// construction; When never re-subscribes or leaves placeholder slots.
type FlowGraph struct {
	bus     *Bus
	routerH ListenerHandle

	mu      sync.Mutex
	handles map[Topic][]ListenerHandle
	closed  bool
}

// NewFlowGraph installs the AsyncResult router on bus and returns a
// FlowGraph ready to accept When subscriptions.
func NewFlowGraph(bus *Bus) (*FlowGraph, error) {
	fg := &FlowGraph{bus: bus, handles: make(map[Topic][]ListenerHandle)}
	h, err := bus.Subscribe(fg.routeAsyncResult, nil, Bit(AsyncResult), nil, nil)
	if err != nil {
		return nil, err
	}
	fg.routerH = h
	return fg, nil
}

// routeAsyncResult runs on the dispatcher goroutine (it is an ordinary
// Handler invoked from within Registry.FanOut) and is the sole place
// on_ok/on_err continuations are called from - never from the worker
// goroutine that produced the result.
func (fg *FlowGraph) routeAsyncResult(e *Event, user any) {
	rp, ok := e.Payload().(*resultPack)
	if !ok {
		return
	}
	shadow := NewEvent(rp.triggerTopic, rp.triggerScalar, rp.payload, rp.release)
	if rp.err != nil {
		fg.bus.metrics.asyncErr.Add(1)
		fg.bus.notifyAsync(BusEvent{Type: EventAsyncErr, Topic: shadow.Topic, Err: rp.err})
		if rp.onErr != nil {
			rp.onErr(&shadow, fg.bus)
		}
	} else {
		fg.bus.metrics.asyncOk.Add(1)
		fg.bus.notifyAsync(BusEvent{Type: EventAsyncOk, Topic: shadow.Topic})
		if rp.onOk != nil {
			rp.onOk(&shadow, fg.bus)
		}
	}
	if !shadow.Suspended() {
		shadow.Release()
	}
}

// When installs flow against topic, subscribing exactly once. Topics
// below 32 are gated by their fast mask bit; topics at or above 32 have
// no bitmask bit, so When synthesizes an equality predicate instead.
func (fg *FlowGraph) When(topic Topic, flow Flow) (ListenerHandle, error) {
	fg.mu.Lock()
	closed := fg.closed
	fg.mu.Unlock()
	if closed {
		return InvalidHandle, ErrFlowGraphClosed
	}

	handler := func(e *Event, user any) {
		flow(e, fg.bus)
	}

	var mask TopicMask
	var predicate Predicate
	if topic < 32 {
		mask = Bit(topic)
	} else {
		mask = MaskAll
		predicate = func(e *Event, _ any) bool { return e.Topic == topic }
	}

	h, err := fg.bus.Subscribe(handler, nil, mask, predicate, nil)
	if err != nil {
		return InvalidHandle, err
	}

	fg.mu.Lock()
	fg.handles[topic] = append(fg.handles[topic], h)
	fg.mu.Unlock()
	return h, nil
}

// Unsubscribe removes a listener previously installed by When.
func (fg *FlowGraph) Unsubscribe(h ListenerHandle) {
	fg.bus.Unsubscribe(h)
}

// Close unsubscribes every Flow installed via When plus the internal
// router. Closing while an AsyncBlocking worker is still in flight is a
// programmer error: the worker still posts its result event, but with
// the router gone no listener consumes it, so the continuation is
// silently skipped and the release returned by the worker never runs
// (the result event itself carries no release). Close does not itself
// wait for in-flight workers.
func (fg *FlowGraph) Close() error {
	fg.mu.Lock()
	if fg.closed {
		fg.mu.Unlock()
		return nil
	}
	fg.closed = true
	handles := fg.handles
	fg.handles = nil
	fg.mu.Unlock()

	for _, hs := range handles {
		for _, h := range hs {
			fg.bus.Unsubscribe(h)
		}
	}
	fg.bus.Unsubscribe(fg.routerH)
	return nil
}
