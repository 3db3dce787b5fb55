package espbus

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

var _ API = (*Bus)(nil)

// Bus is the central Facade: a fixed-capacity subscription Registry
// plus a bounded Queue drained by a single dispatcher goroutine.
// Publish fans out synchronously in the caller's own goroutine - all
// matching handlers complete before it returns. PublishFromISR never
// runs a handler itself; it enqueues for the dispatcher goroutine to
// fan out, the same queue an in-flight async continuation's result
// event is routed through, so on_ok/on_err also run on the dispatcher
// goroutine rather than the worker's.
type Bus struct {
	registry     *Registry
	queue        *Queue
	clock        xclock.Clock
	logger       *xlog.Logger
	observerPool *ObserverPool
	observersMu  sync.RWMutex
	observers    []Observer
	baseCtx      context.Context
	cancel       context.CancelFunc
	metrics      *busMetrics
	started      atomic.Bool
	closed       atomic.Bool
	closeOnce    sync.Once
	dispatchDone chan struct{}
}

// busMetrics uses lock-free atomics so the dispatcher's hot path never
// takes a lock to record telemetry.
type busMetrics struct {
	published    atomic.Uint64
	dispatched   atomic.Uint64
	registryFull atomic.Uint64
	asyncSpawned atomic.Uint64
	asyncOk      atomic.Uint64
	asyncErr     atomic.Uint64
	errors       atomic.Uint64
	processingNs atomic.Int64
}

// Begin starts the dispatcher goroutine. It is an error to call Begin
// more than once, or after Close.
func (b *Bus) Begin() error {
	if b.closed.Load() {
		return ErrBusClosed
	}
	if b.started.Swap(true) {
		return ErrAlreadyStarted
	}
	b.dispatchDone = make(chan struct{})
	go b.dispatchLoop()
	return nil
}

// Publish fans e out directly in the caller's goroutine: every matching
// handler runs, and completes, before Publish returns. Recursive
// publish from within a handler is allowed - FanOut takes no lock
// across handler calls. Returns ErrBusClosed once Close has run.
func (b *Bus) Publish(e Event) error {
	if b.closed.Load() {
		if !e.suspended {
			e.Release()
		}
		return ErrBusClosed
	}
	b.metrics.published.Add(1)
	corrID := uuid.NewString()
	b.notifyAsync(BusEvent{Type: EventPublishStart, Topic: e.Topic, CorrelationID: corrID})
	b.runFanOut(&e, corrID)
	b.notifyAsync(BusEvent{Type: EventPublishDone, Topic: e.Topic, CorrelationID: corrID})
	if !e.Suspended() {
		e.Release()
	}
	return nil
}

// PublishFromISR is the interrupt-context counterpart of Publish: it
// never fans out itself, never blocks, never allocates on a slow path,
// and reports whether the queue transitioned from empty to non-empty so
// the caller can decide whether to yield before returning from the
// interrupt. The event is delivered later by the dispatcher goroutine.
// Errors have no meaningful interrupt-context handling, so a closed bus
// silently releases e and reports no wakeup.
func (b *Bus) PublishFromISR(e Event) (higherPriorityWoken bool) {
	if b.closed.Load() {
		if !e.suspended {
			e.Release()
		}
		return false
	}
	b.metrics.published.Add(1)
	before := b.queue.Dropped()
	woken := b.queue.EnqueueFromISR(e)
	if b.queue.Dropped() != before {
		b.notifyAsync(BusEvent{Type: EventQueueDropped, Topic: e.Topic})
	}
	return woken
}

// postToDispatcher enqueues e for the dispatcher goroutine without
// fanning out in the caller's goroutine. It is not part of the public
// Bus API: async.go uses it to post an async continuation's result
// event from the worker's own goroutine, so FlowGraph's router - and
// therefore on_ok/on_err - runs on the dispatcher goroutine rather than
// the worker's, mirroring the task-context enqueue path the original
// firmware's dispatcher task drains (TinyEventBus::publishToQueue).
func (b *Bus) postToDispatcher(e Event) {
	if b.closed.Load() {
		if !e.suspended {
			e.Release()
		}
		return
	}
	before := b.queue.Dropped()
	b.queue.Enqueue(e)
	if b.queue.Dropped() != before {
		b.notifyAsync(BusEvent{Type: EventQueueDropped, Topic: e.Topic})
	}
}

// Subscribe installs handler in the registry, gated by mask and an
// optional predicate. See Registry.Subscribe for slot semantics.
func (b *Bus) Subscribe(handler Handler, user any, mask TopicMask, predicate Predicate, predUser any) (ListenerHandle, error) {
	if b.closed.Load() {
		return InvalidHandle, ErrBusClosed
	}
	if handler == nil {
		return InvalidHandle, ErrInvalidSubscription
	}
	h, err := b.registry.Subscribe(b.protectHandler(handler), user, mask, predicate, predUser)
	if err == ErrRegistryFull {
		b.metrics.registryFull.Add(1)
		b.notifyAsync(BusEvent{Type: EventRegistryFull})
	}
	return h, err
}

// protectHandler isolates a panic to the single listener that raised
// it, so one bad Handler cannot abort delivery to the listeners after
// it in FanOut's slot-index order.
func (b *Bus) protectHandler(handler Handler) Handler {
	return func(e *Event, user any) {
		defer func() {
			if r := recover(); r != nil {
				b.metrics.errors.Add(1)
				err := fmt.Errorf("%w: %v", ErrHandlerPanic, r)
				b.logger.Warn().Err(err).Msg("espbus: handler panic recovered")
				b.notifyAsync(BusEvent{Type: EventError, Topic: e.Topic, Err: err})
			}
		}()
		handler(e, user)
	}
}

// Unsubscribe clears a listener slot. Invalid handles are ignored.
func (b *Bus) Unsubscribe(h ListenerHandle) {
	b.registry.Unsubscribe(h)
}

func (b *Bus) dispatchLoop() {
	defer close(b.dispatchDone)
	for {
		e, ok := b.queue.Dequeue()
		if !ok {
			return
		}
		b.dispatchOne(&e)
	}
}

func (b *Bus) dispatchOne(e *Event) {
	corrID := uuid.NewString()
	b.runFanOut(e, corrID)
	if !e.Suspended() {
		e.Release()
	}
}

// runFanOut performs one fan-out pass over the registry, recovering a
// handler panic as a backstop to protectHandler's per-listener recovery,
// and records dispatch telemetry. Shared by Publish (caller's goroutine)
// and dispatchOne (dispatcher goroutine) so both report identical
// metrics and events for a delivered event.
func (b *Bus) runFanOut(e *Event, corrID string) {
	start := b.clock.Now()
	b.notifyAsync(BusEvent{Type: EventDispatchStart, Topic: e.Topic, CorrelationID: corrID})

	func() {
		defer func() {
			if r := recover(); r != nil {
				b.metrics.errors.Add(1)
				err := fmt.Errorf("%w: %v", ErrHandlerPanic, r)
				b.logger.Warn().Err(err).Msg("espbus: handler panic recovered")
				b.notifyAsync(BusEvent{Type: EventError, Topic: e.Topic, Err: err, CorrelationID: corrID})
			}
		}()
		b.registry.FanOut(e)
	}()

	duration := b.clock.Since(start)
	b.recordProcessingTime(duration.Nanoseconds())
	b.metrics.dispatched.Add(1)
	b.notifyAsync(BusEvent{Type: EventDispatchDone, Topic: e.Topic, Duration: duration, CorrelationID: corrID})
}

// GetMetrics returns a snapshot of current bus telemetry.
func (b *Bus) GetMetrics() Metrics {
	return Metrics{
		Published:           b.metrics.published.Load(),
		Dispatched:          b.metrics.dispatched.Load(),
		Dropped:             b.queue.Dropped(),
		RegistryFull:        b.metrics.registryFull.Load(),
		AsyncSpawned:        b.metrics.asyncSpawned.Load(),
		AsyncOk:             b.metrics.asyncOk.Load(),
		AsyncErr:            b.metrics.asyncErr.Load(),
		Errors:              b.metrics.errors.Load(),
		AvgProcessingTimeMs: float64(b.metrics.processingNs.Load()) / 1e6,
		QueueDepth:          b.queue.Len(),
	}
}

// Health reports coarse-grained health for a supervising process. The
// bus itself has no notion of "unhealthy" beyond being closed or having
// a non-trivial error rate; degraded/unhealthy device conditions are a
// concern of the flows built on top, not the transport layer.
func (b *Bus) Health(ctx context.Context) HealthStatus {
	if b.closed.Load() {
		return HealthStatus{Status: "unhealthy", Timestamp: time.Now(), Message: "bus is closed"}
	}

	m := b.GetMetrics()
	status := "healthy"
	if m.Errors > 0 && m.Dispatched > 0 {
		if float64(m.Errors)/float64(m.Dispatched) > 0.05 {
			status = "degraded"
		}
	}
	if m.Dropped > 0 {
		status = "degraded"
	}
	return HealthStatus{Status: status, Metrics: m, Timestamp: time.Now()}
}

// Close stops the dispatcher, drains the observer pool, and closes the
// queue. Idempotent; subsequent calls are no-ops returning nil.
func (b *Bus) Close() error {
	var closeErr error
	b.closeOnce.Do(func() {
		b.closed.Store(true)
		b.queue.Close()
		if b.started.Load() {
			<-b.dispatchDone
		}
		if b.observerPool != nil {
			if err := b.observerPool.Close(5 * time.Second); err != nil {
				b.logger.Warn().Err(err).Msg("espbus: observer pool shutdown timeout")
				closeErr = err
			}
		}
		if b.cancel != nil {
			b.cancel()
		}
	})
	return closeErr
}

// AddObserver registers an observer for bus lifecycle telemetry.
func (b *Bus) AddObserver(obs Observer) {
	if obs == nil {
		return
	}
	b.observersMu.Lock()
	b.observers = append(b.observers, obs)
	b.observersMu.Unlock()
}

// RemoveObserver removes a previously registered observer. Observers
// whose dynamic type is not comparable (an ObserverFunc, for one) cannot
// be matched, so they are left registered.
func (b *Bus) RemoveObserver(obs Observer) {
	if obs == nil || !reflect.TypeOf(obs).Comparable() {
		return
	}
	b.observersMu.Lock()
	defer b.observersMu.Unlock()
	for i, o := range b.observers {
		if o == obs {
			b.observers = append(b.observers[:i], b.observers[i+1:]...)
			break
		}
	}
}

func (b *Bus) notifyAsync(e BusEvent) {
	if b.observerPool == nil {
		return
	}
	b.observersMu.RLock()
	n := len(b.observers)
	if n == 0 {
		b.observersMu.RUnlock()
		return
	}
	if n == 1 {
		obs := b.observers[0]
		b.observersMu.RUnlock()
		b.observerPool.Notify(e, []Observer{obs})
		return
	}
	observers := make([]Observer, n)
	copy(observers, b.observers)
	b.observersMu.RUnlock()
	b.observerPool.Notify(e, observers)
}

func (b *Bus) recordProcessingTime(ns int64) {
	const alpha = 0.2
	current := b.metrics.processingNs.Load()
	if current == 0 {
		b.metrics.processingNs.Store(ns)
		return
	}
	newAvg := int64(float64(ns)*alpha + float64(current)*(1-alpha))
	b.metrics.processingNs.Store(newAvg)
}
