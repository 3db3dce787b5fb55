package espbus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// ObserverPool manages asynchronous BusEvent dispatch to Observers.
// Prevents slow observers from blocking the critical publish/dispatch
// path. Non-blocking: drops events if its buffer is full rather than
// applying backpressure to the bus.
type ObserverPool struct {
	eventCh   chan *observerBatch
	workers   int
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closed    atomic.Bool
	dropped   atomic.Uint64
	processed atomic.Uint64
}

type observerBatch struct {
	event     BusEvent
	observers []Observer
}

// NewObserverPool creates a pool for async observer notification.
// workers: number of concurrent dispatch goroutines (4-16 for typical use).
// bufferSize: capacity of the event channel (1000-5000 for burst resilience).
func NewObserverPool(ctx context.Context, workers, bufferSize int) *ObserverPool {
	if workers < 1 {
		workers = 4
	}
	if bufferSize < 1 {
		bufferSize = 1000
	}

	poolCtx, cancel := context.WithCancel(ctx)
	op := &ObserverPool{
		eventCh: make(chan *observerBatch, bufferSize),
		workers: workers,
		ctx:     poolCtx,
		cancel:  cancel,
	}

	for i := 0; i < workers; i++ {
		op.wg.Add(1)
		go op.worker()
	}

	return op
}

// Notify sends an event for asynchronous observer dispatch. Non-blocking:
// returns immediately, drops the event if the buffer is full.
func (op *ObserverPool) Notify(e BusEvent, observers []Observer) {
	if len(observers) == 0 {
		return
	}
	b := &observerBatch{event: e, observers: observers}
	select {
	case op.eventCh <- b:
	default:
		op.dropped.Add(1)
	}
}

func (op *ObserverPool) worker() {
	defer op.wg.Done()
	for {
		select {
		case <-op.ctx.Done():
			for {
				select {
				case b := <-op.eventCh:
					if b != nil {
						op.dispatch(b)
					}
				default:
					return
				}
			}
		case b := <-op.eventCh:
			if b != nil {
				op.dispatch(b)
				op.processed.Add(1)
			}
		}
	}
}

// dispatch calls all observers for a single event, tolerating observer
// panics so one bad observer cannot corrupt the pool.
func (op *ObserverPool) dispatch(b *observerBatch) {
	for _, obs := range b.observers {
		if obs == nil {
			continue
		}
		func() {
			defer func() { recover() }()
			obs.OnEvent(b.event)
		}()
	}
}

// Close gracefully shuts down the observer pool, draining queued events
// before returning, up to timeout.
func (op *ObserverPool) Close(timeout time.Duration) error {
	if op.closed.Swap(true) {
		return nil
	}
	op.cancel()

	done := make(chan struct{})
	go func() {
		op.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return ErrObserverPoolShutdownTimeout
	}
}

// Stats returns current pool statistics.
func (op *ObserverPool) Stats() PoolStats {
	return PoolStats{
		Dropped:      op.dropped.Load(),
		Processed:    op.processed.Load(),
		ActiveEvents: len(op.eventCh),
		Workers:      op.workers,
		BufferSize:   cap(op.eventCh),
	}
}
