package espbus

import "sync"

// Queue is a bounded FIFO of Events between producers (including
// interrupt-like context) and the single dispatcher goroutine. Enqueue
// never blocks: when full, the oldest event is dequeued and its release
// runs before the new event takes its slot (drop-oldest).
//
// Uses the same non-blocking-channel-with-drop idiom as observer_pool.go,
// generalized to a ring buffer because a plain buffered channel cannot
// safely pop-and-release its oldest element while a concurrent consumer
// might also be receiving from it.
type Queue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	buf      []Event
	head     int
	count    int
	closed   bool
	dropped  uint64
}

// NewQueue constructs a queue with a fixed capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	q := &Queue{buf: make([]Event, capacity)}
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// Cap returns the queue's fixed capacity.
func (q *Queue) Cap() int {
	return len(q.buf)
}

// Len returns the current number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Dropped returns the number of events dropped by overflow so far.
func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Enqueue adds e to the queue, from task context. Never blocks.
func (q *Queue) Enqueue(e Event) {
	q.enqueue(e)
}

// EnqueueFromISR adds e to the queue from interrupt-like context and
// reports whether the queue transitioned from empty to non-empty (a
// "higher priority task woken" hint the caller may use to decide
// whether to yield before returning from the interrupt).
func (q *Queue) EnqueueFromISR(e Event) (higherPriorityWoken bool) {
	return q.enqueue(e)
}

func (q *Queue) enqueue(e Event) bool {
	q.mu.Lock()
	wasEmpty := q.count == 0
	if q.count == len(q.buf) {
		idx := q.head
		dropped := q.buf[idx]
		q.buf[idx] = Event{}
		q.head = (q.head + 1) % len(q.buf)
		q.count--
		q.dropped++
		q.mu.Unlock()
		// A dropped event is never delivered, so nothing else will ever
		// run its release; suspend-auto-release only defers release past
		// end-of-delivery, it does not apply to the drop path.
		dropped.Release()
		q.mu.Lock()
	}
	tail := (q.head + q.count) % len(q.buf)
	q.buf[tail] = e
	q.count++
	q.mu.Unlock()
	q.notEmpty.Signal()
	return wasEmpty
}

// Dequeue blocks until an event is available or the queue is closed. It
// returns ok=false only after Close, once all buffered events have been
// drained.
func (q *Queue) Dequeue() (Event, bool) {
	q.mu.Lock()
	for q.count == 0 && !q.closed {
		q.notEmpty.Wait()
	}
	if q.count == 0 {
		q.mu.Unlock()
		return Event{}, false
	}
	e := q.buf[q.head]
	q.buf[q.head] = Event{}
	q.head = (q.head + 1) % len(q.buf)
	q.count--
	q.mu.Unlock()
	return e, true
}

// Close wakes any blocked Dequeue caller once the queue drains. Events
// still buffered at Close time are delivered normally by a subsequent
// Dequeue; Close never itself drops or releases buffered events.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.notEmpty.Broadcast()
}
