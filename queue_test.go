package espbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_FIFOOrder(t *testing.T) {
	q := NewQueue(4)
	for i := int32(0); i < 3; i++ {
		q.Enqueue(NewEvent(Topic(1), i, nil, nil))
	}

	for i := int32(0); i < 3; i++ {
		e, ok := q.Dequeue()
		require.True(t, ok)
		assert.Equal(t, i, e.Scalar)
	}
}

func TestQueue_DropOldestOnOverflowReleasesDropped(t *testing.T) {
	q := NewQueue(2)
	var released []int32

	for i := int32(0); i < 3; i++ {
		i := i
		q.Enqueue(NewEvent(Topic(1), i, nil, func() { released = append(released, i) }))
	}

	assert.Equal(t, uint64(1), q.Dropped())
	assert.Equal(t, []int32{0}, released)

	e, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, int32(1), e.Scalar)

	e, ok = q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, int32(2), e.Scalar)
}

func TestQueue_DropOldestReleasesEvenWhenSuspended(t *testing.T) {
	q := NewQueue(1)
	var released bool
	first := NewEvent(Topic(1), 0, nil, func() { released = true })
	first.SuspendAutoRelease()
	q.Enqueue(first)
	q.Enqueue(NewEvent(Topic(1), 1, nil, nil))

	assert.True(t, released, "a dropped event is never delivered, so its release must still run")
}

func TestQueue_DequeueBlocksUntilEnqueue(t *testing.T) {
	q := NewQueue(2)
	done := make(chan Event, 1)
	go func() {
		e, ok := q.Dequeue()
		if ok {
			done <- e
		}
	}()

	select {
	case <-done:
		t.Fatal("dequeue returned before any event was enqueued")
	case <-time.After(30 * time.Millisecond):
	}

	q.Enqueue(NewEvent(Topic(1), 9, nil, nil))

	select {
	case e := <-done:
		assert.Equal(t, int32(9), e.Scalar)
	case <-time.After(time.Second):
		t.Fatal("dequeue never unblocked")
	}
}

func TestQueue_CloseUnblocksDequeue(t *testing.T) {
	q := NewQueue(2)
	done := make(chan bool, 1)
	go func() {
		_, ok := q.Dequeue()
		done <- ok
	}()

	q.Close()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("dequeue never unblocked after close")
	}
}

func TestQueue_CloseDrainsBufferedEventsFirst(t *testing.T) {
	q := NewQueue(2)
	q.Enqueue(NewEvent(Topic(1), 1, nil, nil))
	q.Close()

	e, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, int32(1), e.Scalar)

	_, ok = q.Dequeue()
	assert.False(t, ok)
}
