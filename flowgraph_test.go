package espbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlowGraph_WhenFastTopic(t *testing.T) {
	bus := newTestBus(t)
	fg, err := NewFlowGraph(bus)
	require.NoError(t, err)
	defer func() { _ = fg.Close() }()

	received := make(chan Event, 1)
	_, err = fg.When(Topic(4), Tap(func(e *Event) { received <- *e }))
	require.NoError(t, err)

	require.NoError(t, bus.Publish(NewEvent(4, 3, nil, nil)))

	select {
	case e := <-received:
		assert.Equal(t, int32(3), e.Scalar)
	case <-time.After(time.Second):
		t.Fatal("flow never ran")
	}
}

func TestFlowGraph_WhenHighTopicUsesSynthesizedPredicate(t *testing.T) {
	bus := newTestBus(t)
	fg, err := NewFlowGraph(bus)
	require.NoError(t, err)
	defer func() { _ = fg.Close() }()

	received := make(chan Event, 2)
	_, err = fg.When(Topic(100), Tap(func(e *Event) { received <- *e }))
	require.NoError(t, err)

	require.NoError(t, bus.Publish(NewEvent(100, 1, nil, nil)))
	require.NoError(t, bus.Publish(NewEvent(101, 2, nil, nil)))

	select {
	case e := <-received:
		assert.Equal(t, Topic(100), e.Topic)
	case <-time.After(time.Second):
		t.Fatal("flow never ran for topic 100")
	}

	select {
	case <-received:
		t.Fatal("flow must not run for a different high topic")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestFlowGraph_CloseUnsubscribesEverything(t *testing.T) {
	bus := newTestBus(t)
	fg, err := NewFlowGraph(bus)
	require.NoError(t, err)

	var calls int
	_, err = fg.When(Topic(4), Tap(func(e *Event) { calls++ }))
	require.NoError(t, err)

	require.NoError(t, fg.Close())

	_, err = fg.When(Topic(5), Tap(func(e *Event) {}))
	assert.ErrorIs(t, err, ErrFlowGraphClosed)

	require.NoError(t, bus.Publish(NewEvent(4, 0, nil, nil)))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, calls)
}

func TestFlowGraph_CloseIsIdempotent(t *testing.T) {
	bus := newTestBus(t)
	fg, err := NewFlowGraph(bus)
	require.NoError(t, err)

	require.NoError(t, fg.Close())
	require.NoError(t, fg.Close())
}
