package espbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus(t *testing.T) *Bus {
	t.Helper()
	b, err := NewBusBuilder().WithRegistryCapacity(8).WithQueueCapacity(8).Build()
	require.NoError(t, err)
	require.NoError(t, b.Begin())
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestFlow_SeqRunsInOrder(t *testing.T) {
	bus := newTestBus(t)
	var order []int
	flow := Seq(
		Tap(func(e *Event) { order = append(order, 1) }),
		Tap(func(e *Event) { order = append(order, 2) }),
	)

	e := NewEvent(1, 0, nil, nil)
	flow(&e, bus)

	assert.Equal(t, []int{1, 2}, order)
}

func TestFlow_TeeIsSeq(t *testing.T) {
	bus := newTestBus(t)
	var count int
	flow := Tee(
		Tap(func(e *Event) { count++ }),
		Tap(func(e *Event) { count++ }),
	)
	e := NewEvent(1, 0, nil, nil)
	flow(&e, bus)
	assert.Equal(t, 2, count)
}

func TestFlow_FilterGatesNext(t *testing.T) {
	bus := newTestBus(t)
	var ran bool
	flow := Filter(func(e *Event) bool { return e.Scalar > 5 }, Tap(func(e *Event) { ran = true }))

	low := NewEvent(1, 1, nil, nil)
	flow(&low, bus)
	assert.False(t, ran)

	high := NewEvent(1, 10, nil, nil)
	flow(&high, bus)
	assert.True(t, ran)
}

func TestFlow_BranchPicksSide(t *testing.T) {
	bus := newTestBus(t)
	var side string
	flow := Branch(func(e *Event) bool { return e.Scalar == 1 },
		Tap(func(e *Event) { side = "true" }),
		Tap(func(e *Event) { side = "false" }),
	)

	a := NewEvent(1, 1, nil, nil)
	flow(&a, bus)
	assert.Equal(t, "true", side)

	b := NewEvent(1, 2, nil, nil)
	flow(&b, bus)
	assert.Equal(t, "false", side)
}

func TestFlow_TapNeverPublishes(t *testing.T) {
	bus := newTestBus(t)
	received := make(chan Event, 1)
	_, err := bus.Subscribe(func(e *Event, user any) { received <- *e }, nil, Bit(2), nil, nil)
	require.NoError(t, err)

	flow := Tap(func(e *Event) {})
	e := NewEvent(1, 0, nil, nil)
	flow(&e, bus)

	select {
	case <-received:
		t.Fatal("Tap must never publish")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestFlow_PublishCombinatorPostsFixedEvent(t *testing.T) {
	bus := newTestBus(t)
	received := make(chan Event, 1)
	_, err := bus.Subscribe(func(e *Event, user any) { received <- *e }, nil, Bit(2), nil, nil)
	require.NoError(t, err)

	flow := Publish(2, 42, Hostname("x"), nil)
	trigger := NewEvent(1, 0, nil, nil)
	flow(&trigger, bus)

	select {
	case e := <-received:
		assert.Equal(t, int32(42), e.Scalar)
		assert.Equal(t, Hostname("x"), e.Payload())
	case <-time.After(time.Second):
		t.Fatal("expected published event to be delivered")
	}
}
