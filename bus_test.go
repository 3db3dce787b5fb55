package espbus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestBus_BeginTwiceReturnsErrAlreadyStarted(t *testing.T) {
	bus, err := NewBusBuilder().Build()
	require.NoError(t, err)
	require.NoError(t, bus.Begin())
	defer func() { _ = bus.Close() }()

	assert.ErrorIs(t, bus.Begin(), ErrAlreadyStarted)
}

func TestBus_PublishAfterCloseReturnsErrBusClosed(t *testing.T) {
	bus, err := NewBusBuilder().Build()
	require.NoError(t, err)
	require.NoError(t, bus.Begin())
	require.NoError(t, bus.Close())

	err = bus.Publish(NewEvent(1, 0, nil, nil))
	assert.ErrorIs(t, err, ErrBusClosed)
}

func TestBus_PublishAfterCloseStillReleasesPayload(t *testing.T) {
	bus, err := NewBusBuilder().Build()
	require.NoError(t, err)
	require.NoError(t, bus.Begin())
	require.NoError(t, bus.Close())

	var released bool
	_ = bus.Publish(NewEvent(1, 0, Hostname("x"), func() { released = true }))
	assert.True(t, released)
}

func TestBus_CloseIsIdempotent(t *testing.T) {
	bus, err := NewBusBuilder().Build()
	require.NoError(t, err)
	require.NoError(t, bus.Begin())

	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())
}

func TestBus_SubscribeReturnsErrRegistryFullPastCapacity(t *testing.T) {
	bus, err := NewBusBuilder().WithRegistryCapacity(1).Build()
	require.NoError(t, err)
	require.NoError(t, bus.Begin())
	defer func() { _ = bus.Close() }()

	_, err = bus.Subscribe(func(e *Event, user any) {}, nil, MaskAll, nil, nil)
	require.NoError(t, err)

	_, err = bus.Subscribe(func(e *Event, user any) {}, nil, MaskAll, nil, nil)
	assert.ErrorIs(t, err, ErrRegistryFull)
}

func TestBus_PublishDeliversSynchronously(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	bus, err := NewBusBuilder().Build()
	require.NoError(t, err)
	require.NoError(t, bus.Begin())

	received := make(chan int32, 1)
	_, err = bus.Subscribe(func(e *Event, user any) { received <- e.Scalar }, nil, Bit(7), nil, nil)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(NewEvent(7, 99, nil, nil)))

	select {
	case v := <-received:
		assert.Equal(t, int32(99), v)
	default:
		t.Fatal("Publish returned before the handler ran")
	}

	require.NoError(t, bus.Close())
}

func TestBus_HandlerPanicIsRecoveredAndCountedAsError(t *testing.T) {
	bus, err := NewBusBuilder().Build()
	require.NoError(t, err)
	require.NoError(t, bus.Begin())
	defer func() { _ = bus.Close() }()

	proceeded := make(chan struct{}, 1)
	_, err = bus.Subscribe(func(e *Event, user any) { panic("boom") }, nil, Bit(1), nil, nil)
	require.NoError(t, err)
	_, err = bus.Subscribe(func(e *Event, user any) { proceeded <- struct{}{} }, nil, Bit(1), nil, nil)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(NewEvent(1, 0, nil, nil)))

	select {
	case <-proceeded:
	case <-time.After(time.Second):
		t.Fatal("Publish never reached the second listener after the first one panicked")
	}

	assert.Eventually(t, func() bool { return bus.GetMetrics().Errors == 1 }, time.Second, 10*time.Millisecond)
}

func TestBus_HealthReportsUnhealthyWhenClosed(t *testing.T) {
	bus, err := NewBusBuilder().Build()
	require.NoError(t, err)
	require.NoError(t, bus.Begin())
	require.NoError(t, bus.Close())

	h := bus.Health(context.Background())
	assert.Equal(t, "unhealthy", h.Status)
}

func TestBus_AddRemoveObserver(t *testing.T) {
	bus, err := NewBusBuilder().Build()
	require.NoError(t, err)
	require.NoError(t, bus.Begin())
	defer func() { _ = bus.Close() }()

	calls := make(chan BusEventType, 8)
	obs := ObserverFunc(func(e BusEvent) { calls <- e.Type })
	bus.AddObserver(obs)

	require.NoError(t, bus.Publish(NewEvent(1, 0, nil, nil)))

	select {
	case <-calls:
	case <-time.After(time.Second):
		t.Fatal("observer never notified")
	}

	bus.RemoveObserver(obs)
}
