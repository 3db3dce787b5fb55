package espbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvent_ReleaseRunsExactlyOnce(t *testing.T) {
	var calls int
	e := NewEvent(1, 0, Hostname("device.local"), func() { calls++ })

	e.Release()
	e.Release()

	assert.Equal(t, 1, calls)
	assert.Nil(t, e.Payload())
}

func TestEvent_ReleaseSharedAcrossCopies(t *testing.T) {
	var calls int
	e := NewEvent(1, 0, Hostname("device.local"), func() { calls++ })
	cp := e

	e.Release()
	cp.Release()

	assert.Equal(t, 1, calls)
}

func TestEvent_TakeClearsSource(t *testing.T) {
	var calls int
	e := NewEvent(2, 7, Hostname("h"), func() { calls++ })

	out := e.Take()

	assert.False(t, e.HasPayload())
	assert.Nil(t, e.Payload())
	require.True(t, out.HasPayload())
	assert.Equal(t, Hostname("h"), out.Payload())
	assert.Equal(t, e.Topic, out.Topic)
	assert.Equal(t, int32(7), out.Scalar)

	// e no longer owns anything, so releasing it must not run fn.
	e.Release()
	assert.Equal(t, 0, calls)

	out.Release()
	assert.Equal(t, 1, calls)
}

func TestEvent_CloneSharesReleaserWithoutClearingSource(t *testing.T) {
	var calls int
	e := NewEvent(3, 0, Hostname("h"), func() { calls++ })

	cp := e.Clone()
	assert.True(t, e.HasPayload())
	assert.True(t, cp.HasPayload())

	cp.Release()
	assert.Equal(t, 1, calls)

	// e still thinks it has a payload (Clone doesn't clear the source),
	// but the shared releaser is already spent.
	e.Release()
	assert.Equal(t, 1, calls)
}

func TestEvent_SuspendAutoRelease(t *testing.T) {
	e := NewEvent(1, 0, nil, nil)
	assert.False(t, e.Suspended())
	e.SuspendAutoRelease()
	assert.True(t, e.Suspended())
}

func TestEvent_ReleaseNoPayloadIsNoop(t *testing.T) {
	e := NewEvent(1, 0, nil, nil)
	assert.NotPanics(t, func() { e.Release() })
}

func TestBit_FastTopicsOnly(t *testing.T) {
	assert.Equal(t, TopicMask(1<<5), Bit(Topic(5)))
	assert.Equal(t, TopicMask(0), Bit(Topic(32)))
}
