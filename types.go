package espbus

import "time"

// Handler processes a single delivered event. e is borrowed for the
// call: combinators and handlers must not mutate its Topic/Scalar, and
// must call SuspendAutoRelease before returning if they intend to keep
// the payload past the call.
type Handler func(e *Event, user any)

// Predicate gates delivery for a listener beyond mask filtering.
type Predicate func(e *Event, user any) bool

// ListenerHandle addresses a slot in the subscription registry. It is
// returned by Subscribe and accepted by Unsubscribe.
type ListenerHandle int

// InvalidHandle is returned by Subscribe when the registry is full.
const InvalidHandle ListenerHandle = -1

// BusEventType enumerates internal lifecycle events for the Observer
// pattern. Distinct from the domain Event carried on the bus itself.
type BusEventType string

const (
	EventPublishStart  BusEventType = "publish_start"
	EventPublishDone   BusEventType = "publish_done"
	EventDispatchStart BusEventType = "dispatch_start"
	EventDispatchDone  BusEventType = "dispatch_done"
	EventQueueDropped  BusEventType = "queue_dropped"
	EventRegistryFull  BusEventType = "registry_full"
	EventAsyncSpawn    BusEventType = "async_spawn"
	EventAsyncOk       BusEventType = "async_ok"
	EventAsyncErr      BusEventType = "async_err"
	EventError         BusEventType = "error"
)

// BusEvent carries telemetry about bus lifecycle activity to Observers.
// It is unrelated to the domain Event type published/subscribed on the
// bus itself.
type BusEvent struct {
	Type          BusEventType
	Topic         Topic
	Handle        ListenerHandle
	Name          string
	Duration      time.Duration
	Err           error
	CorrelationID string
}

// PoolStats reports ObserverPool telemetry.
type PoolStats struct {
	Dropped      uint64
	Processed    uint64
	ActiveEvents int
	Workers      int
	BufferSize   int
}

// Metrics is observable telemetry for the bus.
type Metrics struct {
	Published           uint64
	Dispatched          uint64
	Dropped             uint64
	RegistryFull        uint64
	AsyncSpawned        uint64
	AsyncOk             uint64
	AsyncErr            uint64
	Errors              uint64
	AvgProcessingTimeMs float64
	QueueDepth          int
}

// HealthStatus summarizes bus health for a supervising process (the
// hosted demo/monitoring side of this module, not the embedded device
// itself).
type HealthStatus struct {
	Status    string // "healthy", "degraded", "unhealthy"
	Metrics   Metrics
	Timestamp time.Time
	Message   string
}
