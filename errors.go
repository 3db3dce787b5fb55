package espbus

import "errors"

// Sentinel errors covering every failure mode in the bus/registry/flow
// contracts. All are errors.Is-comparable.
var (
	// ErrBusClosed is returned by Begin/Publish/Subscribe once Close has
	// run. PublishFromISR returns no error; on a closed bus it releases
	// the event and reports no wakeup.
	ErrBusClosed = errors.New("espbus: bus is closed")

	// ErrAlreadyStarted is returned by Begin when called more than once.
	ErrAlreadyStarted = errors.New("espbus: bus already started")

	// ErrRegistryFull is returned by Subscribe when the fixed-capacity
	// listener table has no free slot.
	ErrRegistryFull = errors.New("espbus: subscription registry full")

	// ErrInvalidSubscription is returned by Subscribe for a nil handler.
	ErrInvalidSubscription = errors.New("espbus: invalid subscription")

	// ErrNoTransportConfigured fires when a Builder is asked to Build a
	// Bus with a queue or registry capacity of zero.
	ErrNoTransportConfigured = errors.New("espbus: queue and registry capacity must be positive")

	// ErrHandlerPanic wraps a recovered panic from a Handler or Flow.
	ErrHandlerPanic = errors.New("espbus: handler panic recovered")

	// ErrWorkerPanic wraps a recovered panic from an async worker.
	ErrWorkerPanic = errors.New("espbus: worker panic recovered")

	// ErrObserverPoolShutdownTimeout is returned by Close when the
	// observer pool does not drain within its shutdown timeout.
	ErrObserverPoolShutdownTimeout = errors.New("espbus: observer pool shutdown timed out")

	// ErrFlowGraphClosed is returned by FlowGraph.When after Close.
	ErrFlowGraphClosed = errors.New("espbus: flow graph is closed")
)
