package espbus

import (
	"context"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

// BusBuilder constructs Bus instances (Builder pattern).
type BusBuilder struct {
	registryCapacity int
	queueCapacity    int

	observers []Observer
	logger    *xlog.Logger
	clock     xclock.Clock
	ctx       context.Context

	poolWorkers    int
	poolBufferSize int
}

// NewBusBuilder returns a builder with sensible defaults for a small
// embedded-style deployment: 32 registry slots (one per fast topic),
// a 64-deep dispatch queue, 2 observer workers, 256-deep observer buffer.
func NewBusBuilder() *BusBuilder {
	return &BusBuilder{
		registryCapacity: 32,
		queueCapacity:    64,
		poolWorkers:      2,
		poolBufferSize:   256,
	}
}

// WithRegistryCapacity sets the fixed number of subscription slots.
func (bb *BusBuilder) WithRegistryCapacity(n int) *BusBuilder {
	bb.registryCapacity = n
	return bb
}

// WithQueueCapacity sets the fixed dispatch queue depth.
func (bb *BusBuilder) WithQueueCapacity(n int) *BusBuilder {
	bb.queueCapacity = n
	return bb
}

// WithObserver registers a lifecycle Observer.
func (bb *BusBuilder) WithObserver(obs ...Observer) *BusBuilder {
	for _, o := range obs {
		if o != nil {
			bb.observers = append(bb.observers, o)
		}
	}
	return bb
}

// WithLogger overrides the default xlog logger.
func (bb *BusBuilder) WithLogger(l *xlog.Logger) *BusBuilder {
	bb.logger = l
	return bb
}

// WithClock injects a Clock, primarily for deterministic tests.
func (bb *BusBuilder) WithClock(c xclock.Clock) *BusBuilder {
	bb.clock = c
	return bb
}

// WithContext sets the base context passed to spawned async workers.
func (bb *BusBuilder) WithContext(ctx context.Context) *BusBuilder {
	bb.ctx = ctx
	return bb
}

// WithObserverPool sets the observer notification pool's worker count
// and buffer size.
func (bb *BusBuilder) WithObserverPool(workers, bufferSize int) *BusBuilder {
	bb.poolWorkers = workers
	bb.poolBufferSize = bufferSize
	return bb
}

// Build validates the configuration and constructs a Bus. The returned
// Bus has not yet had Begin called.
func (bb *BusBuilder) Build() (*Bus, error) {
	if bb.registryCapacity < 1 || bb.queueCapacity < 1 {
		return nil, ErrNoTransportConfigured
	}

	clk := bb.clock
	if clk == nil {
		clk = xclock.Default()
	}
	lg := bb.logger
	if lg == nil {
		lg = xlog.Default()
	}

	baseCtx := bb.ctx
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(baseCtx)

	b := &Bus{
		registry:     NewRegistry(bb.registryCapacity),
		queue:        NewQueue(bb.queueCapacity),
		clock:        clk,
		logger:       lg,
		observerPool: NewObserverPool(ctx, bb.poolWorkers, bb.poolBufferSize),
		baseCtx:      ctx,
		cancel:       cancel,
		metrics:      &busMetrics{},
	}

	hasLoggingObserver := false
	for _, o := range bb.observers {
		if _, ok := o.(LoggingObserver); ok {
			hasLoggingObserver = true
			break
		}
	}
	if !hasLoggingObserver {
		b.AddObserver(LoggingObserver{Logger: lg})
	}
	for _, o := range bb.observers {
		b.AddObserver(o)
	}

	return b, nil
}

// New constructs a Bus via Builder, starts its dispatcher, and returns
// a close func for convenience.
func New(init func(bb *BusBuilder)) (*Bus, func() error, error) {
	bb := NewBusBuilder()
	if init != nil {
		init(bb)
	}
	bus, err := bb.Build()
	if err != nil {
		return nil, nil, err
	}
	if err := bus.Begin(); err != nil {
		return nil, nil, err
	}
	closeFn := func() error { return bus.Close() }
	return bus, closeFn, nil
}
