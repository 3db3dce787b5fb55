package espbus

import (
	"fmt"
	"sync"
)

var (
	defaultBus   *Bus
	defaultBusMu sync.Mutex
)

// Default returns the process-wide singleton Bus, building and starting
// it with builder defaults on first use.
func Default() *Bus {
	defaultBusMu.Lock()
	defer defaultBusMu.Unlock()

	if defaultBus != nil {
		return defaultBus
	}

	b, err := NewBusBuilder().Build()
	if err != nil {
		panic(fmt.Sprintf("espbus: failed to initialize default bus: %v", err))
	}
	if err := b.Begin(); err != nil {
		panic(fmt.Sprintf("espbus: failed to start default bus: %v", err))
	}
	defaultBus = b
	return defaultBus
}

// SetDefault replaces the process-wide default Bus.
func SetDefault(b *Bus) {
	if b == nil {
		panic("espbus: SetDefault called with nil Bus")
	}
	defaultBusMu.Lock()
	defaultBus = b
	defaultBusMu.Unlock()
}

// Subscribe is the Facade that subscribes through the default Bus.
func Subscribe(handler Handler, user any, mask TopicMask, predicate Predicate, predUser any) (ListenerHandle, error) {
	return Default().Subscribe(handler, user, mask, predicate, predUser)
}
