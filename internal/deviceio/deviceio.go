// Package deviceio provides fake mDNS and MQTT workers standing in for
// the ESP32 network stack the bus's flows are meant to drive. They let
// cmd/espbus-demo exercise AsyncBlocking and AsyncBlockingWithEvent
// without a real network: latency and success or
// failure are configured up front rather than depending on an actual
// broker or resolver being reachable.
package deviceio

import (
	"context"
	"errors"
	"fmt"
	"time"

	espbus "github.com/Semi-0/ESP-Reveiver"
)

// Topic constants for the device-facing events this package's workers
// produce, and that demo/test flows subscribe to via FlowGraph.When.
const (
	WifiConnected    espbus.Topic = 1
	MdnsFound        espbus.Topic = 2
	MdnsFailed       espbus.Topic = 3
	MqttConnected    espbus.Topic = 4
	MqttDisconnected espbus.Topic = 5
	MqttPublished    espbus.Topic = 6
	SystemError      espbus.Topic = 7
	Timer            espbus.Topic = 8
)

// ErrMDNSTimeout is returned by MDNSResolver.Resolve's worker when
// configured to fail.
var ErrMDNSTimeout = errors.New("deviceio: mdns resolution timed out")

// ErrMQTTUnreachable is returned by MQTTClient's workers when
// configured to fail.
var ErrMQTTUnreachable = errors.New("deviceio: mqtt broker unreachable")

// MDNSResolver simulates resolving a service name to a hostname.
type MDNSResolver struct {
	Latency time.Duration
	Fail    bool
	Result  string
}

// Resolve returns a WorkerNoTrigger suitable for AsyncBlocking: it
// carries service by closure rather than needing the triggering event.
func (r MDNSResolver) Resolve(service string) espbus.WorkerNoTrigger {
	return func(ctx context.Context) (espbus.Payload, func(), error) {
		select {
		case <-time.After(r.Latency):
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
		if r.Fail {
			return nil, nil, fmt.Errorf("%w: %s", ErrMDNSTimeout, service)
		}
		return espbus.Hostname(r.Result), nil, nil
	}
}

// MQTTClient simulates a broker connection and publish, both able to
// take latency and optionally fail.
type MQTTClient struct {
	Latency time.Duration
	Fail    bool
}

// Connect returns a WorkerNoTrigger that resolves to ConnectionData on
// success.
func (c MQTTClient) Connect(broker string) espbus.WorkerNoTrigger {
	return func(ctx context.Context) (espbus.Payload, func(), error) {
		select {
		case <-time.After(c.Latency):
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
		if c.Fail {
			return nil, nil, fmt.Errorf("%w: %s", ErrMQTTUnreachable, broker)
		}
		return espbus.ConnectionData{IP: broker}, nil, nil
	}
}

// Publish is a Worker, not a WorkerNoTrigger, because it needs the
// MQTTMessage payload carried on the triggering event.
func (c MQTTClient) Publish() espbus.Worker {
	return func(ctx context.Context, trigger espbus.Event) (espbus.Payload, func(), error) {
		select {
		case <-time.After(c.Latency):
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
		if c.Fail {
			return nil, nil, ErrMQTTUnreachable
		}
		msg, _ := trigger.Payload().(espbus.MQTTMessage)
		return msg, nil, nil
	}
}
