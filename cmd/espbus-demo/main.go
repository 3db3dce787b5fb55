// Command espbus-demo wires a Bus and FlowGraph over the fake network
// workers in internal/deviceio to reproduce two scenarios: wifi connects,
// mDNS resolves, MQTT connects and publishes (the happy path), and wifi
// connects but mDNS fails, which is reported as a system error instead
// of ever attempting to connect to MQTT.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	espbus "github.com/Semi-0/ESP-Reveiver"
	"github.com/Semi-0/ESP-Reveiver/internal/deviceio"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/trickstertwo/xlog"
	_ "github.com/trickstertwo/xlog/adapter/zerolog"
)

func main() {
	logger := xlog.Default()

	bus, closeBus, err := espbus.New(func(bb *espbus.BusBuilder) {
		bb.WithLogger(logger)
	})
	if err != nil {
		logger.Error().Err(err).Msg("espbus-demo: failed to build bus")
		os.Exit(1)
	}
	defer closeBus()

	bus.AddObserver(espbus.NewPrometheusObserver(prometheus.NewRegistry(), "espbus"))

	fg, err := espbus.NewFlowGraph(bus)
	if err != nil {
		logger.Error().Err(err).Msg("espbus-demo: failed to build flow graph")
		os.Exit(1)
	}
	defer fg.Close()

	mdnsHappy := deviceio.MDNSResolver{Latency: 20 * time.Millisecond, Result: "device-01.local"}
	mdnsSad := deviceio.MDNSResolver{Latency: 20 * time.Millisecond, Fail: true}
	mqtt := deviceio.MQTTClient{Latency: 15 * time.Millisecond}

	resolver := mdnsHappy
	if len(os.Args) > 1 && os.Args[1] == "fail" {
		resolver = mdnsSad
	}

	if _, err := fg.When(deviceio.WifiConnected, onWifiConnected(resolver)); err != nil {
		logger.Error().Err(err).Msg("espbus-demo: subscribe WifiConnected failed")
		os.Exit(1)
	}
	if _, err := fg.When(deviceio.MdnsFound, onMDNSFound(mqtt)); err != nil {
		logger.Error().Err(err).Msg("espbus-demo: subscribe MdnsFound failed")
		os.Exit(1)
	}
	if _, err := fg.When(deviceio.MdnsFailed, onMDNSFailed()); err != nil {
		logger.Error().Err(err).Msg("espbus-demo: subscribe MdnsFailed failed")
		os.Exit(1)
	}
	if _, err := fg.When(deviceio.MqttConnected, onMQTTConnected(mqtt)); err != nil {
		logger.Error().Err(err).Msg("espbus-demo: subscribe MqttConnected failed")
		os.Exit(1)
	}
	if _, err := fg.When(deviceio.SystemError, onSystemError(logger)); err != nil {
		logger.Error().Err(err).Msg("espbus-demo: subscribe SystemError failed")
		os.Exit(1)
	}

	_ = bus.Publish(espbus.NewEvent(deviceio.WifiConnected, 0, espbus.ConnectionData{SSID: "home", RSSI: -42}, nil))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		logger.Info().Msg("espbus-demo: shutting down on signal")
	case <-time.After(2 * time.Second):
		logger.Info().Msg("espbus-demo: demo window elapsed, shutting down")
	}
}

// forwardTo returns a Flow that republishes the triggering event's own
// payload_out, unchanged, on a new topic, transferring ownership of its
// release along with it rather than releasing and re-acquiring.
func forwardTo(topic espbus.Topic, scalar int32) espbus.Flow {
	return func(e *espbus.Event, bus *espbus.Bus) {
		forwarded := e.Take()
		_ = bus.Publish(espbus.NewEvent(topic, scalar, forwarded.Payload(), func() { forwarded.Release() }))
	}
}

// retryBackoff is the shared backoff schedule for workers that hit a
// transient network failure: linear, capped by RetryConfig.MaxAttempts.
func retryBackoff(attempt int) time.Duration {
	return time.Duration(attempt) * 15 * time.Millisecond
}

func onWifiConnected(resolver deviceio.MDNSResolver) espbus.Flow {
	onOk := forwardTo(deviceio.MdnsFound, 0)
	onErr := espbus.Publish(deviceio.MdnsFailed, 0, espbus.ErrorCode(1), nil)
	worker := espbus.Chain(resolver.Resolve("device-01"),
		espbus.RecoveryMiddleware(),
		espbus.TimeoutMiddleware(200*time.Millisecond),
		espbus.RetryMiddleware(espbus.RetryConfig{MaxAttempts: 3, Backoff: retryBackoff}),
	)
	return espbus.AsyncBlocking(worker, onOk, onErr)
}

func onMDNSFound(mqtt deviceio.MQTTClient) espbus.Flow {
	onOk := forwardTo(deviceio.MqttConnected, 0)
	onErr := espbus.Publish(deviceio.SystemError, 0, espbus.ErrorCode(2), nil)
	return func(e *espbus.Event, bus *espbus.Bus) {
		host, _ := e.Payload().(espbus.Hostname)
		worker := espbus.Chain(mqtt.Connect(string(host)),
			espbus.RecoveryMiddleware(),
			espbus.TimeoutMiddleware(200*time.Millisecond),
			espbus.RetryMiddleware(espbus.RetryConfig{MaxAttempts: 2, Backoff: retryBackoff}),
		)
		espbus.AsyncBlocking(worker, onOk, onErr)(e, bus)
	}
}

func onMDNSFailed() espbus.Flow {
	return espbus.Seq(
		espbus.Tap(func(e *espbus.Event) {}),
		espbus.Publish(deviceio.SystemError, 0, espbus.ErrorCode(1), nil),
	)
}

func onMQTTConnected(mqtt deviceio.MQTTClient) espbus.Flow {
	onOk := espbus.Tap(func(e *espbus.Event) {})
	onErr := espbus.Publish(deviceio.SystemError, 0, espbus.ErrorCode(3), nil)
	publishFlow := espbus.AsyncBlockingWithEvent(mqtt.Publish(), onOk, onErr)
	return func(e *espbus.Event, bus *espbus.Bus) {
		msg := espbus.NewEvent(0, 0, espbus.MQTTMessage{Topic: "device-01/status", Body: []byte("online")}, nil)
		publishFlow(&msg, bus)
	}
}

func onSystemError(logger *xlog.Logger) espbus.Flow {
	return espbus.Tap(func(e *espbus.Event) {
		code, _ := e.Payload().(espbus.ErrorCode)
		logger.Warn().Msg(fmt.Sprintf("espbus-demo: system error code=%d", code))
	})
}
