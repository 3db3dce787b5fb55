package espbus

import "github.com/trickstertwo/xlog"

// Observer receives bus lifecycle telemetry. Implementations should be
// non-blocking; the bus delivers to observers through an ObserverPool so
// a slow observer cannot stall the publish/dispatch path, but a
// panicking observer is still tolerated defensively (see
// ObserverPool.dispatch).
type Observer interface {
	OnEvent(e BusEvent)
}

// ObserverFunc is an Adapter that lets a plain function satisfy Observer.
type ObserverFunc func(e BusEvent)

func (f ObserverFunc) OnEvent(e BusEvent) { f(e) }

// LoggingObserver is an Adapter that emits BusEvents via xlog.
type LoggingObserver struct {
	Logger *xlog.Logger
}

func (o LoggingObserver) OnEvent(e BusEvent) {
	if o.Logger == nil {
		return
	}
	ev := o.Logger.With(
		xlog.Str("type", string(e.Type)),
		xlog.Str("name", e.Name),
		xlog.Str("correlation_id", e.CorrelationID),
	)
	switch e.Type {
	case EventError, EventAsyncErr:
		ev.Warn().Err(e.Err).Msg("espbus event")
	case EventRegistryFull:
		ev.Warn().Msg("espbus event")
	default:
		if e.Duration > 0 {
			ev = ev.With(xlog.Dur("duration", e.Duration))
		}
		ev.Debug().Msg("espbus event")
	}
}
