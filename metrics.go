package espbus

import "github.com/prometheus/client_golang/prometheus"

// PrometheusObserver is an Adapter from Observer to a set of Prometheus
// collectors, so a hosted deployment of this bus (a gateway process
// bridging many embedded devices, say) can export the same telemetry
// LoggingObserver logs, as metrics instead of log lines.
type PrometheusObserver struct {
	dispatched  prometheus.Counter
	dropped     prometheus.Counter
	registryFul prometheus.Counter
	asyncOk     prometheus.Counter
	asyncErr    prometheus.Counter
	errors      prometheus.Counter
	dispatchDur prometheus.Histogram
}

// NewPrometheusObserver constructs and registers the bus's collectors
// against reg. Passing prometheus.NewRegistry() (rather than the global
// DefaultRegisterer) is recommended so tests can create independent
// observers without collector name collisions.
func NewPrometheusObserver(reg prometheus.Registerer, namespace string) *PrometheusObserver {
	o := &PrometheusObserver{
		dispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "dispatched_total",
			Help: "Events fanned out to their subscribed handlers.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "dropped_total",
			Help: "Events dropped by dispatch queue overflow.",
		}),
		registryFul: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "registry_full_total",
			Help: "Subscribe calls rejected because the registry had no free slot.",
		}),
		asyncOk: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "async_ok_total",
			Help: "Async workers that completed without error.",
		}),
		asyncErr: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "async_err_total",
			Help: "Async workers that completed with an error.",
		}),
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "errors_total",
			Help: "Handler panics and other dispatch-time errors.",
		}),
		dispatchDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "dispatch_duration_seconds",
			Help:    "Time spent fanning a single event out to its listeners.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(o.dispatched, o.dropped, o.registryFul, o.asyncOk, o.asyncErr, o.errors, o.dispatchDur)
	return o
}

// OnEvent implements Observer.
func (o *PrometheusObserver) OnEvent(e BusEvent) {
	switch e.Type {
	case EventDispatchDone:
		o.dispatched.Inc()
		if e.Duration > 0 {
			o.dispatchDur.Observe(e.Duration.Seconds())
		}
	case EventQueueDropped:
		o.dropped.Inc()
	case EventRegistryFull:
		o.registryFul.Inc()
	case EventAsyncOk:
		o.asyncOk.Inc()
	case EventAsyncErr:
		o.asyncErr.Inc()
	case EventError:
		o.errors.Inc()
	}
}
