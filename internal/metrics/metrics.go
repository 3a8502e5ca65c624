package metrics

import "github.com/prometheus/client_golang/prometheus"

const (
	eventType = "event_type"
	operation = "operation"
)

var (
	// EventsProcessed is the number of events processed per type.
	EventsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_events_processed_count",
		Help: "Number of events processed per event type",
	}, []string{eventType})

	// HandlerErrors is the number of handler failures that propagated.
	HandlerErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_handler_error_count",
		Help: "Number of handler errors that failed the event",
	}, []string{eventType})

	// ToleratedErrors is the number of handler failures absorbed by the
	// notFailOnError policy.
	ToleratedErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_tolerated_error_count",
		Help: "Number of handler errors persisted on the event instead of failing it",
	}, []string{eventType})

	// HandlerLatency is how long a handler takes to process an event.
	HandlerLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "engine_handler_latency_seconds",
		Help:    "Handler latency in seconds",
		Buckets: []float64{0.01, 0.1, 1, 5, 10, 60, 300},
	}, []string{eventType})

	// ExternalCallErrors is the number of failed external provider or
	// directory calls.
	ExternalCallErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_external_call_error_count",
		Help: "Number of failed external service calls",
	}, []string{operation})
)

func init() {
	prometheus.MustRegister(
		EventsProcessed,
		HandlerErrors,
		ToleratedErrors,
		HandlerLatency,
		ExternalCallErrors,
	)
}
