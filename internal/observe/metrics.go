// Package observe provides application-wide observability primitives for
// ringward: OpenTelemetry metrics and the Prometheus exporter bridge.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all ringward metrics.
const meterName = "github.com/ringward/ringward"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// ProbeDuration tracks device call-state query latency.
	ProbeDuration metric.Float64Histogram

	// ReplyDuration tracks conversation-service reply latency per turn.
	ReplyDuration metric.Float64Histogram

	// SpeakDuration tracks playback latency per spoken sentence.
	SpeakDuration metric.Float64Histogram

	// --- Counters ---

	// ProbeRequests counts device probes. Use with attribute:
	//   attribute.String("status", "ok"|"error")
	ProbeRequests metric.Int64Counter

	// Transitions counts lifecycle transitions. Use with attribute:
	//   attribute.String("to", ...)
	Transitions metric.Int64Counter

	// CallsHandled counts completed calls. Use with attribute:
	//   attribute.String("outcome", ...)
	CallsHandled metric.Int64Counter

	// DuplicatePickups counts pickup signals rejected because a call was
	// already being handled.
	DuplicatePickups metric.Int64Counter

	// BreakerTrips counts conversation-loop circuit-breaker exits. Use with
	// attribute: attribute.String("breaker", "duration"|"silence"|"irrelevance")
	BreakerTrips metric.Int64Counter

	// ConversationTurns counts completed conversation turns.
	ConversationTurns metric.Int64Counter

	// --- Histograms over call results ---

	// CallDuration tracks total call duration in seconds.
	CallDuration metric.Float64Histogram

	// --- Gauges ---

	// ActiveCalls tracks the number of calls currently being handled
	// (0 or 1; gauged so a stuck call is visible).
	ActiveCalls metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for probe and speech latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// callDurationBuckets covers the 0–180 s call budget.
var callDurationBuckets = []float64{
	5, 10, 20, 30, 60, 90, 120, 150, 180, 240,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.ProbeDuration, err = m.Float64Histogram("ringward.probe.duration",
		metric.WithDescription("Latency of device call-state queries."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ReplyDuration, err = m.Float64Histogram("ringward.reply.duration",
		metric.WithDescription("Latency of conversation-service reply generation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SpeakDuration, err = m.Float64Histogram("ringward.speak.duration",
		metric.WithDescription("Latency of speaking one sentence."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CallDuration, err = m.Float64Histogram("ringward.call.duration",
		metric.WithDescription("Total duration of completed calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(callDurationBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ProbeRequests, err = m.Int64Counter("ringward.probe.requests",
		metric.WithDescription("Total device probes by status."),
	); err != nil {
		return nil, err
	}
	if met.Transitions, err = m.Int64Counter("ringward.call.transitions",
		metric.WithDescription("Total lifecycle transitions by target state."),
	); err != nil {
		return nil, err
	}
	if met.CallsHandled, err = m.Int64Counter("ringward.calls.handled",
		metric.WithDescription("Total completed calls by outcome."),
	); err != nil {
		return nil, err
	}
	if met.DuplicatePickups, err = m.Int64Counter("ringward.calls.duplicate_pickups",
		metric.WithDescription("Pickup signals rejected while a call was already active."),
	); err != nil {
		return nil, err
	}
	if met.BreakerTrips, err = m.Int64Counter("ringward.conversation.breaker_trips",
		metric.WithDescription("Conversation-loop circuit-breaker exits by breaker."),
	); err != nil {
		return nil, err
	}
	if met.ConversationTurns, err = m.Int64Counter("ringward.conversation.turns",
		metric.WithDescription("Total completed conversation turns."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveCalls, err = m.Int64UpDownCounter("ringward.calls.active",
		metric.WithDescription("Number of calls currently being handled."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("ringward.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProbe records one device probe: latency plus status counter.
func (m *Metrics) RecordProbe(ctx context.Context, d time.Duration, ok bool) {
	status := "ok"
	if !ok {
		status = "error"
	}
	m.ProbeDuration.Record(ctx, d.Seconds())
	m.ProbeRequests.Add(ctx, 1,
		metric.WithAttributes(Attr("status", status)),
	)
}

// RecordTransition records one lifecycle transition.
func (m *Metrics) RecordTransition(ctx context.Context, to string) {
	m.Transitions.Add(ctx, 1,
		metric.WithAttributes(Attr("to", to)),
	)
}

// RecordCall records a completed call's outcome and duration.
func (m *Metrics) RecordCall(ctx context.Context, outcome string, d time.Duration) {
	m.CallsHandled.Add(ctx, 1,
		metric.WithAttributes(Attr("outcome", outcome)),
	)
	m.CallDuration.Record(ctx, d.Seconds())
}

// RecordBreakerTrip records a conversation-loop breaker exit.
func (m *Metrics) RecordBreakerTrip(ctx context.Context, breaker string) {
	m.BreakerTrips.Add(ctx, 1,
		metric.WithAttributes(Attr("breaker", breaker)),
	)
}
