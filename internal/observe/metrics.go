// Package observe provides application-wide observability primitives for the
// voice assistant: OpenTelemetry metrics, tracing, structured logging, and
// HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all assistant metrics.
const meterName = "github.com/kpfromer/voice-assistant"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// STTDuration tracks speech-to-text transcription latency.
	STTDuration metric.Float64Histogram

	// TTSDuration tracks one reply's synthesis and playback time, from the
	// synthesis request until the output drains.
	TTSDuration metric.Float64Histogram

	// ResponseDuration tracks end-to-end latency from utterance seal to
	// playback start.
	ResponseDuration metric.Float64Histogram

	// --- Counters ---

	// UtterancesSealed counts sealed utterances. Use with attribute:
	//   attribute.Bool("forced", ...)
	UtterancesSealed metric.Int64Counter

	// UtterancesDiscarded counts discarded utterances. Use with attribute:
	//   attribute.String("reason", ...)
	UtterancesDiscarded metric.Int64Counter

	// UtterancesDropped counts sealed utterances dropped because a newer one
	// displaced them from the pending queue.
	UtterancesDropped metric.Int64Counter

	// BargeIns counts playback cancellations caused by the user speaking
	// over the assistant.
	BargeIns metric.Int64Counter

	// StateTransitions counts assistant state changes. Use with attributes:
	//   attribute.String("from", ...), attribute.String("to", ...)
	StateTransitions metric.Int64Counter

	// --- Error counters ---

	// EngineErrors counts engine failures. Use with attribute:
	//   attribute.String("engine", ...)
	EngineErrors metric.Int64Counter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.STTDuration, err = m.Float64Histogram("assistant.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("assistant.tts.duration",
		metric.WithDescription("Synthesis and playback time per reply, request to output drain."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ResponseDuration, err = m.Float64Histogram("assistant.response.duration",
		metric.WithDescription("End-to-end latency from utterance seal to playback start."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.UtterancesSealed, err = m.Int64Counter("assistant.utterances.sealed",
		metric.WithDescription("Total sealed utterances by forced flag."),
	); err != nil {
		return nil, err
	}
	if met.UtterancesDiscarded, err = m.Int64Counter("assistant.utterances.discarded",
		metric.WithDescription("Total discarded utterances by reason."),
	); err != nil {
		return nil, err
	}
	if met.UtterancesDropped, err = m.Int64Counter("assistant.utterances.dropped",
		metric.WithDescription("Total sealed utterances displaced from the pending queue."),
	); err != nil {
		return nil, err
	}
	if met.BargeIns, err = m.Int64Counter("assistant.barge_ins",
		metric.WithDescription("Total playback cancellations caused by user speech."),
	); err != nil {
		return nil, err
	}
	if met.StateTransitions, err = m.Int64Counter("assistant.state.transitions",
		metric.WithDescription("Total assistant state transitions by from and to state."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.EngineErrors, err = m.Int64Counter("assistant.engine.errors",
		metric.WithDescription("Total engine failures by engine."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("assistant.http.request.duration",
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

// RecordSealed records a sealed utterance.
func (m *Metrics) RecordSealed(ctx context.Context, forced bool) {
	m.UtterancesSealed.Add(ctx, 1,
		metric.WithAttributes(attribute.Bool("forced", forced)),
	)
}

// RecordDiscarded records a discarded utterance.
func (m *Metrics) RecordDiscarded(ctx context.Context, reason string) {
	m.UtterancesDiscarded.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}

// RecordBargeIn records a playback cancellation caused by user speech.
func (m *Metrics) RecordBargeIn(ctx context.Context) {
	m.BargeIns.Add(ctx, 1)
}

// RecordTransition records an assistant state change.
func (m *Metrics) RecordTransition(ctx context.Context, from, to string) {
	m.StateTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("from", from),
			attribute.String("to", to),
		),
	)
}

// RecordEngineError records an engine failure.
func (m *Metrics) RecordEngineError(ctx context.Context, engine string) {
	m.EngineErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("engine", engine)),
	)
}
