// Package observe provides the observability primitives for recallcheck:
// OpenTelemetry metrics and tracing, trace-correlated slog loggers, and the
// HTTP middleware used on the diagnostics listener.
//
// Metrics are recorded through the OpenTelemetry Metrics API and bridged to
// Prometheus by [InitProvider]. [DefaultMetrics] returns a process-wide
// instance built on the global meter provider; tests should call
// [NewMetrics] with their own [metric.MeterProvider] instead.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope for all recallcheck metrics.
const meterName = "github.com/MrWong99/recallcheck"

// Delivery outcome values used with the "outcome" attribute.
const (
	OutcomeOK          = "ok"
	OutcomeError       = "error"
	OutcomeUnavailable = "unavailable"
)

// Metrics holds the OpenTelemetry instruments for the application. The
// underlying OTel types are safe for concurrent use.
type Metrics struct {
	// TTSDuration tracks remote synthesis latency per provider.
	TTSDuration metric.Float64Histogram

	// STTDuration tracks transcription latency per provider.
	STTDuration metric.Float64Histogram

	// PlaybackDuration tracks how long a decoded clip took to play.
	PlaybackDuration metric.Float64Histogram

	// DeliveryAttempts counts primary-path attempts. Attributes:
	//   attribute.String("outcome", "ok"|"error")
	DeliveryAttempts metric.Int64Counter

	// DeliveryFallbacks counts local synthesis invocations. Attributes:
	//   attribute.String("outcome", "ok"|"error"|"unavailable")
	DeliveryFallbacks metric.Int64Counter

	// ProviderRequests counts provider calls. Attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider failures. Attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// Assessments counts finished runs. Attributes:
	//   attribute.String("outcome", "scored"|"aborted"|"reset")
	Assessments metric.Int64Counter

	// RecallScore records the score of every scored run.
	RecallScore metric.Int64Histogram

	// ActiveAssessments is 1 while a run is between Presenting and Scored.
	ActiveAssessments metric.Int64UpDownCounter

	// HTTPRequestDuration tracks diagnostics request latency. Attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are histogram boundaries in seconds. Synthesis and
// transcription of a short utterance usually land between 100ms and 5s.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 10, 30,
}

// NewMetrics creates all instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.TTSDuration, err = m.Float64Histogram("recallcheck.tts.duration",
		metric.WithDescription("Latency of remote text-to-speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.STTDuration, err = m.Float64Histogram("recallcheck.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PlaybackDuration, err = m.Float64Histogram("recallcheck.playback.duration",
		metric.WithDescription("Wall time spent playing synthesised clips."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.DeliveryAttempts, err = m.Int64Counter("recallcheck.delivery.attempts",
		metric.WithDescription("Primary-path delivery attempts by outcome."),
	); err != nil {
		return nil, err
	}
	if met.DeliveryFallbacks, err = m.Int64Counter("recallcheck.delivery.fallbacks",
		metric.WithDescription("Local synthesis fallbacks by outcome."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("recallcheck.provider.requests",
		metric.WithDescription("Total provider requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("recallcheck.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	if met.Assessments, err = m.Int64Counter("recallcheck.assessments",
		metric.WithDescription("Finished assessment runs by outcome."),
	); err != nil {
		return nil, err
	}
	if met.RecallScore, err = m.Int64Histogram("recallcheck.recall.score",
		metric.WithDescription("Number of words recalled per scored run."),
		metric.WithExplicitBucketBoundaries(0, 1, 2, 3),
	); err != nil {
		return nil, err
	}
	if met.ActiveAssessments, err = m.Int64UpDownCounter("recallcheck.active_assessments",
		metric.WithDescription("Assessment runs currently in progress."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("recallcheck.http.request.duration",
		metric.WithDescription("Diagnostics HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call from [otel.GetMeterProvider]. Panics if instrument creation
// fails.
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

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest increments the provider request counter.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError increments the provider error counter.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordDeliveryAttempt increments the primary-path attempt counter.
func (m *Metrics) RecordDeliveryAttempt(ctx context.Context, outcome string) {
	m.DeliveryAttempts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordFallback increments the fallback counter.
func (m *Metrics) RecordFallback(ctx context.Context, outcome string) {
	m.DeliveryFallbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordAssessment counts a finished run. score is recorded only when the
// outcome is "scored".
func (m *Metrics) RecordAssessment(ctx context.Context, outcome string, score int) {
	m.Assessments.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	if outcome == "scored" {
		m.RecallScore.Record(ctx, int64(score))
	}
}
