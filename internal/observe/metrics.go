// Package observe provides application-wide observability primitives for
// scriptsync: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
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
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all scriptsync metrics.
const meterName = "github.com/MrWong99/scriptsync"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// AlignDuration tracks how long a single alignment takes.
	AlignDuration metric.Float64Histogram

	// STTDuration tracks speech-to-text transcription latency. Use with
	// attribute.String("provider", ...).
	STTDuration metric.Float64Histogram

	// --- Counters ---

	// AlignedWords counts script words by outcome. Use with attribute:
	//   attribute.String("outcome", "matched"|"interpolated")
	AlignedWords metric.Int64Counter

	// AlignRequests counts alignment requests. Use with attributes:
	//   attribute.String("source", ...), attribute.String("status", ...)
	AlignRequests metric.Int64Counter

	// CacheLookups counts transcript cache lookups. Use with attribute:
	//   attribute.String("result", "hit"|"miss"|"error")
	CacheLookups metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts STT provider errors. Use with attribute:
	//   attribute.String("provider", ...)
	ProviderErrors metric.Int64Counter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// alignBuckets are histogram bucket boundaries (in seconds) for the aligner,
// which runs in well under a millisecond for short scripts.
var alignBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1,
}

// sttBuckets are histogram bucket boundaries (in seconds) for batch
// transcription of whole recordings.
var sttBuckets = []float64{
	0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.AlignDuration, err = m.Float64Histogram("scriptsync.align.duration",
		metric.WithDescription("Latency of aligning a script against recognised tokens."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(alignBuckets...),
	); err != nil {
		return nil, err
	}
	if met.STTDuration, err = m.Float64Histogram("scriptsync.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(sttBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.AlignedWords, err = m.Int64Counter("scriptsync.align.words",
		metric.WithDescription("Total aligned script words by outcome."),
	); err != nil {
		return nil, err
	}
	if met.AlignRequests, err = m.Int64Counter("scriptsync.align.requests",
		metric.WithDescription("Total alignment requests by source and status."),
	); err != nil {
		return nil, err
	}
	if met.CacheLookups, err = m.Int64Counter("scriptsync.cache.lookups",
		metric.WithDescription("Total transcript cache lookups by result."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("scriptsync.provider.errors",
		metric.WithDescription("Total STT provider errors by provider."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("scriptsync.http.request.duration",
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

// RecordAlignment records one finished alignment: its latency, the request
// counter for source and status, and the per-outcome word counts.
func (m *Metrics) RecordAlignment(ctx context.Context, source, status string, d time.Duration, matched, interpolated int) {
	m.AlignDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("source", source)))
	m.AlignRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("source", source),
			attribute.String("status", status),
		),
	)
	if matched > 0 {
		m.AlignedWords.Add(ctx, int64(matched), metric.WithAttributes(attribute.String("outcome", "matched")))
	}
	if interpolated > 0 {
		m.AlignedWords.Add(ctx, int64(interpolated), metric.WithAttributes(attribute.String("outcome", "interpolated")))
	}
}

// RecordTranscription records STT latency for provider.
func (m *Metrics) RecordTranscription(ctx context.Context, provider string, d time.Duration) {
	m.STTDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("provider", provider)))
}

// RecordCacheLookup records a transcript cache lookup with result "hit",
// "miss" or "error".
func (m *Metrics) RecordCacheLookup(ctx context.Context, result string) {
	m.CacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("provider", provider)),
	)
}
