// Package observe provides application-wide observability primitives for
// eclectech: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
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

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all eclectech metrics.
const meterName = "github.com/MrWong99/eclectech"

// Cache lookup outcomes for [Metrics.RecordCacheLookup].
const (
	CacheHit     = "hit"
	CacheMiss    = "miss"
	CacheInvalid = "invalid"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms ---

	// RewriteDuration tracks a full rewrite pipeline (all features).
	RewriteDuration metric.Float64Histogram

	// RewriteStepDuration tracks a single per-feature rewrite call. Use with
	// attribute.String("feature", ...).
	RewriteStepDuration metric.Float64Histogram

	// TranscriptionDuration tracks segment transcription latency.
	TranscriptionDuration metric.Float64Histogram

	// --- Counters ---

	// CacheLookups counts rewrite cache reads. Use with
	// attribute.String("result", hit|miss|invalid).
	CacheLookups metric.Int64Counter

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActivePages tracks connected page hosts.
	ActivePages metric.Int64UpDownCounter

	// ActiveCaptionSessions tracks live caption runs.
	ActiveCaptionSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// rewriteBuckets covers generative rewrites, which routinely take seconds.
var rewriteBuckets = []float64{
	0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 80,
}

// latencyBuckets covers transcription and HTTP latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.RewriteDuration, err = m.Float64Histogram("eclectech.rewrite.duration",
		metric.WithDescription("Latency of a complete page rewrite."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(rewriteBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RewriteStepDuration, err = m.Float64Histogram("eclectech.rewrite.step.duration",
		metric.WithDescription("Latency of a single per-feature rewrite call."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(rewriteBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranscriptionDuration, err = m.Float64Histogram("eclectech.transcription.duration",
		metric.WithDescription("Latency of caption segment transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.CacheLookups, err = m.Int64Counter("eclectech.cache.lookups",
		metric.WithDescription("Rewrite cache lookups by result."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("eclectech.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("eclectech.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	if met.ActivePages, err = m.Int64UpDownCounter("eclectech.active_pages",
		metric.WithDescription("Number of connected page hosts."),
	); err != nil {
		return nil, err
	}
	if met.ActiveCaptionSessions, err = m.Int64UpDownCounter("eclectech.active_caption_sessions",
		metric.WithDescription("Number of live caption sessions."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("eclectech.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
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
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails (should not happen with the global provider).
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

// RecordCacheLookup increments the cache lookup counter for result.
func (m *Metrics) RecordCacheLookup(ctx context.Context, result string) {
	m.CacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordProviderRequest records a provider request counter increment with the
// standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
