// Package observe provides application-wide observability primitives for
// the memory service: OpenTelemetry metrics, distributed tracing, structured
// logging, and HTTP middleware that ties them together.
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

// meterName is the instrumentation scope name used for all memory-service metrics.
const meterName = "github.com/powermem-ai/powermem"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// EmbedDuration tracks embedding-provider call latency.
	EmbedDuration metric.Float64Histogram

	// LLMDuration tracks LLM inference latency (extraction, reconcile, rerank).
	LLMDuration metric.Float64Histogram

	// ReconcileDuration tracks the end-to-end Reconciler latency per add call.
	ReconcileDuration metric.Float64Histogram

	// SearchDuration tracks Hybrid Query Planner latency per search call.
	SearchDuration metric.Float64Histogram

	// StorageDuration tracks Storage Engine RPC latency. Use with attribute:
	//   attribute.String("op", ...)
	StorageDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// AddRequested counts Core.Add invocations before any work is done.
	AddRequested metric.Int64Counter

	// AddCompleted counts Core.Add invocations that returned without error,
	// by event kind produced (ADD/UPDATE/DELETE/NONE).
	AddCompleted metric.Int64Counter

	// SearchRequests counts Core.Search invocations. Use with attribute:
	//   attribute.String("path", "native"|"fallback")
	SearchRequests metric.Int64Counter

	// StorageErrors counts Storage Engine RPC failures. Use with attribute:
	//   attribute.String("op", ...)
	StorageErrors metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveRequests tracks the number of in-flight Core operations.
	ActiveRequests metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// provider-call and storage-RPC latencies.
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
	if met.EmbedDuration, err = m.Float64Histogram("powermem.embed.duration",
		metric.WithDescription("Latency of embedding-provider calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("powermem.llm.duration",
		metric.WithDescription("Latency of LLM inference."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ReconcileDuration, err = m.Float64Histogram("powermem.reconcile.duration",
		metric.WithDescription("Latency of a full Reconciler pass."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SearchDuration, err = m.Float64Histogram("powermem.search.duration",
		metric.WithDescription("Latency of a Hybrid Query Planner search."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.StorageDuration, err = m.Float64Histogram("powermem.storage.duration",
		metric.WithDescription("Latency of Storage Engine RPCs."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ProviderRequests, err = m.Int64Counter("powermem.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.AddRequested, err = m.Int64Counter("powermem.add.requested",
		metric.WithDescription("Total Core.Add invocations received."),
	); err != nil {
		return nil, err
	}
	if met.AddCompleted, err = m.Int64Counter("powermem.add.completed",
		metric.WithDescription("Total Core.Add invocations completed, by event kind."),
	); err != nil {
		return nil, err
	}
	if met.SearchRequests, err = m.Int64Counter("powermem.search.requests",
		metric.WithDescription("Total Core.Search invocations, by planner path."),
	); err != nil {
		return nil, err
	}
	if met.StorageErrors, err = m.Int64Counter("powermem.storage.errors",
		metric.WithDescription("Total Storage Engine RPC failures, by operation."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("powermem.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveRequests, err = m.Int64UpDownCounter("powermem.active_requests",
		metric.WithDescription("Number of in-flight Core operations."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("powermem.http.request.duration",
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

// RecordProviderRequest is a convenience method that records a provider
// request counter increment with the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordAddRequested records one Core.Add call being received.
func (m *Metrics) RecordAddRequested(ctx context.Context) {
	m.AddRequested.Add(ctx, 1)
}

// RecordAddCompleted records one applied reconcile event, tagged by kind
// (ADD/UPDATE/DELETE/NONE).
func (m *Metrics) RecordAddCompleted(ctx context.Context, eventKind string) {
	m.AddCompleted.Add(ctx, 1, metric.WithAttributes(attribute.String("event", eventKind)))
}

// RecordSearchRequest records one Core.Search call, tagged by the Hybrid
// Query Planner path it took.
func (m *Metrics) RecordSearchRequest(ctx context.Context, path string) {
	m.SearchRequests.Add(ctx, 1, metric.WithAttributes(attribute.String("path", path)))
}

// RecordStorageError records one failed Storage Engine RPC, tagged by
// operation name.
func (m *Metrics) RecordStorageError(ctx context.Context, op string) {
	m.StorageErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}
