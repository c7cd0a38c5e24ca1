package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const pipelineMeterName = "github.com/sundose/sundose/internal/uv"

// PipelineMetrics records forecast fetches, cache fallbacks and dose commits.
// A nil *PipelineMetrics is valid and records nothing.
type PipelineMetrics struct {
	fetchDuration metric.Float64Histogram
	fetchTotal    metric.Int64Counter
	cacheHit      metric.Int64Counter
	cacheMiss     metric.Int64Counter
	doseCommitted metric.Float64Counter
}

// NewPipelineMetrics creates the pipeline instruments on the global meter.
func NewPipelineMetrics() (*PipelineMetrics, error) {
	meter := otel.Meter(pipelineMeterName)

	fetchDuration, err := meter.Float64Histogram(
		"provider.request.duration",
		metric.WithDescription("Duration of forecast provider requests in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	fetchTotal, err := meter.Int64Counter(
		"provider.request.total",
		metric.WithDescription("Total number of forecast provider requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	cacheHit, err := meter.Int64Counter(
		"uv.cache.hit",
		metric.WithDescription("Offline fallbacks served from the environmental cache"),
		metric.WithUnit("{hit}"),
	)
	if err != nil {
		return nil, err
	}

	cacheMiss, err := meter.Int64Counter(
		"uv.cache.miss",
		metric.WithDescription("Offline fallbacks that found no cached record"),
		metric.WithUnit("{miss}"),
	)
	if err != nil {
		return nil, err
	}

	doseCommitted, err := meter.Float64Counter(
		"dose.committed",
		metric.WithDescription("Vitamin D dose committed to the health store"),
		metric.WithUnit("[iU]"),
	)
	if err != nil {
		return nil, err
	}

	return &PipelineMetrics{
		fetchDuration: fetchDuration,
		fetchTotal:    fetchTotal,
		cacheHit:      cacheHit,
		cacheMiss:     cacheMiss,
		doseCommitted: doseCommitted,
	}, nil
}

// RecordFetch records one provider request.
func (m *PipelineMetrics) RecordFetch(ctx context.Context, provider string, duration time.Duration, err error) {
	if m == nil {
		return
	}

	attrs := []attribute.KeyValue{attribute.String("provider.name", provider)}
	if err != nil {
		attrs = append(attrs, attribute.Bool("error", true))
	}

	// Fetches may complete after the caller's context is cancelled.
	ctx = context.WithoutCancel(ctx)
	m.fetchDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.fetchTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordCacheLookup records the outcome of an offline cache lookup.
func (m *PipelineMetrics) RecordCacheLookup(ctx context.Context, hit bool) {
	if m == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if hit {
		m.cacheHit.Add(ctx, 1)
		return
	}
	m.cacheMiss.Add(ctx, 1)
}

// RecordDose records a dose appended to the health store.
func (m *PipelineMetrics) RecordDose(ctx context.Context, iu float64, manual bool) {
	if m == nil {
		return
	}
	m.doseCommitted.Add(context.WithoutCancel(ctx), iu, metric.WithAttributes(attribute.Bool("manual", manual)))
}
