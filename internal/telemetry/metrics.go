package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ProviderMetrics holds metrics for upstream provider calls.
type ProviderMetrics struct {
	requestDuration metric.Float64Histogram
	requestTotal    metric.Int64Counter
	contourTotal    metric.Int64Counter
}

// NewProviderMetrics creates metrics for monitoring upstream provider calls.
func NewProviderMetrics(meter metric.Meter) (*ProviderMetrics, error) {
	requestDuration, err := meter.Float64Histogram(
		"provider.request.duration",
		metric.WithDescription("Duration of provider requests in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	requestTotal, err := meter.Int64Counter(
		"provider.request.total",
		metric.WithDescription("Total number of provider requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	contourTotal, err := meter.Int64Counter(
		"provider.contour.total",
		metric.WithDescription("Total number of contours returned by providers"),
		metric.WithUnit("{contour}"),
	)
	if err != nil {
		return nil, err
	}

	return &ProviderMetrics{
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		contourTotal:    contourTotal,
	}, nil
}

// RecordRequest records metrics for a provider request.
// A nil receiver records nothing.
func (m *ProviderMetrics) RecordRequest(provider, operation string, duration time.Duration, contours int, err error) {
	if m == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("provider.name", provider),
		attribute.String("provider.operation", operation),
	}

	if err != nil {
		attrs = append(attrs, attribute.Bool("error", true))
	}

	ctx := context.Background()
	m.requestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.requestTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	if contours > 0 {
		m.contourTotal.Add(ctx, int64(contours), metric.WithAttributes(attrs...))
	}
}
