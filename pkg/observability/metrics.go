package observability

import (
	"context"
	"fmt"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
)

// MetricsIface defines the interface for metrics operations
type MetricsIface interface {
	RequestObserver

	// IncrementCounter increments a counter metric
	IncrementCounter(ctx context.Context, name string, attrs ...attribute.KeyValue)

	// RecordGauge records a gauge metric
	RecordGauge(ctx context.Context, name string, value float64, attrs ...attribute.KeyValue)

	// RecordHistogram records a histogram metric
	RecordHistogram(ctx context.Context, name string, value float64, attrs ...attribute.KeyValue)
}

// Metrics records client metrics through an OpenTelemetry meter.
type Metrics struct {
	meter    metric.Meter
	requests metric.Int64Counter
	duration metric.Float64Histogram
	inFlight metric.Int64UpDownCounter
}

// NewMetrics creates a Metrics backed by the global meter provider.
func NewMetrics(serviceName string) (*Metrics, error) {
	return NewMetricsWithProvider(otel.GetMeterProvider(), serviceName)
}

// NewMetricsWithProvider creates a Metrics backed by mp.
func NewMetricsWithProvider(mp metric.MeterProvider, serviceName string) (*Metrics, error) {
	meter := mp.Meter(serviceName)

	requests, err := meter.Int64Counter(
		"http.client.requests",
		metric.WithDescription("Requests dispatched, redirect hops included"),
	)
	if err != nil {
		return nil, fmt.Errorf("http.client.requests: %w", err)
	}
	duration, err := meter.Float64Histogram(
		"http.client.request.duration",
		metric.WithDescription("Duration of a single exchange"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("http.client.request.duration: %w", err)
	}
	inFlight, err := meter.Int64UpDownCounter(
		"http.client.active_requests",
		metric.WithDescription("Requests awaiting a response"),
	)
	if err != nil {
		return nil, fmt.Errorf("http.client.active_requests: %w", err)
	}

	return &Metrics{
		meter:    meter,
		requests: requests,
		duration: duration,
		inFlight: inFlight,
	}, nil
}

// MustNewMetrics creates a new Metrics instance and panics on error
func MustNewMetrics(serviceName string) *Metrics {
	metrics, err := NewMetrics(serviceName)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize metrics: %v", err))
	}
	return metrics
}

func (m *Metrics) RequestStarted(ctx context.Context, method, host string) {
	m.inFlight.Add(ctx, 1, metric.WithAttributes(
		semconv.HTTPRequestMethodKey.String(method),
		semconv.ServerAddress(host),
	))
}

func (m *Metrics) RequestFinished(ctx context.Context, info RequestInfo) {
	base := []attribute.KeyValue{
		semconv.HTTPRequestMethodKey.String(info.Method),
		semconv.ServerAddress(info.Host),
	}
	m.inFlight.Add(ctx, -1, metric.WithAttributes(base...))

	attrs := append(base, statusAttr(info))
	m.requests.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.duration.Record(ctx, info.Duration.Seconds(), metric.WithAttributes(attrs...))
}

func statusAttr(info RequestInfo) attribute.KeyValue {
	if info.StatusCode == 0 {
		return attribute.String("error.type", "transport")
	}
	return semconv.HTTPResponseStatusCode(info.StatusCode)
}

// IncrementCounter increments a counter metric
func (m *Metrics) IncrementCounter(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	counter, err := m.meter.Int64Counter(
		name,
		metric.WithDescription(fmt.Sprintf("Counter for %s", name)),
	)
	if err != nil {
		return
	}
	counter.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordGauge records a gauge metric
func (m *Metrics) RecordGauge(ctx context.Context, name string, value float64, attrs ...attribute.KeyValue) {
	gauge, err := m.meter.Float64Gauge(
		name,
		metric.WithDescription(fmt.Sprintf("Gauge for %s", name)),
	)
	if err != nil {
		return
	}
	gauge.Record(ctx, value, metric.WithAttributes(attrs...))
}

// RecordHistogram records a histogram metric
func (m *Metrics) RecordHistogram(ctx context.Context, name string, value float64, attrs ...attribute.KeyValue) {
	histogram, err := m.meter.Float64Histogram(
		name,
		metric.WithDescription(fmt.Sprintf("Histogram for %s", name)),
	)
	if err != nil {
		return
	}
	histogram.Record(ctx, value, metric.WithAttributes(attrs...))
}

// statusLabel renders a status code for label values; transport failures
// have no status.
func statusLabel(code int) string {
	if code == 0 {
		return "error"
	}
	return strconv.Itoa(code)
}
