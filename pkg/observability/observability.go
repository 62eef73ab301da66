package observability

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/milan604/sessionhttp/pkg/config"
	"github.com/milan604/sessionhttp/pkg/logger"
	"github.com/milan604/sessionhttp/pkg/version"
)

// ObservabilityIface defines the interface for observability operations
type ObservabilityIface interface {
	// StartSpan creates a new span for tracing
	StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span)

	// Shutdown flushes pending spans and stops the exporter
	Shutdown(ctx context.Context) error

	// GetTracer returns the tracer instance
	GetTracer() trace.Tracer
}

// Observability manages OpenTelemetry tracing for sessions.
type Observability struct {
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer
	log            logger.LogManager
	serviceName    string
	serviceVersion string
}

// Config keys read by New.
const (
	KeyServiceName    = "observability.service_name"
	KeyServiceVersion = "observability.service_version"
	KeyEndpoint       = "observability.otlp_endpoint"
	KeyInsecure       = "observability.insecure"
	KeySampleRatio    = "observability.sample_ratio"
)

// New creates an Observability exporting spans over OTLP/HTTP and installs it
// as the global tracer provider and propagator.
func New(log logger.LogManager, cfg *config.Config) (ObservabilityIface, error) {
	serviceName := cfg.GetStringD(KeyServiceName, version.Product)
	serviceVersion := cfg.GetStringD(KeyServiceVersion, version.Version)
	endpoint := cfg.GetStringD(KeyEndpoint, "localhost:4318")

	exporterOpts := []otlptracehttp.Option{}
	if strings.Contains(endpoint, "://") {
		exporterOpts = append(exporterOpts, otlptracehttp.WithEndpointURL(endpoint))
	} else {
		exporterOpts = append(exporterOpts, otlptracehttp.WithEndpoint(endpoint))
	}
	if cfg.GetBoolD(KeyInsecure, true) {
		exporterOpts = append(exporterOpts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptracehttp.New(context.Background(), exporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	sampler := sdktrace.AlwaysSample()
	if cfg.IsSet(KeySampleRatio) {
		sampler = sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.GetFloat64(KeySampleRatio)))
	}

	obs, err := newObservability(log, serviceName, serviceVersion,
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sampler),
	)
	if err != nil {
		return nil, err
	}

	otel.SetTracerProvider(obs.tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	log.InfoF("Observability initialized: service=%s, version=%s, endpoint=%s",
		serviceName, serviceVersion, endpoint)

	return obs, nil
}

// NewWithExporter builds an Observability that exports synchronously to
// exporter. It does not touch the global provider.
func NewWithExporter(log logger.LogManager, serviceName string, exporter sdktrace.SpanExporter) (*Observability, error) {
	return newObservability(log, serviceName, version.Version,
		sdktrace.WithSyncer(exporter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
}

func newObservability(log logger.LogManager, serviceName, serviceVersion string, opts ...sdktrace.TracerProviderOption) (*Observability, error) {
	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(append(opts, sdktrace.WithResource(res))...)
	tracer := tp.Tracer(
		serviceName,
		trace.WithInstrumentationVersion(serviceVersion),
	)

	return &Observability{
		tracerProvider: tp,
		tracer:         tracer,
		log:            log,
		serviceName:    serviceName,
		serviceVersion: serviceVersion,
	}, nil
}

// MustNew creates a new Observability instance and panics on error
func MustNew(log logger.LogManager, cfg *config.Config) ObservabilityIface {
	obs, err := New(log, cfg)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize observability: %v", err))
	}
	return obs
}

// StartSpan creates a new span for tracing
func (o *Observability) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return o.tracer.Start(ctx, name, opts...)
}

// Shutdown flushes and stops the tracer provider.
func (o *Observability) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := o.tracerProvider.Shutdown(ctx); err != nil {
		o.log.ErrorF("failed to shutdown tracer provider: %v", err)
		return err
	}

	o.log.InfoF("Observability shutdown completed")
	return nil
}

// GetTracer returns the tracer instance
func (o *Observability) GetTracer() trace.Tracer {
	return o.tracer
}
