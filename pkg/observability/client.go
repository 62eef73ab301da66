package observability

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
	"go.opentelemetry.io/otel/trace"
)

// RequestInfo describes one finished exchange.
type RequestInfo struct {
	Method string
	Host   string
	// StatusCode is 0 when the transport failed.
	StatusCode int
	Duration   time.Duration
	Err        error
}

// RequestObserver is told about every request a session dispatches,
// redirect hops included.
type RequestObserver interface {
	RequestStarted(ctx context.Context, method, host string)
	RequestFinished(ctx context.Context, info RequestInfo)
}

// Observers fans out to several observers.
type Observers []RequestObserver

func (o Observers) RequestStarted(ctx context.Context, method, host string) {
	for _, obs := range o {
		obs.RequestStarted(ctx, method, host)
	}
}

func (o Observers) RequestFinished(ctx context.Context, info RequestInfo) {
	for _, obs := range o {
		obs.RequestFinished(ctx, info)
	}
}

// TraceExternalCall starts a client span for an outgoing call.
func TraceExternalCall(ctx context.Context, obs ObservabilityIface, method string, rawURL string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		semconv.HTTPRequestMethodKey.String(method),
		semconv.URLFull(rawURL),
	}
	if u, err := url.Parse(rawURL); err == nil {
		attrs = append(attrs, semconv.ServerAddress(u.Hostname()))
	}
	return obs.StartSpan(ctx, "HTTP "+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

// EndExternalCall records the outcome on span and ends it.
func EndExternalCall(span trace.Span, statusCode, redirects int, err error) {
	defer span.End()
	if statusCode > 0 {
		span.SetAttributes(semconv.HTTPResponseStatusCode(statusCode))
	}
	span.SetAttributes(AttrRedirects.Int(redirects))

	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case statusCode >= 500:
		span.SetStatus(codes.Error, http.StatusText(statusCode))
	}
}

// InjectHeaders writes the trace context of ctx into h using the global propagator.
func InjectHeaders(ctx context.Context, h http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(h))
}
