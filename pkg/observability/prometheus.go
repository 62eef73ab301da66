package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ClientCollector exposes client request metrics on a private Prometheus
// registry.
type ClientCollector struct {
	reqCount   *prometheus.CounterVec
	reqDurHist *prometheus.HistogramVec
	inFlight   prometheus.Gauge
	registry   *prometheus.Registry
}

// NewClientCollector creates and registers the client metrics. namespace may
// be empty.
func NewClientCollector(namespace string) *ClientCollector {
	reg := prometheus.NewRegistry()

	reqCount := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_client_requests_total",
			Help:      "Total number of outgoing HTTP requests",
		},
		[]string{"method", "host", "status"},
	)
	reqDurHist := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_client_request_duration_seconds",
			Help:      "Histogram of outgoing request durations",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "host"},
	)
	inFlight := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "http_client_in_flight_requests",
		Help:      "Current number of outgoing requests awaiting a response",
	})

	reg.MustRegister(reqCount, reqDurHist, inFlight)

	return &ClientCollector{
		reqCount:   reqCount,
		reqDurHist: reqDurHist,
		inFlight:   inFlight,
		registry:   reg,
	}
}

func (pc *ClientCollector) RequestStarted(context.Context, string, string) {
	pc.inFlight.Inc()
}

func (pc *ClientCollector) RequestFinished(_ context.Context, info RequestInfo) {
	pc.inFlight.Dec()
	pc.reqCount.WithLabelValues(info.Method, info.Host, statusLabel(info.StatusCode)).Inc()
	pc.reqDurHist.WithLabelValues(info.Method, info.Host).Observe(info.Duration.Seconds())
}

// Registry returns the collector's registry.
func (pc *ClientCollector) Registry() *prometheus.Registry {
	return pc.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (pc *ClientCollector) Handler() http.Handler {
	return promhttp.HandlerFor(pc.registry, promhttp.HandlerOpts{})
}
