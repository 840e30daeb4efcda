package streamhttp

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Labels stay bounded: methods pass the codec allow-list and there is no
// router, so the raw path is never a label.
var (
	handledRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamhttp_handled_requests_total",
			Help: "Completed requests answered by the handler chain",
		},
		[]string{"method", "proto", "status"},
	)

	handlerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "streamhttp_handler_duration_seconds",
			Help:    "Time spent in the handler chain per request",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "proto"},
	)

	handlerInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "streamhttp_handler_in_flight",
			Help: "Requests currently inside the handler chain",
		},
	)

	handledRequestBody = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "streamhttp_handled_request_body_bytes",
			Help:    "Decoded request body size seen by the handler",
			Buckets: prometheus.ExponentialBuckets(64, 4, 9),
		},
		[]string{"method"},
	)

	handledResponseBody = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "streamhttp_handled_response_body_bytes",
			Help:    "Response body size written by the handler",
			Buckets: prometheus.ExponentialBuckets(64, 4, 9),
		},
		[]string{"method"},
	)

	handlerErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamhttp_handler_errors_total",
			Help: "Handler errors by method and whether they carried a status",
		},
		[]string{"method", "kind"},
	)
)

// PrometheusConfig holds configuration for Prometheus metrics middleware.
type PrometheusConfig struct {
	// SkipPaths lists paths to skip metrics collection (e.g., /metrics, /health)
	SkipPaths []string
}

// DefaultPrometheusConfig returns a PrometheusConfig with sensible defaults.
func DefaultPrometheusConfig() PrometheusConfig {
	return PrometheusConfig{
		SkipPaths: []string{"/metrics"},
	}
}

// Prometheus returns a middleware that collects Prometheus metrics.
func Prometheus() Middleware {
	return PrometheusWithConfig(DefaultPrometheusConfig())
}

// PrometheusWithConfig returns a middleware that records, per completed
// request, its outcome by method, protocol version and status together with
// the request and response body sizes.
func PrometheusWithConfig(config PrometheusConfig) Middleware {
	skip := make(map[string]struct{}, len(config.SkipPaths))
	for _, path := range config.SkipPaths {
		skip[path] = struct{}{}
	}

	return func(next Handler) Handler {
		return HandlerFunc(func(ctx *Context) error {
			if _, ok := skip[ctx.Path()]; ok {
				return next.ServeHTTP1(ctx)
			}

			method, proto := ctx.Method(), ctx.Proto()
			handledRequestBody.WithLabelValues(method).Observe(float64(len(ctx.BodyBytes())))

			start := time.Now()
			handlerInFlight.Inc()
			err := next.ServeHTTP1(ctx)
			handlerInFlight.Dec()
			handlerDuration.WithLabelValues(method, proto).Observe(time.Since(start).Seconds())

			status := outcomeStatus(ctx, err)
			if err != nil {
				handlerErrors.WithLabelValues(method, errorKind(err)).Inc()
			}
			handledRequests.WithLabelValues(method, proto, strconv.Itoa(status)).Inc()
			handledResponseBody.WithLabelValues(method).Observe(float64(ctx.bodyLen()))
			return err
		})
	}
}

// outcomeStatus is the status the server will answer with once err has been
// handled: an HTTPError's code, 500 for other errors before anything was
// written, else what the handler set.
func outcomeStatus(ctx *Context, err error) int {
	if err == nil {
		return ctx.Status()
	}
	var he *HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	if !ctx.Written() {
		return 500
	}
	return ctx.Status()
}

func errorKind(err error) string {
	var he *HTTPError
	if errors.As(err, &he) {
		return "http"
	}
	return "internal"
}
