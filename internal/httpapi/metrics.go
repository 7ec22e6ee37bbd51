package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "llamagate",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"path", "method", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "llamagate",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"path", "method", "status"},
	)

	httpInflight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "llamagate",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "In-flight HTTP requests",
		},
		[]string{"path"},
	)

	backpressureTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "llamagate",
			Subsystem: "http",
			Name:      "backpressure_total",
			Help:      "Total backpressure rejections (429)",
		},
		[]string{"reason"},
	)

	forwardRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "llamagate",
			Subsystem: "forward",
			Name:      "requests_total",
			Help:      "Forwarded requests by outcome",
		},
		[]string{"outcome"},
	)

	forwardUpstreamDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "llamagate",
			Subsystem: "forward",
			Name:      "upstream_duration_seconds",
			Help:      "Time until llama-server returned response headers",
			Buckets:   []float64{.01, .05, .1, .5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal, httpRequestDuration, httpInflight, backpressureTotal,
		forwardRequestsTotal, forwardUpstreamDuration,
	)
}

// Forward outcome labels.
const (
	outcomeRelayed     = "relayed"
	outcomeBadRequest  = "bad_request"
	outcomeTimeout     = "timeout"
	outcomeUpstreamErr = "upstream_error"
)

// statusRecorder wraps http.ResponseWriter to capture status code.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (sr *statusRecorder) WriteHeader(code int) {
	if !sr.wroteHeader {
		sr.status = code
		sr.wroteHeader = true
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	sr.wroteHeader = true
	return sr.ResponseWriter.Write(b)
}

// Flush keeps streamed (SSE) responses flowing through the recorder.
func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (sr *statusRecorder) Unwrap() http.ResponseWriter { return sr.ResponseWriter }

// MetricsMiddleware instruments requests for Prometheus. Requests under
// prefix never reach the router, so they are labeled "forward"; anything
// else without a route pattern is "unmatched".
func MetricsMiddleware(prefix string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			forwarded := strings.HasPrefix(r.URL.Path, prefix)
			inflightLabel := "local"
			if forwarded {
				inflightLabel = "forward"
			}
			httpInflight.WithLabelValues(inflightLabel).Inc()
			defer httpInflight.WithLabelValues(inflightLabel).Dec()

			sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(sr, r)
			path := routePatternOr(r, "unmatched")
			if forwarded {
				path = "forward"
			}
			statusLabel := strconv.Itoa(sr.status)
			dur := time.Since(start).Seconds()
			httpRequestsTotal.WithLabelValues(path, r.Method, statusLabel).Inc()
			httpRequestDuration.WithLabelValues(path, r.Method, statusLabel).Observe(dur)
		})
	}
}

// routePatternOr returns the chi route pattern if available, otherwise
// fallback. Raw URL paths are never used as labels.
func routePatternOr(r *http.Request, fallback string) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" && p != "/*" {
			return p
		}
	}
	return fallback
}

// IncrementBackpressure is called when returning 429 to the client.
func IncrementBackpressure(reason string) {
	if reason == "" {
		reason = "unspecified"
	}
	backpressureTotal.WithLabelValues(reason).Inc()
}
