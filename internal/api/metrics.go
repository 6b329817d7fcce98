package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry          *prometheus.Registry
	requestTotal      *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	fetchDuration     *prometheus.HistogramVec
	inputBytes        *prometheus.HistogramVec
	outputBytes       *prometheus.HistogramVec
	pixelsProcessed   prometheus.Counter
	poolSaturated     prometheus.Counter
	rateLimitRejected *prometheus.CounterVec
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	sizeBuckets := prometheus.ExponentialBuckets(1024, 4, 10)

	m := &metrics{
		registry: registry,
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelgate_requests_total",
			Help: "Total HTTP requests handled.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pixelgate_request_duration_seconds",
			Help:    "Request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pixelgate_fetch_duration_seconds",
			Help:    "Source image fetch latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind", "outcome"}),
		inputBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pixelgate_input_bytes",
			Help:    "Source image size in bytes, per output format.",
			Buckets: sizeBuckets,
		}, []string{"format"}),
		outputBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pixelgate_output_bytes",
			Help:    "Encoded output size in bytes, per output format.",
			Buckets: sizeBuckets,
		}, []string{"format"}),
		pixelsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pixelgate_pixels_processed_total",
			Help: "Total output pixels produced by the transform pipeline.",
		}),
		poolSaturated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pixelgate_pool_saturated_total",
			Help: "Total requests shed because the compute pool was full.",
		}),
		rateLimitRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelgate_rate_limit_rejections_total",
			Help: "Total requests rejected by rate limiting.",
		}, []string{"route"}),
	}
	registry.MustRegister(
		m.requestTotal,
		m.requestDuration,
		m.fetchDuration,
		m.inputBytes,
		m.outputBytes,
		m.pixelsProcessed,
		m.poolSaturated,
		m.rateLimitRejected,
	)
	return m
}

func (m *metrics) metricsHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metrics) withHTTPMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		route := routeLabel(r.URL.Path)
		status := strconv.Itoa(recorder.status)

		m.requestTotal.WithLabelValues(r.Method, route, status).Inc()
		m.requestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
	})
}

func routeLabel(path string) string {
	switch {
	case strings.HasPrefix(path, "/image"):
		return "/image"
	case strings.HasPrefix(path, "/healthz"):
		return "/healthz"
	case strings.HasPrefix(path, "/metrics"):
		return "/metrics"
	default:
		return path
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.status = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}
