// Package obs holds the Prometheus metrics of the broker.
package obs

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "embedgate",
		Name:      "http_in_flight_requests",
		Help:      "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "embedgate",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "embedgate",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latencies in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	// CacheLookups counts cache reads by cache name and result (hit, miss, expired, error).
	CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "embedgate",
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by cache and result.",
		},
		[]string{"cache", "result"},
	)

	// UpstreamRequestDuration observes upstream calls by operation and outcome.
	UpstreamRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "embedgate",
			Name:      "upstream_request_duration_seconds",
			Help:      "Upstream call latencies in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"op", "outcome"},
	)

	// RateLimitRejections counts requests rejected by an admission policy.
	RateLimitRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "embedgate",
			Name:      "ratelimit_rejections_total",
			Help:      "Requests rejected by rate limit policy.",
		},
		[]string{"policy"},
	)
)

var registerOnce sync.Once

// Init registers all metrics with the default registry. It is safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight,
			httpRequestsTotal,
			httpRequestDuration,
			CacheLookups,
			UpstreamRequestDuration,
			RateLimitRejections,
		)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Instrument records RPS, latency and in-flight requests. route must be a bounded label,
// the raw path is not used to keep cardinality low on 404 scans.
func Instrument(next http.Handler, route func(r *http.Request) string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpInFlight.Inc()
		defer httpInFlight.Dec()

		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		status := strconv.Itoa(sw.code)
		label := route(r)
		httpRequestDuration.WithLabelValues(r.Method, label, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(r.Method, label, status).Inc()
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
