// Package obs holds the service's Prometheus metrics and the HTTP
// instrumentation middleware.
package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests by method and status code.",
	}, []string{"method", "code"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})

	applyObjects = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "idm_apply_objects_total",
		Help: "Desired objects processed by apply passes, by category and outcome.",
	}, []string{"category", "outcome"})

	applyDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "idm_apply_pass_duration_seconds",
		Help:    "Duration of full reconciliation passes.",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
	})

	accessExpirations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "idm_access_expirations_total",
		Help: "Temporary access expirations processed by the sweeper, by outcome.",
	}, []string{"outcome"})
)

// MustRegister registers all service metrics with the default registry.
// Call once at startup.
func MustRegister() {
	prometheus.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		applyObjects,
		applyDuration,
		accessExpirations,
	)
}

// Handler returns the /metrics endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveApplyObject records one ensured object's outcome.
func ObserveApplyObject(category string, success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	applyObjects.WithLabelValues(category, outcome).Inc()
}

// ObserveApplyPass records the duration of a completed apply pass.
func ObserveApplyPass(d time.Duration) {
	applyDuration.Observe(d.Seconds())
}

// ObserveExpiration records one sweeper expiration attempt.
func ObserveExpiration(success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	accessExpirations.WithLabelValues(outcome).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Instrument wraps an HTTP handler with in-flight, count and latency metrics.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpInFlight.Inc()
		defer httpInFlight.Dec()

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		httpRequests.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
	})
}
