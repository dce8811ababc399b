// Package metrics exposes the rendezvous engine Prometheus collectors.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	solvesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rdv_solver_solves_total",
			Help: "Total number of intercept solves by result.",
		},
		[]string{"result"},
	)

	solverIterations = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rdv_solver_iterations",
			Help:    "Newton-Raphson iterations per solve.",
			Buckets: []float64{1, 2, 3, 5, 8, 13, 20, 30, 50},
		},
	)

	burnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rdv_burns_total",
			Help: "Total number of burn requests by result.",
		},
		[]string{"result"},
	)

	fuelRemaining = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rdv_fuel_remaining_ms",
			Help: "Remaining Δv budget in m/s.",
		},
	)

	simTime = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rdv_sim_time_seconds",
			Help: "Simulation time in seconds since the scenario epoch.",
		},
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rdv_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rdv_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)
)

func init() {
	prometheus.MustRegister(solvesTotal)
	prometheus.MustRegister(solverIterations)
	prometheus.MustRegister(burnsTotal)
	prometheus.MustRegister(fuelRemaining)
	prometheus.MustRegister(simTime)
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpDurationSeconds)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordSolve counts a solve. The result is "converged", "not_converged", "singular" or "invalid".
func RecordSolve(result string, iterations int) {
	solvesTotal.WithLabelValues(result).Inc()
	if iterations > 0 {
		solverIterations.Observe(float64(iterations))
	}
}

// RecordBurn counts a burn request, accepted or not.
func RecordBurn(accepted bool) {
	result := "rejected"
	if accepted {
		result = "accepted"
	}
	burnsTotal.WithLabelValues(result).Inc()
}

// SetSession publishes the session gauges.
func SetSession(fuel, t float64) {
	fuelRemaining.Set(fuel)
	simTime.Set(t)
}

var knownRoutes = map[string]bool{
	"/healthz":            true,
	"/metrics":            true,
	"/api/v1/state":       true,
	"/api/v1/step":        true,
	"/api/v1/burn":        true,
	"/api/v1/preview":     true,
	"/api/v1/solve":       true,
	"/api/v1/sweep":       true,
	"/api/v1/rewind":      true,
	"/api/v1/reset":       true,
	"/api/v1/snapshots":   true,
	"/api/v1/burns":       true,
	"/api/v1/history.csv": true,
	"/api/v1/stream":      true,
}

// normalizeRoute bounds the path label cardinality.
func normalizeRoute(path string) string {
	if path != "/" {
		path = strings.TrimSuffix(path, "/")
	}
	if knownRoutes[path] {
		return path
	}
	return "other"
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades through.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijacking not supported")
	}
	rw.statusCode = http.StatusSwitchingProtocols
	return h.Hijack()
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)
		path := normalizeRoute(r.URL.Path)

		httpRequestsTotal.WithLabelValues(path, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(path, r.Method).Observe(duration)
	})
}
