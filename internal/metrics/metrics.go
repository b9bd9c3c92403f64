package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queuewatch_http_requests_total",
			Help: "Total HTTP requests by method, path, and status",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "queuewatch_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	cyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queuewatch_cycles_total",
			Help: "Total polling cycles by outcome",
		},
		[]string{"outcome"},
	)

	cardsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queuewatch_cards_sent_total",
			Help: "Action cards sent by message type and result",
		},
		[]string{"message_type", "result"},
	)

	waitingEntities = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "queuewatch_waiting_entities",
			Help: "Waiting entities seen in the last polling cycle",
		},
	)

	storageFailovers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queuewatch_storage_failovers_total",
			Help: "Failovers from remote to local storage by operation",
		},
		[]string{"operation"},
	)

	storageBackend = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "queuewatch_storage_using_remote",
			Help: "1 when the remote store is active, 0 when local",
		},
	)

	exclusionsCleaned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "queuewatch_exclusions_cleaned_total",
			Help: "Expired exclusion entries removed by cleanup sweeps",
		},
	)

	cacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "queuewatch_exclusion_cache_hits_total",
			Help: "Exclusion lookups served from the Redis cache",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest records HTTP request metrics
func RecordRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordCycle records one polling cycle outcome ("ok" or "fetch_failed")
func RecordCycle(outcome string) {
	cyclesTotal.WithLabelValues(outcome).Inc()
}

// RecordCardSent records a send attempt result ("success" or "failed")
func RecordCardSent(messageType, result string) {
	cardsSent.WithLabelValues(messageType, result).Inc()
}

// SetWaitingEntities sets the queue size seen in the last cycle
func SetWaitingEntities(count int) {
	waitingEntities.Set(float64(count))
}

// RecordFailover records a remote-to-local storage failover
func RecordFailover(operation string) {
	storageFailovers.WithLabelValues(operation).Inc()
}

// SetUsingRemote flags which backend is currently active
func SetUsingRemote(remote bool) {
	if remote {
		storageBackend.Set(1)
	} else {
		storageBackend.Set(0)
	}
}

// RecordExclusionsCleaned counts removed expired entries
func RecordExclusionsCleaned(count int) {
	exclusionsCleaned.Add(float64(count))
}

// RecordCacheHit counts an exclusion cache hit
func RecordCacheHit() {
	cacheHits.Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware returns HTTP middleware that records request metrics
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		RecordRequest(r.Method, r.URL.Path, wrapped.status, time.Since(start))
	})
}
