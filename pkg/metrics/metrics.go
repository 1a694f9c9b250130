// Package metrics holds the Prometheus collectors exported by mailroom.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mailroom"

var (
	// HTTP
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		},
		[]string{"method", "route", "code"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route", "code"},
	)

	// Delivery
	deliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Delivery attempts by content kind and result.",
		},
		[]string{"kind", "result"},
	)
	deliveryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "delivery_duration_seconds",
			Help:      "Time spent in a single transport call.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
	)
	bulkBatches = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "bulk_batch_size",
			Help:      "Number of recipients per bulk dispatch.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)

	// Scheduler
	schedulerPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scheduler_pending_jobs",
			Help:      "Jobs waiting for their due time.",
		},
	)
	schedulerRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scheduler_running_jobs",
			Help:      "Jobs dispatched to the worker pool and not yet finished.",
		},
	)
	schedulerRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_job_runs_total",
			Help:      "Finished job invocations by result (ok, failed, skipped).",
		},
		[]string{"result"},
	)

	// Outcome events
	eventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Outcome events handed to the broker by result.",
		},
		[]string{"result"},
	)

	// Store
	storeErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Record store failures by operation.",
		},
		[]string{"operation"},
	)
)

var registerOnce sync.Once

// Register adds every collector to the default registry. Safe to call more
// than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,

			deliveries,
			deliveryDuration,
			bulkBatches,

			schedulerPending,
			schedulerRunning,
			schedulerRuns,

			eventsPublished,
			storeErrors,
		)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// --- HTTP ---
func ObserveHTTPRequest(method, route string, code int, d time.Duration) {
	c := strconv.Itoa(code)
	httpRequests.WithLabelValues(method, route, c).Inc()
	httpDuration.WithLabelValues(method, route, c).Observe(d.Seconds())
}

// --- Delivery ---
func ObserveDelivery(kind string, ok bool, d time.Duration) {
	deliveries.WithLabelValues(kind, result(ok)).Inc()
	deliveryDuration.Observe(d.Seconds())
}
func ObserveBulkBatch(n int) { bulkBatches.Observe(float64(max(n, 0))) }

// --- Scheduler ---
func SetSchedulerPending(n int)      { schedulerPending.Set(float64(max(n, 0))) }
func SetSchedulerRunning(n int)      { schedulerRunning.Set(float64(max(n, 0))) }
func IncSchedulerRun(outcome string) { schedulerRuns.WithLabelValues(outcome).Inc() }

// --- Events ---
func IncEventPublished(ok bool) { eventsPublished.WithLabelValues(result(ok)).Inc() }

// --- Store ---
func IncStoreError(operation string) { storeErrors.WithLabelValues(operation).Inc() }

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
