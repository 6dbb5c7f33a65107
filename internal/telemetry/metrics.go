package telemetry

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics definitions for the job orchestration engine.
var (
	JobsCompletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "indexer_jobs_completed_total",
		Help: "Total jobs that reached COMPLETED, by kind.",
	}, []string{"kind"})

	JobsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "indexer_jobs_failed_total",
		Help: "Total jobs that reached FAILED, by kind.",
	}, []string{"kind"})

	JobsCancelledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "indexer_jobs_cancelled_total",
		Help: "Total jobs that reached CANCELLED, by kind.",
	}, []string{"kind"})

	JobsInFlight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "indexer_jobs_in_flight",
		Help: "Number of jobs currently RUNNING, by kind.",
	}, []string{"kind"})

	TaskDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "indexer_task_duration_seconds",
		Help:    "Duration of individual task executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"task"})

	PoolQueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "indexer_pool_queue_depth",
		Help: "Number of tasks queued in a worker pool.",
	}, []string{"pool"})

	PoolInFlight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "indexer_pool_in_flight",
		Help: "Number of tasks currently executing in a worker pool.",
	}, []string{"pool"})

	GraphWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "indexer_graph_writes_total",
		Help: "Total graph upsert/delete operations, by kind.",
	}, []string{"kind"})

	FilesProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "indexer_files_processed_total",
		Help: "Total files processed by CodeParse, by language.",
	}, []string{"language"})

	ErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "indexer_errors_total",
		Help: "Total EngineErrors raised, by kind.",
	}, []string{"kind"})
)

var (
	metricsOnce    sync.Once
	metricsMu      sync.Mutex
	metricsRunning bool
)

// StartMetricsServer starts an HTTP server exposing Prometheus metrics at
// /metrics, trying up to 10 ports starting from basePort if it is busy.
func StartMetricsServer(basePort int) error {
	metricsMu.Lock()
	if metricsRunning {
		metricsMu.Unlock()
		return nil
	}
	metricsRunning = true
	metricsMu.Unlock()

	metricsOnce.Do(func() {
		http.Handle("/metrics", promhttp.Handler())
	})

	var listener net.Listener
	var err error
	for i := 0; i < 10; i++ {
		port := basePort + i
		addr := ":" + strconv.Itoa(port)
		listener, err = net.Listen("tcp", addr)
		if err == nil {
			fmt.Fprintf(os.Stderr, "Starting metrics server on %s\n", addr)
			return http.Serve(listener, nil)
		}
	}

	metricsMu.Lock()
	metricsRunning = false
	metricsMu.Unlock()
	return fmt.Errorf("failed to find available port starting from %d: %w", basePort, err)
}

// RecordJobTerminal updates the completed/failed/cancelled counters and
// the in-flight gauge for a job's terminal transition.
func RecordJobTerminal(kind string, status string) {
	JobsInFlight.WithLabelValues(kind).Dec()
	switch status {
	case "COMPLETED":
		JobsCompletedTotal.WithLabelValues(kind).Inc()
	case "FAILED":
		JobsFailedTotal.WithLabelValues(kind).Inc()
	case "CANCELLED":
		JobsCancelledTotal.WithLabelValues(kind).Inc()
	}
}

// RecordJobStarted increments the in-flight gauge for kind.
func RecordJobStarted(kind string) {
	JobsInFlight.WithLabelValues(kind).Inc()
}

// RecordTaskDuration observes a task's wall-clock duration in seconds.
func RecordTaskDuration(taskName string, seconds float64) {
	TaskDurationSeconds.WithLabelValues(taskName).Observe(seconds)
}

// RecordPoolStats sets the queue depth and in-flight gauges for a pool.
func RecordPoolStats(poolName string, queued, inFlight int) {
	PoolQueueDepth.WithLabelValues(poolName).Set(float64(queued))
	PoolInFlight.WithLabelValues(poolName).Set(float64(inFlight))
}

// RecordGraphWrite increments the graph write counter for a node/edge
// operation kind (e.g. "upsert_node", "upsert_edge", "delete_file").
func RecordGraphWrite(kind string) {
	GraphWritesTotal.WithLabelValues(kind).Inc()
}

// RecordFileProcessed increments the per-language files-processed
// counter.
func RecordFileProcessed(language string) {
	FilesProcessedTotal.WithLabelValues(language).Inc()
}

// RecordError increments the error counter for an EngineError kind.
func RecordError(kind string) {
	ErrorsTotal.WithLabelValues(kind).Inc()
}
