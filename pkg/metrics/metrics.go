package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Fleet metrics
	NodesReachable = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "flock_nodes_reachable",
			Help: "Number of nodes with a reachable worker in the current run",
		},
	)

	NodesUnreachable = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flock_nodes_unreachable_total",
			Help: "Total number of nodes skipped because no worker became reachable",
		},
		[]string{"node"},
	)

	ClientsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "flock_clients_active",
			Help: "Number of client loops currently dispatching work, by node",
		},
		[]string{"node"},
	)

	// Controller metrics
	WorkerLaunches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flock_worker_launches_total",
			Help: "Total number of worker generations launched, by node",
		},
		[]string{"node"},
	)

	ConnectAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flock_connect_attempts_total",
			Help: "Total number of worker connection attempts by node and result",
		},
		[]string{"node", "result"},
	)

	PayloadSyncs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flock_payload_syncs_total",
			Help: "Total number of payload syncs by node",
		},
		[]string{"node"},
	)

	// Dispatch metrics
	BlocksDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flock_blocks_dispatched_total",
			Help: "Total number of blocks sent to workers by node and mode",
		},
		[]string{"node", "mode"},
	)

	BlockFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flock_block_failures_total",
			Help: "Total number of blocks whose calculation failed, by node",
		},
		[]string{"node"},
	)

	BlockDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flock_block_duration_seconds",
			Help:    "Time taken by a worker to calculate one block",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	// Progress metrics
	ProgressPercent = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "flock_progress_percent",
			Help: "Completion percentage of the current run",
		},
	)

	ConsumedUnits = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "flock_consumed_units",
			Help: "Units of work issued and finished in the current run",
		},
	)

	CompletedUnits = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "flock_completed_units",
			Help: "Units attributed as contribution in the current run",
		},
	)

	// Node runtime metrics, filled by the stats collector
	NodeGoroutines = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "flock_node_goroutines",
			Help: "Goroutines running in the worker service",
		},
		[]string{"node"},
	)

	NodeHeapBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "flock_node_heap_bytes",
			Help: "Heap bytes allocated by the worker service",
		},
		[]string{"node"},
	)

	NodeSysBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "flock_node_sys_bytes",
			Help: "Bytes obtained from the OS by the worker service",
		},
		[]string{"node"},
	)

	NodeUptime = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "flock_node_uptime_seconds",
			Help: "Uptime of the worker service generation",
		},
		[]string{"node"},
	)

	// Worker service metrics
	WorkerRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flock_worker_requests_total",
			Help: "Total number of worker RPC requests by method and status",
		},
		[]string{"method", "status"},
	)

	WorkerRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flock_worker_request_duration_seconds",
			Help:    "Worker RPC request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

func init() {
	prometheus.MustRegister(NodesReachable)
	prometheus.MustRegister(NodesUnreachable)
	prometheus.MustRegister(ClientsActive)
	prometheus.MustRegister(WorkerLaunches)
	prometheus.MustRegister(ConnectAttempts)
	prometheus.MustRegister(PayloadSyncs)
	prometheus.MustRegister(BlocksDispatched)
	prometheus.MustRegister(BlockFailures)
	prometheus.MustRegister(BlockDuration)
	prometheus.MustRegister(ProgressPercent)
	prometheus.MustRegister(ConsumedUnits)
	prometheus.MustRegister(CompletedUnits)
	prometheus.MustRegister(NodeGoroutines)
	prometheus.MustRegister(NodeHeapBytes)
	prometheus.MustRegister(NodeSysBytes)
	prometheus.MustRegister(NodeUptime)
	prometheus.MustRegister(WorkerRequestsTotal)
	prometheus.MustRegister(WorkerRequestDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// NewMux returns a mux serving /metrics, /health, /ready and /live
func NewMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/health", HealthHandler())
	mux.HandleFunc("/ready", ReadyHandler())
	mux.HandleFunc("/live", LivenessHandler())
	return mux
}

// StartServer serves NewMux on addr in the background. Any error other than
// a clean shutdown is sent on the returned channel, which closes on exit.
func StartServer(addr string) (*http.Server, <-chan error) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewMux(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	return srv, errCh
}
