package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sfincs_batch"

// Metrics holds the Prometheus counters, histograms, and gauges for a batch.
type Metrics struct {
	Scenarios        *prometheus.CounterVec // labels: state={succeeded,failed,skipped}
	ScenarioDuration prometheus.Histogram
	ExitCodes        *prometheus.CounterVec // labels: code
	BatchRunning     prometheus.Gauge

	// Post-processing metrics.
	PostprocessDuration prometheus.Histogram
	RastersComputed     prometheus.Counter
	RastersReused       prometheus.Counter
	FileOps             *prometheus.CounterVec // labels: op={delete,copy_back,clear_stage}, outcome={ok,error}

	IndexCache *prometheus.CounterVec // labels: result={hit,miss}
}

func newMetrics() *Metrics {
	return &Metrics{
		Scenarios: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scenarios_total",
			Help:      "Scenario runs by final state.",
		}, []string{"state"}),
		ScenarioDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scenario_duration_seconds",
			Help:      "Wall time of a scenario run including post-processing.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		}),
		ExitCodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_exit_codes_total",
			Help:      "Exit codes of model processes.",
		}, []string{"code"}),
		BatchRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "batch_running",
			Help:      "1 while a batch is being dispatched, 0 otherwise.",
		}),
		PostprocessDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "postprocess_duration_seconds",
			Help:      "Duration of post-processing a run directory.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		RastersComputed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rasters_computed_total",
			Help:      "Maximum depth rasters computed from binary output.",
		}),
		RastersReused: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rasters_reused_total",
			Help:      "Post-processing calls that found the raster already written.",
		}),
		FileOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "file_operations_total",
			Help:      "Best-effort cleanup and copy-back operations by outcome.",
		}, []string{"op", "outcome"}),
		IndexCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_cache_total",
			Help:      "Index file cache lookups by result.",
		}, []string{"result"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Scenarios,
		m.ScenarioDuration,
		m.ExitCodes,
		m.BatchRunning,
		m.PostprocessDuration,
		m.RastersComputed,
		m.RastersReused,
		m.FileOps,
		m.IndexCache,
	}
}

// NewMetrics creates and registers all batch metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics registered with a fresh registry to
// avoid "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	m, _ := NewMetricsWithRegistry()
	return m
}

// NewMetricsWithRegistry registers the metrics with a new registry and
// returns both.
func NewMetricsWithRegistry() (*Metrics, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	m := newMetrics()
	reg.MustRegister(m.collectors()...)
	return m, reg
}

// ObserveFileOp counts a best-effort filesystem operation.
func (m *Metrics) ObserveFileOp(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.FileOps.WithLabelValues(op, outcome).Inc()
}

// WriteTextfile writes the gathered metrics in the node exporter textfile
// format, for batches that finish before anything can scrape them.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g)
}
