// =============================================================================
// OBSERVABILITY WITH PROMETHEUS - CORE METRICS INFRASTRUCTURE
// =============================================================================
//
// WHAT IS THIS?
// fetchq exposes its fetch-order state as Prometheus metrics so operators
// can see how many partitions a consumer tracks, how often they rotate and
// how large each planned fetch is.
//
// PULL MODEL:
//
//   ┌─────────┐  scrape ┌─────────────┐
//   │ fetchq  │◄────────│ Prometheus  │
//   │ /metrics│         │   Server    │
//   └─────────┘         └─────────────┘
//
// NAMING CONVENTIONS:
//
//   {namespace}_{subsystem}_{name}_{unit}
//
//   - namespace: fetchq
//   - subsystem: fetch
//   - examples:
//       fetchq_fetch_tracked_partitions
//       fetchq_fetch_rotations_total
//       fetchq_fetch_plan_partitions
//
// LABELS:
// Only bounded labels are used (rotation kind). Per-partition labels are
// deliberately absent: 1000 partitions would mean 1000 series per metric.
//
// =============================================================================

package metrics

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// =============================================================================
// METRICS REGISTRY
// =============================================================================
//
// We create our own prometheus.Registry instead of the global default so
// every test gets a fresh registry and duplicate registration never panics
// across tests.
//
// =============================================================================

// Registry holds all fetchq metrics and the Prometheus registry.
type Registry struct {
	// promRegistry is the underlying Prometheus registry
	promRegistry *prometheus.Registry

	config Config
	logger *slog.Logger

	// enabled tracks if metrics collection is enabled
	enabled bool

	Fetch *FetchMetrics
}

// Config holds metrics configuration.
type Config struct {
	// Enabled turns metrics collection on/off.
	// When disabled, all metric operations are no-ops.
	Enabled bool `yaml:"enabled"`

	// Namespace is the prefix for all metrics (default: "fetchq")
	Namespace string `yaml:"namespace"`

	// IncludeGoCollector adds Go runtime metrics (goroutines, GC, memory)
	IncludeGoCollector bool `yaml:"include_go_collector"`

	// IncludeProcessCollector adds process metrics (CPU, memory, fds)
	IncludeProcessCollector bool `yaml:"include_process_collector"`

	// PlanBuckets are histogram buckets for partitions per planned fetch.
	PlanBuckets []float64 `yaml:"plan_buckets,omitempty"`
}

// DefaultConfig returns sensible defaults for metrics configuration.
//
// BUCKET DESIGN:
// Plans range from one partition to a few hundred, so buckets grow
// exponentially: 1 2 4 8 ... 512.
func DefaultConfig() Config {
	return Config{
		Enabled:                 true,
		Namespace:               "fetchq",
		IncludeGoCollector:      true,
		IncludeProcessCollector: true,
		PlanBuckets:             prometheus.ExponentialBuckets(1, 2, 10),
	}
}

// NewRegistry creates a new metrics registry.
func NewRegistry(config Config, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "metrics")

	if config.Namespace == "" {
		config.Namespace = "fetchq"
	}
	if len(config.PlanBuckets) == 0 {
		config.PlanBuckets = prometheus.ExponentialBuckets(1, 2, 10)
	}

	r := &Registry{
		promRegistry: prometheus.NewRegistry(),
		config:       config,
		logger:       logger,
		enabled:      config.Enabled,
	}

	if !config.Enabled {
		logger.Info("metrics collection disabled")
		r.Fetch = &FetchMetrics{registry: r}
		return r
	}

	if config.IncludeGoCollector {
		r.promRegistry.MustRegister(collectors.NewGoCollector())
	}
	if config.IncludeProcessCollector {
		r.promRegistry.MustRegister(collectors.NewProcessCollector(
			collectors.ProcessCollectorOpts{},
		))
	}

	r.Fetch = newFetchMetrics(r)

	logger.Info("metrics registry initialized", "namespace", config.Namespace)

	return r
}

// =============================================================================
// HTTP HANDLER
// =============================================================================

// Handler returns an HTTP handler for the /metrics endpoint.
func (r *Registry) Handler() http.Handler {
	if !r.enabled {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("# Metrics disabled\n"))
		})
	}

	return promhttp.HandlerFor(r.promRegistry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorLog:          &promLogger{logger: r.logger},
		Registry:          r.promRegistry,
	})
}

// promLogger adapts slog to Prometheus error logging interface.
type promLogger struct {
	logger *slog.Logger
}

func (l *promLogger) Println(v ...interface{}) {
	l.logger.Error("prometheus handler error", "error", v)
}

// Enabled returns true if metrics collection is enabled.
func (r *Registry) Enabled() bool {
	return r.enabled
}

// PrometheusRegistry returns the underlying Prometheus registry.
func (r *Registry) PrometheusRegistry() *prometheus.Registry {
	return r.promRegistry
}

// =============================================================================
// METRIC REGISTRATION HELPERS
// =============================================================================

func (r *Registry) newCounter(opts prometheus.CounterOpts) prometheus.Counter {
	opts.Namespace = r.config.Namespace
	counter := prometheus.NewCounter(opts)
	r.promRegistry.MustRegister(counter)
	return counter
}

func (r *Registry) newCounterVec(opts prometheus.CounterOpts, labelNames []string) *prometheus.CounterVec {
	opts.Namespace = r.config.Namespace
	counterVec := prometheus.NewCounterVec(opts, labelNames)
	r.promRegistry.MustRegister(counterVec)
	return counterVec
}

func (r *Registry) newGauge(opts prometheus.GaugeOpts) prometheus.Gauge {
	opts.Namespace = r.config.Namespace
	gauge := prometheus.NewGauge(opts)
	r.promRegistry.MustRegister(gauge)
	return gauge
}

func (r *Registry) newHistogram(opts prometheus.HistogramOpts) prometheus.Histogram {
	opts.Namespace = r.config.Namespace
	if opts.Buckets == nil {
		opts.Buckets = r.config.PlanBuckets
	}
	histogram := prometheus.NewHistogram(opts)
	r.promRegistry.MustRegister(histogram)
	return histogram
}
