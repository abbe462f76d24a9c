package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "arvig"

// Metrics holds the Prometheus counters, histograms, and gauges for the refresh pipeline.
type Metrics struct {
	RecordsLoaded   prometheus.Counter
	RefreshErrors   prometheus.Counter
	RefreshDuration prometheus.Histogram
	PipelineRunning prometheus.Gauge

	// Data quality.
	CategoryRowsAdded     prometheus.Counter
	CategoryRecategorized prometheus.Counter
	CategoryUnmapped      prometheus.Counter
	DatesUnparsed         prometheus.Counter
	GeoDropped            prometheus.Counter

	// Enrichment.
	GeocodeRequests   *prometheus.CounterVec // labels: outcome={resolved,not_found,error}
	TranslateRequests *prometheus.CounterVec // labels: outcome={translated,error}

	// Output.
	PanelCells *prometheus.GaugeVec   // labels: granularity
	SinkErrors *prometheus.CounterVec // labels: sink
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.RecordsLoaded,
		m.RefreshErrors,
		m.RefreshDuration,
		m.PipelineRunning,
		m.CategoryRowsAdded,
		m.CategoryRecategorized,
		m.CategoryUnmapped,
		m.DatesUnparsed,
		m.GeoDropped,
		m.GeocodeRequests,
		m.TranslateRequests,
		m.PanelCells,
		m.SinkErrors,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		RecordsLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_loaded_total",
			Help:      "Raw chronicle records read from the per-year files.",
		}),
		RefreshErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_errors_total",
			Help:      "Refresh runs that failed.",
		}),
		RefreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_duration_seconds",
			Help:      "Duration of a complete refresh run.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while the refresh loop is active, 0 when shut down.",
		}),
		CategoryRowsAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "category_rows_added_total",
			Help:      "Rows added by splitting multi-valued category fields.",
		}),
		CategoryRecategorized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "category_recategorized_total",
			Help:      "Rows whose missing category was replaced by the fallback.",
		}),
		CategoryUnmapped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "category_unmapped_total",
			Help:      "Rows whose category label has no canonical mapping.",
		}),
		DatesUnparsed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dates_unparsed_total",
			Help:      "Rows whose date could not be parsed.",
		}),
		GeoDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geo_dropped_total",
			Help:      "Rows outside every district polygon.",
		}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      "Distinct addresses geocoded by outcome.",
		}, []string{"outcome"}),
		TranslateRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "translate_requests_total",
			Help:      "Distinct descriptions translated by outcome.",
		}, []string{"outcome"}),
		PanelCells: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "panel_cells",
			Help:      "Cells in the latest panel by granularity.",
		}, []string{"granularity"}),
		SinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_errors_total",
			Help:      "Failed panel writes by sink.",
		}, []string{"sink"}),
	}
}
