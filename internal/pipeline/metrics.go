package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes run-level counters for the extraction pipeline.
type Metrics struct {
	unitsProcessed    *prometheus.CounterVec
	snippetsExtracted prometheus.Counter
	runDuration       prometheus.Histogram
}

// NewMetrics registers pipeline metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		unitsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "snippetd",
			Subsystem: "pipeline",
			Name:      "units_processed_total",
			Help:      "File units processed by extraction outcome.",
		}, []string{"outcome"}),
		snippetsExtracted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "snippetd",
			Subsystem: "pipeline",
			Name:      "snippets_extracted_total",
			Help:      "Snippets produced by extraction runs.",
		}),
		runDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "snippetd",
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of extraction runs.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
	}
}

func (m *Metrics) observeUnit(ok bool) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.unitsProcessed.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeRun(r Result) {
	m.snippetsExtracted.Add(float64(r.SnippetCount()))
	m.runDuration.Observe(r.Duration.Seconds())
}
