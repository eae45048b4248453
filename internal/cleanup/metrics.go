package cleanup

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records what a Cleaner did. A nil *Metrics records nothing.
type Metrics struct {
	tablesTruncated prometheus.Counter
	sequencesReset  prometheus.Counter
	cycleBreaks     prometheus.Counter
	retries         *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	clean           prometheus.Gauge
}

// NewMetrics registers the cleanup metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		tablesTruncated: f.NewCounter(prometheus.CounterOpts{
			Namespace: "dbreset",
			Subsystem: "cleanup",
			Name:      "tables_truncated_total",
			Help:      "Tables truncated",
		}),
		sequencesReset: f.NewCounter(prometheus.CounterOpts{
			Namespace: "dbreset",
			Subsystem: "cleanup",
			Name:      "sequences_reset_total",
			Help:      "Sequences restarted",
		}),
		cycleBreaks: f.NewCounter(prometheus.CounterOpts{
			Namespace: "dbreset",
			Subsystem: "cleanup",
			Name:      "cycle_breaks_total",
			Help:      "Foreign key edges ignored to order tables that form a cycle",
		}),
		// Labels: operation (truncate, reset_sequences, verify, load)
		retries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dbreset",
			Subsystem: "cleanup",
			Name:      "retries_total",
			Help:      "Retries after transient database failures",
		}, []string{"operation"}),
		// Labels: operation, status (success, error)
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dbreset",
			Subsystem: "cleanup",
			Name:      "operation_duration_seconds",
			Help:      "Duration of cleanup operations in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"operation", "status"}),
		clean: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "dbreset",
			Subsystem: "cleanup",
			Name:      "clean_state",
			Help:      "1 when the last verification found the schema clean",
		}),
	}
}

func (m *Metrics) observe(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.duration.WithLabelValues(operation, status).Observe(time.Since(start).Seconds())
}

func (m *Metrics) truncated(n int) {
	if m != nil {
		m.tablesTruncated.Add(float64(n))
	}
}

func (m *Metrics) sequences(n int) {
	if m != nil {
		m.sequencesReset.Add(float64(n))
	}
}

func (m *Metrics) brokenEdges(n int) {
	if m != nil {
		m.cycleBreaks.Add(float64(n))
	}
}

func (m *Metrics) retried(operation string) {
	if m != nil {
		m.retries.WithLabelValues(operation).Inc()
	}
}

func (m *Metrics) setClean(clean bool) {
	if m == nil {
		return
	}
	if clean {
		m.clean.Set(1)
	} else {
		m.clean.Set(0)
	}
}
