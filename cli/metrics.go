package cli

// This file contains the per-run Prometheus metrics, written to a file for
// the node-exporter textfile collector.

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tubegrade/tubegrade/oracle"
	"github.com/tubegrade/tubegrade/suite"
)

const metricsNamespace = "tubegrade"

type runMetrics struct {
	registry *prometheus.Registry

	verdictsTotal *prometheus.CounterVec
	cyclesUsed    *prometheus.GaugeVec
	grade         *prometheus.GaugeVec
	runDuration   prometheus.Gauge
	runTimestamp  prometheus.Gauge
}

func newRunMetrics(runID string) *runMetrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	constLabels := prometheus.Labels{"run_id": runID}

	return &runMetrics{
		registry: registry,
		verdictsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Name:        "verdicts_total",
			Help:        "Count of test verdicts by stage, category and status",
			ConstLabels: constLabels,
		}, []string{"stage", "category", "status"}),
		cyclesUsed: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   metricsNamespace,
			Name:        "cycles_used",
			Help:        "Cycles used by budgeted tests",
			ConstLabels: constLabels,
		}, []string{"test", "compiler"}),
		grade: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   metricsNamespace,
			Name:        "grade_points",
			Help:        "Grade of the run",
			ConstLabels: constLabels,
		}, []string{"kind"}),
		runDuration: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   metricsNamespace,
			Name:        "run_duration_seconds",
			Help:        "Wall-clock duration of the run",
			ConstLabels: constLabels,
		}),
		runTimestamp: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   metricsNamespace,
			Name:        "run_timestamp_seconds",
			Help:        "Unix time the run started",
			ConstLabels: constLabels,
		}),
	}
}

func (m *runMetrics) recordSetup(name string, v oracle.Verdict) {
	m.verdictsTotal.WithLabelValues("setup", name, v.Status.String()).Inc()
}

func (m *runMetrics) recordTest(tc suite.TestCase, v oracle.Verdict) {
	m.verdictsTotal.WithLabelValues(tc.Stage.String(), string(tc.Category), v.Status.String()).Inc()
	if v.Cycles == nil {
		return
	}
	name := tc.BaseName()
	m.cyclesUsed.WithLabelValues(name, "reference").Set(float64(v.Cycles.Reference))
	m.cyclesUsed.WithLabelValues(name, "submission").Set(float64(v.Cycles.Submission))
	m.cyclesUsed.WithLabelValues(name, "budget").Set(float64(v.Cycles.Budget))
}

func (m *runMetrics) recordRun(start time.Time, duration time.Duration, earned, possible float64) {
	m.runTimestamp.Set(float64(start.Unix()))
	m.runDuration.Set(duration.Seconds())
	m.grade.WithLabelValues("earned").Set(earned)
	m.grade.WithLabelValues("possible").Set(possible)
}

func (m *runMetrics) writeFile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
