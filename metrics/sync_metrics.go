// Package metrics provides Prometheus metrics for the sync pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SyncMetrics contains Prometheus metrics for reconciliation runs.
// All Record methods are safe on a nil receiver.
type SyncMetrics struct {
	registry *prometheus.Registry

	runsTotal        *prometheus.CounterVec
	runDuration      prometheus.Histogram
	skippedRuns      *prometheus.CounterVec
	recordsFetched   *prometheus.GaugeVec
	recordsProcessed *prometheus.GaugeVec
	sourceErrors     *prometheus.CounterVec
	runErrors        prometheus.Gauge
	lastSuccess      prometheus.Gauge
	running          prometheus.Gauge
}

// NewSyncMetrics creates and registers sync metrics.
func NewSyncMetrics(registry *prometheus.Registry) (*SyncMetrics, error) {
	m := &SyncMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *SyncMetrics) initMetrics() {
	m.runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parkalerts_sync_runs_total",
			Help: "Total number of finished sync runs",
		},
		[]string{"run_type", "status"},
	)

	// 1s to ~17min
	m.runDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "parkalerts_sync_duration_seconds",
			Help:    "Wall time of sync runs",
			Buckets: prometheus.ExponentialBuckets(1, 2, 11),
		},
	)

	m.skippedRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parkalerts_sync_skipped_total",
			Help: "Sync attempts skipped because a run was already in flight",
		},
		[]string{"run_type"},
	)

	m.recordsFetched = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "parkalerts_records_fetched",
			Help: "Records fetched by the latest run",
		},
		[]string{"dataset"}, // reserves, current, future
	)

	m.recordsProcessed = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "parkalerts_records_processed",
			Help: "Records stored by the latest run",
		},
		[]string{"dataset"},
	)

	m.sourceErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parkalerts_source_errors_total",
			Help: "Upstream fetch failures",
		},
		[]string{"source"},
	)

	m.runErrors = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "parkalerts_sync_last_error_count",
		Help: "Error count of the latest run",
	})

	m.lastSuccess = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "parkalerts_sync_last_success_timestamp_seconds",
		Help: "Unix time of the latest completed run",
	})

	m.running = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "parkalerts_sync_running",
		Help: "1 while a sync run is in flight",
	})
}

// Describe implements the Collector interface
func (m *SyncMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.runsTotal.Describe(ch)
	m.runDuration.Describe(ch)
	m.skippedRuns.Describe(ch)
	m.recordsFetched.Describe(ch)
	m.recordsProcessed.Describe(ch)
	m.sourceErrors.Describe(ch)
	m.runErrors.Describe(ch)
	m.lastSuccess.Describe(ch)
	m.running.Describe(ch)
}

// Collect implements the Collector interface
func (m *SyncMetrics) Collect(ch chan<- prometheus.Metric) {
	m.runsTotal.Collect(ch)
	m.runDuration.Collect(ch)
	m.skippedRuns.Collect(ch)
	m.recordsFetched.Collect(ch)
	m.recordsProcessed.Collect(ch)
	m.sourceErrors.Collect(ch)
	m.runErrors.Collect(ch)
	m.lastSuccess.Collect(ch)
	m.running.Collect(ch)
}

// RecordRun records a finished run.
func (m *SyncMetrics) RecordRun(runType, status string, duration time.Duration, errorCount int) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(runType, status).Inc()
	m.runDuration.Observe(duration.Seconds())
	m.runErrors.Set(float64(errorCount))
	if status == "completed" {
		m.lastSuccess.SetToCurrentTime()
	}
}

// RecordSkipped records an attempt rejected by the overlap guard.
func (m *SyncMetrics) RecordSkipped(runType string) {
	if m == nil {
		return
	}
	m.skippedRuns.WithLabelValues(runType).Inc()
}

// RecordDataset records fetched and processed counts for one dataset.
func (m *SyncMetrics) RecordDataset(dataset string, fetched, processed int) {
	if m == nil {
		return
	}
	m.recordsFetched.WithLabelValues(dataset).Set(float64(fetched))
	m.recordsProcessed.WithLabelValues(dataset).Set(float64(processed))
}

// RecordSourceError records an upstream fetch failure.
func (m *SyncMetrics) RecordSourceError(source string) {
	if m == nil {
		return
	}
	m.sourceErrors.WithLabelValues(source).Inc()
}

// SetRunning flags whether a run is in flight.
func (m *SyncMetrics) SetRunning(running bool) {
	if m == nil {
		return
	}
	if running {
		m.running.Set(1)
		return
	}
	m.running.Set(0)
}
