// SPDX-License-Identifier: MIT

// Package metrics provides Prometheus metrics for the clipd job pipeline.
// No per-job labels: job IDs would explode cardinality.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

var (
	// JobsCreatedTotal counts accepted capture requests.
	JobsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clipd_jobs_created_total",
		Help: "Total number of clip jobs created.",
	})

	// JobsFinishedTotal counts terminal jobs by result and failure reason.
	JobsFinishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clipd_jobs_finished_total",
		Help: "Total number of clip jobs reaching a terminal state, by result and reason.",
	}, []string{"result", "reason"})

	// ActiveJobs tracks jobs currently in a non-terminal state.
	ActiveJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "clipd_active_jobs",
		Help: "Current number of jobs in the capturing or processing state.",
	})

	// StageDuration observes wall-clock stage runtimes.
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "clipd_stage_duration_seconds",
		Help:    "Wall-clock duration of pipeline stages.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
	}, []string{"stage"})

	// StageExitTotal counts external engine exits by stage and class.
	StageExitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clipd_stage_exit_total",
		Help: "Total number of stage process exits, by stage and exit class.",
	}, []string{"stage", "class"})

	// ProcSignalTotal counts signals delivered to stage process groups.
	ProcSignalTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clipd_proc_signal_total",
		Help: "Total number of signals sent to stage process groups, by signal and outcome.",
	}, []string{"signal", "outcome"})
)

// RecordJobCreated increments the creation counter and the active gauge.
func RecordJobCreated() {
	JobsCreatedTotal.Inc()
	ActiveJobs.Inc()
}

// RecordJobFinished increments the terminal counter and decrements the
// active gauge. result is "ready" or "error"; reason is the typed reason code.
func RecordJobFinished(result, reason string) {
	JobsFinishedTotal.WithLabelValues(result, reason).Inc()
	ActiveJobs.Dec()
}

// ObserveStageDuration records the runtime of one stage ("capture"/"transcode").
func ObserveStageDuration(stage string, seconds float64) {
	StageDuration.WithLabelValues(stage).Observe(seconds)
}

// RecordStageExit classifies a stage process exit.
// class is "ok", "nonzero", "spawn_failed", "timeout" or "cancelled".
func RecordStageExit(stage, class string) {
	StageExitTotal.WithLabelValues(stage, class).Inc()
}

// IncProcSignal records one delivered (or attempted) process-group signal.
func IncProcSignal(signal, outcome string) {
	ProcSignalTotal.WithLabelValues(signal, outcome).Inc()
}

// CounterValue extracts the current value of a counter for tests and
// diagnostics.
func CounterValue(c prometheus.Counter) float64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}
