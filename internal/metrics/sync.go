// SPDX-License-Identifier: MIT

// Package metrics exposes Prometheus instrumentation for the sync pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "epgsync_runs_total",
		Help: "Total number of sync runs by outcome",
	}, []string{"outcome"}) // outcome=updated|unchanged|failed

	runDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "epgsync_run_duration_seconds",
		Help:    "Wall time of a sync run",
		Buckets: []float64{1, 2, 5, 10, 30, 60, 120, 300, 600},
	})

	stageFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "epgsync_stage_failures_total",
		Help: "Total number of sync failures by stage",
	}, []string{"stage"}) // stage=fetch|transform|persist|publish

	fetchAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "epgsync_fetch_attempts_total",
		Help: "Mirror download attempts by tier and outcome",
	}, []string{"tier", "outcome"})

	repairsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "epgsync_xml_repairs_total",
		Help: "XML repair heuristic results by action",
	}, []string{"action"})

	channelsLast = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "epgsync_channels",
		Help: "Number of channels in the last converted feed",
	})

	programmesLast = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "epgsync_programmes",
		Help: "Number of programmes in the last converted feed",
	})

	unresolvedLast = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "epgsync_unresolved_channel_refs",
		Help: "Programmes whose channel reference had no display name in the last feed",
	})

	lastSuccessTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "epgsync_last_success_timestamp_seconds",
		Help: "Unix time of the last run that finished without error",
	})
)

// RecordFetchAttempt counts one mirror request.
func RecordFetchAttempt(tier, outcome string) {
	fetchAttemptsTotal.WithLabelValues(tier, outcome).Inc()
}

// RecordRepair counts the action taken by the XML repair heuristic.
func RecordRepair(action string) { repairsTotal.WithLabelValues(action).Inc() }

// RecordDocument records the size of the last converted feed.
func RecordDocument(channels, programmes, unresolved int) {
	channelsLast.Set(float64(channels))
	programmesLast.Set(float64(programmes))
	unresolvedLast.Set(float64(unresolved))
}

// IncStageFailure counts a failed pipeline stage.
func IncStageFailure(stage string) { stageFailuresTotal.WithLabelValues(stage).Inc() }

// RecordRun records a finished run. Successful outcomes also bump the
// last-success timestamp.
func RecordRun(outcome string, duration time.Duration, finished time.Time) {
	runsTotal.WithLabelValues(outcome).Inc()
	runDurationSeconds.Observe(duration.Seconds())
	if outcome != "failed" {
		lastSuccessTimestamp.Set(float64(finished.Unix()))
	}
}
