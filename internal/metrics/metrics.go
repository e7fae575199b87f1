// Package metrics exposes pipeline counters on the default Prometheus registry.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Stages reported by ObserveStage.
const (
	StageDenoise   = "denoise"
	StagePages     = "pages"
	StageSegments  = "segments"
	StageClassify  = "classify"
	StageSynthesis = "synthesis"
	StageDedup     = "dedup"
	StagePersist   = "persist"
)

// Workflow outcomes reported by AddWorkflows.
const (
	OutcomeGenerated    = "generated"
	OutcomeRejected     = "rejected"
	OutcomeDeduplicated = "deduplicated"
	OutcomeSaved        = "saved"
	OutcomeExported     = "exported"
)

var (
	initOnce sync.Once

	eventsCounter          *prometheus.CounterVec
	segmentsCounter        prometheus.Counter
	workflowsCounter       *prometheus.CounterVec
	oracleFallbacksCounter prometheus.Counter
	stageDurationMetric    *prometheus.HistogramVec
)

// Init registers metrics on the default Prometheus registry exactly once.
func Init() {
	initOnce.Do(func() {
		eventsCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "browseflow_events_total",
				Help: "Events seen by the denoiser, by phase (in or kept).",
			},
			[]string{"phase"},
		)

		segmentsCounter = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "browseflow_segments_total",
				Help: "Page segments that passed classification and scoring.",
			},
		)

		workflowsCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "browseflow_workflows_total",
				Help: "Workflows by pipeline outcome.",
			},
			[]string{"outcome"},
		)

		oracleFallbacksCounter = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "browseflow_oracle_fallbacks_total",
				Help: "Similarity oracle failures treated as all-unique.",
			},
		)

		stageDurationMetric = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "browseflow_stage_duration_seconds",
				Help:    "Duration of pipeline stages in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage"},
		)

		prometheus.MustRegister(
			eventsCounter,
			segmentsCounter,
			workflowsCounter,
			oracleFallbacksCounter,
			stageDurationMetric,
		)

		// Ensure vectors are visible at /metrics before first increment.
		for _, phase := range []string{"in", "kept"} {
			eventsCounter.WithLabelValues(phase)
		}
		for _, outcome := range []string{OutcomeGenerated, OutcomeRejected, OutcomeDeduplicated, OutcomeSaved, OutcomeExported} {
			workflowsCounter.WithLabelValues(outcome)
		}
	})
}

func AddEvents(in, kept int) {
	Init()
	eventsCounter.WithLabelValues("in").Add(float64(in))
	eventsCounter.WithLabelValues("kept").Add(float64(kept))
}

func AddSegments(n int) {
	Init()
	segmentsCounter.Add(float64(n))
}

func AddWorkflows(outcome string, n int) {
	Init()
	workflowsCounter.WithLabelValues(outcome).Add(float64(n))
}

func AddOracleFallbacks(n int) {
	Init()
	oracleFallbacksCounter.Add(float64(n))
}

func ObserveStage(stage string, d time.Duration) {
	Init()
	stageDurationMetric.WithLabelValues(stage).Observe(d.Seconds())
}
