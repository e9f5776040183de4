// Package metrics holds the process-wide Prometheus collectors shared by
// every component. A single registration point keeps label sets
// consistent across the Ledger, both workers, and the orphan sweeper.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DBQueryDuration measures how long Ledger queries take, labelled by
// operation name. The claim primitive records under "claim"; no other
// Ledger method records to it.
var DBQueryDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "db_query_duration_seconds",
		Help:    "Duration of Ledger queries in seconds",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
	},
	[]string{"operation"},
)

// ClaimOutcomes counts claim attempts by outcome ("won" or "lost"),
// labelled by the expected state being claimed — the coordination core's
// central correctness-adjacent signal (spec §4.2).
var ClaimOutcomes = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "claim_outcomes_total",
		Help: "Claim attempts by outcome and expected state",
	},
	[]string{"state", "outcome"},
)

// StageDuration measures wall-clock time spent per pipeline stage,
// labelled by stage name ("search", "analysis").
var StageDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "stage_duration_seconds",
		Help:    "Duration of one message's stage handling, from claim attempt until hand-off, failure or lost claim",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
	},
	[]string{"stage"},
)

// FoldPathUsed counts how often the analysis stage takes the direct path
// versus the Map-Reduce fold path (spec §4.6).
var FoldPathUsed = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "context_fold_path_total",
		Help: "Context assembly strategy selected, by path",
	},
	[]string{"path"},
)

// BusMessages counts bus operations by topic and action. The search worker
// records "publish" for each analyze-queue hand-off; consume and commit
// are not counted.
var BusMessages = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "bus_messages_total",
		Help: "Bus operations by topic and action",
	},
	[]string{"topic", "action"},
)

// RequestsFailed counts terminal failures by the stage that produced them.
var RequestsFailed = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "requests_failed_total",
		Help: "Requests transitioned to failed, by stage",
	},
	[]string{"stage"},
)

// OrphansSwept counts requests the sweeper force-failed after sitting in a
// processing_* state past the grace period.
var OrphansSwept = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "orphans_swept_total",
		Help: "Requests force-failed by the orphan sweeper",
	},
)
