// Package metrics holds the Prometheus collectors of the bracket engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "brackets"

// Advancement outcomes.
const (
	OutcomePlaced     = "placed"
	OutcomeIdempotent = "idempotent"
	OutcomeNoTarget   = "no_target"
	OutcomeConflict   = "conflict"
	OutcomeError      = "error"
)

var (
	BracketsGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "generated_total",
		Help:      "Brackets generated, by format.",
	}, []string{"format"})

	GenerationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "generation_duration_seconds",
		Help:      "Time to build and persist a bracket.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"format"})

	ResultsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "results_recorded_total",
		Help:      "Match results recorded, by bracket kind.",
	}, []string{"bracket_kind"})

	Advancements = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "advancements_total",
		Help:      "Slot writes attempted by the advancement resolver, by outcome.",
	}, []string{"outcome"})

	SwissRoundsPaired = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "swiss_rounds_paired_total",
		Help:      "Swiss rounds paired after the first.",
	})
)
