package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("vigil.engine")

var (
	observeWakes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vigil_observe_wakes_total",
		Help: "Mutations consumed by observation loops",
	})

	reactionsForked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vigil_reactions_forked_total",
		Help: "Reaction tasks forked by transition reactors",
	})

	reactionFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vigil_reaction_failures_total",
		Help: "Reaction tasks that returned an error or panicked",
	})

	sessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vigil_sessions_total",
		Help: "Completed sessions by kind and outcome",
	}, []string{"kind", "outcome"})

	violationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vigil_invariant_violations_total",
		Help: "Invariants reported false in a violation set",
	}, []string{"tag"})
)
