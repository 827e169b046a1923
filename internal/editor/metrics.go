package editor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// actionsTotal counts commit attempts by action type and outcome
	// (committed, suppressed, refused).
	actionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arcgrid_editor_actions_total",
		Help: "Grid editor commit attempts by action type and outcome",
	}, []string{"type", "outcome"})

	// signalsTotal counts safety limiter signals by kind.
	signalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arcgrid_editor_signals_total",
		Help: "Safety limiter signals by kind",
	}, []string{"kind"})

	// sessionsTotal counts session lifecycle transitions by target state.
	sessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arcgrid_editor_session_transitions_total",
		Help: "Editing session lifecycle transitions by target state",
	}, []string{"state"})
)

const (
	outcomeCommitted  = "committed"
	outcomeSuppressed = "suppressed"
	outcomeRefused    = "refused"
)
