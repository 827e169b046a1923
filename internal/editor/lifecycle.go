package editor

import (
	"fmt"

	"github.com/arc-hci/arcgrid/internal/domain"
)

// validTransitions defines the legal session state transitions.
// Each key is a source state, and the value is the set of valid target states.
var validTransitions = map[domain.SessionState]map[domain.SessionState]bool{
	domain.SessionNotStarted:   {domain.SessionActive: true},
	domain.SessionActive:       {domain.SessionLimitReached: true, domain.SessionClosed: true},
	domain.SessionLimitReached: {domain.SessionClosed: true},
}

// IsValidTransition checks if a session state transition is legal.
func IsValidTransition(from, to domain.SessionState) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// Lifecycle tracks NotStarted -> Active -> LimitReached -> Closed.
type Lifecycle struct {
	state domain.SessionState
}

// NewLifecycle returns a lifecycle in the NotStarted state.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{state: domain.SessionNotStarted}
}

// State returns the current state.
func (l *Lifecycle) State() domain.SessionState {
	return l.state
}

// Transition moves to the target state if the move is legal.
func (l *Lifecycle) Transition(to domain.SessionState) error {
	if !IsValidTransition(l.state, to) {
		return domain.NewEngineError(
			domain.ErrInvalidSessionState.Code,
			fmt.Sprintf("illegal transition %s -> %s", l.state, to),
		)
	}
	l.state = to
	sessionsTotal.WithLabelValues(string(to)).Inc()
	return nil
}

// Admit returns the error a commit attempt should fail with in the current
// state, or nil when commits are accepted.
func (l *Lifecycle) Admit() error {
	switch l.state {
	case domain.SessionActive:
		return nil
	case domain.SessionLimitReached:
		return domain.ErrLimitExceeded
	case domain.SessionClosed:
		return domain.ErrSessionClosed
	default:
		return domain.ErrSessionNotActive
	}
}
