// Package workflow implements the participant attempt state machine:
// viewing, initial impressions, solving, teaching, reflection, complete.
package workflow

import (
	"context"
	"encoding/json"

	"github.com/arc-hci/arcgrid/internal/domain"
)

// Gate evaluates whether an attempt can exit its current phase.
type Gate interface {
	Name() string
	Evaluate(ctx context.Context, state domain.AttemptState, trigger domain.TransitionTrigger) (domain.GateDecision, error)
}

// DefaultGate only checks that the attempt is still running.
type DefaultGate struct{}

// Name returns the gate name.
func (g *DefaultGate) Name() string {
	return "default"
}

// Evaluate checks if the attempt is running.
func (g *DefaultGate) Evaluate(ctx context.Context, state domain.AttemptState, trigger domain.TransitionTrigger) (domain.GateDecision, error) {
	decision := domain.GateDecision{Allow: true}
	if state.Status != domain.StatusRunning {
		decision.Allow = false
		decision.Blockers = append(decision.Blockers, "attempt is not running (status="+string(state.Status)+")")
	}
	return decision, nil
}

// ResponseGate requires the questionnaire payload of the phase being left.
// The payload is stored as-is; only its shape as a JSON object is checked.
type ResponseGate struct {
	DefaultGate
}

// Name returns the gate name.
func (g *ResponseGate) Name() string {
	return "response"
}

// Evaluate checks the running status and the payload.
func (g *ResponseGate) Evaluate(ctx context.Context, state domain.AttemptState, trigger domain.TransitionTrigger) (domain.GateDecision, error) {
	decision, err := g.DefaultGate.Evaluate(ctx, state, trigger)
	if err != nil || !decision.Allow {
		return decision, err
	}
	var obj map[string]json.RawMessage
	if len(trigger.Payload) == 0 {
		decision.Allow = false
		decision.Blockers = append(decision.Blockers, "phase "+string(state.CurrentPhase)+" requires a response payload")
	} else if err := json.Unmarshal(trigger.Payload, &obj); err != nil || obj == nil {
		decision.Allow = false
		decision.Blockers = append(decision.Blockers, "response payload must be a JSON object")
	}
	return decision, nil
}

// SolvingGate requires the editor's final result before leaving the solving phase.
type SolvingGate struct {
	DefaultGate
}

// Name returns the gate name.
func (g *SolvingGate) Name() string {
	return "solving"
}

// Evaluate checks that a solving result with a valid grid is attached.
func (g *SolvingGate) Evaluate(ctx context.Context, state domain.AttemptState, trigger domain.TransitionTrigger) (domain.GateDecision, error) {
	decision, err := g.DefaultGate.Evaluate(ctx, state, trigger)
	if err != nil || !decision.Allow {
		return decision, err
	}
	switch {
	case trigger.Solving == nil:
		decision.Allow = false
		decision.Blockers = append(decision.Blockers, "solving result missing")
	case trigger.Solving.Solution.Validate() != nil:
		decision.Allow = false
		decision.Blockers = append(decision.Blockers, "solution grid invalid: "+trigger.Solving.Solution.Validate().Error())
	}
	return decision, nil
}

// PhaseGateRegistry maps each phase to its gate implementation.
type PhaseGateRegistry struct {
	gates map[domain.Phase]Gate
}

// NewPhaseGateRegistry creates a registry with the standard gate for every
// phase that can be left.
func NewPhaseGateRegistry() *PhaseGateRegistry {
	defaultGate := &DefaultGate{}
	responseGate := &ResponseGate{}
	gates := map[domain.Phase]Gate{
		domain.PhaseViewing:  defaultGate,
		domain.PhaseInitial:  responseGate,
		domain.PhaseSolving:  &SolvingGate{},
		domain.PhaseTeaching: responseGate,
		domain.PhaseReflect:  responseGate,
	}
	return &PhaseGateRegistry{gates: gates}
}

// Register sets a custom gate for a phase.
func (r *PhaseGateRegistry) Register(phase domain.Phase, gate Gate) {
	r.gates[phase] = gate
}

// Get returns the gate for a phase, or an error if none is registered.
func (r *PhaseGateRegistry) Get(phase domain.Phase) (Gate, error) {
	g, ok := r.gates[phase]
	if !ok {
		return nil, domain.ErrGateNotRegistered
	}
	return g, nil
}
