package workflow

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/arc-hci/arcgrid/internal/domain"
	"github.com/arc-hci/arcgrid/internal/store"
)

// Trigger actions accepted by Advance.
const (
	ActionAdvance = "advance"
	// ActionForce ends the solving phase when the editor hit its action limit.
	ActionForce = "force"
)

// validTransitions defines the legal phase transitions.
// Each key is a source phase, and the value is the set of valid target phases.
var validTransitions = map[domain.Phase]map[domain.Phase]bool{
	domain.PhaseViewing:  {domain.PhaseInitial: true},
	domain.PhaseInitial:  {domain.PhaseSolving: true},
	domain.PhaseSolving:  {domain.PhaseTeaching: true},
	domain.PhaseTeaching: {domain.PhaseReflect: true},
	domain.PhaseReflect:  {domain.PhaseComplete: true},
}

// IsValidTransition checks if a phase transition is legal.
func IsValidTransition(from, to domain.Phase) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// Engine is the FSM that manages attempt state transitions and persists the
// editor's action log alongside them.
type Engine struct {
	DB           *sql.DB
	AttemptRepo  *store.AttemptRepo
	EventRepo    *store.EventRepo
	ResponseRepo *store.ResponseRepo
	ActionRepo   *store.ActionRepo
	SignalRepo   *store.SignalRepo
	TaskRepo     *store.TaskRepo
	GateRegistry *PhaseGateRegistry
	Now          func() time.Time
}

// NewEngine creates a new FSM engine with all dependencies.
func NewEngine(db *sql.DB) *Engine {
	return &Engine{
		DB:           db,
		AttemptRepo:  &store.AttemptRepo{},
		EventRepo:    &store.EventRepo{},
		ResponseRepo: &store.ResponseRepo{},
		ActionRepo:   &store.ActionRepo{},
		SignalRepo:   &store.SignalRepo{},
		TaskRepo:     &store.TaskRepo{},
		GateRegistry: NewPhaseGateRegistry(),
		Now:          time.Now,
	}
}

// StartAttempt creates a new attempt in the viewing phase and caches the task.
func (e *Engine) StartAttempt(ctx context.Context, participantID string, task domain.ARCTask) (*domain.AttemptState, error) {
	now := e.Now()
	state := domain.AttemptState{
		AttemptID:     NewID(now),
		ParticipantID: participantID,
		TaskID:        task.ID,
		CurrentPhase:  domain.PhaseViewing,
		Status:        domain.StatusRunning,
		StateVersion:  1,
		LastEventSeq:  1, // The initial attempt_started event uses seq 1.
		StartedAtMs:   now.UnixMilli(),
		UpdatedAtUnix: now.Unix(),
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := e.TaskRepo.EnsureTx(ctx, tx, task, now.Unix()); err != nil {
		return nil, err
	}
	if err := e.AttemptRepo.CreateTx(ctx, tx, state); err != nil {
		return nil, fmt.Errorf("create attempt: %w", err)
	}

	event := domain.PhaseEvent{
		AttemptID:   state.AttemptID,
		SeqNo:       1,
		Phase:       domain.PhaseViewing,
		EventType:   domain.EventAttemptStarted,
		PayloadJSON: eventPayload(map[string]any{"participant_id": participantID, "task_id": task.ID}),
		CreatedAt:   now.Unix(),
	}
	if err := e.EventRepo.AppendTx(ctx, tx, event); err != nil {
		return nil, fmt.Errorf("append start event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &state, nil
}

// Advance moves an attempt to the next phase based on the trigger. The
// response payload, the remaining editor actions and the phase change are
// written in a single transaction with optimistic locking.
func (e *Engine) Advance(ctx context.Context, attemptID string, trigger domain.TransitionTrigger) (*domain.AttemptState, error) {
	state, err := e.AttemptRepo.GetByID(ctx, e.DB, attemptID)
	if err != nil {
		return nil, err
	}

	if state.Status == domain.StatusDone {
		return nil, domain.ErrAttemptDone
	}

	nextPhase, err := resolveNextPhase(state.CurrentPhase, trigger.Action)
	if err != nil {
		return nil, err
	}

	if !IsValidTransition(state.CurrentPhase, nextPhase) {
		return nil, domain.NewEngineError(
			domain.ErrInvalidTransition.Code,
			fmt.Sprintf("illegal transition %s -> %s", state.CurrentPhase, nextPhase),
		)
	}

	gate, err := e.GateRegistry.Get(state.CurrentPhase)
	if err != nil {
		return nil, err
	}

	decision, err := gate.Evaluate(ctx, *state, trigger)
	if err != nil {
		return nil, fmt.Errorf("evaluate gate: %w", err)
	}

	if !decision.Allow {
		return nil, domain.NewEngineError(
			domain.ErrPhaseGateFailed.Code,
			fmt.Sprintf("gate %s blocked transition: %v", gate.Name(), decision.Blockers),
		)
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := e.Now()
	updated := *state

	if len(trigger.Payload) > 0 {
		resp := domain.PhaseResponse{
			AttemptID:   attemptID,
			Phase:       state.CurrentPhase,
			PayloadJSON: string(trigger.Payload),
			CreatedAt:   now.Unix(),
		}
		if err := e.ResponseRepo.SaveTx(ctx, tx, resp); err != nil {
			return nil, err
		}
	}

	if res := trigger.Solving; res != nil {
		if err := e.appendProgressTx(ctx, tx, &updated, res.Actions, res.Signals); err != nil {
			return nil, err
		}
		updated.Solution = res.Solution.Clone()
		updated.IsCorrect = res.IsCorrect
	}

	newSeq := state.LastEventSeq + 1
	eventType := domain.EventPhaseTransition
	if trigger.Action == ActionForce {
		eventType = domain.EventForcedTransition
	}
	event := domain.PhaseEvent{
		AttemptID: attemptID,
		SeqNo:     newSeq,
		Phase:     nextPhase,
		EventType: eventType,
		PayloadJSON: eventPayload(map[string]any{
			"from":   state.CurrentPhase,
			"to":     nextPhase,
			"action": trigger.Action,
			"actor":  trigger.Actor,
		}),
		CreatedAt: now.Unix(),
	}
	if err := e.EventRepo.AppendTx(ctx, tx, event); err != nil {
		return nil, fmt.Errorf("append transition event: %w", err)
	}

	updated.CurrentPhase = nextPhase
	updated.LastEventSeq = newSeq
	updated.UpdatedAtUnix = now.Unix()
	if nextPhase == domain.PhaseComplete {
		updated.Status = domain.StatusDone
	}

	if err := e.AttemptRepo.UpdateStateTx(ctx, tx, updated); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	updated.StateVersion++
	return &updated, nil
}

// RecordProgress persists editor actions and signals while the attempt is in
// the solving phase. Actions already stored are skipped, so callers may pass
// the whole log.
func (e *Engine) RecordProgress(ctx context.Context, attemptID string, actions []domain.Action, signals []domain.Signal) (*domain.AttemptState, error) {
	state, err := e.AttemptRepo.GetByID(ctx, e.DB, attemptID)
	if err != nil {
		return nil, err
	}
	if state.Status == domain.StatusDone {
		return nil, domain.ErrAttemptDone
	}
	if state.CurrentPhase != domain.PhaseSolving {
		return nil, domain.NewEngineError(
			domain.ErrInvalidPhase.Code,
			fmt.Sprintf("actions can only be recorded while solving, attempt is in %s", state.CurrentPhase),
		)
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	updated := *state
	if err := e.appendProgressTx(ctx, tx, &updated, actions, signals); err != nil {
		return nil, err
	}
	if updated.ActionCount == state.ActionCount {
		return state, nil
	}
	updated.UpdatedAtUnix = e.Now().Unix()
	if err := e.AttemptRepo.UpdateStateTx(ctx, tx, updated); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	updated.StateVersion++
	return &updated, nil
}

// appendProgressTx stores actions beyond state.ActionCount and the signals
// they triggered, then advances state.ActionCount.
func (e *Engine) appendProgressTx(ctx context.Context, tx *sql.Tx, state *domain.AttemptState, actions []domain.Action, signals []domain.Signal) error {
	var fresh []domain.Action
	for _, a := range actions {
		if a.SequenceNumber > state.ActionCount {
			fresh = append(fresh, a)
		}
	}
	if err := e.ActionRepo.AppendBatchTx(ctx, tx, state.AttemptID, state.StartedAtMs, fresh); err != nil {
		return err
	}
	for _, s := range signals {
		if s.ActionCount <= state.ActionCount {
			continue
		}
		rec := domain.SignalRecord{
			AttemptID:   state.AttemptID,
			Kind:        s.Kind,
			ActionCount: s.ActionCount,
			Limit:       s.Limit,
			CreatedAt:   s.Timestamp,
		}
		if err := e.SignalRepo.RecordTx(ctx, tx, rec); err != nil {
			return err
		}
	}
	if n := len(fresh); n > 0 {
		state.ActionCount = fresh[n-1].SequenceNumber
	}
	return nil
}

// GetState returns the current state of an attempt.
func (e *Engine) GetState(ctx context.Context, attemptID string) (*domain.AttemptState, error) {
	return e.AttemptRepo.GetByID(ctx, e.DB, attemptID)
}

// Actions returns stored actions with a sequence number greater than sinceSeq.
func (e *Engine) Actions(ctx context.Context, attemptID string, sinceSeq int) ([]domain.Action, error) {
	return e.ActionRepo.Actions(ctx, e.DB, attemptID, sinceSeq)
}

// Events returns the attempt's phase events matching f.
func (e *Engine) Events(ctx context.Context, attemptID string, f store.EventFilter) ([]domain.PhaseEvent, error) {
	return e.EventRepo.ListByAttempt(ctx, e.DB, attemptID, f)
}

// Task returns a task cached by StartAttempt.
func (e *Engine) Task(ctx context.Context, taskID string) (*domain.ARCTask, error) {
	return e.TaskRepo.GetByID(ctx, e.DB, taskID)
}

// Stats returns collection totals.
func (e *Engine) Stats(ctx context.Context) (domain.Stats, error) {
	st, err := e.AttemptRepo.Stats(ctx, e.DB)
	if err != nil {
		return domain.Stats{}, err
	}
	st.ForcedTransitions, err = e.EventRepo.CountAttempts(ctx, e.DB, domain.EventForcedTransition)
	if err != nil {
		return domain.Stats{}, err
	}
	return st, nil
}

// resolveNextPhase determines the target phase from the trigger action.
func resolveNextPhase(current domain.Phase, action string) (domain.Phase, error) {
	switch action {
	case ActionAdvance:
		return nextPhaseForward(current)
	case ActionForce:
		if current == domain.PhaseSolving {
			return domain.PhaseTeaching, nil
		}
		return "", domain.NewEngineError(
			domain.ErrInvalidTransition.Code,
			fmt.Sprintf("force not allowed from phase %s", current),
		)
	default:
		return "", domain.NewEngineError(
			domain.ErrInvalidTransition.Code,
			fmt.Sprintf("unknown action: %s", action),
		)
	}
}

// nextPhaseForward returns the next phase in the standard forward path.
func nextPhaseForward(current domain.Phase) (domain.Phase, error) {
	switch current {
	case domain.PhaseViewing:
		return domain.PhaseInitial, nil
	case domain.PhaseInitial:
		return domain.PhaseSolving, nil
	case domain.PhaseSolving:
		return domain.PhaseTeaching, nil
	case domain.PhaseTeaching:
		return domain.PhaseReflect, nil
	case domain.PhaseReflect:
		return domain.PhaseComplete, nil
	default:
		return "", domain.NewEngineError(
			domain.ErrInvalidTransition.Code,
			fmt.Sprintf("no forward transition from phase %s", current),
		)
	}
}

func eventPayload(v map[string]any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(raw)
}
