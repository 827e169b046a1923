// Package ipc provides the HTTP API of the ARC grid collection host.
package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/arc-hci/arcgrid/internal/domain"
	"github.com/arc-hci/arcgrid/internal/editor"
	"github.com/arc-hci/arcgrid/internal/store"
	"github.com/arc-hci/arcgrid/internal/task"
	"github.com/arc-hci/arcgrid/internal/workflow"
)

// limiterActor is recorded on transitions forced by the action limit.
const limiterActor = "safety_limiter"

var requestValidate = validator.New()

// Handler holds all dependencies for the HTTP handlers.
type Handler struct {
	Engine         *workflow.Engine
	Tasks          *task.Loader
	Sessions       *SessionManager
	Log            *slog.Logger
	StreamInterval time.Duration
}

// CreateAttemptRequest is the body for POST /api/v1/attempts. Both fields are
// optional: an anonymous participant id is generated and a random task chosen.
type CreateAttemptRequest struct {
	ParticipantID string `json:"participant_id" validate:"omitempty,max=64"`
	TaskID        string `json:"task_id" validate:"omitempty,max=128"`
}

// AdvanceRequest is the body for POST /api/v1/attempts/{attemptID}/advance.
type AdvanceRequest struct {
	Action  string          `json:"action" validate:"required,oneof=advance force"`
	Actor   string          `json:"actor" validate:"max=64"`
	Payload json.RawMessage `json:"payload"`
}

// SubmitRequest is the body for POST /api/v1/attempts/{attemptID}/submit.
type SubmitRequest struct {
	Actor   string          `json:"actor" validate:"max=64"`
	Payload json.RawMessage `json:"payload"`
}

// PointerRequest is the body for POST /api/v1/attempts/{attemptID}/pointer.
type PointerRequest struct {
	Event    domain.PointerEvent `json:"event"`
	Viewport domain.Viewport     `json:"viewport"`
}

// ModeRequest is the body for POST /api/v1/attempts/{attemptID}/mode.
type ModeRequest struct {
	Mode domain.Mode `json:"mode" validate:"required,oneof=edit select fill"`
}

// ColorRequest is the body for POST /api/v1/attempts/{attemptID}/color.
type ColorRequest struct {
	Color *int `json:"color" validate:"required,min=0,max=9"`
}

// CellRequest is the body for POST /api/v1/attempts/{attemptID}/click.
type CellRequest struct {
	Row *int `json:"row" validate:"required"`
	Col *int `json:"col" validate:"required"`
}

// RegionRequest is the body for POST /api/v1/attempts/{attemptID}/region.
type RegionRequest struct {
	Start domain.Cell `json:"start"`
	End   domain.Cell `json:"end"`
}

// ResizeRequest is the body for POST /api/v1/attempts/{attemptID}/resize.
// Size takes precedence over Rows and Cols.
type ResizeRequest struct {
	Size string `json:"size" validate:"omitempty,max=32"`
	Rows int    `json:"rows" validate:"required_without=Size"`
	Cols int    `json:"cols" validate:"required_without=Size"`
}

// SubmissionRequest is the body for POST /api/v1/submissions: a solution and
// the client-held action log that produced it.
type SubmissionRequest struct {
	AttemptID string          `json:"attempt_id" validate:"required,max=64"`
	Actor     string          `json:"actor" validate:"max=64"`
	Solution  domain.Grid     `json:"solution" validate:"required,min=1,max=30,dive,min=1,max=30,dive,min=0,max=9"`
	Actions   []domain.Action `json:"actions"`
	Signals   []domain.Signal `json:"signals"`
	Payload   json.RawMessage `json:"payload"`
}

// AttemptView is the response for attempt creation and lookup.
type AttemptView struct {
	Attempt *domain.AttemptState    `json:"attempt"`
	Task    *domain.ARCTask         `json:"task,omitempty"`
	Session *domain.SessionSnapshot `json:"session,omitempty"`
}

// CommandResponse is the response for every editor command. Action is null
// when the command was suppressed as redundant or did not produce one.
type CommandResponse struct {
	Action  *domain.Action         `json:"action"`
	Signals []domain.Signal        `json:"signals,omitempty"`
	Session domain.SessionSnapshot `json:"session"`
	Phase   domain.Phase           `json:"phase"`
}

// APIError is a structured error response.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Health handles GET /api/v1/health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"tasks_loaded":    h.Tasks.Count(),
		"active_sessions": h.Sessions.Len(),
	})
}

// RandomTask handles GET /api/v1/tasks/random.
func (h *Handler) RandomTask(w http.ResponseWriter, r *http.Request) {
	t, err := h.Tasks.Random()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, publicTask(t))
}

// GetTask handles GET /api/v1/tasks/{taskID}.
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	t, err := h.Tasks.ByID(r.PathValue("taskID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, publicTask(t))
}

// TaskStats handles GET /api/v1/tasks/stats.
func (h *Handler) TaskStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Tasks.Counts())
}

// Stats handles GET /api/v1/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Engine.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// CreateAttempt handles POST /api/v1/attempts.
func (h *Handler) CreateAttempt(w http.ResponseWriter, r *http.Request) {
	var req CreateAttemptRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	var (
		t   domain.ARCTask
		err error
	)
	if req.TaskID != "" {
		t, err = h.Tasks.ByID(req.TaskID)
	} else {
		t, err = h.Tasks.Random()
	}
	if err != nil {
		writeError(w, err)
		return
	}

	participant := req.ParticipantID
	if participant == "" {
		participant = workflow.NewID(time.Now())
	}

	state, err := h.Engine.StartAttempt(r.Context(), participant, t)
	if err != nil {
		writeError(w, err)
		return
	}
	hs, err := h.Sessions.Open(state.AttemptID, t)
	if err != nil {
		writeError(w, err)
		return
	}
	h.Log.Info("attempt started",
		"attempt_id", state.AttemptID,
		"participant_id", participant,
		"task_id", t.ID,
	)

	hs.mu.Lock()
	snap := hs.editor.Snapshot()
	hs.mu.Unlock()

	pt := publicTask(t)
	writeJSON(w, http.StatusCreated, AttemptView{Attempt: state, Task: &pt, Session: &snap})
}

// GetAttempt handles GET /api/v1/attempts/{attemptID}.
func (h *Handler) GetAttempt(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("attemptID")
	state, err := h.Engine.GetState(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	view := AttemptView{Attempt: state}
	if hs, err := h.Sessions.Get(id); err == nil {
		hs.mu.Lock()
		snap := hs.editor.Snapshot()
		hs.mu.Unlock()
		view.Session = &snap
	}
	writeJSON(w, http.StatusOK, view)
}

// AdvanceAttempt handles POST /api/v1/attempts/{attemptID}/advance. Leaving
// the solving phase hands the live editor session's result to the engine.
func (h *Handler) AdvanceAttempt(w http.ResponseWriter, r *http.Request) {
	var req AdvanceRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	trigger := domain.TransitionTrigger{
		Action:  req.Action,
		Actor:   req.Actor,
		Payload: req.Payload,
	}
	state, err := h.advance(r.Context(), r.PathValue("attemptID"), trigger, false)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// SubmitAttempt handles POST /api/v1/attempts/{attemptID}/submit. It ends the
// solving phase with the grid held by the live editor session.
func (h *Handler) SubmitAttempt(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	trigger := domain.TransitionTrigger{
		Action:  workflow.ActionAdvance,
		Actor:   req.Actor,
		Payload: req.Payload,
	}
	state, err := h.advance(r.Context(), r.PathValue("attemptID"), trigger, true)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// advance runs a phase transition. When the attempt is solving, the live
// editor session, if any, supplies the solving result and is closed once the
// transition commits.
func (h *Handler) advance(ctx context.Context, id string, trigger domain.TransitionTrigger, requireSession bool) (*domain.AttemptState, error) {
	hs, err := h.Sessions.Get(id)
	if err != nil && requireSession {
		return nil, err
	}
	if hs != nil {
		hs.mu.Lock()
		defer hs.mu.Unlock()
	}

	state, err := h.Engine.GetState(ctx, id)
	if err != nil {
		return nil, err
	}
	leavingSolving := state.CurrentPhase == domain.PhaseSolving
	if requireSession && !leavingSolving {
		return nil, notSolving(state.CurrentPhase)
	}
	if leavingSolving && hs != nil {
		res := hs.editor.SolvingResult()
		trigger.Solving = &res
	}

	next, err := h.Engine.Advance(ctx, id, trigger)
	if err != nil {
		return nil, err
	}
	if leavingSolving && hs != nil {
		if err := h.Sessions.Close(id); err != nil {
			h.Log.Warn("close editor session", "attempt_id", id, "error", err)
		}
	}
	h.Log.Info("attempt advanced",
		"attempt_id", id,
		"from", state.CurrentPhase,
		"to", next.CurrentPhase,
		"action", trigger.Action,
	)
	return next, nil
}

// Pointer handles POST /api/v1/attempts/{attemptID}/pointer.
func (h *Handler) Pointer(w http.ResponseWriter, r *http.Request) {
	var req PointerRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	h.command(w, r, func(s *editor.Session) (editor.Outcome, error) {
		return s.HandlePointer(req.Event, req.Viewport)
	})
}

// SetMode handles POST /api/v1/attempts/{attemptID}/mode.
func (h *Handler) SetMode(w http.ResponseWriter, r *http.Request) {
	var req ModeRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	h.command(w, r, func(s *editor.Session) (editor.Outcome, error) {
		return editor.Outcome{}, s.SetMode(req.Mode)
	})
}

// SelectColor handles POST /api/v1/attempts/{attemptID}/color.
func (h *Handler) SelectColor(w http.ResponseWriter, r *http.Request) {
	var req ColorRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	h.command(w, r, func(s *editor.Session) (editor.Outcome, error) {
		return editor.Outcome{}, s.SelectColor(*req.Color)
	})
}

// ClickCell handles POST /api/v1/attempts/{attemptID}/click.
func (h *Handler) ClickCell(w http.ResponseWriter, r *http.Request) {
	var req CellRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	h.command(w, r, func(s *editor.Session) (editor.Outcome, error) {
		return s.ClickCell(*req.Row, *req.Col)
	})
}

// SelectRegion handles POST /api/v1/attempts/{attemptID}/region.
func (h *Handler) SelectRegion(w http.ResponseWriter, r *http.Request) {
	var req RegionRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	h.command(w, r, func(s *editor.Session) (editor.Outcome, error) {
		return s.SelectRegion(req.Start, req.End)
	})
}

// Resize handles POST /api/v1/attempts/{attemptID}/resize.
func (h *Handler) Resize(w http.ResponseWriter, r *http.Request) {
	var req ResizeRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	h.command(w, r, func(s *editor.Session) (editor.Outcome, error) {
		if req.Size != "" {
			return s.ResizeTo(req.Size)
		}
		return s.Resize(req.Rows, req.Cols)
	})
}

// FillAll handles POST /api/v1/attempts/{attemptID}/fill.
func (h *Handler) FillAll(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, (*editor.Session).FillAll)
}

// Reset handles POST /api/v1/attempts/{attemptID}/reset.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, (*editor.Session).Reset)
}

// CopyFromInput handles POST /api/v1/attempts/{attemptID}/copy.
func (h *Handler) CopyFromInput(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, (*editor.Session).CopyFromInput)
}

// TestSolution handles POST /api/v1/attempts/{attemptID}/test.
func (h *Handler) TestSolution(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, (*editor.Session).TestSolution)
}

// command runs fn against the attempt's editor session while the attempt is
// solving, persists whatever it committed, and forces the attempt out of the
// solving phase once the action limit is reached.
func (h *Handler) command(w http.ResponseWriter, r *http.Request, fn func(*editor.Session) (editor.Outcome, error)) {
	ctx := r.Context()
	id := r.PathValue("attemptID")

	hs, err := h.Sessions.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	hs.mu.Lock()
	defer hs.mu.Unlock()
	h.Sessions.touch(hs)

	state, err := h.Engine.GetState(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}
	if state.CurrentPhase != domain.PhaseSolving {
		writeError(w, notSolving(state.CurrentPhase))
		return
	}

	out, err := fn(hs.editor)
	if err != nil {
		writeError(w, err)
		return
	}

	if out.Committed() || len(out.Signals) > 0 {
		state, err = h.Engine.RecordProgress(ctx, id, hs.editor.Since(hs.persisted), hs.editor.Signals())
		if err != nil {
			writeError(w, err)
			return
		}
		hs.persisted = state.ActionCount
	}

	resp := CommandResponse{
		Action:  out.Action,
		Signals: out.Signals,
		Session: hs.editor.Snapshot(),
		Phase:   state.CurrentPhase,
	}

	if hs.editor.State() == domain.SessionLimitReached {
		res := hs.editor.SolvingResult()
		next, err := h.Engine.Advance(ctx, id, domain.TransitionTrigger{
			Action:  workflow.ActionForce,
			Actor:   limiterActor,
			Solving: &res,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		if err := h.Sessions.Close(id); err != nil {
			h.Log.Warn("close editor session", "attempt_id", id, "error", err)
		}
		h.Log.Warn("action limit reached, solving phase ended",
			"attempt_id", id,
			"action_count", hs.persisted,
		)
		resp.Phase = next.CurrentPhase
		resp.Session = hs.editor.Snapshot()
	}

	writeJSON(w, http.StatusOK, resp)
}

// Submit handles POST /api/v1/submissions. The client-held action log is
// replayed onto the task's test input and must reproduce the submitted
// solution before the attempt leaves the solving phase.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req SubmissionRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	if err := req.Solution.Validate(); err != nil {
		writeError(w, err)
		return
	}

	if hs, err := h.Sessions.Get(req.AttemptID); err == nil {
		hs.mu.Lock()
		defer hs.mu.Unlock()
	}

	state, err := h.Engine.GetState(ctx, req.AttemptID)
	if err != nil {
		writeError(w, err)
		return
	}
	if state.CurrentPhase != domain.PhaseSolving {
		writeError(w, notSolving(state.CurrentPhase))
		return
	}
	t, err := h.Engine.Task(ctx, state.TaskID)
	if err != nil {
		writeError(w, err)
		return
	}
	input, ok := t.TestInput()
	if !ok {
		writeError(w, domain.ErrNoTestInput)
		return
	}

	recorded, err := h.Engine.Actions(ctx, req.AttemptID, 0)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := editor.VerifyPrefix(recorded, req.Actions); err != nil {
		writeError(w, err)
		return
	}
	replayed, err := editor.Replay(input, req.Actions)
	if err != nil {
		writeError(w, err)
		return
	}
	if !editor.Equals(replayed, req.Solution) {
		writeError(w, domain.NewEngineError(
			domain.ErrInvalidActionLog.Code,
			"replayed action log does not reproduce the submitted solution",
		))
		return
	}

	res := domain.SolvingResult{
		Solution: req.Solution,
		Actions:  req.Actions,
		Signals:  req.Signals,
	}
	if truth, ok := t.GroundTruth(); ok {
		correct := editor.Equals(req.Solution, truth)
		res.IsCorrect = &correct
	}

	trigger := domain.TransitionTrigger{
		Action:  workflow.ActionAdvance,
		Actor:   req.Actor,
		Payload: req.Payload,
		Solving: &res,
	}
	next, err := h.Engine.Advance(ctx, req.AttemptID, trigger)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.Sessions.Close(req.AttemptID); err != nil {
		h.Log.Warn("close editor session", "attempt_id", req.AttemptID, "error", err)
	}
	h.Log.Info("submission accepted",
		"attempt_id", req.AttemptID,
		"actions", len(req.Actions),
		"correct", res.IsCorrect != nil && *res.IsCorrect,
	)
	writeJSON(w, http.StatusOK, next)
}

// ListActions handles GET /api/v1/attempts/{attemptID}/actions?since_seq=N.
func (h *Handler) ListActions(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("attemptID")
	actions, err := h.Engine.Actions(r.Context(), id, int(sinceSeq(r)))
	if err != nil {
		writeError(w, err)
		return
	}
	if actions == nil {
		actions = []domain.Action{}
	}
	writeJSON(w, http.StatusOK, actions)
}

// ListEvents handles GET /api/v1/attempts/{attemptID}/events?since_seq=N&type=T.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("attemptID")
	events, err := h.Engine.Events(r.Context(), id, store.EventFilter{
		SinceSeq:  sinceSeq(r),
		EventType: r.URL.Query().Get("type"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if events == nil {
		events = []domain.PhaseEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

// StreamActions handles GET /api/v1/attempts/{attemptID}/actions/stream (SSE).
func (h *Handler) StreamActions(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("attemptID")
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, APIError{Code: 500, Message: "streaming not supported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ctx := r.Context()
	lastSeq := int(sinceSeq(r))

	flush := func() bool {
		actions, err := h.Engine.Actions(ctx, id, lastSeq)
		if err != nil {
			writeSSEError(w, flusher, err)
			return false
		}
		for _, a := range actions {
			writeSSEEvent(w, flusher, a)
			lastSeq = a.SequenceNumber
		}
		return true
	}
	if !flush() {
		return
	}

	interval := h.StreamInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !flush() {
				return
			}
		}
	}
}

func sinceSeq(r *http.Request) int64 {
	if s := r.URL.Query().Get("since_seq"); s != "" {
		if parsed, err := strconv.ParseInt(s, 10, 64); err == nil && parsed > 0 {
			return parsed
		}
	}
	return 0
}

// publicTask hides test outputs from participants.
func publicTask(t domain.ARCTask) domain.ARCTask {
	out := t
	out.Test = make([]domain.Example, len(t.Test))
	for i, ex := range t.Test {
		out.Test[i] = domain.Example{Input: ex.Input}
	}
	return out
}

func notSolving(phase domain.Phase) error {
	return domain.NewEngineError(
		domain.ErrInvalidPhase.Code,
		fmt.Sprintf("attempt is in phase %s, not solving", phase),
	)
}

// decodeRequest decodes and validates a JSON body. An empty body decodes to
// the zero value. It writes a 400 response and returns false on failure.
func decodeRequest(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
			writeJSON(w, http.StatusBadRequest, APIError{Code: 400, Message: "invalid request body"})
			return false
		}
	}
	if err := requestValidate.Struct(v); err != nil {
		writeJSON(w, http.StatusBadRequest, APIError{Code: 400, Message: err.Error()})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	var engErr *domain.EngineError
	if errors.As(err, &engErr) {
		writeJSON(w, statusFor(engErr.Code), APIError{Code: engErr.Code, Message: engErr.Message})
		return
	}
	writeJSON(w, http.StatusInternalServerError, APIError{Code: -1, Message: err.Error()})
}

func statusFor(code int) int {
	switch code {
	case domain.ErrAttemptNotFound.Code, domain.ErrTaskNotFound.Code,
		domain.ErrNoTasks.Code, domain.ErrSessionMissing.Code:
		return http.StatusNotFound
	case domain.ErrAttemptDone.Code, domain.ErrInvalidPhase.Code,
		domain.ErrSessionNotActive.Code, domain.ErrSessionClosed.Code,
		domain.ErrLimitExceeded.Code, domain.ErrOptimisticLock.Code,
		domain.ErrDuplicateAction.Code, domain.ErrDuplicateAttempt.Code:
		return http.StatusConflict
	case domain.ErrInvalidGrid.Code, domain.ErrInvalidDimensions.Code,
		domain.ErrInvalidColor.Code, domain.ErrInvalidMode.Code,
		domain.ErrCellOutOfRange.Code, domain.ErrInvalidSizeFormat.Code:
		return http.StatusBadRequest
	case domain.ErrInvalidTransition.Code, domain.ErrPhaseGateFailed.Code,
		domain.ErrInvalidActionLog.Code, domain.ErrNoGroundTruth.Code:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func writeSSEEvent(w http.ResponseWriter, f http.Flusher, a domain.Action) {
	data, _ := json.Marshal(a)
	fmt.Fprintf(w, "event: action\nid: %d\ndata: %s\n\n", a.SequenceNumber, data)
	f.Flush()
}

func writeSSEError(w http.ResponseWriter, f http.Flusher, err error) {
	fmt.Fprintf(w, "event: error\ndata: %s\n\n", err.Error())
	f.Flush()
}
