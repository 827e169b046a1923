package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/arc-hci/arcgrid/internal/domain"
	"github.com/arc-hci/arcgrid/internal/editor"
	"github.com/arc-hci/arcgrid/internal/store"
	"github.com/arc-hci/arcgrid/internal/task"
	"github.com/arc-hci/arcgrid/internal/workflow"
)

// t1 has a 2x2 all-zero test input whose expected output is all ones.
const testTaskJSON = `{
  "train": [{"input": [[0,1],[1,0]], "output": [[1,0],[0,1]]}],
  "test":  [{"input": [[0,0],[0,0]], "output": [[1,1],[1,1]]}]
}`

func newTestHandler(t *testing.T, cfg editor.Config) *Handler {
	t.Helper()
	db, err := store.NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "tasks/training/t1.json", []byte(testTaskJSON), 0o644))
	loader := task.NewLoader(fs, quiet)
	require.NoError(t, loader.Load("tasks/training"))

	return &Handler{
		Engine:         workflow.NewEngine(db),
		Tasks:          loader,
		Sessions:       NewSessionManager(cfg, nil),
		Log:            quiet,
		StreamInterval: 10 * time.Millisecond,
	}
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v), w.Body.String())
	return v
}

func createAttempt(t *testing.T, routes http.Handler) string {
	t.Helper()
	w := do(t, routes, http.MethodPost, "/api/v1/attempts", `{"participant_id":"p1","task_id":"t1"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[AttemptView](t, w).Attempt.AttemptID
}

// startSolving creates an attempt and advances it into the solving phase.
func startSolving(t *testing.T, routes http.Handler) string {
	t.Helper()
	id := createAttempt(t, routes)
	w := do(t, routes, http.MethodPost, "/api/v1/attempts/"+id+"/advance", `{"action":"advance"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = do(t, routes, http.MethodPost, "/api/v1/attempts/"+id+"/advance", `{"action":"advance","payload":{"first_impression":"fill"}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, domain.PhaseSolving, decode[domain.AttemptState](t, w).CurrentPhase)
	return id
}

func command(t *testing.T, routes http.Handler, id, name, body string) *httptest.ResponseRecorder {
	t.Helper()
	return do(t, routes, http.MethodPost, "/api/v1/attempts/"+id+"/"+name, body)
}

func TestCreateAttempt_HidesTestOutput(t *testing.T) {
	h := newTestHandler(t, editor.DefaultConfig())
	w := do(t, Routes(h, "*"), http.MethodPost, "/api/v1/attempts", `{"participant_id":"p1","task_id":"t1"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	view := decode[AttemptView](t, w)
	require.NotNil(t, view.Attempt)
	assert.Equal(t, "p1", view.Attempt.ParticipantID)
	assert.Equal(t, domain.PhaseViewing, view.Attempt.CurrentPhase)

	require.NotNil(t, view.Task)
	require.Len(t, view.Task.Test, 1)
	assert.Nil(t, view.Task.Test[0].Output)
	assert.Equal(t, domain.Grid{{0, 0}, {0, 0}}, view.Task.Test[0].Input)

	require.NotNil(t, view.Session)
	assert.Equal(t, domain.SessionActive, view.Session.State)
	assert.Equal(t, 0, view.Session.ActionCount)
	assert.Equal(t, 1, h.Sessions.Len())
}

func TestCreateAttempt_AnonymousRandomTask(t *testing.T) {
	h := newTestHandler(t, editor.DefaultConfig())
	w := do(t, Routes(h, "*"), http.MethodPost, "/api/v1/attempts", "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	view := decode[AttemptView](t, w)
	assert.NotEmpty(t, view.Attempt.ParticipantID)
	assert.Equal(t, "t1", view.Attempt.TaskID)
}

func TestCreateAttempt_Errors(t *testing.T) {
	h := newTestHandler(t, editor.DefaultConfig())
	routes := Routes(h, "*")

	w := do(t, routes, http.MethodPost, "/api/v1/attempts", "not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, routes, http.MethodPost, "/api/v1/attempts", `{"task_id":"missing"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	apiErr := decode[APIError](t, w)
	assert.Equal(t, domain.ErrTaskNotFound.Code, apiErr.Code)
}

func TestGetAttempt(t *testing.T) {
	h := newTestHandler(t, editor.DefaultConfig())
	routes := Routes(h, "*")
	id := createAttempt(t, routes)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/attempts/"+id, nil)
	req.SetPathValue("attemptID", id)
	w := httptest.NewRecorder()
	h.GetAttempt(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	view := decode[AttemptView](t, w)
	assert.Equal(t, id, view.Attempt.AttemptID)
	require.NotNil(t, view.Session)

	w = do(t, routes, http.MethodGet, "/api/v1/attempts/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdvance_Validation(t *testing.T) {
	h := newTestHandler(t, editor.DefaultConfig())
	routes := Routes(h, "*")
	id := createAttempt(t, routes)

	w := do(t, routes, http.MethodPost, "/api/v1/attempts/"+id+"/advance", `{"action":"jump"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// phase1 requires a questionnaire object.
	w = do(t, routes, http.MethodPost, "/api/v1/attempts/"+id+"/advance", `{"action":"advance"}`)
	require.Equal(t, http.StatusOK, w.Code)
	w = do(t, routes, http.MethodPost, "/api/v1/attempts/"+id+"/advance", `{"action":"advance"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, domain.ErrPhaseGateFailed.Code, decode[APIError](t, w).Code)
}

func TestCommand_RequiresSolvingPhase(t *testing.T) {
	h := newTestHandler(t, editor.DefaultConfig())
	routes := Routes(h, "*")
	id := createAttempt(t, routes)

	w := command(t, routes, id, "click", `{"row":0,"col":0}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, domain.ErrInvalidPhase.Code, decode[APIError](t, w).Code)

	w = command(t, routes, "unknown", "click", `{"row":0,"col":0}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestClickCell_PersistsAndSuppresses(t *testing.T) {
	h := newTestHandler(t, editor.DefaultConfig())
	routes := Routes(h, "*")
	id := startSolving(t, routes)

	w := command(t, routes, id, "click", `{"row":0,"col":1}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[CommandResponse](t, w)
	require.NotNil(t, resp.Action)
	assert.Equal(t, 1, resp.Action.SequenceNumber)
	assert.Equal(t, domain.ActionCellChange, resp.Action.Type)
	require.NotNil(t, resp.Action.CellChange)
	assert.Equal(t, 0, resp.Action.OldValue)
	assert.Equal(t, 1, resp.Action.NewValue)
	assert.Equal(t, domain.Grid{{0, 1}, {0, 0}}, resp.Session.Grid)

	// Same color on the same cell is redundant.
	w = command(t, routes, id, "click", `{"row":0,"col":1}`)
	require.Equal(t, http.StatusOK, w.Code)
	resp = decode[CommandResponse](t, w)
	assert.Nil(t, resp.Action)
	assert.Equal(t, 1, resp.Session.ActionCount)

	w = do(t, routes, http.MethodGet, "/api/v1/attempts/"+id+"/actions", "")
	require.Equal(t, http.StatusOK, w.Code)
	actions := decode[[]domain.Action](t, w)
	require.Len(t, actions, 1)
	assert.Equal(t, domain.ActionCellChange, actions[0].Type)

	state, err := h.Engine.GetState(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 1, state.ActionCount)
}

func TestSelectColorAndMode_Validation(t *testing.T) {
	h := newTestHandler(t, editor.DefaultConfig())
	routes := Routes(h, "*")
	id := startSolving(t, routes)

	assert.Equal(t, http.StatusBadRequest, command(t, routes, id, "color", `{"color":12}`).Code)
	assert.Equal(t, http.StatusBadRequest, command(t, routes, id, "color", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, command(t, routes, id, "mode", `{"mode":"erase"}`).Code)

	w := command(t, routes, id, "color", `{"color":0}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[CommandResponse](t, w)
	assert.Nil(t, resp.Action)
	assert.Equal(t, 0, resp.Session.SelectedColor)

	w = command(t, routes, id, "mode", `{"mode":"fill"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.ModeFill, decode[CommandResponse](t, w).Session.Mode)
}

func TestResize(t *testing.T) {
	h := newTestHandler(t, editor.DefaultConfig())
	routes := Routes(h, "*")
	id := startSolving(t, routes)

	w := command(t, routes, id, "resize", `{"size":"3x4"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[CommandResponse](t, w)
	require.NotNil(t, resp.Action)
	require.NotNil(t, resp.Action.ResizeChange)
	assert.Equal(t, 3, resp.Action.NewRows)
	assert.Equal(t, 4, resp.Action.NewCols)

	w = command(t, routes, id, "resize", `{"size":"３×４"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, decode[CommandResponse](t, w).Action)

	w = command(t, routes, id, "resize", `{"size":"big"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, domain.ErrInvalidSizeFormat.Code, decode[APIError](t, w).Code)

	w = command(t, routes, id, "resize", `{"rows":31,"cols":2}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, domain.ErrInvalidDimensions.Code, decode[APIError](t, w).Code)

	assert.Equal(t, http.StatusBadRequest, command(t, routes, id, "resize", `{}`).Code)
}

func TestPointer_DragSelect(t *testing.T) {
	h := newTestHandler(t, editor.DefaultConfig())
	routes := Routes(h, "*")
	id := startSolving(t, routes)

	require.Equal(t, http.StatusOK, command(t, routes, id, "mode", `{"mode":"select"}`).Code)

	// 2x2 grid at 480px: 240px cells.
	vp := `"viewport":{"originX":0,"originY":0,"maxDisplaySizePx":480}`
	w := command(t, routes, id, "pointer", `{"event":{"kind":"start","x":10,"y":10,"pointerCount":1},`+vp+`}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[CommandResponse](t, w)
	assert.Nil(t, resp.Action)
	require.NotNil(t, resp.Session.Selection)

	w = command(t, routes, id, "pointer", `{"event":{"kind":"move","x":300,"y":300,"pointerCount":1},`+vp+`}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = command(t, routes, id, "pointer", `{"event":{"kind":"end","x":300,"y":300,"pointerCount":1},`+vp+`}`)
	require.Equal(t, http.StatusOK, w.Code)
	resp = decode[CommandResponse](t, w)
	require.NotNil(t, resp.Action)
	assert.Equal(t, domain.ActionSelectRegion, resp.Action.Type)
	require.NotNil(t, resp.Action.RegionChange)
	assert.Equal(t, 4, resp.Action.CellsAffected)
	assert.Equal(t, 1, resp.Action.EndRow)
	assert.Equal(t, domain.Grid{{1, 1}, {1, 1}}, resp.Session.Grid)
	assert.Nil(t, resp.Session.Selection)
}

func TestSubmitAttempt_UsesLiveSession(t *testing.T) {
	h := newTestHandler(t, editor.DefaultConfig())
	routes := Routes(h, "*")
	id := startSolving(t, routes)

	w := command(t, routes, id, "fill", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = command(t, routes, id, "test", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[CommandResponse](t, w)
	require.NotNil(t, resp.Action)
	require.NotNil(t, resp.Action.SolutionCheck)
	assert.Equal(t, domain.CheckCorrect, resp.Action.Result)

	w = command(t, routes, id, "submit", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	state := decode[domain.AttemptState](t, w)
	assert.Equal(t, domain.PhaseTeaching, state.CurrentPhase)
	require.NotNil(t, state.IsCorrect)
	assert.True(t, *state.IsCorrect)
	assert.Equal(t, 2, state.ActionCount)
	assert.Equal(t, 0, h.Sessions.Len())

	// Leaving solving again is not possible.
	w = command(t, routes, id, "submit", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestActionLimit_ForcesTransition(t *testing.T) {
	h := newTestHandler(t, editor.Config{ActionLimit: 3, WarningThreshold: 2, MinCellSizePx: 6, MaxDisplaySizePx: 480})
	routes := Routes(h, "*")
	id := startSolving(t, routes)

	require.Equal(t, http.StatusOK, command(t, routes, id, "click", `{"row":0,"col":0}`).Code)

	w := command(t, routes, id, "click", `{"row":0,"col":1}`)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[CommandResponse](t, w)
	require.Len(t, resp.Signals, 1)
	assert.Equal(t, domain.SignalWarning, resp.Signals[0].Kind)
	assert.Equal(t, domain.PhaseSolving, resp.Phase)

	w = command(t, routes, id, "click", `{"row":1,"col":0}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp = decode[CommandResponse](t, w)
	require.NotNil(t, resp.Action)
	assert.Equal(t, 3, resp.Action.SequenceNumber)
	require.Len(t, resp.Signals, 1)
	assert.Equal(t, domain.SignalLimitReached, resp.Signals[0].Kind)
	assert.Equal(t, domain.PhaseTeaching, resp.Phase)
	assert.Equal(t, domain.SessionClosed, resp.Session.State)
	assert.Equal(t, 0, h.Sessions.Len())

	ctx := context.Background()
	state, err := h.Engine.GetState(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 3, state.ActionCount)
	require.NotNil(t, state.IsCorrect)
	assert.False(t, *state.IsCorrect)
	assert.Equal(t, domain.Grid{{1, 1}, {1, 0}}, state.Solution)

	events, err := h.Engine.Events(ctx, id, store.EventFilter{})
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, "forced_transition", events[len(events)-1].EventType)

	w = do(t, routes, http.MethodGet, "/api/v1/attempts/"+id+"/events?type=forced_transition", "")
	require.Equal(t, http.StatusOK, w.Code)
	forced := decode[[]domain.PhaseEvent](t, w)
	require.Len(t, forced, 1)
	assert.Equal(t, domain.PhaseTeaching, forced[0].Phase)

	w = do(t, routes, http.MethodGet, "/api/v1/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[domain.Stats](t, w).ForcedTransitions)

	signals, err := h.Engine.SignalRepo.ListByAttempt(ctx, h.Engine.DB, id)
	require.NoError(t, err)
	require.Len(t, signals, 2)
	assert.Equal(t, domain.SignalWarning, signals[0].Kind)
	assert.Equal(t, domain.SignalLimitReached, signals[1].Kind)
}

func TestSubmissions_ReplaysClientLog(t *testing.T) {
	h := newTestHandler(t, editor.DefaultConfig())
	routes := Routes(h, "*")
	id := startSolving(t, routes)

	body := `{
		"attempt_id": "` + id + `",
		"solution": [[1,1],[1,1]],
		"actions": [
			{"sequenceNumber":1,"type":"cell_change","timestamp":1000,"row":0,"col":0,"oldValue":0,"newValue":3},
			{"sequenceNumber":2,"type":"fill_all","timestamp":2000,"color":1}
		],
		"payload": {"confidence": 4}
	}`
	w := do(t, routes, http.MethodPost, "/api/v1/submissions", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	state := decode[domain.AttemptState](t, w)
	assert.Equal(t, domain.PhaseTeaching, state.CurrentPhase)
	assert.Equal(t, 2, state.ActionCount)
	require.NotNil(t, state.IsCorrect)
	assert.True(t, *state.IsCorrect)
	assert.Equal(t, 0, h.Sessions.Len())

	actions, err := h.Engine.Actions(context.Background(), id, 0)
	require.NoError(t, err)
	require.Len(t, actions, 2)
	require.NotNil(t, actions[0].CellChange)
	assert.Equal(t, 3, actions[0].NewValue)
}

func TestSubmissions_MustExtendRecordedActions(t *testing.T) {
	h := newTestHandler(t, editor.DefaultConfig())
	routes := Routes(h, "*")
	id := startSolving(t, routes)

	w := command(t, routes, id, "click", `{"row":0,"col":0}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	conflicting := `{
		"attempt_id": "` + id + `",
		"solution": [[0,0],[0,1]],
		"actions": [
			{"sequenceNumber":1,"type":"cell_change","timestamp":1000,"row":1,"col":1,"oldValue":0,"newValue":2},
			{"sequenceNumber":2,"type":"cell_change","timestamp":2000,"row":1,"col":1,"oldValue":2,"newValue":1}
		]
	}`
	w = do(t, routes, http.MethodPost, "/api/v1/submissions", conflicting)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())

	state, err := h.Engine.GetState(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseSolving, state.CurrentPhase)

	recorded, err := h.Engine.Actions(context.Background(), id, 0)
	require.NoError(t, err)
	require.Len(t, recorded, 1)
	first, err := json.Marshal(recorded[0])
	require.NoError(t, err)

	extending := `{
		"attempt_id": "` + id + `",
		"solution": [[1,0],[0,1]],
		"actions": [
			` + string(first) + `,
			{"sequenceNumber":2,"type":"cell_change","timestamp":2000,"row":1,"col":1,"oldValue":0,"newValue":1}
		]
	}`
	w = do(t, routes, http.MethodPost, "/api/v1/submissions", extending)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	stored, err := h.Engine.Actions(context.Background(), id, 0)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	input := domain.Grid{{0, 0}, {0, 0}}
	replayed, err := editor.Replay(input, stored)
	require.NoError(t, err)
	assert.Equal(t, domain.Grid{{1, 0}, {0, 1}}, replayed)
}

func TestSubmissions_Rejected(t *testing.T) {
	h := newTestHandler(t, editor.DefaultConfig())
	routes := Routes(h, "*")
	id := startSolving(t, routes)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{
			"log does not reproduce solution",
			`{"attempt_id":"` + id + `","solution":[[1,1],[1,1]],"actions":[{"sequenceNumber":1,"type":"fill_all","timestamp":1,"color":2}]}`,
			http.StatusUnprocessableEntity,
		},
		{
			"sequence gap",
			`{"attempt_id":"` + id + `","solution":[[2,2],[2,2]],"actions":[{"sequenceNumber":2,"type":"fill_all","timestamp":1,"color":2}]}`,
			http.StatusUnprocessableEntity,
		},
		{
			"color out of range",
			`{"attempt_id":"` + id + `","solution":[[12,0],[0,0]],"actions":[]}`,
			http.StatusBadRequest,
		},
		{
			"ragged solution",
			`{"attempt_id":"` + id + `","solution":[[0,0],[0]],"actions":[]}`,
			http.StatusBadRequest,
		},
		{
			"missing attempt id",
			`{"solution":[[0,0],[0,0]]}`,
			http.StatusBadRequest,
		},
		{
			"unknown attempt",
			`{"attempt_id":"nope","solution":[[0,0],[0,0]]}`,
			http.StatusNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, routes, http.MethodPost, "/api/v1/submissions", tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}

	state, err := h.Engine.GetState(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseSolving, state.CurrentPhase)
}

func TestTasksAndStats(t *testing.T) {
	h := newTestHandler(t, editor.DefaultConfig())
	routes := Routes(h, "*")

	w := do(t, routes, http.MethodGet, "/api/v1/tasks/random", "")
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[domain.ARCTask](t, w)
	assert.Equal(t, "t1", got.ID)
	assert.Nil(t, got.Test[0].Output)

	w = do(t, routes, http.MethodGet, "/api/v1/tasks/t1", "")
	assert.Equal(t, http.StatusOK, w.Code)
	w = do(t, routes, http.MethodGet, "/api/v1/tasks/zzz", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, routes, http.MethodGet, "/api/v1/tasks/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]int{"training": 1, "total": 1}, decode[map[string]int](t, w))

	createAttempt(t, routes)
	w = do(t, routes, http.MethodGet, "/api/v1/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[domain.Stats](t, w)
	assert.Equal(t, 1, stats.TotalParticipants)
	assert.Equal(t, 1, stats.TotalAttempts)
	assert.Equal(t, 1, stats.UniqueTasks)
}

func TestRoutes_CORSAndMetrics(t *testing.T) {
	h := newTestHandler(t, editor.DefaultConfig())
	routes := Routes(h, "https://study.example.org")

	w := do(t, routes, http.MethodOptions, "/api/v1/attempts", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://study.example.org", w.Header().Get("Access-Control-Allow-Origin"))

	w = do(t, routes, http.MethodGet, "/api/v1/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, routes, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "arcgrid_http_requests_total")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    *domain.EngineError
		status int
	}{
		{domain.ErrAttemptNotFound, http.StatusNotFound},
		{domain.ErrSessionMissing, http.StatusNotFound},
		{domain.ErrLimitExceeded, http.StatusConflict},
		{domain.ErrSessionClosed, http.StatusConflict},
		{domain.ErrInvalidColor, http.StatusBadRequest},
		{domain.ErrInvalidActionLog, http.StatusUnprocessableEntity},
		{domain.ErrStoreWrite, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err.Code); got != tt.status {
			t.Errorf("statusFor(%d) = %d, want %d", tt.err.Code, got, tt.status)
		}
	}
}

func TestStreamActions_StopsOnDisconnect(t *testing.T) {
	h := newTestHandler(t, editor.DefaultConfig())
	routes := Routes(h, "*")
	id := startSolving(t, routes)
	require.Equal(t, http.StatusOK, command(t, routes, id, "click", `{"row":1,"col":1}`).Code)

	ignore := goleak.IgnoreCurrent()
	srv := httptest.NewServer(routes)
	tr := &http.Transport{DisableKeepAlives: true}
	client := &http.Client{Transport: tr}

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/attempts/"+id+"/actions/stream", nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	var data string
	for data == "" {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if rest, ok := strings.CutPrefix(line, "data: "); ok {
			data = strings.TrimSpace(rest)
		}
	}
	var a domain.Action
	require.NoError(t, json.Unmarshal([]byte(data), &a))
	assert.Equal(t, 1, a.SequenceNumber)
	assert.Equal(t, domain.ActionCellChange, a.Type)

	cancel()
	resp.Body.Close()
	tr.CloseIdleConnections()
	srv.Close()

	goleak.VerifyNone(t, ignore)
}
