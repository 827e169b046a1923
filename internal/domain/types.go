// Package domain defines the core types for the ARC grid editor and its collection host.
package domain

// Mode is the active interaction mode of the grid editor.
type Mode string

const (
	ModeEdit   Mode = "edit"
	ModeSelect Mode = "select"
	ModeFill   Mode = "fill"
)

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeEdit, ModeSelect, ModeFill:
		return true
	}
	return false
}

// ActionType identifies the kind of a committed grid action.
type ActionType string

const (
	ActionCellChange    ActionType = "cell_change"
	ActionSelectRegion  ActionType = "select_region"
	ActionFillAll       ActionType = "fill_all"
	ActionReset         ActionType = "reset"
	ActionCopyFromInput ActionType = "copy_from_input"
	ActionResize        ActionType = "resize"
	ActionTestSolution  ActionType = "test_solution"
)

// Cell identifies a grid cell.
type Cell struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// Rect is a normalized rectangular cell range (inclusive bounds).
type Rect struct {
	MinRow int `json:"minRow"`
	MaxRow int `json:"maxRow"`
	MinCol int `json:"minCol"`
	MaxCol int `json:"maxCol"`
}

// NormalizeRect builds the rect spanned by two corner cells in any order.
func NormalizeRect(a, b Cell) Rect {
	r := Rect{MinRow: a.Row, MaxRow: b.Row, MinCol: a.Col, MaxCol: b.Col}
	if r.MinRow > r.MaxRow {
		r.MinRow, r.MaxRow = r.MaxRow, r.MinRow
	}
	if r.MinCol > r.MaxCol {
		r.MinCol, r.MaxCol = r.MaxCol, r.MinCol
	}
	return r
}

// Contains reports whether (row, col) lies inside the rect.
func (r Rect) Contains(row, col int) bool {
	return row >= r.MinRow && row <= r.MaxRow && col >= r.MinCol && col <= r.MaxCol
}

// Area returns the number of cells covered by the rect.
func (r Rect) Area() int {
	return (r.MaxRow - r.MinRow + 1) * (r.MaxCol - r.MinCol + 1)
}

// CellChange is the payload of a cell_change action.
type CellChange struct {
	Row      int `json:"row"`
	Col      int `json:"col"`
	OldValue int `json:"oldValue"`
	NewValue int `json:"newValue"`
}

// RegionChange is the payload of a select_region action. Bounds are normalized.
type RegionChange struct {
	StartRow      int `json:"startRow"`
	StartCol      int `json:"startCol"`
	EndRow        int `json:"endRow"`
	EndCol        int `json:"endCol"`
	CellsAffected int `json:"cellsAffected"`
}

// Rect returns the region as a Rect.
func (rc RegionChange) Rect() Rect {
	return Rect{MinRow: rc.StartRow, MaxRow: rc.EndRow, MinCol: rc.StartCol, MaxCol: rc.EndCol}
}

// ResizeChange is the payload of a resize action.
type ResizeChange struct {
	NewRows int `json:"newRows"`
	NewCols int `json:"newCols"`
}

// CheckResult is the outcome of comparing a grid against the ground truth.
type CheckResult string

const (
	CheckCorrect      CheckResult = "correct"
	CheckIncorrect    CheckResult = "incorrect"
	CheckSizeMismatch CheckResult = "size_mismatch"
)

// SolutionCheck is the payload of a test_solution action.
type SolutionCheck struct {
	Result         CheckResult `json:"result"`
	IncorrectCells int         `json:"incorrectCells"`
}

// Action is an immutable record of one committed grid state change.
// Exactly one of the embedded payloads is set, depending on Type; reset and
// copy_from_input carry none. Color is set for select_region and fill_all.
type Action struct {
	SequenceNumber int        `json:"sequenceNumber"`
	Type           ActionType `json:"type"`
	Timestamp      int64      `json:"timestamp"`
	Color          *int       `json:"color,omitempty"`

	*CellChange
	*RegionChange
	*ResizeChange
	*SolutionCheck
}

// SignalKind identifies a safety limiter signal.
type SignalKind string

const (
	SignalWarning      SignalKind = "warning"
	SignalLimitReached SignalKind = "limit_reached"
)

// Signal is a non-grid-mutating notification from the safety limiter.
type Signal struct {
	Kind        SignalKind `json:"kind"`
	ActionCount int        `json:"actionCount"`
	Limit       int        `json:"limit"`
	Timestamp   int64      `json:"timestamp"`
}

// SessionState is the lifecycle state of one editing session.
type SessionState string

const (
	SessionNotStarted   SessionState = "not_started"
	SessionActive       SessionState = "active"
	SessionLimitReached SessionState = "limit_reached"
	SessionClosed       SessionState = "closed"
)

// PointerKind is the phase of a pointer or touch event.
type PointerKind string

const (
	PointerStart  PointerKind = "start"
	PointerMove   PointerKind = "move"
	PointerEnd    PointerKind = "end"
	PointerCancel PointerKind = "cancel"
	PointerLeave  PointerKind = "leave"
)

// Point is a physical position in display pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PointerEvent is the platform-agnostic input model. Hosts adapt native mouse
// and touch events into this shape. Points carries every active touch point
// when PointerCount > 1.
type PointerEvent struct {
	Kind         PointerKind `json:"kind"`
	X            float64     `json:"x"`
	Y            float64     `json:"y"`
	PointerCount int         `json:"pointerCount"`
	Points       []Point     `json:"points,omitempty"`
}

// Viewport locates the grid on screen.
type Viewport struct {
	OriginX          float64 `json:"originX"`
	OriginY          float64 `json:"originY"`
	MaxDisplaySizePx float64 `json:"maxDisplaySizePx"`
}

// Counters are the per-session counters reset when a new grid session begins.
type Counters struct {
	ActionCount   int `json:"actionCount"`
	SelectedColor int `json:"selectedColor"`
}

// SessionSnapshot is a read-only view of an editing session for rendering.
type SessionSnapshot struct {
	State         SessionState `json:"state"`
	Mode          Mode         `json:"mode"`
	SelectedColor int          `json:"selectedColor"`
	ActionCount   int          `json:"actionCount"`
	ActionLimit   int          `json:"actionLimit"`
	Warned        bool         `json:"warned"`
	Grid          Grid         `json:"grid"`
	Scale         float64      `json:"scale"`
	Selection     *Rect        `json:"selection,omitempty"`
}

// Phase is a step of the participant's attempt flow.
type Phase string

const (
	PhaseViewing  Phase = "viewing"
	PhaseInitial  Phase = "phase1"
	PhaseSolving  Phase = "solving"
	PhaseTeaching Phase = "phase3"
	PhaseReflect  Phase = "phase4"
	PhaseComplete Phase = "complete"
)

// AttemptStatus is the current status of an attempt.
type AttemptStatus string

const (
	StatusRunning AttemptStatus = "running"
	StatusDone    AttemptStatus = "completed"
)

// AttemptState holds the persisted state of one participant's attempt at a task.
type AttemptState struct {
	AttemptID     string        `json:"attempt_id"`
	ParticipantID string        `json:"participant_id"`
	TaskID        string        `json:"task_id"`
	CurrentPhase  Phase         `json:"current_phase"`
	Status        AttemptStatus `json:"status"`
	StateVersion  int64         `json:"state_version"`
	ActionCount   int           `json:"action_count"`
	LastEventSeq  int64         `json:"last_event_seq"`
	IsCorrect     *bool         `json:"is_correct,omitempty"`
	Solution      Grid          `json:"solution,omitempty"`
	StartedAtMs   int64         `json:"started_at_ms"`
	UpdatedAtUnix int64         `json:"updated_at_unix"`
}

// SolvingResult is what the editor hands over when the solving phase ends.
type SolvingResult struct {
	Solution  Grid
	IsCorrect *bool
	Actions   []Action
	Signals   []Signal
}

// TransitionTrigger initiates a phase transition. Payload is the opaque
// completion document of the phase being left.
type TransitionTrigger struct {
	Action  string
	Actor   string
	Payload []byte
	Solving *SolvingResult
}

// GateDecision is the result of evaluating phase exit conditions.
type GateDecision struct {
	Allow    bool
	Blockers []string
}

// Phase event types.
const (
	EventAttemptStarted   = "attempt_started"
	EventPhaseTransition  = "phase_transition"
	EventForcedTransition = "forced_transition"
)

// PhaseEvent represents an entry in an attempt's phase event log.
type PhaseEvent struct {
	ID          int64  `json:"id"`
	AttemptID   string `json:"attempt_id"`
	SeqNo       int64  `json:"seq_no"`
	Phase       Phase  `json:"phase"`
	EventType   string `json:"event_type"`
	PayloadJSON string `json:"payload_json"`
	CreatedAt   int64  `json:"created_at"`
}

// PhaseResponse stores the completion payload submitted for a phase.
type PhaseResponse struct {
	ID          int64  `json:"id"`
	AttemptID   string `json:"attempt_id"`
	Phase       Phase  `json:"phase"`
	PayloadJSON string `json:"payload_json"`
	CreatedAt   int64  `json:"created_at"`
}

// ActionTrace is the persisted row for one action of an attempt.
type ActionTrace struct {
	ActionID       string     `json:"action_id"`
	AttemptID      string     `json:"attempt_id"`
	SequenceNumber int        `json:"sequence_number"`
	ActionType     ActionType `json:"action_type"`
	CellRow        *int       `json:"cell_row,omitempty"`
	CellColumn     *int       `json:"cell_column,omitempty"`
	ColorBefore    *int       `json:"color_value_before,omitempty"`
	ColorAfter     *int       `json:"color_value_after,omitempty"`
	TimestampMs    int64      `json:"timestamp_ms"`
	OffsetMs       int64      `json:"offset_ms"`
	PayloadJSON    string     `json:"payload_json"`
}

// SignalRecord is the persisted row for a safety limiter signal.
type SignalRecord struct {
	ID          string     `json:"id"`
	AttemptID   string     `json:"attempt_id"`
	Kind        SignalKind `json:"kind"`
	ActionCount int        `json:"action_count"`
	Limit       int        `json:"action_limit"`
	CreatedAt   int64      `json:"created_at"`
}

// Example is one input/output pair of an ARC task. Output may be absent for
// hidden test pairs.
type Example struct {
	Input  Grid `json:"input"`
	Output Grid `json:"output,omitempty"`
}

// ARCTask is a puzzle: training pairs plus one or more test pairs.
type ARCTask struct {
	ID    string    `json:"id"`
	Name  string    `json:"name"`
	Type  string    `json:"type"`
	Train []Example `json:"train"`
	Test  []Example `json:"test"`
}

// TestInput returns the first test input grid, if any.
func (t ARCTask) TestInput() (Grid, bool) {
	if len(t.Test) == 0 || len(t.Test[0].Input) == 0 {
		return nil, false
	}
	return t.Test[0].Input, true
}

// GroundTruth returns the first test output grid, if any.
func (t ARCTask) GroundTruth() (Grid, bool) {
	if len(t.Test) == 0 || len(t.Test[0].Output) == 0 {
		return nil, false
	}
	return t.Test[0].Output, true
}

// Stats summarises collected attempts.
type Stats struct {
	TotalParticipants int      `json:"total_participants"`
	TotalAttempts     int      `json:"total_attempts"`
	UniqueTasks       int      `json:"unique_tasks_attempted"`
	Accuracy          *float64 `json:"overall_accuracy,omitempty"`
	// ForcedTransitions counts attempts ended by the action limit.
	ForcedTransitions int `json:"forced_transitions"`
}
