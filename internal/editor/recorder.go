package editor

import (
	"fmt"
	"time"

	"github.com/arc-hci/arcgrid/internal/domain"
)

// Outcome is the result of a commit attempt. Action is nil when the proposed
// edit was redundant and therefore suppressed.
type Outcome struct {
	Action  *domain.Action
	Signals []domain.Signal
}

// Committed reports whether the attempt produced an Action.
func (o Outcome) Committed() bool { return o.Action != nil }

// Recorder decides whether a proposed edit is a genuine state change, applies
// it to the GridStore and emits sequenced Actions.
type Recorder struct {
	store     *GridStore
	input     domain.Grid
	limiter   *SafetyLimiter
	lifecycle *Lifecycle
	now       func() time.Time

	count   int
	log     []domain.Action
	signals []domain.Signal

	onAction []func(domain.Action)
	onSignal []func(domain.Signal)
}

// NewRecorder wires a recorder over an existing store. input is the original
// task grid used by copy_from_input.
func NewRecorder(store *GridStore, input domain.Grid, limiter *SafetyLimiter, lifecycle *Lifecycle, now func() time.Time) *Recorder {
	if now == nil {
		now = time.Now
	}
	return &Recorder{
		store:     store,
		input:     input.Clone(),
		limiter:   limiter,
		lifecycle: lifecycle,
		now:       now,
	}
}

// proposal is a computed candidate state change awaiting the redundancy check.
type proposal struct {
	kind      domain.ActionType
	next      domain.Grid
	redundant bool
	payload   func(*domain.Action)
}

// ActionCount returns the number of committed actions.
func (r *Recorder) ActionCount() int { return r.count }

// Log returns a copy of the committed actions in sequence order.
func (r *Recorder) Log() []domain.Action {
	return append([]domain.Action(nil), r.log...)
}

// Signals returns a copy of the limiter signals emitted so far.
func (r *Recorder) Signals() []domain.Signal {
	return append([]domain.Signal(nil), r.signals...)
}

// Since returns committed actions with a sequence number greater than seq.
func (r *Recorder) Since(seq int) []domain.Action {
	if seq < 0 {
		seq = 0
	}
	if seq >= len(r.log) {
		return nil
	}
	return append([]domain.Action(nil), r.log[seq:]...)
}

// OnAction registers a subscriber for committed actions.
func (r *Recorder) OnAction(fn func(domain.Action)) {
	r.onAction = append(r.onAction, fn)
}

// OnSignal registers a subscriber for limiter signals.
func (r *Recorder) OnSignal(fn func(domain.Signal)) {
	r.onSignal = append(r.onSignal, fn)
}

// ChangeCell sets one cell. Suppressed when the cell already has the color.
func (r *Recorder) ChangeCell(row, col, color int) (Outcome, error) {
	if err := r.admit(domain.ActionCellChange); err != nil {
		return Outcome{}, err
	}
	if !domain.ValidColor(color) {
		return Outcome{}, domain.ErrInvalidColor
	}
	cur := r.store.grid
	if !cur.InBounds(row, col) {
		return Outcome{}, domain.NewEngineError(
			domain.ErrCellOutOfRange.Code,
			fmt.Sprintf("cell (%d,%d) is outside the %dx%d grid", row, col, cur.Rows(), cur.Cols()),
		)
	}
	old := cur[row][col]
	return r.commit(proposal{
		kind:      domain.ActionCellChange,
		next:      WithCell(cur, row, col, color),
		redundant: old == color,
		payload: func(a *domain.Action) {
			a.CellChange = &domain.CellChange{Row: row, Col: col, OldValue: old, NewValue: color}
		},
	})
}

// SelectRegion paints every cell in rect. It is never suppressed, even when
// the region already has the color.
func (r *Recorder) SelectRegion(rect domain.Rect, color int) (Outcome, error) {
	if err := r.admit(domain.ActionSelectRegion); err != nil {
		return Outcome{}, err
	}
	if !domain.ValidColor(color) {
		return Outcome{}, domain.ErrInvalidColor
	}
	cur := r.store.grid
	if !cur.InBounds(rect.MinRow, rect.MinCol) || !cur.InBounds(rect.MaxRow, rect.MaxCol) {
		return Outcome{}, domain.NewEngineError(
			domain.ErrCellOutOfRange.Code,
			fmt.Sprintf("region (%d,%d)-(%d,%d) is outside the %dx%d grid", rect.MinRow, rect.MinCol, rect.MaxRow, rect.MaxCol, cur.Rows(), cur.Cols()),
		)
	}
	next, changed := WithRect(cur, rect, color)
	return r.commit(proposal{
		kind: domain.ActionSelectRegion,
		next: next,
		payload: func(a *domain.Action) {
			a.Color = intPtr(color)
			a.RegionChange = &domain.RegionChange{
				StartRow:      rect.MinRow,
				StartCol:      rect.MinCol,
				EndRow:        rect.MaxRow,
				EndCol:        rect.MaxCol,
				CellsAffected: changed,
			}
		},
	})
}

// FillAll sets every cell to color. Suppressed when the grid is already uniform in that color.
func (r *Recorder) FillAll(color int) (Outcome, error) {
	if err := r.admit(domain.ActionFillAll); err != nil {
		return Outcome{}, err
	}
	if !domain.ValidColor(color) {
		return Outcome{}, domain.ErrInvalidColor
	}
	cur := r.store.grid
	return r.commit(proposal{
		kind:      domain.ActionFillAll,
		next:      Filled(cur, color),
		redundant: IsUniform(cur, color),
		payload: func(a *domain.Action) {
			a.Color = intPtr(color)
		},
	})
}

// Reset clears every cell to 0 keeping the current size. Suppressed when already all zero.
func (r *Recorder) Reset() (Outcome, error) {
	if err := r.admit(domain.ActionReset); err != nil {
		return Outcome{}, err
	}
	cur := r.store.grid
	return r.commit(proposal{
		kind:      domain.ActionReset,
		next:      Blank(cur.Rows(), cur.Cols(), 0),
		redundant: IsAllZero(cur),
	})
}

// CopyFromInput restores the original input grid. Suppressed when the grid already equals it.
func (r *Recorder) CopyFromInput() (Outcome, error) {
	if err := r.admit(domain.ActionCopyFromInput); err != nil {
		return Outcome{}, err
	}
	return r.commit(proposal{
		kind:      domain.ActionCopyFromInput,
		next:      r.input.Clone(),
		redundant: Equals(r.store.grid, r.input),
	})
}

// Resize changes the grid dimensions, keeping overlapping cells and
// zero-filling new ones. Suppressed when the size is unchanged.
func (r *Recorder) Resize(rows, cols int) (Outcome, error) {
	if err := r.admit(domain.ActionResize); err != nil {
		return Outcome{}, err
	}
	if !domain.ValidDimensions(rows, cols) {
		return Outcome{}, domain.NewEngineError(
			domain.ErrInvalidDimensions.Code,
			fmt.Sprintf("%s: got %dx%d", domain.ErrInvalidDimensions.Message, rows, cols),
		)
	}
	cur := r.store.grid
	return r.commit(proposal{
		kind:      domain.ActionResize,
		next:      Resized(cur, rows, cols),
		redundant: cur.Rows() == rows && cur.Cols() == cols,
		payload: func(a *domain.Action) {
			a.ResizeChange = &domain.ResizeChange{NewRows: rows, NewCols: cols}
		},
	})
}

// TestSolution compares the current grid with the ground truth and records
// the result. It never mutates the grid and is never suppressed.
func (r *Recorder) TestSolution(truth domain.Grid) (Outcome, error) {
	if err := r.admit(domain.ActionTestSolution); err != nil {
		return Outcome{}, err
	}
	check := domain.SolutionCheck{Result: domain.CheckCorrect}
	sizeMatch, mismatched := CountMismatches(r.store.grid, truth)
	switch {
	case !sizeMatch:
		check.Result = domain.CheckSizeMismatch
	case mismatched > 0:
		check.Result = domain.CheckIncorrect
		check.IncorrectCells = mismatched
	}
	return r.commit(proposal{
		kind: domain.ActionTestSolution,
		payload: func(a *domain.Action) {
			c := check
			a.SolutionCheck = &c
		},
	})
}

// admit enforces the lifecycle and the hard action limit before any
// redundancy check runs.
func (r *Recorder) admit(kind domain.ActionType) error {
	if err := r.lifecycle.Admit(); err != nil {
		actionsTotal.WithLabelValues(string(kind), outcomeRefused).Inc()
		return err
	}
	if r.limiter.Evaluate(r.count) == LimitHalt {
		actionsTotal.WithLabelValues(string(kind), outcomeRefused).Inc()
		return domain.ErrLimitExceeded
	}
	return nil
}

func (r *Recorder) commit(p proposal) (Outcome, error) {
	if p.redundant {
		actionsTotal.WithLabelValues(string(p.kind), outcomeSuppressed).Inc()
		return Outcome{}, nil
	}
	if p.next != nil {
		if err := r.store.Replace(p.next); err != nil {
			return Outcome{}, err
		}
	}

	r.count++
	nowMs := r.now().UnixMilli()
	action := domain.Action{
		SequenceNumber: r.count,
		Type:           p.kind,
		Timestamp:      nowMs,
	}
	if p.payload != nil {
		p.payload(&action)
	}
	r.log = append(r.log, action)
	actionsTotal.WithLabelValues(string(p.kind), outcomeCommitted).Inc()

	out := Outcome{Action: &action}
	out.Signals = r.limiter.Observe(r.count, nowMs)
	for _, s := range out.Signals {
		signalsTotal.WithLabelValues(string(s.Kind)).Inc()
		if s.Kind == domain.SignalLimitReached {
			// Active -> LimitReached is always legal here since admit passed.
			_ = r.lifecycle.Transition(domain.SessionLimitReached)
		}
	}
	r.signals = append(r.signals, out.Signals...)

	for _, fn := range r.onAction {
		fn(action)
	}
	for _, s := range out.Signals {
		for _, fn := range r.onSignal {
			fn(s)
		}
	}
	return out, nil
}

func intPtr(v int) *int { return &v }
