package editor

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arc-hci/arcgrid/internal/domain"
)

var testEpoch = time.UnixMilli(1_700_000_000_000)

func fixedClock() func() time.Time {
	return func() time.Time { return testEpoch }
}

func newRecorder(t *testing.T, input domain.Grid, limit, warnAt int) (*Recorder, *GridStore, *Lifecycle) {
	t.Helper()
	store, err := NewGridStore(input)
	require.NoError(t, err)
	lc := NewLifecycle()
	require.NoError(t, lc.Transition(domain.SessionActive))
	return NewRecorder(store, input, NewSafetyLimiter(limit, warnAt), lc, fixedClock()), store, lc
}

func TestRecorder_CellChangeThenSuppressed(t *testing.T) {
	rec, store, _ := newRecorder(t, domain.Grid{{0, 0}, {0, 0}}, 1000, 900)

	out, err := rec.ChangeCell(0, 0, 1)
	require.NoError(t, err)
	require.True(t, out.Committed())
	assert.Equal(t, domain.ActionCellChange, out.Action.Type)
	assert.Equal(t, 1, out.Action.SequenceNumber)
	assert.Equal(t, testEpoch.UnixMilli(), out.Action.Timestamp)
	assert.Equal(t, &domain.CellChange{Row: 0, Col: 0, OldValue: 0, NewValue: 1}, out.Action.CellChange)
	assert.Equal(t, domain.Grid{{1, 0}, {0, 0}}, store.Get())

	out, err = rec.ChangeCell(0, 0, 1)
	require.NoError(t, err)
	assert.False(t, out.Committed())
	assert.Equal(t, domain.Grid{{1, 0}, {0, 0}}, store.Get())
	assert.Equal(t, 1, rec.ActionCount())
}

func TestRecorder_SuppressionRules(t *testing.T) {
	input := domain.Grid{{1, 2}, {3, 4}}

	tests := []struct {
		name  string
		setup func(r *Recorder) error
		run   func(r *Recorder) (Outcome, error)
	}{
		{
			name:  "cell_change to same color",
			setup: func(r *Recorder) error { return nil },
			run:   func(r *Recorder) (Outcome, error) { return r.ChangeCell(1, 0, 3) },
		},
		{
			name:  "fill_all on uniform grid",
			setup: func(r *Recorder) error { _, err := r.FillAll(5); return err },
			run:   func(r *Recorder) (Outcome, error) { return r.FillAll(5) },
		},
		{
			name:  "reset on all-zero grid",
			setup: func(r *Recorder) error { _, err := r.Reset(); return err },
			run:   func(r *Recorder) (Outcome, error) { return r.Reset() },
		},
		{
			name:  "copy_from_input on untouched grid",
			setup: func(r *Recorder) error { return nil },
			run:   func(r *Recorder) (Outcome, error) { return r.CopyFromInput() },
		},
		{
			name:  "resize to same size",
			setup: func(r *Recorder) error { return nil },
			run:   func(r *Recorder) (Outcome, error) { return r.Resize(2, 2) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, store, _ := newRecorder(t, input, 1000, 900)
			require.NoError(t, tt.setup(rec))
			count := rec.ActionCount()
			grid := store.Get()

			out, err := tt.run(rec)
			require.NoError(t, err)
			assert.False(t, out.Committed())
			assert.Equal(t, grid, store.Get())
			assert.Equal(t, count, rec.ActionCount())
		})
	}
}

func TestRecorder_FillAllTwiceEmitsOneAction(t *testing.T) {
	rec, _, _ := newRecorder(t, domain.Grid{{0, 1}, {2, 3}}, 1000, 900)

	first, err := rec.FillAll(7)
	require.NoError(t, err)
	second, err := rec.FillAll(7)
	require.NoError(t, err)

	assert.True(t, first.Committed())
	assert.False(t, second.Committed())
	require.Len(t, rec.Log(), 1)
	assert.Equal(t, 7, *rec.Log()[0].Color)
}

func TestRecorder_CopyFromInputIdempotent(t *testing.T) {
	input := domain.Grid{{1, 2}, {3, 4}}
	rec, store, _ := newRecorder(t, input, 1000, 900)

	_, err := rec.FillAll(0)
	require.NoError(t, err)

	first, err := rec.CopyFromInput()
	require.NoError(t, err)
	second, err := rec.CopyFromInput()
	require.NoError(t, err)

	assert.True(t, first.Committed())
	assert.False(t, second.Committed())
	assert.Equal(t, input, store.Get())
	assert.Equal(t, 2, rec.ActionCount())
}

func TestRecorder_SelectRegionNeverSuppressed(t *testing.T) {
	rec, store, _ := newRecorder(t, domain.Grid{{0, 0, 0}, {0, 0, 0}, {0, 0, 0}}, 1000, 900)
	rect := domain.NormalizeRect(domain.Cell{Row: 1, Col: 1}, domain.Cell{Row: 0, Col: 0})

	out, err := rec.SelectRegion(rect, 2)
	require.NoError(t, err)
	require.True(t, out.Committed())
	assert.Equal(t, &domain.RegionChange{StartRow: 0, StartCol: 0, EndRow: 1, EndCol: 1, CellsAffected: 4}, out.Action.RegionChange)
	assert.Equal(t, domain.Grid{{2, 2, 0}, {2, 2, 0}, {0, 0, 0}}, store.Get())

	again, err := rec.SelectRegion(rect, 2)
	require.NoError(t, err)
	require.True(t, again.Committed())
	assert.Equal(t, 0, again.Action.CellsAffected)
	assert.Equal(t, 2, again.Action.SequenceNumber)
}

func TestRecorder_Resize(t *testing.T) {
	rec, store, _ := newRecorder(t, domain.Grid{{1, 2}, {3, 4}}, 1000, 900)

	out, err := rec.Resize(3, 3)
	require.NoError(t, err)
	require.True(t, out.Committed())
	assert.Equal(t, &domain.ResizeChange{NewRows: 3, NewCols: 3}, out.Action.ResizeChange)
	assert.Equal(t, domain.Grid{{1, 2, 0}, {3, 4, 0}, {0, 0, 0}}, store.Get())

	out, err = rec.Resize(1, 2)
	require.NoError(t, err)
	require.True(t, out.Committed())
	assert.Equal(t, domain.Grid{{1, 2}}, store.Get())
}

func TestRecorder_ResizeInvalidDimensions(t *testing.T) {
	rec, store, _ := newRecorder(t, domain.Grid{{1}}, 1000, 900)

	for _, dims := range [][2]int{{0, 3}, {3, 0}, {31, 1}, {1, 31}, {-1, -1}} {
		out, err := rec.Resize(dims[0], dims[1])
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrInvalidDimensions))
		assert.False(t, out.Committed())
	}
	assert.Equal(t, domain.Grid{{1}}, store.Get())
	assert.Zero(t, rec.ActionCount())
}

func TestRecorder_ResizePreservesOverlap(t *testing.T) {
	input := domain.Grid{
		{1, 2, 3, 4},
		{5, 6, 7, 8},
		{9, 0, 1, 2},
	}
	for _, dims := range [][2]int{{1, 1}, {2, 5}, {5, 2}, {6, 6}, {3, 5}} {
		rec, store, _ := newRecorder(t, input, 1000, 900)
		_, err := rec.Resize(dims[0], dims[1])
		require.NoError(t, err)

		got := store.Get()
		require.Equal(t, dims[0], got.Rows())
		require.Equal(t, dims[1], got.Cols())
		for r := 0; r < dims[0]; r++ {
			for c := 0; c < dims[1]; c++ {
				if r < input.Rows() && c < input.Cols() {
					assert.Equal(t, input[r][c], got[r][c], "cell (%d,%d) of %v", r, c, dims)
				} else {
					assert.Zero(t, got[r][c], "added cell (%d,%d) of %v", r, c, dims)
				}
			}
		}
	}
}

func TestRecorder_SequenceNumbersSkipSuppressed(t *testing.T) {
	rec, _, _ := newRecorder(t, domain.Grid{{0, 0}, {0, 0}}, 1000, 900)

	steps := []func() (Outcome, error){
		func() (Outcome, error) { return rec.ChangeCell(0, 0, 1) },
		func() (Outcome, error) { return rec.ChangeCell(0, 0, 1) },
		func() (Outcome, error) { return rec.Reset() },
		func() (Outcome, error) { return rec.Reset() },
		func() (Outcome, error) { return rec.FillAll(3) },
		func() (Outcome, error) { return rec.Resize(2, 2) },
		func() (Outcome, error) { return rec.Resize(4, 2) },
	}
	for _, step := range steps {
		_, err := step()
		require.NoError(t, err)
	}

	log := rec.Log()
	require.Len(t, log, 4)
	for i, a := range log {
		assert.Equal(t, i+1, a.SequenceNumber)
	}
	assert.Equal(t, []domain.ActionType{
		domain.ActionCellChange, domain.ActionReset, domain.ActionFillAll, domain.ActionResize,
	}, []domain.ActionType{log[0].Type, log[1].Type, log[2].Type, log[3].Type})
}

func TestRecorder_InvalidInputs(t *testing.T) {
	rec, _, _ := newRecorder(t, domain.Grid{{0, 0}}, 1000, 900)

	_, err := rec.ChangeCell(0, 0, 10)
	assert.True(t, errors.Is(err, domain.ErrInvalidColor))

	_, err = rec.ChangeCell(1, 0, 1)
	assert.True(t, errors.Is(err, domain.ErrCellOutOfRange))

	_, err = rec.SelectRegion(domain.Rect{MinRow: 0, MaxRow: 0, MinCol: 0, MaxCol: 2}, 1)
	assert.True(t, errors.Is(err, domain.ErrCellOutOfRange))

	_, err = rec.FillAll(-1)
	assert.True(t, errors.Is(err, domain.ErrInvalidColor))

	assert.Zero(t, rec.ActionCount())
}

func TestRecorder_LimitIsHardStop(t *testing.T) {
	rec, store, lc := newRecorder(t, domain.Grid{{0, 0}}, 3, 2)

	out, err := rec.ChangeCell(0, 0, 1)
	require.NoError(t, err)
	assert.Empty(t, out.Signals)

	out, err = rec.ChangeCell(0, 1, 1)
	require.NoError(t, err)
	require.Len(t, out.Signals, 1)
	assert.Equal(t, domain.SignalWarning, out.Signals[0].Kind)
	assert.Equal(t, 2, out.Signals[0].ActionCount)

	out, err = rec.Reset()
	require.NoError(t, err)
	require.Len(t, out.Signals, 1)
	assert.Equal(t, domain.SignalLimitReached, out.Signals[0].Kind)
	assert.Equal(t, 3, out.Signals[0].Limit)
	assert.Equal(t, domain.SessionLimitReached, lc.State())

	before := store.Get()
	refused := []func() (Outcome, error){
		func() (Outcome, error) { return rec.ChangeCell(0, 0, 4) },
		func() (Outcome, error) { return rec.ChangeCell(0, 0, 0) },
		func() (Outcome, error) { return rec.Reset() },
		func() (Outcome, error) { return rec.FillAll(9) },
		func() (Outcome, error) { return rec.SelectRegion(domain.Rect{}, 2) },
		func() (Outcome, error) { return rec.Resize(2, 2) },
		func() (Outcome, error) { return rec.CopyFromInput() },
		func() (Outcome, error) { return rec.TestSolution(domain.Grid{{0, 0}}) },
	}
	for _, fn := range refused {
		out, err := fn()
		assert.True(t, errors.Is(err, domain.ErrLimitExceeded))
		assert.False(t, out.Committed())
	}
	assert.Equal(t, before, store.Get())
	assert.Equal(t, 3, rec.ActionCount())
	assert.Len(t, rec.Signals(), 2)
}

func TestRecorder_RefusesWhenNotActive(t *testing.T) {
	store, err := NewGridStore(domain.Grid{{0}})
	require.NoError(t, err)
	lc := NewLifecycle()
	rec := NewRecorder(store, domain.Grid{{0}}, NewSafetyLimiter(10, 9), lc, fixedClock())

	_, err = rec.ChangeCell(0, 0, 1)
	assert.True(t, errors.Is(err, domain.ErrSessionNotActive))

	require.NoError(t, lc.Transition(domain.SessionActive))
	require.NoError(t, lc.Transition(domain.SessionClosed))
	_, err = rec.ChangeCell(0, 0, 1)
	assert.True(t, errors.Is(err, domain.ErrSessionClosed))
	assert.Equal(t, domain.Grid{{0}}, store.Get())
}

func TestRecorder_TestSolution(t *testing.T) {
	rec, store, _ := newRecorder(t, domain.Grid{{1, 2}, {3, 4}}, 1000, 900)

	out, err := rec.TestSolution(domain.Grid{{1, 2}, {3, 5}})
	require.NoError(t, err)
	require.True(t, out.Committed())
	assert.Equal(t, &domain.SolutionCheck{Result: domain.CheckIncorrect, IncorrectCells: 1}, out.Action.SolutionCheck)

	out, err = rec.TestSolution(domain.Grid{{1, 2}, {3, 4}})
	require.NoError(t, err)
	assert.Equal(t, domain.CheckCorrect, out.Action.Result)

	out, err = rec.TestSolution(domain.Grid{{1}})
	require.NoError(t, err)
	assert.Equal(t, domain.CheckSizeMismatch, out.Action.Result)
	assert.Equal(t, 3, out.Action.SequenceNumber)

	assert.Equal(t, domain.Grid{{1, 2}, {3, 4}}, store.Get())
}

func TestRecorder_Subscribers(t *testing.T) {
	rec, _, _ := newRecorder(t, domain.Grid{{0}}, 2, 1)

	var actions []domain.Action
	var signals []domain.Signal
	rec.OnAction(func(a domain.Action) { actions = append(actions, a) })
	rec.OnSignal(func(s domain.Signal) { signals = append(signals, s) })

	_, err := rec.ChangeCell(0, 0, 1)
	require.NoError(t, err)
	_, err = rec.ChangeCell(0, 0, 1)
	require.NoError(t, err)
	_, err = rec.ChangeCell(0, 0, 2)
	require.NoError(t, err)

	assert.Len(t, actions, 2)
	require.Len(t, signals, 2)
	assert.Equal(t, domain.SignalWarning, signals[0].Kind)
	assert.Equal(t, domain.SignalLimitReached, signals[1].Kind)
}

func TestRecorder_Since(t *testing.T) {
	rec, _, _ := newRecorder(t, domain.Grid{{0, 0}}, 1000, 900)
	for c := 0; c < 2; c++ {
		_, err := rec.ChangeCell(0, c, 1)
		require.NoError(t, err)
	}
	_, err := rec.Reset()
	require.NoError(t, err)

	assert.Len(t, rec.Since(0), 3)
	assert.Len(t, rec.Since(-5), 3)
	got := rec.Since(1)
	require.Len(t, got, 2)
	assert.Equal(t, 2, got[0].SequenceNumber)
	assert.Empty(t, rec.Since(3))
}

func TestAction_JSONShape(t *testing.T) {
	rec, _, _ := newRecorder(t, domain.Grid{{0, 0}, {0, 0}}, 1000, 900)

	out, err := rec.ChangeCell(0, 0, 1)
	require.NoError(t, err)
	raw, err := json.Marshal(out.Action)
	require.NoError(t, err)
	assert.JSONEq(t, `{"sequenceNumber":1,"type":"cell_change","timestamp":1700000000000,"row":0,"col":0,"oldValue":0,"newValue":1}`, string(raw))

	out, err = rec.SelectRegion(domain.Rect{MinRow: 0, MaxRow: 1, MinCol: 0, MaxCol: 0}, 3)
	require.NoError(t, err)
	raw, err = json.Marshal(out.Action)
	require.NoError(t, err)
	assert.JSONEq(t, `{"sequenceNumber":2,"type":"select_region","timestamp":1700000000000,"color":3,"startRow":0,"startCol":0,"endRow":1,"endCol":0,"cellsAffected":2}`, string(raw))

	out, err = rec.Reset()
	require.NoError(t, err)
	raw, err = json.Marshal(out.Action)
	require.NoError(t, err)
	assert.JSONEq(t, `{"sequenceNumber":3,"type":"reset","timestamp":1700000000000}`, string(raw))

	var back domain.Action
	require.NoError(t, json.Unmarshal([]byte(`{"sequenceNumber":4,"type":"resize","timestamp":1,"newRows":3,"newCols":2}`), &back))
	require.NotNil(t, back.ResizeChange)
	assert.Equal(t, 3, back.NewRows)
	assert.Nil(t, back.CellChange)
}
