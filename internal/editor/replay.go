package editor

import (
	"fmt"
	"reflect"

	"github.com/arc-hci/arcgrid/internal/domain"
)

// Replay applies a recorded action log to input and returns the final grid.
// Sequence numbers must run 1..n without gaps, and every cell_change must
// agree with the grid it is applied to.
func Replay(input domain.Grid, actions []domain.Action) (domain.Grid, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	g := input.Clone()
	for i, a := range actions {
		if a.SequenceNumber != i+1 {
			return nil, replayError(a, fmt.Sprintf("expected sequence number %d", i+1))
		}
		next, err := applyAction(g, input, a)
		if err != nil {
			return nil, err
		}
		g = next
	}
	return g, nil
}

func applyAction(g, input domain.Grid, a domain.Action) (domain.Grid, error) {
	switch a.Type {
	case domain.ActionCellChange:
		cc := a.CellChange
		if cc == nil {
			return nil, replayError(a, "missing cell payload")
		}
		if !g.InBounds(cc.Row, cc.Col) || !domain.ValidColor(cc.NewValue) {
			return nil, replayError(a, fmt.Sprintf("cell (%d,%d) color %d not applicable", cc.Row, cc.Col, cc.NewValue))
		}
		if g[cc.Row][cc.Col] != cc.OldValue {
			return nil, replayError(a, fmt.Sprintf("cell (%d,%d) holds %d, log says %d", cc.Row, cc.Col, g[cc.Row][cc.Col], cc.OldValue))
		}
		return WithCell(g, cc.Row, cc.Col, cc.NewValue), nil

	case domain.ActionSelectRegion:
		rc := a.RegionChange
		if rc == nil || a.Color == nil || !domain.ValidColor(*a.Color) {
			return nil, replayError(a, "missing region payload or color")
		}
		rect := rc.Rect()
		if !g.InBounds(rect.MinRow, rect.MinCol) || !g.InBounds(rect.MaxRow, rect.MaxCol) {
			return nil, replayError(a, "region outside grid")
		}
		next, _ := WithRect(g, rect, *a.Color)
		return next, nil

	case domain.ActionFillAll:
		if a.Color == nil || !domain.ValidColor(*a.Color) {
			return nil, replayError(a, "missing fill color")
		}
		return Filled(g, *a.Color), nil

	case domain.ActionReset:
		return Blank(g.Rows(), g.Cols(), 0), nil

	case domain.ActionCopyFromInput:
		return input.Clone(), nil

	case domain.ActionResize:
		rs := a.ResizeChange
		if rs == nil || !domain.ValidDimensions(rs.NewRows, rs.NewCols) {
			return nil, replayError(a, "missing or invalid resize payload")
		}
		return Resized(g, rs.NewRows, rs.NewCols), nil

	case domain.ActionTestSolution:
		return g, nil
	}
	return nil, replayError(a, fmt.Sprintf("unknown action type %q", a.Type))
}

// VerifyPrefix checks that log begins with every action in recorded, in
// order. Timestamps are not compared.
func VerifyPrefix(recorded, log []domain.Action) error {
	if len(log) < len(recorded) {
		return domain.NewEngineError(
			domain.ErrInvalidActionLog.Code,
			fmt.Sprintf("%s: log has %d actions, %d already recorded", domain.ErrInvalidActionLog.Message, len(log), len(recorded)),
		)
	}
	for i, want := range recorded {
		got := log[i]
		want.Timestamp, got.Timestamp = 0, 0
		if !reflect.DeepEqual(want, got) {
			return replayError(log[i], "differs from the recorded action")
		}
	}
	return nil
}

func replayError(a domain.Action, msg string) error {
	return domain.NewEngineError(
		domain.ErrInvalidActionLog.Code,
		fmt.Sprintf("%s: action %d (%s): %s", domain.ErrInvalidActionLog.Message, a.SequenceNumber, a.Type, msg),
	)
}
