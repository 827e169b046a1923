package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/arc-hci/arcgrid/internal/domain"
)

// ActionRepo persists grid editor actions as trace rows. The full action is
// kept in payload_json; the cell columns are denormalized for analysis.
type ActionRepo struct{}

// TraceFor builds the trace row for one action. startedAtMs anchors OffsetMs.
func TraceFor(attemptID string, startedAtMs int64, a domain.Action) (domain.ActionTrace, error) {
	raw, err := json.Marshal(a)
	if err != nil {
		return domain.ActionTrace{}, fmt.Errorf("encode action %d: %w", a.SequenceNumber, err)
	}
	tr := domain.ActionTrace{
		ActionID:       uuid.NewString(),
		AttemptID:      attemptID,
		SequenceNumber: a.SequenceNumber,
		ActionType:     a.Type,
		TimestampMs:    a.Timestamp,
		OffsetMs:       max(a.Timestamp-startedAtMs, 0),
		PayloadJSON:    string(raw),
	}
	switch {
	case a.CellChange != nil:
		row, col, before, after := a.CellChange.Row, a.CellChange.Col, a.CellChange.OldValue, a.CellChange.NewValue
		tr.CellRow, tr.CellColumn, tr.ColorBefore, tr.ColorAfter = &row, &col, &before, &after
	case a.RegionChange != nil:
		row, col := a.RegionChange.StartRow, a.RegionChange.StartCol
		tr.CellRow, tr.CellColumn = &row, &col
		tr.ColorAfter = a.Color
	case a.Color != nil:
		tr.ColorAfter = a.Color
	}
	return tr, nil
}

// AppendBatchTx appends actions for an attempt within a transaction. Sequence
// numbers must continue the stored log; a number at or below the last stored
// one fails with ErrDuplicateAction and nothing is written by this call.
func (r *ActionRepo) AppendBatchTx(ctx context.Context, tx *sql.Tx, attemptID string, startedAtMs int64, actions []domain.Action) error {
	var last int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence_number), 0) FROM action_traces WHERE attempt_id = ?`, attemptID,
	).Scan(&last); err != nil {
		return fmt.Errorf("read last action seq: %w", err)
	}

	const q = `INSERT INTO action_traces (action_id, attempt_id, sequence_number, action_type, cell_row, cell_column, color_value_before, color_value_after, timestamp_ms, offset_ms, payload_json)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	for _, a := range actions {
		if a.SequenceNumber <= last {
			return domain.NewEngineError(domain.ErrDuplicateAction.Code,
				fmt.Sprintf("%s: attempt %s seq %d (stored up to %d)", domain.ErrDuplicateAction.Message, attemptID, a.SequenceNumber, last))
		}
		tr, err := TraceFor(attemptID, startedAtMs, a)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, q,
			tr.ActionID,
			tr.AttemptID,
			tr.SequenceNumber,
			string(tr.ActionType),
			nullableInt(tr.CellRow),
			nullableInt(tr.CellColumn),
			nullableInt(tr.ColorBefore),
			nullableInt(tr.ColorAfter),
			tr.TimestampMs,
			tr.OffsetMs,
			tr.PayloadJSON,
		)
		if err != nil {
			return fmt.Errorf("append action %d: %w", a.SequenceNumber, err)
		}
		last = a.SequenceNumber
	}
	return nil
}

// ListByAttempt returns trace rows with a sequence number greater than
// sinceSeq, ordered ascending.
func (r *ActionRepo) ListByAttempt(ctx context.Context, db *sql.DB, attemptID string, sinceSeq int) ([]domain.ActionTrace, error) {
	const q = `SELECT action_id, attempt_id, sequence_number, action_type, cell_row, cell_column, color_value_before, color_value_after, timestamp_ms, offset_ms, payload_json
FROM action_traces
WHERE attempt_id = ? AND sequence_number > ?
ORDER BY sequence_number ASC`

	rows, err := db.QueryContext(ctx, q, attemptID, sinceSeq)
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	defer rows.Close()

	var out []domain.ActionTrace
	for rows.Next() {
		var tr domain.ActionTrace
		var kind string
		var row, col, before, after sql.NullInt64
		if err := rows.Scan(&tr.ActionID, &tr.AttemptID, &tr.SequenceNumber, &kind, &row, &col, &before, &after,
			&tr.TimestampMs, &tr.OffsetMs, &tr.PayloadJSON); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		tr.ActionType = domain.ActionType(kind)
		tr.CellRow, tr.CellColumn = intOrNil(row), intOrNil(col)
		tr.ColorBefore, tr.ColorAfter = intOrNil(before), intOrNil(after)
		out = append(out, tr)
	}
	return out, rows.Err()
}

// Actions rebuilds the stored action log of an attempt.
func (r *ActionRepo) Actions(ctx context.Context, db *sql.DB, attemptID string, sinceSeq int) ([]domain.Action, error) {
	traces, err := r.ListByAttempt(ctx, db, attemptID, sinceSeq)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Action, 0, len(traces))
	for _, tr := range traces {
		var a domain.Action
		if err := json.Unmarshal([]byte(tr.PayloadJSON), &a); err != nil {
			return nil, fmt.Errorf("decode action %d: %w", tr.SequenceNumber, err)
		}
		out = append(out, a)
	}
	return out, nil
}

// Count returns the number of stored actions for an attempt.
func (r *ActionRepo) Count(ctx context.Context, db *sql.DB, attemptID string) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM action_traces WHERE attempt_id = ?`, attemptID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count actions: %w", err)
	}
	return n, nil
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func intOrNil(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
