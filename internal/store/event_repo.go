package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/arc-hci/arcgrid/internal/domain"
)

// EventFilter narrows an attempt's phase event log. A zero EventFilter
// selects every event.
type EventFilter struct {
	SinceSeq  int64
	EventType string
}

// EventRepo handles persistence for PhaseEvent records.
type EventRepo struct{}

// AppendTx inserts a phase event within an existing transaction.
func (r *EventRepo) AppendTx(ctx context.Context, tx *sql.Tx, event domain.PhaseEvent) error {
	if event.EventType == "" {
		return fmt.Errorf("append phase event: seq %d has no event type", event.SeqNo)
	}
	const q = `INSERT INTO phase_events (attempt_id, seq_no, phase, event_type, payload_json, created_at)
VALUES (?, ?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, q,
		event.AttemptID,
		event.SeqNo,
		string(event.Phase),
		event.EventType,
		event.PayloadJSON,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append phase event: %w", err)
	}
	return nil
}

// ListByAttempt returns an attempt's events matching f, ordered by sequence
// number ascending.
func (r *EventRepo) ListByAttempt(ctx context.Context, db *sql.DB, attemptID string, f EventFilter) ([]domain.PhaseEvent, error) {
	q := `SELECT id, attempt_id, seq_no, phase, event_type, payload_json, created_at
FROM phase_events
WHERE attempt_id = ? AND seq_no > ?`
	args := []any{attemptID, f.SinceSeq}
	if f.EventType != "" {
		q += ` AND event_type = ?`
		args = append(args, f.EventType)
	}
	q += ` ORDER BY seq_no ASC`

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list phase events: %w", err)
	}
	defer rows.Close()

	var events []domain.PhaseEvent
	for rows.Next() {
		var e domain.PhaseEvent
		var phase string
		if err := rows.Scan(&e.ID, &e.AttemptID, &e.SeqNo, &phase, &e.EventType, &e.PayloadJSON, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan phase event: %w", err)
		}
		e.Phase = domain.Phase(phase)
		events = append(events, e)
	}
	return events, rows.Err()
}

// CountAttempts returns the number of distinct attempts that logged at least
// one event of eventType.
func (r *EventRepo) CountAttempts(ctx context.Context, db *sql.DB, eventType string) (int, error) {
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT attempt_id) FROM phase_events WHERE event_type = ?`, eventType,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s attempts: %w", eventType, err)
	}
	return n, nil
}
