package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/arc-hci/arcgrid/internal/domain"
)

// SignalRepo handles persistence for safety limiter signals.
type SignalRepo struct{}

// RecordTx inserts a signal record. A missing ID is filled with a new UUID.
func (r *SignalRepo) RecordTx(ctx context.Context, tx *sql.Tx, rec domain.SignalRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	const q = `INSERT INTO session_signals (id, attempt_id, kind, action_count, action_limit, created_at)
VALUES (?, ?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, q,
		rec.ID,
		rec.AttemptID,
		string(rec.Kind),
		rec.ActionCount,
		rec.Limit,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record signal: %w", err)
	}
	return nil
}

// ListByAttempt returns all signals for an attempt, ordered by action count.
func (r *SignalRepo) ListByAttempt(ctx context.Context, db *sql.DB, attemptID string) ([]domain.SignalRecord, error) {
	const q = `SELECT id, attempt_id, kind, action_count, action_limit, created_at
FROM session_signals
WHERE attempt_id = ?
ORDER BY action_count ASC, created_at ASC`

	rows, err := db.QueryContext(ctx, q, attemptID)
	if err != nil {
		return nil, fmt.Errorf("list signals: %w", err)
	}
	defer rows.Close()

	var records []domain.SignalRecord
	for rows.Next() {
		var s domain.SignalRecord
		var kind string
		if err := rows.Scan(&s.ID, &s.AttemptID, &kind, &s.ActionCount, &s.Limit, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		s.Kind = domain.SignalKind(kind)
		records = append(records, s)
	}
	return records, rows.Err()
}
