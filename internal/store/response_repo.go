package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/arc-hci/arcgrid/internal/domain"
)

// ResponseRepo stores the opaque questionnaire payload submitted when a
// participant completes a phase.
type ResponseRepo struct{}

// SaveTx inserts a phase response within an existing transaction.
func (r *ResponseRepo) SaveTx(ctx context.Context, tx *sql.Tx, resp domain.PhaseResponse) error {
	const q = `INSERT INTO phase_responses (attempt_id, phase, payload_json, created_at)
VALUES (?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, q,
		resp.AttemptID,
		string(resp.Phase),
		resp.PayloadJSON,
		resp.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save phase response: %w", err)
	}
	return nil
}

// GetLatest returns the most recent response for an attempt and phase.
// Returns nil if none exists.
func (r *ResponseRepo) GetLatest(ctx context.Context, db *sql.DB, attemptID string, phase domain.Phase) (*domain.PhaseResponse, error) {
	const q = `SELECT id, attempt_id, phase, payload_json, created_at
FROM phase_responses
WHERE attempt_id = ? AND phase = ?
ORDER BY id DESC
LIMIT 1`

	row := db.QueryRowContext(ctx, q, attemptID, string(phase))

	var resp domain.PhaseResponse
	var p string
	err := row.Scan(&resp.ID, &resp.AttemptID, &p, &resp.PayloadJSON, &resp.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get latest phase response: %w", err)
	}
	resp.Phase = domain.Phase(p)
	return &resp, nil
}

// ListByAttempt returns every response of an attempt in submission order.
func (r *ResponseRepo) ListByAttempt(ctx context.Context, db *sql.DB, attemptID string) ([]domain.PhaseResponse, error) {
	const q = `SELECT id, attempt_id, phase, payload_json, created_at
FROM phase_responses
WHERE attempt_id = ?
ORDER BY id ASC`

	rows, err := db.QueryContext(ctx, q, attemptID)
	if err != nil {
		return nil, fmt.Errorf("list phase responses: %w", err)
	}
	defer rows.Close()

	var out []domain.PhaseResponse
	for rows.Next() {
		var resp domain.PhaseResponse
		var p string
		if err := rows.Scan(&resp.ID, &resp.AttemptID, &p, &resp.PayloadJSON, &resp.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan phase response: %w", err)
		}
		resp.Phase = domain.Phase(p)
		out = append(out, resp)
	}
	return out, rows.Err()
}
