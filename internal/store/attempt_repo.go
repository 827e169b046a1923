package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/arc-hci/arcgrid/internal/domain"
)

// AttemptRepo handles persistence for AttemptState records.
type AttemptRepo struct{}

// CreateTx inserts a new attempt within an existing transaction.
func (r *AttemptRepo) CreateTx(ctx context.Context, tx *sql.Tx, state domain.AttemptState) error {
	solution, err := encodeSolution(state.Solution)
	if err != nil {
		return err
	}
	const q = `INSERT INTO attempts (attempt_id, participant_id, task_id, current_phase, status, state_version, action_count, last_event_seq, is_correct, solution_json, started_at_ms, updated_at_unix)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = tx.ExecContext(ctx, q,
		state.AttemptID,
		state.ParticipantID,
		state.TaskID,
		string(state.CurrentPhase),
		string(state.Status),
		state.StateVersion,
		state.ActionCount,
		state.LastEventSeq,
		nullableBool(state.IsCorrect),
		solution,
		state.StartedAtMs,
		state.UpdatedAtUnix,
	)
	if err != nil {
		return fmt.Errorf("create attempt: %w", err)
	}
	return nil
}

// UpdateStateTx updates an attempt within a transaction using optimistic locking.
// The update only succeeds if the current state_version matches the expected version.
func (r *AttemptRepo) UpdateStateTx(ctx context.Context, tx *sql.Tx, state domain.AttemptState) error {
	solution, err := encodeSolution(state.Solution)
	if err != nil {
		return err
	}
	const q = `UPDATE attempts SET
		current_phase = ?,
		status = ?,
		state_version = state_version + 1,
		action_count = ?,
		last_event_seq = ?,
		is_correct = ?,
		solution_json = ?,
		updated_at_unix = ?
	WHERE attempt_id = ? AND state_version = ?`

	res, err := tx.ExecContext(ctx, q,
		string(state.CurrentPhase),
		string(state.Status),
		state.ActionCount,
		state.LastEventSeq,
		nullableBool(state.IsCorrect),
		solution,
		state.UpdatedAtUnix,
		state.AttemptID,
		state.StateVersion,
	)
	if err != nil {
		return fmt.Errorf("update attempt state: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrOptimisticLock
	}
	return nil
}

// GetByID retrieves an attempt by its ID.
func (r *AttemptRepo) GetByID(ctx context.Context, db *sql.DB, attemptID string) (*domain.AttemptState, error) {
	const q = `SELECT attempt_id, participant_id, task_id, current_phase, status, state_version, action_count, last_event_seq, is_correct, solution_json, started_at_ms, updated_at_unix
FROM attempts WHERE attempt_id = ?`

	row := db.QueryRowContext(ctx, q, attemptID)

	var s domain.AttemptState
	var phase, status, solution string
	var correct sql.NullBool
	err := row.Scan(&s.AttemptID, &s.ParticipantID, &s.TaskID, &phase, &status, &s.StateVersion,
		&s.ActionCount, &s.LastEventSeq, &correct, &solution, &s.StartedAtMs, &s.UpdatedAtUnix)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrAttemptNotFound
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	s.CurrentPhase = domain.Phase(phase)
	s.Status = domain.AttemptStatus(status)
	if correct.Valid {
		v := correct.Bool
		s.IsCorrect = &v
	}
	if solution != "" {
		if err := json.Unmarshal([]byte(solution), &s.Solution); err != nil {
			return nil, fmt.Errorf("decode solution: %w", err)
		}
	}
	return &s, nil
}

// Stats aggregates participant, attempt and accuracy totals. Accuracy is nil
// until at least one attempt has a correctness result.
func (r *AttemptRepo) Stats(ctx context.Context, db *sql.DB) (domain.Stats, error) {
	const q = `SELECT COUNT(DISTINCT participant_id), COUNT(*), COUNT(DISTINCT task_id), AVG(is_correct)
FROM attempts`

	var st domain.Stats
	var acc sql.NullFloat64
	if err := db.QueryRowContext(ctx, q).Scan(&st.TotalParticipants, &st.TotalAttempts, &st.UniqueTasks, &acc); err != nil {
		return domain.Stats{}, fmt.Errorf("attempt stats: %w", err)
	}
	if acc.Valid {
		v := acc.Float64
		st.Accuracy = &v
	}
	return st, nil
}

func nullableBool(b *bool) any {
	if b == nil {
		return nil
	}
	return *b
}

func encodeSolution(g domain.Grid) (string, error) {
	if g == nil {
		return "", nil
	}
	raw, err := json.Marshal(g)
	if err != nil {
		return "", fmt.Errorf("encode solution: %w", err)
	}
	return string(raw), nil
}
