package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/arc-hci/arcgrid/internal/domain"
)

// TaskRepo caches the ARC tasks that attempts refer to, so stored attempts
// stay interpretable when the task files change.
type TaskRepo struct{}

// EnsureTx stores a task if it is not cached yet. An existing row is left as is.
func (r *TaskRepo) EnsureTx(ctx context.Context, tx *sql.Tx, task domain.ARCTask, createdAt int64) error {
	raw, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode task %s: %w", task.ID, err)
	}
	const q = `INSERT INTO tasks (task_id, task_name, task_type, task_json, created_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(task_id) DO NOTHING`
	if _, err := tx.ExecContext(ctx, q, task.ID, task.Name, task.Type, string(raw), createdAt); err != nil {
		return fmt.Errorf("ensure task: %w", err)
	}
	return nil
}

// GetByID returns a cached task.
func (r *TaskRepo) GetByID(ctx context.Context, db *sql.DB, taskID string) (*domain.ARCTask, error) {
	var raw string
	err := db.QueryRowContext(ctx, `SELECT task_json FROM tasks WHERE task_id = ?`, taskID).Scan(&raw)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrTaskNotFound
		}
		return nil, fmt.Errorf("get task: %w", err)
	}
	var t domain.ARCTask
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return nil, fmt.Errorf("decode task %s: %w", taskID, err)
	}
	return &t, nil
}

// Count returns the number of cached tasks.
func (r *TaskRepo) Count(ctx context.Context, db *sql.DB) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count tasks: %w", err)
	}
	return n, nil
}
