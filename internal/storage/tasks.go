package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ashita-ai/conductor/internal/model"
)

// CreateTask inserts a task in the running state. The caller assigns the ID.
func (db *DB) CreateTask(ctx context.Context, task model.Task) error {
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO tasks (id, user_id, goal, task_type, status, related_task_id, plan, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		task.ID, task.UserID, task.Goal, string(task.TaskType), string(model.TaskStatusRunning),
		task.RelatedTaskID, task.Plan, task.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: create task: %w", err)
	}
	return nil
}

// CompleteTask records the sub-task results and final status of a running task.
// Results are stored in plan order. The whole write is retried on
// serialization conflicts.
func (db *DB) CompleteTask(ctx context.Context, id uuid.UUID, status model.TaskStatus, summary string, results []model.SubtaskResult) error {
	now := time.Now().UTC()
	return WithRetry(ctx, writeRetries, writeBaseDelay, func() error {
		return pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
			tag, err := tx.Exec(ctx,
				`UPDATE tasks SET status = $1, summary = $2, completed_at = $3
				 WHERE id = $4 AND status = 'running'`,
				string(status), summary, now, id,
			)
			if err != nil {
				return fmt.Errorf("storage: complete task: %w", err)
			}
			if tag.RowsAffected() == 0 {
				return fmt.Errorf("storage: task %s not running: %w", id, ErrNotFound)
			}
			if len(results) == 0 {
				return nil
			}
			_, err = tx.CopyFrom(ctx,
				pgx.Identifier{"subtask_results"},
				[]string{"id", "task_id", "position", "agent", "action", "status", "input", "output", "error", "retryable", "duration_ms", "created_at"},
				pgx.CopyFromSlice(len(results), func(i int) ([]any, error) {
					r := results[i]
					if r.ID == uuid.Nil {
						r.ID = uuid.New()
					}
					if r.CreatedAt.IsZero() {
						r.CreatedAt = now
					}
					input := r.Input
					if input == nil {
						input = map[string]any{}
					}
					return []any{
						r.ID, id, i, string(r.Agent), r.Action, string(r.Status),
						input, r.Output, r.Error, r.Retryable, r.DurationMS, r.CreatedAt,
					}, nil
				}),
			)
			if err != nil {
				return fmt.Errorf("storage: copy subtask results: %w", err)
			}
			return nil
		})
	})
}

// GetTask retrieves a task and its ordered results, scoped to the owning user.
func (db *DB) GetTask(ctx context.Context, userID string, id uuid.UUID) (model.Task, error) {
	var t model.Task
	err := db.pool.QueryRow(ctx,
		`SELECT id, user_id, goal, task_type, status, summary, related_task_id, plan, created_at, completed_at
		 FROM tasks WHERE id = $1 AND user_id = $2`, id, userID,
	).Scan(
		&t.ID, &t.UserID, &t.Goal, &t.TaskType, &t.Status, &t.Summary,
		&t.RelatedTaskID, &t.Plan, &t.CreatedAt, &t.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Task{}, fmt.Errorf("storage: task %s: %w", id, ErrNotFound)
		}
		return model.Task{}, fmt.Errorf("storage: get task: %w", err)
	}

	results, err := db.listSubtaskResults(ctx, id)
	if err != nil {
		return model.Task{}, err
	}
	t.Results = results
	return t, nil
}

// ListTasks returns a user's most recent tasks without their results.
func (db *DB) ListTasks(ctx context.Context, userID string, limit int) ([]model.Task, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := db.pool.Query(ctx,
		`SELECT id, user_id, goal, task_type, status, summary, related_task_id, plan, created_at, completed_at
		 FROM tasks WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`, userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		var t model.Task
		if err := rows.Scan(
			&t.ID, &t.UserID, &t.Goal, &t.TaskType, &t.Status, &t.Summary,
			&t.RelatedTaskID, &t.Plan, &t.CreatedAt, &t.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("storage: scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (db *DB) listSubtaskResults(ctx context.Context, taskID uuid.UUID) ([]model.SubtaskResult, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, agent, action, status, input, output, error, retryable, duration_ms, created_at
		 FROM subtask_results WHERE task_id = $1 ORDER BY position`, taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list subtask results: %w", err)
	}
	defer rows.Close()

	var results []model.SubtaskResult
	for rows.Next() {
		var r model.SubtaskResult
		if err := rows.Scan(
			&r.ID, &r.Agent, &r.Action, &r.Status, &r.Input, &r.Output,
			&r.Error, &r.Retryable, &r.DurationMS, &r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("storage: scan subtask result: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
