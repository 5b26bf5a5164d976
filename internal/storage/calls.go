package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ashita-ai/conductor/internal/model"
)

// SaveCall inserts a call record. ID and CreatedAt are filled when empty.
func (db *DB) SaveCall(ctx context.Context, rec model.CallRecord) (model.CallRecord, error) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.Meta == nil {
		rec.Meta = map[string]any{}
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO calls (id, user_id, task_id, direction, channel, status, transcript, summary, meta, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)`,
		rec.ID, rec.UserID, rec.TaskID, string(rec.Direction), rec.Channel, rec.Status,
		rec.Transcript, rec.Summary, rec.Meta, rec.CreatedAt,
	)
	if err != nil {
		return model.CallRecord{}, fmt.Errorf("storage: save call: %w", err)
	}
	return rec, nil
}

// UpdateCallStatus applies a provider status callback to the record carrying
// the given provider call id.
func (db *DB) UpdateCallStatus(ctx context.Context, providerCallID, status string) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE calls SET status = $1, updated_at = now() WHERE meta->>'provider_call_id' = $2`,
		status, providerCallID,
	)
	if err != nil {
		return fmt.Errorf("storage: update call status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: call %s: %w", providerCallID, ErrNotFound)
	}
	return nil
}

// ListCallsByTask returns the call records dispatched for a task, oldest first.
func (db *DB) ListCallsByTask(ctx context.Context, taskID uuid.UUID) ([]model.CallRecord, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, user_id, task_id, direction, channel, status, transcript, summary, meta, created_at
		 FROM calls WHERE task_id = $1 ORDER BY created_at`, taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list calls: %w", err)
	}
	defer rows.Close()

	var calls []model.CallRecord
	for rows.Next() {
		var c model.CallRecord
		if err := rows.Scan(
			&c.ID, &c.UserID, &c.TaskID, &c.Direction, &c.Channel, &c.Status,
			&c.Transcript, &c.Summary, &c.Meta, &c.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("storage: scan call: %w", err)
		}
		calls = append(calls, c)
	}
	return calls, rows.Err()
}
