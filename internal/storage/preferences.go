package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ashita-ai/conductor/internal/model"
)

// GetPreferences returns a user's callback preferences, or ErrNotFound when
// the user never saved any.
func (db *DB) GetPreferences(ctx context.Context, userID string) (model.CallbackPreferences, error) {
	var p model.CallbackPreferences
	err := db.pool.QueryRow(ctx,
		`SELECT user_id, phone_number, call_me_when_finished, quiet_hours_enabled,
		        quiet_hours_start, quiet_hours_end, timezone_offset_minutes, updated_at
		 FROM callback_preferences WHERE user_id = $1`, userID,
	).Scan(
		&p.UserID, &p.PhoneNumber, &p.CallMeWhenFinished, &p.QuietHours.Enabled,
		&p.QuietHours.Start, &p.QuietHours.End, &p.QuietHours.TimezoneOffsetMinutes, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.CallbackPreferences{}, fmt.Errorf("storage: preferences for %s: %w", userID, ErrNotFound)
		}
		return model.CallbackPreferences{}, fmt.Errorf("storage: get preferences: %w", err)
	}
	return p, nil
}

// UpsertPreferences creates or replaces a user's callback preferences.
func (db *DB) UpsertPreferences(ctx context.Context, p model.CallbackPreferences) (model.CallbackPreferences, error) {
	p.UpdatedAt = time.Now().UTC()
	_, err := db.pool.Exec(ctx,
		`INSERT INTO callback_preferences (user_id, phone_number, call_me_when_finished, quiet_hours_enabled,
		                                   quiet_hours_start, quiet_hours_end, timezone_offset_minutes, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (user_id) DO UPDATE SET
		     phone_number = EXCLUDED.phone_number,
		     call_me_when_finished = EXCLUDED.call_me_when_finished,
		     quiet_hours_enabled = EXCLUDED.quiet_hours_enabled,
		     quiet_hours_start = EXCLUDED.quiet_hours_start,
		     quiet_hours_end = EXCLUDED.quiet_hours_end,
		     timezone_offset_minutes = EXCLUDED.timezone_offset_minutes,
		     updated_at = EXCLUDED.updated_at`,
		p.UserID, p.PhoneNumber, p.CallMeWhenFinished, p.QuietHours.Enabled,
		p.QuietHours.Start, p.QuietHours.End, p.QuietHours.TimezoneOffsetMinutes, p.UpdatedAt,
	)
	if err != nil {
		return model.CallbackPreferences{}, fmt.Errorf("storage: upsert preferences: %w", err)
	}
	return p, nil
}
