package storage

import (
	"context"
	"fmt"

	"github.com/ashita-ai/conductor/internal/model"
)

// SaveChatMessage stores an inbound chat message. Redelivered updates with
// the same (channel, chat_id, message_id) are ignored.
func (db *DB) SaveChatMessage(ctx context.Context, msg model.ChatMessage) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO chat_messages (channel, chat_id, user_id, username, text, message_id, sent_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (channel, chat_id, message_id) DO NOTHING`,
		msg.Channel, msg.ChatID, msg.UserID, msg.Username, msg.Text, msg.MessageID, msg.Date,
	)
	if err != nil {
		return fmt.Errorf("storage: save chat message: %w", err)
	}
	return nil
}

// CountChatMessages returns how many messages are stored for a chat.
func (db *DB) CountChatMessages(ctx context.Context, channel, chatID string) (int, error) {
	var n int
	err := db.pool.QueryRow(ctx,
		`SELECT count(*) FROM chat_messages WHERE channel = $1 AND chat_id = $2`, channel, chatID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("storage: count chat messages: %w", err)
	}
	return n, nil
}
