package model

import "time"

// ChatMessage is an inbound messaging-channel update normalized for storage.
type ChatMessage struct {
	Channel   string    `json:"channel"`
	ChatID    string    `json:"chatId"`
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	Text      string    `json:"text"`
	MessageID int64     `json:"messageId"`
	Date      time.Time `json:"date"`
}

// ChannelTelegram identifies messages received from the Telegram bot webhook.
const ChannelTelegram = "telegram"
