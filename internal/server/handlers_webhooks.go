package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ashita-ai/conductor/internal/auth"
	"github.com/ashita-ai/conductor/internal/delegate"
	"github.com/ashita-ai/conductor/internal/model"
)

// headerTelegramSecret is the header Telegram echoes back from setWebhook's
// secret_token.
const headerTelegramSecret = "X-Telegram-Bot-Api-Secret-Token"

// telegramUpdate is the subset of a Telegram Bot API update we store.
type telegramUpdate struct {
	UpdateID      int64            `json:"update_id"`
	Message       *telegramMessage `json:"message"`
	EditedMessage *telegramMessage `json:"edited_message"`
}

type telegramMessage struct {
	MessageID int64 `json:"message_id"`
	From      *struct {
		ID       int64  `json:"id"`
		Username string `json:"username"`
	} `json:"from"`
	Chat struct {
		ID int64 `json:"id"`
	} `json:"chat"`
	Date int64  `json:"date"`
	Text string `json:"text"`
}

func (m *telegramMessage) normalize() model.ChatMessage {
	msg := model.ChatMessage{
		Channel:   model.ChannelTelegram,
		ChatID:    strconv.FormatInt(m.Chat.ID, 10),
		Text:      m.Text,
		MessageID: m.MessageID,
		Date:      time.Unix(m.Date, 0).UTC(),
	}
	if m.From != nil {
		msg.UserID = strconv.FormatInt(m.From.ID, 10)
		msg.Username = m.From.Username
	}
	return msg
}

// HandleTelegramWebhook handles POST /webhooks/telegram. The update is
// acknowledged immediately and stored in the background so Telegram does not
// retry on slow writes. Without a configured secret every update is refused.
func (h *Handlers) HandleTelegramWebhook(w http.ResponseWriter, r *http.Request) {
	if !auth.SecretsEqual(r.Header.Get(headerTelegramSecret), h.telegramSecret) {
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "invalid webhook secret")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxRequestBodyBytes)
	var update telegramUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, r, http.StatusRequestEntityTooLarge, model.ErrCodeInvalidInput, "request body too large")
			return
		}
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid update")
		return
	}

	m := update.Message
	if m == nil {
		m = update.EditedMessage
	}
	if m == nil {
		writeJSON(w, r, http.StatusOK, map[string]bool{"ok": true})
		return
	}

	msg := m.normalize()
	ctx := context.WithoutCancel(r.Context())
	h.background.Add(1)
	go func() {
		defer h.background.Done()
		ctx, cancel := context.WithTimeout(ctx, h.backgroundTimeout)
		defer cancel()
		if err := h.svc.RecordChatMessage(ctx, msg); err != nil {
			h.logger.Error("telegram: failed to store message",
				"error", err,
				"chat_id", msg.ChatID,
				"message_id", msg.MessageID,
			)
		}
	}()

	writeJSON(w, r, http.StatusOK, map[string]bool{"ok": true})
}

// HandleCallStatus handles POST /webhooks/voice/status, the telephony
// provider's call progress callback.
func (h *Handlers) HandleCallStatus(w http.ResponseWriter, r *http.Request) {
	if !auth.SecretsEqual(r.Header.Get(delegate.HeaderInternalSecret), h.internalSecret) {
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "invalid internal secret")
		return
	}

	var req model.CallStatusUpdate
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.svc.UpdateCallStatus(r.Context(), req.CallID, req.Status); err != nil {
		h.writeServiceError(w, r, err, "failed to update call status")
		return
	}
	writeJSON(w, r, http.StatusOK, req)
}
