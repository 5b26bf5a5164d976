package model

import (
	"time"

	"github.com/google/uuid"
)

// QuietHours is a local-time window in "HH:MM" form. Start > End means the
// window wraps through midnight.
type QuietHours struct {
	Enabled               bool   `json:"enabled"`
	Start                 string `json:"start"`
	End                   string `json:"end"`
	TimezoneOffsetMinutes int    `json:"timezone_offset_minutes"`
}

// CallbackPreferences is the user-owned callback configuration.
type CallbackPreferences struct {
	UserID             string     `json:"user_id"`
	PhoneNumber        string     `json:"phone_number"`
	CallMeWhenFinished bool       `json:"call_me_when_finished"`
	QuietHours         QuietHours `json:"quiet_hours"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// CallDirection is inbound or outbound relative to the platform.
type CallDirection string

const (
	CallInbound  CallDirection = "inbound"
	CallOutbound CallDirection = "outbound"
)

// ChannelPhone is the call channel used for voice callbacks.
const ChannelPhone = "phone"

// CallRecord is one dispatched call attempt. Append-only from the
// orchestrator's side.
type CallRecord struct {
	ID         uuid.UUID      `json:"id"`
	UserID     string         `json:"user_id"`
	TaskID     *uuid.UUID     `json:"task_id,omitempty"`
	Direction  CallDirection  `json:"direction"`
	Channel    string         `json:"channel"`
	Status     string         `json:"status"`
	Transcript string         `json:"transcript"`
	Summary    string         `json:"summary"`
	Meta       map[string]any `json:"meta"`
	CreatedAt  time.Time      `json:"created_at"`
}

// CallbackResult reports whether a callback was queued and why not.
type CallbackResult struct {
	Queued   bool   `json:"queued"`
	Reason   string `json:"reason,omitempty"`
	CallID   string `json:"callId,omitempty"`
	Provider string `json:"provider,omitempty"`

	// QuietMinutesLeft is set when quiet hours blocked the call: minutes
	// until the window ends in the user's local time.
	QuietMinutesLeft int `json:"quietMinutesLeft,omitempty"`
}

// Callback gate reasons.
const (
	ReasonNoPhone         = "no phone number"
	ReasonDisabled        = "callback disabled"
	ReasonQuietHours      = "quiet hours"
	ReasonVoiceDisabled   = "voice disabled"
	ReasonSynthesisFailed = "voice synthesis failed"
	ReasonCallFailed      = "failed to place callback call"
	ReasonSaveFailed      = "failed to save callback call"
	ReasonPrefsFailed     = "failed to load callback preferences"
)
