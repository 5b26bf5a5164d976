package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Field length limits for request payloads.
const (
	MaxGoalLen   = 4 * 1024
	MaxActionLen = 100
	MaxToneText  = 16 * 1024
)

// APIResponse is the standard response envelope for all HTTP API responses.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// APIError is the standard error response envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ResponseMeta contains request metadata included in every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorCode constants for standard API error codes.
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeForbidden     = "FORBIDDEN"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeBadGateway    = "DELEGATE_FAILED"
	ErrCodeRateLimited   = "RATE_LIMITED"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// RunTaskRequest is the request body for POST /v1/tasks.
type RunTaskRequest struct {
	Goal          string     `json:"goal"`
	RelatedTaskID *uuid.UUID `json:"related_task_id,omitempty"`
	DemoMode      bool       `json:"demo_mode,omitempty"`
	// Callback requests a voice callback once the task finishes.
	Callback bool `json:"callback,omitempty"`
}

// Validate checks the goal before any planning happens.
func (r RunTaskRequest) Validate() error {
	goal := strings.TrimSpace(r.Goal)
	if goal == "" {
		return fmt.Errorf("goal is required")
	}
	if len(r.Goal) > MaxGoalLen {
		return fmt.Errorf("goal exceeds maximum length of %d bytes", MaxGoalLen)
	}
	return nil
}

// RunTaskResponse is returned by POST /v1/tasks. Message is the chat-ready
// completion text with per-step marks, download links and the dashboard link.
type RunTaskResponse struct {
	TaskID       uuid.UUID       `json:"task_id"`
	TaskType     TaskType        `json:"task_type"`
	Status       TaskStatus      `json:"status"`
	Results      []SubtaskResult `json:"results"`
	DashboardURL string          `json:"dashboard_url"`
	Message      string          `json:"message"`
	Callback     *CallbackResult `json:"callback,omitempty"`
}

// DelegateRequest is the request body for POST /v1/delegate.
type DelegateRequest struct {
	AgentName AgentName      `json:"agent_name"`
	Action    string         `json:"action"`
	Input     map[string]any `json:"input"`
	DemoMode  bool           `json:"demo_mode"`
}

// Validate checks that the delegate request addresses a known agent.
func (r DelegateRequest) Validate() error {
	if r.AgentName == "" {
		return fmt.Errorf("agent_name is required")
	}
	if !r.AgentName.Valid() {
		return fmt.Errorf("unknown agent_name %q", r.AgentName)
	}
	if r.Action == "" {
		return fmt.Errorf("action is required")
	}
	if len(r.Action) > MaxActionLen {
		return fmt.Errorf("action exceeds maximum length of %d characters", MaxActionLen)
	}
	return nil
}

// DelegateResponse is returned by POST /v1/delegate on success.
type DelegateResponse struct {
	Output map[string]any `json:"output"`
}

// CallbackRequest is the request body for POST /v1/tasks/{task_id}/callback.
type CallbackRequest struct {
	Force bool `json:"force"`
}

// ToneRequest is the request body for POST /v1/tone.
type ToneRequest struct {
	Text string `json:"text"`
}

// UpdatePreferencesRequest is the request body for PUT /v1/preferences.
type UpdatePreferencesRequest struct {
	PhoneNumber        string     `json:"phone_number"`
	CallMeWhenFinished bool       `json:"call_me_when_finished"`
	QuietHours         QuietHours `json:"quiet_hours"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Postgres string `json:"postgres"`
	Uptime   int64  `json:"uptime_seconds"`
}

// CallStatusUpdate is the body of POST /webhooks/voice/status.
type CallStatusUpdate struct {
	CallID string `json:"call_id"`
	Status string `json:"status"`
}
