// Package model defines the core domain types for Conductor.
//
// Types are shared by the planner, executor, callback dispatcher, storage
// layer, and HTTP/MCP surfaces. They carry JSON tags matching the wire
// format and the column names in migrations/.
package model

import (
	"time"

	"github.com/google/uuid"
)

// TaskType classifies a goal into the category of work it asks for.
type TaskType string

const (
	TaskTypeBusiness    TaskType = "business"
	TaskTypeSocial      TaskType = "social"
	TaskTypeVoice       TaskType = "voice"
	TaskTypeAvatar      TaskType = "avatar"
	TaskTypeMarketplace TaskType = "marketplace"
	TaskTypeHybrid      TaskType = "hybrid"
)

// AgentName identifies a domain agent a sub-task can be delegated to.
type AgentName string

const (
	AgentBusiness    AgentName = "business-agent"
	AgentSocial      AgentName = "social-media"
	AgentVoice       AgentName = "voice-lab"
	AgentAvatar      AgentName = "avatar-builder"
	AgentMarketplace AgentName = "marketplace"
)

// Agents lists every known agent in declaration order.
var Agents = []AgentName{AgentBusiness, AgentSocial, AgentVoice, AgentAvatar, AgentMarketplace}

// Valid reports whether a is one of the known agents.
func (a AgentName) Valid() bool {
	for _, known := range Agents {
		if a == known {
			return true
		}
	}
	return false
}

// TaskStatus is the aggregate outcome of a task's sub-tasks.
type TaskStatus string

const (
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusPartial   TaskStatus = "partial"
	TaskStatusFailed    TaskStatus = "failed"
)

// SubtaskStatus is the outcome of one delegated sub-task.
type SubtaskStatus string

const (
	SubtaskStatusCompleted SubtaskStatus = "completed"
	SubtaskStatusFailed    SubtaskStatus = "failed"
)

// SubtaskSpec is one unit of delegated work. Built by the planner and
// never modified afterwards.
type SubtaskSpec struct {
	Agent  AgentName      `json:"agent"`
	Action string         `json:"action"`
	Input  map[string]any `json:"input"`
}

// TaskPlan is the ordered decomposition of a goal. SubTasks is never empty.
type TaskPlan struct {
	MainGoal        string        `json:"main_goal"`
	TaskType        TaskType      `json:"task_type"`
	SubTasks        []SubtaskSpec `json:"sub_tasks"`
	ExpectedOutputs []string      `json:"expected_outputs"`
}

// SubtaskResult records how one sub-task ended. Output is set iff the
// sub-task completed; Error is set iff it failed.
type SubtaskResult struct {
	ID     uuid.UUID      `json:"id"`
	Agent  AgentName      `json:"agent"`
	Action string         `json:"action"`
	Status SubtaskStatus  `json:"status"`
	Input  map[string]any `json:"input"`
	Output map[string]any `json:"output,omitempty"`
	Error  string         `json:"error,omitempty"`
	// Retryable is a hint for callers re-invoking a failed sub-task.
	// The executor never retries on its own.
	Retryable  bool      `json:"retryable,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// Task is a persisted goal execution owned by a user.
type Task struct {
	ID            uuid.UUID       `json:"id"`
	UserID        string          `json:"user_id"`
	Goal          string          `json:"goal"`
	TaskType      TaskType        `json:"task_type"`
	Status        TaskStatus      `json:"status"`
	Summary       string          `json:"summary"`
	RelatedTaskID *uuid.UUID      `json:"related_task_id,omitempty"`
	Plan          TaskPlan        `json:"plan"`
	Results       []SubtaskResult `json:"results,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
}

// AggregateStatus derives a task status from its sub-task results:
// completed when none failed and at least one completed, partial when
// both occur, failed otherwise (including an empty list).
func AggregateStatus(results []SubtaskResult) TaskStatus {
	var completed, failed int
	for _, r := range results {
		switch r.Status {
		case SubtaskStatusCompleted:
			completed++
		case SubtaskStatusFailed:
			failed++
		}
	}
	switch {
	case completed > 0 && failed == 0:
		return TaskStatusCompleted
	case completed > 0 && failed > 0:
		return TaskStatusPartial
	default:
		return TaskStatusFailed
	}
}
