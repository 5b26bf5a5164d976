// Package tasks provides the business logic behind the task entry points.
//
// Both the HTTP API and the MCP server go through this service: plan the
// goal, execute the plan, persist the outcome, and optionally call the user
// back.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ashita-ai/conductor/internal/callback"
	"github.com/ashita-ai/conductor/internal/delegate"
	"github.com/ashita-ai/conductor/internal/model"
	"github.com/ashita-ai/conductor/internal/notify"
	"github.com/ashita-ai/conductor/internal/planner"
	"github.com/ashita-ai/conductor/internal/quiethours"
	"github.com/ashita-ai/conductor/internal/storage"
)

// ErrInvalidInput marks caller mistakes. Handlers map it to 400.
var ErrInvalidInput = errors.New("invalid input")

// Store is the persistence the service needs. *storage.DB satisfies it.
type Store interface {
	CreateTask(ctx context.Context, task model.Task) error
	CompleteTask(ctx context.Context, id uuid.UUID, status model.TaskStatus, summary string, results []model.SubtaskResult) error
	GetTask(ctx context.Context, userID string, id uuid.UUID) (model.Task, error)
	ListTasks(ctx context.Context, userID string, limit int) ([]model.Task, error)
	SaveChatMessage(ctx context.Context, msg model.ChatMessage) error
	UpdateCallStatus(ctx context.Context, providerCallID, status string) error
	ListCallsByTask(ctx context.Context, taskID uuid.UUID) ([]model.CallRecord, error)
}

// Runner executes a plan. *executor.Executor satisfies it.
type Runner interface {
	Run(ctx context.Context, plan model.TaskPlan, opts delegate.Options) (model.TaskStatus, []model.SubtaskResult)
}

// Delegator runs a single sub-task. *delegate.Client satisfies it.
type Delegator interface {
	Delegate(ctx context.Context, opts delegate.Options, spec model.SubtaskSpec) (map[string]any, error)
}

// Dispatcher decides on and places callbacks. *callback.Dispatcher satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, req callback.Request) model.CallbackResult
}

// Preferences reads and writes callback preferences. *prefcache.Cache satisfies it.
type Preferences interface {
	Get(ctx context.Context, userID string) (model.CallbackPreferences, error)
	Put(ctx context.Context, p model.CallbackPreferences) (model.CallbackPreferences, error)
}

// Service joins planning, execution, persistence and callbacks.
type Service struct {
	store      Store
	runner     Runner
	delegator  Delegator
	dispatcher Dispatcher
	prefs      Preferences
	composer   *notify.Composer
	logger     *slog.Logger
}

// New creates a task Service.
func New(store Store, runner Runner, delegator Delegator, dispatcher Dispatcher, prefs Preferences, composer *notify.Composer, logger *slog.Logger) *Service {
	return &Service{
		store:      store,
		runner:     runner,
		delegator:  delegator,
		dispatcher: dispatcher,
		prefs:      prefs,
		composer:   composer,
		logger:     logger,
	}
}

// Run plans and executes a goal for userID. opts carries the caller's
// credentials forwarded to the agents; req.DemoMode overrides opts.DemoMode
// when set. The task outcome is returned even if persisting it fails.
func (s *Service) Run(ctx context.Context, userID string, req model.RunTaskRequest, opts delegate.Options) (model.RunTaskResponse, error) {
	if err := req.Validate(); err != nil {
		return model.RunTaskResponse{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	goal := strings.TrimSpace(req.Goal)

	if req.RelatedTaskID != nil {
		if _, err := s.store.GetTask(ctx, userID, *req.RelatedTaskID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return model.RunTaskResponse{}, fmt.Errorf("%w: related task %s not found", ErrInvalidInput, *req.RelatedTaskID)
			}
			return model.RunTaskResponse{}, fmt.Errorf("tasks: load related task: %w", err)
		}
	}

	plan := planner.Plan(goal)
	task := model.Task{
		ID:            uuid.New(),
		UserID:        userID,
		Goal:          goal,
		TaskType:      plan.TaskType,
		Status:        model.TaskStatusRunning,
		RelatedTaskID: req.RelatedTaskID,
		Plan:          plan,
		CreatedAt:     time.Now().UTC(),
	}
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("conductor.task_id", task.ID.String()),
		attribute.String("conductor.task_type", string(plan.TaskType)),
	)
	if err := s.store.CreateTask(ctx, task); err != nil {
		return model.RunTaskResponse{}, fmt.Errorf("tasks: create: %w", err)
	}

	if req.DemoMode {
		opts.DemoMode = true
	}
	status, results := s.runner.Run(ctx, plan, opts)
	summary := notify.Summary(status, results)

	// The request context may already be gone after a long plan.
	persistCtx := context.WithoutCancel(ctx)
	if err := s.store.CompleteTask(persistCtx, task.ID, status, summary, results); err != nil {
		s.logger.Error("tasks: persist outcome", "task_id", task.ID, "status", status, "error", err)
	}

	dashboard := s.composer.DashboardURL(task.ID)
	resp := model.RunTaskResponse{
		TaskID:       task.ID,
		TaskType:     plan.TaskType,
		Status:       status,
		Results:      results,
		DashboardURL: dashboard,
		Message:      s.composer.ChatMessage(task.ID, goal, status, results),
	}
	if req.Callback {
		cb := s.dispatcher.Dispatch(persistCtx, callback.Request{
			UserID:       userID,
			TaskID:       task.ID,
			Goal:         goal,
			Summary:      summary,
			Results:      results,
			DashboardURL: dashboard,
		})
		resp.Callback = &cb
	}

	s.logger.Info("task finished",
		"task_id", task.ID, "user_id", userID, "task_type", plan.TaskType,
		"status", status, "subtasks", len(results))
	return resp, nil
}

// Get returns a stored task. Status of a finished task is recomputed from
// its results.
func (s *Service) Get(ctx context.Context, userID string, id uuid.UUID) (model.Task, error) {
	task, err := s.store.GetTask(ctx, userID, id)
	if err != nil {
		return model.Task{}, err
	}
	if task.Status != model.TaskStatusRunning {
		task.Status = model.AggregateStatus(task.Results)
	}
	return task, nil
}

// List returns the caller's recent tasks.
func (s *Service) List(ctx context.Context, userID string, limit int) ([]model.Task, error) {
	return s.store.ListTasks(ctx, userID, limit)
}

// Callback re-runs the callback gate for a finished task.
func (s *Service) Callback(ctx context.Context, userID string, id uuid.UUID, force bool) (model.CallbackResult, error) {
	task, err := s.Get(ctx, userID, id)
	if err != nil {
		return model.CallbackResult{}, err
	}
	if task.Status == model.TaskStatusRunning {
		return model.CallbackResult{}, fmt.Errorf("%w: task %s is still running", ErrInvalidInput, id)
	}
	return s.dispatcher.Dispatch(ctx, callback.Request{
		UserID:       userID,
		TaskID:       task.ID,
		Goal:         task.Goal,
		Summary:      task.Summary,
		Results:      task.Results,
		DashboardURL: s.composer.DashboardURL(task.ID),
		Force:        force,
	}), nil
}

// Calls returns the callback attempts recorded for one of the caller's tasks.
func (s *Service) Calls(ctx context.Context, userID string, id uuid.UUID) ([]model.CallRecord, error) {
	if _, err := s.store.GetTask(ctx, userID, id); err != nil {
		return nil, err
	}
	return s.store.ListCallsByTask(ctx, id)
}

// Delegate runs one agent action directly, outside any plan. Agent failures
// are returned as *delegate.Error.
func (s *Service) Delegate(ctx context.Context, req model.DelegateRequest, opts delegate.Options) (map[string]any, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if req.DemoMode {
		opts.DemoMode = true
	}
	input := req.Input
	if input == nil {
		input = map[string]any{}
	}
	return s.delegator.Delegate(ctx, opts, model.SubtaskSpec{Agent: req.AgentName, Action: req.Action, Input: input})
}

// Preferences returns the caller's callback preferences.
func (s *Service) Preferences(ctx context.Context, userID string) (model.CallbackPreferences, error) {
	return s.prefs.Get(ctx, userID)
}

var phonePattern = regexp.MustCompile(`^\+?[0-9]{7,15}$`)

// UpdatePreferences validates and stores the caller's callback preferences.
func (s *Service) UpdatePreferences(ctx context.Context, userID string, req model.UpdatePreferencesRequest) (model.CallbackPreferences, error) {
	phone := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(req.PhoneNumber)
	if phone != "" && !phonePattern.MatchString(phone) {
		return model.CallbackPreferences{}, fmt.Errorf("%w: phone_number must be 7 to 15 digits, optionally prefixed with +", ErrInvalidInput)
	}
	if req.CallMeWhenFinished && phone == "" {
		return model.CallbackPreferences{}, fmt.Errorf("%w: call_me_when_finished requires a phone_number", ErrInvalidInput)
	}
	if err := quiethours.Validate(req.QuietHours); err != nil {
		return model.CallbackPreferences{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return s.prefs.Put(ctx, model.CallbackPreferences{
		UserID:             userID,
		PhoneNumber:        phone,
		CallMeWhenFinished: req.CallMeWhenFinished,
		QuietHours:         req.QuietHours,
	})
}

// RecordChatMessage stores an inbound chat message.
func (s *Service) RecordChatMessage(ctx context.Context, msg model.ChatMessage) error {
	return s.store.SaveChatMessage(ctx, msg)
}

// UpdateCallStatus applies a telephony provider's status callback.
func (s *Service) UpdateCallStatus(ctx context.Context, providerCallID, status string) error {
	if providerCallID == "" || status == "" {
		return fmt.Errorf("%w: call_id and status are required", ErrInvalidInput)
	}
	return s.store.UpdateCallStatus(ctx, providerCallID, status)
}
