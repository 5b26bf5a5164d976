package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/conductor/internal/delegate"
	"github.com/ashita-ai/conductor/internal/model"
	"github.com/ashita-ai/conductor/internal/planner"
	"github.com/ashita-ai/conductor/internal/service/tasks"
	"github.com/ashita-ai/conductor/internal/storage"
	"github.com/ashita-ai/conductor/internal/tone"
)

func (s *Server) registerTools() {
	// conductor_plan: classify a goal without running anything.
	s.mcpServer.AddTool(
		mcplib.NewTool("conductor_plan",
			mcplib.WithDescription(`Preview how a goal would be split across the domain agents.

WHEN TO USE: Before conductor_run_goal, to check which agents a goal touches
(business plan, social posts, voiceover, marketplace listing, avatar).
Nothing is executed or stored.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("goal",
				mcplib.Description("The user's goal in natural language"),
				mcplib.Required(),
			),
		),
		s.handlePlan,
	)

	// conductor_detect_tone: keyword tone heuristic.
	s.mcpServer.AddTool(
		mcplib.NewTool("conductor_detect_tone",
			mcplib.WithDescription("Detect the emotional tone of a message (happy, stressed, angry, sad, neutral) with a confidence score."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("text",
				mcplib.Description("The message to classify"),
				mcplib.Required(),
			),
		),
		s.handleDetectTone,
	)

	// conductor_run_goal: plan, execute and persist a goal.
	s.mcpServer.AddTool(
		mcplib.NewTool("conductor_run_goal",
			mcplib.WithDescription(`Run a goal end to end: plan it, delegate each step to its agent, and store the outcome.

Partial failures are normal. The result lists every step with its status;
failed steps carry an error and a retryable hint.`),
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(true),
			mcplib.WithString("goal",
				mcplib.Description("The user's goal in natural language"),
				mcplib.Required(),
			),
			mcplib.WithString("related_task_id",
				mcplib.Description("Optional: id of an earlier task this one follows up on"),
			),
			mcplib.WithBoolean("demo_mode",
				mcplib.Description("Return sandbox outputs without calling any agent"),
			),
			mcplib.WithBoolean("callback",
				mcplib.Description("Place a voice callback when the task finishes, subject to the user's preferences"),
			),
		),
		s.handleRunGoal,
	)

	// conductor_get_task: one stored task with its results.
	s.mcpServer.AddTool(
		mcplib.NewTool("conductor_get_task",
			mcplib.WithDescription("Fetch a previously run task with all step results."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("task_id",
				mcplib.Description("Task id returned by conductor_run_goal"),
				mcplib.Required(),
			),
		),
		s.handleGetTask,
	)

	// conductor_list_tasks: the caller's recent tasks.
	s.mcpServer.AddTool(
		mcplib.NewTool("conductor_list_tasks",
			mcplib.WithDescription("List the caller's most recent tasks, newest first."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithNumber("limit",
				mcplib.Description("Maximum tasks to return"),
				mcplib.Min(1),
				mcplib.Max(100),
				mcplib.DefaultNumber(20),
			),
		),
		s.handleListTasks,
	)
}

func (s *Server) handlePlan(_ context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	req := model.RunTaskRequest{Goal: request.GetString("goal", "")}
	if err := req.Validate(); err != nil {
		return errorResult(err.Error()), nil
	}
	return jsonResult(planner.Plan(req.Goal)), nil
}

func (s *Server) handleDetectTone(_ context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	text := request.GetString("text", "")
	if len(text) > model.MaxToneText {
		return errorResult(fmt.Sprintf("text exceeds maximum length of %d bytes", model.MaxToneText)), nil
	}
	return jsonResult(tone.Detect(text)), nil
}

func (s *Server) handleRunGoal(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	claims, denied := requireCaller(ctx)
	if denied != nil {
		return denied, nil
	}

	req := model.RunTaskRequest{
		Goal:     request.GetString("goal", ""),
		DemoMode: request.GetBool("demo_mode", false),
		Callback: request.GetBool("callback", false),
	}
	if raw := request.GetString("related_task_id", ""); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return errorResult("related_task_id must be a UUID"), nil
		}
		req.RelatedTaskID = &id
	}

	resp, err := s.svc.Run(ctx, claims.UserID(), req, s.delegateOptions(ctx))
	if err != nil {
		return s.serviceError("run goal", err), nil
	}
	return jsonResult(resp), nil
}

func (s *Server) handleGetTask(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	claims, denied := requireCaller(ctx)
	if denied != nil {
		return denied, nil
	}
	id, err := uuid.Parse(request.GetString("task_id", ""))
	if err != nil {
		return errorResult("task_id must be a UUID"), nil
	}
	task, err := s.svc.Get(ctx, claims.UserID(), id)
	if err != nil {
		return s.serviceError("get task", err), nil
	}
	return jsonResult(task), nil
}

func (s *Server) handleListTasks(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	claims, denied := requireCaller(ctx)
	if denied != nil {
		return denied, nil
	}
	list, err := s.svc.List(ctx, claims.UserID(), request.GetInt("limit", 20))
	if err != nil {
		return s.serviceError("list tasks", err), nil
	}
	if list == nil {
		list = []model.Task{}
	}
	return jsonResult(list), nil
}

// serviceError turns service failures into tool errors. Internal errors are
// logged and reported generically.
func (s *Server) serviceError(op string, err error) *mcplib.CallToolResult {
	var derr *delegate.Error
	switch {
	case errors.Is(err, tasks.ErrInvalidInput):
		return errorResult(err.Error())
	case errors.Is(err, storage.ErrNotFound):
		return errorResult("task not found")
	case errors.As(err, &derr):
		return errorResult(fmt.Sprintf("%s failed: %s", derr.Agent, derr.Message))
	}
	s.logger.Error("mcp: "+op, "error", err)
	return errorResult(op + " failed")
}
