package mcp

import (
	"context"
	"fmt"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/conductor/internal/planner"
)

func (s *Server) registerPrompts() {
	// run-goal: walks the assistant from plan to confirmation to run.
	s.mcpServer.AddPrompt(
		mcplib.NewPrompt("run-goal",
			mcplib.WithPromptDescription("Plan a goal, confirm the steps with the user, then run it"),
			mcplib.WithArgument("goal",
				mcplib.ArgumentDescription("The user's goal in natural language"),
				mcplib.RequiredArgument(),
			),
		),
		s.handleRunGoalPrompt,
	)
}

func (s *Server) handleRunGoalPrompt(_ context.Context, request mcplib.GetPromptRequest) (*mcplib.GetPromptResult, error) {
	goal := strings.TrimSpace(request.Params.Arguments["goal"])
	if goal == "" {
		return nil, fmt.Errorf("goal argument is required")
	}

	plan := planner.Plan(goal)
	steps := make([]string, len(plan.SubTasks))
	for i, st := range plan.SubTasks {
		steps[i] = fmt.Sprintf("%d. %s: %s", i+1, st.Agent, st.Action)
	}

	return &mcplib.GetPromptResult{
		Description: fmt.Sprintf("Run a %s task", plan.TaskType),
		Messages: []mcplib.PromptMessage{
			{
				Role: mcplib.RoleUser,
				Content: mcplib.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`The user wants: %q

Conductor will split this into these steps:
%s

1. SHOW the steps to the user and ask whether to proceed.
2. If they agree, CALL conductor_run_goal with goal=%q.
   Set callback=true if they want a phone call when it finishes.
3. REPORT each step's status. For failed steps marked retryable, offer to run
   the goal again.`, goal, strings.Join(steps, "\n"), goal),
				},
			},
		},
	}, nil
}
