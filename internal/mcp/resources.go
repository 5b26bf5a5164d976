package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	mcplib "github.com/mark3labs/mcp-go/mcp"
)

const (
	recentTasksURI = "conductor://tasks/recent"
	taskURIPrefix  = "conductor://tasks/"
)

func (s *Server) registerResources() {
	// conductor://tasks/recent: the caller's latest tasks.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			recentTasksURI,
			"Recent Tasks",
			mcplib.WithResourceDescription("The caller's ten most recent tasks"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleRecentTasks,
	)

	// conductor://tasks/{id}: one task with its results.
	s.mcpServer.AddResourceTemplate(
		mcplib.NewResourceTemplate(
			taskURIPrefix+"{id}",
			"Task",
			mcplib.WithTemplateDescription("A single task with all step results"),
			mcplib.WithTemplateMIMEType("application/json"),
		),
		s.handleTaskResource,
	)
}

func (s *Server) handleRecentTasks(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	userID := callerID(ctx)
	if userID == "" {
		return nil, fmt.Errorf("mcp: recent tasks: authentication required")
	}
	list, err := s.svc.List(ctx, userID, 10)
	if err != nil {
		return nil, fmt.Errorf("mcp: recent tasks: %w", err)
	}
	return jsonContents(recentTasksURI, list)
}

func (s *Server) handleTaskResource(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	userID := callerID(ctx)
	if userID == "" {
		return nil, fmt.Errorf("mcp: task: authentication required")
	}
	id, err := parseTaskURI(request.Params.URI)
	if err != nil {
		return nil, err
	}
	task, err := s.svc.Get(ctx, userID, id)
	if err != nil {
		return nil, fmt.Errorf("mcp: task %s: %w", id, err)
	}
	return jsonContents(request.Params.URI, task)
}

// parseTaskURI extracts the task id from conductor://tasks/{id}.
func parseTaskURI(uri string) (uuid.UUID, error) {
	raw, ok := strings.CutPrefix(uri, taskURIPrefix)
	if !ok || raw == "" || strings.Contains(raw, "/") {
		return uuid.Nil, fmt.Errorf("mcp: invalid task URI: %s", uri)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("mcp: invalid task id in URI %s: %w", uri, err)
	}
	return id, nil
}

func jsonContents(uri string, v any) ([]mcplib.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal %s: %w", uri, err)
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
