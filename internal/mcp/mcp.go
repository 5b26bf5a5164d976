// Package mcp implements the Model Context Protocol server for Conductor.
//
// The MCP server exposes the task orchestration capabilities of the HTTP
// API as tools and resources, so MCP-compatible assistants can plan a goal,
// run it across the domain agents and inspect past tasks.
package mcp

import (
	"context"
	"encoding/json"
	"log/slog"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ashita-ai/conductor/internal/auth"
	"github.com/ashita-ai/conductor/internal/ctxutil"
	"github.com/ashita-ai/conductor/internal/delegate"
	"github.com/ashita-ai/conductor/internal/service/tasks"
)

// Options configures how MCP-initiated runs reach the agents.
type Options struct {
	Origin         string
	InternalSecret string
}

// Server wraps the MCP server with Conductor's service layer.
type Server struct {
	mcpServer *mcpserver.MCPServer
	svc       *tasks.Service
	opts      Options
	logger    *slog.Logger
}

// New creates and configures a new MCP server with all resources, tools and
// prompts.
func New(svc *tasks.Service, opts Options, logger *slog.Logger, version string) *Server {
	s := &Server{
		svc:    svc,
		opts:   opts,
		logger: logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"conductor",
		version,
		mcpserver.WithResourceCapabilities(true, true),
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithPromptCapabilities(true),
	)

	s.registerResources()
	s.registerTools()
	s.registerPrompts()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

// delegateOptions forwards the MCP caller's bearer token to the agents.
func (s *Server) delegateOptions(ctx context.Context) delegate.Options {
	return delegate.Options{
		Origin:         s.opts.Origin,
		Authorization:  ctxutil.AuthorizationFromContext(ctx),
		InternalSecret: s.opts.InternalSecret,
	}
}

// callerID returns the authenticated user, or "" for anonymous contexts.
func callerID(ctx context.Context) string {
	if claims := ctxutil.ClaimsFromContext(ctx); claims != nil {
		return claims.UserID()
	}
	return ""
}

// requireCaller is used by tools that read or write user-owned data.
func requireCaller(ctx context.Context) (*auth.Claims, *mcplib.CallToolResult) {
	claims := ctxutil.ClaimsFromContext(ctx)
	if claims == nil {
		return nil, errorResult("authentication required")
	}
	return claims, nil
}

func jsonResult(v any) *mcplib.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult("failed to encode result: " + err.Error())
	}
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(data)},
		},
	}
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
