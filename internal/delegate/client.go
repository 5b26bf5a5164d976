package delegate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ashita-ai/conductor/internal/model"
)

// Error is a delegate failure. Retryable is set for transport errors,
// timeouts, 429 and 5xx responses.
type Error struct {
	Agent      model.AgentName
	StatusCode int
	Message    string
	Retryable  bool
	Err        error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Client resolves sub-tasks through a Router and executes them with a Caller.
type Client struct {
	router *Router
	caller Caller
}

// NewClient creates a Client. A nil router uses NewRouter().
func NewClient(router *Router, caller Caller) *Client {
	if router == nil {
		router = NewRouter()
	}
	return &Client{router: router, caller: caller}
}

// Delegate runs one sub-task and returns the agent's output payload.
// Every failure is returned as *Error.
func (c *Client) Delegate(ctx context.Context, opts Options, spec model.SubtaskSpec) (map[string]any, error) {
	if opts.DemoMode {
		return DemoOutput(spec), nil
	}

	call, err := c.router.Route(ctx, c.caller, opts, spec)
	if err != nil {
		return nil, &Error{Agent: spec.Agent, Message: err.Error(), Err: err}
	}

	body, err := json.Marshal(call.Body)
	if err != nil {
		return nil, &Error{Agent: spec.Agent, Message: fmt.Sprintf("encode request for %s: %v", spec.Agent, err), Err: err}
	}
	headers := authHeaders(opts)
	headers.Set("Content-Type", "application/json")

	resp, err := c.caller.Do(ctx, Request{
		Method:  call.Method,
		URL:     strings.TrimRight(opts.Origin, "/") + call.Endpoint,
		Headers: headers,
		Body:    body,
	})
	if err != nil {
		msg := fmt.Sprintf("%s unreachable: %v", spec.Agent, err)
		if errors.Is(err, context.DeadlineExceeded) {
			msg = fmt.Sprintf("%s timed out", spec.Agent)
		}
		return nil, &Error{Agent: spec.Agent, Message: msg, Retryable: true, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{
			Agent:      spec.Agent,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("%s returned status %d: %s", spec.Agent, resp.StatusCode, agentMessage(resp.Body)),
			Retryable:  resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500,
		}
	}

	output, err := parseOutput(resp.Body)
	if err != nil {
		return nil, &Error{
			Agent:      spec.Agent,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("malformed response from %s: %v", spec.Agent, err),
			Err:        err,
		}
	}
	return output, nil
}

// parseOutput accepts either {"output": {...}} or a bare JSON object.
func parseOutput(body []byte) (map[string]any, error) {
	var envelope map[string]any
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	if envelope == nil {
		return nil, fmt.Errorf("empty body")
	}
	if raw, ok := envelope["output"]; ok {
		out, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("output is %T, want object", raw)
		}
		return out, nil
	}
	return envelope, nil
}

// agentMessage pulls a readable error from an agent error body.
func agentMessage(body []byte) string {
	var e struct {
		Error   any    `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &e) == nil {
		switch v := e.Error.(type) {
		case string:
			if v != "" {
				return v
			}
		case map[string]any:
			if m, ok := v["message"].(string); ok && m != "" {
				return m
			}
		}
		if e.Message != "" {
			return e.Message
		}
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	if s == "" {
		s = http.StatusText(http.StatusInternalServerError)
	}
	return s
}
