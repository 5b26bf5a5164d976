package delegate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ashita-ai/conductor/internal/model"
)

// ErrUnknownAgent is returned when no route is registered for an agent.
var ErrUnknownAgent = errors.New("delegate: unknown agent")

// Call describes the remote call a sub-task resolves to. Endpoint is a
// path relative to Options.Origin.
type Call struct {
	Endpoint string         `json:"endpoint"`
	Method   string         `json:"method"`
	Body     map[string]any `json:"body"`
}

// Options carries per-execution delegation settings.
type Options struct {
	// Origin is the base URL agent endpoints are resolved against.
	Origin string
	// Authorization is the caller's credential, forwarded verbatim.
	Authorization string
	// InternalSecret authenticates service-to-service calls.
	InternalSecret string
	// DemoMode returns sandbox outputs without calling any agent.
	DemoMode bool
}

// RouteFunc resolves a sub-task to a Call. Routes may use caller to make
// exploratory reads before deciding the final call shape.
type RouteFunc func(ctx context.Context, caller Caller, opts Options, spec model.SubtaskSpec) (Call, error)

// Router holds the agent route table.
type Router struct {
	routes map[model.AgentName]RouteFunc
}

// NewRouter returns a Router populated with the built-in agent routes.
func NewRouter() *Router {
	r := &Router{routes: make(map[model.AgentName]RouteFunc)}
	r.Register(model.AgentBusiness, businessRoute)
	r.Register(model.AgentSocial, Static(http.MethodPost, "/api/social/generate"))
	r.Register(model.AgentVoice, Static(http.MethodPost, "/api/voice/generate"))
	r.Register(model.AgentAvatar, Static(http.MethodPost, "/api/avatar/generate"))
	r.Register(model.AgentMarketplace, Static(http.MethodPost, "/api/marketplace/listings"))
	return r
}

// Register adds or replaces the route for agent.
func (r *Router) Register(agent model.AgentName, fn RouteFunc) {
	r.routes[agent] = fn
}

// Route resolves spec to a Call.
func (r *Router) Route(ctx context.Context, caller Caller, opts Options, spec model.SubtaskSpec) (Call, error) {
	fn, ok := r.routes[spec.Agent]
	if !ok {
		return Call{}, fmt.Errorf("%w: %s", ErrUnknownAgent, spec.Agent)
	}
	return fn(ctx, caller, opts, spec)
}

// Static returns a route that always calls method on endpoint with the
// standard {action, input, demo_mode} body.
func Static(method, endpoint string) RouteFunc {
	return func(_ context.Context, _ Caller, opts Options, spec model.SubtaskSpec) (Call, error) {
		return Call{Endpoint: endpoint, Method: method, Body: standardBody(opts, spec)}, nil
	}
}

func standardBody(opts Options, spec model.SubtaskSpec) map[string]any {
	return map[string]any{
		"action":    spec.Action,
		"input":     spec.Input,
		"demo_mode": opts.DemoMode,
	}
}

// businessRoute continues an in-progress project when one exists and
// creates a new plan otherwise. A failed probe falls back to creation.
func businessRoute(ctx context.Context, caller Caller, opts Options, spec model.SubtaskSpec) (Call, error) {
	create := Call{Endpoint: "/api/business/plan", Method: http.MethodPost, Body: standardBody(opts, spec)}

	resp, err := caller.Do(ctx, Request{
		Method:  http.MethodGet,
		URL:     strings.TrimRight(opts.Origin, "/") + "/api/business/projects?status=in_progress&limit=1",
		Headers: authHeaders(opts),
	})
	if err != nil || resp.StatusCode != http.StatusOK {
		return create, nil
	}

	var probe struct {
		Projects []struct {
			ID string `json:"id"`
		} `json:"projects"`
	}
	if err := json.Unmarshal(resp.Body, &probe); err != nil || len(probe.Projects) == 0 || probe.Projects[0].ID == "" {
		return create, nil
	}

	body := standardBody(opts, spec)
	body["project_id"] = probe.Projects[0].ID
	return Call{
		Endpoint: "/api/business/projects/" + url.PathEscape(probe.Projects[0].ID) + "/plan",
		Method:   http.MethodPost,
		Body:     body,
	}, nil
}

// Headers sent on every delegate call.
const (
	HeaderInternalSecret = "X-Internal-Secret"
	HeaderDemoMode       = "X-Demo-Mode"
)

func authHeaders(opts Options) http.Header {
	h := http.Header{}
	if opts.Authorization != "" {
		h.Set("Authorization", opts.Authorization)
	}
	if opts.InternalSecret != "" {
		h.Set(HeaderInternalSecret, opts.InternalSecret)
	}
	if opts.DemoMode {
		h.Set(HeaderDemoMode, "true")
	}
	return h
}
