// Package delegate maps sub-tasks onto remote domain-agent calls.
//
// A Router turns (agent, action, input) into a concrete Call through a
// per-agent route table. A Caller performs the HTTP exchange. Client joins
// the two and interprets the agent's response.
package delegate

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// maxResponseBytes bounds how much of an agent response is read.
const maxResponseBytes = 4 << 20

// Request is a fully resolved remote call.
type Request struct {
	Method  string
	URL     string
	Headers http.Header
	Body    []byte
}

// Response is the raw result of a remote call.
type Response struct {
	StatusCode int
	Body       []byte
}

// Caller executes remote calls. Implementations must be safe for
// concurrent use.
type Caller interface {
	Do(ctx context.Context, req Request) (Response, error)
}

// HTTPCaller is a Caller backed by net/http.
type HTTPCaller struct {
	httpClient *http.Client
}

// NewHTTPCaller creates a Caller whose requests time out after timeout.
func NewHTTPCaller(timeout time.Duration) *HTTPCaller {
	return &HTTPCaller{httpClient: &http.Client{Timeout: timeout}}
}

// Do sends req and reads the full response body. W3C trace context from
// ctx is injected into the outgoing headers.
func (c *HTTPCaller) Do(ctx context.Context, req Request) (Response, error) {
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return Response{}, fmt.Errorf("delegate: create request: %w", err)
	}
	for k, vs := range req.Headers {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("delegate: send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Response{}, fmt.Errorf("delegate: read response: %w", err)
	}
	return Response{StatusCode: resp.StatusCode, Body: data}, nil
}
