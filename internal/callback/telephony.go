package callback

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// CallRequest describes an outbound call to place.
type CallRequest struct {
	To     string
	Script string
	Speech *Speech // Pre-rendered audio; nil means the provider reads Script.
	Meta   map[string]any
}

// CallResponse is what the provider reports after accepting a call.
type CallResponse struct {
	ProviderCallID string
	Status         string
}

// Telephony places outbound calls.
type Telephony interface {
	Name() string
	StartCall(ctx context.Context, req CallRequest) (CallResponse, error)
}

// MemoryCall is one call held by MemoryTelephony.
type MemoryCall struct {
	ID      string
	Request CallRequest
	Status  string
	Updated time.Time
}

// MemoryTelephony keeps calls in process, keyed by call id. Used when no
// telephony provider is configured, and in tests.
type MemoryTelephony struct {
	mu    sync.Mutex
	calls map[string]*MemoryCall
	order []string
}

// NewMemoryTelephony creates an empty in-memory provider.
func NewMemoryTelephony() *MemoryTelephony {
	return &MemoryTelephony{calls: make(map[string]*MemoryCall)}
}

// Name implements Telephony.
func (m *MemoryTelephony) Name() string { return "mock" }

// StartCall records the call as queued.
func (m *MemoryTelephony) StartCall(_ context.Context, req CallRequest) (CallResponse, error) {
	id := "mock-" + uuid.NewString()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[id] = &MemoryCall{ID: id, Request: req, Status: "queued", Updated: time.Now().UTC()}
	m.order = append(m.order, id)
	return CallResponse{ProviderCallID: id, Status: "queued"}, nil
}

// UpdateStatus simulates a provider status callback.
func (m *MemoryTelephony) UpdateStatus(callID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.calls[callID]
	if !ok {
		return fmt.Errorf("callback: unknown call %s", callID)
	}
	c.Status = status
	c.Updated = time.Now().UTC()
	return nil
}

// Get returns a copy of the call with the given id.
func (m *MemoryTelephony) Get(callID string) (MemoryCall, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.calls[callID]
	if !ok {
		return MemoryCall{}, false
	}
	return *c, true
}

// Calls returns copies of every call in placement order.
func (m *MemoryTelephony) Calls() []MemoryCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MemoryCall, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, *m.calls[id])
	}
	return out
}

// HTTPTelephony places calls through a JSON HTTP API (POST {base}/calls).
type HTTPTelephony struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPTelephony creates an HTTP-backed provider.
func NewHTTPTelephony(baseURL, apiKey string, timeout time.Duration) *HTTPTelephony {
	return &HTTPTelephony{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Name implements Telephony.
func (h *HTTPTelephony) Name() string { return "http" }

type startCallBody struct {
	To            string         `json:"to"`
	Script        string         `json:"script"`
	AudioBase64   string         `json:"audio_base64,omitempty"`
	AudioMimeType string         `json:"audio_mime_type,omitempty"`
	AudioFileName string         `json:"audio_file_name,omitempty"`
	Metadata      map[string]any `json:"metadata"`
}

type startCallReply struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// StartCall implements Telephony.
func (h *HTTPTelephony) StartCall(ctx context.Context, req CallRequest) (CallResponse, error) {
	body := startCallBody{To: req.To, Script: req.Script, Metadata: req.Meta}
	if req.Speech != nil && len(req.Speech.Audio) > 0 {
		body.AudioBase64 = base64.StdEncoding.EncodeToString(req.Speech.Audio)
		body.AudioMimeType = req.Speech.MimeType
		body.AudioFileName = req.Speech.FileName
	}
	data, err := json.Marshal(body)
	if err != nil {
		return CallResponse{}, fmt.Errorf("callback: marshal call: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/calls", bytes.NewReader(data))
	if err != nil {
		return CallResponse{}, fmt.Errorf("callback: create call request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+h.apiKey)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	resp, err := h.httpClient.Do(httpReq)
	if err != nil {
		return CallResponse{}, fmt.Errorf("callback: send call request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return CallResponse{}, fmt.Errorf("callback: telephony status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var reply startCallReply
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&reply); err != nil {
		return CallResponse{}, fmt.Errorf("callback: decode call reply: %w", err)
	}
	if reply.ID == "" {
		return CallResponse{}, fmt.Errorf("callback: telephony reply missing call id")
	}
	if reply.Status == "" {
		reply.Status = "queued"
	}
	return CallResponse{ProviderCallID: reply.ID, Status: reply.Status}, nil
}
