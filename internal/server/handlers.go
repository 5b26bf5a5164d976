package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ashita-ai/conductor/internal/delegate"
	"github.com/ashita-ai/conductor/internal/model"
	"github.com/ashita-ai/conductor/internal/service/tasks"
	"github.com/ashita-ai/conductor/internal/storage"
	"github.com/ashita-ai/conductor/internal/tone"
)

// Pinger reports database liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	svc                 *tasks.Service
	db                  Pinger
	logger              *slog.Logger
	startedAt           time.Time
	version             string
	origin              string
	internalSecret      string
	telegramSecret      string
	maxRequestBodyBytes int64
	backgroundTimeout   time.Duration
	openapiSpec         []byte

	// background tracks fire-and-forget work started by webhooks.
	background sync.WaitGroup
}

// HandlersDeps holds all dependencies for constructing Handlers.
// Optional: DB (health reports "unknown"), OpenAPISpec.
type HandlersDeps struct {
	Service             *tasks.Service
	DB                  Pinger
	Logger              *slog.Logger
	Version             string
	Origin              string
	InternalSecret      string
	TelegramSecret      string
	MaxRequestBodyBytes int64
	OpenAPISpec         []byte
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	maxBody := d.MaxRequestBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	return &Handlers{
		svc:                 d.Service,
		db:                  d.DB,
		logger:              d.Logger,
		startedAt:           time.Now(),
		version:             d.Version,
		origin:              d.Origin,
		internalSecret:      d.InternalSecret,
		telegramSecret:      d.TelegramSecret,
		maxRequestBodyBytes: maxBody,
		backgroundTimeout:   10 * time.Second,
		openapiSpec:         d.OpenAPISpec,
	}
}

// Wait blocks until background webhook work has finished.
func (h *Handlers) Wait() {
	h.background.Wait()
}

// delegateOptions builds the agent credentials for a request. The caller's
// Authorization header is forwarded as-is and the internal secret is always
// attached.
func (h *Handlers) delegateOptions(r *http.Request) delegate.Options {
	return delegate.Options{
		Origin:         h.origin,
		Authorization:  r.Header.Get("Authorization"),
		InternalSecret: h.internalSecret,
	}
}

// HandleRunTask handles POST /v1/tasks.
func (h *Handlers) HandleRunTask(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())

	var req model.RunTaskRequest
	if !h.decode(w, r, &req) {
		return
	}

	resp, err := h.svc.Run(r.Context(), claims.UserID(), req, h.delegateOptions(r))
	if err != nil {
		h.writeServiceError(w, r, err, "failed to run task")
		return
	}
	writeJSON(w, r, http.StatusCreated, resp)
}

// HandleListTasks handles GET /v1/tasks.
func (h *Handlers) HandleListTasks(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "limit must be a positive integer")
			return
		}
		limit = n
	}

	list, err := h.svc.List(r.Context(), claims.UserID(), limit)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to list tasks")
		return
	}
	if list == nil {
		list = []model.Task{}
	}
	writeJSON(w, r, http.StatusOK, list)
}

// HandleGetTask handles GET /v1/tasks/{task_id}.
func (h *Handlers) HandleGetTask(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())

	id, ok := parseTaskID(w, r)
	if !ok {
		return
	}
	task, err := h.svc.Get(r.Context(), claims.UserID(), id)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to get task")
		return
	}
	writeJSON(w, r, http.StatusOK, task)
}

// HandleTaskCallback handles POST /v1/tasks/{task_id}/callback.
func (h *Handlers) HandleTaskCallback(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())

	id, ok := parseTaskID(w, r)
	if !ok {
		return
	}
	var req model.CallbackRequest
	if r.ContentLength != 0 {
		if !h.decode(w, r, &req) {
			return
		}
	}

	result, err := h.svc.Callback(r.Context(), claims.UserID(), id, req.Force)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to dispatch callback")
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// HandleListTaskCalls handles GET /v1/tasks/{task_id}/calls.
func (h *Handlers) HandleListTaskCalls(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())

	id, ok := parseTaskID(w, r)
	if !ok {
		return
	}
	calls, err := h.svc.Calls(r.Context(), claims.UserID(), id)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to list calls")
		return
	}
	if calls == nil {
		calls = []model.CallRecord{}
	}
	writeJSON(w, r, http.StatusOK, calls)
}

// HandleDelegate handles POST /v1/delegate.
func (h *Handlers) HandleDelegate(w http.ResponseWriter, r *http.Request) {
	var req model.DelegateRequest
	if !h.decode(w, r, &req) {
		return
	}

	output, err := h.svc.Delegate(r.Context(), req, h.delegateOptions(r))
	if err != nil {
		h.writeServiceError(w, r, err, "delegation failed")
		return
	}
	writeJSON(w, r, http.StatusOK, model.DelegateResponse{Output: output})
}

// HandleDetectTone handles POST /v1/tone.
func (h *Handlers) HandleDetectTone(w http.ResponseWriter, r *http.Request) {
	var req model.ToneRequest
	if !h.decode(w, r, &req) {
		return
	}
	if len(req.Text) > model.MaxToneText {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "text exceeds maximum length")
		return
	}
	writeJSON(w, r, http.StatusOK, tone.Detect(req.Text))
}

// HandleGetPreferences handles GET /v1/preferences.
func (h *Handlers) HandleGetPreferences(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())

	prefs, err := h.svc.Preferences(r.Context(), claims.UserID())
	if err != nil {
		h.writeServiceError(w, r, err, "failed to load preferences")
		return
	}
	writeJSON(w, r, http.StatusOK, prefs)
}

// HandleUpdatePreferences handles PUT /v1/preferences.
func (h *Handlers) HandleUpdatePreferences(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())

	var req model.UpdatePreferencesRequest
	if !h.decode(w, r, &req) {
		return
	}
	prefs, err := h.svc.UpdatePreferences(r.Context(), claims.UserID(), req)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to save preferences")
		return
	}
	writeJSON(w, r, http.StatusOK, prefs)
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	pgStatus := "unknown"
	status := "healthy"
	httpStatus := http.StatusOK

	if h.db != nil {
		pgStatus = "connected"
		if err := h.db.Ping(r.Context()); err != nil {
			pgStatus = "disconnected"
			status = "unhealthy"
			httpStatus = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, r, httpStatus, model.HealthResponse{
		Status:   status,
		Version:  h.version,
		Postgres: pgStatus,
		Uptime:   int64(time.Since(h.startedAt).Seconds()),
	})
}

// HandleOpenAPISpec serves the embedded OpenAPI specification.
func (h *Handlers) HandleOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	if len(h.openapiSpec) == 0 {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(h.openapiSpec)
}

// decode reads the request body into target, writing a 400 or 413 on failure.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := decodeJSON(w, r, target, h.maxRequestBodyBytes); err != nil {
		if errors.Is(err, errBodyTooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, model.ErrCodeInvalidInput, "request body too large")
			return false
		}
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body")
		return false
	}
	return true
}

// writeServiceError maps service errors onto HTTP responses.
func (h *Handlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var derr *delegate.Error
	switch {
	case errors.Is(err, tasks.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "not found")
	case errors.As(err, &derr):
		writeErrorDetails(w, r, http.StatusBadGateway, model.ErrCodeBadGateway, derr.Message, map[string]any{
			"agent":       derr.Agent,
			"status_code": derr.StatusCode,
			"retryable":   derr.Retryable,
		})
	default:
		h.logger.Error(fallback, "error", err, "request_id", RequestIDFromContext(r.Context()))
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, fallback)
	}
}

func parseTaskID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("task_id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid task_id")
		return uuid.Nil, false
	}
	return id, true
}
