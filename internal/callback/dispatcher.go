// Package callback decides whether to phone a user when their task finishes
// and, if so, places the call and records it.
//
// The gate runs in a fixed order and stops at the first failing check:
// phone number, voice enabled, opt-in, quiet hours. Force skips opt-in and
// quiet hours only.
package callback

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/ashita-ai/conductor/internal/model"
	"github.com/ashita-ai/conductor/internal/notify"
	"github.com/ashita-ai/conductor/internal/quiethours"
	"github.com/ashita-ai/conductor/internal/telemetry"
	"github.com/ashita-ai/conductor/internal/tone"
)

// Preferences resolves a user's callback preferences. *prefcache.Cache
// satisfies it.
type Preferences interface {
	Get(ctx context.Context, userID string) (model.CallbackPreferences, error)
}

// CallStore persists call records. *storage.DB satisfies it.
type CallStore interface {
	SaveCall(ctx context.Context, rec model.CallRecord) (model.CallRecord, error)
}

// Config tunes the dispatcher.
type Config struct {
	VoiceEnabled bool
	MaxDuration  time.Duration // Cap on spoken script length; zero means uncapped.
}

// Request is one finished task to notify about.
type Request struct {
	UserID       string
	TaskID       uuid.UUID
	Goal         string
	Summary      string
	Results      []model.SubtaskResult
	DashboardURL string
	Force        bool
}

// Dispatcher runs the callback gate and places calls.
type Dispatcher struct {
	prefs    Preferences
	synth    Synthesizer // nil: provider reads the script itself
	tel      Telephony
	store    CallStore
	composer *notify.Composer
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time

	count metric.Int64Counter
}

// NewDispatcher creates a Dispatcher. synth may be nil.
func NewDispatcher(prefs Preferences, synth Synthesizer, tel Telephony, store CallStore, composer *notify.Composer, cfg Config, logger *slog.Logger) *Dispatcher {
	count, _ := telemetry.Meter("conductor/callback").Int64Counter("conductor.callback.count",
		metric.WithDescription("Callback decisions by outcome"),
	)
	return &Dispatcher{
		prefs:    prefs,
		synth:    synth,
		tel:      tel,
		store:    store,
		composer: composer,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		count:    count,
	}
}

// SetClock overrides the time source used for quiet hours.
func (d *Dispatcher) SetClock(now func() time.Time) { d.now = now }

var tracer = telemetry.Tracer("conductor/callback")

// Dispatch evaluates the gate for req and, when it passes, synthesizes the
// script, places the call and saves the call record. It never returns an
// error: every failure is reported as a not-queued reason.
//
// The record is saved after the provider accepted the call, so a failed
// save reports not queued although the call was placed.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) model.CallbackResult {
	ctx, span := tracer.Start(ctx, "callback.dispatch")
	defer span.End()
	span.SetAttributes(
		attribute.String("conductor.task_id", req.TaskID.String()),
		attribute.Bool("conductor.callback.force", req.Force),
	)

	res := d.dispatch(ctx, req)

	outcome := "queued"
	if !res.Queued {
		outcome = res.Reason
		if isFailure(res.Reason) {
			span.SetStatus(codes.Error, res.Reason)
		}
	}
	span.SetAttributes(attribute.String("conductor.callback.outcome", outcome))
	d.count.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	return res
}

func (d *Dispatcher) dispatch(ctx context.Context, req Request) model.CallbackResult {
	prefs, err := d.prefs.Get(ctx, req.UserID)
	if err != nil {
		d.logger.Error("callback: load preferences", "user_id", req.UserID, "error", err)
		return notQueued(model.ReasonPrefsFailed)
	}

	if prefs.PhoneNumber == "" {
		return notQueued(model.ReasonNoPhone)
	}
	if !d.cfg.VoiceEnabled {
		return notQueued(model.ReasonVoiceDisabled)
	}
	if !req.Force && !prefs.CallMeWhenFinished {
		return notQueued(model.ReasonDisabled)
	}
	if now := d.now(); !req.Force && quiethours.Suppressed(prefs.QuietHours, now) {
		res := notQueued(model.ReasonQuietHours)
		res.QuietMinutesLeft = quiethours.MinutesUntilEnd(prefs.QuietHours, now)
		return res
	}

	script := BuildScript(req.Goal, req.Summary, req.Results, d.composer.SpokenLinks(req.Results), d.cfg.MaxDuration)
	detected := tone.Detect(req.Goal)

	var speech *Speech
	if d.synth != nil {
		rendered, err := d.synth.Synthesize(ctx, script, ParamsFor(detected.Tone))
		if err != nil {
			d.logger.Warn("callback: synthesis failed", "task_id", req.TaskID, "error", err)
			return notQueued(model.ReasonSynthesisFailed)
		}
		speech = &rendered
	}

	meta := map[string]any{
		"task_id":       req.TaskID.String(),
		"callback":      true,
		"tone":          string(detected.Tone),
		"dashboard_url": req.DashboardURL,
	}
	call, err := d.tel.StartCall(ctx, CallRequest{To: prefs.PhoneNumber, Script: script, Speech: speech, Meta: meta})
	if err != nil {
		d.logger.Error("callback: place call", "task_id", req.TaskID, "provider", d.tel.Name(), "error", err)
		return notQueued(model.ReasonCallFailed)
	}

	recMeta := make(map[string]any, len(meta)+2)
	for k, v := range meta {
		recMeta[k] = v
	}
	recMeta["provider"] = d.tel.Name()
	recMeta["provider_call_id"] = call.ProviderCallID
	if req.Force {
		recMeta["forced"] = true
	}

	taskID := req.TaskID
	_, err = d.store.SaveCall(ctx, model.CallRecord{
		UserID:     req.UserID,
		TaskID:     &taskID,
		Direction:  model.CallOutbound,
		Channel:    model.ChannelPhone,
		Status:     call.Status,
		Transcript: script,
		Summary:    req.Summary,
		Meta:       recMeta,
	})
	if err != nil {
		// The call is already placed.
		d.logger.Error("callback: save call record",
			"task_id", req.TaskID, "provider_call_id", call.ProviderCallID, "error", err)
		return notQueued(model.ReasonSaveFailed)
	}

	d.logger.Info("callback: call queued",
		"task_id", req.TaskID, "provider", d.tel.Name(), "provider_call_id", call.ProviderCallID)
	return model.CallbackResult{Queued: true, CallID: call.ProviderCallID, Provider: d.tel.Name()}
}

// isFailure separates errors from ordinary gate decisions.
func isFailure(reason string) bool {
	switch reason {
	case model.ReasonPrefsFailed, model.ReasonSynthesisFailed, model.ReasonCallFailed, model.ReasonSaveFailed:
		return true
	}
	return false
}

func notQueued(reason string) model.CallbackResult {
	return model.CallbackResult{Queued: false, Reason: reason}
}
