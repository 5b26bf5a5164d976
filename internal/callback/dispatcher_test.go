package callback_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/conductor/internal/callback"
	"github.com/ashita-ai/conductor/internal/model"
	"github.com/ashita-ai/conductor/internal/notify"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type staticPrefs struct {
	prefs model.CallbackPreferences
	err   error
}

func (s staticPrefs) Get(context.Context, string) (model.CallbackPreferences, error) {
	return s.prefs, s.err
}

type memStore struct {
	mu      sync.Mutex
	records []model.CallRecord
	err     error
}

func (m *memStore) SaveCall(_ context.Context, rec model.CallRecord) (model.CallRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return model.CallRecord{}, m.err
	}
	rec.ID = uuid.New()
	m.records = append(m.records, rec)
	return rec, nil
}

type fakeSynth struct {
	calls  int
	params callback.VoiceParams
	err    error
}

func (f *fakeSynth) Synthesize(_ context.Context, _ string, p callback.VoiceParams) (callback.Speech, error) {
	f.calls++
	f.params = p
	if f.err != nil {
		return callback.Speech{}, f.err
	}
	return callback.Speech{Audio: []byte("audio"), MimeType: "audio/ogg", FileName: "callback.ogg"}, nil
}

type failingTelephony struct{}

func (failingTelephony) Name() string { return "broken" }
func (failingTelephony) StartCall(context.Context, callback.CallRequest) (callback.CallResponse, error) {
	return callback.CallResponse{}, errors.New("provider unavailable")
}

// lateNight is inside a 22:00-08:00 window at UTC offset 0.
var lateNight = time.Date(2026, 3, 1, 23, 30, 0, 0, time.UTC)

func optedIn() model.CallbackPreferences {
	return model.CallbackPreferences{
		UserID:             "user-1",
		PhoneNumber:        "+15550100",
		CallMeWhenFinished: true,
		QuietHours:         model.QuietHours{Enabled: true, Start: "22:00", End: "08:00"},
	}
}

type harness struct {
	d     *callback.Dispatcher
	tel   *callback.MemoryTelephony
	store *memStore
	synth *fakeSynth
}

func newHarness(prefs model.CallbackPreferences, cfg callback.Config, now time.Time) harness {
	h := harness{tel: callback.NewMemoryTelephony(), store: &memStore{}, synth: &fakeSynth{}}
	h.d = callback.NewDispatcher(staticPrefs{prefs: prefs}, h.synth, h.tel, h.store,
		notify.NewComposer("https://app.example.com/dashboard", "https://app.example.com"), cfg, discard)
	h.d.SetClock(func() time.Time { return now })
	return h
}

var voiceOn = callback.Config{VoiceEnabled: true, MaxDuration: 90 * time.Second}

func request(force bool) callback.Request {
	return callback.Request{
		UserID:  "user-1",
		TaskID:  uuid.New(),
		Goal:    "Write my bakery business plan",
		Summary: "All 1 steps completed.",
		Results: []model.SubtaskResult{
			{Agent: model.AgentBusiness, Action: "create_business_plan", Status: model.SubtaskStatusCompleted,
				Output: map[string]any{"pdf_url": "/files/plan.pdf"}},
		},
		DashboardURL: "https://app.example.com/dashboard/tasks/x",
		Force:        force,
	}
}

func TestDispatch_NoPhoneEvenWhenForced(t *testing.T) {
	prefs := optedIn()
	prefs.PhoneNumber = ""
	for _, force := range []bool{false, true} {
		h := newHarness(prefs, voiceOn, lateNight)
		res := h.d.Dispatch(context.Background(), request(force))
		assert.Equal(t, model.CallbackResult{Queued: false, Reason: "no phone number"}, res)
		assert.Empty(t, h.tel.Calls())
	}
}

func TestDispatch_OptOutNotForced(t *testing.T) {
	prefs := optedIn()
	prefs.CallMeWhenFinished = false
	h := newHarness(prefs, voiceOn, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	res := h.d.Dispatch(context.Background(), request(false))
	assert.False(t, res.Queued)
	assert.Equal(t, "callback disabled", res.Reason)
	assert.Zero(t, h.synth.calls)
}

func TestDispatch_QuietHoursBlockUnlessForced(t *testing.T) {
	h := newHarness(optedIn(), voiceOn, lateNight)
	res := h.d.Dispatch(context.Background(), request(false))
	assert.False(t, res.Queued)
	assert.Equal(t, "quiet hours", res.Reason)
	assert.Equal(t, 510, res.QuietMinutesLeft, "23:30 until 08:00")

	res = h.d.Dispatch(context.Background(), request(true))
	require.True(t, res.Queued, "force bypasses quiet hours")
	assert.Zero(t, res.QuietMinutesLeft)
	assert.Equal(t, "mock", res.Provider)
	assert.NotEmpty(t, res.CallID)
}

func TestDispatch_ForceBypassesOptOut(t *testing.T) {
	prefs := optedIn()
	prefs.CallMeWhenFinished = false
	h := newHarness(prefs, voiceOn, lateNight)

	res := h.d.Dispatch(context.Background(), request(true))
	assert.True(t, res.Queued)
}

func TestDispatch_VoiceDisabledAfterPhoneCheck(t *testing.T) {
	h := newHarness(optedIn(), callback.Config{VoiceEnabled: false}, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	res := h.d.Dispatch(context.Background(), request(true))
	assert.Equal(t, "voice disabled", res.Reason)

	prefs := optedIn()
	prefs.PhoneNumber = ""
	h = newHarness(prefs, callback.Config{VoiceEnabled: false}, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	res = h.d.Dispatch(context.Background(), request(false))
	assert.Equal(t, "no phone number", res.Reason)
}

func TestDispatch_QueuedCallIsRecorded(t *testing.T) {
	h := newHarness(optedIn(), voiceOn, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	req := request(false)

	res := h.d.Dispatch(context.Background(), req)
	require.True(t, res.Queued)

	calls := h.tel.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "+15550100", calls[0].Request.To)
	require.NotNil(t, calls[0].Request.Speech)
	assert.Equal(t, []byte("audio"), calls[0].Request.Speech.Audio)
	assert.Equal(t, "audio/ogg", calls[0].Request.Speech.MimeType)
	assert.Equal(t, "callback.ogg", calls[0].Request.Speech.FileName)
	assert.Equal(t, req.TaskID.String(), calls[0].Request.Meta["task_id"])
	assert.Equal(t, true, calls[0].Request.Meta["callback"])

	require.Len(t, h.store.records, 1)
	rec := h.store.records[0]
	assert.Equal(t, model.CallOutbound, rec.Direction)
	assert.Equal(t, model.ChannelPhone, rec.Channel)
	assert.Equal(t, "queued", rec.Status)
	assert.Equal(t, calls[0].Request.Script, rec.Transcript)
	assert.Equal(t, res.CallID, rec.Meta["provider_call_id"])
	require.NotNil(t, rec.TaskID)
	assert.Equal(t, req.TaskID, *rec.TaskID)

	assert.Contains(t, rec.Transcript, "Write my bakery business plan")
	assert.Contains(t, rec.Transcript, "business-agent, create business plan: completed.")
	assert.Contains(t, rec.Transcript, "One file is ready to download")
}

func TestDispatch_ToneShapesVoice(t *testing.T) {
	h := newHarness(optedIn(), voiceOn, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	req := request(false)
	req.Goal = "I'm so stressed, the launch is urgent"

	require.True(t, h.d.Dispatch(context.Background(), req).Queued)
	assert.Equal(t, callback.ParamsFor(model.ToneStressed), h.synth.params)
}

func TestDispatch_SynthesisFailure(t *testing.T) {
	h := newHarness(optedIn(), voiceOn, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	h.synth.err = callback.ErrSynthesisFailed

	res := h.d.Dispatch(context.Background(), request(false))
	assert.Equal(t, model.CallbackResult{Reason: "voice synthesis failed"}, res)
	assert.Empty(t, h.tel.Calls())
	assert.Empty(t, h.store.records)
}

func TestDispatch_CallFailure(t *testing.T) {
	store := &memStore{}
	d := callback.NewDispatcher(staticPrefs{prefs: optedIn()}, nil, failingTelephony{}, store,
		notify.NewComposer("https://d", "https://o"), voiceOn, discard)
	d.SetClock(func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) })

	res := d.Dispatch(context.Background(), request(false))
	assert.Equal(t, "failed to place callback call", res.Reason)
	assert.Empty(t, store.records)
}

func TestDispatch_SaveFailureAfterCallPlaced(t *testing.T) {
	h := newHarness(optedIn(), voiceOn, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	h.store.err = errors.New("db down")

	res := h.d.Dispatch(context.Background(), request(false))
	assert.False(t, res.Queued)
	assert.Equal(t, "failed to save callback call", res.Reason)
	assert.Len(t, h.tel.Calls(), 1, "the call itself was placed")
}

func TestDispatch_PreferencesFailure(t *testing.T) {
	d := callback.NewDispatcher(staticPrefs{err: errors.New("timeout")}, nil, callback.NewMemoryTelephony(), &memStore{},
		notify.NewComposer("https://d", "https://o"), voiceOn, discard)
	res := d.Dispatch(context.Background(), request(true))
	assert.Equal(t, "failed to load callback preferences", res.Reason)
}

func TestDispatch_WithoutSynthesizerProviderReadsScript(t *testing.T) {
	tel := callback.NewMemoryTelephony()
	d := callback.NewDispatcher(staticPrefs{prefs: optedIn()}, nil, tel, &memStore{},
		notify.NewComposer("https://d", "https://o"), voiceOn, discard)
	d.SetClock(func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) })

	require.True(t, d.Dispatch(context.Background(), request(false)).Queued)
	calls := tel.Calls()
	require.Len(t, calls, 1)
	assert.Nil(t, calls[0].Request.Speech)
	assert.NotEmpty(t, calls[0].Request.Script)
}
