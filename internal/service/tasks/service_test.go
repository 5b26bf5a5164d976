package tasks_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/conductor/internal/callback"
	"github.com/ashita-ai/conductor/internal/delegate"
	"github.com/ashita-ai/conductor/internal/executor"
	"github.com/ashita-ai/conductor/internal/model"
	"github.com/ashita-ai/conductor/internal/notify"
	"github.com/ashita-ai/conductor/internal/service/tasks"
	"github.com/ashita-ai/conductor/internal/storage"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type memStore struct {
	mu          sync.Mutex
	tasks       map[uuid.UUID]model.Task
	chats       []model.ChatMessage
	statuses    map[string]string
	completeErr error
}

func newMemStore() *memStore {
	return &memStore{tasks: map[uuid.UUID]model.Task{}, statuses: map[string]string{}}
}

func (m *memStore) CreateTask(_ context.Context, t model.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[t.ID] = t
	return nil
}

func (m *memStore) CompleteTask(_ context.Context, id uuid.UUID, status model.TaskStatus, summary string, results []model.SubtaskResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.completeErr != nil {
		return m.completeErr
	}
	t := m.tasks[id]
	t.Status, t.Summary, t.Results = status, summary, results
	m.tasks[id] = t
	return nil
}

func (m *memStore) GetTask(_ context.Context, userID string, id uuid.UUID) (model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok || t.UserID != userID {
		return model.Task{}, storage.ErrNotFound
	}
	return t, nil
}

func (m *memStore) ListTasks(_ context.Context, userID string, _ int) ([]model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Task
	for _, t := range m.tasks {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memStore) SaveChatMessage(_ context.Context, msg model.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chats = append(m.chats, msg)
	return nil
}

func (m *memStore) ListCallsByTask(context.Context, uuid.UUID) ([]model.CallRecord, error) {
	return nil, nil
}

func (m *memStore) UpdateCallStatus(_ context.Context, id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[id] = status
	return nil
}

// scriptedDelegator fails the agents listed in fail.
type scriptedDelegator struct {
	fail map[model.AgentName]bool
	seen []delegate.Options
}

func (d *scriptedDelegator) Delegate(_ context.Context, opts delegate.Options, spec model.SubtaskSpec) (map[string]any, error) {
	d.seen = append(d.seen, opts)
	if d.fail[spec.Agent] {
		return nil, &delegate.Error{Agent: spec.Agent, StatusCode: 503, Message: string(spec.Agent) + " returned status 503", Retryable: true}
	}
	return map[string]any{"ok": true, "agent": string(spec.Agent)}, nil
}

type recordingDispatcher struct {
	reqs []callback.Request
}

func (r *recordingDispatcher) Dispatch(_ context.Context, req callback.Request) model.CallbackResult {
	r.reqs = append(r.reqs, req)
	return model.CallbackResult{Queued: true, CallID: "mock-1", Provider: "mock"}
}

type memPrefs struct {
	prefs map[string]model.CallbackPreferences
}

func (m *memPrefs) Get(_ context.Context, userID string) (model.CallbackPreferences, error) {
	p, ok := m.prefs[userID]
	if !ok {
		return model.CallbackPreferences{UserID: userID}, nil
	}
	return p, nil
}

func (m *memPrefs) Put(_ context.Context, p model.CallbackPreferences) (model.CallbackPreferences, error) {
	m.prefs[p.UserID] = p
	return p, nil
}

type fixture struct {
	svc        *tasks.Service
	store      *memStore
	delegator  *scriptedDelegator
	dispatcher *recordingDispatcher
	prefs      *memPrefs
}

func newFixture() fixture {
	f := fixture{
		store:      newMemStore(),
		delegator:  &scriptedDelegator{fail: map[model.AgentName]bool{}},
		dispatcher: &recordingDispatcher{},
		prefs:      &memPrefs{prefs: map[string]model.CallbackPreferences{}},
	}
	exec := executor.New(f.delegator, executor.Config{}, discard)
	f.svc = tasks.New(f.store, exec, f.delegator, f.dispatcher, f.prefs,
		notify.NewComposer("https://app.example.com/dashboard", "https://app.example.com"), discard)
	return f
}

func TestRun_ValidationBeforePlanning(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Run(context.Background(), "u1", model.RunTaskRequest{Goal: "   "}, delegate.Options{})
	require.ErrorIs(t, err, tasks.ErrInvalidInput)
	assert.Empty(t, f.store.tasks)
	assert.Empty(t, f.delegator.seen)
}

func TestRun_PartialFailurePersisted(t *testing.T) {
	f := newFixture()
	f.delegator.fail[model.AgentSocial] = true

	resp, err := f.svc.Run(context.Background(), "u1",
		model.RunTaskRequest{Goal: "business plan, 3 instagram posts and a voiceover"}, delegate.Options{})
	require.NoError(t, err)

	assert.Equal(t, model.TaskTypeHybrid, resp.TaskType)
	assert.Equal(t, model.TaskStatusPartial, resp.Status)
	require.Len(t, resp.Results, 3)
	assert.Equal(t, model.SubtaskStatusFailed, resp.Results[1].Status)
	assert.True(t, resp.Results[1].Retryable)
	assert.Equal(t, "https://app.example.com/dashboard/tasks/"+resp.TaskID.String(), resp.DashboardURL)
	assert.Contains(t, resp.Message, "2 of 3 steps completed; 1 failed.")
	assert.Contains(t, resp.Message, "❌ social-media: generate_posts")
	assert.True(t, strings.HasSuffix(resp.Message, "Details: "+resp.DashboardURL), resp.Message)
	assert.Nil(t, resp.Callback)
	assert.Empty(t, f.dispatcher.reqs)

	stored := f.store.tasks[resp.TaskID]
	assert.Equal(t, model.TaskStatusPartial, stored.Status)
	assert.Len(t, stored.Results, 3)
}

func TestRun_CallbackRequested(t *testing.T) {
	f := newFixture()
	resp, err := f.svc.Run(context.Background(), "u1",
		model.RunTaskRequest{Goal: "make me an avatar", Callback: true}, delegate.Options{})
	require.NoError(t, err)

	require.NotNil(t, resp.Callback)
	assert.True(t, resp.Callback.Queued)
	require.Len(t, f.dispatcher.reqs, 1)
	req := f.dispatcher.reqs[0]
	assert.Equal(t, resp.TaskID, req.TaskID)
	assert.False(t, req.Force)
	assert.Equal(t, resp.DashboardURL, req.DashboardURL)
}

func TestRun_DemoModeForwarded(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Run(context.Background(), "u1",
		model.RunTaskRequest{Goal: "social posts", DemoMode: true}, delegate.Options{Origin: "http://agents"})
	require.NoError(t, err)
	require.Len(t, f.delegator.seen, 1)
	assert.True(t, f.delegator.seen[0].DemoMode)
	assert.Equal(t, "http://agents", f.delegator.seen[0].Origin)
}

func TestRun_RelatedTaskMustBelongToUser(t *testing.T) {
	f := newFixture()
	first, err := f.svc.Run(context.Background(), "owner", model.RunTaskRequest{Goal: "business plan"}, delegate.Options{})
	require.NoError(t, err)

	_, err = f.svc.Run(context.Background(), "intruder",
		model.RunTaskRequest{Goal: "follow up", RelatedTaskID: &first.TaskID}, delegate.Options{})
	assert.ErrorIs(t, err, tasks.ErrInvalidInput)

	resp, err := f.svc.Run(context.Background(), "owner",
		model.RunTaskRequest{Goal: "follow up", RelatedTaskID: &first.TaskID}, delegate.Options{})
	require.NoError(t, err)
	require.NotNil(t, f.store.tasks[resp.TaskID].RelatedTaskID)
}

func TestRun_PersistFailureStillReturnsOutcome(t *testing.T) {
	f := newFixture()
	f.store.completeErr = errors.New("db down")
	resp, err := f.svc.Run(context.Background(), "u1", model.RunTaskRequest{Goal: "business plan"}, delegate.Options{})
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusCompleted, resp.Status)
}

func TestGet_RecomputesStatus(t *testing.T) {
	f := newFixture()
	id := uuid.New()
	f.store.tasks[id] = model.Task{
		ID: id, UserID: "u1", Status: model.TaskStatusCompleted,
		Results: []model.SubtaskResult{{Status: model.SubtaskStatusCompleted}, {Status: model.SubtaskStatusFailed}},
	}
	task, err := f.svc.Get(context.Background(), "u1", id)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusPartial, task.Status)

	_, err = f.svc.Get(context.Background(), "u2", id)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCallback_ForceForwarded(t *testing.T) {
	f := newFixture()
	resp, err := f.svc.Run(context.Background(), "u1", model.RunTaskRequest{Goal: "business plan"}, delegate.Options{})
	require.NoError(t, err)

	res, err := f.svc.Callback(context.Background(), "u1", resp.TaskID, true)
	require.NoError(t, err)
	assert.True(t, res.Queued)
	require.Len(t, f.dispatcher.reqs, 1)
	assert.True(t, f.dispatcher.reqs[0].Force)
	assert.Equal(t, "All 1 steps completed.", f.dispatcher.reqs[0].Summary)
}

func TestCallback_RunningTaskRejected(t *testing.T) {
	f := newFixture()
	id := uuid.New()
	f.store.tasks[id] = model.Task{ID: id, UserID: "u1", Status: model.TaskStatusRunning}
	_, err := f.svc.Callback(context.Background(), "u1", id, false)
	assert.ErrorIs(t, err, tasks.ErrInvalidInput)
}

func TestDelegate(t *testing.T) {
	f := newFixture()
	out, err := f.svc.Delegate(context.Background(),
		model.DelegateRequest{AgentName: model.AgentAvatar, Action: "generate_avatar"}, delegate.Options{})
	require.NoError(t, err)
	assert.Equal(t, true, out["ok"])

	_, err = f.svc.Delegate(context.Background(), model.DelegateRequest{AgentName: "nope", Action: "x"}, delegate.Options{})
	assert.ErrorIs(t, err, tasks.ErrInvalidInput)

	f.delegator.fail[model.AgentMarketplace] = true
	_, err = f.svc.Delegate(context.Background(),
		model.DelegateRequest{AgentName: model.AgentMarketplace, Action: "create_listing"}, delegate.Options{})
	var derr *delegate.Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, 503, derr.StatusCode)
}

func TestUpdatePreferences(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	p, err := f.svc.UpdatePreferences(ctx, "u1", model.UpdatePreferencesRequest{
		PhoneNumber:        "+1 (555) 010-0100",
		CallMeWhenFinished: true,
		QuietHours:         model.QuietHours{Enabled: true, Start: "22:00", End: "07:30"},
	})
	require.NoError(t, err)
	assert.Equal(t, "+15550100100", p.PhoneNumber)

	_, err = f.svc.UpdatePreferences(ctx, "u1", model.UpdatePreferencesRequest{PhoneNumber: "call me"})
	assert.ErrorIs(t, err, tasks.ErrInvalidInput)

	_, err = f.svc.UpdatePreferences(ctx, "u1", model.UpdatePreferencesRequest{CallMeWhenFinished: true})
	assert.ErrorIs(t, err, tasks.ErrInvalidInput)

	_, err = f.svc.UpdatePreferences(ctx, "u1", model.UpdatePreferencesRequest{
		QuietHours: model.QuietHours{Enabled: true, Start: "25:00", End: "07:00"},
	})
	assert.ErrorIs(t, err, tasks.ErrInvalidInput)
}

func TestRecordChatMessageAndCallStatus(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	require.NoError(t, f.svc.RecordChatMessage(ctx, model.ChatMessage{Channel: model.ChannelTelegram, ChatID: "1", MessageID: 2}))
	assert.Len(t, f.store.chats, 1)

	require.NoError(t, f.svc.UpdateCallStatus(ctx, "mock-1", "completed"))
	assert.Equal(t, "completed", f.store.statuses["mock-1"])
	assert.ErrorIs(t, f.svc.UpdateCallStatus(ctx, "", "completed"), tasks.ErrInvalidInput)
}
