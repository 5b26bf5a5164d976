package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ashita-ai/conductor/internal/model"
	"github.com/ashita-ai/conductor/internal/storage"
)

// MemStore is an in-memory stand-in for *storage.DB used by handler-level
// tests that do not need Postgres. It mirrors the not-found and
// complete-once semantics of the real store.
type MemStore struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]model.Task
	calls []model.CallRecord
	chats map[string]model.ChatMessage
	prefs map[string]model.CallbackPreferences
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		tasks: make(map[uuid.UUID]model.Task),
		chats: make(map[string]model.ChatMessage),
		prefs: make(map[string]model.CallbackPreferences),
	}
}

func (m *MemStore) CreateTask(_ context.Context, t model.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	t.Status = model.TaskStatusRunning
	m.tasks[t.ID] = t
	return nil
}

func (m *MemStore) CompleteTask(_ context.Context, id uuid.UUID, status model.TaskStatus, summary string, results []model.SubtaskResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok || t.Status != model.TaskStatusRunning {
		return fmt.Errorf("memstore: complete task %s: %w", id, storage.ErrNotFound)
	}
	now := time.Now().UTC()
	t.Status, t.Summary, t.Results, t.CompletedAt = status, summary, results, &now
	m.tasks[id] = t
	return nil
}

func (m *MemStore) GetTask(_ context.Context, userID string, id uuid.UUID) (model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok || t.UserID != userID {
		return model.Task{}, fmt.Errorf("memstore: task %s: %w", id, storage.ErrNotFound)
	}
	return t, nil
}

func (m *MemStore) ListTasks(_ context.Context, userID string, limit int) ([]model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Task
	for _, t := range m.tasks {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemStore) SaveChatMessage(_ context.Context, msg model.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := fmt.Sprintf("%s/%s/%d", msg.Channel, msg.ChatID, msg.MessageID)
	if _, dup := m.chats[key]; !dup {
		m.chats[key] = msg
	}
	return nil
}

// ChatMessages returns the stored chat messages in no particular order.
func (m *MemStore) ChatMessages() []model.ChatMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.ChatMessage, 0, len(m.chats))
	for _, msg := range m.chats {
		out = append(out, msg)
	}
	return out
}

func (m *MemStore) SaveCall(_ context.Context, rec model.CallRecord) (model.CallRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	m.calls = append(m.calls, rec)
	return rec, nil
}

func (m *MemStore) UpdateCallStatus(_ context.Context, providerCallID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, rec := range m.calls {
		if id, _ := rec.Meta["provider_call_id"].(string); id == providerCallID {
			m.calls[i].Status = status
			return nil
		}
	}
	return fmt.Errorf("memstore: call %s: %w", providerCallID, storage.ErrNotFound)
}

func (m *MemStore) ListCallsByTask(_ context.Context, taskID uuid.UUID) ([]model.CallRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.CallRecord
	for _, rec := range m.calls {
		if rec.TaskID != nil && *rec.TaskID == taskID {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Calls returns a copy of the saved call records in insertion order.
func (m *MemStore) Calls() []model.CallRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.CallRecord(nil), m.calls...)
}

func (m *MemStore) GetPreferences(_ context.Context, userID string) (model.CallbackPreferences, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.prefs[userID]
	if !ok {
		return model.CallbackPreferences{}, fmt.Errorf("memstore: preferences %s: %w", userID, storage.ErrNotFound)
	}
	return p, nil
}

func (m *MemStore) UpsertPreferences(_ context.Context, p model.CallbackPreferences) (model.CallbackPreferences, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.UpdatedAt = time.Now().UTC()
	m.prefs[p.UserID] = p
	return p, nil
}
