package prefcache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/conductor/internal/model"
	"github.com/ashita-ai/conductor/internal/storage"
)

type fakeStore struct {
	mu      sync.Mutex
	prefs   map[string]model.CallbackPreferences
	gets    int
	failGet error
	failPut error
}

func newFakeStore() *fakeStore {
	return &fakeStore{prefs: map[string]model.CallbackPreferences{}}
}

func (f *fakeStore) GetPreferences(_ context.Context, userID string) (model.CallbackPreferences, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.failGet != nil {
		return model.CallbackPreferences{}, f.failGet
	}
	p, ok := f.prefs[userID]
	if !ok {
		return model.CallbackPreferences{}, storage.ErrNotFound
	}
	return p, nil
}

func (f *fakeStore) UpsertPreferences(_ context.Context, p model.CallbackPreferences) (model.CallbackPreferences, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPut != nil {
		return model.CallbackPreferences{}, f.failPut
	}
	p.UpdatedAt = time.Now().UTC()
	f.prefs[p.UserID] = p
	return p, nil
}

var defaultQuiet = model.QuietHours{Enabled: true, Start: "22:00", End: "08:00"}

func TestCache_DefaultsForUnknownUser(t *testing.T) {
	store := newFakeStore()
	c := New(store, 10, time.Minute, defaultQuiet)

	p, err := c.Get(context.Background(), "new-user")
	require.NoError(t, err)
	assert.Equal(t, "new-user", p.UserID)
	assert.Empty(t, p.PhoneNumber)
	assert.False(t, p.CallMeWhenFinished)
	assert.Equal(t, defaultQuiet, p.QuietHours)

	_, err = c.Get(context.Background(), "new-user")
	require.NoError(t, err)
	assert.Equal(t, 1, store.gets, "defaults should be cached")
}

func TestCache_HitAvoidsStore(t *testing.T) {
	store := newFakeStore()
	store.prefs["u1"] = model.CallbackPreferences{UserID: "u1", PhoneNumber: "+1555"}
	c := New(store, 10, time.Minute, defaultQuiet)

	for range 3 {
		p, err := c.Get(context.Background(), "u1")
		require.NoError(t, err)
		assert.Equal(t, "+1555", p.PhoneNumber)
	}
	assert.Equal(t, 1, store.gets)
}

func TestCache_PutWritesThrough(t *testing.T) {
	store := newFakeStore()
	c := New(store, 10, time.Minute, defaultQuiet)

	_, err := c.Get(context.Background(), "u1")
	require.NoError(t, err)

	_, err = c.Put(context.Background(), model.CallbackPreferences{UserID: "u1", PhoneNumber: "+1999", CallMeWhenFinished: true})
	require.NoError(t, err)

	p, err := c.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "+1999", p.PhoneNumber)
	assert.True(t, p.CallMeWhenFinished)
	assert.Equal(t, 1, store.gets)
	assert.Equal(t, "+1999", store.prefs["u1"].PhoneNumber)
}

func TestCache_PutFailureDropsEntry(t *testing.T) {
	store := newFakeStore()
	c := New(store, 10, time.Minute, defaultQuiet)
	_, _ = c.Get(context.Background(), "u1")
	require.Equal(t, 1, c.Len())

	store.failPut = errors.New("db down")
	_, err := c.Put(context.Background(), model.CallbackPreferences{UserID: "u1"})
	require.Error(t, err)
	assert.Equal(t, 0, c.Len())
}

func TestCache_StoreErrorNotCached(t *testing.T) {
	store := newFakeStore()
	store.failGet = errors.New("connection refused")
	c := New(store, 10, time.Minute, defaultQuiet)

	_, err := c.Get(context.Background(), "u1")
	require.Error(t, err)
	assert.Equal(t, 0, c.Len())
}

func TestCache_Expiry(t *testing.T) {
	store := newFakeStore()
	c := New(store, 10, 50*time.Millisecond, defaultQuiet)

	_, err := c.Get(context.Background(), "u1")
	require.NoError(t, err)

	time.Sleep(80 * time.Millisecond)

	_, err = c.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, store.gets, "expired entry should be reloaded")
}

func TestCache_SizeBound(t *testing.T) {
	store := newFakeStore()
	c := New(store, 2, time.Minute, defaultQuiet)

	for _, u := range []string{"a", "b", "c"} {
		_, err := c.Get(context.Background(), u)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, c.Len())
}

func TestCache_Invalidate(t *testing.T) {
	store := newFakeStore()
	c := New(store, 10, time.Minute, defaultQuiet)
	_, _ = c.Get(context.Background(), "u1")
	c.Invalidate("u1")
	_, _ = c.Get(context.Background(), "u1")
	assert.Equal(t, 2, store.gets)
}
