package testutil

import (
	"time"

	"github.com/ashita-ai/conductor/internal/callback"
	"github.com/ashita-ai/conductor/internal/executor"
	"github.com/ashita-ai/conductor/internal/notify"
	"github.com/ashita-ai/conductor/internal/prefcache"
	"github.com/ashita-ai/conductor/internal/quiethours"
	"github.com/ashita-ai/conductor/internal/service/tasks"
)

// Stack is a fully wired task service over in-memory storage and telephony.
type Stack struct {
	Store     *MemStore
	Telephony *callback.MemoryTelephony
	Service   *tasks.Service
}

// NewStack wires the real executor, dispatcher and preference cache around
// d. The dispatcher clock is pinned to noon UTC so default quiet hours never
// apply.
func NewStack(d executor.Delegator) *Stack {
	logger := TestLogger()
	store := NewMemStore()
	tel := callback.NewMemoryTelephony()
	composer := notify.NewComposer("https://app.test/dashboard", "https://app.test")
	prefs := prefcache.New(store, 100, time.Minute, quiethours.Default("22:00", "08:00"))

	dispatcher := callback.NewDispatcher(prefs, nil, tel, store, composer,
		callback.Config{VoiceEnabled: true, MaxDuration: 90 * time.Second}, logger)
	dispatcher.SetClock(func() time.Time { return time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC) })

	run := executor.New(d, executor.Config{SubtaskTimeout: 5 * time.Second}, logger)
	svc := tasks.New(store, run, d, dispatcher, prefs, composer, logger)
	return &Stack{Store: store, Telephony: tel, Service: svc}
}
