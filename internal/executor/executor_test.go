package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/conductor/internal/delegate"
	"github.com/ashita-ai/conductor/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeDelegator fails the actions listed in fail and records call order.
type fakeDelegator struct {
	mu    sync.Mutex
	order []string
	fail  map[string]error
	delay time.Duration
}

func (f *fakeDelegator) Delegate(ctx context.Context, _ delegate.Options, spec model.SubtaskSpec) (map[string]any, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, &delegate.Error{Agent: spec.Agent, Message: "timed out", Retryable: true, Err: ctx.Err()}
		}
	}
	f.mu.Lock()
	f.order = append(f.order, spec.Action)
	f.mu.Unlock()
	if err, ok := f.fail[spec.Action]; ok {
		return nil, err
	}
	return map[string]any{"done": spec.Action}, nil
}

func threeStepPlan() model.TaskPlan {
	return model.TaskPlan{
		MainGoal: "launch",
		TaskType: model.TaskTypeHybrid,
		SubTasks: []model.SubtaskSpec{
			{Agent: model.AgentBusiness, Action: "one", Input: map[string]any{"goal": "launch"}},
			{Agent: model.AgentSocial, Action: "two"},
			{Agent: model.AgentVoice, Action: "three"},
		},
	}
}

func TestRunAllCompleted(t *testing.T) {
	d := &fakeDelegator{}
	status, results := New(d, Config{}, discardLogger()).Run(context.Background(), threeStepPlan(), delegate.Options{})

	assert.Equal(t, model.TaskStatusCompleted, status)
	require.Len(t, results, 3)
	assert.Equal(t, []string{"one", "two", "three"}, d.order)
	for _, r := range results {
		assert.Equal(t, model.SubtaskStatusCompleted, r.Status)
		assert.Equal(t, r.Action, r.Output["done"])
		assert.Empty(t, r.Error)
	}
	assert.Equal(t, "launch", results[0].Input["goal"], "input is echoed")
}

func TestRunMiddleFailureIsPartial(t *testing.T) {
	d := &fakeDelegator{fail: map[string]error{
		"two": &delegate.Error{Agent: model.AgentSocial, Message: "social-media returned status 503: busy", Retryable: true},
	}}
	status, results := New(d, Config{}, discardLogger()).Run(context.Background(), threeStepPlan(), delegate.Options{})

	assert.Equal(t, model.TaskStatusPartial, status)
	require.Len(t, results, 3)
	assert.Equal(t, []string{"one", "two", "three"}, d.order, "failure does not abort the loop")

	assert.Equal(t, model.SubtaskStatusCompleted, results[0].Status)
	assert.Equal(t, model.SubtaskStatusFailed, results[1].Status)
	assert.Equal(t, "social-media returned status 503: busy", results[1].Error)
	assert.Nil(t, results[1].Output)
	assert.True(t, results[1].Retryable)
	assert.Equal(t, model.SubtaskStatusCompleted, results[2].Status)
}

func TestRunAllFailed(t *testing.T) {
	boom := errors.New("boom")
	d := &fakeDelegator{fail: map[string]error{"one": boom, "two": boom, "three": boom}}
	status, results := New(d, Config{}, discardLogger()).Run(context.Background(), threeStepPlan(), delegate.Options{})

	assert.Equal(t, model.TaskStatusFailed, status)
	for _, r := range results {
		assert.Equal(t, model.SubtaskStatusFailed, r.Status)
		assert.False(t, r.Retryable, "plain errors carry no retry hint")
	}
}

func TestRunEmptyPlanFails(t *testing.T) {
	status, results := New(&fakeDelegator{}, Config{}, discardLogger()).Run(context.Background(), model.TaskPlan{}, delegate.Options{})
	assert.Equal(t, model.TaskStatusFailed, status)
	assert.Empty(t, results)
}

func TestRunSubtaskTimeout(t *testing.T) {
	d := &fakeDelegator{delay: time.Second}
	plan := model.TaskPlan{SubTasks: []model.SubtaskSpec{{Agent: model.AgentVoice, Action: "slow"}}}

	start := time.Now()
	status, results := New(d, Config{SubtaskTimeout: 20 * time.Millisecond}, discardLogger()).Run(context.Background(), plan, delegate.Options{})

	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, model.TaskStatusFailed, status)
	assert.True(t, results[0].Retryable)
}

func TestRunIgnoresCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := &fakeDelegator{delay: 5 * time.Millisecond}
	status, _ := New(d, Config{}, discardLogger()).Run(ctx, threeStepPlan(), delegate.Options{})
	assert.Equal(t, model.TaskStatusCompleted, status)
}

type concurrencyProbe struct {
	active, peak atomic.Int32
}

func (p *concurrencyProbe) Delegate(_ context.Context, _ delegate.Options, spec model.SubtaskSpec) (map[string]any, error) {
	n := p.active.Add(1)
	for {
		old := p.peak.Load()
		if n <= old || p.peak.CompareAndSwap(old, n) {
			break
		}
	}
	time.Sleep(30 * time.Millisecond)
	p.active.Add(-1)
	if spec.Action == "two" {
		return nil, errors.New("nope")
	}
	return map[string]any{"action": spec.Action}, nil
}

func TestRunParallelKeepsOrder(t *testing.T) {
	p := &concurrencyProbe{}
	status, results := New(p, Config{Parallel: true}, discardLogger()).Run(context.Background(), threeStepPlan(), delegate.Options{})

	assert.Equal(t, model.TaskStatusPartial, status)
	require.Len(t, results, 3)
	assert.Equal(t, "one", results[0].Action)
	assert.Equal(t, "two", results[1].Action)
	assert.Equal(t, "three", results[2].Action)
	assert.Greater(t, p.peak.Load(), int32(1))
}

func TestRunParallelLimit(t *testing.T) {
	p := &concurrencyProbe{}
	New(p, Config{Parallel: true, MaxParallel: 1}, discardLogger()).Run(context.Background(), threeStepPlan(), delegate.Options{})
	assert.Equal(t, int32(1), p.peak.Load())
}
