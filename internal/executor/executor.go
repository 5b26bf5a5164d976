// Package executor runs a task plan against the domain agents.
//
// Sub-tasks run in plan order, one at a time by default. A failing
// sub-task is recorded and the loop moves on; nothing is retried. The
// aggregate status is derived from the collected results.
package executor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/ashita-ai/conductor/internal/delegate"
	"github.com/ashita-ai/conductor/internal/model"
	"github.com/ashita-ai/conductor/internal/telemetry"
)

// Delegator performs one delegated sub-task. *delegate.Client satisfies it.
type Delegator interface {
	Delegate(ctx context.Context, opts delegate.Options, spec model.SubtaskSpec) (map[string]any, error)
}

// Config tunes execution.
type Config struct {
	// SubtaskTimeout bounds each delegate call. Zero means no bound beyond
	// the caller's own transport timeout.
	SubtaskTimeout time.Duration
	// Parallel runs sub-tasks concurrently. Results keep plan order.
	Parallel bool
	// MaxParallel caps concurrent sub-tasks in parallel mode (0 = unlimited).
	MaxParallel int
}

// Executor runs plans.
type Executor struct {
	delegator Delegator
	cfg       Config
	logger    *slog.Logger

	subtaskDuration metric.Float64Histogram
	taskCount       metric.Int64Counter
}

// New creates an Executor.
func New(d Delegator, cfg Config, logger *slog.Logger) *Executor {
	meter := telemetry.Meter("conductor/executor")
	dur, _ := meter.Float64Histogram("conductor.subtask.duration",
		metric.WithDescription("Time spent on one delegated sub-task (ms)"),
		metric.WithUnit("ms"),
	)
	count, _ := meter.Int64Counter("conductor.task.count",
		metric.WithDescription("Executed tasks by aggregate status"),
	)
	return &Executor{
		delegator:       d,
		cfg:             cfg,
		logger:          logger,
		subtaskDuration: dur,
		taskCount:       count,
	}
}

var tracer = telemetry.Tracer("conductor/executor")

// Run executes every sub-task of plan and returns the aggregate status
// with one result per sub-task, in plan order. Cancellation of ctx is not
// propagated into sub-tasks already started or still pending: each one
// runs to completion or to its own timeout.
func (e *Executor) Run(ctx context.Context, plan model.TaskPlan, opts delegate.Options) (model.TaskStatus, []model.SubtaskResult) {
	ctx, span := tracer.Start(ctx, "executor.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("conductor.task_type", string(plan.TaskType)),
		attribute.Int("conductor.subtasks", len(plan.SubTasks)),
	)

	detached := context.WithoutCancel(ctx)
	results := make([]model.SubtaskResult, len(plan.SubTasks))

	if e.cfg.Parallel && len(plan.SubTasks) > 1 {
		var g errgroup.Group
		if e.cfg.MaxParallel > 0 {
			g.SetLimit(e.cfg.MaxParallel)
		}
		for i, spec := range plan.SubTasks {
			g.Go(func() error {
				results[i] = e.runOne(detached, opts, spec)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i, spec := range plan.SubTasks {
			results[i] = e.runOne(detached, opts, spec)
		}
	}

	status := model.AggregateStatus(results)
	span.SetAttributes(attribute.String("conductor.status", string(status)))
	if e.taskCount != nil {
		e.taskCount.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(status))))
	}
	e.logger.Info("executor: plan finished",
		"task_type", plan.TaskType,
		"subtasks", len(results),
		"status", status,
	)
	return status, results
}

func (e *Executor) runOne(ctx context.Context, opts delegate.Options, spec model.SubtaskSpec) model.SubtaskResult {
	ctx, span := tracer.Start(ctx, "executor.subtask")
	defer span.End()
	span.SetAttributes(
		attribute.String("conductor.agent", string(spec.Agent)),
		attribute.String("conductor.action", spec.Action),
	)

	if e.cfg.SubtaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.SubtaskTimeout)
		defer cancel()
	}

	start := time.Now()
	output, err := e.delegator.Delegate(ctx, opts, spec)
	elapsed := time.Since(start)

	res := model.SubtaskResult{
		ID:         uuid.New(),
		Agent:      spec.Agent,
		Action:     spec.Action,
		Input:      spec.Input,
		DurationMS: elapsed.Milliseconds(),
		CreatedAt:  time.Now().UTC(),
	}
	if err != nil {
		res.Status = model.SubtaskStatusFailed
		res.Error = err.Error()
		var derr *delegate.Error
		if errors.As(err, &derr) {
			res.Retryable = derr.Retryable
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, res.Error)
		e.logger.Warn("executor: subtask failed",
			"agent", spec.Agent, "action", spec.Action, "error", err, "retryable", res.Retryable)
	} else {
		res.Status = model.SubtaskStatusCompleted
		res.Output = output
		if res.Output == nil {
			res.Output = map[string]any{}
		}
	}

	if e.subtaskDuration != nil {
		e.subtaskDuration.Record(ctx, float64(elapsed.Milliseconds()), metric.WithAttributes(
			attribute.String("agent", string(spec.Agent)),
			attribute.String("status", string(res.Status)),
		))
	}
	return res
}
