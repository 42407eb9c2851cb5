package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/noty/internal/automation/domain"
	"github.com/smallbiznis/noty/internal/clock"
	"github.com/smallbiznis/noty/internal/events"
	obsctx "github.com/smallbiznis/noty/internal/observability/context"
	"github.com/smallbiznis/noty/internal/observability/metrics"
	"github.com/smallbiznis/noty/internal/observability/tracing"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RunFunc is the work executed under the coordinator.
type RunFunc func(ctx context.Context) (domain.Result, error)

type CoordinatorParams struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Runs    domain.Repository
	Outbox  *events.Outbox             `optional:"true"`
	Metrics *metrics.AutomationMetrics `optional:"true"`
}

// Coordinator runs automations with at most one in-flight run per type and
// keeps the run audit trail.
type Coordinator struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	runs    domain.Repository
	outbox  *events.Outbox
	metrics *metrics.AutomationMetrics

	mu      sync.Mutex
	running map[domain.AutomationType]struct{}
}

func NewCoordinator(p CoordinatorParams) *Coordinator {
	return &Coordinator{
		db:      p.DB,
		log:     p.Log.Named("automation.coordinator"),
		genID:   p.GenID,
		clock:   p.Clock,
		runs:    p.Runs,
		outbox:  p.Outbox,
		metrics: p.Metrics,
		running: make(map[domain.AutomationType]struct{}),
	}
}

func (c *Coordinator) acquire(automationType domain.AutomationType) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.running[automationType]; busy {
		return false
	}
	c.running[automationType] = struct{}{}
	return true
}

func (c *Coordinator) release(automationType domain.AutomationType) {
	c.mu.Lock()
	delete(c.running, automationType)
	c.mu.Unlock()
}

// Running reports whether a run of the given type is in flight.
func (c *Coordinator) Running(automationType domain.AutomationType) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, busy := c.running[automationType]
	return busy
}

// RunExclusive executes fn unless a run of the same type is in flight, in
// which case it returns ErrAlreadyRunning without executing. The failure of a
// scheduled run is recorded and not returned.
func (c *Coordinator) RunExclusive(ctx context.Context, automationType domain.AutomationType, trigger domain.Trigger, fn RunFunc) (*domain.AutomationRun, error) {
	log := c.log.With(zap.String("automation", string(automationType)), zap.String("trigger", string(trigger)))
	if !c.acquire(automationType) {
		c.metrics.IncRunSkipped(string(automationType), string(trigger))
		log.Info("automation already running, skipping")
		return nil, domain.ErrAlreadyRunning
	}
	defer c.release(automationType)

	started := c.clock.Now()
	run := &domain.AutomationRun{
		ID:        c.genID.Generate(),
		Type:      automationType,
		Trigger:   trigger,
		Status:    domain.RunStatusStarted,
		StartedAt: started,
	}
	if err := c.runs.Insert(ctx, c.db, run); err != nil {
		log.Error("failed to record automation start", zap.Error(err))
		if trigger == domain.TriggerScheduled {
			return nil, nil
		}
		return nil, err
	}

	runCtx, span := tracing.Start(obsctx.WithAutomationType(ctx, string(automationType)), "automation.run",
		tracing.AttrAutomationType.String(string(automationType)),
		tracing.AttrTrigger.String(string(trigger)),
		tracing.AttrRunID.String(run.ID.String()),
	)
	result, runErr := c.invoke(runCtx, fn)
	tracing.End(span, runErr)

	finished := c.clock.Now()
	run.CompletedAt = &finished
	run.DurationMs = finished.Sub(started).Milliseconds()
	c.finish(run, result, runErr)

	// The completion update must land even when the caller's context ended.
	if err := c.runs.Complete(context.WithoutCancel(ctx), c.db, run); err != nil {
		log.Error("failed to record automation completion", zap.Error(err))
	}
	c.publishFinished(context.WithoutCancel(ctx), run)
	c.metrics.ObserveRun(string(automationType), string(trigger), string(run.Status), finished.Sub(started))

	switch run.Status {
	case domain.RunStatusFailed:
		log.Error("automation failed", zap.Int64("duration_ms", run.DurationMs), zap.Error(runErr))
		if trigger == domain.TriggerScheduled {
			return run, nil
		}
		return run, runErr
	case domain.RunStatusPartial:
		log.Warn("automation finished with errors", zap.Int64("duration_ms", run.DurationMs))
	default:
		log.Info("automation completed", zap.Int64("duration_ms", run.DurationMs))
	}
	return run, nil
}

// invoke runs fn and turns a panic into an error carrying the stack.
func (c *Coordinator) invoke(ctx context.Context, fn RunFunc) (result domain.Result, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			result = nil
			err = &panicError{value: rec, stack: string(debug.Stack())}
		}
	}()
	return fn(ctx)
}

type panicError struct {
	value any
	stack string
}

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.value) }

func (e *panicError) Unwrap() error { return domain.ErrRunPanicked }

func (c *Coordinator) finish(run *domain.AutomationRun, result domain.Result, runErr error) {
	if result != nil {
		counters := result.Counters()
		run.ClientsProcessed = counters.ClientsProcessed
		run.PaymentsProcessed = counters.PaymentsProcessed
		run.MessagesSent = counters.MessagesSent
		run.MessagesFailed = counters.MessagesFailed
		if summary, err := json.Marshal(result); err == nil {
			run.Summary = datatypes.JSON(summary)
		}
	}

	switch {
	case runErr != nil:
		run.Status = domain.RunStatusFailed
		runError := domain.RunError{Message: runErr.Error()}
		var pe *panicError
		if errors.As(runErr, &pe) {
			runError.Stack = pe.stack
		}
		if payload, err := json.Marshal(runError); err == nil {
			run.Error = datatypes.JSON(payload)
		}
	case result != nil && len(result.ItemErrors()) > 0:
		run.Status = domain.RunStatusPartial
		if payload, err := json.Marshal(map[string]any{"errors": result.ItemErrors()}); err == nil {
			run.Error = datatypes.JSON(payload)
		}
	default:
		run.Status = domain.RunStatusCompleted
	}
}

func (c *Coordinator) publishFinished(ctx context.Context, run *domain.AutomationRun) {
	if c.outbox == nil {
		return
	}
	err := c.outbox.Publish(ctx, events.Event{
		Type:        events.EventAutomationFinished,
		AggregateID: run.ID.String(),
		Payload: map[string]any{
			"run_id":      run.ID.String(),
			"type":        string(run.Type),
			"trigger":     string(run.Trigger),
			"status":      string(run.Status),
			"duration_ms": run.DurationMs,
		},
		DedupeKey: "automation_run:" + run.ID.String(),
	})
	if err != nil {
		c.log.Warn("failed to publish automation event", zap.Error(err))
	}
}

// Runs lists recent run records, newest first.
func (c *Coordinator) Runs(ctx context.Context, filter domain.ListFilter) ([]domain.AutomationRun, error) {
	return c.runs.List(ctx, c.db, filter)
}
