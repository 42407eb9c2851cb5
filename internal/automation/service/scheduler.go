package service

import (
	"context"
	"errors"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/smallbiznis/noty/internal/automation/domain"
	"github.com/smallbiznis/noty/internal/clock"
	"github.com/smallbiznis/noty/internal/settings"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var scheduleKeys = map[domain.AutomationType]string{
	domain.AutomationSync:     settings.KeyScheduleSync,
	domain.AutomationWarnings: settings.KeyScheduleWarnings,
	domain.AutomationOverdue:  settings.KeyScheduleOverdue,
	domain.AutomationBlock:    settings.KeyScheduleBlock,
}

type SchedulerParams struct {
	fx.In

	Log      *zap.Logger
	Calendar clock.Calendar
	Settings *settings.Store
	Runner   *Runner
}

// Scheduler fires the automations on the cron expressions stored in
// settings, in the business time zone.
type Scheduler struct {
	log      *zap.Logger
	settings *settings.Store
	runner   *Runner
	cron     *cron.Cron

	mu      sync.Mutex
	entries map[domain.AutomationType]cron.EntryID
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewScheduler(p SchedulerParams) *Scheduler {
	log := p.Log.Named("automation.scheduler")
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		log:      log,
		settings: p.Settings,
		runner:   p.Runner,
		cron: cron.New(
			cron.WithLocation(p.Calendar.Location),
			cron.WithChain(cron.Recover(cronLogger{log: log})),
		),
		entries: make(map[domain.AutomationType]cron.EntryID),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.Reload(ctx); err != nil {
		return err
	}
	s.cron.Start()
	s.log.Info("scheduler started")
	return nil
}

// Stop cancels in-flight runs and waits for them to return.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reload re-reads every schedule from settings and replaces the cron entries.
// An invalid expression keeps the previous entry for that automation.
func (s *Scheduler) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, automationType := range domain.AutomationTypes {
		spec, err := s.settings.Get(ctx, scheduleKeys[automationType])
		if err != nil {
			return err
		}
		id, err := s.cron.AddJob(spec, s.job(automationType))
		if err != nil {
			s.log.Warn("invalid schedule, keeping previous",
				zap.String("automation", string(automationType)),
				zap.String("schedule", spec),
				zap.Error(err),
			)
			continue
		}
		if previous, ok := s.entries[automationType]; ok {
			s.cron.Remove(previous)
		}
		s.entries[automationType] = id
		s.log.Info("automation scheduled", zap.String("automation", string(automationType)), zap.String("schedule", spec))
	}
	return nil
}

func (s *Scheduler) job(automationType domain.AutomationType) cron.Job {
	return cron.FuncJob(func() {
		_, err := s.runner.Run(s.ctx, automationType, domain.TriggerScheduled)
		if err != nil && !errors.Is(err, domain.ErrAlreadyRunning) {
			s.log.Error("scheduled automation failed", zap.String("automation", string(automationType)), zap.Error(err))
		}
	})
}

type cronLogger struct {
	log *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
