package service

import (
	"context"
	"errors"
	"testing"

	"github.com/smallbiznis/noty/internal/automation/domain"
	"github.com/smallbiznis/noty/internal/clock"
	"github.com/smallbiznis/noty/internal/settings"
	"github.com/smallbiznis/noty/internal/testutil"
	"go.uber.org/zap"
)

func TestSchedulerReloadReplacesEntries(t *testing.T) {
	db := testutil.OpenDB(t, &settings.Setting{})
	store := settings.NewStore(settings.Params{DB: db, Log: zap.NewNop()})
	scheduler := NewScheduler(SchedulerParams{
		Log:      zap.NewNop(),
		Calendar: clock.NewCalendar(nil),
		Settings: store,
		Runner:   &Runner{},
	})
	ctx := context.Background()

	if err := scheduler.Reload(ctx); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := len(scheduler.cron.Entries()); got != len(domain.AutomationTypes) {
		t.Fatalf("expected one entry per automation, got %d", got)
	}
	before := scheduler.entries[domain.AutomationBlock]

	if err := store.Set(ctx, settings.KeyScheduleBlock, "*/15 * * * *"); err != nil {
		t.Fatalf("set schedule: %v", err)
	}
	if err := scheduler.Reload(ctx); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := len(scheduler.cron.Entries()); got != len(domain.AutomationTypes) {
		t.Fatalf("expected entries replaced, got %d", got)
	}
	if scheduler.entries[domain.AutomationBlock] == before {
		t.Fatalf("expected a new entry for the block schedule")
	}
}

func TestRunnerRejectsUnknownAutomation(t *testing.T) {
	coordinator, _ := newTestCoordinator(t)
	runner := NewRunner(RunnerParams{Coordinator: coordinator})
	if _, err := runner.Run(context.Background(), domain.AutomationType("bogus"), domain.TriggerManual); !errors.Is(err, domain.ErrUnknownAutomation) {
		t.Fatalf("expected unknown automation, got %v", err)
	}
}
