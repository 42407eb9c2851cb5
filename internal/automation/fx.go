package automation

import (
	"context"

	"github.com/smallbiznis/noty/internal/automation/repository"
	"github.com/smallbiznis/noty/internal/automation/service"
	"github.com/smallbiznis/noty/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("automation",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewCoordinator),
	fx.Provide(service.NewRunner),
	fx.Provide(service.NewScheduler),
)

// SchedulerModule starts the cron triggers. Only the serve command includes it.
var SchedulerModule = fx.Module("automation.scheduler",
	fx.Invoke(registerScheduler),
)

func registerScheduler(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, scheduler *service.Scheduler) {
	if !cfg.SchedulerEnabled {
		log.Info("scheduler disabled")
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return scheduler.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return scheduler.Stop(ctx)
		},
	})
}
