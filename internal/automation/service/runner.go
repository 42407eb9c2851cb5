package service

import (
	"context"

	"github.com/smallbiznis/noty/internal/automation/domain"
	billingservice "github.com/smallbiznis/noty/internal/billing/service"
	notificationservice "github.com/smallbiznis/noty/internal/notification/service"
	trackingservice "github.com/smallbiznis/noty/internal/tracking/service"
	"go.uber.org/fx"
)

type RunnerParams struct {
	fx.In

	Coordinator *Coordinator
	Sync        *billingservice.Sync
	Reconciler  *billingservice.Reconciler
	Sweeps      *notificationservice.Sweeps
	Engine      *trackingservice.Engine
}

// Runner binds each automation type to its work and runs it through the
// coordinator.
type Runner struct {
	coordinator *Coordinator
	work        map[domain.AutomationType]RunFunc
}

func NewRunner(p RunnerParams) *Runner {
	r := &Runner{coordinator: p.Coordinator}
	r.work = map[domain.AutomationType]RunFunc{
		domain.AutomationSync: func(ctx context.Context) (domain.Result, error) {
			summary, err := p.Sync.SyncAll(ctx)
			if err != nil {
				return domain.SyncResult{Sync: summary}, err
			}
			return domain.SyncResult{
				Sync:      summary,
				Reconcile: p.Reconciler.ReconcileOverdueStatus(ctx),
			}, nil
		},
		domain.AutomationWarnings: func(ctx context.Context) (domain.Result, error) {
			sweep, err := p.Sweeps.SendWarnings(ctx)
			return domain.WarningResult{Sweep: sweep}, err
		},
		domain.AutomationOverdue: func(ctx context.Context) (domain.Result, error) {
			reconcile := p.Reconciler.ReconcileOverdueStatus(ctx)
			sweep, err := p.Sweeps.SendOverdue(ctx)
			return domain.OverdueResult{Reconcile: reconcile, Sweep: sweep}, err
		},
		domain.AutomationBlock: func(ctx context.Context) (domain.Result, error) {
			sweep, err := p.Engine.Sweep(ctx)
			return domain.BlockResult{Sweep: sweep}, err
		},
	}
	return r
}

// Run executes one automation. Manual and webhook triggers get the run error
// back; scheduled triggers only get ErrAlreadyRunning.
func (r *Runner) Run(ctx context.Context, automationType domain.AutomationType, trigger domain.Trigger) (*domain.AutomationRun, error) {
	fn, ok := r.work[automationType]
	if !ok {
		return nil, domain.ErrUnknownAutomation
	}
	return r.coordinator.RunExclusive(ctx, automationType, trigger, fn)
}

func (r *Runner) Runs(ctx context.Context, filter domain.ListFilter) ([]domain.AutomationRun, error) {
	return r.coordinator.Runs(ctx, filter)
}
