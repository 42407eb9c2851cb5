package service

import (
	"context"
	"fmt"

	"github.com/smallbiznis/noty/internal/billing/domain"
	"github.com/smallbiznis/noty/internal/clock"
	"github.com/smallbiznis/noty/internal/events"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ReconcilerParams struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Repo     domain.PaymentRepository
	Clock    clock.Clock
	Calendar clock.Calendar
	Outbox   *events.Outbox `optional:"true"`
}

// Reconciler keeps PENDING/OVERDUE in line with the calendar, independent of
// webhook delivery. It only ever selects rows in those two statuses.
type Reconciler struct {
	db       *gorm.DB
	log      *zap.Logger
	repo     domain.PaymentRepository
	clock    clock.Clock
	calendar clock.Calendar
	outbox   *events.Outbox
}

func NewReconciler(p ReconcilerParams) *Reconciler {
	return &Reconciler{
		db:       p.DB,
		log:      p.Log.Named("billing.reconciler"),
		repo:     p.Repo,
		clock:    p.Clock,
		calendar: p.Calendar,
		outbox:   p.Outbox,
	}
}

// ReconcileOverdueStatus applies both transitions as set-based updates, each
// in its own transaction. A failed direction is reported, not returned.
func (r *Reconciler) ReconcileOverdueStatus(ctx context.Context) domain.ReconcileResult {
	now := r.clock.Now()
	today := r.calendar.Today(now)

	var result domain.ReconcileResult

	updated, err := r.apply(ctx, "overdue", func(tx *gorm.DB) (int64, error) {
		return r.repo.MarkOverdue(ctx, tx, today, now)
	})
	if err != nil {
		r.log.Error("mark overdue failed", zap.Error(err))
		result.Errors = append(result.Errors, fmt.Sprintf("mark overdue: %v", err))
	}
	result.Updated = updated

	reverted, err := r.apply(ctx, "pending", func(tx *gorm.DB) (int64, error) {
		return r.repo.RevertOverdue(ctx, tx, today, now)
	})
	if err != nil {
		r.log.Error("revert overdue failed", zap.Error(err))
		result.Errors = append(result.Errors, fmt.Sprintf("revert overdue: %v", err))
	}
	result.Reverted = reverted
	result.Processed = result.Updated + result.Reverted

	r.log.Info("overdue status reconciled",
		zap.Time("today", today),
		zap.Int64("updated", result.Updated),
		zap.Int64("reverted", result.Reverted),
		zap.Int("errors", len(result.Errors)),
	)
	return result
}

func (r *Reconciler) apply(ctx context.Context, target string, update func(tx *gorm.DB) (int64, error)) (int64, error) {
	var affected int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		n, err := update(tx)
		if err != nil {
			return err
		}
		affected = n
		if n == 0 || r.outbox == nil {
			return nil
		}
		return r.outbox.PublishTx(ctx, tx, events.Event{
			Type:    events.EventPaymentsReconciled,
			Payload: map[string]any{"status": target, "count": n},
		})
	})
	if err != nil {
		return 0, err
	}
	return affected, nil
}
