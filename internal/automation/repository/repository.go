package repository

import (
	"context"

	"github.com/smallbiznis/noty/internal/automation/domain"
	"gorm.io/gorm"
)

const defaultListLimit = 50

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, run *domain.AutomationRun) error {
	return db.WithContext(ctx).Create(run).Error
}

func (r *repo) Complete(ctx context.Context, db *gorm.DB, run *domain.AutomationRun) error {
	return db.WithContext(ctx).Exec(
		`UPDATE automation_runs
		 SET status = ?, clients_processed = ?, payments_processed = ?, messages_sent = ?, messages_failed = ?,
		     duration_ms = ?, summary = ?, error = ?, completed_at = ?
		 WHERE id = ? AND status = ?`,
		run.Status,
		run.ClientsProcessed,
		run.PaymentsProcessed,
		run.MessagesSent,
		run.MessagesFailed,
		run.DurationMs,
		run.Summary,
		run.Error,
		run.CompletedAt,
		run.ID,
		domain.RunStatusStarted,
	).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]domain.AutomationRun, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = defaultListLimit
	}
	query := db.WithContext(ctx).Model(&domain.AutomationRun{})
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	var runs []domain.AutomationRun
	if err := query.Order("started_at DESC, id DESC").Limit(limit).Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}
