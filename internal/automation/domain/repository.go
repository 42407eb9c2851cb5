package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, run *AutomationRun) error
	// Complete writes the single completion update of a started run.
	Complete(ctx context.Context, db *gorm.DB, run *AutomationRun) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]AutomationRun, error)
}
