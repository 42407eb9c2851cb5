package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ClientRepository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Client, error)
	FindByExternalID(ctx context.Context, db *gorm.DB, externalID string) (*Client, error)
	FindByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) (map[snowflake.ID]Client, error)
	Upsert(ctx context.Context, db *gorm.DB, in ClientUpsert) (*Client, error)
	ListActive(ctx context.Context, db *gorm.DB) ([]Client, error)
}

type PaymentRepository interface {
	FindByExternalID(ctx context.Context, db *gorm.DB, externalID string) (*Payment, error)
	Upsert(ctx context.Context, db *gorm.DB, in PaymentUpsert) (*Payment, error)

	// MarkOverdue moves PENDING payments due strictly before today to OVERDUE.
	MarkOverdue(ctx context.Context, db *gorm.DB, today time.Time, now time.Time) (int64, error)
	// RevertOverdue moves OVERDUE payments whose due date is today or later back to PENDING.
	RevertOverdue(ctx context.Context, db *gorm.DB, today time.Time, now time.Time) (int64, error)

	ListDueBetween(ctx context.Context, db *gorm.DB, from, to time.Time, status PaymentStatus) ([]Payment, error)
	ListByStatus(ctx context.Context, db *gorm.DB, status PaymentStatus) ([]Payment, error)
	OverdueSummary(ctx context.Context, db *gorm.DB, clientID snowflake.ID, today time.Time) (OverdueSummary, error)
	RecordNotification(ctx context.Context, db *gorm.DB, paymentID snowflake.ID, category NotificationCategory, at time.Time) error
}
