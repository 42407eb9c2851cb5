package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/smallbiznis/noty/internal/billing/domain"
	"github.com/smallbiznis/noty/internal/clock"
	"github.com/smallbiznis/noty/internal/notification/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ClientWindow is the rolling lookback for client-level notifications.
const ClientWindow = 24 * time.Hour

type DedupParams struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Calendar clock.Calendar
	Payments billingdomain.PaymentRepository
}

// Dedup decides whether a notification was already sent and records every
// attempt. The notification log is the source of truth.
type Dedup struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	calendar clock.Calendar
	payments billingdomain.PaymentRepository
}

func NewDedup(p DedupParams) *Dedup {
	return &Dedup{
		db:       p.DB,
		log:      p.Log.Named("notification.dedup"),
		genID:    p.GenID,
		clock:    p.Clock,
		calendar: p.Calendar,
		payments: p.Payments,
	}
}

// WindowStart is the start of the current calendar-day window.
func (d *Dedup) WindowStart() time.Time {
	return d.calendar.StartOfDay(d.clock.Now())
}

// ShouldSend reports whether no sent log exists for the target since windowStart.
func (d *Dedup) ShouldSend(ctx context.Context, clientID snowflake.ID, paymentID *snowflake.ID, messageType domain.MessageType, windowStart time.Time) (bool, error) {
	query := d.db.WithContext(ctx).Model(&domain.NotificationLog{}).
		Where("client_id = ? AND message_type = ? AND status IN ? AND created_at >= ?",
			clientID, messageType, domain.SuppressingStatuses, windowStart.UTC())
	if paymentID != nil {
		query = query.Where("payment_id = ?", *paymentID)
	} else {
		query = query.Where("payment_id IS NULL")
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count == 0, nil
}

// ShouldSendClient applies the rolling 24h window to a client-level type,
// regardless of the payment a log was tied to.
func (d *Dedup) ShouldSendClient(ctx context.Context, clientID snowflake.ID, messageType domain.MessageType) (bool, error) {
	since := d.clock.Now().Add(-ClientWindow).UTC()
	var count int64
	err := d.db.WithContext(ctx).Model(&domain.NotificationLog{}).
		Where("client_id = ? AND message_type = ? AND status IN ? AND created_at >= ?",
			clientID, messageType, domain.SuppressingStatuses, since).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count == 0, nil
}

// SentPayments returns the payments of the cohort that already have a sent
// log of messageType since windowStart, in a single query.
func (d *Dedup) SentPayments(ctx context.Context, paymentIDs []snowflake.ID, messageType domain.MessageType, windowStart time.Time) (map[snowflake.ID]struct{}, error) {
	sent := make(map[snowflake.ID]struct{})
	if len(paymentIDs) == 0 {
		return sent, nil
	}
	var ids []snowflake.ID
	err := d.db.WithContext(ctx).Model(&domain.NotificationLog{}).
		Distinct("payment_id").
		Where("payment_id IN ? AND message_type = ? AND status IN ? AND created_at >= ?",
			paymentIDs, messageType, domain.SuppressingStatuses, windowStart.UTC()).
		Pluck("payment_id", &ids).Error
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		sent[id] = struct{}{}
	}
	return sent, nil
}

func (d *Dedup) Record(ctx context.Context, attempt domain.Attempt) (*domain.NotificationLog, error) {
	logs, err := d.RecordBatch(ctx, []domain.Attempt{attempt})
	if err != nil {
		return nil, err
	}
	return &logs[0], nil
}

// RecordBatch writes one log per attempt and bumps the payment counters of
// successful payment-tied sends, all in one transaction.
func (d *Dedup) RecordBatch(ctx context.Context, attempts []domain.Attempt) ([]domain.NotificationLog, error) {
	if len(attempts) == 0 {
		return nil, nil
	}
	now := d.clock.Now()
	logs := make([]domain.NotificationLog, 0, len(attempts))
	for _, attempt := range attempts {
		at := attempt.At
		if at.IsZero() {
			at = now
		}
		status := attempt.Status
		if status == "" {
			status = domain.LogStatusFailed
		}
		entry := domain.NotificationLog{
			ID:                d.genID.Generate(),
			ClientID:          attempt.ClientID,
			PaymentID:         attempt.PaymentID,
			MessageType:       attempt.MessageType,
			Phone:             attempt.Phone,
			Content:           attempt.Content,
			Status:            status,
			Error:             strings.TrimSpace(attempt.Error),
			ProviderMessageID: attempt.ProviderMessageID,
			Attempts:          attempt.Attempts,
			CreatedAt:         at,
			UpdatedAt:         at,
		}
		if status == domain.LogStatusSent {
			sentAt := at
			entry.SentAt = &sentAt
		}
		logs = append(logs, entry)
	}

	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.CreateInBatches(&logs, 100).Error; err != nil {
			return err
		}
		for _, entry := range logs {
			if entry.Status != domain.LogStatusSent || entry.PaymentID == nil {
				continue
			}
			category, ok := entry.MessageType.Category()
			if !ok {
				continue
			}
			if err := d.payments.RecordNotification(ctx, tx, *entry.PaymentID, category, entry.CreatedAt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return logs, nil
}

// UpdateDeliveryStatus upgrades a sent log from a provider status callback.
// Only non-terminal logs move; a failed log never becomes delivered.
func (d *Dedup) UpdateDeliveryStatus(ctx context.Context, providerMessageID string, status domain.LogStatus, reason string) (bool, error) {
	providerMessageID = strings.TrimSpace(providerMessageID)
	if providerMessageID == "" {
		return false, nil
	}
	var from []domain.LogStatus
	switch status {
	case domain.LogStatusDelivered:
		from = []domain.LogStatus{domain.LogStatusPending, domain.LogStatusSent}
	case domain.LogStatusFailed:
		from = []domain.LogStatus{domain.LogStatusPending, domain.LogStatusSent}
	default:
		return false, nil
	}
	res := d.db.WithContext(ctx).Exec(
		`UPDATE notification_logs SET status = ?, error = ?, updated_at = ?
		 WHERE provider_message_id = ? AND status IN ?`,
		status,
		strings.TrimSpace(reason),
		d.clock.Now(),
		providerMessageID,
		from,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
