package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/noty/internal/billing/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type PaymentRepository struct {
	genID *snowflake.Node
}

func NewPaymentRepository(genID *snowflake.Node) domain.PaymentRepository {
	return &PaymentRepository{genID: genID}
}

func (r *PaymentRepository) FindByExternalID(ctx context.Context, db *gorm.DB, externalID string) (*domain.Payment, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, nil
	}
	var payment domain.Payment
	err := db.WithContext(ctx).Where("external_id = ?", externalID).First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// Upsert inserts the payment or merges the provided fields into the stored
// row. An incoming OVERDUE never replaces a paid-like status.
func (r *PaymentRepository) Upsert(ctx context.Context, db *gorm.DB, in domain.PaymentUpsert) (*domain.Payment, error) {
	in.ExternalID = strings.TrimSpace(in.ExternalID)
	if in.ExternalID == "" || in.ClientID == 0 {
		return nil, domain.ErrInvalidPayment
	}

	existing, err := r.FindByExternalID(ctx, db, in.ExternalID)
	if err != nil {
		return nil, err
	}
	if existing == nil && in.DueDate == nil {
		return nil, fmt.Errorf("%w: due date is required for a new payment", domain.ErrInvalidPayment)
	}

	now := time.Now().UTC()
	value := decimal.Zero
	if in.Value != nil {
		value = *in.Value
	}
	var dueDate datatypes.Date
	if in.DueDate != nil {
		dueDate = datatypes.Date(dayUTC(*in.DueDate))
	} else {
		dueDate = existing.DueDate
	}
	status := domain.PaymentStatusPending
	if in.Status != nil {
		status = *in.Status
	}

	sets := []string{"client_id = excluded.client_id", "updated_at = excluded.updated_at"}
	args := []any{}
	if in.Value != nil {
		sets = append(sets, "value = excluded.value")
	}
	if in.DueDate != nil {
		sets = append(sets, "due_date = excluded.due_date")
	}
	if in.Status != nil {
		// A paid-like row never yields to OVERDUE, and yields to PENDING only
		// from a provider snapshot. Single events may arrive out of order.
		kept := domain.OpenStatuses
		if in.Snapshot {
			kept = []domain.PaymentStatus{domain.PaymentStatusOverdue}
		}
		sets = append(sets, "status = CASE WHEN payments.status IN ? AND excluded.status IN ? THEN payments.status ELSE excluded.status END")
		args = append(args, domain.PaidLikeStatuses, kept)
	}
	if in.Description != nil {
		sets = append(sets, "description = excluded.description")
	}
	if in.BillingType != nil {
		sets = append(sets, "billing_type = excluded.billing_type")
	}
	if in.InvoiceURL != nil {
		sets = append(sets, "invoice_url = excluded.invoice_url")
	}
	if in.PaymentDate != nil {
		sets = append(sets, "payment_date = excluded.payment_date")
	}

	values := []any{
		r.genID.Generate(),
		in.ExternalID,
		in.ClientID,
		value,
		dueDate,
		status,
		valueOr(in.Description, ""),
		valueOr(in.BillingType, ""),
		valueOr(in.InvoiceURL, ""),
		in.PaymentDate,
		now,
		now,
	}
	err = db.WithContext(ctx).Exec(
		`INSERT INTO payments (id, external_id, client_id, value, due_date, status, description, billing_type, invoice_url, payment_date, warning_count, overdue_notification_count, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0, ?, ?)
		 ON CONFLICT (external_id) DO UPDATE SET `+strings.Join(sets, ", "),
		append(values, args...)...,
	).Error
	if err != nil {
		return nil, err
	}
	return r.FindByExternalID(ctx, db, in.ExternalID)
}

func (r *PaymentRepository) MarkOverdue(ctx context.Context, db *gorm.DB, today time.Time, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET status = ?, updated_at = ?
		 WHERE status = ? AND due_date < ?`,
		domain.PaymentStatusOverdue,
		now,
		domain.PaymentStatusPending,
		datatypes.Date(dayUTC(today)),
	)
	return res.RowsAffected, res.Error
}

func (r *PaymentRepository) RevertOverdue(ctx context.Context, db *gorm.DB, today time.Time, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET status = ?, updated_at = ?
		 WHERE status = ? AND due_date >= ?`,
		domain.PaymentStatusPending,
		now,
		domain.PaymentStatusOverdue,
		datatypes.Date(dayUTC(today)),
	)
	return res.RowsAffected, res.Error
}

func (r *PaymentRepository) ListDueBetween(ctx context.Context, db *gorm.DB, from, to time.Time, status domain.PaymentStatus) ([]domain.Payment, error) {
	var payments []domain.Payment
	err := db.WithContext(ctx).
		Where("status = ? AND due_date >= ? AND due_date <= ?", status, datatypes.Date(dayUTC(from)), datatypes.Date(dayUTC(to))).
		Order("due_date ASC, id ASC").
		Find(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *PaymentRepository) ListByStatus(ctx context.Context, db *gorm.DB, status domain.PaymentStatus) ([]domain.Payment, error) {
	var payments []domain.Payment
	err := db.WithContext(ctx).
		Where("status = ?", status).
		Order("due_date ASC, id ASC").
		Find(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}

// OverdueSummary counts open payments whose due date is before today. It does
// not rely on the reconciler having run.
func (r *PaymentRepository) OverdueSummary(ctx context.Context, db *gorm.DB, clientID snowflake.ID, today time.Time) (domain.OverdueSummary, error) {
	var row struct {
		Count int64
		Total decimal.Decimal
	}
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) AS count, COALESCE(SUM(value), 0) AS total
		 FROM payments
		 WHERE client_id = ? AND status IN ? AND due_date < ?`,
		clientID,
		domain.OpenStatuses,
		datatypes.Date(dayUTC(today)),
	).Scan(&row).Error
	if err != nil {
		return domain.OverdueSummary{}, err
	}
	return domain.OverdueSummary{ClientID: clientID, Count: int(row.Count), Total: row.Total}, nil
}

func (r *PaymentRepository) RecordNotification(ctx context.Context, db *gorm.DB, paymentID snowflake.ID, category domain.NotificationCategory, at time.Time) error {
	var query string
	switch category {
	case domain.NotificationCategoryWarning:
		query = `UPDATE payments SET last_warning_sent_at = ?, warning_count = warning_count + 1, updated_at = ? WHERE id = ?`
	case domain.NotificationCategoryOverdue:
		query = `UPDATE payments SET last_overdue_sent_at = ?, overdue_notification_count = overdue_notification_count + 1, updated_at = ? WHERE id = ?`
	default:
		return nil
	}
	return db.WithContext(ctx).Exec(query, at, at, paymentID).Error
}

func dayUTC(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
