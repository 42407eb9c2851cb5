// Package domain holds the billing-side entities mirrored from the billing
// provider: clients (customers) and their payments (charges).
package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// PaymentStatus mirrors the provider's charge status.
type PaymentStatus string

const (
	PaymentStatusPending                    PaymentStatus = "PENDING"
	PaymentStatusOverdue                    PaymentStatus = "OVERDUE"
	PaymentStatusReceived                   PaymentStatus = "RECEIVED"
	PaymentStatusConfirmed                  PaymentStatus = "CONFIRMED"
	PaymentStatusReceivedInCash             PaymentStatus = "RECEIVED_IN_CASH"
	PaymentStatusRefunded                   PaymentStatus = "REFUNDED"
	PaymentStatusRefundRequested            PaymentStatus = "REFUND_REQUESTED"
	PaymentStatusRefundInProgress           PaymentStatus = "REFUND_IN_PROGRESS"
	PaymentStatusChargebackRequested        PaymentStatus = "CHARGEBACK_REQUESTED"
	PaymentStatusChargebackDispute          PaymentStatus = "CHARGEBACK_DISPUTE"
	PaymentStatusAwaitingChargebackReversal PaymentStatus = "AWAITING_CHARGEBACK_REVERSAL"
	PaymentStatusDunningRequested           PaymentStatus = "DUNNING_REQUESTED"
	PaymentStatusDunningReceived            PaymentStatus = "DUNNING_RECEIVED"
	PaymentStatusAwaitingRiskAnalysis       PaymentStatus = "AWAITING_RISK_ANALYSIS"
	PaymentStatusDeleted                    PaymentStatus = "DELETED"
)

// PaidLikeStatuses are the statuses that represent money received or formally
// reversed. Automated overdue transitions never touch them.
var PaidLikeStatuses = []PaymentStatus{
	PaymentStatusReceived,
	PaymentStatusConfirmed,
	PaymentStatusReceivedInCash,
	PaymentStatusRefunded,
	PaymentStatusRefundRequested,
	PaymentStatusRefundInProgress,
	PaymentStatusChargebackRequested,
	PaymentStatusChargebackDispute,
	PaymentStatusAwaitingChargebackReversal,
	PaymentStatusDunningReceived,
}

// OpenStatuses are the statuses that still expect money.
var OpenStatuses = []PaymentStatus{PaymentStatusPending, PaymentStatusOverdue}

func (s PaymentStatus) IsPaidLike() bool {
	for _, paid := range PaidLikeStatuses {
		if s == paid {
			return true
		}
	}
	return false
}

func (s PaymentStatus) IsOpen() bool {
	return s == PaymentStatusPending || s == PaymentStatusOverdue
}

// ParsePaymentStatus normalizes provider input; unknown values are kept as-is.
func ParsePaymentStatus(value string) PaymentStatus {
	return PaymentStatus(strings.ToUpper(strings.TrimSpace(value)))
}

// Client is a billing customer. Clients are never hard-deleted.
type Client struct {
	ID                   snowflake.ID `gorm:"primaryKey" json:"id"`
	ExternalID           string       `gorm:"type:text;not null;uniqueIndex" json:"external_id"`
	Name                 string       `gorm:"type:text;not null" json:"name"`
	Email                string       `gorm:"type:text" json:"email"`
	Phone                string       `gorm:"type:text" json:"phone"`
	MobilePhone          string       `gorm:"type:text" json:"mobile_phone"`
	IsActive             bool         `gorm:"not null" json:"is_active"`
	NotificationsEnabled bool         `gorm:"not null" json:"notifications_enabled"`
	CreatedAt            time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt            time.Time    `gorm:"not null" json:"updated_at"`
}

func (Client) TableName() string { return "clients" }

// ContactPhone prefers the mobile number, which is the one WhatsApp reaches.
func (c Client) ContactPhone() string {
	if phone := strings.TrimSpace(c.MobilePhone); phone != "" {
		return phone
	}
	return strings.TrimSpace(c.Phone)
}

// Payment is one provider charge, keyed for upsert by ExternalID.
type Payment struct {
	ID                       snowflake.ID    `gorm:"primaryKey" json:"id"`
	ExternalID               string          `gorm:"type:text;not null;uniqueIndex" json:"external_id"`
	ClientID                 snowflake.ID    `gorm:"not null;index" json:"client_id"`
	Value                    decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"value"`
	DueDate                  datatypes.Date  `gorm:"not null;index" json:"due_date"`
	Status                   PaymentStatus   `gorm:"type:text;not null;index" json:"status"`
	Description              string          `gorm:"type:text" json:"description"`
	BillingType              string          `gorm:"type:text" json:"billing_type"`
	InvoiceURL               string          `gorm:"type:text" json:"invoice_url"`
	PaymentDate              *time.Time      `json:"payment_date,omitempty"`
	LastWarningSentAt        *time.Time      `json:"last_warning_sent_at,omitempty"`
	WarningCount             int             `gorm:"not null" json:"warning_count"`
	LastOverdueSentAt        *time.Time      `json:"last_overdue_sent_at,omitempty"`
	OverdueNotificationCount int             `gorm:"not null" json:"overdue_notification_count"`
	CreatedAt                time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt                time.Time       `gorm:"not null" json:"updated_at"`
}

func (Payment) TableName() string { return "payments" }

// DueOn returns the due date as a UTC-midnight calendar value.
func (p Payment) DueOn() time.Time {
	y, m, d := time.Time(p.DueDate).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ClientUpsert carries the fields to merge into a Client. Nil means "not
// provided" and never overwrites a stored value.
type ClientUpsert struct {
	ExternalID  string
	Name        *string
	Email       *string
	Phone       *string
	MobilePhone *string
	IsActive    *bool
}

// PaymentUpsert carries the fields to merge into a Payment. Nil means "not
// provided" and never overwrites a stored value.
type PaymentUpsert struct {
	ExternalID  string
	ClientID    snowflake.ID
	Value       *decimal.Decimal
	DueDate     *time.Time
	Status      *PaymentStatus
	Description *string
	BillingType *string
	InvoiceURL  *string
	PaymentDate *time.Time

	// Snapshot marks a full provider listing, which may move a paid-like
	// payment back to PENDING. Single events never do.
	Snapshot bool
}

// OverdueSummary is the live overdue position of a client.
type OverdueSummary struct {
	ClientID snowflake.ID
	Count    int
	Total    decimal.Decimal
}

// NotificationCategory selects the per-payment notification counters.
type NotificationCategory string

const (
	NotificationCategoryWarning NotificationCategory = "warning"
	NotificationCategoryOverdue NotificationCategory = "overdue"
)

// SyncSummary reports one provider synchronization pass.
type SyncSummary struct {
	CustomersFetched int      `json:"customers_fetched"`
	ClientsUpserted  int      `json:"clients_upserted"`
	PaymentsFetched  int      `json:"payments_fetched"`
	PaymentsUpserted int      `json:"payments_upserted"`
	Errors           []string `json:"errors,omitempty"`
}

// ReconcileResult reports one overdue-status reconciliation pass.
type ReconcileResult struct {
	Updated   int64    `json:"updated"`
	Reverted  int64    `json:"reverted"`
	Processed int64    `json:"processed"`
	Errors    []string `json:"errors,omitempty"`
}
