package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/smallbiznis/noty/internal/billing/domain"
)

type MessageType string

const (
	MessageTypeWarning        MessageType = "warning"
	MessageTypeOverdue        MessageType = "overdue"
	MessageTypeTraccarWarning MessageType = "traccar_warning"
	MessageTypeTraccarBlock   MessageType = "traccar_block"
	MessageTypeTraccarUnblock MessageType = "traccar_unblock"
)

// Category returns the payment counter bumped by a successful send, if any.
func (t MessageType) Category() (billingdomain.NotificationCategory, bool) {
	switch t {
	case MessageTypeWarning:
		return billingdomain.NotificationCategoryWarning, true
	case MessageTypeOverdue:
		return billingdomain.NotificationCategoryOverdue, true
	}
	return "", false
}

type LogStatus string

const (
	LogStatusPending   LogStatus = "pending"
	LogStatusSent      LogStatus = "sent"
	LogStatusDelivered LogStatus = "delivered"
	LogStatusFailed    LogStatus = "failed"
	LogStatusError     LogStatus = "error"
)

// SuppressingStatuses are the log statuses that count as "already sent".
var SuppressingStatuses = []LogStatus{LogStatusSent, LogStatusDelivered}

// NotificationLog is one outbound message attempt.
type NotificationLog struct {
	ID                snowflake.ID  `gorm:"primaryKey" json:"id"`
	ClientID          snowflake.ID  `gorm:"not null;index:idx_notification_logs_client_type" json:"client_id"`
	PaymentID         *snowflake.ID `gorm:"index:idx_notification_logs_payment_type" json:"payment_id,omitempty"`
	MessageType       MessageType   `gorm:"type:text;not null;index:idx_notification_logs_client_type;index:idx_notification_logs_payment_type" json:"message_type"`
	Phone             string        `gorm:"type:text;not null" json:"phone"`
	Content           string        `gorm:"type:text;not null" json:"content"`
	Status            LogStatus     `gorm:"type:text;not null;index" json:"status"`
	Error             string        `gorm:"type:text" json:"error,omitempty"`
	ProviderMessageID string        `gorm:"type:text;index" json:"provider_message_id,omitempty"`
	Attempts          int           `gorm:"not null" json:"attempts"`
	SentAt            *time.Time    `json:"sent_at,omitempty"`
	CreatedAt         time.Time     `gorm:"not null;index" json:"created_at"`
	UpdatedAt         time.Time     `gorm:"not null" json:"updated_at"`
}

func (NotificationLog) TableName() string { return "notification_logs" }

// MessageTemplate overrides the built-in text of a message type.
type MessageTemplate struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Type      MessageType  `gorm:"type:text;not null;uniqueIndex" json:"type"`
	Body      string       `gorm:"type:text;not null" json:"body"`
	IsActive  bool         `gorm:"not null" json:"is_active"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null" json:"updated_at"`
}

func (MessageTemplate) TableName() string { return "message_templates" }

// Attempt is the outcome of one send, ready to be logged.
type Attempt struct {
	ClientID          snowflake.ID
	PaymentID         *snowflake.ID
	MessageType       MessageType
	Phone             string
	Content           string
	Status            LogStatus
	Error             string
	ProviderMessageID string
	Attempts          int
	At                time.Time
}

// SweepResult reports one warning or overdue notification sweep.
type SweepResult struct {
	Candidates  int      `json:"candidates"`
	AlreadySent int      `json:"already_sent"`
	Sent        int      `json:"sent"`
	Failed      int      `json:"failed"`
	Skipped     int      `json:"skipped"`
	Disabled    bool     `json:"disabled,omitempty"`
	Errors      []string `json:"errors,omitempty"`
}
