package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

var ErrInvalidPayload = errors.New("invalid_webhook_payload")

type LogStatus string

const (
	LogStatusProcessed LogStatus = "processed"
	LogStatusIgnored   LogStatus = "ignored"
	LogStatusError     LogStatus = "error"
)

// Billing provider events acted upon. Everything else is acknowledged and
// logged as ignored.
const (
	EventPaymentCreated   = "PAYMENT_CREATED"
	EventPaymentConfirmed = "PAYMENT_CONFIRMED"
	EventPaymentReceived  = "PAYMENT_RECEIVED"
	EventPaymentOverdue   = "PAYMENT_OVERDUE"
)

var handledEvents = map[string]bool{
	EventPaymentCreated:   false,
	EventPaymentConfirmed: true,
	EventPaymentReceived:  true,
	EventPaymentOverdue:   true,
}

// Handled reports whether event is on the allow-list.
func Handled(event string) bool {
	_, ok := handledEvents[event]
	return ok
}

// TriggersEvaluation reports whether event can change the client's access.
func TriggersEvaluation(event string) bool {
	return handledEvents[event]
}

// WebhookLog records every inbound billing delivery.
type WebhookLog struct {
	ID                 snowflake.ID   `gorm:"primaryKey" json:"id"`
	Event              string         `gorm:"type:text;not null;index" json:"event"`
	PaymentExternalID  string         `gorm:"type:text;index" json:"payment_external_id,omitempty"`
	CustomerExternalID string         `gorm:"type:text" json:"customer_external_id,omitempty"`
	Payload            datatypes.JSON `json:"payload"`
	Status             LogStatus      `gorm:"type:text;not null" json:"status"`
	Error              string         `gorm:"type:text" json:"error,omitempty"`
	CreatedAt          time.Time      `gorm:"not null;index" json:"created_at"`
}

func (WebhookLog) TableName() string { return "webhook_logs" }

// Outcome is what the handler did with one delivery.
type Outcome struct {
	Event         string    `json:"event"`
	Status        LogStatus `json:"status"`
	PaymentID     string    `json:"payment_id,omitempty"`
	ClientID      string    `json:"client_id,omitempty"`
	Error         string    `json:"error,omitempty"`
	Evaluated     bool      `json:"evaluated"`
	EvaluationErr string    `json:"evaluation_error,omitempty"`
	AccessAction  string    `json:"access_action,omitempty"`
	AccessApplied bool      `json:"access_applied,omitempty"`
}
