package events

// Domain event types written to the outbox.
const (
	EventPaymentsReconciled = "payments.overdue_reconciled"
	EventPaymentUpserted    = "billing.payment_upserted"
	EventClientBlocked      = "tracking.client_blocked"
	EventClientUnblocked    = "tracking.client_unblocked"
	EventAutomationFinished = "automation.run_finished"
)

// AccessChangedPayload describes a block or unblock applied to a client.
type AccessChangedPayload struct {
	ClientID      string `json:"client_id"`
	TraccarUserID int64  `json:"traccar_user_id"`
	Blocked       bool   `json:"blocked"`
	Reason        string `json:"reason,omitempty"`
	OverdueCount  int    `json:"overdue_count"`
	OverdueTotal  string `json:"overdue_total"`
}

func (p AccessChangedPayload) ToMap() map[string]any {
	payload := map[string]any{
		"client_id":       p.ClientID,
		"traccar_user_id": p.TraccarUserID,
		"blocked":         p.Blocked,
		"overdue_count":   p.OverdueCount,
		"overdue_total":   p.OverdueTotal,
	}
	if p.Reason != "" {
		payload["reason"] = p.Reason
	}
	return payload
}

// PaymentUpsertedPayload describes a payment written from a webhook delivery.
type PaymentUpsertedPayload struct {
	PaymentID  string `json:"payment_id"`
	ExternalID string `json:"external_id"`
	ClientID   string `json:"client_id"`
	Status     string `json:"status"`
	Event      string `json:"event"`
}

func (p PaymentUpsertedPayload) ToMap() map[string]any {
	return map[string]any{
		"payment_id":  p.PaymentID,
		"external_id": p.ExternalID,
		"client_id":   p.ClientID,
		"status":      p.Status,
		"event":       p.Event,
	}
}
