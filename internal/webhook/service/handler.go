package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/smallbiznis/noty/internal/billing/domain"
	"github.com/smallbiznis/noty/internal/clock"
	"github.com/smallbiznis/noty/internal/events"
	"github.com/smallbiznis/noty/internal/observability/logger"
	"github.com/smallbiznis/noty/internal/observability/metrics"
	trackingdomain "github.com/smallbiznis/noty/internal/tracking/domain"
	trackingservice "github.com/smallbiznis/noty/internal/tracking/service"
	"github.com/smallbiznis/noty/internal/webhook/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AccessEvaluator re-evaluates one client's tracking access.
type AccessEvaluator interface {
	EvaluateClient(ctx context.Context, clientID snowflake.ID) (*trackingservice.Evaluation, error)
}

type HandlerParams struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Clients   billingdomain.ClientRepository
	Payments  billingdomain.PaymentRepository
	Evaluator AccessEvaluator            `optional:"true"`
	Outbox    *events.Outbox             `optional:"true"`
	Metrics   *metrics.AutomationMetrics `optional:"true"`
}

// Handler applies billing provider webhook deliveries.
type Handler struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	clients   billingdomain.ClientRepository
	payments  billingdomain.PaymentRepository
	evaluator AccessEvaluator
	outbox    *events.Outbox
	metrics   *metrics.AutomationMetrics
}

func NewHandler(p HandlerParams) *Handler {
	return &Handler{
		db:        p.DB,
		log:       p.Log.Named("webhook.billing"),
		genID:     p.GenID,
		clock:     p.Clock,
		clients:   p.Clients,
		payments:  p.Payments,
		evaluator: p.Evaluator,
		outbox:    p.Outbox,
		metrics:   p.Metrics,
	}
}

type envelope struct {
	Event   string                         `json:"event"`
	Payment *billingdomain.ProviderPayment `json:"payment"`
}

// parse accepts both {event, payment:{...}} and a flat payload carrying the
// payment fields next to the event name.
func parse(raw []byte) (string, billingdomain.ProviderPayment, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", billingdomain.ProviderPayment{}, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	event := strings.ToUpper(strings.TrimSpace(env.Event))
	if env.Payment != nil {
		return event, *env.Payment, nil
	}
	var flat billingdomain.ProviderPayment
	if err := json.Unmarshal(raw, &flat); err != nil {
		return "", billingdomain.ProviderPayment{}, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	return event, flat, nil
}

// statusForEvent fills in a status when the delivery carries none.
func statusForEvent(event string) string {
	switch event {
	case domain.EventPaymentCreated:
		return string(billingdomain.PaymentStatusPending)
	case domain.EventPaymentConfirmed:
		return string(billingdomain.PaymentStatusConfirmed)
	case domain.EventPaymentReceived:
		return string(billingdomain.PaymentStatusReceived)
	case domain.EventPaymentOverdue:
		return string(billingdomain.PaymentStatusOverdue)
	}
	return ""
}

// HandleBillingEvent applies one delivery. Only a malformed body or a storage
// failure before the payment is written returns an error; everything else is
// acknowledged and described by the Outcome.
func (h *Handler) HandleBillingEvent(ctx context.Context, raw []byte) (domain.Outcome, error) {
	event, payment, err := parse(raw)
	if err != nil {
		h.metrics.IncWebhook("invalid", string(domain.LogStatusError))
		return domain.Outcome{Status: domain.LogStatusError, Error: err.Error()}, err
	}
	if event == "" {
		h.metrics.IncWebhook("invalid", string(domain.LogStatusError))
		return domain.Outcome{Status: domain.LogStatusError}, fmt.Errorf("%w: missing event", domain.ErrInvalidPayload)
	}

	entry := &domain.WebhookLog{
		Event:              event,
		PaymentExternalID:  strings.TrimSpace(payment.ID),
		CustomerExternalID: strings.TrimSpace(payment.Customer),
		Payload:            datatypes.JSON(maskedPayload(raw)),
	}
	outcome := domain.Outcome{Event: event}
	log := logger.FromContext(ctx).With(
		zap.String("event", event),
		zap.String("payment_external_id", entry.PaymentExternalID),
	)

	if !domain.Handled(event) {
		return h.finish(ctx, entry, outcome, domain.LogStatusIgnored, ""), nil
	}
	if entry.PaymentExternalID == "" || entry.CustomerExternalID == "" {
		return h.finish(ctx, entry, outcome, domain.LogStatusError, "missing payment or customer id"), nil
	}

	client, err := h.clients.FindByExternalID(ctx, h.db, entry.CustomerExternalID)
	if err != nil {
		return outcome, err
	}
	if client == nil {
		log.Warn("webhook for unknown customer", zap.String("customer_external_id", entry.CustomerExternalID))
		return h.finish(ctx, entry, outcome, domain.LogStatusError, billingdomain.ErrClientNotFound.Error()), nil
	}
	outcome.ClientID = client.ID.String()

	if strings.TrimSpace(payment.Status) == "" {
		payment.Status = statusForEvent(event)
	}

	var stored *billingdomain.Payment
	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		stored, err = h.payments.Upsert(ctx, tx, payment.ToUpsert(client.ID))
		if err != nil || h.outbox == nil {
			return err
		}
		return h.outbox.PublishTx(ctx, tx, events.Event{
			Type:        events.EventPaymentUpserted,
			AggregateID: stored.ID.String(),
			Payload: events.PaymentUpsertedPayload{
				PaymentID:  stored.ID.String(),
				ExternalID: stored.ExternalID,
				ClientID:   client.ID.String(),
				Status:     string(stored.Status),
				Event:      event,
			}.ToMap(),
		})
	})
	if errors.Is(err, billingdomain.ErrInvalidPayment) {
		return h.finish(ctx, entry, outcome, domain.LogStatusError, err.Error()), nil
	}
	if err != nil {
		log.Error("failed to apply webhook payment", zap.Error(err))
		h.finish(ctx, entry, outcome, domain.LogStatusError, err.Error())
		return outcome, err
	}
	outcome.PaymentID = stored.ID.String()

	// From here on the delivery is acknowledged whatever happens.
	if domain.TriggersEvaluation(event) {
		h.evaluate(ctx, client.ID, &outcome)
	}
	return h.finish(ctx, entry, outcome, domain.LogStatusProcessed, outcome.EvaluationErr), nil
}

func (h *Handler) evaluate(ctx context.Context, clientID snowflake.ID, outcome *domain.Outcome) {
	if h.evaluator == nil {
		return
	}
	eval, err := h.evaluator.EvaluateClient(ctx, clientID)
	switch {
	case errors.Is(err, trackingdomain.ErrTraccarDisabled), errors.Is(err, trackingdomain.ErrNotConfigured):
		return
	case err != nil:
		h.log.Warn("access evaluation after webhook failed", zap.String("client_id", clientID.String()), zap.Error(err))
		outcome.Evaluated = true
		outcome.EvaluationErr = err.Error()
		return
	}
	outcome.Evaluated = true
	if eval != nil {
		outcome.AccessAction = string(eval.Action)
		outcome.AccessApplied = eval.Applied
	}
}

func (h *Handler) finish(ctx context.Context, entry *domain.WebhookLog, outcome domain.Outcome, status domain.LogStatus, message string) domain.Outcome {
	entry.ID = h.genID.Generate()
	entry.Status = status
	entry.Error = message
	entry.CreatedAt = h.clock.Now()
	if err := h.db.WithContext(context.WithoutCancel(ctx)).Create(entry).Error; err != nil {
		h.log.Error("failed to write webhook log", zap.String("event", entry.Event), zap.Error(err))
	}
	h.metrics.IncWebhook(entry.Event, string(status))

	outcome.Status = status
	if status == domain.LogStatusError {
		outcome.Error = message
	}
	return outcome
}

func maskedPayload(raw []byte) []byte {
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return []byte("{}")
	}
	masked, err := json.Marshal(logger.MaskJSON(payload))
	if err != nil {
		return []byte("{}")
	}
	return masked
}

// Logs lists the most recent webhook deliveries.
func (h *Handler) Logs(ctx context.Context, limit int) ([]domain.WebhookLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var logs []domain.WebhookLog
	err := h.db.WithContext(ctx).Order("created_at DESC, id DESC").Limit(limit).Find(&logs).Error
	return logs, err
}
