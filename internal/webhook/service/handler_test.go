package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	billingdomain "github.com/smallbiznis/noty/internal/billing/domain"
	"github.com/smallbiznis/noty/internal/billing/repository"
	billingservice "github.com/smallbiznis/noty/internal/billing/service"
	"github.com/smallbiznis/noty/internal/clock"
	"github.com/smallbiznis/noty/internal/events"
	"github.com/smallbiznis/noty/internal/testutil"
	trackingdomain "github.com/smallbiznis/noty/internal/tracking/domain"
	trackingservice "github.com/smallbiznis/noty/internal/tracking/service"
	"github.com/smallbiznis/noty/internal/webhook/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeEvaluator struct {
	mu    sync.Mutex
	calls []snowflake.ID
	err   error
}

func (f *fakeEvaluator) EvaluateClient(_ context.Context, clientID snowflake.ID) (*trackingservice.Evaluation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, clientID)
	if f.err != nil {
		return nil, f.err
	}
	return &trackingservice.Evaluation{ClientID: clientID, Action: trackingdomain.ActionUnblock, Applied: true}, nil
}

type webhookEnv struct {
	db        *gorm.DB
	clients   billingdomain.ClientRepository
	payments  billingdomain.PaymentRepository
	evaluator *fakeEvaluator
	handler   *Handler
	client    *billingdomain.Client
}

func newWebhookEnv(t *testing.T) *webhookEnv {
	t.Helper()
	db := testutil.OpenDB(t, &billingdomain.Client{}, &billingdomain.Payment{}, &domain.WebhookLog{}, &events.OutboxEvent{})
	node := testutil.NewNode(t)
	env := &webhookEnv{
		db:        db,
		clients:   repository.NewClientRepository(node),
		payments:  repository.NewPaymentRepository(node),
		evaluator: &fakeEvaluator{},
	}
	env.handler = NewHandler(HandlerParams{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     clock.NewFixedClock(time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)),
		Clients:   env.clients,
		Payments:  env.payments,
		Evaluator: env.evaluator,
		Outbox:    events.NewOutbox(db, node),
	})

	name := "Ana"
	client, err := env.clients.Upsert(context.Background(), db, billingdomain.ClientUpsert{ExternalID: "cus_1", Name: &name})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	env.client = client
	return env
}

func (e *webhookEnv) seedPayment(t *testing.T, status billingdomain.PaymentStatus) {
	t.Helper()
	value := decimal.RequireFromString("150.00")
	due := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	description := "Mensalidade outubro"
	if _, err := e.payments.Upsert(context.Background(), e.db, billingdomain.PaymentUpsert{
		ExternalID:  "pay_1",
		ClientID:    e.client.ID,
		Value:       &value,
		DueDate:     &due,
		Status:      &status,
		Description: &description,
	}); err != nil {
		t.Fatalf("payment: %v", err)
	}
}

func (e *webhookEnv) payment(t *testing.T) *billingdomain.Payment {
	t.Helper()
	payment, err := e.payments.FindByExternalID(context.Background(), e.db, "pay_1")
	if err != nil || payment == nil {
		t.Fatalf("find payment: %v", err)
	}
	return payment
}

func (e *webhookEnv) lastLog(t *testing.T) domain.WebhookLog {
	t.Helper()
	var entry domain.WebhookLog
	if err := e.db.Order("id DESC").First(&entry).Error; err != nil {
		t.Fatalf("webhook log: %v", err)
	}
	return entry
}

func TestReceivedWebhookUpdatesAndEvaluates(t *testing.T) {
	env := newWebhookEnv(t)
	env.seedPayment(t, billingdomain.PaymentStatusOverdue)

	outcome, err := env.handler.HandleBillingEvent(context.Background(), []byte(
		`{"event":"PAYMENT_RECEIVED","payment":{"id":"pay_1","customer":"cus_1","status":"RECEIVED","paymentDate":"2026-10-15"}}`,
	))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if outcome.Status != domain.LogStatusProcessed || !outcome.Evaluated || outcome.AccessAction != "unblock" {
		t.Fatalf("unexpected outcome %+v", outcome)
	}

	payment := env.payment(t)
	if payment.Status != billingdomain.PaymentStatusReceived {
		t.Fatalf("expected RECEIVED, got %s", payment.Status)
	}
	if !payment.Value.Equal(decimal.RequireFromString("150.00")) || payment.Description != "Mensalidade outubro" {
		t.Fatalf("expected absent fields kept, got value=%s description=%q", payment.Value, payment.Description)
	}
	if len(env.evaluator.calls) != 1 || env.evaluator.calls[0] != env.client.ID {
		t.Fatalf("expected one evaluation for the client, got %v", env.evaluator.calls)
	}
	if entry := env.lastLog(t); entry.Status != domain.LogStatusProcessed || entry.PaymentExternalID != "pay_1" {
		t.Fatalf("unexpected log %+v", entry)
	}
	var published int64
	env.db.Model(&events.OutboxEvent{}).Where("event_type = ?", events.EventPaymentUpserted).Count(&published)
	if published != 1 {
		t.Fatalf("expected one payment event, got %d", published)
	}
}

func TestLateOverdueWebhookKeepsPaidStatus(t *testing.T) {
	env := newWebhookEnv(t)
	env.seedPayment(t, billingdomain.PaymentStatusConfirmed)

	outcome, err := env.handler.HandleBillingEvent(context.Background(), []byte(
		`{"event":"PAYMENT_OVERDUE","id":"pay_1","customer":"cus_1","status":"OVERDUE","dueDate":"2026-10-01"}`,
	))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if outcome.Status != domain.LogStatusProcessed {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	if got := env.payment(t).Status; got != billingdomain.PaymentStatusConfirmed {
		t.Fatalf("expected CONFIRMED to survive a late OVERDUE, got %s", got)
	}
}

func TestLateCreatedWebhookKeepsPaidStatus(t *testing.T) {
	env := newWebhookEnv(t)
	env.seedPayment(t, billingdomain.PaymentStatusReceived)
	ctx := context.Background()

	outcome, err := env.handler.HandleBillingEvent(ctx, []byte(
		`{"event":"PAYMENT_CREATED","payment":{"id":"pay_1","customer":"cus_1","value":150,"dueDate":"2026-10-01","status":"PENDING"}}`,
	))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if outcome.Status != domain.LogStatusProcessed {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	if got := env.payment(t).Status; got != billingdomain.PaymentStatusReceived {
		t.Fatalf("expected RECEIVED to survive a late PAYMENT_CREATED, got %s", got)
	}

	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	reconciler := billingservice.NewReconciler(billingservice.ReconcilerParams{
		DB:       env.db,
		Log:      zap.NewNop(),
		Repo:     env.payments,
		Clock:    clock.NewFixedClock(now),
		Calendar: clock.NewCalendar(time.UTC),
	})
	reconciler.ReconcileOverdueStatus(ctx)

	if got := env.payment(t).Status; got != billingdomain.PaymentStatusReceived {
		t.Fatalf("expected RECEIVED after reconcile, got %s", got)
	}
	summary, err := env.payments.OverdueSummary(ctx, env.db, env.client.ID, now)
	if err != nil {
		t.Fatalf("overdue summary: %v", err)
	}
	if summary.Count != 0 {
		t.Fatalf("expected no overdue payments for a paid client, got %d", summary.Count)
	}
}

func TestCreatedWebhookInsertsWithoutEvaluation(t *testing.T) {
	env := newWebhookEnv(t)

	outcome, err := env.handler.HandleBillingEvent(context.Background(), []byte(
		`{"event":"PAYMENT_CREATED","payment":{"id":"pay_1","customer":"cus_1","value":89.9,"dueDate":"2026-11-10"}}`,
	))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if outcome.Evaluated || len(env.evaluator.calls) != 0 {
		t.Fatalf("expected no evaluation on creation, got %+v", outcome)
	}
	payment := env.payment(t)
	if payment.Status != billingdomain.PaymentStatusPending || !payment.Value.Equal(decimal.RequireFromString("89.90")) {
		t.Fatalf("unexpected payment %+v", payment)
	}
}

func TestIgnoredAndUnknownDeliveriesAreAcknowledged(t *testing.T) {
	env := newWebhookEnv(t)
	ctx := context.Background()

	outcome, err := env.handler.HandleBillingEvent(ctx, []byte(`{"event":"PAYMENT_DELETED","payment":{"id":"pay_9","customer":"cus_1"}}`))
	if err != nil || outcome.Status != domain.LogStatusIgnored {
		t.Fatalf("expected ignored, got %+v %v", outcome, err)
	}

	outcome, err = env.handler.HandleBillingEvent(ctx, []byte(`{"event":"PAYMENT_RECEIVED","payment":{"id":"pay_9","customer":"cus_404","status":"RECEIVED"}}`))
	if err != nil || outcome.Status != domain.LogStatusError {
		t.Fatalf("expected acknowledged error, got %+v %v", outcome, err)
	}
	if entry := env.lastLog(t); entry.Status != domain.LogStatusError || entry.CustomerExternalID != "cus_404" {
		t.Fatalf("unexpected log %+v", entry)
	}
	if len(env.evaluator.calls) != 0 {
		t.Fatalf("expected no evaluation, got %v", env.evaluator.calls)
	}

	// A brand new payment without a due date cannot be stored.
	outcome, err = env.handler.HandleBillingEvent(ctx, []byte(`{"event":"PAYMENT_RECEIVED","payment":{"id":"pay_new","customer":"cus_1"}}`))
	if err != nil || outcome.Status != domain.LogStatusError {
		t.Fatalf("expected acknowledged invalid payment, got %+v %v", outcome, err)
	}
}

func TestMalformedWebhookIsRejected(t *testing.T) {
	env := newWebhookEnv(t)
	if _, err := env.handler.HandleBillingEvent(context.Background(), []byte(`{not json`)); !errors.Is(err, domain.ErrInvalidPayload) {
		t.Fatalf("expected invalid payload, got %v", err)
	}
	if _, err := env.handler.HandleBillingEvent(context.Background(), []byte(`{"payment":{"id":"pay_1"}}`)); !errors.Is(err, domain.ErrInvalidPayload) {
		t.Fatalf("expected missing event to be rejected, got %v", err)
	}
}

func TestEvaluationFailureIsReportedNotReturned(t *testing.T) {
	env := newWebhookEnv(t)
	env.seedPayment(t, billingdomain.PaymentStatusOverdue)
	env.evaluator.err = errors.New("traccar timeout")

	outcome, err := env.handler.HandleBillingEvent(context.Background(), []byte(
		`{"event":"PAYMENT_CONFIRMED","payment":{"id":"pay_1","customer":"cus_1","status":"CONFIRMED"}}`,
	))
	if err != nil {
		t.Fatalf("evaluation failure must not propagate, got %v", err)
	}
	if outcome.Status != domain.LogStatusProcessed || outcome.EvaluationErr != "traccar timeout" {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	if got := env.payment(t).Status; got != billingdomain.PaymentStatusConfirmed {
		t.Fatalf("expected upsert kept, got %s", got)
	}

	env.evaluator.err = trackingdomain.ErrTraccarDisabled
	outcome, err = env.handler.HandleBillingEvent(context.Background(), []byte(
		`{"event":"PAYMENT_RECEIVED","payment":{"id":"pay_1","customer":"cus_1","status":"RECEIVED"}}`,
	))
	if err != nil || outcome.Evaluated || outcome.EvaluationErr != "" {
		t.Fatalf("expected disabled tracking to be silent, got %+v %v", outcome, err)
	}
}
