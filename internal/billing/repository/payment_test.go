package repository

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/noty/internal/billing/domain"
	"github.com/smallbiznis/noty/internal/testutil"
	"gorm.io/gorm"
)

func setupRepos(t *testing.T) (*gorm.DB, domain.ClientRepository, domain.PaymentRepository) {
	t.Helper()
	db := testutil.OpenDB(t, &domain.Client{}, &domain.Payment{})
	node := testutil.NewNode(t)
	return db, NewClientRepository(node), NewPaymentRepository(node)
}

func seedClient(t *testing.T, db *gorm.DB, clients domain.ClientRepository, externalID string) *domain.Client {
	t.Helper()
	name := "Client " + externalID
	client, err := clients.Upsert(context.Background(), db, domain.ClientUpsert{ExternalID: externalID, Name: &name})
	if err != nil {
		t.Fatalf("seed client: %v", err)
	}
	return client
}

func ptr[T any](v T) *T { return &v }

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestPaymentUpsertIsIdempotentAndNonDestructive(t *testing.T) {
	db, clients, payments := setupRepos(t)
	ctx := context.Background()
	client := seedClient(t, db, clients, "cus_1")

	first := domain.PaymentUpsert{
		ExternalID:  "pay_1",
		ClientID:    client.ID,
		Value:       ptr(decimal.RequireFromString("150.50")),
		DueDate:     ptr(day(2026, 10, 10)),
		Status:      ptr(domain.PaymentStatusPending),
		Description: ptr("Monthly tracking"),
		InvoiceURL:  ptr("https://billing.example/i/1"),
	}
	if _, err := payments.Upsert(ctx, db, first); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	second := domain.PaymentUpsert{
		ExternalID: "pay_1",
		ClientID:   client.ID,
		Status:     ptr(domain.PaymentStatusConfirmed),
		Value:      ptr(decimal.RequireFromString("160")),
	}
	if _, err := payments.Upsert(ctx, db, second); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	got, err := payments.Upsert(ctx, db, second)
	if err != nil {
		t.Fatalf("repeated upsert: %v", err)
	}

	var count int64
	if err := db.Model(&domain.Payment{}).Where("external_id = ?", "pay_1").Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one payment row, got %d", count)
	}
	if got.Status != domain.PaymentStatusConfirmed {
		t.Fatalf("expected status overwritten to CONFIRMED, got %s", got.Status)
	}
	if !got.Value.Equal(decimal.NewFromInt(160)) {
		t.Fatalf("expected value 160, got %s", got.Value)
	}
	if got.Description != "Monthly tracking" || got.InvoiceURL != "https://billing.example/i/1" {
		t.Fatalf("expected absent fields unchanged, got description=%q invoice=%q", got.Description, got.InvoiceURL)
	}
	if !got.DueOn().Equal(day(2026, 10, 10)) {
		t.Fatalf("expected due date unchanged, got %s", got.DueOn())
	}
}

func TestPaymentUpsertKeepsPaidLikeAgainstOverdue(t *testing.T) {
	db, clients, payments := setupRepos(t)
	ctx := context.Background()
	client := seedClient(t, db, clients, "cus_1")

	for _, status := range []domain.PaymentStatus{domain.PaymentStatusReceived, domain.PaymentStatusOverdue} {
		_, err := payments.Upsert(ctx, db, domain.PaymentUpsert{
			ExternalID: "pay_late",
			ClientID:   client.ID,
			DueDate:    ptr(day(2026, 9, 1)),
			Status:     ptr(status),
		})
		if err != nil {
			t.Fatalf("upsert %s: %v", status, err)
		}
	}

	got, err := payments.FindByExternalID(ctx, db, "pay_late")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Status != domain.PaymentStatusReceived {
		t.Fatalf("expected RECEIVED to survive a late OVERDUE, got %s", got.Status)
	}
}

func TestPaymentUpsertPendingOnlyRevertsPaidFromSnapshot(t *testing.T) {
	db, clients, payments := setupRepos(t)
	ctx := context.Background()
	client := seedClient(t, db, clients, "cus_1")

	upsert := func(status domain.PaymentStatus, snapshot bool) domain.PaymentStatus {
		t.Helper()
		got, err := payments.Upsert(ctx, db, domain.PaymentUpsert{
			ExternalID: "pay_order",
			ClientID:   client.ID,
			DueDate:    ptr(day(2026, 9, 1)),
			Status:     ptr(status),
			Snapshot:   snapshot,
		})
		if err != nil {
			t.Fatalf("upsert %s: %v", status, err)
		}
		return got.Status
	}

	upsert(domain.PaymentStatusConfirmed, false)
	if got := upsert(domain.PaymentStatusPending, false); got != domain.PaymentStatusConfirmed {
		t.Fatalf("expected a late PENDING event to keep CONFIRMED, got %s", got)
	}
	if got := upsert(domain.PaymentStatusOverdue, true); got != domain.PaymentStatusConfirmed {
		t.Fatalf("expected a snapshot OVERDUE to keep CONFIRMED, got %s", got)
	}
	if got := upsert(domain.PaymentStatusPending, true); got != domain.PaymentStatusPending {
		t.Fatalf("expected a snapshot to reopen the payment, got %s", got)
	}
}

func TestPaymentUpsertRequiresDueDateOnInsert(t *testing.T) {
	db, clients, payments := setupRepos(t)
	client := seedClient(t, db, clients, "cus_1")

	_, err := payments.Upsert(context.Background(), db, domain.PaymentUpsert{ExternalID: "pay_new", ClientID: client.ID})
	if err == nil {
		t.Fatalf("expected error for new payment without due date")
	}
}

func TestOverdueSummaryIsLive(t *testing.T) {
	db, clients, payments := setupRepos(t)
	ctx := context.Background()
	client := seedClient(t, db, clients, "cus_1")

	insert := func(id string, due time.Time, status domain.PaymentStatus, value string) {
		t.Helper()
		_, err := payments.Upsert(ctx, db, domain.PaymentUpsert{
			ExternalID: id,
			ClientID:   client.ID,
			DueDate:    &due,
			Status:     &status,
			Value:      ptr(decimal.RequireFromString(value)),
		})
		if err != nil {
			t.Fatalf("insert %s: %v", id, err)
		}
	}
	today := day(2026, 10, 15)
	insert("p1", day(2026, 10, 1), domain.PaymentStatusPending, "100")
	insert("p2", day(2026, 9, 1), domain.PaymentStatusOverdue, "50.25")
	insert("p3", day(2026, 8, 1), domain.PaymentStatusReceived, "999")
	insert("p4", today, domain.PaymentStatusPending, "10")

	summary, err := payments.OverdueSummary(ctx, db, client.ID, today)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.Count != 2 {
		t.Fatalf("expected 2 overdue payments, got %d", summary.Count)
	}
	if !summary.Total.Equal(decimal.RequireFromString("150.25")) {
		t.Fatalf("expected total 150.25, got %s", summary.Total)
	}
}

func TestRecordNotificationBumpsCounters(t *testing.T) {
	db, clients, payments := setupRepos(t)
	ctx := context.Background()
	client := seedClient(t, db, clients, "cus_1")

	payment, err := payments.Upsert(ctx, db, domain.PaymentUpsert{ExternalID: "p1", ClientID: client.ID, DueDate: ptr(day(2026, 10, 1))})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	at := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	if err := payments.RecordNotification(ctx, db, payment.ID, domain.NotificationCategoryOverdue, at); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := payments.RecordNotification(ctx, db, payment.ID, domain.NotificationCategoryOverdue, at); err != nil {
		t.Fatalf("record again: %v", err)
	}

	got, err := payments.FindByExternalID(ctx, db, "p1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.OverdueNotificationCount != 2 || got.LastOverdueSentAt == nil {
		t.Fatalf("expected overdue counters bumped, got count=%d last=%v", got.OverdueNotificationCount, got.LastOverdueSentAt)
	}
	if got.WarningCount != 0 {
		t.Fatalf("expected warning counter untouched, got %d", got.WarningCount)
	}
}

func TestClientUpsertMergesFields(t *testing.T) {
	db, clients, _ := setupRepos(t)
	ctx := context.Background()

	_, err := clients.Upsert(ctx, db, domain.ClientUpsert{
		ExternalID:  "cus_9",
		Name:        ptr("Ana"),
		Email:       ptr("ana@example.com"),
		MobilePhone: ptr("11999990000"),
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	inactive := false
	got, err := clients.Upsert(ctx, db, domain.ClientUpsert{ExternalID: "cus_9", Phone: ptr("1133334444"), IsActive: &inactive})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if got.Email != "ana@example.com" || got.Name != "Ana" {
		t.Fatalf("expected name and email kept, got %+v", got)
	}
	if got.IsActive {
		t.Fatalf("expected client deactivated")
	}
	if !got.NotificationsEnabled {
		t.Fatalf("expected notifications to stay enabled")
	}
	if got.ContactPhone() != "11999990000" {
		t.Fatalf("expected mobile phone preferred, got %q", got.ContactPhone())
	}

	byIDs, err := clients.FindByIDs(ctx, db, []snowflake.ID{got.ID})
	if err != nil || len(byIDs) != 1 {
		t.Fatalf("find by ids: %v (%d)", err, len(byIDs))
	}
}
