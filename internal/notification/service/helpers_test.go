package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	billingdomain "github.com/smallbiznis/noty/internal/billing/domain"
	"github.com/smallbiznis/noty/internal/billing/repository"
	"github.com/smallbiznis/noty/internal/clock"
	"github.com/smallbiznis/noty/internal/config"
	"github.com/smallbiznis/noty/internal/notification/domain"
	"github.com/smallbiznis/noty/internal/settings"
	"github.com/smallbiznis/noty/internal/testutil"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeMessenger struct {
	mu    sync.Mutex
	sent  []string
	errs  []error
	calls int

	// delivered runs after each successful send with the delivery count.
	delivered func(count int)
}

func (f *fakeMessenger) Send(_ context.Context, phone, _ string) (domain.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return domain.SendResult{}, err
		}
	}
	f.sent = append(f.sent, phone)
	if f.delivered != nil {
		f.delivered(len(f.sent))
	}
	return domain.SendResult{MessageID: "SM" + phone}, nil
}

type testEnv struct {
	db        *gorm.DB
	node      *snowflake.Node
	clock     *clock.FixedClock
	calendar  clock.Calendar
	clients   billingdomain.ClientRepository
	payments  billingdomain.PaymentRepository
	settings  *settings.Store
	messenger *fakeMessenger
	dedup     *Dedup
	sender    *Sender
	templates *Templates
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.OpenDB(t,
		&billingdomain.Client{},
		&billingdomain.Payment{},
		&domain.NotificationLog{},
		&domain.MessageTemplate{},
		&settings.Setting{},
	)
	node := testutil.NewNode(t)
	fixed := clock.NewFixedClock(time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC))
	calendar := clock.NewCalendar(time.UTC)
	payments := repository.NewPaymentRepository(node)
	messenger := &fakeMessenger{}

	env := &testEnv{
		db:        db,
		node:      node,
		clock:     fixed,
		calendar:  calendar,
		clients:   repository.NewClientRepository(node),
		payments:  payments,
		settings:  settings.NewStore(settings.Params{DB: db, Log: zap.NewNop()}),
		messenger: messenger,
		templates: NewTemplates(db),
	}
	env.dedup = NewDedup(DedupParams{DB: db, Log: zap.NewNop(), GenID: node, Clock: fixed, Calendar: calendar, Payments: payments})
	env.sender = NewSender(SenderParams{
		Log:       zap.NewNop(),
		Cfg:       config.Config{Messaging: config.MessagingConfig{MaxRetries: 2}},
		Messenger: messenger,
	})
	return env
}

func (e *testEnv) sweeps() *Sweeps {
	return NewSweeps(SweepParams{
		DB:        e.db,
		Log:       zap.NewNop(),
		Clock:     e.clock,
		Calendar:  e.calendar,
		Settings:  e.settings,
		Clients:   e.clients,
		Payments:  e.payments,
		Dedup:     e.dedup,
		Templates: e.templates,
		Sender:    e.sender,
	})
}

func (e *testEnv) client(t *testing.T, externalID, phone string) *billingdomain.Client {
	t.Helper()
	name := "Cliente " + externalID
	in := billingdomain.ClientUpsert{ExternalID: externalID, Name: &name}
	if phone != "" {
		in.MobilePhone = &phone
	}
	client, err := e.clients.Upsert(context.Background(), e.db, in)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	return client
}

func (e *testEnv) payment(t *testing.T, client *billingdomain.Client, externalID string, due time.Time, status billingdomain.PaymentStatus) *billingdomain.Payment {
	t.Helper()
	value := decimal.RequireFromString("99.90")
	payment, err := e.payments.Upsert(context.Background(), e.db, billingdomain.PaymentUpsert{
		ExternalID: externalID,
		ClientID:   client.ID,
		Value:      &value,
		DueDate:    &due,
		Status:     &status,
	})
	if err != nil {
		t.Fatalf("payment: %v", err)
	}
	return payment
}

func (e *testEnv) countLogs(t *testing.T, messageType domain.MessageType, status domain.LogStatus) int64 {
	t.Helper()
	var count int64
	if err := e.db.Model(&domain.NotificationLog{}).
		Where("message_type = ? AND status = ?", messageType, status).
		Count(&count).Error; err != nil {
		t.Fatalf("count logs: %v", err)
	}
	return count
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
