package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smallbiznis/noty/internal/billing/domain"
	"github.com/smallbiznis/noty/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type SyncParams struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Cfg      config.Config
	Clients  domain.ClientRepository
	Payments domain.PaymentRepository
	Provider domain.Provider `optional:"true"`
}

// Sync mirrors customers and payments from the billing provider.
type Sync struct {
	db        *gorm.DB
	log       *zap.Logger
	clients   domain.ClientRepository
	payments  domain.PaymentRepository
	provider  domain.Provider
	pageSize  int
	pageDelay time.Duration
}

func NewSync(p SyncParams) *Sync {
	pageSize := p.Cfg.Billing.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}
	return &Sync{
		db:        p.DB,
		log:       p.Log.Named("billing.sync"),
		clients:   p.Clients,
		payments:  p.Payments,
		provider:  p.Provider,
		pageSize:  pageSize,
		pageDelay: p.Cfg.Billing.PageDelay,
	}
}

// SyncAll pulls every customer and then every payment, page by page. Item
// failures are collected and the pass continues. A failure on the first
// customer page fails the whole pass.
func (s *Sync) SyncAll(ctx context.Context) (domain.SyncSummary, error) {
	var summary domain.SyncSummary
	if s.provider == nil {
		return summary, domain.ErrNotConfigured
	}

	known := make(map[string]*domain.Client)

	for offset := 0; ; {
		page, err := s.provider.ListCustomers(ctx, offset, s.pageSize)
		if err != nil {
			if offset == 0 {
				return summary, fmt.Errorf("list customers: %w", err)
			}
			summary.Errors = append(summary.Errors, fmt.Sprintf("list customers at offset %d: %v", offset, err))
			break
		}
		summary.CustomersFetched += len(page.Items)
		for _, customer := range page.Items {
			client, err := s.clients.Upsert(ctx, s.db, customer.ToUpsert())
			if err != nil {
				summary.Errors = append(summary.Errors, fmt.Sprintf("customer %s: %v", customer.ID, err))
				continue
			}
			known[client.ExternalID] = client
			summary.ClientsUpserted++
		}
		if !page.HasMore || len(page.Items) == 0 {
			break
		}
		offset += len(page.Items)
		if err := s.wait(ctx); err != nil {
			return summary, err
		}
	}

	for offset := 0; ; {
		page, err := s.provider.ListPayments(ctx, "", offset, s.pageSize)
		if err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("list payments at offset %d: %v", offset, err))
			break
		}
		summary.PaymentsFetched += len(page.Items)
		for _, payment := range page.Items {
			if err := s.upsertPayment(ctx, payment, known); err != nil {
				summary.Errors = append(summary.Errors, fmt.Sprintf("payment %s: %v", payment.ID, err))
				continue
			}
			summary.PaymentsUpserted++
		}
		if !page.HasMore || len(page.Items) == 0 {
			break
		}
		offset += len(page.Items)
		if err := s.wait(ctx); err != nil {
			return summary, err
		}
	}

	s.log.Info("billing sync finished",
		zap.Int("customers", summary.ClientsUpserted),
		zap.Int("payments", summary.PaymentsUpserted),
		zap.Int("errors", len(summary.Errors)),
	)
	return summary, nil
}

func (s *Sync) upsertPayment(ctx context.Context, payment domain.ProviderPayment, known map[string]*domain.Client) error {
	client, err := s.EnsureClient(ctx, payment.Customer, known)
	if err != nil {
		return err
	}
	in := payment.ToUpsert(client.ID)
	in.Snapshot = true
	_, err = s.payments.Upsert(ctx, s.db, in)
	return err
}

// EnsureClient resolves a provider customer id to a local client, fetching
// the customer from the provider when it has not been mirrored yet.
func (s *Sync) EnsureClient(ctx context.Context, externalID string, known map[string]*domain.Client) (*domain.Client, error) {
	if client, ok := known[externalID]; ok {
		return client, nil
	}
	client, err := s.clients.FindByExternalID(ctx, s.db, externalID)
	if err != nil {
		return nil, err
	}
	if client == nil {
		if s.provider == nil {
			return nil, domain.ErrClientNotFound
		}
		customer, err := s.provider.GetCustomer(ctx, externalID)
		if err != nil {
			return nil, err
		}
		client, err = s.clients.Upsert(ctx, s.db, customer.ToUpsert())
		if err != nil {
			return nil, err
		}
	}
	if client == nil {
		return nil, errors.New("client_upsert_failed")
	}
	if known != nil {
		known[externalID] = client
	}
	return client, nil
}

func (s *Sync) wait(ctx context.Context) error {
	if s.pageDelay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(s.pageDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
