package billing

import (
	"errors"

	"github.com/smallbiznis/noty/internal/billing/adapter"
	"github.com/smallbiznis/noty/internal/billing/domain"
	"github.com/smallbiznis/noty/internal/billing/repository"
	"github.com/smallbiznis/noty/internal/billing/service"
	"github.com/smallbiznis/noty/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("billing",
	fx.Provide(repository.NewClientRepository),
	fx.Provide(repository.NewPaymentRepository),
	fx.Provide(newProvider),
	fx.Provide(service.NewSync),
	fx.Provide(service.NewReconciler),
)

// newProvider leaves the provider nil when credentials are missing; the sync
// automation then fails fast with ErrNotConfigured.
func newProvider(cfg config.Config, log *zap.Logger) (domain.Provider, error) {
	client, err := adapter.New(cfg.Billing, log)
	if errors.Is(err, domain.ErrNotConfigured) {
		log.Warn("billing provider not configured, sync disabled")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return client, nil
}
