package tracking

import (
	"errors"

	"github.com/smallbiznis/noty/internal/config"
	"github.com/smallbiznis/noty/internal/tracking/adapter"
	"github.com/smallbiznis/noty/internal/tracking/domain"
	"github.com/smallbiznis/noty/internal/tracking/repository"
	"github.com/smallbiznis/noty/internal/tracking/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("tracking",
	fx.Provide(repository.Provide),
	fx.Provide(newPlatform),
	fx.Provide(service.NewEngine),
)

func newPlatform(cfg config.Config, log *zap.Logger) (domain.Platform, error) {
	client, err := adapter.New(cfg.Traccar, log)
	if errors.Is(err, domain.ErrNotConfigured) {
		log.Warn("traccar credentials missing, access automation disabled")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return client, nil
}
