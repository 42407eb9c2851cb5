package notification

import (
	"errors"

	"github.com/smallbiznis/noty/internal/config"
	"github.com/smallbiznis/noty/internal/notification/domain"
	"github.com/smallbiznis/noty/internal/notification/messaging"
	"github.com/smallbiznis/noty/internal/notification/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("notification",
	fx.Provide(newMessenger),
	fx.Provide(service.NewTemplates),
	fx.Provide(service.NewSender),
	fx.Provide(service.NewDedup),
	fx.Provide(service.NewSweeps),
	fx.Provide(service.NewNotifier),
)

func newMessenger(cfg config.Config, log *zap.Logger) (domain.Messenger, error) {
	whatsApp, err := messaging.NewWhatsApp(cfg.Messaging, log)
	if errors.Is(err, domain.ErrNotConfigured) {
		log.Warn("twilio credentials missing, WhatsApp sending disabled")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return whatsApp, nil
}
