package events

import (
	"context"
	"strings"

	"github.com/smallbiznis/noty/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("events",
	fx.Provide(NewOutbox),
	fx.Invoke(runRelay),
)

// runRelay starts the broker relay only when RabbitMQ is configured; events
// accumulate in the outbox otherwise.
func runRelay(lc fx.Lifecycle, db *gorm.DB, cfg config.Config, log *zap.Logger) {
	url := strings.TrimSpace(cfg.RabbitMQ.URL)
	if url == "" {
		log.Named("events").Info("rabbitmq not configured, outbox relay disabled")
		return
	}

	publisher := NewAMQPPublisher(url, cfg.RabbitMQ.Exchange, log)
	relay := NewRelay(db, log, publisher, RelayConfig{
		BatchSize:    cfg.RabbitMQ.BatchSize,
		PollInterval: cfg.RabbitMQ.RelayInterval,
	})

	var cancel context.CancelFunc
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())
			go relay.RunForever(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			if cancel != nil {
				cancel()
			}
			return publisher.Close()
		},
	})
}
