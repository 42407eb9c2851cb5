package main

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/noty/internal/automation"
	"github.com/smallbiznis/noty/internal/billing"
	"github.com/smallbiznis/noty/internal/cache"
	"github.com/smallbiznis/noty/internal/clock"
	"github.com/smallbiznis/noty/internal/config"
	"github.com/smallbiznis/noty/internal/events"
	"github.com/smallbiznis/noty/internal/migration"
	"github.com/smallbiznis/noty/internal/notification"
	"github.com/smallbiznis/noty/internal/observability"
	"github.com/smallbiznis/noty/internal/seed"
	"github.com/smallbiznis/noty/internal/settings"
	"github.com/smallbiznis/noty/internal/tracking"
	"github.com/smallbiznis/noty/internal/webhook"
	"github.com/smallbiznis/noty/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func loadConfig(path string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	cfg.AppVersion = firstNonEmpty(cfg.AppVersion, version)
	return cfg, nil
}

// baseOptions wires everything except the HTTP server and the scheduler.
func baseOptions(cfg config.Config) []fx.Option {
	return []fx.Option{
		fx.Supply(cfg),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx").WithOptions(zap.IncreaseLevel(zap.WarnLevel))}
		}),
		observability.Module,
		fx.Provide(func() (*snowflake.Node, error) {
			return snowflake.NewNode(cfg.SnowflakeNode)
		}),
		clock.Module,
		db.Module,
		cache.Module,
		settings.Module,
		events.Module,
		billing.Module,
		notification.Module,
		tracking.Module,
		automation.Module,
		webhook.Module,
	}
}

// bootstrap brings the schema up to date and seeds defaults before any
// component touches the database.
func bootstrap(conn *gorm.DB, node *snowflake.Node, log *zap.Logger) error {
	if err := migration.RunMigrations(conn); err != nil {
		return err
	}
	if err := seed.EnsureDefaults(context.Background(), conn, node); err != nil {
		return err
	}
	log.Named("bootstrap").Info("schema ready")
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
