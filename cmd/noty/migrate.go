package main

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/noty/internal/config"
	"github.com/smallbiznis/noty/internal/observability/logger"
	"github.com/smallbiznis/noty/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
)

func migrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema and seed defaults",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			app := fx.New(
				fx.Supply(cfg),
				fx.WithLogger(func() fxevent.Logger { return fxevent.NopLogger }),
				logger.Module,
				fx.Provide(func(cfg config.Config) (*snowflake.Node, error) {
					return snowflake.NewNode(cfg.SnowflakeNode)
				}),
				db.Module,
				fx.Invoke(bootstrap),
			)
			if err := app.Start(cmd.Context()); err != nil {
				return err
			}
			return app.Stop(context.Background())
		},
	}
}
