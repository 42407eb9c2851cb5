package main

import (
	"github.com/smallbiznis/noty/internal/automation"
	"github.com/smallbiznis/noty/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, webhook receivers and scheduled automations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			opts := baseOptions(cfg)
			opts = append(opts,
				fx.Invoke(bootstrap),
				automation.SchedulerModule,
				server.Module,
			)
			app := fx.New(opts...)
			if err := app.Err(); err != nil {
				return err
			}
			app.Run()
			return nil
		},
	}
}
