package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	automationdomain "github.com/smallbiznis/noty/internal/automation/domain"
	automationservice "github.com/smallbiznis/noty/internal/automation/service"
	trackingservice "github.com/smallbiznis/noty/internal/tracking/service"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func runCmd(configPath *string) *cobra.Command {
	types := make([]string, 0, len(automationdomain.AutomationTypes))
	for _, t := range automationdomain.AutomationTypes {
		types = append(types, string(t))
	}

	return &cobra.Command{
		Use:       "run <automation>",
		Short:     "Run one automation now and print the recorded run",
		Long:      "Run one automation as a manual trigger. Valid automations: " + strings.Join(types, ", ") + ".",
		Args:      cobra.ExactArgs(1),
		ValidArgs: types,
		RunE: func(cmd *cobra.Command, args []string) error {
			automationType, err := automationdomain.ParseAutomationType(args[0])
			if err != nil {
				return fmt.Errorf("%w: %s", err, args[0])
			}

			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			var (
				runner *automationservice.Runner
				engine *trackingservice.Engine
			)
			opts := baseOptions(cfg)
			opts = append(opts, fx.Invoke(bootstrap), fx.Populate(&runner, &engine))
			app := fx.New(opts...)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := app.Start(ctx); err != nil {
				return err
			}
			defer func() {
				_ = app.Stop(context.Background())
			}()

			run, runErr := runner.Run(ctx, automationType, automationdomain.TriggerManual)
			// access-change notifications are sent in the background
			engine.Wait()

			if run != nil {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(run); err != nil {
					return err
				}
			}
			return runErr
		},
	}
}
