// Command forklorectl runs one-off operations against a Forklore deployment:
// creating the Mongo indexes and triggering the background sweeps by hand.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mAmineChniti/Forklore/internal/app"
	"github.com/mAmineChniti/Forklore/internal/config"
	"github.com/mAmineChniti/Forklore/internal/database"
	"github.com/mAmineChniti/Forklore/internal/logging"
	"github.com/mAmineChniti/Forklore/internal/scheduler"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "forklorectl",
		Short:         "Operate a Forklore deployment",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	sweep := &cobra.Command{
		Use:   "sweep",
		Short: "Run a background sweep once",
		Long: `Run one of the scheduler's sweeps immediately.

The sweep takes the same distributed lock as the API's scheduler, so it is
skipped when a replica is already running it.`,
	}
	sweep.AddCommand(
		sweepCmd("chapters", "Publish chapters whose scheduled time has passed", scheduler.JobPublishChapters),
		sweepCmd("subscriptions", "Renew auto-renewing subscriptions and expire lapsed ones", scheduler.JobSubscriptions),
	)

	root.AddCommand(indexesCmd(), sweep)
	return root
}

func indexesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "indexes",
		Short: "Create the MongoDB indexes the stores rely on",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOps()
			if err != nil {
				return err
			}
			if cfg.DBDriver != config.DriverMongo {
				return fmt.Errorf("indexes need DB_DRIVER=%s, got %q", config.DriverMongo, cfg.DBDriver)
			}
			ctx := cmd.Context()
			m, err := database.NewMongo(ctx, cfg.ConnectionString, cfg.DBName)
			if err != nil {
				return err
			}
			defer func() { _ = m.Close(context.WithoutCancel(ctx)) }()

			if err := m.EnsureIndexes(ctx); err != nil {
				return fmt.Errorf("ensure indexes: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexes ensured on %s\n", cfg.DBName)
			return nil
		},
	}
}

func sweepCmd(use, short, job string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOps()
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.LogLevel, cfg.Debug)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx := cmd.Context()
			a, err := app.Open(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close(context.WithoutCancel(ctx)) }()

			if err := a.Scheduler.RunOnce(ctx, job); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s sweep finished\n", use)
			return nil
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "forklorectl:", err)
		stop()
		os.Exit(1)
	}
}
