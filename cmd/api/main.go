package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mAmineChniti/Forklore/internal/app"
	"github.com/mAmineChniti/Forklore/internal/config"
	"github.com/mAmineChniti/Forklore/internal/logging"
	"github.com/mAmineChniti/Forklore/internal/server"
	"github.com/mAmineChniti/Forklore/internal/telemetry"
	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *http.Server, a *app.App, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	a.Logger.Info("shutting down gracefully, press Ctrl+C again to force")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Scheduler.Stop(ctx); err != nil {
		a.Logger.Warn("scheduler did not stop cleanly", zap.Error(err))
	}
	if err := apiServer.Shutdown(ctx); err != nil {
		a.Logger.Error("server forced to shutdown", zap.Error(err))
	}

	a.Logger.Info("server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.Debug)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	shutdownTracing, err := telemetry.Setup(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	a, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(context.Background()); err != nil {
			logger.Warn("closing backends", zap.Error(err))
		}
	}()

	if err := a.Scheduler.Start(ctx); err != nil {
		return err
	}

	apiServer := server.NewServer(cfg, a.DB, a.Services, logger)
	logger.Info("server is running", zap.String("addr", apiServer.Addr), zap.String("db_driver", cfg.DBDriver))

	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(apiServer, a, done)

	if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server error: %w", err)
	}

	// Wait for the graceful shutdown to complete
	<-done
	logger.Info("graceful shutdown complete")
	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
