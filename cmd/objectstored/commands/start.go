package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vitality-ai/warpdrive/internal/appstate"
	"github.com/vitality-ai/warpdrive/internal/config"
	"github.com/vitality-ai/warpdrive/internal/httpapi"
	"github.com/vitality-ai/warpdrive/internal/logger"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the object storage server",
	Long: `Start the object storage server in the foreground.

Use --config to specify a custom configuration file, or it will use the
default search path (./config.yaml). Environment variables (WARPDRIVE_*)
override only keys that the loaded configuration file sets.`,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := initLogger(cfg); err != nil {
		return err
	}

	logger.Info("Configuration loaded", "source", getConfigSource(GetConfigFile()))
	logger.Info("Storage backend", "backend", cfg.Storage.Backend)
	logger.Info("Metadata backend", "backend", cfg.Metadata.Backend)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := appstate.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application state: %w", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error("app state close error", "error", err)
		}
	}()

	go app.Deletion.Run(ctx)
	logger.Info("Deletion worker started",
		"interval", cfg.Deletion.Interval, "batch_size", cfg.Deletion.BatchSize)

	server := &http.Server{
		Addr:    cfg.HTTP.ListenAddr,
		Handler: httpapi.NewRouter(app),
	}

	serverDone := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", cfg.HTTP.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverDone <- err
			return
		}
		serverDone <- nil
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Server is running. Press Ctrl+C to stop.")

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("Shutdown signal received, initiating graceful shutdown")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "error", err)
			return err
		}
		<-serverDone
		logger.Info("Server stopped gracefully")

	case err := <-serverDone:
		signal.Stop(sigChan)
		cancel()
		if err != nil {
			logger.Error("HTTP server error", "error", err)
			return err
		}
		logger.Info("Server stopped")
	}

	return nil
}
