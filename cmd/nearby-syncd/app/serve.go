package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/stacklok/nearby-sync/internal/app"
	"github.com/stacklok/nearby-sync/internal/config"
	"github.com/stacklok/nearby-sync/internal/telemetry"
	"github.com/stacklok/nearby-sync/pkg/versions"
)

const (
	defaultGracefulTimeout = 30 * time.Second
	telemetryFlushTimeout  = 5 * time.Second
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon",
		Long: `Run contact sync, certificate management and advertising control for this
device, and serve the local control API.

The configuration file (--config) names the data directory, the directory
service endpoint and the sync, advertising and telemetry settings. Edits to the
device name and the advertising section are applied while running.`,
		RunE: runServe,
	}

	cmd.Flags().String("config", "", "Path to configuration file (YAML format, required)")
	cmd.Flags().String("address", "", "Address for the control API (overrides the config file)")

	if err := viper.BindPFlag("config", cmd.Flags().Lookup("config")); err != nil {
		slog.Error("Failed to bind config flag", "error", err)
	}
	if err := viper.BindPFlag("address", cmd.Flags().Lookup("address")); err != nil {
		slog.Error("Failed to bind address flag", "error", err)
	}
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	configPath := viper.GetString("config")
	if configPath == "" {
		return fmt.Errorf("--config is required")
	}
	var daemon *app.Daemon
	watcher, err := config.NewWatcher(configPath, func(updated *config.Config) {
		if err := daemon.ApplyConfig(ctx, updated); err != nil {
			slog.Error("Failed to apply reloaded configuration", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg := watcher.Current()
	slog.Info("Loaded configuration",
		"path", configPath,
		"data_dir", cfg.DataDir,
		"directory", cfg.Directory.Endpoint)

	tel, err := telemetry.New(ctx,
		telemetry.WithTelemetryConfig(cfg.Telemetry),
		telemetry.WithServiceVersion(versions.GetVersionInfo().Version))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), telemetryFlushTimeout)
		defer cancel()
		if err := tel.Shutdown(flushCtx); err != nil {
			slog.Error("Failed to flush telemetry", "error", err)
		}
	}()

	opts := []app.Option{
		app.WithConfig(cfg),
		app.WithMeterProvider(tel.MeterProvider()),
		app.WithTracerProvider(tel.TracerProvider()),
		app.WithMetricsHandler(tel.MetricsHandler()),
	}
	if address := viper.GetString("address"); address != "" {
		opts = append(opts, app.WithAddress(address))
	}

	daemon, err = app.NewDaemon(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to build daemon: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(daemon.Start)
	g.Go(func() error {
		// Reloading is best effort; the daemon keeps running without it
		if err := watcher.Watch(gctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Warn("Configuration reloading disabled", "error", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Received shutdown signal")
		return daemon.Stop(defaultGracefulTimeout)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
