package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/goatkit/funcflow/internal/api"
	"github.com/goatkit/funcflow/internal/config"
	"github.com/goatkit/funcflow/internal/registry"
)

func newServeCommand(loadConfig func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the registry service: watcher, HTTP API and metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return serve(cfg)
		},
	}
}

func serve(cfg *config.Config) error {
	logger := slog.Default()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, err := newCore(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer c.close()

	watcher, err := registry.NewWatcher(c.builder, cfg.Plugins.Debounce, logger)
	if err != nil {
		return err
	}
	defer watcher.Close()
	watcher.Start(ctx)

	// Periodic full rescan behind the watcher, if configured.
	var scheduler *cron.Cron
	if cfg.Reconcile.Schedule != "" {
		scheduler = cron.New()
		_, err := scheduler.AddFunc(cfg.Reconcile.Schedule, func() {
			if _, err := c.builder.Rebuild(ctx, "reconcile"); err != nil {
				logger.Error("reconcile rebuild failed", "error", err)
			}
		})
		if err != nil {
			return fmt.Errorf("invalid reconcile schedule %q: %w", cfg.Reconcile.Schedule, err)
		}
		scheduler.Start()
		defer scheduler.Stop()
		logger.Info("reconcile rebuilds scheduled", "schedule", cfg.Reconcile.Schedule)
	}

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.New(c.store, c.builder, c.gateway, c.engine, c.pipeline, c.execs, logger).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	select {
	case s := <-sig:
		logger.Info("shutting down", "signal", s.String())
	case err := <-watcher.Fatal():
		logger.Error("watcher fatal", "error", err)
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
