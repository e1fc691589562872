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

	"github.com/spf13/cobra"
	"github.com/use-agent/webshot/api"
	"github.com/use-agent/webshot/browser"
	"github.com/use-agent/webshot/cache"
	"github.com/use-agent/webshot/capture"
	"github.com/use-agent/webshot/config"
)

func newServeCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the screenshot HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cfg)
		},
	}
	cmd.Flags().IntVar(&cfg.Server.Port, "port", cfg.Server.Port, "listen port")
	cmd.Flags().StringVar(&cfg.Server.Host, "host", cfg.Server.Host, "listen address")
	return cmd
}

func serve(cfg *config.Config) error {
	// ── 1. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log, os.Stdout)
	slog.Info("webshot starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"output", cfg.Capture.OutputFolder,
		"batchConcurrency", cfg.Batch.Concurrency,
	)
	if cfg.Auth.Enabled && len(cfg.Auth.APIKeys) == 0 {
		slog.Warn("auth enabled but WEBSHOT_API_KEYS is empty, API is open")
	}

	// ── 2. Capturer and cache ───────────────────────────────────────
	cp := capture.New(browser.NewRodLauncher(cfg.Browser), cfg.Capture)
	cc := cache.New(cfg.Cache.MaxEntries)

	// ── 3. Setup router ─────────────────────────────────────────────
	router := api.NewRouter(cp, cfg, cc, time.Now())

	// ── 4. Start HTTP server ────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// ── 5. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case sig := <-quit:
		slog.Info("shutdown signal received", "signal", sig.String())
	}

	// Captures can take a while; give in-flight requests the capture timeout.
	grace := time.Duration(cfg.Capture.TimeoutSeconds+5) * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	slog.Info("webshot stopped", "activeCaptures", cp.Active())
	return nil
}
