package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/use-agent/webshot/browser"
	"github.com/use-agent/webshot/capture"
	"github.com/use-agent/webshot/config"
	"github.com/use-agent/webshot/models"
)

func main() {
	cfg := config.Load()

	root := newRootCmd(cfg, runCapture)
	root.AddCommand(newServeCmd(cfg))

	if err := root.Execute(); err != nil {
		// A failed capture has already been reported on stdout.
		if !errors.Is(err, errCaptureFailed) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

// runCapture performs one capture with a fresh rod-backed Capturer.
func runCapture(ctx context.Context, cfg *config.Config, req *models.CaptureRequest) *models.CaptureResult {
	c := capture.New(browser.NewRodLauncher(cfg.Browser), cfg.Capture)
	return c.Capture(ctx, req)
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig, w io.Writer) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	slog.SetDefault(slog.New(handler))
}
