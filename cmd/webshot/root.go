package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/use-agent/webshot/config"
	"github.com/use-agent/webshot/models"
)

// errCaptureFailed makes the process exit 1 after the result was printed.
// JSON and human output share this exit policy.
var errCaptureFailed = errors.New("capture failed")

// captureFunc runs a single capture.
type captureFunc func(ctx context.Context, cfg *config.Config, req *models.CaptureRequest) *models.CaptureResult

// cliFlags holds the root command's flag values.
type cliFlags struct {
	url          string
	outputFolder string
	prefix       string
	windowSize   string
	noFullPage   bool
	wait         int
	timeout      int
	noHeadless   bool
	jsonOut      bool
	stealth      bool
	blockAds     bool
	logLevel     string
}

func newRootCmd(cfg *config.Config, run captureFunc) *cobra.Command {
	var f cliFlags

	cmd := &cobra.Command{
		Use:   "webshot",
		Short: "Capture a full-page screenshot of a URL",
		Long: `webshot opens the URL in headless Chromium, waits for the document to
finish loading, captures the whole page as PNG and stores it under
<output-folder>/<YYYY-MM-DD>/<prefix>_<domain>_<YYYYMMDD_HHMMSS>.png.

Use "webshot serve" to run the HTTP API instead.`,
		Example: `  webshot --url https://example.com
  webshot --url example.com --window-size 1280,720 --no-full-page --json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.logLevel != "" {
				cfg.Log.Level = f.logLevel
			}
			initLogger(cfg.Log, cmd.ErrOrStderr())

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			res := execute(ctx, cfg, &f, run)
			if err := report(cmd.OutOrStdout(), res, f.jsonOut); err != nil {
				return err
			}
			if !res.Success {
				return errCaptureFailed
			}
			return nil
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.url, "url", "", "URL to capture (required)")
	fl.StringVar(&f.outputFolder, "output-folder", cfg.Capture.OutputFolder, "root folder for dated screenshot folders")
	fl.StringVar(&f.prefix, "prefix", cfg.Capture.FilePrefix, "file name prefix")
	fl.StringVar(&f.windowSize, "window-size", cfg.Capture.WindowSize, "browser window as WIDTH,HEIGHT")
	fl.BoolVar(&f.noFullPage, "no-full-page", false, "capture only the viewport")
	fl.IntVar(&f.wait, "wait", cfg.Capture.WaitSeconds, "settle delay in seconds after the page is ready")
	fl.IntVar(&f.timeout, "timeout", cfg.Capture.TimeoutSeconds, "page load timeout in seconds")
	fl.BoolVar(&f.noHeadless, "no-headless", false, "show the browser window")
	fl.BoolVar(&f.jsonOut, "json", false, "print the result as JSON")
	fl.BoolVar(&f.stealth, "stealth", false, "hide common headless-browser fingerprints")
	fl.BoolVar(&f.blockAds, "block-ads", false, "block well-known ad and tracking domains")
	fl.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error (default from WEBSHOT_LOG_LEVEL)")

	// --file-prefix is the long spelling of --prefix.
	fl.StringVar(&f.prefix, "file-prefix", cfg.Capture.FilePrefix, "alias for --prefix")
	_ = cmd.MarkFlagRequired("url")

	return cmd
}

// execute turns flags into a request and runs it. A malformed window size
// is reported like any other invalid input.
func execute(ctx context.Context, cfg *config.Config, f *cliFlags, run captureFunc) *models.CaptureResult {
	start := time.Now()
	ws, err := models.ParseWindowSize(f.windowSize)
	if err != nil {
		ce := models.NewCaptureError(models.ErrCodeInvalidInput, "invalid --window-size", err)
		return models.NewFailure(models.NormalizeURL(f.url), ce, time.Since(start), time.Now())
	}

	fullPage := !f.noFullPage
	headless := cfg.Capture.Headless && !f.noHeadless
	wait := f.wait

	return run(ctx, cfg, &models.CaptureRequest{
		URL:          f.url,
		OutputFolder: f.outputFolder,
		FilePrefix:   f.prefix,
		WindowSize:   ws,
		FullPage:     &fullPage,
		Wait:         &wait,
		Headless:     &headless,
		Timeout:      f.timeout,
		Stealth:      f.stealth,
		BlockAds:     f.blockAds,
	})
}

// report prints the result either as indented JSON or as a short summary.
func report(w io.Writer, res *models.CaptureResult, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(res)
	}

	if !res.Success {
		code, msg := models.ErrCodeInternal, "unknown error"
		if res.Error != nil {
			code, msg = res.Error.Code, res.Error.Message
		}
		_, err := fmt.Fprintf(w, "failed: [%s] %s\n", code, msg)
		return err
	}

	if res.Metadata.LoadStatus != "" && res.Metadata.LoadStatus != models.LoadComplete {
		fmt.Fprintf(w, "warning: page not fully loaded (%s)\n", res.Metadata.LoadStatus)
	}
	fmt.Fprintf(w, "saved: %s\n", res.File.RelativePath)
	fmt.Fprintf(w, "size: %d bytes (%.2f MB)\n", res.File.SizeBytes, res.File.SizeMB)
	_, err := fmt.Fprintf(w, "duration: %.2fs\n", res.Metadata.DurationSeconds)
	return err
}
