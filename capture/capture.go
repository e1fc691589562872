package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/use-agent/webshot/browser"
	"github.com/use-agent/webshot/config"
	"github.com/use-agent/webshot/models"
	"github.com/use-agent/webshot/planner"
)

const defaultPollInterval = 500 * time.Millisecond

// Capturer turns capture requests into PNG files. Each call to Capture owns
// its own browser session, so a Capturer is safe for concurrent use.
type Capturer struct {
	launcher browser.Launcher
	defaults config.CaptureConfig
	active   atomic.Int32

	now          func() time.Time
	pollInterval time.Duration
}

// New returns a Capturer that launches sessions with l and fills unset
// request fields from defaults.
func New(l browser.Launcher, defaults config.CaptureConfig) *Capturer {
	return &Capturer{
		launcher:     l,
		defaults:     defaults,
		now:          time.Now,
		pollInterval: defaultPollInterval,
	}
}

// Active returns the number of captures currently in flight.
func (c *Capturer) Active() int {
	return int(c.active.Load())
}

// Screenshot captures req with a Capturer built from the environment and
// returns the result as a plain map, for callers that embed webshot as a
// tool.
func Screenshot(ctx context.Context, req models.CaptureRequest) map[string]any {
	cfg := config.Load()
	c := New(browser.NewRodLauncher(cfg.Browser), cfg.Capture)
	return c.Capture(ctx, &req).AsMap()
}

// stage names the step a capture is in; it is logged on every transition and
// attached to failures.
type stage string

const (
	stageValidating stage = "validating"
	stageAcquiring  stage = "acquiring"
	stageNavigating stage = "navigating"
	stageWaiting    stage = "waiting"
	stageCapturing  stage = "capturing"
	stagePersisting stage = "persisting"
	stageReleasing  stage = "releasing"
	stageDone       stage = "done"
)

// job is the per-invocation state threaded through the pipeline.
type job struct {
	req   models.CaptureRequest
	url   string
	start time.Time
	stage stage
}

func (j *job) enter(s stage) {
	j.stage = s
	slog.Debug("capture stage", "stage", string(s), "url", j.url)
}

// Capture runs one capture. It never returns nil and never panics: every
// fault becomes a result with Success == false.
//
// Lifecycle:
//
//  1. Validate          – url present, window size sane
//  2. Normalize         – default to https://
//  3. Plan              – dated folder + file name
//  4. Acquire session   – launch browser (DEFER: release)
//  5. Navigate          – deadline is reported, not fatal
//  6. Wait ready        – poll readyState, then fixed settle delay
//  7. Describe          – title, final URL, meta description
//  8. Capture           – full document via CDP, viewport as fallback
//  9. Persist           – write PNG, stat size
func (c *Capturer) Capture(ctx context.Context, req *models.CaptureRequest) (res *models.CaptureResult) {
	c.active.Add(1)
	defer c.active.Add(-1)

	j := &job{req: *req, url: req.URL, start: time.Now()}
	j.req.ApplyConfig(c.defaults)

	defer func() {
		if p := recover(); p != nil {
			res = c.failure(j, models.NewCaptureError(
				models.ErrCodeInternal,
				fmt.Sprintf("unexpected panic during %s", j.stage),
				fmt.Errorf("%v", p),
			))
		}
	}()

	res, err := c.run(ctx, j)
	if err != nil {
		return c.failure(j, err)
	}
	j.enter(stageDone)
	return res
}

func (c *Capturer) run(ctx context.Context, j *job) (*models.CaptureResult, error) {
	// ── 1. Validate ──────────────────────────────────────────────────
	j.enter(stageValidating)
	if err := j.req.Validate(); err != nil {
		return nil, err
	}

	// ── 2. Normalize ─────────────────────────────────────────────────
	j.url = models.NormalizeURL(j.req.URL)

	// ── 3. Plan output path ──────────────────────────────────────────
	fullPath, relPath, err := planner.Plan(j.req.OutputFolder, j.url, j.req.FilePrefix, c.now())
	if err != nil {
		return nil, models.NewCaptureError(models.ErrCodePersistence, "failed to prepare output path", err)
	}
	slog.Info("capture started", "url", j.url, "path", relPath)

	// ── 4. Acquire session ───────────────────────────────────────────
	j.enter(stageAcquiring)
	sess, err := c.launcher.Launch(ctx, browser.Options{
		Headless: j.req.IsHeadless(),
		Width:    j.req.WindowSize.Width,
		Height:   j.req.WindowSize.Height,
		Stealth:  j.req.Stealth,
		BlockAds: j.req.BlockAds,
		Headers:  j.req.Headers,
	})
	if err != nil {
		return nil, models.NewCaptureError(
			models.ErrCodeSessionLaunch,
			"failed to start browser session (install Chromium or set WEBSHOT_BROWSER_BIN)",
			err,
		)
	}

	// ── 4b. DEFER: release exactly once, whatever happens below ─────
	defer func() {
		j.enter(stageReleasing)
		if closeErr := sess.Close(); closeErr != nil {
			slog.Debug("session release failed", "url", j.url, "error", closeErr)
		}
	}()

	timeout := time.Duration(j.req.Timeout) * time.Second

	// ── 5. Navigate ──────────────────────────────────────────────────
	j.enter(stageNavigating)
	status, err := navigate(ctx, sess, j.url, timeout)
	if err != nil {
		return nil, err
	}

	// ── 6. Wait for readyState, then settle ──────────────────────────
	j.enter(stageWaiting)
	if c.waitReady(ctx, sess, timeout) {
		sleepCtx(ctx, time.Duration(j.req.WaitSeconds())*time.Second)
	} else {
		slog.Warn("document not ready before timeout, capturing current state",
			"url", j.url, "timeout", timeout)
		if status == models.LoadComplete {
			status = models.LoadReadyTimeout
		}
	}

	// ── 7. Describe page (best-effort) ───────────────────────────────
	page := describePage(ctx, sess, j.url, timeout)

	// ── 8. Capture ───────────────────────────────────────────────────
	j.enter(stageCapturing)
	sh, err := c.shoot(ctx, sess, j, timeout)
	if err != nil {
		return nil, err
	}

	// ── 9. Persist ───────────────────────────────────────────────────
	j.enter(stagePersisting)
	if err := os.WriteFile(fullPath, sh.data, 0o644); err != nil {
		return nil, models.NewCaptureError(models.ErrCodePersistence, "failed to write screenshot", err)
	}
	info, err := os.Stat(fullPath)
	if err != nil {
		return nil, models.NewCaptureError(models.ErrCodePersistence, "failed to stat screenshot", err)
	}

	size := info.Size()
	duration := models.Round2(time.Since(j.start).Seconds())
	headless := j.req.IsHeadless()

	slog.Info("screenshot saved",
		"path", relPath,
		"bytes", size,
		"method", string(sh.method),
		"duration_s", duration,
		"load_status", string(status),
	)

	return &models.CaptureResult{
		Success: true,
		Message: "screenshot saved",
		File: &models.FileInfo{
			Path:         fullPath,
			RelativePath: relPath,
			SizeBytes:    size,
			SizeMB:       models.Round2(float64(size) / (1024 * 1024)),
		},
		Page: page,
		Capture: &models.CaptureInfo{
			FullPage: j.req.IsFullPage(),
			Method:   sh.method,
			Width:    sh.width,
			Height:   sh.height,
		},
		Metadata: models.ResultMetadata{
			Timestamp:       c.now().Format(time.RFC3339),
			DurationSeconds: duration,
			WindowSize:      j.req.WindowSize.String(),
			Headless:        &headless,
			LoadStatus:      status,
		},
	}, nil
}

// failure builds the result for a fatal error. Errors that are not
// *models.CaptureError are reported as INTERNAL_ERROR.
func (c *Capturer) failure(j *job, err error) *models.CaptureResult {
	var ce *models.CaptureError
	if !errors.As(err, &ce) {
		ce = models.NewCaptureError(models.ErrCodeInternal, "unexpected error", err)
	}

	slog.Error("capture failed",
		"url", j.url,
		"stage", string(j.stage),
		"code", ce.Code,
		"error", err,
	)

	return models.NewFailure(j.url, ce, time.Since(j.start), c.now())
}

// navigate loads url within timeout. Running out of time is reported as
// LoadNavigationTimeout so the capture can go on with a partial page; any
// other failure is fatal.
func navigate(ctx context.Context, sess browser.Session, url string, timeout time.Duration) (models.LoadStatus, error) {
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := sess.Navigate(navCtx, url)
	switch {
	case err == nil:
		return models.LoadComplete, nil
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		slog.Warn("page load timed out, capturing partially loaded page",
			"url", url, "timeout", timeout)
		return models.LoadNavigationTimeout, nil
	default:
		return "", categorizeError(err, "navigation to target URL failed")
	}
}

// waitReady polls document.readyState until it is "complete" or timeout
// elapses. Evaluation errors while the page is still swapping documents are
// expected and just mean "not yet".
func (c *Capturer) waitReady(ctx context.Context, sess browser.Session, timeout time.Duration) bool {
	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		if state, err := sess.ReadyState(pollCtx); err == nil && state == "complete" {
			return true
		}
		select {
		case <-pollCtx.Done():
			return false
		case <-time.After(c.pollInterval):
		}
	}
}

// sleepCtx sleeps for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// categorizeError wraps raw errors into typed CaptureErrors.
func categorizeError(err error, msg string) *models.CaptureError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewCaptureError(models.ErrCodeNavigationTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewCaptureError(models.ErrCodeNavigationTimeout, "request canceled", err)
	default:
		return models.NewCaptureError(models.ErrCodeNavigation, msg, err)
	}
}
