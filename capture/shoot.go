package capture

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/use-agent/webshot/browser"
	"github.com/use-agent/webshot/models"
)

// clearViewportTimeout bounds the override reset. It runs on its own context
// because the capture context may already be spent when the clip times out.
const clearViewportTimeout = 5 * time.Second

// shot is a captured bitmap and how it was produced.
type shot struct {
	data   []byte
	method models.CaptureMethod
	width  int
	height int
}

// shoot takes the screenshot. Full-page requests try the protocol capture
// first and drop to a viewport screenshot if that attempt fails; only a
// failing viewport screenshot is fatal.
func (c *Capturer) shoot(ctx context.Context, sess browser.Session, j *job, timeout time.Duration) (*shot, error) {
	if j.req.IsFullPage() {
		sh, err := captureFullPage(ctx, sess, timeout)
		if err == nil {
			return sh, nil
		}
		slog.Warn("full-page capture failed, falling back to viewport screenshot",
			"url", j.url,
			"error", err,
		)
	}
	return captureViewport(ctx, sess, timeout)
}

// captureFullPage measures the document, stretches the emulated viewport to
// it, captures the clipped rectangle and always clears the override again.
func captureFullPage(parent context.Context, sess browser.Session, timeout time.Duration) (*shot, error) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	w, h, err := sess.ContentSize(ctx)
	if err != nil {
		return nil, models.NewCaptureError(models.ErrCodeCapture, "failed to read layout metrics", err)
	}
	if w <= 0 || h <= 0 {
		return nil, models.NewCaptureError(models.ErrCodeCapture,
			fmt.Sprintf("document has no area (%.0fx%.0f)", w, h), nil)
	}

	width, height := int(math.Ceil(w)), int(math.Ceil(h))
	if err := sess.OverrideViewport(ctx, width, height); err != nil {
		return nil, models.NewCaptureError(models.ErrCodeCapture, "failed to override viewport", err)
	}

	data, clipErr := sess.CaptureClip(ctx, w, h)

	clearCtx, clearCancel := context.WithTimeout(context.WithoutCancel(parent), clearViewportTimeout)
	if err := sess.ClearViewport(clearCtx); err != nil {
		slog.Warn("failed to clear viewport override", "error", err)
	}
	clearCancel()
	if clipErr != nil {
		return nil, models.NewCaptureError(models.ErrCodeCapture, "protocol screenshot failed", clipErr)
	}
	if len(data) == 0 {
		return nil, models.NewCaptureError(models.ErrCodeCapture, "protocol screenshot returned no data", nil)
	}

	return &shot{data: data, method: models.MethodProtocol, width: width, height: height}, nil
}

func captureViewport(ctx context.Context, sess browser.Session, timeout time.Duration) (*shot, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	data, err := sess.Screenshot(ctx)
	if err != nil {
		return nil, models.NewCaptureError(models.ErrCodeCapture, "screenshot failed", err)
	}
	return &shot{data: data, method: models.MethodStandard}, nil
}
