// Package browser owns the headless Chromium used for a capture. A Session is
// one browser process with one page; it is acquired per capture and closed
// exactly once by its owner.
package browser

import (
	"context"
)

// Options configures a new session.
type Options struct {
	Headless bool
	Width    int
	Height   int

	// Stealth injects evasions for navigator.webdriver and friends before
	// the first navigation.
	Stealth bool

	// BlockAds fails requests to known ad and tracking domains.
	BlockAds bool

	// Headers are sent with every request the page makes.
	Headers map[string]string
}

// Session is the capability a capture needs from a browser.
type Session interface {
	// Navigate loads url and waits for the load event. A deadline on ctx
	// surfaces as context.DeadlineExceeded.
	Navigate(ctx context.Context, url string) error

	// ReadyState returns document.readyState.
	ReadyState(ctx context.Context) (string, error)

	// Info returns the page title and current URL.
	Info(ctx context.Context) (title, url string, err error)

	// HTML returns the rendered document.
	HTML(ctx context.Context) (string, error)

	// Screenshot captures the visible viewport as PNG.
	Screenshot(ctx context.Context) ([]byte, error)

	// ContentSize returns the full document size in CSS pixels.
	ContentSize(ctx context.Context) (width, height float64, err error)

	// OverrideViewport emulates a viewport of the given size at scale 1.
	OverrideViewport(ctx context.Context, width, height int) error

	// ClearViewport removes a previous OverrideViewport.
	ClearViewport(ctx context.Context) error

	// CaptureClip captures the rectangle (0,0,width,height) as PNG, including
	// content beyond the viewport.
	CaptureClip(ctx context.Context, width, height float64) ([]byte, error)

	// Close shuts the browser down. It is safe to call more than once.
	Close() error
}

// Launcher starts sessions.
type Launcher interface {
	Launch(ctx context.Context, opts Options) (Session, error)
}
