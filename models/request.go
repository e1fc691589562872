package models

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/use-agent/webshot/config"
)

// WindowSize is a browser window in CSS pixels. Its text form is "W,H",
// which is what the CLI flag, the JSON API and the environment use.
type WindowSize struct {
	Width  int
	Height int
}

// ParseWindowSize parses "1920,1080" (spaces and an "x" separator are
// tolerated).
func ParseWindowSize(s string) (WindowSize, error) {
	sep := ","
	if !strings.Contains(s, ",") {
		sep = "x"
	}
	parts := strings.Split(s, sep)
	if len(parts) != 2 {
		return WindowSize{}, fmt.Errorf("window size %q: want WIDTH,HEIGHT", s)
	}
	w, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return WindowSize{}, fmt.Errorf("window size %q: bad width: %w", s, err)
	}
	h, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return WindowSize{}, fmt.Errorf("window size %q: bad height: %w", s, err)
	}
	if w <= 0 || h <= 0 {
		return WindowSize{}, fmt.Errorf("window size %q: dimensions must be positive", s)
	}
	return WindowSize{Width: w, Height: h}, nil
}

func (w WindowSize) String() string {
	return fmt.Sprintf("%d,%d", w.Width, w.Height)
}

// IsZero reports whether the size was never set.
func (w WindowSize) IsZero() bool {
	return w.Width == 0 && w.Height == 0
}

func (w WindowSize) MarshalText() ([]byte, error) {
	return []byte(w.String()), nil
}

func (w *WindowSize) UnmarshalText(b []byte) error {
	parsed, err := ParseWindowSize(string(b))
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}

// CaptureRequest is the payload for POST /api/v1/screenshot and the input of
// every capture, whichever surface it came from.
type CaptureRequest struct {
	// URL is the page to capture. Required. A missing scheme becomes https://.
	URL string `json:"url"`

	// OutputFolder is the root under which dated folders are created.
	OutputFolder string `json:"output_folder,omitempty"`

	// FilePrefix starts every file name. Default: "screenshot".
	FilePrefix string `json:"file_prefix,omitempty"`

	// WindowSize is the browser window. Default: 1920,1080.
	WindowSize WindowSize `json:"window_size,omitzero"`

	// FullPage captures the whole document instead of the viewport.
	// Default: true.
	FullPage *bool `json:"full_page,omitempty"`

	// Wait is the fixed settle delay in seconds once the document is ready.
	// Default: 3.
	Wait *int `json:"wait,omitempty" binding:"omitempty,min=0,max=60"`

	// Headless runs the browser without a window. Default: true.
	Headless *bool `json:"headless,omitempty"`

	// Timeout bounds navigation and the ready poll, in seconds.
	// Default: 30. Max: 120.
	Timeout int `json:"timeout,omitempty" binding:"omitempty,min=1,max=120"`

	// Stealth injects anti-bot-detection evasions before navigation.
	Stealth bool `json:"stealth,omitempty"`

	// BlockAds drops requests to well-known ad and tracking domains.
	BlockAds bool `json:"block_ads,omitempty"`

	// Headers are extra HTTP headers sent with every page request.
	Headers map[string]string `json:"headers,omitempty"`

	// MaxAge allows reuse of a cached capture younger than this many
	// milliseconds. 0 disables the cache. API only.
	MaxAge int `json:"max_age,omitempty" binding:"omitempty,min=0"`
}

// Defaults applies the built-in defaults to unset fields.
func (r *CaptureRequest) Defaults() {
	r.ApplyConfig(config.CaptureConfig{
		OutputFolder:      "./screenshots",
		FilePrefix:        "screenshot",
		WindowSize:        "1920,1080",
		Headless:          true,
		WaitSeconds:       3,
		TimeoutSeconds:    30,
		MaxTimeoutSeconds: 120,
	})
}

// ApplyConfig fills unset fields from cfg and clamps the timeout to
// cfg.MaxTimeoutSeconds.
func (r *CaptureRequest) ApplyConfig(cfg config.CaptureConfig) {
	if r.OutputFolder == "" {
		r.OutputFolder = cfg.OutputFolder
	}
	if r.FilePrefix == "" {
		r.FilePrefix = cfg.FilePrefix
	}
	if r.WindowSize.IsZero() {
		if ws, err := ParseWindowSize(cfg.WindowSize); err == nil {
			r.WindowSize = ws
		} else {
			r.WindowSize = WindowSize{Width: 1920, Height: 1080}
		}
	}
	if r.FullPage == nil {
		t := true
		r.FullPage = &t
	}
	if r.Wait == nil {
		w := cfg.WaitSeconds
		r.Wait = &w
	}
	if r.Headless == nil {
		h := cfg.Headless
		r.Headless = &h
	}
	if r.Timeout == 0 {
		r.Timeout = cfg.TimeoutSeconds
	}
	if cfg.MaxTimeoutSeconds > 0 && r.Timeout > cfg.MaxTimeoutSeconds {
		r.Timeout = cfg.MaxTimeoutSeconds
	}
}

// Validate checks the fields that defaults cannot repair.
func (r *CaptureRequest) Validate() error {
	if strings.TrimSpace(r.URL) == "" {
		return NewCaptureError(ErrCodeInvalidInput, "url is required", nil)
	}
	if r.WindowSize.Width <= 0 || r.WindowSize.Height <= 0 {
		return NewCaptureError(ErrCodeInvalidInput,
			fmt.Sprintf("invalid window size %s", r.WindowSize), nil)
	}
	if r.Wait != nil && *r.Wait < 0 {
		return NewCaptureError(ErrCodeInvalidInput, "wait must not be negative", nil)
	}
	if r.Timeout < 0 {
		return NewCaptureError(ErrCodeInvalidInput, "timeout must not be negative", nil)
	}
	return nil
}

// IsFullPage reports the effective full-page setting.
func (r *CaptureRequest) IsFullPage() bool {
	return r.FullPage == nil || *r.FullPage
}

// IsHeadless reports the effective headless setting.
func (r *CaptureRequest) IsHeadless() bool {
	return r.Headless == nil || *r.Headless
}

// WaitSeconds reports the effective settle delay.
func (r *CaptureRequest) WaitSeconds() int {
	if r.Wait == nil {
		return 3
	}
	return *r.Wait
}

// NormalizeURL prepends https:// unless the URL already carries an http,
// https or file scheme.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	for _, scheme := range []string{"http://", "https://", "file://"} {
		if strings.HasPrefix(raw, scheme) {
			return raw
		}
	}
	return "https://" + raw
}
