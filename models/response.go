package models

import (
	"encoding/json"
	"math"
	"time"
)

// CaptureMethod records which capture path produced the bitmap.
type CaptureMethod string

const (
	// MethodProtocol is the full-document capture driven through the
	// DevTools protocol (layout metrics + clipped screenshot).
	MethodProtocol CaptureMethod = "CDP"

	// MethodStandard is the viewport-bounded screenshot.
	MethodStandard CaptureMethod = "standard"
)

// LoadStatus records how far page loading got before capture started.
// Timeouts are not failures; they are reported here instead.
type LoadStatus string

const (
	LoadComplete          LoadStatus = "complete"
	LoadNavigationTimeout LoadStatus = "navigation_timeout"
	LoadReadyTimeout      LoadStatus = "ready_timeout"
)

// CaptureResult is the outcome of one capture. Success selects which of the
// optional sections are populated: File and Capture on success, Error on
// failure.
type CaptureResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`

	File    *FileInfo    `json:"file,omitempty"`
	Page    PageInfo     `json:"page"`
	Capture *CaptureInfo `json:"capture,omitempty"`

	Metadata ResultMetadata `json:"metadata"`

	// CacheStatus is "hit" or "miss" when the caller asked for caching.
	CacheStatus string `json:"cache_status,omitempty"`

	Error *ErrorDetail `json:"error,omitempty"`
}

// FileInfo describes the PNG written to disk.
type FileInfo struct {
	Path         string  `json:"path"`
	RelativePath string  `json:"relative_path"`
	SizeBytes    int64   `json:"size_bytes"`
	SizeMB       float64 `json:"size_mb"`
}

// PageInfo describes the page that was captured. On failure only URL is set.
type PageInfo struct {
	URL         string `json:"url"`
	FinalURL    string `json:"final_url,omitempty"`
	Title       string `json:"title,omitempty"`
	Redirected  bool   `json:"redirected"`
	Description string `json:"description,omitempty"`
}

// CaptureInfo describes how the bitmap was produced. Width and Height are
// the full document size and are only known for MethodProtocol.
type CaptureInfo struct {
	FullPage bool          `json:"full_page"`
	Method   CaptureMethod `json:"method"`
	Width    int           `json:"width,omitempty"`
	Height   int           `json:"height,omitempty"`
}

// ResultMetadata carries timing and environment details.
type ResultMetadata struct {
	Timestamp       string     `json:"timestamp"`
	DurationSeconds float64    `json:"duration_seconds"`
	WindowSize      string     `json:"window_size,omitempty"`
	Headless        *bool      `json:"headless,omitempty"`
	LoadStatus      LoadStatus `json:"load_status,omitempty"`
}

// AsMap returns the result as a plain map with the same shape as its JSON
// encoding.
func (r *CaptureResult) AsMap() map[string]any {
	b, err := json.Marshal(r)
	if err != nil {
		return map[string]any{"success": false}
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return map[string]any{"success": false}
	}
	return m
}

// NewFailure builds the result for a capture that failed after running for
// elapsed. Every failure carries a timestamp and a duration, even one rejected
// before a browser was started.
func NewFailure(url string, ce *CaptureError, elapsed time.Duration, at time.Time) *CaptureResult {
	return &CaptureResult{
		Success: false,
		Page:    PageInfo{URL: url},
		Metadata: ResultMetadata{
			Timestamp:       at.Format(time.RFC3339),
			DurationSeconds: Round2(elapsed.Seconds()),
		},
		Error: ce.ToDetail(),
	}
}

// Round2 rounds to two decimals, the precision used for sizes and durations.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status         string `json:"status"` // "healthy" or "busy"
	Uptime         string `json:"uptime"`
	ActiveCaptures int    `json:"active_captures"`
	Version        string `json:"version"`
}
