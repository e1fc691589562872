package config

import (
	"os"
	"strconv"
	"strings"
)

// DefaultUserAgent is the desktop Chrome user agent sent by every session
// unless WEBSHOT_USER_AGENT overrides it.
const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Capture   CaptureConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Batch     BatchConfig
	Log       LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls how each capture session launches Chromium.
type BrowserConfig struct {
	// NoSandbox disables Chrome's sandbox (needed in Docker and CI).
	NoSandbox bool // default: true

	// BrowserBin overrides the Chromium binary path. Empty lets rod
	// locate or download a browser.
	BrowserBin string

	// Proxy is passed to Chromium as --proxy-server.
	Proxy string

	// UserAgent replaces the headless user agent.
	UserAgent string
}

// CaptureConfig holds the defaults applied to capture requests that
// leave a field unset.
type CaptureConfig struct {
	OutputFolder string // default: "./screenshots"
	FilePrefix   string // default: "screenshot"
	WindowSize   string // default: "1920,1080"
	Headless     bool   // default: true

	// WaitSeconds is the fixed settle delay after the document is ready.
	WaitSeconds int // default: 3

	// TimeoutSeconds bounds navigation and the ready poll.
	TimeoutSeconds int // default: 30

	// MaxTimeoutSeconds caps a client-supplied timeout.
	MaxTimeoutSeconds int // default: 120
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	Enabled bool // default: true
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 2

	// Burst is the maximum burst size per API key.
	Burst int // default: 4
}

// CacheConfig controls the capture result cache.
type CacheConfig struct {
	MaxEntries int // default: 500
}

// BatchConfig controls batch capture jobs.
type BatchConfig struct {
	// MaxURLs is the largest accepted batch.
	MaxURLs int // default: 50

	// Concurrency is the number of browser sessions a batch may hold at once.
	Concurrency int // default: 4
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "text"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("WEBSHOT_HOST", "0.0.0.0"),
			Port: envIntOr("WEBSHOT_PORT", 8080),
			Mode: envOr("WEBSHOT_MODE", "release"),
		},
		Browser: BrowserConfig{
			NoSandbox:  envBoolOr("WEBSHOT_NO_SANDBOX", true),
			BrowserBin: os.Getenv("WEBSHOT_BROWSER_BIN"),
			Proxy:      os.Getenv("WEBSHOT_PROXY"),
			UserAgent:  envOr("WEBSHOT_USER_AGENT", DefaultUserAgent),
		},
		Capture: CaptureConfig{
			OutputFolder:      envOr("WEBSHOT_OUTPUT_FOLDER", "./screenshots"),
			FilePrefix:        envOr("WEBSHOT_FILE_PREFIX", "screenshot"),
			WindowSize:        envOr("WEBSHOT_WINDOW_SIZE", "1920,1080"),
			Headless:          envBoolOr("WEBSHOT_HEADLESS", true),
			WaitSeconds:       envIntOr("WEBSHOT_WAIT", 3),
			TimeoutSeconds:    envIntOr("WEBSHOT_TIMEOUT", 30),
			MaxTimeoutSeconds: envIntOr("WEBSHOT_MAX_TIMEOUT", 120),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("WEBSHOT_AUTH_ENABLED", true),
			APIKeys: envSliceOr("WEBSHOT_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("WEBSHOT_RATE_RPS", 2.0),
			Burst:             envIntOr("WEBSHOT_RATE_BURST", 4),
		},
		Cache: CacheConfig{
			MaxEntries: envIntOr("WEBSHOT_CACHE_MAX_ENTRIES", 500),
		},
		Batch: BatchConfig{
			MaxURLs:     envIntOr("WEBSHOT_BATCH_MAX_URLS", 50),
			Concurrency: envIntOr("WEBSHOT_BATCH_CONCURRENCY", 4),
		},
		Log: LogConfig{
			Level:  envOr("WEBSHOT_LOG_LEVEL", "info"),
			Format: envOr("WEBSHOT_LOG_FORMAT", "text"),
		},
	}
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
