package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/webshot/cache"
	"github.com/use-agent/webshot/config"
	"github.com/use-agent/webshot/models"
	"github.com/use-agent/webshot/webhook"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testDefaults = config.CaptureConfig{
	OutputFolder:      "/srv/shots",
	FilePrefix:        "screenshot",
	WindowSize:        "1920,1080",
	Headless:          true,
	WaitSeconds:       0,
	TimeoutSeconds:    30,
	MaxTimeoutSeconds: 120,
}

// fakeCapturer records requests and answers with respond (or a generic
// success).
type fakeCapturer struct {
	mu      sync.Mutex
	reqs    []models.CaptureRequest
	active  int
	respond func(req *models.CaptureRequest) *models.CaptureResult
}

func (f *fakeCapturer) Capture(_ context.Context, req *models.CaptureRequest) *models.CaptureResult {
	f.mu.Lock()
	f.reqs = append(f.reqs, *req)
	f.mu.Unlock()
	if f.respond != nil {
		return f.respond(req)
	}
	return &models.CaptureResult{Success: true, Page: models.PageInfo{URL: req.URL}}
}

func (f *fakeCapturer) Active() int { return f.active }

func (f *fakeCapturer) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reqs)
}

func do(t *testing.T, r http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return w, out
}

func errorCode(t *testing.T, body map[string]any) string {
	t.Helper()
	e, ok := body["error"].(map[string]any)
	require.True(t, ok, "body has no error: %v", body)
	return e["code"].(string)
}

func screenshotRouter(fc *fakeCapturer, cc *cache.Cache) *gin.Engine {
	r := gin.New()
	r.POST("/screenshot", Screenshot(fc, testDefaults, cc))
	return r
}

func TestScreenshot_Success(t *testing.T) {
	fc := &fakeCapturer{}
	w, body := do(t, screenshotRouter(fc, nil), http.MethodPost, "/screenshot",
		`{"url":"example.com","window_size":"800,600","output_folder":"/etc","headless":false,"wait":1}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])

	require.Equal(t, 1, fc.calls())
	got := fc.reqs[0]
	assert.Equal(t, "example.com", got.URL)
	assert.Equal(t, models.WindowSize{Width: 800, Height: 600}, got.WindowSize)
	assert.Equal(t, "/srv/shots", got.OutputFolder, "output folder is server-owned")
	assert.True(t, got.IsHeadless(), "headless is server-owned")
	assert.Equal(t, 1, got.WaitSeconds())
	assert.Equal(t, 30, got.Timeout)
}

func TestScreenshot_BadBody(t *testing.T) {
	fc := &fakeCapturer{}
	cases := map[string]string{
		"malformed":   `{"url":`,
		"window size": `{"url":"example.com","window_size":"wide"}`,
		"timeout":     `{"url":"example.com","timeout":500}`,
		"wait":        `{"url":"example.com","wait":-1}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			w, out := do(t, screenshotRouter(fc, nil), http.MethodPost, "/screenshot", body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, models.ErrCodeInvalidInput, errorCode(t, out))
		})
	}
	assert.Equal(t, 0, fc.calls())
}

func TestScreenshot_FailureStatus(t *testing.T) {
	fc := &fakeCapturer{respond: func(req *models.CaptureRequest) *models.CaptureResult {
		return &models.CaptureResult{
			Success: false,
			Page:    models.PageInfo{URL: req.URL},
			Error:   &models.ErrorDetail{Code: models.ErrCodeNavigation, Message: "net::ERR_NAME_NOT_RESOLVED"},
		}
	}}
	w, out := do(t, screenshotRouter(fc, nil), http.MethodPost, "/screenshot", `{"url":"nope.invalid"}`)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, models.ErrCodeNavigation, errorCode(t, out))
	assert.Equal(t, false, out["success"])
}

func TestScreenshot_Cache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shot.png")
	require.NoError(t, os.WriteFile(path, []byte("png"), 0o644))

	fc := &fakeCapturer{respond: func(req *models.CaptureRequest) *models.CaptureResult {
		return &models.CaptureResult{
			Success: true,
			File:    &models.FileInfo{Path: path, RelativePath: "shot.png", SizeBytes: 3},
			Page:    models.PageInfo{URL: req.URL},
		}
	}}
	r := screenshotRouter(fc, cache.New(10))

	_, first := do(t, r, http.MethodPost, "/screenshot", `{"url":"example.com","max_age":60000}`)
	assert.Equal(t, "miss", first["cache_status"])

	_, second := do(t, r, http.MethodPost, "/screenshot", `{"url":"https://example.com","max_age":60000}`)
	assert.Equal(t, "hit", second["cache_status"])
	assert.Equal(t, 1, fc.calls())

	_, third := do(t, r, http.MethodPost, "/screenshot", `{"url":"example.com"}`)
	assert.Nil(t, third["cache_status"], "no max_age bypasses the cache")
	assert.Equal(t, 2, fc.calls())
}

func TestStatusFor(t *testing.T) {
	cases := map[string]int{
		models.ErrCodeInvalidInput:      http.StatusBadRequest,
		models.ErrCodeUnauthorized:      http.StatusUnauthorized,
		models.ErrCodeNotFound:          http.StatusNotFound,
		models.ErrCodeRateLimited:       http.StatusTooManyRequests,
		models.ErrCodeNavigation:        http.StatusBadGateway,
		models.ErrCodeSessionLaunch:     http.StatusServiceUnavailable,
		models.ErrCodeNavigationTimeout: http.StatusGatewayTimeout,
		models.ErrCodeCapture:           http.StatusInternalServerError,
		models.ErrCodePersistence:       http.StatusInternalServerError,
		models.ErrCodeInternal:          http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, statusFor(&models.ErrorDetail{Code: code}), code)
	}
	assert.Equal(t, http.StatusInternalServerError, statusFor(nil))
}

func TestHealth(t *testing.T) {
	fc := &fakeCapturer{active: 1}
	r := gin.New()
	r.GET("/health", Health(fc, 4, time.Now()))

	w, out := do(t, r, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", out["status"])
	assert.Equal(t, float64(1), out["active_captures"])
	assert.Equal(t, Version, out["version"])

	fc.active = 5
	_, out = do(t, r, http.MethodGet, "/health", "")
	assert.Equal(t, "busy", out["status"])
}

func batchRouter(fc *fakeCapturer, cfg config.BatchConfig) *gin.Engine {
	store := NewBatchStore()
	r := gin.New()
	r.POST("/batch/screenshot", PostBatch(fc, testDefaults, cfg, store))
	r.GET("/batch/:id", GetBatch(store))
	return r
}

func waitForBatch(t *testing.T, r http.Handler, id string) map[string]any {
	t.Helper()
	var out map[string]any
	require.Eventually(t, func() bool {
		_, out = do(t, r, http.MethodGet, "/batch/"+id, "")
		return out["status"] != "processing"
	}, 5*time.Second, 10*time.Millisecond)
	return out
}

func TestBatch_Partial(t *testing.T) {
	fc := &fakeCapturer{respond: func(req *models.CaptureRequest) *models.CaptureResult {
		if strings.Contains(req.URL, "bad") {
			return &models.CaptureResult{
				Success: false,
				Page:    models.PageInfo{URL: req.URL},
				Error:   &models.ErrorDetail{Code: models.ErrCodeNavigation, Message: "boom"},
			}
		}
		return &models.CaptureResult{Success: true, Page: models.PageInfo{URL: req.URL}}
	}}
	r := batchRouter(fc, config.BatchConfig{MaxURLs: 10, Concurrency: 2})

	w, out := do(t, r, http.MethodPost, "/batch/screenshot",
		`{"urls":["good.example","bad.example","also-good.example"],"options":{"full_page":false,"output_folder":"/tmp/x"}}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, float64(3), out["total"])
	id := out["id"].(string)
	assert.True(t, strings.HasPrefix(id, "batch-"))

	final := waitForBatch(t, r, id)
	assert.Equal(t, "partial", final["status"])
	assert.Equal(t, float64(3), final["completed"])

	results := final["results"].([]any)
	require.Len(t, results, 3)
	assert.Equal(t, "bad.example", results[1].(map[string]any)["page"].(map[string]any)["url"],
		"results keep request order")

	for _, req := range fc.reqs {
		assert.False(t, req.IsFullPage())
		assert.Equal(t, "/srv/shots", req.OutputFolder)
	}
}

func TestBatch_AllFailed(t *testing.T) {
	fc := &fakeCapturer{respond: func(req *models.CaptureRequest) *models.CaptureResult {
		return &models.CaptureResult{Success: false, Error: &models.ErrorDetail{Code: models.ErrCodeCapture}}
	}}
	r := batchRouter(fc, config.BatchConfig{MaxURLs: 10, Concurrency: 1})

	_, out := do(t, r, http.MethodPost, "/batch/screenshot", `{"urls":["a.example","b.example"]}`)
	final := waitForBatch(t, r, out["id"].(string))
	assert.Equal(t, "failed", final["status"])
}

func TestBatch_Validation(t *testing.T) {
	r := batchRouter(&fakeCapturer{}, config.BatchConfig{MaxURLs: 2, Concurrency: 1})

	w, out := do(t, r, http.MethodPost, "/batch/screenshot", `{"urls":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, models.ErrCodeInvalidInput, errorCode(t, out))

	w, out = do(t, r, http.MethodPost, "/batch/screenshot", `{"urls":["a","b","c"]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, out["error"].(map[string]any)["message"], "maximum 2 URLs")
}

func TestBatch_NotFound(t *testing.T) {
	r := batchRouter(&fakeCapturer{}, config.BatchConfig{MaxURLs: 2, Concurrency: 1})
	w, out := do(t, r, http.MethodGet, "/batch/batch-missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, models.ErrCodeNotFound, errorCode(t, out))
}

func TestBatch_Webhook(t *testing.T) {
	type delivery struct {
		sig  string
		body []byte
	}
	got := make(chan delivery, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		got <- delivery{sig: r.Header.Get(webhook.SignatureHeader), body: b}
	}))
	defer srv.Close()

	r := batchRouter(&fakeCapturer{}, config.BatchConfig{MaxURLs: 5, Concurrency: 2})
	payload, err := json.Marshal(map[string]any{
		"urls":           []string{"a.example"},
		"webhook_url":    srv.URL,
		"webhook_secret": "s3cret",
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/batch/screenshot", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusAccepted, w.Code)

	select {
	case d := <-got:
		assert.Equal(t, webhook.Sign("s3cret", d.body), d.sig)
		var ev webhook.Event
		require.NoError(t, json.Unmarshal(d.body, &ev))
		assert.Equal(t, webhook.EventBatchCompleted, ev.Type)
		assert.Equal(t, "completed", ev.Data.(map[string]any)["status"])
	case <-time.After(5 * time.Second):
		t.Fatal("webhook not delivered")
	}
}
