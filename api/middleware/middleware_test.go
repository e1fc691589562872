package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/webshot/config"
	"github.com/use-agent/webshot/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw...)
	r.GET("/ok", func(c *gin.Context) {
		key, _ := c.Get(APIKeyContextKey)
		c.JSON(http.StatusOK, gin.H{"key": key})
	})
	return r
}

func get(r http.Handler, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.RemoteAddr = "203.0.113.7:4000"
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeResult(t *testing.T, w *httptest.ResponseRecorder) models.CaptureResult {
	t.Helper()
	var res models.CaptureResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	return res
}

func TestAuth(t *testing.T) {
	r := newEngine(Auth([]string{"alpha", "", "beta"}))

	cases := []struct {
		name    string
		headers map[string]string
		status  int
	}{
		{"x-api-key", map[string]string{"X-API-Key": "alpha"}, http.StatusOK},
		{"bearer", map[string]string{"Authorization": "Bearer beta"}, http.StatusOK},
		{"missing", nil, http.StatusUnauthorized},
		{"wrong", map[string]string{"X-API-Key": "gamma"}, http.StatusUnauthorized},
		{"basic scheme", map[string]string{"Authorization": "Basic alpha"}, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := get(r, tc.headers)
			assert.Equal(t, tc.status, w.Code)
			if tc.status == http.StatusUnauthorized {
				res := decodeResult(t, w)
				assert.False(t, res.Success)
				require.NotNil(t, res.Error)
				assert.Equal(t, models.ErrCodeUnauthorized, res.Error.Code)
			}
		})
	}
}

func TestAuth_NoKeysIsOpen(t *testing.T) {
	r := newEngine(Auth(nil))
	assert.Equal(t, http.StatusOK, get(r, nil).Code)

	r = newEngine(Auth([]string{""}))
	assert.Equal(t, http.StatusOK, get(r, nil).Code)
}

func TestRateLimit(t *testing.T) {
	r := newEngine(RateLimit(config.RateLimitConfig{RequestsPerSecond: 0.5, Burst: 2}))

	assert.Equal(t, http.StatusOK, get(r, nil).Code)
	assert.Equal(t, http.StatusOK, get(r, nil).Code)

	w := get(r, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "2", w.Header().Get("Retry-After"))
	res := decodeResult(t, w)
	require.NotNil(t, res.Error)
	assert.Equal(t, models.ErrCodeRateLimited, res.Error.Code)
}

func TestRateLimit_PerKey(t *testing.T) {
	r := newEngine(
		Auth([]string{"alpha", "beta"}),
		RateLimit(config.RateLimitConfig{RequestsPerSecond: 0.01, Burst: 1}),
	)

	assert.Equal(t, http.StatusOK, get(r, map[string]string{"X-API-Key": "alpha"}).Code)
	assert.Equal(t, http.StatusTooManyRequests, get(r, map[string]string{"X-API-Key": "alpha"}).Code)
	assert.Equal(t, http.StatusOK, get(r, map[string]string{"X-API-Key": "beta"}).Code,
		"each key has its own bucket")
}

func TestKnownKey(t *testing.T) {
	keys := [][]byte{[]byte("alpha"), []byte("beta")}
	assert.True(t, knownKey(keys, []byte("beta")))
	assert.False(t, knownKey(keys, []byte("alph")))
	assert.False(t, knownKey(keys, nil))
}

func TestRetryAfter(t *testing.T) {
	assert.Equal(t, 1, retryAfter(4))
	assert.Equal(t, 2, retryAfter(0.5))
	assert.Equal(t, 1, retryAfter(0))
}
