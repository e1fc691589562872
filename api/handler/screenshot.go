package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/webshot/cache"
	"github.com/use-agent/webshot/config"
	"github.com/use-agent/webshot/models"
)

// Capturer runs captures. *capture.Capturer satisfies it.
type Capturer interface {
	Capture(ctx context.Context, req *models.CaptureRequest) *models.CaptureResult
	Active() int
}

// Screenshot returns a handler for POST /api/v1/screenshot.
//
// Flow:
//  1. Bind the request and pin server-owned fields (output folder, headless).
//  2. Serve from cache when max_age allows it.
//  3. Capture, store on success, map the error code to a status.
func Screenshot(cp Capturer, defaults config.CaptureConfig, cc *cache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		// ── 1. Parse request ────────────────────────────────────────
		req, ok := bindCapture(c, defaults)
		if !ok {
			return
		}

		// ── 2. Cache lookup ─────────────────────────────────────────
		var cacheKey string
		if cc != nil && req.MaxAge > 0 {
			cacheKey = cache.Key(req)
			if cached, hit := cc.Get(cacheKey, req.MaxAge); hit {
				cached.CacheStatus = "hit"
				c.JSON(http.StatusOK, cached)
				return
			}
		}

		// ── 3. Capture ──────────────────────────────────────────────
		res := cp.Capture(c.Request.Context(), req)
		if !res.Success {
			c.JSON(statusFor(res.Error), res)
			return
		}

		if cacheKey != "" {
			cc.Set(cacheKey, res)
			res.CacheStatus = "miss"
		}
		c.JSON(http.StatusOK, res)
	}
}

// bindCapture decodes the body into a request with server defaults applied.
// On failure it has already written a 400.
func bindCapture(c *gin.Context, defaults config.CaptureConfig) (*models.CaptureRequest, bool) {
	var req models.CaptureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, models.NewCaptureError(models.ErrCodeInvalidInput, "invalid request body", err))
		return nil, false
	}
	pinServerFields(&req, defaults)
	return &req, true
}

// pinServerFields keeps remote callers inside the configured output folder
// and on the configured display mode, then fills the remaining defaults.
func pinServerFields(req *models.CaptureRequest, defaults config.CaptureConfig) {
	req.OutputFolder = ""
	req.Headless = nil
	req.ApplyConfig(defaults)
}

// respondError writes a failed CaptureResult with the status for its code.
func respondError(c *gin.Context, ce *models.CaptureError) {
	detail := ce.ToDetail()
	c.JSON(statusFor(detail), models.CaptureResult{
		Success: false,
		Error:   detail,
	})
}

// statusFor translates error codes to HTTP status codes.
func statusFor(e *models.ErrorDetail) int {
	if e == nil {
		return http.StatusInternalServerError
	}
	switch e.Code {
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	case models.ErrCodeNotFound:
		return http.StatusNotFound // 404
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeNavigation:
		return http.StatusBadGateway // 502
	case models.ErrCodeSessionLaunch:
		return http.StatusServiceUnavailable // 503
	case models.ErrCodeNavigationTimeout:
		return http.StatusGatewayTimeout // 504
	default:
		return http.StatusInternalServerError // 500
	}
}
