package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/webshot/api/handler"
	"github.com/use-agent/webshot/api/middleware"
	"github.com/use-agent/webshot/cache"
	"github.com/use-agent/webshot/config"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health stays outside auth so monitoring probes always work.
func NewRouter(cp handler.Capturer, cfg *config.Config, cc *cache.Cache, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	v1 := r.Group("/api/v1")

	// Health: no auth required.
	v1.GET("/health", handler.Health(cp, cfg.Batch.Concurrency, startTime))

	// Protected group: auth + rate limit.
	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	// Single capture
	protected.POST("/screenshot", handler.Screenshot(cp, cfg.Capture, cc))

	// Batch
	batches := handler.NewBatchStore()
	protected.POST("/batch/screenshot", handler.PostBatch(cp, cfg.Capture, cfg.Batch, batches))
	protected.GET("/batch/:id", handler.GetBatch(batches))

	return r
}
