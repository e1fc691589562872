package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/webshot/models"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// Health returns a handler for GET /api/v1/health.
//
// Status is "busy" while more captures are in flight than a batch may run
// concurrently; each one holds its own browser process.
func Health(cp Capturer, busyAt int, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		active := cp.Active()

		status := "healthy"
		if busyAt > 0 && active > busyAt {
			status = "busy"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:         status,
			Uptime:         time.Since(startTime).Round(time.Second).String(),
			ActiveCaptures: active,
			Version:        Version,
		})
	}
}
