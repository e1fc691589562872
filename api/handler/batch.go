package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/use-agent/webshot/config"
	"github.com/use-agent/webshot/models"
	"github.com/use-agent/webshot/webhook"
)

// batchTTL is how long a finished or running job stays queryable.
const batchTTL = time.Hour

// trackedJob guards a BatchJob; workers write results while GET reads them.
type trackedJob struct {
	mu  sync.Mutex
	job models.BatchJob
}

func (t *trackedJob) snapshot() models.BatchStatusResponse {
	t.mu.Lock()
	defer t.mu.Unlock()
	results := make([]*models.CaptureResult, len(t.job.Results))
	copy(results, t.job.Results)
	return models.BatchStatusResponse{
		ID:        t.job.ID,
		Status:    t.job.Status,
		Completed: t.job.Completed,
		Total:     t.job.Total,
		Results:   results,
	}
}

// BatchStore holds all in-flight and completed batch jobs. Jobs older than
// one hour are expired by a background goroutine.
type BatchStore struct {
	jobs sync.Map
}

// NewBatchStore creates a store and starts its expiry loop.
func NewBatchStore() *BatchStore {
	s := &BatchStore{}
	go s.expireLoop()
	return s
}

func (s *BatchStore) get(id string) (*trackedJob, bool) {
	v, ok := s.jobs.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*trackedJob), true
}

func (s *BatchStore) expireLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-batchTTL).Unix()
		s.jobs.Range(func(key, value any) bool {
			if value.(*trackedJob).job.CreatedAt < cutoff {
				s.jobs.Delete(key)
			}
			return true
		})
	}
}

// PostBatch returns a handler for POST /api/v1/batch/screenshot.
// It validates the request, registers a job and captures the URLs in the
// background with at most cfg.Concurrency browsers at a time.
func PostBatch(cp Capturer, defaults config.CaptureConfig, cfg config.BatchConfig, store *BatchStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.BatchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, models.NewCaptureError(models.ErrCodeInvalidInput, "invalid request body", err))
			return
		}

		if cfg.MaxURLs > 0 && len(req.URLs) > cfg.MaxURLs {
			respondError(c, models.NewCaptureError(models.ErrCodeInvalidInput,
				fmt.Sprintf("maximum %d URLs per batch", cfg.MaxURLs), nil))
			return
		}

		pinServerFields(&req.Options, defaults)

		jobID := "batch-" + uuid.NewString()
		tj := &trackedJob{job: models.BatchJob{
			ID:        jobID,
			Status:    "processing",
			Total:     len(req.URLs),
			Results:   make([]*models.CaptureResult, len(req.URLs)),
			CreatedAt: time.Now().Unix(),
		}}
		store.jobs.Store(jobID, tj)

		go runBatch(cp, tj, req, cfg.Concurrency)

		c.JSON(http.StatusAccepted, models.BatchResponse{
			ID:     jobID,
			Status: "processing",
			Total:  len(req.URLs),
		})
	}
}

// GetBatch returns a handler for GET /api/v1/batch/:id.
func GetBatch(store *BatchStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		tj, ok := store.get(c.Param("id"))
		if !ok {
			respondError(c, models.NewCaptureError(models.ErrCodeNotFound, "batch job not found", nil))
			return
		}
		c.JSON(http.StatusOK, tj.snapshot())
	}
}

// runBatch captures every URL of the job with concurrency limited by a
// semaphore, then settles the job status and fires the webhook.
func runBatch(cp Capturer, tj *trackedJob, req models.BatchRequest, concurrency int) {
	if concurrency <= 0 {
		concurrency = 1
	}
	sem := make(chan struct{}, concurrency)

	var wg sync.WaitGroup
	var failed int

	for i, rawURL := range req.URLs {
		wg.Add(1)
		go func(idx int, targetURL string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			one := req.Options
			one.URL = targetURL
			res := cp.Capture(context.Background(), &one)

			tj.mu.Lock()
			tj.job.Results[idx] = res
			tj.job.Completed++
			if !res.Success {
				failed++
			}
			tj.mu.Unlock()
		}(i, rawURL)
	}

	wg.Wait()

	tj.mu.Lock()
	switch {
	case failed == tj.job.Total:
		tj.job.Status = "failed"
	case failed > 0:
		tj.job.Status = "partial"
	default:
		tj.job.Status = "completed"
	}
	tj.mu.Unlock()

	final := tj.snapshot()
	slog.Info("batch job finished",
		"id", final.ID,
		"status", final.Status,
		"failed", failed,
		"total", final.Total,
	)

	if req.WebhookURL != "" {
		webhook.DeliverAsync(req.WebhookURL, req.WebhookSecret, &webhook.Event{
			Type:      webhook.EventBatchCompleted,
			JobID:     final.ID,
			Timestamp: time.Now().Unix(),
			Data:      final,
		})
	}
}
