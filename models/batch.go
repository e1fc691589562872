package models

// BatchRequest is the payload for POST /api/v1/batch/screenshot.
type BatchRequest struct {
	// URLs is the list of pages to capture. Required.
	URLs []string `json:"urls" binding:"required,min=1"`

	// Options are applied to every URL; its URL field is ignored.
	Options CaptureRequest `json:"options"`

	// WebhookURL receives a "batch.completed" event when the job finishes.
	WebhookURL string `json:"webhook_url,omitempty" binding:"omitempty,url"`

	// WebhookSecret signs the webhook body with HMAC-SHA256.
	WebhookSecret string `json:"webhook_secret,omitempty"`
}

// BatchResponse is the immediate response for POST /api/v1/batch/screenshot.
type BatchResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Total  int    `json:"total"`
}

// BatchStatusResponse is the response for GET /api/v1/batch/:id.
type BatchStatusResponse struct {
	ID        string           `json:"id"`
	Status    string           `json:"status"`
	Completed int              `json:"completed"`
	Total     int              `json:"total"`
	Results   []*CaptureResult `json:"results,omitempty"`
}

// BatchJob tracks an in-progress batch capture.
type BatchJob struct {
	ID        string
	Status    string // "processing", "completed", "failed", "partial"
	Total     int
	Completed int
	Results   []*CaptureResult
	CreatedAt int64 // unix timestamp
}
