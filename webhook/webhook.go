package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// SignatureHeader carries the HMAC-SHA256 of the request body when the
// receiver registered a secret.
const SignatureHeader = "X-Webshot-Signature"

// EventBatchCompleted is sent once every URL of a batch has a result.
const EventBatchCompleted = "batch.completed"

// Event is the payload sent to webhook endpoints.
type Event struct {
	Type      string `json:"type"`
	JobID     string `json:"job_id"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data"`
}

// Retry schedule for DeliverAsync: exponential from 1s, capped at 30s,
// at most three retries.
var (
	retryInitial     = 1 * time.Second
	retryMax         = 30 * time.Second
	retryMaxAttempts = uint64(3)
)

// statusError is a non-2xx answer from the endpoint.
type statusError struct{ code int }

func (e *statusError) Error() string {
	return fmt.Sprintf("webhook: endpoint returned status %d", e.code)
}

// retryable reports whether a failed delivery may succeed later. Client
// errors other than 408 and 429 will not.
func retryable(err error) bool {
	var se *statusError
	if !errors.As(err, &se) {
		return true
	}
	return se.code >= 500 || se.code == http.StatusRequestTimeout || se.code == http.StatusTooManyRequests
}

// Sign returns the signature header value for body: "sha256=<hex>".
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Deliver sends a webhook event synchronously. The body is signed if secret
// is non-empty.
func Deliver(ctx context.Context, url, secret string, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Webshot-Webhook/1.0")
	if secret != "" {
		req.Header.Set(SignatureHeader, Sign(secret, body))
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: deliver: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &statusError{code: resp.StatusCode}
	}
	return nil
}

// DeliverAsync sends a webhook event in the background, retrying transient
// failures with exponential backoff. The returned channel is closed when
// delivery has succeeded or given up.
func DeliverAsync(url, secret string, event *Event) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		b := backoff.NewExponentialBackOff()
		b.InitialInterval = retryInitial
		b.MaxInterval = retryMax
		bo := backoff.WithMaxRetries(b, retryMaxAttempts)

		attempt := 0
		op := func() error {
			attempt++
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			err := Deliver(ctx, url, secret, event)
			if err == nil {
				return nil
			}
			slog.Warn("webhook delivery failed",
				"url", url,
				"event", event.Type,
				"job_id", event.JobID,
				"attempt", attempt,
				"error", err,
			)
			if !retryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}

		if err := backoff.Retry(op, bo); err != nil {
			slog.Error("webhook delivery abandoned",
				"url", url,
				"event", event.Type,
				"job_id", event.JobID,
				"attempts", attempt,
				"error", err,
			)
			return
		}
		slog.Info("webhook delivered",
			"url", url,
			"event", event.Type,
			"job_id", event.JobID,
			"attempt", attempt,
		)
	}()
	return done
}
