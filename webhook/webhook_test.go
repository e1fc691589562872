package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeliver_Signed(t *testing.T) {
	var gotSig, gotUA string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(SignatureHeader)
		gotUA = r.Header.Get("User-Agent")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	ev := &Event{Type: EventBatchCompleted, JobID: "batch_1", Timestamp: 1700000000, Data: map[string]int{"total": 2}}
	require.NoError(t, Deliver(context.Background(), srv.URL, "s3cret", ev))

	assert.Equal(t, "Webshot-Webhook/1.0", gotUA)
	assert.Equal(t, Sign("s3cret", gotBody), gotSig)

	var decoded Event
	require.NoError(t, json.Unmarshal(gotBody, &decoded))
	assert.Equal(t, "batch_1", decoded.JobID)
	assert.Equal(t, EventBatchCompleted, decoded.Type)
}

func TestDeliver_Unsigned(t *testing.T) {
	var hasSig atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hasSig.Store(r.Header.Get(SignatureHeader) != "")
	}))
	defer srv.Close()

	require.NoError(t, Deliver(context.Background(), srv.URL, "", &Event{Type: EventBatchCompleted}))
	assert.False(t, hasSig.Load())
}

func TestDeliver_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := Deliver(context.Background(), srv.URL, "", &Event{Type: EventBatchCompleted})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestSign(t *testing.T) {
	// echo -n 'hello' | openssl dgst -sha256 -hmac key
	assert.Equal(t,
		"sha256=9307b3b915efb5171ff14d8cb55fbcc798c6c0ef1456d66ded1a6aa723a58b7b",
		Sign("key", []byte("hello")))
}

func fastRetries(t *testing.T) {
	t.Helper()
	initial, maxInterval := retryInitial, retryMax
	retryInitial, retryMax = time.Millisecond, 2*time.Millisecond
	t.Cleanup(func() { retryInitial, retryMax = initial, maxInterval })
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("delivery did not finish")
	}
}

func TestDeliverAsync_Retries(t *testing.T) {
	fastRetries(t)

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	waitDone(t, DeliverAsync(srv.URL, "", &Event{Type: EventBatchCompleted, JobID: "batch_2"}))
	assert.Equal(t, int32(3), calls.Load())
}

func TestDeliverAsync_GivesUp(t *testing.T) {
	fastRetries(t)

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	waitDone(t, DeliverAsync(srv.URL, "", &Event{Type: EventBatchCompleted}))
	assert.Equal(t, int32(1+retryMaxAttempts), calls.Load())
}

func TestDeliverAsync_ClientErrorIsPermanent(t *testing.T) {
	fastRetries(t)

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusGone)
	}))
	defer srv.Close()

	waitDone(t, DeliverAsync(srv.URL, "", &Event{Type: EventBatchCompleted}))
	assert.Equal(t, int32(1), calls.Load())
}

func TestRetryable(t *testing.T) {
	assert.True(t, retryable(errors.New("connection refused")))
	assert.True(t, retryable(&statusError{code: 500}))
	assert.True(t, retryable(&statusError{code: 429}))
	assert.True(t, retryable(&statusError{code: 408}))
	assert.False(t, retryable(&statusError{code: 404}))
}
