package models

import "fmt"

// Error codes used in capture results and API responses.
const (
	ErrCodeInvalidInput      = "INVALID_INPUT"
	ErrCodeSessionLaunch     = "SESSION_ACQUISITION_FAILED"
	ErrCodeNavigationTimeout = "NAVIGATION_TIMEOUT"
	ErrCodeNavigation        = "NAVIGATION_FAILED"
	ErrCodeCapture           = "CAPTURE_FAILED"
	ErrCodePersistence       = "PERSISTENCE_FAILED"
	ErrCodeInternal          = "INTERNAL_ERROR"

	// API-only codes.
	ErrCodeRateLimited  = "RATE_LIMITED"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeNotFound     = "NOT_FOUND"
)

// ErrorDetail is the structured error in capture results.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CaptureError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type CaptureError struct {
	Code    string
	Message string
	Err     error // wrapped cause
}

func (e *CaptureError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *CaptureError) Unwrap() error {
	return e.Err
}

// NewCaptureError creates a new CaptureError.
func NewCaptureError(code, message string, err error) *CaptureError {
	return &CaptureError{Code: code, Message: message, Err: err}
}

// ToDetail converts an internal error to a result-facing ErrorDetail.
// The wrapped cause is folded into the message so callers see why.
func (e *CaptureError) ToDetail() *ErrorDetail {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return &ErrorDetail{Code: e.Code, Message: msg}
}
