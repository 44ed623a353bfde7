package domain

import "errors"

var (
	// ErrJobNotFound is returned when a job cannot be found in the store
	ErrJobNotFound = errors.New("job not found")

	// ErrJobAlreadyClaimed is returned when a job is not claimable (not paid, or taken by another worker)
	ErrJobAlreadyClaimed = errors.New("job already claimed or not ready")

	// ErrInvalidInput is returned when start_job input_data fails validation
	ErrInvalidInput = errors.New("invalid input data")

	// ErrPaymentNotReady is returned when the payment request is not funded yet
	ErrPaymentNotReady = errors.New("payment not locked yet")

	// ErrMaxRetriesExceeded is returned when a job has exceeded its retry limit
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
)

// RetryableError wraps transient errors that should trigger a requeue
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}
