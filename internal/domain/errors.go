package domain

import "errors"

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrJobNotFound = errors.New("job not found")

	// ErrJobAlreadyClaimed is returned when a job is no longer queued or another worker holds it
	ErrJobAlreadyClaimed = errors.New("job already claimed or not in queued status")

	// ErrJobFinished is returned when recording an outcome for a job that already has one
	ErrJobFinished = errors.New("job already finished")

	// ErrInvalidMessage is returned when a queue message cannot be decoded
	ErrInvalidMessage = errors.New("invalid job message")
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
