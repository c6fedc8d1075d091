package domain

import "errors"

var (
	// ErrJobNotFound is returned when a job cannot be found in the database
	ErrJobNotFound = errors.New("job not found")

	// ErrJobAlreadyClaimed is returned when the claim compare-and-set loses
	ErrJobAlreadyClaimed = errors.New("job already claimed or not claimable")

	// ErrInvalidTransition is returned when a status update would break the job state machine
	ErrInvalidTransition = errors.New("invalid job status transition")

	// ErrInvalidSourceKey is returned when a submitted source key is unusable
	ErrInvalidSourceKey = errors.New("invalid source key")

	// ErrInvalidMessage is returned when a queue message cannot be decoded
	ErrInvalidMessage = errors.New("invalid job message")
)

// RetryableError wraps transient errors that should trigger a redelivery
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

// InputError marks a job as unprocessable because of its input.
// Reason is user facing and ends up in the job's error message.
type InputError struct {
	Reason string
	Err    error
}

func (e *InputError) Error() string {
	if e.Err == nil {
		return e.Reason
	}
	return e.Reason + ": " + e.Err.Error()
}

func (e *InputError) Unwrap() error {
	return e.Err
}

// NewInputError creates a new unrecoverable input error
func NewInputError(reason string, err error) error {
	return &InputError{Reason: reason, Err: err}
}

// IsRetryable reports whether err is marked as transient
func IsRetryable(err error) bool {
	var retryable *RetryableError
	return errors.As(err, &retryable)
}
