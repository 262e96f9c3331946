package domain

import "errors"

var (
	// ErrNotFound is returned when a dataset, job, or report is absent
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidRequest is returned for validation failures at the API boundary
	ErrInvalidRequest = errors.New("invalid request")

	// ErrUnsupportedContentType is returned for upload content types outside the whitelist
	ErrUnsupportedContentType = errors.New("unsupported content type")

	// ErrInvalidPayload is returned for malformed dataset content; never retried
	ErrInvalidPayload = errors.New("invalid dataset payload")

	// ErrStorageUnavailable wraps metadata store driver failures
	ErrStorageUnavailable = errors.New("database error")

	// ErrObjectStoreUnavailable wraps object store I/O failures
	ErrObjectStoreUnavailable = errors.New("storage service error")

	// ErrQueueUnavailable is returned when publishing a job message fails
	ErrQueueUnavailable = errors.New("failed to enqueue task")

	// ErrConflict is returned when a CAS state transition matches no row
	ErrConflict = errors.New("state transition conflict")

	// ErrJobAlreadyClaimed is returned when the claim CAS loses to another
	// delivery of the same message
	ErrJobAlreadyClaimed = errors.New("job already claimed or terminal")
)

// EnqueueFailureMessage is the error text recorded on a job whose broker
// message could not be published.
const EnqueueFailureMessage = "Failed to enqueue task."

// RetryableError wraps transient infra errors that the worker may retry
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

// IsRetryable reports whether err is transient infra by policy:
// metadata store, object store, or broker trouble, or an explicit
// RetryableError wrapper.
func IsRetryable(err error) bool {
	var retryable *RetryableError
	if errors.As(err, &retryable) {
		return true
	}
	return errors.Is(err, ErrStorageUnavailable) ||
		errors.Is(err, ErrObjectStoreUnavailable) ||
		errors.Is(err, ErrQueueUnavailable)
}
