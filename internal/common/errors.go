package common

import (
	"errors"
	"fmt"
)

// Reason codes surfaced to callers on terminal job states and HTTP responses.
const (
	ReasonInvalidDocument    = "INVALID_DOCUMENT"
	ReasonServiceUnavailable = "SERVICE_UNAVAILABLE"
	ReasonMalformedResponse  = "MALFORMED_RESPONSE"
	ReasonNormalization      = "NORMALIZATION_ERROR"
	ReasonStorageFault       = "STORAGE_FAULT"
	ReasonNotFound           = "NOT_FOUND"
	ReasonBusy               = "BUSY"
)

// Sentinel errors for the extraction pipeline. Failure handling is driven by
// errors.Is against these, never by string matching.
var (
	// ErrInvalidDocument covers unreadable, encrypted or empty input. Fatal,
	// user-correctable.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrServiceUnavailable is a transient fault at the model endpoint
	// (timeout, quota, 5xx). Retried with backoff before becoming fatal.
	ErrServiceUnavailable = errors.New("model service unavailable")

	// ErrMalformedResponse means the model returned content that is not
	// parseable as structured data. Retried once with a corrective re-prompt.
	ErrMalformedResponse = errors.New("malformed model response")

	// ErrNormalization means the raw result carried no extractable structure
	// at all. Incomplete results are NOT this error.
	ErrNormalization = errors.New("unnormalizable result")

	ErrStorageFault = errors.New("storage fault")
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")

	// ErrBusy signals that an extraction is already in flight for the company.
	ErrBusy = errors.New("extraction already in progress")
)

// ReasonFor maps a pipeline error to its machine-readable reason code.
func ReasonFor(err error) string {
	switch {
	case errors.Is(err, ErrInvalidDocument):
		return ReasonInvalidDocument
	case errors.Is(err, ErrServiceUnavailable):
		return ReasonServiceUnavailable
	case errors.Is(err, ErrMalformedResponse):
		return ReasonMalformedResponse
	case errors.Is(err, ErrNormalization):
		return ReasonNormalization
	case errors.Is(err, ErrNotFound):
		return ReasonNotFound
	case errors.Is(err, ErrBusy):
		return ReasonBusy
	default:
		return ReasonStorageFault
	}
}

// AppError carries a reason code alongside the wrapped cause.
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
