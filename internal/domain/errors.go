package domain

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNoProduct is returned when no product could be detected on a page
	ErrNoProduct = errors.New("no product detected")

	// ErrInvalidRequest is returned when request parameters are invalid
	ErrInvalidRequest = errors.New("invalid request parameters")

	// ErrStorageUnavailable is returned when the storage area cannot be reached
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrBackendFailure is returned when the analysis backend request fails
	ErrBackendFailure = errors.New("analysis backend request failed")

	// ErrQuotaExceeded is returned when the backend answers 402
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrRateLimited is returned when the backend answers 429
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrInvalidResponse is returned when a backend response fails validation
	ErrInvalidResponse = errors.New("invalid response format from server")

	// ErrRegistryClosed is returned when the tab registry is no longer running
	ErrRegistryClosed = errors.New("tab registry closed")
)

// BackendError is a failed analysis call. Message is meant for the end user verbatim.
type BackendError struct {
	Status  int
	Message string
	Err     error
}

func (e *BackendError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("API error: %d", e.Status)
}

func (e *BackendError) Unwrap() error { return e.Err }

// NewBackendError classifies a non-success status. An empty message gets the default wording.
func NewBackendError(status int, message string) *BackendError {
	e := &BackendError{Status: status, Message: message}
	switch status {
	case http.StatusPaymentRequired:
		e.Err = ErrQuotaExceeded
		if e.Message == "" {
			e.Message = "Quota exceeded. Please upgrade to Pro."
		}
	case http.StatusTooManyRequests:
		e.Err = ErrRateLimited
		if e.Message == "" {
			e.Message = "Rate limit exceeded. Please try again later."
		}
	default:
		e.Err = ErrBackendFailure
		if e.Message == "" {
			e.Message = fmt.Sprintf("API error: %d", status)
		}
	}
	return e
}

// UserMessage returns the text to surface for err in the UI.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var be *BackendError
	if errors.As(err, &be) {
		return be.Error()
	}
	if errors.Is(err, ErrInvalidResponse) {
		return "Invalid response format from server"
	}
	return err.Error()
}
