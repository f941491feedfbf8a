package perscom

import (
	"errors"
	"fmt"
)

var (
	ErrNoBaseURL = errors.New("perscom: base URL is required")
	ErrMalformed = errors.New("perscom: malformed response")
)

// APIError is a non-2xx answer from PERSCOM that was not retried away.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("perscom: status %d", e.StatusCode)
	}
	return fmt.Sprintf("perscom: status %d: %s", e.StatusCode, e.Message)
}
