package hass

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is returned when the access token is rejected.
	ErrUnauthorized = errors.New("home assistant rejected the access token")
	// ErrRateLimited is returned when an outgoing call would exceed the
	// configured service call rate.
	ErrRateLimited = errors.New("service call rate limit exceeded")
)

// APIError is a non-2xx response from the Home Assistant REST API.
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("home assistant API: %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// IsNotFound reports whether err is a 404 API response.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == 404
}
