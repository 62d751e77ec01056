package auth

import (
	"errors"
	"fmt"
)

// ErrNoToken is returned when a login reply carries no token.
var ErrNoToken = errors.New("login response has no token")

// RefreshError reports a failed credential refresh.
type RefreshError struct {
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *RefreshError) Error() string {
	msg := "credential refresh failed"
	if e.Endpoint != "" {
		msg += fmt.Sprintf(" for %s", e.Endpoint)
	}
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" with status %d", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RefreshError) Unwrap() error {
	return e.Err
}

// NewRefreshError wraps err unless it already is a *RefreshError.
func NewRefreshError(endpoint string, statusCode int, err error) *RefreshError {
	var re *RefreshError
	if errors.As(err, &re) {
		return re
	}
	return &RefreshError{Endpoint: endpoint, StatusCode: statusCode, Err: err}
}
