package retry

import (
	"errors"
	"fmt"

	"github.com/gaborage/go-retrier/classify"
)

// Reasons set by the executor on FatalRequestError beyond the classifier's own.
const (
	ReasonAuthExpiredAfterRefresh = "auth_expired_after_refresh"
	ReasonAuthExpiredNoRefresher  = "auth_expired_without_refresher"
)

// ExhaustedRetriesError is returned when every allowed attempt was retryable.
type ExhaustedRetriesError struct {
	MaxAttempts int
	History     History
	Last        classify.Outcome
}

func (e *ExhaustedRetriesError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %s", len(e.History), e.Last)
}

// Unwrap exposes the last transport error, if any.
func (e *ExhaustedRetriesError) Unwrap() error {
	return e.Last.Err
}

// FatalRequestError is returned when an attempt is classified as fatal.
type FatalRequestError struct {
	Reason  string
	History History
	Last    classify.Outcome
}

func (e *FatalRequestError) Error() string {
	return fmt.Sprintf("request failed (%s) after %d attempts: %s", e.Reason, len(e.History), e.Last)
}

// Unwrap exposes the last transport error, if any.
func (e *FatalRequestError) Unwrap() error {
	return e.Last.Err
}

// AuthRefreshError is returned when the credential refresh itself fails.
// Err is the refresher's error unchanged.
type AuthRefreshError struct {
	History History
	Err     error
}

func (e *AuthRefreshError) Error() string {
	return fmt.Sprintf("auth refresh failed after %d attempts: %v", len(e.History), e.Err)
}

func (e *AuthRefreshError) Unwrap() error {
	return e.Err
}

// CancelledError is returned when the caller's context ends mid-execution.
// errors.Is(err, context.Canceled) or context.DeadlineExceeded holds.
type CancelledError struct {
	History History
	Err     error
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("execution cancelled after %d attempts: %v", len(e.History), e.Err)
}

func (e *CancelledError) Unwrap() error {
	return e.Err
}

// HistoryOf extracts the attempt history attached to an executor error.
func HistoryOf(err error) (History, bool) {
	var (
		exhausted *ExhaustedRetriesError
		fatal     *FatalRequestError
		refresh   *AuthRefreshError
		cancelled *CancelledError
	)
	switch {
	case errors.As(err, &exhausted):
		return exhausted.History, true
	case errors.As(err, &fatal):
		return fatal.History, true
	case errors.As(err, &refresh):
		return refresh.History, true
	case errors.As(err, &cancelled):
		return cancelled.History, true
	default:
		return nil, false
	}
}
