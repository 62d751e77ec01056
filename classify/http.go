package classify

import (
	"context"
	"errors"
	"io"
	"net"
	"slices"
	"syscall"
)

// ForbiddenPolicy decides what a 403 means.
type ForbiddenPolicy string

const (
	// ForbiddenRefresh treats 403 as a stale credential: refresh once and retry
	ForbiddenRefresh ForbiddenPolicy = "refresh"
	// ForbiddenFatal treats 403 as a permanent denial
	ForbiddenFatal ForbiddenPolicy = "fatal"
)

// HTTPClassifier implements the default HTTP policy:
//   - transport timeouts and connection errors are Retryable
//   - 2xx is Success
//   - 5xx is Retryable
//   - 403 is AuthExpired (or Fatal with ForbiddenFatal)
//   - any other 4xx is Fatal unless listed in Retryable4xx
//   - unrecognised errors are Fatal
type HTTPClassifier struct {
	Forbidden ForbiddenPolicy

	// Retryable4xx lists client error codes that should be retried (e.g. 408, 429).
	Retryable4xx []int
}

// Classify implements Classifier.
func (c HTTPClassifier) Classify(statusCode int, err error) Outcome {
	if err != nil {
		return classifyError(statusCode, err)
	}
	return c.classifyStatus(statusCode)
}

func (c HTTPClassifier) classifyStatus(code int) Outcome {
	out := Outcome{StatusCode: code}

	switch {
	case code == 0:
		out.Kind, out.Reason = Fatal, ReasonNoOutcome
	case code >= 200 && code < 300:
		out.Kind, out.Reason = Success, ReasonSuccess
	case code >= 500 && code < 600:
		out.Kind, out.Reason = Retryable, ReasonServerError
	case code == 403:
		out.Reason = ReasonForbidden
		if c.Forbidden == ForbiddenFatal {
			out.Kind = Fatal
		} else {
			out.Kind = AuthExpired
		}
	case code >= 400 && code < 500:
		if slices.Contains(c.Retryable4xx, code) {
			out.Kind, out.Reason = Retryable, ReasonRetryableStatus
		} else {
			out.Kind, out.Reason = Fatal, ReasonClientError
		}
	default:
		out.Kind, out.Reason = Fatal, ReasonUnexpectedStatus
	}
	return out
}

// classifyError inspects a transport error. Only failures known to be transient are retried.
func classifyError(code int, err error) Outcome {
	out := Outcome{StatusCode: code, Err: err, Kind: Fatal, Reason: ReasonUnknownError}

	if errors.Is(err, context.Canceled) {
		out.Reason = ReasonCanceled
		return out
	}
	if IsTimeout(err) {
		out.Kind, out.Reason = Retryable, ReasonTimeout
		return out
	}
	if IsConnectionError(err) {
		out.Kind, out.Reason = Retryable, ReasonConnection
	}
	return out
}

// IsTimeout reports whether err is a deadline or network timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsConnectionError reports whether err comes from the connection itself
// (refused, reset, dropped mid-response) rather than from the request.
func IsConnectionError(err error) bool {
	switch {
	case errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNABORTED),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.EOF):
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		// unknown host will not resolve on retry
		return dnsErr.IsTimeout || dnsErr.IsTemporary
	}

	var opErr *net.OpError
	return errors.As(err, &opErr)
}
