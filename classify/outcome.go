// Package classify maps raw transport outcomes (status code and/or error)
// onto the small set of decisions the retry executor acts on.
package classify

import (
	"fmt"
	"time"
)

// Kind is the decision derived from one attempt.
type Kind int

const (
	// Unknown is the zero value and never returned by the built-in classifiers
	Unknown Kind = iota
	// Success means the attempt produced a usable response
	Success
	// Retryable means the failure is transient and the same request may be re-sent
	Retryable
	// AuthExpired means the credential is stale and should be refreshed once
	AuthExpired
	// Fatal means the request will not succeed on retry
	Fatal
)

// String returns the lowercase name used in logs and metric attributes.
func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case Retryable:
		return "retryable"
	case AuthExpired:
		return "auth_expired"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Reason codes attached to outcomes.
const (
	ReasonSuccess          = "success"
	ReasonServerError      = "server_error"
	ReasonRetryableStatus  = "retryable_status"
	ReasonForbidden        = "forbidden"
	ReasonClientError      = "client_error"
	ReasonUnexpectedStatus = "unexpected_status"
	ReasonTimeout          = "timeout"
	ReasonConnection       = "connection_error"
	ReasonCanceled         = "canceled"
	ReasonUnknownError     = "unknown_error"
	ReasonMalformedBody    = "malformed_body"
	ReasonNoOutcome        = "no_outcome"
)

// Outcome is the classified result of one attempt.
type Outcome struct {
	Kind   Kind
	Reason string

	// StatusCode is the transport status, 0 when no response was received
	StatusCode int

	// Err is the raw transport error, if any
	Err error

	// RetryAfter, when positive, replaces the backoff delay before the next attempt
	RetryAfter time.Duration
}

// String renders the outcome for diagnostics.
func (o Outcome) String() string {
	s := fmt.Sprintf("%s(%s", o.Kind, o.Reason)
	if o.StatusCode != 0 {
		s += fmt.Sprintf(", status=%d", o.StatusCode)
	}
	if o.Err != nil {
		s += fmt.Sprintf(", err=%v", o.Err)
	}
	return s + ")"
}

// Classifier maps a transport outcome to a decision.
// statusCode is 0 when no response was received; err is nil when the transport succeeded.
type Classifier interface {
	Classify(statusCode int, err error) Outcome
}

// Func adapts a plain function to the Classifier interface.
type Func func(statusCode int, err error) Outcome

// Classify calls f.
func (f Func) Classify(statusCode int, err error) Outcome {
	return f(statusCode, err)
}
