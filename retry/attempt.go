package retry

import (
	nethttp "net/http"
	"time"

	"github.com/gaborage/go-retrier/classify"
)

// State is the executor position within one execution.
type State int

const (
	StateIdle State = iota
	StateAttempting
	StateSucceeded
	StateAuthRefreshing
	StateRetrying
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAttempting:
		return "attempting"
	case StateSucceeded:
		return "succeeded"
	case StateAuthRefreshing:
		return "auth_refreshing"
	case StateRetrying:
		return "retrying"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions follow s.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Attempt records one transport call. It is never modified once appended.
type Attempt struct {
	Ordinal   int
	StartedAt time.Time
	Duration  time.Duration
	Outcome   classify.Outcome
	// Backoff is the delay slept after this attempt, zero when none
	Backoff time.Duration
	// Refreshed marks the attempt issued with a freshly refreshed credential
	Refreshed bool
}

// History is the ordered, append-only list of attempts of one execution.
type History []Attempt

// Len returns the number of attempts.
func (h History) Len() int { return len(h) }

// Last returns the most recent attempt.
func (h History) Last() (Attempt, bool) {
	if len(h) == 0 {
		return Attempt{}, false
	}
	return h[len(h)-1], true
}

// Sleeps returns the backoff delays actually scheduled, in order.
func (h History) Sleeps() []time.Duration {
	var out []time.Duration
	for _, a := range h {
		if a.Backoff > 0 {
			out = append(out, a.Backoff)
		}
	}
	return out
}

func (h History) clone() History {
	return append(History(nil), h...)
}

// Result is the normalized success of one execution.
type Result struct {
	ExecutionID string
	StatusCode  int
	Header      nethttp.Header
	Body        []byte
	Attempts    History
	Refreshed   bool
}
