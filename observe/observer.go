// Package observe defines the callbacks the executor emits while it runs and
// ships log and Prometheus implementations of them.
package observe

import (
	"context"
	"time"

	"github.com/gaborage/go-retrier/classify"
)

// AttemptEvent describes one finished transport call.
type AttemptEvent struct {
	ExecutionID string
	Method      string
	URL         string
	Ordinal     int
	Outcome     classify.Outcome
	Duration    time.Duration
	// Backoff is the delay the executor will sleep before the next attempt
	Backoff time.Duration
	// Refreshed is true for the attempt issued right after a credential refresh
	Refreshed bool
}

// RefreshEvent describes one credential refresh.
type RefreshEvent struct {
	ExecutionID string
	Duration    time.Duration
	Err         error
}

// FinishEvent describes the end of one execution.
type FinishEvent struct {
	ExecutionID string
	Method      string
	URL         string
	Attempts    int
	Outcome     classify.Outcome
	Refreshed   bool
	// State is the terminal executor state, "succeeded" or "failed"
	State    string
	Duration time.Duration
	Err      error
}

// Observer receives executor events. Implementations must be safe for
// concurrent use as one executor serves many goroutines.
type Observer interface {
	OnAttempt(ctx context.Context, ev AttemptEvent)
	OnRefresh(ctx context.Context, ev RefreshEvent)
	OnFinish(ctx context.Context, ev FinishEvent)
}

// Nop ignores all events.
type Nop struct{}

func (Nop) OnAttempt(context.Context, AttemptEvent) {}
func (Nop) OnRefresh(context.Context, RefreshEvent) {}
func (Nop) OnFinish(context.Context, FinishEvent)   {}

// Multi fans events out to every observer in order.
type Multi []Observer

// NewMulti drops nil observers and returns a Multi.
func NewMulti(observers ...Observer) Multi {
	out := make(Multi, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			out = append(out, o)
		}
	}
	return out
}

func (m Multi) OnAttempt(ctx context.Context, ev AttemptEvent) {
	for _, o := range m {
		o.OnAttempt(ctx, ev)
	}
}

func (m Multi) OnRefresh(ctx context.Context, ev RefreshEvent) {
	for _, o := range m {
		o.OnRefresh(ctx, ev)
	}
}

func (m Multi) OnFinish(ctx context.Context, ev FinishEvent) {
	for _, o := range m {
		o.OnFinish(ctx, ev)
	}
}
