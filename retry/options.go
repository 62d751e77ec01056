package retry

import (
	"context"
	"time"

	"github.com/gaborage/go-retrier/auth"
	"github.com/gaborage/go-retrier/backoff"
	"github.com/gaborage/go-retrier/classify"
	"github.com/gaborage/go-retrier/logger"
	"github.com/gaborage/go-retrier/observe"
)

// DefaultMaxAttempts bounds retryable attempts when no limit is configured.
const DefaultMaxAttempts = 3

// SleepFunc blocks for d or until ctx ends, returning ctx.Err() in the latter case.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Option configures an Executor.
type Option func(*Executor)

// WithBackoff sets the delay policy between retryable attempts.
func WithBackoff(p backoff.Policy) Option {
	return func(e *Executor) {
		if p != nil {
			e.backoff = p
		}
	}
}

// WithClassifier replaces the default HTTP classifier.
func WithClassifier(c classify.Classifier) Option {
	return func(e *Executor) {
		if c != nil {
			e.classifier = c
		}
	}
}

// WithRefresher enables one credential refresh per execution on AuthExpired.
// When r also implements auth.Cache, its cached credential is attached to
// first attempts.
func WithRefresher(r auth.Refresher) Option {
	return func(e *Executor) {
		e.refresher = r
	}
}

// WithCredential attaches a static credential to attempts until a refresh replaces it.
func WithCredential(c auth.Credential) Option {
	return func(e *Executor) {
		e.credential = c
	}
}

// WithObserver receives attempt, refresh and finish events.
func WithObserver(o observe.Observer) Option {
	return func(e *Executor) {
		if o != nil {
			e.observer = o
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.log = l
		}
	}
}

// WithMaxAttempts sets the default cap on retryable attempts. Values below one are ignored.
func WithMaxAttempts(n int) Option {
	return func(e *Executor) {
		if n >= 1 {
			e.maxAttempts = n
		}
	}
}

// WithAttemptTimeout bounds each transport call. Zero disables the bound.
func WithAttemptTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d >= 0 {
			e.attemptTimeout = d
		}
	}
}

// WithBodyValidator demotes successful replies whose body fails v to Fatal.
func WithBodyValidator(v classify.BodyValidator) Option {
	return func(e *Executor) {
		e.bodyValidator = v
	}
}

// WithSleep replaces the context-aware sleep between attempts.
func WithSleep(fn SleepFunc) Option {
	return func(e *Executor) {
		if fn != nil {
			e.sleep = fn
		}
	}
}

// WithClock replaces the time source used for attempt timestamps and Retry-After dates.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		if now != nil {
			e.now = now
		}
	}
}

// CallOption overrides executor defaults for a single Execute call.
type CallOption func(*callConfig)

type callConfig struct {
	maxAttempts int
}

// MaxAttempts overrides the retryable attempt cap for one call. Values below one are ignored.
func MaxAttempts(n int) CallOption {
	return func(c *callConfig) {
		if n >= 1 {
			c.maxAttempts = n
		}
	}
}

// sleepContext waits for d unless ctx ends first.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
