// Package retry drives a request through bounded attempts: it classifies
// every transport outcome, sleeps between retryable failures, refreshes the
// credential at most once on an auth-expired reply, and returns either a
// normalized result or a typed error carrying the attempt history.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/gaborage/go-retrier/auth"
	"github.com/gaborage/go-retrier/backoff"
	"github.com/gaborage/go-retrier/classify"
	"github.com/gaborage/go-retrier/logger"
	"github.com/gaborage/go-retrier/observe"
	"github.com/gaborage/go-retrier/trace"
)

// Executor runs requests against a Transport. It holds no per-call state
// and is safe for concurrent use.
type Executor struct {
	transport      Transport
	backoff        backoff.Policy
	classifier     classify.Classifier
	refresher      auth.Refresher
	credential     auth.Credential
	bodyValidator  classify.BodyValidator
	observer       observe.Observer
	log            logger.Logger
	maxAttempts    int
	attemptTimeout time.Duration
	sleep          SleepFunc
	now            func() time.Time
}

// NewExecutor creates an executor. Defaults: exponential backoff with jitter,
// the HTTP classifier, three attempts, no refresher and a no-op logger.
func NewExecutor(transport Transport, opts ...Option) *Executor {
	e := &Executor{
		transport:   transport,
		backoff:     backoff.Exponential{Base: backoff.DefaultBase, Jitter: backoff.DefaultBase},
		classifier:  classify.HTTPClassifier{},
		observer:    observe.Nop{},
		log:         logger.Nop(),
		maxAttempts: DefaultMaxAttempts,
		sleep:       sleepContext,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// execution is the state owned by one Execute call.
type execution struct {
	*Executor
	req         *Request
	id          string
	log         logger.Logger
	maxAttempts int
	state       State
	history     History
	credential  auth.Credential
	refreshed   bool
}

// Execute runs req until it succeeds, fails fatally, exhausts its attempts or
// ctx ends. Errors are *ExhaustedRetriesError, *FatalRequestError,
// *AuthRefreshError or *CancelledError.
func (e *Executor) Execute(ctx context.Context, req *Request, opts ...CallOption) (*Result, error) {
	if req == nil {
		return nil, errors.Join(ErrInvalidRequest, errors.New("request is nil"))
	}
	if e.transport == nil {
		return nil, errors.New("executor has no transport")
	}

	cfg := callConfig{maxAttempts: e.maxAttempts}
	for _, opt := range opts {
		opt(&cfg)
	}

	id := trace.EnsureRequestID(ctx)
	ctx = trace.WithRequestID(ctx, id)
	ctx = logger.WithExecutionID(ctx, id)

	run := &execution{
		Executor:    e,
		req:         req,
		id:          id,
		log:         e.log.WithContext(ctx),
		maxAttempts: cfg.maxAttempts,
		state:       StateIdle,
		credential:  e.initialCredential(),
	}

	start := e.now()
	res, err := run.loop(ctx)
	run.finish(ctx, start, err)
	return res, err
}

func (e *Executor) initialCredential() auth.Credential {
	if c, ok := e.refresher.(auth.Cache); ok {
		if cred, ok := c.Cached(); ok {
			return cred
		}
	}
	return e.credential
}

func (x *execution) loop(ctx context.Context) (*Result, error) {
	counted := 0
	refreshRetry := false

	for {
		if err := ctx.Err(); err != nil {
			return nil, x.cancelled(err)
		}

		counted++
		x.state = StateAttempting
		attempt, reply := x.attempt(ctx, refreshRetry)
		refreshRetry = false

		if err := ctx.Err(); err != nil {
			x.record(ctx, attempt)
			return nil, x.cancelled(err)
		}

		switch attempt.Outcome.Kind {
		case classify.Success:
			x.record(ctx, attempt)
			x.state = StateSucceeded
			return x.result(reply), nil

		case classify.AuthExpired:
			x.record(ctx, attempt)
			if x.refresher == nil {
				return nil, x.fatal(ReasonAuthExpiredNoRefresher, attempt.Outcome)
			}
			if x.refreshed {
				return nil, x.fatal(ReasonAuthExpiredAfterRefresh, attempt.Outcome)
			}
			if err := x.refresh(ctx); err != nil {
				return nil, err
			}
			// the rejected attempt does not use up a retry slot
			counted--
			refreshRetry = true

		case classify.Retryable:
			if counted >= x.maxAttempts {
				x.record(ctx, attempt)
				x.state = StateFailed
				x.log.Error().
					Int("attempts", len(x.history)).
					Str("reason", attempt.Outcome.Reason).
					Msg("Retries exhausted")
				return nil, &ExhaustedRetriesError{
					MaxAttempts: x.maxAttempts,
					History:     x.history.clone(),
					Last:        attempt.Outcome,
				}
			}

			delay := attempt.Outcome.RetryAfter
			if delay <= 0 {
				delay = x.backoff.DelayFor(counted)
			}
			attempt.Backoff = delay
			x.record(ctx, attempt)

			x.state = StateRetrying
			x.log.Warn().
				Int("attempt", attempt.Ordinal).
				Str("reason", attempt.Outcome.Reason).
				Int("status", attempt.Outcome.StatusCode).
				Dur("backoff", delay).
				Msg("Retrying request")
			if err := x.sleep(ctx, delay); err != nil {
				return nil, x.cancelled(err)
			}

		default:
			x.record(ctx, attempt)
			reason := attempt.Outcome.Reason
			if reason == "" {
				reason = classify.ReasonUnknownError
			}
			return nil, x.fatal(reason, attempt.Outcome)
		}
	}
}

// attempt performs one transport call and classifies it.
func (x *execution) attempt(ctx context.Context, refreshed bool) (Attempt, *Reply) {
	call := &Call{
		Method:  x.req.Method(),
		URL:     x.req.URL(),
		Header:  x.req.Header(),
		Body:    x.req.Body(),
		Timeout: x.attemptTimeout,
		Attempt: len(x.history) + 1,
	}
	x.credential.Apply(call.Header)

	attemptCtx := ctx
	if x.attemptTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, x.attemptTimeout)
		defer cancel()
	}

	started := x.now()
	reply, err := x.transport.Do(attemptCtx, call)
	elapsed := x.now().Sub(started)

	status := 0
	if reply != nil {
		status = reply.StatusCode
	}
	outcome := x.classifier.Classify(status, err)

	if reply != nil {
		switch outcome.Kind {
		case classify.Success:
			if x.bodyValidator != nil {
				outcome = classify.CheckBody(outcome, x.bodyValidator, reply.Body)
			}
		case classify.Retryable:
			if outcome.RetryAfter <= 0 && reply.Header != nil {
				if d, ok := classify.ParseRetryAfter(reply.Header.Get(classify.HeaderRetryAfter), x.now()); ok {
					outcome.RetryAfter = d
				}
			}
		}
	}

	x.log.Debug().
		Int("attempt", call.Attempt).
		Str("method", call.Method).
		Str("url", call.URL).
		Str("outcome", outcome.Kind.String()).
		Int("status", status).
		Dur("elapsed", elapsed).
		Msg("Attempt finished")

	return Attempt{
		Ordinal:   call.Attempt,
		StartedAt: started,
		Duration:  elapsed,
		Outcome:   outcome,
		Refreshed: refreshed,
	}, reply
}

func (x *execution) refresh(ctx context.Context) error {
	x.state = StateAuthRefreshing
	x.refreshed = true

	started := x.now()
	cred, err := x.refresher.Refresh(ctx)
	x.observer.OnRefresh(ctx, observe.RefreshEvent{
		ExecutionID: x.id,
		Duration:    x.now().Sub(started),
		Err:         err,
	})

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return x.cancelled(ctxErr)
		}
		x.state = StateFailed
		x.log.Error().Err(err).Msg("Credential refresh failed")
		return &AuthRefreshError{History: x.history.clone(), Err: err}
	}

	x.credential = cred
	x.log.Info().Int("attempts", len(x.history)).Msg("Credential refreshed")
	return nil
}

// record appends a finished attempt and notifies the observer.
func (x *execution) record(ctx context.Context, a Attempt) {
	x.history = append(x.history, a)
	x.observer.OnAttempt(ctx, observe.AttemptEvent{
		ExecutionID: x.id,
		Method:      x.req.Method(),
		URL:         x.req.URL(),
		Ordinal:     a.Ordinal,
		Outcome:     a.Outcome,
		Duration:    a.Duration,
		Backoff:     a.Backoff,
		Refreshed:   a.Refreshed,
	})
}

func (x *execution) result(reply *Reply) *Result {
	res := &Result{
		ExecutionID: x.id,
		Attempts:    x.history.clone(),
		Refreshed:   x.refreshed,
	}
	if reply != nil {
		res.StatusCode = reply.StatusCode
		res.Header = reply.Header
		res.Body = reply.Body
	}
	return res
}

func (x *execution) fatal(reason string, last classify.Outcome) error {
	x.state = StateFailed
	x.log.Error().
		Str("reason", reason).
		Int("status", last.StatusCode).
		Int("attempts", len(x.history)).
		Msg("Request failed")
	return &FatalRequestError{Reason: reason, History: x.history.clone(), Last: last}
}

func (x *execution) cancelled(err error) error {
	x.state = StateFailed
	x.log.Warn().Err(err).Int("attempts", len(x.history)).Msg("Execution cancelled")
	return &CancelledError{History: x.history.clone(), Err: err}
}

func (x *execution) finish(ctx context.Context, start time.Time, err error) {
	ev := observe.FinishEvent{
		ExecutionID: x.id,
		Method:      x.req.Method(),
		URL:         x.req.URL(),
		Attempts:    len(x.history),
		Refreshed:   x.refreshed,
		State:       x.state.String(),
		Duration:    x.now().Sub(start),
		Err:         err,
	}
	if last, ok := x.history.Last(); ok {
		ev.Outcome = last.Outcome
	}
	// observers still get the finish event after caller cancellation
	x.observer.OnFinish(context.WithoutCancel(ctx), ev)
}
