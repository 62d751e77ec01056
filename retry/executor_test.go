package retry_test

import (
	"context"
	"errors"
	"net"
	nethttp "net/http"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/gaborage/go-retrier/auth"
	"github.com/gaborage/go-retrier/backoff"
	"github.com/gaborage/go-retrier/classify"
	"github.com/gaborage/go-retrier/logger"
	"github.com/gaborage/go-retrier/retry"
	tu "github.com/gaborage/go-retrier/testing"
	"github.com/gaborage/go-retrier/testing/fixtures"
	"github.com/gaborage/go-retrier/testing/mocks"
	"github.com/gaborage/go-retrier/trace"
)

const testDelay = 10 * time.Millisecond

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleepRecorder) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

func newTestRequest(t *testing.T) *retry.Request {
	t.Helper()
	req, err := retry.NewRequest(nethttp.MethodGet, tu.TestURL, retry.WithHeader("Accept", "application/json"))
	require.NoError(t, err)
	return req
}

func newTestExecutor(tr retry.Transport, rec *sleepRecorder, opts ...retry.Option) *retry.Executor {
	base := []retry.Option{
		retry.WithBackoff(backoff.Fixed{Delay: testDelay}),
		retry.WithSleep(rec.sleep),
		retry.WithLogger(logger.Nop()),
	}
	return retry.NewExecutor(tr, append(base, opts...)...)
}

func kinds(h retry.History) []classify.Kind {
	out := make([]classify.Kind, len(h))
	for i, a := range h {
		out[i] = a.Outcome.Kind
	}
	return out
}

func TestExecuteSucceedsFirstAttempt(t *testing.T) {
	tr := &mocks.MockTransport{}
	tr.On("Do", mock.Anything, mock.Anything).
		Return(&retry.Reply{StatusCode: nethttp.StatusOK, Body: []byte(`{"ok":true}`)}, nil).Once()
	rec := &sleepRecorder{}

	res, err := newTestExecutor(tr, rec).Execute(context.Background(), newTestRequest(t))
	require.NoError(t, err)

	assert.Equal(t, nethttp.StatusOK, res.StatusCode)
	assert.Equal(t, []byte(`{"ok":true}`), res.Body)
	require.Len(t, res.Attempts, 1)
	assert.Equal(t, 1, res.Attempts[0].Ordinal)
	assert.Equal(t, classify.Success, res.Attempts[0].Outcome.Kind)
	assert.False(t, res.Refreshed)
	assert.Empty(t, rec.Delays())
	tr.AssertExpectations(t)
}

func TestExecuteRetriesTransientThenSucceeds(t *testing.T) {
	tr := &mocks.MockTransport{}
	tr.ExpectStatus(nethttp.StatusServiceUnavailable, 2)
	tr.ExpectStatus(nethttp.StatusOK, 1)
	rec := &sleepRecorder{}

	res, err := newTestExecutor(tr, rec).Execute(context.Background(), newTestRequest(t), retry.MaxAttempts(3))
	require.NoError(t, err)

	require.Len(t, res.Attempts, 3)
	assert.Equal(t, []classify.Kind{classify.Retryable, classify.Retryable, classify.Success}, kinds(res.Attempts))
	assert.Equal(t, []time.Duration{testDelay, testDelay}, rec.Delays())
	assert.Equal(t, rec.Delays(), res.Attempts.Sleeps())
	for i, a := range res.Attempts {
		assert.Equal(t, i+1, a.Ordinal)
	}
	tr.AssertExpectations(t)
}

func TestExecuteExhaustsRetries(t *testing.T) {
	tr := &mocks.MockTransport{}
	tr.ExpectStatus(nethttp.StatusServiceUnavailable, 4)
	rec := &sleepRecorder{}

	res, err := newTestExecutor(tr, rec).Execute(context.Background(), newTestRequest(t), retry.MaxAttempts(3))
	assert.Nil(t, res)

	var exhausted *retry.ExhaustedRetriesError
	require.ErrorAs(t, err, &exhausted)
	assert.Len(t, exhausted.History, 3)
	assert.Equal(t, 3, exhausted.MaxAttempts)
	assert.Equal(t, nethttp.StatusServiceUnavailable, exhausted.Last.StatusCode)
	assert.Equal(t, classify.ReasonServerError, exhausted.Last.Reason)

	// no sleep after the final attempt
	assert.Len(t, rec.Delays(), 2)
	assert.Zero(t, exhausted.History[2].Backoff)
	tr.AssertNumberOfCalls(t, "Do", 3)
}

func TestExecuteRefreshesOnceOnAuthExpired(t *testing.T) {
	tr := &mocks.MockTransport{}
	tr.ExpectStatus(nethttp.StatusForbidden, 1)
	tr.ExpectStatus(nethttp.StatusOK, 1)

	refresher := &mocks.MockRefresher{}
	refresher.On("Refresh", mock.Anything).Return(auth.Credential{Token: tu.TestFreshToken}, nil).Once()
	rec := &sleepRecorder{}

	exec := newTestExecutor(tr, rec,
		retry.WithRefresher(refresher),
		retry.WithCredential(auth.Credential{Token: tu.TestToken}),
	)
	res, err := exec.Execute(context.Background(), newTestRequest(t))
	require.NoError(t, err)

	require.Len(t, res.Attempts, 2)
	assert.Equal(t, []classify.Kind{classify.AuthExpired, classify.Success}, kinds(res.Attempts))
	assert.False(t, res.Attempts[0].Refreshed)
	assert.True(t, res.Attempts[1].Refreshed)
	assert.True(t, res.Refreshed)
	assert.Empty(t, rec.Delays())

	calls := tr.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "Bearer "+tu.TestToken, calls[0].Header.Get(auth.HeaderAuthorization))
	assert.Equal(t, "Bearer "+tu.TestFreshToken, calls[1].Header.Get(auth.HeaderAuthorization))
	assert.Equal(t, "application/json", calls[1].Header.Get("Accept"))

	refresher.AssertNumberOfCalls(t, "Refresh", 1)
}

func TestExecuteFatalStatusFailsImmediately(t *testing.T) {
	tr := &mocks.MockTransport{}
	tr.ExpectStatus(nethttp.StatusNotFound, 1)
	rec := &sleepRecorder{}

	_, err := newTestExecutor(tr, rec).Execute(context.Background(), newTestRequest(t))

	var fatal *retry.FatalRequestError
	require.ErrorAs(t, err, &fatal)
	assert.Len(t, fatal.History, 1)
	assert.Equal(t, classify.ReasonClientError, fatal.Reason)
	assert.Equal(t, nethttp.StatusNotFound, fatal.Last.StatusCode)
	assert.Empty(t, rec.Delays())
	tr.AssertExpectations(t)
}

func TestExecuteAuthExpiredAfterRefreshIsFatal(t *testing.T) {
	tr := fixtures.StatusSequence(nethttp.StatusForbidden, nethttp.StatusForbidden, nethttp.StatusOK)
	refresher := &mocks.MockRefresher{}
	refresher.On("Refresh", mock.Anything).Return(auth.Credential{Token: tu.TestFreshToken}, nil)

	_, err := newTestExecutor(tr, &sleepRecorder{}, retry.WithRefresher(refresher)).
		Execute(context.Background(), newTestRequest(t))

	var fatal *retry.FatalRequestError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, retry.ReasonAuthExpiredAfterRefresh, fatal.Reason)
	assert.Len(t, fatal.History, 2)
	assert.Equal(t, 2, tr.Count())
	refresher.AssertNumberOfCalls(t, "Refresh", 1)
}

func TestExecuteAuthExpiredWithoutRefresher(t *testing.T) {
	tr := fixtures.StatusSequence(nethttp.StatusForbidden)

	_, err := newTestExecutor(tr, &sleepRecorder{}).Execute(context.Background(), newTestRequest(t))

	var fatal *retry.FatalRequestError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, retry.ReasonAuthExpiredNoRefresher, fatal.Reason)
	assert.Equal(t, 1, tr.Count())
}

func TestExecuteRefreshFailurePropagates(t *testing.T) {
	tr := fixtures.StatusSequence(nethttp.StatusForbidden)
	cause := &auth.RefreshError{Endpoint: "https://login.example.com", StatusCode: 401}
	refresher := &mocks.MockRefresher{}
	refresher.On("Refresh", mock.Anything).Return(auth.Credential{}, cause).Once()

	_, err := newTestExecutor(tr, &sleepRecorder{}, retry.WithRefresher(refresher)).
		Execute(context.Background(), newTestRequest(t))

	var refreshErr *retry.AuthRefreshError
	require.ErrorAs(t, err, &refreshErr)
	assert.Len(t, refreshErr.History, 1)

	var underlying *auth.RefreshError
	require.ErrorAs(t, err, &underlying)
	assert.Same(t, cause, underlying)
	assert.Equal(t, 1, tr.Count())
}

func TestExecuteRefreshDoesNotConsumeAttempt(t *testing.T) {
	tr := fixtures.StatusSequence(
		nethttp.StatusForbidden,
		nethttp.StatusServiceUnavailable,
		nethttp.StatusServiceUnavailable,
		nethttp.StatusOK,
	)
	refresher := auth.RefresherFunc(func(context.Context) (auth.Credential, error) {
		return auth.Credential{Token: tu.TestFreshToken}, nil
	})
	rec := &sleepRecorder{}

	res, err := newTestExecutor(tr, rec, retry.WithRefresher(refresher)).
		Execute(context.Background(), newTestRequest(t), retry.MaxAttempts(3))
	require.NoError(t, err)

	assert.Len(t, res.Attempts, 4)
	assert.Len(t, rec.Delays(), 2)
}

func TestExecuteRefreshedRetryCountsTowardsLimit(t *testing.T) {
	tr := fixtures.StatusSequence(nethttp.StatusForbidden, nethttp.StatusServiceUnavailable)
	refresher := auth.RefresherFunc(func(context.Context) (auth.Credential, error) {
		return auth.Credential{Token: tu.TestFreshToken}, nil
	})

	_, err := newTestExecutor(tr, &sleepRecorder{}, retry.WithRefresher(refresher)).
		Execute(context.Background(), newTestRequest(t), retry.MaxAttempts(2))

	var exhausted *retry.ExhaustedRetriesError
	require.ErrorAs(t, err, &exhausted)
	// one auth attempt plus two counted attempts
	assert.Len(t, exhausted.History, 3)
	assert.Equal(t, 3, tr.Count())
}

func TestExecuteHonoursRetryAfter(t *testing.T) {
	h := nethttp.Header{}
	h.Set(classify.HeaderRetryAfter, "2")
	tr := fixtures.NewScriptedTransport(
		fixtures.Step{Status: nethttp.StatusTooManyRequests, Header: h},
		fixtures.Status(nethttp.StatusOK),
	)
	rec := &sleepRecorder{}

	exec := newTestExecutor(tr, rec,
		retry.WithClassifier(classify.HTTPClassifier{Retryable4xx: []int{nethttp.StatusTooManyRequests}}),
	)
	res, err := exec.Execute(context.Background(), newTestRequest(t))
	require.NoError(t, err)

	assert.Equal(t, []time.Duration{2 * time.Second}, rec.Delays())
	assert.Equal(t, 2*time.Second, res.Attempts[0].Outcome.RetryAfter)
}

func TestExecuteTransportErrors(t *testing.T) {
	refused := &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}

	t.Run("connection_errors_exhaust", func(t *testing.T) {
		tr := fixtures.NewScriptedTransport(fixtures.Fail(refused))

		_, err := newTestExecutor(tr, &sleepRecorder{}).Execute(context.Background(), newTestRequest(t))

		var exhausted *retry.ExhaustedRetriesError
		require.ErrorAs(t, err, &exhausted)
		assert.Equal(t, classify.ReasonConnection, exhausted.Last.Reason)
		assert.ErrorIs(t, err, syscall.ECONNREFUSED)
		assert.Equal(t, retry.DefaultMaxAttempts, tr.Count())
	})

	t.Run("timeout_then_success", func(t *testing.T) {
		tr := fixtures.NewScriptedTransport(fixtures.Fail(context.DeadlineExceeded), fixtures.Status(nethttp.StatusOK))

		res, err := newTestExecutor(tr, &sleepRecorder{}).Execute(context.Background(), newTestRequest(t))
		require.NoError(t, err)
		assert.Equal(t, classify.ReasonTimeout, res.Attempts[0].Outcome.Reason)
	})

	t.Run("unknown_error_is_fatal", func(t *testing.T) {
		tr := fixtures.NewScriptedTransport(fixtures.Fail(errors.New("tls: bad certificate")))

		_, err := newTestExecutor(tr, &sleepRecorder{}).Execute(context.Background(), newTestRequest(t))

		var fatal *retry.FatalRequestError
		require.ErrorAs(t, err, &fatal)
		assert.Equal(t, classify.ReasonUnknownError, fatal.Reason)
		assert.Equal(t, 1, tr.Count())
	})
}

func TestExecuteAttemptTimeout(t *testing.T) {
	var calls atomic.Int32
	tr := retry.TransportFunc(func(ctx context.Context, _ *retry.Call) (*retry.Reply, error) {
		if calls.Add(1) == 1 {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return &retry.Reply{StatusCode: nethttp.StatusOK}, nil
	})

	res, err := newTestExecutor(tr, &sleepRecorder{}, retry.WithAttemptTimeout(20*time.Millisecond)).
		Execute(context.Background(), newTestRequest(t))
	require.NoError(t, err)

	require.Len(t, res.Attempts, 2)
	assert.Equal(t, classify.Retryable, res.Attempts[0].Outcome.Kind)
	assert.Equal(t, classify.ReasonTimeout, res.Attempts[0].Outcome.Reason)
}

func TestExecuteCancelledDuringBackoff(t *testing.T) {
	tr := fixtures.StatusSequence(nethttp.StatusServiceUnavailable)
	exec := retry.NewExecutor(tr, retry.WithBackoff(backoff.Fixed{Delay: time.Hour}))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := exec.Execute(ctx, newTestRequest(t))
	assert.Less(t, time.Since(start), 5*time.Second)

	var cancelled *retry.CancelledError
	require.ErrorAs(t, err, &cancelled)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	require.Len(t, cancelled.History, 1)
	assert.Equal(t, time.Hour, cancelled.History[0].Backoff)
	assert.Equal(t, 1, tr.Count())
}

func TestExecuteCancelledDuringTransport(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tr := retry.TransportFunc(func(context.Context, *retry.Call) (*retry.Reply, error) {
		cancel()
		return nil, context.Canceled
	})

	_, err := newTestExecutor(tr, &sleepRecorder{}).Execute(ctx, newTestRequest(t))

	var cancelled *retry.CancelledError
	require.ErrorAs(t, err, &cancelled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, cancelled.History, 1)
}

func TestExecuteAlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tr := &mocks.MockTransport{}
	_, err := newTestExecutor(tr, &sleepRecorder{}).Execute(ctx, newTestRequest(t))

	var cancelled *retry.CancelledError
	require.ErrorAs(t, err, &cancelled)
	assert.Empty(t, cancelled.History)
	tr.AssertNotCalled(t, "Do", mock.Anything, mock.Anything)
}

func TestExecuteIndependentHistories(t *testing.T) {
	tr := fixtures.StatusSequence(nethttp.StatusServiceUnavailable, nethttp.StatusOK, nethttp.StatusOK)
	exec := newTestExecutor(tr, &sleepRecorder{}, retry.WithCredential(auth.Credential{Token: tu.TestToken}))
	req := newTestRequest(t)

	first, err := exec.Execute(context.Background(), req)
	require.NoError(t, err)
	second, err := exec.Execute(context.Background(), req)
	require.NoError(t, err)

	assert.Len(t, first.Attempts, 2)
	assert.Len(t, second.Attempts, 1)
	assert.Equal(t, 1, second.Attempts[0].Ordinal)
	assert.NotEqual(t, first.ExecutionID, second.ExecutionID)

	first.Attempts[0].Ordinal = 99
	assert.Equal(t, 1, second.Attempts[0].Ordinal)

	// the credential never leaks into the caller's request
	assert.Empty(t, req.Header().Get(auth.HeaderAuthorization))
}

func TestExecuteConcurrentCalls(t *testing.T) {
	tr := fixtures.StatusSequence(nethttp.StatusOK)
	exec := newTestExecutor(tr, &sleepRecorder{})
	req := newTestRequest(t)

	const callers = 16
	ids := make([]string, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := exec.Execute(context.Background(), req)
			if assert.NoError(t, err) {
				assert.Len(t, res.Attempts, 1)
				ids[i] = res.ExecutionID
			}
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool, callers)
	for _, id := range ids {
		assert.False(t, seen[id], "duplicate execution id %s", id)
		seen[id] = true
	}
	assert.Equal(t, callers, tr.Count())
}

func TestExecuteSharesRequestIDAcrossAttempts(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	var calls atomic.Int32

	tr := retry.TransportFunc(func(ctx context.Context, _ *retry.Call) (*retry.Reply, error) {
		id, _ := trace.RequestIDFromContext(ctx)
		mu.Lock()
		seen = append(seen, id)
		mu.Unlock()
		if calls.Add(1) < 3 {
			return &retry.Reply{StatusCode: nethttp.StatusBadGateway}, nil
		}
		return &retry.Reply{StatusCode: nethttp.StatusOK}, nil
	})

	ctx := trace.WithRequestID(context.Background(), "caller-id")
	res, err := newTestExecutor(tr, &sleepRecorder{}).Execute(ctx, newTestRequest(t))
	require.NoError(t, err)

	assert.Equal(t, "caller-id", res.ExecutionID)
	assert.Equal(t, []string{"caller-id", "caller-id", "caller-id"}, seen)
}

func TestExecuteBodyValidator(t *testing.T) {
	tr := fixtures.NewScriptedTransport(fixtures.Step{Status: nethttp.StatusOK, Body: []byte("<html>")})

	_, err := newTestExecutor(tr, &sleepRecorder{}, retry.WithBodyValidator(classify.JSONBody{})).
		Execute(context.Background(), newTestRequest(t))

	var fatal *retry.FatalRequestError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, classify.ReasonMalformedBody, fatal.Reason)
	assert.Equal(t, 1, tr.Count())
}

func TestExecuteUsesCachedCredential(t *testing.T) {
	store := auth.NewStore(
		auth.RefresherFunc(func(context.Context) (auth.Credential, error) {
			return auth.Credential{Token: tu.TestFreshToken}, nil
		}),
		auth.WithInitial(auth.Credential{Token: tu.TestToken}),
	)
	tr := fixtures.StatusSequence(nethttp.StatusForbidden, nethttp.StatusOK, nethttp.StatusOK)
	exec := newTestExecutor(tr, &sleepRecorder{}, retry.WithRefresher(store))

	_, err := exec.Execute(context.Background(), newTestRequest(t))
	require.NoError(t, err)
	_, err = exec.Execute(context.Background(), newTestRequest(t))
	require.NoError(t, err)

	calls := tr.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, "Bearer "+tu.TestToken, calls[0].Header.Get(auth.HeaderAuthorization))
	assert.Equal(t, "Bearer "+tu.TestFreshToken, calls[1].Header.Get(auth.HeaderAuthorization))
	// the next execution starts with the refreshed credential
	assert.Equal(t, "Bearer "+tu.TestFreshToken, calls[2].Header.Get(auth.HeaderAuthorization))
}

func TestExecuteObserverEvents(t *testing.T) {
	tr := fixtures.StatusSequence(nethttp.StatusForbidden, nethttp.StatusServiceUnavailable, nethttp.StatusOK)
	obs := &mocks.RecordingObserver{}
	refresher := auth.RefresherFunc(func(context.Context) (auth.Credential, error) {
		return auth.Credential{Token: tu.TestFreshToken}, nil
	})

	res, err := newTestExecutor(tr, &sleepRecorder{}, retry.WithRefresher(refresher), retry.WithObserver(obs)).
		Execute(context.Background(), newTestRequest(t))
	require.NoError(t, err)

	attempts := obs.Attempts()
	require.Len(t, attempts, 3)
	assert.Equal(t, classify.AuthExpired, attempts[0].Outcome.Kind)
	assert.True(t, attempts[1].Refreshed)
	assert.Equal(t, testDelay, attempts[1].Backoff)
	assert.Equal(t, res.ExecutionID, attempts[2].ExecutionID)

	require.Len(t, obs.Refreshes(), 1)
	assert.NoError(t, obs.Refreshes()[0].Err)

	finishes := obs.Finishes()
	require.Len(t, finishes, 1)
	assert.Equal(t, 3, finishes[0].Attempts)
	assert.Equal(t, "succeeded", finishes[0].State)
	assert.True(t, finishes[0].Refreshed)
	assert.NoError(t, finishes[0].Err)
}

func TestExecuteRejectsNilRequest(t *testing.T) {
	_, err := retry.NewExecutor(&mocks.MockTransport{}).Execute(context.Background(), nil)
	assert.ErrorIs(t, err, retry.ErrInvalidRequest)
}

func TestHistoryOf(t *testing.T) {
	h := retry.History{{Ordinal: 1}}

	for _, err := range []error{
		&retry.ExhaustedRetriesError{History: h},
		&retry.FatalRequestError{History: h},
		&retry.AuthRefreshError{History: h, Err: errors.New("x")},
		&retry.CancelledError{History: h, Err: context.Canceled},
	} {
		got, ok := retry.HistoryOf(err)
		assert.True(t, ok)
		assert.Equal(t, h, got)
	}

	_, ok := retry.HistoryOf(errors.New("plain"))
	assert.False(t, ok)
}

func TestErrorMessages(t *testing.T) {
	last := classify.Outcome{Kind: classify.Retryable, Reason: classify.ReasonServerError, StatusCode: 503}
	h := retry.History{{Ordinal: 1}, {Ordinal: 2}}

	assert.Equal(t, "retries exhausted after 2 attempts: retryable(server_error, status=503)",
		(&retry.ExhaustedRetriesError{History: h, Last: last}).Error())
	assert.Contains(t, (&retry.FatalRequestError{Reason: "client_error", History: h}).Error(), "request failed (client_error)")
	assert.Contains(t, (&retry.CancelledError{Err: context.Canceled}).Error(), "context canceled")
	assert.Contains(t, (&retry.AuthRefreshError{Err: errors.New("down")}).Error(), "down")
}
