package observe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaborage/go-retrier/classify"
	"github.com/gaborage/go-retrier/logger"
)

type countingObserver struct {
	attempts, refreshes, finishes int
}

func (c *countingObserver) OnAttempt(context.Context, AttemptEvent) { c.attempts++ }
func (c *countingObserver) OnRefresh(context.Context, RefreshEvent) { c.refreshes++ }
func (c *countingObserver) OnFinish(context.Context, FinishEvent)   { c.finishes++ }

func TestMultiFansOut(t *testing.T) {
	a, b := &countingObserver{}, &countingObserver{}
	m := NewMulti(a, nil, b)
	require.Len(t, m, 2)

	ctx := context.Background()
	m.OnAttempt(ctx, AttemptEvent{})
	m.OnAttempt(ctx, AttemptEvent{})
	m.OnRefresh(ctx, RefreshEvent{})
	m.OnFinish(ctx, FinishEvent{})

	for _, o := range []*countingObserver{a, b} {
		assert.Equal(t, 2, o.attempts)
		assert.Equal(t, 1, o.refreshes)
		assert.Equal(t, 1, o.finishes)
	}
}

func TestNopObserver(t *testing.T) {
	var o Observer = Nop{}
	assert.NotPanics(t, func() {
		o.OnAttempt(context.Background(), AttemptEvent{})
		o.OnRefresh(context.Background(), RefreshEvent{})
		o.OnFinish(context.Background(), FinishEvent{})
	})
}

func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		out = append(out, entry)
	}
	return out
}

func TestLogObserverAttemptLevels(t *testing.T) {
	tests := []struct {
		name  string
		kind  classify.Kind
		level string
	}{
		{name: "success", kind: classify.Success, level: "debug"},
		{name: "retryable", kind: classify.Retryable, level: "warn"},
		{name: "auth expired", kind: classify.AuthExpired, level: "warn"},
		{name: "fatal", kind: classify.Fatal, level: "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			o := NewLogObserver(logger.NewWithWriter(&buf, "debug", false, nil))

			o.OnAttempt(context.Background(), AttemptEvent{
				ExecutionID: "exec-1",
				Method:      "POST",
				URL:         "https://api.example.com/v1/items?token=secret",
				Ordinal:     2,
				Outcome:     classify.Outcome{Kind: tt.kind, Reason: "r", StatusCode: 503},
				Backoff:     100 * time.Millisecond,
			})

			lines := logLines(t, &buf)
			require.Len(t, lines, 1)
			assert.Equal(t, tt.level, lines[0]["level"])
			assert.Equal(t, "exec-1", lines[0][logger.FieldExecutionID])
			assert.InDelta(t, 2, lines[0]["attempt"], 0)
			assert.InDelta(t, 503, lines[0]["status"], 0)
			assert.NotContains(t, buf.String(), "secret")
		})
	}
}

func TestLogObserverUsesContextExecutionID(t *testing.T) {
	var buf bytes.Buffer
	o := NewLogObserver(logger.NewWithWriter(&buf, "info", false, nil))

	ctx := logger.WithExecutionID(context.Background(), "from-ctx")
	o.OnRefresh(ctx, RefreshEvent{ExecutionID: "from-ctx"})

	lines := logLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "from-ctx", lines[0][logger.FieldExecutionID])
	assert.Equal(t, "Credential refreshed", lines[0]["message"])
	// the field is attached once
	assert.Equal(t, 1, strings.Count(buf.String(), logger.FieldExecutionID))
}

func TestLogObserverFinish(t *testing.T) {
	var buf bytes.Buffer
	o := NewLogObserver(logger.NewWithWriter(&buf, "info", false, nil))

	o.OnFinish(context.Background(), FinishEvent{ExecutionID: "e", State: "failed", Attempts: 3, Err: errors.New("exhausted")})
	o.OnRefresh(context.Background(), RefreshEvent{ExecutionID: "e", Err: errors.New("login down")})

	lines := logLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "error", lines[0]["level"])
	assert.Equal(t, "failed", lines[0]["state"])
	assert.Equal(t, "exhausted", lines[0]["error"])
	assert.Equal(t, "Credential refresh failed", lines[1]["message"])
}

func TestNewLogObserverNilLogger(t *testing.T) {
	o := NewLogObserver(nil)
	assert.NotPanics(t, func() {
		o.OnFinish(context.Background(), FinishEvent{})
	})
}

func TestPrometheusObserver(t *testing.T) {
	reg := prometheus.NewRegistry()
	o, err := NewPrometheusObserver(reg)
	require.NoError(t, err)

	ctx := context.Background()
	o.OnAttempt(ctx, AttemptEvent{Method: "GET", Outcome: classify.Outcome{Kind: classify.Retryable}, Duration: time.Millisecond})
	o.OnAttempt(ctx, AttemptEvent{Method: "GET", Outcome: classify.Outcome{Kind: classify.Retryable}, Duration: time.Millisecond})
	o.OnAttempt(ctx, AttemptEvent{Method: "GET", Outcome: classify.Outcome{Kind: classify.Success}, Duration: time.Millisecond})
	o.OnRefresh(ctx, RefreshEvent{Err: errors.New("x")})
	o.OnFinish(ctx, FinishEvent{Method: "GET", State: "succeeded"})

	assert.InDelta(t, 2, testutil.ToFloat64(o.attempts.WithLabelValues("GET", "retryable")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(o.attempts.WithLabelValues("GET", "success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(o.refreshes.WithLabelValues("failure")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(o.executions.WithLabelValues("GET", "succeeded")), 0)
	assert.Equal(t, 2, testutil.CollectAndCount(o.duration))
}

func TestPrometheusObserverReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewPrometheusObserver(reg)
	require.NoError(t, err)
	second, err := NewPrometheusObserver(reg)
	require.NoError(t, err)

	first.OnFinish(context.Background(), FinishEvent{Method: "GET", State: "failed"})
	second.OnFinish(context.Background(), FinishEvent{Method: "GET", State: "failed"})

	assert.InDelta(t, 2, testutil.ToFloat64(first.executions.WithLabelValues("GET", "failed")), 0)
}
