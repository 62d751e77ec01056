package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/gaborage/go-retrier/observe"
)

const (
	instrumentationName = "github.com/gaborage/go-retrier"

	MetricAttempts        = "retrier.attempts"
	MetricExecutions      = "retrier.executions"
	MetricRefreshes       = "retrier.refreshes"
	MetricAttemptDuration = "retrier.attempt.duration"

	EventAttempt = "retrier.attempt"
	EventRefresh = "retrier.refresh"

	attrOutcome    = "retrier.outcome"
	attrReason     = "retrier.reason"
	attrState      = "retrier.state"
	attrMethod     = "http.request.method"
	attrStatusCode = "http.response.status_code"
	attrOrdinal    = "retrier.attempt.ordinal"
	attrBackoffMs  = "retrier.backoff_ms"
	attrRefreshed  = "retrier.refreshed"
	attrExecution  = "retrier.execution_id"
	attrSuccess    = "retrier.success"
)

// RetryObserver records executor events as OpenTelemetry metrics and as
// events on the span active in the caller's context.
type RetryObserver struct {
	attempts   metric.Int64Counter
	executions metric.Int64Counter
	refreshes  metric.Int64Counter
	duration   metric.Float64Histogram
}

var _ observe.Observer = (*RetryObserver)(nil)

// NewRetryObserver creates the instruments on the provider's meter.
func NewRetryObserver(provider Provider) (*RetryObserver, error) {
	if provider == nil {
		provider = NewNoopProvider()
	}
	return newRetryObserver(provider.MeterProvider().Meter(instrumentationName))
}

func newRetryObserver(meter metric.Meter) (*RetryObserver, error) {
	attempts, err := CreateCounter(meter, MetricAttempts, "Transport calls issued by the executor")
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", MetricAttempts, err)
	}
	executions, err := CreateCounter(meter, MetricExecutions, "Executions by terminal state")
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", MetricExecutions, err)
	}
	refreshes, err := CreateCounter(meter, MetricRefreshes, "Credential refreshes by result")
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", MetricRefreshes, err)
	}
	duration, err := CreateHistogram(meter, MetricAttemptDuration, "Duration of one transport call", metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", MetricAttemptDuration, err)
	}
	return &RetryObserver{
		attempts:   attempts,
		executions: executions,
		refreshes:  refreshes,
		duration:   duration,
	}, nil
}

// OnAttempt counts the attempt and adds an event to the active span.
func (o *RetryObserver) OnAttempt(ctx context.Context, ev observe.AttemptEvent) {
	attrs := metric.WithAttributes(
		attribute.String(attrMethod, ev.Method),
		attribute.String(attrOutcome, ev.Outcome.Kind.String()),
	)
	o.attempts.Add(ctx, 1, attrs)
	o.duration.Record(ctx, ev.Duration.Seconds(), attrs)

	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.AddEvent(EventAttempt, trace.WithAttributes(
		attribute.String(attrExecution, ev.ExecutionID),
		attribute.Int(attrOrdinal, ev.Ordinal),
		attribute.String(attrOutcome, ev.Outcome.Kind.String()),
		attribute.String(attrReason, ev.Outcome.Reason),
		attribute.Int(attrStatusCode, ev.Outcome.StatusCode),
		attribute.Int64(attrBackoffMs, ev.Backoff.Milliseconds()),
		attribute.Bool(attrRefreshed, ev.Refreshed),
	))
}

// OnRefresh counts the refresh and adds an event to the active span.
func (o *RetryObserver) OnRefresh(ctx context.Context, ev observe.RefreshEvent) {
	o.refreshes.Add(ctx, 1, metric.WithAttributes(attribute.Bool(attrSuccess, ev.Err == nil)))

	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.AddEvent(EventRefresh, trace.WithAttributes(
		attribute.String(attrExecution, ev.ExecutionID),
		attribute.Bool(attrSuccess, ev.Err == nil),
	))
	if ev.Err != nil {
		span.RecordError(ev.Err)
	}
}

// OnFinish counts the execution and marks the active span failed when it did not succeed.
func (o *RetryObserver) OnFinish(ctx context.Context, ev observe.FinishEvent) {
	o.executions.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrMethod, ev.Method),
		attribute.String(attrState, ev.State),
		attribute.String(attrOutcome, ev.Outcome.Kind.String()),
	))

	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() || ev.Err == nil {
		return
	}
	span.RecordError(ev.Err)
	span.SetStatus(codes.Error, ev.Err.Error())
}
