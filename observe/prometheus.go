package observe

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const metricNamespace = "retrier"

// PrometheusObserver exports executor events as Prometheus collectors.
type PrometheusObserver struct {
	attempts   *prometheus.CounterVec
	executions *prometheus.CounterVec
	refreshes  *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewPrometheusObserver creates the collectors and registers them with reg.
// Collectors already registered by an earlier observer are reused.
func NewPrometheusObserver(reg prometheus.Registerer) (*PrometheusObserver, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	o := &PrometheusObserver{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      "attempts_total",
			Help:      "Transport calls issued by the executor.",
		}, []string{"method", "outcome"}),
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      "executions_total",
			Help:      "Executions by terminal state.",
		}, []string{"method", "state"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      "refreshes_total",
			Help:      "Credential refreshes by result.",
		}, []string{"result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricNamespace,
			Name:      "attempt_duration_seconds",
			Help:      "Duration of one transport call.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "outcome"}),
	}

	var err error
	if o.attempts, err = register(reg, o.attempts); err != nil {
		return nil, err
	}
	if o.executions, err = register(reg, o.executions); err != nil {
		return nil, err
	}
	if o.refreshes, err = register(reg, o.refreshes); err != nil {
		return nil, err
	}
	if o.duration, err = register(reg, o.duration); err != nil {
		return nil, err
	}
	return o, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("register collector: %w", err)
	}
	return c, nil
}

func (o *PrometheusObserver) OnAttempt(_ context.Context, ev AttemptEvent) {
	outcome := ev.Outcome.Kind.String()
	o.attempts.WithLabelValues(ev.Method, outcome).Inc()
	o.duration.WithLabelValues(ev.Method, outcome).Observe(ev.Duration.Seconds())
}

func (o *PrometheusObserver) OnRefresh(_ context.Context, ev RefreshEvent) {
	result := "success"
	if ev.Err != nil {
		result = "failure"
	}
	o.refreshes.WithLabelValues(result).Inc()
}

func (o *PrometheusObserver) OnFinish(_ context.Context, ev FinishEvent) {
	o.executions.WithLabelValues(ev.Method, ev.State).Inc()
}
