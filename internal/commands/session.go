package commands

import (
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"go.opentelemetry.io/otel/trace"

	"github.com/gaborage/go-retrier/auth"
	"github.com/gaborage/go-retrier/config"
	rhttp "github.com/gaborage/go-retrier/http"
	"github.com/gaborage/go-retrier/logger"
	"github.com/gaborage/go-retrier/observability"
	"github.com/gaborage/go-retrier/observe"
	"github.com/gaborage/go-retrier/retry"
)

const tracerName = "github.com/gaborage/go-retrier/cmd/retrier"

// session holds everything one CLI invocation wires from configuration.
type session struct {
	log      logger.Logger
	provider observability.Provider
	registry *prometheus.Registry
	tracer   trace.Tracer
	executor *retry.Executor
}

func newSession(cfg *config.Config, logOut io.Writer) (*session, error) {
	log := logger.NewWithWriter(logOut, cfg.Log.Level, cfg.Log.Pretty, nil).
		WithFields(map[string]any{"service": cfg.App.Name, "version": cfg.App.Version})

	provider, err := observability.NewProvider(&cfg.Observability, log)
	if err != nil {
		return nil, err
	}

	rt := &session{
		log:      log,
		provider: provider,
		registry: prometheus.NewRegistry(),
		tracer:   provider.TracerProvider().Tracer(tracerName),
	}

	executor, err := rt.buildExecutor(cfg)
	if err != nil {
		rt.close()
		return nil, err
	}
	rt.executor = executor
	return rt, nil
}

func (rt *session) buildExecutor(cfg *config.Config) (*retry.Executor, error) {
	policy, err := cfg.Retry.BackoffPolicy()
	if err != nil {
		return nil, err
	}

	promObserver, err := observe.NewPrometheusObserver(rt.registry)
	if err != nil {
		return nil, err
	}
	otelObserver, err := observability.NewRetryObserver(rt.provider)
	if err != nil {
		return nil, err
	}

	// attempts are logged by the log observer
	opts := []retry.Option{
		retry.WithBackoff(policy),
		retry.WithClassifier(cfg.Retry.Classifier()),
		retry.WithMaxAttempts(cfg.Retry.MaxAttempts),
		retry.WithAttemptTimeout(cfg.Retry.AttemptTimeout),
		retry.WithObserver(observe.NewMulti(observe.NewLogObserver(rt.log), promObserver, otelObserver)),
	}
	opts = append(opts, credentialOptions(cfg.Auth)...)

	return retry.NewExecutor(buildTransport(cfg.Transport, rt.log), opts...), nil
}

func buildTransport(cfg config.TransportConfig, log logger.Logger) *rhttp.Transport {
	b := rhttp.NewBuilder(log).
		WithTimeout(cfg.Timeout).
		WithMaxBodyBytes(cfg.MaxBodyBytes).
		WithPayloadLogging(cfg.LogPayloads).
		WithTraceHeader()
	if cfg.UserAgent != "" {
		b = b.WithUserAgent(cfg.UserAgent)
	}
	if cfg.RateLimit > 0 {
		b = b.WithRateLimit(cfg.RateLimit, cfg.RateBurst)
	}
	for k, v := range cfg.DefaultHeaders {
		b = b.WithDefaultHeader(k, v)
	}
	return b.Build()
}

// credentialOptions wires a login refresher when one is configured, and a
// static token otherwise.
func credentialOptions(cfg config.AuthConfig) []retry.Option {
	var initial auth.Credential
	if cfg.Token != "" {
		initial = auth.Credential{Token: cfg.Token, Scheme: cfg.Scheme}
	}

	if !cfg.RefreshEnabled() {
		if initial.IsZero() {
			return nil
		}
		return []retry.Option{retry.WithCredential(initial)}
	}

	login := auth.NewLoginRefresher(cfg.LoginURL, cfg.Username, cfg.Password)
	login.TokenField = cfg.TokenField
	login.ExpiresInField = cfg.ExpiresInField
	login.Scheme = cfg.Scheme

	var storeOpts []auth.StoreOption
	if !initial.IsZero() {
		storeOpts = append(storeOpts, auth.WithInitial(initial))
	}
	return []retry.Option{retry.WithRefresher(auth.NewStore(login, storeOpts...))}
}

func (rt *session) writeMetrics(w io.Writer) error {
	families, err := rt.registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	enc := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("encode metrics: %w", err)
		}
	}
	return nil
}

func (rt *session) close() {
	if err := observability.Shutdown(rt.provider, 0); err != nil {
		rt.log.Warn().Err(err).Msg("Observability shutdown failed")
	}
}
