package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/gaborage/go-retrier/logger"
)

func TestNewProviderNilConfig(t *testing.T) {
	p, err := NewProvider(nil, nil)
	assert.ErrorIs(t, err, ErrNilConfig)
	assert.Nil(t, p)
}

func TestNewProviderDisabledIsNoop(t *testing.T) {
	p, err := NewProvider(&Config{}, logger.Nop())
	require.NoError(t, err)

	_, ok := p.(*noopProvider)
	assert.True(t, ok)
	assert.IsType(t, noop.NewTracerProvider(), p.TracerProvider())
	assert.NoError(t, p.ForceFlush(context.Background()))
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNewProviderInvalidConfig(t *testing.T) {
	_, err := NewProvider(&Config{Enabled: true}, nil)
	assert.ErrorIs(t, err, ErrMissingServiceName)
}

func TestNewProviderDoesNotMutateInput(t *testing.T) {
	cfg := &Config{Enabled: true, Service: ServiceConfig{Name: "retrier"}}
	p, err := NewProvider(cfg, nil)
	require.NoError(t, err)
	defer func() { _ = Shutdown(p, time.Second) }()

	assert.Empty(t, cfg.Trace.Endpoint)
	assert.Nil(t, cfg.Trace.SampleRate)
}

func TestNewProviderStdout(t *testing.T) {
	p, err := NewProvider(&Config{
		Enabled: true,
		Service: ServiceConfig{Name: "retrier", Version: "1.0.0"},
	}, logger.Nop())
	require.NoError(t, err)

	impl, ok := p.(*provider)
	require.True(t, ok)
	assert.NotNil(t, impl.tracerProvider)
	assert.NotNil(t, impl.meterProvider)

	_, span := p.TracerProvider().Tracer("test").Start(context.Background(), "op")
	span.End()

	assert.NoError(t, p.ForceFlush(context.Background()))
	assert.NoError(t, Shutdown(p, time.Second))
}

func TestNewProviderTracesOnly(t *testing.T) {
	p, err := NewProvider(&Config{
		Enabled: true,
		Service: ServiceConfig{Name: "retrier"},
		Metrics: MetricsConfig{Enabled: BoolPtr(false)},
	}, nil)
	require.NoError(t, err)
	defer func() { _ = Shutdown(p, time.Second) }()

	impl := p.(*provider)
	assert.NotNil(t, impl.tracerProvider)
	assert.Nil(t, impl.meterProvider)
	assert.NotNil(t, p.MeterProvider())
}

func TestNewProviderOTLPExporters(t *testing.T) {
	// exporters connect lazily so construction succeeds without a collector
	tests := []struct {
		name     string
		endpoint string
		protocol string
	}{
		{name: "http host port", endpoint: "localhost:4318", protocol: ProtocolHTTP},
		{name: "http url", endpoint: "http://localhost:4318", protocol: ProtocolHTTP},
		{name: "grpc", endpoint: "localhost:4317", protocol: ProtocolGRPC},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProvider(&Config{
				Enabled: true,
				Service: ServiceConfig{Name: "retrier"},
				Trace: TraceConfig{
					Endpoint: tt.endpoint,
					Protocol: tt.protocol,
					Insecure: true,
					Headers:  map[string]string{"x-api-key": "k"},
				},
			}, nil)
			require.NoError(t, err)

			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()
			// no collector is listening, only make sure shutdown returns
			_ = p.Shutdown(ctx)
		})
	}
}

func TestShutdownNilProvider(t *testing.T) {
	assert.NoError(t, Shutdown(nil, 0))
	assert.NoError(t, Shutdown(NewNoopProvider(), 0))
}
