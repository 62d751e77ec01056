package http

import (
	"bytes"
	"context"
	"errors"
	"io"
	nethttp "net/http"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/gaborage/go-retrier/classify"
	"github.com/gaborage/go-retrier/logger"
	"github.com/gaborage/go-retrier/retry"
)

const (
	// DefaultTimeout is the default request timeout duration
	DefaultTimeout = 30 * time.Second

	// DefaultMaxBodyBytes caps response bodies read into memory
	DefaultMaxBodyBytes int64 = 10 << 20

	// HeaderUserAgent is set from Config.UserAgent when the call carries none
	HeaderUserAgent = "User-Agent"
)

// Transport sends one HTTP round trip per Do call.
type Transport struct {
	httpClient           *nethttp.Client
	logger               logger.Logger
	config               *Config
	limiter              *rate.Limiter
	requestInterceptors  []RequestInterceptor
	responseInterceptors []ResponseInterceptor
	callCount            atomic.Int64
}

var _ retry.Transport = (*Transport)(nil)

// Builder provides a fluent interface for configuring the transport
type Builder struct {
	config     *Config
	logger     logger.Logger
	httpClient *nethttp.Client
}

// NewBuilder creates a new transport builder
func NewBuilder(log logger.Logger) *Builder {
	if log == nil {
		log = logger.Nop()
	}
	return &Builder{
		config: &Config{
			Timeout:              DefaultTimeout,
			RequestInterceptors:  []RequestInterceptor{},
			ResponseInterceptors: []ResponseInterceptor{},
			DefaultHeaders:       make(map[string]string),
			MaxBodyBytes:         DefaultMaxBodyBytes,
		},
		logger: log,
	}
}

// WithTimeout sets the request timeout
func (b *Builder) WithTimeout(timeout time.Duration) *Builder {
	b.config.Timeout = timeout
	return b
}

// WithDefaultHeader adds a default header that will be sent with all requests
func (b *Builder) WithDefaultHeader(key, value string) *Builder {
	b.config.DefaultHeaders[key] = value
	return b
}

// WithUserAgent sets the User-Agent sent when a call does not carry one
func (b *Builder) WithUserAgent(ua string) *Builder {
	b.config.UserAgent = ua
	return b
}

// WithRequestInterceptor adds a request interceptor
func (b *Builder) WithRequestInterceptor(interceptor RequestInterceptor) *Builder {
	b.config.RequestInterceptors = append(b.config.RequestInterceptors, interceptor)
	return b
}

// WithResponseInterceptor adds a response interceptor
func (b *Builder) WithResponseInterceptor(interceptor ResponseInterceptor) *Builder {
	b.config.ResponseInterceptors = append(b.config.ResponseInterceptors, interceptor)
	return b
}

// WithTraceHeader propagates X-Request-ID and traceparent on every request
func (b *Builder) WithTraceHeader() *Builder {
	return b.WithRequestInterceptor(NewTraceInterceptor())
}

// WithRateLimit limits outgoing requests to perSecond with the given burst
func (b *Builder) WithRateLimit(perSecond float64, burst int) *Builder {
	b.config.RateLimit = perSecond
	b.config.RateBurst = burst
	return b
}

// WithMaxBodyBytes caps how much of each response body is read
func (b *Builder) WithMaxBodyBytes(n int64) *Builder {
	if n > 0 {
		b.config.MaxBodyBytes = n
	}
	return b
}

// WithPayloadLogging enables debug-level logging of (masked) headers
func (b *Builder) WithPayloadLogging(enabled bool) *Builder {
	b.config.LogPayloads = enabled
	return b
}

// WithHTTPClient replaces the underlying client. Its Timeout is left untouched.
func (b *Builder) WithHTTPClient(c *nethttp.Client) *Builder {
	b.httpClient = c
	return b
}

// Build creates the transport with the configured options
func (b *Builder) Build() *Transport {
	httpClient := b.httpClient
	if httpClient == nil {
		httpClient = &nethttp.Client{
			Timeout:   b.config.Timeout,
			Transport: otelhttp.NewTransport(nethttp.DefaultTransport),
		}
	}

	var limiter *rate.Limiter
	if b.config.RateLimit > 0 {
		burst := b.config.RateBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(b.config.RateLimit), burst)
	}

	return &Transport{
		httpClient:           httpClient,
		logger:               b.logger,
		config:               b.config,
		limiter:              limiter,
		requestInterceptors:  b.config.RequestInterceptors,
		responseInterceptors: b.config.ResponseInterceptors,
	}
}

// Do performs a single HTTP round trip for call
func (t *Transport) Do(ctx context.Context, call *retry.Call) (*retry.Reply, error) {
	if err := t.validateCall(call); err != nil {
		return nil, err
	}

	if call.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, call.Timeout)
		defer cancel()
	}

	if err := t.wait(ctx); err != nil {
		return nil, err
	}

	httpReq, err := t.buildRequest(ctx, call)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	callCount := t.callCount.Add(1)
	t.logRequest(ctx, call, httpReq)

	httpResp, err := t.httpClient.Do(httpReq)
	if err != nil {
		if classify.IsTimeout(err) {
			return nil, NewTimeoutError("request timeout", t.effectiveTimeout(call), err)
		}
		return nil, NewNetworkError("request execution failed", err)
	}

	reply, err := t.buildReply(ctx, httpReq, httpResp)
	if err != nil {
		return nil, err
	}

	t.logResponse(ctx, reply, time.Since(start), callCount)
	return reply, nil
}

// CallCount returns the number of round trips sent
func (t *Transport) CallCount() int64 {
	return t.callCount.Load()
}

// wait blocks on the rate limiter, if any
func (t *Transport) wait(ctx context.Context) error {
	if t.limiter == nil {
		return nil
	}
	if err := t.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if errors.Is(ctxErr, context.DeadlineExceeded) {
				return NewTimeoutError("rate limiter wait", t.config.Timeout, ctxErr)
			}
			return NewNetworkError("rate limiter wait aborted", ctxErr)
		}
		// the limiter refuses waits that would outlive the deadline
		return NewTimeoutError("rate limiter wait exceeds deadline", t.config.Timeout, errors.Join(context.DeadlineExceeded, err))
	}
	return nil
}

func (t *Transport) effectiveTimeout(call *retry.Call) time.Duration {
	if call.Timeout > 0 {
		return call.Timeout
	}
	return t.config.Timeout
}

// validateCall validates the call before sending
func (t *Transport) validateCall(call *retry.Call) error {
	if call == nil {
		return NewValidationError("call cannot be nil", "call")
	}
	if call.URL == "" {
		return NewValidationError("URL cannot be empty", "url")
	}
	if call.Method == "" {
		return NewValidationError("method cannot be empty", "method")
	}
	return nil
}

// applyHeaders applies headers to the HTTP request
func (t *Transport) applyHeaders(httpReq *nethttp.Request, call *retry.Call) {
	// Apply default headers first
	for key, value := range t.config.DefaultHeaders {
		httpReq.Header.Set(key, value)
	}

	// Apply call headers (these override defaults)
	for key, values := range call.Header {
		httpReq.Header.Del(key)
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}

	if t.config.UserAgent != "" && httpReq.Header.Get(HeaderUserAgent) == "" {
		httpReq.Header.Set(HeaderUserAgent, t.config.UserAgent)
	}

	// Set Content-Type if not already set and body is present
	if httpReq.Header.Get("Content-Type") == "" && call.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
}

// buildRequest constructs an *http.Request, applies headers, and runs request interceptors.
func (t *Transport) buildRequest(ctx context.Context, call *retry.Call) (*nethttp.Request, error) {
	var body io.Reader
	if call.Body != nil {
		body = bytes.NewReader(call.Body)
	}

	httpReq, err := nethttp.NewRequestWithContext(ctx, call.Method, call.URL, body)
	if err != nil {
		return nil, NewValidationError(err.Error(), "url")
	}

	t.applyHeaders(httpReq, call)

	if err := t.runRequestInterceptors(ctx, httpReq); err != nil {
		return nil, NewInterceptorError("request interceptor failed", "request", err)
	}
	return httpReq, nil
}

// buildReply runs response interceptors and reads the body.
func (t *Transport) buildReply(ctx context.Context, httpReq *nethttp.Request, httpResp *nethttp.Response) (*retry.Reply, error) {
	defer httpResp.Body.Close()

	if err := t.runResponseInterceptors(ctx, httpReq, httpResp); err != nil {
		return nil, NewInterceptorError("response interceptor failed", "response", err)
	}

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, t.config.MaxBodyBytes))
	if err != nil {
		if classify.IsTimeout(err) {
			return nil, NewTimeoutError("reading response body", t.config.Timeout, err)
		}
		return nil, NewNetworkError("failed to read response body", err)
	}

	return &retry.Reply{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       respBody,
	}, nil
}

// runRequestInterceptors executes all request interceptors
func (t *Transport) runRequestInterceptors(ctx context.Context, req *nethttp.Request) error {
	for _, interceptor := range t.requestInterceptors {
		if err := interceptor(ctx, req); err != nil {
			return err
		}
	}
	return nil
}

// runResponseInterceptors executes all response interceptors
func (t *Transport) runResponseInterceptors(ctx context.Context, req *nethttp.Request, resp *nethttp.Response) error {
	for _, interceptor := range t.responseInterceptors {
		if err := interceptor(ctx, req, resp); err != nil {
			return err
		}
	}
	return nil
}

// logRequest logs the outgoing request
func (t *Transport) logRequest(ctx context.Context, call *retry.Call, httpReq *nethttp.Request) {
	logEvent := t.logger.WithContext(ctx).Debug().
		Str("direction", "outbound").
		Str("method", call.Method).
		Str("url", call.URL).
		Int("attempt", call.Attempt)

	if t.config.LogPayloads {
		logEvent = logEvent.Interface("headers", httpReq.Header)
	}
	if len(call.Body) > 0 {
		logEvent = logEvent.Int("body_bytes", len(call.Body))
	}

	logEvent.Msg("HTTP transport request")
}

// logResponse logs the incoming response
func (t *Transport) logResponse(ctx context.Context, reply *retry.Reply, elapsed time.Duration, callCount int64) {
	logEvent := t.logger.WithContext(ctx).Debug().
		Str("direction", "inbound").
		Int("status", reply.StatusCode).
		Dur("elapsed", elapsed).
		Int64("call_count", callCount).
		Int("body_bytes", len(reply.Body))

	if t.config.LogPayloads {
		logEvent = logEvent.Interface("headers", reply.Header)
	}

	logEvent.Msg("HTTP transport response")
}
