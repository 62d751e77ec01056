package http

import (
	"context"
	nethttp "net/http"

	"github.com/gaborage/go-retrier/trace"
)

// NewTraceInterceptor creates a request interceptor that adds X-Request-ID and
// traceparent headers. All attempts of one execution share the request ID.
func NewTraceInterceptor() RequestInterceptor {
	return func(ctx context.Context, req *nethttp.Request) error {
		trace.Inject(ctx, req.Header)
		return nil
	}
}

// NewTraceIDInterceptorFor creates an interceptor that writes the request ID
// under a custom header name
func NewTraceIDInterceptorFor(header string) RequestInterceptor {
	if header == "" {
		header = trace.HeaderXRequestID
	}
	return func(ctx context.Context, req *nethttp.Request) error {
		if req.Header.Get(header) == "" {
			req.Header.Set(header, trace.EnsureRequestID(ctx))
		}
		return nil
	}
}
