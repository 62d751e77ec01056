package http

import (
	"context"
	nethttp "net/http"
	"time"
)

// RequestInterceptor is called before sending the request
type RequestInterceptor func(ctx context.Context, req *nethttp.Request) error

// ResponseInterceptor is called after receiving the response
type ResponseInterceptor func(ctx context.Context, req *nethttp.Request, resp *nethttp.Response) error

// Config holds the transport configuration
type Config struct {
	Timeout              time.Duration
	RequestInterceptors  []RequestInterceptor
	ResponseInterceptors []ResponseInterceptor
	DefaultHeaders       map[string]string
	UserAgent            string
	// RateLimit is the steady request rate per second; zero disables limiting
	RateLimit float64
	// RateBurst is the bucket size used with RateLimit (default: 1)
	RateBurst int
	// MaxBodyBytes caps how much of a response body is read (default: 10 MiB)
	MaxBodyBytes int64
	// LogPayloads enables debug-level logging of headers
	LogPayloads bool
}
