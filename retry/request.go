package retry

import (
	"context"
	"errors"
	nethttp "net/http"
	"strings"
	"time"
)

// ErrInvalidRequest is returned for requests missing a method or URL.
var ErrInvalidRequest = errors.New("invalid request")

// Request is what the caller submits. It is immutable: accessors return
// copies and the executor never writes back into it.
type Request struct {
	method string
	url    string
	body   []byte
	header nethttp.Header
}

// RequestOption configures a Request at construction time.
type RequestOption func(*Request)

// WithBody sets the request payload. The slice is copied.
func WithBody(body []byte) RequestOption {
	return func(r *Request) {
		if body != nil {
			r.body = append([]byte(nil), body...)
		}
	}
}

// WithHeader adds a header value.
func WithHeader(key, value string) RequestOption {
	return func(r *Request) {
		r.header.Add(key, value)
	}
}

// WithHeaders adds every value of h.
func WithHeaders(h nethttp.Header) RequestOption {
	return func(r *Request) {
		for k, vals := range h {
			for _, v := range vals {
				r.header.Add(k, v)
			}
		}
	}
}

// NewRequest builds an immutable request. The method is upper-cased.
func NewRequest(method, url string, opts ...RequestOption) (*Request, error) {
	method = strings.ToUpper(strings.TrimSpace(method))
	url = strings.TrimSpace(url)
	if method == "" {
		return nil, errors.Join(ErrInvalidRequest, errors.New("method is required"))
	}
	if url == "" {
		return nil, errors.Join(ErrInvalidRequest, errors.New("url is required"))
	}

	r := &Request{method: method, url: url, header: make(nethttp.Header)}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Method returns the HTTP method.
func (r *Request) Method() string { return r.method }

// URL returns the target URL.
func (r *Request) URL() string { return r.url }

// Body returns a copy of the payload.
func (r *Request) Body() []byte {
	if r.body == nil {
		return nil
	}
	return append([]byte(nil), r.body...)
}

// Header returns a copy of the request headers.
func (r *Request) Header() nethttp.Header {
	return r.header.Clone()
}

// Call is one transport invocation derived from a Request.
// Header already carries the credential for this attempt.
type Call struct {
	Method  string
	URL     string
	Header  nethttp.Header
	Body    []byte
	Timeout time.Duration
	Attempt int
}

// Reply is the raw transport response. Classification, not the transport,
// decides whether a status is a failure.
type Reply struct {
	StatusCode int
	Header     nethttp.Header
	Body       []byte
}

// Transport performs exactly one round trip per Do call.
type Transport interface {
	Do(ctx context.Context, call *Call) (*Reply, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, call *Call) (*Reply, error)

// Do calls f(ctx, call).
func (f TransportFunc) Do(ctx context.Context, call *Call) (*Reply, error) {
	return f(ctx, call)
}
