package http

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClientErrorTypes(t *testing.T) {
	cause := errors.New("boom")

	tests := []struct {
		name     string
		err      ClientError
		typ      ErrorType
		contains string
	}{
		{name: "network", err: NewNetworkError("dial failed", cause), typ: NetworkError, contains: "network error: dial failed: boom"},
		{name: "network_no_cause", err: NewNetworkError("dial failed", nil), typ: NetworkError, contains: "network error: dial failed"},
		{name: "timeout", err: NewTimeoutError("slow", time.Second, context.DeadlineExceeded), typ: TimeoutError, contains: "timeout: 1s"},
		{name: "validation", err: NewValidationError("URL cannot be empty", "url"), typ: ValidationError, contains: "field: url"},
		{name: "validation_no_field", err: NewValidationError("bad", ""), typ: ValidationError, contains: "validation error: bad"},
		{name: "interceptor", err: NewInterceptorError("failed", "request", cause), typ: InterceptorError, contains: "stage: request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.typ, tt.err.Type())
			assert.Contains(t, tt.err.Error(), tt.contains)
			assert.True(t, IsErrorType(tt.err, tt.typ))
		})
	}
}

func TestClientErrorsUnwrap(t *testing.T) {
	cause := errors.New("boom")

	assert.ErrorIs(t, NewNetworkError("x", cause), cause)
	assert.ErrorIs(t, NewInterceptorError("x", "response", cause), cause)
	assert.ErrorIs(t, NewTimeoutError("x", time.Second, context.DeadlineExceeded), context.DeadlineExceeded)
}

func TestIsErrorType(t *testing.T) {
	assert.False(t, IsErrorType(nil, NetworkError))
	assert.False(t, IsErrorType(errors.New("plain"), NetworkError))
	assert.False(t, IsErrorType(NewValidationError("x", ""), NetworkError))
}

func TestIsSuccessStatus(t *testing.T) {
	assert.True(t, IsSuccessStatus(200))
	assert.True(t, IsSuccessStatus(204))
	assert.False(t, IsSuccessStatus(199))
	assert.False(t, IsSuccessStatus(300))
	assert.False(t, IsSuccessStatus(503))
}
