package mocks

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/gaborage/go-retrier/retry"
)

// MockTransport provides a testify-based mock implementation of retry.Transport.
// Every call is also captured so tests can inspect the headers each attempt carried.
//
// Example usage:
//
//	tr := &mocks.MockTransport{}
//	tr.On("Do", mock.Anything, mock.Anything).Return(&retry.Reply{StatusCode: 503}, nil).Twice()
//	tr.On("Do", mock.Anything, mock.Anything).Return(&retry.Reply{StatusCode: 200}, nil).Once()
type MockTransport struct {
	mock.Mock

	mu    sync.Mutex
	calls []retry.Call
}

var _ retry.Transport = (*MockTransport)(nil)

// Do implements retry.Transport
func (m *MockTransport) Do(ctx context.Context, call *retry.Call) (*retry.Reply, error) {
	m.mu.Lock()
	captured := *call
	captured.Header = call.Header.Clone()
	m.calls = append(m.calls, captured)
	m.mu.Unlock()

	arguments := m.Called(ctx, call)

	var reply *retry.Reply
	if r := arguments.Get(0); r != nil {
		if fn, ok := r.(func(context.Context, *retry.Call) *retry.Reply); ok {
			reply = fn(ctx, call)
		} else {
			reply = r.(*retry.Reply)
		}
	}
	return reply, arguments.Error(1)
}

// Calls returns a copy of every call received, in order.
func (m *MockTransport) Calls() []retry.Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]retry.Call(nil), m.calls...)
}

// ExpectStatus registers a reply with the given status for the next n calls.
func (m *MockTransport) ExpectStatus(status, n int) *mock.Call {
	return m.On("Do", mock.Anything, mock.Anything).Return(&retry.Reply{StatusCode: status}, nil).Times(n)
}

// ExpectError registers a transport error for the next n calls.
func (m *MockTransport) ExpectError(err error, n int) *mock.Call {
	return m.On("Do", mock.Anything, mock.Anything).Return(nil, err).Times(n)
}
