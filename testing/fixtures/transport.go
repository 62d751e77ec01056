package fixtures

import (
	"context"
	nethttp "net/http"
	"sync"

	"github.com/gaborage/go-retrier/retry"
)

// Content type constants
const (
	ApplicationJSONContentType = "application/json"
	TextPlainContentType       = "text/plain"
)

// Step is one scripted transport result.
type Step struct {
	Status int
	Header nethttp.Header
	Body   []byte
	Err    error
}

// Status returns a step replying with code and an empty body.
func Status(code int) Step {
	return Step{Status: code}
}

// Fail returns a step whose transport call fails with err.
func Fail(err error) Step {
	return Step{Err: err}
}

// JSON returns a step replying with code and a JSON body.
func JSON(code int, body string) Step {
	h := nethttp.Header{}
	h.Set("Content-Type", ApplicationJSONContentType)
	return Step{Status: code, Header: h, Body: []byte(body)}
}

// ScriptedTransport replays steps in order and repeats the last one once the
// script runs out. It is safe for concurrent use.
type ScriptedTransport struct {
	mu    sync.Mutex
	steps []Step
	calls []retry.Call
}

var _ retry.Transport = (*ScriptedTransport)(nil)

// NewScriptedTransport creates a transport replaying steps.
func NewScriptedTransport(steps ...Step) *ScriptedTransport {
	return &ScriptedTransport{steps: steps}
}

// StatusSequence scripts one status code per call.
func StatusSequence(codes ...int) *ScriptedTransport {
	steps := make([]Step, len(codes))
	for i, c := range codes {
		steps[i] = Status(c)
	}
	return NewScriptedTransport(steps...)
}

// Do implements retry.Transport
func (s *ScriptedTransport) Do(ctx context.Context, call *retry.Call) (*retry.Reply, error) {
	s.mu.Lock()
	captured := *call
	captured.Header = call.Header.Clone()
	s.calls = append(s.calls, captured)
	idx := len(s.calls) - 1
	if idx >= len(s.steps) {
		idx = len(s.steps) - 1
	}
	var step Step
	if idx >= 0 {
		step = s.steps[idx]
	}
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if step.Err != nil {
		return nil, step.Err
	}
	return &retry.Reply{StatusCode: step.Status, Header: step.Header.Clone(), Body: step.Body}, nil
}

// Count returns the number of calls received.
func (s *ScriptedTransport) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// Calls returns a copy of every call received, in order.
func (s *ScriptedTransport) Calls() []retry.Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]retry.Call(nil), s.calls...)
}
