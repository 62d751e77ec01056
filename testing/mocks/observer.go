package mocks

import (
	"context"
	"sync"

	"github.com/gaborage/go-retrier/observe"
)

// RecordingObserver captures executor events for assertions.
type RecordingObserver struct {
	mu       sync.Mutex
	attempts []observe.AttemptEvent
	refresh  []observe.RefreshEvent
	finish   []observe.FinishEvent
}

var _ observe.Observer = (*RecordingObserver)(nil)

// OnAttempt implements observe.Observer
func (r *RecordingObserver) OnAttempt(_ context.Context, ev observe.AttemptEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, ev)
}

// OnRefresh implements observe.Observer
func (r *RecordingObserver) OnRefresh(_ context.Context, ev observe.RefreshEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refresh = append(r.refresh, ev)
}

// OnFinish implements observe.Observer
func (r *RecordingObserver) OnFinish(_ context.Context, ev observe.FinishEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finish = append(r.finish, ev)
}

// Attempts returns the recorded attempt events.
func (r *RecordingObserver) Attempts() []observe.AttemptEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]observe.AttemptEvent(nil), r.attempts...)
}

// Refreshes returns the recorded refresh events.
func (r *RecordingObserver) Refreshes() []observe.RefreshEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]observe.RefreshEvent(nil), r.refresh...)
}

// Finishes returns the recorded finish events.
func (r *RecordingObserver) Finishes() []observe.FinishEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]observe.FinishEvent(nil), r.finish...)
}
