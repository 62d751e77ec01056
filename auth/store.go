package auth

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const refreshKey = "refresh"

// Store caches the current credential and coalesces concurrent refreshes so
// that callers hitting an expired token at the same time trigger one refresh.
type Store struct {
	refresher Refresher
	now       func() time.Time

	mu   sync.RWMutex
	cred Credential
	sf   singleflight.Group
}

var (
	_ Refresher = (*Store)(nil)
	_ Cache     = (*Store)(nil)
)

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithInitial seeds the store with a known credential.
func WithInitial(c Credential) StoreOption {
	return func(s *Store) {
		s.cred = c
	}
}

// NewStore creates a store backed by refresher.
func NewStore(refresher Refresher, opts ...StoreOption) *Store {
	s := &Store{refresher: refresher, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Cached returns the stored credential if it is present and not expired.
func (s *Store) Cached() (Credential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cred.IsZero() || s.cred.Expired(s.now()) {
		return Credential{}, false
	}
	return s.cred, true
}

// Current returns the cached credential, fetching one if none is usable.
func (s *Store) Current(ctx context.Context) (Credential, error) {
	if c, ok := s.Cached(); ok {
		return c, nil
	}
	return s.Refresh(ctx)
}

// Refresh fetches a new credential and stores it. Concurrent calls share a
// single underlying refresh and its result.
func (s *Store) Refresh(ctx context.Context) (Credential, error) {
	result, err, _ := s.sf.Do(refreshKey, func() (any, error) {
		c, err := s.refresher.Refresh(ctx)
		if err != nil {
			return Credential{}, NewRefreshError("", 0, err)
		}
		s.mu.Lock()
		s.cred = c
		s.mu.Unlock()
		return c, nil
	})
	if err != nil {
		return Credential{}, err
	}
	return result.(Credential), nil
}

// Invalidate drops the stored credential.
func (s *Store) Invalidate() {
	s.mu.Lock()
	s.cred = Credential{}
	s.mu.Unlock()
}
