// Package auth provides credentials, the refresher contract used by the
// executor after an auth-expired reply, and a store that coalesces
// concurrent refreshes.
package auth

import (
	"context"
	nethttp "net/http"
	"time"
)

const (
	// HeaderAuthorization is the header credentials are written to.
	HeaderAuthorization = "Authorization"
	// DefaultScheme is used when a credential carries no scheme.
	DefaultScheme = "Bearer"
)

// Credential is an opaque token plus how to present it.
type Credential struct {
	Token     string
	Scheme    string
	ExpiresAt time.Time
}

// IsZero reports whether the credential carries no token.
func (c Credential) IsZero() bool {
	return c.Token == ""
}

// Expired reports whether the credential is past its expiry at now.
// A zero ExpiresAt never expires.
func (c Credential) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// HeaderValue renders the Authorization header value.
func (c Credential) HeaderValue() string {
	scheme := c.Scheme
	if scheme == "" {
		scheme = DefaultScheme
	}
	return scheme + " " + c.Token
}

// Apply sets the Authorization header on h. A zero credential leaves h untouched.
func (c Credential) Apply(h nethttp.Header) {
	if h == nil || c.IsZero() {
		return
	}
	h.Set(HeaderAuthorization, c.HeaderValue())
}

// Refresher obtains a fresh credential.
type Refresher interface {
	Refresh(ctx context.Context) (Credential, error)
}

// RefresherFunc adapts a function to the Refresher interface.
type RefresherFunc func(ctx context.Context) (Credential, error)

// Refresh calls f(ctx).
func (f RefresherFunc) Refresh(ctx context.Context) (Credential, error) {
	return f(ctx)
}

// Cache is implemented by refreshers that remember the last credential they
// produced, so callers can attach it to first attempts without a refresh.
type Cache interface {
	Cached() (Credential, bool)
}
