package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	nethttp "net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultTokenField     = "token"
	defaultExpiresInField = "expires_in"
	defaultLoginTimeout   = 10 * time.Second
	maxLoginBody          = 1 << 20
)

// Doer sends a single HTTP request.
type Doer interface {
	Do(req *nethttp.Request) (*nethttp.Response, error)
}

// LoginRefresher obtains a credential by posting JSON credentials to a login
// endpoint and reading the token from the JSON reply.
type LoginRefresher struct {
	URL      string
	Username string
	Password string
	// TokenField names the reply field holding the token (default "token")
	TokenField string
	// ExpiresInField names the reply field holding the lifetime in seconds (default "expires_in")
	ExpiresInField string
	// Scheme is the Authorization scheme for the credential (default "Bearer")
	Scheme string
	Client Doer
	Now    func() time.Time
}

var _ Refresher = (*LoginRefresher)(nil)

// NewLoginRefresher creates a refresher with an instrumented default client.
func NewLoginRefresher(url, username, password string) *LoginRefresher {
	return &LoginRefresher{
		URL:      url,
		Username: username,
		Password: password,
		Client: &nethttp.Client{
			Timeout:   defaultLoginTimeout,
			Transport: otelhttp.NewTransport(nethttp.DefaultTransport),
		},
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Refresh performs the login round trip.
func (l *LoginRefresher) Refresh(ctx context.Context) (Credential, error) {
	payload, err := json.Marshal(loginRequest{Username: l.Username, Password: l.Password})
	if err != nil {
		return Credential{}, &RefreshError{Endpoint: l.URL, Err: err}
	}

	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodPost, l.URL, bytes.NewReader(payload))
	if err != nil {
		return Credential{}, &RefreshError{Endpoint: l.URL, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := l.client().Do(req)
	if err != nil {
		return Credential{}, &RefreshError{Endpoint: l.URL, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxLoginBody))
	if err != nil {
		return Credential{}, &RefreshError{Endpoint: l.URL, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Credential{}, &RefreshError{
			Endpoint:   l.URL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected login status %d", resp.StatusCode),
		}
	}

	cred, err := l.parse(body)
	if err != nil {
		return Credential{}, &RefreshError{Endpoint: l.URL, StatusCode: resp.StatusCode, Err: err}
	}
	return cred, nil
}

func (l *LoginRefresher) parse(body []byte) (Credential, error) {
	var reply map[string]any
	if err := json.Unmarshal(body, &reply); err != nil {
		return Credential{}, fmt.Errorf("decode login response: %w", err)
	}

	tokenField := l.TokenField
	if tokenField == "" {
		tokenField = defaultTokenField
	}
	token, _ := reply[tokenField].(string)
	if token == "" {
		return Credential{}, ErrNoToken
	}

	cred := Credential{Token: token, Scheme: l.Scheme}
	if cred.Scheme == "" {
		cred.Scheme = DefaultScheme
	}

	expiresField := l.ExpiresInField
	if expiresField == "" {
		expiresField = defaultExpiresInField
	}
	if secs, ok := reply[expiresField].(float64); ok && secs > 0 {
		cred.ExpiresAt = l.now().Add(time.Duration(secs * float64(time.Second)))
	}
	return cred, nil
}

func (l *LoginRefresher) client() Doer {
	if l.Client != nil {
		return l.Client
	}
	return nethttp.DefaultClient
}

func (l *LoginRefresher) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}
