package config

import (
	"time"

	"github.com/knadh/koanf/v2"

	"github.com/gaborage/go-retrier/backoff"
	"github.com/gaborage/go-retrier/observability"
)

// Config is the retrier's full configuration. The koanf instance is kept
// so callers can read keys the struct does not model.
type Config struct {
	App           AppConfig            `koanf:"app" json:"app" yaml:"app" mapstructure:"app"`
	Log           LogConfig            `koanf:"log" json:"log" yaml:"log" mapstructure:"log"`
	Retry         RetryConfig          `koanf:"retry" json:"retry" yaml:"retry" mapstructure:"retry"`
	Transport     TransportConfig      `koanf:"transport" json:"transport" yaml:"transport" mapstructure:"transport"`
	Auth          AuthConfig           `koanf:"auth" json:"auth" yaml:"auth" mapstructure:"auth"`
	Observability observability.Config `koanf:"observability" json:"observability" yaml:"observability" mapstructure:"observability" validate:"-"`

	k *koanf.Koanf `json:"-" yaml:"-" mapstructure:"-"`
}

// AppConfig identifies the running binary.
type AppConfig struct {
	Name    string `koanf:"name" json:"name" yaml:"name" mapstructure:"name" validate:"required"`
	Version string `koanf:"version" json:"version" yaml:"version" mapstructure:"version" validate:"required"`
	Env     string `koanf:"env" json:"env" yaml:"env" mapstructure:"env" validate:"oneof=development staging production"`
}

// LogConfig controls the zerolog output.
type LogConfig struct {
	Level  string `koanf:"level" json:"level" yaml:"level" mapstructure:"level" validate:"oneof=trace debug info warn error fatal"`
	Pretty bool   `koanf:"pretty" json:"pretty" yaml:"pretty" mapstructure:"pretty"`
}

// RetryConfig holds the executor's retry policy.
type RetryConfig struct {
	MaxAttempts int            `koanf:"max_attempts" json:"maxAttempts" yaml:"max_attempts" mapstructure:"max_attempts" validate:"gte=1"`
	Backoff     backoff.Config `koanf:"backoff" json:"backoff" yaml:"backoff" mapstructure:"backoff"`
	// Forbidden decides whether a 403 triggers a refresh or fails at once
	Forbidden      string        `koanf:"forbidden" json:"forbidden" yaml:"forbidden" mapstructure:"forbidden" validate:"oneof=refresh fatal"`
	Retryable4xx   []int         `koanf:"retryable_4xx" json:"retryable4xx" yaml:"retryable_4xx" mapstructure:"retryable_4xx" validate:"dive,gte=400,lt=500"`
	AttemptTimeout time.Duration `koanf:"attempt_timeout" json:"attemptTimeout" yaml:"attempt_timeout" mapstructure:"attempt_timeout" validate:"gte=0"`
}

// TransportConfig configures the HTTP transport.
type TransportConfig struct {
	Timeout        time.Duration     `koanf:"timeout" json:"timeout" yaml:"timeout" mapstructure:"timeout" validate:"gte=0"`
	RateLimit      float64           `koanf:"rate_limit" json:"rateLimit" yaml:"rate_limit" mapstructure:"rate_limit" validate:"gte=0"`
	RateBurst      int               `koanf:"rate_burst" json:"rateBurst" yaml:"rate_burst" mapstructure:"rate_burst" validate:"gte=0"`
	UserAgent      string            `koanf:"user_agent" json:"userAgent" yaml:"user_agent" mapstructure:"user_agent"`
	DefaultHeaders map[string]string `koanf:"default_headers" json:"defaultHeaders" yaml:"default_headers" mapstructure:"default_headers"`
	MaxBodyBytes   int64             `koanf:"max_body_bytes" json:"maxBodyBytes" yaml:"max_body_bytes" mapstructure:"max_body_bytes" validate:"gte=0"`
	LogPayloads    bool              `koanf:"log_payloads" json:"logPayloads" yaml:"log_payloads" mapstructure:"log_payloads"`
}

// AuthConfig configures the login endpoint used to refresh credentials.
// Refresh is disabled when LoginURL is empty.
type AuthConfig struct {
	LoginURL       string `koanf:"login_url" json:"loginUrl" yaml:"login_url" mapstructure:"login_url" validate:"omitempty,url"`
	Username       string `koanf:"username" json:"username" yaml:"username" mapstructure:"username" validate:"required_with=LoginURL"`
	Password       string `koanf:"password" json:"-" yaml:"password" mapstructure:"password"`
	TokenField     string `koanf:"token_field" json:"tokenField" yaml:"token_field" mapstructure:"token_field"`
	ExpiresInField string `koanf:"expires_in_field" json:"expiresInField" yaml:"expires_in_field" mapstructure:"expires_in_field"`
	Scheme         string `koanf:"scheme" json:"scheme" yaml:"scheme" mapstructure:"scheme"`
	// Token seeds the credential sent on the first attempt
	Token string `koanf:"token" json:"-" yaml:"token" mapstructure:"token"`
}

// RefreshEnabled reports whether a login endpoint is configured.
func (a AuthConfig) RefreshEnabled() bool {
	return a.LoginURL != ""
}
