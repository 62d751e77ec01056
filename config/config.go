// Package config loads the retrier configuration from defaults, YAML and
// the environment, and validates it before anything is wired.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	envprovider "github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix is stripped from environment variables before they become keys.
	// A double underscore separates levels: RETRIER_RETRY__MAX_ATTEMPTS is retry.max_attempts.
	EnvPrefix = "RETRIER_"

	envLevelSeparator = "__"
)

// listKeys are comma separated when they come from the environment.
var listKeys = map[string]bool{
	"retry.retryable_4xx": true,
}

// Load reads configuration with priority, lowest first:
//  1. defaults
//  2. the YAML file at path, when path is not empty
//  3. environment variables prefixed with RETRIER_
func Load(path string) (*Config, error) {
	return load(func(k *koanf.Koanf) error {
		if path == "" {
			return nil
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
		return nil
	}, os.Environ)
}

// LoadBytes is Load with the YAML document supplied in memory.
func LoadBytes(data []byte) (*Config, error) {
	return load(func(k *koanf.Koanf) error {
		return loadRaw(k, data)
	}, os.Environ)
}

func loadRaw(k *koanf.Koanf, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if err := k.Load(rawbytes.Provider(data), yaml.Parser()); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

func load(source func(*koanf.Koanf) error, environ func() []string) (*Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if err := source(k); err != nil {
		return nil, err
	}

	if err := k.Load(envprovider.Provider(".", envprovider.Opt{
		Prefix:        EnvPrefix,
		TransformFunc: transformEnv,
		EnvironFunc:   environ,
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.k = k

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// transformEnv maps RETRIER_AUTH__LOGIN_URL to auth.login_url.
func transformEnv(key, value string) (string, any) {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	key = strings.ReplaceAll(key, envLevelSeparator, ".")
	if key == "" {
		return "", nil
	}

	if listKeys[key] {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return key, out
	}
	return key, value
}

func loadDefaults(k *koanf.Koanf) error {
	defaults := map[string]any{
		"app.name":    "retrier",
		"app.version": "v1.0.0",
		"app.env":     EnvDevelopment,

		"log.level":  "info",
		"log.pretty": false,

		"retry.max_attempts":     3,
		"retry.backoff.strategy": "exponential",
		"retry.backoff.base":     "100ms",
		"retry.backoff.max":      "30s",
		"retry.backoff.jitter":   "100ms",
		"retry.forbidden":        "refresh",

		"transport.timeout":        "30s",
		"transport.max_body_bytes": 10 << 20,

		"auth.token_field":               "token",
		"auth.expires_in_field":          "expires_in",
		"auth.scheme":                    "Bearer",
		"observability.enabled":          false,
		"observability.trace.samplerate": 1.0,
	}

	return k.Load(confmap.Provider(defaults, "."), nil)
}

// ErrKeyNotFound is returned by the required getters.
var ErrKeyNotFound = errors.New("configuration key not found")
