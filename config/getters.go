package config

import (
	"fmt"
	"time"
)

// GetString returns the value at key or the provided default.
func (c *Config) GetString(key string, defaultVal ...string) string {
	if c == nil || c.k == nil || !c.k.Exists(key) {
		if len(defaultVal) > 0 {
			return defaultVal[0]
		}
		return ""
	}
	return c.k.String(key)
}

// GetDuration returns the duration at key or the provided default.
// Values are parsed with time.ParseDuration, so "250ms" and "2s" both work.
func (c *Config) GetDuration(key string, defaultVal ...time.Duration) time.Duration {
	if c == nil || c.k == nil || !c.k.Exists(key) {
		if len(defaultVal) > 0 {
			return defaultVal[0]
		}
		return 0
	}
	return c.k.Duration(key)
}

// GetRequiredString returns the value at key or an error when it is missing or empty.
func (c *Config) GetRequiredString(key string) (string, error) {
	v := c.GetString(key)
	if v == "" {
		return "", fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	return v, nil
}

// Exists reports whether key was set by any source.
func (c *Config) Exists(key string) bool {
	if c == nil || c.k == nil {
		return false
	}
	return c.k.Exists(key)
}

// All returns every loaded key, flattened with "." separators.
func (c *Config) All() map[string]any {
	if c == nil || c.k == nil {
		return map[string]any{}
	}
	return c.k.All()
}
