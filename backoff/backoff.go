// Package backoff computes the wait between retry attempts.
//
// Two strategies are supported:
//   - Fixed: the same delay before every retry.
//   - Exponential: base * 2^(attempt-1), capped at Max, plus a random jitter in [0, Jitter).
//
// Policies are pure and safe for concurrent use.
package backoff

import (
	crand "crypto/rand"
	"fmt"
	"math/big"
	"time"
)

const (
	// StrategyFixed selects a constant delay between attempts
	StrategyFixed = "fixed"

	// StrategyExponential selects exponential growth with jitter
	StrategyExponential = "exponential"

	// DefaultBase is the base delay used when none is configured
	DefaultBase = 100 * time.Millisecond

	// DefaultMax caps exponential growth when no cap is configured
	DefaultMax = 30 * time.Second

	// maxExponent keeps the shift below the int64 overflow boundary
	maxExponent = 30
)

// Policy returns how long to wait after the given attempt (1-based) failed.
type Policy interface {
	DelayFor(attempt int) time.Duration
}

// Fixed waits the same duration before every retry.
type Fixed struct {
	Delay time.Duration
}

// DelayFor returns the configured delay, never negative.
func (f Fixed) DelayFor(_ int) time.Duration {
	if f.Delay < 0 {
		return 0
	}
	return f.Delay
}

// Exponential doubles the delay with each attempt and adds random jitter.
type Exponential struct {
	// Base is the delay after the first attempt
	Base time.Duration
	// Max caps the exponential part (jitter is added on top)
	Max time.Duration
	// Jitter is the exclusive upper bound of the random extra delay
	Jitter time.Duration
	// Rand returns a value in [0, n). Defaults to crypto/rand.
	Rand func(n int64) int64
}

// DelayFor returns Base*2^(attempt-1) capped at Max, plus jitter.
// Attempts below 1 are treated as the first attempt.
func (e Exponential) DelayFor(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := e.Base
	if base < 0 {
		base = 0
	}
	limit := e.Max
	if limit <= 0 {
		limit = DefaultMax
	}

	exp := attempt - 1
	if exp > maxExponent {
		exp = maxExponent
	}
	var d time.Duration
	if base > limit>>exp {
		d = limit
	} else {
		d = base << exp
		if d > limit {
			d = limit
		}
	}

	return d + e.jitter()
}

func (e Exponential) jitter() time.Duration {
	if e.Jitter <= 0 {
		return 0
	}
	n := int64(e.Jitter)
	if e.Rand != nil {
		v := e.Rand(n)
		if v < 0 || v >= n {
			return 0
		}
		return time.Duration(v)
	}
	v, err := crand.Int(crand.Reader, big.NewInt(n))
	if err != nil {
		// RNG failure: skip jitter rather than fail the caller
		return 0
	}
	return time.Duration(v.Int64())
}

// Config describes a backoff policy as it appears in configuration files.
type Config struct {
	Strategy string        `koanf:"strategy" json:"strategy" yaml:"strategy" validate:"omitempty,oneof=fixed exponential"`
	Base     time.Duration `koanf:"base" json:"base" yaml:"base" validate:"gte=0"`
	Max      time.Duration `koanf:"max" json:"max" yaml:"max" validate:"gte=0"`
	Jitter   time.Duration `koanf:"jitter" json:"jitter" yaml:"jitter" validate:"gte=0"`
}

// New builds a policy from configuration. An empty strategy means exponential.
func New(cfg Config) (Policy, error) {
	base := cfg.Base
	if base == 0 {
		base = DefaultBase
	}

	switch cfg.Strategy {
	case StrategyFixed:
		return Fixed{Delay: base}, nil
	case StrategyExponential, "":
		return Exponential{Base: base, Max: cfg.Max, Jitter: cfg.Jitter}, nil
	default:
		return nil, fmt.Errorf("unknown backoff strategy %q (must be %s or %s)", cfg.Strategy, StrategyFixed, StrategyExponential)
	}
}
