// Package retry provides exponential backoff timing for the streaming transport.
package retry

import (
	"math"
	"math/rand"
	"time"
)

// Config holds backoff parameters for a bounded retry loop.
type Config struct {
	// MaxAttempts is the total number of attempts, the first one included.
	MaxAttempts int

	// BaseDelay is the wait before the first retry.
	BaseDelay time.Duration

	// Multiplier grows the delay per attempt (delay = base * multiplier^attempt).
	Multiplier float64

	// Jitter scales the delay by a random factor in [1-jitter, 1+jitter].
	Jitter float64

	// MaxDelay caps a single wait, jitter included. Zero means uncapped;
	// the attempt ceiling is the real bound.
	MaxDelay time.Duration
}

// DefaultConfig mirrors the server defaults: 3 attempts, 1.5s base, doubling.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   1500 * time.Millisecond,
		Multiplier:  2.0,
		Jitter:      0.1,
	}
}

// Delay returns the wait after the given zero-indexed failed attempt.
func (c Config) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	d := float64(c.BaseDelay) * math.Pow(c.Multiplier, float64(attempt))

	if c.Jitter > 0 {
		d *= 1.0 + (rand.Float64()*2-1)*c.Jitter
	}

	// Cap last so jitter cannot push a wait past MaxDelay.
	if c.MaxDelay > 0 && d > float64(c.MaxDelay) {
		d = float64(c.MaxDelay)
	}

	return time.Duration(d)
}
