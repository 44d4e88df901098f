package playkit

import (
	"fmt"
	"math"
	"time"
)

// BackoffConfig defines how long to wait between reconnection attempts.
type BackoffConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

// DefaultBackoffConfig starts at one second and doubles up to fifteen minutes.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Initial:    time.Second,
		Max:        15 * time.Minute,
		Multiplier: 2.0,
	}
}

func (cfg BackoffConfig) validate() error {
	if cfg.Initial <= 0 {
		return fmt.Errorf("initial backoff must be greater than 0")
	}
	if cfg.Max < cfg.Initial {
		return fmt.Errorf("max backoff must not be below initial backoff")
	}
	if cfg.Multiplier < 1 {
		return fmt.Errorf("backoff multiplier must be at least 1")
	}
	return nil
}

// Delay returns the wait before the given retry attempt (0-based).
func (cfg BackoffConfig) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := float64(cfg.Initial) * math.Pow(cfg.Multiplier, float64(attempt))
	if delay > float64(cfg.Max) {
		return cfg.Max
	}
	return time.Duration(delay)
}
