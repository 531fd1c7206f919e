package retry

import (
	"context"
	"fmt"
	"time"
)

// BackoffMode selects how the delay between attempts grows.
type BackoffMode string

const (
	BackoffFixed       BackoffMode = "fixed"
	BackoffLinear      BackoffMode = "linear"
	BackoffExponential BackoffMode = "exponential"
)

// Policy encapsulates retry/backoff settings for transient failures.
// It is immutable after construction.
type Policy struct {
	Mode     BackoffMode   // fixed|linear|exponential
	Initial  time.Duration // base delay
	Max      time.Duration // cap for growth
	Attempts int           // total attempts including the first
}

// DefaultPolicy returns the broker-facing default: exponential growth from 2s
// capped at 60s, five attempts.
func DefaultPolicy() Policy {
	return Policy{Mode: BackoffExponential, Initial: 2 * time.Second, Max: 60 * time.Second, Attempts: 5}
}

// FixedPolicy returns a fixed-delay policy, used for child restarts where the
// loop never gives up (Attempts 0 means unbounded).
func FixedPolicy(delay time.Duration) Policy {
	return Policy{Mode: BackoffFixed, Initial: delay, Max: delay, Attempts: 0}
}

// NewPolicy builds a policy from raw fields; zero/invalid values fall back to defaults.
func NewPolicy(mode BackoffMode, initial, maxDuration time.Duration, attempts int) Policy {
	p := DefaultPolicy()
	if attempts >= 0 {
		p.Attempts = attempts
	}
	if initial > 0 {
		p.Initial = initial
	}
	if maxDuration > 0 {
		p.Max = maxDuration
	}
	if mode != "" {
		switch mode {
		case BackoffFixed, BackoffLinear, BackoffExponential:
			p.Mode = mode
		default:
			// unknown -> keep default
		}
	}
	if p.Initial > p.Max {
		p.Initial = p.Max
	}
	return p
}

// Delay returns the backoff delay after the given failed attempt (1-based:
// first failure => 1).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	switch p.Mode {
	case BackoffFixed:
		return p.Initial
	case BackoffExponential:
		d := p.Initial * (1 << (attempt - 1))
		if d > p.Max {
			return p.Max
		}
		return d
	default: // linear
		d := time.Duration(attempt) * p.Initial
		if d > p.Max {
			return p.Max
		}
		return d
	}
}

// Validate ensures invariants; returns error if policy impossible to apply.
func (p Policy) Validate() error {
	if p.Initial <= 0 {
		return fmt.Errorf("initial must be >0")
	}
	if p.Max <= 0 {
		return fmt.Errorf("max must be >0")
	}
	if p.Attempts < 0 {
		return fmt.Errorf("attempts cannot be negative")
	}
	return nil
}

// Wait sleeps for d or until ctx is canceled. It reports whether the full
// delay elapsed.
func Wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
