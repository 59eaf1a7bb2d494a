// Package retry implements the gateway's retry policy (spec.md §4.5): a pure
// decision function plus a jittered exponential backoff delay. Both take
// explicit inputs so tests can use a virtual clock/rng instead of wall time.
package retry

import (
	"math/rand"
	"time"

	goretry "github.com/sethvargo/go-retry"

	"github.com/eternisai/multiai-gateway/internal/gwerrors"
)

// Config holds the retry policy's tunables (spec.md §6).
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultConfig returns spec.md's defaults: max_attempts=3, base=1s, max=30s.
func DefaultConfig() Config {
	return Config{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second}
}

// Policy decides retryability and computes backoff delays.
type Policy struct {
	cfg Config
	// rand is injectable so tests can assert exact bounds instead of ranges.
	rand func() float64
}

func New(cfg Config) *Policy {
	return &Policy{cfg: cfg, rand: rand.Float64}
}

// WithRand overrides the jitter source (for deterministic tests).
func (p *Policy) WithRand(f func() float64) *Policy {
	p.rand = f
	return p
}

// ShouldRetry reports whether a failed Upstream Call attempt should be
// retried, given the error that occurred and the 1-based attempt number
// that just failed.
func (p *Policy) ShouldRetry(err error, attemptNumber int) bool {
	if attemptNumber >= p.cfg.MaxAttempts {
		return false
	}

	if ge, ok := err.(gwerrors.GatewayError); ok {
		return ge.Retryable()
	}

	return false
}

// Delay computes the backoff delay before the given attempt number (the
// attempt about to be made, 1-based), per spec.md §4.5:
//
//	base * 2^(attempt-1), jittered by ±30%, capped at MaxDelay.
//
// The raw exponential term comes from a fresh go-retry exponential backoff
// stepped to the requested attempt; jitter and capping are then applied
// by hand so the result lands exactly within the bounds spec.md's testable
// property requires (go-retry's own jitter/cap wrappers operate on a
// different, additive formula).
func (p *Policy) Delay(attempt int) time.Duration {
	raw := p.rawExponential(attempt)

	// raw*0.7 plus a uniform share of raw*0.6, i.e. raw jittered into
	// [0.7*raw, 1.3*raw]; summing the two products keeps both ends exact.
	low := float64(raw) * 0.7
	delay := time.Duration(low + float64(raw)*0.6*p.rand())

	if delay > p.cfg.MaxDelay {
		delay = p.cfg.MaxDelay
	}
	if delay < 0 {
		delay = 0
	}
	return delay
}

// rawExponential returns base*2^(attempt-1) by stepping a fresh go-retry
// exponential backoff attempt times and keeping the last value.
func (p *Policy) rawExponential(attempt int) time.Duration {
	b, err := goretry.NewExponential(p.cfg.BaseDelay)
	if err != nil {
		return p.cfg.BaseDelay
	}

	if attempt < 1 {
		attempt = 1
	}

	var raw time.Duration
	for i := 0; i < attempt; i++ {
		raw, _ = b.Next()
	}
	return raw
}
