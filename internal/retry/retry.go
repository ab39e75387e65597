// Package retry holds the backoff policy and transient-error classification
// used by the insight orchestrator.
package retry

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"net"
	"strings"
	"time"
)

// Policy defines retry behavior with exponential backoff.
type Policy struct {
	MaxAttempts  int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFactor float64 // 0.0-1.0; 0.2 gives +/-20%
}

// DefaultPolicy returns 3 attempts, 1s base delay doubling to a 30s cap,
// with +/-20% jitter.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		BaseDelay:    time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.2,
	}
}

// withDefaults fills zero fields from DefaultPolicy.
func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = d.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = d.MaxDelay
	}
	if p.Multiplier < 1 {
		p.Multiplier = d.Multiplier
	}
	if p.JitterFactor < 0 || p.JitterFactor > 1 {
		p.JitterFactor = d.JitterFactor
	}
	return p
}

// Normalize returns p with defaults applied.
func (p Policy) Normalize() Policy { return p.withDefaults() }

// Backoff returns the delay before attempt+1, given that attempt (1-based)
// just failed. hint is a server-provided Retry-After; when positive it is a
// floor on the returned delay. The result never exceeds MaxDelay, and
// jitter is applied before the cap.
func (p Policy) Backoff(attempt int, hint time.Duration) time.Duration {
	p = p.withDefaults()
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(p.BaseDelay)
	for i := 1; i < attempt; i++ {
		delay *= p.Multiplier
		if delay >= float64(p.MaxDelay) {
			delay = float64(p.MaxDelay)
			break
		}
	}
	d := applyJitter(time.Duration(delay), p.JitterFactor)
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	if d <= 0 {
		d = p.BaseDelay
	}
	if hint > d {
		d = min(hint, p.MaxDelay)
	}
	return d
}

// applyJitter returns delay +/- (delay * jitterFactor * random(-1 to +1)).
func applyJitter(delay time.Duration, jitterFactor float64) time.Duration {
	if jitterFactor <= 0 {
		return delay
	}
	jitter := float64(delay) * jitterFactor * (rand.Float64()*2 - 1)
	return time.Duration(float64(delay) + jitter)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RetryableError is implemented by errors that declare their retryability.
type RetryableError interface {
	error
	IsRetryable() bool
}

// RetryAfterError is implemented by errors that carry a server wait hint.
type RetryAfterError interface {
	error
	RetryAfterHint() time.Duration
}

// IsRetryable reports whether err is a transient failure worth retrying:
// declared retryable errors, deadline overruns, network timeouts and resets.
// context.Canceled is never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var r RetryableError
	if errors.As(err, &r) {
		return r.IsRetryable()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"no such host",
		"i/o timeout",
		"timed out",
		"temporary failure",
		"network is unreachable",
		"service unavailable",
		"too many requests",
	} {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

// RetryAfter extracts the server wait hint from err, if any.
func RetryAfter(err error) time.Duration {
	var r RetryAfterError
	if errors.As(err, &r) {
		return r.RetryAfterHint()
	}
	return 0
}
