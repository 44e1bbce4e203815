// Package retry wraps flaky external calls with bounded exponential backoff.
// It is for transient dependency failures only; sequence allocation uses true
// conflict retries, not this.
package retry

import (
	"context"
	"time"

	"github.com/wyenfos-bills/wyenfos-bills/internal/shared"
)

// Policy configures backoff behaviour for Do.
type Policy struct {
	MaxAttempts int
	BaseBackoff time.Duration
}

// DefaultPolicy matches the dependency checks shipped with the app.
var DefaultPolicy = Policy{MaxAttempts: 3, BaseBackoff: 300 * time.Millisecond}

// Do executes op up to p.MaxAttempts times, sleeping
// BaseBackoff * 2^(attempt-1) between attempts. On exhaustion it returns a
// transient error wrapping the last failure and naming the attempt count.
// Context cancellation aborts the wait and surfaces as transient.
func Do(ctx context.Context, p Policy, op func(context.Context) error) error {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == p.MaxAttempts {
			break
		}
		backoff := p.BaseBackoff << (attempt - 1)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return shared.Transientf("aborted after %d attempts: %v", attempt, ctx.Err())
		}
	}
	return shared.Transientf("exhausted %d attempts: %v", p.MaxAttempts, lastErr)
}
