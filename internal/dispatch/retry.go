package dispatch

import (
	"context"
	"errors"
	"net/http"
	"time"

	"orbridge/internal/services/openrouter"
)

// Policy holds the wait before each retry, indexed by the failed attempt
// (1-based). A status with no remaining delay is terminal, so the number of
// attempts for a status is len(delays)+1.
type Policy struct {
	CapacityDelays  []time.Duration
	RateLimitDelays []time.Duration
}

// DefaultPolicy retries 503 after 5s then 10s and 429 after 10s then 20s.
func DefaultPolicy() Policy {
	return Policy{
		CapacityDelays:  []time.Duration{5 * time.Second, 10 * time.Second},
		RateLimitDelays: []time.Duration{10 * time.Second, 20 * time.Second},
	}
}

// MaxAttempts reports the most attempts any status can receive.
func (p Policy) MaxAttempts() int {
	return max(len(p.CapacityDelays), len(p.RateLimitDelays)) + 1
}

// retryDelay decides whether the failure of the given attempt is retried and
// how long to wait first.
func (p Policy) retryDelay(ctx context.Context, err error, attempt int) (time.Duration, bool) {
	if err == nil || ctx.Err() != nil {
		return 0, false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}
	var statusErr *openrouter.StatusError
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	var delays []time.Duration
	switch statusErr.StatusCode {
	case http.StatusServiceUnavailable:
		delays = p.CapacityDelays
	case http.StatusTooManyRequests:
		delays = p.RateLimitDelays
	default:
		return 0, false
	}
	if attempt < 1 || attempt > len(delays) {
		return 0, false
	}
	return max(delays[attempt-1], 0), true
}

func (d *Dispatcher) sleep(ctx context.Context, delay time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if delay <= 0 {
		return nil
	}
	if d.sleeper != nil {
		d.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
