// Package callout wraps outbound network calls with bounded retry, exponential
// backoff, and ordered provider fallback. It keeps no state across calls and is
// safe to use concurrently without synchronization.
package callout

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"time"
)

// Policy bounds the retry behavior for a single provider.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration

	// sleep is swapped out by tests so backoff runs instantly.
	sleep func(ctx context.Context, d time.Duration) error
}

// DefaultPolicy matches the engine-wide retry contract: three attempts,
// exponential backoff from one second.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: time.Second}
}

// StatusError carries an HTTP status for retry classification. RetryAfter, when
// the provider supplies one, overrides the computed backoff.
type StatusError struct {
	Code       int
	Body       string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("callout: status %d: %s", e.Code, e.Body)
}

// Retryable reports whether err warrants another attempt: HTTP 429, HTTP >=500,
// or a transport-level timeout. Other 4xx failures are final.
func Retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == 429 || se.Code >= 500
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// Do runs fn under the policy. The label only feeds log lines.
func Do[T any](ctx context.Context, p Policy, label string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}

		out, err := fn(ctx)
		if err == nil {
			return out, nil
		}
		lastErr = err

		if attempt == attempts-1 || !Retryable(err) {
			break
		}

		delay := p.delayFor(attempt, err)
		log.Printf("[callout:%s] attempt %d failed, retrying in %s: %v", label, attempt+1, delay, err)
		if err := sleep(ctx, delay); err != nil {
			return zero, err
		}
	}
	return zero, lastErr
}

func (p Policy) delayFor(attempt int, err error) time.Duration {
	var se *StatusError
	if errors.As(err, &se) && se.RetryAfter > 0 {
		return se.RetryAfter
	}
	base := p.BaseDelay
	if base <= 0 {
		base = time.Second
	}
	return base << uint(attempt)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
