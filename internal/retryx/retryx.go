// Package retryx implements the retry policy wrapped around remote
// classifier calls: bounded retries with backoff and positive jitter for
// rate limits, server errors and network failures. Exhausting the budget
// yields a structured failure, never a panic.
package retryx

import (
	"context"
	"io"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/gymcheck/gymcheck-go/internal/errors"
)

// Policy controls the retry behavior for a remote call.
type Policy struct {
	// MaxRetries is the number of additional attempts after the first.
	MaxRetries int

	// Backoff holds the base delay before each retry. When MaxRetries
	// exceeds its length the last entry repeats.
	Backoff []time.Duration

	// JitterFraction perturbs each delay by up to this positive fraction
	// so synchronized callers do not retry in lockstep.
	JitterFraction float64

	// OnRetry, when set, is called before each retry wait with the retry
	// number (1-based). Used for metrics.
	OnRetry func(retry int)
}

// DefaultPolicy returns the retry policy used for remote classifier calls.
func DefaultPolicy(maxRetries int) Policy {
	return Policy{
		MaxRetries:     maxRetries,
		Backoff:        []time.Duration{800 * time.Millisecond, 1500 * time.Millisecond},
		JitterFraction: 0.3,
	}
}

// AttemptFunc performs one attempt of the remote call.
type AttemptFunc func(ctx context.Context) (*http.Response, error)

// Do runs fn until it yields a non-retryable outcome or the retry budget is
// exhausted. A response with a non-retryable status is returned to the caller
// for interpretation; responses consumed by a retry are drained and closed
// here. On exhaustion the last response (or error) is returned wrapped in a
// provider-error category.
func (p Policy) Do(ctx context.Context, fn AttemptFunc) (*http.Response, error) {
	attempts := p.MaxRetries + 1
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if p.OnRetry != nil {
				p.OnRetry(attempt)
			}
			if err := p.sleep(ctx, attempt-1); err != nil {
				// Caller cancelled while waiting to retry.
				return nil, errors.New(err).
					Component("retryx").
					Category(errors.CategoryCancellation).
					Context("attempt", attempt).
					Build()
			}
		}

		resp, err := fn(ctx)
		switch {
		case err != nil:
			lastErr = err
		case !RetryableStatus(resp.StatusCode):
			return resp, nil
		default:
			// Rate limited or server error. Drain so the connection can be
			// reused, remember the status for the terminal error.
			lastErr = errors.Newf("remote returned status %d", resp.StatusCode).
				Component("retryx").
				Category(errors.CategoryProviderError).
				Context("status", resp.StatusCode).
				Build()
			drain(resp)
		}
	}

	return nil, errors.New(lastErr).
		Component("retryx").
		Category(errors.CategoryProviderError).
		Context("attempts", attempts).
		Build()
}

// RetryableStatus reports whether an HTTP status is worth another attempt.
func RetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// Delay returns the backoff delay with jitter applied for the given retry
// index (0 for the first retry).
func (p Policy) Delay(retry int) time.Duration {
	if len(p.Backoff) == 0 {
		return 0
	}
	if retry >= len(p.Backoff) {
		retry = len(p.Backoff) - 1
	}
	base := p.Backoff[retry]
	if p.JitterFraction <= 0 {
		return base
	}
	jitter := time.Duration(rand.Float64() * p.JitterFraction * float64(base))
	return base + jitter
}

// sleep waits for the backoff delay or the context, whichever ends first.
func (p Policy) sleep(ctx context.Context, retry int) error {
	delay := p.Delay(retry)
	if delay <= 0 {
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

func drain(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
}
