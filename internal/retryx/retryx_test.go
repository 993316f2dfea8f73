package retryx

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gymcheck/gymcheck-go/internal/errors"
)

// fastPolicy keeps test runtime down while exercising the same code paths.
func fastPolicy(maxRetries int) Policy {
	return Policy{
		MaxRetries:     maxRetries,
		Backoff:        []time.Duration{time.Millisecond, 2 * time.Millisecond},
		JitterFraction: 0.3,
	}
}

func respWithStatus(status int) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader("body")),
	}
}

func TestDoSuccessFirstAttempt(t *testing.T) {
	calls := 0
	resp, err := fastPolicy(2).Do(context.Background(), func(ctx context.Context) (*http.Response, error) {
		calls++
		return respWithStatus(http.StatusOK), nil
	})

	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 1, calls)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDoRateLimitedExhaustsBudget(t *testing.T) {
	calls := 0
	resp, err := fastPolicy(2).Do(context.Background(), func(ctx context.Context) (*http.Response, error) {
		calls++
		return respWithStatus(http.StatusTooManyRequests), nil
	})

	assert.Nil(t, resp)
	require.Error(t, err)
	assert.Equal(t, 3, calls, "2 retries means exactly 3 total attempts")
	assert.Equal(t, errors.CategoryProviderError, errors.CategoryOf(err))
}

func TestDoServerErrorThenSuccess(t *testing.T) {
	calls := 0
	resp, err := fastPolicy(2).Do(context.Background(), func(ctx context.Context) (*http.Response, error) {
		calls++
		if calls < 3 {
			return respWithStatus(http.StatusBadGateway), nil
		}
		return respWithStatus(http.StatusOK), nil
	})

	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 3, calls)
}

func TestDoClientErrorNotRetried(t *testing.T) {
	calls := 0
	resp, err := fastPolicy(2).Do(context.Background(), func(ctx context.Context) (*http.Response, error) {
		calls++
		return respWithStatus(http.StatusBadRequest), nil
	})

	require.NoError(t, err, "non-retryable statuses are handed back to the caller")
	defer resp.Body.Close()
	assert.Equal(t, 1, calls)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDoNetworkErrorRetried(t *testing.T) {
	calls := 0
	_, err := fastPolicy(1).Do(context.Background(), func(ctx context.Context) (*http.Response, error) {
		calls++
		return nil, fmt.Errorf("connection reset")
	})

	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestDoCancellationStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := Policy{MaxRetries: 2, Backoff: []time.Duration{time.Hour}}

	calls := 0
	_, err := policy.Do(ctx, func(ctx context.Context) (*http.Response, error) {
		calls++
		cancel()
		return nil, fmt.Errorf("network down")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls, "cancellation must interrupt the backoff wait")
	assert.Equal(t, errors.CategoryCancellation, errors.CategoryOf(err))
}

func TestDelayJitterBounds(t *testing.T) {
	policy := DefaultPolicy(2)

	for i := 0; i < 200; i++ {
		d0 := policy.Delay(0)
		assert.GreaterOrEqual(t, d0, 800*time.Millisecond)
		assert.Less(t, d0, 1040*time.Millisecond, "jitter must stay within +30%%")

		d1 := policy.Delay(1)
		assert.GreaterOrEqual(t, d1, 1500*time.Millisecond)
		assert.Less(t, d1, 1950*time.Millisecond)
	}

	// Retry indices past the schedule reuse the last entry.
	assert.GreaterOrEqual(t, policy.Delay(5), 1500*time.Millisecond)
}

func TestRetryableStatus(t *testing.T) {
	assert.True(t, RetryableStatus(http.StatusTooManyRequests))
	assert.True(t, RetryableStatus(http.StatusInternalServerError))
	assert.True(t, RetryableStatus(http.StatusServiceUnavailable))
	assert.False(t, RetryableStatus(http.StatusOK))
	assert.False(t, RetryableStatus(http.StatusBadRequest))
	assert.False(t, RetryableStatus(http.StatusUnauthorized))
}

func TestSanitizeBody(t *testing.T) {
	t.Run("truncates long bodies", func(t *testing.T) {
		body := strings.Repeat("a ", 400)
		out := SanitizeBody([]byte(body))
		assert.LessOrEqual(t, len(out), maxLoggedBodyBytes+len("...(truncated)"))
		assert.Contains(t, out, "truncated")
	})

	t.Run("redacts bearer tokens", func(t *testing.T) {
		out := SanitizeBody([]byte(`{"error":"Bearer abc123def456 rejected"}`))
		assert.NotContains(t, out, "abc123def456")
		assert.Contains(t, out, "[redacted]")
	})

	t.Run("redacts sk keys", func(t *testing.T) {
		out := SanitizeBody([]byte("invalid key sk-ABCDEFGH12345678 supplied"))
		assert.NotContains(t, out, "sk-ABCDEFGH12345678")
	})

	t.Run("redacts long base64 runs", func(t *testing.T) {
		blob := strings.Repeat("QUJD", 30)
		out := SanitizeBody([]byte("payload " + blob[:80]))
		assert.NotContains(t, out, blob[:80])
	})
}
