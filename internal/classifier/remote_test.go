package classifier

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/gymcheck/gymcheck-go/internal/errors"
	"github.com/gymcheck/gymcheck-go/internal/httpclient"
	"github.com/gymcheck/gymcheck-go/internal/retryx"
)

const mockEndpoint = "https://llm.example.test/v1/chat/completions"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestRemote builds a remote tier with a mocked transport and a fast
// retry schedule.
func newTestRemote(t *testing.T) *RemoteClassifier {
	t.Helper()

	client := httpclient.New(nil)
	httpmock.ActivateNonDefault(client.Unwrap())
	t.Cleanup(httpmock.DeactivateAndReset)

	return &RemoteClassifier{
		endpoint: mockEndpoint,
		apiKey:   "sk-test",
		model:    "vision-small",
		timeout:  5 * time.Second,
		client:   client,
		policy: retryx.Policy{
			MaxRetries:     2,
			Backoff:        []time.Duration{time.Millisecond, time.Millisecond},
			JitterFraction: 0,
		},
		limiter: rate.NewLimiter(rate.Inf, 1),
	}
}

func completionJSON(content string) string {
	payload := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	}
	out, _ := json.Marshal(payload)
	return string(out)
}

func TestRemoteClassifyHappyPath(t *testing.T) {
	remote := newTestRemote(t)
	remote.log = discardLogger()

	verdict := `{"label":"gym","confidence":0.87,"secondary_label":"not_gym","secondary_confidence":0.1,` +
		`"indicators":{"exercise_equipment":true,"gym_flooring":true,"mirrors_or_racks":false},` +
		`"reason":"racked dumbbells along a mirrored wall"}`
	httpmock.RegisterResponder(http.MethodPost, mockEndpoint,
		httpmock.NewStringResponder(http.StatusOK, completionJSON("```json\n"+verdict+"\n```")))

	result, decisive, err := remote.Classify(context.Background(), testImage())
	require.NoError(t, err)

	assert.True(t, decisive)
	assert.Equal(t, "gym", result.Label)
	assert.InDelta(t, 0.87, result.Confidence, 1e-9)
	assert.Equal(t, TierRemote, result.Tier)
	require.Len(t, result.Ranked, 2)

	// Instructions are a single user turn, no system message.
	info := httpmock.GetCallCountInfo()
	assert.Equal(t, 1, info["POST "+mockEndpoint])
}

func TestRemoteClassifyRateLimitExhaustion(t *testing.T) {
	remote := newTestRemote(t)
	remote.log = discardLogger()

	httpmock.RegisterResponder(http.MethodPost, mockEndpoint,
		httpmock.NewStringResponder(http.StatusTooManyRequests, `{"error":"rate limited"}`))

	_, _, err := remote.Classify(context.Background(), testImage())
	require.Error(t, err)

	assert.Equal(t, errors.CategoryProviderError, errors.CategoryOf(err))
	assert.Equal(t, 3, httpmock.GetTotalCallCount(), "3 total attempts for maxRetries=2")
}

func TestRemoteClassifyUnparseableCompletion(t *testing.T) {
	remote := newTestRemote(t)
	remote.log = discardLogger()

	httpmock.RegisterResponder(http.MethodPost, mockEndpoint,
		httpmock.NewStringResponder(http.StatusOK, completionJSON("I cannot tell from this image, sorry!")))

	_, _, err := remote.Classify(context.Background(), testImage())
	require.Error(t, err)
	assert.Equal(t, errors.CategoryParseError, errors.CategoryOf(err))
}

func TestRemoteDisabledWithoutEndpoint(t *testing.T) {
	remote := &RemoteClassifier{}
	assert.False(t, remote.Enabled())
}

func TestParseRemoteResponse(t *testing.T) {
	t.Run("label outside schema", func(t *testing.T) {
		payload := completionJSON(`{"label":"kitchen","confidence":0.9}`)
		_, _, err := parseRemoteResponse([]byte(payload))
		require.Error(t, err)
		assert.Equal(t, errors.CategoryParseError, errors.CategoryOf(err))
	})

	t.Run("confidence outside range", func(t *testing.T) {
		payload := completionJSON(`{"label":"gym","confidence":1.7}`)
		_, _, err := parseRemoteResponse([]byte(payload))
		require.Error(t, err)
	})

	t.Run("uncertain is a valid decisive answer", func(t *testing.T) {
		payload := completionJSON(`{"label":"uncertain","confidence":0.3,"reason":"image is blurry"}`)
		result, decisive, err := parseRemoteResponse([]byte(payload))
		require.NoError(t, err)
		assert.True(t, decisive)
		assert.Equal(t, UncertainLabel, result.Label)
	})

	t.Run("truncated completion recovered by extractor", func(t *testing.T) {
		content := `{"label":"gym","confidence":0.7,"indicators":{"exercise_equipment":true}} and then some prose`
		payload := completionJSON(content)
		result, _, err := parseRemoteResponse([]byte(payload))
		require.NoError(t, err)
		assert.Equal(t, "gym", result.Label)
	})

	t.Run("no choices", func(t *testing.T) {
		_, _, err := parseRemoteResponse([]byte(`{"choices":[]}`))
		require.Error(t, err)
	})
}
