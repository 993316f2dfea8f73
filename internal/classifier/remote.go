// remote.go vision-capable remote model tier used by the checkin flow
package classifier

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/gymcheck/gymcheck-go/internal/conf"
	"github.com/gymcheck/gymcheck-go/internal/errors"
	"github.com/gymcheck/gymcheck-go/internal/extract"
	"github.com/gymcheck/gymcheck-go/internal/httpclient"
	"github.com/gymcheck/gymcheck-go/internal/imagecheck"
	"github.com/gymcheck/gymcheck-go/internal/logging"
	"github.com/gymcheck/gymcheck-go/internal/observability"
	"github.com/gymcheck/gymcheck-go/internal/retryx"
)

// remotePrompt is the single-turn instruction sent with the image. The
// target model family folds all instructions into the user turn, so no
// system message is used.
const remotePrompt = `You are verifying whether a photo was taken inside a gym or fitness facility.
Look at the attached photo and answer with exactly one JSON object, no other text:
{
  "label": "gym" | "not_gym" | "uncertain",
  "confidence": <number between 0 and 1>,
  "secondary_label": "<optional second most likely label>",
  "secondary_confidence": <optional number between 0 and 1>,
  "indicators": {
    "exercise_equipment": <true|false>,
    "gym_flooring": <true|false>,
    "mirrors_or_racks": <true|false>
  },
  "reason": "<one short sentence>"
}`

// validRemoteLabels is the fixed label schema the remote model must answer
// within.
var validRemoteLabels = map[string]bool{
	LabelGym:       true,
	LabelNotGym:    true,
	UncertainLabel: true,
}

// RemoteClassifier is the remote vision-capable tier. Calls are bound to a
// hard timeout, rate limited, and retried per the resilience policy.
type RemoteClassifier struct {
	endpoint string
	apiKey   string
	model    string
	timeout  time.Duration

	client  *httpclient.Client
	policy  retryx.Policy
	limiter *rate.Limiter
	log     *slog.Logger
}

// NewRemoteClassifier creates the remote tier from settings. An empty
// endpoint leaves the tier disabled.
func NewRemoteClassifier(settings *conf.Settings, client *httpclient.Client, metrics *observability.Metrics) *RemoteClassifier {
	policy := retryx.DefaultPolicy(settings.Remote.MaxRetries)
	policy.OnRetry = func(int) { metrics.RecordRemoteRetry() }

	return &RemoteClassifier{
		endpoint: settings.Remote.Endpoint,
		apiKey:   settings.Remote.APIKey,
		model:    settings.Remote.Model,
		timeout:  settings.Remote.Timeout,
		client:   client,
		policy:   policy,
		// Remote providers rate limit aggressively; cap our own request
		// rate below theirs.
		limiter: rate.NewLimiter(rate.Limit(2), 2),
		log:     logging.ForService("classifier"),
	}
}

// Name implements Tier.
func (r *RemoteClassifier) Name() string { return TierRemote }

// Enabled implements Tier.
func (r *RemoteClassifier) Enabled() bool { return r.endpoint != "" }

// Classify implements Tier. Remote results are decisive on success,
// including an honest "uncertain" answer.
func (r *RemoteClassifier) Classify(ctx context.Context, img *imagecheck.Checked) (Result, bool, error) {
	timeout := r.timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := r.limiter.Wait(ctx); err != nil {
		return Result{}, false, errors.New(err).
			Component("classifier").
			Category(errors.CategoryCancellation).
			Context("tier", TierRemote).
			Build()
	}

	body := chatRequest{
		Model:       r.model,
		Temperature: 0,
		MaxTokens:   300,
		Messages: []chatMessage{{
			Role: "user",
			Content: []chatContent{
				{Type: "text", Text: remotePrompt},
				{Type: "image_url", ImageURL: &chatImageURL{
					URL: "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(img.Data),
				}},
			},
		}},
	}

	requestBody, err := json.Marshal(body)
	if err != nil {
		return Result{}, false, errors.New(err).
			Component("classifier").
			Category(errors.CategoryValidation).
			Context("tier", TierRemote).
			Build()
	}

	resp, err := r.policy.Do(ctx, func(ctx context.Context) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(requestBody))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if r.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+r.apiKey)
		}
		return r.client.Do(ctx, req)
	})
	if err != nil {
		return Result{}, false, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, false, errors.New(err).
			Component("classifier").
			Category(errors.CategoryNetwork).
			Context("tier", TierRemote).
			Build()
	}

	if resp.StatusCode != http.StatusOK {
		// Non-retryable provider rejection. Body is sanitized before it
		// reaches the log line.
		r.log.Error("remote provider rejected request",
			"status", resp.StatusCode,
			"body", retryx.SanitizeBody(payload))
		return Result{}, false, errors.Newf("remote provider returned status %d", resp.StatusCode).
			Component("classifier").
			Category(errors.CategoryProviderError).
			Context("status", resp.StatusCode).
			Build()
	}

	return parseRemoteResponse(payload)
}

type chatRequest struct {
	Model       string        `json:"model"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Messages    []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []chatContent `json:"content"`
}

type chatContent struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *chatImageURL `json:"image_url,omitempty"`
}

type chatImageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// remoteVerdict is the JSON schema the remote model is instructed to return.
type remoteVerdict struct {
	Label               string  `json:"label"`
	Confidence          float64 `json:"confidence"`
	SecondaryLabel      string  `json:"secondary_label"`
	SecondaryConfidence float64 `json:"secondary_confidence"`
	Indicators          struct {
		ExerciseEquipment bool `json:"exercise_equipment"`
		GymFlooring       bool `json:"gym_flooring"`
		MirrorsOrRacks    bool `json:"mirrors_or_racks"`
	} `json:"indicators"`
	Reason string `json:"reason"`
}

// parseRemoteResponse extracts the structured verdict out of the provider's
// free-form completion text.
func parseRemoteResponse(payload []byte) (Result, bool, error) {
	var completion chatResponse
	if err := json.Unmarshal(payload, &completion); err != nil || len(completion.Choices) == 0 {
		return Result{}, false, errors.Newf("remote response carried no completion").
			Component("classifier").
			Category(errors.CategoryParseError).
			Build()
	}

	var verdict remoteVerdict
	if ok := extract.Into(completion.Choices[0].Message.Content, &verdict); !ok {
		return Result{}, false, errors.Newf("remote completion text yielded no structured verdict").
			Component("classifier").
			Category(errors.CategoryParseError).
			Build()
	}

	if !validRemoteLabels[verdict.Label] {
		return Result{}, false, errors.Newf("remote verdict label %q outside schema", verdict.Label).
			Component("classifier").
			Category(errors.CategoryParseError).
			Context("label", verdict.Label).
			Build()
	}
	if verdict.Confidence < 0 || verdict.Confidence > 1 {
		return Result{}, false, errors.Newf("remote verdict confidence %v outside [0,1]", verdict.Confidence).
			Component("classifier").
			Category(errors.CategoryParseError).
			Build()
	}

	predictions := []Prediction{{Label: verdict.Label, Score: verdict.Confidence}}
	if verdict.SecondaryLabel != "" && verdict.SecondaryConfidence > 0 {
		predictions = append(predictions, Prediction{
			Label: verdict.SecondaryLabel,
			Score: min(verdict.SecondaryConfidence, verdict.Confidence),
		})
	}

	return NewResult(TierRemote, predictions), true, nil
}
