// Package mealscan detects food items on a meal photo with a remote
// vision model and normalizes the answer into a bounded item list.
package mealscan

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gymcheck/gymcheck-go/internal/conf"
	"github.com/gymcheck/gymcheck-go/internal/errors"
	"github.com/gymcheck/gymcheck-go/internal/extract"
	"github.com/gymcheck/gymcheck-go/internal/httpclient"
	"github.com/gymcheck/gymcheck-go/internal/imagecheck"
	"github.com/gymcheck/gymcheck-go/internal/logging"
	"github.com/gymcheck/gymcheck-go/internal/retryx"
)

const (
	maxItems    = 8
	minGrams    = 20
	maxGrams    = 1000
	defaultNote = "Estimates are approximate. Adjust portions before logging."
)

// Category is the fixed classification vocabulary for detected items.
var validCategories = map[string]bool{
	"protein":   true,
	"carb":      true,
	"vegetable": true,
	"fruit":     true,
	"dairy":     true,
	"fat":       true,
	"beverage":  true,
	"other":     true,
}

// Macros is a per-100g nutrient estimate.
type Macros struct {
	Kcal     float64 `json:"kcal"`
	ProteinG float64 `json:"protein_g"`
	FatG     float64 `json:"fat_g"`
	CarbsG   float64 `json:"carbs_g"`
}

// Item is one detected food item.
type Item struct {
	Label      string  `json:"label"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	Grams      int     `json:"grams"`
	Macros     *Macros `json:"macros,omitempty"`
}

// Scan is the normalized result of one meal detection.
type Scan struct {
	Items []Item `json:"items"`
	Note  string `json:"note"`
}

// FoodFacts is what a lookup source knows about a food by name.
type FoodFacts struct {
	Macros *Macros
}

// FoodLookup enriches detected item labels from an external food database.
type FoodLookup interface {
	Lookup(ctx context.Context, label string) (*FoodFacts, error)
}

// NoopLookup is a FoodLookup that knows nothing. It stands in until a real
// food database is wired up.
type NoopLookup struct{}

func (NoopLookup) Lookup(context.Context, string) (*FoodFacts, error) { return nil, nil }

const mealPrompt = `Identify the food items visible in this meal photo.

Respond with exactly one JSON object, no other text:
{
  "items": [
    {
      "label": "<short food name>",
      "category": "<one of: protein, carb, vegetable, fruit, dairy, fat, beverage, other>",
      "confidence": <0.0-1.0>,
      "grams": <estimated portion in grams>,
      "macros": {"kcal": <per 100g>, "protein_g": <per 100g>, "fat_g": <per 100g>, "carbs_g": <per 100g>}
    }
  ],
  "note": "<one sentence about the meal>"
}

List at most 8 items. Omit "macros" if you cannot estimate it.`

// Scanner calls the remote meal-detection model.
type Scanner struct {
	endpoint string
	apiKey   string
	model    string
	timeout  time.Duration

	client *httpclient.Client
	policy retryx.Policy
	lookup FoodLookup
	log    *slog.Logger
}

// NewScanner creates a meal scanner from settings.
func NewScanner(settings *conf.Settings, client *httpclient.Client, lookup FoodLookup) *Scanner {
	if lookup == nil {
		lookup = NoopLookup{}
	}
	return &Scanner{
		endpoint: settings.MealScan.Endpoint,
		apiKey:   settings.MealScan.APIKey,
		model:    settings.MealScan.Model,
		timeout:  settings.MealScan.Timeout,
		client:   client,
		policy:   retryx.DefaultPolicy(settings.MealScan.MaxRetries),
		lookup:   lookup,
		log:      logging.ForService("mealscan"),
	}
}

// Enabled reports whether a remote endpoint is configured.
func (s *Scanner) Enabled() bool { return s.endpoint != "" }

// Detect sends a ceiling-checked meal image to the remote model and returns
// the normalized item list. The note is always present.
func (s *Scanner) Detect(ctx context.Context, img *imagecheck.Checked) (Scan, error) {
	timeout := s.timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	requestBody, err := json.Marshal(chatRequest{
		Model:       s.model,
		Temperature: 0,
		MaxTokens:   600,
		Messages: []chatMessage{{
			Role: "user",
			Content: []chatContent{
				{Type: "text", Text: mealPrompt},
				{Type: "image_url", ImageURL: &chatImageURL{
					URL: "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(img.Data),
				}},
			},
		}},
	})
	if err != nil {
		return Scan{}, errors.New(err).
			Component("mealscan").
			Category(errors.CategoryValidation).
			Build()
	}

	resp, err := s.policy.Do(ctx, func(ctx context.Context) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(requestBody))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if s.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+s.apiKey)
		}
		return s.client.Do(ctx, req)
	})
	if err != nil {
		return Scan{}, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Scan{}, errors.New(err).
			Component("mealscan").
			Category(errors.CategoryNetwork).
			Build()
	}

	if resp.StatusCode != http.StatusOK {
		s.log.Error("meal model rejected request",
			"status", resp.StatusCode,
			"body", retryx.SanitizeBody(payload))
		return Scan{}, errors.Newf("meal model returned status %d", resp.StatusCode).
			Component("mealscan").
			Category(errors.CategoryProviderError).
			Context("status", resp.StatusCode).
			Build()
	}

	scan, err := parseScan(payload)
	if err != nil {
		return Scan{}, err
	}
	s.enrich(ctx, &scan)
	return scan, nil
}

// enrich fills missing macro estimates from the food lookup. Lookup
// failures are logged and ignored, the scan is already usable.
func (s *Scanner) enrich(ctx context.Context, scan *Scan) {
	for i := range scan.Items {
		if scan.Items[i].Macros != nil {
			continue
		}
		facts, err := s.lookup.Lookup(ctx, scan.Items[i].Label)
		if err != nil {
			s.log.Warn("food lookup failed", "label", scan.Items[i].Label, "error", err)
			continue
		}
		if facts != nil && facts.Macros != nil {
			scan.Items[i].Macros = clampMacros(facts.Macros)
		}
	}
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

// rawScan is the schema the model is asked for, before normalization.
type rawScan struct {
	Items []rawItem `json:"items"`
	Note  string    `json:"note"`
}

type rawItem struct {
	Label      string  `json:"label"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	Grams      float64 `json:"grams"`
	Macros     *Macros `json:"macros"`
}

func parseScan(payload []byte) (Scan, error) {
	var completion chatResponse
	if err := json.Unmarshal(payload, &completion); err != nil || len(completion.Choices) == 0 {
		return Scan{}, errors.Newf("meal response carried no completion").
			Component("mealscan").
			Category(errors.CategoryParseError).
			Build()
	}

	var raw rawScan
	if ok := extract.Into(completion.Choices[0].Message.Content, &raw); !ok {
		return Scan{}, errors.Newf("meal completion text yielded no structured scan").
			Component("mealscan").
			Category(errors.CategoryParseError).
			Build()
	}

	return normalize(raw), nil
}

// normalize bounds the item list and clamps every numeric field into its
// plausible range.
func normalize(raw rawScan) Scan {
	scan := Scan{Note: raw.Note}
	if scan.Note == "" {
		scan.Note = defaultNote
	}

	for _, ri := range raw.Items {
		if len(scan.Items) >= maxItems {
			break
		}
		if ri.Label == "" {
			continue
		}
		item := Item{
			Label:      ri.Label,
			Category:   normalizeCategory(ri.Category),
			Confidence: clampFloat(ri.Confidence, 0, 1),
			Grams:      clampGrams(ri.Grams),
		}
		if ri.Macros != nil {
			item.Macros = clampMacros(ri.Macros)
		}
		scan.Items = append(scan.Items, item)
	}
	return scan
}

func normalizeCategory(category string) string {
	c := normalizeToken(category)
	if validCategories[c] {
		return c
	}
	switch c {
	case "meat", "fish", "egg", "eggs":
		return "protein"
	case "grain", "starch", "carbs", "carbohydrate":
		return "carb"
	case "vegetables", "veggie", "veggies":
		return "vegetable"
	case "fruits":
		return "fruit"
	case "drink", "drinks":
		return "beverage"
	case "oil", "fats":
		return "fat"
	}
	return "other"
}

func normalizeToken(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		if c == ' ' || c == '\t' {
			continue
		}
		out = append(out, c)
	}
	return string(out)
}

func clampGrams(grams float64) int {
	if grams <= 0 {
		grams = 100 // unestimated portion, assume a typical serving
	}
	return int(clampFloat(grams, minGrams, maxGrams))
}

func clampMacros(m *Macros) *Macros {
	return &Macros{
		Kcal:     clampFloat(m.Kcal, 0, 900),
		ProteinG: clampFloat(m.ProteinG, 0, 100),
		FatG:     clampFloat(m.FatG, 0, 100),
		CarbsG:   clampFloat(m.CarbsG, 0, 100),
	}
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
