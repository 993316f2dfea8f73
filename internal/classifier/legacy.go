// legacy.go fallback tier backed by an older general-purpose image model
package classifier

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tflite "github.com/tphakala/go-tflite"

	"github.com/gymcheck/gymcheck-go/internal/conf"
	"github.com/gymcheck/gymcheck-go/internal/errors"
	"github.com/gymcheck/gymcheck-go/internal/imagecheck"
)

// gymKeywords maps the legacy model's object/scene vocabulary onto a binary
// gym signal. Membership is checked by case-insensitive substring.
var gymKeywords = []string{
	"gym", "dumbbell", "barbell", "treadmill", "weight", "bench press",
	"exercise", "fitness", "elliptical", "rowing machine", "kettlebell",
	"punching bag", "parallel bars", "horizontal bar",
}

// legacyTopK is how many raw labels are run through the keyword check.
const legacyTopK = 5

// legacyDecisiveFloor is the minimum top score for the adapted result to be
// treated as decisive; below it the tier flags its answer as uncertain and
// the cascade may consult the next tier.
const legacyDecisiveFloor = 0.1

// LegacyClassifier is the fallback tier: an older, lower-accuracy
// general-purpose model whose raw labels are mapped through the gym keyword
// list and adapted into the same result shape as the primary tier.
type LegacyClassifier struct {
	modelPath string
	labelPath string
	timeout   time.Duration

	initMu      sync.Mutex
	interpreter *tflite.Interpreter
	labels      []string
	inferMu     sync.Mutex
	disabled    atomic.Bool
}

// NewLegacyClassifier creates the fallback tier from settings.
func NewLegacyClassifier(settings *conf.Settings) *LegacyClassifier {
	return &LegacyClassifier{
		modelPath: settings.Legacy.ModelPath,
		labelPath: settings.Legacy.LabelPath,
		timeout:   settings.Legacy.Timeout,
	}
}

// Name implements Tier.
func (l *LegacyClassifier) Name() string { return TierLegacy }

// Enabled implements Tier.
func (l *LegacyClassifier) Enabled() bool { return !l.disabled.Load() }

// Classify implements Tier.
func (l *LegacyClassifier) Classify(ctx context.Context, img *imagecheck.Checked) (Result, bool, error) {
	if err := l.ensureInterpreter(); err != nil {
		return Result{}, false, err
	}

	type inferOutcome struct {
		result   Result
		decisive bool
		err      error
	}
	done := make(chan inferOutcome, 1)
	go func() {
		result, decisive, err := l.infer(img)
		done <- inferOutcome{result: result, decisive: decisive, err: err}
	}()

	timeout := l.timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case outcome := <-done:
		return outcome.result, outcome.decisive, outcome.err
	case <-ctx.Done():
		return Result{}, false, errors.New(ctx.Err()).
			Component("classifier").
			Category(errors.CategoryCancellation).
			Context("tier", TierLegacy).
			Build()
	case <-timer.C:
		return Result{}, false, errors.Newf("legacy inference exceeded %s", timeout).
			Component("classifier").
			Category(errors.CategoryTimeout).
			Context("tier", TierLegacy).
			Build()
	}
}

func (l *LegacyClassifier) ensureInterpreter() error {
	if l.disabled.Load() {
		return errors.Newf("legacy tier permanently disabled").
			Component("classifier").
			Category(errors.CategoryModelInit).
			Build()
	}

	l.initMu.Lock()
	defer l.initMu.Unlock()

	if l.interpreter != nil {
		return nil
	}

	labels, err := loadLabelFile(l.labelPath)
	if err != nil {
		l.disabled.Store(true)
		return errors.New(err).
			Component("classifier").
			Category(errors.CategoryModelLoad).
			Context("label_path", l.labelPath).
			Build()
	}

	modelData, err := os.ReadFile(l.modelPath)
	if err != nil {
		l.disabled.Store(true)
		return errors.New(err).
			Component("classifier").
			Category(errors.CategoryModelLoad).
			Context("model_path", l.modelPath).
			Build()
	}

	model := tflite.NewModel(modelData)
	if model == nil {
		l.disabled.Store(true)
		return errors.Newf("cannot load legacy TensorFlow Lite model").
			Component("classifier").
			Category(errors.CategoryModelLoad).
			Context("model_path", l.modelPath).
			Build()
	}

	options := tflite.NewInterpreterOptions()
	options.SetNumThread(1)

	interpreter := tflite.NewInterpreter(model, options)
	if interpreter == nil {
		l.disabled.Store(true)
		return errors.Newf("cannot create legacy interpreter").
			Component("classifier").
			Category(errors.CategoryModelInit).
			Build()
	}
	if status := interpreter.AllocateTensors(); status != tflite.OK {
		l.disabled.Store(true)
		return errors.Newf("legacy tensor allocation failed: %v", status).
			Component("classifier").
			Category(errors.CategoryModelInit).
			Build()
	}

	l.labels = labels
	l.interpreter = interpreter
	return nil
}

func (l *LegacyClassifier) infer(img *imagecheck.Checked) (Result, bool, error) {
	l.inferMu.Lock()
	defer l.inferMu.Unlock()

	inputTensor := l.interpreter.GetInputTensor(0)
	if inputTensor == nil {
		return Result{}, false, fmt.Errorf("cannot get input tensor")
	}

	sample, err := pixelsToTensor(img.Data, inputTensor)
	if err != nil {
		return Result{}, false, err
	}
	copy(inputTensor.Float32s(), sample)

	if status := l.interpreter.Invoke(); status != tflite.OK {
		return Result{}, false, fmt.Errorf("legacy tensor invoke failed: %v", status)
	}

	outputTensor := l.interpreter.GetOutputTensor(0)
	scores := extractScores(outputTensor)
	if len(scores) != len(l.labels) {
		return Result{}, false, fmt.Errorf("legacy output size %d does not match label count %d", len(scores), len(l.labels))
	}

	predictions := make([]Prediction, 0, len(l.labels))
	for i, label := range l.labels {
		predictions = append(predictions, Prediction{Label: label, Score: float64(scores[i])})
	}
	return AdaptLegacy(predictions)
}

// AdaptLegacy maps raw legacy-model predictions into the shared result shape
// via the gym keyword check. Exported for tests; the adaptation is pure.
func AdaptLegacy(predictions []Prediction) (Result, bool, error) {
	// The keyword check runs over the pre-trim top-k, not just the ranked
	// triple, so gym gear at rank 4 still counts.
	top := topK(predictions, legacyTopK)

	var gymScore float64
	for _, p := range top {
		if gymRelatedLabel(p.Label) {
			gymScore += p.Score
		}
	}
	if gymScore == 0 {
		raw := NewResult(TierLegacy, predictions)
		return raw, raw.Confidence >= legacyDecisiveFloor, nil
	}

	// Any keyword hit in the top-k is the binary gym signal. All hits
	// collapse into one "gym interior" entry that stays the top label even
	// when a non-gym label scored higher; the runner-ups keep their true
	// scores, so the margin check downstream still sees how strongly the
	// rest of the scene disagreed.
	ranked := []Prediction{{Label: "gym interior", Score: round2(min(gymScore, 1))}}
	for _, p := range top {
		if gymRelatedLabel(p.Label) || len(ranked) >= maxRanked {
			continue
		}
		ranked = append(ranked, Prediction{Label: p.Label, Score: round2(p.Score)})
	}

	result := Result{
		Label:      "gym interior",
		Confidence: ranked[0].Score,
		Ranked:     ranked,
		Tier:       TierLegacy,
	}
	return result, result.Confidence >= legacyDecisiveFloor, nil
}

func gymRelatedLabel(label string) bool {
	lower := strings.ToLower(label)
	for _, keyword := range gymKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

func topK(predictions []Prediction, k int) []Prediction {
	sorted := make([]Prediction, len(predictions))
	copy(sorted, predictions)
	// Small k over a small vocabulary, selection is fine.
	for i := 0; i < len(sorted) && i < k; i++ {
		maxIdx := i
		for j := i + 1; j < len(sorted); j++ {
			if sorted[j].Score > sorted[maxIdx].Score {
				maxIdx = j
			}
		}
		sorted[i], sorted[maxIdx] = sorted[maxIdx], sorted[i]
	}
	if len(sorted) > k {
		sorted = sorted[:k]
	}
	return sorted
}

// loadLabelFile reads one label per line, the common format for legacy
// model vocabularies.
func loadLabelFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open label file: %w", err)
	}
	defer f.Close()

	var labels []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			labels = append(labels, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read label file: %w", err)
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("label file %s is empty", path)
	}
	return labels, nil
}
