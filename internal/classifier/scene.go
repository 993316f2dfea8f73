// scene.go primary zero-shot scene classifier backed by a local TFLite model
package classifier

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	tflite "github.com/tphakala/go-tflite"
	"golang.org/x/image/draw"

	"github.com/gymcheck/gymcheck-go/internal/conf"
	"github.com/gymcheck/gymcheck-go/internal/errors"
	"github.com/gymcheck/gymcheck-go/internal/imagecheck"
)

// SceneClassifier is the primary tier: a local scene-level model scored
// against the configured label vocabulary. The model is loaded lazily on
// first use and shared by all requests; a native loading failure disables
// the tier for the remainder of the process lifetime.
type SceneClassifier struct {
	modelPath string
	labels    []string
	threads   int
	timeout   time.Duration

	// initMu serializes the one-time model load; concurrent callers block
	// on it and observe the memoized outcome instead of re-initializing.
	initMu      sync.Mutex
	interpreter *tflite.Interpreter

	// inferMu serializes access to the interpreter, which is not
	// thread-safe.
	inferMu sync.Mutex

	// disabled is set once on environment failure and read thereafter.
	disabled atomic.Bool
}

// NewSceneClassifier creates the primary tier from settings. No model is
// loaded until the first classification request.
func NewSceneClassifier(settings *conf.Settings) *SceneClassifier {
	return &SceneClassifier{
		modelPath: settings.Scene.ModelPath,
		labels:    settings.Verify.Labels,
		threads:   settings.Scene.Threads,
		timeout:   settings.Scene.Timeout,
	}
}

// Name implements Tier.
func (s *SceneClassifier) Name() string { return TierScene }

// Enabled implements Tier. False after a permanent environment failure.
func (s *SceneClassifier) Enabled() bool { return !s.disabled.Load() }

// Classify implements Tier. Scene results are always decisive on success.
func (s *SceneClassifier) Classify(ctx context.Context, img *imagecheck.Checked) (Result, bool, error) {
	if err := s.ensureInterpreter(); err != nil {
		return Result{}, false, err
	}

	type inferOutcome struct {
		result Result
		err    error
	}
	done := make(chan inferOutcome, 1)
	go func() {
		result, err := s.infer(img)
		done <- inferOutcome{result: result, err: err}
	}()

	timeout := s.timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case outcome := <-done:
		if outcome.err != nil {
			return Result{}, false, outcome.err
		}
		return outcome.result, true, nil
	case <-ctx.Done():
		return Result{}, false, errors.New(ctx.Err()).
			Component("classifier").
			Category(errors.CategoryCancellation).
			Context("tier", TierScene).
			Build()
	case <-timer.C:
		return Result{}, false, errors.Newf("scene inference exceeded %s", timeout).
			Component("classifier").
			Category(errors.CategoryTimeout).
			Context("tier", TierScene).
			Build()
	}
}

// ensureInterpreter performs the lazy, memoized model initialization.
func (s *SceneClassifier) ensureInterpreter() error {
	if s.disabled.Load() {
		return errors.Newf("scene tier permanently disabled").
			Component("classifier").
			Category(errors.CategoryModelInit).
			Build()
	}

	s.initMu.Lock()
	defer s.initMu.Unlock()

	if s.interpreter != nil {
		return nil
	}

	start := time.Now()
	modelData, err := os.ReadFile(s.modelPath)
	if err != nil {
		// Missing model file is an environment failure, not a transient
		// one. Disable the tier so future requests go straight to the
		// fallback instead of hitting the filesystem each time.
		s.disabled.Store(true)
		return errors.New(err).
			Component("classifier").
			Category(errors.CategoryModelLoad).
			Context("model_path", s.modelPath).
			Timing("model-load", time.Since(start)).
			Build()
	}

	model := tflite.NewModel(modelData)
	if model == nil {
		s.disabled.Store(true)
		return errors.Newf("cannot load TensorFlow Lite model").
			Component("classifier").
			Category(errors.CategoryModelLoad).
			Context("model_path", s.modelPath).
			Context("model_size_mb", len(modelData)/1024/1024).
			Build()
	}

	threads := s.threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	options := tflite.NewInterpreterOptions()
	options.SetNumThread(threads)

	interpreter := tflite.NewInterpreter(model, options)
	if interpreter == nil {
		s.disabled.Store(true)
		return errors.Newf("cannot create interpreter").
			Component("classifier").
			Category(errors.CategoryModelInit).
			Context("model_path", s.modelPath).
			Build()
	}
	if status := interpreter.AllocateTensors(); status != tflite.OK {
		s.disabled.Store(true)
		return errors.Newf("tensor allocation failed: %v", status).
			Component("classifier").
			Category(errors.CategoryModelInit).
			Context("model_path", s.modelPath).
			Build()
	}

	// Validate output size against the label vocabulary before accepting
	// the interpreter.
	outputTensor := interpreter.GetOutputTensor(0)
	if outputTensor == nil {
		s.disabled.Store(true)
		return errors.Newf("model has no output tensor").
			Component("classifier").
			Category(errors.CategoryModelInit).
			Build()
	}
	outputSize := outputTensor.Dim(outputTensor.NumDims() - 1)
	if outputSize != len(s.labels) {
		s.disabled.Store(true)
		return errors.Newf("model output size %d does not match label vocabulary size %d", outputSize, len(s.labels)).
			Component("classifier").
			Category(errors.CategoryModelInit).
			Context("model_path", s.modelPath).
			Build()
	}

	s.interpreter = interpreter

	// The model data is no longer needed, TFLite keeps its own copy.
	runtime.GC()
	return nil
}

// infer runs one prediction pass under the inference lock.
func (s *SceneClassifier) infer(img *imagecheck.Checked) (Result, error) {
	s.inferMu.Lock()
	defer s.inferMu.Unlock()

	inputTensor := s.interpreter.GetInputTensor(0)
	if inputTensor == nil {
		return Result{}, fmt.Errorf("cannot get input tensor")
	}

	sample, err := pixelsToTensor(img.Data, inputTensor)
	if err != nil {
		return Result{}, err
	}
	copy(inputTensor.Float32s(), sample)

	if status := s.interpreter.Invoke(); status != tflite.OK {
		return Result{}, fmt.Errorf("tensor invoke failed: %v", status)
	}

	outputTensor := s.interpreter.GetOutputTensor(0)
	scores := extractScores(outputTensor)

	predictions := make([]Prediction, 0, len(s.labels))
	for i, label := range s.labels {
		predictions = append(predictions, Prediction{Label: label, Score: float64(scores[i])})
	}
	return NewResult(TierScene, predictions), nil
}

// pixelsToTensor decodes the checked image and scales it into the model's
// input layout: [1, height, width, 3] float32 normalized to [0,1].
func pixelsToTensor(data []byte, inputTensor *tflite.Tensor) ([]float32, error) {
	dims := inputTensor.NumDims()
	if dims < 3 {
		return nil, fmt.Errorf("unexpected input tensor rank %d", dims)
	}
	height := inputTensor.Dim(dims - 3)
	width := inputTensor.Dim(dims - 2)
	channels := inputTensor.Dim(dims - 1)
	if channels != 3 {
		return nil, fmt.Errorf("unexpected input tensor channel count %d", channels)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image for inference: %w", err)
	}

	scaled := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), img, img.Bounds(), draw.Over, nil)

	sample := make([]float32, width*height*3)
	idx := 0
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := scaled.At(x, y).RGBA()
			sample[idx] = float32(r>>8) / 255.0
			sample[idx+1] = float32(g>>8) / 255.0
			sample[idx+2] = float32(b>>8) / 255.0
			idx += 3
		}
	}
	return sample, nil
}

// extractScores copies prediction scores out of the output tensor.
func extractScores(tensor *tflite.Tensor) []float32 {
	size := tensor.Dim(tensor.NumDims() - 1)
	scores := make([]float32, size)
	copy(scores, tensor.Float32s())
	return scores
}
