package classifier

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/Veraticus/nsfw-sweep/internal/imaging"
)

var errModelClosed = errors.New("onnx model is closed")

var (
	ortMu       sync.Mutex
	ortSessions int
)

// ONNXModel runs a local ONNX image classifier through onnxruntime.
type ONNXModel struct {
	session   *ort.DynamicAdvancedSession
	labels    []string
	norm      imaging.Normalization
	layout    imaging.Layout
	inputSize int
	mu        sync.Mutex
	closed    bool
}

// NewONNXModel loads the model file and prepares an inference session.
func NewONNXModel(cfg Config) (*ONNXModel, error) {
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("model path is required")
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("model file: %w", err)
	}
	if len(cfg.Labels) == 0 {
		return nil, fmt.Errorf("at least one output label is required")
	}

	layout, err := imaging.ParseLayout(cfg.Layout)
	if err != nil {
		return nil, err
	}

	norm, err := normalization(cfg.Mean, cfg.Std)
	if err != nil {
		return nil, err
	}

	size := cfg.InputSize
	if size <= 0 {
		size = 224
	}

	if err := acquireEnvironment(cfg.RuntimePath); err != nil {
		return nil, err
	}

	inputName := cfg.InputName
	if inputName == "" {
		inputName = "input"
	}
	outputName := cfg.OutputName
	if outputName == "" {
		outputName = "output"
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath,
		[]string{inputName}, []string{outputName}, nil)
	if err != nil {
		releaseEnvironment()
		return nil, fmt.Errorf("failed to create onnx session: %w", err)
	}

	return &ONNXModel{
		session:   session,
		labels:    append([]string(nil), cfg.Labels...),
		norm:      norm,
		layout:    layout,
		inputSize: size,
	}, nil
}

// Predict resizes img to the model input, runs it, and zips the output with the labels.
func (m *ONNXModel) Predict(ctx context.Context, img image.Image) ([]Observation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data := imaging.Tensor(imaging.Resize(img, m.inputSize), m.layout, m.norm)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, errModelClosed
	}

	size := int64(m.inputSize)
	inShape := ort.NewShape(1, size, size, 3)
	if m.layout == imaging.LayoutNCHW {
		inShape = ort.NewShape(1, 3, size, size)
	}

	input, err := ort.NewTensor(inShape, data)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer func() { _ = input.Destroy() }()

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(len(m.labels))))
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer func() { _ = output.Destroy() }()

	if err := m.session.Run([]ort.Value{input}, []ort.Value{output}); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	return zipLabels(m.labels, toProbabilities(output.GetData())), nil
}

// Close waits for a running inference, then destroys the session and, with
// the last session, the runtime environment. Predict fails after Close.
func (m *ONNXModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true

	err := m.session.Destroy()
	releaseEnvironment()
	return err
}

func acquireEnvironment(runtimePath string) error {
	ortMu.Lock()
	defer ortMu.Unlock()

	if !ort.IsInitialized() {
		if runtimePath != "" {
			ort.SetSharedLibraryPath(runtimePath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("failed to initialize onnxruntime: %w", err)
		}
	}
	ortSessions++
	return nil
}

func releaseEnvironment() {
	ortMu.Lock()
	defer ortMu.Unlock()

	ortSessions--
	if ortSessions <= 0 && ort.IsInitialized() {
		ortSessions = 0
		_ = ort.DestroyEnvironment()
	}
}

func normalization(mean, std []float64) (imaging.Normalization, error) {
	norm := imaging.IdentityNormalization()
	if len(mean) > 0 {
		if len(mean) != 3 {
			return norm, fmt.Errorf("mean must have 3 values, got %d", len(mean))
		}
		for i, v := range mean {
			norm.Mean[i] = float32(v)
		}
	}
	if len(std) > 0 {
		if len(std) != 3 {
			return norm, fmt.Errorf("std must have 3 values, got %d", len(std))
		}
		for i, v := range std {
			norm.Std[i] = float32(v)
		}
	}
	return norm, nil
}

// toProbabilities applies softmax unless the values already form a distribution.
func toProbabilities(x []float32) []float64 {
	out := make([]float64, len(x))
	if len(x) == 0 {
		return out
	}

	sum := 0.0
	isDistribution := true
	for i, v := range x {
		out[i] = float64(v)
		sum += out[i]
		if v < 0 || v > 1 {
			isDistribution = false
		}
	}
	if isDistribution && math.Abs(sum-1) < 1e-3 {
		return out
	}

	maxV := out[0]
	for _, v := range out {
		if v > maxV {
			maxV = v
		}
	}
	sum = 0
	for i := range out {
		out[i] = math.Exp(out[i] - maxV)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

func zipLabels(labels []string, probs []float64) []Observation {
	n := min(len(labels), len(probs))
	observations := make([]Observation, 0, n)
	for i := 0; i < n; i++ {
		observations = append(observations, Observation{Identifier: labels[i], Confidence: probs[i]})
	}
	return observations
}
