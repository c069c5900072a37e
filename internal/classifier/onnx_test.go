package classifier

import (
	"context"
	"image"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/nsfw-sweep/internal/imaging"
)

func TestToProbabilities(t *testing.T) {
	t.Run("already a distribution", func(t *testing.T) {
		got := toProbabilities([]float32{0.25, 0.75})
		assert.InDelta(t, 0.25, got[0], 1e-6)
		assert.InDelta(t, 0.75, got[1], 1e-6)
	})

	t.Run("logits are softmaxed", func(t *testing.T) {
		got := toProbabilities([]float32{1, 1, 3})
		sum := got[0] + got[1] + got[2]
		assert.InDelta(t, 1.0, sum, 1e-6)
		assert.InDelta(t, got[0], got[1], 1e-9)
		assert.Greater(t, got[2], got[0])
	})

	t.Run("empty", func(t *testing.T) {
		assert.Empty(t, toProbabilities(nil))
	})
}

func TestZipLabels(t *testing.T) {
	obs := zipLabels([]string{"drawings", "hentai", "NSFW"}, []float64{0.1, 0.2})
	assert.Equal(t, []Observation{
		{Identifier: "drawings", Confidence: 0.1},
		{Identifier: "hentai", Confidence: 0.2},
	}, obs)
}

func TestNormalization(t *testing.T) {
	norm, err := normalization([]float64{0.485, 0.456, 0.406}, []float64{0.229, 0.224, 0.225})
	require.NoError(t, err)
	assert.InDelta(t, 0.485, norm.Mean[0], 1e-6)
	assert.InDelta(t, 0.225, norm.Std[2], 1e-6)

	norm, err = normalization(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, [3]float32{1, 1, 1}, norm.Std)

	_, err = normalization([]float64{0.5}, nil)
	assert.Error(t, err)
}

func TestNewONNXModel_Validation(t *testing.T) {
	_, err := NewONNXModel(Config{})
	assert.Error(t, err)

	_, err = NewONNXModel(Config{ModelPath: filepath.Join(t.TempDir(), "missing.onnx"), Labels: []string{"NSFW"}})
	assert.Error(t, err)
}

func TestONNXModel_ClosedRejectsPredict(t *testing.T) {
	m := &ONNXModel{labels: []string{"SFW", "NSFW"}, inputSize: 4, layout: imaging.LayoutNHWC, norm: imaging.IdentityNormalization(), closed: true}

	_, err := m.Predict(context.Background(), image.NewRGBA(image.Rect(0, 0, 2, 2)))
	require.ErrorIs(t, err, errModelClosed)
	assert.NoError(t, m.Close())
}
