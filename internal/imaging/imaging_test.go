package imaging

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestFileDecoder(t *testing.T) {
	dir := t.TempDir()
	decoder := NewFileDecoder()

	t.Run("valid png", func(t *testing.T) {
		path := filepath.Join(dir, "ok.png")
		writePNG(t, path, solid(4, 3, color.White))

		img, err := decoder.Decode(path)
		require.NoError(t, err)
		assert.Equal(t, 4, img.Bounds().Dx())
		assert.Equal(t, 3, img.Bounds().Dy())
	})

	t.Run("corrupt file", func(t *testing.T) {
		path := filepath.Join(dir, "corrupt.png")
		require.NoError(t, os.WriteFile(path, []byte("not an image"), 0o600))

		_, err := decoder.Decode(path)
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := decoder.Decode(filepath.Join(dir, "missing.png"))
		assert.Error(t, err)
	})
}

func TestParseLayout(t *testing.T) {
	got, err := ParseLayout("NCHW")
	require.NoError(t, err)
	assert.Equal(t, LayoutNCHW, got)

	got, err = ParseLayout("")
	require.NoError(t, err)
	assert.Equal(t, LayoutNHWC, got)

	_, err = ParseLayout("hwc")
	assert.Error(t, err)
}

func TestTensor(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	img.Set(1, 0, color.RGBA{B: 255, A: 255})

	t.Run("nhwc", func(t *testing.T) {
		data := Tensor(img, LayoutNHWC, IdentityNormalization())
		assert.Equal(t, []float32{1, 0, 0, 0, 0, 1}, data)
	})

	t.Run("nchw", func(t *testing.T) {
		data := Tensor(img, LayoutNCHW, IdentityNormalization())
		require.Len(t, data, 6)
		assert.Equal(t, []float32{1, 0}, data[0:2])
		assert.Equal(t, []float32{0, 0}, data[2:4])
		assert.Equal(t, []float32{0, 1}, data[4:6])
	})

	t.Run("normalization", func(t *testing.T) {
		norm := Normalization{Mean: [3]float32{0.5, 0.5, 0.5}, Std: [3]float32{0.5, 0.5, 0.5}}
		data := Tensor(img, LayoutNHWC, norm)
		assert.InDelta(t, 1.0, data[0], 1e-6)
		assert.InDelta(t, -1.0, data[1], 1e-6)
	})
}

func TestResize(t *testing.T) {
	out := Resize(solid(50, 20, color.Black), 8)
	assert.Equal(t, image.Rect(0, 0, 8, 8), out.Bounds())
}

func TestFingerprint(t *testing.T) {
	a, err := Fingerprint(solid(16, 16, color.White))
	require.NoError(t, err)
	b, err := Fingerprint(solid(16, 16, color.White))
	require.NoError(t, err)
	c, err := Fingerprint(solid(32, 16, color.White))
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestEncodePNG(t *testing.T) {
	data, err := EncodePNG(solid(2, 2, color.White))
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), data[:4])
}
