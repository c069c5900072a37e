package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"strings"

	"golang.org/x/image/draw"
)

// Layout is the memory order of a model input tensor.
type Layout string

// Supported tensor layouts.
const (
	LayoutNHWC Layout = "nhwc"
	LayoutNCHW Layout = "nchw"
)

// ParseLayout validates a layout name.
func ParseLayout(s string) (Layout, error) {
	switch Layout(strings.ToLower(strings.TrimSpace(s))) {
	case LayoutNHWC, "":
		return LayoutNHWC, nil
	case LayoutNCHW:
		return LayoutNCHW, nil
	default:
		return "", fmt.Errorf("unsupported tensor layout: %s", s)
	}
}

// Normalization holds per-channel mean and standard deviation applied to
// pixel values scaled into [0,1].
type Normalization struct {
	Mean [3]float32
	Std  [3]float32
}

// IdentityNormalization leaves scaled pixel values unchanged.
func IdentityNormalization() Normalization {
	return Normalization{Std: [3]float32{1, 1, 1}}
}

// Resize scales img into a size x size RGBA bitmap.
func Resize(img image.Image, size int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

// Tensor flattens a square RGBA bitmap into a float32 tensor of shape
// 1xHxWx3 (NHWC) or 1x3xHxW (NCHW).
func Tensor(img *image.RGBA, layout Layout, norm Normalization) []float32 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	plane := w * h
	data := make([]float32, plane*3)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			off := img.PixOffset(b.Min.X+x, b.Min.Y+y)
			px := img.Pix[off : off+3 : off+3]
			for c := 0; c < 3; c++ {
				std := norm.Std[c]
				if std == 0 {
					std = 1
				}
				v := (float32(px[c])/255 - norm.Mean[c]) / std
				if layout == LayoutNCHW {
					data[c*plane+y*w+x] = v
				} else {
					data[(y*w+x)*3+c] = v
				}
			}
		}
	}

	return data
}

// EncodePNG serializes a bitmap for transport to remote models.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}
