// Package imaging turns image files into bitmaps and prepares bitmaps for models.
package imaging

import (
	"bufio"
	"fmt"
	"image"
	_ "image/gif"  // GIF decoder
	_ "image/jpeg" // JPEG decoder
	_ "image/png"  // PNG decoder
	"os"

	_ "golang.org/x/image/bmp"  // BMP decoder
	_ "golang.org/x/image/tiff" // TIFF decoder
	_ "golang.org/x/image/webp" // WebP decoder
)

// Decoder turns a file path into a decoded bitmap.
type Decoder interface {
	Decode(path string) (image.Image, error)
}

// FileDecoder decodes image files from the local filesystem using the
// registered image formats.
type FileDecoder struct{}

// NewFileDecoder creates a new filesystem decoder.
func NewFileDecoder() *FileDecoder {
	return &FileDecoder{}
}

// Decode opens the file at path and decodes it.
func (d *FileDecoder) Decode(path string) (image.Image, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from the scanned directory listing
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer func() { _ = f.Close() }()

	img, _, err := image.Decode(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	if b := img.Bounds(); b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("failed to decode %s: empty bitmap", path)
	}

	return img, nil
}
