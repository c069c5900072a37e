package imaging

import (
	"fmt"
	"image"

	"github.com/corona10/goimagehash"
)

// Fingerprint returns a perceptual key for img. Visually identical bitmaps of
// the same dimensions share a fingerprint.
func Fingerprint(img image.Image) (string, error) {
	dhash, err := goimagehash.DifferenceHash(img)
	if err != nil {
		return "", fmt.Errorf("failed to compute difference hash: %w", err)
	}

	phash, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return "", fmt.Errorf("failed to compute perception hash: %w", err)
	}

	b := img.Bounds()
	return fmt.Sprintf("%016x:%016x:%dx%d", dhash.GetHash(), phash.GetHash(), b.Dx(), b.Dy()), nil
}
