// Package model defines the core domain models used throughout the application.
package model

import "fmt"

// FlaggedThreshold is the confidence above which a result is highlighted as flagged.
const FlaggedThreshold = 0.5

// ClassificationResult is the classifier's verdict for one image file.
// Values are immutable once created; Filename is relative to the scanned directory.
type ClassificationResult struct {
	Filename   string  `json:"filename"`
	Confidence float64 `json:"confidence"`
}

// Percent formats the confidence the way result lists display it.
func (r ClassificationResult) Percent() string {
	return fmt.Sprintf("%.1f%%", r.Confidence*100)
}

// Flagged reports whether the confidence is above the given threshold.
func (r ClassificationResult) Flagged(threshold float64) bool {
	return r.Confidence > threshold
}

// ItemFailure records a per-item classification failure.
type ItemFailure struct {
	Filename string `json:"filename"`
	Message  string `json:"message"`
}
