// Package storage persists scan history and deletions.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/nsfw-sweep/internal/model"
)

// Validation errors.
var (
	ErrNilContext   = errors.New("context cannot be nil")
	ErrEmptyString  = errors.New("string parameter cannot be empty")
	ErrNilParameter = errors.New("parameter cannot be nil")
	ErrInvalidScan  = errors.New("invalid scan record")
)

func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateScan checks the fields the history tables require.
func validateScan(scan *model.ScanRecord) error {
	if scan == nil {
		return fmt.Errorf("%w: scan", ErrNilParameter)
	}
	if scan.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidScan)
	}
	if scan.Directory == "" {
		return fmt.Errorf("%w: missing directory", ErrInvalidScan)
	}
	if scan.StartedAt.IsZero() {
		return fmt.Errorf("%w: missing start time", ErrInvalidScan)
	}
	switch scan.Status {
	case model.ScanStatusCompleted, model.ScanStatusInterrupted:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidScan, scan.Status)
	}
	return nil
}
