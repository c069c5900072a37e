// Package testutil provides fixtures shared by package tests: an in-memory
// scan history, PNG files on disk, and scan record builders.
package testutil

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Veraticus/nsfw-sweep/internal/model"
	"github.com/Veraticus/nsfw-sweep/internal/storage"
)

// SetupTestDB creates a migrated in-memory history store that is closed
// when the test ends.
func SetupTestDB(t *testing.T) *storage.SQLiteStorage {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	return store
}

// WritePNG writes a solid width x height PNG named name into dir and
// returns its path.
func WritePNG(t *testing.T, dir, name string, width, height int, c color.Color) string {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create %s: %v", name, err)
	}
	defer func() { _ = f.Close() }()

	if err := png.Encode(f, img); err != nil {
		t.Fatalf("failed to encode %s: %v", name, err)
	}
	return path
}

// ScanBuilder assembles a model.ScanRecord with consistent counters.
type ScanBuilder struct {
	record model.ScanRecord
}

// NewScan starts a completed scan of dir with a fixed start time.
func NewScan(id, dir string) *ScanBuilder {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &ScanBuilder{record: model.ScanRecord{
		ID:         id,
		Directory:  dir,
		Status:     model.ScanStatusCompleted,
		StartedAt:  started,
		FinishedAt: started.Add(2 * time.Second),
	}}
}

// WithResult appends a classified image. Callers add results in
// descending confidence order.
func (b *ScanBuilder) WithResult(filename string, confidence float64) *ScanBuilder {
	b.record.Results = append(b.record.Results, model.ClassificationResult{Filename: filename, Confidence: confidence})
	b.record.Classified++
	b.record.Eligible++
	b.record.Discovered++
	return b
}

// WithFailure appends an image the classifier could not score.
func (b *ScanBuilder) WithFailure(filename, message string) *ScanBuilder {
	b.record.Failures = append(b.record.Failures, model.ItemFailure{Filename: filename, Message: message})
	b.record.Failed++
	b.record.Eligible++
	b.record.Discovered++
	return b
}

// Interrupted marks the scan as stopped early.
func (b *ScanBuilder) Interrupted() *ScanBuilder {
	b.record.Status = model.ScanStatusInterrupted
	return b
}

// StartedAt moves the scan to a different start time.
func (b *ScanBuilder) StartedAt(ts time.Time) *ScanBuilder {
	d := b.record.Duration()
	b.record.StartedAt = ts
	b.record.FinishedAt = ts.Add(d)
	return b
}

// Build returns the record.
func (b *ScanBuilder) Build() *model.ScanRecord {
	r := b.record
	return &r
}
