// Package engine implements directory scanning, result aggregation, and the
// scan session lifecycle.
package engine

import (
	"context"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/Veraticus/nsfw-sweep/internal/classifier"
	"github.com/Veraticus/nsfw-sweep/internal/imaging"
	"github.com/Veraticus/nsfw-sweep/internal/model"
)

// Submitter starts asynchronous classification of a bitmap.
type Submitter interface {
	Submit(ctx context.Context, img image.Image) <-chan classifier.Outcome
}

// Sink receives per-item progress from a scan. Calls come from a single
// goroutine, so implementations need no locking of their own for ordering.
type Sink interface {
	Planned(total int)
	Classified(result model.ClassificationResult)
	Skipped(filename string, err error)
	Failed(filename string, err error)
}

// Summary counts what happened during a scan.
type Summary struct {
	Directory   string        `json:"directory"`
	Discovered  int           `json:"discovered"`
	Eligible    int           `json:"eligible"`
	Skipped     int           `json:"skipped"`
	Classified  int           `json:"classified"`
	Failed      int           `json:"failed"`
	Duration    time.Duration `json:"duration_ns"`
	Interrupted bool          `json:"interrupted"`
}

// ScannerConfig holds scanner options.
type ScannerConfig struct {
	Filter ExtensionFilter
	// MaxConcurrency bounds in-flight decode and classify work; zero means unbounded.
	MaxConcurrency int
}

// Scanner enumerates a directory and classifies every eligible image.
type Scanner struct {
	decoder   imaging.Decoder
	submitter Submitter
	logger    *slog.Logger
	filter    ExtensionFilter
	maxActive int
}

// NewScanner creates a scanner.
func NewScanner(decoder imaging.Decoder, submitter Submitter, cfg ScannerConfig, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{
		decoder:   decoder,
		submitter: submitter,
		logger:    logger,
		filter:    cfg.Filter,
		maxActive: cfg.MaxConcurrency,
	}
}

type itemOutcome struct {
	err        error
	filename   string
	confidence float64
	skipped    bool
}

// Scan classifies the eligible files of dir and reports each item to sink.
// It returns only after every dispatched classification has been delivered.
// An unreadable directory yields an empty summary, not an error.
func (s *Scanner) Scan(ctx context.Context, dir string, sink Sink) Summary {
	start := time.Now()
	summary := Summary{Directory: dir}

	entries, err := os.ReadDir(dir)
	if err != nil {
		s.logger.Debug("Directory not readable, nothing to scan", "directory", dir, "error", err)
		sink.Planned(0)
		summary.Duration = time.Since(start)
		return summary
	}

	names := s.filter.Eligible(entries)
	summary.Discovered = len(entries)
	summary.Eligible = len(names)
	sink.Planned(len(names))

	s.logger.Info("Scanning directory",
		"directory", dir,
		"entries", len(entries),
		"eligible", len(names))

	outcomes := make(chan itemOutcome, len(names))
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for o := range outcomes {
			switch {
			case o.skipped:
				summary.Skipped++
				sink.Skipped(o.filename, o.err)
			case o.err != nil:
				summary.Failed++
				s.logger.Warn("Classification failed", "filename", o.filename, "error", o.err)
				sink.Failed(o.filename, o.err)
			default:
				summary.Classified++
				sink.Classified(model.ClassificationResult{Filename: o.filename, Confidence: o.confidence})
			}
		}
	}()

	var sem *semaphore.Weighted
	if s.maxActive > 0 {
		sem = semaphore.NewWeighted(int64(s.maxActive))
	}

	var wg sync.WaitGroup
	interrupted := false
	for _, name := range names {
		if ctx.Err() != nil {
			interrupted = true
			break
		}
		if sem != nil {
			if err := sem.Acquire(ctx, 1); err != nil {
				interrupted = true
				break
			}
		}

		img, err := s.decoder.Decode(filepath.Join(dir, name))
		if err != nil {
			if sem != nil {
				sem.Release(1)
			}
			s.logger.Debug("Skipping undecodable file", "filename", name, "error", err)
			outcomes <- itemOutcome{filename: name, err: err, skipped: true}
			continue
		}

		pending := s.submitter.Submit(ctx, img)
		wg.Add(1)
		go func(name string, pending <-chan classifier.Outcome) {
			defer wg.Done()
			if sem != nil {
				defer sem.Release(1)
			}
			result := <-pending
			outcomes <- itemOutcome{filename: name, confidence: result.Confidence, err: result.Err}
		}(name, pending)
	}

	wg.Wait()
	close(outcomes)
	<-collected

	summary.Interrupted = interrupted
	summary.Duration = time.Since(start)

	s.logger.Info("Scan finished",
		"directory", dir,
		"classified", summary.Classified,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
		"interrupted", interrupted,
		"duration", summary.Duration)

	return summary
}
