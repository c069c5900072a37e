package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/nsfw-sweep/internal/common"
	"github.com/Veraticus/nsfw-sweep/internal/events"
	"github.com/Veraticus/nsfw-sweep/internal/model"
)

// Runner performs one directory scan.
type Runner interface {
	Scan(ctx context.Context, dir string, sink Sink) Summary
}

// Remover deletes a file from disk.
type Remover interface {
	Remove(path string) error
}

// Recorder persists finished scans and deletions.
type Recorder interface {
	SaveScan(ctx context.Context, scan *model.ScanRecord) error
	RecordDeletion(ctx context.Context, deletion model.Deletion) error
}

// Publisher receives change notifications.
type Publisher interface {
	Publish(ev events.Event) error
}

// RemoverFunc adapts a function to the Remover interface.
type RemoverFunc func(path string) error

// Remove calls f(path).
func (f RemoverFunc) Remove(path string) error { return f(path) }

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithRemover replaces the default os.Remove based file removal.
func WithRemover(r Remover) SessionOption {
	return func(s *Session) { s.remover = r }
}

// WithRecorder stores every finished scan and deletion.
func WithRecorder(r Recorder) SessionOption {
	return func(s *Session) { s.recorder = r }
}

// WithPublisher sends change events to p.
func WithPublisher(p Publisher) SessionOption {
	return func(s *Session) { s.publisher = p }
}

// Session owns the result collection and the busy/idle state of scans.
// At most one scan runs at a time; a start while scanning is declined.
type Session struct {
	runner    Runner
	remover   Remover
	recorder  Recorder
	publisher Publisher
	logger    *slog.Logger
	agg       *Aggregator
	summary   *Summary
	done      chan struct{}
	dir       string
	scanID    string
	state     model.ScanState
	mu        sync.Mutex
	// deleteMu makes find, remove and unlist one step per filename.
	deleteMu sync.Mutex
}

// NewSession creates an idle session.
func NewSession(runner Runner, logger *slog.Logger, opts ...SessionOption) *Session {
	if logger == nil {
		logger = slog.Default()
	}

	done := make(chan struct{})
	close(done)

	s := &Session{
		runner:  runner,
		remover: RemoverFunc(os.Remove),
		logger:  logger,
		agg:     NewAggregator(),
		done:    done,
		state:   model.ScanStateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins scanning dir in the background. It returns
// common.ErrScanInProgress without side effects when a scan is running.
// Canceling ctx stops dispatching new items.
func (s *Session) Start(ctx context.Context, dir string) error {
	s.mu.Lock()
	if s.state == model.ScanStateScanning {
		s.mu.Unlock()
		return common.ErrScanInProgress
	}

	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}

	agg := NewAggregator()
	scanID := uuid.NewString()
	done := make(chan struct{})

	s.state = model.ScanStateScanning
	s.agg = agg
	s.dir = dir
	s.scanID = scanID
	s.done = done
	s.summary = nil
	s.mu.Unlock()

	s.publish(events.Event{Type: events.ScanStarted, ScanID: scanID, Directory: dir})

	go s.run(ctx, dir, scanID, agg, done)
	return nil
}

func (s *Session) run(ctx context.Context, dir, scanID string, agg *Aggregator, done chan struct{}) {
	started := time.Now()
	sink := &sessionSink{session: s, agg: agg, scanID: scanID}

	summary := s.runner.Scan(ctx, dir, sink)

	if s.recorder != nil {
		record := &model.ScanRecord{
			ID:         scanID,
			Directory:  dir,
			Status:     model.ScanStatusCompleted,
			StartedAt:  started,
			FinishedAt: time.Now(),
			Results:    agg.Snapshot(),
			Failures:   sink.failures,
			Discovered: summary.Discovered,
			Eligible:   summary.Eligible,
			Skipped:    summary.Skipped,
			Classified: summary.Classified,
			Failed:     summary.Failed,
		}
		if summary.Interrupted {
			record.Status = model.ScanStatusInterrupted
		}
		if err := s.recorder.SaveScan(context.WithoutCancel(ctx), record); err != nil {
			s.logger.Warn("Failed to save scan history", "scan_id", scanID, "error", err)
		}
	}

	s.mu.Lock()
	s.state = model.ScanStateIdle
	s.summary = &summary
	close(done)
	s.mu.Unlock()

	s.publish(events.Event{
		Type:      events.ScanFinished,
		ScanID:    scanID,
		Directory: dir,
		Total:     summary.Classified,
	})
}

// Wait blocks until the current scan, if any, has finished.
func (s *Session) Wait(ctx context.Context) error {
	select {
	case <-s.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done returns a channel closed when the current scan finishes.
// It is already closed when the session is idle.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Scan runs a scan of dir to completion.
func (s *Session) Scan(ctx context.Context, dir string) (Summary, error) {
	if err := s.Start(ctx, dir); err != nil {
		return Summary{}, err
	}
	if err := s.Wait(context.WithoutCancel(ctx)); err != nil {
		return Summary{}, err
	}
	summary, _ := s.LastSummary()
	return summary, nil
}

// IsBusy reports whether a scan is running.
func (s *Session) IsBusy() bool {
	return s.State() == model.ScanStateScanning
}

// State returns the current lifecycle state.
func (s *Session) State() model.ScanState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Results returns the current ordered result list.
func (s *Session) Results() []model.ClassificationResult {
	return s.aggregator().Snapshot()
}

// Directory returns the directory of the most recent scan.
func (s *Session) Directory() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dir
}

// ScanID returns the identifier of the most recent scan.
func (s *Session) ScanID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scanID
}

// LastSummary returns the summary of the most recently finished scan.
func (s *Session) LastSummary() (Summary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.summary == nil {
		return Summary{}, false
	}
	return *s.summary, true
}

// Path resolves a listed filename to its location on disk.
func (s *Session) Path(filename string) (string, error) {
	if err := validateFilename(filename); err != nil {
		return "", err
	}
	dir := s.Directory()
	if dir == "" {
		return "", common.ErrNoDirectory
	}
	return filepath.Join(dir, filename), nil
}

// Delete removes a listed file from disk and then from the result list.
// The entry stays listed when the filesystem removal fails. Deletes are
// serialized, so a second delete of the same name reports ErrNotFound.
func (s *Session) Delete(ctx context.Context, filename string) error {
	if err := validateFilename(filename); err != nil {
		return err
	}

	s.mu.Lock()
	dir, agg, scanID := s.dir, s.agg, s.scanID
	s.mu.Unlock()

	if dir == "" {
		return common.ErrNoDirectory
	}

	s.deleteMu.Lock()
	result, ok := agg.Find(filename)
	if !ok {
		s.deleteMu.Unlock()
		return fmt.Errorf("%s: %w", filename, common.ErrNotFound)
	}

	if err := s.remover.Remove(filepath.Join(dir, filename)); err != nil {
		s.deleteMu.Unlock()
		s.logger.Warn("Failed to delete file", "filename", filename, "error", err)
		return common.NewUserError(fmt.Sprintf("failed to delete %s", filename), err)
	}

	agg.Remove(filename)
	s.deleteMu.Unlock()
	s.logger.Info("Deleted file", "filename", filename, "confidence", result.Confidence)
	s.publish(events.Event{
		Type:       events.ResultRemoved,
		ScanID:     scanID,
		Directory:  dir,
		Filename:   filename,
		Confidence: result.Confidence,
	})

	if s.recorder != nil {
		deletion := model.Deletion{
			ScanID:     scanID,
			Filename:   filename,
			Confidence: result.Confidence,
			DeletedAt:  time.Now(),
		}
		if err := s.recorder.RecordDeletion(ctx, deletion); err != nil {
			s.logger.Warn("Failed to record deletion", "filename", filename, "error", err)
		}
	}
	return nil
}

func (s *Session) aggregator() *Aggregator {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agg
}

func (s *Session) publish(ev events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ev); err != nil {
		s.logger.Debug("Failed to publish event", "type", ev.Type, "error", err)
	}
}

func validateFilename(filename string) error {
	if filename == "" || filename == "." || filename == ".." ||
		strings.ContainsAny(filename, `/\`) || filepath.Base(filename) != filename {
		return fmt.Errorf("%w: %q", common.ErrInvalidFilename, filename)
	}
	return nil
}

// sessionSink applies scan progress to the session's result collection.
// It is only called from the scanner's collector goroutine.
type sessionSink struct {
	session  *Session
	agg      *Aggregator
	scanID   string
	failures []model.ItemFailure
}

func (k *sessionSink) Planned(total int) {
	k.session.publish(events.Event{Type: events.ScanPlanned, ScanID: k.scanID, Total: total})
}

func (k *sessionSink) Classified(result model.ClassificationResult) {
	k.agg.Insert(result)
	k.session.publish(events.Event{
		Type:       events.ResultInserted,
		ScanID:     k.scanID,
		Filename:   result.Filename,
		Confidence: result.Confidence,
	})
}

func (k *sessionSink) Skipped(filename string, err error) {
	k.session.publish(events.Event{Type: events.ItemSkipped, ScanID: k.scanID, Filename: filename, Error: errString(err)})
}

func (k *sessionSink) Failed(filename string, err error) {
	k.failures = append(k.failures, model.ItemFailure{Filename: filename, Message: errString(err)})
	k.session.publish(events.Event{Type: events.ItemFailed, ScanID: k.scanID, Filename: filename, Error: errString(err)})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
