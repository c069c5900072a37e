package classifier

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/Veraticus/nsfw-sweep/internal/common"
)

// DefaultFlaggedLabel is the observation identifier that carries the NSFW score.
const DefaultFlaggedLabel = "NSFW"

// Observation is one category score produced by a model.
type Observation struct {
	Identifier string
	Confidence float64
}

// Model is an opaque image scorer.
type Model interface {
	Predict(ctx context.Context, img image.Image) ([]Observation, error)
	Close() error
}

// Outcome is the result of an asynchronous classification.
type Outcome struct {
	Err        error
	Confidence float64
}

// Config holds configuration for the model and the classifier around it.
type Config struct {
	Backend      string
	ModelPath    string
	RuntimePath  string
	InputName    string
	OutputName   string
	Layout       string
	FlaggedLabel string
	Endpoint     string
	APIKey       string
	Labels       []string
	Mean         []float64
	Std          []float64
	InputSize    int
	MaxAttempts  int
	RateLimit    int
	Timeout      time.Duration
	RetryDelay   time.Duration
	CacheTTL     time.Duration
}

// Classifier wraps a Model and extracts the flagged confidence from its observations.
// It is safe for concurrent use.
type Classifier struct {
	model     Model
	cache     *scoreCache
	logger    *slog.Logger
	label     string
	retryOpts common.RetryOptions
	timeout   time.Duration

	// inflight counts model calls still running, including ones a timeout
	// has abandoned. Close waits for them before releasing the model.
	mu       sync.Mutex
	inflight sync.WaitGroup
	closed   bool
}

// New creates a classifier around an already constructed model.
func New(m Model, cfg Config, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}

	label := cfg.FlaggedLabel
	if label == "" {
		label = DefaultFlaggedLabel
	}

	retryOpts := common.RetryOptions{
		MaxAttempts:  cfg.MaxAttempts,
		InitialDelay: cfg.RetryDelay,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
	if retryOpts.MaxAttempts <= 0 {
		retryOpts.MaxAttempts = 1
	}
	if retryOpts.InitialDelay <= 0 {
		retryOpts.InitialDelay = time.Second
	}

	c := &Classifier{
		model:     m,
		logger:    logger,
		label:     label,
		retryOpts: retryOpts,
		timeout:   cfg.Timeout,
	}
	if cfg.CacheTTL > 0 {
		c.cache = newScoreCache(cfg.CacheTTL)
	}
	return c
}

// Classify returns the flagged confidence for img in [0,1].
func (c *Classifier) Classify(ctx context.Context, img image.Image) (float64, error) {
	if img == nil {
		return 0, fmt.Errorf("%w: nil image", common.ErrInvalidImage)
	}
	if b := img.Bounds(); b.Dx() <= 0 || b.Dy() <= 0 {
		return 0, fmt.Errorf("%w: empty bounds", common.ErrInvalidImage)
	}

	var key string
	if c.cache != nil {
		if k, err := cacheKey(img); err == nil {
			key = k
			if conf, ok := c.cache.get(key); ok {
				c.logger.Debug("Using cached classification", "key", key)
				return conf, nil
			}
		}
	}

	var observations []Observation
	err := common.WithRetry(ctx, func() error {
		obs, predictErr := c.predict(ctx, img)
		if predictErr != nil {
			return predictErr
		}
		observations = obs
		return nil
	}, c.retryOpts)
	if err != nil {
		return 0, fmt.Errorf("classification failed: %w", err)
	}

	conf, err := SelectFlagged(observations, c.label)
	if err != nil {
		return 0, err
	}

	if c.cache != nil && key != "" {
		c.cache.set(key, conf)
	}
	return conf, nil
}

// Submit starts classification in the background. The returned channel
// receives exactly one outcome and is never closed before that.
func (c *Classifier) Submit(ctx context.Context, img image.Image) <-chan Outcome {
	out := make(chan Outcome, 1)
	go func() {
		conf, err := c.Classify(ctx, img)
		out <- Outcome{Confidence: conf, Err: err}
		close(out)
	}()
	return out
}

// Close stops accepting work, waits for model calls still running, and
// releases the underlying model. Later calls return ErrModelUnavailable.
func (c *Classifier) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.inflight.Wait()
	if c.cache != nil {
		c.cache.flush()
	}
	return c.model.Close()
}

// predict runs one model call under the per-call timeout. The model is
// abandoned, not interrupted, when the deadline passes first.
func (c *Classifier) predict(ctx context.Context, img image.Image) ([]Observation, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	type prediction struct {
		err error
		obs []Observation
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: classifier closed", common.ErrModelUnavailable)
	}
	c.inflight.Add(1)
	c.mu.Unlock()

	done := make(chan prediction, 1)
	go func() {
		defer c.inflight.Done()
		obs, err := c.model.Predict(ctx, img)
		done <- prediction{obs: obs, err: err}
	}()

	select {
	case p := <-done:
		return p.obs, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SelectFlagged picks the observation whose identifier equals label and
// returns its confidence clamped into [0,1].
func SelectFlagged(observations []Observation, label string) (float64, error) {
	for _, obs := range observations {
		if obs.Identifier == label {
			return clamp(obs.Confidence), nil
		}
	}
	return 0, common.ErrNoObservation
}

func clamp(v float64) float64 {
	switch {
	case v < 0 || math.IsNaN(v):
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
