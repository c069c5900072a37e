package classifier

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/nsfw-sweep/internal/common"
)

type fakeModel struct {
	predict func(ctx context.Context, img image.Image) ([]Observation, error)
	calls   atomic.Int32
	closed  atomic.Bool
}

func (m *fakeModel) Predict(ctx context.Context, img image.Image) ([]Observation, error) {
	m.calls.Add(1)
	return m.predict(ctx, img)
}

func (m *fakeModel) Close() error {
	m.closed.Store(true)
	return nil
}

func scoring(nsfw float64) *fakeModel {
	return &fakeModel{predict: func(context.Context, image.Image) ([]Observation, error) {
		return []Observation{
			{Identifier: "SFW", Confidence: 1 - nsfw},
			{Identifier: "NSFW", Confidence: nsfw},
		}, nil
	}}
}

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	return img
}

func TestClassify(t *testing.T) {
	ctx := context.Background()

	t.Run("selects the flagged observation", func(t *testing.T) {
		c := New(scoring(0.73), Config{}, nil)
		conf, err := c.Classify(ctx, testImage())
		require.NoError(t, err)
		assert.InDelta(t, 0.73, conf, 1e-9)
	})

	t.Run("missing observation is a per-call failure", func(t *testing.T) {
		m := &fakeModel{predict: func(context.Context, image.Image) ([]Observation, error) {
			return []Observation{{Identifier: "SFW", Confidence: 0.9}}, nil
		}}
		c := New(m, Config{}, nil)

		_, err := c.Classify(ctx, testImage())
		require.ErrorIs(t, err, common.ErrNoObservation)
		assert.Equal(t, "no NSFW observation found", err.Error())
	})

	t.Run("custom flagged label", func(t *testing.T) {
		m := &fakeModel{predict: func(context.Context, image.Image) ([]Observation, error) {
			return []Observation{{Identifier: "porn", Confidence: 0.4}}, nil
		}}
		c := New(m, Config{FlaggedLabel: "porn"}, nil)

		conf, err := c.Classify(ctx, testImage())
		require.NoError(t, err)
		assert.InDelta(t, 0.4, conf, 1e-9)
	})

	t.Run("invalid input", func(t *testing.T) {
		m := scoring(0.5)
		c := New(m, Config{}, nil)

		_, err := c.Classify(ctx, nil)
		assert.ErrorIs(t, err, common.ErrInvalidImage)

		_, err = c.Classify(ctx, image.NewRGBA(image.Rect(0, 0, 0, 0)))
		assert.ErrorIs(t, err, common.ErrInvalidImage)
		assert.Equal(t, int32(0), m.calls.Load())
	})

	t.Run("clamps confidence", func(t *testing.T) {
		conf, err := New(scoring(1.7), Config{}, nil).Classify(ctx, testImage())
		require.NoError(t, err)
		assert.InDelta(t, 1.0, conf, 1e-9)

		conf, err = New(scoring(-0.2), Config{}, nil).Classify(ctx, testImage())
		require.NoError(t, err)
		assert.InDelta(t, 0.0, conf, 1e-9)
	})

	t.Run("model error", func(t *testing.T) {
		m := &fakeModel{predict: func(context.Context, image.Image) ([]Observation, error) {
			return nil, errors.New("inference failed")
		}}
		_, err := New(m, Config{}, nil).Classify(ctx, testImage())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "inference failed")
	})
}

func TestClassify_Timeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	m := &fakeModel{predict: func(context.Context, image.Image) ([]Observation, error) {
		<-release
		return nil, nil
	}}
	c := New(m, Config{Timeout: 20 * time.Millisecond}, nil)

	start := time.Now()
	_, err := c.Classify(context.Background(), testImage())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestClose_WaitsForAbandonedCalls(t *testing.T) {
	release := make(chan struct{})
	m := &fakeModel{predict: func(context.Context, image.Image) ([]Observation, error) {
		<-release
		return []Observation{{Identifier: "NSFW", Confidence: 0.9}}, nil
	}}
	c := New(m, Config{Timeout: 10 * time.Millisecond}, nil)

	_, err := c.Classify(context.Background(), testImage())
	require.ErrorIs(t, err, context.DeadlineExceeded)

	closed := make(chan error, 1)
	go func() { closed <- c.Close() }()

	select {
	case <-closed:
		t.Fatal("Close returned while a model call was still running")
	case <-time.After(50 * time.Millisecond):
	}
	assert.False(t, m.closed.Load())

	close(release)
	select {
	case err := <-closed:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return after the model call finished")
	}
	assert.True(t, m.closed.Load())

	_, err = c.Classify(context.Background(), testImage())
	require.ErrorIs(t, err, common.ErrModelUnavailable)
	assert.Equal(t, int32(1), m.calls.Load())
	assert.NoError(t, c.Close())
}

func TestClassify_RetriesTransientFailures(t *testing.T) {
	var attempts atomic.Int32
	m := &fakeModel{predict: func(context.Context, image.Image) ([]Observation, error) {
		if attempts.Add(1) < 3 {
			return nil, &common.RetryableError{Err: errors.New("503"), Retryable: true}
		}
		return []Observation{{Identifier: "NSFW", Confidence: 0.2}}, nil
	}}
	c := New(m, Config{MaxAttempts: 3, RetryDelay: time.Millisecond}, nil)

	conf, err := c.Classify(context.Background(), testImage())
	require.NoError(t, err)
	assert.InDelta(t, 0.2, conf, 1e-9)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestClassify_NoRetryByDefault(t *testing.T) {
	m := &fakeModel{predict: func(context.Context, image.Image) ([]Observation, error) {
		return nil, &common.RetryableError{Err: errors.New("503"), Retryable: true}
	}}
	c := New(m, Config{}, nil)

	_, err := c.Classify(context.Background(), testImage())
	require.Error(t, err)
	assert.Equal(t, int32(1), m.calls.Load())
}

func TestClassify_Cache(t *testing.T) {
	m := scoring(0.6)
	c := New(m, Config{CacheTTL: time.Hour}, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		conf, err := c.Classify(ctx, testImage())
		require.NoError(t, err)
		assert.InDelta(t, 0.6, conf, 1e-9)
	}
	assert.Equal(t, int32(1), m.calls.Load())
	assert.Equal(t, 1, c.cache.size())

	// Different dimensions never share an entry.
	_, err := c.Classify(ctx, image.NewRGBA(image.Rect(0, 0, 16, 8)))
	require.NoError(t, err)
	assert.Equal(t, int32(2), m.calls.Load())

	require.NoError(t, c.Close())
	assert.True(t, m.closed.Load())
}

func TestClassify_CacheDisabledByDefault(t *testing.T) {
	m := scoring(0.6)
	c := New(m, Config{}, nil)

	for i := 0; i < 2; i++ {
		_, err := c.Classify(context.Background(), testImage())
		require.NoError(t, err)
	}
	assert.Nil(t, c.cache)
	assert.Equal(t, int32(2), m.calls.Load())
}

func TestSubmit(t *testing.T) {
	gate := make(chan struct{})
	m := &fakeModel{predict: func(context.Context, image.Image) ([]Observation, error) {
		<-gate
		return []Observation{{Identifier: "NSFW", Confidence: 0.9}}, nil
	}}
	c := New(m, Config{}, nil)

	// Submit must return before the model finishes.
	ch := c.Submit(context.Background(), testImage())
	select {
	case <-ch:
		t.Fatal("outcome delivered before the model returned")
	default:
	}

	close(gate)
	outcome, ok := <-ch
	require.True(t, ok)
	require.NoError(t, outcome.Err)
	assert.InDelta(t, 0.9, outcome.Confidence, 1e-9)

	_, ok = <-ch
	assert.False(t, ok, "exactly one outcome per submission")
}

func TestSubmit_Concurrent(t *testing.T) {
	c := New(scoring(0.5), Config{}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome := <-c.Submit(context.Background(), testImage())
			assert.NoError(t, outcome.Err)
		}()
	}
	wg.Wait()
}

func TestSubmit_ReportsFailure(t *testing.T) {
	c := New(scoring(0.5), Config{}, nil)
	outcome := <-c.Submit(context.Background(), nil)
	assert.ErrorIs(t, outcome.Err, common.ErrInvalidImage)
}

func TestSelectFlagged(t *testing.T) {
	obs := []Observation{{Identifier: "SFW", Confidence: 0.1}, {Identifier: "NSFW", Confidence: 0.9}}

	conf, err := SelectFlagged(obs, "NSFW")
	require.NoError(t, err)
	assert.InDelta(t, 0.9, conf, 1e-9)

	_, err = SelectFlagged(obs, "nsfw")
	assert.ErrorIs(t, err, common.ErrNoObservation)

	_, err = SelectFlagged(nil, "NSFW")
	assert.ErrorIs(t, err, common.ErrNoObservation)
}

func TestOpen(t *testing.T) {
	_, err := Open(Config{Backend: "tflite"}, nil)
	assert.ErrorIs(t, err, common.ErrModelUnavailable)

	_, err = Open(Config{Backend: "onnx", ModelPath: "/nonexistent/model.onnx", Labels: []string{"SFW", "NSFW"}}, nil)
	assert.ErrorIs(t, err, common.ErrModelUnavailable)

	_, err = Open(Config{Backend: "http"}, nil)
	assert.ErrorIs(t, err, common.ErrModelUnavailable)

	c, err := Open(Config{Backend: "http", Endpoint: "http://127.0.0.1:1/predict"}, nil)
	require.NoError(t, err)
	require.NoError(t, c.Close())
}
