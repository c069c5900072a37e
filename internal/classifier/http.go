package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net/http"
	"time"

	"github.com/Veraticus/nsfw-sweep/internal/common"
	"github.com/Veraticus/nsfw-sweep/internal/imaging"
)

// HTTPModel scores images through a remote inference endpoint.
// It posts the bitmap as PNG and expects {"predictions":[{"label":..,"score":..}]}.
type HTTPModel struct {
	httpClient  *http.Client
	rateLimiter *rateLimiter
	endpoint    string
	apiKey      string
	inputSize   int
}

// NewHTTPModel creates a client for a remote inference endpoint.
func NewHTTPModel(cfg Config) (*HTTPModel, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("inference endpoint is required")
	}

	m := &HTTPModel{
		endpoint:  cfg.Endpoint,
		apiKey:    cfg.APIKey,
		inputSize: cfg.InputSize,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	if cfg.RateLimit > 0 {
		m.rateLimiter = newRateLimiter(cfg.RateLimit)
	}
	return m, nil
}

// Predict sends img to the endpoint and returns its observations.
func (m *HTTPModel) Predict(ctx context.Context, img image.Image) ([]Observation, error) {
	if m.rateLimiter != nil {
		if err := m.rateLimiter.wait(ctx); err != nil {
			return nil, err
		}
	}

	if m.inputSize > 0 {
		img = imaging.Resize(img, m.inputSize)
	}
	payload, err := imaging.EncodePNG(img)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "image/png")
	req.Header.Set("Accept", "application/json")
	if m.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+m.apiKey)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, &common.RetryableError{Err: fmt.Errorf("request failed: %w", err), Retryable: ctx.Err() == nil}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &common.RetryableError{Err: common.ErrRateLimit, Retryable: true}
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, &common.RetryableError{
			Err:       fmt.Errorf("inference API error (status %d): %s", resp.StatusCode, string(body)),
			Retryable: true,
		}
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("inference API error (status %d): %s", resp.StatusCode, string(body))
	}

	var response predictionResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	observations := make([]Observation, 0, len(response.Predictions))
	for _, p := range response.Predictions {
		observations = append(observations, Observation{Identifier: p.Label, Confidence: p.Score})
	}
	return observations, nil
}

// Close stops the rate limiter and idle connections.
func (m *HTTPModel) Close() error {
	if m.rateLimiter != nil {
		m.rateLimiter.Close()
	}
	m.httpClient.CloseIdleConnections()
	return nil
}

type predictionResponse struct {
	Predictions []struct {
		Label string  `json:"label"`
		Score float64 `json:"score"`
	} `json:"predictions"`
}
