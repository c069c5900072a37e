package classifier

import (
	"context"
	"errors"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/nsfw-sweep/internal/common"
)

func TestHTTPModel_Predict(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "image/png", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		img, err := png.Decode(r.Body)
		if !assert.NoError(t, err) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		assert.Equal(t, 32, img.Bounds().Dx())

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"predictions":[{"label":"SFW","score":0.2},{"label":"NSFW","score":0.8}]}`))
	}))
	defer server.Close()

	m, err := NewHTTPModel(Config{Endpoint: server.URL, APIKey: "secret", InputSize: 32})
	require.NoError(t, err)
	defer func() { _ = m.Close() }()

	obs, err := m.Predict(context.Background(), testImage())
	require.NoError(t, err)
	require.Len(t, obs, 2)
	assert.Equal(t, Observation{Identifier: "NSFW", Confidence: 0.8}, obs[1])

	conf, err := New(m, Config{}, nil).Classify(context.Background(), testImage())
	require.NoError(t, err)
	assert.InDelta(t, 0.8, conf, 1e-9)
}

func TestHTTPModel_Errors(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		status    int
		retryable bool
		rateLimit bool
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, retryable: true, rateLimit: true},
		{name: "server error", status: http.StatusBadGateway, body: "upstream down", retryable: true},
		{name: "client error", status: http.StatusBadRequest, body: "bad image"},
		{name: "malformed json", status: http.StatusOK, body: "{"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			m, err := NewHTTPModel(Config{Endpoint: server.URL})
			require.NoError(t, err)
			defer func() { _ = m.Close() }()

			_, err = m.Predict(context.Background(), testImage())
			require.Error(t, err)
			assert.Equal(t, tt.retryable, common.IsRetryable(err))
			assert.Equal(t, tt.rateLimit, errors.Is(err, common.ErrRateLimit))
		})
	}
}

func TestHTTPModel_MissingObservation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"predictions":[{"label":"SFW","score":1}]}`))
	}))
	defer server.Close()

	m, err := NewHTTPModel(Config{Endpoint: server.URL, RateLimit: 600})
	require.NoError(t, err)

	c := New(m, Config{}, nil)
	defer func() { _ = c.Close() }()

	_, err = c.Classify(context.Background(), testImage())
	assert.ErrorIs(t, err, common.ErrNoObservation)
}
