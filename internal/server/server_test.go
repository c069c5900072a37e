package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/nsfw-sweep/internal/engine"
	"github.com/Veraticus/nsfw-sweep/internal/model"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fixedRunner reports the same scores for every scan and blocks on gate
// when one is set.
type fixedRunner struct {
	gate    chan struct{}
	results []model.ClassificationResult
}

func (r *fixedRunner) Scan(_ context.Context, dir string, sink engine.Sink) engine.Summary {
	sink.Planned(len(r.results))
	if r.gate != nil {
		<-r.gate
	}
	for _, res := range r.results {
		sink.Classified(res)
	}
	return engine.Summary{Directory: dir, Eligible: len(r.results), Classified: len(r.results)}
}

func newTestServer(t *testing.T, runner engine.Runner, opts ...engine.SessionOption) (*engine.Session, http.Handler) {
	t.Helper()
	session := engine.NewSession(runner, nil, opts...)
	return session, NewHandler(context.Background(), session, nil)
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func scanned(t *testing.T, opts ...engine.SessionOption) (*engine.Session, http.Handler, string) {
	t.Helper()
	dir := t.TempDir()
	for _, name := range []string{"a.png", "b.png"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600))
	}
	runner := &fixedRunner{results: []model.ClassificationResult{
		{Filename: "b.png", Confidence: 0.2},
		{Filename: "a.png", Confidence: 0.8},
	}}
	session, h := newTestServer(t, runner, opts...)
	_, err := session.Scan(context.Background(), dir)
	require.NoError(t, err)
	return session, h, dir
}

func TestHealth(t *testing.T) {
	_, h := newTestServer(t, &fixedRunner{})

	w := do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "available")
}

func TestStartScan(t *testing.T) {
	gate := make(chan struct{})
	session, h := newTestServer(t, &fixedRunner{gate: gate})
	dir := t.TempDir()

	w := do(t, h, http.MethodPost, "/scans", ScanRequest{Directory: dir})
	require.Equal(t, http.StatusAccepted, w.Code)

	var resp ScanResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, session.ScanID(), resp.ScanID)
	assert.Equal(t, dir, resp.Directory)

	w = do(t, h, http.MethodPost, "/scans", ScanRequest{Directory: dir})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, h, http.MethodGet, "/status", nil)
	var status StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "scanning", status.State)
	assert.Nil(t, status.LastSummary)

	close(gate)
	require.NoError(t, session.Wait(context.Background()))

	w = do(t, h, http.MethodGet, "/status", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "idle", status.State)
	assert.NotNil(t, status.LastSummary)
}

func TestStartScan_BadRequest(t *testing.T) {
	_, h := newTestServer(t, &fixedRunner{})

	w := do(t, h, http.MethodPost, "/scans", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Bad Request", resp.Error)
}

func TestResults(t *testing.T) {
	_, h, _ := scanned(t)

	w := do(t, h, http.MethodGet, "/results", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Results []model.ClassificationResult `json:"results"`
		Busy    bool                         `json:"busy"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Busy)
	assert.Equal(t, []model.ClassificationResult{
		{Filename: "a.png", Confidence: 0.8},
		{Filename: "b.png", Confidence: 0.2},
	}, body.Results)
}

func TestDeleteResult(t *testing.T) {
	t.Run("deletes file and entry", func(t *testing.T) {
		session, h, dir := scanned(t)

		w := do(t, h, http.MethodDelete, "/results/a.png", nil)
		assert.Equal(t, http.StatusNoContent, w.Code)

		_, err := os.Stat(filepath.Join(dir, "a.png"))
		assert.True(t, os.IsNotExist(err))
		assert.Len(t, session.Results(), 1)
	})

	t.Run("absent from collection", func(t *testing.T) {
		_, h, _ := scanned(t)
		w := do(t, h, http.MethodDelete, "/results/zzz.png", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("invalid filename", func(t *testing.T) {
		_, h, _ := scanned(t)
		w := do(t, h, http.MethodDelete, "/results/sub%5Ca.png", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("filesystem failure keeps entry", func(t *testing.T) {
		session, h, _ := scanned(t, engine.WithRemover(engine.RemoverFunc(func(string) error {
			return errors.New("read-only file system")
		})))

		w := do(t, h, http.MethodDelete, "/results/a.png", nil)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Contains(t, w.Body.String(), "read-only file system")
		assert.Len(t, session.Results(), 2)
	})

	t.Run("nothing scanned", func(t *testing.T) {
		_, h := newTestServer(t, &fixedRunner{})
		w := do(t, h, http.MethodDelete, "/results/a.png", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
