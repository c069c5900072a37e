package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/nsfw-sweep/internal/common"
	"github.com/Veraticus/nsfw-sweep/internal/config"
	"github.com/Veraticus/nsfw-sweep/internal/engine"
	"github.com/Veraticus/nsfw-sweep/internal/model"
	"github.com/Veraticus/nsfw-sweep/internal/testutil"
)

type fixedRunner struct {
	results []model.ClassificationResult
}

func (r fixedRunner) Scan(_ context.Context, dir string, sink engine.Sink) engine.Summary {
	sink.Planned(len(r.results))
	for _, res := range r.results {
		sink.Classified(res)
	}
	return engine.Summary{Directory: dir, Classified: len(r.results)}
}

func scannedSession(t *testing.T, opts ...engine.SessionOption) (*engine.Session, string) {
	t.Helper()
	dir := t.TempDir()
	results := []model.ClassificationResult{
		{Filename: "a.png", Confidence: 0.95},
		{Filename: "b.png", Confidence: 0.7},
		{Filename: "c.png", Confidence: 0.3},
	}
	for _, r := range results {
		require.NoError(t, os.WriteFile(filepath.Join(dir, r.Filename), []byte("x"), 0o600))
	}

	session := engine.NewSession(fixedRunner{results: results}, nil, opts...)
	_, err := session.Scan(context.Background(), dir)
	require.NoError(t, err)
	return session, dir
}

func TestDeleteAboveThreshold(t *testing.T) {
	session, dir := scannedSession(t)

	deleted, failures := deleteAboveThreshold(context.Background(), session, 0.5)

	assert.Equal(t, []string{"a.png", "b.png"}, deleted)
	assert.Empty(t, failures)
	assert.Equal(t, []model.ClassificationResult{{Filename: "c.png", Confidence: 0.3}}, session.Results())

	_, err := os.Stat(filepath.Join(dir, "c.png"))
	assert.NoError(t, err)
}

func TestDeleteAboveThreshold_FailuresKeepEntries(t *testing.T) {
	session, _ := scannedSession(t, engine.WithRemover(engine.RemoverFunc(func(path string) error {
		if filepath.Base(path) == "a.png" {
			return errors.New("operation not permitted")
		}
		return os.Remove(path)
	})))

	deleted, failures := deleteAboveThreshold(context.Background(), session, 0.5)

	assert.Equal(t, []string{"b.png"}, deleted)
	require.Len(t, failures, 1)
	assert.Equal(t, "a.png", failures[0].Filename)
	assert.Contains(t, failures[0].Message, "operation not permitted")
	assert.Len(t, session.Results(), 2)
}

func TestHistory(t *testing.T) {
	viper.Reset()
	config.SetDefaults()
	t.Cleanup(viper.Reset)

	ctx := context.Background()
	store := testutil.SetupTestDB(t)

	var buf bytes.Buffer
	require.NoError(t, listScans(ctx, &buf, store, 10, false))
	assert.Contains(t, buf.String(), "No scans recorded yet")

	scan := testutil.NewScan("scan-1", "/pics").
		WithResult("a.png", 0.8).
		WithFailure("b.png", "no NSFW observation found").
		Build()
	require.NoError(t, store.SaveScan(ctx, scan))
	require.NoError(t, store.SaveScan(ctx, testutil.NewScan("scan-0", "/older").
		StartedAt(scan.StartedAt.Add(-time.Hour)).
		Interrupted().
		Build()))
	require.NoError(t, store.RecordDeletion(ctx, model.Deletion{
		ScanID: "scan-1", Filename: "a.png", Confidence: 0.8, DeletedAt: scan.FinishedAt.Add(time.Minute),
	}))

	buf.Reset()
	require.NoError(t, listScans(ctx, &buf, store, 10, false))
	assert.Contains(t, buf.String(), "/pics")
	assert.Less(t, strings.Index(buf.String(), "scan-1"), strings.Index(buf.String(), "scan-0"))
	assert.Contains(t, buf.String(), "INTERRUPTED")

	buf.Reset()
	require.NoError(t, showScan(ctx, &buf, store, "scan-1", false))
	out := buf.String()
	assert.Contains(t, out, "80.0%")
	assert.Contains(t, out, "b.png: no NSFW observation found")
	assert.Contains(t, out, "deleted a.png")

	buf.Reset()
	require.NoError(t, showScan(ctx, &buf, store, "scan-1", true))
	var decoded struct {
		ID        string           `json:"id"`
		Deletions []model.Deletion `json:"deletions"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "scan-1", decoded.ID)
	assert.Len(t, decoded.Deletions, 1)

	err := showScan(ctx, &buf, store, "missing", false)
	assert.ErrorIs(t, err, common.ErrNotFound)
}
