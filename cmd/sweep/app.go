package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Veraticus/nsfw-sweep/internal/classifier"
	"github.com/Veraticus/nsfw-sweep/internal/config"
	"github.com/Veraticus/nsfw-sweep/internal/engine"
	"github.com/Veraticus/nsfw-sweep/internal/events"
	"github.com/Veraticus/nsfw-sweep/internal/imaging"
	"github.com/Veraticus/nsfw-sweep/internal/storage"
)

// app holds everything a scanning command needs. The classifier is built
// once here and shared by every scan of the process.
type app struct {
	classifier *classifier.Classifier
	store      *storage.SQLiteStorage
	bus        *events.Bus
	session    *engine.Session
}

func openApp(ctx context.Context) (*app, error) {
	logger := slog.Default()

	clsCfg, err := config.LoadClassifierConfig()
	if err != nil {
		return nil, err
	}
	scanCfg, err := config.LoadScannerConfig()
	if err != nil {
		return nil, err
	}

	store, err := openStorage(ctx)
	if err != nil {
		return nil, err
	}

	cls, err := classifier.Open(clsCfg, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	bus := events.NewBus(logger)
	scanner := engine.NewScanner(imaging.NewFileDecoder(), cls, scanCfg, logger)
	session := engine.NewSession(scanner, logger,
		engine.WithRecorder(store),
		engine.WithPublisher(bus),
	)

	return &app{
		classifier: cls,
		store:      store,
		bus:        bus,
		session:    session,
	}, nil
}

// shutdown waits for a running scan to drain, then releases resources.
func (a *app) shutdown() error {
	_ = a.session.Wait(context.Background())
	return errors.Join(a.bus.Close(), a.classifier.Close(), a.store.Close())
}

func openStorage(ctx context.Context) (*storage.SQLiteStorage, error) {
	store, err := storage.NewSQLiteStorage(config.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("failed to open scan history: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to migrate scan history: %w", err)
	}
	return store, nil
}
