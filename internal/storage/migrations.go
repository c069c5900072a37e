package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial scan history schema",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS scans (
					id TEXT PRIMARY KEY,
					directory TEXT NOT NULL,
					status TEXT NOT NULL,
					started_at DATETIME NOT NULL,
					finished_at DATETIME NOT NULL,
					discovered INTEGER NOT NULL DEFAULT 0,
					eligible INTEGER NOT NULL DEFAULT 0,
					skipped INTEGER NOT NULL DEFAULT 0,
					classified INTEGER NOT NULL DEFAULT 0
				)`,
				`CREATE INDEX idx_scans_started_at ON scans(started_at)`,

				`CREATE TABLE IF NOT EXISTS scan_results (
					scan_id TEXT NOT NULL,
					rank INTEGER NOT NULL,
					filename TEXT NOT NULL,
					confidence REAL NOT NULL,
					PRIMARY KEY (scan_id, rank),
					FOREIGN KEY (scan_id) REFERENCES scans(id) ON DELETE CASCADE
				)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Track per-item failures",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`ALTER TABLE scans ADD COLUMN failed INTEGER NOT NULL DEFAULT 0`,
				`CREATE TABLE IF NOT EXISTS scan_failures (
					scan_id TEXT NOT NULL,
					filename TEXT NOT NULL,
					message TEXT NOT NULL,
					FOREIGN KEY (scan_id) REFERENCES scans(id) ON DELETE CASCADE
				)`,
				`CREATE INDEX idx_scan_failures_scan ON scan_failures(scan_id)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     3,
		Description: "Record deletions",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS deletions (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					scan_id TEXT NOT NULL,
					filename TEXT NOT NULL,
					confidence REAL NOT NULL,
					deleted_at DATETIME NOT NULL
				)`,
				`CREATE INDEX idx_deletions_scan ON deletions(scan_id)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
}

// Migrate applies all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var currentVersion int
	err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Debug("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	var finalVersion int
	err = s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}
