package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Veraticus/nsfw-sweep/internal/common"
	"github.com/Veraticus/nsfw-sweep/internal/model"
)

// SaveScan stores a finished scan together with its ordered results and failures.
func (s *SQLiteStorage) SaveScan(ctx context.Context, scan *model.ScanRecord) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateScan(scan); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO scans (id, directory, status, started_at, finished_at,
			discovered, eligible, skipped, classified, failed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		scan.ID, scan.Directory, string(scan.Status), scan.StartedAt.UTC(), scan.FinishedAt.UTC(),
		scan.Discovered, scan.Eligible, scan.Skipped, scan.Classified, scan.Failed,
	)
	if err != nil {
		return fmt.Errorf("failed to save scan: %w", err)
	}

	if len(scan.Results) > 0 {
		stmt, prepErr := tx.PrepareContext(ctx, `
			INSERT INTO scan_results (scan_id, rank, filename, confidence)
			VALUES (?, ?, ?, ?)`)
		if prepErr != nil {
			err = prepErr
			return fmt.Errorf("failed to prepare result statement: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for rank, result := range scan.Results {
			if _, err = stmt.ExecContext(ctx, scan.ID, rank, result.Filename, result.Confidence); err != nil {
				return fmt.Errorf("failed to save result %s: %w", result.Filename, err)
			}
		}
	}

	for _, failure := range scan.Failures {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO scan_failures (scan_id, filename, message)
			VALUES (?, ?, ?)`,
			scan.ID, failure.Filename, failure.Message,
		)
		if err != nil {
			return fmt.Errorf("failed to save failure %s: %w", failure.Filename, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit scan: %w", err)
	}
	return nil
}

// GetScan loads a scan with its results in stored rank order.
func (s *SQLiteStorage) GetScan(ctx context.Context, id string) (*model.ScanRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, directory, status, started_at, finished_at,
			discovered, eligible, skipped, classified, failed
		FROM scans WHERE id = ?`, id)

	scan, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("scan %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scan: %w", err)
	}

	if scan.Results, err = s.getResults(ctx, id); err != nil {
		return nil, err
	}
	if scan.Failures, err = s.getFailures(ctx, id); err != nil {
		return nil, err
	}

	return scan, nil
}

// ListScans returns the most recent scans without their result lists.
// A limit of zero or less returns every scan.
func (s *SQLiteStorage) ListScans(ctx context.Context, limit int) ([]model.ScanRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, directory, status, started_at, finished_at,
			discovered, eligible, skipped, classified, failed
		FROM scans
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list scans: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var scans []model.ScanRecord
	for rows.Next() {
		scan, scanErr := scanRecord(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan row: %w", scanErr)
		}
		scans = append(scans, *scan)
	}

	return scans, rows.Err()
}

// RecordDeletion appends a deletion to the audit trail.
func (s *SQLiteStorage) RecordDeletion(ctx context.Context, deletion model.Deletion) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(deletion.Filename, "filename"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deletions (scan_id, filename, confidence, deleted_at)
		VALUES (?, ?, ?, ?)`,
		deletion.ScanID, deletion.Filename, deletion.Confidence, deletion.DeletedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record deletion: %w", err)
	}
	return nil
}

// GetDeletions returns the deletions made after the given scan, oldest first.
func (s *SQLiteStorage) GetDeletions(ctx context.Context, scanID string) ([]model.Deletion, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT scan_id, filename, confidence, deleted_at
		FROM deletions
		WHERE scan_id = ?
		ORDER BY id`, scanID)
	if err != nil {
		return nil, fmt.Errorf("failed to query deletions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var deletions []model.Deletion
	for rows.Next() {
		var d model.Deletion
		if err := rows.Scan(&d.ScanID, &d.Filename, &d.Confidence, &d.DeletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan deletion: %w", err)
		}
		deletions = append(deletions, d)
	}

	return deletions, rows.Err()
}

func (s *SQLiteStorage) getResults(ctx context.Context, scanID string) ([]model.ClassificationResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT filename, confidence
		FROM scan_results
		WHERE scan_id = ?
		ORDER BY rank`, scanID)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := []model.ClassificationResult{}
	for rows.Next() {
		var r model.ClassificationResult
		if err := rows.Scan(&r.Filename, &r.Confidence); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, r)
	}

	return results, rows.Err()
}

func (s *SQLiteStorage) getFailures(ctx context.Context, scanID string) ([]model.ItemFailure, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT filename, message
		FROM scan_failures
		WHERE scan_id = ?
		ORDER BY rowid`, scanID)
	if err != nil {
		return nil, fmt.Errorf("failed to query failures: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var failures []model.ItemFailure
	for rows.Next() {
		var f model.ItemFailure
		if err := rows.Scan(&f.Filename, &f.Message); err != nil {
			return nil, fmt.Errorf("failed to scan failure: %w", err)
		}
		failures = append(failures, f)
	}

	return failures, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*model.ScanRecord, error) {
	var (
		scan   model.ScanRecord
		status string
	)
	err := row.Scan(&scan.ID, &scan.Directory, &status, &scan.StartedAt, &scan.FinishedAt,
		&scan.Discovered, &scan.Eligible, &scan.Skipped, &scan.Classified, &scan.Failed)
	if err != nil {
		return nil, err
	}
	scan.Status = model.ScanStatus(status)
	return &scan, nil
}
