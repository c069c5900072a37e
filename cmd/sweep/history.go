package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/nsfw-sweep/internal/cli"
	"github.com/Veraticus/nsfw-sweep/internal/common"
	"github.com/Veraticus/nsfw-sweep/internal/config"
	"github.com/Veraticus/nsfw-sweep/internal/model"
)

func historyCmd() *cobra.Command {
	var (
		limit   int
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "history [scan-id]",
		Short: "List past scans or show one in detail",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer func() {
				if err := store.Close(); err != nil {
					slog.Warn("Failed to close scan history", "error", err)
				}
			}()

			if len(args) == 1 {
				return showScan(cmd.Context(), cmd.OutOrStdout(), store, args[0], jsonOut)
			}
			return listScans(cmd.Context(), cmd.OutOrStdout(), store, limit, jsonOut)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "number of scans to list (0 = all)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print as JSON")

	return cmd
}

type historyStore interface {
	ListScans(ctx context.Context, limit int) ([]model.ScanRecord, error)
	GetScan(ctx context.Context, id string) (*model.ScanRecord, error)
	GetDeletions(ctx context.Context, scanID string) ([]model.Deletion, error)
}

func listScans(ctx context.Context, w io.Writer, store historyStore, limit int, jsonOut bool) error {
	scans, err := store.ListScans(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to list scans: %w", err)
	}

	if jsonOut {
		return writeJSON(w, scans)
	}

	if len(scans) == 0 {
		fmt.Fprintln(w, cli.FormatInfo("No scans recorded yet."))
		return nil
	}

	fmt.Fprintln(w, cli.TableHeaderStyle.Render(
		fmt.Sprintf("%-36s  %-16s  %-11s  %6s  %6s  %s", "ID", "Started", "Status", "Images", "Failed", "Directory")))
	for _, s := range scans {
		fmt.Fprintf(w, "%-36s  %-16s  %-11s  %6d  %6d  %s\n",
			s.ID, s.StartedAt.Local().Format("2006-01-02 15:04"), s.Status, s.Classified, s.Failed, s.Directory)
	}
	return nil
}

func showScan(ctx context.Context, w io.Writer, store historyStore, id string, jsonOut bool) error {
	scan, err := store.GetScan(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.NewUserError(fmt.Sprintf("no scan with id %s", id), err)
		}
		return fmt.Errorf("failed to load scan: %w", err)
	}

	deletions, err := store.GetDeletions(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load deletions: %w", err)
	}

	if jsonOut {
		return writeJSON(w, struct {
			*model.ScanRecord
			Deletions []model.Deletion `json:"deletions"`
		}{scan, deletions})
	}

	details := fmt.Sprintf("  %s Directory: %s\n", cli.FolderIcon, scan.Directory) +
		fmt.Sprintf("  • Started: %s (%s)\n", scan.StartedAt.Local().Format(time.RFC1123), scan.Duration().Round(time.Millisecond)) +
		fmt.Sprintf("  • Status: %s\n", scan.Status) +
		fmt.Sprintf("  • Eligible: %d of %d, skipped %d\n", scan.Eligible, scan.Discovered, scan.Skipped) +
		fmt.Sprintf("  • Classified: %d, failed %d", scan.Classified, scan.Failed)
	fmt.Fprintln(w, cli.RenderBox("Scan "+scan.ID, details))

	fmt.Fprintln(w, cli.RenderResults(scan.Results, config.Threshold()))

	for _, f := range scan.Failures {
		fmt.Fprintln(w, cli.FormatWarning(fmt.Sprintf("%s: %s", f.Filename, f.Message)))
	}
	for _, d := range deletions {
		fmt.Fprintln(w, cli.SubtleStyle.Render(fmt.Sprintf("deleted %s (%.1f%%) at %s",
			d.Filename, d.Confidence*100, d.DeletedAt.Local().Format(time.Kitchen))))
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
