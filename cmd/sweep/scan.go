package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/nsfw-sweep/internal/cli"
	"github.com/Veraticus/nsfw-sweep/internal/config"
	"github.com/Veraticus/nsfw-sweep/internal/engine"
	"github.com/Veraticus/nsfw-sweep/internal/model"
)

type scanOutput struct {
	ScanID         string                       `json:"scan_id"`
	Summary        engine.Summary               `json:"summary"`
	Results        []model.ClassificationResult `json:"results"`
	Deleted        []string                     `json:"deleted,omitempty"`
	DeleteFailures []model.ItemFailure          `json:"delete_failures,omitempty"`
}

func scanCmd() *cobra.Command {
	var (
		jsonOut     bool
		deleteAbove float64
	)

	cmd := &cobra.Command{
		Use:   "scan <directory>",
		Short: "Classify the images in a directory",
		Long: `Classify every eligible image directly inside a directory and print them
ordered from highest to lowest NSFW confidence.

Use --delete-above to remove every file scoring above a confidence without
prompting. Each failed removal is reported and the file stays listed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if deleteAbove < 0 || deleteAbove > 1 {
				return fmt.Errorf("--delete-above must be between 0 and 1, got %v", deleteAbove)
			}
			return runScan(cmd.Context(), cmd.OutOrStdout(), args[0], jsonOut, deleteAbove)
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "print results as JSON")
	cmd.Flags().Float64Var(&deleteAbove, "delete-above", 0, "delete files with confidence above this value (0 disables)")
	cmd.Flags().StringSlice("extensions", nil, "eligible filename suffixes (default: png)")
	cmd.Flags().Int("max-concurrency", 0, "maximum images classified at once (0 = unbounded)")
	cmd.Flags().Float64("threshold", 0, "confidence above which results are highlighted (default: 0.5)")

	_ = viper.BindPFlag("scan.extensions", cmd.Flags().Lookup("extensions"))
	_ = viper.BindPFlag("scan.max_concurrency", cmd.Flags().Lookup("max-concurrency"))
	_ = viper.BindPFlag("scan.threshold", cmd.Flags().Lookup("threshold"))

	return cmd
}

func runScan(ctx context.Context, w io.Writer, dir string, jsonOut bool, deleteAbove float64) error {
	dir, err := config.ScanDirectory(dir)
	if err != nil {
		return err
	}

	interrupts := cli.NewInterruptHandler(os.Stderr)
	ctx = interrupts.HandleInterrupts(ctx)

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.shutdown(); err != nil {
			slog.Warn("Failed to close resources", "error", err)
		}
	}()

	threshold := config.Threshold()
	progress := cli.NewProgress(os.Stderr, threshold)
	progressDone := make(chan struct{})

	subCtx, unsubscribe := context.WithCancel(context.WithoutCancel(ctx))
	defer unsubscribe()

	if jsonOut {
		close(progressDone)
	} else {
		ch, err := a.bus.Subscribe(subCtx)
		if err != nil {
			return err
		}
		go func() {
			defer close(progressDone)
			progress.Run(subCtx, ch)
		}()
	}

	summary, err := a.session.Scan(ctx, dir)
	if err != nil {
		return err
	}
	<-progressDone
	unsubscribe()

	out := scanOutput{
		ScanID:  a.session.ScanID(),
		Summary: summary,
	}

	if deleteAbove > 0 {
		if interrupts.WasInterrupted() {
			slog.Warn("Skipping deletion after interrupt")
		} else {
			out.Deleted, out.DeleteFailures = deleteAboveThreshold(context.WithoutCancel(ctx), a.session, deleteAbove)
		}
	}
	out.Results = a.session.Results()

	if jsonOut {
		return writeJSON(w, out)
	}

	flagged := 0
	for _, r := range out.Results {
		if r.Flagged(threshold) {
			flagged++
		}
	}

	fmt.Fprintln(w, cli.FormatTitle("Results for "+dir))
	fmt.Fprintln(w, cli.RenderResults(out.Results, threshold))
	for _, name := range out.Deleted {
		fmt.Fprintln(w, cli.FormatSuccess("Deleted "+name))
	}
	for _, f := range out.DeleteFailures {
		fmt.Fprintln(w, cli.FormatError(fmt.Sprintf("Could not delete %s: %s", f.Filename, f.Message)))
	}
	fmt.Fprintln(w, cli.RenderSummary(summary, flagged))
	return nil
}

// deleteAboveThreshold removes every listed file scoring above threshold.
func deleteAboveThreshold(ctx context.Context, session *engine.Session, threshold float64) ([]string, []model.ItemFailure) {
	var (
		deleted  []string
		failures []model.ItemFailure
	)
	for _, r := range session.Results() {
		if r.Confidence <= threshold {
			// Results are ordered, nothing further qualifies.
			break
		}
		if err := session.Delete(ctx, r.Filename); err != nil {
			failures = append(failures, model.ItemFailure{Filename: r.Filename, Message: err.Error()})
			continue
		}
		deleted = append(deleted, r.Filename)
	}
	return deleted, failures
}
