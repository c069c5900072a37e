package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Veraticus/nsfw-sweep/internal/cli"
	"github.com/Veraticus/nsfw-sweep/internal/config"
	"github.com/Veraticus/nsfw-sweep/internal/tui"
)

func reviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "review <directory>",
		Short: "Scan a directory and review the results interactively",
		Long: `Scan a directory and show the results live, highest confidence first.

Keys: d deletes the selected file, o reveals it in the file manager,
r scans the directory again, q quits. Logs go to --log-file, if set.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReview(cmd.Context(), args[0])
		},
	}
}

func runReview(ctx context.Context, dir string) error {
	dir, err := config.ScanDirectory(dir)
	if err != nil {
		return err
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		// Quitting stops dispatch; in-flight images drain before shutdown.
		cancel()
		if err := a.shutdown(); err != nil {
			slog.Warn("Failed to close resources", "error", err)
		}
	}()

	ch, err := a.bus.Subscribe(ctx)
	if err != nil {
		return err
	}

	return tui.Run(ctx, tui.Config{
		Session:   a.session,
		Events:    ch,
		Reveal:    cli.Reveal,
		Directory: dir,
		Threshold: config.Threshold(),
		AutoStart: true,
	})
}
