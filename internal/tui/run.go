package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
)

// Run shows the review screen until the user quits or ctx is canceled.
func Run(ctx context.Context, cfg Config) error {
	if cfg.Session == nil {
		return fmt.Errorf("session is required")
	}

	p := tea.NewProgram(New(ctx, cfg), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("review screen failed: %w", err)
	}
	return nil
}
