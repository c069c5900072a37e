package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Veraticus/nsfw-sweep/internal/events"
)

// listen waits for the next session event.
func listen(in <-chan events.Event) tea.Cmd {
	if in == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-in
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg{event: ev}
	}
}

func startScan(ctx context.Context, session Session, dir string) tea.Cmd {
	return func() tea.Msg {
		return scanStartedMsg{err: session.Start(ctx, dir)}
	}
}

func deleteFile(ctx context.Context, session Session, filename string) tea.Cmd {
	return func() tea.Msg {
		return deletedMsg{filename: filename, err: session.Delete(ctx, filename)}
	}
}

func revealFile(session Session, reveal func(string) error, filename string) tea.Cmd {
	return func() tea.Msg {
		path, err := session.Path(filename)
		if err == nil {
			err = reveal(path)
		}
		return revealedMsg{filename: filename, err: err}
	}
}
