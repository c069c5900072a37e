package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// View renders the review screen.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n\n")
	b.WriteString(m.table.View())
	b.WriteString("\n")
	if m.status != "" {
		b.WriteString(m.statusStyle.Render(m.status))
	}
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m Model) renderHeader() string {
	title := m.theme.Title.Render("🧹 nsfw-sweep")
	dir := m.theme.Subtitle.Render(displayDir(m.directory))

	var progress string
	if m.scanning {
		progress = fmt.Sprintf("%s %d/%d", m.spinner.View(), m.processed, m.total)
	} else {
		flagged := 0
		for _, r := range m.results {
			if r.Flagged(m.threshold) {
				flagged++
			}
		}
		progress = lipgloss.NewStyle().Foreground(m.theme.Muted).
			Render(fmt.Sprintf("%d results, %d flagged", len(m.results), flagged))
	}

	return lipgloss.JoinHorizontal(lipgloss.Top, title, "  ", dir, "  ", progress)
}
