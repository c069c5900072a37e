package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/Veraticus/nsfw-sweep/internal/engine"
	"github.com/Veraticus/nsfw-sweep/internal/model"
)

// RenderResults formats results as a two column table, highest confidence
// first as given. Confidences above threshold are shown in red.
func RenderResults(results []model.ClassificationResult, threshold float64) string {
	if len(results) == 0 {
		return SubtleStyle.Render("No images classified.")
	}

	width := len("Filename")
	for _, r := range results {
		width = max(width, lipgloss.Width(r.Filename))
	}

	nameCol := TableCellStyle.Width(width + 2)
	var b strings.Builder
	b.WriteString(TableHeaderStyle.Render(nameCol.Render("Filename") + "Confidence"))
	b.WriteString("\n")
	for _, r := range results {
		b.WriteString(nameCol.Render(r.Filename))
		b.WriteString(ConfidenceStyle(r.Confidence, threshold).Render(r.Percent()))
		b.WriteString("\n")
	}
	return b.String()
}

// RenderSummary formats scan counters in a box.
func RenderSummary(summary engine.Summary, flagged int) string {
	content := fmt.Sprintf("  %s Directory: %s\n", FolderIcon, summary.Directory) +
		fmt.Sprintf("  • Eligible images: %d of %d entries\n", summary.Eligible, summary.Discovered) +
		fmt.Sprintf("  • Classified: %d (%d flagged)\n", summary.Classified, flagged) +
		fmt.Sprintf("  • Skipped: %d\n", summary.Skipped) +
		fmt.Sprintf("  • Failed: %d\n", summary.Failed) +
		fmt.Sprintf("  • Time taken: %s", summary.Duration.Round(time.Millisecond))

	title := "Scan Complete"
	if summary.Interrupted {
		title = "Scan Interrupted"
	}
	return RenderBox(title, content)
}
