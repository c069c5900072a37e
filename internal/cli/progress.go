package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/schollz/progressbar/v3"

	"github.com/Veraticus/nsfw-sweep/internal/events"
)

// Progress renders a progress bar driven by scan events.
type Progress struct {
	writer  io.Writer
	bar     *progressbar.ProgressBar
	done    int
	flagged int
	// Threshold above which an inserted result counts as flagged.
	Threshold float64
}

// NewProgress creates a progress reporter writing to w.
func NewProgress(w io.Writer, threshold float64) *Progress {
	return &Progress{writer: w, Threshold: threshold}
}

// Run consumes events until the scan finishes, the channel closes or ctx
// is canceled.
func (p *Progress) Run(ctx context.Context, in <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-in:
			if !ok {
				return
			}
			if p.Handle(ev) {
				return
			}
		}
	}
}

// Handle applies one event and reports whether the scan has finished.
func (p *Progress) Handle(ev events.Event) bool {
	switch ev.Type {
	case events.ScanPlanned:
		p.initBar(ev.Total)
	case events.ResultInserted:
		if ev.Confidence > p.Threshold {
			p.flagged++
		}
		p.advance()
	case events.ItemSkipped, events.ItemFailed:
		p.advance()
	case events.ScanFinished:
		if p.bar != nil {
			if err := p.bar.Finish(); err != nil {
				slog.Warn("Failed to finish progress bar", "error", err)
			}
		}
		return true
	}
	return false
}

// Processed returns how many images have been accounted for.
func (p *Progress) Processed() int { return p.done }

// Flagged returns how many results scored above the threshold.
func (p *Progress) Flagged() int { return p.flagged }

func (p *Progress) initBar(total int) {
	p.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(p.writer),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan][bold]Scanning images...[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			if _, err := fmt.Fprintln(p.writer); err != nil {
				slog.Warn("Failed to write newline after progress bar", "error", err)
			}
		}),
	)
}

func (p *Progress) advance() {
	p.done++
	if p.bar != nil {
		if err := p.bar.Add(1); err != nil {
			slog.Warn("Failed to update progress bar", "error", err)
		}
	}
}
