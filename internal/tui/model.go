// Package tui implements the interactive review screen for scan results.
package tui

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Veraticus/nsfw-sweep/internal/common"
	"github.com/Veraticus/nsfw-sweep/internal/engine"
	"github.com/Veraticus/nsfw-sweep/internal/events"
	"github.com/Veraticus/nsfw-sweep/internal/model"
	"github.com/Veraticus/nsfw-sweep/internal/tui/themes"
)

// Session is the part of engine.Session the review screen drives.
type Session interface {
	Start(ctx context.Context, dir string) error
	Delete(ctx context.Context, filename string) error
	Path(filename string) (string, error)
	Results() []model.ClassificationResult
	IsBusy() bool
	Directory() string
	LastSummary() (engine.Summary, bool)
}

// Config holds TUI configuration.
type Config struct {
	Session   Session
	Events    <-chan events.Event
	Reveal    func(path string) error
	Theme     themes.Theme
	Directory string
	Threshold float64
	Width     int
	Height    int
	// AutoStart scans Directory as soon as the program starts.
	AutoStart bool
}

// Model holds the review screen state.
type Model struct {
	ctx         context.Context
	session     Session
	events      <-chan events.Event
	reveal      func(string) error
	theme       themes.Theme
	keys        KeyMap
	help        help.Model
	table       table.Model
	spinner     spinner.Model
	status      string
	statusStyle lipgloss.Style
	directory   string
	results     []model.ClassificationResult
	threshold   float64
	processed   int
	total       int
	width       int
	height      int
	autoStart   bool
	scanning    bool
	quitting    bool
}

// New creates the review model.
func New(ctx context.Context, cfg Config) Model {
	if cfg.Width == 0 {
		cfg.Width = 80
	}
	if cfg.Height == 0 {
		cfg.Height = 24
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = model.FlaggedThreshold
	}
	if cfg.Theme.Primary == "" {
		cfg.Theme = themes.Default
	}
	if cfg.Reveal == nil {
		cfg.Reveal = func(string) error { return errors.New("reveal is not available") }
	}

	t := table.New(
		table.WithColumns(columns(cfg.Width)),
		table.WithFocused(true),
		table.WithHeight(tableHeight(cfg.Height)),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(cfg.Theme.Border).
		BorderBottom(true).
		Bold(false)
	s.Selected = cfg.Theme.Selected
	t.SetStyles(s)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(cfg.Theme.Primary)

	m := Model{
		ctx:         ctx,
		session:     cfg.Session,
		events:      cfg.Events,
		reveal:      cfg.Reveal,
		theme:       cfg.Theme,
		keys:        DefaultKeyMap(),
		help:        help.New(),
		table:       t,
		spinner:     sp,
		statusStyle: cfg.Theme.StatusInfo,
		directory:   cfg.Directory,
		threshold:   cfg.Threshold,
		width:       cfg.Width,
		height:      cfg.Height,
		autoStart:   cfg.AutoStart,
	}
	if m.directory == "" {
		m.directory = cfg.Session.Directory()
	}
	m.refresh()
	return m
}

// Init starts listening for events and, when configured, the first scan.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{listen(m.events)}
	if m.autoStart && m.directory != "" {
		cmds = append(cmds, startScan(m.ctx, m.session, m.directory))
	}
	return tea.Batch(cmds...)
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetColumns(columns(m.width))
		m.table.SetHeight(tableHeight(m.height))
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		if cmd, handled := m.handleKey(msg); handled {
			return m, cmd
		}

	case eventMsg:
		return m, tea.Batch(m.handleEvent(msg.event), listen(m.events))

	case eventsClosedMsg:
		m.events = nil
		return m, nil

	case scanStartedMsg:
		if msg.err != nil {
			if errors.Is(msg.err, common.ErrScanInProgress) {
				m.setStatus("A scan is already running", m.theme.StatusWarning)
			} else {
				m.setStatus(fmt.Sprintf("Failed to start scan: %v", msg.err), m.theme.StatusError)
			}
			return m, nil
		}
		m.scanning = true
		m.processed, m.total = 0, 0
		m.setStatus("Scanning "+m.directory, m.theme.StatusInfo)
		m.refresh()
		return m, m.spinner.Tick

	case deletedMsg:
		if msg.err != nil {
			m.setStatus(fmt.Sprintf("Could not delete %s: %v", msg.filename, msg.err), m.theme.StatusError)
		} else {
			m.setStatus("Deleted "+msg.filename, m.theme.StatusSuccess)
		}
		m.refresh()
		return m, nil

	case revealedMsg:
		if msg.err != nil {
			m.setStatus(fmt.Sprintf("Could not reveal %s: %v", msg.filename, msg.err), m.theme.StatusError)
		}
		return m, nil

	case spinner.TickMsg:
		if !m.scanning {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return tea.Quit, true

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return nil, true

	case key.Matches(msg, m.keys.Rescan):
		if m.directory == "" {
			m.setStatus("No directory to scan", m.theme.StatusWarning)
			return nil, true
		}
		if m.session.IsBusy() {
			m.setStatus("A scan is already running", m.theme.StatusWarning)
			return nil, true
		}
		return startScan(m.ctx, m.session, m.directory), true

	case key.Matches(msg, m.keys.Delete):
		filename, ok := m.selected()
		if !ok {
			return nil, true
		}
		return deleteFile(m.ctx, m.session, filename), true

	case key.Matches(msg, m.keys.Reveal):
		filename, ok := m.selected()
		if !ok {
			return nil, true
		}
		return revealFile(m.session, m.reveal, filename), true
	}
	return nil, false
}

func (m *Model) handleEvent(ev events.Event) tea.Cmd {
	var cmd tea.Cmd
	switch ev.Type {
	case events.ScanStarted:
		if !m.scanning {
			cmd = m.spinner.Tick
		}
		m.scanning = true
		m.processed, m.total = 0, 0
		m.directory = ev.Directory
		m.setStatus("Scanning "+ev.Directory, m.theme.StatusInfo)
	case events.ScanPlanned:
		m.total = ev.Total
	case events.ResultInserted, events.ItemSkipped, events.ItemFailed:
		m.processed++
	case events.ScanFinished:
		m.scanning = false
		summary, ok := m.session.LastSummary()
		switch {
		case ok && summary.Interrupted:
			m.setStatus(fmt.Sprintf("Scan interrupted after %d images", summary.Classified), m.theme.StatusWarning)
		case ok:
			m.setStatus(fmt.Sprintf("Scan finished: %d classified, %d skipped, %d failed",
				summary.Classified, summary.Skipped, summary.Failed), m.theme.StatusSuccess)
		default:
			m.setStatus("Scan finished", m.theme.StatusSuccess)
		}
	}
	m.refresh()
	return cmd
}

// refresh mirrors the session's ordered results into the table.
func (m *Model) refresh() {
	m.results = m.session.Results()
	rows := make([]table.Row, 0, len(m.results))
	for _, r := range m.results {
		flag := ""
		if r.Flagged(m.threshold) {
			flag = "NSFW"
		}
		rows = append(rows, table.Row{r.Filename, r.Percent(), flag})
	}
	m.table.SetRows(rows)
	if c := m.table.Cursor(); c >= len(rows) && len(rows) > 0 {
		m.table.SetCursor(len(rows) - 1)
	}
}

func (m *Model) selected() (string, bool) {
	c := m.table.Cursor()
	if c < 0 || c >= len(m.results) {
		return "", false
	}
	return m.results[c].Filename, true
}

func (m *Model) setStatus(text string, style lipgloss.Style) {
	m.status = text
	m.statusStyle = style
}

// Results returns the rows currently shown, in display order.
func (m Model) Results() []model.ClassificationResult { return m.results }

// Scanning reports whether the screen believes a scan is running.
func (m Model) Scanning() bool { return m.scanning }

// Status returns the current status line text.
func (m Model) Status() string { return m.status }

func columns(width int) []table.Column {
	name := max(20, width-30)
	return []table.Column{
		{Title: "Filename", Width: name},
		{Title: "Confidence", Width: 10},
		{Title: "Flag", Width: 6},
	}
}

func tableHeight(height int) int {
	return max(3, height-8)
}

func displayDir(dir string) string {
	if dir == "" {
		return "no directory"
	}
	return filepath.Clean(dir)
}
