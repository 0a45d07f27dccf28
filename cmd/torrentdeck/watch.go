package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/vadimtrunov/torrentdeck/internal/torrent"
)

// chromeHeight is the number of lines around the table: title, footer, help.
const chromeHeight = 6

var errNotTerminal = errors.New("watch needs an interactive terminal; use status instead")

func newWatchCmd() *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Live dashboard of every backend",
		Long:  "Refresh the torrents of every backend in a terminal dashboard.\nPress r to refresh now, q to quit.",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if !isTerminal(os.Stdout) {
				return errNotTerminal
			}
			return runWatch(interval)
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "refresh interval")
	return cmd
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func runWatch(interval time.Duration) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	if interval <= 0 {
		interval = 2 * time.Second
	}

	ctx, cancel := signalContext()
	defer cancel()

	p := tea.NewProgram(newWatchModel(ctx, s.registry, interval), tea.WithAltScreen())

	// Bridge OS signal cancellation into the Bubble Tea event loop.
	go func() {
		<-ctx.Done()
		p.Send(tea.Quit())
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run watch: %w", err)
	}
	return nil
}

// snapshotLister lists every backend.
type snapshotLister interface {
	ListAll(ctx context.Context) []torrent.Snapshot
}

// snapshotsMsg carries a finished refresh back to the TUI.
type snapshotsMsg struct {
	snaps []torrent.Snapshot
	at    time.Time
}

// refreshMsg fires when the next refresh is due.
type refreshMsg time.Time

// watchModel is the Bubble Tea model of the dashboard.
type watchModel struct {
	ctx      context.Context
	source   snapshotLister
	interval time.Duration
	table    table.Model
	spinner  spinner.Model
	snaps    []torrent.Snapshot
	polledAt time.Time
	loading  bool
	width    int
	height   int
}

func watchColumns() []table.Column {
	return []table.Column{
		{Title: "Backend", Width: 12},
		{Title: "Name", Width: 40},
		{Title: "Status", Width: 12},
		{Title: "Done", Width: 7},
		{Title: "Down", Width: 11},
		{Title: "Up", Width: 11},
		{Title: "ETA", Width: 8},
		{Title: "Ratio", Width: 6},
	}
}

func newWatchModel(ctx context.Context, source snapshotLister, interval time.Duration) watchModel {
	t := table.New(
		table.WithColumns(watchColumns()),
		table.WithFocused(true),
		table.WithHeight(10),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.Bold(true).Foreground(lipgloss.Color("5"))
	styles.Selected = styles.Selected.Foreground(lipgloss.Color("15")).Background(lipgloss.Color("12"))
	t.SetStyles(styles)

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styleInfo

	return watchModel{
		ctx:      ctx,
		source:   source,
		interval: interval,
		table:    t,
		spinner:  s,
		loading:  true,
	}
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.refresh())
}

func (m watchModel) refresh() tea.Cmd {
	return func() tea.Msg {
		return snapshotsMsg{snaps: m.source.ListAll(m.ctx), at: time.Now()}
	}
}

func (m watchModel) scheduleRefresh() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return refreshMsg(t)
	})
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetHeight(max(msg.Height-chromeHeight, 3))
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "r":
			if m.loading {
				return m, nil
			}
			m.loading = true
			return m, tea.Batch(m.spinner.Tick, m.refresh())
		}

	case snapshotsMsg:
		m.loading = false
		m.snaps = msg.snaps
		m.polledAt = msg.at
		m.table.SetRows(snapshotRows(msg.snaps))
		return m, m.scheduleRefresh()

	case refreshMsg:
		if m.loading {
			return m, nil
		}
		m.loading = true
		return m, tea.Batch(m.spinner.Tick, m.refresh())

	case spinner.TickMsg:
		if !m.loading {
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

func (m watchModel) View() string {
	var b strings.Builder

	title := styleHeader.UnsetMarginBottom().Render("torrentdeck")
	if m.loading {
		title += " " + m.spinner.View()
	} else if !m.polledAt.IsZero() {
		title += " " + styleDim.Render("updated "+m.polledAt.Format(time.TimeOnly))
	}
	b.WriteString(title + "\n\n")
	b.WriteString(m.table.View() + "\n")

	for _, snap := range m.snaps {
		if snap.Err != nil {
			b.WriteString(styleError.Render(snap.Err.Error()) + "\n")
		}
	}
	b.WriteString(styleDim.Render("↑/↓ move • r refresh • q quit"))
	return b.String()
}

// snapshotRows flattens snapshots into table rows in backend order.
func snapshotRows(snaps []torrent.Snapshot) []table.Row {
	var rows []table.Row
	for _, snap := range snaps {
		for _, t := range snap.Torrents {
			rows = append(rows, table.Row{
				snap.Backend,
				t.Name,
				primaryStatus(t.Status),
				t.PercentComplete + "%",
				formatRate(t.DownloadRate),
				formatRate(t.UploadRate),
				formatETA(t.ETA),
				t.RatioDisplay,
			})
		}
	}
	return rows
}
