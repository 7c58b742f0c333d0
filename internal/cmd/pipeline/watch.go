package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/Iron-Ham/pipewright/internal/errors"
	"github.com/Iron-Ham/pipewright/internal/orchestrator"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch all agents in a live table",
	Long: `Watch shows the agent table full screen and refreshes it every
watch.refresh_ms milliseconds.

Keys: r refreshes now, q or ctrl+c quits.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

// RegisterWatchCmd registers the watch command with the given parent command.
func RegisterWatchCmd(parent *cobra.Command) {
	parent.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	if isJSON() {
		return errors.NewValidationError("watch is interactive and has no JSON output").WithField("json")
	}
	if !isTerminal(cmd.OutOrStdout()) {
		return errors.NewValidationError("watch needs a terminal; use \"pipeline list\" instead")
	}

	return withRuntime(func(r *runtime) error {
		m := newWatchModel(r.orch.ListStatuses, r.cfg.Watch.RefreshInterval())
		p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context()))
		if _, err := p.Run(); err != nil {
			if cmd.Context().Err() != nil {
				return nil
			}
			return fmt.Errorf("watch: %w", err)
		}
		return nil
	})
}

type watchTickMsg time.Time

type statusesMsg []orchestrator.Status

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("51")).
			Bold(true).
			Padding(0, 1)
	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			MarginTop(1)
)

// watchModel is the bubbletea model behind "pipeline watch".
type watchModel struct {
	load     func() []orchestrator.Status
	interval time.Duration
	now      func() time.Time

	table    table.Model
	count    int
	updated  time.Time
	quitting bool
}

var watchColumns = []table.Column{
	{Title: "AGENT", Width: 22},
	{Title: "STATE", Width: 8},
	{Title: "PID", Width: 7},
	{Title: "PLATFORM", Width: 9},
	{Title: "PHASE", Width: 20},
	{Title: "NEXT", Width: 10},
	{Title: "BRANCH", Width: 26},
	{Title: "STARTED", Width: 20},
}

func newWatchModel(load func() []orchestrator.Status, interval time.Duration) watchModel {
	t := table.New(
		table.WithColumns(watchColumns),
		table.WithFocused(true),
		table.WithHeight(10),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("238")).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57"))
	t.SetStyles(s)

	if interval <= 0 {
		interval = 2 * time.Second
	}
	return watchModel{
		load:     load,
		interval: interval,
		now:      time.Now,
		table:    t,
	}
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.refresh(), watchTick(m.interval))
}

func watchTick(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return watchTickMsg(t)
	})
}

func (m watchModel) refresh() tea.Cmd {
	load := m.load
	return func() tea.Msg {
		return statusesMsg(load())
	}
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "r":
			return m, m.refresh()
		}
	case tea.WindowSizeMsg:
		// title, footer and margins
		m.table.SetHeight(max(3, msg.Height-6))
		return m, nil
	case watchTickMsg:
		return m, tea.Batch(m.refresh(), watchTick(m.interval))
	case statusesMsg:
		rows := make([]table.Row, 0, len(msg))
		for _, s := range msg {
			rows = append(rows, table.Row(statusRow(s)))
		}
		m.table.SetRows(rows)
		m.count = len(msg)
		m.updated = m.now()
		return m, nil
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m watchModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("pipewright agents"))
	b.WriteString("\n\n")
	if m.count == 0 {
		b.WriteString(dimStyle.Render("No agents registered."))
	} else {
		b.WriteString(m.table.View())
	}

	updated := "never"
	if !m.updated.IsZero() {
		updated = m.updated.Format("15:04:05")
	}
	b.WriteString(footerStyle.Render(fmt.Sprintf("%d agents · updated %s · r refresh · q quit", m.count, updated)))
	b.WriteString("\n")
	return b.String()
}
