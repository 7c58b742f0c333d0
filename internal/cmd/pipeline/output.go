package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/Iron-Ham/pipewright/internal/orchestrator"
	"github.com/Iron-Ham/pipewright/internal/registry"
	"github.com/Iron-Ham/pipewright/internal/util"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("51"))
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	stoppedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	failedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

func isJSON() bool {
	return viper.GetBool("json")
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// info prints a progress line on stderr unless --json is set.
func info(cmd *cobra.Command, format string, args ...any) {
	if isJSON() {
		return
	}
	fmt.Fprintf(cmd.ErrOrStderr(), format+"\n", args...)
}

// isTerminal reports whether w is a terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// terminalWidth returns the column count of w, or 0 when w is not a terminal.
func terminalWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok {
		return 0
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0
	}
	return width
}

// displayState is the state shown to users: a running agent whose process
// has exited is reported as stopped.
func displayState(s orchestrator.Status) string {
	if s.Agent.Status == registry.StatusRunning && !s.Alive {
		return string(registry.StatusStopped)
	}
	return string(s.Agent.Status)
}

func stateStyle(state string) lipgloss.Style {
	switch registry.Status(state) {
	case registry.StatusRunning:
		return runningStyle
	case registry.StatusFailed:
		return failedStyle
	default:
		return stoppedStyle
	}
}

// maxTitleLen bounds the task title in status output.
const maxTitleLen = 60

var statusHeaders = []string{"AGENT", "STATE", "PID", "PLATFORM", "PHASE", "NEXT", "BRANCH", "STARTED"}

func statusRow(s orchestrator.Status) []string {
	branch := "-"
	if s.Task != nil && s.Task.Branch != "" {
		branch = s.Task.Branch
	}
	return []string{
		s.Agent.ID,
		displayState(s),
		strconv.Itoa(s.Agent.PID),
		orDash(s.Agent.Platform),
		orDash(s.Phase),
		orDash(s.NextAction),
		branch,
		formatStarted(s.Agent.StartedAt),
	}
}

func formatStarted(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// renderStatusTable lays statuses out as a table. Colors are applied only
// when styled is set.
func renderStatusTable(statuses []orchestrator.Status, styled bool) string {
	rows := make([][]string, 0, len(statuses))
	for _, s := range statuses {
		rows = append(rows, statusRow(s))
	}

	t := table.New().
		Border(lipgloss.HiddenBorder()).
		Headers(statusHeaders...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if !styled {
				return cellStyle
			}
			if row == table.HeaderRow {
				return cellStyle.Inherit(headerStyle)
			}
			if col == 1 {
				return cellStyle.Inherit(stateStyle(rows[row][col]))
			}
			return cellStyle
		})
	return t.String()
}

// printStatusDetail writes one agent's status. When width is positive, log
// lines are cut to fit it.
func printStatusDetail(w io.Writer, s *orchestrator.Status, styled bool, width int) {
	label := func(l string) string {
		if styled {
			return headerStyle.Render(l)
		}
		return l
	}
	state := displayState(*s)
	if styled {
		state = stateStyle(state).Render(state)
	}

	fmt.Fprintf(w, "%s %s\n", label("Agent:   "), s.Agent.ID)
	fmt.Fprintf(w, "%s %s (pid %d)\n", label("State:   "), state, s.Agent.PID)
	fmt.Fprintf(w, "%s %s\n", label("Platform:"), orDash(s.Agent.Platform))
	fmt.Fprintf(w, "%s %s\n", label("Worktree:"), s.Agent.WorktreePath)
	fmt.Fprintf(w, "%s %s\n", label("Task:    "), s.Agent.TaskDir)
	if s.Task != nil {
		fmt.Fprintf(w, "%s %s (%s)\n", label("Title:   "), orDash(util.TruncateString(s.Task.Title, maxTitleLen)), s.Task.Status)
		fmt.Fprintf(w, "%s %s\n", label("Branch:  "), orDash(s.Task.Branch))
		if s.Task.PRURL != "" {
			fmt.Fprintf(w, "%s %s\n", label("PR:      "), s.Task.PRURL)
		}
	}
	fmt.Fprintf(w, "%s %s\n", label("Phase:   "), orDash(s.Phase))
	fmt.Fprintf(w, "%s %s\n", label("Next:    "), orDash(s.NextAction))
	fmt.Fprintf(w, "%s %s\n", label("Started: "), formatStarted(s.Agent.StartedAt))

	if len(s.LogTail) == 0 {
		return
	}
	fmt.Fprintln(w)
	header := fmt.Sprintf("Last %d log lines:", len(s.LogTail))
	if styled {
		header = dimStyle.Render(header)
	}
	fmt.Fprintln(w, header)
	for _, line := range s.LogTail {
		if width > 2 {
			line = util.TruncateANSI(line, width-2)
		}
		fmt.Fprintln(w, "  "+line)
	}
}
