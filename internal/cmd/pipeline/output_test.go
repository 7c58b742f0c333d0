package pipeline

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/Iron-Ham/pipewright/internal/orchestrator"
	"github.com/Iron-Ham/pipewright/internal/registry"
	"github.com/Iron-Ham/pipewright/internal/task"
)

func sampleStatuses() []orchestrator.Status {
	return []orchestrator.Status{
		{
			Agent: registry.Agent{
				ID:        "01-auth",
				PID:       4242,
				Status:    registry.StatusRunning,
				Platform:  "claude",
				TaskDir:   "tasks/01-auth",
				StartedAt: time.Date(2026, 5, 14, 9, 0, 0, 0, time.UTC),
			},
			Alive:      true,
			Task:       &task.Task{ID: "01-auth", Branch: "feature/auth"},
			Phase:      "2/4 check",
			NextAction: "finish",
		},
		{
			Agent: registry.Agent{
				ID:      "02-billing",
				PID:     99,
				Status:  registry.StatusRunning,
				TaskDir: "tasks/02-billing",
			},
			Alive: false,
		},
	}
}

func TestDisplayState(t *testing.T) {
	statuses := sampleStatuses()
	if got := displayState(statuses[0]); got != "running" {
		t.Errorf("displayState(alive) = %q, want running", got)
	}
	if got := displayState(statuses[1]); got != "stopped" {
		t.Errorf("displayState(dead) = %q, want stopped", got)
	}

	failed := orchestrator.Status{Agent: registry.Agent{Status: registry.StatusFailed}}
	if got := displayState(failed); got != "failed" {
		t.Errorf("displayState(failed) = %q, want failed", got)
	}
}

func TestStatusRow(t *testing.T) {
	statuses := sampleStatuses()

	row := statusRow(statuses[0])
	want := []string{"01-auth", "running", "4242", "claude", "2/4 check", "finish", "feature/auth", "2026-05-14T09:00:00Z"}
	if strings.Join(row, "|") != strings.Join(want, "|") {
		t.Errorf("statusRow() = %v, want %v", row, want)
	}

	row = statusRow(statuses[1])
	if row[3] != "-" || row[6] != "-" || row[7] != "-" {
		t.Errorf("statusRow() missing fields should be dashes, got %v", row)
	}
}

func TestRenderStatusTable(t *testing.T) {
	out := renderStatusTable(sampleStatuses(), false)

	for _, want := range []string{"AGENT", "STATE", "01-auth", "02-billing", "feature/auth", "stopped"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Error("unstyled table should not contain escape sequences")
	}
}

func TestPrintStatusDetail(t *testing.T) {
	st := sampleStatuses()[0]
	st.LogTail = []string{"step one", "step two"}

	var buf bytes.Buffer
	printStatusDetail(&buf, &st, false, 0)
	out := buf.String()

	for _, want := range []string{"01-auth", "pid 4242", "feature/auth", "2/4 check", "Last 2 log lines:", "  step two"} {
		if !strings.Contains(out, want) {
			t.Errorf("detail missing %q:\n%s", want, out)
		}
	}

	t.Run("long lines cut to width", func(t *testing.T) {
		st.LogTail = []string{strings.Repeat("x", 100)}
		buf.Reset()
		printStatusDetail(&buf, &st, false, 20)
		if !strings.Contains(buf.String(), "  "+strings.Repeat("x", 15)+"...\n") {
			t.Errorf("log line not truncated:\n%s", buf.String())
		}
	})

	t.Run("long title", func(t *testing.T) {
		st.Task = &task.Task{ID: "01-auth", Title: strings.Repeat("t", 80)}
		buf.Reset()
		printStatusDetail(&buf, &st, false, 0)
		if strings.Contains(buf.String(), strings.Repeat("t", 61)) {
			t.Errorf("title not truncated:\n%s", buf.String())
		}
	})
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := printJSON(&buf, map[string]string{"command": "cd /wt && claude --resume s1"}); err != nil {
		t.Fatalf("printJSON() error = %v", err)
	}

	var got map[string]string
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if got["command"] != "cd /wt && claude --resume s1" {
		t.Errorf("command = %q", got["command"])
	}
}

func TestIsTerminal(t *testing.T) {
	if isTerminal(&bytes.Buffer{}) {
		t.Error("isTerminal(buffer) = true, want false")
	}
}
