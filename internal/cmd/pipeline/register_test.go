package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Iron-Ham/pipewright/internal/errors"
	"github.com/Iron-Ham/pipewright/internal/logging"
	"github.com/spf13/cobra"
)

func TestRegister(t *testing.T) {
	root := &cobra.Command{Use: "pipewright"}
	Register(root)

	group, _, err := root.Find([]string{"pipeline"})
	if err != nil || group.Name() != "pipeline" {
		t.Fatalf("pipeline group not registered: %v", err)
	}

	want := []string{"start", "stop", "cleanup", "status", "list", "advance", "create-pr", "logs", "resume", "watch"}
	for _, name := range want {
		found := false
		for _, c := range group.Commands() {
			if c.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestCommandFlags(t *testing.T) {
	tests := []struct {
		cmd  *cobra.Command
		flag string
	}{
		{startCmd, "platform"},
		{startCmd, "prompt"},
		{stopCmd, "force"},
		{cleanupCmd, "archive"},
		{cleanupCmd, "force"},
		{createPRCmd, "draft"},
		{createPRCmd, "skip-verify"},
		{logsCmd, "lines"},
		{logsCmd, "follow"},
	}
	for _, tt := range tests {
		if tt.cmd.Flags().Lookup(tt.flag) == nil {
			t.Errorf("%s: missing --%s", tt.cmd.Name(), tt.flag)
		}
	}
}

func TestLogFailureLevelFollowsSeverity(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantLevel string
		wantKind  string
	}{
		{
			name:      "conflict is a warning",
			err:       errors.NewConflictError("agent 01-auth is already running", errors.ErrAgentRunning),
			wantLevel: "WARN",
			wantKind:  "conflict",
		},
		{
			name:      "internal failure is an error",
			err:       fmt.Errorf("register agent 01-auth: %w", os.ErrPermission),
			wantLevel: "ERROR",
			wantKind:  "internal",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			logger, err := logging.NewLogger(dir, logging.LevelDebug)
			if err != nil {
				t.Fatal(err)
			}
			logFailure(logger, tt.err)
			if err := logger.Close(); err != nil {
				t.Fatal(err)
			}

			data, err := os.ReadFile(filepath.Join(dir, logging.LogFileName))
			if err != nil {
				t.Fatal(err)
			}
			var entry map[string]any
			if err := json.Unmarshal([]byte(strings.TrimSpace(string(data))), &entry); err != nil {
				t.Fatalf("log entry is not JSON: %v\n%s", err, data)
			}
			if entry["level"] != tt.wantLevel {
				t.Errorf("level = %v, want %s", entry["level"], tt.wantLevel)
			}
			if entry["kind"] != tt.wantKind {
				t.Errorf("kind = %v, want %s", entry["kind"], tt.wantKind)
			}
			if entry["msg"] != "command failed" {
				t.Errorf("msg = %v", entry["msg"])
			}
		})
	}
}
