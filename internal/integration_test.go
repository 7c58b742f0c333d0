//go:build unix

// Package internal contains integration tests that wire the real worktree
// manager, registry and launcher together behind the orchestrator.
package internal

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Iron-Ham/pipewright/internal/config"
	"github.com/Iron-Ham/pipewright/internal/launcher"
	"github.com/Iron-Ham/pipewright/internal/orchestrator"
	"github.com/Iron-Ham/pipewright/internal/registry"
	"github.com/Iron-Ham/pipewright/internal/task"
	"github.com/Iron-Ham/pipewright/internal/testutil"
	"github.com/Iron-Ham/pipewright/internal/worktree"
)

// installFakeClaude puts a "claude" on PATH that logs its arguments and then
// sleeps, standing in for a long-running agent.
func installFakeClaude(t *testing.T) {
	t.Helper()
	bin := t.TempDir()
	script := "#!/bin/sh\necho \"agent started: $*\"\nexec sleep 30\n"
	if err := os.WriteFile(filepath.Join(bin, "claude"), []byte(script), 0755); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PATH", bin+string(os.PathListSeparator)+os.Getenv("PATH"))
}

// reap waits on the detached agent so it does not linger as a zombie that
// still answers liveness checks.
func reap(pid int) {
	go func() {
		if p, err := os.FindProcess(pid); err == nil {
			_, _ = p.Wait()
		}
	}()
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// TestPipelineLifecycle drives one task from start to cleanup with a real
// background process.
func TestPipelineLifecycle(t *testing.T) {
	testutil.SkipIfNoGit(t)
	installFakeClaude(t)

	repo := testutil.SetupTestRepo(t)
	taskDir := testutil.WriteTask(t, repo, ".pipewright/tasks/01-auth", map[string]any{
		"id":     "01-auth",
		"title":  "Add login",
		"status": "planning",
		"branch": "feat/auth",
	}, true)

	wt, err := worktree.New(repo, &worktree.Config{})
	if err != nil {
		t.Fatal(err)
	}
	reg, err := registry.Open(repo, "tester", registry.WithLiveness(launcher.IsAlive))
	if err != nil {
		t.Fatal(err)
	}
	l := launcher.New(launcher.WithStopTimeout(2 * time.Second))
	orch := orchestrator.New(repo, config.Default(), wt, reg, l)

	res, err := orch.StartPipeline(context.Background(), taskDir, orchestrator.StartOptions{})
	if err != nil {
		t.Fatalf("StartPipeline() error = %v", err)
	}
	reap(res.Agent.PID)
	t.Cleanup(func() { l.Stop(res.Agent.PID, true) })

	if res.Reused {
		t.Error("first start should create the worktree")
	}
	waitFor(t, "agent output", func() bool {
		data, _ := os.ReadFile(res.LogFile)
		return strings.Contains(string(data), "agent started:")
	})

	t.Run("status reads the worktree copy", func(t *testing.T) {
		st, err := orch.GetStatus("01-auth")
		if err != nil {
			t.Fatalf("GetStatus() error = %v", err)
		}
		if !st.Alive {
			t.Error("agent should be alive")
		}
		if st.TaskSource != "worktree" || st.Task.Status != task.StatusInProgress {
			t.Errorf("task source = %q, status = %q", st.TaskSource, st.Task.Status)
		}
		if !strings.Contains(strings.Join(st.LogTail, "\n"), "--session-id "+res.Agent.SessionID) {
			t.Errorf("log tail %q should show the session id", st.LogTail)
		}
	})

	t.Run("advance dual-writes the phase", func(t *testing.T) {
		adv, err := orch.AdvancePhase("01-auth")
		if err != nil {
			t.Fatalf("AdvancePhase() error = %v", err)
		}
		if adv.From != 1 || adv.To != 2 {
			t.Errorf("AdvancePhase() = %d -> %d, want 1 -> 2", adv.From, adv.To)
		}
		mainCopy, _ := task.Read(taskDir)
		copied, _ := task.Read(filepath.Join(res.WorktreePath, ".pipewright/tasks/01-auth"))
		if mainCopy == nil || copied == nil || mainCopy.CurrentPhase != 2 || copied.CurrentPhase != 2 {
			t.Errorf("phase not written to both copies: main=%v worktree=%v", mainCopy, copied)
		}
	})

	t.Run("resume command", func(t *testing.T) {
		line, err := orch.ResumeCommand("01-auth")
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(line, "claude --resume "+res.Agent.SessionID) {
			t.Errorf("ResumeCommand() = %q", line)
		}
	})

	t.Run("stop", func(t *testing.T) {
		agent, err := orch.StopPipeline("01-auth", false)
		if err != nil {
			t.Fatalf("StopPipeline() error = %v", err)
		}
		if agent.Status != registry.StatusStopped {
			t.Errorf("status = %q, want stopped", agent.Status)
		}
		waitFor(t, "agent exit", func() bool { return !launcher.IsAlive(res.Agent.PID) })
		if _, err := os.Stat(res.WorktreePath); err != nil {
			t.Errorf("stop must keep the worktree: %v", err)
		}
	})

	t.Run("cleanup", func(t *testing.T) {
		out, err := orch.CleanupPipeline("01-auth", orchestrator.CleanupOptions{Force: true})
		if err != nil {
			t.Fatalf("CleanupPipeline() error = %v", err)
		}
		if !out.WorktreeRemoved {
			t.Error("worktree should be removed")
		}
		if _, err := os.Stat(res.WorktreePath); !os.IsNotExist(err) {
			t.Errorf("worktree still present: %v", err)
		}
		if n := len(reg.List()); n != 0 {
			t.Errorf("registry has %d agents, want 0", n)
		}
	})
}
