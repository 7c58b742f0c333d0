package worktree

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/Iron-Ham/pipewright/internal/errors"
	"github.com/Iron-Ham/pipewright/internal/task"
	"github.com/Iron-Ham/pipewright/internal/testutil"
)

func newGitManager(t *testing.T, cfg *Config) (*Manager, string) {
	t.Helper()
	testutil.SkipIfNoGit(t)

	repo := testutil.SetupTestRepo(t)
	m, err := New(repo, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return m, repo
}

func TestCreate(t *testing.T) {
	m, repo := newGitManager(t, nil)

	path, err := m.Create("feature/x", "main")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	want := filepath.Join(repo, ".pipewright", "worktrees", "feature", "x")
	if path != want {
		t.Errorf("Create() = %q, want %q", path, want)
	}
	if got := testutil.GitOutput(t, path, "rev-parse", "--abbrev-ref", "HEAD"); got != "feature/x" {
		t.Errorf("worktree branch = %q", got)
	}
	if !slices.Contains(testutil.ListWorktrees(t, repo), path) {
		t.Error("worktree not registered with git")
	}

	t.Run("second create reuses the worktree", func(t *testing.T) {
		again, err := m.Create("feature/x", "main")
		if !stderrors.Is(err, errors.ErrWorktreeExists) {
			t.Fatalf("Create() error = %v, want ErrWorktreeExists", err)
		}
		if again != path {
			t.Errorf("Create() = %q, want existing %q", again, path)
		}
		if n := len(testutil.ListWorktrees(t, repo)); n != 2 {
			t.Errorf("expected 2 worktrees (main + feature/x), got %d", n)
		}
	})
}

func TestCreateFromBaseBranch(t *testing.T) {
	m, repo := newGitManager(t, nil)
	testutil.RunGit(t, repo, "checkout", "-b", "develop")
	testutil.CommitFile(t, repo, "develop.txt", "dev\n", "develop only")
	testutil.RunGit(t, repo, "checkout", "main")

	path, err := m.Create("feature/on-develop", "develop")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(path, "develop.txt")); err != nil {
		t.Error("worktree was not based on develop")
	}
}

func TestCreateCopiesConfiguredFiles(t *testing.T) {
	m, repo := newGitManager(t, &Config{Copy: []string{".env", "config/*.local", "missing.txt"}})
	testutil.WriteFile(t, repo, ".env", "TOKEN=abc\n")
	testutil.WriteFile(t, repo, "config/db.local", "dsn\n")
	testutil.WriteFile(t, repo, "config/db.prod", "prod\n")

	path, err := m.Create("feature/env", "main")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	for _, rel := range []string{".env", "config/db.local"} {
		if _, err := os.Stat(filepath.Join(path, rel)); err != nil {
			t.Errorf("%s was not copied: %v", rel, err)
		}
	}
	if _, err := os.Stat(filepath.Join(path, "config", "db.prod")); !os.IsNotExist(err) {
		t.Error("non-matching file was copied")
	}
}

func TestCreatePostCreateFailure(t *testing.T) {
	m, _ := newGitManager(t, &Config{PostCreate: []string{"touch first", "exit 3", "touch never"}})

	path, err := m.Create("feature/setup", "main")
	if !stderrors.Is(err, errors.ErrSetupFailed) {
		t.Fatalf("Create() error = %v, want ErrSetupFailed", err)
	}
	if path == "" {
		t.Fatal("Create() should return the partially set up worktree path")
	}
	if _, err := os.Stat(filepath.Join(path, "first")); err != nil {
		t.Error("commands before the failure should have run")
	}
	if _, err := os.Stat(filepath.Join(path, "never")); !os.IsNotExist(err) {
		t.Error("commands after the failure should not run")
	}
}

func TestCreateAfterRemoveReusesBranch(t *testing.T) {
	m, _ := newGitManager(t, nil)

	path, err := m.Create("feature/again", "main")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := m.Remove(path, false); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := m.Create("feature/again", "main"); err != nil {
		t.Fatalf("Create() after Remove error = %v", err)
	}
}

func TestRemove(t *testing.T) {
	t.Run("dirty worktree is refused", func(t *testing.T) {
		m, _ := newGitManager(t, nil)
		path, err := m.Create("feature/dirty", "main")
		if err != nil {
			t.Fatal(err)
		}
		testutil.WriteFile(t, path, "wip.go", "package wip\n")

		err = m.Remove(path, false)
		if !stderrors.Is(err, errors.ErrDirtyWorktree) {
			t.Fatalf("Remove() error = %v, want ErrDirtyWorktree", err)
		}
		if _, statErr := os.Stat(path); statErr != nil {
			t.Error("refused removal must leave the worktree in place")
		}

		if err := m.Remove(path, true); err != nil {
			t.Fatalf("forced Remove() error = %v", err)
		}
		if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
			t.Error("forced removal left the directory behind")
		}
	})

	t.Run("agent files do not count as dirty", func(t *testing.T) {
		m, repo := newGitManager(t, nil)
		path, err := m.Create("feature/agent", "main")
		if err != nil {
			t.Fatal(err)
		}
		for _, f := range []string{".agent-log", ".session-id", ".agent-runner.sh"} {
			testutil.WriteFile(t, path, f, "x\n")
		}

		if err := m.Remove(path, false); err != nil {
			t.Fatalf("Remove() error = %v", err)
		}
		if slices.Contains(testutil.ListWorktrees(t, repo), path) {
			t.Error("worktree still registered after Remove()")
		}
	})

	t.Run("missing path is a no-op", func(t *testing.T) {
		m, _ := newGitManager(t, nil)
		if err := m.Remove(filepath.Join(m.BaseDir(), "gone"), false); err != nil {
			t.Errorf("Remove() error = %v", err)
		}
	})
}

func TestPrepare(t *testing.T) {
	m, repo := newGitManager(t, nil)
	rel := ".pipewright/tasks/01-auth"
	taskDir := testutil.WriteTask(t, repo, rel, map[string]any{
		"id":          "01-auth",
		"status":      "planning",
		"branch":      "feature/auth",
		"base_branch": "main",
		"priority":    "P1",
	}, true)
	testutil.WriteFile(t, taskDir, "research/notes.md", "notes\n")

	path, err := m.Create("feature/auth", "main")
	if err != nil {
		t.Fatal(err)
	}

	// Pin a different base branch inside the worktree copy first.
	wtTaskDir := filepath.Join(path, filepath.FromSlash(rel))
	testutil.WriteTask(t, path, rel, map[string]any{"id": "01-auth", "base_branch": "release/1.0"}, false)

	if err := m.Prepare(path, taskDir); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	wt, ok := task.Read(wtTaskDir)
	if !ok {
		t.Fatal("worktree task copy unreadable")
	}
	if wt.BaseBranch != "release/1.0" {
		t.Errorf("BaseBranch = %q, pinned base branch was overwritten", wt.BaseBranch)
	}
	if wt.Branch != "feature/auth" || wt.Status != task.StatusPlanning {
		t.Errorf("worktree copy not refreshed: %+v", wt)
	}
	if _, ok := wt.Extra("priority"); !ok {
		t.Error("unknown field dropped from worktree copy")
	}
	for _, f := range []string{"prd.md", "research/notes.md"} {
		if _, err := os.Stat(filepath.Join(wtTaskDir, f)); err != nil {
			t.Errorf("%s not copied: %v", f, err)
		}
	}
	if cur, ok := task.CurrentTask(path); !ok || cur != rel {
		t.Errorf("CurrentTask(worktree) = %q, %v", cur, ok)
	}

	dirty, err := m.HasUncommittedChanges(path)
	if err != nil || dirty {
		t.Errorf("prepared worktree reported dirty = %v, err %v", dirty, err)
	}

	exclude := testutil.GitOutput(t, path, "rev-parse", "--git-path", "info/exclude")
	if !filepath.IsAbs(exclude) {
		exclude = filepath.Join(path, exclude)
	}
	data, _ := os.ReadFile(exclude)
	if strings.Count(string(data), "/.agent-log") != 1 {
		t.Errorf("exclude file should list agent files once:\n%s", data)
	}
}

func TestPrepareKeepsWorktreeProgress(t *testing.T) {
	m, repo := newGitManager(t, nil)
	rel := ".pipewright/tasks/02-billing"
	taskDir := testutil.WriteTask(t, repo, rel, map[string]any{
		"id":            "02-billing",
		"title":         "Billing v2",
		"status":        "in_progress",
		"branch":        "feature/billing",
		"current_phase": 1,
	}, true)

	path, err := m.Create("feature/billing", "main")
	if err != nil {
		t.Fatal(err)
	}
	// The agent has moved on in its own copy; main still says phase 1.
	testutil.WriteTask(t, path, rel, map[string]any{
		"id":            "02-billing",
		"title":         "old title",
		"status":        "completed",
		"branch":        "feature/billing",
		"current_phase": 3,
		"pr_url":        "https://github.com/acme/app/pull/9",
		"completed_at":  "2026-05-14T10:00:00Z",
	}, false)

	if err := m.Prepare(path, taskDir); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	wt, ok := task.Read(filepath.Join(path, filepath.FromSlash(rel)))
	if !ok {
		t.Fatal("worktree task copy unreadable")
	}
	if wt.CurrentPhase != 3 {
		t.Errorf("CurrentPhase = %d, want 3 from the worktree copy", wt.CurrentPhase)
	}
	if wt.Status != task.StatusCompleted || wt.PRURL == "" || wt.CompletedAt == "" {
		t.Errorf("progress fields lost: status=%q pr_url=%q completed_at=%q", wt.Status, wt.PRURL, wt.CompletedAt)
	}
	if wt.Title != "Billing v2" {
		t.Errorf("Title = %q, want refreshed from main", wt.Title)
	}
}

func TestPrepareMissingTask(t *testing.T) {
	m, repo := newGitManager(t, nil)
	path, err := m.Create("feature/none", "main")
	if err != nil {
		t.Fatal(err)
	}
	err = m.Prepare(path, filepath.Join(repo, ".pipewright", "tasks", "missing"))
	if !stderrors.Is(err, errors.ErrTaskNotFound) {
		t.Errorf("Prepare() error = %v, want ErrTaskNotFound", err)
	}
}

func TestLocate(t *testing.T) {
	m, repo := newGitManager(t, nil)
	path, err := m.Create("feature/loc", "main")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		task   *task.Task
		want   string
		wantOK bool
	}{
		{"recorded path", &task.Task{WorktreePath: path}, path, true},
		{"relative recorded path", &task.Task{WorktreePath: ".pipewright/worktrees/feature/loc"}, path, true},
		{"stale path falls back to branch", &task.Task{WorktreePath: filepath.Join(repo, "gone"), Branch: "feature/loc"}, path, true},
		{"branch only", &task.Task{Branch: "feature/loc"}, path, true},
		{"unknown branch", &task.Task{Branch: "feature/other"}, "", false},
		{"nothing set", &task.Task{}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := m.Locate(tt.task)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("Locate() = %q, %v; want %q, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestFindMainRoot(t *testing.T) {
	m, repo := newGitManager(t, nil)
	path, err := m.Create("feature/root", "main")
	if err != nil {
		t.Fatal(err)
	}

	for _, dir := range []string{repo, path, filepath.Join(path, ".pipewright")} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatal(err)
		}
		got, err := FindMainRoot(dir)
		if err != nil {
			t.Fatalf("FindMainRoot(%q) error = %v", dir, err)
		}
		if got != repo {
			t.Errorf("FindMainRoot(%q) = %q, want %q", dir, got, repo)
		}
	}
}

func TestListAndCurrentBranch(t *testing.T) {
	m, repo := newGitManager(t, nil)
	path, err := m.Create("feature/list", "main")
	if err != nil {
		t.Fatal(err)
	}

	infos, err := m.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(infos) != 2 || infos[0].Branch != "main" || infos[1].Path != path || infos[1].Branch != "feature/list" {
		t.Errorf("List() = %+v", infos)
	}

	if b, err := m.CurrentBranch(repo); err != nil || b != "main" {
		t.Errorf("CurrentBranch() = %q, %v", b, err)
	}
}

func TestCommitAllAndPush(t *testing.T) {
	testutil.SkipIfNoGit(t)
	repo, remote := testutil.SetupTestRepoWithRemote(t)
	m, err := New(repo, nil)
	if err != nil {
		t.Fatal(err)
	}

	path, err := m.Create("feature/push", "main")
	if err != nil {
		t.Fatal(err)
	}
	testutil.WriteFile(t, path, "feature.go", "package feature\n")
	testutil.WriteFile(t, path, ".agent-log", "noise\n")

	if err := m.CommitAll(path, "Add feature"); err != nil {
		t.Fatalf("CommitAll() error = %v", err)
	}
	if err := m.CommitAll(path, "Nothing"); err != nil {
		t.Errorf("CommitAll() with nothing to commit = %v", err)
	}

	files, err := m.ChangedFiles(path, "main")
	if err != nil {
		t.Fatalf("ChangedFiles() error = %v", err)
	}
	if !slices.Equal(files, []string{"feature.go"}) {
		t.Errorf("ChangedFiles() = %v, agent files must not be committed", files)
	}
	log, err := m.CommitLog(path, "main")
	if err != nil || log != "- Add feature" {
		t.Errorf("CommitLog() = %q, %v", log, err)
	}

	if err := m.Push(path, "feature/push"); err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if got := testutil.GitOutput(t, remote, "branch", "--list", "feature/push"); !strings.Contains(got, "feature/push") {
		t.Errorf("remote branches = %q", got)
	}
}
