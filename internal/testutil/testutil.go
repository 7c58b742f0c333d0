// Package testutil provides testing utilities for pipewright tests.
package testutil

import (
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// SetupTestRepo creates a temporary git repository with one commit on main.
// The repository is automatically cleaned up when the test completes.
func SetupTestRepo(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	// macOS hands out /var/... which resolves to /private/var/...; git reports
	// the resolved form, so tests compare against it.
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		dir = resolved
	}

	RunGit(t, dir, "init")
	RunGit(t, dir, "config", "user.email", "test@pipewright.dev")
	RunGit(t, dir, "config", "user.name", "Pipewright Test")

	// git worktree requires at least one commit
	WriteFile(t, dir, "README.md", "# Test Repository\n")
	RunGit(t, dir, "add", ".")
	RunGit(t, dir, "commit", "-m", "Initial commit")
	RunGit(t, dir, "branch", "-M", "main")

	return dir
}

// SetupTestRepoWithRemote creates a test repository whose origin is a local
// bare repository, for exercising push.
func SetupTestRepoWithRemote(t *testing.T) (repoDir, remoteDir string) {
	t.Helper()

	remoteDir = t.TempDir()
	RunGit(t, remoteDir, "init", "--bare")

	repoDir = SetupTestRepo(t)
	RunGit(t, repoDir, "remote", "add", "origin", remoteDir)
	RunGit(t, repoDir, "push", "-u", "origin", "main")

	return repoDir, remoteDir
}

// CommitFile creates or updates a file and commits it.
func CommitFile(t *testing.T, repoDir, path, content, message string) {
	t.Helper()

	WriteFile(t, repoDir, path, content)
	RunGit(t, repoDir, "add", path)
	RunGit(t, repoDir, "commit", "-m", message)
}

// WriteFile writes content to dir/rel, creating parent directories.
func WriteFile(t *testing.T, dir, rel, content string) string {
	t.Helper()

	full := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		t.Fatalf("failed to create directory for %s: %v", rel, err)
	}
	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write file %s: %v", rel, err)
	}
	return full
}

// WriteTask writes a task.json built from fields into repoRoot/rel and
// returns the absolute task directory. When ready is true a prd.md is
// written next to it.
func WriteTask(t *testing.T, repoRoot, rel string, fields map[string]any, ready bool) string {
	t.Helper()

	data, err := json.MarshalIndent(fields, "", "  ")
	if err != nil {
		t.Fatalf("failed to marshal task: %v", err)
	}
	dir := filepath.Join(repoRoot, rel)
	WriteFile(t, dir, "task.json", string(data)+"\n")
	if ready {
		WriteFile(t, dir, "prd.md", "# Requirements\n")
	}
	return dir
}

// ReadJSON decodes the JSON file at path into a generic map.
func ReadJSON(t *testing.T, path string) map[string]any {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("failed to parse %s: %v", path, err)
	}
	return out
}

// GitOutput runs git in dir and returns trimmed stdout.
func GitOutput(t *testing.T, dir string, args ...string) string {
	t.Helper()

	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = gitEnv()
	out, err := cmd.Output()
	if err != nil {
		t.Fatalf("git %s: %v", strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(out))
}

// RunGit runs git in dir and fails the test on error.
func RunGit(t *testing.T, dir string, args ...string) {
	t.Helper()

	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = gitEnv()
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %s: %v\n%s", strings.Join(args, " "), err, out)
	}
}

// ListWorktrees returns the paths of all worktrees in the repository.
func ListWorktrees(t *testing.T, repoDir string) []string {
	t.Helper()

	var worktrees []string
	for _, line := range strings.Split(GitOutput(t, repoDir, "worktree", "list", "--porcelain"), "\n") {
		if path, ok := strings.CutPrefix(line, "worktree "); ok {
			worktrees = append(worktrees, path)
		}
	}
	return worktrees
}

// SkipIfNoGit skips the test if git is not installed.
func SkipIfNoGit(t *testing.T) {
	t.Helper()

	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not found in PATH, skipping test")
	}
}

// StartSleeper starts a long-running child process and returns its PID.
// The process is killed and reaped when the test completes.
func StartSleeper(t *testing.T) int {
	t.Helper()

	cmd := exec.Command("sleep", "60")
	if err := cmd.Start(); err != nil {
		t.Skipf("cannot start sleep: %v", err)
	}
	done := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(done)
	}()
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		<-done
	})
	return cmd.Process.Pid
}

// DeadPID returns the PID of a process that has already exited and been reaped.
func DeadPID(t *testing.T) int {
	t.Helper()

	cmd := exec.Command("true")
	if err := cmd.Run(); err != nil {
		t.Skipf("cannot run true: %v", err)
	}
	return cmd.Process.Pid
}

func gitEnv() []string {
	return append(os.Environ(),
		"GIT_AUTHOR_NAME=Pipewright Test",
		"GIT_AUTHOR_EMAIL=test@pipewright.dev",
		"GIT_COMMITTER_NAME=Pipewright Test",
		"GIT_COMMITTER_EMAIL=test@pipewright.dev",
	)
}
