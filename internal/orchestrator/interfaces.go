// Package orchestrator composes the task store, worktree manager, launcher
// and agent registry into the pipeline operations exposed by the CLI:
// start, stop, cleanup, status, advance and create-pr.
//
// The orchestrator is the only writer of both a task document and the
// registry. Task updates are dual-written: the worktree copy first, then
// the main repository copy. Status reads prefer the worktree copy.
package orchestrator

import (
	"context"

	"github.com/Iron-Ham/pipewright/internal/launcher"
	"github.com/Iron-Ham/pipewright/internal/pr"
	"github.com/Iron-Ham/pipewright/internal/registry"
	"github.com/Iron-Ham/pipewright/internal/task"
	"github.com/Iron-Ham/pipewright/internal/worktree"
)

// ProcessLauncher starts and observes agent processes.
type ProcessLauncher interface {
	Launch(ctx context.Context, req launcher.LaunchRequest) (*launcher.LaunchResult, error)
	IsAlive(pid int) bool
	// Stop returns true when the process is gone.
	Stop(pid int, force bool) bool
}

// Worktrees manages the isolated working trees agents run in.
type Worktrees interface {
	Create(branch, baseBranch string) (string, error)
	Locate(t *task.Task) (string, bool)
	Remove(path string, force bool) error
	Prepare(path, taskDir string) error
	HasUncommittedChanges(path string) (bool, error)
	CurrentBranch(dir string) (string, error)
	Verify(path string) []worktree.VerifyResult
	CommitAll(path, message string) error
	Push(path, branch string) error
	ChangedFiles(path, baseBranch string) ([]string, error)
	CommitLog(path, baseBranch string) (string, error)
}

// AgentRegistry persists launched agents.
type AgentRegistry interface {
	Add(agent registry.Agent) error
	GetByID(id string) (*registry.Agent, bool)
	GetByTaskDir(taskDir string) (*registry.Agent, bool)
	Search(term string) (*registry.Agent, bool)
	Remove(id string) (bool, error)
	List() []registry.Agent
	UpdateStatus(id string, status registry.Status) error
	SyncStatuses() (int, error)
}

// PRCreator opens pull requests.
type PRCreator interface {
	Create(ctx context.Context, opts pr.Options) (string, error)
}

var (
	_ ProcessLauncher = (*launcher.Launcher)(nil)
	_ Worktrees       = (*worktree.Manager)(nil)
	_ AgentRegistry   = (*registry.Store)(nil)
	_ PRCreator       = (*pr.Client)(nil)
)
