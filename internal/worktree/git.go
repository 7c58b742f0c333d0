// Package worktree creates, prepares and removes the isolated git worktrees
// that agents run in.
package worktree

import (
	"os/exec"
)

// CommandExecutor abstracts command execution for testability.
// This allows tests to mock git commands without executing them.
type CommandExecutor interface {
	// Run executes a command and returns combined output.
	Run(dir string, name string, args ...string) ([]byte, error)

	// RunQuiet executes a command and returns only the error.
	RunQuiet(dir string, name string, args ...string) error
}

// CLICommandExecutor executes commands using os/exec.
type CLICommandExecutor struct{}

// NewCLICommandExecutor creates a new CLI command executor.
func NewCLICommandExecutor() *CLICommandExecutor {
	return &CLICommandExecutor{}
}

// Run executes a command and returns combined output.
func (e *CLICommandExecutor) Run(dir string, name string, args ...string) ([]byte, error) {
	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	return cmd.CombinedOutput()
}

// RunQuiet executes a command and returns only the error.
func (e *CLICommandExecutor) RunQuiet(dir string, name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	return cmd.Run()
}

var _ CommandExecutor = (*CLICommandExecutor)(nil)
