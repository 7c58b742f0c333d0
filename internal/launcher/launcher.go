// Package launcher starts coding-agent processes inside worktrees and
// observes them afterwards by PID.
//
// A background launch writes three files into the work directory:
// .session-id, .agent-runner.sh and .agent-log. The runner is started in a
// new session and released, so the agent outlives the CLI invocation. The
// filesystem and the PID are the only channel back to it.
package launcher

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/Iron-Ham/pipewright/internal/errors"
	"github.com/Iron-Ham/pipewright/internal/logging"
	"github.com/google/uuid"
)

// Files written into the work directory by a background launch.
const (
	SessionIDFile = ".session-id"
	RunnerFile    = ".agent-runner.sh"
	LogFile       = ".agent-log"
)

// DefaultStopTimeout bounds how long Stop waits for a process to exit.
const DefaultStopTimeout = 5 * time.Second

const defaultPollInterval = 100 * time.Millisecond

// LaunchRequest describes one agent run.
type LaunchRequest struct {
	Platform   string
	WorkDir    string
	Background bool
	Prompt     string
	// SessionID is generated when empty.
	SessionID string
}

// LaunchResult is returned once the process has been started (background)
// or has exited (foreground).
type LaunchResult struct {
	PID       int
	SessionID string
	// LogFile is empty for foreground runs.
	LogFile string
	// ExitCode is only meaningful for foreground runs.
	ExitCode int
}

// Launcher spawns and stops agent processes.
type Launcher struct {
	logger       *logging.Logger
	stopTimeout  time.Duration
	pollInterval time.Duration
	lookPath     func(string) (string, error)
	getenv       func(string) string
}

// Option configures a Launcher.
type Option func(*Launcher)

// WithLogger sets the logger. The default discards output.
func WithLogger(l *logging.Logger) Option {
	return func(ln *Launcher) {
		if l != nil {
			ln.logger = l
		}
	}
}

// WithStopTimeout overrides DefaultStopTimeout. Non-positive values are ignored.
func WithStopTimeout(d time.Duration) Option {
	return func(ln *Launcher) {
		if d > 0 {
			ln.stopTimeout = d
		}
	}
}

// New returns a Launcher configured with opts.
func New(opts ...Option) *Launcher {
	l := &Launcher{
		logger:       logging.NopLogger(),
		stopTimeout:  DefaultStopTimeout,
		pollInterval: defaultPollInterval,
		lookPath:     exec.LookPath,
		getenv:       os.Getenv,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Launch starts the platform's agent in req.WorkDir.
func (l *Launcher) Launch(ctx context.Context, req LaunchRequest) (*LaunchResult, error) {
	p, err := Lookup(req.Platform)
	if err != nil {
		return nil, errors.NewProcessError("cannot launch agent", err).
			WithPlatform(req.Platform).
			WithWorkDir(req.WorkDir)
	}

	if info, statErr := os.Stat(req.WorkDir); statErr != nil || !info.IsDir() {
		if statErr == nil {
			statErr = fmt.Errorf("%s is not a directory", req.WorkDir)
		}
		return nil, errors.NewProcessError("invalid work directory", statErr).
			WithPlatform(p.Name()).
			WithWorkDir(req.WorkDir)
	}

	if req.Background && !p.SupportsMultiAgent() {
		return nil, errors.NewProcessError(
			fmt.Sprintf("%s does not support background agents; run it in the foreground", p.Name()), nil).
			WithPlatform(p.Name()).
			WithWorkDir(req.WorkDir)
	}

	binary, err := l.lookPath(p.Binary())
	if err != nil {
		return nil, errors.NewProcessError(fmt.Sprintf("agent binary %q not found", p.Binary()), err).
			WithPlatform(p.Name()).
			WithWorkDir(req.WorkDir)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	logger := l.logger.With("platform", p.Name(), "work_dir", req.WorkDir, "session_id", sessionID)

	if !req.Background {
		return l.runForeground(ctx, p, binary, req, sessionID, logger)
	}
	return l.spawnBackground(p, binary, req, sessionID, logger)
}

func (l *Launcher) runForeground(ctx context.Context, p Platform, binary string, req LaunchRequest, sessionID string, logger *logging.Logger) (*LaunchResult, error) {
	cmd := exec.CommandContext(ctx, binary, p.Command(req.Prompt, sessionID, false)...)
	cmd.Dir = req.WorkDir
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return nil, errors.NewProcessError("failed to start agent", err).
			WithPlatform(p.Name()).
			WithWorkDir(req.WorkDir)
	}
	result := &LaunchResult{PID: cmd.Process.Pid, SessionID: sessionID}
	logger.Info("foreground agent started", "pid", result.PID)

	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return result, errors.NewProcessError("agent run failed", err).
				WithPlatform(p.Name()).
				WithWorkDir(req.WorkDir)
		}
		result.ExitCode = exitErr.ExitCode()
	}
	logger.Info("foreground agent exited", "pid", result.PID, "exit_code", result.ExitCode)
	return result, nil
}

func (l *Launcher) spawnBackground(p Platform, binary string, req LaunchRequest, sessionID string, logger *logging.Logger) (*LaunchResult, error) {
	procErr := func(msg string, err error) error {
		return errors.NewProcessError(msg, err).WithPlatform(p.Name()).WithWorkDir(req.WorkDir)
	}

	if err := os.WriteFile(filepath.Join(req.WorkDir, SessionIDFile), []byte(sessionID+"\n"), 0644); err != nil {
		return nil, procErr("failed to write session id", err)
	}

	scriptPath := filepath.Join(req.WorkDir, RunnerFile)
	script := runnerScript(req.WorkDir, binary, p.Command(req.Prompt, sessionID, true), l.getenv)
	if err := writeRunnerScript(scriptPath, script); err != nil {
		return nil, procErr("failed to write runner script", err)
	}

	logPath := LogFilePath(req.WorkDir)
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, procErr("failed to open agent log", err)
	}
	defer func() { _ = logFile.Close() }()

	fmt.Fprintf(logFile, "=== %s %s session %s ===\n", time.Now().Format(time.RFC3339), p.Name(), sessionID)

	cmd := exec.Command("/bin/sh", scriptPath)
	cmd.Dir = req.WorkDir
	cmd.Stdin = nil
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	detach(cmd)

	if err := cmd.Start(); err != nil {
		return nil, procErr("failed to start agent", err)
	}
	pid := cmd.Process.Pid

	// The runner is owned by its own session now.
	if err := cmd.Process.Release(); err != nil {
		logger.Warn("failed to release agent process", "pid", pid, "error", err)
	}

	logger.Info("background agent started", "pid", pid, "log_file", logPath)
	return &LaunchResult{PID: pid, SessionID: sessionID, LogFile: logPath}, nil
}

// IsAlive reports whether pid refers to a running process.
func (l *Launcher) IsAlive(pid int) bool {
	return IsAlive(pid)
}

// Stop asks pid to exit (SIGTERM, or SIGKILL when force) and waits up to the
// stop timeout. It returns true when the process is gone and never fails.
func (l *Launcher) Stop(pid int, force bool) bool {
	if !IsAlive(pid) {
		return true
	}

	if err := terminate(pid, force); err != nil {
		l.logger.Debug("signal failed", "pid", pid, "force", force, "error", err)
		return !IsAlive(pid)
	}

	deadline := time.Now().Add(l.stopTimeout)
	for time.Now().Before(deadline) {
		if !IsAlive(pid) {
			l.logger.Info("agent stopped", "pid", pid, "force", force)
			return true
		}
		time.Sleep(l.pollInterval)
	}

	alive := IsAlive(pid)
	if alive {
		l.logger.Warn("agent still running after stop timeout", "pid", pid, "timeout", l.stopTimeout)
	}
	return !alive
}

// ResumeCommand returns a shell command line that reattaches to sessionID
// from workDir. Unknown platforms fall back to claude's arguments.
func ResumeCommand(platform, workDir, sessionID string) string {
	p, err := Lookup(platform)
	if err != nil {
		p = claudePlatform{}
	}
	parts := append([]string{p.Binary()}, p.ResumeArgs(sessionID)...)
	return "cd " + shellQuote(workDir) + " && " + shellJoin(parts)
}

// LogFilePath returns the agent log location inside workDir.
func LogFilePath(workDir string) string {
	return filepath.Join(workDir, LogFile)
}

// ReadSessionID returns the session id recorded in workDir, or "".
func ReadSessionID(workDir string) string {
	data, err := os.ReadFile(filepath.Join(workDir, SessionIDFile))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
