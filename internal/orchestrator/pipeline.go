package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/Iron-Ham/pipewright/internal/errors"
	"github.com/Iron-Ham/pipewright/internal/launcher"
	"github.com/Iron-Ham/pipewright/internal/phase"
	"github.com/Iron-Ham/pipewright/internal/registry"
	"github.com/Iron-Ham/pipewright/internal/task"
)

// StartOptions tune StartPipeline.
type StartOptions struct {
	// Platform overrides agent.platform.
	Platform string
	// Prompt overrides the generated agent prompt.
	Prompt string
}

// StartResult describes a started pipeline.
type StartResult struct {
	Agent        registry.Agent `json:"agent"`
	WorktreePath string         `json:"worktree_path"`
	LogFile      string         `json:"log_file"`
	// Reused is true when an existing worktree was picked up.
	Reused bool `json:"reused"`
}

// StartPipeline launches a background agent for taskDir in its worktree,
// creating the worktree when needed. taskDir may be a bare task name, which
// is looked up in paths.tasks_dir.
//
// Preconditions are checked before anything is touched. A failure after
// the worktree exists leaves it in place so the start can be retried.
func (o *Orchestrator) StartPipeline(ctx context.Context, taskDir string, opts StartOptions) (*StartResult, error) {
	taskDir = o.resolveTaskDir(taskDir)
	rel := task.Rel(o.repoRoot, taskDir)
	abs := task.Resolve(o.repoRoot, taskDir)
	logger := o.logger.WithTask(rel)

	t, ok := task.Read(abs)
	if !ok {
		return nil, o.taskMissing(rel)
	}
	if t.Status == task.StatusRejected {
		return nil, errors.NewPreconditionError(errors.PreconditionTaskRejected, rel)
	}
	if !task.HasReadiness(abs, o.cfg.Paths.ReadinessFile) {
		return nil, errors.NewPreconditionError(errors.PreconditionReadinessMissing, rel)
	}
	if t.Branch == "" {
		return nil, errors.NewPreconditionError(errors.PreconditionBranchUnset, rel)
	}

	if existing, found := o.registry.GetByTaskDir(rel); found &&
		existing.Status == registry.StatusRunning && o.launcher.IsAlive(existing.PID) {
		return nil, errors.NewConflictError(fmt.Sprintf("agent %s is already running (pid %d)", existing.ID, existing.PID), errors.ErrAgentRunning).
			WithResource(rel).
			WithHint("stop it first with `pipewright pipeline stop " + existing.ID + "`")
	}

	id := task.Name(abs)
	if other, found := o.registry.GetByID(id); found && other.TaskDir != rel {
		return nil, errors.NewConflictError(fmt.Sprintf("agent id %s belongs to %s", id, other.TaskDir), errors.ErrAgentIDTaken).
			WithResource(rel).
			WithHint("clean it up with `pipewright pipeline cleanup " + other.ID + "` or rename one of the task directories")
	}

	base, err := o.resolveBase(t)
	if err != nil {
		return nil, errors.Wrap(err, "resolve base branch")
	}

	path, reused := o.worktrees.Locate(t)
	if !reused {
		path, err = o.worktrees.Create(t.Branch, base)
		if errors.Is(err, errors.ErrWorktreeExists) {
			reused, err = true, nil
		}
		if err != nil {
			return nil, err
		}
		logger.Info("worktree ready", "path", path, "branch", t.Branch, "base", base, "reused", reused)
	}

	if err := o.worktrees.Prepare(path, abs); err != nil {
		return nil, errors.Wrap(err, "prepare worktree")
	}

	// An agent records progress in the worktree copy only; carry it over to
	// the main copy so both agree after the restart.
	progress := 0
	if wt, ok := task.Read(worktreeTaskDir(path, rel)); ok {
		progress = wt.CurrentPhase
	}

	updated, err := o.writeTask(rel, path, func(t *task.Task) {
		t.Status = task.StatusInProgress
		t.WorktreePath = path
		if t.BaseBranch == "" {
			t.BaseBranch = base
		}
		if t.CurrentPhase < progress {
			t.CurrentPhase = progress
		}
		if t.CurrentPhase == 0 {
			t.CurrentPhase = phase.First(t)
		}
	})
	if err != nil {
		return nil, err
	}

	platform := opts.Platform
	if platform == "" {
		platform = o.cfg.Agent.Platform
	}
	prompt := opts.Prompt
	if prompt == "" {
		prompt = BuildPrompt(updated, rel)
	}

	res, err := o.launcher.Launch(ctx, launcher.LaunchRequest{
		Platform:   platform,
		WorkDir:    path,
		Background: true,
		Prompt:     prompt,
	})
	if err != nil {
		logger.Error("agent launch failed", "path", path, "error", err)
		return nil, err
	}

	agent := registry.Agent{
		ID:           id,
		WorktreePath: path,
		PID:          res.PID,
		StartedAt:    o.now().UTC(),
		TaskDir:      rel,
		Status:       registry.StatusRunning,
		SessionID:    res.SessionID,
		Platform:     platform,
		LogFile:      res.LogFile,
	}
	if err := o.registry.Add(agent); err != nil {
		return nil, errors.Wrapf(err, "register agent %s", agent.ID)
	}

	logger.WithAgent(agent.ID).WithPhase(phase.Describe(updated)).Info("pipeline started",
		"pid", agent.PID, "platform", platform, "worktree", path)

	return &StartResult{
		Agent:        agent,
		WorktreePath: path,
		LogFile:      res.LogFile,
		Reused:       reused,
	}, nil
}

// BuildPrompt is the instruction handed to a background agent.
func BuildPrompt(t *task.Task, taskDir string) string {
	step := "the first pending step"
	if action, ok := phase.ActionFor(t, t.CurrentPhase); ok {
		step = fmt.Sprintf("phase %d (%s)", t.CurrentPhase, action)
	}
	title := t.Title
	if title == "" {
		title = t.ID
	}
	return fmt.Sprintf(
		"You are working on task %q in %s. Read %s/task.json and the documents next to it, "+
			"then carry out the workflow in next_action starting at %s. "+
			"After finishing each phase, set current_phase in %s/task.json to the phase you completed "+
			"and commit your work on branch %s.",
		title, taskDir, taskDir, step, taskDir, t.Branch)
}

// StopPipeline terminates the agent matching term, if it is still running,
// and marks it stopped. The worktree is left alone.
func (o *Orchestrator) StopPipeline(term string, force bool) (*registry.Agent, error) {
	a, err := o.findAgent(term)
	if err != nil {
		return nil, err
	}
	logger := o.logger.WithAgent(a.ID)

	if o.launcher.IsAlive(a.PID) {
		if !o.launcher.Stop(a.PID, force) {
			logger.Warn("agent did not exit before the stop timeout", "pid", a.PID, "force", force)
		}
	}

	if err := o.registry.UpdateStatus(a.ID, registry.StatusStopped); err != nil {
		return nil, err
	}
	a.Status = registry.StatusStopped
	logger.Info("pipeline stopped", "pid", a.PID)
	return a, nil
}

// CleanupOptions tune CleanupPipeline.
type CleanupOptions struct {
	// Archive moves the task directory to the archive afterwards.
	Archive bool
	// Force removes a worktree with uncommitted changes and kills the agent.
	Force bool
}

// CleanupResult describes what CleanupPipeline removed.
type CleanupResult struct {
	Agent           registry.Agent `json:"agent"`
	WorktreeRemoved bool           `json:"worktree_removed"`
	ArchivedTo      string         `json:"archived_to,omitempty"`
}

// CleanupPipeline stops the agent matching term, removes its worktree and
// registry entry and optionally archives the task. A dirty worktree is
// refused before anything changes unless opts.Force is set.
func (o *Orchestrator) CleanupPipeline(term string, opts CleanupOptions) (*CleanupResult, error) {
	a, err := o.findAgent(term)
	if err != nil {
		return nil, err
	}
	logger := o.logger.WithAgent(a.ID)

	hasWorktree := a.WorktreePath != "" && isDir(a.WorktreePath)
	if hasWorktree && !opts.Force {
		dirty, err := o.worktrees.HasUncommittedChanges(a.WorktreePath)
		if err != nil {
			return nil, err
		}
		if dirty {
			return nil, errors.NewConflictError("cannot clean up "+a.ID, errors.ErrDirtyWorktree).
				WithResource(a.WorktreePath).
				WithHint("commit the changes, or retry with --force")
		}
	}

	if o.launcher.IsAlive(a.PID) && !o.launcher.Stop(a.PID, opts.Force) {
		o.launcher.Stop(a.PID, true)
	}

	result := &CleanupResult{Agent: *a}
	if hasWorktree {
		if err := o.worktrees.Remove(a.WorktreePath, true); err != nil {
			return nil, err
		}
		result.WorktreeRemoved = true
	}

	if _, err := o.registry.Remove(a.ID); err != nil {
		return nil, err
	}

	if _, _, err := task.Update(task.Resolve(o.repoRoot, a.TaskDir), func(t *task.Task) {
		t.WorktreePath = ""
	}); err != nil {
		logger.Warn("failed to clear worktree_path", "error", err)
	}

	logger.Info("pipeline cleaned up", "worktree", a.WorktreePath, "removed", result.WorktreeRemoved)

	if opts.Archive {
		dest, err := task.Archive(o.repoRoot, o.tasksDir(), a.TaskDir, o.now())
		if err != nil {
			return result, errors.Wrapf(err, "archive %s", a.TaskDir)
		}
		result.ArchivedTo = dest
		logger.Info("task archived", "dest", dest)
	}
	return result, nil
}

// AdvanceResult describes a phase transition.
type AdvanceResult struct {
	TaskDir string `json:"task_dir"`
	From    int    `json:"from"`
	To      int    `json:"to"`
	Action  string `json:"action"`
	Changed bool   `json:"changed"`
}

// AdvancePhase moves the task behind term (an agent or a task directory) to
// its next declared phase. At the final phase it is a no-op.
func (o *Orchestrator) AdvancePhase(term string) (*AdvanceResult, error) {
	taskDir, worktreePath, err := o.resolveTarget(term)
	if err != nil {
		return nil, err
	}

	t, _ := o.readTask(taskDir, worktreePath)
	if t == nil {
		return nil, errors.NewPreconditionError(errors.PreconditionTaskMissing, taskDir)
	}

	from, to := t.CurrentPhase, phase.Advance(t)
	result := &AdvanceResult{TaskDir: taskDir, From: from, To: to}
	result.Action, _ = phase.ActionFor(t, to)
	if to == from {
		return result, nil
	}

	if _, err := o.writeTask(taskDir, worktreePath, func(t *task.Task) {
		t.CurrentPhase = to
	}); err != nil {
		return nil, err
	}
	result.Changed = true
	o.logger.WithTask(taskDir).WithPhase(result.Action).Info("phase advanced", "from", from, "to", to)
	return result, nil
}

// resolveTarget maps an agent search term, or failing that a task
// directory, to the task directory and its worktree.
func (o *Orchestrator) resolveTarget(term string) (taskDir, worktreePath string, err error) {
	if a, ok := o.registry.Search(term); ok {
		return a.TaskDir, a.WorktreePath, nil
	}

	rel := task.Rel(o.repoRoot, term)
	t, ok := task.Read(task.Resolve(o.repoRoot, rel))
	if !ok {
		return "", "", errors.NewNotFoundError("agent or task", term).WithCause(errors.ErrAgentNotFound)
	}
	path, _ := o.worktrees.Locate(t)
	return rel, path, nil
}

// ResumeCommand returns the shell command that reattaches to the agent's
// session from its worktree.
func (o *Orchestrator) ResumeCommand(term string) (string, error) {
	a, err := o.findAgent(term)
	if err != nil {
		return "", err
	}
	sessionID := a.SessionID
	if sessionID == "" {
		sessionID = launcher.ReadSessionID(a.WorktreePath)
	}
	if sessionID == "" {
		return "", errors.NewNotFoundError("session", a.ID)
	}
	platform := a.Platform
	if platform == "" {
		platform = o.cfg.Agent.Platform
	}
	return launcher.ResumeCommand(platform, a.WorktreePath, sessionID), nil
}

// LogFile returns the agent log path for term.
func (o *Orchestrator) LogFile(term string) (string, error) {
	a, err := o.findAgent(term)
	if err != nil {
		return "", err
	}
	if a.LogFile != "" {
		return a.LogFile, nil
	}
	return launcher.LogFilePath(a.WorktreePath), nil
}

func (o *Orchestrator) timestamp() string {
	return o.now().UTC().Format(time.RFC3339)
}
