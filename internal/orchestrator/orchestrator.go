package orchestrator

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Iron-Ham/pipewright/internal/config"
	"github.com/Iron-Ham/pipewright/internal/errors"
	"github.com/Iron-Ham/pipewright/internal/logging"
	"github.com/Iron-Ham/pipewright/internal/pr"
	"github.com/Iron-Ham/pipewright/internal/registry"
	"github.com/Iron-Ham/pipewright/internal/task"
)

// Orchestrator runs pipeline operations against one repository.
type Orchestrator struct {
	repoRoot  string
	cfg       *config.Config
	worktrees Worktrees
	registry  AgentRegistry
	launcher  ProcessLauncher
	prs       PRCreator
	logger    *logging.Logger
	now       func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger. The default discards output.
func WithLogger(l *logging.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithPRCreator overrides the gh-backed pull request client.
func WithPRCreator(p PRCreator) Option {
	return func(o *Orchestrator) {
		o.prs = p
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// New returns an Orchestrator for repoRoot. A nil cfg means config.Default().
func New(repoRoot string, cfg *config.Config, wt Worktrees, reg AgentRegistry, l ProcessLauncher, opts ...Option) *Orchestrator {
	if cfg == nil {
		cfg = config.Default()
	}
	o := &Orchestrator{
		repoRoot:  repoRoot,
		cfg:       cfg,
		worktrees: wt,
		registry:  reg,
		launcher:  l,
		prs:       pr.NewClient(),
		logger:    logging.NopLogger(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RepoRoot returns the repository the orchestrator works on.
func (o *Orchestrator) RepoRoot() string {
	return o.repoRoot
}

// tasksDir is the absolute paths.tasks_dir.
func (o *Orchestrator) tasksDir() string {
	return o.cfg.Paths.ResolveTasksDir(o.repoRoot)
}

// resolveTaskDir maps a bare task name that is not a directory under the
// repository root to the task of that name in the tasks directory.
func (o *Orchestrator) resolveTaskDir(taskDir string) string {
	if filepath.IsAbs(taskDir) || strings.ContainsAny(taskDir, `/\`) {
		return taskDir
	}
	if _, err := os.Stat(task.Resolve(o.repoRoot, taskDir)); err == nil {
		return taskDir
	}
	return filepath.Join(o.tasksDir(), taskDir)
}

// taskMissing reports rel as missing and names the tasks that do exist.
func (o *Orchestrator) taskMissing(rel string) error {
	err := errors.NewPreconditionError(errors.PreconditionTaskMissing, rel)
	dirs, lerr := task.List(o.tasksDir())
	if lerr != nil || len(dirs) == 0 {
		return err
	}
	names := make([]string, len(dirs))
	for i, d := range dirs {
		names[i] = task.Name(d)
	}
	return err.WithHint("available tasks: " + strings.Join(names, ", "))
}

// findAgent resolves term with registry search semantics.
func (o *Orchestrator) findAgent(term string) (*registry.Agent, error) {
	a, ok := o.registry.Search(term)
	if !ok {
		return nil, errors.NewNotFoundError("agent", term).WithCause(errors.ErrAgentNotFound)
	}
	return a, nil
}

// worktreeTaskDir is the copy of taskDir inside worktreePath.
func worktreeTaskDir(worktreePath, taskDir string) string {
	return filepath.Join(worktreePath, filepath.FromSlash(taskDir))
}

// readTask returns the authoritative copy of the task: the worktree copy
// when it exists, else the main repository copy. source is "worktree",
// "main" or "" when neither is readable.
func (o *Orchestrator) readTask(taskDir, worktreePath string) (t *task.Task, source string) {
	if worktreePath != "" {
		if t, ok := task.Read(worktreeTaskDir(worktreePath, taskDir)); ok {
			return t, "worktree"
		}
	}
	if t, ok := task.Read(task.Resolve(o.repoRoot, taskDir)); ok {
		return t, "main"
	}
	return nil, ""
}

// writeTask applies fn to the worktree copy of taskDir (when present) and
// then to the main repository copy, and returns the worktree result when
// there is one.
func (o *Orchestrator) writeTask(taskDir, worktreePath string, fn func(*task.Task)) (*task.Task, error) {
	var result *task.Task

	if worktreePath != "" {
		wtDir := worktreeTaskDir(worktreePath, taskDir)
		t, ok, err := task.Update(wtDir, fn)
		if err != nil {
			return nil, errors.Wrapf(err, "update worktree task %s", taskDir)
		}
		if ok {
			result = t
		}
	}

	t, ok, err := task.Update(task.Resolve(o.repoRoot, taskDir), fn)
	if err != nil {
		return nil, errors.Wrapf(err, "update task %s", taskDir)
	}
	if result == nil {
		if !ok {
			return nil, errors.NewPreconditionError(errors.PreconditionTaskMissing, taskDir)
		}
		result = t
	}
	return result, nil
}

// resolveBase picks the base branch for t: its own base_branch, the
// configured default, then whatever the repository root has checked out.
func (o *Orchestrator) resolveBase(t *task.Task) (string, error) {
	if t.BaseBranch != "" {
		return t.BaseBranch, nil
	}
	if o.cfg.Branch.DefaultBase != "" {
		return o.cfg.Branch.DefaultBase, nil
	}
	return o.worktrees.CurrentBranch(o.repoRoot)
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
