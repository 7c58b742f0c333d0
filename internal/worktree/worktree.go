package worktree

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Iron-Ham/pipewright/internal/errors"
	"github.com/Iron-Ham/pipewright/internal/task"
)

// agentFiles are written into a worktree by pipewright itself. They are
// added to git's exclude file so they neither dirty the tree nor get committed.
var agentFiles = []string{".session-id", ".agent-log", ".agent-runner.sh", ".pipewright/.current-task"}

// Info describes one registered git worktree.
type Info struct {
	Path   string `json:"path"`
	Branch string `json:"branch,omitempty"`
	Head   string `json:"head,omitempty"`
}

// VerifyResult is the outcome of one verification command.
type VerifyResult struct {
	Command    string `json:"command"`
	Passed     bool   `json:"passed"`
	Output     string `json:"output,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Manager handles git worktree operations for one repository.
type Manager struct {
	repoDir  string
	cfg      Config
	executor CommandExecutor
}

// FindGitRoot finds the root of the git repository by traversing up from startDir.
// It returns the directory containing .git (either a directory or a file for worktrees).
func FindGitRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}
	for {
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			if info.IsDir() || info.Mode().IsRegular() {
				return dir, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.NewNotFoundError("git repository", startDir).WithCause(errors.ErrNotGitRepository)
		}
		dir = parent
	}
}

// FindMainRoot is FindGitRoot, except that from inside a linked worktree it
// returns the main working tree the worktree belongs to.
func FindMainRoot(startDir string) (string, error) {
	root, err := FindGitRoot(startDir)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(filepath.Join(root, ".git"))
	if err != nil {
		// .git is a directory
		return root, nil
	}
	gitdir, ok := strings.CutPrefix(strings.TrimSpace(string(data)), "gitdir:")
	if !ok {
		return root, nil
	}
	gitdir = strings.TrimSpace(gitdir)
	if !filepath.IsAbs(gitdir) {
		gitdir = filepath.Join(root, gitdir)
	}
	slashed := filepath.ToSlash(gitdir)
	if i := strings.LastIndex(slashed, "/.git/worktrees/"); i >= 0 {
		return filepath.FromSlash(slashed[:i]), nil
	}
	return root, nil
}

// New creates a Manager for the repository containing repoDir.
// A nil cfg behaves like an empty worktree.yaml.
func New(repoDir string, cfg *Config) (*Manager, error) {
	return NewWithExecutor(repoDir, cfg, NewCLICommandExecutor())
}

// NewWithExecutor creates a Manager with a custom executor.
// This is primarily useful for testing.
func NewWithExecutor(repoDir string, cfg *Config, executor CommandExecutor) (*Manager, error) {
	gitRoot, err := FindGitRoot(repoDir)
	if err != nil {
		return nil, errors.NewGitError("cannot manage worktrees", err).WithRepository(repoDir)
	}
	if cfg == nil {
		cfg = &Config{}
	}
	return &Manager{repoDir: gitRoot, cfg: *cfg, executor: executor}, nil
}

// RepoDir returns the repository root the manager operates on.
func (m *Manager) RepoDir() string {
	return m.repoDir
}

// BaseDir returns the directory new worktrees are created under.
func (m *Manager) BaseDir() string {
	return m.cfg.ResolveDir(m.repoDir)
}

// PathFor returns the worktree path derived from a branch name.
// Slashes in the branch become nested directories.
func (m *Manager) PathFor(branch string) string {
	return filepath.Join(m.BaseDir(), filepath.FromSlash(branch))
}

// Create adds a worktree for branch, starting from baseBranch, then copies
// the configured files and runs the post-create commands.
//
// If a worktree for branch already exists its path is returned together with
// an error matching errors.ErrWorktreeExists; callers treat that as success.
// A failing post-create command yields errors.ErrSetupFailed and leaves the
// worktree in place.
func (m *Manager) Create(branch, baseBranch string) (string, error) {
	if branch == "" {
		return "", errors.NewValidationError("branch is required").WithField("branch")
	}

	existing, found, err := m.findByBranch(branch)
	if err != nil {
		return "", err
	}
	path := m.PathFor(branch)
	if !found && isDir(path) {
		existing, found = path, true
	}
	if found {
		return existing, errors.NewConflictError("worktree already exists", errors.ErrWorktreeExists).
			WithResource(existing)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create worktree directory: %w", err)
	}

	args := []string{"worktree", "add"}
	if m.branchExists(branch) {
		// A previous cleanup removed the worktree but kept the branch.
		args = append(args, path, branch)
	} else {
		args = append(args, "-b", branch, path)
		if baseBranch != "" {
			args = append(args, baseBranch)
		}
	}
	if output, err := m.executor.Run(m.repoDir, "git", args...); err != nil {
		return "", errors.NewGitError("failed to create worktree", err).
			WithBranch(branch).
			WithWorktree(path).
			WithRepository(m.repoDir).
			WithGitOutput(string(output))
	}

	if err := m.excludeAgentFiles(path); err != nil {
		return path, err
	}
	if err := m.copyConfiguredFiles(path); err != nil {
		return path, err
	}
	if err := m.runPostCreate(path); err != nil {
		return path, err
	}
	return path, nil
}

func (m *Manager) runPostCreate(path string) error {
	for _, command := range m.cfg.PostCreate {
		output, err := m.executor.Run(path, "sh", "-c", command)
		if err != nil {
			msg := fmt.Sprintf("post-create command %q failed", command)
			if last := lastLine(output); last != "" {
				msg += ": " + last
			}
			return errors.NewConflictError(msg, errors.ErrSetupFailed).
				WithResource(path).
				WithHint("the worktree was left in place for inspection")
		}
	}
	return nil
}

// Locate finds an existing worktree for t: its recorded worktree_path if that
// directory exists, otherwise the path derived from its branch.
func (m *Manager) Locate(t *task.Task) (string, bool) {
	if t.WorktreePath != "" {
		p := t.WorktreePath
		if !filepath.IsAbs(p) {
			p = filepath.Join(m.repoDir, p)
		}
		if isDir(p) {
			return p, true
		}
	}
	if t.Branch != "" {
		if p := m.PathFor(t.Branch); isDir(p) {
			return p, true
		}
	}
	return "", false
}

// Remove unregisters and deletes the worktree at path. Unless force is set,
// a worktree with uncommitted changes is refused with errors.ErrDirtyWorktree.
// Removing a worktree that no longer exists only prunes stale metadata.
func (m *Manager) Remove(path string, force bool) error {
	if !isDir(path) {
		_ = m.executor.RunQuiet(m.repoDir, "git", "worktree", "prune")
		return nil
	}

	if !force {
		dirty, err := m.HasUncommittedChanges(path)
		if err != nil {
			return err
		}
		if dirty {
			return errors.NewConflictError("cannot remove worktree", errors.ErrDirtyWorktree).
				WithResource(path).
				WithHint("commit or stash the changes, or retry with --force")
		}
	}

	// Cleanliness was decided above, so git is always told to force.
	output, err := m.executor.Run(m.repoDir, "git", "worktree", "remove", "--force", path)
	if err != nil {
		if rmErr := os.RemoveAll(path); rmErr != nil {
			return errors.NewGitError("failed to remove worktree", err).
				WithWorktree(path).
				WithRepository(m.repoDir).
				WithGitOutput(string(output))
		}
	}
	_ = m.executor.RunQuiet(m.repoDir, "git", "worktree", "prune")
	return nil
}

// Prepare refreshes a worktree's copy of the task directory from the main
// repository and points the worktree's current-task file at it. Progress the
// agent already recorded in the worktree copy is kept (see keepProgress).
func (m *Manager) Prepare(path, taskDir string) error {
	rel := task.Rel(m.repoDir, taskDir)
	if filepath.IsAbs(rel) {
		return errors.NewValidationError("task directory is outside the repository").
			WithField("task_dir").
			WithValue(taskDir)
	}
	src := task.Resolve(m.repoDir, taskDir)
	dst := filepath.Join(path, filepath.FromSlash(rel))

	mainTask, ok := task.Read(src)
	if !ok {
		return errors.NewPreconditionError(errors.PreconditionTaskMissing, rel)
	}

	if err := copyDir(src, dst, task.FileName); err != nil {
		return fmt.Errorf("failed to copy task directory into worktree: %w", err)
	}

	merged := mainTask.Clone()
	if existing, ok := task.Read(dst); ok {
		keepProgress(merged, existing)
	}
	if err := task.Write(dst, merged); err != nil {
		return err
	}
	if err := task.SetCurrentTask(path, rel); err != nil {
		return err
	}
	return m.excludeAgentFiles(path)
}

// keepProgress copies the pipeline-owned fields set in the worktree copy wt
// onto merged. The worktree copy is where agents record progress, so it wins
// over the main copy for these fields.
func keepProgress(merged, wt *task.Task) {
	if wt.Status != "" {
		merged.Status = wt.Status
	}
	if wt.CurrentPhase > 0 {
		merged.CurrentPhase = wt.CurrentPhase
	}
	if wt.PRURL != "" {
		merged.PRURL = wt.PRURL
	}
	if wt.CompletedAt != "" {
		merged.CompletedAt = wt.CompletedAt
	}
	if wt.BaseBranch != "" {
		merged.BaseBranch = wt.BaseBranch
	}
}

// Verify runs every configured verification command in path and reports
// each outcome. All commands run even when an earlier one fails.
func (m *Manager) Verify(path string) []VerifyResult {
	results := make([]VerifyResult, 0, len(m.cfg.Verify))
	for _, command := range m.cfg.Verify {
		start := time.Now()
		output, err := m.executor.Run(path, "sh", "-c", command)
		results = append(results, VerifyResult{
			Command:    command,
			Passed:     err == nil,
			Output:     strings.TrimSpace(string(output)),
			DurationMs: time.Since(start).Milliseconds(),
		})
	}
	return results
}

// AllPassed reports whether every verification result passed.
func AllPassed(results []VerifyResult) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}

// List returns all worktrees registered with the repository, the main
// working tree first.
func (m *Manager) List() ([]Info, error) {
	output, err := m.executor.Run(m.repoDir, "git", "worktree", "list", "--porcelain")
	if err != nil {
		return nil, errors.NewGitError("failed to list worktrees", err).
			WithRepository(m.repoDir).
			WithGitOutput(string(output))
	}
	return parseWorktreeList(string(output)), nil
}

func parseWorktreeList(output string) []Info {
	var infos []Info
	var cur *Info
	for _, line := range strings.Split(output, "\n") {
		switch {
		case strings.HasPrefix(line, "worktree "):
			infos = append(infos, Info{Path: strings.TrimPrefix(line, "worktree ")})
			cur = &infos[len(infos)-1]
		case cur == nil:
		case strings.HasPrefix(line, "HEAD "):
			cur.Head = strings.TrimPrefix(line, "HEAD ")
		case strings.HasPrefix(line, "branch "):
			cur.Branch = strings.TrimPrefix(strings.TrimPrefix(line, "branch "), "refs/heads/")
		}
	}
	return infos
}

func (m *Manager) findByBranch(branch string) (string, bool, error) {
	infos, err := m.List()
	if err != nil {
		return "", false, err
	}
	for _, info := range infos {
		if info.Branch == branch && info.Path != m.repoDir {
			return info.Path, true, nil
		}
	}
	return "", false, nil
}

func (m *Manager) branchExists(branch string) bool {
	return m.executor.RunQuiet(m.repoDir, "git", "rev-parse", "--verify", "--quiet", "refs/heads/"+branch) == nil
}

// CurrentBranch returns the branch checked out in dir.
func (m *Manager) CurrentBranch(dir string) (string, error) {
	output, err := m.executor.Run(dir, "git", "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", errors.NewGitError("failed to get current branch", err).
			WithRepository(dir).
			WithGitOutput(string(output))
	}
	branch := strings.TrimSpace(string(output))
	if branch == "HEAD" {
		return "", errors.NewGitError("HEAD is detached", nil).WithRepository(dir)
	}
	return branch, nil
}

// HasUncommittedChanges reports whether path has changes other than the
// files pipewright manages itself.
func (m *Manager) HasUncommittedChanges(path string) (bool, error) {
	output, err := m.executor.Run(path, "git", "status", "--porcelain")
	if err != nil {
		return false, errors.NewGitError("failed to check git status", err).
			WithWorktree(path).
			WithGitOutput(string(output))
	}
	for _, line := range strings.Split(string(output), "\n") {
		if len(line) < 4 {
			continue
		}
		if !isManagedPath(line[3:]) {
			return true, nil
		}
	}
	return false, nil
}

func isManagedPath(p string) bool {
	p = strings.Trim(p, `"`)
	if strings.HasPrefix(p, ".pipewright/") {
		return true
	}
	for _, f := range agentFiles {
		if p == f {
			return true
		}
	}
	return false
}

// CommitAll stages and commits all changes with the given message.
// Returns nil if there are no changes to commit.
func (m *Manager) CommitAll(path, message string) error {
	output, err := m.executor.Run(path, "git", "add", "-A")
	if err != nil {
		return errors.NewGitError("failed to stage changes", err).
			WithWorktree(path).
			WithGitOutput(string(output))
	}

	output, err = m.executor.Run(path, "git", "commit", "-m", message)
	if err != nil {
		if strings.Contains(string(output), "nothing to commit") {
			return nil
		}
		return errors.NewGitError("failed to commit changes", err).
			WithWorktree(path).
			WithGitOutput(string(output))
	}
	return nil
}

// Push pushes branch from path to origin and sets the upstream.
func (m *Manager) Push(path, branch string) error {
	output, err := m.executor.Run(path, "git", "push", "-u", "origin", branch)
	if err != nil {
		return errors.NewGitError("failed to push branch", err).
			WithBranch(branch).
			WithWorktree(path).
			WithGitOutput(string(output)).
			WithRetryable(true)
	}
	return nil
}

// ChangedFiles lists files that differ between baseBranch and HEAD in path.
func (m *Manager) ChangedFiles(path, baseBranch string) ([]string, error) {
	output, err := m.executor.Run(path, "git", "diff", "--name-only", baseBranch+"...HEAD")
	if err != nil {
		return nil, errors.NewGitError("failed to list changed files", err).
			WithBranch(baseBranch).
			WithWorktree(path).
			WithGitOutput(string(output))
	}
	var files []string
	for _, line := range strings.Split(strings.TrimSpace(string(output)), "\n") {
		if line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}

// CommitLog returns commit subjects on HEAD since baseBranch, oldest first.
func (m *Manager) CommitLog(path, baseBranch string) (string, error) {
	output, err := m.executor.Run(path, "git", "log", "--reverse", "--pretty=format:- %s", baseBranch+"..HEAD")
	if err != nil {
		return "", errors.NewGitError("failed to get commit log", err).
			WithBranch(baseBranch).
			WithWorktree(path).
			WithGitOutput(string(output))
	}
	return strings.TrimSpace(string(output)), nil
}

// excludeAgentFiles appends agentFiles to the repository's exclude file as
// seen from path. Linked worktrees share the main repository's exclude file.
func (m *Manager) excludeAgentFiles(path string) error {
	output, err := m.executor.Run(path, "git", "rev-parse", "--git-path", "info/exclude")
	if err != nil {
		return errors.NewGitError("failed to locate exclude file", err).
			WithWorktree(path).
			WithGitOutput(string(output))
	}
	excludePath := lastLine(output)
	if excludePath == "" {
		return nil
	}
	if !filepath.IsAbs(excludePath) {
		excludePath = filepath.Join(path, excludePath)
	}

	existing, _ := os.ReadFile(excludePath)
	present := make(map[string]bool)
	for _, line := range strings.Split(string(existing), "\n") {
		present[strings.TrimSpace(line)] = true
	}

	var missing []string
	for _, f := range agentFiles {
		if !present["/"+f] {
			missing = append(missing, "/"+f)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(excludePath), 0755); err != nil {
		return fmt.Errorf("failed to create exclude directory: %w", err)
	}
	f, err := os.OpenFile(excludePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open exclude file: %w", err)
	}
	defer func() { _ = f.Close() }()

	block := strings.Join(missing, "\n") + "\n"
	if len(existing) > 0 && !strings.HasSuffix(string(existing), "\n") {
		block = "\n" + block
	}
	if _, err := f.WriteString(block); err != nil {
		return fmt.Errorf("failed to update exclude file: %w", err)
	}
	return nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func lastLine(output []byte) string {
	lines := strings.Split(strings.TrimSpace(string(output)), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
