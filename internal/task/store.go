package task

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Iron-Ham/pipewright/internal/errors"
	"github.com/Iron-Ham/pipewright/internal/util"
)

const (
	// FileName is the task document inside a task directory.
	FileName = "task.json"
	// DefaultReadinessFile is produced by the planning step once a task is
	// ready to be worked on.
	DefaultReadinessFile = "prd.md"
	// ArchiveDirName sits inside the tasks directory.
	ArchiveDirName = "archive"

	currentTaskFile = ".current-task"
)

// Path returns the task document path for taskDir.
func Path(taskDir string) string {
	return filepath.Join(taskDir, FileName)
}

// Read loads the task in taskDir. The boolean is false when the document is
// missing, unparseable or fails validation.
func Read(taskDir string) (*Task, bool) {
	data, err := os.ReadFile(Path(taskDir))
	if err != nil {
		return nil, false
	}

	var t Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, false
	}
	if Validate(&t) != nil {
		return nil, false
	}
	return &t, true
}

// Write validates t and atomically replaces taskDir/task.json.
func Write(taskDir string, t *Task) error {
	if err := Validate(t); err != nil {
		return errors.NewValidationError(err.Error()).WithField("task").WithValue(taskDir)
	}

	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}
	data = append(data, '\n')

	if err := util.AtomicWriteFile(Path(taskDir), data, 0644); err != nil {
		return fmt.Errorf("failed to write task %s: %w", taskDir, err)
	}
	return nil
}

// Update reads the task, applies fn and writes the result back. Fields fn
// does not touch, including unknown ones, are left as they were on disk.
// The boolean is false when there is no readable task in taskDir.
func Update(taskDir string, fn func(*Task)) (*Task, bool, error) {
	t, ok := Read(taskDir)
	if !ok {
		return nil, false, nil
	}
	fn(t)
	if err := Write(taskDir, t); err != nil {
		return nil, true, err
	}
	return t, true, nil
}

// HasReadiness reports whether the readiness artifact exists in taskDir.
// An empty name means DefaultReadinessFile.
func HasReadiness(taskDir, name string) bool {
	if name == "" {
		name = DefaultReadinessFile
	}
	info, err := os.Stat(filepath.Join(taskDir, name))
	return err == nil && !info.IsDir()
}

// Archive moves a completed or rejected task directory to
// <tasks_dir>/archive/YYYY-MM/<name> and returns the new location.
// A completed task is marked archived; a rejected one keeps its status.
// An empty tasksDir archives next to the task directory.
func Archive(repoRoot, tasksDir, taskDir string, now time.Time) (string, error) {
	abs := Resolve(repoRoot, taskDir)

	t, ok := Read(abs)
	if !ok {
		return "", errors.NewPreconditionError(errors.PreconditionTaskMissing, taskDir)
	}
	if !t.IsTerminal() {
		return "", errors.NewConflictError(fmt.Sprintf("task has status %q", t.Status), errors.ErrNotArchivable).
			WithResource(taskDir)
	}

	if t.Status == StatusCompleted {
		t.Status = StatusArchived
		if t.CompletedAt == "" {
			t.CompletedAt = now.UTC().Format(time.RFC3339)
		}
		if err := Write(abs, t); err != nil {
			return "", err
		}
	}

	if tasksDir == "" {
		tasksDir = filepath.Dir(abs)
	}
	dest := filepath.Join(tasksDir, ArchiveDirName, now.Format("2006-01"), filepath.Base(abs))
	if _, err := os.Stat(dest); err == nil {
		return "", errors.NewConflictError("archive destination already exists", errors.ErrNotArchivable).
			WithResource(dest)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}
	if err := os.Rename(abs, dest); err != nil {
		return "", fmt.Errorf("failed to archive task %s: %w", taskDir, err)
	}
	return dest, nil
}

// List returns the task directories directly under tasksDir that contain a
// task document, sorted by name. The archive directory is skipped.
func List(tasksDir string) ([]string, error) {
	entries, err := os.ReadDir(tasksDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var dirs []string
	for _, e := range entries {
		if !e.IsDir() || e.Name() == ArchiveDirName {
			continue
		}
		dir := filepath.Join(tasksDir, e.Name())
		if _, err := os.Stat(Path(dir)); err == nil {
			dirs = append(dirs, dir)
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

// Resolve makes taskDir absolute, interpreting relative paths against repoRoot.
func Resolve(repoRoot, taskDir string) string {
	if filepath.IsAbs(taskDir) {
		return filepath.Clean(taskDir)
	}
	return filepath.Join(repoRoot, taskDir)
}

// Rel expresses taskDir relative to repoRoot with forward slashes. Paths
// outside the repository are returned cleaned but otherwise unchanged.
func Rel(repoRoot, taskDir string) string {
	abs := Resolve(repoRoot, taskDir)
	rel, err := filepath.Rel(repoRoot, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return abs
	}
	return filepath.ToSlash(rel)
}

// Name is the task directory's base name, which doubles as the agent id.
func Name(taskDir string) string {
	return filepath.Base(filepath.Clean(taskDir))
}

func currentTaskPath(root string) string {
	return filepath.Join(root, ".pipewright", currentTaskFile)
}

// SetCurrentTask records taskDir (relative to root) as the active task of
// root, which is either the main repository or a worktree.
func SetCurrentTask(root, taskDir string) error {
	rel := Rel(root, taskDir)
	if err := util.AtomicWriteFile(currentTaskPath(root), []byte(rel+"\n"), 0644); err != nil {
		return fmt.Errorf("failed to write current task pointer: %w", err)
	}
	return nil
}

// CurrentTask returns the task directory recorded by SetCurrentTask,
// relative to root.
func CurrentTask(root string) (string, bool) {
	data, err := os.ReadFile(currentTaskPath(root))
	if err != nil {
		return "", false
	}
	rel := strings.TrimSpace(string(data))
	return rel, rel != ""
}

// ClearCurrentTask removes the pointer. A missing pointer is not an error.
func ClearCurrentTask(root string) error {
	if err := os.Remove(currentTaskPath(root)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
