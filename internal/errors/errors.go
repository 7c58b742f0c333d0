// Package errors provides centralized error definitions and error handling utilities
// for pipewright. It defines domain-specific errors, semantic error types,
// error constructors with context wrapping, and error classification helpers.
//
// # Error Kinds
//
// Errors fall into four kinds that drive how the CLI reports them:
//   - Precondition: a task is not in a startable state (PreconditionError)
//   - Conflict: a resource is in the way (ConflictError, ErrWorktreeExists, ErrDirtyWorktree)
//   - Process: an agent could not be launched (ProcessError)
//   - Integrity: an unreadable document; never surfaced, callers degrade to empty values
//
// Checking errors:
//
//	if errors.Is(err, errors.ErrDirtyWorktree) { ... }
//
//	var pre *errors.PreconditionError
//	if errors.As(err, &pre) { ... }
//
//	if errors.IsRetryable(err) { ... }
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning Severity = iota
	// SeverityError is for errors that indicate a real problem.
	SeverityError
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Task-related sentinel errors
var (
	// ErrTaskNotFound indicates that a task document could not be read.
	ErrTaskNotFound = New("task not found")
	// ErrTaskRejected indicates that the task was rejected by the planning step.
	ErrTaskRejected = New("task is rejected")
	// ErrReadinessMissing indicates that the planning step has not produced its artifact yet.
	ErrReadinessMissing = New("missing readiness artifact")
	// ErrBranchUnset indicates that the task has no branch configured.
	ErrBranchUnset = New("task branch is not set")
	// ErrNotArchivable indicates that a task is not in a terminal status.
	ErrNotArchivable = New("task is not completed or rejected")
)

// Agent-related sentinel errors
var (
	// ErrAgentNotFound indicates that no registry entry matched.
	ErrAgentNotFound = New("agent not found")
	// ErrAgentRunning indicates that a live agent already owns the task.
	ErrAgentRunning = New("agent already running")
	// ErrAgentIDTaken indicates that another task directory already owns the agent id.
	ErrAgentIDTaken = New("agent id already in use")
	// ErrLaunchFailed indicates that the agent process could not be started.
	ErrLaunchFailed = New("agent failed to launch")
	// ErrUnknownPlatform indicates an agent platform outside the supported set.
	ErrUnknownPlatform = New("unknown agent platform")
)

// Git-related sentinel errors
var (
	// ErrNotGitRepository indicates that the directory is not a git repository.
	ErrNotGitRepository = New("not a git repository")
	// ErrWorktreeNotFound indicates that a worktree could not be found.
	ErrWorktreeNotFound = New("worktree not found")
	// ErrWorktreeExists indicates that a worktree already exists.
	ErrWorktreeExists = New("worktree already exists")
	// ErrDirtyWorktree indicates that the worktree has uncommitted changes.
	ErrDirtyWorktree = New("worktree has uncommitted changes")
	// ErrSetupFailed indicates that a post-create command exited non-zero.
	ErrSetupFailed = New("worktree setup command failed")
	// ErrVerifyFailed indicates that a verification command exited non-zero.
	ErrVerifyFailed = New("worktree verification failed")
)

// General sentinel errors
var (
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// PipelineError is the base interface for all pipewright errors.
type PipelineError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Kind returns the machine-readable error kind used in --json output.
	Kind() string

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the same command may succeed once the
	// operator has resolved the reported condition.
	IsRetryable() bool

	// IsUserFacing returns true if the error message is safe to display
	// to end users.
	IsUserFacing() bool
}

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	kind       string
	severity   Severity
	retryable  bool
	userFacing bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Kind returns the error kind.
func (e *baseError) Kind() string {
	return e.kind
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// IsUserFacing returns whether the error is safe to show users.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// Precondition kinds reported by PreconditionError.
const (
	PreconditionTaskMissing      = "task_missing"
	PreconditionTaskRejected     = "task_rejected"
	PreconditionReadinessMissing = "readiness_missing"
	PreconditionBranchUnset      = "branch_unset"
)

// PreconditionError reports a task that cannot be started. It is raised
// before any side effect takes place.
//
// Example:
//
//	err := errors.NewPreconditionError(errors.PreconditionBranchUnset, ".pipewright/tasks/01-auth")
//	fmt.Println(err) // "precondition failed [branch_unset] for .pipewright/tasks/01-auth: task branch is not set"
type PreconditionError struct {
	baseError
	Precondition string
	TaskDir      string
	Hint         string
}

// NewPreconditionError creates a PreconditionError for the given precondition kind.
func NewPreconditionError(precondition, taskDir string) *PreconditionError {
	return &PreconditionError{
		baseError: baseError{
			message:    "precondition failed",
			cause:      preconditionCause(precondition),
			kind:       "precondition",
			severity:   SeverityWarning,
			userFacing: true,
		},
		Precondition: precondition,
		TaskDir:      taskDir,
	}
}

func preconditionCause(precondition string) error {
	switch precondition {
	case PreconditionTaskMissing:
		return ErrTaskNotFound
	case PreconditionTaskRejected:
		return ErrTaskRejected
	case PreconditionReadinessMissing:
		return ErrReadinessMissing
	case PreconditionBranchUnset:
		return ErrBranchUnset
	default:
		return ErrInvalidInput
	}
}

// WithHint adds operator guidance to the error.
func (e *PreconditionError) WithHint(hint string) *PreconditionError {
	e.Hint = hint
	return e
}

// Error returns the formatted error message.
func (e *PreconditionError) Error() string {
	msg := fmt.Sprintf("precondition failed [%s] for %s: %v", e.Precondition, e.TaskDir, e.cause)
	if e.Hint != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Hint)
	}
	return msg
}

// Is checks if this error matches the target.
func (e *PreconditionError) Is(target error) bool {
	if _, ok := target.(*PreconditionError); ok {
		return true
	}
	return errors.Is(e.cause, target)
}

// ConflictError reports a resource that blocks an operation until the
// operator resolves it (a dirty worktree, a live agent).
//
// Example:
//
//	err := errors.NewConflictError("cannot remove worktree", errors.ErrDirtyWorktree).
//		WithResource("/repo/../wt/feature-x").
//		WithHint("commit or stash the changes, or pass --force")
type ConflictError struct {
	baseError
	Resource string
	Hint     string
}

// NewConflictError creates a new ConflictError.
func NewConflictError(message string, cause error) *ConflictError {
	return &ConflictError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			kind:       "conflict",
			severity:   SeverityWarning,
			retryable:  true,
			userFacing: true,
		},
	}
}

// WithResource adds the conflicting resource to the error context.
func (e *ConflictError) WithResource(resource string) *ConflictError {
	e.Resource = resource
	return e
}

// WithHint adds operator guidance to the error.
func (e *ConflictError) WithHint(hint string) *ConflictError {
	e.Hint = hint
	return e
}

// Error returns the formatted error message.
func (e *ConflictError) Error() string {
	prefix := "conflict"
	if e.Resource != "" {
		prefix = fmt.Sprintf("conflict [%s]", e.Resource)
	}
	msg := fmt.Sprintf("%s: %s", prefix, e.baseError.Error())
	if e.Hint != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Hint)
	}
	return msg
}

// Is checks if this error matches the target.
func (e *ConflictError) Is(target error) bool {
	if _, ok := target.(*ConflictError); ok {
		return true
	}
	return errors.Is(e.cause, target)
}

// ProcessError represents a failure to launch an agent process.
//
// Example:
//
//	err := errors.NewProcessError("binary not found", execErr).WithPlatform("codex")
type ProcessError struct {
	baseError
	AgentID  string
	Platform string
	WorkDir  string
}

// NewProcessError creates a new ProcessError.
func NewProcessError(message string, cause error) *ProcessError {
	return &ProcessError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			kind:       "process",
			severity:   SeverityError,
			userFacing: true,
		},
	}
}

// WithAgentID adds an agent ID to the error context.
func (e *ProcessError) WithAgentID(id string) *ProcessError {
	e.AgentID = id
	return e
}

// WithPlatform adds the agent platform to the error context.
func (e *ProcessError) WithPlatform(platform string) *ProcessError {
	e.Platform = platform
	return e
}

// WithWorkDir adds the working directory to the error context.
func (e *ProcessError) WithWorkDir(dir string) *ProcessError {
	e.WorkDir = dir
	return e
}

// Error returns the formatted error message.
func (e *ProcessError) Error() string {
	var parts []string
	if e.AgentID != "" {
		parts = append(parts, fmt.Sprintf("agent=%s", e.AgentID))
	}
	if e.Platform != "" {
		parts = append(parts, fmt.Sprintf("platform=%s", e.Platform))
	}
	if e.WorkDir != "" {
		parts = append(parts, fmt.Sprintf("dir=%s", e.WorkDir))
	}

	prefix := "process error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("process error [%s]", strings.Join(parts, ", "))
	}
	return fmt.Sprintf("%s: %s", prefix, e.baseError.Error())
}

// Is checks if this error matches the target.
func (e *ProcessError) Is(target error) bool {
	if _, ok := target.(*ProcessError); ok {
		return true
	}
	if target == ErrLaunchFailed {
		return true
	}
	return errors.Is(e.cause, target)
}

// GitError represents errors related to git operations.
//
// Example:
//
//	err := errors.NewGitError("failed to create worktree", cause)
//	err = err.WithBranch("feature-x").WithWorktree("/path/to/worktree")
type GitError struct {
	baseError
	Branch     string
	Worktree   string
	Repository string
	GitOutput  string // Captured git command output
}

// NewGitError creates a new GitError.
func NewGitError(message string, cause error) *GitError {
	return &GitError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			kind:       "git",
			severity:   SeverityError,
			userFacing: true,
		},
	}
}

// WithBranch adds a branch name to the error context.
func (e *GitError) WithBranch(branch string) *GitError {
	e.Branch = branch
	return e
}

// WithWorktree adds a worktree path to the error context.
func (e *GitError) WithWorktree(path string) *GitError {
	e.Worktree = path
	return e
}

// WithRepository adds a repository path to the error context.
func (e *GitError) WithRepository(path string) *GitError {
	e.Repository = path
	return e
}

// WithGitOutput adds git command output to the error context.
func (e *GitError) WithGitOutput(output string) *GitError {
	e.GitOutput = strings.TrimSpace(output)
	return e
}

// WithRetryable sets whether the error is retryable.
func (e *GitError) WithRetryable(r bool) *GitError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *GitError) Error() string {
	var parts []string
	if e.Branch != "" {
		parts = append(parts, fmt.Sprintf("branch=%s", e.Branch))
	}
	if e.Worktree != "" {
		parts = append(parts, fmt.Sprintf("worktree=%s", e.Worktree))
	}
	if e.Repository != "" {
		parts = append(parts, fmt.Sprintf("repo=%s", e.Repository))
	}

	prefix := "git error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("git error [%s]", strings.Join(parts, ", "))
	}

	msg := e.baseError.Error()
	if e.GitOutput != "" {
		msg = fmt.Sprintf("%s\ngit output: %s", msg, e.GitOutput)
	}

	return fmt.Sprintf("%s: %s", prefix, msg)
}

// Is checks if this error matches the target.
func (e *GitError) Is(target error) bool {
	if _, ok := target.(*GitError); ok {
		return true
	}
	return errors.Is(e.cause, target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// NotFoundError represents a resource that could not be found.
//
// Example:
//
//	err := errors.NewNotFoundError("agent", "01-auth")
//	fmt.Println(err) // "agent '01-auth' not found"
type NotFoundError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{
		baseError: baseError{
			message:    fmt.Sprintf("%s '%s' not found", resourceType, resourceID),
			kind:       "not_found",
			severity:   SeverityWarning,
			userFacing: true,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// WithCause adds a cause to the error.
func (e *NotFoundError) WithCause(cause error) *NotFoundError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *NotFoundError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s '%s' not found: %v", e.ResourceType, e.ResourceID, e.cause)
	}
	return fmt.Sprintf("%s '%s' not found", e.ResourceType, e.ResourceID)
}

// Is checks if this error matches the target.
func (e *NotFoundError) Is(target error) bool {
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	return errors.Is(e.cause, target)
}

// ValidationError represents invalid input or state.
//
// Example:
//
//	err := errors.NewValidationError("agent platform is not supported").WithField("platform").WithValue("vim")
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:    message,
			kind:       "validation",
			severity:   SeverityWarning,
			userFacing: true,
		},
	}
}

// WithField adds a field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// WithCause adds a cause to the error.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}

	prefix := "validation error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("validation error [%s]", strings.Join(parts, ", "))
	}

	return fmt.Sprintf("%s: %s", prefix, e.baseError.Error())
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if target == ErrInvalidInput {
		return true
	}
	return errors.Is(e.cause, target)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error represents a condition that may
// clear once the operator acts (conflicts, transient git failures).
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var pipelineErr PipelineError
	if As(err, &pipelineErr) {
		return pipelineErr.IsRetryable()
	}
	return false
}

// IsUserFacing returns true if the error message is safe to display to end users.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}

	var pipelineErr PipelineError
	if As(err, &pipelineErr) {
		return pipelineErr.IsUserFacing()
	}
	return false
}

// KindOf returns the machine-readable kind of err, or "internal" for errors
// that do not carry one.
func KindOf(err error) string {
	if err == nil {
		return ""
	}

	var pipelineErr PipelineError
	if As(err, &pipelineErr) {
		return pipelineErr.Kind()
	}
	return "internal"
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement PipelineError.
func GetSeverity(err error) Severity {
	var pipelineErr PipelineError
	if As(err, &pipelineErr) {
		return pipelineErr.Severity()
	}
	return SeverityError
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
// Unlike a bare fmt.Errorf, it returns nil for a nil error.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
