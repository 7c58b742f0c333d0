package orchestrator

import (
	"context"
	"strings"

	"github.com/Iron-Ham/pipewright/internal/errors"
	"github.com/Iron-Ham/pipewright/internal/phase"
	"github.com/Iron-Ham/pipewright/internal/pr"
	"github.com/Iron-Ham/pipewright/internal/task"
	"github.com/Iron-Ham/pipewright/internal/worktree"
)

// PROptions tune CreatePR.
type PROptions struct {
	// Draft opens a draft PR; pr.draft in config also enables it.
	Draft bool
	// SkipVerify skips the configured verification commands.
	SkipVerify bool
	// Title overrides the task title.
	Title string
}

// PRResult describes an opened pull request.
type PRResult struct {
	URL       string                  `json:"url"`
	Branch    string                  `json:"branch"`
	Base      string                  `json:"base"`
	Reviewers []string                `json:"reviewers,omitempty"`
	Verify    []worktree.VerifyResult `json:"verify,omitempty"`
}

// CreatePR verifies, commits and pushes the agent's worktree, opens a pull
// request against the task's base branch and records the result in the
// task: pr_url set, status completed, phase moved to create-pr.
func (o *Orchestrator) CreatePR(ctx context.Context, term string, opts PROptions) (*PRResult, error) {
	a, err := o.findAgent(term)
	if err != nil {
		return nil, err
	}
	if a.WorktreePath == "" || !isDir(a.WorktreePath) {
		return nil, errors.NewNotFoundError("worktree", a.ID).WithCause(errors.ErrWorktreeNotFound)
	}
	logger := o.logger.WithAgent(a.ID).WithTask(a.TaskDir)

	t, _ := o.readTask(a.TaskDir, a.WorktreePath)
	if t == nil {
		return nil, errors.NewPreconditionError(errors.PreconditionTaskMissing, a.TaskDir)
	}
	if t.Branch == "" {
		return nil, errors.NewPreconditionError(errors.PreconditionBranchUnset, a.TaskDir)
	}
	base, err := o.resolveBase(t)
	if err != nil {
		return nil, errors.Wrap(err, "resolve base branch")
	}

	result := &PRResult{Branch: t.Branch, Base: base}

	if !opts.SkipVerify {
		result.Verify = o.worktrees.Verify(a.WorktreePath)
		if !worktree.AllPassed(result.Verify) {
			var failed []string
			for _, r := range result.Verify {
				if !r.Passed {
					failed = append(failed, r.Command)
				}
			}
			logger.Warn("verification failed", "commands", failed)
			return result, errors.NewConflictError(strings.Join(failed, "; "), errors.ErrVerifyFailed).
				WithResource(a.WorktreePath).
				WithHint("fix the failing commands or pass --skip-verify")
		}
	}

	title := opts.Title
	if title == "" {
		title = pr.Title(t.Title, t.Branch)
	}

	if err := o.worktrees.CommitAll(a.WorktreePath, title); err != nil {
		return result, err
	}
	if err := o.worktrees.Push(a.WorktreePath, t.Branch); err != nil {
		return result, err
	}

	files, err := o.worktrees.ChangedFiles(a.WorktreePath, base)
	if err != nil {
		logger.Warn("failed to list changed files", "error", err)
	}
	commitLog, err := o.worktrees.CommitLog(a.WorktreePath, base)
	if err != nil {
		logger.Warn("failed to read commit log", "error", err)
	}

	body, err := pr.RenderTemplate(o.cfg.PR.Template, pr.TemplateData{
		TaskID:       task.Name(a.TaskDir),
		Title:        t.Title,
		Description:  t.Description,
		Branch:       t.Branch,
		Base:         base,
		ChangedFiles: files,
		CommitLog:    commitLog,
		LinkedIssue:  pr.ExtractIssueReference(t.Title + "\n" + t.Description),
	})
	if err != nil {
		return result, errors.Wrap(err, "render PR body")
	}
	result.Reviewers = pr.ResolveReviewers(files, o.cfg.PR.Reviewers, o.cfg.PR.ReviewersByPath)

	url, err := o.prs.Create(ctx, pr.Options{
		Title:     title,
		Body:      body,
		Branch:    t.Branch,
		Base:      base,
		Draft:     opts.Draft || o.cfg.PR.Draft,
		Reviewers: result.Reviewers,
		Labels:    o.cfg.PR.Labels,
		Dir:       a.WorktreePath,
	})
	if err != nil {
		return result, err
	}
	result.URL = url

	completedAt := o.timestamp()
	if _, err := o.writeTask(a.TaskDir, a.WorktreePath, func(t *task.Task) {
		t.PRURL = url
		t.Status = task.StatusCompleted
		if t.CompletedAt == "" {
			t.CompletedAt = completedAt
		}
		if p := phase.PhaseFor(t, task.ActionCreatePR); p > t.CurrentPhase {
			t.CurrentPhase = p
		}
	}); err != nil {
		return result, err
	}

	logger.Info("pull request opened", "url", url, "base", base, "branch", t.Branch)
	return result, nil
}
