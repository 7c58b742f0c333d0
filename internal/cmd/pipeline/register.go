// Package pipeline provides the "pipewright pipeline" command group: start,
// inspect, advance and tear down agent pipelines.
package pipeline

import (
	"github.com/Iron-Ham/pipewright/internal/errors"
	"github.com/Iron-Ham/pipewright/internal/logging"
	"github.com/spf13/cobra"
)

var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Manage agent pipelines",
	Long: `Manage agent pipelines. A pipeline is one task directory worked on by one
background agent inside its own git worktree.

Agents can be referred to by ID, by worktree path or by any substring of
their task directory.`,
}

// Register adds the pipeline command group to the given parent command.
func Register(parent *cobra.Command) {
	RegisterStartCmd(pipelineCmd)
	RegisterStopCmd(pipelineCmd)
	RegisterCleanupCmd(pipelineCmd)
	RegisterStatusCmd(pipelineCmd)
	RegisterListCmd(pipelineCmd)
	RegisterAdvanceCmd(pipelineCmd)
	RegisterCreatePRCmd(pipelineCmd)
	RegisterLogsCmd(pipelineCmd)
	RegisterResumeCmd(pipelineCmd)
	RegisterWatchCmd(pipelineCmd)
	parent.AddCommand(pipelineCmd)
}

// withRuntime builds a runtime for the duration of fn.
func withRuntime(fn func(r *runtime) error) error {
	r, err := newRuntime()
	if err != nil {
		return err
	}
	defer r.Close()
	if err := fn(r); err != nil {
		logFailure(r.logger, err)
		return err
	}
	return nil
}

// logFailure records a failed command at the level its severity calls for.
func logFailure(l *logging.Logger, err error) {
	severity := errors.GetSeverity(err)
	args := []any{"error", err.Error(), "kind", errors.KindOf(err), "severity", severity.String()}
	if severity == errors.SeverityWarning {
		l.Warn("command failed", args...)
		return
	}
	l.Error("command failed", args...)
}
