package pipeline

import (
	"fmt"

	"github.com/Iron-Ham/pipewright/internal/orchestrator"
	"github.com/spf13/cobra"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup <agent>",
	Short: "Stop an agent and remove its worktree",
	Long: `Cleanup stops the agent if it is still running, removes its worktree and
drops it from the registry. A worktree with uncommitted changes is kept
unless --force is given.

With --archive the task directory is moved into the archive afterwards.`,
	Args: cobra.ExactArgs(1),
	RunE: runCleanup,
}

var (
	cleanupArchive bool
	cleanupForce   bool
)

func init() {
	cleanupCmd.Flags().BoolVar(&cleanupArchive, "archive", false, "Archive the task directory after cleanup")
	cleanupCmd.Flags().BoolVarP(&cleanupForce, "force", "f", false, "Remove the worktree even with uncommitted changes")
}

// RegisterCleanupCmd registers the cleanup command with the given parent command.
func RegisterCleanupCmd(parent *cobra.Command) {
	parent.AddCommand(cleanupCmd)
}

func runCleanup(cmd *cobra.Command, args []string) error {
	return withRuntime(func(r *runtime) error {
		res, err := r.orch.CleanupPipeline(args[0], orchestrator.CleanupOptions{
			Archive: cleanupArchive,
			Force:   cleanupForce,
		})
		if res == nil {
			return err
		}
		if rerr := reportCleanup(cmd, res); rerr != nil {
			return rerr
		}
		return err
	})
}

// reportCleanup writes the archive path, if any, on stdout and the rest on
// stderr.
func reportCleanup(cmd *cobra.Command, res *orchestrator.CleanupResult) error {
	if isJSON() {
		return printJSON(cmd.OutOrStdout(), res)
	}
	if res.WorktreeRemoved {
		info(cmd, "Removed worktree %s", res.Agent.WorktreePath)
	}
	info(cmd, "Cleaned up agent %s", res.Agent.ID)
	if res.ArchivedTo != "" {
		info(cmd, "Archived task to:")
		fmt.Fprintln(cmd.OutOrStdout(), res.ArchivedTo)
	}
	return nil
}
