package pipeline

import "github.com/spf13/cobra"

var advanceCmd = &cobra.Command{
	Use:   "advance <agent|task-dir>",
	Short: "Move a task to its next workflow phase",
	Long: `Advance sets the task's current phase to the next phase in its workflow.
Both the worktree copy and the main copy of the task are updated. A task
already on its final phase is left as is.`,
	Args: cobra.ExactArgs(1),
	RunE: runAdvance,
}

// RegisterAdvanceCmd registers the advance command with the given parent command.
func RegisterAdvanceCmd(parent *cobra.Command) {
	parent.AddCommand(advanceCmd)
}

func runAdvance(cmd *cobra.Command, args []string) error {
	return withRuntime(func(r *runtime) error {
		res, err := r.orch.AdvancePhase(args[0])
		if err != nil {
			return err
		}
		if isJSON() {
			return printJSON(cmd.OutOrStdout(), res)
		}
		if !res.Changed {
			info(cmd, "%s is already on its final phase (%d: %s)", res.TaskDir, res.To, res.Action)
			return nil
		}
		info(cmd, "%s: phase %d -> %d (%s)", res.TaskDir, res.From, res.To, res.Action)
		return nil
	})
}
