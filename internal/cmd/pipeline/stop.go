package pipeline

import "github.com/spf13/cobra"

var stopCmd = &cobra.Command{
	Use:   "stop <agent>",
	Short: "Stop a running agent",
	Long: `Stop terminates the agent's process and marks it stopped in the registry.
The worktree and task are left untouched; use "pipeline cleanup" to remove
them.`,
	Args: cobra.ExactArgs(1),
	RunE: runStop,
}

var stopForce bool

func init() {
	stopCmd.Flags().BoolVarP(&stopForce, "force", "f", false, "Kill the agent immediately")
}

// RegisterStopCmd registers the stop command with the given parent command.
func RegisterStopCmd(parent *cobra.Command) {
	parent.AddCommand(stopCmd)
}

func runStop(cmd *cobra.Command, args []string) error {
	return withRuntime(func(r *runtime) error {
		agent, err := r.orch.StopPipeline(args[0], stopForce)
		if err != nil {
			return err
		}
		if isJSON() {
			return printJSON(cmd.OutOrStdout(), agent)
		}
		info(cmd, "Stopped agent %s (pid %d)", agent.ID, agent.PID)
		return nil
	})
}
