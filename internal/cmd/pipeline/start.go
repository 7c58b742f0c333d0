package pipeline

import (
	"fmt"

	"github.com/Iron-Ham/pipewright/internal/orchestrator"
	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start <task-dir|name>",
	Short: "Start an agent on a planned task",
	Long: `Start creates (or reuses) the task's worktree, copies the task directory
into it, marks the task in progress and launches a background agent.

The task must exist, must not be rejected, must name a branch and must carry
its readiness marker. A bare name such as 01-auth is looked up in
paths.tasks_dir.

Examples:
  pipewright pipeline start 01-auth
  pipewright pipeline start tasks/01-auth
  pipewright pipeline start tasks/01-auth --platform codex`,
	Args: cobra.ExactArgs(1),
	RunE: runStart,
}

var (
	startPlatform string
	startPrompt   string
)

func init() {
	startCmd.Flags().StringVarP(&startPlatform, "platform", "p", "", "Agent platform (default: agent.platform)")
	startCmd.Flags().StringVar(&startPrompt, "prompt", "", "Prompt to hand the agent instead of the generated one")
}

// RegisterStartCmd registers the start command with the given parent command.
func RegisterStartCmd(parent *cobra.Command) {
	parent.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	return withRuntime(func(r *runtime) error {
		res, err := r.orch.StartPipeline(cmd.Context(), args[0], orchestrator.StartOptions{
			Platform: startPlatform,
			Prompt:   startPrompt,
		})
		if err != nil {
			return err
		}
		return reportStart(cmd, res)
	})
}

// reportStart writes the agent ID on stdout and the details on stderr.
func reportStart(cmd *cobra.Command, res *orchestrator.StartResult) error {
	if isJSON() {
		return printJSON(cmd.OutOrStdout(), res)
	}
	verb := "Created"
	if res.Reused {
		verb = "Reused"
	}
	info(cmd, "%s worktree %s", verb, res.WorktreePath)
	info(cmd, "Started agent %s (pid %d, %s)", res.Agent.ID, res.Agent.PID, res.Agent.Platform)
	info(cmd, "Logs: %s", res.LogFile)
	fmt.Fprintln(cmd.OutOrStdout(), res.Agent.ID)
	return nil
}
