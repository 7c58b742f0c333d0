package pipeline

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [agent]",
	Short: "Show an agent's task progress and recent log output",
	Long: `Status shows one agent in detail: its process state, the task's phase and
next action, and the tail of its log. Without an argument it prints the same
table as "pipeline list".

The task is read from the worktree copy when present, since that is the copy
the agent edits.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List registered agents",
	Args:    cobra.NoArgs,
	RunE:    runList,
}

// RegisterStatusCmd registers the status command with the given parent command.
func RegisterStatusCmd(parent *cobra.Command) {
	parent.AddCommand(statusCmd)
}

// RegisterListCmd registers the list command with the given parent command.
func RegisterListCmd(parent *cobra.Command) {
	parent.AddCommand(listCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return runList(cmd, args)
	}
	return withRuntime(func(r *runtime) error {
		st, err := r.orch.GetStatus(args[0])
		if err != nil {
			return err
		}
		if isJSON() {
			return printJSON(cmd.OutOrStdout(), st)
		}
		out := cmd.OutOrStdout()
		printStatusDetail(out, st, isTerminal(out), terminalWidth(out))
		return nil
	})
}

func runList(cmd *cobra.Command, _ []string) error {
	return withRuntime(func(r *runtime) error {
		statuses := r.orch.ListStatuses()
		if isJSON() {
			return printJSON(cmd.OutOrStdout(), statuses)
		}
		if len(statuses) == 0 {
			info(cmd, "No agents registered.")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderStatusTable(statuses, isTerminal(cmd.OutOrStdout())))
		return nil
	})
}
