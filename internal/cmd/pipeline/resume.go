package pipeline

import (
	"fmt"

	"github.com/spf13/cobra"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <agent>",
	Short: "Print the command that resumes an agent's session interactively",
	Long: `Resume prints a shell command that changes into the agent's worktree and
reopens its session in the foreground, e.g.

  eval "$(pipewright pipeline resume 01-auth)"`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

// RegisterResumeCmd registers the resume command with the given parent command.
func RegisterResumeCmd(parent *cobra.Command) {
	parent.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	return withRuntime(func(r *runtime) error {
		line, err := r.orch.ResumeCommand(args[0])
		if err != nil {
			return err
		}
		if isJSON() {
			return printJSON(cmd.OutOrStdout(), map[string]string{"command": line})
		}
		fmt.Fprintln(cmd.OutOrStdout(), line)
		return nil
	})
}
