package pipeline

import (
	"fmt"
	"strings"

	"github.com/Iron-Ham/pipewright/internal/orchestrator"
	"github.com/spf13/cobra"
)

var createPRCmd = &cobra.Command{
	Use:   "create-pr <agent>",
	Short: "Verify, commit, push and open a pull request",
	Long: `Create-pr runs the worktree's verify commands, commits any remaining
changes, pushes the branch and opens a pull request with the GitHub CLI.
The PR URL is recorded in the task and the task is marked completed.

Reviewers and labels come from the pr section of the config; reviewers can
be chosen per changed path with pr.reviewers_by_path.`,
	Args: cobra.ExactArgs(1),
	RunE: runCreatePR,
}

var (
	createPRDraft      bool
	createPRSkipVerify bool
	createPRTitle      string
)

func init() {
	createPRCmd.Flags().BoolVar(&createPRDraft, "draft", false, "Open the pull request as a draft")
	createPRCmd.Flags().BoolVar(&createPRSkipVerify, "skip-verify", false, "Skip the worktree verify commands")
	createPRCmd.Flags().StringVarP(&createPRTitle, "title", "t", "", "Pull request title (default: task title)")
}

// RegisterCreatePRCmd registers the create-pr command with the given parent command.
func RegisterCreatePRCmd(parent *cobra.Command) {
	parent.AddCommand(createPRCmd)
}

func runCreatePR(cmd *cobra.Command, args []string) error {
	return withRuntime(func(r *runtime) error {
		info(cmd, "Creating pull request for %s...", args[0])
		res, err := r.orch.CreatePR(cmd.Context(), args[0], orchestrator.PROptions{
			Draft:      createPRDraft,
			SkipVerify: createPRSkipVerify,
			Title:      createPRTitle,
		})
		if err != nil {
			return err
		}
		return reportPR(cmd, res)
	})
}

// reportPR writes the PR URL alone on stdout and the progress on stderr.
func reportPR(cmd *cobra.Command, res *orchestrator.PRResult) error {
	if isJSON() {
		return printJSON(cmd.OutOrStdout(), res)
	}
	for _, v := range res.Verify {
		info(cmd, "verify ok: %s", v.Command)
	}
	info(cmd, "Pushed %s (base %s)", res.Branch, res.Base)
	if len(res.Reviewers) > 0 {
		info(cmd, "Reviewers: %s", strings.Join(res.Reviewers, ", "))
	}
	fmt.Fprintln(cmd.OutOrStdout(), res.URL)
	return nil
}
