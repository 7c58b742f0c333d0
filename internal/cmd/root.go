package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Iron-Ham/pipewright/internal/cmd/pipeline"
	"github.com/Iron-Ham/pipewright/internal/config"
	"github.com/Iron-Ham/pipewright/internal/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "pipewright",
	Short: "Run coding agents on planned tasks in isolated git worktrees",
	Long: `Pipewright takes a planned task directory, gives it its own git worktree
and branch, launches a coding agent in the background to work through the
task's phases, and tracks the agent until its work is turned into a pull
request and the worktree is cleaned up.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command with ctx.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/pipewright/config.yaml)")
	rootCmd.PersistentFlags().Bool("json", false, "print machine-readable JSON on stdout")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))

	pipeline.Register(rootCmd)
}

func initConfig() {
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath("$HOME/.config/pipewright")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("PIPEWRIGHT")
	// PIPEWRIGHT_AGENT_PLATFORM overrides agent.platform
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	_ = viper.ReadInConfig()
}

// errorOutput is the --json form of a failed command.
type errorOutput struct {
	Error        string `json:"error"`
	Kind         string `json:"kind"`
	Precondition string `json:"precondition,omitempty"`
	Hint         string `json:"hint,omitempty"`
	Severity     string `json:"severity"`
	Retryable    bool   `json:"retryable"`
}

// Exit codes returned by the pipewright binary.
const (
	ExitFailure      = 1
	ExitInvalidInput = 2
)

// ExitCode maps err to the process exit status. Rejected input exits with
// ExitInvalidInput so scripts can tell it from a failed operation.
func ExitCode(err error) int {
	if errors.Is(err, errors.ErrInvalidInput) {
		return ExitInvalidInput
	}
	return ExitFailure
}

// ReportError prints err as "error: ..." on stderr, or as a JSON object on
// stdout when --json is set. Errors not meant for users are labeled as
// internal so they are not mistaken for something the operator can fix.
func ReportError(err error) {
	reportError(os.Stdout, os.Stderr, err, viper.GetBool("json"))
}

func reportError(stdout, stderr io.Writer, err error, asJSON bool) {
	if err == nil {
		return
	}
	if !asJSON {
		if errors.IsUserFacing(err) {
			fmt.Fprintf(stderr, "error: %v\n", err)
		} else {
			fmt.Fprintf(stderr, "error: internal error: %v\n", err)
		}
		return
	}

	out := errorOutput{
		Error:     err.Error(),
		Kind:      errors.KindOf(err),
		Severity:  errors.GetSeverity(err).String(),
		Retryable: errors.IsRetryable(err),
	}
	var pre *errors.PreconditionError
	var conflict *errors.ConflictError
	switch {
	case errors.As(err, &pre):
		out.Precondition = pre.Precondition
		out.Hint = pre.Hint
	case errors.As(err, &conflict):
		out.Hint = conflict.Hint
	}
	data, _ := json.MarshalIndent(out, "", "  ")
	fmt.Fprintln(stdout, string(data))
}
