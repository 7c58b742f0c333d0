package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Iron-Ham/pipewright/internal/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx); err != nil {
		cmd.ReportError(err)
		stop()
		os.Exit(cmd.ExitCode(err))
	}
}
