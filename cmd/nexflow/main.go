package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"nexflow/cmd/nexflow/commands"
)

// Set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Errors are already printed in color by the commands.
	if err := commands.Execute(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
