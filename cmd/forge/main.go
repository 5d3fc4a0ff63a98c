// Command forge is the CLI entry point for the contract-delivery pipeline.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hyperion-agent/contractforge/internal/cliutil"
)

func main() {
	newLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(cliutil.PrintError(os.Stderr, err))
	}
}
