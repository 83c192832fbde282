// Package main provides the entry point for the intrapaint command.
package main

import (
	"context"
	"os"
	"syscall"

	"github.com/charmbracelet/fang"

	"intrapaint/internal/cli"
	"intrapaint/internal/version"
)

// shutdownSignals cancel the command context. SIGKILL cannot be caught, so
// SIGTERM is the termination request that is listened for.
var shutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

func main() {
	root := cli.NewRootCmd()

	if err := fang.Execute(
		context.Background(),
		root,
		fang.WithVersion(version.String()),
		fang.WithNotifySignal(shutdownSignals...),
	); err != nil {
		os.Exit(1)
	}
}
