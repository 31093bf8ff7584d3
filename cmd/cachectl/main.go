// Package main is the entry point for cachectl.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/krisalay/tiered-cache/cmd/cachectl/commands"
	"github.com/krisalay/tiered-cache/internal/wiring"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cli := commands.New(func(ctx context.Context, path string) (*wiring.Components, error) {
		return wiring.Build(ctx, path)
	})
	cli.SetArgs(args)

	if err := cli.Execute(ctx); err != nil {
		// The logger may not exist if the components failed to build.
		_, _ = os.Stderr.WriteString("Error: " + err.Error() + "\n")
		return 1
	}
	return 0
}
