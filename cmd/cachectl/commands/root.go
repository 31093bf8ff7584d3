// Package commands implements the cachectl command line.
package commands

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/krisalay/tiered-cache/internal/wiring"
)

// Version is set at link time.
var Version = "dev"

// BuildFunc assembles the cache components for a config file.
type BuildFunc func(ctx context.Context, configPath string) (*wiring.Components, error)

// CLI is the cachectl command tree.
type CLI struct {
	build      BuildFunc
	configPath string
	rootCmd    *cobra.Command
}

// New creates the command tree. Components are built per command, after
// flags are parsed.
func New(build BuildFunc) *CLI {
	rootCmd := &cobra.Command{
		Use:           "cachectl",
		Short:         "Operate a two-tier cache and its durable store",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       Version,
	}

	c := &CLI{
		build:   build,
		rootCmd: rootCmd,
	}

	rootCmd.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "Path to the YAML config file")

	rootCmd.AddCommand(c.newDemoCmd())
	rootCmd.AddCommand(c.newGetCmd())
	rootCmd.AddCommand(c.newSetCmd())
	rootCmd.AddCommand(c.newInspectCmd())
	rootCmd.AddCommand(c.newInvalidateCmd())
	rootCmd.AddCommand(c.newClearCmd())
	rootCmd.AddCommand(c.newPruneCmd())
	rootCmd.AddCommand(c.newServeCmd())

	return c
}

// Execute runs the root command with the given context.
func (c *CLI) Execute(ctx context.Context) error {
	c.rootCmd.SetContext(ctx)
	return c.rootCmd.Execute()
}

// SetArgs sets the arguments for the root command. Used for testing.
func (c *CLI) SetArgs(args []string) {
	c.rootCmd.SetArgs(args)
}

// SetOutput redirects stdout and stderr of every command.
func (c *CLI) SetOutput(out, errOut io.Writer) {
	c.rootCmd.SetOut(out)
	c.rootCmd.SetErr(errOut)
}

type runFunc func(cmd *cobra.Command, args []string, comps *wiring.Components) error

// withComponents builds the components, runs fn and closes them again.
func (c *CLI) withComponents(fn runFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		comps, err := c.build(cmd.Context(), c.configPath)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := comps.Close(); err == nil {
				err = cerr
			}
		}()
		return fn(cmd, args, comps)
	}
}
