package commands

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"go.trai.ch/zerr"

	"github.com/krisalay/tiered-cache/internal/wiring"
)

// ErrUnknownEntity is returned by invalidate --entity for a type with no
// invalidation rules.
var ErrUnknownEntity = zerr.New("unknown entity type")

func (c *CLI) newInvalidateCmd() *cobra.Command {
	var entity, id string

	cmd := &cobra.Command{
		Use:   "invalidate [pattern]",
		Short: "Remove keys matching a pattern, or the keys related to an entity",
		Example: `  cachectl invalidate projectList
  cachectl invalidate --entity project --id 42`,
		Args: cobra.MaximumNArgs(1),
		RunE: c.withComponents(func(cmd *cobra.Command, args []string, comps *wiring.Components) error {
			var n int
			switch {
			case entity != "" && len(args) == 0:
				if !slices.Contains(comps.Cache.EntityTypes(), entity) {
					return zerr.With(ErrUnknownEntity, "known", strings.Join(comps.Cache.EntityTypes(), ","))
				}
				n = comps.Cache.InvalidateRelated(cmd.Context(), entity, id)
			case entity == "" && len(args) == 1:
				n = comps.Cache.Invalidate(cmd.Context(), args[0])
			default:
				return zerr.New("give either a pattern or --entity, not both")
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "invalidated %d keys\n", n)
			return err
		}),
	}

	cmd.Flags().StringVar(&entity, "entity", "", "Entity type whose related keys are removed")
	cmd.Flags().StringVar(&id, "id", "", "Entity ID used with --entity")

	return cmd
}

func (c *CLI) newClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every key of the configured namespace",
		Args:  cobra.NoArgs,
		RunE: c.withComponents(func(cmd *cobra.Command, _ []string, comps *wiring.Components) error {
			comps.Cache.Clear(cmd.Context())
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "cleared namespace %q\n", comps.Config.Cache.Namespace)
			return err
		}),
	}
}

func (c *CLI) newPruneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Delete expired, outdated and unreadable durable records",
		Args:  cobra.NoArgs,
		RunE: c.withComponents(func(cmd *cobra.Command, _ []string, comps *wiring.Components) error {
			n, err := comps.Cache.Prune(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "pruned %d entries\n", n)
			return err
		}),
	}
}
