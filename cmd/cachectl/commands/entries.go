package commands

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"go.trai.ch/zerr"

	"github.com/krisalay/tiered-cache/internal/wiring"
)

// ErrNotFound is returned by get when no tier holds a valid value.
var ErrNotFound = zerr.New("key not found")

func (c *CLI) newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print a cached value as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: c.withComponents(func(cmd *cobra.Command, args []string, comps *wiring.Components) error {
			v, ok := comps.Cache.Get(cmd.Context(), args[0], nil)
			if !ok {
				return zerr.With(ErrNotFound, "key", args[0])
			}
			out, err := json.Marshal(v)
			if err != nil {
				return zerr.Wrap(err, "failed to encode value")
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return err
		}),
	}
}

func (c *CLI) newSetCmd() *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "set <key> <json>",
		Short: "Store a JSON value under a key",
		Args:  cobra.ExactArgs(2),
		RunE: c.withComponents(func(cmd *cobra.Command, args []string, comps *wiring.Components) error {
			var v any
			if err := json.Unmarshal([]byte(args[1]), &v); err != nil {
				return zerr.Wrap(err, "value is not valid JSON")
			}
			comps.Cache.Set(cmd.Context(), args[0], v, ttl)
			return comps.Cache.Flush(cmd.Context())
		}),
	}

	cmd.Flags().DurationVar(&ttl, "ttl", 0, "TTL of the value; 0 uses the configured rules")

	return cmd
}
