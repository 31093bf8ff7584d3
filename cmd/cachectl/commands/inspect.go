package commands

import (
	"github.com/spf13/cobra"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"

	"github.com/krisalay/tiered-cache/internal/wiring"
	"github.com/krisalay/tiered-cache/types"
)

type keysReport struct {
	Namespace  string         `yaml:"namespace"`
	Count      int            `yaml:"count"`
	Categories map[string]int `yaml:"categories"`
	Keys       []string       `yaml:"keys"`
}

func (c *CLI) newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show the effective configuration or the durable keys",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: c.withComponents(func(cmd *cobra.Command, _ []string, comps *wiring.Components) error {
			return writeYAML(cmd, comps.Config)
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "keys",
		Short: "List the keys of this namespace held in the durable tier",
		Args:  cobra.NoArgs,
		RunE: c.withComponents(func(cmd *cobra.Command, _ []string, comps *wiring.Components) error {
			keys, err := comps.Cache.DurableKeys(cmd.Context())
			if err != nil {
				return err
			}
			report := keysReport{
				Namespace:  comps.Config.Cache.Namespace,
				Count:      len(keys),
				Categories: make(map[string]int),
				Keys:       append([]string{}, keys...),
			}
			for _, k := range keys {
				report.Categories[types.ParseKey(k).Category]++
			}
			return writeYAML(cmd, report)
		}),
	})

	return cmd
}

func writeYAML(cmd *cobra.Command, v any) error {
	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return zerr.Wrap(err, "failed to encode YAML")
	}
	return enc.Close()
}
