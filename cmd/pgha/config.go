package main

import (
	"github.com/spf13/cobra"

	"github.com/dd0wney/cluso-pgha/pkg/config"
)

func newConfigCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(newConfigShowCommand(opts))
	return cmd
}

func newConfigShowCommand(opts *rootOptions) *cobra.Command {
	var node bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		Long:  "Defaults, the config file and PGHA_* environment overrides merged. Secrets are referenced by name only.",
		RunE: func(cmd *cobra.Command, args []string) error {
			load := config.LoadForPool
			if node {
				load = config.Load
			}
			cfg, err := load(opts.configPath)
			if err != nil {
				return err
			}
			return cfg.WriteYAML(cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&node, "node", false, "also validate the node section")
	return cmd
}
