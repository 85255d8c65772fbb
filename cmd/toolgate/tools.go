package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jonwraymond/toolgate/catalog"
	"github.com/jonwraymond/toolgate/tools"
)

func newToolsCmd(opts *rootOptions) *cobra.Command {
	var showSchema bool
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tools the gateway would serve",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			var up *tools.UpstreamConfig
			if cfg.Upstream.BaseURL != "" {
				up = &tools.UpstreamConfig{BaseURL: cfg.Upstream.BaseURL}
			}
			cat := catalog.New()
			if err := tools.Register(cat, up); err != nil {
				return err
			}
			cat.Seal()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, info := range cat.List() {
				fmt.Fprintf(tw, "%s\t%s\n", info.Name, info.Description)
				if showSchema {
					fmt.Fprintf(tw, "\t%s\n", info.InputSchema)
				}
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&showSchema, "schema", false, "print each tool's input schema")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
