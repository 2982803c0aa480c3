package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tenup/docgate/internal"
)

func prerenderCmd() *cobra.Command {
	var configPath, outDir string

	cmd := &cobra.Command{
		Use:   "prerender",
		Short: "Write the build-time placeholder for every page of the site",
		Long: `Renders every HTML page of the configured content the way a build
without a browser sees it: the inert placeholder, with no protected content
and no login redirect. The result is written to --out.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			src, err := internal.SetupContent(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			n, err := internal.Prerender(cmd.Context(), cfg, src, outDir)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Prerendered %d page(s) into %s\n", n, outDir)
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVarP(&outDir, "out", "o", "prerendered", "output directory")
	return cmd
}
