package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tenup/docgate/internal"
	"github.com/tenup/docgate/internal/log"
)

func serveCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the documentation site behind the gate",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			log.LogInfoWithFields("main", "Starting docgate", map[string]any{
				"version": version,
				"config":  configPath,
			})

			app, err := internal.NewDocgate(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to create docgate: %w", err)
			}
			return app.Run(cmd.Context())
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}
