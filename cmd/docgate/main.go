package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tenup/docgate/internal/config"
)

// Version information set at build time
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "docgate",
		Short: "SSO access gate for static documentation sites",
		Long: `docgate serves a generated documentation site to members of an
organization only. Visitors sign in through the organization's SSO proxy,
and build-time rendering only ever sees an inert placeholder.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		prerenderCmd(),
		validateCmd(),
		configInitCmd(),
		membersCmd(),
		versionCmd(),
	)
	return rootCmd
}

// addConfigFlag registers the --config flag shared by commands that load
// a configuration file
func addConfigFlag(cmd *cobra.Command, path *string) {
	cmd.Flags().StringVarP(path, "config", "c", "", "path to config file (required)")
	_ = cmd.MarkFlagRequired("config")
}

func loadConfig(path string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}
