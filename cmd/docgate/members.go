package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/tenup/docgate/internal"
	"github.com/tenup/docgate/internal/storage"
)

func membersCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "members",
		Short: "Inspect and manage members who have signed in",
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (required)")
	_ = cmd.MarkPersistentFlagRequired("config")

	withStorage := func(run func(cmd *cobra.Command, store storage.Storage, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			store, err := internal.SetupStorage(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer store.Close()
			return run(cmd, store, args)
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List members",
			RunE: withStorage(func(cmd *cobra.Command, store storage.Storage, _ []string) error {
				members, err := store.ListMembers(cmd.Context())
				if err != nil {
					return fmt.Errorf("failed to list members: %w", err)
				}
				return printMembers(cmd.OutOrStdout(), members)
			}),
		},
		&cobra.Command{
			Use:   "enable <email>",
			Short: "Allow a member to sign in again",
			Args:  cobra.ExactArgs(1),
			RunE: withStorage(func(cmd *cobra.Command, store storage.Storage, args []string) error {
				return setEnabled(cmd, store, args[0], true)
			}),
		},
		&cobra.Command{
			Use:   "disable <email>",
			Short: "Refuse future sign-ins of a member",
			Args:  cobra.ExactArgs(1),
			RunE: withStorage(func(cmd *cobra.Command, store storage.Storage, args []string) error {
				return setEnabled(cmd, store, args[0], false)
			}),
		},
		&cobra.Command{
			Use:   "delete <email>",
			Short: "Forget a member",
			Args:  cobra.ExactArgs(1),
			RunE: withStorage(func(cmd *cobra.Command, store storage.Storage, args []string) error {
				if err := store.DeleteMember(cmd.Context(), args[0]); err != nil {
					return fmt.Errorf("failed to delete %s: %w", args[0], err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
				return nil
			}),
		},
	)
	return cmd
}

func setEnabled(cmd *cobra.Command, store storage.Storage, email string, enabled bool) error {
	if err := store.SetMemberEnabled(cmd.Context(), email, enabled); err != nil {
		return fmt.Errorf("failed to update %s: %w", email, err)
	}
	state := "Disabled"
	if enabled {
		state = "Enabled"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", state, email)
	return nil
}

func printMembers(out io.Writer, members []storage.Member) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "EMAIL\tNAME\tLOGINS\tLAST SEEN\tENABLED")
	for _, m := range members {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%t\n", m.Email, m.FullName, m.LoginCount, m.LastSeen.UTC().Format(time.RFC3339), m.Enabled)
	}
	return tw.Flush()
}
