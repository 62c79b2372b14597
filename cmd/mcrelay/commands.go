// Copyright 2024-2026 Aiku AI

package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/aiku/mcrelay/pkg/config"
	"github.com/aiku/mcrelay/pkg/prefs"
)

func checkConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate the config file and list disabled features",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, w := range cfg.Warnings() {
				fmt.Fprintln(out, "warning:", w)
			}
			fmt.Fprintln(out, "config OK")
			return nil
		},
	}
}

func exampleConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "example-config",
		Short: "Print the example config file",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprint(cmd.OutOrStdout(), config.ExampleConfig)
		},
	}
}

// openStore opens the preferences database named by the config file.
func openStore() (*prefs.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if cfg.Storage.Path == "" {
		return nil, errors.New("storage.path is not set in the config")
	}
	return prefs.Open(cfg.Storage.Path, newLogger(cfg.Logging))
}

func prefsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prefs",
		Short: "Manage per-player relay preferences",
	}
	setFiltered := func(hide bool) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.SetFiltered(cmd.Context(), args[0], hide); err != nil {
				return err
			}
			state := "shown"
			if hide {
				state = "hidden"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "relayed chat is now %s for %s\n", state, args[0])
			return nil
		}
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "hide <player-uuid-or-name>",
		Short: "Stop showing relayed chat to a player",
		Args:  cobra.ExactArgs(1),
		RunE:  setFiltered(true),
	}, &cobra.Command{
		Use:   "show <player-uuid-or-name>",
		Short: "Show relayed chat to a player again",
		Args:  cobra.ExactArgs(1),
		RunE:  setFiltered(false),
	})
	return cmd
}

func linkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "link <author-id> <player>",
		Short: "Link a chat-platform account to a game player",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.Link(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "linked %s to %s\n", args[0], args[1])
			return nil
		},
	}
}

func unlinkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unlink <author-id>",
		Short: "Remove an account link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			removed, err := store.Unlink(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("%s is not linked", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "unlinked %s\n", args[0])
			return nil
		},
	}
}

func linksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "links",
		Short: "List account links",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			links, err := store.Links(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "AUTHOR\tPLAYER\tLINKED")
			for _, l := range links {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", l.AuthorID, l.PlayerID, l.LinkedAt.Format(time.DateTime))
			}
			return tw.Flush()
		},
	}
}
