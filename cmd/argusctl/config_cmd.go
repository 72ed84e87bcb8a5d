package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/duyl328/argus-dispatch/config"
	"github.com/duyl328/argus-dispatch/tokenstore"
)

func newConfigCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create configuration",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init <path>",
		Short: "Write a default config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.Save(path, config.Default()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "wrote", path)
			return nil
		},
	}
	initCmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective request configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := config.Load(g.configPath)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(map[string]any{
				"file":     p.ConfigFile(),
				"snapshot": p.Snapshot(),
			}, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	cmd.AddCommand(initCmd, showCmd)
	return cmd
}

func newTokenCmd(g *globalFlags) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage the token stored in token_db",
	}
	cmd.PersistentFlags().StringVar(&name, "name", tokenstore.DefaultName, "credential name")

	open := func() (*tokenstore.SQLiteStore, error) {
		p, err := config.Load(g.configPath)
		if err != nil {
			return nil, err
		}
		dsn := p.Config().TokenDB
		if dsn == "" {
			return nil, fmt.Errorf("token_db is not configured")
		}
		return tokenstore.Open(dsn, name)
	}

	setCmd := &cobra.Command{
		Use:   "set <token>",
		Short: "Store a bearer token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := open()
			if err != nil {
				return err
			}
			defer store.Close()
			return store.SetToken(args[0])
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove the stored token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := open()
			if err != nil {
				return err
			}
			defer store.Close()
			store.ClearToken()
			return store.Err()
		},
	}

	cmd.AddCommand(setCmd, clearCmd)
	return cmd
}
