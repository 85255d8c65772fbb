package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonwraymond/toolgate/keys"
	"github.com/jonwraymond/toolgate/keystore"
)

func newKeysCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Administer API keys in the configured store",
		Long: "Administer API keys directly in the configured key store. " +
			"With the memory store changes last only for this process, so use a bolt store.",
	}
	cmd.AddCommand(
		newKeysCreateCmd(opts),
		newKeysListCmd(opts),
		newKeysRevokeCmd(opts),
	)
	return cmd
}

// withKeyService opens the configured store for one command.
func withKeyService(cmd *cobra.Command, opts *rootOptions, fn func(*keys.Service) error) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("key store: %w", err)
	}
	defer func() { _ = store.Close() }()
	if _, ok := store.(*keystore.MemoryStore); ok {
		fmt.Fprintln(cmd.ErrOrStderr(), "warning: memory key store; changes are not persisted")
	}
	return fn(keys.NewService(store, keys.Config{DefaultPermissions: cfg.Keys.DefaultPermissions}))
}

func newKeysCreateCmd(opts *rootOptions) *cobra.Command {
	var (
		name  string
		perms []string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Issue a new API key; the key is printed once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withKeyService(cmd, opts, func(svc *keys.Service) error {
				issued, err := svc.Create(cmd.Context(), name, perms)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(issued)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name for the key")
	cmd.Flags().StringSliceVar(&perms, "permission", nil, "permission to grant (repeatable), e.g. tool:echo:call")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newKeysListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List API keys without secrets",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withKeyService(cmd, opts, func(svc *keys.Service) error {
				list, err := svc.List(cmd.Context())
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tPREFIX\tACTIVE\tLAST USED\tPERMISSIONS")
				for _, k := range list {
					lastUsed := "-"
					if k.LastUsedAt != nil {
						lastUsed = k.LastUsedAt.Format(time.RFC3339)
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\t%s\n",
						k.ID, k.Name, k.Prefix, k.IsActive, lastUsed, strings.Join(k.Permissions, ","))
				}
				return tw.Flush()
			})
		},
	}
}

func newKeysRevokeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withKeyService(cmd, opts, func(svc *keys.Service) error {
				changed, err := svc.Revoke(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !changed {
					fmt.Fprintf(cmd.OutOrStdout(), "key %s was already revoked\n", args[0])
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "key %s revoked\n", args[0])
				return nil
			})
		},
	}
}
