package main

import (
	"clusterdir/directory"
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var saCmd = &cobra.Command{
	Use:   "sa",
	Short: "Manage service account credentials",
}

var saAddCmd = &cobra.Command{
	Use:   "add FILE",
	Short: "Store a service account key file (\"-\" reads stdin)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var doc directory.ServiceAccount
		if err := readJSONFile(args[0], &doc); err != nil {
			return fmt.Errorf("read service account key: %w", err)
		}
		return withClient(cmd, func(ctx context.Context, c *directory.Client) error {
			return c.AddServiceAccount(ctx, doc)
		})
	},
}

var saGetCmd = &cobra.Command{
	Use:   "get EMAIL",
	Short: "Print a stored service account key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *directory.Client) error {
			doc, err := c.GetServiceAccount(ctx, args[0])
			if err != nil {
				return err
			}
			return printValue(doc)
		})
	},
}

var saRemoveCmd = &cobra.Command{
	Use:     "rm EMAIL",
	Aliases: []string{"remove"},
	Short:   "Delete a service account key",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *directory.Client) error {
			return c.RemoveServiceAccount(ctx, args[0])
		})
	},
}

var saListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored service account emails",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *directory.Client) error {
			emails, err := c.ListServiceAccounts(ctx)
			if err != nil {
				return err
			}
			return printValue(emails)
		})
	},
}

func init() {
	saCmd.AddCommand(saAddCmd)
	saCmd.AddCommand(saGetCmd)
	saCmd.AddCommand(saRemoveCmd)
	saCmd.AddCommand(saListCmd)
}
