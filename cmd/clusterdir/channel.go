package main

import (
	"clusterdir/directory"
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var channelCmd = &cobra.Command{
	Use:   "channel",
	Short: "Manage release channels and their members",
}

var channelCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create a channel",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *directory.Client) error {
			return c.CreateChannel(ctx, args[0])
		})
	},
}

var channelDeleteCmd = &cobra.Command{
	Use:   "delete NAME",
	Short: "Delete a channel",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *directory.Client) error {
			return c.DeleteChannel(ctx, args[0])
		})
	},
}

var channelListCmd = &cobra.Command{
	Use:   "list",
	Short: "List channels",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *directory.Client) error {
			names, err := c.ListChannels(ctx)
			if err != nil {
				return err
			}
			return printValue(names)
		})
	},
}

var channelMembersCmd = &cobra.Command{
	Use:   "members NAME",
	Short: "List the clusters subscribed to a channel",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *directory.Client) error {
			slugs, err := c.ListClustersByChannel(ctx, args[0])
			if err != nil {
				return err
			}
			return printValue(slugs)
		})
	},
}

var channelAddCmd = &cobra.Command{
	Use:   "add CHANNEL SLUG",
	Short: "Subscribe a cluster to a channel",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *directory.Client) error {
			if err := c.AddClusterToChannel(ctx, args[1], args[0]); err != nil {
				return err
			}
			fmt.Printf("%s joined %s\n", args[1], args[0])
			return nil
		})
	},
}

var channelRemoveCmd = &cobra.Command{
	Use:     "remove CHANNEL SLUG",
	Aliases: []string{"rm"},
	Short:   "Unsubscribe a cluster from a channel",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *directory.Client) error {
			if err := c.RemoveClusterFromChannel(ctx, args[1], args[0]); err != nil {
				return err
			}
			fmt.Printf("%s left %s\n", args[1], args[0])
			return nil
		})
	},
}

func init() {
	channelCmd.AddCommand(channelCreateCmd)
	channelCmd.AddCommand(channelDeleteCmd)
	channelCmd.AddCommand(channelListCmd)
	channelCmd.AddCommand(channelMembersCmd)
	channelCmd.AddCommand(channelAddCmd)
	channelCmd.AddCommand(channelRemoveCmd)
}
