package main

import (
	"clusterdir/directory"
	"clusterdir/internal/query"
	"context"

	"github.com/spf13/cobra"
)

var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Register and inspect clusters",
}

var clusterRegisterCmd = &cobra.Command{
	Use:   "register SLUG",
	Short: "Register a cluster, replacing any previous registration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, _ := cmd.Flags().GetString("environment")
		channels, _ := cmd.Flags().GetStringSlice("channel")
		rawProps, _ := cmd.Flags().GetStringArray("prop")
		rawSecrets, _ := cmd.Flags().GetStringArray("secret")

		props, err := parseProps(rawProps)
		if err != nil {
			return err
		}
		secrets, err := parseProps(rawSecrets)
		if err != nil {
			return err
		}
		return withClient(cmd, func(ctx context.Context, c *directory.Client) error {
			return c.RegisterCluster(ctx, args[0], env, props, secrets, channels)
		})
	},
}

var clusterUpdateCmd = &cobra.Command{
	Use:   "update SLUG",
	Short: "Change the environment or properties of a cluster",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, _ := cmd.Flags().GetString("environment")
		rawProps, _ := cmd.Flags().GetStringArray("prop")
		rawSecrets, _ := cmd.Flags().GetStringArray("secret")

		props, err := parseProps(rawProps)
		if err != nil {
			return err
		}
		secrets, err := parseProps(rawSecrets)
		if err != nil {
			return err
		}
		return withClient(cmd, func(ctx context.Context, c *directory.Client) error {
			if !cmd.Flags().Changed("secret") {
				current, err := c.GetCluster(ctx, args[0])
				if err != nil {
					return err
				}
				secrets = current.SecretProps
			}
			return c.UpdateCluster(ctx, args[0], directory.ClusterUpdate{
				Environment: env,
				Props:       props,
				SecretProps: secrets,
			})
		})
	},
}

var clusterUnregisterCmd = &cobra.Command{
	Use:     "unregister SLUG",
	Aliases: []string{"rm"},
	Short:   "Remove a cluster and its channel memberships",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *directory.Client) error {
			return c.UnregisterCluster(ctx, args[0])
		})
	},
}

var clusterListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered clusters",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		where, _ := cmd.Flags().GetString("where")
		return withClient(cmd, func(ctx context.Context, c *directory.Client) error {
			var (
				slugs []string
				err   error
			)
			if where != "" {
				slugs, err = c.FindClusters(ctx, where)
			} else {
				slugs, err = c.ListClusters(ctx)
			}
			if err != nil {
				return err
			}
			return printValue(slugs)
		})
	},
}

var clusterGetCmd = &cobra.Command{
	Use:   "get SLUG",
	Short: "Show a cluster, secret properties included",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		expr, _ := cmd.Flags().GetString("query")
		return withClient(cmd, func(ctx context.Context, c *directory.Client) error {
			cl, err := c.GetCluster(ctx, args[0])
			if err != nil {
				return err
			}
			if expr == "" {
				return printValue(cl)
			}
			v, err := query.EvalAny(expr, cl.View())
			if err != nil {
				return err
			}
			return printValue(v)
		})
	},
}

func init() {
	for _, cmd := range []*cobra.Command{clusterRegisterCmd, clusterUpdateCmd} {
		cmd.Flags().StringP("environment", "e", "", "environment (default production on register)")
		cmd.Flags().StringArrayP("prop", "p", nil, "property as key=value; repeatable")
		cmd.Flags().StringArrayP("secret", "s", nil, "secret property as key=value; repeatable")
	}
	clusterRegisterCmd.Flags().StringSlice("channel", nil, "channels to join; must exist")
	clusterListCmd.Flags().StringP("where", "w", "", "JMESPath filter, e.g. \"environment == 'staging'\"")
	clusterGetCmd.Flags().StringP("query", "q", "", "JMESPath expression applied to the cluster")

	clusterCmd.AddCommand(clusterRegisterCmd)
	clusterCmd.AddCommand(clusterUpdateCmd)
	clusterCmd.AddCommand(clusterUnregisterCmd)
	clusterCmd.AddCommand(clusterListCmd)
	clusterCmd.AddCommand(clusterGetCmd)
}
