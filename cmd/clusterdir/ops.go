package main

import (
	"clusterdir/directory"
	"clusterdir/internal/api"
	"clusterdir/internal/metrics"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var commonCmd = &cobra.Command{
	Use:   "common [PROVIDER]",
	Short: "Print the shared config of a provider (default GKE)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var provider string
		if len(args) == 1 {
			provider = args[0]
		}
		return withClient(cmd, func(ctx context.Context, c *directory.Client) error {
			props, err := c.GetCommon(ctx, provider)
			if err != nil {
				return err
			}
			return printValue(props)
		})
	},
}

var certCmd = &cobra.Command{
	Use:   "cert ROLE DOMAIN",
	Short: "Issue a short lived certificate from the PKI role",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ttl, _ := cmd.Flags().GetDuration("ttl")
		return withClient(cmd, func(ctx context.Context, c *directory.Client) error {
			cert, err := c.IssueCertificate(ctx, args[0], args[1], ttl)
			if err != nil {
				return err
			}
			return printValue(cert)
		})
	},
}

var exportCmd = &cobra.Command{
	Use:   "export FILE",
	Short: "Write a compressed snapshot of the directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Create(args[0])
		if err != nil {
			return err
		}
		err = withClient(cmd, func(ctx context.Context, c *directory.Client) error {
			return c.Export(ctx, f)
		})
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		return err
	},
}

var importCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Apply a snapshot written by export",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer func() {
			_ = f.Close()
		}()
		return withClient(cmd, func(ctx context.Context, c *directory.Client) error {
			sum, err := c.Import(ctx, f)
			if err != nil {
				return err
			}
			return printValue(sum)
		})
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the admin HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetInt("port")
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		c, err := directory.Open(ctx, cfg)
		cancel()
		if err != nil {
			return fmt.Errorf("open directory: %w", err)
		}
		defer func() {
			_ = c.Close()
		}()

		stop, done := api.RunServerInterruptible(port, c, cfg.AdminAPIKey)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		select {
		case <-sigCh:
			log.Info("shutting down")
			close(stop)
			return <-done
		case err := <-done:
			return err
		}
	},
}

func init() {
	certCmd.Flags().Duration("ttl", 5*time.Minute, "certificate lifetime")
	serveCmd.Flags().IntP("port", "p", 8080, "listen port")
}
