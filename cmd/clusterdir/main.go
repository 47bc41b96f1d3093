package main

import (
	"clusterdir/directory"
	"clusterdir/internal/types"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version = "dev"
	Commit  = "unknown"
)

var (
	configPath   string
	outputFormat string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "clusterdir",
	Short: "Manage the cluster directory",
	Long: `clusterdir keeps track of Kubernetes clusters, the release channels they
subscribe to, and the service account credentials used to reach them.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loadEnv()
		return nil
	},
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("clusterdir version %s\nCommit: %s\n", Version, Commit))

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("CLUSTERDIR_CONFIG"), "YAML config file")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "json", "output format: json or yaml")

	rootCmd.AddCommand(channelCmd)
	rootCmd.AddCommand(clusterCmd)
	rootCmd.AddCommand(saCmd)
	rootCmd.AddCommand(commonCmd)
	rootCmd.AddCommand(certCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(serveCmd)
}

// loadEnv reads ENV_FILE (default .env) and sets the log level from LOG_LEVEL.
func loadEnv() {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		log.Debug("The .env file not found.")
	}
	level := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if level == "" {
		return
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		log.WithError(err).Warn("invalid LOG_LEVEL, keeping default")
		return
	}
	log.SetLevel(lvl)
}

func loadConfig() (types.Config, error) {
	return types.LoadConfig(configPath)
}

// withClient opens a client from the configuration, runs fn and closes the client.
func withClient(cmd *cobra.Command, fn func(ctx context.Context, c *directory.Client) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	c, err := directory.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open directory: %w", err)
	}
	defer func() {
		if err := c.Close(); err != nil {
			log.WithError(err).Warn("failed to close directory client")
		}
	}()
	return fn(ctx, c)
}
