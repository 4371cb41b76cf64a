// Package cmd holds the command line interface.
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gewnthar/parkalerts/config"
	"github.com/gewnthar/parkalerts/database"
	"github.com/gewnthar/parkalerts/logging"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

// RootCommand creates the root command with every subcommand attached.
func RootCommand() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "parkalerts",
		Short:         "Park alert and reserve reconciliation service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to config.yaml (default: config/config.yaml or config.yaml)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override logging.level")

	rootCmd.AddCommand(
		serveCommand(opts),
		syncCommand(opts),
		historyCommand(opts),
		mappingsCommand(opts),
	)
	return rootCmd
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return RootCommand().ExecuteContext(ctx)
}

// load reads configuration and installs the logger.
func (o *rootOptions) load() (*config.Config, error) {
	cfg, err := config.LoadConfig(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("error loading configuration: %w", err)
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if err := logging.Init(cfg.Logging); err != nil {
		return nil, fmt.Errorf("error initializing logging: %w", err)
	}
	return cfg, nil
}

// openStore loads configuration and opens the database.
func (o *rootOptions) openStore() (*config.Config, *database.Store, error) {
	cfg, err := o.load()
	if err != nil {
		return nil, nil, err
	}
	store, err := database.Open(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("error initializing database: %w", err)
	}
	return cfg, store, nil
}
