package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/warp/contribution-engine/config"
	"github.com/warp/contribution-engine/store/sqlite"
)

type rootOptions struct {
	DBPath   string
	City     string
	LogLevel string

	cfg    *config.Config
	logger *logrus.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "contribcalc",
		Short:         "Social insurance and housing fund contribution engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.load(cmd)
		},
	}
	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", "", "SQLite database path (overrides CONTRIB_DB_PATH)")
	cmd.PersistentFlags().StringVar(&opts.City, "city", "", "policy city (overrides CONTRIB_CITY)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (overrides LOG_LEVEL)")

	cmd.AddCommand(newMigrateCmd(opts))
	cmd.AddCommand(newSeedCmd(opts))
	cmd.AddCommand(newBaselinesCmd(opts))
	cmd.AddCommand(newRunCmd(opts))
	return cmd
}

func (o *rootOptions) load(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if o.DBPath != "" {
		cfg.DBPath = o.DBPath
	}
	if o.City != "" {
		cfg.City = o.City
	}
	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	o.cfg = cfg
	o.logger = cfg.NewLogger(cmd.ErrOrStderr())
	return nil
}

func (o *rootOptions) openStore() (*sqlite.Store, error) {
	store, err := sqlite.New(o.cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return store, nil
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		stop()
		os.Exit(1)
	}
}
