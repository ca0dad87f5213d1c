package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/warp/contribution-engine/store/sqlite"
)

func newMigrateCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := root.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			version, err := store.AppliedVersion(cmd.Context())
			if err != nil {
				return err
			}
			root.logger.WithFields(logrus.Fields{
				"db":      root.cfg.DBPath,
				"version": version,
				"latest":  sqlite.SchemaVersion(),
			}).Info("schema up to date")
			return nil
		},
	}
}
