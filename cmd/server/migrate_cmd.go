package main

import (
	"github.com/spf13/cobra"

	"github.com/torrecontrole/sentinela/internal/infrastructure/db"
)

func newMigrateCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the audit log database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			if path == "" {
				path = cfg.Database.MigrationsPath
			}
			database, err := db.NewDatabaseWithConfig(&cfg.Database)
			if err != nil {
				return err
			}
			defer database.Close()
			if err := database.Migrate(path); err != nil {
				return err
			}
			logger.WithField("path", path).Info("migrations applied")
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "migrations directory (default DB_MIGRATIONS_PATH)")
	return cmd
}
