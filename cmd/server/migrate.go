package main

import (
	"lifeos_api/internal/platform/config"
	"lifeos_api/internal/platform/database"
	"lifeos_api/internal/platform/logging"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the users schema",
		Args:  cobra.NoArgs,
		RunE:  runMigrate,
	}
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return oops.Code("CONFIG_INVALID").Wrap(err)
	}
	logger := logging.SetDefault(cfg.ServiceName, cfg.LogFormat, cfg.LogLevel)
	ctx := cmd.Context()

	cmd.Println("Connecting to database...")
	db, err := database.Open(ctx, cfg.DBDriver, cfg.DBConnStr)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("driver", cfg.DBDriver).Wrap(err)
	}
	defer db.Close()

	cmd.Println("Running migrations...")
	if err := database.Migrate(ctx, db, cfg.DBDriver, logger); err != nil {
		return oops.Code("MIGRATION_FAILED").With("driver", cfg.DBDriver).Wrap(err)
	}

	cmd.Println("Migrations completed successfully")
	return nil
}
