package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/angelmondragon/storefront/pkg/config"
	"github.com/angelmondragon/storefront/pkg/db"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/migrate"
)

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Manage the cart_snapshots schema with goose",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	for _, command := range []string{"up", "down", "status"} {
		root.AddCommand(&cobra.Command{
			Use:   command,
			Short: "goose " + command + " against the configured database",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withDB(cmd.Context(), func(ctx context.Context, sqlDB *sql.DB, dialect string) error {
					return migrate.Run(ctx, sqlDB, dialect, command)
				})
			},
		})
	}

	root.AddCommand(&cobra.Command{
		Use:   "to <version>",
		Short: "Migrate up or down to the given YYYYMMDDHHMMSS version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd.Context(), func(ctx context.Context, sqlDB *sql.DB, dialect string) error {
				return migrate.MigrateToVersion(ctx, sqlDB, dialect, args[0])
			})
		},
	})

	root.AddCommand(newCreateCmd(), newValidateCmd())
	return root
}

func newCreateCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Write an empty SQL migration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := migrate.CreateSQLMigration(dir, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "created migration:", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", migrate.DefaultDir, "migrations directory")
	return cmd
}

func newValidateCmd() *cobra.Command {
	var (
		dir      string
		embedded bool
	)
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check migration filenames and goose annotations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if embedded {
				err = migrate.ValidateEmbedded()
			} else {
				err = migrate.ValidateDir(dir)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migration validation passed")
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", migrate.DefaultDir, "migrations directory")
	cmd.Flags().BoolVar(&embedded, "embedded", false, "validate the migrations compiled into this binary")
	return cmd
}

// withDB loads config, opens the database and hands fn the raw handle and its dialect.
func withDB(ctx context.Context, fn func(context.Context, *sql.DB, string) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	if err := cfg.DB.EnsureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return err
	}
	client, err := db.New(ctx, cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		return err
	}
	defer client.Close()

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "dialect": client.Dialect()})
	logg.Info(ctx, "migrate ready")
	return fn(ctx, sqlDB, client.Dialect())
}
