package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	mongomigrations "medibook/internal/migrations/mongo"
	pgmigrations "medibook/internal/migrations/postgres"
	"medibook/pkg/config"

	"github.com/spf13/cobra"
)

const JobName = "migrate"

func main() {
	rootCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply medibook storage migrations for the configured STORAGE_BACKEND",
	}
	rootCmd.AddCommand(upCmd(), downCmd(), forceCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func upCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "up",
		Short: "Create collections, indexes and tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			timeout, _ := cmd.Flags().GetDuration("timeout")
			cfg := config.Load(JobName)

			switch cfg.StorageBackend {
			case config.BackendMongo:
				cfg.SetMongo()
				defer cfg.GracefulShutdown()

				ctx, cancel := context.WithTimeout(context.Background(), timeout)
				defer cancel()
				return mongomigrations.RunMigration(ctx, cfg.Client.Mongo, cfg.MongoDatabaseName, cfg.Log)
			case config.BackendPostgres:
				return withMigrator(cfg, func(m *pgmigrations.Migrator) error { return m.Up() })
			default:
				cfg.Log.Info("Nothing to migrate", "backend", cfg.StorageBackend)
				return nil
			}
		},
	}
	cmd.Flags().Duration("timeout", 2*time.Minute, "Overall timeout for Mongo migrations")
	return cmd
}

func downCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back Postgres migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, _ := cmd.Flags().GetInt("steps")
			cfg := config.Load(JobName)
			if cfg.StorageBackend != config.BackendPostgres {
				return fmt.Errorf("down is only supported for the %s backend", config.BackendPostgres)
			}
			return withMigrator(cfg, func(m *pgmigrations.Migrator) error { return m.Down(steps) })
		},
	}
	cmd.Flags().Int("steps", 1, "Number of migrations to roll back")
	return cmd
}

func forceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "force <version>",
		Short: "Mark a Postgres migration version as applied",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid version: %w", err)
			}
			cfg := config.Load(JobName)
			if cfg.StorageBackend != config.BackendPostgres {
				return fmt.Errorf("force is only supported for the %s backend", config.BackendPostgres)
			}
			return withMigrator(cfg, func(m *pgmigrations.Migrator) error { return m.Force(version) })
		},
	}
}

func withMigrator(cfg *config.Config, fn func(*pgmigrations.Migrator) error) error {
	m, err := pgmigrations.NewMigrator(cfg.PostgresURL, cfg.Log)
	if err != nil {
		return err
	}
	defer func() {
		if err := m.Close(); err != nil {
			cfg.Log.Warn("Failed to close migrator", "error", err)
		}
	}()
	return fn(m)
}
