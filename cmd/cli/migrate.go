package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sevigo/patch-warden/internal/db"
)

var (
	migrateDown    int
	migrateVersion bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply or roll back the database schema migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		conn, err := db.Open(ctx, &cfg.Database, newLogger())
		if err != nil {
			return err
		}
		defer conn.Close()

		switch {
		case migrateVersion:
		case migrateDown > 0:
			if err := conn.Rollback(migrateDown); err != nil {
				return err
			}
		default:
			if err := conn.RunMigrations(); err != nil {
				return err
			}
		}

		version, dirty, err := conn.Version()
		if err != nil {
			return err
		}
		fmt.Printf("schema version %d", version)
		if dirty {
			warnColor.Print(" (dirty)")
		}
		fmt.Println()
		return nil
	},
}

func init() { //nolint:gochecknoinits // Cobra command registration
	migrateCmd.Flags().IntVar(&migrateDown, "down", 0, "Number of migrations to roll back")
	migrateCmd.Flags().BoolVar(&migrateVersion, "version", false, "Only print the current schema version")
	rootCmd.AddCommand(migrateCmd)
}
