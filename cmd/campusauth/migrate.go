// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CampusAuth Contributors

package main

import (
	"strconv"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/campusauth/campusauth/internal/config"
	"github.com/campusauth/campusauth/internal/store"
)

// NewMigrateCmd creates the migrate command group.
func NewMigrateCmd() *cobra.Command {
	return newMigrateCmd(nil)
}

func newMigrateCmd(deps *MigrateDeps) *cobra.Command {
	if deps == nil {
		deps = &MigrateDeps{}
	}
	if deps.ConfigLoader == nil {
		deps.ConfigLoader = config.Load
	}
	if deps.MigratorFactory == nil {
		deps.MigratorFactory = newStoreMigrator
	}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
		Long:  `Apply, roll back, inspect or force the PostgreSQL schema version.`,
	}
	cmd.PersistentFlags().String("database-url", "", "PostgreSQL connection URL (default: DATABASE_URL)")

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, deps, func(m Migrator) error {
				if err := m.Up(); err != nil {
					return err
				}
				cmd.Println("Migrations applied")
				return printStatus(cmd, m)
			})
		},
	})

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Long: `Roll back the last --steps migrations, or every migration with --all.
Rolling back everything drops all user accounts.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			all, err := cmd.Flags().GetBool("all")
			if err != nil {
				return oops.Wrap(err)
			}
			if !all && steps < 1 {
				return oops.Code("INVALID_STEPS").With("steps", steps).
					Errorf("--steps must be at least 1, got %d", steps)
			}
			return withMigrator(cmd, deps, func(m Migrator) error {
				if all {
					err = m.Down()
				} else {
					err = m.Steps(-steps)
				}
				if err != nil {
					return err
				}
				cmd.Println("Rollback complete")
				return printStatus(cmd, m)
			})
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	down.Flags().Bool("all", false, "roll back every migration")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, deps, func(m Migrator) error {
				return printStatus(cmd, m)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Mark VERSION as applied without running it",
		Long: `Record VERSION as the current schema version and clear the dirty flag.
Use only after repairing a failed migration by hand.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := parseForceVersion(args[0])
			if err != nil {
				return err
			}
			return withMigrator(cmd, deps, func(m Migrator) error {
				if err := m.Force(version); err != nil {
					return err
				}
				cmd.Printf("Forced schema version %d\n", version)
				return nil
			})
		},
	})

	return cmd
}

func newStoreMigrator(databaseURL string) (Migrator, error) {
	m, err := store.NewMigrator(databaseURL)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func withMigrator(cmd *cobra.Command, deps *MigrateDeps, fn func(Migrator) error) error {
	databaseURL, err := migrationDatabaseURL(cmd, deps)
	if err != nil {
		return err
	}

	m, err := deps.MigratorFactory(databaseURL)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			cmd.PrintErrf("warning: failed to close migrator: %v\n", closeErr)
		}
	}()

	return fn(m)
}

func migrationDatabaseURL(cmd *cobra.Command, deps *MigrateDeps) (string, error) {
	cfg, err := deps.ConfigLoader(config.LoadOptions{File: configFile, Flags: cmd.Flags()})
	if err != nil {
		return "", oops.Code("CONFIG_INVALID").With("operation", "load configuration").Wrap(err)
	}
	if cfg.Storage.DatabaseURL == "" {
		return "", oops.Code("CONFIG_INVALID").
			Errorf("a database URL is required: set DATABASE_URL or pass --database-url")
	}
	return cfg.Storage.DatabaseURL, nil
}

func printStatus(cmd *cobra.Command, m Migrator) error {
	st, err := m.Status()
	if err != nil {
		return err
	}

	dirty := ""
	if st.Dirty {
		dirty = " (dirty)"
	}
	cmd.Printf("Current version: %d%s\n", st.Version, dirty)
	for _, v := range st.Applied {
		cmd.Printf("  [x] %s\n", migrationLabel(v))
	}
	for _, v := range st.Pending {
		cmd.Printf("  [ ] %s\n", migrationLabel(v))
	}
	return nil
}

func migrationLabel(version uint) string {
	name, err := store.MigrationName(version)
	if err != nil || name == "" {
		return strconv.FormatUint(uint64(version), 10)
	}
	return name
}

// parseForceVersion parses a non-negative schema version.
func parseForceVersion(s string) (int, error) {
	version, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Errorf("version must be an integer, got %q", s)
	}
	if version < 0 {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Errorf("version must be non-negative, got %d", version)
	}
	return version, nil
}
