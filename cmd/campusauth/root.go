// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CampusAuth Contributors

package main

import (
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var (
	configFile string
	envFile    string
)

// NewRootCmd creates the root command for the campusauth CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "campusauth",
		Short: "CampusAuth - student account authentication service",
		Long: `CampusAuth registers student accounts, signs users in with
session tokens and runs the forgot/reset password flow.`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return loadEnvFile(envFile)
		},
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: XDG_CONFIG_HOME/campusauth/config.yaml)")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file to load (default: .env if present)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())

	return cmd
}

// loadEnvFile loads a dotenv file without overriding variables already set.
// An explicit path must exist; the default .env is optional.
func loadEnvFile(path string) error {
	explicit := path != ""
	if !explicit {
		path = ".env"
	}

	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return oops.Code("ENV_FILE_INVALID").With("path", path).Wrap(err)
	}
	return nil
}
