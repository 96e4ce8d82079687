// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CampusAuth Contributors

package main

import (
	"context"
	"io"
	"net"

	"github.com/campusauth/campusauth/internal/auth"
	"github.com/campusauth/campusauth/internal/config"
	"github.com/campusauth/campusauth/internal/observability"
	"github.com/campusauth/campusauth/internal/store"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// ConfigLoader builds the configuration.
	// Default: config.Load
	ConfigLoader func(opts config.LoadOptions) (*config.Config, error)

	// UserStoreFactory opens the configured user store.
	// Default: openUserStore
	UserStoreFactory func(ctx context.Context, cfg config.StorageConfig) (*UserStore, error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer

	// ListenerFactory creates the API listener.
	// Default: net.Listen
	ListenerFactory func(network, address string) (net.Listener, error)

	// LogOutput receives log records.
	// Default: os.Stderr
	LogOutput io.Writer
}

// MigrateDeps contains injectable dependencies for the migrate commands.
type MigrateDeps struct {
	// ConfigLoader builds the configuration.
	// Default: config.Load
	ConfigLoader func(opts config.LoadOptions) (*config.Config, error)

	// MigratorFactory creates a migrator for a database URL.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (Migrator, error)
}

// UserStore is an opened user repository with its lifecycle hooks.
type UserStore struct {
	Users auth.UserRepository
	Ready observability.ReadinessChecker
	Close func()
}

// ObservabilityServer interface wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

// Migrator interface wraps the methods used from store.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Force(version int) error
	Status() (*store.Status, error)
	Close() error
}
