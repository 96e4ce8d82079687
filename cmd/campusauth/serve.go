// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CampusAuth Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/campusauth/campusauth/internal/auth"
	"github.com/campusauth/campusauth/internal/auth/memory"
	"github.com/campusauth/campusauth/internal/auth/postgres"
	"github.com/campusauth/campusauth/internal/config"
	"github.com/campusauth/campusauth/internal/httpapi"
	"github.com/campusauth/campusauth/internal/logging"
	"github.com/campusauth/campusauth/internal/observability"
	"github.com/campusauth/campusauth/internal/store"
)

const readinessTimeout = 2 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the auth HTTP API",
		Long: `Start the auth HTTP API and, when metrics.addr is set, the
metrics and health probe server. Stops gracefully on SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeWithDeps(cmd.Context(), cmd, nil)
		},
	}

	cmd.Flags().String("addr", ":5000", "API listen address")
	cmd.Flags().String("metrics-addr", "127.0.0.1:9100", "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().String("log-format", "json", "log format (json or text)")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	cmd.Flags().String("storage", config.StoragePostgres, "user store (postgres or memory)")
	cmd.Flags().String("database-url", "", "PostgreSQL connection URL (default: DATABASE_URL)")

	return cmd
}

// runServeWithDeps starts the API with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cmd *cobra.Command, deps *ServeDeps) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if deps == nil {
		deps = &ServeDeps{}
	}
	if deps.ConfigLoader == nil {
		deps.ConfigLoader = config.Load
	}
	if deps.UserStoreFactory == nil {
		deps.UserStoreFactory = openUserStore
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker)
		}
	}
	if deps.ListenerFactory == nil {
		deps.ListenerFactory = net.Listen
	}

	cfg, err := deps.ConfigLoader(config.LoadOptions{File: configFile, Flags: cmd.Flags()})
	if err != nil {
		return oops.Code("CONFIG_INVALID").With("operation", "load configuration").Wrap(err)
	}

	logger, err := logging.Setup(logging.Options{
		Service: "campusauth",
		Version: version,
		Format:  cfg.Log.Format,
		Level:   cfg.Log.Level,
	}, deps.LogOutput)
	if err != nil {
		return oops.Code("CONFIG_INVALID").With("operation", "set up logging").Wrap(err)
	}
	slog.SetDefault(logger)

	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, auth.WithIssuer(cfg.Auth.Issuer))
	if err != nil {
		return err
	}
	hasher, err := auth.NewArgon2idHasherWithParams(cfg.Auth.Argon2.Params())
	if err != nil {
		return err
	}

	users, err := deps.UserStoreFactory(ctx, cfg.Storage)
	if err != nil {
		return oops.With("operation", "open user store").With("driver", cfg.Storage.Driver).Wrap(err)
	}
	defer users.Close()
	logger.Info("user store ready", "driver", cfg.Storage.Driver)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var (
		obsServer  ObservabilityServer
		obsErrChan <-chan error
		metrics    *observability.Metrics
	)
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, users.Ready)
		obsErrChan, err = obsServer.Start()
		if err != nil {
			return oops.With("operation", "start observability server").Wrap(err)
		}
		metrics = obsServer.Metrics()
	}

	svc, err := auth.NewService(users.Users, hasher, tokens,
		auth.WithLogger(logger),
		auth.WithTokenTTLs(cfg.Auth.SessionTTL, cfg.Auth.ResetTTL))
	if err != nil {
		return err
	}
	api, err := httpapi.New(svc, tokens, httpapi.WithLogger(logger), httpapi.WithMetrics(metrics))
	if err != nil {
		return err
	}

	listener, err := deps.ListenerFactory("tcp", cfg.Server.Addr)
	if err != nil {
		stopObservability(obsServer)
		return oops.With("operation", "listen").With("addr", cfg.Server.Addr).Wrap(err)
	}

	httpSrv := &http.Server{
		Handler:           api.Routes(),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errChan := make(chan error, 1)
	go func() {
		if serveErr := httpSrv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errChan <- serveErr
		}
	}()

	cmd.Println("CampusAuth API started")
	logger.Info("api server listening", "addr", listener.Addr().String())

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errChan:
		runErr = oops.With("operation", "serve api").Wrap(err)
	case err, ok := <-obsErrChan:
		if ok {
			runErr = oops.With("operation", "serve observability").Wrap(err)
		}
	}

	logger.Info("shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("error stopping api server", "error", err)
	}
	stopObservability(obsServer)

	logger.Info("shutdown complete")
	return runErr
}

func stopObservability(obsServer ObservabilityServer) {
	if obsServer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := obsServer.Stop(ctx); err != nil {
		slog.Warn("error stopping observability server", "error", err)
	}
}

// openUserStore opens the repository named by cfg.Driver.
func openUserStore(ctx context.Context, cfg config.StorageConfig) (*UserStore, error) {
	switch cfg.Driver {
	case config.StorageMemory:
		slog.Warn("using in-memory user store; accounts are lost on restart")
		return &UserStore{
			Users: memory.NewUserRepository(),
			Ready: func() bool { return true },
			Close: func() {},
		}, nil
	case config.StoragePostgres:
		if cfg.AutoMigrate {
			if err := autoMigrate(cfg.DatabaseURL, newStoreMigrator); err != nil {
				return nil, err
			}
		}
		pool, err := store.OpenPool(ctx, cfg.DatabaseURL, cfg.Pool())
		if err != nil {
			return nil, err
		}
		return &UserStore{
			Users: postgres.NewUserRepository(pool),
			Ready: store.Readiness(pool, readinessTimeout),
			Close: pool.Close,
		}, nil
	default:
		return nil, oops.In(auth.KindConfiguration).Code("CONFIG_INVALID").
			With("driver", cfg.Driver).
			Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// autoMigrate applies pending migrations before the pool opens.
func autoMigrate(databaseURL string, newMigrator func(string) (Migrator, error)) error {
	m, err := newMigrator(databaseURL)
	if err != nil {
		return oops.Code("AUTO_MIGRATE_FAILED").Wrap(err)
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			slog.Warn("failed to close migrator", "error", closeErr)
		}
	}()

	if err := m.Up(); err != nil {
		return oops.Code("AUTO_MIGRATE_FAILED").Wrap(err)
	}
	slog.Info("database migrations applied")
	return nil
}
