// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CampusAuth Contributors

package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/campusauth/campusauth/internal/auth"
)

// PoolConfig tunes the connection pool and the startup ping.
type PoolConfig struct {
	MaxConns        int32
	MinConns        int32
	ConnectAttempts uint64
	RetryBase       time.Duration
}

// DefaultPoolConfig is used for zero-valued fields.
var DefaultPoolConfig = PoolConfig{
	MaxConns:        10,
	MinConns:        0,
	ConnectAttempts: 5,
	RetryBase:       250 * time.Millisecond,
}

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// OpenPool connects to databaseURL and pings it with exponential backoff so
// the service can start alongside a database that is still booting.
func OpenPool(ctx context.Context, databaseURL string, cfg PoolConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, oops.In(auth.KindConfiguration).Code("DB_CONFIG_INVALID").Wrap(err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	} else {
		poolCfg.MaxConns = DefaultPoolConfig.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, oops.In(auth.KindPersistence).Code("DB_CONNECT_FAILED").Wrap(err)
	}

	if err := PingWithRetry(ctx, pool, cfg.ConnectAttempts, cfg.RetryBase); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// PingWithRetry pings db until it answers or attempts are exhausted.
func PingWithRetry(ctx context.Context, db Pinger, attempts uint64, base time.Duration) error {
	if attempts == 0 {
		attempts = DefaultPoolConfig.ConnectAttempts
	}
	if base <= 0 {
		base = DefaultPoolConfig.RetryBase
	}

	backoff := retry.WithMaxRetries(attempts-1, retry.NewExponential(base))
	var try int
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		try++
		if err := db.Ping(ctx); err != nil {
			slog.WarnContext(ctx, "database not reachable", "attempt", try, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return oops.In(auth.KindPersistence).Code("DB_CONNECT_FAILED").With("attempts", try).Wrap(err)
	}
	return nil
}

// Readiness returns a probe that pings db with a short timeout.
func Readiness(db Pinger, timeout time.Duration) func() bool {
	return func() bool {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return db.Ping(ctx) == nil
	}
}
