package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/sirupsen/logrus"
)

const pingTimeout = 5 * time.Second

// Config is the connection pool for the exam database. Zero values fall back
// to the server defaults.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 25
	}
	if c.MaxIdleConns <= 0 || c.MaxIdleConns > c.MaxOpenConns {
		c.MaxIdleConns = c.MaxOpenConns
	}
	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = 30 * time.Minute
	}
	return c
}

// parseDSN rejects a malformed DB_DSN before any dial so both the server and
// the migrate command fail with the same message.
func parseDSN(dsn string) (*pgx.ConnConfig, error) {
	if dsn == "" {
		return nil, errors.New("DB_DSN is empty")
	}
	cc, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse DB_DSN: %w", err)
	}
	return cc, nil
}

// Open connects to Postgres through the pgx stdlib driver and pings it.
func Open(ctx context.Context, cfg Config, log logrus.FieldLogger) (*sql.DB, error) {
	cc, err := parseDSN(cfg.DSN)
	if err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	conn := stdlib.OpenDB(*cc)
	conn.SetMaxOpenConns(cfg.MaxOpenConns)
	conn.SetMaxIdleConns(cfg.MaxIdleConns)
	conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping %s/%s: %w", cc.Host, cc.Database, err)
	}

	log.WithFields(logrus.Fields{
		"host":           cc.Host,
		"database":       cc.Database,
		"max_open_conns": cfg.MaxOpenConns,
		"max_idle_conns": cfg.MaxIdleConns,
		"conn_lifetime":  cfg.ConnMaxLifetime.String(),
	}).Info("database connected")
	return conn, nil
}
