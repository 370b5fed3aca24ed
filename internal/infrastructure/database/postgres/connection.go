// Package postgres manages the PostgreSQL connection pool and the
// transaction boundary used by the application layer.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver

	"github.com/ipdocket/ipdocket/internal/config"
	"github.com/ipdocket/ipdocket/internal/infrastructure/monitoring/logging"
	"github.com/ipdocket/ipdocket/pkg/errors"
)

// Connection wraps the sql.DB pool together with its configuration.  One
// Connection is shared by every repository; the pool handles concurrency.
type Connection struct {
	db     *sql.DB
	cfg    config.DatabaseConfig
	logger logging.Logger

	closeOnce sync.Once
}

// NewConnection opens the pool and verifies connectivity with a short ping.
func NewConnection(cfg config.DatabaseConfig, logger logging.Logger) (*Connection, error) {
	db, err := sql.Open("pgx", BuildDSN(cfg))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "open database")
	}

	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "ping database")
	}

	logger.Info("postgres connected",
		logging.String("host", cfg.Host),
		logging.Int("port", cfg.Port),
		logging.String("database", cfg.DBName),
		logging.Int("max_conns", cfg.MaxConns))

	return &Connection{db: db, cfg: cfg, logger: logger}, nil
}

// NewConnectionWithDB wraps an existing pool.  Used by tests that provide a
// testcontainers-backed database.
func NewConnectionWithDB(db *sql.DB, logger logging.Logger) *Connection {
	return &Connection{db: db, logger: logger}
}

// BuildDSN renders the keyword/value connection string for the pgx driver.
func BuildDSN(cfg config.DatabaseConfig) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)
}

// URL renders the database URL form used by the migration tooling.
func URL(cfg config.DatabaseConfig) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName, cfg.SSLMode)
}

// DB exposes the underlying pool for repositories.
func (c *Connection) DB() *sql.DB { return c.db }

// Close shuts the pool down.  Safe to call more than once.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.db.Close()
		if c.logger != nil {
			c.logger.Info("postgres connection closed")
		}
	})
	return err
}

// txKey carries the active transaction through the context so repositories
// participate in the caller's unit of work transparently.
type txKey struct{}

// TxFromContext returns the transaction started by WithinTx, if any.
func TxFromContext(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*sql.Tx)
	return tx, ok
}

// WithinTx runs fn inside a single database transaction.  The transaction is
// placed in the context; nested calls join the outer transaction instead of
// opening a second one.
func (c *Connection) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := TxFromContext(ctx); ok {
		return fn(ctx)
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "begin transaction")
	}

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && c.logger != nil {
			c.logger.Error("transaction rollback failed", logging.Err(rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "commit transaction")
	}
	return nil
}
