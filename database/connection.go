package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hyvewellness/tenantgate/config"
	"github.com/hyvewellness/tenantgate/logger"
)

const (
	defaultPingTimeout   = 10 * time.Second
	defaultHealthTimeout = 5 * time.Second
)

// Connection implements Interface on top of database/sql. Every statement is timed and
// logged; statements slower than the configured threshold log at WARN.
type Connection struct {
	db     *sql.DB
	vendor string
	track  *tracker
}

var pingDB = func(ctx context.Context, db *sql.DB) error {
	return db.PingContext(ctx)
}

// Open connects to the configured database and verifies the connection with a ping.
func Open(ctx context.Context, cfg *config.DatabaseConfig, log logger.Logger) (*Connection, error) {
	var (
		db  *sql.DB
		err error
	)
	switch cfg.Type {
	case PostgreSQL, "":
		db, err = openPostgres(cfg)
	case Oracle:
		db, err = openOracle(cfg)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(int(cfg.Pool.Max))
	db.SetMaxIdleConns(int(cfg.Pool.Idle))
	db.SetConnMaxLifetime(cfg.Pool.Lifetime)
	db.SetConnMaxIdleTime(cfg.Pool.IdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	if err := pingDB(pingCtx, db); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("Failed to close database connection after ping failure")
		}
		return nil, config.NewConnectionError("database", err.Error(), []string{
			"check database.host and database.port",
			"check the credentials in database.username and database.password",
		})
	}

	vendor := cfg.Type
	if vendor == "" {
		vendor = PostgreSQL
	}
	log.Info().
		Str("vendor", vendor).
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Database).
		Msg("Connected to database")

	return New(db, vendor, log, cfg.SlowQuery), nil
}

// New wraps an open *sql.DB. Tests pass a go-sqlmock handle here.
func New(db *sql.DB, vendor string, log logger.Logger, slowQuery time.Duration) *Connection {
	return &Connection{
		db:     db,
		vendor: vendor,
		track:  newTracker(vendor, log, slowQuery),
	}
}

func (c *Connection) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	start := time.Now()
	rows, err := c.db.QueryContext(ctx, query, args...)
	c.track.done(ctx, query, start, err)
	return rows, err
}

func (c *Connection) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	start := time.Now()
	row := c.db.QueryRowContext(ctx, query, args...)
	c.track.done(ctx, query, start, row.Err())
	return row
}

func (c *Connection) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	start := time.Now()
	res, err := c.db.ExecContext(ctx, query, args...)
	c.track.done(ctx, query, start, err)
	return res, err
}

// Begin starts a transaction whose statements are tracked like the connection's.
func (c *Connection) Begin(ctx context.Context) (Tx, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &transaction{tx: tx, track: c.track}, nil
}

// Health pings the database.
func (c *Connection) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, defaultHealthTimeout)
	defer cancel()
	return c.db.PingContext(ctx)
}

// Stats reports connection pool statistics.
func (c *Connection) Stats() map[string]any {
	s := c.db.Stats()
	return map[string]any{
		"max_open_connections": s.MaxOpenConnections,
		"open_connections":     s.OpenConnections,
		"in_use":               s.InUse,
		"idle":                 s.Idle,
		"wait_count":           s.WaitCount,
		"wait_duration":        s.WaitDuration.String(),
	}
}

func (c *Connection) Close() error {
	return c.db.Close()
}

func (c *Connection) Vendor() string {
	return c.vendor
}

type transaction struct {
	tx    *sql.Tx
	track *tracker
}

func (t *transaction) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	start := time.Now()
	rows, err := t.tx.QueryContext(ctx, query, args...)
	t.track.done(ctx, query, start, err)
	return rows, err
}

func (t *transaction) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	start := time.Now()
	row := t.tx.QueryRowContext(ctx, query, args...)
	t.track.done(ctx, query, start, row.Err())
	return row
}

func (t *transaction) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	start := time.Now()
	res, err := t.tx.ExecContext(ctx, query, args...)
	t.track.done(ctx, query, start, err)
	return res, err
}

func (t *transaction) Commit() error {
	return t.tx.Commit()
}

func (t *transaction) Rollback() error {
	return t.tx.Rollback()
}

// WithTx runs fn inside a transaction, committing when fn returns nil and rolling back
// otherwise.
func WithTx(ctx context.Context, db Interface, fn func(Tx) error) (err error) {
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
