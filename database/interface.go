// Package database provides SQL connections and a query builder that forces a tenant
// predicate onto every statement against tenant-owned tables.
package database

import (
	"context"
	"database/sql"
)

// Database vendor identifiers.
const (
	PostgreSQL = "postgresql"
	Oracle     = "oracle"
)

// Querier runs statements. Both Interface and Tx satisfy it, so repositories can be
// handed either.
type Querier interface {
	Query(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) *sql.Row
	Exec(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Tx is a Querier bound to a transaction.
type Tx interface {
	Querier
	Commit() error
	Rollback() error
}

// Interface is the database handle used by the store layer.
type Interface interface {
	Querier

	Begin(ctx context.Context) (Tx, error)
	Health(ctx context.Context) error
	Stats() map[string]any
	Close() error

	// Vendor returns PostgreSQL or Oracle.
	Vendor() string
}
