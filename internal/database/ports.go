// Package database defines the relational store port consumed by the ledger
// and the supervisor, plus the PostgreSQL adapter. Repositories depend on
// the interface only, so tests can substitute a recording fake.
package database

import (
	"context"
	"database/sql"
)

// Database represents a database connection.
type Database interface {
	// Execute runs a statement that returns no rows.
	Execute(ctx context.Context, query string, args ...interface{}) (sql.Result, error)

	// Query runs a query that returns rows.
	Query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)

	// QueryRow runs a query that returns at most one row.
	QueryRow(ctx context.Context, query string, args ...interface{}) *sql.Row

	// Select scans multiple rows into dest (sqlx semantics).
	Select(ctx context.Context, dest interface{}, query string, args ...interface{}) error

	// Get scans a single row into dest (sqlx semantics).
	Get(ctx context.Context, dest interface{}, query string, args ...interface{}) error

	// Transaction runs fn inside a transaction, committing on nil return
	// and rolling back otherwise.
	Transaction(ctx context.Context, fn func(tx Transaction) error) error

	// Ping verifies the connection.
	Ping(ctx context.Context) error

	// Close closes the connection pool.
	Close() error
}

// Transaction is the statement surface available inside a transaction.
type Transaction interface {
	Execute(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	Query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(ctx context.Context, query string, args ...interface{}) *sql.Row
	Get(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}
