// Package databasetest provides an in-memory recording fake of the Database
// port. Repositories under test run against it; assertions inspect the
// captured SQL and arguments instead of a live PostgreSQL.
package databasetest

import (
	"context"
	"database/sql"

	"claimsync/internal/database"
)

// Statement is one captured Execute call.
type Statement struct {
	Query string
	Args  []interface{}
}

// RecordingDB captures statements and delegates reads to caller-supplied
// functions. Zero-value functions return sql.ErrNoRows / empty results.
type RecordingDB struct {
	Executed []Statement

	// ExecFunc, when set, decides the result of Execute calls.
	ExecFunc func(query string, args ...interface{}) (sql.Result, error)
	// GetFunc, when set, fills dest for Get calls.
	GetFunc func(dest interface{}, query string, args ...interface{}) error
	// SelectFunc, when set, fills dest for Select calls.
	SelectFunc func(dest interface{}, query string, args ...interface{}) error
}

// Result is a canned sql.Result.
type Result struct {
	LastID int64
	Rows   int64
}

func (r Result) LastInsertId() (int64, error) { return r.LastID, nil }
func (r Result) RowsAffected() (int64, error) { return r.Rows, nil }

func (db *RecordingDB) Execute(_ context.Context, query string, args ...interface{}) (sql.Result, error) {
	db.Executed = append(db.Executed, Statement{Query: query, Args: args})
	if db.ExecFunc != nil {
		return db.ExecFunc(query, args...)
	}
	return Result{Rows: 1}, nil
}

func (db *RecordingDB) Query(context.Context, string, ...interface{}) (*sql.Rows, error) {
	return nil, sql.ErrNoRows
}

func (db *RecordingDB) QueryRow(context.Context, string, ...interface{}) *sql.Row {
	return nil
}

func (db *RecordingDB) Select(_ context.Context, dest interface{}, query string, args ...interface{}) error {
	if db.SelectFunc != nil {
		return db.SelectFunc(dest, query, args...)
	}
	return nil
}

func (db *RecordingDB) Get(_ context.Context, dest interface{}, query string, args ...interface{}) error {
	if db.GetFunc != nil {
		return db.GetFunc(dest, query, args...)
	}
	return sql.ErrNoRows
}

// Transaction runs fn against a view writing into the same capture list.
func (db *RecordingDB) Transaction(ctx context.Context, fn func(tx database.Transaction) error) error {
	return fn(&recordingTx{db: db, ctx: ctx})
}

func (db *RecordingDB) Ping(context.Context) error { return nil }
func (db *RecordingDB) Close() error               { return nil }

type recordingTx struct {
	db  *RecordingDB
	ctx context.Context
}

func (t *recordingTx) Execute(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return t.db.Execute(ctx, query, args...)
}

func (t *recordingTx) Query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return t.db.Query(ctx, query, args...)
}

func (t *recordingTx) QueryRow(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return t.db.QueryRow(ctx, query, args...)
}

func (t *recordingTx) Get(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return t.db.Get(ctx, dest, query, args...)
}
