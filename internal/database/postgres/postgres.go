// Package postgres implements the Database port on PostgreSQL via sqlx.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"claimsync/internal/config"
	"claimsync/internal/database"
	"claimsync/internal/observability"
)

// DB implements database.Database for PostgreSQL.
type DB struct {
	conn    *sqlx.DB
	logger  observability.Logger
	metrics observability.Metrics
}

// New opens a pooled connection and verifies it with a ping.
func New(cfg *config.DatabaseConfig, logger observability.Logger, metrics observability.Metrics) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	logger.Info(context.Background(), "connecting to PostgreSQL", observability.Fields{
		"host":     cfg.Host,
		"port":     cfg.Port,
		"database": cfg.Database,
	})

	conn, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	conn.SetMaxOpenConns(cfg.MaxOpenConns)
	conn.SetMaxIdleConns(cfg.MaxIdleConns)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &DB{conn: conn, logger: logger, metrics: metrics}, nil
}

func (d *DB) Execute(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	start := time.Now()
	result, err := d.conn.ExecContext(ctx, query, args...)
	d.record("execute", start, err)
	return result, err
}

func (d *DB) Query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	start := time.Now()
	rows, err := d.conn.QueryContext(ctx, query, args...)
	d.record("query", start, err)
	return rows, err
}

func (d *DB) QueryRow(ctx context.Context, query string, args ...interface{}) *sql.Row {
	start := time.Now()
	row := d.conn.QueryRowContext(ctx, query, args...)
	d.record("query_row", start, nil)
	return row
}

func (d *DB) Select(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	start := time.Now()
	err := d.conn.SelectContext(ctx, dest, query, args...)
	d.record("select", start, err)
	return err
}

func (d *DB) Get(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	start := time.Now()
	err := d.conn.GetContext(ctx, dest, query, args...)
	// sql.ErrNoRows is an answer, not a failure.
	if err == sql.ErrNoRows {
		d.record("get", start, nil)
		return err
	}
	d.record("get", start, err)
	return err
}

// Transaction runs fn inside a transaction. A panic inside fn rolls back
// and re-panics so the worker boundary can convert it to a failed job.
func (d *DB) Transaction(ctx context.Context, fn func(tx database.Transaction) error) error {
	start := time.Now()

	tx, err := d.conn.BeginTxx(ctx, nil)
	if err != nil {
		d.logger.Error(ctx, "failed to begin transaction", err, nil)
		return err
	}

	ptx := &pgTx{tx: tx}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(ptx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			d.logger.Error(ctx, "failed to rollback transaction", rbErr, nil)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		d.logger.Error(ctx, "failed to commit transaction", err, nil)
		return err
	}

	d.record("transaction", start, nil)
	return nil
}

func (d *DB) Ping(ctx context.Context) error {
	return d.conn.PingContext(ctx)
}

func (d *DB) Close() error {
	d.logger.Info(context.Background(), "closing database connection", nil)
	return d.conn.Close()
}

func (d *DB) record(operation string, start time.Time, err error) {
	d.metrics.RecordDuration(fmt.Sprintf("db_%s", operation), time.Since(start).Seconds())
	if err != nil {
		d.metrics.RecordError(fmt.Sprintf("db_%s", operation), "database")
	}
}

// pgTx implements database.Transaction.
type pgTx struct {
	tx *sqlx.Tx
}

func (t *pgTx) Execute(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return t.tx.ExecContext(ctx, query, args...)
}

func (t *pgTx) Query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return t.tx.QueryContext(ctx, query, args...)
}

func (t *pgTx) QueryRow(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return t.tx.QueryRowContext(ctx, query, args...)
}

func (t *pgTx) Get(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return t.tx.GetContext(ctx, dest, query, args...)
}
