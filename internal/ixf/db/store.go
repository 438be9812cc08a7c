package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store defines all functions to interact with the database. Queries are
// written with ? placeholders and rebound for the active dialect. Calls made
// with a context returned by ExecTx run inside that transaction.
type Store interface {
	Exec(ctx context.Context, query string, args ...any) (sql.Result, error)
	Query(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) *sql.Row

	Dialect() Dialect
	// ExecTx runs fn inside a transaction. Nested calls join the outer transaction.
	ExecTx(ctx context.Context, fn func(ctx context.Context) error) error
	Ping(ctx context.Context) error
	Close() error
}

// SQLStore provides all functions to execute db queries and transactions
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// Config holds database configuration
type Config struct {
	Driver          string `mapstructure:"driver"`
	Path            string `mapstructure:"path"`
	DSN             string `mapstructure:"dsn"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"` // seconds
}

// DefaultConfig returns default database configuration
func DefaultConfig() *Config {
	return &Config{
		Driver:          string(DialectSQLite),
		Path:            "./data/ixfsync.db",
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: 300,
	}
}

// NewStore opens the configured database and applies pending migrations
func NewStore(config *Config) (Store, error) {
	if config == nil {
		config = DefaultConfig()
	}

	dialect, err := ParseDialect(config.Driver)
	if err != nil {
		return nil, err
	}

	var dsn string
	switch dialect {
	case DialectSQLite:
		dir := filepath.Dir(config.Path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = config.Path + "?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000"
	case DialectPostgres:
		dsn = config.DSN
	}

	db, err := sql.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(time.Duration(config.ConnMaxLifetime) * time.Second)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLStore{db: db, dialect: dialect}
	if err := store.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to setup database schema: %w", err)
	}

	return store, nil
}

// NewStoreFromDB creates a new Store from an existing database connection.
// No migrations are run.
func NewStoreFromDB(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

type txKey struct{}

// txState is carried by the context of an open transaction
type txState struct {
	tx    *sql.Tx
	mu    sync.Mutex
	hooks []func(committed bool)
}

func txFrom(ctx context.Context) *txState {
	st, _ := ctx.Value(txKey{}).(*txState)
	return st
}

// OnTxEnd registers fn to run once the transaction carried by ctx has ended.
// committed is false when it rolled back. Outside a transaction nothing is
// registered and false is returned.
func OnTxEnd(ctx context.Context, fn func(committed bool)) bool {
	st := txFrom(ctx)
	if st == nil {
		return false
	}
	st.mu.Lock()
	st.hooks = append(st.hooks, fn)
	st.mu.Unlock()
	return true
}

// TxToken identifies the transaction carried by ctx. It is nil outside one.
func TxToken(ctx context.Context) any {
	if st := txFrom(ctx); st != nil {
		return st
	}
	return nil
}

func (st *txState) finish(committed bool) {
	st.mu.Lock()
	hooks := st.hooks
	st.hooks = nil
	st.mu.Unlock()
	for _, fn := range hooks {
		fn(committed)
	}
}

func (s *SQLStore) conn(ctx context.Context) DBTX {
	if st := txFrom(ctx); st != nil {
		return st.tx
	}
	return s.db
}

// Exec runs a statement
func (s *SQLStore) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.conn(ctx).ExecContext(ctx, s.dialect.Rebind(query), args...)
}

// Query runs a query returning rows
func (s *SQLStore) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.conn(ctx).QueryContext(ctx, s.dialect.Rebind(query), args...)
}

// QueryRow runs a query returning at most one row
func (s *SQLStore) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.conn(ctx).QueryRowContext(ctx, s.dialect.Rebind(query), args...)
}

// Dialect returns the SQL dialect of the connection
func (s *SQLStore) Dialect() Dialect {
	return s.dialect
}

// ExecTx executes a function within a transaction. Hooks registered with
// OnTxEnd run after the commit or rollback.
func (s *SQLStore) ExecTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFrom(ctx) != nil {
		return fn(ctx)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	st := &txState{tx: tx}
	err = fn(context.WithValue(ctx, txKey{}, st))
	if err != nil {
		rbErr := tx.Rollback()
		st.finish(false)
		if rbErr != nil {
			return fmt.Errorf("transaction error: %v, rollback error: %w", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		st.finish(false)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	st.finish(true)

	return nil
}

// Ping checks if the database connection is alive
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *SQLStore) GetDB() *sql.DB {
	return s.db
}
