package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	_ "embed"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added expiry index on process_leases
const currentSchemaVersion = 1

// SourceSchema is the schema name an attached operational database is
// reachable under.
const SourceSchema = "src"

// pragmas are applied to every new connection.
var pragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA busy_timeout = 5000",
	"PRAGMA foreign_keys = ON",
}

// Store provides durable storage for the warehouse: target tables,
// watermarks, the run log and process leases.
// Uses SQLite with WAL mode for concurrent read access.
type Store struct {
	db         *sqlx.DB
	sourcePath string
}

// Option configures Open.
type Option func(*Store)

// WithSource attaches the SQLite database at path as schema "src" on
// every connection, making the operational source tables visible to
// extraction queries inside the same transaction as the warehouse writes.
func WithSource(path string) Option {
	return func(s *Store) {
		s.sourcePath = path
	}
}

// Open creates or opens a SQLite warehouse at the given path.
// Applies required pragmas and migrations automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// This function is idempotent - safe to call multiple times.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{}
	for _, opt := range opts {
		opt(s)
	}

	drv := &sqlite3.SQLiteDriver{ConnectHook: s.onConnect}
	db := sql.OpenDB(&connector{dsn: path, driver: drv})

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections.
	// Everything inside a load must go through its Tx: a second statement
	// on the pool would wait for the connection the Tx holds.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s.db = sqlx.NewDb(db, "sqlite3")

	if err := applySchema(s.db); err != nil {
		s.db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return s, nil
}

// onConnect applies pragmas and attaches the source database.
func (s *Store) onConnect(conn *sqlite3.SQLiteConn) error {
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma, nil); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	if s.sourcePath != "" {
		if _, err := conn.Exec("ATTACH DATABASE ? AS "+SourceSchema, []driver.Value{s.sourcePath}); err != nil {
			return fmt.Errorf("attach source %s: %w", s.sourcePath, err)
		}
	}
	return nil
}

// connector opens connections with a per-store driver so that the connect
// hook can see this store's source path.
type connector struct {
	dsn    string
	driver *sqlite3.SQLiteDriver
}

func (c *connector) Connect(context.Context) (driver.Conn, error) {
	return c.driver.Open(c.dsn)
}

func (c *connector) Driver() driver.Driver {
	return c.driver
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sqlx.DB for direct queries.
// Use with caution - prefer using Store methods when available.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// HasSource reports whether an operational database is attached as "src".
func (s *Store) HasSource() bool {
	return s.sourcePath != ""
}

// Tx runs fn inside one transaction. The transaction commits when fn
// returns nil and rolls back otherwise, including on panic and context
// cancellation.
func (s *Store) Tx(ctx context.Context, fn func(*Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&Tx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func applySchema(db *sqlx.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sqlx.DB) error {
	var version int
	if err := db.Get(&version, "PRAGMA user_version"); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 adds the lease expiry index for databases created before it
// was part of schema.sql.
func migrateToV1(db *sqlx.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_process_leases_expires
		ON process_leases(expires_at)
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.Get(&value, fmt.Sprintf("PRAGMA %s", name)); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
