// ABOUTME: SQLite implementation of ReadingStore and UserStore
// ABOUTME: Opens the single process-wide handle, creates the schema and runs migrations

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// Supported database/sql driver names.
const (
	DriverModernc = "sqlite"  // modernc.org/sqlite, pure Go
	DriverCGO     = "sqlite3" // github.com/mattn/go-sqlite3
)

// timeLayout is fixed width so that lexical order of stored values equals
// chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements ReadingStore and UserStore using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var (
	_ ReadingStore = (*SQLiteStore)(nil)
	_ UserStore    = (*SQLiteStore)(nil)
)

// Option configures Open.
type Option func(*openOptions)

type openOptions struct {
	driver       string
	maxOpenConns int
	logger       *slog.Logger
}

// WithDriver selects the database/sql driver (DriverModernc or DriverCGO).
func WithDriver(driver string) Option {
	return func(o *openOptions) {
		if driver != "" {
			o.driver = driver
		}
	}
}

// WithMaxOpenConns caps the connection pool. Zero leaves the default.
func WithMaxOpenConns(n int) Option {
	return func(o *openOptions) { o.maxOpenConns = n }
}

// WithLogger sets the logger used by the store.
func WithLogger(logger *slog.Logger) Option {
	return func(o *openOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewSQLiteStore opens a store at path with the default driver.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	return Open(context.Background(), path)
}

// Open creates the SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func Open(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	o := openOptions{
		driver: DriverModernc,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger.With("component", "store")

	if o.driver != DriverModernc && o.driver != DriverCGO {
		return nil, fmt.Errorf("unsupported sqlite driver %q", o.driver)
	}

	inMemory := path == ":memory:"
	if !inMemory {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open(o.driver, dsn(o.driver, path))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Every pooled connection to :memory: would see its own empty database.
	if inMemory {
		db.SetMaxOpenConns(1)
	} else if o.maxOpenConns > 0 {
		db.SetMaxOpenConns(o.maxOpenConns)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if !inMemory {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enabling WAL mode: %w", err)
		}
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	if err := s.runMigrations(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path, "driver", o.driver)
	return s, nil
}

// dsn appends per-connection pragmas in the syntax each driver understands.
// foreign_keys and busy_timeout are connection scoped, so a one-off PRAGMA
// statement would only reach one connection of the pool.
func dsn(driver, path string) string {
	switch driver {
	case DriverCGO:
		return path + "?_foreign_keys=on&_busy_timeout=5000"
	default:
		return path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	}
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS readings (
			id                   TEXT PRIMARY KEY,
			device_name          TEXT NOT NULL,
			time                 TEXT NOT NULL,
			hour_utc             INTEGER NOT NULL,
			precipitation        REAL NOT NULL DEFAULT 0,
			atmospheric_pressure REAL NOT NULL DEFAULT 0,
			max_wind_speed       REAL NOT NULL DEFAULT 0,
			solar_radiation      REAL NOT NULL DEFAULT 0,
			vapor_pressure       REAL NOT NULL DEFAULT 0,
			humidity             REAL NOT NULL DEFAULT 0,
			temperature          REAL NOT NULL DEFAULT 0,
			wind_direction       REAL NOT NULL DEFAULT 0,
			latitude             REAL NOT NULL DEFAULT 0,
			longitude            REAL NOT NULL DEFAULT 0,

			CHECK (hour_utc BETWEEN 0 AND 23)
		);

		CREATE INDEX IF NOT EXISTS idx_readings_device_time ON readings(device_name, time);
		CREATE INDEX IF NOT EXISTS idx_readings_device_hour ON readings(device_name, hour_utc);
		CREATE INDEX IF NOT EXISTS idx_readings_time ON readings(time);

		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			email         TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			role          TEXT NOT NULL,
			first_name    TEXT NOT NULL DEFAULT '',
			last_name     TEXT NOT NULL DEFAULT '',
			created_date  TEXT NOT NULL,
			last_accessed TEXT NOT NULL,
			auth_key      TEXT,

			CHECK (role IN ('admin', 'student', 'station'))
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_users_auth_key
			ON users(auth_key) WHERE auth_key IS NOT NULL;
		CREATE INDEX IF NOT EXISTS idx_users_created_date ON users(created_date);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// runMigrations applies schema migrations for existing databases.
// These are idempotent - safe to run multiple times.
func (s *SQLiteStore) runMigrations(ctx context.Context) error {
	// SQLite doesn't support ADD COLUMN IF NOT EXISTS, so we check first
	migrations := []struct {
		table  string
		column string
		apply  string
	}{
		{
			table:  "users",
			column: "first_name",
			apply:  `ALTER TABLE users ADD COLUMN first_name TEXT NOT NULL DEFAULT ''`,
		},
		{
			table:  "users",
			column: "last_name",
			apply:  `ALTER TABLE users ADD COLUMN last_name TEXT NOT NULL DEFAULT ''`,
		},
	}

	for _, m := range migrations {
		var exists int
		err := s.db.QueryRowContext(ctx,
			`SELECT 1 FROM pragma_table_info(?) WHERE name = ?`, m.table, m.column,
		).Scan(&exists)
		if err == nil {
			continue
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("checking %s.%s: %w", m.table, m.column, err)
		}
		if _, err := s.db.ExecContext(ctx, m.apply); err != nil {
			return fmt.Errorf("adding %s column to %s: %w", m.column, m.table, err)
		}
		s.logger.Info("applied migration", "column", m.column, "table", m.table)
	}

	return nil
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// isUniqueViolation checks if the error is a SQLite UNIQUE constraint
// violation on the given table.column. Both drivers report it with the same
// message text.
func isUniqueViolation(err error, column string) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed: "+column)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}
