package database

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// Supported drivers
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// DefaultSQLitePath is where the database lives when no DSN is configured
const DefaultSQLitePath = "data/memory-card.db"

// DB is a database handle shared by the repositories
type DB struct {
	*sqlx.DB
}

// NormalizeDriver maps driver aliases to the registered driver names
func NormalizeDriver(driver string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite", "sqlite3":
		return DriverSQLite, nil
	case "postgres", "postgresql", "pg":
		return DriverPostgres, nil
	}
	return "", errors.Errorf("unsupported database driver %q", driver)
}

// Open connects to the database and makes sure the schema exists
func Open(ctx context.Context, driver, dsn string) (*DB, error) {
	driver, err := NormalizeDriver(driver)
	if err != nil {
		return nil, err
	}

	if driver == DriverSQLite {
		if dsn == "" {
			dsn = DefaultSQLitePath
		}
		if err := ensureDir(dsn); err != nil {
			return nil, err
		}
	} else if dsn == "" {
		return nil, errors.New("postgres requires DATABASE_URL")
	}

	conn, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}

	if driver == DriverSQLite {
		if _, err := conn.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			conn.Close()
			return nil, errors.Wrap(err, "failed to enable foreign keys")
		}
		// SQLite doesn't support multiple writers
		conn.SetMaxOpenConns(1)
		conn.SetMaxIdleConns(1)
	}

	db := &DB{DB: conn}
	if err := db.initializeSchema(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	if db == nil || db.DB == nil {
		return nil
	}
	return db.DB.Close()
}

// IsPostgres reports whether the handle talks to PostgreSQL
func (db *DB) IsPostgres() bool {
	return db.DriverName() == DriverPostgres
}

func ensureDir(dsn string) error {
	if dsn == ":memory:" || strings.HasPrefix(dsn, "file:") {
		return nil
	}
	dir := filepath.Dir(dsn)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "failed to create data directory")
	}
	return nil
}

var schema = []struct {
	name string
	ddl  string
}{
	{"concepts", `
		CREATE TABLE IF NOT EXISTS concepts (
			id TEXT PRIMARY KEY,
			text TEXT NOT NULL,
			explanation TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT '',
			level INTEGER,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`},
	{"concepts category index", `CREATE INDEX IF NOT EXISTS idx_concepts_category ON concepts (category)`},
	{"concepts level index", `CREATE INDEX IF NOT EXISTS idx_concepts_level ON concepts (level)`},
	{"users", `
		CREATE TABLE IF NOT EXISTS users (
			telegram_id BIGINT PRIMARY KEY,
			username TEXT NOT NULL DEFAULT '',
			first_name TEXT NOT NULL DEFAULT '',
			notification_enabled BOOLEAN NOT NULL DEFAULT TRUE,
			notification_hour INTEGER NOT NULL DEFAULT 9,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`},
	{"concept_progress", `
		CREATE TABLE IF NOT EXISTS concept_progress (
			user_id BIGINT NOT NULL,
			concept_id TEXT NOT NULL,
			total_attempts INTEGER NOT NULL DEFAULT 0,
			correct_attempts INTEGER NOT NULL DEFAULT 0,
			last_attempt TIMESTAMP,
			next_review TIMESTAMP,
			interval_days INTEGER NOT NULL DEFAULT 1,
			PRIMARY KEY (user_id, concept_id)
		)
	`},
	{"group_progress", `
		CREATE TABLE IF NOT EXISTS group_progress (
			user_id BIGINT NOT NULL,
			group_key TEXT NOT NULL,
			completed INTEGER NOT NULL DEFAULT 0,
			total INTEGER NOT NULL DEFAULT 0,
			version BIGINT NOT NULL DEFAULT 0,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (user_id, group_key)
		)
	`},
}

// initializeSchema creates necessary tables if they don't exist
func (db *DB) initializeSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt.ddl); err != nil {
			return errors.Wrapf(err, "failed to create %s", stmt.name)
		}
	}
	return nil
}
