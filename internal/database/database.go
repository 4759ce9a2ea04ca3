// Package database stores generated runs in SQLite or PostgreSQL.
package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/multierr"
	_ "modernc.org/sqlite"
)

// Database wraps a connection pool and the dialect it speaks.
type Database struct {
	db      *sql.DB
	dialect Dialect
	qb      *QueryBuilder
}

// Open opens or creates the SQLite store at path.
func Open(path string) (*Database, error) {
	return OpenWithConfig(DefaultConfig(path))
}

// OpenWithConfig connects to the configured backend and migrates the schema.
func OpenWithConfig(cfg Config) (*Database, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dialect := NewDialect(DialectType(cfg.Driver))

	var dsn string
	switch d := dialect.(type) {
	case *SQLiteDialect:
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = cfg.SQLitePath
	case *PostgresDialect:
		dsn = cfg.Postgres.DSN()
	default:
		return nil, fmt.Errorf("unsupported dialect %T", d)
	}

	db, err := sql.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if DialectType(cfg.Driver) == DialectPostgres {
		db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.Postgres.ConnMaxLifetime)
		if err := db.Ping(); err != nil {
			return nil, multierr.Append(fmt.Errorf("failed to connect to postgres: %w", err), db.Close())
		}
	}

	for _, stmt := range dialect.InitStatements() {
		if _, err := db.Exec(stmt); err != nil {
			return nil, multierr.Append(fmt.Errorf("init %q: %w", stmt, err), db.Close())
		}
	}

	d := &Database{db: db, dialect: dialect, qb: NewQueryBuilder(dialect)}
	if err := d.migrate(); err != nil {
		return nil, multierr.Append(fmt.Errorf("failed to run migrations: %w", err), db.Close())
	}
	return d, nil
}

// Close closes the connection pool.
func (d *Database) Close() error {
	return d.db.Close()
}

// Dialect returns the SQL dialect in use.
func (d *Database) Dialect() Dialect {
	return d.dialect
}

func (d *Database) migrate() error {
	migrations := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS runs (
			seq %s,
			id TEXT NOT NULL UNIQUE,
			seed BIGINT NOT NULL,
			unique_edge_count INTEGER NOT NULL,
			width INTEGER NOT NULL,
			policy TEXT NOT NULL,
			steps INTEGER NOT NULL DEFAULT 0,
			commits INTEGER NOT NULL DEFAULT 0,
			masked_contradictions INTEGER NOT NULL DEFAULT 0,
			attempts INTEGER NOT NULL DEFAULT 1,
			status TEXT NOT NULL,
			fingerprint TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL
		)`, d.dialect.AutoIncrementKey()),

		`CREATE TABLE IF NOT EXISTS run_cells (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			cell_id INTEGER NOT NULL,
			prototype_id INTEGER NOT NULL,
			entropy INTEGER NOT NULL,
			PRIMARY KEY (run_id, cell_id)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_fingerprint ON runs(fingerprint)`,
	}

	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}
