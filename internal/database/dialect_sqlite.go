package database

import "strings"

// SQLiteDialect targets modernc.org/sqlite.
type SQLiteDialect struct{}

func (d *SQLiteDialect) DriverName() string { return "sqlite" }

func (d *SQLiteDialect) Placeholder(int) string { return "?" }

func (d *SQLiteDialect) SupportsLastInsertID() bool { return true }

func (d *SQLiteDialect) ReturningClause(string) string { return "" }

func (d *SQLiteDialect) AutoIncrementKey() string {
	return "INTEGER PRIMARY KEY AUTOINCREMENT"
}

// InitStatements enables cascading deletes of run cells and lets the CLI and
// the frame server share one file.
func (d *SQLiteDialect) InitStatements() []string {
	return []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	}
}

func (d *SQLiteDialect) IsDuplicateKeyError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
