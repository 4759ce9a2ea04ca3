package database

import (
	"errors"
	"strconv"

	"github.com/lib/pq"
)

// PostgresDialect targets github.com/lib/pq.
type PostgresDialect struct{}

func (d *PostgresDialect) DriverName() string { return "postgres" }

func (d *PostgresDialect) Placeholder(position int) string {
	return "$" + strconv.Itoa(position)
}

func (d *PostgresDialect) SupportsLastInsertID() bool { return false }

func (d *PostgresDialect) ReturningClause(column string) string {
	return " RETURNING " + column
}

func (d *PostgresDialect) AutoIncrementKey() string {
	return "BIGSERIAL PRIMARY KEY"
}

func (d *PostgresDialect) InitStatements() []string {
	return []string{"SET TIME ZONE 'UTC'"}
}

// IsDuplicateKeyError matches SQLSTATE 23505 (unique_violation).
func (d *PostgresDialect) IsDuplicateKeyError(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
