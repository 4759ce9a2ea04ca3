package database

// Dialect hides the SQL differences between the SQLite and PostgreSQL run stores.
type Dialect interface {
	// DriverName is the database/sql driver to open.
	DriverName() string

	// Placeholder returns the bind parameter for a 1-indexed position.
	Placeholder(position int) string

	// SupportsLastInsertID reports whether sql.Result.LastInsertId works.
	// PostgreSQL reads generated keys back with RETURNING instead.
	SupportsLastInsertID() bool

	// ReturningClause returns the suffix that yields column from an INSERT.
	ReturningClause(column string) string

	// AutoIncrementKey is the column definition of a generated integer key.
	AutoIncrementKey() string

	// InitStatements run once per connection pool before migrations.
	InitStatements() []string

	// IsDuplicateKeyError reports a unique constraint violation.
	IsDuplicateKeyError(err error) bool
}

// DialectType names a supported backend.
type DialectType string

const (
	DialectSQLite   DialectType = "sqlite"
	DialectPostgres DialectType = "postgres"
)

// NewDialect returns the dialect for t, falling back to SQLite.
func NewDialect(t DialectType) Dialect {
	if t == DialectPostgres {
		return &PostgresDialect{}
	}
	return &SQLiteDialect{}
}
