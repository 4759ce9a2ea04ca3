package database

import "strings"

// QueryBuilder rewrites queries written with ? placeholders for a dialect.
type QueryBuilder struct {
	dialect Dialect
}

// NewQueryBuilder returns a builder for dialect.
func NewQueryBuilder(dialect Dialect) *QueryBuilder {
	return &QueryBuilder{dialect: dialect}
}

// Build replaces each ? with the dialect's numbered placeholder.
//
//	SELECT steps FROM runs WHERE id = ?  ->  SELECT steps FROM runs WHERE id = $1
func (qb *QueryBuilder) Build(query string) string {
	if qb.dialect.Placeholder(1) == "?" {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] != '?' {
			b.WriteByte(query[i])
			continue
		}
		n++
		b.WriteString(qb.dialect.Placeholder(n))
	}
	return b.String()
}

// BuildWithReturning builds an INSERT that yields column on dialects without
// LastInsertId support.
func (qb *QueryBuilder) BuildWithReturning(query, column string) string {
	q := qb.Build(query)
	if !qb.dialect.SupportsLastInsertID() {
		q += qb.dialect.ReturningClause(column)
	}
	return q
}
