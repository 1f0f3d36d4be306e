package db

import (
	"fmt"
	"strings"
)

// Dialect identifiers supported by the database layer.
const (
	// DialectPostgres is the PostgreSQL dialect name.
	DialectPostgres = "postgres"
	// DialectSQLite is the SQLite dialect name.
	DialectSQLite = "sqlite"
)

// EqualFoldExpr returns a SQL expression for case-insensitive equality on a
// column, valid on both supported dialects. Used for email lookups where
// stored casing must not matter.
func EqualFoldExpr(column string) string {
	return fmt.Sprintf("LOWER(%s) = ?", column)
}

// FoldValue normalizes a value for use with EqualFoldExpr.
func FoldValue(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
