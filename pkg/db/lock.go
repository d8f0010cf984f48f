package db

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ForUpdate adds a row lock to the query on dialects that support it.
// sqlite serializes writers, so the clause is skipped there.
func ForUpdate(conn *gorm.DB) *gorm.DB {
	if IsSQLite(conn) {
		return conn
	}
	return conn.Clauses(clause.Locking{Strength: "UPDATE"})
}

// LockSuffix returns the row lock suffix for raw SELECT statements.
func LockSuffix(conn *gorm.DB) string {
	if IsSQLite(conn) {
		return ""
	}
	return " FOR UPDATE"
}
