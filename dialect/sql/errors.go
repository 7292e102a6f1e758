package sql

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// constraint is a class of constraint violation.
type constraint uint8

const (
	unique constraint = iota + 1
	foreignKey
	check
)

// PostgreSQL SQLSTATE codes for constraint violations (Class 23).
var pgCodes = map[string]constraint{
	"23505": unique,
	"23503": foreignKey,
	"23514": check,
}

// MySQL error numbers for constraint violations.
var mysqlCodes = map[uint16]constraint{
	1062: unique,
	1451: foreignKey, // Cannot delete or update a parent row
	1452: foreignKey, // Cannot add or update a child row
	3819: check,
}

// SQLite extended result codes for constraint violations.
var sqliteCodes = map[int]constraint{
	sqlite3.SQLITE_CONSTRAINT_UNIQUE:     unique,
	sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY: unique,
	sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY: foreignKey,
	sqlite3.SQLITE_CONSTRAINT_CHECK:      check,
}

// Fallback messages for wrapped or stringified driver errors.
var messages = map[constraint][]string{
	unique:     {"Error 1062", "violates unique constraint", "UNIQUE constraint failed"},
	foreignKey: {"Error 1451", "Error 1452", "violates foreign key constraint", "FOREIGN KEY constraint failed"},
	check:      {"Error 3819", "violates check constraint", "CHECK constraint failed"},
}

func classify(err error) constraint {
	if err == nil {
		return 0
	}
	var (
		pqErr     *pq.Error
		mysqlErr  *mysql.MySQLError
		sqliteErr *sqlite.Error
	)
	switch {
	case errors.As(err, &pqErr):
		if c, ok := pgCodes[string(pqErr.Code)]; ok {
			return c
		}
	case errors.As(err, &mysqlErr):
		if c, ok := mysqlCodes[mysqlErr.Number]; ok {
			return c
		}
	case errors.As(err, &sqliteErr):
		if c, ok := sqliteCodes[sqliteErr.Code()]; ok {
			return c
		}
	}
	msg := err.Error()
	for _, c := range []constraint{unique, foreignKey, check} {
		for _, s := range messages[c] {
			if strings.Contains(msg, s) {
				return c
			}
		}
	}
	return 0
}

// IsConstraintError returns true if the error resulted from a database constraint violation.
func IsConstraintError(err error) bool {
	return classify(err) != 0
}

// IsUniqueConstraintError reports if the error resulted from a DB uniqueness constraint violation.
// e.g. duplicate value in unique index.
func IsUniqueConstraintError(err error) bool {
	return classify(err) == unique
}

// IsForeignKeyConstraintError reports if the error resulted from a database foreign-key constraint violation.
func IsForeignKeyConstraintError(err error) bool {
	return classify(err) == foreignKey
}

// IsCheckConstraintError reports if the error resulted from a database check constraint violation.
func IsCheckConstraintError(err error) bool {
	return classify(err) == check
}
