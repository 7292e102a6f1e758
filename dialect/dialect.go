package dialect

import (
	"context"

	"github.com/syssam/graphorm/schema/field"
)

// Dialect names.
const (
	MySQL    = "mysql"
	SQLite   = "sqlite"
	Postgres = "postgres"
)

// Executor runs the statements of the engine. It is implemented by a
// Backend and by its transactions.
type Executor interface {
	// Exec executes a DDL statement.
	Exec(ctx context.Context, stmt string) error
	// Insert inserts one row and returns its generated id.
	Insert(ctx context.Context, table string, values ValueSet) (int64, error)
	// Update updates the rows matching filter and returns how many were
	// affected.
	Update(ctx context.Context, table string, values ValueSet, filter Filter) (int64, error)
	// Save inserts the row, or updates it when values holds a positive
	// "id". It returns the row id.
	Save(ctx context.Context, table string, values ValueSet) (int64, error)
	// BulkSave saves every row of every table in one transaction and
	// returns the row ids in input order.
	BulkSave(ctx context.Context, rows map[string][]ValueSet) (map[string][]int64, error)
	// Delete deletes the rows matching filter.
	Delete(ctx context.Context, table string, filter Filter) (int64, error)
	// Count counts the rows matching filter.
	Count(ctx context.Context, table string, filter Filter) (int64, error)
	// Query runs a select. The returned cursor must be closed.
	Query(ctx context.Context, q Query) (Cursor, error)
	// HasTable reports whether the table exists.
	HasTable(ctx context.Context, table string) (bool, error)
}

// Backend is a storage backend.
type Backend interface {
	Executor
	Open(ctx context.Context) error
	Close() error
	IsOpen() bool
	// Begin starts a transaction.
	Begin(ctx context.Context) (Tx, error)
	// PrepareValueSet returns an empty row for Insert, Update and Save.
	PrepareValueSet() ValueSet
	// ColumnType returns the native column type for a field type.
	ColumnType(t field.Type, nullable bool) string
	// PrimaryKeyColumnType returns the native type of identity columns.
	PrimaryKeyColumnType() string
	// Dialect returns the dialect name.
	Dialect() string
}

// Tx is a transaction of a Backend.
type Tx interface {
	Executor
	Commit() error
	Rollback() error
}

// Query describes a select statement.
type Query struct {
	Table string
	// Columns to select. Empty selects all columns.
	Columns []string
	Filter  Filter
	GroupBy string
	Having  string
	OrderBy string
	// Limit is ignored when zero.
	Limit int
}

// Cursor is a forward-only view over the rows of a query.
//
//	for ok := c.MoveToFirst(); ok; ok = c.MoveToNext() {
//	    id, err := c.Int64(0)
//	    ...
//	}
type Cursor interface {
	Close() error
	IsEmpty() bool
	MoveToFirst() bool
	IsAfterLast() bool
	MoveToNext() bool
	ColumnCount() int
	ColumnName(i int) string
	IsNull(i int) bool
	Int64(i int) (int64, error)
	Float64(i int) (float64, error)
	String(i int) (string, error)
	Bytes(i int) ([]byte, error)
	Bool(i int) (bool, error)
	// Value returns the raw value of column i.
	Value(i int) any
}
