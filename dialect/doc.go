// Package dialect defines the storage backend contract of the engine.
//
// A [Backend] executes the statements the engine derives from entity
// metadata: DDL, row inserts and updates keyed by the "id" column, batched
// saves, deletes, counts and selects. Rows are written through a
// [ValueSet] and read back through a [Cursor].
//
// # Supported Dialects
//
//	dialect.SQLite   = "sqlite"
//	dialect.Postgres = "postgres"
//	dialect.MySQL    = "mysql"
//
// The database/sql implementation lives in dialect/sql:
//
//	b := sql.New(dialect.SQLite, "file:cats.db?_pragma=foreign_keys(1)")
//	ds, err := graphorm.New(b, graphorm.Entities(Cat{}, Kitten{}))
//
// # Filters
//
// The engine has no query language. A [Filter] is a WHERE fragment passed
// through verbatim with "?" placeholders:
//
//	graphorm.GetAll[Cat](ctx, ds, dialect.Where("name LIKE ?", "B%"))
package dialect
