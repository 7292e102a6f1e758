// Package sql implements dialect.Backend on top of database/sql.
//
// The backend supports SQLite (modernc.org/sqlite), PostgreSQL (lib/pq)
// and MySQL (go-sql-driver/mysql). Importing the package registers the
// three drivers under their dialect names:
//
//	b := sql.New(dialect.SQLite, "file:cats.db?_pragma=foreign_keys(1)")
//	if err := b.Open(ctx); err != nil {
//		return err
//	}
//	defer b.Close()
//
// Statements are written with "?" placeholders and rebound for the
// dialect by sqlx. A slice argument bound to "IN (?)" is expanded to one
// placeholder per element:
//
//	cur, err := b.Query(ctx, dialect.Query{
//		Table:   "Cat",
//		Columns: []string{"id", "name"},
//		Filter:  dialect.In("id", []int64{1, 2, 3}),
//	})
//
// Query reads the whole result set and closes the database rows before
// returning, so cursors never hold a connection.
//
// # Saving rows
//
// Save inserts a row, or upserts it when the value set holds a positive
// "id". Generated ids are read with RETURNING on PostgreSQL and with
// LastInsertId elsewhere. BulkSave writes rows of several tables in one
// transaction.
//
// # Statistics
//
// Every statement is counted:
//
//	b := sql.New(dialect.SQLite, dsn,
//		sql.WithSlowThreshold(50*time.Millisecond),
//		sql.WithSlowQueryLog(),
//	)
//	...
//	fmt.Println(b.QueryStats().Stats())
//
// # Configuration
//
// LoadConfig reads the backend settings from a YAML file, with
// environment overrides, and Config.Backend builds the backend.
package sql
