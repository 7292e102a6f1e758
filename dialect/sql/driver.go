package sql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/syssam/graphorm/dialect"
	"github.com/syssam/graphorm/schema"
)

const idColumn = schema.IDColumn

// ErrNotOpen is returned by statements run on a closed backend.
var ErrNotOpen = errors.New("dialect/sql: backend is not open")

// Backend is a dialect.Backend for database/sql drivers.
type Backend struct {
	dialect    string
	driverName string
	dsn        string

	mu sync.RWMutex
	db *sqlx.DB

	stats         *QueryStats
	slowThreshold time.Duration
	slowHook      SlowQueryHook
	logger        *slog.Logger
	debug         bool
}

// New returns a backend that opens dsn with the database/sql driver
// registered for the dialect. The connection is established by Open.
//
//	import _ "modernc.org/sqlite"
//
//	b := sql.New(dialect.SQLite, "file:cats.db?_pragma=foreign_keys(1)")
func New(dialectName, dsn string, opts ...Option) *Backend {
	b := &Backend{
		dialect:       dialectName,
		driverName:    dialectName,
		dsn:           dsn,
		stats:         &QueryStats{},
		slowThreshold: 100 * time.Millisecond,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// OpenDB wraps an already opened database. The backend is open on return.
func OpenDB(dialectName string, db *sql.DB, opts ...Option) *Backend {
	b := New(dialectName, "", opts...)
	b.db = sqlx.NewDb(db, dialectName)
	return b
}

// WithDriverName sets the database/sql driver name when it differs from
// the dialect, e.g. "pgx" for the postgres dialect.
func WithDriverName(name string) Option {
	return func(b *Backend) {
		b.driverName = name
	}
}

// Open connects to the database.
func (b *Backend) Open(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.db != nil {
		return nil
	}
	db, err := sqlx.Open(b.driverName, b.dsn)
	if err != nil {
		return fmt.Errorf("dialect/sql: open: %w", err)
	}
	if b.dialect == dialect.SQLite {
		// SQLite only supports one writer, and in-memory databases live
		// in a single connection.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		return errors.Join(fmt.Errorf("dialect/sql: ping: %w", err), db.Close())
	}
	// Placeholders are rebound for the dialect, not the driver name.
	b.db = sqlx.NewDb(db.DB, b.dialect)
	return nil
}

// Close closes the database.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.db == nil {
		return nil
	}
	err := b.db.Close()
	b.db = nil
	return err
}

// IsOpen reports whether the backend is connected.
func (b *Backend) IsOpen() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.db != nil
}

// DB returns the underlying *sql.DB instance, or nil when closed.
func (b *Backend) DB() *sql.DB {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.db == nil {
		return nil
	}
	return b.db.DB
}

// Dialect implements the dialect.Dialect method.
func (b *Backend) Dialect() string {
	return b.dialect
}

// PrepareValueSet returns an empty row.
func (b *Backend) PrepareValueSet() dialect.ValueSet {
	return dialect.NewValueSet()
}

func (b *Backend) conn() (conn, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.db == nil {
		return conn{}, ErrNotOpen
	}
	return conn{ext: b.db, b: b}, nil
}

// Begin starts a transaction.
func (b *Backend) Begin(ctx context.Context) (dialect.Tx, error) {
	b.mu.RLock()
	db := b.db
	b.mu.RUnlock()
	if db == nil {
		return nil, ErrNotOpen
	}
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("dialect/sql: begin: %w", err)
	}
	return &Tx{conn: conn{ext: tx, b: b}, tx: tx}, nil
}

// Exec executes a DDL statement.
func (b *Backend) Exec(ctx context.Context, stmt string) error {
	c, err := b.conn()
	if err != nil {
		return err
	}
	return c.Exec(ctx, stmt)
}

// Insert inserts one row and returns its id.
func (b *Backend) Insert(ctx context.Context, table string, values dialect.ValueSet) (int64, error) {
	c, err := b.conn()
	if err != nil {
		return 0, err
	}
	return c.Insert(ctx, table, values)
}

// Update updates the rows matching the filter.
func (b *Backend) Update(ctx context.Context, table string, values dialect.ValueSet, filter dialect.Filter) (int64, error) {
	c, err := b.conn()
	if err != nil {
		return 0, err
	}
	return c.Update(ctx, table, values, filter)
}

// Save inserts or updates one row.
func (b *Backend) Save(ctx context.Context, table string, values dialect.ValueSet) (int64, error) {
	c, err := b.conn()
	if err != nil {
		return 0, err
	}
	return c.Save(ctx, table, values)
}

// BulkSave saves all rows in one transaction.
func (b *Backend) BulkSave(ctx context.Context, rows map[string][]dialect.ValueSet) (_ map[string][]int64, rerr error) {
	tx, err := b.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if rerr != nil {
			rerr = errors.Join(rerr, tx.Rollback())
		}
	}()
	ids, err := tx.BulkSave(ctx, rows)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return ids, nil
}

// Delete deletes the rows matching the filter.
func (b *Backend) Delete(ctx context.Context, table string, filter dialect.Filter) (int64, error) {
	c, err := b.conn()
	if err != nil {
		return 0, err
	}
	return c.Delete(ctx, table, filter)
}

// Count counts the rows matching the filter.
func (b *Backend) Count(ctx context.Context, table string, filter dialect.Filter) (int64, error) {
	c, err := b.conn()
	if err != nil {
		return 0, err
	}
	return c.Count(ctx, table, filter)
}

// Query runs a select.
func (b *Backend) Query(ctx context.Context, q dialect.Query) (dialect.Cursor, error) {
	c, err := b.conn()
	if err != nil {
		return nil, err
	}
	return c.Query(ctx, q)
}

// HasTable reports whether the table exists.
func (b *Backend) HasTable(ctx context.Context, table string) (bool, error) {
	c, err := b.conn()
	if err != nil {
		return false, err
	}
	return c.HasTable(ctx, table)
}

// Tx implements dialect.Tx interface.
type Tx struct {
	conn
	tx *sqlx.Tx
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("dialect/sql: commit: %w", err)
	}
	return nil
}

// Rollback aborts the transaction.
func (t *Tx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("dialect/sql: rollback: %w", err)
	}
	return nil
}

// conn runs statements on a database or a transaction.
type conn struct {
	ext sqlx.ExtContext
	b   *Backend
}

// bind expands slice arguments and rebinds placeholders for the dialect.
func (c conn) bind(query string, args []any) (string, []any, error) {
	if hasSlice(args) {
		var err error
		if query, args, err = sqlx.In(query, args...); err != nil {
			return "", nil, fmt.Errorf("dialect/sql: bind: %w", err)
		}
	}
	return c.ext.Rebind(query), args, nil
}

func hasSlice(args []any) bool {
	for _, a := range args {
		if a == nil {
			continue
		}
		if _, ok := a.(driver.Valuer); ok {
			continue
		}
		if t := reflect.TypeOf(a); t.Kind() == reflect.Slice && t.Elem().Kind() != reflect.Uint8 {
			return true
		}
	}
	return false
}

func (c conn) exec(ctx context.Context, query string, args []any) (sql.Result, error) {
	query, args, err := c.bind(query, args)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	res, err := c.ext.ExecContext(ctx, query, args...)
	c.b.record(ctx, query, args, start, err, false)
	if err != nil {
		return nil, fmt.Errorf("dialect/sql: exec: %w", err)
	}
	return res, nil
}

func (c conn) query(ctx context.Context, query string, args []any) (*Cursor, error) {
	query, args, err := c.bind(query, args)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	rows, err := c.ext.QueryContext(ctx, query, args...)
	c.b.record(ctx, query, args, start, err, true)
	if err != nil {
		return nil, fmt.Errorf("dialect/sql: query: %w", err)
	}
	return scanRows(rows)
}

func (c conn) Exec(ctx context.Context, stmt string) error {
	_, err := c.exec(ctx, stmt, nil)
	return err
}

func (c conn) Insert(ctx context.Context, table string, values dialect.ValueSet) (int64, error) {
	cols, vals, _ := splitID(values)
	return c.insert(ctx, table, cols, vals)
}

func (c conn) insert(ctx context.Context, table string, cols []string, vals []driver.Value) (int64, error) {
	if err := checkIdentifiers(append([]string{table}, cols...)...); err != nil {
		return 0, err
	}
	b := Dialect(c.b.dialect).insertQuery(table, cols, vals, false)
	if c.b.dialect == dialect.Postgres {
		query, args := b.WriteString(" RETURNING ").WriteString(idColumn).Query()
		cur, err := c.query(ctx, query, args)
		if err != nil {
			return 0, err
		}
		defer cur.Close()
		if !cur.MoveToFirst() {
			return 0, fmt.Errorf("dialect/sql: insert into %s returned no id", table)
		}
		return cur.Int64(0)
	}
	query, args := b.Query()
	res, err := c.exec(ctx, query, args)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("dialect/sql: last insert id: %w", err)
	}
	return id, nil
}

func (c conn) Update(ctx context.Context, table string, values dialect.ValueSet, filter dialect.Filter) (int64, error) {
	if err := checkIdentifiers(append([]string{table}, values.Columns()...)...); err != nil {
		return 0, err
	}
	if values.Len() == 0 {
		return 0, nil
	}
	query, args := Dialect(c.b.dialect).updateQuery(table, values, filter).Query()
	res, err := c.exec(ctx, query, args)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (c conn) Save(ctx context.Context, table string, values dialect.ValueSet) (int64, error) {
	cols, vals, id := splitID(values)
	if id == 0 {
		return c.insert(ctx, table, cols, vals)
	}
	cols = append([]string{idColumn}, cols...)
	vals = append([]driver.Value{id}, vals...)
	if err := checkIdentifiers(append([]string{table}, cols...)...); err != nil {
		return 0, err
	}
	query, args := Dialect(c.b.dialect).insertQuery(table, cols, vals, true).Query()
	if _, err := c.exec(ctx, query, args); err != nil {
		return 0, err
	}
	return id, nil
}

func (c conn) BulkSave(ctx context.Context, rows map[string][]dialect.ValueSet) (map[string][]int64, error) {
	tables := make([]string, 0, len(rows))
	for t := range rows {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	ids := make(map[string][]int64, len(rows))
	for _, t := range tables {
		tids := make([]int64, len(rows[t]))
		for i, vs := range rows[t] {
			id, err := c.Save(ctx, t, vs)
			if err != nil {
				return nil, err
			}
			tids[i] = id
		}
		ids[t] = tids
	}
	return ids, nil
}

func (c conn) Delete(ctx context.Context, table string, filter dialect.Filter) (int64, error) {
	if err := checkIdentifiers(table); err != nil {
		return 0, err
	}
	query, args := Dialect(c.b.dialect).WriteString("DELETE FROM ").WriteString(table).Where(filter).Query()
	res, err := c.exec(ctx, query, args)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (c conn) Count(ctx context.Context, table string, filter dialect.Filter) (int64, error) {
	cur, err := c.Query(ctx, dialect.Query{Table: table, Columns: []string{"COUNT(*)"}, Filter: filter})
	if err != nil {
		return 0, err
	}
	defer cur.Close()
	if !cur.MoveToFirst() {
		return 0, nil
	}
	return cur.Int64(0)
}

func (c conn) Query(ctx context.Context, q dialect.Query) (dialect.Cursor, error) {
	if err := checkIdentifiers(q.Table); err != nil {
		return nil, err
	}
	for _, col := range q.Columns {
		if col != "COUNT(*)" && col != "*" {
			if err := checkIdentifiers(col); err != nil {
				return nil, err
			}
		}
	}
	query, args := Dialect(c.b.dialect).selectQuery(q).Query()
	cur, err := c.query(ctx, query, args)
	if err != nil {
		return nil, err
	}
	return cur, nil
}

func (c conn) HasTable(ctx context.Context, table string) (bool, error) {
	if err := checkIdentifiers(table); err != nil {
		return false, err
	}
	var query string
	switch c.b.dialect {
	case dialect.Postgres:
		query = "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = CURRENT_SCHEMA() AND table_name = ?"
		table = strings.ToLower(table)
	case dialect.MySQL:
		query = "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?"
	default:
		query = "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?"
	}
	cur, err := c.query(ctx, query, []any{table})
	if err != nil {
		return false, err
	}
	defer cur.Close()
	if !cur.MoveToFirst() {
		return false, nil
	}
	n, err := cur.Int64(0)
	return n > 0, err
}

var (
	_ dialect.Backend = (*Backend)(nil)
	_ dialect.Tx      = (*Tx)(nil)
)
