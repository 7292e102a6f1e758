package sql

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/syssam/graphorm/dialect"
)

var errNoRow = errors.New("dialect/sql: cursor is not positioned on a row")

// Cursor is a dialect.Cursor over a fully read result set. The database
// rows are closed before the cursor is returned.
type Cursor struct {
	columns []string
	rows    [][]any
	pos     int
}

// NewCursor returns a cursor over the given rows.
func NewCursor(columns []string, rows [][]any) *Cursor {
	return &Cursor{columns: columns, rows: rows, pos: -1}
}

// scanRows reads and closes rows.
func scanRows(rows *sql.Rows) (_ *Cursor, rerr error) {
	defer func() {
		rerr = errors.Join(rerr, rows.Close())
	}()
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("dialect/sql: columns: %w", err)
	}
	var values [][]any
	for rows.Next() {
		row := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range row {
			ptrs[i] = &row[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("dialect/sql: scan: %w", err)
		}
		values = append(values, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dialect/sql: rows: %w", err)
	}
	return NewCursor(columns, values), nil
}

// Close releases the buffered rows.
func (c *Cursor) Close() error {
	c.rows = nil
	c.pos = -1
	return nil
}

// IsEmpty reports whether the result set has no rows.
func (c *Cursor) IsEmpty() bool { return len(c.rows) == 0 }

// MoveToFirst positions the cursor on the first row.
func (c *Cursor) MoveToFirst() bool {
	c.pos = 0
	return len(c.rows) > 0
}

// IsAfterLast reports whether the cursor moved past the last row.
func (c *Cursor) IsAfterLast() bool { return c.pos >= len(c.rows) }

// MoveToNext advances the cursor.
func (c *Cursor) MoveToNext() bool {
	if c.pos < len(c.rows) {
		c.pos++
	}
	return c.pos < len(c.rows)
}

// Len returns the number of rows.
func (c *Cursor) Len() int { return len(c.rows) }

// ColumnCount returns the number of columns.
func (c *Cursor) ColumnCount() int { return len(c.columns) }

// ColumnName returns the name of column i.
func (c *Cursor) ColumnName(i int) string { return c.columns[i] }

// ColumnIndex returns the index of the named column, ignoring case, or -1.
func (c *Cursor) ColumnIndex(name string) int {
	for i, col := range c.columns {
		if strings.EqualFold(col, name) {
			return i
		}
	}
	return -1
}

// Value returns the raw value of column i in the current row.
func (c *Cursor) Value(i int) any {
	if c.pos < 0 || c.pos >= len(c.rows) || i < 0 || i >= len(c.columns) {
		return nil
	}
	return c.rows[c.pos][i]
}

func (c *Cursor) value(i int) (any, error) {
	if c.pos < 0 || c.pos >= len(c.rows) {
		return nil, errNoRow
	}
	if i < 0 || i >= len(c.columns) {
		return nil, fmt.Errorf("dialect/sql: column %d out of range [0,%d)", i, len(c.columns))
	}
	return c.rows[c.pos][i], nil
}

// IsNull reports whether column i is NULL.
func (c *Cursor) IsNull(i int) bool {
	return c.Value(i) == nil
}

// Int64 returns column i as an int64. NULL reads as 0.
func (c *Cursor) Int64(i int) (int64, error) {
	v, err := c.value(i)
	if err != nil {
		return 0, err
	}
	switch v := v.(type) {
	case nil:
		return 0, nil
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case uint64:
		return int64(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("dialect/sql: column %s: %v is not an integer", c.columns[i], v)
		}
		return int64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case []byte:
		return parseInt(c.columns[i], string(v))
	case string:
		return parseInt(c.columns[i], v)
	case time.Time:
		return v.UnixMilli(), nil
	}
	return 0, fmt.Errorf("dialect/sql: column %s: cannot read %T as int64", c.columns[i], v)
}

func parseInt(col, s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("dialect/sql: column %s: %w", col, err)
	}
	return n, nil
}

// Float64 returns column i as a float64. NULL reads as 0.
func (c *Cursor) Float64(i int) (float64, error) {
	v, err := c.value(i)
	if err != nil {
		return 0, err
	}
	switch v := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case []byte:
		return parseFloat(c.columns[i], string(v))
	case string:
		return parseFloat(c.columns[i], v)
	}
	return 0, fmt.Errorf("dialect/sql: column %s: cannot read %T as float64", c.columns[i], v)
}

func parseFloat(col, s string) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("dialect/sql: column %s: %w", col, err)
	}
	return f, nil
}

// String returns column i as a string. NULL reads as "".
func (c *Cursor) String(i int) (string, error) {
	v, err := c.value(i)
	if err != nil {
		return "", err
	}
	switch v := v.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), nil
	case bool:
		return strconv.FormatBool(v), nil
	case time.Time:
		return v.Format(time.RFC3339Nano), nil
	}
	return "", fmt.Errorf("dialect/sql: column %s: cannot read %T as string", c.columns[i], v)
}

// Bytes returns column i as a byte slice. NULL reads as nil.
func (c *Cursor) Bytes(i int) ([]byte, error) {
	v, err := c.value(i)
	if err != nil {
		return nil, err
	}
	switch v := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	}
	return nil, fmt.Errorf("dialect/sql: column %s: cannot read %T as []byte", c.columns[i], v)
}

// Bool returns column i as a bool. NULL reads as false.
func (c *Cursor) Bool(i int) (bool, error) {
	v, err := c.value(i)
	if err != nil {
		return false, err
	}
	switch v := v.(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	case int64:
		return v != 0, nil
	case []byte:
		return parseBool(c.columns[i], string(v))
	case string:
		return parseBool(c.columns[i], v)
	}
	return false, fmt.Errorf("dialect/sql: column %s: cannot read %T as bool", c.columns[i], v)
}

func parseBool(col, s string) (bool, error) {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("dialect/sql: column %s: %w", col, err)
	}
	return b, nil
}

var _ dialect.Cursor = (*Cursor)(nil)
