package sql

import (
	"database/sql/driver"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/syssam/graphorm/dialect"
)

// validIdentifierRe validates SQL identifiers (alphanumeric, underscores, dots for schema.name)
var validIdentifierRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_.]*$`)

// isValidIdentifier checks if the string is a valid SQL identifier.
func isValidIdentifier(s string) bool {
	return s != "" && len(s) <= 128 && validIdentifierRe.MatchString(s)
}

func checkIdentifiers(names ...string) error {
	for _, n := range names {
		if !isValidIdentifier(n) {
			return fmt.Errorf("dialect/sql: invalid identifier %q", n)
		}
	}
	return nil
}

// Builder accumulates one SQL statement and its arguments.
type Builder struct {
	sb      strings.Builder
	args    []any
	dialect string
}

// Dialect returns a Builder for the given dialect.
func Dialect(name string) *Builder {
	return &Builder{dialect: name}
}

// WriteString appends s verbatim.
func (b *Builder) WriteString(s string) *Builder {
	b.sb.WriteString(s)
	return b
}

// Arg appends a placeholder for v.
func (b *Builder) Arg(v any) *Builder {
	b.args = append(b.args, v)
	b.sb.WriteByte('?')
	return b
}

// Join appends the names separated by commas.
func (b *Builder) Join(names []string) *Builder {
	b.sb.WriteString(strings.Join(names, ", "))
	return b
}

// Where appends the WHERE clause of f, if any.
func (b *Builder) Where(f dialect.Filter) *Builder {
	if f.IsZero() {
		return b
	}
	b.sb.WriteString(" WHERE ")
	b.sb.WriteString(f.Clause)
	b.args = append(b.args, f.Args...)
	return b
}

// Query returns the statement and its arguments.
func (b *Builder) Query() (string, []any) {
	return b.sb.String(), b.args
}

// splitID returns the columns and values of vs other than the identity,
// and the identity when it is a positive integer.
func splitID(vs dialect.ValueSet) (cols []string, vals []driver.Value, id int64) {
	for _, c := range vs.Columns() {
		v, _ := vs.Get(c)
		if c == idColumn {
			if n, ok := v.(int64); ok && n > 0 {
				id = n
			}
			continue
		}
		cols = append(cols, c)
		vals = append(vals, v)
	}
	return cols, vals, id
}

// insertQuery builds an insert of cols. With upsert, the first column is
// the identity and a conflict on it updates the remaining columns.
func (b *Builder) insertQuery(table string, cols []string, vals []driver.Value, upsert bool) *Builder {
	b.WriteString("INSERT INTO ").WriteString(table)
	if len(cols) == 0 {
		if b.dialect == dialect.MySQL {
			return b.WriteString(" () VALUES ()")
		}
		return b.WriteString(" DEFAULT VALUES")
	}
	b.WriteString(" (").Join(cols).WriteString(") VALUES (")
	for i, v := range vals {
		if i > 0 {
			b.WriteString(", ")
		}
		b.Arg(v)
	}
	b.WriteString(")")
	if !upsert {
		return b
	}
	rest := cols[1:]
	switch {
	case b.dialect == dialect.MySQL && len(rest) == 0:
		b.WriteString(" ON DUPLICATE KEY UPDATE ").WriteString(idColumn).WriteString(" = ").WriteString(idColumn)
	case b.dialect == dialect.MySQL:
		b.WriteString(" ON DUPLICATE KEY UPDATE ")
		for i, c := range rest {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(c).WriteString(" = VALUES(").WriteString(c).WriteString(")")
		}
	case len(rest) == 0:
		b.WriteString(" ON CONFLICT (").WriteString(idColumn).WriteString(") DO NOTHING")
	default:
		b.WriteString(" ON CONFLICT (").WriteString(idColumn).WriteString(") DO UPDATE SET ")
		for i, c := range rest {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(c).WriteString(" = excluded.").WriteString(c)
		}
	}
	return b
}

func (b *Builder) updateQuery(table string, vs dialect.ValueSet, f dialect.Filter) *Builder {
	b.WriteString("UPDATE ").WriteString(table).WriteString(" SET ")
	for i, c := range vs.Columns() {
		if i > 0 {
			b.WriteString(", ")
		}
		v, _ := vs.Get(c)
		b.WriteString(c).WriteString(" = ").Arg(v)
	}
	return b.Where(f)
}

func (b *Builder) selectQuery(q dialect.Query) *Builder {
	b.WriteString("SELECT ")
	if len(q.Columns) == 0 {
		b.WriteString("*")
	} else {
		b.Join(q.Columns)
	}
	b.WriteString(" FROM ").WriteString(q.Table).Where(q.Filter)
	if q.GroupBy != "" {
		b.WriteString(" GROUP BY ").WriteString(q.GroupBy)
	}
	if q.Having != "" {
		b.WriteString(" HAVING ").WriteString(q.Having)
	}
	if q.OrderBy != "" {
		b.WriteString(" ORDER BY ").WriteString(q.OrderBy)
	}
	if q.Limit > 0 {
		b.WriteString(" LIMIT ").WriteString(strconv.Itoa(q.Limit))
	}
	return b
}
