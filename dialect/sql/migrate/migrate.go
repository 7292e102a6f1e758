// Package migrate derives the relational schema of entities and renders
// it as DDL.
//
// Every entity has a main table holding its identity, scalar and singular
// entity columns. Each collection field adds a join table:
//
//	CREATE TABLE Cat_kittens (
//		id     integer NOT NULL PRIMARY KEY AUTOINCREMENT,
//		cat    integer NOT NULL,  -- parent id
//		kittens integer NOT NULL  -- element value or child id
//	)
//
// The surrogate id orders the rows of a collection. There is no schema
// diffing: an upgrade drops every table and creates it again.
package migrate

import (
	"strings"

	"github.com/syssam/graphorm/schema"
	"github.com/syssam/graphorm/schema/field"
)

// ColumnTyper maps field types to native column types. It is implemented
// by dialect.Backend.
type ColumnTyper interface {
	ColumnType(t field.Type, nullable bool) string
	PrimaryKeyColumnType() string
}

// Column is a table column.
type Column struct {
	Name       string
	Type       field.Type
	Nullable   bool
	PrimaryKey bool
}

// Index is a non-unique index.
type Index struct {
	Name    string
	Columns []string
}

// Table is a table of an entity.
type Table struct {
	Name    string
	Columns []*Column
	Indexes []*Index
}

// Column returns the named column, or nil.
func (t *Table) Column(name string) *Column {
	for _, c := range t.Columns {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Tables returns the main table of e followed by the join tables of its
// collections.
func Tables(e *schema.Entity) []*Table {
	main := &Table{
		Name:    e.Name,
		Columns: []*Column{{Name: schema.IDColumn, Type: field.TypeEntity, PrimaryKey: true}},
	}
	for _, f := range e.Fields {
		c := &Column{Name: f.Name, Type: f.Type, Nullable: f.Nullable}
		if f.Kind != schema.KindScalar {
			// Nil entities are stored as -1.
			c.Type, c.Nullable = field.TypeEntity, false
		}
		main.Columns = append(main.Columns, c)
	}
	tables := []*Table{main}
	parent := e.JoinParentColumn()
	for _, f := range e.Collections {
		value := &Column{Name: f.Name, Type: f.Elem, Nullable: f.Elem.Binary()}
		if f.Target != nil {
			value.Type, value.Nullable = field.TypeEntity, false
		}
		tables = append(tables, &Table{
			Name: f.JoinTable(),
			Columns: []*Column{
				{Name: schema.IDColumn, Type: field.TypeEntity, PrimaryKey: true},
				{Name: parent, Type: field.TypeEntity},
				value,
			},
			Indexes: []*Index{{Name: f.JoinTable() + "_" + parent, Columns: []string{parent}}},
		})
	}
	return tables
}

// CreateStatements returns the DDL creating the tables of e.
func CreateStatements(e *schema.Entity, typer ColumnTyper) []string {
	var stmts []string
	for _, t := range Tables(e) {
		stmts = append(stmts, t.create(typer)...)
	}
	return stmts
}

// DropStatements returns the DDL dropping the tables of e, join tables
// first.
func DropStatements(e *schema.Entity) []string {
	tables := Tables(e)
	stmts := make([]string, 0, len(tables))
	for i := len(tables) - 1; i >= 0; i-- {
		stmts = append(stmts, "DROP TABLE IF EXISTS "+tables[i].Name)
	}
	return stmts
}

func (t *Table) create(typer ColumnTyper) []string {
	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	b.WriteString(t.Name)
	b.WriteString(" (")
	for i, c := range t.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(c.Name)
		b.WriteByte(' ')
		if c.PrimaryKey {
			b.WriteString(typer.PrimaryKeyColumnType())
		} else {
			b.WriteString(typer.ColumnType(c.Type, c.Nullable))
		}
	}
	b.WriteString(")")
	stmts := []string{b.String()}
	for _, idx := range t.Indexes {
		stmts = append(stmts, "CREATE INDEX "+idx.Name+" ON "+t.Name+" ("+strings.Join(idx.Columns, ", ")+")")
	}
	return stmts
}
