package sql

import (
	"github.com/syssam/graphorm/dialect"
	"github.com/syssam/graphorm/schema/field"
)

// ColumnType returns the native column type of t. Numeric, time and
// entity columns never hold NULL and are declared NOT NULL unless the Go
// field is a pointer.
func (b *Backend) ColumnType(t field.Type, nullable bool) string {
	typ := columnType(b.dialect, t)
	if !nullable && (t.Integer() || t.Numeric()) {
		typ += " NOT NULL"
	}
	return typ
}

// PrimaryKeyColumnType returns the native type of identity columns.
func (b *Backend) PrimaryKeyColumnType() string {
	switch b.dialect {
	case dialect.Postgres:
		return "bigserial PRIMARY KEY"
	case dialect.MySQL:
		return "bigint NOT NULL AUTO_INCREMENT PRIMARY KEY"
	default:
		return "integer NOT NULL PRIMARY KEY AUTOINCREMENT"
	}
}

func columnType(name string, t field.Type) string {
	switch name {
	case dialect.Postgres:
		return postgresType(t)
	case dialect.MySQL:
		return mysqlType(t)
	}
	switch {
	case t.Integer():
		return "integer"
	case t == field.TypeFloat32 || t == field.TypeFloat64:
		return "real"
	case t.Binary():
		return "blob"
	default:
		return "text"
	}
}

func postgresType(t field.Type) string {
	switch t {
	case field.TypeBool:
		return "boolean"
	case field.TypeInt8, field.TypeInt16, field.TypeUint8:
		return "smallint"
	case field.TypeInt32, field.TypeUint16:
		return "integer"
	case field.TypeInt, field.TypeInt64, field.TypeUint, field.TypeUint32, field.TypeUint64, field.TypeTime, field.TypeEntity:
		return "bigint"
	case field.TypeFloat32:
		return "real"
	case field.TypeFloat64:
		return "double precision"
	case field.TypeRune:
		return "varchar(1)"
	case field.TypeString, field.TypeEnum:
		return "varchar(255)"
	case field.TypeUUID:
		return "uuid"
	case field.TypeBytes, field.TypeBlob:
		return "bytea"
	default:
		return "text"
	}
}

func mysqlType(t field.Type) string {
	switch t {
	case field.TypeBool:
		return "boolean"
	case field.TypeInt8, field.TypeInt16, field.TypeUint8:
		return "smallint"
	case field.TypeInt32, field.TypeUint16:
		return "int"
	case field.TypeInt, field.TypeInt64, field.TypeUint, field.TypeUint32, field.TypeUint64, field.TypeTime, field.TypeEntity:
		return "bigint"
	case field.TypeFloat32:
		return "float"
	case field.TypeFloat64:
		return "double"
	case field.TypeRune:
		return "varchar(1)"
	case field.TypeString, field.TypeEnum:
		return "varchar(255)"
	case field.TypeUUID:
		return "char(36)"
	case field.TypeBytes, field.TypeBlob:
		return "longblob"
	default:
		return "longtext"
	}
}
