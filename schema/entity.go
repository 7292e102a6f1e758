package schema

import (
	"reflect"
	"time"

	"github.com/go-openapi/inflect"

	"github.com/syssam/graphorm/schema/field"
)

// IDColumn is the name of the identity column of every entity table.
const IDColumn = "id"

// Kind classifies a persisted entity field.
type Kind uint8

// Field kinds, in classification order.
const (
	KindScalar     Kind = iota // encoded by the codec
	KindReference              // singular, not owned
	KindOwned                  // singular, cascade-saved and deleted
	KindCollection             // one join table per field
)

func (k Kind) String() string {
	switch k {
	case KindReference:
		return "reference"
	case KindOwned:
		return "owned"
	case KindCollection:
		return "collection"
	}
	return "scalar"
}

// Container is the Go shape of a collection field.
type Container uint8

// Collection containers.
const (
	Slice   Container = iota // []E, ordered
	Set                      // map[E]struct{}
	BoolSet                  // map[E]bool
)

// Field describes one persisted field of an entity.
type Field struct {
	// Name is the persisted column name.
	Name string
	// GoName is the struct field name.
	GoName string
	// Index is the reflect field index path inside the struct.
	Index []int
	Kind  Kind
	// Type is the column type. Singular entity fields use field.TypeEntity.
	Type     field.Type
	Nullable bool
	// Target is the referenced entity of singular entity fields and of
	// entity collections.
	Target *Entity
	// Ref marks reference semantics. It is set for KindReference fields
	// and for reference collections.
	Ref bool
	// Elem is the declared element type of a collection.
	Elem      field.Type
	ElemType  reflect.Type
	Container Container
	// Adder is the name of an optional Add<Elem> method used to populate
	// the collection on fetch.
	Adder string

	owner *Entity
}

// Value returns the field of the entity instance inst (a pointer).
func (f *Field) Value(inst reflect.Value) reflect.Value {
	return inst.Elem().FieldByIndex(f.Index)
}

// Owner returns the entity declaring the field.
func (f *Field) Owner() *Entity { return f.owner }

// Entities reports whether the field is a collection of entities.
func (f *Field) Entities() bool {
	return f.Kind == KindCollection && f.Target != nil
}

// Owns reports whether the field cascades save and delete to its
// entities.
func (f *Field) Owns() bool {
	switch f.Kind {
	case KindOwned:
		return true
	case KindCollection:
		return f.Target != nil && !f.Ref
	}
	return false
}

// JoinTable returns the join table of a collection field.
func (f *Field) JoinTable() string {
	return f.owner.Name + "_" + f.Name
}

// Entity is the classified metadata of a registered struct type.
type Entity struct {
	// Name is the table name.
	Name string
	// Type is the struct type. Instances are *Type.
	Type reflect.Type
	// Fields holds the main-table columns other than the identity, in
	// declaration order.
	Fields      []*Field
	Scalars     []*Field
	References  []*Field
	Owned       []*Field
	Collections []*Field

	idIndex []int
	intID   bool
}

// New allocates a new instance of the entity.
func (e *Entity) New() reflect.Value {
	return reflect.New(e.Type)
}

// IDOf returns the identity of the instance inst (a pointer).
func (e *Entity) IDOf(inst reflect.Value) ID {
	v := inst.Elem().FieldByIndex(e.idIndex)
	if !e.intID {
		return v.Interface().(ID)
	}
	var n int64
	if v.CanInt() {
		n = v.Int()
	} else {
		n = int64(v.Uint())
	}
	if n == 0 {
		return Unsaved
	}
	return Saved(n)
}

// SetID sets the identity of the instance inst (a pointer).
func (e *Entity) SetID(inst reflect.Value, id ID) {
	v := inst.Elem().FieldByIndex(e.idIndex)
	if !e.intID {
		v.Set(reflect.ValueOf(id))
		return
	}
	if v.CanInt() {
		v.SetInt(id.Int64())
	} else {
		v.SetUint(uint64(id.Int64()))
	}
}

// Columns returns the main-table column names, identity first.
func (e *Entity) Columns() []string {
	cols := make([]string, 0, len(e.Fields)+1)
	cols = append(cols, IDColumn)
	for _, f := range e.Fields {
		cols = append(cols, f.Name)
	}
	return cols
}

// JoinParentColumn returns the column holding the parent id in the join
// tables of the entity's collections.
func (e *Entity) JoinParentColumn() string {
	return inflect.CamelizeDownFirst(e.Name)
}

// BackReference returns the first reference field of e pointing at
// parent, or nil.
func (e *Entity) BackReference(parent *Entity) *Field {
	for _, f := range e.References {
		if f.Target == parent {
			return f
		}
	}
	return nil
}

// Field returns the persisted field with the given column name.
func (e *Entity) Field(name string) *Field {
	for _, f := range e.Fields {
		if f.Name == name {
			return f
		}
	}
	for _, f := range e.Collections {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Timestamper is implemented by entities that track their save time.
// The write engine calls SetTimestamps before encoding each row.
type Timestamper interface {
	SetTimestamps(now time.Time)
}
