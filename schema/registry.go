package schema

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-openapi/inflect"

	"github.com/syssam/graphorm/schema/field"
)

// validIdentifierRe validates SQL identifiers (alphanumeric and underscores).
var validIdentifierRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// isValidIdentifier checks if the string is a valid SQL identifier.
func isValidIdentifier(s string) bool {
	return s != "" && len(s) <= 128 && validIdentifierRe.MatchString(s)
}

var idType = reflect.TypeOf(ID{})

// Tabler overrides the table name of an entity type, which defaults to
// the Go type name.
type Tabler interface {
	TableName() string
}

// Registry holds the metadata of every registered entity type. It is
// built once and never changes afterwards.
type Registry struct {
	byType   map[reflect.Type]*Entity
	entities []*Entity
}

// NewRegistry registers and classifies the given models. A model is a
// struct value, a pointer to one, or its reflect.Type.
//
//	reg, err := schema.NewRegistry(Cat{}, Kitten{})
//
// Every classification error is reported here.
func NewRegistry(models ...any) (*Registry, error) {
	r := &Registry{byType: make(map[reflect.Type]*Entity, len(models))}
	tables := make(map[string]reflect.Type, len(models))
	for _, m := range models {
		t, ok := m.(reflect.Type)
		if !ok {
			t = reflect.TypeOf(m)
		}
		if t == nil {
			return nil, configErr("<nil>", "", "nil model")
		}
		for t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		if t.Kind() != reflect.Struct {
			return nil, configErr(t.String(), "", "entity must be a struct, got %s", t.Kind())
		}
		if _, ok := r.byType[t]; ok {
			continue
		}
		e := &Entity{Name: tableName(t), Type: t}
		if !isValidIdentifier(e.Name) {
			return nil, configErr(t.Name(), "", "invalid table name %q", e.Name)
		}
		if isReserved(e.Name) {
			return nil, configErr(t.Name(), "", "table name %q is a reserved SQL word", e.Name)
		}
		if prev, ok := tables[strings.ToLower(e.Name)]; ok {
			return nil, configErr(t.Name(), "", "table %q is already used by %s", e.Name, prev)
		}
		tables[strings.ToLower(e.Name)] = t
		r.byType[t] = e
		r.entities = append(r.entities, e)
	}
	// All types are known before classification so fields may point at
	// any registered entity, including the declaring one.
	for _, e := range r.entities {
		if err := r.classify(e); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Lookup returns the entity of t, which may be the struct type or a
// pointer to it.
func (r *Registry) Lookup(t reflect.Type) (*Entity, bool) {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	e, ok := r.byType[t]
	return e, ok
}

// IsEntity reports whether t (or the type it points to) is registered.
func (r *Registry) IsEntity(t reflect.Type) bool {
	_, ok := r.Lookup(t)
	return ok
}

// Entities returns all registered entities in registration order.
func (r *Registry) Entities() []*Entity {
	return r.entities
}

func tableName(t reflect.Type) string {
	if tb, ok := reflect.Zero(t).Interface().(Tabler); ok {
		return tb.TableName()
	}
	if tb, ok := reflect.New(t).Interface().(Tabler); ok {
		return tb.TableName()
	}
	return t.Name()
}

type tagOptions struct {
	skip, id, ref, text, blob, char bool
	name                            string
}

func parseTag(tag string) (tagOptions, error) {
	var o tagOptions
	if tag == "" {
		return o, nil
	}
	for _, opt := range strings.Split(tag, ",") {
		opt = strings.TrimSpace(opt)
		switch {
		case opt == "-":
			o.skip = true
		case opt == "id":
			o.id = true
		case opt == "ref":
			o.ref = true
		case opt == "text":
			o.text = true
		case opt == "blob":
			o.blob = true
		case opt == "char":
			o.char = true
		case strings.HasPrefix(opt, "name="):
			o.name = strings.TrimPrefix(opt, "name=")
		case opt == "":
		default:
			return o, fmt.Errorf("unknown orm tag option %q", opt)
		}
	}
	return o, nil
}

type structField struct {
	reflect.StructField
	opts tagOptions
}

// fieldsOf flattens the exported fields of t, descending into embedded
// structs that are not tagged.
func fieldsOf(t reflect.Type, prefix []int) ([]structField, error) {
	var fields []structField
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		sf.Index = append(append([]int(nil), prefix...), i)
		opts, err := parseTag(sf.Tag.Get("orm"))
		if err != nil {
			return nil, configErr(t.Name(), sf.Name, "%w", err)
		}
		if opts.skip {
			continue
		}
		if sf.Anonymous && sf.Type.Kind() == reflect.Struct && sf.Tag.Get("orm") == "" {
			if !sf.IsExported() {
				continue
			}
			inner, err := fieldsOf(sf.Type, sf.Index)
			if err != nil {
				return nil, err
			}
			fields = append(fields, inner...)
			continue
		}
		if !sf.IsExported() {
			continue
		}
		fields = append(fields, structField{StructField: sf, opts: opts})
	}
	return fields, nil
}

func (r *Registry) classify(e *Entity) error {
	typ := e.Type.Name()
	fields, err := fieldsOf(e.Type, nil)
	if err != nil {
		return err
	}
	idx := -1
	for i, sf := range fields {
		if sf.opts.id {
			if idx >= 0 && fields[idx].opts.id {
				return configErr(typ, sf.Name, "multiple identity fields")
			}
			idx = i
		} else if sf.Name == "ID" && idx < 0 {
			idx = i
		}
	}
	if idx < 0 {
		return configErr(typ, "", "missing identity field (tag a field with orm:\"id\" or name it ID)")
	}
	if err := e.setIdentity(fields[idx].StructField); err != nil {
		return err
	}
	parentCol := e.JoinParentColumn()
	if !isValidIdentifier(parentCol) || isReserved(parentCol) {
		return configErr(typ, "", "invalid join column %q", parentCol)
	}
	seen := map[string]string{IDColumn: fields[idx].Name}
	for i, sf := range fields {
		if i == idx {
			continue
		}
		f, err := r.classifyField(e, sf)
		if err != nil {
			return err
		}
		if !isValidIdentifier(f.Name) {
			return configErr(typ, sf.Name, "invalid column name %q", f.Name)
		}
		if isReserved(f.Name) {
			return configErr(typ, sf.Name, "column name %q is a reserved SQL word (rename it with orm:\"name=...\")", f.Name)
		}
		key := strings.ToLower(f.Name)
		if prev, ok := seen[key]; ok {
			return configErr(typ, sf.Name, "column %q is already used by %s", f.Name, prev)
		}
		seen[key] = sf.Name
		f.owner = e
		switch f.Kind {
		case KindCollection:
			if strings.EqualFold(f.Name, parentCol) || f.Name == IDColumn {
				return configErr(typ, sf.Name, "collection name %q collides with its join table columns", f.Name)
			}
			e.Collections = append(e.Collections, f)
			continue
		case KindReference:
			e.References = append(e.References, f)
		case KindOwned:
			e.Owned = append(e.Owned, f)
		default:
			e.Scalars = append(e.Scalars, f)
		}
		e.Fields = append(e.Fields, f)
	}
	return nil
}

func (e *Entity) setIdentity(sf reflect.StructField) error {
	e.idIndex = sf.Index
	switch t := sf.Type; {
	case t == idType:
	case t.Kind() >= reflect.Int && t.Kind() <= reflect.Uint64:
		e.intID = true
	default:
		return configErr(e.Type.Name(), sf.Name, "identity must be schema.ID or an integer, got %s", t)
	}
	return nil
}

func (r *Registry) classifyField(e *Entity, sf structField) (*Field, error) {
	typ := e.Type.Name()
	f := &Field{
		Name:   sf.opts.name,
		GoName: sf.Name,
		Index:  sf.Index,
	}
	if f.Name == "" {
		f.Name = inflect.CamelizeDownFirst(sf.Name)
	}
	ft := sf.Type
	hint := field.Hint{Text: sf.opts.text, Blob: sf.opts.blob, Char: sf.opts.char}

	// Singular entity fields.
	if target, ok := r.entityPointer(ft); ok {
		f.Type, f.Nullable, f.Target = field.TypeEntity, true, target
		f.Kind, f.Ref = KindOwned, sf.opts.ref
		if f.Ref {
			f.Kind = KindReference
		}
		return f, nil
	}
	if looksLikeEntity(ft) {
		return nil, configErr(typ, sf.Name, "%s is not a registered entity", ft)
	}
	// Collections.
	if !sf.opts.blob && ((ft.Kind() == reflect.Slice && ft.Elem().Kind() != reflect.Uint8) || ft.Kind() == reflect.Map) {
		return r.classifyCollection(e, f, ft, sf)
	}
	if sf.opts.ref {
		return nil, configErr(typ, sf.Name, "ref option on non-entity type %s", ft)
	}

	t, nullable, err := field.TypeOf(ft, hint)
	if err != nil {
		return nil, configErr(typ, sf.Name, "%w", err)
	}
	f.Kind, f.Type, f.Nullable = KindScalar, t, nullable
	return f, nil
}

func (r *Registry) classifyCollection(e *Entity, f *Field, ft reflect.Type, sf structField) (*Field, error) {
	typ := e.Type.Name()
	f.Kind = KindCollection
	var elem reflect.Type
	switch ft.Kind() {
	case reflect.Slice:
		f.Container, elem = Slice, ft.Elem()
	case reflect.Map:
		switch v := ft.Elem(); {
		case v.Kind() == reflect.Struct && v.NumField() == 0:
			f.Container = Set
		case v.Kind() == reflect.Bool:
			f.Container = BoolSet
		default:
			return nil, configErr(typ, sf.Name, "map collections must be map[E]struct{} or map[E]bool, got %s", ft)
		}
		elem = ft.Key()
	}
	if elem.Kind() == reflect.Interface {
		return nil, configErr(typ, sf.Name, "collection does not declare its element type (%s)", ft)
	}
	f.ElemType = elem
	if target, ok := r.entityPointer(elem); ok {
		f.Elem, f.Target, f.Ref = field.TypeEntity, target, sf.opts.ref
	} else {
		if looksLikeEntity(elem) {
			return nil, configErr(typ, sf.Name, "%s is not a registered entity", elem)
		}
		if sf.opts.ref {
			return nil, configErr(typ, sf.Name, "ref option on collection of %s", elem)
		}
		if elem.Kind() == reflect.Pointer {
			return nil, configErr(typ, sf.Name, "collection elements cannot be pointers to %s", elem.Elem())
		}
		t, _, err := field.TypeOf(elem, field.Hint{Text: sf.opts.text, Char: sf.opts.char})
		if err != nil {
			return nil, configErr(typ, sf.Name, "%w", err)
		}
		f.Elem = t
	}
	adder := "Add" + inflect.Singularize(sf.Name)
	if m, ok := reflect.PointerTo(e.Type).MethodByName(adder); ok {
		if mt := m.Type; mt.NumIn() == 2 && mt.In(1) == elem && mt.NumOut() == 0 {
			f.Adder = adder
		}
	}
	return f, nil
}

// entityPointer returns the entity of t if t is a pointer to a
// registered struct.
func (r *Registry) entityPointer(t reflect.Type) (*Entity, bool) {
	if t.Kind() != reflect.Pointer || t.Elem().Kind() != reflect.Struct {
		return nil, false
	}
	e, ok := r.byType[t.Elem()]
	return e, ok
}

// looksLikeEntity reports whether t points at a struct declaring an
// identity, which is most likely an entity the caller forgot to register.
func looksLikeEntity(t reflect.Type) bool {
	if t.Kind() != reflect.Pointer || t.Elem().Kind() != reflect.Struct {
		return false
	}
	st := t.Elem()
	if _, ok := st.FieldByName("ID"); ok {
		return true
	}
	for i := 0; i < st.NumField(); i++ {
		if opts, _ := parseTag(st.Field(i).Tag.Get("orm")); opts.id {
			return true
		}
	}
	return false
}

// TypeOf returns the reflect.Type of T.
func TypeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}
