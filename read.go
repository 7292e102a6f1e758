package graphorm

import (
	"context"
	"fmt"
	"reflect"

	"github.com/syssam/graphorm/codec"
	"github.com/syssam/graphorm/dialect"
	"github.com/syssam/graphorm/internal/batch"
	"github.com/syssam/graphorm/schema"
)

// Where returns a filter from a SQL boolean expression with ? placeholders.
// Slice arguments expand into IN lists.
//
//	cats, err := graphorm.GetAll[Cat](ctx, ds, graphorm.Where("name = ?", "Bella"))
func Where(clause string, args ...any) dialect.Filter {
	return dialect.Where(clause, args...)
}

// Get returns the entity of type T with the given id, with its relations
// resolved. It returns a *NotFoundError when no row has the id.
func Get[T any](ctx context.Context, ds *DataSource, id int64) (*T, error) {
	if err := ds.checkOpen("get"); err != nil {
		return nil, err
	}
	e, err := lookup[T](ds)
	if err != nil {
		return nil, err
	}
	if id <= 0 {
		return nil, NewNotFoundError(e.Name, id)
	}
	insts, err := newReader(ctx, ds.backend).loadRows(e, dialect.EQ(schema.IDColumn, id), reflect.Value{})
	if err != nil {
		return nil, err
	}
	if len(insts) == 0 {
		return nil, NewNotFoundError(e.Name, id)
	}
	return insts[0].Interface().(*T), nil
}

// GetAll returns the entities of type T matching the filter in id order.
// A zero filter matches every row. Rows reached twice within the call map
// to the same instance.
func GetAll[T any](ctx context.Context, ds *DataSource, filter dialect.Filter) ([]*T, error) {
	if err := ds.checkOpen("get all"); err != nil {
		return nil, err
	}
	e, err := lookup[T](ds)
	if err != nil {
		return nil, err
	}
	insts, err := newReader(ctx, ds.backend).loadRows(e, filter, reflect.Value{})
	if err != nil {
		return nil, err
	}
	out := make([]*T, len(insts))
	for i, inst := range insts {
		out[i] = inst.Interface().(*T)
	}
	ds.logger.DebugContext(ctx, "graphorm: fetched", "entity", e.Name, "rows", len(out))
	return out, nil
}

// Count returns the number of rows of T matching the filter.
func Count[T any](ctx context.Context, ds *DataSource, filter dialect.Filter) (int64, error) {
	if err := ds.checkOpen("count"); err != nil {
		return 0, err
	}
	e, err := lookup[T](ds)
	if err != nil {
		return 0, err
	}
	return ds.backend.Count(ctx, e.Name, filter)
}

// Refresh reloads a saved entity in place from storage. Its relations
// are replaced by newly fetched instances.
func (ds *DataSource) Refresh(ctx context.Context, entity any) error {
	if err := ds.checkOpen("refresh"); err != nil {
		return err
	}
	e, inst, err := ds.instance(entity)
	if err != nil {
		return err
	}
	id := e.IDOf(inst)
	if !id.IsSaved() {
		return fmt.Errorf("%w: %s", ErrUnsaved, e.Name)
	}
	insts, err := newReader(ctx, ds.backend).loadRows(e, dialect.EQ(schema.IDColumn, id.Int64()), inst)
	if err != nil {
		return err
	}
	if len(insts) == 0 {
		return NewNotFoundError(e.Name, id.Int64())
	}
	return nil
}

// reader loads rows into instances. Its identity cache lives for one
// public call.
type reader struct {
	ctx   context.Context
	ex    dialect.Executor
	cache *identityCache
}

func newReader(ctx context.Context, ex dialect.Executor) *reader {
	return &reader{ctx: ctx, ex: ex, cache: newIdentityCache()}
}

// loaded is an instance built by the current call whose relations are not
// resolved yet.
type loaded struct {
	inst reflect.Value
	// refs holds the stored ids of the singular entity fields, indexed
	// like Entity.Fields.
	refs []schema.ID
}

// member is one join row of a collection.
type member struct {
	parent int64
	child  int64
	value  reflect.Value
}

// loadRows loads the rows of e matching the filter with their relations.
// The first new row is decoded into into when it is valid.
func (r *reader) loadRows(e *schema.Entity, filter dialect.Filter, into reflect.Value) ([]reflect.Value, error) {
	var (
		rows  []reflect.Value
		fresh []loaded
	)
	q := dialect.Query{Table: e.Name, Columns: e.Columns(), Filter: filter, OrderBy: schema.IDColumn}
	err := scan(r.ctx, r.ex, q, func(c dialect.Cursor) error {
		id, err := c.Int64(0)
		if err != nil {
			return err
		}
		if inst, ok := r.cache.get(e, id); ok {
			rows = append(rows, inst)
			return nil
		}
		inst := into
		if inst.IsValid() {
			into = reflect.Value{}
		} else {
			inst = e.New()
		}
		e.SetID(inst, schema.Saved(id))
		l := loaded{inst: inst, refs: make([]schema.ID, len(e.Fields))}
		for i, f := range e.Fields {
			if f.Kind == schema.KindScalar {
				if err := codec.Decode(f.Type, c, i+1, f.Value(inst)); err != nil {
					return &FieldError{Entity: e.Name, Field: f.GoName, Err: err}
				}
				continue
			}
			ref, err := codec.DecodeRef(c, i+1)
			if err != nil {
				return &FieldError{Entity: e.Name, Field: f.GoName, Err: err}
			}
			l.refs[i] = ref
		}
		if err := r.cache.put(e, id, inst); err != nil {
			return err
		}
		rows = append(rows, inst)
		fresh = append(fresh, l)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := r.resolve(e, fresh); err != nil {
		return nil, err
	}
	return rows, nil
}

// resolve sets the singular entity fields and the collections of fresh
// instances, one batched load per field.
func (r *reader) resolve(e *schema.Entity, fresh []loaded) error {
	if len(fresh) == 0 {
		return nil
	}
	for i, f := range e.Fields {
		if f.Kind == schema.KindScalar {
			continue
		}
		var ids []int64
		for _, l := range fresh {
			if l.refs[i].IsSaved() {
				ids = append(ids, l.refs[i].Int64())
			}
		}
		targets, err := r.loadByIDs(f.Target, batch.Distinct(ids))
		if err != nil {
			return err
		}
		for _, l := range fresh {
			dst := f.Value(l.inst)
			// Dangling ids read as nil.
			if t, ok := targets[l.refs[i].Int64()]; ok && l.refs[i].IsSaved() {
				dst.Set(t)
			} else {
				dst.SetZero()
			}
		}
	}
	for _, f := range e.Collections {
		if err := r.loadCollection(f, fresh); err != nil {
			return err
		}
	}
	return nil
}

// loadByIDs returns the instances of e with the given ids, from the
// identity cache or from storage.
func (r *reader) loadByIDs(e *schema.Entity, ids []int64) (map[int64]reflect.Value, error) {
	out := make(map[int64]reflect.Value, len(ids))
	var missing []int64
	for _, id := range ids {
		if inst, ok := r.cache.get(e, id); ok {
			out[id] = inst
		} else {
			missing = append(missing, id)
		}
	}
	for _, chunk := range batch.Chunk(missing, batch.MaxParams) {
		insts, err := r.loadRows(e, dialect.In(schema.IDColumn, chunk), reflect.Value{})
		if err != nil {
			return nil, err
		}
		for _, inst := range insts {
			out[e.IDOf(inst).Int64()] = inst
		}
	}
	return out, nil
}

func (r *reader) loadCollection(f *schema.Field, parents []loaded) error {
	e := f.Owner()
	parentCol := e.JoinParentColumn()
	ids := make([]int64, len(parents))
	for i, p := range parents {
		ids[i] = e.IDOf(p.inst).Int64()
	}
	var members []member
	for _, chunk := range batch.Chunk(ids, batch.MaxParams) {
		q := dialect.Query{
			Table:   f.JoinTable(),
			Columns: []string{parentCol, f.Name},
			Filter:  dialect.In(parentCol, chunk),
			OrderBy: schema.IDColumn,
		}
		err := scan(r.ctx, r.ex, q, func(c dialect.Cursor) error {
			pid, err := c.Int64(0)
			if err != nil {
				return err
			}
			m := member{parent: pid}
			if f.Target != nil {
				ref, err := codec.DecodeRef(c, 1)
				if err != nil || !ref.IsSaved() {
					return err
				}
				m.child = ref.Int64()
			} else {
				m.value = reflect.New(f.ElemType).Elem()
				if err := codec.Decode(f.Elem, c, 1, m.value); err != nil {
					return &FieldError{Entity: e.Name, Field: f.GoName, Err: err}
				}
			}
			members = append(members, m)
			return nil
		})
		if err != nil {
			return err
		}
	}
	var (
		children map[int64]reflect.Value
		back     *schema.Field
	)
	if f.Target != nil {
		cids := make([]int64, len(members))
		for i, m := range members {
			cids[i] = m.child
		}
		var err error
		if children, err = r.loadByIDs(f.Target, batch.Distinct(cids)); err != nil {
			return err
		}
		// An adder owns the reciprocal link.
		if f.Adder == "" {
			back = f.Target.BackReference(e)
		}
	}
	grouped := batch.GroupByKey(members, func(m member) int64 { return m.parent })
	for i, p := range parents {
		var elems []reflect.Value
		for _, m := range grouped[ids[i]] {
			if f.Target == nil {
				elems = append(elems, m.value)
				continue
			}
			c, ok := children[m.child]
			if !ok {
				continue
			}
			elems = append(elems, c)
			if back != nil {
				back.Value(c).Set(p.inst)
			}
		}
		fill(f, p.inst, elems)
	}
	return nil
}

// fill replaces the collection field of inst with elems. Entities with an
// adder method receive the elements one at a time through it. An empty
// collection is left nil.
func fill(f *schema.Field, inst reflect.Value, elems []reflect.Value) {
	dst := f.Value(inst)
	dst.SetZero()
	if f.Adder != "" {
		add := inst.MethodByName(f.Adder)
		for _, el := range elems {
			add.Call([]reflect.Value{el})
		}
		return
	}
	if len(elems) == 0 {
		return
	}
	switch f.Container {
	case schema.Slice:
		dst.Set(reflect.Append(reflect.MakeSlice(dst.Type(), 0, len(elems)), elems...))
	case schema.Set, schema.BoolSet:
		m := reflect.MakeMapWithSize(dst.Type(), len(elems))
		unit := reflect.Zero(dst.Type().Elem())
		if f.Container == schema.BoolSet {
			unit = reflect.ValueOf(true).Convert(dst.Type().Elem())
		}
		for _, el := range elems {
			m.SetMapIndex(el, unit)
		}
		dst.Set(m)
	}
}
