package graphorm

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/syssam/graphorm/codec"
	"github.com/syssam/graphorm/dialect"
	"github.com/syssam/graphorm/internal/batch"
	"github.com/syssam/graphorm/schema"
)

// Save writes the entity and its owned graph in one transaction. Unsaved
// instances are inserted and receive their identity; saved ones are
// updated. The join rows of every collection are rewritten, and children
// dropped from an owned collection are deleted once no row of that
// collection refers to them anymore.
//
// Every reference must point to a saved entity, otherwise an
// *UnsavedReferenceError is returned and nothing is written. When the call
// fails, the identities and timestamps it set are restored.
func (ds *DataSource) Save(ctx context.Context, entity any) error {
	if err := ds.checkOpen("save"); err != nil {
		return err
	}
	e, inst, err := ds.instance(entity)
	if err != nil {
		return err
	}
	return ds.save(ctx, e, []reflect.Value{inst})
}

// Update is like Save, but requires a saved entity.
func (ds *DataSource) Update(ctx context.Context, entity any) error {
	if err := ds.checkOpen("update"); err != nil {
		return err
	}
	e, inst, err := ds.instance(entity)
	if err != nil {
		return err
	}
	if !e.IDOf(inst).IsSaved() {
		return fmt.Errorf("%w: %s", ErrUnsaved, e.Name)
	}
	return ds.save(ctx, e, []reflect.Value{inst})
}

// SaveAll saves a slice of entities of one type in one transaction, with
// one statement batch per table. A batch holding another type returns a
// *MixedBatchError before anything is written.
//
//	cats := []*Cat{{Name: "Bella"}, {Name: "Tom"}}
//	err := ds.SaveAll(ctx, cats)
func (ds *DataSource) SaveAll(ctx context.Context, entities any) error {
	if err := ds.checkOpen("save all"); err != nil {
		return err
	}
	v := reflect.ValueOf(entities)
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		return fmt.Errorf("graphorm: SaveAll expects a slice of entities, got %T", entities)
	}
	if v.Len() == 0 {
		return nil
	}
	var (
		e     *schema.Entity
		typ   reflect.Type
		insts = make([]reflect.Value, 0, v.Len())
	)
	for i := 0; i < v.Len(); i++ {
		item := v.Index(i)
		if item.Kind() == reflect.Interface {
			item = item.Elem()
		}
		if !item.IsValid() {
			return fmt.Errorf("graphorm: SaveAll: nil entity at index %d", i)
		}
		if typ != nil && item.Type() != typ {
			return &MixedBatchError{Want: typ.String(), Got: item.Type().String()}
		}
		ie, inst, err := ds.instance(item.Interface())
		if err != nil {
			return err
		}
		e, typ = ie, item.Type()
		insts = append(insts, inst)
	}
	return ds.save(ctx, e, insts)
}

func (ds *DataSource) save(ctx context.Context, e *schema.Entity, insts []reflect.Value) error {
	return ds.write(ctx, func(w *writer) error {
		if err := w.prepare(e, insts); err != nil {
			return err
		}
		return w.saveBatch(e, insts)
	})
}

// Delete deletes the entity, the children of its owned collections that
// no other row of the collection refers to, and its owned singular
// children. The identities of deleted instances reachable through owned
// fields are reset to unsaved. Deleting an unsaved entity does nothing.
func (ds *DataSource) Delete(ctx context.Context, entity any) error {
	if err := ds.checkOpen("delete"); err != nil {
		return err
	}
	e, inst, err := ds.instance(entity)
	if err != nil {
		return err
	}
	id := e.IDOf(inst)
	if !id.IsSaved() {
		return nil
	}
	var deleted map[key]bool
	err = ds.write(ctx, func(w *writer) error {
		deleted = w.deleted
		return w.deleteByIDs(e, []int64{id.Int64()})
	})
	if err != nil {
		return err
	}
	resetDeleted(e, inst, deleted, make(map[any]bool))
	return nil
}

// DeleteAll deletes the rows of T matching the filter and returns their
// number. It does not cascade: join rows and owned children of the
// deleted rows are left in place.
func DeleteAll[T any](ctx context.Context, ds *DataSource, filter dialect.Filter) (int64, error) {
	if err := ds.checkOpen("delete all"); err != nil {
		return 0, err
	}
	e, err := lookup[T](ds)
	if err != nil {
		return 0, err
	}
	return ds.backend.Delete(ctx, e.Name, filter)
}

// write runs fn and the deferred statements of the writer in one
// transaction.
func (ds *DataSource) write(ctx context.Context, fn func(*writer) error) (rerr error) {
	tx, err := ds.backend.Begin(ctx)
	if err != nil {
		return err
	}
	w := newWriter(ctx, ds, tx)
	defer func() {
		if rerr == nil {
			return
		}
		if err := tx.Rollback(); err != nil {
			rerr = errors.Join(rerr, &RollbackError{Err: err})
		}
		w.reset()
	}()
	if err := fn(w); err != nil {
		return err
	}
	if err := w.flush(); err != nil {
		return err
	}
	return tx.Commit()
}

type (
	// assignment is an identity set by the current call.
	assignment struct {
		entity *schema.Entity
		inst   reflect.Value
	}
	// fixup is an owned singular column written as Null because its
	// target was still being saved.
	fixup struct {
		entity *schema.Entity
		inst   reflect.Value
		field  *schema.Field
		target reflect.Value
	}
	// joinRow is a collection element inserted at the end of the call.
	joinRow struct {
		field  *schema.Field
		parent reflect.Value
		elem   reflect.Value
	}
	// ref is a reference checked before anything is written.
	ref struct {
		entity *schema.Entity
		field  *schema.Field
		target reflect.Value
	}
	// stamp is a scalar changed by SetTimestamps.
	stamp struct {
		field *schema.Field
		inst  reflect.Value
		old   reflect.Value
	}
)

type writer struct {
	ctx context.Context
	ds  *DataSource
	tx  dialect.Tx
	now time.Time

	graph   map[any]bool // instances of the owned graph
	inGraph map[key]bool // saved rows of the owned graph
	visited map[any]bool
	deleted map[key]bool

	assigned []assignment
	stamps   []stamp
	fixups   []fixup
	joins    []joinRow
}

func newWriter(ctx context.Context, ds *DataSource, tx dialect.Tx) *writer {
	return &writer{
		ctx: ctx,
		ds:  ds,
		tx:  tx,
		// Times are stored with millisecond precision.
		now:     time.Now().UTC().Truncate(time.Millisecond),
		graph:   make(map[any]bool),
		inGraph: make(map[key]bool),
		visited: make(map[any]bool),
		deleted: make(map[key]bool),
	}
}

// reset forgets the identities and timestamps set by a failed call.
func (w *writer) reset() {
	for _, a := range w.assigned {
		a.entity.SetID(a.inst, schema.Unsaved)
	}
	for _, s := range w.stamps {
		s.field.Value(s.inst).Set(s.old)
	}
}

// prepare collects the owned graph of the roots and validates its
// references.
func (w *writer) prepare(e *schema.Entity, roots []reflect.Value) error {
	var refs []ref
	for _, r := range roots {
		w.collect(e, r, &refs)
	}
	for _, r := range refs {
		if r.field.Target.IDOf(r.target).IsSaved() {
			continue
		}
		return &UnsavedReferenceError{Entity: r.entity.Name, Field: r.field.GoName, Target: r.field.Target.Name}
	}
	return nil
}

func (w *writer) collect(e *schema.Entity, inst reflect.Value, refs *[]ref) {
	if w.graph[inst.Interface()] {
		return
	}
	w.graph[inst.Interface()] = true
	if id := e.IDOf(inst); id.IsSaved() {
		w.inGraph[key{e, id.Int64()}] = true
	}
	for _, f := range e.Fields {
		if f.Kind == schema.KindScalar {
			continue
		}
		t := f.Value(inst)
		switch {
		case t.IsNil():
		case f.Kind == schema.KindOwned:
			w.collect(f.Target, t, refs)
		default:
			*refs = append(*refs, ref{entity: e, field: f, target: t})
		}
	}
	for _, f := range e.Collections {
		if f.Target == nil {
			continue
		}
		for _, c := range elements(f, inst) {
			if f.Owns() {
				w.collect(f.Target, c, refs)
			} else {
				*refs = append(*refs, ref{entity: e, field: f, target: c})
			}
		}
	}
}

// saveBatch writes instances of e not yet written by this call: owned
// singular children first, then one row per instance, then the
// collections.
func (w *writer) saveBatch(e *schema.Entity, insts []reflect.Value) error {
	var todo []reflect.Value
	for _, inst := range insts {
		if k := inst.Interface(); !w.visited[k] {
			w.visited[k] = true
			todo = append(todo, inst)
		}
	}
	if len(todo) == 0 {
		return nil
	}
	for _, f := range e.Owned {
		var children []reflect.Value
		for _, inst := range todo {
			if c := f.Value(inst); !c.IsNil() {
				children = append(children, c)
			}
		}
		if err := w.saveBatch(f.Target, children); err != nil {
			return err
		}
	}
	rows := make([]dialect.ValueSet, len(todo))
	for i, inst := range todo {
		vs, err := w.encode(e, inst)
		if err != nil {
			return err
		}
		rows[i] = vs
	}
	ids, err := w.tx.BulkSave(w.ctx, map[string][]dialect.ValueSet{e.Name: rows})
	if err != nil {
		return err
	}
	for i, inst := range todo {
		if !e.IDOf(inst).IsSaved() {
			e.SetID(inst, schema.Saved(ids[e.Name][i]))
			w.assigned = append(w.assigned, assignment{entity: e, inst: inst})
		}
	}
	w.ds.logger.DebugContext(w.ctx, "graphorm: saved", "entity", e.Name, "rows", len(todo))
	// Owned collections first, so their children have identities before
	// reference collections point at them.
	for _, owned := range []bool{true, false} {
		for _, f := range e.Collections {
			if f.Owns() != owned {
				continue
			}
			if err := w.reconcile(f, todo); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *writer) encode(e *schema.Entity, inst reflect.Value) (dialect.ValueSet, error) {
	if ts, ok := inst.Interface().(schema.Timestamper); ok {
		w.setTimestamps(e, inst, ts)
	}
	vs := w.ds.backend.PrepareValueSet()
	if id := e.IDOf(inst); id.IsSaved() {
		vs.Put(schema.IDColumn, id.Int64())
	}
	for _, f := range e.Fields {
		v := f.Value(inst)
		if f.Kind == schema.KindScalar {
			dv, err := codec.Encode(f.Type, v)
			if err != nil {
				return nil, &FieldError{Entity: e.Name, Field: f.GoName, Err: err}
			}
			vs.Put(f.Name, dv)
			continue
		}
		switch id := idOf(f.Target, v); {
		case v.IsNil():
			vs.Put(f.Name, codec.Null)
		case id.IsSaved():
			vs.Put(f.Name, id.Int64())
		case f.Kind == schema.KindOwned && w.graph[v.Interface()]:
			vs.Put(f.Name, codec.Null)
			w.fixups = append(w.fixups, fixup{entity: e, inst: inst, field: f, target: v})
		default:
			return nil, &UnsavedReferenceError{Entity: e.Name, Field: f.GoName, Target: f.Target.Name}
		}
	}
	return vs, nil
}

// setTimestamps stamps inst and records the scalars it changed.
func (w *writer) setTimestamps(e *schema.Entity, inst reflect.Value, ts schema.Timestamper) {
	prev := e.New()
	prev.Elem().Set(inst.Elem())
	ts.SetTimestamps(w.now)
	for _, f := range e.Scalars {
		if old := f.Value(prev); !reflect.DeepEqual(old.Interface(), f.Value(inst).Interface()) {
			w.stamps = append(w.stamps, stamp{field: f, inst: inst, old: old})
		}
	}
}

func idOf(e *schema.Entity, v reflect.Value) schema.ID {
	if v.IsNil() {
		return schema.Unsaved
	}
	return e.IDOf(v)
}

// reconcile rewrites the join rows of one collection for all parents of a
// batch.
func (w *writer) reconcile(f *schema.Field, parents []reflect.Value) error {
	e := f.Owner()
	parentIDs := make([]int64, len(parents))
	elems := make([][]reflect.Value, len(parents))
	for i, p := range parents {
		parentIDs[i] = e.IDOf(p).Int64()
		elems[i] = elements(f, p)
	}
	var existing []int64
	if f.Owns() {
		var children []reflect.Value
		for _, es := range elems {
			children = append(children, es...)
		}
		if err := w.saveBatch(f.Target, children); err != nil {
			return err
		}
		var err error
		if existing, err = w.children(f, parentIDs); err != nil {
			return err
		}
	}
	if err := w.deleteJoinRows(f, parentIDs); err != nil {
		return err
	}
	if f.Owns() {
		final := batch.NewSet[int64]()
		for _, es := range elems {
			for _, c := range es {
				final.Add(f.Target.IDOf(c).Int64())
			}
		}
		if err := w.deleteOrphans(f, batch.Without(batch.Distinct(existing), final)); err != nil {
			return err
		}
	}
	for i, p := range parents {
		for _, c := range elems[i] {
			w.joins = append(w.joins, joinRow{field: f, parent: p, elem: c})
		}
	}
	return nil
}

// children returns the element ids stored for the parents.
func (w *writer) children(f *schema.Field, parentIDs []int64) ([]int64, error) {
	parent := f.Owner().JoinParentColumn()
	var ids []int64
	for _, chunk := range batch.Chunk(parentIDs, batch.MaxParams) {
		cids, err := readIDs(w.ctx, w.tx, dialect.Query{
			Table:   f.JoinTable(),
			Columns: []string{f.Name},
			Filter:  dialect.In(parent, chunk),
		})
		if err != nil {
			return nil, err
		}
		ids = append(ids, cids...)
	}
	return ids, nil
}

func (w *writer) deleteJoinRows(f *schema.Field, parentIDs []int64) error {
	parent := f.Owner().JoinParentColumn()
	for _, chunk := range batch.Chunk(parentIDs, batch.MaxParams) {
		if _, err := w.tx.Delete(w.ctx, f.JoinTable(), dialect.In(parent, chunk)); err != nil {
			return err
		}
	}
	return nil
}

// deleteOrphans deletes the stale children of an owned collection that no
// row of the collection refers to anymore. Rows of the current graph are
// kept.
func (w *writer) deleteOrphans(f *schema.Field, stale []int64) error {
	var candidates []int64
	for _, id := range stale {
		k := key{f.Target, id}
		if id > 0 && !w.inGraph[k] && !w.deleted[k] {
			candidates = append(candidates, id)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	referenced := batch.NewSet[int64]()
	for _, chunk := range batch.Chunk(candidates, batch.MaxParams) {
		ids, err := readIDs(w.ctx, w.tx, dialect.Query{
			Table:   f.JoinTable(),
			Columns: []string{f.Name},
			Filter:  dialect.In(f.Name, chunk),
		})
		if err != nil {
			return err
		}
		for _, id := range ids {
			referenced.Add(id)
		}
	}
	return w.deleteByIDs(f.Target, batch.Without(candidates, referenced))
}

// deleteByIDs deletes rows of e with their collections, owned orphans and
// owned singular children. Each row is deleted once per call.
func (w *writer) deleteByIDs(e *schema.Entity, ids []int64) error {
	var todo []int64
	for _, id := range batch.Distinct(ids) {
		k := key{e, id}
		if id <= 0 || w.deleted[k] || w.inGraph[k] {
			continue
		}
		w.deleted[k] = true
		todo = append(todo, id)
	}
	if len(todo) == 0 {
		return nil
	}
	for _, f := range e.Collections {
		var children []int64
		if f.Owns() {
			var err error
			if children, err = w.children(f, todo); err != nil {
				return err
			}
		}
		if err := w.deleteJoinRows(f, todo); err != nil {
			return err
		}
		if f.Owns() {
			if err := w.deleteOrphans(f, batch.Distinct(children)); err != nil {
				return err
			}
		}
	}
	owned := make([][]int64, len(e.Owned))
	if len(e.Owned) > 0 {
		cols := []string{schema.IDColumn}
		for _, f := range e.Owned {
			cols = append(cols, f.Name)
		}
		for _, chunk := range batch.Chunk(todo, batch.MaxParams) {
			err := scan(w.ctx, w.tx, dialect.Query{Table: e.Name, Columns: cols, Filter: dialect.In(schema.IDColumn, chunk)}, func(c dialect.Cursor) error {
				for i := range e.Owned {
					id, err := codec.DecodeRef(c, i+1)
					if err != nil {
						return err
					}
					if id.IsSaved() {
						owned[i] = append(owned[i], id.Int64())
					}
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
	}
	for _, chunk := range batch.Chunk(todo, batch.MaxParams) {
		if _, err := w.tx.Delete(w.ctx, e.Name, dialect.In(schema.IDColumn, chunk)); err != nil {
			return err
		}
	}
	w.ds.logger.DebugContext(w.ctx, "graphorm: deleted", "entity", e.Name, "rows", len(todo))
	for i, f := range e.Owned {
		if err := w.deleteByIDs(f.Target, owned[i]); err != nil {
			return err
		}
	}
	return nil
}

// flush writes the statements deferred until every instance of the call
// has its identity: cyclic singular columns, then the join rows.
func (w *writer) flush() error {
	for _, fx := range w.fixups {
		id := fx.field.Target.IDOf(fx.target)
		if !id.IsSaved() {
			return &UnsavedReferenceError{Entity: fx.entity.Name, Field: fx.field.GoName, Target: fx.field.Target.Name}
		}
		vs := w.ds.backend.PrepareValueSet()
		vs.Put(fx.field.Name, id.Int64())
		if _, err := w.tx.Update(w.ctx, fx.entity.Name, vs, dialect.EQ(schema.IDColumn, fx.entity.IDOf(fx.inst).Int64())); err != nil {
			return err
		}
	}
	if len(w.joins) == 0 {
		return nil
	}
	rows := make(map[string][]dialect.ValueSet)
	for _, j := range w.joins {
		owner := j.field.Owner()
		var (
			v   driver.Value
			err error
		)
		if j.field.Target != nil {
			v, err = codec.EncodeRef(j.field.Target, j.elem)
			if errors.Is(err, codec.ErrUnsavedReference) {
				return &UnsavedReferenceError{Entity: owner.Name, Field: j.field.GoName, Target: j.field.Target.Name}
			}
		} else {
			v, err = codec.Encode(j.field.Elem, j.elem)
		}
		if err != nil {
			return &FieldError{Entity: owner.Name, Field: j.field.GoName, Err: err}
		}
		vs := w.ds.backend.PrepareValueSet()
		vs.Put(owner.JoinParentColumn(), owner.IDOf(j.parent).Int64())
		vs.Put(j.field.Name, v)
		rows[j.field.JoinTable()] = append(rows[j.field.JoinTable()], vs)
	}
	_, err := w.tx.BulkSave(w.ctx, rows)
	return err
}

// elements returns the members of a collection field of inst. Nil
// entities are skipped, and so are false members of a map[E]bool.
func elements(f *schema.Field, inst reflect.Value) []reflect.Value {
	v := f.Value(inst)
	var out []reflect.Value
	add := func(el reflect.Value) {
		if f.Target != nil && el.IsNil() {
			return
		}
		out = append(out, el)
	}
	switch f.Container {
	case schema.Slice:
		for i := 0; i < v.Len(); i++ {
			add(v.Index(i))
		}
	default:
		iter := v.MapRange()
		for iter.Next() {
			if f.Container == schema.BoolSet && !iter.Value().Bool() {
				continue
			}
			add(iter.Key())
		}
	}
	return out
}

// resetDeleted resets the identities of deleted instances reachable from
// inst through owned fields.
func resetDeleted(e *schema.Entity, inst reflect.Value, deleted map[key]bool, seen map[any]bool) {
	if seen[inst.Interface()] {
		return
	}
	seen[inst.Interface()] = true
	if id := e.IDOf(inst); id.IsSaved() && deleted[key{e, id.Int64()}] {
		e.SetID(inst, schema.Unsaved)
	}
	for _, f := range e.Owned {
		if c := f.Value(inst); !c.IsNil() {
			resetDeleted(f.Target, c, deleted, seen)
		}
	}
	for _, f := range e.Collections {
		if !f.Owns() {
			continue
		}
		for _, c := range elements(f, inst) {
			resetDeleted(f.Target, c, deleted, seen)
		}
	}
}

// scan runs q and calls fn on every row.
func scan(ctx context.Context, ex dialect.Executor, q dialect.Query, fn func(dialect.Cursor) error) (rerr error) {
	cur, err := ex.Query(ctx, q)
	if err != nil {
		return err
	}
	defer func() {
		rerr = errors.Join(rerr, cur.Close())
	}()
	for ok := cur.MoveToFirst(); ok; ok = cur.MoveToNext() {
		if err := fn(cur); err != nil {
			return err
		}
	}
	return nil
}

// readIDs returns the positive ids of the first column of q.
func readIDs(ctx context.Context, ex dialect.Executor, q dialect.Query) ([]int64, error) {
	var ids []int64
	err := scan(ctx, ex, q, func(c dialect.Cursor) error {
		id, err := codec.DecodeRef(c, 0)
		if err != nil {
			return err
		}
		if id.IsSaved() {
			ids = append(ids, id.Int64())
		}
		return nil
	})
	return ids, err
}
