package graphorm

import (
	"reflect"

	"github.com/syssam/graphorm/schema"
)

// key identifies a row.
type key struct {
	entity *schema.Entity
	id     int64
}

// identityCache maps rows to the instances built for them during one
// fetch call. An instance is registered right after its scalar columns
// are decoded, before its relations are resolved, so a cycle back to it
// resolves to the same instance.
type identityCache struct {
	m map[key]reflect.Value
}

func newIdentityCache() *identityCache {
	return &identityCache{m: make(map[key]reflect.Value)}
}

func (c *identityCache) get(e *schema.Entity, id int64) (reflect.Value, bool) {
	v, ok := c.m[key{e, id}]
	return v, ok
}

// put registers inst. Registering another instance under the same row is
// a ConsistencyError.
func (c *identityCache) put(e *schema.Entity, id int64, inst reflect.Value) error {
	k := key{e, id}
	if prev, ok := c.m[k]; ok && prev.Pointer() != inst.Pointer() {
		return &ConsistencyError{Entity: e.Name, ID: id}
	}
	c.m[k] = inst
	return nil
}
