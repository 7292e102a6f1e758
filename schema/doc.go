// Package schema classifies entity structs into the metadata the engine
// persists them by.
//
// An entity is a struct with an identity field, used through pointers:
//
//	type Cat struct {
//	    ID       schema.ID           // or an integer, 0 meaning unsaved
//	    Name     string              // scalar column "name"
//	    Owner    *Person `orm:"ref"` // reference: stored, never cascaded
//	    OtherCat *Cat                // owned: cascade-saved and deleted
//	    Kittens  []*Kitten           // owned collection: join table Cat_kittens
//	    Toys     map[*Toy]struct{} `orm:"ref"`
//	    Nick     string `orm:"-"`    // not persisted
//	}
//
// Fields are classified in order as excluded, identity, reference, owned
// entity, collection or scalar. Column names are the lower camel case of
// the Go field name unless set with orm:"name=...". The table name is the
// Go type name unless the type implements [Tabler].
//
// Supported struct tag options:
//
//	-        exclude the field
//	id       mark the identity field
//	ref      reference semantics for entity fields and collections
//	text     long text column for strings
//	char     store an int32 as one character
//	blob     store the value as a msgpack payload
//	name=x   column name
//
// The [Registry] is built once with every entity type, and any mapping
// problem is reported as a [ConfigError] at that point.
package schema
