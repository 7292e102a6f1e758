// Package field defines the closed set of column kinds an entity field can
// be persisted as, and the mapping from Go types onto those kinds.
//
// The mapping is resolved once per struct field when the entity is
// registered:
//
//	bool, int..int64, uint..uint64   native numeric columns
//	float32, float64                 native numeric columns
//	int32 tagged orm:"char"          one-character text (TypeRune)
//	string, *string                  text (TypeString, or TypeText with orm:"text")
//	time.Time, *time.Time            epoch milliseconds (TypeTime)
//	encoding.TextMarshaler types     symbolic name (TypeEnum)
//	uuid.UUID                        canonical text (TypeUUID)
//	[]byte                           binary (TypeBytes)
//	structs, arrays, orm:"blob"      msgpack payload (TypeBlob)
//
// Any other Go type is rejected by [TypeOf].
package field
