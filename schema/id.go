package schema

import "strconv"

// ID is the identity of an entity instance. The zero value is Unsaved.
//
// Entities may declare their identity as an ID or as a plain Go integer,
// in which case 0 means unsaved.
type ID struct {
	v     int64
	saved bool
}

// Unsaved is the identity of an instance that has no row yet.
var Unsaved = ID{}

// Saved returns the identity of an instance persisted under id.
func Saved(id int64) ID {
	return ID{v: id, saved: true}
}

// IsSaved reports whether the identity refers to a stored row.
func (id ID) IsSaved() bool { return id.saved }

// Int64 returns the row id, or 0 for an unsaved identity.
func (id ID) Int64() int64 {
	if !id.saved {
		return 0
	}
	return id.v
}

// String implements fmt.Stringer.
func (id ID) String() string {
	if !id.saved {
		return "unsaved"
	}
	return strconv.FormatInt(id.v, 10)
}
