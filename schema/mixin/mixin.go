// Package mixin provides reusable field sets that entity structs embed.
//
//	type Cat struct {
//	    mixin.ID
//	    mixin.Time
//	    Name string
//	}
//
// Embedded structs are flattened into the entity's table.
package mixin

import (
	"time"

	"github.com/syssam/graphorm/schema"
)

// ID adds the identity field.
type ID struct {
	ID schema.ID `orm:"id"`
}

// Time adds createdAt and updatedAt timestamp fields. createdAt is set on
// the first save, updatedAt on every save.
type Time struct {
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SetTimestamps implements schema.Timestamper.
func (t *Time) SetTimestamps(now time.Time) {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
}

// CreateTime adds only the createdAt field.
type CreateTime struct {
	CreatedAt time.Time
}

// SetTimestamps implements schema.Timestamper.
func (t *CreateTime) SetTimestamps(now time.Time) {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
}

// SoftDelete adds a nullable deletedAt field. The engine does not filter
// on it; callers pass "deletedAt = -1" to GetAll themselves.
type SoftDelete struct {
	DeletedAt *time.Time
}

// MarkDeleted sets deletedAt. It takes effect on the next save.
func (s *SoftDelete) MarkDeleted(now time.Time) {
	s.DeletedAt = &now
}

// IsDeleted reports whether deletedAt is set.
func (s *SoftDelete) IsDeleted() bool {
	return s.DeletedAt != nil
}

var (
	_ schema.Timestamper = (*Time)(nil)
	_ schema.Timestamper = (*CreateTime)(nil)
)
