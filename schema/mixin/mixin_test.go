package mixin_test

import (
	"testing"
	"time"

	"github.com/syssam/graphorm/schema"
	"github.com/syssam/graphorm/schema/mixin"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Note struct {
	mixin.ID
	mixin.Time
	mixin.SoftDelete
	Body string
}

func TestMixinFieldsAreFlattened(t *testing.T) {
	reg, err := schema.NewRegistry(Note{})
	require.NoError(t, err)
	e, ok := reg.Lookup(schema.TypeOf[Note]())
	require.True(t, ok)
	assert.Equal(t, []string{"id", "createdAt", "updatedAt", "deletedAt", "body"}, e.Columns())
}

func TestTime(t *testing.T) {
	var n Note
	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	n.SetTimestamps(first)
	assert.Equal(t, first, n.CreatedAt)
	assert.Equal(t, first, n.UpdatedAt)

	later := first.Add(time.Hour)
	n.SetTimestamps(later)
	assert.Equal(t, first, n.CreatedAt, "createdAt is set once")
	assert.Equal(t, later, n.UpdatedAt)
}

func TestCreateTime(t *testing.T) {
	var c mixin.CreateTime
	now := time.Now()
	c.SetTimestamps(now)
	c.SetTimestamps(now.Add(time.Minute))
	assert.Equal(t, now, c.CreatedAt)
}

func TestSoftDelete(t *testing.T) {
	var n Note
	assert.False(t, n.IsDeleted())
	n.MarkDeleted(time.Now())
	assert.True(t, n.IsDeleted())
}
