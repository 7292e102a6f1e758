package graphorm_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/syssam/graphorm"
	"github.com/syssam/graphorm/codec"
)

func TestNotFoundError(t *testing.T) {
	t.Run("Error", func(t *testing.T) {
		err := graphorm.NewNotFoundError("Cat", 7)
		assert.Equal(t, "graphorm: Cat not found (id=7)", err.Error())
		assert.Equal(t, "Cat", err.Label())
		assert.Equal(t, int64(7), err.ID())
	})

	t.Run("Is", func(t *testing.T) {
		err := graphorm.NewNotFoundError("Kitten", 1)
		assert.True(t, errors.Is(err, graphorm.ErrNotFound))
	})

	t.Run("IsNotFound", func(t *testing.T) {
		err := graphorm.NewNotFoundError("Cat", 1)
		assert.True(t, graphorm.IsNotFound(err))

		// Wrapped error
		wrapped := fmt.Errorf("wrapper: %w", err)
		assert.True(t, graphorm.IsNotFound(wrapped))

		// Sentinel error
		assert.True(t, graphorm.IsNotFound(graphorm.ErrNotFound))

		// Non-matching error
		assert.False(t, graphorm.IsNotFound(errors.New("other error")))
		assert.False(t, graphorm.IsNotFound(nil))
	})
}

func TestNotOpenError(t *testing.T) {
	err := &graphorm.NotOpenError{Op: "save"}
	assert.Equal(t, "graphorm: save: data source is not open", err.Error())
	assert.True(t, errors.Is(err, graphorm.ErrNotOpen))
	assert.True(t, graphorm.IsNotOpen(fmt.Errorf("wrapper: %w", err)))
	assert.True(t, graphorm.IsNotOpen(graphorm.ErrNotOpen))
	assert.False(t, graphorm.IsNotOpen(errors.New("other error")))
	assert.False(t, graphorm.IsNotOpen(nil))
}

func TestUnsavedReferenceError(t *testing.T) {
	err := &graphorm.UnsavedReferenceError{Entity: "Kitten", Field: "Mom", Target: "Cat"}
	assert.Equal(t, "graphorm: Kitten.Mom references an unsaved Cat", err.Error())
	assert.True(t, errors.Is(err, graphorm.ErrUnsavedReference))
	assert.True(t, errors.Is(err, codec.ErrUnsavedReference))
	assert.True(t, graphorm.IsUnsavedReference(fmt.Errorf("wrapper: %w", err)))
	assert.False(t, graphorm.IsUnsavedReference(errors.New("other error")))
	assert.False(t, graphorm.IsUnsavedReference(nil))
}

func TestMixedBatchError(t *testing.T) {
	err := &graphorm.MixedBatchError{Want: "*graphorm_test.Cat", Got: "*graphorm_test.Kitten"}
	assert.Equal(t, "graphorm: batch of *graphorm_test.Cat contains a *graphorm_test.Kitten", err.Error())
	assert.True(t, graphorm.IsMixedBatch(fmt.Errorf("wrapper: %w", err)))
	assert.False(t, graphorm.IsMixedBatch(errors.New("other error")))
	assert.False(t, graphorm.IsMixedBatch(nil))
}

func TestConsistencyError(t *testing.T) {
	err := &graphorm.ConsistencyError{Entity: "Cat", ID: 3}
	assert.Equal(t, "graphorm: two instances of Cat with id 3 in one fetch", err.Error())
	assert.True(t, graphorm.IsConsistencyError(err))
	assert.False(t, graphorm.IsConsistencyError(nil))
}

func TestRollbackError(t *testing.T) {
	inner := errors.New("connection lost")
	err := &graphorm.RollbackError{Err: inner}
	assert.Equal(t, "graphorm: rollback failed: connection lost", err.Error())
	assert.True(t, errors.Is(err, inner))
}

func TestFieldError(t *testing.T) {
	inner := errors.New("bad value")
	err := &graphorm.FieldError{Entity: "Kitten", Field: "Born", Err: inner}
	assert.Equal(t, "graphorm: Kitten.Born: bad value", err.Error())
	assert.True(t, errors.Is(err, inner))
}

func TestConfigError(t *testing.T) {
	err := &graphorm.ConfigError{Type: "Dog", Err: errors.New("not a registered entity")}
	assert.True(t, graphorm.IsConfigError(fmt.Errorf("wrapper: %w", err)))
	assert.False(t, graphorm.IsConfigError(errors.New("other error")))
}
