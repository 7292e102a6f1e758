package graphorm

import (
	"errors"
	"fmt"

	"github.com/syssam/graphorm/codec"
	"github.com/syssam/graphorm/schema"
)

// Standard sentinel errors for common operations.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("graphorm: entity not found")

	// ErrNotOpen is returned by operations on a closed data source.
	ErrNotOpen = errors.New("graphorm: data source is not open")

	// ErrUnsaved is returned by Update and Refresh when the entity has no
	// identity yet.
	ErrUnsaved = errors.New("graphorm: entity is not saved")

	// ErrUnsavedReference matches every UnsavedReferenceError.
	ErrUnsavedReference = codec.ErrUnsavedReference
)

// ConfigError reports an entity type that cannot be mapped, or a type
// that is not registered.
type ConfigError = schema.ConfigError

// IsConfigError returns true if the error is a ConfigError.
func IsConfigError(err error) bool {
	return schema.IsConfigError(err)
}

func unregistered(typ string) *ConfigError {
	return &ConfigError{Type: typ, Err: errors.New("not a registered entity")}
}

// NotFoundError represents an error when an entity is not found.
type NotFoundError struct {
	label string
	id    int64
}

// Error returns the error string.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("graphorm: %s not found (id=%d)", e.label, e.id)
}

// Is reports whether the target error matches NotFoundError.
// This allows errors.Is(notFoundErr, ErrNotFound) to return true.
func (e *NotFoundError) Is(err error) bool {
	return err == ErrNotFound
}

// Label returns the entity label.
func (e *NotFoundError) Label() string {
	return e.label
}

// ID returns the ID that was searched for.
func (e *NotFoundError) ID() int64 {
	return e.id
}

// NewNotFoundError returns a new NotFoundError for the given entity and id.
func NewNotFoundError(label string, id int64) *NotFoundError {
	return &NotFoundError{label: label, id: id}
}

// IsNotFound returns true if the error is a NotFoundError.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var e *NotFoundError
	return errors.As(err, &e) || errors.Is(err, ErrNotFound)
}

// NotOpenError is returned when an operation runs on a closed data source.
type NotOpenError struct {
	Op string
}

// Error returns the error string.
func (e *NotOpenError) Error() string {
	return fmt.Sprintf("graphorm: %s: data source is not open", e.Op)
}

// Is reports whether the target error matches NotOpenError.
func (e *NotOpenError) Is(err error) bool {
	return err == ErrNotOpen
}

// IsNotOpen returns true if the error is a NotOpenError.
func IsNotOpen(err error) bool {
	if err == nil {
		return false
	}
	var e *NotOpenError
	return errors.As(err, &e) || errors.Is(err, ErrNotOpen)
}

// UnsavedReferenceError is returned when a reference field points to an
// unsaved entity. Nothing is written when it is returned.
type UnsavedReferenceError struct {
	Entity string // Entity declaring the reference
	Field  string // Go field name
	Target string // Referenced entity
}

// Error returns the error string.
func (e *UnsavedReferenceError) Error() string {
	return fmt.Sprintf("graphorm: %s.%s references an unsaved %s", e.Entity, e.Field, e.Target)
}

// Is reports whether the target error matches ErrUnsavedReference.
func (e *UnsavedReferenceError) Is(err error) bool {
	return err == ErrUnsavedReference
}

// IsUnsavedReference returns true if the error is an UnsavedReferenceError.
func IsUnsavedReference(err error) bool {
	if err == nil {
		return false
	}
	var e *UnsavedReferenceError
	return errors.As(err, &e) || errors.Is(err, ErrUnsavedReference)
}

// MixedBatchError is returned by SaveAll when the batch holds more than
// one entity type.
type MixedBatchError struct {
	Want string
	Got  string
}

// Error returns the error string.
func (e *MixedBatchError) Error() string {
	return fmt.Sprintf("graphorm: batch of %s contains a %s", e.Want, e.Got)
}

// IsMixedBatch returns true if the error is a MixedBatchError.
func IsMixedBatch(err error) bool {
	if err == nil {
		return false
	}
	var e *MixedBatchError
	return errors.As(err, &e)
}

// ConsistencyError is returned when two different instances are created
// for the same row within one fetch.
type ConsistencyError struct {
	Entity string
	ID     int64
}

// Error returns the error string.
func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("graphorm: two instances of %s with id %d in one fetch", e.Entity, e.ID)
}

// IsConsistencyError returns true if the error is a ConsistencyError.
func IsConsistencyError(err error) bool {
	if err == nil {
		return false
	}
	var e *ConsistencyError
	return errors.As(err, &e)
}

// RollbackError wraps an error that occurred during a transaction rollback.
type RollbackError struct {
	Err error // Error returned by the rollback
}

// Error returns the error string.
func (e *RollbackError) Error() string {
	return fmt.Sprintf("graphorm: rollback failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *RollbackError) Unwrap() error {
	return e.Err
}

// FieldError wraps an encoding or decoding failure with its location.
type FieldError struct {
	Entity string
	Field  string
	Err    error
}

// Error returns the error string.
func (e *FieldError) Error() string {
	return fmt.Sprintf("graphorm: %s.%s: %v", e.Entity, e.Field, e.Err)
}

// Unwrap returns the underlying error.
func (e *FieldError) Unwrap() error {
	return e.Err
}
