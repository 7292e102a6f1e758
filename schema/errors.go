package schema

import (
	"errors"
	"fmt"
)

// ConfigError reports an entity type that cannot be mapped. It is raised
// when the registry is built, never on first use.
type ConfigError struct {
	Type  string // Go type name
	Field string // Go field name, empty for type-level errors
	Err   error  // Underlying cause
}

// Error returns the error string.
func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("graphorm: invalid entity field %s.%s: %v", e.Type, e.Field, e.Err)
	}
	return fmt.Sprintf("graphorm: invalid entity %s: %v", e.Type, e.Err)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

func configErr(typ, field, format string, args ...any) *ConfigError {
	return &ConfigError{Type: typ, Field: field, Err: fmt.Errorf(format, args...)}
}

// IsConfigError returns true if the error is a ConfigError.
func IsConfigError(err error) bool {
	if err == nil {
		return false
	}
	var e *ConfigError
	return errors.As(err, &e)
}
