package migrate

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Table   string
	Column  string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("%s.%s: %s", e.Table, e.Column, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Table, e.Message)
}

// ValidationResult holds the results of schema validation.
type ValidationResult struct {
	Errors []*ValidationError
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Err returns the validation errors joined, or nil.
func (r *ValidationResult) Err() error {
	if !r.HasErrors() {
		return nil
	}
	errs := make([]error, len(r.Errors))
	for i, e := range r.Errors {
		errs[i] = e
	}
	return errors.Join(errs...)
}

// String returns a human-readable summary of the validation result.
func (r *ValidationResult) String() string {
	var sb strings.Builder
	for _, e := range r.Errors {
		sb.WriteString("  - ")
		sb.WriteString(e.Error())
		sb.WriteString("\n")
	}
	return sb.String()
}

// ValidateTable validates a single table definition.
func ValidateTable(t *Table) *ValidationResult {
	result := &ValidationResult{}

	pk := 0
	colNames := make(map[string]bool)
	for _, c := range t.Columns {
		if c.PrimaryKey {
			pk++
		}
		// Unquoted identifiers are case-insensitive.
		name := strings.ToLower(c.Name)
		if colNames[name] {
			result.Errors = append(result.Errors, &ValidationError{
				Table:   t.Name,
				Column:  c.Name,
				Message: "duplicate column name",
			})
		}
		colNames[name] = true
		if !c.Type.Valid() {
			result.Errors = append(result.Errors, &ValidationError{
				Table:   t.Name,
				Column:  c.Name,
				Message: "invalid column type",
			})
		}
	}
	if pk != 1 {
		result.Errors = append(result.Errors, &ValidationError{
			Table:   t.Name,
			Message: fmt.Sprintf("table must have exactly one primary key column, has %d", pk),
		})
	}

	for _, idx := range t.Indexes {
		for _, col := range idx.Columns {
			if !colNames[strings.ToLower(col)] {
				result.Errors = append(result.Errors, &ValidationError{
					Table:   t.Name,
					Message: fmt.Sprintf("index %q references non-existent column %q", idx.Name, col),
				})
			}
		}
	}
	return result
}

// ValidateSchema validates all tables in a schema. A join table whose name
// matches another entity's table is reported as a duplicate.
func ValidateSchema(tables []*Table) *ValidationResult {
	result := &ValidationResult{}

	tableNames := make(map[string]bool)
	indexNames := make(map[string]bool)
	for _, t := range tables {
		name := strings.ToLower(t.Name)
		if tableNames[name] {
			result.Errors = append(result.Errors, &ValidationError{
				Table:   t.Name,
				Message: "duplicate table name",
			})
		}
		tableNames[name] = true

		// Index names share one namespace in SQLite and PostgreSQL.
		for _, idx := range t.Indexes {
			name := strings.ToLower(idx.Name)
			if indexNames[name] {
				result.Errors = append(result.Errors, &ValidationError{
					Table:   t.Name,
					Message: fmt.Sprintf("duplicate index name: %s", idx.Name),
				})
			}
			indexNames[name] = true
		}

		result.Errors = append(result.Errors, ValidateTable(t).Errors...)
	}
	return result
}
