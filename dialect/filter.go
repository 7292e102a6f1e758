package dialect

import (
	"strings"
)

// Filter is a precomposed WHERE fragment passed to the backend verbatim.
// Placeholders are written as "?" and rebound for the dialect. A slice
// argument bound to "IN (?)" is expanded to one placeholder per element.
//
//	dialect.Where("name = ? AND age > ?", "Bella", 2)
//	dialect.Where("id IN (?)", []int64{1, 2, 3})
type Filter struct {
	Clause string
	Args   []any
}

// Where returns a filter for the clause and its arguments.
func Where(clause string, args ...any) Filter {
	return Filter{Clause: clause, Args: args}
}

// IsZero reports whether the filter matches every row.
func (f Filter) IsZero() bool {
	return strings.TrimSpace(f.Clause) == ""
}

// In returns a filter matching rows whose column is one of values.
func In[T any](column string, values []T) Filter {
	return Filter{Clause: column + " IN (?)", Args: []any{values}}
}

// EQ returns a filter matching rows whose column equals v.
func EQ(column string, v any) Filter {
	return Filter{Clause: column + " = ?", Args: []any{v}}
}

// And joins the non-empty filters with AND.
func And(filters ...Filter) Filter {
	var nonzero []Filter
	for _, f := range filters {
		if !f.IsZero() {
			nonzero = append(nonzero, f)
		}
	}
	switch len(nonzero) {
	case 0:
		return Filter{}
	case 1:
		return nonzero[0]
	}
	var (
		clauses = make([]string, len(nonzero))
		args    []any
	)
	for i, f := range nonzero {
		clauses[i] = "(" + f.Clause + ")"
		args = append(args, f.Args...)
	}
	return Filter{Clause: strings.Join(clauses, " AND "), Args: args}
}
