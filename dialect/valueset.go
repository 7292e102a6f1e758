package dialect

import "database/sql/driver"

// ValueSet is the write side of one row: column names mapped to encoded
// values, kept in insertion order.
type ValueSet interface {
	Put(column string, v driver.Value)
	Get(column string) (driver.Value, bool)
	Remove(column string)
	Columns() []string
	Len() int
}

// NewValueSet returns an empty ValueSet.
func NewValueSet() ValueSet {
	return &valueSet{index: make(map[string]int)}
}

type valueSet struct {
	cols  []string
	vals  []driver.Value
	index map[string]int
}

func (s *valueSet) Put(column string, v driver.Value) {
	if i, ok := s.index[column]; ok {
		s.vals[i] = v
		return
	}
	s.index[column] = len(s.cols)
	s.cols = append(s.cols, column)
	s.vals = append(s.vals, v)
}

func (s *valueSet) Get(column string) (driver.Value, bool) {
	i, ok := s.index[column]
	if !ok {
		return nil, false
	}
	return s.vals[i], true
}

func (s *valueSet) Remove(column string) {
	i, ok := s.index[column]
	if !ok {
		return
	}
	s.cols = append(s.cols[:i], s.cols[i+1:]...)
	s.vals = append(s.vals[:i], s.vals[i+1:]...)
	delete(s.index, column)
	for j := i; j < len(s.cols); j++ {
		s.index[s.cols[j]] = j
	}
}

func (s *valueSet) Columns() []string { return s.cols }

func (s *valueSet) Len() int { return len(s.cols) }
