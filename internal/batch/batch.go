// Package batch provides generic helpers for set-based loading, such as
// grouping rows by key and splitting long IN-lists.
package batch

// MaxParams bounds the number of values bound to one IN-list. SQLite
// builds before 3.32 reject statements with more than 999 parameters.
const MaxParams = 500

// KeyFunc extracts a key from a value.
type KeyFunc[K comparable, V any] func(V) K

// Distinct returns keys without duplicates, in first-seen order.
func Distinct[K comparable](keys []K) []K {
	seen := make(map[K]struct{}, len(keys))
	out := make([]K, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// GroupByKey groups values by a key function, keeping their order inside
// each group.
//
//	rows := []joinRow{{parent: 1, child: 7}, {parent: 2, child: 8}, {parent: 1, child: 9}}
//	grouped := GroupByKey(rows, func(r joinRow) int64 { return r.parent })
//	// grouped[1] holds the rows of children 7 and 9
func GroupByKey[K comparable, V any](values []V, keyFn KeyFunc[K, V]) map[K][]V {
	result := make(map[K][]V)
	for _, v := range values {
		key := keyFn(v)
		result[key] = append(result[key], v)
	}
	return result
}

// Chunk splits s into consecutive parts of at most n elements.
func Chunk[T any](s []T, n int) [][]T {
	if n <= 0 {
		n = MaxParams
	}
	chunks := make([][]T, 0, (len(s)+n-1)/n)
	for len(s) > n {
		chunks = append(chunks, s[:n:n])
		s = s[n:]
	}
	if len(s) > 0 {
		chunks = append(chunks, s)
	}
	return chunks
}

// Set is a set of comparable keys.
type Set[K comparable] map[K]struct{}

// NewSet returns a set holding keys.
func NewSet[K comparable](keys ...K) Set[K] {
	s := make(Set[K], len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

// Add adds k to the set.
func (s Set[K]) Add(k K) { s[k] = struct{}{} }

// Has reports whether k is in the set.
func (s Set[K]) Has(k K) bool {
	_, ok := s[k]
	return ok
}

// Without returns the keys not in any of the sets, in their order.
func Without[K comparable](keys []K, sets ...Set[K]) []K {
	var out []K
outer:
	for _, k := range keys {
		for _, s := range sets {
			if s.Has(k) {
				continue outer
			}
		}
		out = append(out, k)
	}
	return out
}
