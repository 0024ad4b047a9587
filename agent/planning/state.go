package planning

import (
	"fmt"
	"reflect"
)

// State 世界状态 - 变量名到值的映射
type State map[string]any

// Clone returns a shallow copy. Nested values are shared.
func (s State) Clone() State {
	out := make(State, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Satisfies reports whether every goal key is present in s with an equal value.
func (s State) Satisfies(goal State) bool {
	for k, want := range goal {
		got, ok := s[k]
		if !ok || !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}

// Mismatches counts goal keys whose value differs from (or is missing in) s.
func (s State) Mismatches(goal State) int {
	n := 0
	for k, want := range goal {
		if got, ok := s[k]; !ok || !reflect.DeepEqual(got, want) {
			n++
		}
	}
	return n
}

// CanonicalKey serializes a state deterministically for visited-set lookups.
// %#v prints map keys in sorted order and keeps value types, so 1 and "1" differ.
func CanonicalKey(s State) string {
	return fmt.Sprintf("%#v", map[string]any(s))
}
