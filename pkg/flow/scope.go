package flow

import "strings"

// Scope keys reserved for fault reporting. A failing handler sets
// these; documents read them like any other value.
const (
	KeyErrorHandled = "error.handled"
	KeyErrorLast    = "error.last"
	KeyErrorAction  = "error.action"
)

// Scope is the mutable blackboard a document run reads and writes.
// Values live in nested maps so condition expressions can use member
// access ("feeling.fear > 0.5"). A Scope is not safe for concurrent
// use; each actor owns one and touches it only from its own loop.
type Scope struct {
	vars map[string]interface{}
}

// NewScope returns an empty scope.
func NewScope() *Scope {
	return &Scope{vars: make(map[string]interface{})}
}

// Set stores a value at a dot-separated path, creating intermediate
// maps as needed. An intermediate that is not a map is replaced.
func (s *Scope) Set(path string, value interface{}) {
	parts := strings.Split(path, ".")
	m := s.vars
	for _, p := range parts[:len(parts)-1] {
		next, ok := m[p].(map[string]interface{})
		if !ok {
			next = make(map[string]interface{})
			m[p] = next
		}
		m = next
	}
	m[parts[len(parts)-1]] = value
}

// Get returns the value at a dot-separated path.
func (s *Scope) Get(path string) (interface{}, bool) {
	parts := strings.Split(path, ".")
	m := s.vars
	for _, p := range parts[:len(parts)-1] {
		next, ok := m[p].(map[string]interface{})
		if !ok {
			return nil, false
		}
		m = next
	}
	v, ok := m[parts[len(parts)-1]]
	return v, ok
}

// Delete removes the value at path. Missing segments are a no-op.
func (s *Scope) Delete(path string) {
	parts := strings.Split(path, ".")
	m := s.vars
	for _, p := range parts[:len(parts)-1] {
		next, ok := m[p].(map[string]interface{})
		if !ok {
			return
		}
		m = next
	}
	delete(m, parts[len(parts)-1])
}

// Number returns the value at path coerced to float64. Integers are
// widened; anything non-numeric misses.
func (s *Scope) Number(path string) (float64, bool) {
	v, ok := s.Get(path)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// Bool returns the value at path if it is a bool, false otherwise.
func (s *Scope) Bool(path string) bool {
	v, ok := s.Get(path)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Text returns the value at path if it is a string, "" otherwise.
func (s *Scope) Text(path string) string {
	v, ok := s.Get(path)
	if !ok {
		return ""
	}
	str, _ := v.(string)
	return str
}

// Env returns the root map for condition evaluation. The caller must
// not retain it across scope mutations.
func (s *Scope) Env() map[string]interface{} {
	return s.vars
}

// Snapshot returns a deep copy of the scope contents, safe to hand to
// a persister while the owning loop keeps mutating the original.
func (s *Scope) Snapshot() map[string]interface{} {
	return deepCopyMap(s.vars)
}

// Restore replaces the scope contents with a deep copy of m.
func (s *Scope) Restore(m map[string]interface{}) {
	if m == nil {
		s.vars = make(map[string]interface{})
		return
	}
	s.vars = deepCopyMap(m)
}

func deepCopyMap(src map[string]interface{}) map[string]interface{} {
	dst := make(map[string]interface{}, len(src))
	for k, v := range src {
		if nested, ok := v.(map[string]interface{}); ok {
			dst[k] = deepCopyMap(nested)
			continue
		}
		dst[k] = v
	}
	return dst
}
