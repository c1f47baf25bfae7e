package param

import (
	"github.com/roach88/chartflow/internal/ir"
)

// Snapshot is an immutable view of every parameter value at one instant.
// It implements expr.Scope, so a pass evaluates all of its expressions
// against the same values.
type Snapshot struct {
	values     map[string]ir.Value
	selections map[string]Selection
}

// Param returns the value of name.
func (s *Snapshot) Param(name string) (ir.Value, bool) {
	if s == nil {
		return nil, false
	}
	v, ok := s.values[name]
	return v, ok
}

// Selection returns the selection set of a selection parameter.
func (s *Snapshot) Selection(name string) (Selection, bool) {
	if s == nil {
		return Selection{}, false
	}
	sel, ok := s.selections[name]
	return sel, ok
}

// Values returns all values as one object, for tracing and hashing.
func (s *Snapshot) Values() ir.Object {
	out := make(ir.Object, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}
