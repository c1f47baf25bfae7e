package param

import (
	"slices"

	"github.com/roach88/chartflow/internal/ir"
)

// Selection is the value of a selection parameter: a set of tuples over
// Fields. An empty selection means nothing is selected; how an empty
// selection matches rows is decided by the consumer (see channel.Empty).
type Selection struct {
	Fields []string
	Tuples [][]ir.Value
}

// Empty reports whether nothing is selected.
func (s Selection) Empty() bool {
	return len(s.Tuples) == 0
}

// Contains reports whether the row's projection onto Fields is selected.
// A row missing a selection field never matches.
func (s Selection) Contains(row ir.Row) bool {
	proj := make([]ir.Value, len(s.Fields))
	for i, f := range s.Fields {
		v, ok := row[f]
		if !ok {
			return false
		}
		proj[i] = v
	}
	return s.index(proj) >= 0
}

// Value renders the selection as a list of field objects, the form
// expressions observe.
func (s Selection) Value() ir.Value {
	out := make(ir.List, len(s.Tuples))
	for i, t := range s.Tuples {
		obj := make(ir.Object, len(s.Fields))
		for j, f := range s.Fields {
			obj[f] = t[j]
		}
		out[i] = obj
	}
	return out
}

func (s Selection) index(tuple []ir.Value) int {
	return slices.IndexFunc(s.Tuples, func(t []ir.Value) bool {
		return ir.TupleKey(t) == ir.TupleKey(tuple)
	})
}

// with returns a copy of s with tuple added, if absent.
func (s Selection) with(tuple []ir.Value) Selection {
	if s.index(tuple) >= 0 {
		return s
	}
	return Selection{Fields: s.Fields, Tuples: append(slices.Clone(s.Tuples), slices.Clone(tuple))}
}

// toggled returns a copy of s with tuple added or removed.
func (s Selection) toggled(tuple []ir.Value) Selection {
	i := s.index(tuple)
	if i < 0 {
		return s.with(tuple)
	}
	return Selection{Fields: s.Fields, Tuples: slices.Delete(slices.Clone(s.Tuples), i, i+1)}
}

func (s Selection) clone() Selection {
	tuples := make([][]ir.Value, len(s.Tuples))
	for i, t := range s.Tuples {
		tuples[i] = slices.Clone(t)
	}
	return Selection{Fields: slices.Clone(s.Fields), Tuples: tuples}
}
