package transform

import (
	"slices"

	"github.com/roach88/chartflow/internal/ir"
)

// lookupKey is the join key of a value. Keys compare by their string form,
// so a numeric 1990 matches a CSV "1990". Null and missing never match.
func lookupKey(v ir.Value) (string, bool) {
	if !ir.IsValid(v) {
		return "", false
	}
	return ir.ToString(v), true
}

// runLookup left-joins the secondary table onto every input row. The first
// secondary row with a given key wins; duplicates are reported as
// LookupAmbiguityError warnings. Row count and order are preserved.
func runLookup(s Lookup, in ir.Table) (ir.Table, []error, error) {
	if err := requireFields(s.Kind(), in, s.Field); err != nil {
		return ir.Table{}, nil, err
	}

	index := make(map[string]ir.Row, s.From.Len())
	counts := make(map[string]int)
	var order []string
	for _, r := range s.From.Rows {
		k, ok := lookupKey(r[s.Key])
		if !ok {
			continue
		}
		if _, dup := index[k]; !dup {
			index[k] = r
			order = append(order, k)
		}
		counts[k]++
	}

	var warnings []error
	for _, k := range order {
		if counts[k] > 1 {
			warnings = append(warnings, &LookupAmbiguityError{Key: s.Key, Value: k, Count: counts[k]})
		}
	}

	names := s.outputNames()
	fields := slices.Clone(in.Fields)
	for _, n := range names {
		if !slices.Contains(fields, n) {
			fields = append(fields, n)
		}
	}

	def := s.Default
	if def == nil {
		def = ir.Null{}
	}

	out := ir.Table{Fields: fields, Rows: make([]ir.Row, len(in.Rows))}
	for i, r := range in.Rows {
		nr := r.Clone()
		var match ir.Row
		if k, ok := lookupKey(r[s.Field]); ok {
			match = index[k]
		}
		for j, f := range s.Fields {
			v := def
			if match != nil {
				if mv, ok := match[f]; ok && mv != nil {
					v = mv
				} else {
					v = ir.Null{}
				}
			}
			nr[names[j]] = v
		}
		out.Rows[i] = nr
	}
	return out, warnings, nil
}
