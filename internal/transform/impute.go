package transform

import (
	"slices"

	"github.com/roach88/chartflow/internal/ir"
)

// runImpute keeps every input row and appends one row for each key in the
// key domain that a group lacks. The domain is the observed key values in
// first-seen order followed by unobserved KeyVals. Without GroupBy the
// whole table is one group, so KeyVals alone can seed an empty table.
// Inserted rows carry the key, the group values, and the fill value.
func runImpute(s Impute, in ir.Table) (ir.Table, error) {
	required := append([]string{s.Field, s.Key}, s.GroupBy...)
	if err := requireFields(s.Kind(), in, required...); err != nil {
		return ir.Table{}, err
	}

	var domain []ir.Value
	inDomain := make(map[string]bool)
	addKey := func(v ir.Value) {
		if !ir.IsValid(v) {
			return
		}
		k := ir.Key(v)
		if !inDomain[k] {
			inDomain[k] = true
			domain = append(domain, v)
		}
	}
	for _, r := range in.Rows {
		if v, ok := r[s.Key]; ok {
			addKey(v)
		}
	}
	for _, v := range s.KeyVals {
		addKey(v)
	}

	groups := partition(in.Rows, s.GroupBy)
	if len(s.GroupBy) == 0 && len(groups) == 0 {
		groups = []*group{{}}
	}

	out := ir.Table{Fields: slices.Clone(in.Fields), Rows: slices.Clone(in.Rows)}
	for _, g := range groups {
		present := make(map[string]bool, len(g.rows))
		for _, r := range g.rows {
			if v, ok := r[s.Key]; ok {
				present[ir.Key(v)] = true
			}
		}

		fill := imputeFill(s, g.rows)
		for _, k := range domain {
			if present[ir.Key(k)] {
				continue
			}
			row := ir.Row{s.Key: k, s.Field: fill}
			for i, f := range s.GroupBy {
				row[f] = g.vals[i]
			}
			out.Rows = append(out.Rows, row)
		}
	}
	return out, nil
}

// imputeFill computes the fill value for one group.
func imputeFill(s Impute, rows []ir.Row) ir.Value {
	var op Op
	switch s.Method {
	case ImputeMean:
		op = OpMean
	case ImputeMin:
		op = OpMin
	case ImputeMax:
		op = OpMax
	default:
		if s.Value == nil {
			return ir.Null{}
		}
		return s.Value
	}
	v, _ := reduce(op, s.Field, rows)
	return v
}
