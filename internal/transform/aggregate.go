package transform

import (
	"slices"

	"github.com/roach88/chartflow/internal/ir"
)

func aggInputs(ops []AggOp, groupBy []string) []string {
	fields := slices.Clone(groupBy)
	for _, op := range ops {
		if op.Op.NeedsField() {
			fields = append(fields, op.Field)
		}
	}
	return fields
}

// computeGroup evaluates every op for one group.
func computeGroup(ops []AggOp, groupBy []string, g *group) (ir.Row, error) {
	out := make(ir.Row, len(ops))
	for _, op := range ops {
		v, ok := reduce(op.Op, op.Field, g.rows)
		if !ok {
			return nil, &EmptyAggregateError{Op: op.Op, Field: op.Field, Group: describeGroup(groupBy, g.vals)}
		}
		out[op.As] = v
	}
	return out, nil
}

// runAggregate emits one row per distinct groupby tuple, in first-seen
// order: the groupby fields followed by the op outputs. Input rows are not
// modified.
func runAggregate(s Aggregate, in ir.Table) (ir.Table, error) {
	if err := requireFields(s.Kind(), in, aggInputs(s.Ops, s.GroupBy)...); err != nil {
		return ir.Table{}, err
	}

	fields := slices.Clone(s.GroupBy)
	for _, op := range s.Ops {
		if !slices.Contains(fields, op.As) {
			fields = append(fields, op.As)
		}
	}

	groups := partition(in.Rows, s.GroupBy)
	out := ir.Table{Fields: fields, Rows: make([]ir.Row, 0, len(groups))}
	for _, g := range groups {
		row, err := computeGroup(s.Ops, s.GroupBy, g)
		if err != nil {
			return ir.Table{}, err
		}
		for i, f := range s.GroupBy {
			row[f] = g.vals[i]
		}
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}

// runJoinAggregate appends each group's op outputs to every row of that
// group. Row count and order are preserved.
func runJoinAggregate(s JoinAggregate, in ir.Table) (ir.Table, error) {
	if err := requireFields(s.Kind(), in, aggInputs(s.Ops, s.GroupBy)...); err != nil {
		return ir.Table{}, err
	}

	fields := slices.Clone(in.Fields)
	for _, op := range s.Ops {
		if !slices.Contains(fields, op.As) {
			fields = append(fields, op.As)
		}
	}

	out := ir.Table{Fields: fields, Rows: make([]ir.Row, len(in.Rows))}
	for _, g := range partition(in.Rows, s.GroupBy) {
		agg, err := computeGroup(s.Ops, s.GroupBy, g)
		if err != nil {
			return ir.Table{}, err
		}
		for j, r := range g.rows {
			nr := r.Clone()
			for k, v := range agg {
				nr[k] = v
			}
			out.Rows[g.idx[j]] = nr
		}
	}
	return out, nil
}
