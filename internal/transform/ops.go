package transform

import (
	"math"

	"github.com/aclements/go-moremath/stats"

	"github.com/roach88/chartflow/internal/ir"
)

// Op names an aggregate or window operation.
type Op string

const (
	OpCount    Op = "count"
	OpValid    Op = "valid"
	OpMissing  Op = "missing"
	OpSum      Op = "sum"
	OpMean     Op = "mean"
	OpAverage  Op = "average"
	OpDistinct Op = "distinct"
	OpMin      Op = "min"
	OpMax      Op = "max"

	// Window-only operations.
	OpRowNumber  Op = "row_number"
	OpRank       Op = "rank"
	OpDenseRank  Op = "dense_rank"
	OpFirstValue Op = "first_value"
	OpLastValue  Op = "last_value"
)

// AggregateOps is the set of operations accepted by Aggregate and
// JoinAggregate.
var AggregateOps = map[Op]bool{
	OpCount:    true,
	OpValid:    true,
	OpMissing:  true,
	OpSum:      true,
	OpMean:     true,
	OpAverage:  true,
	OpDistinct: true,
	OpMin:      true,
	OpMax:      true,
}

// WindowOps is the set of operations accepted by Window.
var WindowOps = map[Op]bool{
	OpCount:      true,
	OpValid:      true,
	OpMissing:    true,
	OpSum:        true,
	OpMean:       true,
	OpAverage:    true,
	OpDistinct:   true,
	OpMin:        true,
	OpMax:        true,
	OpRowNumber:  true,
	OpRank:       true,
	OpDenseRank:  true,
	OpFirstValue: true,
	OpLastValue:  true,
}

// NeedsField reports whether the operation reads a source field.
func (o Op) NeedsField() bool {
	switch o {
	case OpCount, OpRowNumber, OpRank, OpDenseRank:
		return false
	}
	return true
}

// requiresValues reports whether the operation is undefined over zero
// valid values.
func (o Op) requiresValues() bool {
	switch o {
	case OpMean, OpAverage, OpMin, OpMax:
		return true
	}
	return false
}

// numbers extracts the valid numeric values of field. Values that are
// missing, null, or coerce to NaN are skipped.
func numbers(rows []ir.Row, field string) []float64 {
	xs := make([]float64, 0, len(rows))
	for _, r := range rows {
		v, ok := r[field]
		if !ok || !ir.IsValid(v) {
			continue
		}
		f := ir.ToNumber(v)
		if math.IsNaN(f) {
			continue
		}
		xs = append(xs, f)
	}
	return xs
}

// reduce applies a summarizing operation to rows. ok is false when the
// operation needs at least one valid value and rows have none.
func reduce(op Op, field string, rows []ir.Row) (v ir.Value, ok bool) {
	switch op {
	case OpCount:
		return ir.Number(len(rows)), true

	case OpValid, OpMissing:
		valid := 0
		for _, r := range rows {
			if fv, present := r[field]; present && ir.IsValid(fv) {
				valid++
			}
		}
		if op == OpValid {
			return ir.Number(valid), true
		}
		return ir.Number(len(rows) - valid), true

	case OpSum:
		sum := 0.0
		for _, x := range numbers(rows, field) {
			sum += x
		}
		return ir.Number(sum), true

	case OpMean, OpAverage:
		xs := numbers(rows, field)
		if len(xs) == 0 {
			return ir.Null{}, false
		}
		return ir.Number(stats.Mean(xs)), true

	case OpMin, OpMax:
		xs := numbers(rows, field)
		if len(xs) == 0 {
			return ir.Null{}, false
		}
		lo, hi := stats.Bounds(xs)
		if op == OpMin {
			return ir.Number(lo), true
		}
		return ir.Number(hi), true

	case OpDistinct:
		seen := make(map[string]bool)
		for _, r := range rows {
			if fv, present := r[field]; present && ir.IsValid(fv) {
				seen[ir.Key(fv)] = true
			}
		}
		return ir.Number(len(seen)), true
	}
	return ir.Null{}, true
}

// groupKey returns the grouping tuple of row and its string key. Missing
// groupby fields group as null.
func groupKey(row ir.Row, groupBy []string) ([]ir.Value, string) {
	vals := make([]ir.Value, len(groupBy))
	for i, f := range groupBy {
		v, ok := row[f]
		if !ok || v == nil {
			v = ir.Null{}
		}
		vals[i] = v
	}
	return vals, ir.TupleKey(vals)
}

type group struct {
	key  string
	vals []ir.Value
	rows []ir.Row
	idx  []int // input positions of rows
}

// partition groups rows by groupBy in first-seen order.
func partition(rows []ir.Row, groupBy []string) []*group {
	var groups []*group
	byKey := make(map[string]*group)
	for i, r := range rows {
		vals, key := groupKey(r, groupBy)
		g, ok := byKey[key]
		if !ok {
			g = &group{key: key, vals: vals}
			byKey[key] = g
			groups = append(groups, g)
		}
		g.rows = append(g.rows, r)
		g.idx = append(g.idx, i)
	}
	return groups
}

// describeGroup renders a group tuple for error messages.
func describeGroup(groupBy []string, vals []ir.Value) string {
	if len(groupBy) == 0 {
		return ""
	}
	obj := make(ir.Object, len(groupBy))
	for i, f := range groupBy {
		obj[f] = vals[i]
	}
	data, err := ir.MarshalCanonical(obj)
	if err != nil {
		return ""
	}
	return string(data)
}
