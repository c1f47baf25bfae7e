package transform

import (
	"slices"

	"github.com/roach88/chartflow/internal/ir"
)

// runWindow partitions rows by GroupBy, stably sorts a copy of each
// partition by Sort (ties keep input order), computes every op over the
// frame around each row, and writes results back at the rows' original
// positions.
func runWindow(s Window, in ir.Table) (ir.Table, error) {
	required := slices.Clone(s.GroupBy)
	for _, k := range s.Sort {
		required = append(required, k.Field)
	}
	for _, op := range s.Ops {
		if op.Op.NeedsField() {
			required = append(required, op.Field)
		}
	}
	if err := requireFields(s.Kind(), in, required...); err != nil {
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
		order := make([]int, len(g.rows))
		for i := range order {
			order[i] = i
		}
		slices.SortStableFunc(order, func(a, b int) int {
			return compareBy(s.Sort, g.rows[a], g.rows[b])
		})
		sorted := make([]ir.Row, len(order))
		for i, j := range order {
			sorted[i] = g.rows[j]
		}

		results := computeWindow(s, sorted)
		for i, j := range order {
			nr := g.rows[j].Clone()
			for k, v := range results[i] {
				nr[k] = v
			}
			out.Rows[g.idx[j]] = nr
		}
	}
	return out, nil
}

// compareBy orders two rows by the sort keys. Missing fields sort as null.
func compareBy(keys []SortKey, a, b ir.Row) int {
	for _, k := range keys {
		av, ok := a[k.Field]
		if !ok {
			av = ir.Null{}
		}
		bv, ok := b[k.Field]
		if !ok {
			bv = ir.Null{}
		}
		c := ir.Compare(av, bv)
		if k.Descending {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	return 0
}

// computeWindow returns, for each position of the sorted partition, the
// op outputs for that row. rank and dense_rank compare rows by the sort
// fields, so without a sort every row ties at rank 1.
func computeWindow(s Window, sorted []ir.Row) []ir.Row {
	n := len(sorted)
	results := make([]ir.Row, n)
	for i := range results {
		results[i] = make(ir.Row, len(s.Ops))
	}

	for _, op := range s.Ops {
		switch op.Op {
		case OpRowNumber:
			for i := range sorted {
				results[i][op.As] = ir.Number(i + 1)
			}

		case OpRank, OpDenseRank:
			rank, dense := 1, 1
			for i := range sorted {
				if i > 0 && compareBy(s.Sort, sorted[i-1], sorted[i]) != 0 {
					rank = i + 1
					dense++
				}
				if op.Op == OpRank {
					results[i][op.As] = ir.Number(rank)
				} else {
					results[i][op.As] = ir.Number(dense)
				}
			}

		case OpSum:
			// Prefix sums keep cumulative frames linear.
			prefix := make([]float64, n+1)
			for i, r := range sorted {
				prefix[i+1] = prefix[i]
				if xs := numbers([]ir.Row{r}, op.Field); len(xs) == 1 {
					prefix[i+1] += xs[0]
				}
			}
			for i := range sorted {
				lo, hi := frameBounds(s.Frame, i, n)
				results[i][op.As] = ir.Number(prefix[hi] - prefix[lo])
			}

		case OpFirstValue, OpLastValue:
			for i := range sorted {
				lo, hi := frameBounds(s.Frame, i, n)
				if lo >= hi {
					results[i][op.As] = ir.Null{}
					continue
				}
				src := sorted[lo]
				if op.Op == OpLastValue {
					src = sorted[hi-1]
				}
				v, ok := src[op.Field]
				if !ok || v == nil {
					v = ir.Null{}
				}
				results[i][op.As] = v
			}

		default:
			for i := range sorted {
				lo, hi := frameBounds(s.Frame, i, n)
				v, _ := reduce(op.Op, op.Field, sorted[lo:hi])
				results[i][op.As] = v
			}
		}
	}
	return results
}

// frameBounds returns the half-open index range [lo, hi) of the frame
// around position i in a partition of n rows.
func frameBounds(f Frame, i, n int) (lo, hi int) {
	lo, hi = 0, n
	// Offsets may be as large as the declaration allows; compare before
	// adding so the bounds cannot overflow.
	if f.Before != nil && *f.Before < i {
		lo = i - *f.Before
	}
	if f.After != nil && *f.After < n-i-1 {
		hi = i + *f.After + 1
	}
	return lo, hi
}
