package transform

import (
	"log/slog"

	"github.com/roach88/chartflow/internal/expr"
	"github.com/roach88/chartflow/internal/ir"
)

// runFilter keeps rows whose predicate is truthy, preserving order.
// Evaluation failures exclude the row rather than failing the stage, so
// sparse source data passes through filters unharmed.
func runFilter(s Filter, in ir.Table, scope expr.Scope) ir.Table {
	out := ir.Table{Fields: in.Fields, Rows: make([]ir.Row, 0, len(in.Rows))}
	failed := 0
	for _, r := range in.Rows {
		ok, err := s.Predicate.Test(r, scope)
		if err != nil {
			failed++
			continue
		}
		if ok {
			out.Rows = append(out.Rows, r)
		}
	}
	if failed > 0 {
		slog.Debug("filter excluded rows on evaluation failure",
			"expr", s.Predicate.String(),
			"rows", failed,
		)
	}
	return out
}

// runDerive evaluates Expr for every row into a copy with field As set.
func runDerive(s Derive, in ir.Table, scope expr.Scope) (ir.Table, error) {
	if err := requireFields(s.Kind(), in, s.Expr.Fields()...); err != nil {
		return ir.Table{}, err
	}
	out := ir.Table{Fields: in.WithField(s.As), Rows: make([]ir.Row, len(in.Rows))}
	for i, r := range in.Rows {
		v, err := s.Expr.Eval(r, scope)
		if err != nil {
			return ir.Table{}, err
		}
		nr := r.Clone()
		nr[s.As] = v
		out.Rows[i] = nr
	}
	return out, nil
}
