package transform

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/chartflow/internal/expr"
	"github.com/roach88/chartflow/internal/ir"
)

// Pipeline is an ordered, immutable list of stages.
type Pipeline struct {
	stages []Stage
	params []string
}

// Result is the output of one pipeline run.
type Result struct {
	Table ir.Table

	// Warnings are non-fatal anomalies, such as lookup key ambiguity.
	Warnings []error
}

// New validates stage definitions and returns a pipeline that runs them in
// the given order.
func New(stages ...Stage) (*Pipeline, error) {
	p := &Pipeline{stages: slices.Clone(stages)}
	seen := make(map[string]bool)
	for i, s := range stages {
		if err := validateStage(i, s); err != nil {
			return nil, err
		}
		for _, name := range StageParams(s) {
			if !seen[name] {
				seen[name] = true
				p.params = append(p.params, name)
			}
		}
	}
	return p, nil
}

// MustNew is like New but panics on error.
// Use only in tests or when stages are known to be valid.
func MustNew(stages ...Stage) *Pipeline {
	p, err := New(stages...)
	if err != nil {
		panic(err)
	}
	return p
}

// Stages returns the stages in execution order.
func (p *Pipeline) Stages() []Stage {
	return slices.Clone(p.stages)
}

// Len returns the number of stages.
func (p *Pipeline) Len() int {
	return len(p.stages)
}

// Params returns the parameter names any stage reads, in first-reference
// order.
func (p *Pipeline) Params() []string {
	return slices.Clone(p.params)
}

// Sources returns the dataset names that lookup stages read, in stage
// order, without duplicates.
func (p *Pipeline) Sources() []string {
	var out []string
	for _, s := range p.stages {
		if l, ok := s.(Lookup); ok && l.Source != "" && !slices.Contains(out, l.Source) {
			out = append(out, l.Source)
		}
	}
	return out
}

// Bind returns a copy of p with every named lookup reading its secondary
// table from tables. A source missing from tables is an
// *UnboundSourceError.
func (p *Pipeline) Bind(tables map[string]ir.Table) (*Pipeline, error) {
	out := &Pipeline{stages: slices.Clone(p.stages), params: slices.Clone(p.params)}
	for i, s := range out.stages {
		l, ok := s.(Lookup)
		if !ok || l.Source == "" {
			continue
		}
		t, ok := tables[l.Source]
		if !ok {
			return nil, &StageError{Index: i, Kind: l.Kind(), Err: &UnboundSourceError{Source: l.Source}}
		}
		if t.Len() > 0 && !t.HasField(l.Key) {
			return nil, &StageError{Index: i, Kind: l.Kind(), Err: &SchemaError{Stage: l.Kind(), Field: l.Key, Available: slices.Clone(t.Fields)}}
		}
		l.From = t
		out.stages[i] = l
	}
	return out, nil
}

// Then returns a new pipeline running p's stages followed by next's.
func (p *Pipeline) Then(next *Pipeline) *Pipeline {
	out := &Pipeline{stages: append(slices.Clone(p.stages), next.stages...)}
	seen := make(map[string]bool)
	for _, name := range append(slices.Clone(p.params), next.params...) {
		if !seen[name] {
			seen[name] = true
			out.params = append(out.params, name)
		}
	}
	return out
}

// Run executes the stages in order over in. The input table is never
// modified. scope supplies parameter values; callers pass one snapshot per
// recomputation pass.
func (p *Pipeline) Run(ctx context.Context, in ir.Table, scope expr.Scope) (*Result, error) {
	res := &Result{Table: in}
	for i, s := range p.stages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rowsIn := res.Table.Len()
		out, warnings, err := runStage(s, res.Table, scope)
		if err != nil {
			return nil, &StageError{Index: i, Kind: s.Kind(), Err: err}
		}
		res.Table = out
		res.Warnings = append(res.Warnings, warnings...)
		slog.Debug("stage completed",
			"stage", i,
			"kind", s.Kind(),
			"rows_in", rowsIn,
			"rows_out", out.Len(),
		)
	}
	return res, nil
}

// runStage dispatches on the closed set of stage types.
func runStage(s Stage, in ir.Table, scope expr.Scope) (ir.Table, []error, error) {
	switch s := s.(type) {
	case Filter:
		return runFilter(s, in, scope), nil, nil
	case Derive:
		out, err := runDerive(s, in, scope)
		return out, nil, err
	case Aggregate:
		out, err := runAggregate(s, in)
		return out, nil, err
	case JoinAggregate:
		out, err := runJoinAggregate(s, in)
		return out, nil, err
	case Window:
		out, err := runWindow(s, in)
		return out, nil, err
	case Impute:
		out, err := runImpute(s, in)
		return out, nil, err
	case Lookup:
		return runLookup(s, in)
	}
	return ir.Table{}, nil, fmt.Errorf("unknown stage type %T", s)
}

// requireFields fails with a SchemaError for the first field absent from
// the input schema.
func requireFields(kind string, in ir.Table, fields ...string) error {
	for _, f := range fields {
		if f == "" {
			continue
		}
		if !in.HasField(f) {
			return &SchemaError{Stage: kind, Field: f, Available: slices.Clone(in.Fields)}
		}
	}
	return nil
}

func validateStage(i int, s Stage) error {
	fail := func(format string, args ...any) error {
		return &DefinitionError{Index: i, Kind: s.Kind(), Message: fmt.Sprintf(format, args...)}
	}

	switch s := s.(type) {
	case Filter:
		if s.Predicate == nil {
			return fail("missing predicate")
		}
	case Derive:
		if s.Expr == nil {
			return fail("missing expression")
		}
		if s.As == "" {
			return fail("missing output field")
		}
	case Aggregate:
		return validateAggOps(s.Ops, fail)
	case JoinAggregate:
		return validateAggOps(s.Ops, fail)
	case Window:
		if len(s.Ops) == 0 {
			return fail("no operations")
		}
		for _, op := range s.Ops {
			if !WindowOps[op.Op] {
				return fail("unknown window op %q", op.Op)
			}
			if op.Op.NeedsField() && op.Field == "" {
				return fail("op %q requires a field", op.Op)
			}
			if op.As == "" {
				return fail("op %q missing output field", op.Op)
			}
		}
		if s.Frame.Before != nil && *s.Frame.Before < 0 {
			return fail("frame offsets must be non-negative")
		}
		if s.Frame.After != nil && *s.Frame.After < 0 {
			return fail("frame offsets must be non-negative")
		}
	case Impute:
		if s.Field == "" || s.Key == "" {
			return fail("field and key are required")
		}
		switch s.Method {
		case "", ImputeValue, ImputeMean, ImputeMin, ImputeMax:
		default:
			return fail("unknown method %q", s.Method)
		}
	case Lookup:
		if s.Field == "" || s.Key == "" {
			return fail("lookup field and key are required")
		}
		if len(s.Fields) == 0 {
			return fail("no fields to import")
		}
		if len(s.As) > 0 && len(s.As) != len(s.Fields) {
			return fail("as has %d names for %d fields", len(s.As), len(s.Fields))
		}
		if !s.From.HasField(s.Key) && s.From.Len() > 0 {
			return fail("secondary table has no key field %q", s.Key)
		}
	default:
		return fmt.Errorf("unknown stage type %T", s)
	}
	return nil
}

func validateAggOps(ops []AggOp, fail func(string, ...any) error) error {
	for _, op := range ops {
		if !AggregateOps[op.Op] {
			return fail("unknown aggregate op %q", op.Op)
		}
		if op.Op.NeedsField() && op.Field == "" {
			return fail("op %q requires a field", op.Op)
		}
		if op.As == "" {
			return fail("op %q missing output field", op.Op)
		}
	}
	return nil
}
