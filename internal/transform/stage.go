package transform

import (
	"math"
	"strconv"
	"strings"

	"github.com/roach88/chartflow/internal/expr"
	"github.com/roach88/chartflow/internal/ir"
)

// Stage is a sealed interface over the fixed operator set.
// Only Filter, Derive, Aggregate, Window, Impute, Lookup and JoinAggregate
// implement it; Pipeline dispatches on the concrete type.
type Stage interface {
	stage() // Sealed - only the operator types below implement it
	Kind() string
}

// Filter keeps rows whose predicate is truthy. A row whose predicate fails
// to evaluate is excluded.
type Filter struct {
	Predicate *expr.Expr
}

// Derive adds or overwrites field As with the value of Expr on every row.
type Derive struct {
	As   string
	Expr *expr.Expr
}

// Aggregate collapses rows to one per distinct GroupBy tuple, in first-seen
// order.
type Aggregate struct {
	Ops     []AggOp
	GroupBy []string
}

// JoinAggregate computes the same per-group values as Aggregate and appends
// them to every row of the group.
type JoinAggregate struct {
	Ops     []AggOp
	GroupBy []string
}

// AggOp computes one output field from a source field. Field is unused by
// count.
type AggOp struct {
	Op    Op
	Field string
	As    string
}

// Window computes running or framed values over a stably sorted copy of
// each partition, writing results without reordering rows.
type Window struct {
	Ops     []WindowOp
	Frame   Frame
	Sort    []SortKey
	GroupBy []string
}

// WindowOp computes one output field per row.
type WindowOp struct {
	Op    Op
	Field string
	As    string
}

// Frame bounds a window relative to the current row. A nil endpoint is
// unbounded; Frame{Before: nil, After: Offset(0)} is cumulative.
type Frame struct {
	Before *int
	After  *int
}

// Offset returns a pointer to n, for building frames.
func Offset(n int) *int {
	return &n
}

// CumulativeFrame returns the frame [null, 0].
func CumulativeFrame() Frame {
	return Frame{After: Offset(0)}
}

// SortKey orders rows by Field.
type SortKey struct {
	Field      string
	Descending bool
}

// Impute inserts rows for (key, group) combinations missing from the input.
// The key domain is the observed key values in first-seen order followed by
// any KeyVals not observed.
type Impute struct {
	Field   string
	Key     string
	GroupBy []string
	KeyVals []ir.Value
	Method  ImputeMethod
	Value   ir.Value
}

// ImputeMethod selects how the fill value is computed.
type ImputeMethod string

const (
	ImputeValue ImputeMethod = "value"
	ImputeMean  ImputeMethod = "mean"
	ImputeMin   ImputeMethod = "min"
	ImputeMax   ImputeMethod = "max"
)

// Lookup left-joins Fields from the secondary table From, matching the
// primary row's Field against the secondary Key. As renames imported fields
// position by position. Unmatched rows receive Default (Null when unset).
//
// Source names a dataset to read From out of; Pipeline.Bind fills it in.
type Lookup struct {
	Field   string
	Source  string
	From    ir.Table
	Key     string
	Fields  []string
	As      []string
	Default ir.Value
}

func (Filter) stage()        {}
func (Derive) stage()        {}
func (Aggregate) stage()     {}
func (JoinAggregate) stage() {}
func (Window) stage()        {}
func (Impute) stage()        {}
func (Lookup) stage()        {}

// Kind returns the declaration name of the stage.
func (Filter) Kind() string        { return ir.StageFilter }
func (Derive) Kind() string        { return ir.StageCalculate }
func (Aggregate) Kind() string     { return ir.StageAggregate }
func (JoinAggregate) Kind() string { return ir.StageJoinAggregate }
func (Window) Kind() string        { return ir.StageWindow }
func (Impute) Kind() string        { return ir.StageImpute }
func (Lookup) Kind() string        { return ir.StageLookup }

// outputNames returns the As names of the imported fields.
func (l Lookup) outputNames() []string {
	if len(l.As) > 0 {
		return l.As
	}
	return l.Fields
}

// MaxSequenceLen bounds the number of values Sequence produces.
const MaxSequenceLen = 1 << 16

// SequenceLen returns how many values Sequence(start, stop, step) yields
// before capping. A zero step is 1; a step pointing away from stop or any
// non-finite argument yields 0.
func SequenceLen(start, stop, step float64) int {
	if step == 0 {
		step = 1
	}
	q := (stop - start) / step
	if math.IsNaN(q) || math.IsInf(q, 0) || q <= 0 {
		return 0
	}
	// A quotient within rounding noise of an integer counts as that integer.
	if r := math.Round(q); math.Abs(q-r) < 1e-9*math.Max(1, r) {
		q = r
	}
	if q > MaxSequenceLen {
		return MaxSequenceLen + 1
	}
	return int(math.Ceil(q))
}

// Sequence returns start+i*step for each i below SequenceLen, at most
// MaxSequenceLen values. Each value is rounded to the decimal precision of
// start and step so fractional steps yield clean keys. A zero step is 1.
func Sequence(start, stop, step float64) []ir.Value {
	if step == 0 {
		step = 1
	}
	n := min(SequenceLen(start, stop, step), MaxSequenceLen)
	if n == 0 {
		return nil
	}
	scale := math.Pow10(max(decimals(start), decimals(step)))
	out := make([]ir.Value, n)
	for i := range out {
		v := start + float64(i)*step
		if r := math.Round(v*scale) / scale; !math.IsInf(r, 0) {
			v = r
		}
		out[i] = ir.Number(v)
	}
	return out
}

// decimals returns the number of fractional digits in the shortest
// decimal form of x, capped at 15.
func decimals(x float64) int {
	s := strconv.FormatFloat(math.Abs(x), 'f', -1, 64)
	dot := strings.IndexByte(s, '.')
	if dot < 0 {
		return 0
	}
	return min(len(s)-dot-1, 15)
}

// StageParams returns the parameter names a stage reads.
func StageParams(s Stage) []string {
	switch s := s.(type) {
	case Filter:
		return s.Predicate.Params()
	case Derive:
		return s.Expr.Params()
	}
	return nil
}
