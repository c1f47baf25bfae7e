package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/chartflow/internal/channel"
	"github.com/roach88/chartflow/internal/expr"
	"github.com/roach88/chartflow/internal/ir"
	"github.com/roach88/chartflow/internal/transform"
)

// Validation error codes (E100-E199)
const (
	// General validation errors (E100)
	ErrUnsupportedIRType = "E100" // unsupported IR type for validation

	// Chart structure errors (E101-E109)
	ErrChartNoLayers  = "E101" // at least one layer required
	ErrDuplicateName  = "E102" // duplicate layer/param name
	ErrMissingData    = "E103" // chart or layer without data
	ErrInvalidResolve = "E104" // unknown resolve channel or policy
	ErrMissingMark    = "E105" // layer without mark

	// Stage errors (E110-E119)
	ErrUnknownStage      = "E110" // unknown stage kind
	ErrInvalidExpression = "E111" // expression does not parse
	ErrUnknownOp         = "E112" // unknown aggregate/window op
	ErrInvalidFrame      = "E113" // negative frame offset
	ErrInvalidImpute     = "E114" // bad impute method or sequence
	ErrInvalidLookup     = "E115" // bad lookup declaration
	ErrMissingStageField = "E116" // required stage field empty

	// Parameter and channel errors (E120-E129)
	ErrUnknownParam   = "E120" // reference to an undeclared parameter
	ErrInvalidParam   = "E121" // bad binding or selection
	ErrInvalidChannel = "E122" // unknown role or conflicting field/value
	ErrInvalidFormat  = "E123" // unsupported number format
	ErrInvalidRule    = "E124" // bad conditional rule
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate validates a compiled chart against semantic rules.
// Returns all errors found (does not fail-fast).
func Validate(v any) []ValidationError {
	switch spec := v.(type) {
	case *ir.ChartSpec:
		return validateChartSpec(spec)
	case ir.ChartSpec:
		return validateChartSpec(&spec)
	default:
		return []ValidationError{{
			Field:   "type",
			Message: fmt.Sprintf("unsupported IR type: %T", v),
			Code:    ErrUnsupportedIRType,
		}}
	}
}

type validator struct {
	errs   []ValidationError
	params map[string]ir.ParamSpec
}

func (vd *validator) add(code, field, format string, args ...any) {
	vd.errs = append(vd.errs, ValidationError{
		Field:   field,
		Message: fmt.Sprintf(format, args...),
		Code:    code,
	})
}

func validateChartSpec(spec *ir.ChartSpec) []ValidationError {
	vd := &validator{params: make(map[string]ir.ParamSpec)}

	if len(spec.Layers) == 0 {
		vd.add(ErrChartNoLayers, "layer", "at least one layer is required")
	}

	// Parameters are global to the chart wherever they are declared.
	vd.collectParams(spec.Params, "params")
	for i, l := range spec.Layers {
		vd.collectParams(l.Params, fmt.Sprintf("layer[%d].params", i))
	}

	vd.validateStages(spec.Transform, "transform")

	layerNames := make(map[string]bool)
	for i, l := range spec.Layers {
		field := fmt.Sprintf("layer[%d]", i)
		if layerNames[l.Name] {
			vd.add(ErrDuplicateName, field+".name", "duplicate layer name: %q", l.Name)
		}
		layerNames[l.Name] = true

		if spec.Data.IsZero() && l.Data.IsZero() {
			vd.add(ErrMissingData, field+".data", "layer %q has no data and the chart declares none", l.Name)
		}
		if strings.TrimSpace(l.Mark) == "" {
			vd.add(ErrMissingMark, field+".mark", "layer %q has no mark", l.Name)
		}

		vd.validateStages(l.Transform, field+".transform")
		for _, ch := range l.Encoding {
			vd.validateChannel(ch, fmt.Sprintf("%s.encoding.%s", field, ch.Role))
		}
	}

	for key, policy := range spec.Resolve {
		if key != string(channel.KindPosition) && !channel.Role(key).Known() {
			vd.add(ErrInvalidResolve, "resolve.scale."+key, "unknown channel %q", key)
		}
		if policy != "shared" && policy != "independent" {
			vd.add(ErrInvalidResolve, "resolve.scale."+key, "invalid policy %q, must be \"shared\" or \"independent\"", policy)
		}
	}

	return vd.errs
}

func (vd *validator) collectParams(params []ir.ParamSpec, path string) {
	for i, p := range params {
		field := fmt.Sprintf("%s[%d]", path, i)
		if _, dup := vd.params[p.Name]; dup {
			vd.add(ErrDuplicateName, field+".name", "duplicate parameter name: %q", p.Name)
			continue
		}
		vd.params[p.Name] = p

		def, err := paramDefinition(p)
		if err != nil {
			vd.add(ErrInvalidParam, field, "%v", err)
			continue
		}
		if err := def.Validate(); err != nil {
			vd.add(ErrInvalidParam, field, "%v", err)
		}
	}
}

func (vd *validator) checkExpr(src, field string) {
	e, err := expr.Parse(src)
	if err != nil {
		vd.add(ErrInvalidExpression, field, "%v", err)
		return
	}
	for _, name := range e.Params() {
		if _, ok := vd.params[name]; !ok {
			vd.add(ErrUnknownParam, field, "undeclared parameter %q in expression %q", name, src)
		}
	}
}

func (vd *validator) validateStages(stages []ir.StageSpec, path string) {
	for i, s := range stages {
		field := fmt.Sprintf("%s[%d]", path, i)
		if !ir.ValidStageKinds[s.Kind] {
			vd.add(ErrUnknownStage, field, "unknown stage kind %q", s.Kind)
			continue
		}

		switch s.Kind {
		case ir.StageFilter:
			vd.checkExpr(s.Expr, field+".filter")
		case ir.StageCalculate:
			vd.checkExpr(s.Expr, field+".calculate")
			if s.As == "" {
				vd.add(ErrMissingStageField, field+".as", "calculate requires as")
			}
		case ir.StageAggregate, ir.StageJoinAggregate:
			vd.validateOps(s.Ops, transform.AggregateOps, field+"."+s.Kind)
		case ir.StageWindow:
			if len(s.Ops) == 0 {
				vd.add(ErrMissingStageField, field+".window", "window requires at least one op")
			}
			vd.validateOps(s.Ops, transform.WindowOps, field+".window")
			if s.Frame != nil {
				if (s.Frame.Before != nil && *s.Frame.Before < 0) || (s.Frame.After != nil && *s.Frame.After < 0) {
					vd.add(ErrInvalidFrame, field+".frame", "frame offsets must be non-negative or null")
				}
			}
			for j, k := range s.Sort {
				if k.Order != "" && k.Order != "ascending" && k.Order != "descending" {
					vd.add(ErrMissingStageField, fmt.Sprintf("%s.sort[%d].order", field, j), "invalid order %q", k.Order)
				}
			}
		case ir.StageImpute:
			switch transform.ImputeMethod(s.Method) {
			case "", transform.ImputeValue, transform.ImputeMean, transform.ImputeMin, transform.ImputeMax:
			default:
				vd.add(ErrInvalidImpute, field+".method", "unknown impute method %q", s.Method)
			}
			if s.Sequence != nil {
				if s.Sequence.Step < 0 && s.Sequence.Start < s.Sequence.Stop ||
					s.Sequence.Step > 0 && s.Sequence.Start > s.Sequence.Stop {
					vd.add(ErrInvalidImpute, field+".keyvals", "sequence step %v never reaches stop %v", s.Sequence.Step, s.Sequence.Stop)
				} else if transform.SequenceLen(s.Sequence.Start, s.Sequence.Stop, s.Sequence.Step) > transform.MaxSequenceLen {
					vd.add(ErrInvalidImpute, field+".keyvals", "sequence exceeds %d values", transform.MaxSequenceLen)
				}
			}
		case ir.StageLookup:
			if s.From == nil {
				vd.add(ErrInvalidLookup, field+".from", "lookup requires from")
				continue
			}
			if len(s.From.Fields) == 0 {
				vd.add(ErrInvalidLookup, field+".from.fields", "lookup must import at least one field")
			}
			if len(s.From.As) > 0 && len(s.From.As) != len(s.From.Fields) {
				vd.add(ErrInvalidLookup, field+".as", "as has %d names for %d fields", len(s.From.As), len(s.From.Fields))
			}
			if s.From.Data.IsZero() {
				vd.add(ErrInvalidLookup, field+".from.data", "lookup needs a named or inline secondary table")
			}
		}
	}
}

func (vd *validator) validateOps(ops []ir.OpSpec, known map[transform.Op]bool, field string) {
	for j, op := range ops {
		opField := fmt.Sprintf("%s[%d]", field, j)
		o := transform.Op(op.Op)
		if !known[o] {
			vd.add(ErrUnknownOp, opField+".op", "unknown op %q", op.Op)
			continue
		}
		if o.NeedsField() && op.Field == "" {
			vd.add(ErrMissingStageField, opField+".field", "op %q requires a field", op.Op)
		}
		if op.As == "" {
			vd.add(ErrMissingStageField, opField+".as", "op %q requires as", op.Op)
		}
	}
}

func (vd *validator) validateChannel(ch ir.ChannelSpec, field string) {
	if !channel.Role(ch.Role).Known() {
		vd.add(ErrInvalidChannel, field, "unknown channel %q", ch.Role)
		return
	}
	if ch.Field != "" && ch.Value != nil {
		vd.add(ErrInvalidChannel, field, "field and value are mutually exclusive")
	}
	switch ch.Type {
	case "", channel.TypeQuantitative, channel.TypeNominal, channel.TypeOrdinal, channel.TypeTemporal:
	default:
		vd.add(ErrInvalidChannel, field+".type", "unknown type %q", ch.Type)
	}
	if ch.Format != "" && !channel.ValidFormat(ch.Format) {
		vd.add(ErrInvalidFormat, field+".format", "unsupported format %q", ch.Format)
	}
	for i, t := range ch.Tooltip {
		if t.Format != "" && !channel.ValidFormat(t.Format) {
			vd.add(ErrInvalidFormat, fmt.Sprintf("%s[%d].format", field, i), "unsupported format %q", t.Format)
		}
	}

	for i, r := range ch.Conditions {
		rf := fmt.Sprintf("%s.condition[%d]", field, i)
		if (r.Test == "") == (r.Param == "") {
			vd.add(ErrInvalidRule, rf, "condition needs exactly one of test and param")
			continue
		}
		if r.Test != "" {
			vd.checkExpr(r.Test, rf+".test")
		}
		if r.Param != "" {
			p, ok := vd.params[r.Param]
			switch {
			case !ok:
				vd.add(ErrUnknownParam, rf+".param", "undeclared parameter %q", r.Param)
			case p.Select == nil:
				vd.add(ErrInvalidRule, rf+".param", "parameter %q is not a selection", r.Param)
			}
		}
		if r.Empty != "" && r.Empty != "all" && r.Empty != "none" {
			vd.add(ErrInvalidRule, rf+".empty", "invalid empty policy %q", r.Empty)
		}
		if r.Field != "" && r.Value != nil {
			vd.add(ErrInvalidRule, rf, "field and value are mutually exclusive")
		}
	}
}
