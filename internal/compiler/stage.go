package compiler

import (
	"fmt"

	"cuelang.org/go/cue"

	"github.com/roach88/chartflow/internal/ir"
)

// stageKeys lists the field that names each stage kind, in the order they
// are probed. A transform entry must carry exactly one of them.
var stageKeys = []string{
	ir.StageFilter,
	ir.StageCalculate,
	ir.StageAggregate,
	ir.StageJoinAggregate,
	ir.StageWindow,
	ir.StageImpute,
	ir.StageLookup,
}

// parseStages extracts the transform list at path.
func parseStages(v cue.Value, path string) ([]ir.StageSpec, error) {
	var stages []ir.StageSpec

	listVal := v.LookupPath(cue.ParsePath(path))
	if !listVal.Exists() {
		return stages, nil
	}

	iter, err := listVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	for i := 0; iter.Next(); i++ {
		stage, err := parseStage(iter.Value(), fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		stages = append(stages, stage)
	}
	return stages, nil
}

// parseStage decodes one transform entry. The entry's kind is the single
// stage key it contains, e.g. {filter: "datum.Rating > 3"}.
func parseStage(v cue.Value, field string) (ir.StageSpec, error) {
	var kind string
	for _, k := range stageKeys {
		if v.LookupPath(cue.ParsePath(k)).Exists() {
			if kind != "" {
				return ir.StageSpec{}, &CompileError{
					Field:   field,
					Message: fmt.Sprintf("transform has both %q and %q", kind, k),
					Pos:     v.Pos(),
				}
			}
			kind = k
		}
	}
	if kind == "" {
		return ir.StageSpec{}, &CompileError{
			Field:   field,
			Message: "transform names no known stage",
			Pos:     v.Pos(),
		}
	}

	spec := ir.StageSpec{Kind: kind}
	var err error

	switch kind {
	case ir.StageFilter:
		spec.Expr, err = requiredString(v, kind, field)
	case ir.StageCalculate:
		if spec.Expr, err = requiredString(v, kind, field); err != nil {
			return spec, err
		}
		spec.As, err = requiredString(v, "as", field)
	case ir.StageAggregate, ir.StageJoinAggregate:
		if spec.Ops, err = parseOps(v, kind, field); err != nil {
			return spec, err
		}
		spec.GroupBy, err = optionalStrings(v, "groupby")
	case ir.StageWindow:
		if spec.Ops, err = parseOps(v, kind, field); err != nil {
			return spec, err
		}
		if spec.GroupBy, err = optionalStrings(v, "groupby"); err != nil {
			return spec, err
		}
		if spec.Frame, err = parseFrame(v, field); err != nil {
			return spec, err
		}
		spec.Sort, err = parseSort(v, field)
	case ir.StageImpute:
		err = parseImpute(v, field, &spec)
	case ir.StageLookup:
		err = parseLookup(v, field, &spec)
	}
	return spec, err
}

func requiredString(v cue.Value, path, field string) (string, error) {
	sv := v.LookupPath(cue.ParsePath(path))
	if !sv.Exists() {
		return "", &CompileError{
			Field:   field + "." + path,
			Message: path + " is required",
			Pos:     v.Pos(),
		}
	}
	s, err := sv.String()
	if err != nil {
		return "", &CompileError{
			Field:   field + "." + path,
			Message: "must be a string",
			Pos:     sv.Pos(),
		}
	}
	return s, nil
}

// parseOps reads a list of {op, field, as}.
func parseOps(v cue.Value, path, field string) ([]ir.OpSpec, error) {
	iter, err := v.LookupPath(cue.ParsePath(path)).List()
	if err != nil {
		return nil, &CompileError{
			Field:   field + "." + path,
			Message: "must be a list of operations",
			Pos:     v.Pos(),
		}
	}

	var ops []ir.OpSpec
	for i := 0; iter.Next(); i++ {
		ov := iter.Value()
		opField := fmt.Sprintf("%s.%s[%d]", field, path, i)

		var op ir.OpSpec
		if op.Op, err = requiredString(ov, "op", opField); err != nil {
			return nil, err
		}
		if op.Field, err = optionalString(ov, "field"); err != nil {
			return nil, err
		}
		if op.As, err = requiredString(ov, "as", opField); err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, nil
}

// parseFrame reads frame: [before, after] where null is unbounded.
func parseFrame(v cue.Value, field string) (*ir.FrameSpec, error) {
	fv := v.LookupPath(cue.ParsePath("frame"))
	if !fv.Exists() {
		return nil, nil
	}

	val, err := toValue(fv)
	if err != nil {
		return nil, err
	}
	list, ok := val.(ir.List)
	if !ok || len(list) != 2 {
		return nil, &CompileError{
			Field:   field + ".frame",
			Message: "frame must be a list of two offsets",
			Pos:     fv.Pos(),
		}
	}

	bound := func(b ir.Value) (*int, error) {
		switch b := b.(type) {
		case ir.Null:
			return nil, nil
		case ir.Number:
			n := int(b)
			if float64(n) != float64(b) {
				return nil, fmt.Errorf("offset %v is not an integer", float64(b))
			}
			return &n, nil
		}
		return nil, fmt.Errorf("offset must be a number or null, got %s", ir.ToString(b))
	}

	frame := &ir.FrameSpec{}
	if frame.Before, err = bound(list[0]); err != nil {
		return nil, &CompileError{Field: field + ".frame", Message: err.Error(), Pos: fv.Pos()}
	}
	if frame.After, err = bound(list[1]); err != nil {
		return nil, &CompileError{Field: field + ".frame", Message: err.Error(), Pos: fv.Pos()}
	}
	return frame, nil
}

// parseSort reads sort: [{field, order}].
func parseSort(v cue.Value, field string) ([]ir.SortSpec, error) {
	sv := v.LookupPath(cue.ParsePath("sort"))
	if !sv.Exists() {
		return nil, nil
	}

	iter, err := sv.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var keys []ir.SortSpec
	for i := 0; iter.Next(); i++ {
		kv := iter.Value()
		keyField := fmt.Sprintf("%s.sort[%d]", field, i)

		var key ir.SortSpec
		if key.Field, err = requiredString(kv, "field", keyField); err != nil {
			return nil, err
		}
		if key.Order, err = optionalString(kv, "order"); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// parseImpute reads {impute, key, value, method, keyvals, groupby}.
// keyvals is either a list or a {start, stop, step} sequence.
func parseImpute(v cue.Value, field string, spec *ir.StageSpec) error {
	var err error
	if spec.Field, err = requiredString(v, ir.StageImpute, field); err != nil {
		return err
	}
	if spec.Key, err = requiredString(v, "key", field); err != nil {
		return err
	}
	if spec.Method, err = optionalString(v, "method"); err != nil {
		return err
	}
	if spec.GroupBy, err = optionalStrings(v, "groupby"); err != nil {
		return err
	}

	if vv := v.LookupPath(cue.ParsePath("value")); vv.Exists() {
		if spec.Value, err = toValue(vv); err != nil {
			return err
		}
	}

	kv := v.LookupPath(cue.ParsePath("keyvals"))
	if !kv.Exists() {
		return nil
	}
	if kv.LookupPath(cue.ParsePath("stop")).Exists() {
		seq := &ir.SequenceSpec{}
		if start, err := optionalFloat(kv, "start"); err != nil {
			return err
		} else if start != nil {
			seq.Start = *start
		}
		stop, err := optionalFloat(kv, "stop")
		if err != nil {
			return err
		}
		seq.Stop = *stop
		if step, err := optionalFloat(kv, "step"); err != nil {
			return err
		} else if step != nil {
			seq.Step = *step
		}
		spec.Sequence = seq
		return nil
	}

	val, err := toValue(kv)
	if err != nil {
		return err
	}
	list, ok := val.(ir.List)
	if !ok {
		return &CompileError{
			Field:   field + ".keyvals",
			Message: "keyvals must be a list or a {start, stop, step} sequence",
			Pos:     kv.Pos(),
		}
	}
	spec.KeyVals = list
	return nil
}

// parseLookup reads {lookup, from: {data, key, fields}, as, default}.
func parseLookup(v cue.Value, field string, spec *ir.StageSpec) error {
	var err error
	if spec.Lookup, err = requiredString(v, ir.StageLookup, field); err != nil {
		return err
	}

	fromVal := v.LookupPath(cue.ParsePath("from"))
	if !fromVal.Exists() {
		return &CompileError{
			Field:   field + ".from",
			Message: "lookup requires from",
			Pos:     v.Pos(),
		}
	}

	from := &ir.LookupFrom{}
	dataVal := fromVal.LookupPath(cue.ParsePath("data"))
	if !dataVal.Exists() {
		return &CompileError{
			Field:   field + ".from.data",
			Message: "lookup requires from.data",
			Pos:     fromVal.Pos(),
		}
	}
	if from.Data, err = parseDataRef(dataVal, field+".from.data"); err != nil {
		return err
	}
	if from.Key, err = requiredString(fromVal, "key", field+".from"); err != nil {
		return err
	}
	if from.Fields, err = optionalStrings(fromVal, "fields"); err != nil {
		return err
	}
	if from.As, err = optionalStrings(v, "as"); err != nil {
		return err
	}
	if dv := v.LookupPath(cue.ParsePath("default")); dv.Exists() {
		if from.Default, err = toValue(dv); err != nil {
			return err
		}
	}

	spec.From = from
	return nil
}
