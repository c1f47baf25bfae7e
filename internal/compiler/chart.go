package compiler

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/chartflow/internal/ir"
)

// CompileChart parses a CUE value into a ChartSpec.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the chart struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`chart: ratings: { data: name: "reviews", layer: [...] }`)
//	spec, err := CompileChart(v.LookupPath(cue.ParsePath("chart.ratings")))
func CompileChart(v cue.Value) (*ir.ChartSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &ir.ChartSpec{}

	// Chart name is the struct label.
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		spec.Name = strings.Trim(labels[len(labels)-1].String(), `"`)
	}

	var err error
	if spec.Description, err = optionalString(v, "description"); err != nil {
		return nil, err
	}

	dataVal := v.LookupPath(cue.ParsePath("data"))
	if !dataVal.Exists() {
		return nil, &CompileError{
			Field:   "data",
			Message: "data is required",
			Pos:     v.Pos(),
		}
	}
	if spec.Data, err = parseDataRef(dataVal, "data"); err != nil {
		return nil, err
	}

	if spec.Params, err = parseParams(v, "params"); err != nil {
		return nil, err
	}
	if spec.Transform, err = parseStages(v, "transform"); err != nil {
		return nil, err
	}

	spec.Layers, err = parseLayers(v)
	if err != nil {
		return nil, err
	}
	if len(spec.Layers) == 0 {
		return nil, &CompileError{
			Field:   "layer",
			Message: "at least one layer is required",
			Pos:     v.Pos(),
		}
	}

	spec.Resolve, err = parseResolve(v)
	if err != nil {
		return nil, err
	}

	return spec, nil
}

// parseDataRef accepts {name: "..."} or {values: [...]}.
func parseDataRef(v cue.Value, field string) (ir.DataRef, error) {
	var ref ir.DataRef

	name, err := optionalString(v, "name")
	if err != nil {
		return ref, err
	}
	ref.Name = name

	valuesVal := v.LookupPath(cue.ParsePath("values"))
	if valuesVal.Exists() {
		val, err := toValue(valuesVal)
		if err != nil {
			return ref, err
		}
		list, ok := val.(ir.List)
		if !ok {
			return ref, &CompileError{
				Field:   field + ".values",
				Message: "values must be a list of objects",
				Pos:     valuesVal.Pos(),
			}
		}
		ref.Values = make([]ir.Object, 0, len(list))
		for _, elem := range list {
			obj, ok := elem.(ir.Object)
			if !ok {
				return ref, &CompileError{
					Field:   field + ".values",
					Message: fmt.Sprintf("values entry must be an object, got %s", ir.ToString(elem)),
					Pos:     valuesVal.Pos(),
				}
			}
			ref.Values = append(ref.Values, obj)
		}
	}

	if ref.IsZero() {
		return ref, &CompileError{
			Field:   field,
			Message: "data needs a name or values",
			Pos:     v.Pos(),
		}
	}
	return ref, nil
}

// parseLayers extracts the ordered layer list.
func parseLayers(v cue.Value) ([]ir.LayerSpec, error) {
	var layers []ir.LayerSpec

	layerVal := v.LookupPath(cue.ParsePath("layer"))
	if !layerVal.Exists() {
		return layers, nil
	}

	iter, err := layerVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	for i := 0; iter.Next(); i++ {
		lv := iter.Value()
		field := fmt.Sprintf("layer[%d]", i)

		layer := ir.LayerSpec{}
		if layer.Name, err = optionalString(lv, "name"); err != nil {
			return nil, err
		}
		if layer.Name == "" {
			layer.Name = fmt.Sprintf("layer%d", i)
		}

		dataVal := lv.LookupPath(cue.ParsePath("data"))
		if dataVal.Exists() {
			if layer.Data, err = parseDataRef(dataVal, field+".data"); err != nil {
				return nil, err
			}
		}

		if layer.Mark, err = parseMark(lv, field); err != nil {
			return nil, err
		}
		if layer.Transform, err = parseStages(lv, "transform"); err != nil {
			return nil, err
		}
		if layer.Params, err = parseParams(lv, "params"); err != nil {
			return nil, err
		}
		if layer.Encoding, err = parseEncoding(lv); err != nil {
			return nil, err
		}

		layers = append(layers, layer)
	}

	return layers, nil
}

// parseMark accepts a mark name or a struct with a type field. Styling
// properties of the struct form are ignored.
func parseMark(v cue.Value, field string) (string, error) {
	markVal := v.LookupPath(cue.ParsePath("mark"))
	if !markVal.Exists() {
		return "", &CompileError{
			Field:   field + ".mark",
			Message: "mark is required",
			Pos:     v.Pos(),
		}
	}
	if s, err := markVal.String(); err == nil {
		return s, nil
	}
	typeVal := markVal.LookupPath(cue.ParsePath("type"))
	if !typeVal.Exists() {
		return "", &CompileError{
			Field:   field + ".mark",
			Message: "mark must be a string or an object with a type field",
			Pos:     markVal.Pos(),
		}
	}
	s, err := typeVal.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

// parseResolve reads resolve.scale.<channel>: "shared" | "independent".
func parseResolve(v cue.Value) (map[string]string, error) {
	scaleVal := v.LookupPath(cue.ParsePath("resolve.scale"))
	if !scaleVal.Exists() {
		return nil, nil
	}

	iter, err := scaleVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	resolve := make(map[string]string)
	for iter.Next() {
		policy, err := iter.Value().String()
		if err != nil {
			return nil, &CompileError{
				Field:   "resolve.scale." + iter.Label(),
				Message: "policy must be a string",
				Pos:     iter.Value().Pos(),
			}
		}
		resolve[iter.Label()] = policy
	}
	return resolve, nil
}

// optionalString returns the string at path, or "" when absent.
func optionalString(v cue.Value, path string) (string, error) {
	sv := v.LookupPath(cue.ParsePath(path))
	if !sv.Exists() {
		return "", nil
	}
	s, err := sv.String()
	if err != nil {
		return "", &CompileError{
			Field:   path,
			Message: "must be a string",
			Pos:     sv.Pos(),
		}
	}
	return s, nil
}

// optionalStrings returns the strings at path. A single string is a list of
// one.
func optionalStrings(v cue.Value, path string) ([]string, error) {
	sv := v.LookupPath(cue.ParsePath(path))
	if !sv.Exists() {
		return nil, nil
	}
	if s, err := sv.String(); err == nil {
		return []string{s}, nil
	}

	iter, err := sv.List()
	if err != nil {
		return nil, &CompileError{
			Field:   path,
			Message: "must be a string or a list of strings",
			Pos:     sv.Pos(),
		}
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, &CompileError{
				Field:   path,
				Message: "list entries must be strings",
				Pos:     iter.Value().Pos(),
			}
		}
		out = append(out, s)
	}
	return out, nil
}

// optionalFloat returns a pointer to the number at path, nil when absent.
func optionalFloat(v cue.Value, path string) (*float64, error) {
	fv := v.LookupPath(cue.ParsePath(path))
	if !fv.Exists() {
		return nil, nil
	}
	f, err := fv.Float64()
	if err != nil {
		return nil, &CompileError{
			Field:   path,
			Message: "must be a number",
			Pos:     fv.Pos(),
		}
	}
	return &f, nil
}

// toValue converts a concrete CUE value to an IR value through its JSON
// encoding.
func toValue(v cue.Value) (ir.Value, error) {
	data, err := v.MarshalJSON()
	if err != nil {
		return nil, formatCUEError(err)
	}
	val, err := ir.UnmarshalValue(data)
	if err != nil {
		return nil, &CompileError{
			Field:   "value",
			Message: err.Error(),
			Pos:     v.Pos(),
		}
	}
	return val, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
