package param

import (
	"slices"

	"github.com/roach88/chartflow/internal/ir"
)

// Input names the UI control kind of a binding.
type Input string

const (
	InputNone     Input = ""
	InputSelect   Input = "select"
	InputRadio    Input = "radio"
	InputRange    Input = "range"
	InputCheckbox Input = "checkbox"
	InputText     Input = "text"
	InputLegend   Input = "legend"
	InputPoint    Input = "point"
)

// Binding is the declared control metadata of a parameter. The store uses
// it to validate values; the UI renders controls from it.
type Binding struct {
	Input Input `json:"input,omitempty"`

	// Name is the control label.
	Name string `json:"name,omitempty"`

	// Options and Labels describe select and radio controls. A Null option
	// conventionally means "All".
	Options []ir.Value `json:"options,omitempty"`
	Labels  []string   `json:"labels,omitempty"`

	// Range bounds.
	Min  *float64 `json:"min,omitempty"`
	Max  *float64 `json:"max,omitempty"`
	Step *float64 `json:"step,omitempty"`

	// Fields are the row fields a selection projects onto.
	Fields []string `json:"fields,omitempty"`
}

// Definition declares one parameter of a chart instance.
type Definition struct {
	Name    string   `json:"name"`
	Default ir.Value `json:"default,omitempty"`
	Binding Binding  `json:"binding"`
}

// IsSelection reports whether the parameter holds a selection set.
func (d Definition) IsSelection() bool {
	return d.Binding.Input == InputLegend || d.Binding.Input == InputPoint
}

// Validate checks the definition itself and its default value.
func (d Definition) Validate() error {
	if d.Name == "" {
		return invalidDefinition(d.Name, "name is required")
	}
	b := d.Binding
	switch b.Input {
	case InputNone, InputText, InputCheckbox:
	case InputSelect, InputRadio:
		if len(b.Options) == 0 {
			return invalidDefinition(d.Name, "%s binding requires options", b.Input)
		}
		if len(b.Labels) > 0 && len(b.Labels) != len(b.Options) {
			return invalidDefinition(d.Name, "%d labels for %d options", len(b.Labels), len(b.Options))
		}
	case InputRange:
		if b.Min != nil && b.Max != nil && *b.Min > *b.Max {
			return invalidDefinition(d.Name, "range min %v exceeds max %v", *b.Min, *b.Max)
		}
	case InputLegend, InputPoint:
		if len(b.Fields) == 0 {
			return invalidDefinition(d.Name, "selection requires fields")
		}
	default:
		return invalidDefinition(d.Name, "unknown input %q", b.Input)
	}

	if d.IsSelection() {
		if d.Default != nil && !ir.IsNull(d.Default) {
			if _, err := d.selectionFrom(d.Default); err != nil {
				return invalidDefinition(d.Name, "default: %v", err)
			}
		}
		return nil
	}
	if err := d.check(d.defaultValue()); err != nil {
		return invalidDefinition(d.Name, "default: %v", err)
	}
	return nil
}

func (d Definition) defaultValue() ir.Value {
	if d.Default == nil {
		return ir.Null{}
	}
	return d.Default
}

// check validates a value parameter assignment against the binding.
func (d Definition) check(v ir.Value) error {
	b := d.Binding
	switch b.Input {
	case InputSelect, InputRadio:
		if !slices.ContainsFunc(b.Options, func(o ir.Value) bool { return ir.Equal(o, v) }) {
			return invalidValue(d.Name, "%s is not one of the declared options", ir.ToString(v))
		}
	case InputRange:
		n, ok := v.(ir.Number)
		if !ok {
			return invalidValue(d.Name, "range value must be a number, got %s", ir.ToString(v))
		}
		if b.Min != nil && float64(n) < *b.Min {
			return invalidValue(d.Name, "%v is below min %v", float64(n), *b.Min)
		}
		if b.Max != nil && float64(n) > *b.Max {
			return invalidValue(d.Name, "%v is above max %v", float64(n), *b.Max)
		}
	case InputCheckbox:
		if _, ok := v.(ir.Bool); !ok {
			return invalidValue(d.Name, "checkbox value must be a boolean, got %s", ir.ToString(v))
		}
	case InputText:
		switch v.(type) {
		case ir.String, ir.Null:
		default:
			return invalidValue(d.Name, "text value must be a string, got %s", ir.ToString(v))
		}
	}
	return nil
}

// selectionFrom converts a value assignment to a selection: Null clears,
// a list of objects selects one tuple per object. A selection over a
// single field also takes bare values, alone or in a list.
func (d Definition) selectionFrom(v ir.Value) (Selection, error) {
	sel := Selection{Fields: slices.Clone(d.Binding.Fields)}
	switch val := v.(type) {
	case nil, ir.Null:
		return sel, nil
	case ir.List:
		for _, item := range val {
			tuple, err := d.tupleFrom(sel.Fields, item)
			if err != nil {
				return Selection{}, err
			}
			sel = sel.with(tuple)
		}
		return sel, nil
	default:
		return d.selectionFrom(ir.List{val})
	}
}

func (d Definition) tupleFrom(fields []string, item ir.Value) ([]ir.Value, error) {
	obj, ok := item.(ir.Object)
	if !ok {
		switch item.(type) {
		case nil, ir.Null, ir.List:
		default:
			if len(fields) == 1 {
				return []ir.Value{item}, nil
			}
		}
		return nil, invalidValue(d.Name, "selection entries must be objects")
	}
	tuple := make([]ir.Value, len(fields))
	for i, f := range fields {
		fv, ok := obj[f]
		if !ok {
			return nil, invalidValue(d.Name, "selection entry is missing field %q", f)
		}
		tuple[i] = fv
	}
	return tuple, nil
}
