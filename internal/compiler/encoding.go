package compiler

import (
	"fmt"

	"cuelang.org/go/cue"

	"github.com/roach88/chartflow/internal/ir"
)

// parseParams extracts the parameter list at path.
//
// A value parameter carries value (its default) and optionally a bind
// struct describing its control. A selection parameter carries select,
// either "point" or {type, fields}, and bind: "legend" when legend clicks
// drive it.
func parseParams(v cue.Value, path string) ([]ir.ParamSpec, error) {
	var params []ir.ParamSpec

	listVal := v.LookupPath(cue.ParsePath(path))
	if !listVal.Exists() {
		return params, nil
	}

	iter, err := listVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	for i := 0; iter.Next(); i++ {
		pv := iter.Value()
		field := fmt.Sprintf("%s[%d]", path, i)

		var p ir.ParamSpec
		if p.Name, err = requiredString(pv, "name", field); err != nil {
			return nil, err
		}
		if vv := pv.LookupPath(cue.ParsePath("value")); vv.Exists() {
			if p.Value, err = toValue(vv); err != nil {
				return nil, err
			}
		}

		if sv := pv.LookupPath(cue.ParsePath("select")); sv.Exists() {
			sel := &ir.SelectSpec{}
			if s, err := sv.String(); err == nil {
				sel.Type = s
			} else {
				if sel.Type, err = requiredString(sv, "type", field+".select"); err != nil {
					return nil, err
				}
				if sel.Fields, err = optionalStrings(sv, "fields"); err != nil {
					return nil, err
				}
			}
			p.Select = sel
		}

		if bv := pv.LookupPath(cue.ParsePath("bind")); bv.Exists() {
			if s, err := bv.String(); err == nil {
				if s != "legend" {
					return nil, &CompileError{
						Field:   field + ".bind",
						Message: fmt.Sprintf("unknown bind %q, must be \"legend\" or a control", s),
						Pos:     bv.Pos(),
					}
				}
				p.BindLegend = true
			} else {
				if p.Bind, err = parseBind(bv, field+".bind"); err != nil {
					return nil, err
				}
			}
		}

		params = append(params, p)
	}
	return params, nil
}

func parseBind(v cue.Value, field string) (*ir.BindSpec, error) {
	b := &ir.BindSpec{}
	var err error
	if b.Input, err = requiredString(v, "input", field); err != nil {
		return nil, err
	}
	if b.Name, err = optionalString(v, "name"); err != nil {
		return nil, err
	}
	if b.Labels, err = optionalStrings(v, "labels"); err != nil {
		return nil, err
	}
	if ov := v.LookupPath(cue.ParsePath("options")); ov.Exists() {
		val, err := toValue(ov)
		if err != nil {
			return nil, err
		}
		list, ok := val.(ir.List)
		if !ok {
			return nil, &CompileError{
				Field:   field + ".options",
				Message: "options must be a list",
				Pos:     ov.Pos(),
			}
		}
		b.Options = list
	}
	if b.Min, err = optionalFloat(v, "min"); err != nil {
		return nil, err
	}
	if b.Max, err = optionalFloat(v, "max"); err != nil {
		return nil, err
	}
	if b.Step, err = optionalFloat(v, "step"); err != nil {
		return nil, err
	}
	return b, nil
}

// parseEncoding extracts the channels of a layer, in declaration order.
func parseEncoding(v cue.Value) ([]ir.ChannelSpec, error) {
	var channels []ir.ChannelSpec

	encVal := v.LookupPath(cue.ParsePath("encoding"))
	if !encVal.Exists() {
		return channels, nil
	}

	iter, err := encVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	for iter.Next() {
		role := iter.Label()
		cv := iter.Value()
		field := "encoding." + role

		ch := ir.ChannelSpec{Role: role}
		if role == "tooltip" {
			if ch.Tooltip, err = parseTooltip(cv, field); err != nil {
				return nil, err
			}
			channels = append(channels, ch)
			continue
		}

		if err := parseChannel(cv, field, &ch); err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}
	return channels, nil
}

func parseChannel(v cue.Value, field string, ch *ir.ChannelSpec) error {
	var err error
	if ch.Field, err = optionalString(v, "field"); err != nil {
		return err
	}
	if vv := v.LookupPath(cue.ParsePath("value")); vv.Exists() {
		if ch.Value, err = toValue(vv); err != nil {
			return err
		}
	}
	if ch.Type, err = optionalString(v, "type"); err != nil {
		return err
	}
	if ch.Title, err = optionalString(v, "title"); err != nil {
		return err
	}
	if ch.Format, err = optionalString(v, "format"); err != nil {
		return err
	}
	if ch.Format == "" {
		// Axis and legend formats apply to the channel's labels.
		for _, path := range []string{"axis.format", "legend.format"} {
			if ch.Format, err = optionalString(v, path); err != nil {
				return err
			}
			if ch.Format != "" {
				break
			}
		}
	}

	if dv := v.LookupPath(cue.ParsePath("scale.domain")); dv.Exists() {
		val, err := toValue(dv)
		if err != nil {
			return err
		}
		list, ok := val.(ir.List)
		if !ok {
			return &CompileError{
				Field:   field + ".scale.domain",
				Message: "domain must be a list",
				Pos:     dv.Pos(),
			}
		}
		ch.Domain = list
	}

	condVal := v.LookupPath(cue.ParsePath("condition"))
	if !condVal.Exists() {
		return nil
	}
	if condVal.IncompleteKind() == cue.ListKind {
		iter, err := condVal.List()
		if err != nil {
			return formatCUEError(err)
		}
		for i := 0; iter.Next(); i++ {
			rule, err := parseRule(iter.Value(), fmt.Sprintf("%s.condition[%d]", field, i))
			if err != nil {
				return err
			}
			ch.Conditions = append(ch.Conditions, rule)
		}
		return nil
	}
	rule, err := parseRule(condVal, field+".condition")
	if err != nil {
		return err
	}
	ch.Conditions = []ir.RuleSpec{rule}
	return nil
}

// parseRule reads {test | param, empty, field | value}. empty may be a
// boolean (false meaning "none") or the policy name.
func parseRule(v cue.Value, field string) (ir.RuleSpec, error) {
	var r ir.RuleSpec
	var err error
	if r.Test, err = optionalString(v, "test"); err != nil {
		return r, err
	}
	if r.Param, err = optionalString(v, "param"); err != nil {
		return r, err
	}
	if r.Field, err = optionalString(v, "field"); err != nil {
		return r, err
	}
	if vv := v.LookupPath(cue.ParsePath("value")); vv.Exists() {
		if r.Value, err = toValue(vv); err != nil {
			return r, err
		}
	}

	if ev := v.LookupPath(cue.ParsePath("empty")); ev.Exists() {
		if b, err := ev.Bool(); err == nil {
			r.Empty = "all"
			if !b {
				r.Empty = "none"
			}
		} else if s, err := ev.String(); err == nil {
			r.Empty = s
		} else {
			return r, &CompileError{
				Field:   field + ".empty",
				Message: "empty must be a boolean or \"all\"/\"none\"",
				Pos:     ev.Pos(),
			}
		}
	}
	return r, nil
}

// parseTooltip accepts a single {field, title, format} or a list of them.
func parseTooltip(v cue.Value, field string) ([]ir.TooltipSpec, error) {
	entry := func(ev cue.Value, f string) (ir.TooltipSpec, error) {
		var t ir.TooltipSpec
		var err error
		if t.Field, err = requiredString(ev, "field", f); err != nil {
			return t, err
		}
		if t.Title, err = optionalString(ev, "title"); err != nil {
			return t, err
		}
		if t.Format, err = optionalString(ev, "format"); err != nil {
			return t, err
		}
		return t, nil
	}

	if v.IncompleteKind() != cue.ListKind {
		t, err := entry(v, field)
		if err != nil {
			return nil, err
		}
		return []ir.TooltipSpec{t}, nil
	}

	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []ir.TooltipSpec
	for i := 0; iter.Next(); i++ {
		t, err := entry(iter.Value(), fmt.Sprintf("%s[%d]", field, i))
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}
