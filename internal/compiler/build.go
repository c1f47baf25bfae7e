package compiler

import (
	"fmt"

	"github.com/roach88/chartflow/internal/channel"
	"github.com/roach88/chartflow/internal/engine"
	"github.com/roach88/chartflow/internal/expr"
	"github.com/roach88/chartflow/internal/ir"
	"github.com/roach88/chartflow/internal/param"
	"github.com/roach88/chartflow/internal/scene"
	"github.com/roach88/chartflow/internal/transform"
)

// inlineChartData names the chart's inline dataset when it has no name.
const inlineChartData = "values"

// positionScales are the scales a "position" resolve entry covers.
var positionScales = []channel.Role{
	channel.RoleX, channel.RoleY, channel.RoleTheta,
	channel.RoleRadius, channel.RoleLongitude, channel.RoleLatitude,
}

// Build turns a chart declaration into a runtime definition: expressions
// are parsed, stages constructed and validated, chart-level transforms
// prepended to every layer's own, and inline datasets named.
//
// Build assumes Validate reported no errors; it still fails on anything it
// cannot construct.
func Build(spec ir.ChartSpec) (engine.Definition, error) {
	def := engine.Definition{
		Name:   spec.Name,
		Data:   spec.Data.Name,
		Inline: make(map[string]ir.Table),
	}

	if spec.Data.Values != nil {
		if def.Data == "" {
			def.Data = inlineChartData
		}
		def.Inline[def.Data] = inlineTable(spec.Data.Values)
	}

	for _, p := range spec.Params {
		d, err := paramDefinition(p)
		if err != nil {
			return def, fmt.Errorf("param %q: %w", p.Name, err)
		}
		def.Params = append(def.Params, d)
	}

	shared, err := buildPipeline(spec.Transform)
	if err != nil {
		return def, fmt.Errorf("chart transform: %w", err)
	}

	for _, l := range spec.Layers {
		layer, err := buildLayer(l, shared, def.Inline)
		if err != nil {
			return def, fmt.Errorf("layer %q: %w", l.Name, err)
		}
		for _, p := range l.Params {
			d, err := paramDefinition(p)
			if err != nil {
				return def, fmt.Errorf("layer %q param %q: %w", l.Name, p.Name, err)
			}
			def.Params = append(def.Params, d)
		}
		def.Layers = append(def.Layers, layer)
	}

	def.Resolve = buildResolution(spec.Resolve)
	return def, nil
}

func buildLayer(l ir.LayerSpec, shared *transform.Pipeline, inline map[string]ir.Table) (engine.LayerDef, error) {
	layer := engine.LayerDef{
		Name: l.Name,
		Data: l.Data.Name,
		Mark: l.Mark,
	}
	if l.Data.Values != nil {
		if layer.Data == "" {
			layer.Data = l.Name + "." + inlineChartData
		}
		inline[layer.Data] = inlineTable(l.Data.Values)
	}

	own, err := buildPipeline(l.Transform)
	if err != nil {
		return layer, err
	}
	layer.Pipeline = shared.Then(own)

	for _, cs := range l.Encoding {
		ch, err := buildChannel(cs)
		if err != nil {
			return layer, fmt.Errorf("encoding.%s: %w", cs.Role, err)
		}
		layer.Channels = append(layer.Channels, ch)
	}
	return layer, nil
}

func buildPipeline(specs []ir.StageSpec) (*transform.Pipeline, error) {
	stages := make([]transform.Stage, 0, len(specs))
	for i, s := range specs {
		st, err := buildStage(s)
		if err != nil {
			return nil, fmt.Errorf("stage %d (%s): %w", i, s.Kind, err)
		}
		stages = append(stages, st)
	}
	return transform.New(stages...)
}

func buildStage(s ir.StageSpec) (transform.Stage, error) {
	switch s.Kind {
	case ir.StageFilter:
		e, err := expr.Parse(s.Expr)
		if err != nil {
			return nil, err
		}
		return transform.Filter{Predicate: e}, nil
	case ir.StageCalculate:
		e, err := expr.Parse(s.Expr)
		if err != nil {
			return nil, err
		}
		return transform.Derive{As: s.As, Expr: e}, nil
	case ir.StageAggregate:
		return transform.Aggregate{Ops: aggOps(s.Ops), GroupBy: s.GroupBy}, nil
	case ir.StageJoinAggregate:
		return transform.JoinAggregate{Ops: aggOps(s.Ops), GroupBy: s.GroupBy}, nil
	case ir.StageWindow:
		w := transform.Window{GroupBy: s.GroupBy}
		for _, op := range s.Ops {
			w.Ops = append(w.Ops, transform.WindowOp{Op: transform.Op(op.Op), Field: op.Field, As: op.As})
		}
		if s.Frame != nil {
			w.Frame = transform.Frame{Before: s.Frame.Before, After: s.Frame.After}
		} else {
			w.Frame = transform.CumulativeFrame()
		}
		for _, k := range s.Sort {
			w.Sort = append(w.Sort, transform.SortKey{Field: k.Field, Descending: k.Order == "descending"})
		}
		return w, nil
	case ir.StageImpute:
		imp := transform.Impute{
			Field:   s.Field,
			Key:     s.Key,
			GroupBy: s.GroupBy,
			KeyVals: s.KeyVals,
			Method:  transform.ImputeMethod(s.Method),
			Value:   s.Value,
		}
		if s.Sequence != nil {
			imp.KeyVals = transform.Sequence(s.Sequence.Start, s.Sequence.Stop, s.Sequence.Step)
		}
		return imp, nil
	case ir.StageLookup:
		if s.From == nil {
			return nil, fmt.Errorf("lookup requires from")
		}
		l := transform.Lookup{
			Field:   s.Lookup,
			Source:  s.From.Data.Name,
			Key:     s.From.Key,
			Fields:  s.From.Fields,
			As:      s.From.As,
			Default: s.From.Default,
		}
		if s.From.Data.Values != nil {
			l.Source = ""
			l.From = inlineTable(s.From.Data.Values)
		}
		return l, nil
	}
	return nil, fmt.Errorf("unknown stage kind %q", s.Kind)
}

func aggOps(specs []ir.OpSpec) []transform.AggOp {
	ops := make([]transform.AggOp, len(specs))
	for i, op := range specs {
		ops[i] = transform.AggOp{Op: transform.Op(op.Op), Field: op.Field, As: op.As}
	}
	return ops
}

func buildChannel(cs ir.ChannelSpec) (channel.Channel, error) {
	ch := channel.Channel{
		Role:   channel.Role(cs.Role),
		Field:  cs.Field,
		Value:  cs.Value,
		Type:   cs.Type,
		Title:  cs.Title,
		Format: cs.Format,
		Domain: cs.Domain,
	}
	for _, r := range cs.Conditions {
		rule := channel.Rule{
			Param: r.Param,
			Empty: channel.Empty(r.Empty),
			Field: r.Field,
			Value: r.Value,
		}
		if r.Test != "" {
			e, err := expr.Parse(r.Test)
			if err != nil {
				return ch, err
			}
			rule.Test = e
		}
		ch.Rules = append(ch.Rules, rule)
	}
	for _, t := range cs.Tooltip {
		ch.Tooltip = append(ch.Tooltip, channel.TooltipField{Field: t.Field, Title: t.Title, Format: t.Format})
	}
	return ch, ch.Validate()
}

// paramDefinition maps a declared parameter onto the store's definition.
func paramDefinition(p ir.ParamSpec) (param.Definition, error) {
	d := param.Definition{Name: p.Name, Default: p.Value}

	switch {
	case p.Select != nil:
		if p.Select.Type != "point" {
			return d, fmt.Errorf("unsupported selection type %q", p.Select.Type)
		}
		if p.Bind != nil {
			return d, fmt.Errorf("a selection cannot bind an input control")
		}
		d.Binding = param.Binding{Input: param.InputPoint, Fields: p.Select.Fields}
		if p.BindLegend {
			d.Binding.Input = param.InputLegend
		}
	case p.BindLegend:
		return d, fmt.Errorf("bind: legend requires a selection")
	case p.Bind != nil:
		d.Binding = param.Binding{
			Input:   param.Input(p.Bind.Input),
			Name:    p.Bind.Name,
			Options: p.Bind.Options,
			Labels:  p.Bind.Labels,
			Min:     p.Bind.Min,
			Max:     p.Bind.Max,
			Step:    p.Bind.Step,
		}
	}
	return d, nil
}

// buildResolution maps declared channel policies onto scale names.
func buildResolution(resolve map[string]string) scene.Resolution {
	if len(resolve) == 0 {
		return nil
	}
	res := make(scene.Resolution)
	for key, policy := range resolve {
		if key == string(channel.KindPosition) {
			for _, r := range positionScales {
				if _, explicit := resolve[string(r)]; !explicit {
					res[r.Scale()] = scene.Policy(policy)
				}
			}
			continue
		}
		if scale := channel.Role(key).Scale(); scale != "" {
			res[scale] = scene.Policy(policy)
		}
	}
	return res
}

func inlineTable(values []ir.Object) ir.Table {
	rows := make([]ir.Row, len(values))
	for i, o := range values {
		rows[i] = ir.Row(o)
	}
	return ir.NewTable(rows)
}
