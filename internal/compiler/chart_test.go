package compiler

import (
	"os"
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chartflow/internal/ir"
)

func compileFile(t *testing.T, path, name string) *ir.ChartSpec {
	t.Helper()
	src, err := os.ReadFile(path)
	require.NoError(t, err)

	v := cuecontext.New().CompileBytes(src, cue.Filename(path))
	require.NoError(t, v.Err())

	spec, err := CompileChart(v.LookupPath(cue.ParsePath("chart." + name)))
	require.NoError(t, err)
	return spec
}

func compileString(t *testing.T, src, name string) (*ir.ChartSpec, error) {
	t.Helper()
	v := cuecontext.New().CompileString(src)
	require.NoError(t, v.Err())
	return CompileChart(v.LookupPath(cue.ParsePath("chart." + name)))
}

func TestCompileChartRatings(t *testing.T) {
	spec := compileFile(t, "testdata/charts/ratings.cue", "ratings")

	assert.Equal(t, "ratings", spec.Name)
	assert.Equal(t, "Review ratings across locations", spec.Description)
	assert.Equal(t, ir.DataRef{Name: "reviews"}, spec.Data)

	require.Len(t, spec.Params, 1)
	p := spec.Params[0]
	assert.Equal(t, "ratingDropdown", p.Name)
	assert.Equal(t, ir.Null{}, p.Value)
	require.NotNil(t, p.Bind)
	assert.Equal(t, "select", p.Bind.Input)
	assert.Equal(t, []ir.Value{ir.Null{}, ir.Number(1), ir.Number(2), ir.Number(3), ir.Number(4), ir.Number(5)}, p.Bind.Options)
	assert.Equal(t, []string{"All", "1", "2", "3", "4", "5"}, p.Bind.Labels)

	require.Len(t, spec.Transform, 2)
	assert.Equal(t, ir.StageFilter, spec.Transform[0].Kind)
	assert.Equal(t, ir.StageCalculate, spec.Transform[1].Kind)
	assert.Equal(t, "LocationFull", spec.Transform[1].As)

	require.Len(t, spec.Layers, 2)
	bars := spec.Layers[0]
	assert.Equal(t, "bars", bars.Name)
	assert.Equal(t, "bar", bars.Mark)
	require.Len(t, bars.Transform, 1)
	assert.Equal(t, []ir.OpSpec{{Op: "count", As: "ReviewCount"}}, bars.Transform[0].Ops)
	assert.Equal(t, []string{"LocationFull", "Rating"}, bars.Transform[0].GroupBy)

	require.Len(t, bars.Params, 1)
	sel := bars.Params[0]
	assert.True(t, sel.BindLegend)
	assert.Equal(t, &ir.SelectSpec{Type: "point", Fields: []string{"Rating"}}, sel.Select)

	roles := make([]string, len(bars.Encoding))
	for i, ch := range bars.Encoding {
		roles[i] = ch.Role
	}
	assert.Equal(t, []string{"x", "y", "color", "opacity", "tooltip"}, roles)
	assert.Equal(t, ",.0f", bars.Encoding[1].Format, "axis format applies to the channel")

	color := bars.Encoding[2]
	assert.Equal(t, "Rating", color.Field)
	assert.Equal(t, []ir.RuleSpec{{Test: "ratingDropdown != null", Value: ir.String("#ffc5d3")}}, color.Conditions)

	opacity := bars.Encoding[3]
	assert.Equal(t, ir.Number(0.3), opacity.Value)
	assert.Equal(t, "ratingSelect", opacity.Conditions[0].Param)

	assert.Equal(t, []ir.TooltipSpec{
		{Field: "LocationFull", Title: "Location"},
		{Field: "ReviewCount", Title: "Number of Reviews", Format: ","},
	}, bars.Encoding[4].Tooltip)

	avg := spec.Layers[1]
	assert.Equal(t, "rule", avg.Mark, "struct marks use their type")
	assert.Nil(t, avg.Transform[0].GroupBy)
	assert.Equal(t, []ir.TooltipSpec{{Field: "avg", Title: "Average", Format: ",.2f"}}, avg.Encoding[1].Tooltip)

	assert.Equal(t, map[string]string{"color": "independent"}, spec.Resolve)
}

func TestCompileChartInlineAndImpute(t *testing.T) {
	spec := compileFile(t, "testdata/charts/lollipop.cue", "lollipop")

	require.Len(t, spec.Data.Values, 2)
	assert.Equal(t, ir.Object{"year": ir.Number(1990), "n": ir.Number(2)}, spec.Data.Values[0])

	imp := spec.Transform[0]
	assert.Equal(t, ir.StageImpute, imp.Kind)
	assert.Equal(t, "n", imp.Field)
	assert.Equal(t, "year", imp.Key)
	assert.Equal(t, ir.Number(0), imp.Value)
	assert.Equal(t, &ir.SequenceSpec{Start: 1990, Stop: 1994}, imp.Sequence)

	win := spec.Transform[1]
	require.NotNil(t, win.Frame)
	assert.Nil(t, win.Frame.Before)
	require.NotNil(t, win.Frame.After)
	assert.Equal(t, 0, *win.Frame.After)
	assert.Equal(t, []ir.SortSpec{{Field: "year"}}, win.Sort)

	assert.Equal(t, "stems", spec.Layers[0].Name)
	assert.Equal(t, []ir.ChannelSpec{{Role: "size", Value: ir.Number(60)}}, spec.Layers[1].Encoding[2:])
}

func TestCompileChartLookup(t *testing.T) {
	spec, err := compileString(t, `
		chart: map: {
			data: name: "stations"
			transform: [{
				lookup: "state"
				from: {
					data: values: [{code: "JHR", name: "Johor"}]
					key: "code"
					fields: ["name"]
				}
				as: "stateName"
				default: "unknown"
			}, {
				lookup: "id"
				from: {data: name: "readings", key: "station", fields: ["pm25", "o3"]}
			}]
			layer: [{mark: "circle"}]
		}
	`, "map")
	require.NoError(t, err)

	inline := spec.Transform[0]
	require.NotNil(t, inline.From)
	assert.Equal(t, "state", inline.Lookup)
	assert.Equal(t, "code", inline.From.Key)
	assert.Equal(t, []string{"stateName"}, inline.From.As)
	assert.Equal(t, ir.String("unknown"), inline.From.Default)
	assert.Len(t, inline.From.Data.Values, 1)

	assert.Equal(t, "layer0", spec.Layers[0].Name, "unnamed layers are numbered")

	named := spec.Transform[1]
	assert.Equal(t, "readings", named.From.Data.Name)
	assert.Equal(t, []string{"pm25", "o3"}, named.From.Fields)
}

func TestCompileChartErrors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantErr string
	}{
		{
			name:    "missing data",
			src:     `chart: c: { layer: [{mark: "bar"}] }`,
			wantErr: "data is required",
		},
		{
			name:    "no layers",
			src:     `chart: c: { data: name: "d" }`,
			wantErr: "at least one layer is required",
		},
		{
			name:    "missing mark",
			src:     `chart: c: { data: name: "d", layer: [{name: "l"}] }`,
			wantErr: "mark is required",
		},
		{
			name:    "unknown stage",
			src:     `chart: c: { data: name: "d", transform: [{fold: ["a"]}], layer: [{mark: "bar"}] }`,
			wantErr: "transform names no known stage",
		},
		{
			name:    "two stage keys",
			src:     `chart: c: { data: name: "d", transform: [{filter: "true", calculate: "1", as: "x"}], layer: [{mark: "bar"}] }`,
			wantErr: "transform has both",
		},
		{
			name:    "calculate without as",
			src:     `chart: c: { data: name: "d", transform: [{calculate: "1"}], layer: [{mark: "bar"}] }`,
			wantErr: "as is required",
		},
		{
			name:    "bad frame",
			src:     `chart: c: { data: name: "d", transform: [{window: [{op: "count", as: "n"}], frame: [1]}], layer: [{mark: "bar"}] }`,
			wantErr: "frame must be a list of two offsets",
		},
		{
			name:    "bind string other than legend",
			src:     `chart: c: { data: name: "d", params: [{name: "p", bind: "scales"}], layer: [{mark: "bar"}] }`,
			wantErr: "unknown bind",
		},
		{
			name:    "data without name or values",
			src:     `chart: c: { data: {}, layer: [{mark: "bar"}] }`,
			wantErr: "data needs a name or values",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := compileString(t, tt.src, "c")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)

			var ce *CompileError
			assert.ErrorAs(t, err, &ce)
		})
	}
}

func TestCompileErrorFormatting(t *testing.T) {
	err := &CompileError{Field: "layer", Message: "at least one layer is required"}
	assert.Equal(t, "layer: at least one layer is required", err.Error())
}
