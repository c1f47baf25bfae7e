package ir

// ChartSpec represents a compiled chart declaration.
//
// A chart names its primary dataset, declares chart-level parameters and
// transforms (which every layer inherits, in order, before its own), and an
// ordered list of layers. Resolve maps a channel kind ("position", "x",
// "color", ...) to "shared" or "independent".
type ChartSpec struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Data        DataRef           `json:"data"`
	Params      []ParamSpec       `json:"params,omitempty"`
	Transform   []StageSpec       `json:"transform,omitempty"`
	Layers      []LayerSpec       `json:"layers"`
	Resolve     map[string]string `json:"resolve,omitempty"`
}

// DataRef points at a dataset: either a name supplied by the external loader
// or an inline literal table.
type DataRef struct {
	Name   string   `json:"name,omitempty"`
	Values []Object `json:"values,omitempty"`
}

// IsZero reports whether the reference names nothing.
func (d DataRef) IsZero() bool {
	return d.Name == "" && d.Values == nil
}

// LayerSpec represents one layer: an optional data override, its own
// transforms, a mark, parameters and encoding channels.
type LayerSpec struct {
	Name      string        `json:"name"`
	Data      DataRef       `json:"data,omitempty"`
	Transform []StageSpec   `json:"transform,omitempty"`
	Mark      string        `json:"mark"`
	Params    []ParamSpec   `json:"params,omitempty"`
	Encoding  []ChannelSpec `json:"encoding,omitempty"`
}

// Stage kinds accepted in declarations.
const (
	StageFilter        = "filter"
	StageCalculate     = "calculate"
	StageAggregate     = "aggregate"
	StageWindow        = "window"
	StageImpute        = "impute"
	StageLookup        = "lookup"
	StageJoinAggregate = "joinaggregate"
)

// ValidStageKinds defines the closed set of stage kinds.
var ValidStageKinds = map[string]bool{
	StageFilter:        true,
	StageCalculate:     true,
	StageAggregate:     true,
	StageWindow:        true,
	StageImpute:        true,
	StageLookup:        true,
	StageJoinAggregate: true,
}

// StageSpec is the declarative form of one transform stage. Only the fields
// relevant to Kind are populated.
type StageSpec struct {
	Kind string `json:"kind"`

	// filter / calculate
	Expr string `json:"expr,omitempty"`
	As   string `json:"as,omitempty"`

	// aggregate / joinaggregate / window
	Ops     []OpSpec   `json:"ops,omitempty"`
	GroupBy []string   `json:"groupby,omitempty"`
	Frame   *FrameSpec `json:"frame,omitempty"`
	Sort    []SortSpec `json:"sort,omitempty"`

	// impute
	Field    string        `json:"field,omitempty"`
	Key      string        `json:"key,omitempty"`
	Value    Value         `json:"value,omitempty"`
	Method   string        `json:"method,omitempty"`
	KeyVals  []Value       `json:"keyvals,omitempty"`
	Sequence *SequenceSpec `json:"sequence,omitempty"`

	// lookup
	Lookup string      `json:"lookup,omitempty"`
	From   *LookupFrom `json:"from,omitempty"`
}

// OpSpec is one aggregate or window operation.
type OpSpec struct {
	Op    string `json:"op"`
	Field string `json:"field,omitempty"`
	As    string `json:"as"`
}

// FrameSpec is a window frame. Nil endpoints are unbounded.
type FrameSpec struct {
	Before *int `json:"before"`
	After  *int `json:"after"`
}

// SortSpec orders rows by a field.
type SortSpec struct {
	Field string `json:"field"`
	Order string `json:"order,omitempty"` // "ascending" (default) or "descending"
}

// SequenceSpec generates impute key values start, start+step, ... < stop.
type SequenceSpec struct {
	Start float64 `json:"start"`
	Stop  float64 `json:"stop"`
	Step  float64 `json:"step,omitempty"`
}

// LookupFrom names the secondary table of a lookup.
type LookupFrom struct {
	Data    DataRef  `json:"data"`
	Key     string   `json:"key"`
	Fields  []string `json:"fields,omitempty"`
	As      []string `json:"as,omitempty"`
	Default Value    `json:"default,omitempty"`
}

// ParamSpec declares a reactive parameter.
//
// A parameter is either a value parameter (Value is its default, Bind
// describes the input control) or a selection parameter (Select is set, and
// BindLegend reports whether clicking the legend drives it).
type ParamSpec struct {
	Name       string      `json:"name"`
	Value      Value       `json:"value,omitempty"`
	Bind       *BindSpec   `json:"bind,omitempty"`
	Select     *SelectSpec `json:"select,omitempty"`
	BindLegend bool        `json:"bind_legend,omitempty"`
}

// BindSpec describes an input control bound to a value parameter.
type BindSpec struct {
	Input   string   `json:"input"` // "select", "radio", "range", "checkbox", "text"
	Options []Value  `json:"options,omitempty"`
	Labels  []string `json:"labels,omitempty"`
	Name    string   `json:"name,omitempty"`
	Min     *float64 `json:"min,omitempty"`
	Max     *float64 `json:"max,omitempty"`
	Step    *float64 `json:"step,omitempty"`
}

// SelectSpec describes a selection parameter.
type SelectSpec struct {
	Type   string   `json:"type"` // "point"
	Fields []string `json:"fields"`
}

// ChannelSpec declares one encoding channel.
type ChannelSpec struct {
	Role       string        `json:"role"`
	Field      string        `json:"field,omitempty"`
	Value      Value         `json:"value,omitempty"`
	Type       string        `json:"type,omitempty"` // "quantitative", "nominal", "ordinal", "temporal"
	Title      string        `json:"title,omitempty"`
	Format     string        `json:"format,omitempty"`
	Conditions []RuleSpec    `json:"conditions,omitempty"`
	Tooltip    []TooltipSpec `json:"tooltip,omitempty"`
	Domain     []Value       `json:"domain,omitempty"`
}

// RuleSpec is one conditional rule of a channel. Exactly one of Test and
// Param is set; exactly one of Field and Value is set.
type RuleSpec struct {
	Test  string `json:"test,omitempty"`
	Param string `json:"param,omitempty"`
	Empty string `json:"empty,omitempty"` // "all" (default) or "none"
	Field string `json:"field,omitempty"`
	Value Value  `json:"value,omitempty"`
}

// TooltipSpec is one entry of a tooltip channel.
type TooltipSpec struct {
	Field  string `json:"field"`
	Title  string `json:"title,omitempty"`
	Format string `json:"format,omitempty"`
}
