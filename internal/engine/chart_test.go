package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chartflow/internal/channel"
	"github.com/roach88/chartflow/internal/expr"
	"github.com/roach88/chartflow/internal/ir"
	"github.com/roach88/chartflow/internal/param"
	"github.com/roach88/chartflow/internal/store"
	"github.com/roach88/chartflow/internal/testutil"
	"github.com/roach88/chartflow/internal/transform"
)

func ratingsDefinition() Definition {
	return Definition{
		Name: "ratings",
		Data: "reviews",
		Params: []param.Definition{
			{Name: "ratingDropdown", Default: ir.Null{}, Binding: param.Binding{
				Input:   param.InputSelect,
				Options: []ir.Value{ir.Null{}, ir.Number(1), ir.Number(2), ir.Number(3), ir.Number(4), ir.Number(5)},
			}},
			{Name: "region", Binding: param.Binding{Input: param.InputLegend, Fields: []string{"region"}}},
		},
		Layers: []LayerDef{
			{
				Name: "bars",
				Mark: "bar",
				Pipeline: transform.MustNew(
					transform.Filter{Predicate: expr.MustParse("ratingDropdown == null || datum.Rating == ratingDropdown")},
					transform.Aggregate{Ops: []transform.AggOp{{Op: transform.OpCount, As: "n"}}, GroupBy: []string{"Location"}},
				),
				Channels: []channel.Channel{
					{Role: channel.RoleX, Field: "Location", Type: channel.TypeNominal},
					{Role: channel.RoleY, Field: "n", Type: channel.TypeQuantitative},
				},
			},
			{
				Name: "points",
				Mark: "point",
				Channels: []channel.Channel{
					{Role: channel.RoleX, Field: "Rating", Type: channel.TypeQuantitative},
					{Role: channel.RoleColor, Field: "region"},
					{Role: channel.RoleOpacity, Value: ir.Number(0.1), Rules: []channel.Rule{{Param: "region", Value: ir.Number(1)}}},
				},
			},
			{
				Name:     "labels",
				Mark:     "text",
				Channels: []channel.Channel{{Role: channel.RoleText, Field: "Location"}},
			},
		},
	}
}

func newChart(t *testing.T, def Definition, opts ...Option) *Chart {
	t.Helper()
	opts = append([]Option{
		WithClock(testutil.NewDeterministicClock()),
		WithPassGenerator(testutil.NewSequentialPassGenerator("test")),
	}, opts...)
	c, err := New(def, opts...)
	require.NoError(t, err)
	return c
}

func loaded(t *testing.T, opts ...Option) *Chart {
	t.Helper()
	c := newChart(t, ratingsDefinition(), opts...)
	require.NoError(t, c.Load("reviews", testutil.Reviews()))
	require.NoError(t, c.Drain(context.Background()))
	return c
}

func itemValues(t *testing.T, c *Chart, layer, role string) []ir.Value {
	t.Helper()
	l := c.Scene().Layer(layer)
	require.NotNil(t, l, "layer %s", layer)
	out := make([]ir.Value, len(l.Items))
	for i, it := range l.Items {
		out[i] = it.Channels[role]
	}
	return out
}

func TestInitialSceneBeforeLoadIsEmpty(t *testing.T) {
	c := newChart(t, ratingsDefinition())

	sc := c.Scene()
	require.Len(t, sc.Layers, 3)
	for _, l := range sc.Layers {
		assert.Empty(t, l.Items, l.Name)
		assert.False(t, l.Failed(), l.Name)
	}
	assert.Equal(t, []string{"bars", "points", "labels"}, c.LastPass().Recomputed)
}

func TestLoadRecomputesEveryReadingLayer(t *testing.T) {
	c := loaded(t)

	pass := c.LastPass()
	assert.Equal(t, int64(1), pass.Seq)
	assert.Equal(t, "test-0001", pass.ID)
	assert.Equal(t, []string{"bars", "points", "labels"}, pass.Recomputed)

	assert.Equal(t, []ir.Value{
		ir.String("Kuala Lumpur"), ir.String("Penang"), ir.String("Ipoh"), ir.String("Johor Bahru"),
	}, itemValues(t, c, "bars", "x"))
	assert.Equal(t, []ir.Value{ir.Number(2), ir.Number(1), ir.Number(1), ir.Number(1)}, itemValues(t, c, "bars", "y"))
	assert.Len(t, c.Scene().Layer("points").Items, 5)
}

func TestParameterRecomputesOnlyDependentLayers(t *testing.T) {
	c := loaded(t)
	before := c.Scene()

	require.NoError(t, c.SetParameter("ratingDropdown", ir.Number(5)))
	require.NoError(t, c.Drain(context.Background()))

	pass := c.LastPass()
	assert.Equal(t, []string{"bars"}, pass.Recomputed)
	assert.Equal(t, []ir.Value{ir.String("Kuala Lumpur"), ir.String("Penang")}, itemValues(t, c, "bars", "x"))

	// Independent layers keep their previous items untouched.
	after := c.Scene()
	assert.Equal(t, before.Layer("labels").Items, after.Layer("labels").Items)
	assert.Equal(t, before.Layer("points").Items, after.Layer("points").Items)

	require.NoError(t, c.ToggleValue("region", ir.String("north")))
	require.NoError(t, c.Drain(context.Background()))
	assert.Equal(t, []string{"points"}, c.LastPass().Recomputed)
	assert.Equal(t, []ir.Value{ir.Number(0.1), ir.Number(0.1), ir.Number(1), ir.Number(1), ir.Number(0.1)},
		itemValues(t, c, "points", "opacity"))
}

func TestSelectionAndDropdownAreIndependent(t *testing.T) {
	c := loaded(t)
	ctx := context.Background()

	require.NoError(t, c.SelectValues("region", []ir.Value{ir.String("south")}))
	require.NoError(t, c.SetParameter("ratingDropdown", ir.Number(4)))
	require.NoError(t, c.Drain(ctx))

	sel, err := c.Selection("region")
	require.NoError(t, err)
	assert.Len(t, sel.Tuples, 1)

	v, err := c.GetParameter("ratingDropdown")
	require.NoError(t, err)
	assert.Equal(t, ir.Number(4), v)

	require.NoError(t, c.ClearSelection("region"))
	require.NoError(t, c.ResetParameter("ratingDropdown"))
	require.NoError(t, c.Drain(ctx))

	v, _ = c.GetParameter("ratingDropdown")
	assert.Equal(t, ir.Null{}, v)
	// Empty selection shows everything.
	for _, o := range itemValues(t, c, "points", "opacity") {
		assert.Equal(t, ir.Number(1), o)
	}
}

func TestEventsAppliedInOrderNeverDropped(t *testing.T) {
	c := loaded(t)
	var seen []ir.Value
	var seqs []int64
	c.Subscribe(func(p Pass) {
		seen = append(seen, p.Event.Value)
		seqs = append(seqs, p.Seq)
	})

	values := []ir.Value{ir.Number(1), ir.Number(2), ir.Number(3), ir.Number(4), ir.Number(5), ir.Null{}}
	for _, v := range values {
		require.NoError(t, c.SetParameter("ratingDropdown", v))
	}
	assert.Equal(t, len(values), c.Pending())
	require.NoError(t, c.Drain(context.Background()))

	assert.Equal(t, values, seen, "every queued value gets its own pass, in order")
	assert.Equal(t, []int64{2, 3, 4, 5, 6, 7}, seqs)
	assert.Zero(t, c.Pending())
}

func TestInvalidValuesRejectedAtDispatch(t *testing.T) {
	c := loaded(t)

	err := c.SetParameter("ratingDropdown", ir.Number(9))
	assert.True(t, param.IsInvalidValue(err))
	assert.True(t, param.IsUnknownParam(c.SetParameter("nope", ir.Number(1))))
	assert.True(t, param.IsNotSelection(c.ToggleValue("ratingDropdown", ir.Number(1))))
	assert.True(t, param.IsUnknownParam(c.ResetParameter("nope")))
	assert.Zero(t, c.Pending())
}

func TestRejectedEventsAreReportedAndSkipped(t *testing.T) {
	c := loaded(t)
	ctx := context.Background()

	require.NoError(t, c.Dispatch(Load("unknown", ir.Table{})))
	require.NoError(t, c.Dispatch(Toggle("region", ir.String("a"), ir.String("b"))))
	require.NoError(t, c.Dispatch(Set("ratingDropdown", ir.Number(2))))

	err := c.Drain(ctx)
	require.Error(t, err)
	assert.True(t, IsUnknownDataset(err))
	assert.True(t, param.IsInvalidValue(err))

	// The valid event after the rejected ones was still applied, and
	// rejected events did not consume a seq.
	v, _ := c.GetParameter("ratingDropdown")
	assert.Equal(t, ir.Number(2), v)
	assert.Equal(t, int64(2), c.LastPass().Seq)
}

func TestFailedLayerKeepsOthersRendering(t *testing.T) {
	def := ratingsDefinition()
	def.Layers = append(def.Layers, LayerDef{
		Name:     "average",
		Mark:     "rule",
		Pipeline: transform.MustNew(transform.Aggregate{Ops: []transform.AggOp{{Op: transform.OpMean, Field: "missing", As: "avg"}}}),
		Channels: []channel.Channel{{Role: channel.RoleY, Field: "avg"}},
	})
	c := newChart(t, def)
	require.NoError(t, c.Load("reviews", testutil.Reviews()))
	require.NoError(t, c.Drain(context.Background()))

	sc := c.Scene()
	require.Len(t, sc.Layers, 4)
	avg := sc.Layer("average")
	assert.True(t, avg.Failed())
	assert.Contains(t, avg.Diagnostic, "missing")
	assert.Len(t, sc.Layer("bars").Items, 4)
	_, ok := c.LastPass().TableHashes["average"]
	assert.False(t, ok)
}

func TestRowBudget(t *testing.T) {
	c := loaded(t, WithMaxRows(4))
	sc := c.Scene()

	assert.False(t, sc.Layer("bars").Failed())
	assert.True(t, sc.Layer("points").Failed())
	assert.Contains(t, sc.Layer("points").Diagnostic, "row budget")
}

func TestNamedLookupSource(t *testing.T) {
	def := ratingsDefinition()
	def.Layers[2].Pipeline = transform.MustNew(transform.Lookup{
		Field:  "Location",
		Source: "population",
		Key:    "city",
		Fields: []string{"pop"},
	})
	def.Layers[2].Channels = append(def.Layers[2].Channels, channel.Channel{Role: channel.RoleSize, Field: "pop"})
	c := newChart(t, def)
	ctx := context.Background()

	require.NoError(t, c.Load("reviews", testutil.Reviews()))
	require.NoError(t, c.Drain(ctx))
	assert.True(t, c.Scene().Layer("labels").Failed(), "lookup source not loaded yet")

	require.NoError(t, c.Load("population", testutil.Table(
		ir.Object{"city": ir.String("Penang"), "pop": ir.Number(1.7)},
	)))
	require.NoError(t, c.Drain(ctx))
	assert.Equal(t, []string{"labels"}, c.LastPass().Recomputed)
	assert.Equal(t, []ir.Value{ir.Null{}, ir.Null{}, ir.Number(1.7), ir.Null{}, ir.Null{}},
		itemValues(t, c, "labels", "size"))

	params, datasets, ok := c.Dependencies("labels")
	require.True(t, ok)
	assert.Empty(t, params)
	assert.Equal(t, []string{"reviews", "population"}, datasets)
}

func TestInlineDataRendersAtCreation(t *testing.T) {
	c := newChart(t, Definition{
		Name:   "inline",
		Inline: map[string]ir.Table{"values": testutil.Table(ir.Object{"a": ir.Number(1)}, ir.Object{"a": ir.Number(2)})},
		Layers: []LayerDef{{Name: "dots", Data: "values", Mark: "point", Channels: []channel.Channel{{Role: channel.RoleX, Field: "a"}}}},
	})
	assert.Len(t, c.Scene().Layer("dots").Items, 2)
	assert.Equal(t, []ir.Value{ir.Number(1), ir.Number(2)}, c.Scene().Scales["x"].Domain)
}

func TestInvalidDefinitions(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Definition)
	}{
		{"no name", func(d *Definition) { d.Name = "" }},
		{"duplicate layer", func(d *Definition) { d.Layers[1].Name = "bars" }},
		{"no data", func(d *Definition) { d.Data = "" }},
		{"undeclared pipeline param", func(d *Definition) { d.Params = d.Params[1:] }},
		{"undeclared selection", func(d *Definition) { d.Params = d.Params[:1] }},
		{"bad channel", func(d *Definition) { d.Layers[2].Channels[0].Role = "shape" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := ratingsDefinition()
			tt.mutate(&def)
			_, err := New(def)
			assert.Error(t, err)
		})
	}
}

func TestBindingsExposeDeclarations(t *testing.T) {
	c := newChart(t, ratingsDefinition())
	b := c.Bindings()
	require.Len(t, b, 2)
	assert.Equal(t, param.InputSelect, b[0].Binding.Input)
	assert.True(t, b[1].IsSelection())
}

func TestRunLoopProcessesDispatchedEvents(t *testing.T) {
	c := newChart(t, ratingsDefinition(), WithParallelism(1))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	done := make(chan struct{})
	var passes []Pass
	c.Subscribe(func(p Pass) {
		mu.Lock()
		defer mu.Unlock()
		passes = append(passes, p)
		if len(passes) == 2 {
			close(done)
		}
	})

	errc := make(chan error, 1)
	go func() { errc <- c.Run(ctx) }()

	require.NoError(t, c.Load("reviews", testutil.Reviews()))
	require.NoError(t, c.SetParameter("ratingDropdown", ir.Number(3)))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("passes not delivered")
	}

	c.Stop()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Stop")
	}

	assert.True(t, IsStopped(c.Dispatch(Reset("ratingDropdown"))))
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"bars"}, passes[1].Recomputed)
	assert.Equal(t, []ir.Value{ir.String("Ipoh")}, itemValues(t, c, "bars", "x"))
}

func TestRunReturnsOnCancel(t *testing.T) {
	c := newChart(t, ratingsDefinition())
	ctx, cancel := context.WithCancel(context.Background())

	errc := make(chan error, 1)
	go func() { errc <- c.Run(ctx) }()
	cancel()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestUnsubscribe(t *testing.T) {
	c := loaded(t)
	calls := 0
	unsub := c.Subscribe(func(Pass) { calls++ })

	require.NoError(t, c.SetParameter("ratingDropdown", ir.Number(1)))
	require.NoError(t, c.Drain(context.Background()))
	unsub()
	require.NoError(t, c.SetParameter("ratingDropdown", ir.Number(2)))
	require.NoError(t, c.Drain(context.Background()))

	assert.Equal(t, 1, calls)
}

func TestStoreRecordsEventsAndPasses(t *testing.T) {
	st, err := store.Open(store.MemoryPath)
	require.NoError(t, err)
	defer st.Close()
	ctx := context.Background()

	c := loaded(t, WithStore(st))
	require.NoError(t, c.SetParameter("ratingDropdown", ir.Number(5)))
	require.NoError(t, c.Drain(ctx))

	trace, err := st.GetChartTrace(ctx, "ratings")
	require.NoError(t, err)
	require.Len(t, trace.Entries, 2)

	load := trace.Entries[0]
	assert.Equal(t, "load", load.Event.Kind)
	require.NotNil(t, load.Scene)
	assert.Len(t, load.Passes, 3)

	set := trace.Entries[1]
	assert.Equal(t, "set", set.Event.Kind)
	assert.Equal(t, ir.Number(5), set.Event.Payload)
	require.NotNil(t, set.Scene)
	assert.Equal(t, c.LastPass().SceneHash, set.Scene.SceneHash)
	require.Len(t, set.Passes, 1)
	assert.Equal(t, "bars", set.Passes[0].Layer)
	assert.Equal(t, 2, set.Passes[0].Rows)
}

func TestFailedRecordKeepsChangePending(t *testing.T) {
	st, err := store.Open(store.MemoryPath)
	require.NoError(t, err)
	ctx := context.Background()

	c := loaded(t, WithStore(st))
	require.Len(t, c.Scene().Layer("bars").Items, 4)
	require.NoError(t, st.Close())

	require.NoError(t, c.SetParameter("ratingDropdown", ir.Number(5)))
	err = c.Drain(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record event")

	v, err := c.GetParameter("ratingDropdown")
	require.NoError(t, err)
	assert.Equal(t, ir.Number(5), v)
	assert.Len(t, c.Scene().Layer("bars").Items, 4, "no pass ran")

	// The next pass picks up the pending layer even though its own event
	// touches only the points layer.
	c.store = nil
	require.NoError(t, c.SelectValues("region", []ir.Value{ir.String("north")}))
	require.NoError(t, c.Drain(ctx))
	assert.Equal(t, []string{"bars", "points"}, c.LastPass().Recomputed)
	assert.Len(t, c.Scene().Layer("bars").Items, 2)
}
