package engine

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/chartflow/internal/channel"
	"github.com/roach88/chartflow/internal/ir"
	"github.com/roach88/chartflow/internal/param"
	"github.com/roach88/chartflow/internal/scene"
)

// layerResult is one layer's share of a pass.
type layerResult struct {
	index     int
	output    scene.LayerOutput
	rows      int
	tableHash string
}

// recompute runs the given layers against one parameter snapshot. Layers
// share no mutable state, so they run concurrently up to the chart's
// parallelism. Results are returned in the order of layers.
func (c *Chart) recompute(ctx context.Context, layers []int, snap *param.Snapshot) []layerResult {
	c.mu.RLock()
	datasets := make(map[string]ir.Table, len(c.datasets))
	for k, v := range c.datasets {
		datasets[k] = v
	}
	c.mu.RUnlock()

	results := make([]layerResult, len(layers))
	var g errgroup.Group
	g.SetLimit(c.parallelism)
	for i, idx := range layers {
		g.Go(func() error {
			results[i] = c.computeLayer(ctx, idx, snap, datasets)
			return nil
		})
	}
	// Layer failures are carried in the results, never returned.
	_ = g.Wait()
	return results
}

// computeLayer runs one layer's pipeline and encodes its rows. A layer
// whose input dataset has not been loaded renders empty.
func (c *Chart) computeLayer(ctx context.Context, idx int, snap *param.Snapshot, datasets map[string]ir.Table) layerResult {
	l := c.def.Layers[idx]
	res := layerResult{
		index:  idx,
		output: scene.LayerOutput{Name: l.Name, Mark: l.Mark, Channels: l.Channels},
	}
	fail := func(err error) layerResult {
		res.output.Err = err
		res.output.Items = nil
		return res
	}

	in, ok := datasets[c.def.layerData(idx)]
	if !ok {
		res.output.Items = []channel.Item{}
		res.tableHash = ir.MustTableHash(ir.Table{})
		return res
	}

	p, err := l.Pipeline.Bind(datasets)
	if err != nil {
		return fail(err)
	}
	out, err := p.Run(ctx, in, snap)
	if err != nil {
		return fail(err)
	}
	for _, w := range out.Warnings {
		slog.Warn("pipeline warning",
			"chart", c.def.Name,
			"layer", l.Name,
			"warning", w,
		)
	}
	if err := c.budget.Check(l.Name, out.Table.Len()); err != nil {
		return fail(err)
	}

	items, err := channel.Encode(l.Channels, out.Table, snap)
	if err != nil {
		return fail(err)
	}
	hash, err := ir.TableHash(out.Table)
	if err != nil {
		return fail(err)
	}

	res.output.Items = items
	res.rows = out.Table.Len()
	res.tableHash = hash

	slog.Debug("layer recomputed",
		"chart", c.def.Name,
		"layer", l.Name,
		"rows_in", in.Len(),
		"rows", res.rows,
	)
	return res
}
