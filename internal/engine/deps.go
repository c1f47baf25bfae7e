package engine

import (
	"slices"

	"github.com/roach88/chartflow/internal/transform"
)

// dependencyIndex maps parameters and datasets to the layers that read
// them. A mutation recomputes exactly the layers listed for its name.
type dependencyIndex struct {
	byParam   map[string][]int
	byDataset map[string][]int

	layerParams   [][]string
	layerDatasets [][]string
}

func buildDependencies(def Definition) *dependencyIndex {
	d := &dependencyIndex{
		byParam:       make(map[string][]int),
		byDataset:     make(map[string][]int),
		layerParams:   make([][]string, len(def.Layers)),
		layerDatasets: make([][]string, len(def.Layers)),
	}
	for i, l := range def.Layers {
		var params []string
		add := func(names []string) {
			for _, n := range names {
				if !slices.Contains(params, n) {
					params = append(params, n)
				}
			}
		}
		if l.Pipeline != nil {
			add(l.Pipeline.Params())
		}
		for _, ch := range l.Channels {
			add(ch.Params())
		}
		d.layerParams[i] = params
		for _, p := range params {
			d.byParam[p] = append(d.byParam[p], i)
		}

		datasets := []string{def.layerData(i)}
		if l.Pipeline != nil {
			for _, src := range l.Pipeline.Sources() {
				if !slices.Contains(datasets, src) {
					datasets = append(datasets, src)
				}
			}
		}
		d.layerDatasets[i] = datasets
		for _, ds := range datasets {
			d.byDataset[ds] = append(d.byDataset[ds], i)
		}
	}
	return d
}

func (d *dependencyIndex) params(name string) []int {
	return d.byParam[name]
}

func (d *dependencyIndex) datasets(name string) []int {
	return d.byDataset[name]
}

// all returns every layer index.
func (d *dependencyIndex) all() []int {
	out := make([]int, len(d.layerParams))
	for i := range out {
		out[i] = i
	}
	return out
}

func emptyPipeline() *transform.Pipeline {
	return transform.MustNew()
}
