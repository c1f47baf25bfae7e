package transform

import (
	"context"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chartflow/internal/expr"
	"github.com/roach88/chartflow/internal/ir"
)

// randomTable builds a seeded table of region/year/n rows with occasional
// gaps so that grouping, imputation and lookup all see irregular input.
func randomTable(seed uint64, n int) ir.Table {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	regions := []string{"johor", "kedah", "melaka", "penang"}
	out := make([]ir.Row, n)
	for i := range out {
		row := ir.Row{
			"region": ir.String(regions[rng.IntN(len(regions))]),
			"year":   ir.Number(1990 + rng.IntN(6)),
			"n":      ir.Number(rng.IntN(10)),
		}
		if rng.IntN(10) == 0 {
			row["n"] = ir.Null{}
		}
		out[i] = row
	}
	return ir.NewTableWithFields([]string{"n", "region", "year"}, out)
}

func TestAggregateCountMatchesDistinctTuples(t *testing.T) {
	for seed := uint64(1); seed <= 25; seed++ {
		in := randomTable(seed, int(seed)*7)
		res := run(t, in, nil, Aggregate{Ops: []AggOp{{Op: OpCount, As: "c"}}, GroupBy: []string{"region", "year"}})

		distinct := make(map[string]bool)
		for _, r := range in.Rows {
			distinct[fmt.Sprint(r["region"], r["year"])] = true
		}
		assert.Len(t, res.Table.Rows, len(distinct), "seed %d", seed)

		total := 0.0
		for _, v := range res.Table.Column("c") {
			total += ir.ToNumber(v)
		}
		assert.Equal(t, float64(in.Len()), total, "seed %d", seed)
	}
}

func TestImputedCumulativeSumIsMonotonic(t *testing.T) {
	for seed := uint64(1); seed <= 25; seed++ {
		in := randomTable(seed, 20)
		res := run(t, in, nil,
			Filter{Predicate: expr.MustParse("isValid(datum.n)")},
			Aggregate{Ops: []AggOp{{Op: OpSum, Field: "n", As: "total"}}, GroupBy: []string{"region", "year"}},
			Impute{Field: "total", Key: "year", GroupBy: []string{"region"}, KeyVals: Sequence(1990, 1996, 1), Value: ir.Number(0)},
			Window{
				Ops:     []WindowOp{{Op: OpSum, Field: "total", As: "cum"}},
				Frame:   CumulativeFrame(),
				Sort:    []SortKey{{Field: "year"}},
				GroupBy: []string{"region"},
			},
		)

		byRegion := make(map[string]map[float64]float64)
		for _, r := range res.Table.Rows {
			region := ir.ToString(r["region"])
			if byRegion[region] == nil {
				byRegion[region] = make(map[float64]float64)
			}
			byRegion[region][ir.ToNumber(r["year"])] = ir.ToNumber(r["cum"])
		}
		for region, years := range byRegion {
			require.Len(t, years, 6, "seed %d region %s has a full year domain", seed, region)
			prev := 0.0
			for y := 1990.0; y < 1996; y++ {
				assert.GreaterOrEqual(t, years[y], prev, "seed %d region %s year %v", seed, region, y)
				prev = years[y]
			}
		}
	}
}

func TestLookupPreservesRowCount(t *testing.T) {
	secondary := ir.NewTable(rows(
		ir.Object{"region": ir.String("johor"), "code": ir.String("JHR")},
		ir.Object{"region": ir.String("johor"), "code": ir.String("JOH")},
		ir.Object{"region": ir.String("kedah"), "code": ir.String("KDH")},
	))
	for seed := uint64(1); seed <= 25; seed++ {
		in := randomTable(seed, int(seed)*3)
		res := run(t, in, nil, Lookup{Field: "region", From: secondary, Key: "region", Fields: []string{"code"}})
		assert.Equal(t, in.Len(), res.Table.Len(), "seed %d", seed)
		for i, r := range res.Table.Rows {
			assert.Equal(t, in.Rows[i]["region"], r["region"])
		}
	}
}

func TestPipelineIsDeterministic(t *testing.T) {
	p := MustNew(
		Filter{Predicate: expr.MustParse("isValid(datum.n) && datum.year >= minYear")},
		JoinAggregate{Ops: []AggOp{{Op: OpMean, Field: "n", As: "avg"}}, GroupBy: []string{"region"}},
		Window{Ops: []WindowOp{{Op: OpRank, As: "rank"}}, Sort: []SortKey{{Field: "n", Descending: true}}, GroupBy: []string{"region"}},
	)
	scope := expr.MapScope{"minYear": ir.Number(1992)}

	for seed := uint64(1); seed <= 10; seed++ {
		in := randomTable(seed, 40)
		first, err := p.Run(context.Background(), in, scope)
		require.NoError(t, err)
		second, err := p.Run(context.Background(), in, scope)
		require.NoError(t, err)
		assert.Equal(t, ir.MustTableHash(first.Table), ir.MustTableHash(second.Table), "seed %d", seed)
	}
}
