package transform

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chartflow/internal/expr"
	"github.com/roach88/chartflow/internal/ir"
)

func ratings() ir.Table {
	return ir.NewTable(rows(
		ir.Object{"loc": ir.String("KL"), "rating": ir.Number(4), "by": ir.String("a")},
		ir.Object{"loc": ir.String("JB"), "rating": ir.Number(3), "by": ir.String("b")},
		ir.Object{"loc": ir.String("KL"), "rating": ir.Number(5), "by": ir.String("a")},
		ir.Object{"loc": ir.String("KL"), "rating": ir.Null{}, "by": ir.String("c")},
	))
}

func TestAggregateOps(t *testing.T) {
	res := run(t, ratings(), nil, Aggregate{
		GroupBy: []string{"loc"},
		Ops: []AggOp{
			{Op: OpCount, As: "count"},
			{Op: OpValid, Field: "rating", As: "valid"},
			{Op: OpMissing, Field: "rating", As: "missing"},
			{Op: OpSum, Field: "rating", As: "sum"},
			{Op: OpMean, Field: "rating", As: "mean"},
			{Op: OpMin, Field: "rating", As: "min"},
			{Op: OpMax, Field: "rating", As: "max"},
			{Op: OpDistinct, Field: "by", As: "distinct"},
		},
	})

	require.Len(t, res.Table.Rows, 2)
	kl := res.Table.Rows[0]
	assert.Equal(t, ir.String("KL"), kl["loc"])
	assert.Equal(t, ir.Number(3), kl["count"])
	assert.Equal(t, ir.Number(2), kl["valid"])
	assert.Equal(t, ir.Number(1), kl["missing"])
	assert.Equal(t, ir.Number(9), kl["sum"])
	assert.Equal(t, ir.Number(4.5), kl["mean"])
	assert.Equal(t, ir.Number(4), kl["min"])
	assert.Equal(t, ir.Number(5), kl["max"])
	assert.Equal(t, ir.Number(2), kl["distinct"])

	jb := res.Table.Rows[1]
	assert.Equal(t, ir.String("JB"), jb["loc"])
	assert.Equal(t, ir.Number(1), jb["count"])
}

func TestAggregateWithoutGroupBy(t *testing.T) {
	res := run(t, ratings(), nil, Aggregate{Ops: []AggOp{{Op: OpMean, Field: "rating", As: "avg"}}})
	require.Len(t, res.Table.Rows, 1)
	assert.Equal(t, ir.Number(4), res.Table.Rows[0]["avg"])

	empty := ir.NewTableWithFields([]string{"rating"}, nil)
	res = run(t, empty, nil, Aggregate{Ops: []AggOp{{Op: OpMean, Field: "rating", As: "avg"}}})
	assert.Equal(t, 0, res.Table.Len())
}

func TestAggregateMeanOverNoValidValues(t *testing.T) {
	in := ir.NewTable(rows(
		ir.Object{"g": ir.String("a"), "v": ir.Null{}},
		ir.Object{"g": ir.String("a"), "v": ir.String("n/a")},
	))
	p := MustNew(Aggregate{Ops: []AggOp{{Op: OpMean, Field: "v", As: "m"}}, GroupBy: []string{"g"}})

	_, err := p.Run(context.Background(), in, nil)
	require.Error(t, err)
	assert.True(t, IsEmptyAggregateError(err))

	var ee *EmptyAggregateError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, OpMean, ee.Op)
	assert.Equal(t, `{"g":"a"}`, ee.Group)
}

func TestAggregateDoesNotMutateInput(t *testing.T) {
	in := ratings()
	before := ir.MustTableHash(in)
	run(t, in, nil, Aggregate{Ops: []AggOp{{Op: OpSum, Field: "rating", As: "rating"}}, GroupBy: []string{"loc"}})
	assert.Equal(t, before, ir.MustTableHash(in))
}

func TestJoinAggregateBroadcasts(t *testing.T) {
	in := ratings()
	res := run(t, in, nil, JoinAggregate{
		GroupBy: []string{"loc"},
		Ops: []AggOp{
			{Op: OpSum, Field: "rating", As: "total"},
			{Op: OpCount, As: "n"},
		},
	})

	require.Len(t, res.Table.Rows, 4)
	assert.Equal(t, []ir.Value{ir.Number(9), ir.Number(3), ir.Number(9), ir.Number(9)}, res.Table.Column("total"))
	assert.Equal(t, []ir.Value{ir.Number(3), ir.Number(1), ir.Number(3), ir.Number(3)}, res.Table.Column("n"))
	assert.Equal(t, in.Column("by"), res.Table.Column("by"))

	_, ok := in.Rows[0]["total"]
	assert.False(t, ok, "input rows must not be modified")
}

func TestJoinAggregateOverNoValidValues(t *testing.T) {
	in := ir.NewTable(rows(
		ir.Object{"g": ir.String("a"), "v": ir.Number(2)},
		ir.Object{"g": ir.String("b"), "v": ir.Null{}},
		ir.Object{"g": ir.String("b"), "v": ir.String("n/a")},
	))
	for _, op := range []Op{OpMean, OpMin, OpMax} {
		t.Run(string(op), func(t *testing.T) {
			p := MustNew(JoinAggregate{Ops: []AggOp{{Op: op, Field: "v", As: "out"}}, GroupBy: []string{"g"}})

			_, err := p.Run(context.Background(), in, nil)
			require.Error(t, err)
			assert.True(t, IsEmptyAggregateError(err))

			var ee *EmptyAggregateError
			require.ErrorAs(t, err, &ee)
			assert.Equal(t, op, ee.Op)
			assert.Equal(t, `{"g":"b"}`, ee.Group)
		})
	}
}

func TestJoinAggregateDistinctPerGroup(t *testing.T) {
	in := ir.NewTable(rows(
		ir.Object{"Rating": ir.Number(5), "Loc": ir.String("KL"), "n": ir.Number(2)},
		ir.Object{"Rating": ir.Number(5), "Loc": ir.String("JB"), "n": ir.Number(4)},
		ir.Object{"Rating": ir.Number(4), "Loc": ir.String("KL"), "n": ir.Number(1)},
	))
	res := run(t, in, nil,
		JoinAggregate{
			GroupBy: []string{"Rating"},
			Ops: []AggOp{
				{Op: OpSum, Field: "n", As: "totalReviews"},
				{Op: OpDistinct, Field: "Loc", As: "numLocations"},
			},
		},
		Derive{As: "avg", Expr: expr.MustParse("datum.totalReviews / datum.numLocations")},
	)
	assert.Equal(t, []ir.Value{ir.Number(3), ir.Number(3), ir.Number(1)}, res.Table.Column("avg"))
}

func TestWindowCumulativeSumKeepsRowOrder(t *testing.T) {
	in := ir.NewTable(rows(
		ir.Object{"year": ir.Number(1992), "n": ir.Number(5)},
		ir.Object{"year": ir.Number(1990), "n": ir.Number(2)},
		ir.Object{"year": ir.Number(1991), "n": ir.Number(1)},
	))
	res := run(t, in, nil, Window{
		Ops:   []WindowOp{{Op: OpSum, Field: "n", As: "cum"}},
		Frame: CumulativeFrame(),
		Sort:  []SortKey{{Field: "year"}},
	})

	assert.Equal(t, []ir.Value{ir.Number(1992), ir.Number(1990), ir.Number(1991)}, res.Table.Column("year"))
	assert.Equal(t, []ir.Value{ir.Number(8), ir.Number(2), ir.Number(3)}, res.Table.Column("cum"))
}

func TestWindowFramesAndRanking(t *testing.T) {
	in := ir.NewTable(rows(
		ir.Object{"k": ir.Number(1), "v": ir.Number(10)},
		ir.Object{"k": ir.Number(2), "v": ir.Number(20)},
		ir.Object{"k": ir.Number(2), "v": ir.Number(30)},
		ir.Object{"k": ir.Number(3), "v": ir.Number(40)},
	))
	res := run(t, in, nil, Window{
		Ops: []WindowOp{
			{Op: OpMean, Field: "v", As: "moving"},
			{Op: OpRowNumber, As: "row"},
			{Op: OpRank, As: "rank"},
			{Op: OpDenseRank, As: "dense"},
			{Op: OpFirstValue, Field: "v", As: "first"},
			{Op: OpLastValue, Field: "v", As: "last"},
			{Op: OpCount, As: "count"},
		},
		Frame: Frame{Before: Offset(1), After: Offset(1)},
		Sort:  []SortKey{{Field: "k"}},
	})

	assert.Equal(t, []ir.Value{ir.Number(15), ir.Number(20), ir.Number(30), ir.Number(35)}, res.Table.Column("moving"))
	assert.Equal(t, []ir.Value{ir.Number(1), ir.Number(2), ir.Number(3), ir.Number(4)}, res.Table.Column("row"))
	assert.Equal(t, []ir.Value{ir.Number(1), ir.Number(2), ir.Number(2), ir.Number(4)}, res.Table.Column("rank"))
	assert.Equal(t, []ir.Value{ir.Number(1), ir.Number(2), ir.Number(2), ir.Number(3)}, res.Table.Column("dense"))
	assert.Equal(t, []ir.Value{ir.Number(10), ir.Number(10), ir.Number(20), ir.Number(30)}, res.Table.Column("first"))
	assert.Equal(t, []ir.Value{ir.Number(20), ir.Number(30), ir.Number(40), ir.Number(40)}, res.Table.Column("last"))
	assert.Equal(t, []ir.Value{ir.Number(2), ir.Number(3), ir.Number(3), ir.Number(2)}, res.Table.Column("count"))
}

func TestWindowFrameWithHugeOffsets(t *testing.T) {
	in := ir.NewTable(rows(
		ir.Object{"k": ir.Number(1), "v": ir.Number(1)},
		ir.Object{"k": ir.Number(2), "v": ir.Number(2)},
		ir.Object{"k": ir.Number(3), "v": ir.Number(3)},
	))
	tests := []struct {
		name  string
		frame Frame
		want  []ir.Value
	}{
		{"suffix", Frame{Before: Offset(0), After: Offset(math.MaxInt)}, []ir.Value{ir.Number(6), ir.Number(5), ir.Number(3)}},
		{"prefix", Frame{Before: Offset(math.MaxInt), After: Offset(0)}, []ir.Value{ir.Number(1), ir.Number(3), ir.Number(6)}},
		{"both", Frame{Before: Offset(math.MaxInt), After: Offset(math.MaxInt)}, []ir.Value{ir.Number(6), ir.Number(6), ir.Number(6)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := run(t, in, nil, Window{
				Ops:   []WindowOp{{Op: OpSum, Field: "v", As: "s"}},
				Frame: tt.frame,
				Sort:  []SortKey{{Field: "k"}},
			})
			assert.Equal(t, tt.want, res.Table.Column("s"))
		})
	}
}

func TestWindowRankWithoutSortTies(t *testing.T) {
	in := ir.NewTable(rows(
		ir.Object{"v": ir.Number(3)},
		ir.Object{"v": ir.Number(1)},
		ir.Object{"v": ir.Number(2)},
	))
	res := run(t, in, nil, Window{Ops: []WindowOp{
		{Op: OpRank, As: "rank"},
		{Op: OpDenseRank, As: "dense"},
		{Op: OpRowNumber, As: "row"},
	}})
	assert.Equal(t, []ir.Value{ir.Number(1), ir.Number(1), ir.Number(1)}, res.Table.Column("rank"))
	assert.Equal(t, []ir.Value{ir.Number(1), ir.Number(1), ir.Number(1)}, res.Table.Column("dense"))
	assert.Equal(t, []ir.Value{ir.Number(1), ir.Number(2), ir.Number(3)}, res.Table.Column("row"))
}

func TestWindowDescendingStableTiesAndPartitions(t *testing.T) {
	in := ir.NewTable(rows(
		ir.Object{"g": ir.String("a"), "k": ir.Number(1), "id": ir.String("a1")},
		ir.Object{"g": ir.String("b"), "k": ir.Number(1), "id": ir.String("b1")},
		ir.Object{"g": ir.String("a"), "k": ir.Number(1), "id": ir.String("a2")},
		ir.Object{"g": ir.String("a"), "k": ir.Number(2), "id": ir.String("a3")},
	))
	res := run(t, in, nil, Window{
		Ops:     []WindowOp{{Op: OpRowNumber, As: "pos"}},
		Sort:    []SortKey{{Field: "k", Descending: true}},
		GroupBy: []string{"g"},
	})

	// Within partition a: a3 first (k desc), then a1, a2 in input order.
	assert.Equal(t, []ir.Value{ir.Number(2), ir.Number(1), ir.Number(3), ir.Number(1)}, res.Table.Column("pos"))
}

func TestWindowEmptyFrameMeanIsNull(t *testing.T) {
	in := ir.NewTable(rows(
		ir.Object{"v": ir.Null{}},
		ir.Object{"v": ir.Number(4)},
	))
	res := run(t, in, nil, Window{
		Ops:   []WindowOp{{Op: OpMean, Field: "v", As: "m"}},
		Frame: CumulativeFrame(),
	})
	assert.Equal(t, []ir.Value{ir.Null{}, ir.Number(4)}, res.Table.Column("m"))
}

func TestImputeInsertsMissingKey(t *testing.T) {
	in := ir.NewTable(rows(
		ir.Object{"year": ir.Number(1990), "n": ir.Number(3)},
		ir.Object{"year": ir.Number(1992), "n": ir.Number(1)},
	))
	res := run(t, in, nil, Impute{
		Field:   "n",
		Key:     "year",
		KeyVals: Sequence(1990, 1993, 1),
		Value:   ir.Number(0),
	})

	require.Len(t, res.Table.Rows, 3)
	assert.Equal(t, in.Rows, res.Table.Rows[:2], "existing rows are kept")
	assert.Equal(t, ir.Row{"year": ir.Number(1991), "n": ir.Number(0)}, res.Table.Rows[2])
}

func TestImputeCrossProductWithGroups(t *testing.T) {
	in := ir.NewTable(rows(
		ir.Object{"year": ir.Number(1990), "region": ir.String("johor"), "n": ir.Number(2)},
		ir.Object{"year": ir.Number(1991), "region": ir.String("kedah"), "n": ir.Number(4)},
		ir.Object{"year": ir.Number(1991), "region": ir.String("johor"), "n": ir.Number(6)},
	))
	res := run(t, in, nil, Impute{
		Field:   "n",
		Key:     "year",
		GroupBy: []string{"region"},
		Method:  ImputeMean,
	})

	require.Len(t, res.Table.Rows, 4)
	assert.Equal(t, ir.Row{"year": ir.Number(1990), "region": ir.String("kedah"), "n": ir.Number(4)}, res.Table.Rows[3])
}

func TestImputeNeverRemovesRows(t *testing.T) {
	in := ratings()
	res := run(t, in, nil, Impute{Field: "rating", Key: "loc", GroupBy: []string{"by"}, Value: ir.Number(0)})
	assert.GreaterOrEqual(t, res.Table.Len(), in.Len())
	assert.Equal(t, in.Rows, res.Table.Rows[:in.Len()])
}

func TestLookupLeftJoin(t *testing.T) {
	secondary := ir.NewTable(rows(
		ir.Object{"LocationFull": ir.String("Kuala Lumpur"), "pop_label": ir.String("Highest population")},
		ir.Object{"LocationFull": ir.String("Penang"), "pop_label": ir.String("Third highest")},
	))
	in := ir.NewTable(rows(
		ir.Object{"LocationFull": ir.String("Penang")},
		ir.Object{"LocationFull": ir.String("Ipoh")},
		ir.Object{"LocationFull": ir.Null{}},
	))

	res := run(t, in, nil, Lookup{
		Field:  "LocationFull",
		From:   secondary,
		Key:    "LocationFull",
		Fields: []string{"pop_label"},
	})

	require.Len(t, res.Table.Rows, 3)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, []ir.Value{ir.String("Third highest"), ir.Null{}, ir.Null{}}, res.Table.Column("pop_label"))
	assert.True(t, res.Table.HasField("pop_label"))
}

func TestLookupRenameDefaultAndStringKeys(t *testing.T) {
	secondary := ir.NewTable(rows(
		ir.Object{"year": ir.String("1990"), "label": ir.String("start")},
	))
	in := ir.NewTable(rows(
		ir.Object{"year": ir.Number(1990)},
		ir.Object{"year": ir.Number(1991)},
	))

	res := run(t, in, nil, Lookup{
		Field:   "year",
		From:    secondary,
		Key:     "year",
		Fields:  []string{"label"},
		As:      []string{"era"},
		Default: ir.String("unknown"),
	})
	assert.Equal(t, []ir.Value{ir.String("start"), ir.String("unknown")}, res.Table.Column("era"))
}

func TestLookupAmbiguityFirstMatchWins(t *testing.T) {
	secondary := ir.NewTable(rows(
		ir.Object{"k": ir.String("a"), "v": ir.Number(1)},
		ir.Object{"k": ir.String("a"), "v": ir.Number(2)},
	))
	in := ir.NewTable(rows(ir.Object{"k": ir.String("a")}))

	res := run(t, in, nil, Lookup{Field: "k", From: secondary, Key: "k", Fields: []string{"v"}})
	assert.Equal(t, ir.Number(1), res.Table.Rows[0]["v"])

	require.Len(t, res.Warnings, 1)
	var amb *LookupAmbiguityError
	require.ErrorAs(t, res.Warnings[0], &amb)
	assert.Equal(t, 2, amb.Count)
	assert.Equal(t, "a", amb.Value)
}

func TestLookupMissingMatchField(t *testing.T) {
	p := MustNew(Lookup{Field: "absent", From: ir.Table{}, Key: "k", Fields: []string{"v"}})
	_, err := p.Run(context.Background(), ratings(), nil)
	assert.True(t, IsSchemaError(err))
}

func TestSumSkipsInvalidValues(t *testing.T) {
	in := ir.NewTable(rows(
		ir.Object{"v": ir.Number(1)},
		ir.Object{"v": ir.Number(math.NaN())},
		ir.Object{"v": ir.String("2")},
		ir.Object{"v": ir.String("x")},
	))
	res := run(t, in, nil, Aggregate{Ops: []AggOp{{Op: OpSum, Field: "v", As: "s"}}})
	assert.Equal(t, ir.Number(3), res.Table.Rows[0]["s"])
}

func TestBindNamedLookupSource(t *testing.T) {
	pops := ir.NewTable(rows(
		ir.Object{"LocationFull": ir.String("Penang"), "pop_label": ir.String("Third highest")},
	))
	p := MustNew(
		Lookup{Field: "LocationFull", Source: "population", Key: "LocationFull", Fields: []string{"pop_label"}},
		Lookup{Field: "LocationFull", Source: "population", Key: "LocationFull", Fields: []string{"pop_label"}, As: []string{"again"}},
	)
	assert.Equal(t, []string{"population"}, p.Sources())

	bound, err := p.Bind(map[string]ir.Table{"population": pops})
	require.NoError(t, err)

	in := ir.NewTable(rows(ir.Object{"LocationFull": ir.String("Penang")}))
	res, err := bound.Run(context.Background(), in, nil)
	require.NoError(t, err)
	assert.Equal(t, ir.String("Third highest"), res.Table.Rows[0]["pop_label"])
	assert.Equal(t, ir.String("Third highest"), res.Table.Rows[0]["again"])

	// The unbound pipeline is untouched.
	unbound := p.Stages()[0].(Lookup)
	assert.Equal(t, 0, unbound.From.Len())
}

func TestBindMissingSource(t *testing.T) {
	p := MustNew(Lookup{Field: "k", Source: "codes", Key: "k", Fields: []string{"v"}})

	_, err := p.Bind(map[string]ir.Table{})
	require.Error(t, err)
	assert.True(t, IsUnboundSourceError(err))

	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 0, se.Index)

	_, err = p.Bind(map[string]ir.Table{"codes": ir.NewTable(rows(ir.Object{"other": ir.Number(1)}))})
	assert.True(t, IsSchemaError(err))
}
