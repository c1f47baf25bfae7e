package testutil

import "github.com/roach88/chartflow/internal/ir"

// Table builds a table from objects, deriving the schema.
func Table(objs ...ir.Object) ir.Table {
	rows := make([]ir.Row, len(objs))
	for i, o := range objs {
		rows[i] = ir.Row(o)
	}
	return ir.NewTable(rows)
}

// Reviews is a small ratings dataset shared by engine and harness tests.
func Reviews() ir.Table {
	return Table(
		ir.Object{"Location": ir.String("Kuala Lumpur"), "region": ir.String("central"), "Rating": ir.Number(5)},
		ir.Object{"Location": ir.String("Kuala Lumpur"), "region": ir.String("central"), "Rating": ir.Number(4)},
		ir.Object{"Location": ir.String("Penang"), "region": ir.String("north"), "Rating": ir.Number(5)},
		ir.Object{"Location": ir.String("Ipoh"), "region": ir.String("north"), "Rating": ir.Number(3)},
		ir.Object{"Location": ir.String("Johor Bahru"), "region": ir.String("south"), "Rating": ir.Number(4)},
	)
}
