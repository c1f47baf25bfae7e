package dataset

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chartflow/internal/ir"
)

func TestLoadCSV(t *testing.T) {
	tbl, err := Load("testdata/reviews.csv", Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"Location", "Rating", "region", "Open"}, tbl.Fields)
	require.Equal(t, 5, tbl.Len())
	assert.Equal(t, ir.Row{
		"Location": ir.String("Kuala Lumpur"),
		"Rating":   ir.Number(5),
		"region":   ir.String("central"),
		"Open":     ir.Bool(true),
	}, tbl.Rows[0])
	assert.Equal(t, ir.Null{}, tbl.Rows[3]["Open"], "empty boolean cell is null")
}

func TestReadCSVParseHints(t *testing.T) {
	src := "\uFEFFid,zip,score\n1,01234,7.5\n2,98765,n/a\n"
	tbl, err := ReadCSV(strings.NewReader(src), Options{Parse: map[string]string{"zip": ParseString, "score": ParseNumber}})
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "zip", "score"}, tbl.Fields, "byte order mark is stripped")
	assert.Equal(t, ir.String("01234"), tbl.Rows[0]["zip"])
	assert.Equal(t, ir.Number(1), tbl.Rows[0]["id"])
	assert.Equal(t, ir.Number(7.5), tbl.Rows[0]["score"])
	assert.Equal(t, ir.Null{}, tbl.Rows[1]["score"])
}

func TestReadCSVMixedColumnStaysText(t *testing.T) {
	tbl, err := ReadCSV(strings.NewReader("v\n1\ntwo\n"), Options{})
	require.NoError(t, err)
	assert.Equal(t, ir.String("1"), tbl.Rows[0]["v"])
	assert.Equal(t, ir.String("two"), tbl.Rows[1]["v"])
}

func TestReadCSVRaggedAndTrimmed(t *testing.T) {
	tbl, err := ReadCSV(strings.NewReader("a; b\n 1; x \n2\n"), Options{Comma: ';', TrimSpace: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, tbl.Fields)
	assert.Equal(t, ir.Row{"a": ir.Number(1), "b": ir.String("x")}, tbl.Rows[0])
	assert.Equal(t, ir.Row{"a": ir.Number(2), "b": ir.Null{}}, tbl.Rows[1])
}

func TestReadCSVEmpty(t *testing.T) {
	tbl, err := ReadCSV(strings.NewReader(""), Options{})
	require.NoError(t, err)
	assert.NotNil(t, tbl.Rows)
	assert.Zero(t, tbl.Len())
}

func TestReadCSVBadHint(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("a\n1\n"), Options{Parse: map[string]string{"a": "date"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown parse hint")
}

func TestLoadJSONProperty(t *testing.T) {
	tbl, err := Load("testdata/readings.json", Options{
		Property: "data.items",
		Parse:    map[string]string{"code": ParseNumber},
	})
	require.NoError(t, err)
	require.Equal(t, 2, tbl.Len())
	assert.Equal(t, ir.Number(12.5), tbl.Rows[0]["pm25"])
	assert.Equal(t, ir.Number(7), tbl.Rows[0]["code"])
	assert.ElementsMatch(t, []string{"code", "pm25", "station"}, tbl.Fields)
}

func TestReadJSONErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		prop string
		want string
	}{
		{"not an array", `{"a": 1}`, "", "want an array of objects"},
		{"element not object", `[1]`, "", "element 0"},
		{"missing property", `{"a": []}`, "b", "missing \"b\""},
		{"property through scalar", `{"a": 1}`, "a.b", "is not an object"},
		{"malformed", `[{`, "", "decode json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadJSON(strings.NewReader(tt.src), Options{Property: tt.prop})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadErrors(t *testing.T) {
	_, err := Load("testdata/missing.csv", Options{})
	assert.Error(t, err)

	_, err = Load("testdata/reviews.csv", Options{Format: "parquet"})
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestParseSpec(t *testing.T) {
	spec, err := ParseSpec("reviews=testdata/reviews.csv")
	require.NoError(t, err)
	assert.Equal(t, Spec{Name: "reviews", Path: "testdata/reviews.csv"}, spec)

	spec, err = ParseSpec("data/readings.json")
	require.NoError(t, err)
	assert.Equal(t, "readings", spec.Name)

	_, err = ParseSpec("=x.csv")
	assert.Error(t, err)
}
