package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadScenario(t *testing.T, name string) *Scenario {
	t.Helper()
	s, err := LoadScenario("testdata/scenarios/" + name + ".yaml")
	require.NoError(t, err)
	return s
}

func TestRun_RatingsFilter(t *testing.T) {
	result, err := Run(loadScenario(t, "ratings_filter"))
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	require.Len(t, result.Trace, 6)

	load := result.Trace[0]
	assert.Equal(t, ActionLoad, load.Action)
	assert.Equal(t, int64(1), load.Seq)
	assert.Equal(t, "ratings_filter-0001", load.PassID)
	assert.Equal(t, map[string]int{"bars": 5, "average": 1}, load.Rows)

	filtered := result.Trace[1]
	assert.Equal(t, map[string]int{"bars": 2, "average": 1}, filtered.Rows)

	toggle := result.Trace[2]
	assert.Equal(t, []string{"bars"}, toggle.Recomputed)

	rejected := result.Trace[3]
	assert.True(t, rejected.Rejected)
	assert.Zero(t, rejected.Seq)

	// The rejected step consumed no seq.
	assert.Equal(t, int64(4), result.Trace[4].Seq)
	assert.Equal(t, 5, result.Replayed)
	require.NotNil(t, result.Scene)
}

func TestRun_RegionsLookup(t *testing.T) {
	result, err := Run(loadScenario(t, "regions_lookup"))
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	assert.Equal(t, map[string]int{"counts": 3}, result.Trace[0].Rows, "labelled fails until regions loads")
	assert.Equal(t, []string{"labelled"}, result.Trace[1].Recomputed)
}

func TestRun_RegionsUnbound(t *testing.T) {
	result, err := Run(loadScenario(t, "regions_unbound"))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_FailingAssertion(t *testing.T) {
	s := loadScenario(t, "ratings_filter")
	s.Assertions = []Assertion{{Type: AssertRowCount, Layer: "bars", Count: 4}}

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "Assertion failed: row_count")
	assert.Contains(t, result.Errors[0], "5 items")
}

func TestRun_UnexpectedRejection(t *testing.T) {
	s := loadScenario(t, "ratings_filter")
	s.Steps[3].ExpectError = false

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], "step 3 (set ratingDropdown)")
	assert.True(t, result.Trace[3].Rejected)
}

func TestRun_MissingExpectedError(t *testing.T) {
	s := loadScenario(t, "ratings_filter")
	s.Steps[1].ExpectError = true

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors, "step 1 (set ratingDropdown): expected an error")
}

func TestRun_RecomputedMismatch(t *testing.T) {
	s := loadScenario(t, "ratings_filter")
	s.Steps[2].Recomputed = []string{"bars", "average"}

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors, "step 2 (toggle ratingSelect): recomputed [bars], expected [bars average]")
}

func TestRun_UnknownParameterIsRejected(t *testing.T) {
	s := loadScenario(t, "ratings_filter")
	s.Steps = []Step{{Set: "nope", Value: 1, ExpectError: true}}
	s.Assertions = []Assertion{{Type: AssertRecorded, Count: 0}}

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, 0, result.Replayed)
}

func TestRun_UnknownChart(t *testing.T) {
	s := loadScenario(t, "ratings_filter")
	s.Chart = "missing"

	_, err := Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `chart "missing" not found`)
}

func TestRun_DeterministicAcrossRuns(t *testing.T) {
	s := loadScenario(t, "ratings_filter")

	first, err := Run(s)
	require.NoError(t, err)
	second, err := Run(s)
	require.NoError(t, err)

	assert.Equal(t, first.Trace, second.Trace)
	h1, err := first.Scene.Hash()
	require.NoError(t, err)
	h2, err := second.Scene.Hash()
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}
