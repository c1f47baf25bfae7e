package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chartflow/internal/ir"
)

// Regenerate with: go test ./internal/harness -run TestRunWithGolden -update
func TestRunWithGolden(t *testing.T) {
	for _, name := range []string{"ratings_filter", "regions_lookup"} {
		t.Run(name, func(t *testing.T) {
			result, err := RunWithGolden(t, loadScenario(t, name))
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestTraceSnapshot_RejectedStepOmitsPass(t *testing.T) {
	snap := TraceSnapshot{
		ScenarioName: "s",
		Trace: []TraceEvent{
			{Step: 0, Action: ActionSet, Target: "p", Rejected: true},
		},
	}
	b, err := ir.MarshalCanonical(snap.value())
	require.NoError(t, err)
	assert.Equal(t, `{"replayed":0,"scenario_name":"s","trace":[{"action":"set","rejected":true,"step":0,"target":"p"}]}`, string(b))
}
