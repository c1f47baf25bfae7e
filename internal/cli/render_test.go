package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chartflow/internal/ir"
)

func TestRenderRatings(t *testing.T) {
	out, err := execute(t, NewRenderCommand(&RootOptions{Format: "text"}),
		chartsDir, "--chart", "ratings", "--data", "reviews="+reviewsCSV)
	require.NoError(t, err)

	assert.Contains(t, out, "Chart: ratings")
	assert.Contains(t, out, "bars (bar): 5 item(s)")
	assert.Contains(t, out, "average (rule): 1 item(s)")
	assert.Contains(t, out, `x (ordinal): ["Kuala Lumpur","Penang","Ipoh","Johor Bahru"]`)
}

func TestRenderWithParameter(t *testing.T) {
	out, err := execute(t, NewRenderCommand(&RootOptions{Format: "text"}),
		chartsDir, "--chart", "ratings", "--data", "reviews="+reviewsCSV, "--set", "ratingDropdown=4")
	require.NoError(t, err)
	assert.Contains(t, out, "bars (bar): 2 item(s)")
}

func TestRenderRejectedEvents(t *testing.T) {
	tests := []struct {
		name    string
		set     string
		wantErr string
	}{
		{"value outside options", "ratingDropdown=9", "rejected event"},
		{"unknown parameter", "nope=1", "rejected event"},
		{"malformed assignment", "ratingDropdown", "invalid --set"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, NewRenderCommand(&RootOptions{Format: "text"}),
				chartsDir, "--chart", "ratings", "--data", "reviews="+reviewsCSV, "--set", tt.set)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRenderFailedLayer(t *testing.T) {
	out, err := execute(t, NewRenderCommand(&RootOptions{Format: "text"}),
		chartsDir, "--chart", "regions", "--data", "reviews="+reviewsCSV)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "1 layer(s) failed: [labelled]")

	assert.Contains(t, out, "counts (bar): 3 item(s)")
	assert.Contains(t, out, `labelled (point): stage 0 (lookup): lookup source "regions" is not loaded`)
}

func TestRenderLookup(t *testing.T) {
	out, err := execute(t, NewRenderCommand(&RootOptions{Format: "text"}),
		chartsDir, "--chart", "regions", "--data", "reviews="+reviewsCSV, "--data", "regions="+regionsJSON)
	require.NoError(t, err)
	assert.Contains(t, out, "labelled (point): 5 item(s)")
}

func TestRenderJSON(t *testing.T) {
	out, err := execute(t, NewRenderCommand(&RootOptions{Format: "json"}),
		chartsDir, "--chart", "ratings", "--data", "reviews="+reviewsCSV)
	require.NoError(t, err)

	var resp struct {
		Status string `json:"status"`
		Data   struct {
			Chart     string `json:"chart"`
			SceneHash string `json:"scene_hash"`
			Scene     struct {
				Layers []struct {
					Name  string `json:"name"`
					Items []any  `json:"items"`
				} `json:"layers"`
			} `json:"scene"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "ratings", resp.Data.Chart)
	assert.NotEmpty(t, resp.Data.SceneHash)
	require.Len(t, resp.Data.Scene.Layers, 2)
	assert.Equal(t, "bars", resp.Data.Scene.Layers[0].Name)
	assert.Len(t, resp.Data.Scene.Layers[0].Items, 5)
}

func TestRenderChartSelection(t *testing.T) {
	_, err := execute(t, NewRenderCommand(&RootOptions{Format: "text"}), chartsDir)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "2 charts in")

	_, err = execute(t, NewRenderCommand(&RootOptions{Format: "text"}), chartsDir, "--chart", "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `chart "nope" not found`)
}

func TestRenderUnreadableDataset(t *testing.T) {
	_, err := execute(t, NewRenderCommand(&RootOptions{Format: "text"}),
		chartsDir, "--chart", "ratings", "--data", "reviews=/nonexistent/reviews.csv")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), `failed to read dataset "reviews"`)
}

func TestParseAssignment(t *testing.T) {
	tests := []struct {
		in        string
		wantName  string
		wantValue ir.Value
		wantErr   bool
	}{
		{"ratingDropdown=4", "ratingDropdown", ir.Number(4), false},
		{"label=Penang", "label", ir.String("Penang"), false},
		{`label="Ipoh"`, "label", ir.String("Ipoh"), false},
		{"ratingDropdown=null", "ratingDropdown", ir.Null{}, false},
		{"range=[1,2]", "range", ir.List{ir.Number(1), ir.Number(2)}, false},
		{"empty=", "empty", ir.String(""), false},
		{"=4", "", nil, true},
		{"ratingDropdown", "", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			name, v, err := parseAssignment(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, name)
			assert.True(t, ir.Equal(tt.wantValue, v), "got %#v", v)
		})
	}
}
