package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const duplicateLayers = `package charts

chart: dup: {
	data: values: [{a: 1}]
	layer: [{name: "l", mark: "bar"}, {name: "l", mark: "point"}]
}
`

func writeChartsDir(t *testing.T, src string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "charts.cue"), []byte(src), 0644))
	return dir
}

func TestValidateCharts(t *testing.T) {
	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "text"}), chartsDir)
	require.NoError(t, err)
	assert.Contains(t, out, "2 chart(s) valid")
}

func TestValidateChartsJSON(t *testing.T) {
	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "json"}), chartsDir)
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, 2, resp.Data.Charts)
}

func TestValidateSemanticErrors(t *testing.T) {
	dir := writeChartsDir(t, duplicateLayers)

	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "text"}), dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Validation failed")
	assert.Contains(t, out, "E102: dup.layer[1].name")
}

func TestValidateSemanticErrorsJSON(t *testing.T) {
	dir := writeChartsDir(t, duplicateLayers)

	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "json"}), dir)
	require.Error(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
		Error  *CLIError        `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)
	require.NotEmpty(t, resp.Data.Errors)
	assert.Equal(t, "E102", resp.Error.Code)
}

func TestValidateCompileErrors(t *testing.T) {
	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "text"}), brokenDir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "validation failed with 2 error(s)")
	assert.Contains(t, out, "E007: load")
}

func TestValidateNoCharts(t *testing.T) {
	dir := writeChartsDir(t, "package charts\n\nother: 1\n")

	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "text"}), dir)
	require.Error(t, err)
	assert.Contains(t, out, "no charts found")
}

func TestValidateNonExistentDirectory(t *testing.T) {
	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "text"}), "/nonexistent/charts")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E005]")
}
