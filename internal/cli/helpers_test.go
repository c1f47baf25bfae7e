package cli

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

var (
	chartsDir    = filepath.Join("..", "harness", "testdata", "charts")
	scenariosDir = filepath.Join("..", "harness", "testdata", "scenarios")
	reviewsCSV   = filepath.Join("..", "harness", "testdata", "data", "reviews.csv")
	regionsJSON  = filepath.Join("..", "harness", "testdata", "data", "regions.json")
	brokenDir    = filepath.Join("..", "compiler", "testdata", "broken")
)

// execute runs cmd with args and returns what it wrote to stdout.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	return executeWithInput(t, cmd, "", args...)
}

func executeWithInput(t *testing.T, cmd *cobra.Command, input string, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(input))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}
