package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/chartflow/internal/engine"
	"github.com/roach88/chartflow/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	Chart    string // optional - specific chart only
}

// ReplayMismatch is one recorded scene that was not reproduced.
type ReplayMismatch struct {
	Seq      int64    `json:"seq"`
	Recorded string   `json:"recorded"`
	Replayed string   `json:"replayed"`
	Layers   []string `json:"layers,omitempty"`
}

// ReplayChartResult holds the replay result for a single chart.
type ReplayChartResult struct {
	Chart         string           `json:"chart"`
	Events        int              `json:"events"`
	Verified      int              `json:"verified"`
	Unrendered    int              `json:"unrendered"`
	Mismatches    []ReplayMismatch `json:"mismatches,omitempty"`
	Deterministic bool             `json:"deterministic"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Charts           []ReplayChartResult `json:"charts"`
	TotalCharts      int                 `json:"total_charts"`
	AllDeterministic bool                `json:"all_deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <charts-dir>",
		Short: "Replay recorded events and verify determinism",
		Long: `Re-apply every recorded event of a chart, in seq order, to a fresh
instance built from the chart declarations, and compare each resulting
scene hash and layer table hash with the recorded ones.

Exit codes:
  0 - Every recorded scene was reproduced
  1 - One or more scenes differ on replay
  2 - Command error (database not found, chart not declared, etc.)

Examples:
  chartflow replay ./charts --db ./chartflow.db
  chartflow replay ./charts --db ./chartflow.db --chart ratings
  chartflow replay ./charts --db ./chartflow.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Chart, "chart", "", "replay specific chart only")

	return cmd
}

func runReplay(opts *ReplayOptions, chartsDir string, cmd *cobra.Command) error {
	defer configureLogging(opts.Verbose, cmd.ErrOrStderr())()
	ctx := context.Background()

	st, err := openExistingStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	var charts []string
	if opts.Chart != "" {
		charts = []string{opts.Chart}
	} else {
		charts, err = st.ListCharts(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list charts", err)
		}
	}

	if len(charts) == 0 {
		if opts.Format == "json" {
			return outputReplayJSON(cmd, ReplayResult{
				Charts:           []ReplayChartResult{},
				AllDeterministic: true,
			})
		}
		fmt.Fprintln(cmd.OutOrStdout(), "No charts found in database.")
		return nil
	}

	result := ReplayResult{
		Charts:           make([]ReplayChartResult, 0, len(charts)),
		TotalCharts:      len(charts),
		AllDeterministic: true,
	}
	for _, name := range charts {
		def, err := loadDefinition(chartsDir, name)
		if err != nil {
			return err
		}
		chartResult, err := replayChart(ctx, st, def)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to replay chart %s", name), err)
		}
		result.Charts = append(result.Charts, chartResult)
		if !chartResult.Deterministic {
			result.AllDeterministic = false
		}
	}

	if opts.Format == "json" {
		return outputReplayJSON(cmd, result)
	}
	return outputReplayText(cmd, result, opts.Verbose)
}

// openExistingStore opens a database that must already exist; store.Open
// would otherwise create an empty one.
func openExistingStore(path string) (*store.Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, WrapExitError(ExitCommandError, "database not found", err)
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

// replayChart replays one chart. A replay mismatch is a result, not an
// error.
func replayChart(ctx context.Context, st *store.Store, def engine.Definition) (ReplayChartResult, error) {
	report, err := engine.Replay(ctx, st, def)
	if err != nil && !engine.IsReplayMismatch(err) {
		return ReplayChartResult{}, err
	}

	out := ReplayChartResult{
		Chart:         report.Chart,
		Events:        report.Events,
		Verified:      report.Verified,
		Unrendered:    report.Unrendered,
		Deterministic: report.OK(),
	}
	for _, m := range report.Mismatches {
		out.Mismatches = append(out.Mismatches, ReplayMismatch{
			Seq:      m.Seq,
			Recorded: m.Recorded,
			Replayed: m.Replayed,
			Layers:   m.Layers,
		})
	}
	return out, nil
}

// outputReplayJSON outputs the replay result as JSON.
func outputReplayJSON(cmd *cobra.Command, result ReplayResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}

	if !result.AllDeterministic {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "E_DETERMINISM",
			Message: "determinism verification failed",
		}
	}

	if err := writeResponse(cmd.OutOrStdout(), response); err != nil {
		return err
	}

	if !result.AllDeterministic {
		// Determinism failure = exit code 1
		return NewExitError(ExitFailure, "determinism verification failed")
	}
	return nil
}

// outputReplayText outputs the replay result as text.
func outputReplayText(cmd *cobra.Command, result ReplayResult, verbose bool) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Replay Summary: %d chart(s)\n", result.TotalCharts)
	fmt.Fprintln(w)

	for _, chart := range result.Charts {
		status := "\u2713"
		if !chart.Deterministic {
			status = "\u2717"
		}
		fmt.Fprintf(w, "%s Chart: %s\n", status, chart.Chart)
		fmt.Fprintf(w, "  Events: %d, verified %d\n", chart.Events, chart.Verified)
		if verbose && chart.Unrendered > 0 {
			fmt.Fprintf(w, "  Unrendered: %d\n", chart.Unrendered)
		}
		for _, m := range chart.Mismatches {
			fmt.Fprintf(w, "  seq %d: recorded %s, replayed %s", m.Seq, m.Recorded, m.Replayed)
			if len(m.Layers) > 0 {
				fmt.Fprintf(w, " (layers %v)", m.Layers)
			}
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w)
	}

	if result.AllDeterministic {
		fmt.Fprintln(w, "\u2713 All charts verified deterministic")
		return nil
	}

	fmt.Fprintln(w, "\u2717 Determinism verification failed")
	// Determinism failure = exit code 1
	return NewExitError(ExitFailure, "determinism verification failed")
}
