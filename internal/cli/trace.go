package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/chartflow/internal/ir"
	"github.com/roach88/chartflow/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Chart    string
	Kind     string // optional - filter to one event kind
}

// TraceEvent is one recorded event in the trace timeline.
type TraceEvent struct {
	Seq       int64        `json:"seq"`
	ID        string       `json:"id"`
	Kind      string       `json:"kind"`
	Name      string       `json:"name"`
	Payload   string       `json:"payload"`
	PassID    string       `json:"pass_id,omitempty"`
	SceneHash string       `json:"scene_hash,omitempty"`
	Layers    []TraceLayer `json:"layers,omitempty"`
}

// TraceLayer is one layer recomputed by an event's pass.
type TraceLayer struct {
	Layer     string `json:"layer"`
	Rows      int    `json:"rows"`
	TableHash string `json:"table_hash,omitempty"`
	Error     string `json:"error,omitempty"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Chart    string       `json:"chart"`
	Timeline []TraceEvent `json:"timeline"`
	Stats    TraceStats   `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	TotalEvents  int   `json:"total_events"`
	Rendered     int   `json:"rendered"`
	Unrendered   int   `json:"unrendered"`
	FailedLayers int   `json:"failed_layers"`
	LastSeq      int64 `json:"last_seq"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the recorded history of a chart",
		Long: `Show the recorded events of a chart in seq order, each with the pass
it ran: the layers recomputed, their row counts and diagnostics, and the
resulting scene hash.

Events logged without a scene were interrupted before their pass
completed.

Examples:
  chartflow trace --db ./chartflow.db --chart ratings
  chartflow trace --db ./chartflow.db --chart ratings --kind set
  chartflow trace --db ./chartflow.db --chart ratings --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Chart, "chart", "", "chart to trace (required)")
	_ = cmd.MarkFlagRequired("chart")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "filter to one event kind (load, set, reset, select, toggle, clear)")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	st, err := openExistingStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	trace, err := st.GetChartTrace(ctx, opts.Chart)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read trace", err)
	}

	if len(trace.Entries) == 0 {
		if opts.Format == "json" {
			return outputTraceJSON(cmd, TraceResult{
				Chart:    opts.Chart,
				Timeline: []TraceEvent{},
			})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "No events found for chart: %s\n", opts.Chart)
		return nil
	}

	result := TraceResult{
		Chart:    opts.Chart,
		Timeline: buildTimeline(trace, opts.Kind),
		Stats:    traceStats(trace),
	}

	if opts.Format == "json" {
		return outputTraceJSON(cmd, result)
	}
	return outputTraceText(cmd, result, opts.Verbose)
}

// buildTimeline converts trace entries to timeline events. When kind is
// set, only events of that kind are included.
func buildTimeline(trace store.ChartTrace, kind string) []TraceEvent {
	timeline := make([]TraceEvent, 0, len(trace.Entries))
	for _, entry := range trace.Entries {
		ev := entry.Event
		if kind != "" && ev.Kind != kind {
			continue
		}
		te := TraceEvent{
			Seq:     ev.Seq,
			ID:      ev.ID,
			Kind:    ev.Kind,
			Name:    ev.Name,
			Payload: summarizePayload(ev.Kind, ev.Payload),
		}
		if entry.Scene != nil {
			te.PassID = entry.Scene.PassID
			te.SceneHash = entry.Scene.SceneHash
		}
		for _, p := range entry.Passes {
			te.Layers = append(te.Layers, TraceLayer{
				Layer:     p.Layer,
				Rows:      p.Rows,
				TableHash: p.TableHash,
				Error:     p.Error,
			})
		}
		timeline = append(timeline, te)
	}
	return timeline
}

func traceStats(trace store.ChartTrace) TraceStats {
	stats := TraceStats{TotalEvents: len(trace.Entries), LastSeq: trace.LastSeq}
	for _, entry := range trace.Entries {
		if entry.Scene == nil {
			stats.Unrendered++
			continue
		}
		stats.Rendered++
		for _, p := range entry.Passes {
			if p.Error != "" {
				stats.FailedLayers++
			}
		}
	}
	return stats
}

// summarizePayload renders an event payload for display. Dataset loads are
// summarized by row count rather than printed in full.
func summarizePayload(kind string, payload ir.Value) string {
	if kind == "load" {
		if obj, ok := payload.(ir.Object); ok {
			rows, _ := obj["rows"].(ir.List)
			return fmt.Sprintf("%d row(s)", len(rows))
		}
	}
	if payload == nil {
		return "null"
	}
	b, err := ir.MarshalCanonical(payload)
	if err != nil {
		return ir.ToString(payload)
	}
	return string(b)
}

// outputTraceJSON outputs the trace result as JSON.
func outputTraceJSON(cmd *cobra.Command, result TraceResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}

	return writeResponse(cmd.OutOrStdout(), response)
}

// outputTraceText outputs the trace result as text.
func outputTraceText(cmd *cobra.Command, result TraceResult, verbose bool) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Trace for Chart: %s\n", result.Chart)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no events)")
	}
	for _, event := range result.Timeline {
		formatTimelineEvent(w, event, verbose)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Total Events:  %d\n", result.Stats.TotalEvents)
	fmt.Fprintf(w, "  Rendered:      %d\n", result.Stats.Rendered)
	fmt.Fprintf(w, "  Unrendered:    %d\n", result.Stats.Unrendered)
	fmt.Fprintf(w, "  Failed Layers: %d\n", result.Stats.FailedLayers)
	return nil
}

// formatTimelineEvent formats a single timeline event for text output.
func formatTimelineEvent(w io.Writer, event TraceEvent, verbose bool) {
	fmt.Fprintf(w, "  [%d] %s %s %s\n", event.Seq, event.Kind, event.Name, event.Payload)
	if event.SceneHash == "" {
		fmt.Fprintln(w, "       (no scene)")
		return
	}
	for _, l := range event.Layers {
		if l.Error != "" {
			fmt.Fprintf(w, "       \u2717 %s: %s\n", l.Layer, l.Error)
			continue
		}
		fmt.Fprintf(w, "       %s: %d row(s)\n", l.Layer, l.Rows)
	}
	if verbose {
		fmt.Fprintf(w, "       Scene: %s\n", truncateID(event.SceneHash))
		fmt.Fprintf(w, "       ID: %s\n", truncateID(event.ID))
	}
}

// truncateID truncates a long ID for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}
