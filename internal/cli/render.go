package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/chartflow/internal/engine"
	"github.com/roach88/chartflow/internal/ir"
	"github.com/roach88/chartflow/internal/scene"
	"github.com/roach88/chartflow/internal/store"
)

// RenderOptions holds flags for the render command.
type RenderOptions struct {
	*RootOptions
	Chart    string
	Data     []string // name=path
	Set      []string // param=value
	Database string

	// PassGenerator overrides the pass ID generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	PassGenerator engine.PassGenerator
}

// RenderResult is the JSON payload of the render command.
type RenderResult struct {
	Chart     string   `json:"chart"`
	SceneHash string   `json:"scene_hash"`
	Failed    []string `json:"failed,omitempty"`
	Scene     ir.Value `json:"scene"`
}

// NewRenderCommand creates the render command.
func NewRenderCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RenderOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "render <charts-dir>",
		Short: "Render a chart to a scene",
		Long: `Load datasets into a chart, apply parameter assignments and print the
resulting scene.

Parameter values are read as JSON when they parse and as strings otherwise.
With --db every event and scene is recorded for replay.

Exit codes:
  0 - Every layer rendered
  1 - One or more layers failed (diagnostics are printed)
  2 - Command error (chart not found, dataset unreadable, rejected event)

Examples:
  chartflow render ./charts --chart ratings --data reviews=reviews.csv
  chartflow render ./charts --chart ratings --data reviews.csv --set ratingDropdown=4
  chartflow render ./charts --chart lollipop --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Chart, "chart", "", "chart name (optional when the package declares one chart)")
	cmd.Flags().StringArrayVar(&opts.Data, "data", nil, "dataset as name=path (repeatable)")
	cmd.Flags().StringArrayVar(&opts.Set, "set", nil, "parameter assignment as name=value (repeatable)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database for recording")

	return cmd
}

func runRender(opts *RenderOptions, chartsDir string, cmd *cobra.Command) error {
	defer configureLogging(opts.Verbose, cmd.ErrOrStderr())()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	def, err := loadDefinition(chartsDir, opts.Chart)
	if err != nil {
		return err
	}
	tables, err := readDatasets(opts.Data)
	if err != nil {
		return err
	}

	chart, closeStore, err := openChart(ctx, def, opts.Database, opts.PassGenerator)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := dispatchAll(chart, tables, opts.Set); err != nil {
		return err
	}
	if err := chart.Drain(ctx); err != nil {
		return WrapExitError(ExitCommandError, "rejected event", err)
	}

	sc := chart.Scene()
	hash, err := sc.Hash()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to hash scene", err)
	}
	slog.Debug("scene rendered", "chart", def.Name, "scene_hash", hash)

	var failed []string
	for _, l := range sc.Layers {
		if l.Failed() {
			failed = append(failed, l.Name)
		}
	}

	if opts.Format == "json" {
		formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
		if err := formatter.Success(RenderResult{
			Chart:     def.Name,
			SceneHash: hash,
			Failed:    failed,
			Scene:     sc.Value(),
		}); err != nil {
			return err
		}
	} else {
		writeSceneText(cmd.OutOrStdout(), def.Name, hash, sc)
	}

	if len(failed) > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d layer(s) failed: %v", len(failed), failed))
	}
	return nil
}

// openChart instantiates def, recording to the database at path when set.
// A chart that already has events in the database is restored by
// re-applying them first; their IDs are derived from seq and content, so
// nothing is recorded twice. The returned func closes the store.
func openChart(ctx context.Context, def engine.Definition, path string, gen engine.PassGenerator) (*engine.Chart, func(), error) {
	var opts []engine.Option
	if gen != nil {
		opts = append(opts, engine.WithPassGenerator(gen))
	}
	if path == "" {
		chart, err := engine.New(def, opts...)
		if err != nil {
			return nil, nil, WrapExitError(ExitCommandError, "failed to create chart", err)
		}
		return chart, func() {}, nil
	}

	st, err := store.Open(path)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	closeStore := func() {
		if err := st.Close(); err != nil {
			slog.Error("error closing database", "error", err)
		}
	}

	chart, err := engine.New(def, append(opts, engine.WithStore(st))...)
	if err != nil {
		closeStore()
		return nil, nil, WrapExitError(ExitCommandError, "failed to create chart", err)
	}
	if err := restoreChart(ctx, chart, st); err != nil {
		closeStore()
		return nil, nil, err
	}
	return chart, closeStore, nil
}

// restoreChart re-applies the recorded events of the chart.
func restoreChart(ctx context.Context, chart *engine.Chart, st *store.Store) error {
	trace, err := st.GetChartTrace(ctx, chart.Name())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read database", err)
	}
	for _, entry := range trace.Entries {
		ev, err := engine.EventFromPayload(entry.Event.Kind, entry.Event.Name, entry.Event.Payload)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("recorded event seq %d", entry.Event.Seq), err)
		}
		if err := chart.Dispatch(ev); err != nil {
			return WrapExitError(ExitCommandError, "failed to restore chart", err)
		}
	}
	if err := chart.Drain(ctx); err != nil {
		return WrapExitError(ExitCommandError, "failed to restore chart", err)
	}
	if len(trace.Entries) > 0 {
		slog.Info("chart restored", "chart", chart.Name(), "events", len(trace.Entries), "last_seq", trace.LastSeq)
	}
	return nil
}

// writeSceneText prints one line per layer and per shared scale.
func writeSceneText(w io.Writer, chart, hash string, sc *scene.Scene) {
	fmt.Fprintf(w, "Chart: %s\n", chart)
	fmt.Fprintf(w, "Scene: %s\n\n", hash)

	fmt.Fprintln(w, "Layers:")
	for _, l := range sc.Layers {
		if l.Failed() {
			fmt.Fprintf(w, "  \u2717 %s (%s): %s\n", l.Name, l.Mark, l.Diagnostic)
			continue
		}
		fmt.Fprintf(w, "  %s (%s): %d item(s)\n", l.Name, l.Mark, len(l.Items))
	}

	if len(sc.Scales) == 0 {
		return
	}
	names := make([]string, 0, len(sc.Scales))
	for name := range sc.Scales {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Scales:")
	for _, name := range names {
		s := sc.Scales[name]
		domain, err := ir.MarshalCanonical(ir.List(s.Domain))
		if err != nil {
			domain = []byte("?")
		}
		fmt.Fprintf(w, "  %s (%s): %s\n", name, s.Type, domain)
	}
}
