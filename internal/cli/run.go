package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/chartflow/internal/dataset"
	"github.com/roach88/chartflow/internal/engine"
	"github.com/roach88/chartflow/internal/ir"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Chart    string
	Data     []string
	Database string

	// PassGenerator overrides the pass ID generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	PassGenerator engine.PassGenerator
}

// PassLine is one completed pass as printed by the run command.
type PassLine struct {
	Seq        int64    `json:"seq"`
	PassID     string   `json:"pass_id"`
	Kind       string   `json:"kind"`
	Name       string   `json:"name"`
	Recomputed []string `json:"recomputed"`
	SceneHash  string   `json:"scene_hash"`
	Failed     []string `json:"failed,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <charts-dir>",
		Short: "Run a chart's event loop over events read from stdin",
		Long: `Start the single-writer event loop of a chart and feed it events read
from standard input, one JSON object per line:

  {"kind": "load", "name": "regions", "path": "regions.json"}
  {"kind": "set", "name": "ratingDropdown", "value": 4}
  {"kind": "reset", "name": "ratingDropdown"}
  {"kind": "select", "name": "ratingSelect", "tuples": [[4], [5]]}
  {"kind": "toggle", "name": "ratingSelect", "values": [4]}
  {"kind": "clear", "name": "ratingSelect"}

One line is printed per completed pass. Rejected events are logged and the
loop continues. The loop stops at end of input or on interrupt.

Example:
  chartflow run ./charts --chart ratings --data reviews=reviews.csv --db ./chartflow.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChart(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Chart, "chart", "", "chart name (optional when the package declares one chart)")
	cmd.Flags().StringArrayVar(&opts.Data, "data", nil, "dataset loaded before input events, as name=path (repeatable)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database for recording")

	return cmd
}

func runChart(opts *RunOptions, chartsDir string, cmd *cobra.Command) error {
	defer configureLogging(opts.Verbose, cmd.ErrOrStderr())()

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

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

	out := cmd.OutOrStdout()
	enc := json.NewEncoder(out)
	unsubscribe := chart.Subscribe(func(p engine.Pass) {
		line := passLine(p)
		if opts.Format == "json" {
			_ = enc.Encode(line)
			return
		}
		fmt.Fprintf(out, "[%d] %s %s -> %v\n", line.Seq, line.Kind, line.Name, line.Recomputed)
		for _, name := range line.Failed {
			fmt.Fprintf(out, "    \u2717 %s: %s\n", name, p.Scene.Layer(name).Diagnostic)
		}
	})
	defer unsubscribe()

	if err := dispatchAll(chart, tables, nil); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	done := make(chan error, 1)
	go func() {
		done <- chart.Run(ctx)
	}()

	readErr := feedEvents(ctx, chart, cmd.InOrStdin())
	chart.Stop()

	if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "chart error", err)
	}
	if readErr != nil {
		return WrapExitError(ExitCommandError, "failed to read events", readErr)
	}
	slog.Info("chart stopped gracefully", "chart", def.Name)
	return nil
}

// passLine summarizes a pass for output.
func passLine(p engine.Pass) PassLine {
	line := PassLine{
		Seq:        p.Seq,
		PassID:     p.ID,
		Kind:       string(p.Event.Kind),
		Name:       p.Event.Name,
		Recomputed: p.Recomputed,
		SceneHash:  p.SceneHash,
	}
	for _, name := range p.Recomputed {
		if l := p.Scene.Layer(name); l != nil && l.Failed() {
			line.Failed = append(line.Failed, name)
		}
	}
	return line
}

// feedEvents dispatches one event per non-empty input line until end of
// input or cancellation. Malformed and rejected lines are logged and
// skipped.
func feedEvents(ctx context.Context, chart *engine.Chart, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	n := 0
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		n++
		text := scanner.Bytes()
		if len(bytes.TrimSpace(text)) == 0 {
			continue
		}
		if err := dispatchLine(chart, text); err != nil {
			slog.Error("event rejected", "line", n, "error", err)
		}
	}
	return scanner.Err()
}

// dispatchLine decodes one input line and submits it through the typed
// chart helpers, which reject unknown parameters and invalid values.
func dispatchLine(chart *engine.Chart, line []byte) error {
	v, err := ir.UnmarshalValue(line)
	if err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	in, ok := v.(ir.Object)
	if !ok {
		return fmt.Errorf("event must be a JSON object")
	}
	kind, _ := in["kind"].(ir.String)
	name, _ := in["name"].(ir.String)
	if name == "" {
		return fmt.Errorf("event name is required")
	}

	switch engine.EventKind(kind) {
	case engine.EventLoad:
		path, _ := in["path"].(ir.String)
		if path == "" {
			return fmt.Errorf("load %q: path is required", name)
		}
		t, err := dataset.Load(string(path), dataset.Options{})
		if err != nil {
			return fmt.Errorf("load %q: %w", name, err)
		}
		return chart.Load(string(name), t)
	case engine.EventSet:
		value, ok := in["value"]
		if !ok {
			value = ir.Null{}
		}
		return chart.SetParameter(string(name), value)
	case engine.EventReset:
		return chart.ResetParameter(string(name))
	case engine.EventSelect:
		list, _ := in["tuples"].(ir.List)
		tuples := make([][]ir.Value, 0, len(list))
		for i, t := range list {
			tuple, ok := t.(ir.List)
			if !ok {
				return fmt.Errorf("select %q: tuples[%d] must be a list", name, i)
			}
			tuples = append(tuples, tuple)
		}
		return chart.SelectValues(string(name), tuples...)
	case engine.EventToggle:
		values, ok := in["values"].(ir.List)
		if !ok || len(values) == 0 {
			return fmt.Errorf("toggle %q: values is required", name)
		}
		return chart.ToggleValue(string(name), values...)
	case engine.EventClear:
		return chart.ClearSelection(string(name))
	default:
		return fmt.Errorf("unknown event kind %q", kind)
	}
}
