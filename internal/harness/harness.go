package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/roach88/chartflow/internal/compiler"
	"github.com/roach88/chartflow/internal/dataset"
	"github.com/roach88/chartflow/internal/engine"
	"github.com/roach88/chartflow/internal/ir"
	"github.com/roach88/chartflow/internal/store"
	"github.com/roach88/chartflow/internal/testutil"
)

// Harness is the scenario execution engine.
// It runs scenarios with a deterministic clock and pass IDs.
type Harness struct {
	store    *store.Store
	chart    *engine.Chart
	def      engine.Definition
	datasets map[string]ir.Table
	logger   *slog.Logger

	passes []engine.Pass
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory store for isolation, and every
// recorded pass is replayed against a second instance of the chart before
// assertions run, so a scenario also proves its trace is reproducible.
//
// Execution flow:
// 1. Load, validate and build the chart
// 2. Read every declared dataset
// 3. Apply steps, draining each one's pass
// 4. Replay the recorded trace
// 5. Evaluate assertions on the final scene
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	def, err := buildChart(scenario.Charts, scenario.Chart)
	if err != nil {
		return nil, err
	}

	datasets := make(map[string]ir.Table, len(scenario.Datasets))
	for _, name := range sortedKeys(scenario.Datasets) {
		t, err := dataset.Load(scenario.Datasets[name], dataset.Options{})
		if err != nil {
			return nil, fmt.Errorf("dataset %q: %w", name, err)
		}
		datasets[name] = t
	}

	st, err := store.Open(store.MemoryPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	prefix := scenario.PassPrefix
	if prefix == "" {
		prefix = scenario.Name
	}
	chart, err := engine.New(def,
		engine.WithStore(st),
		engine.WithClock(testutil.NewDeterministicClock()),
		engine.WithPassGenerator(testutil.NewSequentialPassGenerator(prefix)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create chart: %w", err)
	}

	h := &Harness{
		store:    st,
		chart:    chart,
		def:      def,
		datasets: datasets,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}
	unsubscribe := chart.Subscribe(func(p engine.Pass) {
		h.passes = append(h.passes, p)
	})
	defer unsubscribe()

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}
	result.Scene = chart.Scene()

	report, err := engine.Replay(ctx, st, def)
	switch {
	case engine.IsReplayMismatch(err):
		for _, m := range report.Mismatches {
			result.AddError(fmt.Sprintf("replay diverged at seq %d (layers %v)", m.Seq, m.Layers))
		}
	case err != nil:
		return nil, fmt.Errorf("replay: %w", err)
	}
	if report != nil {
		result.Replayed = report.Verified
	}

	actx := &AssertionContext{
		Store: st,
		Chart: def.Name,
		Ctx:   ctx,
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	return result, nil
}

// buildChart loads the CUE package at dir and builds the named chart.
func buildChart(dir, name string) (engine.Definition, error) {
	loaded, errs := compiler.LoadDir(dir, compiler.LoadModeCollectAll)
	if len(errs) > 0 {
		return engine.Definition{}, fmt.Errorf("failed to load charts: %w", errors.Join(errs...))
	}
	spec, ok := loaded.Chart(name)
	if !ok {
		return engine.Definition{}, fmt.Errorf("chart %q not found in %s", name, dir)
	}
	if verrs := compiler.Validate(spec); len(verrs) > 0 {
		msgs := make([]string, len(verrs))
		for i, v := range verrs {
			msgs[i] = v.Error()
		}
		return engine.Definition{}, fmt.Errorf("chart %q is invalid: %s", name, strings.Join(msgs, "; "))
	}
	def, err := compiler.Build(spec)
	if err != nil {
		return engine.Definition{}, fmt.Errorf("chart %q: %w", name, err)
	}
	return def, nil
}

// executeStep dispatches one step, drains the chart and records the step's
// pass. A step rejected at dispatch or while applying produces no pass.
// Errors returned here abort the scenario; mismatched expectations are
// recorded on result instead.
func (h *Harness) executeStep(ctx context.Context, i int, step Step, result *Result) error {
	action, target, _ := step.Action()
	before := len(h.passes)

	err := h.dispatch(action, target, step)
	if err == nil {
		err = h.chart.Drain(ctx)
	}

	ev := TraceEvent{Step: i, Action: action, Target: target}
	switch {
	case err != nil && step.ExpectError:
		ev.Rejected = true
		result.AddTrace(ev)
		h.logger.Info("step rejected as expected",
			"step", i,
			"action", action,
			"target", target,
			"error", err,
		)
		return nil
	case err != nil:
		ev.Rejected = true
		result.AddTrace(ev)
		result.AddError(fmt.Sprintf("step %d (%s %s): %v", i, action, target, err))
		return nil
	case step.ExpectError:
		result.AddError(fmt.Sprintf("step %d (%s %s): expected an error", i, action, target))
	}

	if len(h.passes) != before+1 {
		return fmt.Errorf("expected one pass, observed %d", len(h.passes)-before)
	}
	pass := h.passes[len(h.passes)-1]

	ev.Seq = pass.Seq
	ev.PassID = pass.ID
	ev.Recomputed = slices.Clone(pass.Recomputed)
	ev.Rows = make(map[string]int, len(pass.Recomputed))
	for _, name := range pass.Recomputed {
		if l := pass.Scene.Layer(name); l != nil && !l.Failed() {
			ev.Rows[name] = len(l.Items)
		}
	}
	result.AddTrace(ev)

	if step.Recomputed != nil && !slices.Equal(step.Recomputed, pass.Recomputed) {
		result.AddError(fmt.Sprintf("step %d (%s %s): recomputed %v, expected %v",
			i, action, target, pass.Recomputed, step.Recomputed))
	}

	h.logger.Info("step completed",
		"step", i,
		"action", action,
		"target", target,
		"seq", pass.Seq,
		"pass_id", pass.ID,
		"recomputed", len(pass.Recomputed),
	)
	return nil
}

func (h *Harness) dispatch(action, target string, step Step) error {
	switch action {
	case ActionLoad:
		t, ok := h.datasets[target]
		if !ok {
			return fmt.Errorf("dataset %q not declared", target)
		}
		return h.chart.Load(target, t)
	case ActionSet:
		v, err := ir.FromGo(step.Value)
		if err != nil {
			return fmt.Errorf("value: %w", err)
		}
		return h.chart.SetParameter(target, v)
	case ActionReset:
		return h.chart.ResetParameter(target)
	case ActionSelect:
		tuples := make([][]ir.Value, len(step.Tuples))
		for i, tuple := range step.Tuples {
			vals, err := convertTuple(tuple)
			if err != nil {
				return fmt.Errorf("tuples[%d]: %w", i, err)
			}
			tuples[i] = vals
		}
		return h.chart.SelectValues(target, tuples...)
	case ActionToggle:
		vals, err := convertTuple(step.Values)
		if err != nil {
			return fmt.Errorf("values: %w", err)
		}
		return h.chart.ToggleValue(target, vals...)
	case ActionClear:
		return h.chart.ClearSelection(target)
	}
	return fmt.Errorf("unknown action %q", action)
}

// convertTuple converts YAML-decoded values to IR values.
func convertTuple(vals []any) ([]ir.Value, error) {
	out := make([]ir.Value, len(vals))
	for i, v := range vals {
		iv, err := ir.FromGo(v)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		out[i] = iv
	}
	return out, nil
}
