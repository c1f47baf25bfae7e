package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/chartflow/internal/ir"
)

// TraceSnapshot captures the step trace of a scenario execution.
// Serialized with canonical JSON for deterministic comparison.
type TraceSnapshot struct {
	ScenarioName string
	Trace        []TraceEvent
	Replayed     int
}

// value converts the snapshot to an IR value for canonical serialization.
func (s *TraceSnapshot) value() ir.Value {
	trace := make(ir.List, len(s.Trace))
	for i, event := range s.Trace {
		obj := ir.Object{
			"step":   ir.Number(event.Step),
			"action": ir.String(event.Action),
			"target": ir.String(event.Target),
		}
		if event.Rejected {
			obj["rejected"] = ir.Bool(true)
			trace[i] = obj
			continue
		}
		obj["seq"] = ir.Number(event.Seq)
		obj["pass_id"] = ir.String(event.PassID)
		recomputed := make(ir.List, len(event.Recomputed))
		for j, name := range event.Recomputed {
			recomputed[j] = ir.String(name)
		}
		obj["recomputed"] = recomputed
		rows := make(ir.Object, len(event.Rows))
		for name, n := range event.Rows {
			rows[name] = ir.Number(n)
		}
		obj["rows"] = rows
		trace[i] = obj
	}

	return ir.Object{
		"scenario_name": ir.String(s.ScenarioName),
		"trace":         trace,
		"replayed":      ir.Number(s.Replayed),
	}
}

// Canonical returns the canonical JSON encoding of the snapshot. This is
// the golden file content.
func (s *TraceSnapshot) Canonical() ([]byte, error) {
	return ir.MarshalCanonical(s.value())
}

// RunWithGolden executes a scenario and compares its trace against a golden
// file stored in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can assert further, or an error if the
// scenario could not execute. Test failure (via goldie) occurs if the trace
// doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return result, err
	}
	return result, nil
}

// AssertGolden compares an existing result's trace against a golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot := TraceSnapshot{
		ScenarioName: scenarioName,
		Trace:        result.Trace,
		Replayed:     result.Replayed,
	}
	traceJSON, err := snapshot.Canonical()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)
	return nil
}
