package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/chartflow/internal/ir"
	"github.com/roach88/chartflow/internal/scene"
	"github.com/roach88/chartflow/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			if event.Rejected {
				fmt.Fprintf(&buf, "  [%d] %s %s (rejected)\n", event.Step+1, event.Action, event.Target)
				continue
			}
			fmt.Fprintf(&buf, "  [%d] %s %s -> %v\n", event.Step+1, event.Action, event.Target, event.Recomputed)
		}
	}

	return buf.String()
}

// sceneLayer finds a layer or reports it missing.
func sceneLayer(sc *scene.Scene, typ, name string, trace []TraceEvent) (*scene.Layer, error) {
	if sc == nil {
		return nil, &AssertionError{Type: typ, Expected: "a scene", Actual: "no scene", Trace: trace}
	}
	l := sc.Layer(name)
	if l == nil {
		names := make([]string, len(sc.Layers))
		for i, l := range sc.Layers {
			names[i] = l.Name
		}
		return nil, &AssertionError{
			Type:     typ,
			Expected: fmt.Sprintf("layer %q", name),
			Actual:   fmt.Sprintf("layers %v", names),
			Trace:    trace,
		}
	}
	return l, nil
}

// assertRowCount checks the number of items a layer rendered.
func assertRowCount(result *Result, assertion Assertion) error {
	l, err := sceneLayer(result.Scene, AssertRowCount, assertion.Layer, result.Trace)
	if err != nil {
		return err
	}
	if l.Failed() {
		return &AssertionError{
			Type:     AssertRowCount,
			Expected: fmt.Sprintf("%d items in %s", assertion.Count, assertion.Layer),
			Actual:   "layer failed: " + l.Diagnostic,
			Trace:    result.Trace,
		}
	}
	if len(l.Items) != assertion.Count {
		return &AssertionError{
			Type:     AssertRowCount,
			Expected: fmt.Sprintf("%d items in %s", assertion.Count, assertion.Layer),
			Actual:   fmt.Sprintf("%d items", len(l.Items)),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertChannel checks one item's resolved channel value.
func assertChannel(result *Result, assertion Assertion) error {
	l, err := sceneLayer(result.Scene, AssertChannel, assertion.Layer, result.Trace)
	if err != nil {
		return err
	}
	if assertion.Item >= len(l.Items) {
		return &AssertionError{
			Type:     AssertChannel,
			Expected: fmt.Sprintf("item %d in %s", assertion.Item, assertion.Layer),
			Actual:   fmt.Sprintf("%d items", len(l.Items)),
			Trace:    result.Trace,
		}
	}

	expected, err := ir.FromGo(assertion.Expect)
	if err != nil {
		return fmt.Errorf("channel assertion expect: %w", err)
	}
	actual, ok := l.Items[assertion.Item].Channels[assertion.Role]
	if !ok {
		actual = ir.Null{}
	}
	if !ir.Equal(expected, actual) {
		return &AssertionError{
			Type:     AssertChannel,
			Expected: fmt.Sprintf("%s[%d].%s = %s", assertion.Layer, assertion.Item, assertion.Role, describe(expected)),
			Actual:   describe(actual),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertDomain checks a scale's domain. With a layer, the layer's
// effective scale is used; otherwise the chart-wide shared scale.
func assertDomain(result *Result, assertion Assertion) error {
	var sc *scene.Scale
	where := "chart"
	if assertion.Layer != "" {
		l, err := sceneLayer(result.Scene, AssertDomain, assertion.Layer, result.Trace)
		if err != nil {
			return err
		}
		sc = l.Scales[assertion.Scale]
		where = assertion.Layer
	} else if result.Scene != nil {
		sc = result.Scene.Scales[assertion.Scale]
	}
	if sc == nil {
		return &AssertionError{
			Type:     AssertDomain,
			Expected: fmt.Sprintf("scale %q on %s", assertion.Scale, where),
			Actual:   "no such scale",
			Trace:    result.Trace,
		}
	}

	expected, err := ir.FromGo(assertion.Expect)
	if err != nil {
		return fmt.Errorf("domain assertion expect: %w", err)
	}
	actual := ir.List(sc.Domain)
	if !ir.Equal(expected, actual) {
		return &AssertionError{
			Type:     AssertDomain,
			Expected: fmt.Sprintf("%s %s domain %s", where, assertion.Scale, describe(expected)),
			Actual:   describe(actual),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertLayerError checks that a layer failed with a matching diagnostic.
func assertLayerError(result *Result, assertion Assertion) error {
	l, err := sceneLayer(result.Scene, AssertLayerError, assertion.Layer, result.Trace)
	if err != nil {
		return err
	}
	if !l.Failed() {
		return &AssertionError{
			Type:     AssertLayerError,
			Expected: fmt.Sprintf("layer %s to fail", assertion.Layer),
			Actual:   fmt.Sprintf("rendered %d items", len(l.Items)),
			Trace:    result.Trace,
		}
	}
	if !strings.Contains(l.Diagnostic, assertion.Contains) {
		return &AssertionError{
			Type:     AssertLayerError,
			Expected: fmt.Sprintf("diagnostic containing %q", assertion.Contains),
			Actual:   l.Diagnostic,
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertRecorded counts the events the store recorded for the chart.
func assertRecorded(ctx context.Context, st *store.Store, chart string, assertion Assertion, trace []TraceEvent) error {
	query := "SELECT COUNT(*) FROM events WHERE chart = ?"
	args := []any{chart}
	if assertion.Kind != "" {
		query += " AND kind = ?"
		args = append(args, assertion.Kind)
	}

	rows, err := st.Query(ctx, query, args...)
	if err != nil {
		return &AssertionError{
			Type:     AssertRecorded,
			Expected: "query recorded events",
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}
	defer rows.Close()

	var count int
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			return fmt.Errorf("scan count: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("read count: %w", err)
	}

	if count != assertion.Count {
		what := "events"
		if assertion.Kind != "" {
			what = assertion.Kind + " events"
		}
		return &AssertionError{
			Type:     AssertRecorded,
			Expected: fmt.Sprintf("%d recorded %s", assertion.Count, what),
			Actual:   fmt.Sprintf("%d recorded", count),
			Trace:    trace,
		}
	}
	return nil
}

func describe(v ir.Value) string {
	b, err := ir.MarshalCanonical(v)
	if err != nil {
		return ir.ToString(v)
	}
	return string(b)
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Store *store.Store
	Chart string
	Ctx   context.Context
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides store access for recorded assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertRowCount:
			err = assertRowCount(result, assertion)
		case AssertChannel:
			err = assertChannel(result, assertion)
		case AssertDomain:
			err = assertDomain(result, assertion)
		case AssertLayerError:
			err = assertLayerError(result, assertion)
		case AssertRecorded:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: recorded requires store context", i)
			} else {
				err = assertRecorded(actx.Ctx, actx.Store, actx.Chart, assertion, result.Trace)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
