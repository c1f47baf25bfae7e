package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/chartflow/internal/compiler"
	"github.com/roach88/chartflow/internal/dataset"
	"github.com/roach88/chartflow/internal/engine"
	"github.com/roach88/chartflow/internal/ir"
)

// loadDefinition compiles, validates and builds one chart of the CUE
// package at dir. Every failure is a command error.
func loadDefinition(dir, name string) (engine.Definition, error) {
	loaded, errs := compiler.LoadDir(dir, compiler.LoadModeFailFast)
	if len(errs) > 0 {
		return engine.Definition{}, WrapExitError(ExitCommandError, "failed to load charts", errs[0])
	}

	if name == "" {
		if len(loaded.Charts) != 1 {
			return engine.Definition{}, NewExitError(ExitCommandError,
				fmt.Sprintf("%d charts in %s, choose one with --chart", len(loaded.Charts), dir))
		}
		name = loaded.Charts[0].Name
	}
	spec, ok := loaded.Chart(name)
	if !ok {
		return engine.Definition{}, NewExitError(ExitCommandError, fmt.Sprintf("chart %q not found in %s", name, dir))
	}

	if verrs := compiler.Validate(spec); len(verrs) > 0 {
		msgs := make([]string, len(verrs))
		for i, v := range verrs {
			msgs[i] = v.Error()
		}
		return engine.Definition{}, NewExitError(ExitCommandError,
			fmt.Sprintf("chart %q is invalid: %s", name, strings.Join(msgs, "; ")))
	}

	def, err := compiler.Build(spec)
	if err != nil {
		return engine.Definition{}, WrapExitError(ExitCommandError, fmt.Sprintf("chart %q", name), err)
	}
	return def, nil
}

// namedTable is a dataset read from a --data flag.
type namedTable struct {
	Name  string
	Table ir.Table
}

// readDatasets reads each name=path flag value, in flag order.
func readDatasets(specs []string) ([]namedTable, error) {
	out := make([]namedTable, 0, len(specs))
	for _, s := range specs {
		spec, err := dataset.ParseSpec(s)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "invalid --data", err)
		}
		t, err := dataset.Load(spec.Path, dataset.Options{})
		if err != nil {
			return nil, WrapExitError(ExitCommandError, fmt.Sprintf("failed to read dataset %q", spec.Name), err)
		}
		out = append(out, namedTable{Name: spec.Name, Table: t})
	}
	return out, nil
}

// parseAssignment parses a --set flag value of the form name=value. The
// value is read as JSON when it parses, otherwise as a plain string.
func parseAssignment(s string) (string, ir.Value, error) {
	name, raw, found := strings.Cut(s, "=")
	if !found || name == "" {
		return "", nil, fmt.Errorf("invalid assignment %q, want name=value", s)
	}
	v, err := ir.UnmarshalValue([]byte(raw))
	if err != nil {
		return name, ir.String(raw), nil
	}
	return name, v, nil
}

// dispatchAll submits the dataset loads and then the parameter assignments.
// Assignments are checked before anything is dispatched.
func dispatchAll(chart *engine.Chart, tables []namedTable, assignments []string) error {
	type assignment struct {
		name  string
		value ir.Value
	}
	parsed := make([]assignment, 0, len(assignments))
	for _, a := range assignments {
		name, v, err := parseAssignment(a)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --set", err)
		}
		parsed = append(parsed, assignment{name, v})
	}

	var errs []error
	for _, t := range tables {
		if err := chart.Load(t.Name, t.Table); err != nil {
			errs = append(errs, err)
		}
	}
	for _, a := range parsed {
		if err := chart.SetParameter(a.name, a.value); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return WrapExitError(ExitCommandError, "rejected event", errors.Join(errs...))
	}
	return nil
}
