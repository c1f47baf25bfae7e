package engine

import (
	"fmt"

	"github.com/roach88/chartflow/internal/ir"
)

// EventKind distinguishes the external events a chart reacts to.
type EventKind string

const (
	// EventLoad delivers a dataset.
	EventLoad EventKind = "load"
	// EventSet assigns a parameter value.
	EventSet EventKind = "set"
	// EventReset restores a parameter default.
	EventReset EventKind = "reset"
	// EventSelect replaces a selection.
	EventSelect EventKind = "select"
	// EventToggle adds or removes one selection tuple.
	EventToggle EventKind = "toggle"
	// EventClear empties a selection.
	EventClear EventKind = "clear"
)

// Event is one external input to a chart. Name is the dataset for loads and
// the parameter otherwise.
type Event struct {
	Kind   EventKind
	Name   string
	Value  ir.Value
	Tuples [][]ir.Value
	Table  *ir.Table
}

// Load returns an event delivering a dataset.
func Load(dataset string, t ir.Table) Event {
	return Event{Kind: EventLoad, Name: dataset, Table: &t}
}

// Set returns an event assigning a parameter.
func Set(param string, v ir.Value) Event {
	return Event{Kind: EventSet, Name: param, Value: v}
}

// Reset returns an event restoring a parameter default.
func Reset(param string) Event {
	return Event{Kind: EventReset, Name: param}
}

// Select returns an event replacing a selection with tuples.
func Select(param string, tuples ...[]ir.Value) Event {
	return Event{Kind: EventSelect, Name: param, Tuples: tuples}
}

// Toggle returns an event toggling one selection tuple.
func Toggle(param string, tuple ...ir.Value) Event {
	return Event{Kind: EventToggle, Name: param, Tuples: [][]ir.Value{tuple}}
}

// Clear returns an event emptying a selection.
func Clear(param string) Event {
	return Event{Kind: EventClear, Name: param}
}

// Payload renders the event's data as a canonical value, as recorded in the
// trace store.
func (e Event) Payload() ir.Value {
	switch e.Kind {
	case EventLoad:
		if e.Table == nil {
			return ir.Null{}
		}
		fields := make(ir.List, len(e.Table.Fields))
		for i, f := range e.Table.Fields {
			fields[i] = ir.String(f)
		}
		return ir.Object{"fields": fields, "rows": e.Table.Objects()}
	case EventSet:
		if e.Value == nil {
			return ir.Null{}
		}
		return e.Value
	case EventSelect, EventToggle:
		tuples := make(ir.List, len(e.Tuples))
		for i, t := range e.Tuples {
			tuples[i] = ir.List(t)
		}
		return tuples
	}
	return ir.Null{}
}

// EventFromPayload rebuilds an event from its recorded kind, name and
// payload.
func EventFromPayload(kind, name string, payload ir.Value) (Event, error) {
	switch EventKind(kind) {
	case EventLoad:
		obj, ok := payload.(ir.Object)
		if !ok {
			return Event{}, fmt.Errorf("load payload: want object, got %T", payload)
		}
		var fields []string
		if fl, ok := obj["fields"].(ir.List); ok {
			for _, f := range fl {
				fields = append(fields, ir.ToString(f))
			}
		}
		var rows []ir.Row
		if rl, ok := obj["rows"].(ir.List); ok {
			for _, r := range rl {
				ro, ok := r.(ir.Object)
				if !ok {
					return Event{}, fmt.Errorf("load payload: row is %T", r)
				}
				rows = append(rows, ir.Row(ro))
			}
		}
		return Load(name, ir.NewTableWithFields(fields, rows)), nil
	case EventSet:
		return Set(name, payload), nil
	case EventReset:
		return Reset(name), nil
	case EventClear:
		return Clear(name), nil
	case EventSelect, EventToggle:
		list, ok := payload.(ir.List)
		if !ok {
			return Event{}, fmt.Errorf("%s payload: want list, got %T", kind, payload)
		}
		tuples := make([][]ir.Value, len(list))
		for i, t := range list {
			tl, ok := t.(ir.List)
			if !ok {
				return Event{}, fmt.Errorf("%s payload: tuple is %T", kind, t)
			}
			tuples[i] = []ir.Value(tl)
		}
		ev := Event{Kind: EventKind(kind), Name: name, Tuples: tuples}
		return ev, nil
	}
	return Event{}, fmt.Errorf("unknown event kind %q", kind)
}
