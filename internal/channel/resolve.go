package channel

import (
	"github.com/roach88/chartflow/internal/ir"
)

// Item is one encoded row: the row itself and its resolved channel values
// keyed by role.
type Item struct {
	Row      ir.Row    `json:"row"`
	Channels ir.Object `json:"channels"`
}

// Resolve computes the channel's value for one row. Rules are evaluated in
// declared order and the first match wins; otherwise the fallback applies.
// Tooltip channels with entries resolve to an object of title to formatted
// value.
func Resolve(ch Channel, row ir.Row, scope Scope) (ir.Value, error) {
	if len(ch.Tooltip) > 0 {
		return tooltip(ch, row), nil
	}

	for i, r := range ch.Rules {
		ok, err := r.matches(row, scope)
		if err != nil {
			return nil, &ResolveError{Role: ch.Role, Rule: i, Err: err}
		}
		if ok {
			return ch.finish(source(row, r.Field, r.Value)), nil
		}
	}
	return ch.finish(source(row, ch.Field, ch.Value)), nil
}

// ResolveRow resolves every channel for one row. Channels are independent
// of each other and of every other row.
func ResolveRow(channels []Channel, row ir.Row, scope Scope) (ir.Object, error) {
	out := make(ir.Object, len(channels))
	for _, ch := range channels {
		v, err := Resolve(ch, row, scope)
		if err != nil {
			return nil, err
		}
		out[string(ch.Role)] = v
	}
	return out, nil
}

// Encode resolves channels for every row of a table, in row order.
func Encode(channels []Channel, t ir.Table, scope Scope) ([]Item, error) {
	items := make([]Item, len(t.Rows))
	for i, row := range t.Rows {
		vals, err := ResolveRow(channels, row, scope)
		if err != nil {
			return nil, err
		}
		items[i] = Item{Row: row, Channels: vals}
	}
	return items, nil
}

// matches evaluates the rule predicate.
func (r Rule) matches(row ir.Row, scope Scope) (bool, error) {
	if r.Test != nil {
		return r.Test.Test(row, scope)
	}

	if scope == nil {
		return false, &UnknownSelectionError{Param: r.Param}
	}
	sel, ok := scope.Selection(r.Param)
	if !ok {
		return false, &UnknownSelectionError{Param: r.Param}
	}
	if sel.Empty() {
		return r.Empty != EmptyNone, nil
	}
	return sel.Contains(row), nil
}

// source reads a field from the row, or returns the literal. Missing
// fields and absent literals resolve to Null.
func source(row ir.Row, field string, literal ir.Value) ir.Value {
	if field != "" {
		if v, ok := row[field]; ok && v != nil {
			return v
		}
		return ir.Null{}
	}
	if literal == nil {
		return ir.Null{}
	}
	return literal
}

// finish applies the channel format to text-like roles.
func (ch Channel) finish(v ir.Value) ir.Value {
	if ch.Format == "" {
		return v
	}
	switch ch.Role {
	case RoleText, RoleTooltip:
		if _, ok := v.(ir.Number); ok {
			return ir.String(Format(v, ch.Format))
		}
	}
	return v
}

func tooltip(ch Channel, row ir.Row) ir.Object {
	out := make(ir.Object, len(ch.Tooltip))
	for _, t := range ch.Tooltip {
		title := t.Title
		if title == "" {
			title = t.Field
		}
		v := source(row, t.Field, nil)
		if ir.IsNull(v) {
			out[title] = ir.Null{}
			continue
		}
		out[title] = ir.String(Format(v, t.Format))
	}
	return out
}
