// Package channel resolves encoding channels: per-row values for position,
// color, size, opacity, tooltip and text.
//
// A Channel carries an ordered list of Rules evaluated first-match-wins,
// then a fallback (a row field or a literal). Rules test either an
// expression or membership in a selection parameter. How a rule treats an
// empty selection is declared per rule with Empty; the default EmptyAll
// makes an empty selection match every row.
package channel
