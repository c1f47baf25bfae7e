// Package param holds the reactive parameters of a chart instance.
//
// A Store keeps one value per declared parameter. Value parameters are
// bound to input controls (select, radio, range, checkbox, text) and are
// validated against them; selection parameters (legend and point bindings)
// hold a set of tuples over declared fields.
//
// Reactivity is explicit: each parameter has its own ordered list of
// listeners, invoked synchronously after every successful mutation. Readers
// that need consistent values across many evaluations take a Snapshot.
package param
