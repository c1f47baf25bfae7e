// Package dataset reads CSV and JSON files into tables for the CLI and the
// scenario harness. The chart runtime itself never performs I/O; datasets
// reach it through load events.
//
// CSV fields are typed per column: a column whose non-empty cells all parse
// as numbers becomes numeric, one whose cells are all true/false becomes
// boolean, anything else stays text. Parse hints override the inference for
// named fields.
package dataset
