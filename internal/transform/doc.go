// Package transform implements the fixed set of table operators and the
// pipeline that runs them.
//
// Stages are a closed sum type: Filter, Derive, Aggregate, Window, Impute,
// Lookup and JoinAggregate. A Pipeline runs its stages strictly in order;
// each stage consumes the previous stage's table and returns a new one.
// Input rows are never modified in place.
//
// Error handling:
//   - Filter treats an expression failure as "row excluded"
//   - Every other stage propagates failures, wrapped in *StageError
//   - A stage that references a field missing from its input schema fails
//     with *SchemaError before touching any row
//   - Duplicate lookup keys resolve to the first secondary row and are
//     reported as warnings on the Result
package transform
