// Package expr implements the chart expression language.
//
// Expressions are parsed once with Parse and evaluated per row with
// (*Expr).Eval. The language covers literals, datum field access
// (datum.name, datum['name']), bare identifiers as parameter references,
// array and object literals, member/index access, arithmetic, comparison,
// strict and loose equality, short-circuit logic returning operand values,
// the ternary conditional, and a fixed set of builtin functions (replace,
// trim, lower, upper, toNumber, toString, toBoolean, isValid, indexof,
// length, inrange, if, and numeric helpers).
//
// Referencing a field that is absent from the row fails with an EvalError,
// except inside isValid, which reports an absent field as invalid.
package expr
