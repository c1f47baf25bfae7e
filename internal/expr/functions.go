package expr

import (
	"math"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/roach88/chartflow/internal/ir"
)

type function struct {
	minArgs int
	maxArgs int // -1 for variadic
	call    func(args []ir.Value) (ir.Value, error)
}

// functions is the closed set of callable builtins. isValid and if are
// evaluated lazily by the evaluator and have no call here.
var functions = map[string]function{
	"isValid": {minArgs: 1, maxArgs: 1},
	"if":      {minArgs: 3, maxArgs: 3},

	"replace": {minArgs: 3, maxArgs: 3, call: fnReplace},
	"trim":    {minArgs: 1, maxArgs: 1, call: stringFn(strings.TrimSpace)},
	"lower": {minArgs: 1, maxArgs: 1, call: stringFn(func(s string) string {
		// Casers carry state, so each call gets its own.
		return cases.Lower(language.Und).String(s)
	})},
	"upper": {minArgs: 1, maxArgs: 1, call: stringFn(func(s string) string {
		return cases.Upper(language.Und).String(s)
	})},
	"toNumber":  {minArgs: 1, maxArgs: 1, call: fnToNumber},
	"toString":  {minArgs: 1, maxArgs: 1, call: fnToString},
	"toBoolean": {minArgs: 1, maxArgs: 1, call: fnToBoolean},
	"indexof":   {minArgs: 2, maxArgs: 2, call: fnIndexOf},
	"indexOf":   {minArgs: 2, maxArgs: 2, call: fnIndexOf},
	"length":    {minArgs: 1, maxArgs: 1, call: fnLength},
	"inrange":   {minArgs: 2, maxArgs: 2, call: fnInRange},
	"abs":       {minArgs: 1, maxArgs: 1, call: mathFn(math.Abs)},
	"floor":     {minArgs: 1, maxArgs: 1, call: mathFn(math.Floor)},
	"ceil":      {minArgs: 1, maxArgs: 1, call: mathFn(math.Ceil)},
	"sqrt":      {minArgs: 1, maxArgs: 1, call: mathFn(math.Sqrt)},
	"log":       {minArgs: 1, maxArgs: 1, call: mathFn(math.Log)},
	"round": {minArgs: 1, maxArgs: 1, call: mathFn(func(f float64) float64 {
		// Half rounds toward +Infinity.
		return math.Floor(f + 0.5)
	})},
	"pow": {minArgs: 2, maxArgs: 2, call: func(args []ir.Value) (ir.Value, error) {
		return ir.Number(math.Pow(ir.ToNumber(args[0]), ir.ToNumber(args[1]))), nil
	}},
	"min": {minArgs: 1, maxArgs: -1, call: extremeFn(math.Min)},
	"max": {minArgs: 1, maxArgs: -1, call: extremeFn(math.Max)},
}

func stringFn(f func(string) string) func([]ir.Value) (ir.Value, error) {
	return func(args []ir.Value) (ir.Value, error) {
		if ir.IsNull(args[0]) {
			return ir.Null{}, nil
		}
		return ir.String(f(ir.ToString(args[0]))), nil
	}
}

func mathFn(f func(float64) float64) func([]ir.Value) (ir.Value, error) {
	return func(args []ir.Value) (ir.Value, error) {
		return ir.Number(f(ir.ToNumber(args[0]))), nil
	}
}

func extremeFn(pick func(a, b float64) float64) func([]ir.Value) (ir.Value, error) {
	return func(args []ir.Value) (ir.Value, error) {
		acc := ir.ToNumber(args[0])
		for _, a := range args[1:] {
			acc = pick(acc, ir.ToNumber(a))
		}
		return ir.Number(acc), nil
	}
}

// fnReplace replaces the first occurrence of pattern, like String.replace
// with a string pattern.
func fnReplace(args []ir.Value) (ir.Value, error) {
	if ir.IsNull(args[0]) {
		return ir.Null{}, nil
	}
	s := ir.ToString(args[0])
	return ir.String(strings.Replace(s, ir.ToString(args[1]), ir.ToString(args[2]), 1)), nil
}

// fnToNumber maps null and "" to null, and everything else through numeric
// coercion.
func fnToNumber(args []ir.Value) (ir.Value, error) {
	v := args[0]
	if ir.IsNull(v) {
		return ir.Null{}, nil
	}
	if s, ok := v.(ir.String); ok && s == "" {
		return ir.Null{}, nil
	}
	return ir.Number(ir.ToNumber(v)), nil
}

func fnToString(args []ir.Value) (ir.Value, error) {
	if ir.IsNull(args[0]) {
		return ir.Null{}, nil
	}
	return ir.String(ir.ToString(args[0])), nil
}

func fnToBoolean(args []ir.Value) (ir.Value, error) {
	v := args[0]
	if ir.IsNull(v) {
		return ir.Null{}, nil
	}
	if s, ok := v.(ir.String); ok {
		switch s {
		case "":
			return ir.Null{}, nil
		case "false", "0":
			return ir.Bool(false), nil
		}
	}
	return ir.Bool(ir.Truthy(v)), nil
}

// fnIndexOf returns the position of needle in a list (strict equality) or
// of a substring in a string, or -1.
func fnIndexOf(args []ir.Value) (ir.Value, error) {
	switch hay := args[0].(type) {
	case ir.List:
		for i, v := range hay {
			if ir.Equal(v, args[1]) {
				return ir.Number(i), nil
			}
		}
		return ir.Number(-1), nil
	case ir.String:
		idx := strings.Index(string(hay), ir.ToString(args[1]))
		if idx < 0 {
			return ir.Number(-1), nil
		}
		return ir.Number(len([]rune(string(hay)[:idx]))), nil
	}
	return nil, badArgument("indexof", "first argument must be a list or string")
}

func fnLength(args []ir.Value) (ir.Value, error) {
	switch v := args[0].(type) {
	case ir.List:
		return ir.Number(len(v)), nil
	case ir.String:
		return ir.Number(len([]rune(string(v)))), nil
	}
	return nil, badArgument("length", "argument must be a list or string")
}

// fnInRange tests min <= value <= max for a two-element range list, in
// either order.
func fnInRange(args []ir.Value) (ir.Value, error) {
	rng, ok := args[1].(ir.List)
	if !ok || len(rng) != 2 {
		return nil, badArgument("inrange", "second argument must be a two-element list")
	}
	x := ir.ToNumber(args[0])
	lo, hi := ir.ToNumber(rng[0]), ir.ToNumber(rng[1])
	if lo > hi {
		lo, hi = hi, lo
	}
	return ir.Bool(x >= lo && x <= hi), nil
}
