package expr

import (
	"fmt"
	"math"
	"strings"

	"github.com/roach88/chartflow/internal/ir"
)

type evaluator struct {
	row   ir.Row
	scope Scope
}

func (ev *evaluator) eval(n node) (ir.Value, error) {
	switch n := n.(type) {
	case *literalNode:
		return n.val, nil

	case *fieldNode:
		return ev.field(n.name)

	case *dynamicFieldNode:
		idx, err := ev.eval(n.index)
		if err != nil {
			return nil, err
		}
		return ev.field(ir.ToString(idx))

	case *datumNode:
		return ir.Object(ev.row), nil

	case *paramNode:
		if ev.scope == nil {
			return nil, unknownParam(n.name)
		}
		v, ok := ev.scope.Param(n.name)
		if !ok {
			return nil, unknownParam(n.name)
		}
		if v == nil {
			return ir.Null{}, nil
		}
		return v, nil

	case *arrayNode:
		list := make(ir.List, len(n.elems))
		for i, el := range n.elems {
			v, err := ev.eval(el)
			if err != nil {
				return nil, err
			}
			list[i] = v
		}
		return list, nil

	case *objectNode:
		obj := make(ir.Object, len(n.keys))
		for i, k := range n.keys {
			v, err := ev.eval(n.vals[i])
			if err != nil {
				return nil, err
			}
			obj[k] = v
		}
		return obj, nil

	case *indexNode:
		target, err := ev.eval(n.target)
		if err != nil {
			return nil, err
		}
		idx, err := ev.eval(n.index)
		if err != nil {
			return nil, err
		}
		return index(target, idx)

	case *unaryNode:
		x, err := ev.eval(n.x)
		if err != nil {
			return nil, err
		}
		switch n.op {
		case "!":
			return ir.Bool(!ir.Truthy(x)), nil
		case "-":
			return ir.Number(-ir.ToNumber(x)), nil
		default:
			return ir.Number(ir.ToNumber(x)), nil
		}

	case *binaryNode:
		l, err := ev.eval(n.left)
		if err != nil {
			return nil, err
		}
		r, err := ev.eval(n.right)
		if err != nil {
			return nil, err
		}
		return binary(n.op, l, r), nil

	case *logicalNode:
		l, err := ev.eval(n.left)
		if err != nil {
			return nil, err
		}
		if n.op == "&&" {
			if !ir.Truthy(l) {
				return l, nil
			}
		} else if ir.Truthy(l) {
			return l, nil
		}
		return ev.eval(n.right)

	case *condNode:
		test, err := ev.eval(n.test)
		if err != nil {
			return nil, err
		}
		if ir.Truthy(test) {
			return ev.eval(n.then)
		}
		return ev.eval(n.els)

	case *callNode:
		return ev.call(n)
	}
	return nil, fmt.Errorf("unhandled expression node %T", n)
}

func (ev *evaluator) field(name string) (ir.Value, error) {
	v, ok := ev.row[name]
	if !ok {
		return nil, missingField(name)
	}
	if v == nil {
		return ir.Null{}, nil
	}
	return v, nil
}

func (ev *evaluator) call(n *callNode) (ir.Value, error) {
	switch n.name {
	case "isValid":
		// An absent field is simply invalid here.
		if len(n.args) != 1 {
			return nil, badArgument(n.name, "expected 1 argument, got %d", len(n.args))
		}
		v, err := ev.eval(n.args[0])
		if err != nil {
			if IsMissingField(err) {
				return ir.Bool(false), nil
			}
			return nil, err
		}
		return ir.Bool(ir.IsValid(v)), nil

	case "if":
		if len(n.args) != 3 {
			return nil, badArgument(n.name, "expected 3 arguments, got %d", len(n.args))
		}
		test, err := ev.eval(n.args[0])
		if err != nil {
			return nil, err
		}
		if ir.Truthy(test) {
			return ev.eval(n.args[1])
		}
		return ev.eval(n.args[2])
	}

	args := make([]ir.Value, len(n.args))
	for i, a := range n.args {
		v, err := ev.eval(a)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	fn := functions[n.name]
	if len(args) < fn.minArgs || (fn.maxArgs >= 0 && len(args) > fn.maxArgs) {
		return nil, badArgument(n.name, "unexpected argument count %d", len(args))
	}
	return fn.call(args)
}

func index(target, idx ir.Value) (ir.Value, error) {
	switch t := target.(type) {
	case ir.Object:
		if v, ok := t[ir.ToString(idx)]; ok && v != nil {
			return v, nil
		}
		return ir.Null{}, nil
	case ir.List:
		if s, ok := idx.(ir.String); ok && s == "length" {
			return ir.Number(len(t)), nil
		}
		i := ir.ToNumber(idx)
		if i != math.Trunc(i) || i < 0 || int(i) >= len(t) {
			return ir.Null{}, nil
		}
		return t[int(i)], nil
	case ir.String:
		if s, ok := idx.(ir.String); ok && s == "length" {
			return ir.Number(len([]rune(string(t)))), nil
		}
		runes := []rune(string(t))
		i := ir.ToNumber(idx)
		if i != math.Trunc(i) || i < 0 || int(i) >= len(runes) {
			return ir.Null{}, nil
		}
		return ir.String(string(runes[int(i)])), nil
	case ir.Null, nil:
		return nil, &EvalError{
			Code:    ErrCodeBadAccess,
			Message: fmt.Sprintf("cannot read property %q of null", ir.ToString(idx)),
		}
	}
	return ir.Null{}, nil
}

func binary(op string, l, r ir.Value) ir.Value {
	switch op {
	case "+":
		_, ls := l.(ir.String)
		_, rs := r.(ir.String)
		if ls || rs {
			return ir.String(ir.ToString(l) + ir.ToString(r))
		}
		return ir.Number(ir.ToNumber(l) + ir.ToNumber(r))
	case "-":
		return ir.Number(ir.ToNumber(l) - ir.ToNumber(r))
	case "*":
		return ir.Number(ir.ToNumber(l) * ir.ToNumber(r))
	case "/":
		return ir.Number(ir.ToNumber(l) / ir.ToNumber(r))
	case "%":
		return ir.Number(math.Mod(ir.ToNumber(l), ir.ToNumber(r)))
	case "==":
		return ir.Bool(ir.LooseEqual(l, r))
	case "!=":
		return ir.Bool(!ir.LooseEqual(l, r))
	case "===":
		return ir.Bool(ir.Equal(l, r))
	case "!==":
		return ir.Bool(!ir.Equal(l, r))
	}

	// Relational: strings compare lexically, everything else numerically.
	ls, lok := l.(ir.String)
	rs, rok := r.(ir.String)
	var c int
	if lok && rok {
		c = strings.Compare(string(ls), string(rs))
	} else {
		x, y := ir.ToNumber(l), ir.ToNumber(r)
		if math.IsNaN(x) || math.IsNaN(y) {
			return ir.Bool(false)
		}
		switch {
		case x < y:
			c = -1
		case x > y:
			c = 1
		}
	}
	switch op {
	case "<":
		return ir.Bool(c < 0)
	case "<=":
		return ir.Bool(c <= 0)
	case ">":
		return ir.Bool(c > 0)
	default:
		return ir.Bool(c >= 0)
	}
}
