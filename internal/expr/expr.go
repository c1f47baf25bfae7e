package expr

import (
	"errors"

	"github.com/roach88/chartflow/internal/ir"
)

// Scope resolves parameter references at evaluation time.
//
// The engine passes an immutable per-pass snapshot, so every expression in
// one recomputation observes the same parameter values.
type Scope interface {
	Param(name string) (ir.Value, bool)
}

// MapScope is a Scope backed by a plain map.
type MapScope map[string]ir.Value

// Param implements Scope.
func (m MapScope) Param(name string) (ir.Value, bool) {
	v, ok := m[name]
	return v, ok
}

// Expr is a parsed expression. It holds no evaluation state and is safe for
// concurrent use.
type Expr struct {
	src    string
	root   node
	fields []string
	params []string
}

// Parse compiles src into an Expr.
func Parse(src string) (*Expr, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{src: src, toks: toks}
	root, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, p.errorf("unexpected %s after expression", t)
	}

	e := &Expr{src: src, root: root}
	c := &collector{seenField: map[string]bool{}, seenParam: map[string]bool{}}
	c.walk(root, false)
	e.fields = c.fields
	e.params = c.params
	return e, nil
}

// MustParse is like Parse but panics on error.
// Use only in tests or for constant expressions.
func MustParse(src string) *Expr {
	e, err := Parse(src)
	if err != nil {
		panic(err)
	}
	return e
}

// String returns the source text.
func (e *Expr) String() string {
	return e.src
}

// Fields returns the row fields the expression requires, in first-reference
// order. Fields referenced only as a direct argument of isValid are not
// required, since isValid treats an absent field as invalid.
func (e *Expr) Fields() []string {
	return e.fields
}

// Params returns the parameter names the expression references, in
// first-reference order.
func (e *Expr) Params() []string {
	return e.params
}

// Eval evaluates the expression against row. scope may be nil when the
// expression references no parameters.
func (e *Expr) Eval(row ir.Row, scope Scope) (ir.Value, error) {
	ev := evaluator{row: row, scope: scope}
	v, err := ev.eval(e.root)
	if err != nil {
		var ee *EvalError
		if errors.As(err, &ee) && ee.Expr == "" {
			ee.Expr = e.src
		}
		return nil, err
	}
	return v, nil
}

// Test evaluates the expression as a predicate using truthiness.
func (e *Expr) Test(row ir.Row, scope Scope) (bool, error) {
	v, err := e.Eval(row, scope)
	if err != nil {
		return false, err
	}
	return ir.Truthy(v), nil
}

// Evaluate parses and evaluates src in one step.
func Evaluate(src string, row ir.Row, scope Scope) (ir.Value, error) {
	e, err := Parse(src)
	if err != nil {
		return nil, err
	}
	return e.Eval(row, scope)
}

type collector struct {
	fields    []string
	params    []string
	seenField map[string]bool
	seenParam map[string]bool
}

// walk records field and parameter references. soft marks a field read
// that is the direct argument of isValid.
func (c *collector) walk(n node, soft bool) {
	switch n := n.(type) {
	case *fieldNode:
		if !soft && !c.seenField[n.name] {
			c.seenField[n.name] = true
			c.fields = append(c.fields, n.name)
		}
	case *dynamicFieldNode:
		c.walk(n.index, false)
	case *paramNode:
		if !c.seenParam[n.name] {
			c.seenParam[n.name] = true
			c.params = append(c.params, n.name)
		}
	case *arrayNode:
		for _, el := range n.elems {
			c.walk(el, false)
		}
	case *objectNode:
		for _, v := range n.vals {
			c.walk(v, false)
		}
	case *indexNode:
		c.walk(n.target, false)
		c.walk(n.index, false)
	case *unaryNode:
		c.walk(n.x, false)
	case *binaryNode:
		c.walk(n.left, false)
		c.walk(n.right, false)
	case *logicalNode:
		c.walk(n.left, false)
		c.walk(n.right, false)
	case *condNode:
		c.walk(n.test, false)
		c.walk(n.then, false)
		c.walk(n.els, false)
	case *callNode:
		for _, a := range n.args {
			c.walk(a, n.name == "isValid")
		}
	}
}
