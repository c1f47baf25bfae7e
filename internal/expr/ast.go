package expr

import "github.com/roach88/chartflow/internal/ir"

// node is a sealed interface for expression tree nodes.
type node interface {
	exprNode()
}

// literalNode is a constant: number, string, bool or null.
type literalNode struct {
	val ir.Value
}

// fieldNode reads a field of the current row (datum.name or datum['name']).
type fieldNode struct {
	name string
}

// dynamicFieldNode reads a field whose name is computed (datum[expr]).
type dynamicFieldNode struct {
	index node
}

// datumNode evaluates to the whole row as an object.
type datumNode struct{}

// paramNode references a parameter by name.
type paramNode struct {
	name string
}

// arrayNode is an array literal.
type arrayNode struct {
	elems []node
}

// objectNode is an object literal. Keys are kept in source order.
type objectNode struct {
	keys []string
	vals []node
}

// indexNode is a member or index access on a non-datum value.
type indexNode struct {
	target node
	index  node
}

// unaryNode is a prefix operator: !, - or +.
type unaryNode struct {
	op string
	x  node
}

// binaryNode is an arithmetic, comparison or equality operator.
type binaryNode struct {
	op          string
	left, right node
}

// logicalNode is && or ||. Both short-circuit and yield an operand.
type logicalNode struct {
	op          string
	left, right node
}

// condNode is the ternary conditional.
type condNode struct {
	test, then, els node
}

// callNode is a function call.
type callNode struct {
	name string
	args []node
}

func (*literalNode) exprNode()      {}
func (*fieldNode) exprNode()        {}
func (*dynamicFieldNode) exprNode() {}
func (*datumNode) exprNode()        {}
func (*paramNode) exprNode()        {}
func (*arrayNode) exprNode()        {}
func (*objectNode) exprNode()       {}
func (*indexNode) exprNode()        {}
func (*unaryNode) exprNode()        {}
func (*binaryNode) exprNode()       {}
func (*logicalNode) exprNode()      {}
func (*condNode) exprNode()         {}
func (*callNode) exprNode()         {}
