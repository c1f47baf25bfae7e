package expr

import (
	"fmt"
	"math"
	"slices"

	"github.com/roach88/chartflow/internal/ir"
)

// parser is a recursive-descent parser over the token stream.
// Precedence, lowest first: ?:, ||, &&, equality, relational, additive,
// multiplicative, unary, postfix (member, index, call).
type parser struct {
	src  string
	toks []token
	pos  int
}

func (p *parser) peek() token {
	return p.toks[p.pos]
}

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) isPunct(text string) bool {
	t := p.peek()
	return t.kind == tokPunct && t.text == text
}

func (p *parser) accept(text string) bool {
	if p.isPunct(text) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expect(text string) error {
	if p.accept(text) {
		return nil
	}
	return p.errorf("expected %q, found %s", text, p.peek())
}

func (p *parser) errorf(format string, args ...any) error {
	return &ParseError{Src: p.src, Pos: p.peek().pos, Message: fmt.Sprintf(format, args...)}
}

func (p *parser) errorAt(pos int, format string, args ...any) error {
	return &ParseError{Src: p.src, Pos: pos, Message: fmt.Sprintf(format, args...)}
}

func (p *parser) parseExpression() (node, error) {
	return p.parseConditional()
}

func (p *parser) parseConditional() (node, error) {
	test, err := p.parseBinary(0)
	if err != nil {
		return nil, err
	}
	if !p.accept("?") {
		return test, nil
	}
	then, err := p.parseConditional()
	if err != nil {
		return nil, err
	}
	if err := p.expect(":"); err != nil {
		return nil, err
	}
	els, err := p.parseConditional()
	if err != nil {
		return nil, err
	}
	return &condNode{test: test, then: then, els: els}, nil
}

// binaryLevels lists binary operators by increasing precedence.
var binaryLevels = [][]string{
	{"||"},
	{"&&"},
	{"==", "!=", "===", "!=="},
	{"<", "<=", ">", ">="},
	{"+", "-"},
	{"*", "/", "%"},
}

func (p *parser) parseBinary(level int) (node, error) {
	if level == len(binaryLevels) {
		return p.parseUnary()
	}
	left, err := p.parseBinary(level + 1)
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.kind != tokPunct || !slices.Contains(binaryLevels[level], t.text) {
			return left, nil
		}
		p.next()
		right, err := p.parseBinary(level + 1)
		if err != nil {
			return nil, err
		}
		if t.text == "&&" || t.text == "||" {
			left = &logicalNode{op: t.text, left: left, right: right}
		} else {
			left = &binaryNode{op: t.text, left: left, right: right}
		}
	}
}

func (p *parser) parseUnary() (node, error) {
	t := p.peek()
	if t.kind == tokPunct && (t.text == "!" || t.text == "-" || t.text == "+") {
		p.next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &unaryNode{op: t.text, x: x}, nil
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() (node, error) {
	x, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.accept("."):
			name := p.next()
			if name.kind != tokIdent {
				return nil, p.errorf("expected property name after '.'")
			}
			x = member(x, &literalNode{val: ir.String(name.text)})
		case p.accept("["):
			idx, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			if err := p.expect("]"); err != nil {
				return nil, err
			}
			x = member(x, idx)
		default:
			return x, nil
		}
	}
}

// member builds an access node, folding datum.name and datum['name'] into
// direct field reads.
func member(target, index node) node {
	if _, ok := target.(*datumNode); ok {
		if lit, ok := index.(*literalNode); ok {
			if s, ok := lit.val.(ir.String); ok {
				return &fieldNode{name: string(s)}
			}
		}
		return &dynamicFieldNode{index: index}
	}
	return &indexNode{target: target, index: index}
}

func (p *parser) parsePrimary() (node, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		return &literalNode{val: ir.Number(t.num)}, nil
	case tokString:
		return &literalNode{val: ir.String(t.text)}, nil
	case tokIdent:
		switch t.text {
		case "true":
			return &literalNode{val: ir.Bool(true)}, nil
		case "false":
			return &literalNode{val: ir.Bool(false)}, nil
		case "null", "undefined":
			return &literalNode{val: ir.Null{}}, nil
		case "NaN":
			return &literalNode{val: ir.Number(math.NaN())}, nil
		case "PI":
			return &literalNode{val: ir.Number(math.Pi)}, nil
		case "datum":
			return &datumNode{}, nil
		}
		if p.isPunct("(") {
			return p.parseCall(t)
		}
		return &paramNode{name: t.text}, nil
	case tokPunct:
		switch t.text {
		case "(":
			x, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			if err := p.expect(")"); err != nil {
				return nil, err
			}
			return x, nil
		case "[":
			return p.parseArray()
		case "{":
			return p.parseObject()
		}
	}
	if t.kind == tokEOF {
		return nil, p.errorAt(t.pos, "unexpected end of expression")
	}
	return nil, p.errorAt(t.pos, "unexpected %s", t)
}

func (p *parser) parseCall(name token) (node, error) {
	if _, ok := functions[name.text]; !ok {
		return nil, p.errorAt(name.pos, "unknown function %q", name.text)
	}
	p.next() // (
	var args []node
	if !p.accept(")") {
		for {
			arg, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if p.accept(")") {
				break
			}
			if err := p.expect(","); err != nil {
				return nil, err
			}
		}
	}
	return &callNode{name: name.text, args: args}, nil
}

func (p *parser) parseArray() (node, error) {
	arr := &arrayNode{}
	if p.accept("]") {
		return arr, nil
	}
	for {
		elem, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		arr.elems = append(arr.elems, elem)
		if p.accept("]") {
			return arr, nil
		}
		if err := p.expect(","); err != nil {
			return nil, err
		}
	}
}

func (p *parser) parseObject() (node, error) {
	obj := &objectNode{}
	if p.accept("}") {
		return obj, nil
	}
	for {
		key := p.next()
		switch key.kind {
		case tokString, tokIdent:
		case tokNumber:
			key.text = ir.FormatNumber(key.num)
		default:
			return nil, p.errorAt(key.pos, "expected object key, found %s", key)
		}
		if err := p.expect(":"); err != nil {
			return nil, err
		}
		val, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		obj.keys = append(obj.keys, key.text)
		obj.vals = append(obj.vals, val)
		if p.accept("}") {
			return obj, nil
		}
		if err := p.expect(","); err != nil {
			return nil, err
		}
	}
}
