// Copyright 2017 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package xpath

import (
	"fmt"
	"strings"
)

type parser struct {
	toks []token
	pos  int
}

// Parse compiles an XPath 1.0 expression string into an AST. The result
// can be evaluated repeatedly (e.g. once per candidate instance of a
// must/when statement) without re-parsing.
func Parse(expr string) (Compiled, error) {
	toks, err := tokenize(expr)
	if err != nil {
		return Compiled{}, err
	}
	p := &parser{toks: toks}
	e, err := p.parseExpr()
	if err != nil {
		return Compiled{}, err
	}
	if p.peek().kind != tokEOF {
		return Compiled{}, fmt.Errorf("xpath: unexpected trailing input at token %d (%q)", p.pos, p.peek().text)
	}
	return Compiled{ast: e, source: expr}, nil
}

// Compiled is a parsed XPath expression ready for repeated evaluation.
type Compiled struct {
	ast    expr
	source string
}

// String returns the original expression text.
func (c Compiled) String() string { return c.source }

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) peekAt(n int) token {
	if p.pos+n >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.pos+n]
}

func (p *parser) next() token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *parser) expect(k tokenKind, what string) error {
	if p.peek().kind != k {
		return fmt.Errorf("xpath: expected %s, got %q", what, p.peek().text)
	}
	p.next()
	return nil
}

func (p *parser) parseExpr() (expr, error) { return p.parseOr() }

func (p *parser) parseOr() (expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOr {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = exprBinary{op: tokOr, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (expr, error) {
	left, err := p.parseEquality()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokAnd {
		p.next()
		right, err := p.parseEquality()
		if err != nil {
			return nil, err
		}
		left = exprBinary{op: tokAnd, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseEquality() (expr, error) {
	left, err := p.parseRelational()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokEq || p.peek().kind == tokNe {
		op := p.next().kind
		right, err := p.parseRelational()
		if err != nil {
			return nil, err
		}
		left = exprBinary{op: op, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseRelational() (expr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for {
		switch p.peek().kind {
		case tokLt, tokLe, tokGt, tokGe:
			op := p.next().kind
			right, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			left = exprBinary{op: op, left: left, right: right}
			continue
		}
		return left, nil
	}
}

func (p *parser) parseAdditive() (expr, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokPlus || p.peek().kind == tokMinus {
		op := p.next().kind
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = exprBinary{op: op, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseMultiplicative() (expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokStar || p.peek().kind == tokDiv || p.peek().kind == tokMod {
		op := p.next().kind
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = exprBinary{op: op, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (expr, error) {
	if p.peek().kind == tokMinus {
		p.next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return exprUnaryMinus{x}, nil
	}
	return p.parseUnion()
}

func (p *parser) parseUnion() (expr, error) {
	left, err := p.parsePathExpr()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokPipe {
		p.next()
		right, err := p.parsePathExpr()
		if err != nil {
			return nil, err
		}
		left = exprUnion{left: left, right: right}
	}
	return left, nil
}

func (p *parser) looksLikeLocationPath() bool {
	tok := p.peek()
	switch tok.kind {
	case tokSlash, tokSlash2, tokDot, tokDot2, tokAt, tokStar:
		return true
	case tokName:
		if p.peekAt(1).kind == tokColon2 {
			return true
		}
		if p.peekAt(1).kind == tokLParen {
			switch tok.text {
			case "comment", "text", "node", "processing-instruction":
				return true
			default:
				return false
			}
		}
		return true
	default:
		return false
	}
}

func (p *parser) parsePathExpr() (expr, error) {
	if p.looksLikeLocationPath() {
		path, err := p.parseLocationPath()
		if err != nil {
			return nil, err
		}
		return exprLocationPath{path: path}, nil
	}
	primary, err := p.parseFilterExpr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind == tokSlash || p.peek().kind == tokSlash2 {
		slash2 := p.peek().kind == tokSlash2
		p.next()
		rel, err := p.parseRelativeLocationPath()
		if err != nil {
			return nil, err
		}
		return exprPathJoin{left: primary, slash2: slash2, right: rel}, nil
	}
	return primary, nil
}

func (p *parser) parseFilterExpr() (expr, error) {
	primary, err := p.parsePrimaryExpr()
	if err != nil {
		return nil, err
	}
	preds, err := p.parsePredicates()
	if err != nil {
		return nil, err
	}
	if len(preds) == 0 {
		return primary, nil
	}
	return exprFilter{primary: primary, predicates: preds}, nil
}

func (p *parser) parsePrimaryExpr() (expr, error) {
	tok := p.peek()
	switch tok.kind {
	case tokLParen:
		p.next()
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(tokRParen, "')'"); err != nil {
			return nil, err
		}
		return e, nil
	case tokLiteral:
		p.next()
		return exprLiteral{v: tok.text}, nil
	case tokNumber:
		p.next()
		return exprNumber{v: tok.num}, nil
	case tokDollar:
		p.next()
		nameTok := p.next()
		if nameTok.kind != tokName {
			return nil, fmt.Errorf("xpath: expected variable name after '$'")
		}
		return exprVariable{name: nameTok.text}, nil
	case tokName:
		if p.peekAt(1).kind == tokLParen {
			name := tok.text
			p.next()
			p.next()
			var args []expr
			if p.peek().kind != tokRParen {
				for {
					a, err := p.parseExpr()
					if err != nil {
						return nil, err
					}
					args = append(args, a)
					if p.peek().kind == tokComma {
						p.next()
						continue
					}
					break
				}
			}
			if err := p.expect(tokRParen, "')'"); err != nil {
				return nil, err
			}
			return exprFuncCall{name: name, args: args}, nil
		}
		return nil, fmt.Errorf("xpath: unexpected name %q in expression", tok.text)
	default:
		return nil, fmt.Errorf("xpath: unexpected token %q in expression", tok.text)
	}
}

func (p *parser) parsePredicates() ([]expr, error) {
	var preds []expr
	for p.peek().kind == tokLBracket {
		p.next()
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(tokRBracket, "']'"); err != nil {
			return nil, err
		}
		preds = append(preds, e)
	}
	return preds, nil
}

func (p *parser) parseLocationPath() (locationPath, error) {
	switch p.peek().kind {
	case tokSlash2:
		p.next()
		rel, err := p.parseRelativeLocationPath()
		if err != nil {
			return locationPath{}, err
		}
		steps := append([]step{{axis: AxisDescendantOrSelf, test: nodeTest{kindTest: "node"}}}, rel.steps...)
		return locationPath{absolute: true, steps: steps}, nil
	case tokSlash:
		p.next()
		if !p.atStepStart() {
			return locationPath{absolute: true}, nil
		}
		rel, err := p.parseRelativeLocationPath()
		if err != nil {
			return locationPath{}, err
		}
		return locationPath{absolute: true, steps: rel.steps}, nil
	default:
		return p.parseRelativeLocationPath()
	}
}

func (p *parser) atStepStart() bool {
	switch p.peek().kind {
	case tokDot, tokDot2, tokAt, tokStar, tokName:
		return true
	default:
		return false
	}
}

func (p *parser) parseRelativeLocationPath() (locationPath, error) {
	var steps []step
	s, err := p.parseStep()
	if err != nil {
		return locationPath{}, err
	}
	steps = append(steps, s)
	for {
		switch p.peek().kind {
		case tokSlash2:
			p.next()
			steps = append(steps, step{axis: AxisDescendantOrSelf, test: nodeTest{kindTest: "node"}})
			s, err := p.parseStep()
			if err != nil {
				return locationPath{}, err
			}
			steps = append(steps, s)
		case tokSlash:
			p.next()
			s, err := p.parseStep()
			if err != nil {
				return locationPath{}, err
			}
			steps = append(steps, s)
		default:
			return locationPath{steps: steps}, nil
		}
	}
}

func (p *parser) parseStep() (step, error) {
	switch p.peek().kind {
	case tokDot:
		p.next()
		return step{axis: AxisSelf, test: nodeTest{kindTest: "node"}}, nil
	case tokDot2:
		p.next()
		return step{axis: AxisParent, test: nodeTest{kindTest: "node"}}, nil
	case tokAt:
		p.next()
		test, err := p.parseNodeTest()
		if err != nil {
			return step{}, err
		}
		preds, err := p.parsePredicates()
		if err != nil {
			return step{}, err
		}
		return step{axis: AxisAttribute, test: test, predicates: preds}, nil
	case tokStar:
		p.next()
		preds, err := p.parsePredicates()
		if err != nil {
			return step{}, err
		}
		return step{axis: AxisChild, test: nodeTest{wildcard: true}, predicates: preds}, nil
	case tokName:
		name := p.peek().text
		if p.peekAt(1).kind == tokColon2 {
			axis, err := axisFromName(name)
			if err != nil {
				return step{}, err
			}
			p.next()
			p.next()
			test, err := p.parseNodeTest()
			if err != nil {
				return step{}, err
			}
			preds, err := p.parsePredicates()
			if err != nil {
				return step{}, err
			}
			return step{axis: axis, test: test, predicates: preds}, nil
		}
		test, err := p.parseNodeTest()
		if err != nil {
			return step{}, err
		}
		preds, err := p.parsePredicates()
		if err != nil {
			return step{}, err
		}
		return step{axis: AxisChild, test: test, predicates: preds}, nil
	default:
		return step{}, fmt.Errorf("xpath: expected a location step, got %q", p.peek().text)
	}
}

func (p *parser) parseNodeTest() (nodeTest, error) {
	tok := p.next()
	if tok.kind == tokStar {
		return nodeTest{wildcard: true}, nil
	}
	if tok.kind != tokName {
		return nodeTest{}, fmt.Errorf("xpath: expected a node test, got %q", tok.text)
	}
	if strings.HasSuffix(tok.text, ":") {
		prefix := strings.TrimSuffix(tok.text, ":")
		if p.peek().kind == tokStar {
			p.next()
			return nodeTest{prefixWild: true, prefix: prefix}, nil
		}
		return nodeTest{}, fmt.Errorf("xpath: expected '*' after %q", tok.text)
	}
	prefix, local := splitQName(tok.text)
	if p.peek().kind == tokLParen {
		p.next()
		if local == "processing-instruction" && p.peek().kind == tokLiteral {
			p.next()
		}
		if err := p.expect(tokRParen, "')'"); err != nil {
			return nodeTest{}, err
		}
		return nodeTest{kindTest: local}, nil
	}
	return nodeTest{prefix: prefix, local: local}, nil
}

func axisFromName(name string) (Axis, error) {
	switch name {
	case "child":
		return AxisChild, nil
	case "descendant":
		return AxisDescendant, nil
	case "descendant-or-self":
		return AxisDescendantOrSelf, nil
	case "parent":
		return AxisParent, nil
	case "ancestor":
		return AxisAncestor, nil
	case "ancestor-or-self":
		return AxisAncestorOrSelf, nil
	case "attribute":
		return AxisAttribute, nil
	case "self":
		return AxisSelf, nil
	case "following-sibling":
		return AxisFollowingSibling, nil
	case "preceding-sibling":
		return AxisPrecedingSibling, nil
	default:
		return 0, fmt.Errorf("xpath: unsupported axis %q", name)
	}
}
