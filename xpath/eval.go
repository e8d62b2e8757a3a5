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
	"sort"
	"strconv"

	"github.com/nmscore/netconfd/node"
)

// ValueKind discriminates the four XPath 1.0 result types.
type ValueKind int

// Result kinds, per XPath 1.0 §1 "Data Model".
const (
	NodeSet ValueKind = iota
	String
	Number
	Boolean
)

// Value is the tagged result of evaluating an XPath expression.
type Value struct {
	Kind  ValueKind
	Nodes []node.Index
	Str   string
	Num   float64
	Bool  bool
}

// IdentityResolver is the minimal surface xpath needs to implement the
// YANG derived-from()/derived-from-or-self() extension functions, kept
// as an interface (rather than a direct import of package schema) so
// xpath stays usable without pulling in the whole schema-resolution
// machinery — the same cycle-avoidance shape package node uses for its
// Schema interface.
type IdentityResolver interface {
	IdentityDerivedFrom(id, base string) bool
}

// SchemaResolver is the minimal surface xpath needs to implement the
// YANG enum-value()/deref() extension functions, kept as an interface
// for the same reason IdentityResolver is: so xpath can evaluate a
// when/must expression using either without importing the whole
// schema-resolution machinery of package schema.
type SchemaResolver interface {
	// EnumValue returns the integer value YANG assigns the enum held by
	// tree node n, and false if n's schema type isn't an enumeration.
	EnumValue(t *node.Tree, n node.Index) (int64, bool)
	// DerefTarget returns the single tree instance a leafref-typed leaf
	// n's target path resolves to, and false if n isn't leafref-typed
	// or no instance matches.
	DerefTarget(t *node.Tree, n node.Index) (node.Index, bool)
}

// EvalContext supplies everything an evaluation needs beyond the
// compiled expression itself: the tree to walk, the context node, the
// namespace prefix bindings in scope at the expression's point of use,
// and (optionally) an identity graph for derived-from() and a schema
// resolver for enum-value()/deref().
type EvalContext struct {
	Tree       *node.Tree
	Node       node.Index
	NSMap      map[string]string
	Identities IdentityResolver
	Schema     SchemaResolver
}

type state struct {
	tree       *node.Tree
	nsmap      map[string]string
	identities IdentityResolver
	schema     SchemaResolver
	current    node.Index
	order      map[node.Index]int
}

// Eval evaluates the compiled expression against ec, per spec.md §4.C's
// "eval(root, ctx_node, expr, nsmap) → nodeset|string|number|bool"
// contract. Evaluation never mutates ec.Tree.
func (c Compiled) Eval(ec EvalContext) (Value, error) {
	if ec.Tree == nil {
		return Value{}, fmt.Errorf("xpath: nil tree in EvalContext")
	}
	st := &state{tree: ec.Tree, nsmap: ec.NSMap, identities: ec.Identities, schema: ec.Schema, current: ec.Node}
	st.order = st.documentOrder()
	return st.evalExpr(c.ast, ec.Node, 1, 1)
}

// documentOrder assigns each node a preorder rank, used to keep node-sets
// in document order as XPath 1.0 requires after every step.
func (st *state) documentOrder() map[node.Index]int {
	m := map[node.Index]int{}
	n := 0
	_ = st.tree.Walk(st.tree.Root(), func(t *node.Tree, i node.Index) error {
		m[i] = n
		n++
		return nil
	})
	return m
}

func (st *state) evalExpr(e expr, ctx node.Index, pos, size int) (Value, error) {
	switch x := e.(type) {
	case exprNumber:
		return Value{Kind: Number, Num: x.v}, nil
	case exprLiteral:
		return Value{Kind: String, Str: x.v}, nil
	case exprVariable:
		return Value{}, fmt.Errorf("xpath: undefined variable $%s", x.name)
	case exprLocationPath:
		nodes, err := st.evalLocationPath(x.path, ctx)
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: NodeSet, Nodes: nodes}, nil
	case exprPathJoin:
		left, err := st.evalExpr(x.left, ctx, pos, size)
		if err != nil {
			return Value{}, err
		}
		if left.Kind != NodeSet {
			return Value{}, fmt.Errorf("xpath: path expression requires a node-set on the left of '/'")
		}
		steps := x.right.steps
		if x.slash2 {
			steps = append([]step{{axis: AxisDescendantOrSelf, test: nodeTest{kindTest: "node"}}}, steps...)
		}
		nodes := left.Nodes
		for _, s := range steps {
			var err error
			nodes, err = st.evalStep(s, nodes)
			if err != nil {
				return Value{}, err
			}
		}
		return Value{Kind: NodeSet, Nodes: nodes}, nil
	case exprFilter:
		primary, err := st.evalExpr(x.primary, ctx, pos, size)
		if err != nil {
			return Value{}, err
		}
		if primary.Kind != NodeSet {
			if len(x.predicates) > 0 {
				return Value{}, fmt.Errorf("xpath: predicates require a node-set")
			}
			return primary, nil
		}
		nodes := primary.Nodes
		for _, pred := range x.predicates {
			nodes = st.filterByPredicate(nodes, pred)
		}
		return Value{Kind: NodeSet, Nodes: nodes}, nil
	case exprUnion:
		left, err := st.evalExpr(x.left, ctx, pos, size)
		if err != nil {
			return Value{}, err
		}
		right, err := st.evalExpr(x.right, ctx, pos, size)
		if err != nil {
			return Value{}, err
		}
		if left.Kind != NodeSet || right.Kind != NodeSet {
			return Value{}, fmt.Errorf("xpath: '|' requires node-sets on both sides")
		}
		seen := map[node.Index]bool{}
		var merged []node.Index
		for _, n := range append(append([]node.Index{}, left.Nodes...), right.Nodes...) {
			if !seen[n] {
				seen[n] = true
				merged = append(merged, n)
			}
		}
		st.sortDoc(merged)
		return Value{Kind: NodeSet, Nodes: merged}, nil
	case exprUnaryMinus:
		v, err := st.evalExpr(x.x, ctx, pos, size)
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: Number, Num: -st.toNumber(v)}, nil
	case exprBinary:
		return st.evalBinary(x, ctx, pos, size)
	case exprFuncCall:
		return st.evalFuncCall(x, ctx, pos, size)
	default:
		return Value{}, fmt.Errorf("xpath: unhandled expression node %T", e)
	}
}

func (st *state) evalBinary(x exprBinary, ctx node.Index, pos, size int) (Value, error) {
	switch x.op {
	case tokAnd:
		l, err := st.evalExpr(x.left, ctx, pos, size)
		if err != nil {
			return Value{}, err
		}
		if !toBool(l) {
			return Value{Kind: Boolean, Bool: false}, nil
		}
		r, err := st.evalExpr(x.right, ctx, pos, size)
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: Boolean, Bool: toBool(r)}, nil
	case tokOr:
		l, err := st.evalExpr(x.left, ctx, pos, size)
		if err != nil {
			return Value{}, err
		}
		if toBool(l) {
			return Value{Kind: Boolean, Bool: true}, nil
		}
		r, err := st.evalExpr(x.right, ctx, pos, size)
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: Boolean, Bool: toBool(r)}, nil
	}

	l, err := st.evalExpr(x.left, ctx, pos, size)
	if err != nil {
		return Value{}, err
	}
	r, err := st.evalExpr(x.right, ctx, pos, size)
	if err != nil {
		return Value{}, err
	}

	switch x.op {
	case tokEq, tokNe:
		return Value{Kind: Boolean, Bool: compareEquality(st, l, r, x.op == tokEq)}, nil
	case tokLt, tokLe, tokGt, tokGe:
		return Value{Kind: Boolean, Bool: compareRelational(st, l, r, x.op)}, nil
	case tokPlus:
		return Value{Kind: Number, Num: st.toNumber(l) + st.toNumber(r)}, nil
	case tokMinus:
		return Value{Kind: Number, Num: st.toNumber(l) - st.toNumber(r)}, nil
	case tokStar:
		return Value{Kind: Number, Num: st.toNumber(l) * st.toNumber(r)}, nil
	case tokDiv:
		return Value{Kind: Number, Num: st.toNumber(l) / st.toNumber(r)}, nil
	case tokMod:
		lf, rf := st.toNumber(l), st.toNumber(r)
		return Value{Kind: Number, Num: float64(int64(lf) % int64(rf))}, nil
	default:
		return Value{}, fmt.Errorf("xpath: unhandled binary operator")
	}
}

// evalLocationPath evaluates an entire location path starting from ctx
// (or the tree root, if absolute).
func (st *state) evalLocationPath(path locationPath, ctx node.Index) ([]node.Index, error) {
	nodes := []node.Index{ctx}
	if path.absolute {
		nodes = []node.Index{st.tree.Root()}
	}
	for _, s := range path.steps {
		var err error
		nodes, err = st.evalStep(s, nodes)
		if err != nil {
			return nil, err
		}
	}
	return nodes, nil
}

// evalStep applies one location step to every node in ctxNodes, per
// XPath 1.0 §2.1: the axis and node test run once per context node, the
// step's predicates are evaluated against the per-context-node axis
// node-set (so position()/last() are scoped correctly), and only then
// are the per-context-node results merged and re-sorted.
func (st *state) evalStep(s step, ctxNodes []node.Index) ([]node.Index, error) {
	seen := map[node.Index]bool{}
	var result []node.Index
	for _, cn := range ctxNodes {
		axisSet := st.axisNodes(s.axis, cn)
		filtered := st.filterByNodeTest(axisSet, s.test, s.axis)
		cur := filtered
		for _, pred := range s.predicates {
			cur = st.filterByPredicate(cur, pred)
		}
		for _, n := range cur {
			if !seen[n] {
				seen[n] = true
				result = append(result, n)
			}
		}
	}
	st.sortDoc(result)
	return result, nil
}

// axisNodes returns the nodes reachable from cn along axis, in axis-
// appropriate proximity order (reverse axes come back nearest-first,
// matching XPath 1.0's predicate-position semantics for those axes).
func (st *state) axisNodes(axis Axis, cn node.Index) []node.Index {
	t := st.tree
	switch axis {
	case AxisChild:
		return t.Children(cn)
	case AxisSelf:
		return []node.Index{cn}
	case AxisParent:
		if p := t.Parent(cn); p != node.NoIndex {
			return []node.Index{p}
		}
		return nil
	case AxisAttribute:
		// Attribute data (e.g. the netconf "operation" attribute) is
		// protocol metadata, not part of the YANG instance tree, so no
		// YANG when/must/leafref expression can select it as a data
		// node; the axis parses but always yields an empty node-set.
		return nil
	case AxisAncestor:
		var out []node.Index
		for p := t.Parent(cn); p != node.NoIndex; p = t.Parent(p) {
			out = append(out, p)
		}
		return out
	case AxisAncestorOrSelf:
		out := []node.Index{cn}
		for p := t.Parent(cn); p != node.NoIndex; p = t.Parent(p) {
			out = append(out, p)
		}
		return out
	case AxisDescendant:
		var out []node.Index
		_ = t.Walk(cn, func(tt *node.Tree, i node.Index) error {
			if i != cn {
				out = append(out, i)
			}
			return nil
		})
		return out
	case AxisDescendantOrSelf:
		var out []node.Index
		_ = t.Walk(cn, func(tt *node.Tree, i node.Index) error {
			out = append(out, i)
			return nil
		})
		return out
	case AxisFollowingSibling:
		var out []node.Index
		for s := t.NextSibling(cn); s != node.NoIndex; s = t.NextSibling(s) {
			out = append(out, s)
		}
		return out
	case AxisPrecedingSibling:
		var out []node.Index
		for s := t.PrevSibling(cn); s != node.NoIndex; s = t.PrevSibling(s) {
			out = append(out, s)
		}
		return out
	default:
		return nil
	}
}

func (st *state) filterByNodeTest(nodes []node.Index, test nodeTest, axis Axis) []node.Index {
	if test.kindTest != "" {
		// A principal node kind test ("node()", "text()", …); our tree
		// has no text/comment/PI node kinds distinct from elements, so
		// "node()" matches everything and the others match nothing.
		if test.kindTest == "node" {
			return nodes
		}
		return nil
	}
	var out []node.Index
	for _, n := range nodes {
		if st.nodeTestMatches(n, test) {
			out = append(out, n)
		}
	}
	return out
}

func (st *state) nodeTestMatches(n node.Index, test nodeTest) bool {
	if test.wildcard {
		return true
	}
	name := st.tree.Name(n)
	if test.prefixWild {
		ns := st.resolvePrefix(test.prefix)
		return ns == "" || st.tree.EffectiveNamespace(n) == ns
	}
	if name != test.local {
		return false
	}
	if test.prefix == "" {
		return true
	}
	ns := st.resolvePrefix(test.prefix)
	return ns == "" || st.tree.EffectiveNamespace(n) == ns
}

func (st *state) resolvePrefix(prefix string) string {
	if st.nsmap == nil {
		return ""
	}
	return st.nsmap[prefix]
}

// filterByPredicate applies one predicate expression to a step's
// axis-ordered candidate list, handling the numeric-position shorthand
// ("[1]" means position()=1) per XPath 1.0 §2.4.
func (st *state) filterByPredicate(nodes []node.Index, pred expr) []node.Index {
	var out []node.Index
	size := len(nodes)
	for idx, n := range nodes {
		v, err := st.evalExpr(pred, n, idx+1, size)
		if err != nil {
			continue
		}
		if v.Kind == Number {
			if int(v.Num) == idx+1 && float64(int(v.Num)) == v.Num {
				out = append(out, n)
			}
			continue
		}
		if toBool(v) {
			out = append(out, n)
		}
	}
	return out
}

func (st *state) sortDoc(nodes []node.Index) {
	sort.SliceStable(nodes, func(i, j int) bool {
		return st.order[nodes[i]] < st.order[nodes[j]]
	})
}

func toBool(v Value) bool {
	switch v.Kind {
	case Boolean:
		return v.Bool
	case Number:
		return v.Num != 0
	case String:
		return v.Str != ""
	case NodeSet:
		return len(v.Nodes) > 0
	default:
		return false
	}
}

func (st *state) toNumber(v Value) float64 {
	switch v.Kind {
	case Number:
		return v.Num
	case Boolean:
		if v.Bool {
			return 1
		}
		return 0
	case String:
		f, err := strconv.ParseFloat(v.Str, 64)
		if err != nil {
			return nan()
		}
		return f
	case NodeSet:
		return st.toNumber(Value{Kind: String, Str: toString(st, v)})
	default:
		return nan()
	}
}

func nan() float64 {
	var zero float64
	return zero / zero
}

func compareEquality(st *state, l, r Value, eq bool) bool {
	result := rawEquals(st, l, r)
	if eq {
		return result
	}
	return !result
}

func rawEquals(st *state, l, r Value) bool {
	if l.Kind == NodeSet && r.Kind == NodeSet {
		for _, ln := range l.Nodes {
			ls := st.stringOf(ln)
			for _, rn := range r.Nodes {
				if ls == st.stringOf(rn) {
					return true
				}
			}
		}
		return false
	}
	if l.Kind == NodeSet || r.Kind == NodeSet {
		ns, other := l, r
		if r.Kind == NodeSet {
			ns, other = r, l
		}
		for _, n := range ns.Nodes {
			sv := st.stringOf(n)
			switch other.Kind {
			case Number:
				f, err := strconv.ParseFloat(sv, 64)
				if err == nil && f == other.Num {
					return true
				}
			case Boolean:
				if toBool(Value{Kind: String, Str: sv}) == other.Bool {
					return true
				}
			default:
				if sv == other.Str {
					return true
				}
			}
		}
		return false
	}
	if l.Kind == Boolean || r.Kind == Boolean {
		return toBool(l) == toBool(r)
	}
	if l.Kind == Number || r.Kind == Number {
		return st.toNumber(l) == st.toNumber(r)
	}
	return toString(st, l) == toString(st, r)
}

func compareRelational(st *state, l, r Value, op tokenKind) bool {
	lf, rf := st.toNumber(l), st.toNumber(r)
	switch op {
	case tokLt:
		return lf < rf
	case tokLe:
		return lf <= rf
	case tokGt:
		return lf > rf
	case tokGe:
		return lf >= rf
	default:
		return false
	}
}

func (st *state) stringOf(n node.Index) string {
	return stringValueOf(st.tree, n)
}

// stringValueOf computes a node's string-value: its own body for a
// leaf/leaf-list entry, or the concatenation of all descendant leaf
// bodies in document order for a container/list-entry, per XPath 1.0
// §5.1's node string-value rules adapted to this tree's node kinds.
func stringValueOf(t *node.Tree, n node.Index) string {
	switch t.Kind(n) {
	case node.KindLeaf, node.KindLeafListEntry:
		return t.Body(n)
	default:
		var sb []byte
		_ = t.Walk(n, func(tt *node.Tree, i node.Index) error {
			if tt.Kind(i) == node.KindLeaf || tt.Kind(i) == node.KindLeafListEntry {
				sb = append(sb, tt.Body(i)...)
			}
			return nil
		})
		return string(sb)
	}
}

func toString(st *state, v Value) string {
	switch v.Kind {
	case String:
		return v.Str
	case Number:
		return formatNumber(v.Num)
	case Boolean:
		if v.Bool {
			return "true"
		}
		return "false"
	case NodeSet:
		if len(v.Nodes) == 0 {
			return ""
		}
		st.sortDoc(v.Nodes)
		return st.stringOf(v.Nodes[0])
	default:
		return ""
	}
}

func formatNumber(f float64) string {
	if f != f {
		return "NaN"
	}
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
