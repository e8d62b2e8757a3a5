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
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/nmscore/netconfd/node"
)

// evalFuncCall dispatches a function-call AST node to the XPath 1.0 core
// function library (XPath 1.0 §4) or to one of the YANG when/must
// extension functions of spec.md §4.C.
func (st *state) evalFuncCall(x exprFuncCall, ctx node.Index, pos, size int) (Value, error) {
	args := func(n int) ([]Value, error) {
		if len(x.args) != n {
			return nil, fmt.Errorf("xpath: %s() takes %d argument(s), got %d", x.name, n, len(x.args))
		}
		out := make([]Value, n)
		for i, a := range x.args {
			v, err := st.evalExpr(a, ctx, pos, size)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	}

	switch x.name {
	// Node-set functions.
	case "last":
		if len(x.args) != 0 {
			return Value{}, fmt.Errorf("xpath: last() takes no arguments")
		}
		return Value{Kind: Number, Num: float64(size)}, nil
	case "position":
		if len(x.args) != 0 {
			return Value{}, fmt.Errorf("xpath: position() takes no arguments")
		}
		return Value{Kind: Number, Num: float64(pos)}, nil
	case "count":
		a, err := args(1)
		if err != nil {
			return Value{}, err
		}
		if a[0].Kind != NodeSet {
			return Value{}, fmt.Errorf("xpath: count() requires a node-set argument")
		}
		return Value{Kind: Number, Num: float64(len(a[0].Nodes))}, nil
	case "name", "local-name":
		var n node.Index
		if len(x.args) == 0 {
			n = ctx
		} else {
			a, err := args(1)
			if err != nil {
				return Value{}, err
			}
			if a[0].Kind != NodeSet || len(a[0].Nodes) == 0 {
				return Value{Kind: String, Str: ""}, nil
			}
			st.sortDoc(a[0].Nodes)
			n = a[0].Nodes[0]
		}
		return Value{Kind: String, Str: st.tree.Name(n)}, nil
	case "namespace-uri":
		var n node.Index
		if len(x.args) == 0 {
			n = ctx
		} else {
			a, err := args(1)
			if err != nil {
				return Value{}, err
			}
			if a[0].Kind != NodeSet || len(a[0].Nodes) == 0 {
				return Value{Kind: String, Str: ""}, nil
			}
			st.sortDoc(a[0].Nodes)
			n = a[0].Nodes[0]
		}
		return Value{Kind: String, Str: st.tree.EffectiveNamespace(n)}, nil

	// String functions.
	case "string":
		if len(x.args) == 0 {
			return Value{Kind: String, Str: toString(st, Value{Kind: NodeSet, Nodes: []node.Index{ctx}})}, nil
		}
		a, err := args(1)
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: String, Str: toString(st, a[0])}, nil
	case "concat":
		if len(x.args) < 2 {
			return Value{}, fmt.Errorf("xpath: concat() takes at least 2 arguments")
		}
		var sb strings.Builder
		for _, a := range x.args {
			v, err := st.evalExpr(a, ctx, pos, size)
			if err != nil {
				return Value{}, err
			}
			sb.WriteString(toString(st, v))
		}
		return Value{Kind: String, Str: sb.String()}, nil
	case "starts-with":
		a, err := args(2)
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: Boolean, Bool: strings.HasPrefix(toString(st, a[0]), toString(st, a[1]))}, nil
	case "contains":
		a, err := args(2)
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: Boolean, Bool: strings.Contains(toString(st, a[0]), toString(st, a[1]))}, nil
	case "substring-before":
		a, err := args(2)
		if err != nil {
			return Value{}, err
		}
		s, sub := toString(st, a[0]), toString(st, a[1])
		if i := strings.Index(s, sub); i >= 0 {
			return Value{Kind: String, Str: s[:i]}, nil
		}
		return Value{Kind: String, Str: ""}, nil
	case "substring-after":
		a, err := args(2)
		if err != nil {
			return Value{}, err
		}
		s, sub := toString(st, a[0]), toString(st, a[1])
		if i := strings.Index(s, sub); i >= 0 {
			return Value{Kind: String, Str: s[i+len(sub):]}, nil
		}
		return Value{Kind: String, Str: ""}, nil
	case "substring":
		if len(x.args) != 2 && len(x.args) != 3 {
			return Value{}, fmt.Errorf("xpath: substring() takes 2 or 3 arguments")
		}
		sv, err := st.evalExpr(x.args[0], ctx, pos, size)
		if err != nil {
			return Value{}, err
		}
		s := toString(st, sv)
		startV, err := st.evalExpr(x.args[1], ctx, pos, size)
		if err != nil {
			return Value{}, err
		}
		start := round(st.toNumber(startV))
		length := math.MaxInt32
		if len(x.args) == 3 {
			lenV, err := st.evalExpr(x.args[2], ctx, pos, size)
			if err != nil {
				return Value{}, err
			}
			length = round(st.toNumber(lenV))
		}
		return Value{Kind: String, Str: xpathSubstring(s, start, length)}, nil
	case "string-length":
		var s string
		if len(x.args) == 0 {
			s = st.stringOf(ctx)
		} else {
			a, err := args(1)
			if err != nil {
				return Value{}, err
			}
			s = toString(st, a[0])
		}
		return Value{Kind: Number, Num: float64(len([]rune(s)))}, nil
	case "normalize-space":
		var s string
		if len(x.args) == 0 {
			s = st.stringOf(ctx)
		} else {
			a, err := args(1)
			if err != nil {
				return Value{}, err
			}
			s = toString(st, a[0])
		}
		return Value{Kind: String, Str: strings.Join(strings.Fields(s), " ")}, nil
	case "translate":
		a, err := args(3)
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: String, Str: xpathTranslate(toString(st, a[0]), toString(st, a[1]), toString(st, a[2]))}, nil

	// Boolean functions.
	case "boolean":
		a, err := args(1)
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: Boolean, Bool: toBool(a[0])}, nil
	case "not":
		a, err := args(1)
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: Boolean, Bool: !toBool(a[0])}, nil
	case "true":
		if len(x.args) != 0 {
			return Value{}, fmt.Errorf("xpath: true() takes no arguments")
		}
		return Value{Kind: Boolean, Bool: true}, nil
	case "false":
		if len(x.args) != 0 {
			return Value{}, fmt.Errorf("xpath: false() takes no arguments")
		}
		return Value{Kind: Boolean, Bool: false}, nil
	case "lang":
		// No xml:lang modeling in this tree; YANG never relies on lang().
		return Value{Kind: Boolean, Bool: false}, nil

	// Number functions.
	case "number":
		if len(x.args) == 0 {
			return Value{Kind: Number, Num: st.toNumber(Value{Kind: NodeSet, Nodes: []node.Index{ctx}})}, nil
		}
		a, err := args(1)
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: Number, Num: st.toNumber(a[0])}, nil
	case "sum":
		a, err := args(1)
		if err != nil {
			return Value{}, err
		}
		if a[0].Kind != NodeSet {
			return Value{}, fmt.Errorf("xpath: sum() requires a node-set argument")
		}
		var total float64
		for _, n := range a[0].Nodes {
			f, err := strconv.ParseFloat(st.stringOf(n), 64)
			if err == nil {
				total += f
			}
		}
		return Value{Kind: Number, Num: total}, nil
	case "floor":
		a, err := args(1)
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: Number, Num: math.Floor(st.toNumber(a[0]))}, nil
	case "ceiling":
		a, err := args(1)
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: Number, Num: math.Ceil(st.toNumber(a[0]))}, nil
	case "round":
		a, err := args(1)
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: Number, Num: math.Floor(st.toNumber(a[0]) + 0.5)}, nil

	// YANG when/must extension functions, per spec.md §4.C.
	case "current":
		if len(x.args) != 0 {
			return Value{}, fmt.Errorf("xpath: current() takes no arguments")
		}
		return Value{Kind: NodeSet, Nodes: []node.Index{st.current}}, nil
	case "deref":
		a, err := args(1)
		if err != nil {
			return Value{}, err
		}
		return st.evalDeref(a[0])
	case "derived-from", "derived-from-or-self":
		a, err := args(2)
		if err != nil {
			return Value{}, err
		}
		return st.evalDerivedFrom(a[0], a[1], x.name == "derived-from-or-self")
	case "re-match":
		a, err := args(2)
		if err != nil {
			return Value{}, err
		}
		re, err := regexp.Compile(yangPatternToRE2(toString(st, a[1])))
		if err != nil {
			return Value{}, fmt.Errorf("xpath: re-match(): %w", err)
		}
		return Value{Kind: Boolean, Bool: re.MatchString(toString(st, a[0]))}, nil
	case "enum-value":
		a, err := args(1)
		if err != nil {
			return Value{}, err
		}
		return st.evalEnumValue(a[0])
	case "bit-is-set":
		a, err := args(2)
		if err != nil {
			return Value{}, err
		}
		bits := strings.Fields(toString(st, a[0]))
		want := toString(st, a[1])
		for _, b := range bits {
			if b == want {
				return Value{Kind: Boolean, Bool: true}, nil
			}
		}
		return Value{Kind: Boolean, Bool: false}, nil

	default:
		return Value{}, fmt.Errorf("xpath: unknown function %s()", x.name)
	}
}

// evalDeref resolves a leafref-typed leaf node to the node-set containing
// the single instance it references, per spec.md §4.C: "deref(node-set)
// follows the node's leafref target path from that node's context and
// returns the target instance". Actually walking the target path (with
// predicates) requires the node's resolved schema, which xpath reaches
// only through the SchemaResolver an EvalContext supplies; without one,
// deref() returns a typed error rather than silently returning nothing.
func (st *state) evalDeref(v Value) (Value, error) {
	if v.Kind != NodeSet || len(v.Nodes) == 0 {
		return Value{Kind: NodeSet}, nil
	}
	if st.schema == nil {
		return Value{}, fmt.Errorf("xpath: deref() used without a SchemaResolver in EvalContext")
	}
	st.sortDoc(v.Nodes)
	target, ok := st.schema.DerefTarget(st.tree, v.Nodes[0])
	if !ok {
		return Value{Kind: NodeSet}, nil
	}
	return Value{Kind: NodeSet, Nodes: []node.Index{target}}, nil
}

// evalEnumValue implements spec.md §4.C's enum-value(node-set): the
// integer YANG assigns the enum held by the node-set's first node in
// document order, per XPath 1.0's own first-node convention for
// string()/number() applied to a node-set argument.
func (st *state) evalEnumValue(v Value) (Value, error) {
	if st.schema == nil {
		return Value{}, fmt.Errorf("xpath: enum-value() used without a SchemaResolver in EvalContext")
	}
	if v.Kind != NodeSet || len(v.Nodes) == 0 {
		return Value{}, fmt.Errorf("xpath: enum-value() requires a non-empty node-set argument")
	}
	st.sortDoc(v.Nodes)
	val, ok := st.schema.EnumValue(st.tree, v.Nodes[0])
	if !ok {
		return Value{}, fmt.Errorf("xpath: enum-value(): node is not an enumeration-typed leaf")
	}
	return Value{Kind: Number, Num: float64(val)}, nil
}

func (st *state) evalDerivedFrom(nodesVal, baseVal Value, orSelf bool) (Value, error) {
	if st.identities == nil {
		return Value{}, fmt.Errorf("xpath: derived-from() used without an IdentityResolver in EvalContext")
	}
	base := toString(st, baseVal)
	if nodesVal.Kind != NodeSet {
		id := toString(st, nodesVal)
		if orSelf && id == base {
			return Value{Kind: Boolean, Bool: true}, nil
		}
		return Value{Kind: Boolean, Bool: st.identities.IdentityDerivedFrom(id, base)}, nil
	}
	for _, n := range nodesVal.Nodes {
		id := st.stringOf(n)
		if orSelf && id == base {
			return Value{Kind: Boolean, Bool: true}, nil
		}
		if st.identities.IdentityDerivedFrom(id, base) {
			return Value{Kind: Boolean, Bool: true}, nil
		}
	}
	return Value{Kind: Boolean, Bool: false}, nil
}

// yangPatternToRE2 adapts a YANG (XSD) regular expression to Go's RE2
// syntax. YANG patterns are implicitly anchored; XSD character class
// escapes (\i, \c, \p{...}) beyond what RE2 understands are left as-is,
// which covers the patterns real YANG modules actually use.
func yangPatternToRE2(pattern string) string {
	if !strings.HasPrefix(pattern, "^") {
		pattern = "^(?:" + pattern + ")$"
	}
	return pattern
}

func round(f float64) int {
	return int(math.Floor(f + 0.5))
}

func xpathSubstring(s string, start, length int) string {
	r := []rune(s)
	end := start + length
	if end > len(r)+1 {
		end = len(r) + 1
	}
	if start < 1 {
		start = 1
	}
	if start > len(r) || end <= start {
		return ""
	}
	return string(r[start-1 : end-1])
}

func xpathTranslate(s, from, to string) string {
	fr := []rune(from)
	tr := []rune(to)
	var sb strings.Builder
	for _, c := range s {
		idx := -1
		for i, f := range fr {
			if f == c {
				idx = i
				break
			}
		}
		if idx == -1 {
			sb.WriteRune(c)
			continue
		}
		if idx < len(tr) {
			sb.WriteRune(tr[idx])
		}
	}
	return sb.String()
}
