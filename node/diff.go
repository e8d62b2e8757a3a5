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

package node

// Equal reports structural equality of subtrees a (in ta) and b (in tb):
// same namespace+name, same key tuple for list entries, and recursively
// equal body and children (spec.md §4.A "Equality for diff").
func Equal(ta *Tree, a Index, tb *Tree, b Index) bool {
	ar, br := ta.get(a), tb.get(b)
	if ar.kind != br.kind || ar.name != br.name {
		return false
	}
	if ta.EffectiveNamespace(a) != tb.EffectiveNamespace(b) {
		return false
	}
	if ar.kind == KindListEntry {
		ak, bk := ta.KeyValues(a), tb.KeyValues(b)
		if len(ak) != len(bk) {
			return false
		}
		for i := range ak {
			if ak[i] != bk[i] {
				return false
			}
		}
	}
	if (ar.kind == KindLeaf || ar.kind == KindLeafListEntry) && ar.body != br.body {
		return false
	}
	ac, bc := ta.Children(a), tb.Children(b)
	if len(ac) != len(bc) {
		return false
	}
	for i := range ac {
		if !Equal(ta, ac[i], tb, bc[i]) {
			return false
		}
	}
	return true
}

// Diff merges b (the new tree) onto a fresh clone of a (the old tree),
// annotating the merged result with MarkAdded/MarkDeleted/MarkChanged per
// spec.md §4.A. The returned tree is independent of both a and b.
//
// Matching within a parent is by name and, for list entries, key tuple
// (kind and namespace are not compared); unmatched nodes from b are appended as MarkAdded,
// unmatched nodes from a are kept and flagged MarkDeleted, matched nodes
// are recursed into and flagged MarkChanged if their body differs.
func Diff(oldTree, newTree *Tree) *Tree {
	merged := &Tree{root: NoIndex}
	merged.root = diffNode(merged, oldTree, oldTree.root, newTree, newTree.root)
	return merged
}

func diffNode(merged *Tree, oldT *Tree, oldI Index, newT *Tree, newI Index) Index {
	var base *Tree
	var baseI Index
	switch {
	case oldI != NoIndex:
		base, baseI = oldT, oldI
	default:
		base, baseI = newT, newI
	}
	br := base.get(baseI)
	mi := merged.Create(br.kind, br.name, br.ns, br.schema)
	mr := merged.get(mi)
	mr.body = br.body

	if oldI != NoIndex && newI != NoIndex {
		or, nr := oldT.get(oldI), newT.get(newI)
		if or.body != nr.body {
			mr.marks |= MarkChanged
			mr.body = nr.body
		}
	} else if newI != NoIndex && oldI == NoIndex {
		mr.marks |= MarkAdded
	} else if oldI != NoIndex && newI == NoIndex {
		mr.marks |= MarkDeleted
	}

	oldKids := map[string][]Index{}
	if oldI != NoIndex {
		for _, c := range oldT.Children(oldI) {
			k := childKey(oldT, c)
			oldKids[k] = append(oldKids[k], c)
		}
	}
	newKids := map[string][]Index{}
	if newI != NoIndex {
		for _, c := range newT.Children(newI) {
			k := childKey(newT, c)
			newKids[k] = append(newKids[k], c)
		}
	}

	seen := map[string]bool{}
	var order []string
	if oldI != NoIndex {
		for _, c := range oldT.Children(oldI) {
			k := childKey(oldT, c)
			if !seen[k] {
				seen[k] = true
				order = append(order, k)
			}
		}
	}
	if newI != NoIndex {
		for _, c := range newT.Children(newI) {
			k := childKey(newT, c)
			if !seen[k] {
				seen[k] = true
				order = append(order, k)
			}
		}
	}

	for _, k := range order {
		os, ns := oldKids[k], newKids[k]
		n := len(os)
		if len(ns) > n {
			n = len(ns)
		}
		for idx := 0; idx < n; idx++ {
			var oi, ni Index = NoIndex, NoIndex
			if idx < len(os) {
				oi = os[idx]
			}
			if idx < len(ns) {
				ni = ns[idx]
			}
			child := diffNode(merged, oldT, oi, newT, ni)
			_ = merged.AppendChild(mi, child)
		}
	}
	return mi
}

func childKey(t *Tree, i Index) string {
	name := t.Name(i)
	if t.Kind(i) == KindListEntry {
		keys := t.KeyValues(i)
		s := name
		for _, k := range keys {
			s += "\x00" + k
		}
		return s
	}
	return name
}
