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

import "sort"

// CanonicalChildren returns the children of i in the order spec.md §4.A
// mandates for output: list-entry key leaves precede the entry's other
// children in schema-declared key order; remaining direct children of a
// container/list-entry follow schema declaration order; and list entries
// sharing a name within parent i are re-sorted into key-tuple lexical
// order when their schema declares "ordered-by system" (otherwise their
// stored insertion order, which is significant, is preserved).
//
// Insertion order in the tree itself is never mutated by this call.
func (t *Tree) CanonicalChildren(i Index) []Index {
	kids := t.Children(i)
	schema := t.Schema(i)
	if schema == nil {
		return kids
	}

	order := schema.ChildOrder()
	rank := make(map[string]int, len(order))
	for idx, name := range order {
		rank[name] = idx
	}

	// Stable sort by schema declaration rank; unknown names (schemaless
	// children under an anydata subtree, for instance) keep their
	// relative position at the end.
	sort.SliceStable(kids, func(a, b int) bool {
		na, nb := t.Name(kids[a]), t.Name(kids[b])
		ra, oka := rank[na]
		rb, okb := rank[nb]
		if oka && okb {
			return ra < rb
		}
		if oka != okb {
			return oka
		}
		return false
	})

	// Group list entries sharing a name and, if ordered-by system,
	// re-sort that run by key tuple.
	out := make([]Index, 0, len(kids))
	i0 := 0
	for i0 < len(kids) {
		name := t.Name(kids[i0])
		j := i0 + 1
		for j < len(kids) && t.Name(kids[j]) == name && t.Kind(kids[j]) == KindListEntry {
			j++
		}
		run := kids[i0:j]
		if len(run) > 1 && t.Kind(run[0]) == KindListEntry {
			if es := t.Schema(run[0]); es != nil && es.OrderedBySystem() {
				sort.SliceStable(run, func(a, b int) bool {
					return lessKeyTuple(t.KeyValues(run[a]), t.KeyValues(run[b]))
				})
			}
		}
		out = append(out, run...)
		i0 = j
	}
	return out
}

func lessKeyTuple(a, b []string) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}
