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

package schema

import "github.com/derekparker/trie"

// pathIndex maps a schema path string ("/ns:name/…") to its *Node,
// backed by a prefix trie so that NACM (package nacm) can cheaply
// enumerate every schema node under a data-node XPath prefix without a
// full forest walk (spec.md §4.B "cross-cutting").
type pathIndex struct {
	t     *trie.Trie
	nodes map[string]*Node
}

func newPathIndex() *pathIndex {
	return &pathIndex{t: trie.New(), nodes: map[string]*Node{}}
}

func (p *pathIndex) put(path string, n *Node) {
	p.t.Add(path, n)
	p.nodes[path] = n
}

func (p *pathIndex) get(path string) (*Node, bool) {
	n, ok := p.nodes[path]
	return n, ok
}

// PrefixSearch returns every node whose schema path has prefix as a
// string prefix, used by nacm's module-name-glob pre-filter.
func (p *pathIndex) PrefixSearch(prefix string) []*Node {
	keys := p.t.PrefixSearch(prefix)
	out := make([]*Node, 0, len(keys))
	for _, k := range keys {
		if n, ok := p.nodes[k]; ok {
			out = append(out, n)
		}
	}
	return out
}
