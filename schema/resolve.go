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

import (
	"strings"

	"github.com/openconfig/goyang/pkg/yang"
	"github.com/pkg/errors"
)

// Resolve performs the one-time resolution pass of spec.md §4.B over
// every module already loaded into f via LoadModule. goyang's own
// yang.ToEntry has already folded uses/grouping expansion and applied
// augment targets by the time an Entry tree exists (steps 3-4 of spec.md
// §4.B's algorithm); Resolve's job is everything goyang's Entry tree
// does not already give us: indexing every node by its stable schema
// path, recording the identity derivation graph, registering feature
// statements (default-enabled until toggled off), and caching leafref
// targets (step 7) so that repeated ValidateLeafRefData calls (package
// validate) do not re-walk the path expression each time.
//
// Cyclic leafrefs are reported as a fatal error, as spec.md §4.B
// requires; a circular import between modules is likewise fatal (step
// 2) and is surfaced by goyang itself during Module.GetModule/ToEntry,
// so Resolve does not need to re-detect it.
func (f *Forest) Resolve() error {
	f.mu.RLock()
	mods := make([]*Node, 0, len(f.modules))
	for _, m := range f.modules {
		mods = append(mods, m)
	}
	f.mu.RUnlock()

	for _, m := range mods {
		if m.Entry == nil {
			continue
		}
		f.indexTree(m.Entry)
		f.collectIdentitiesAndFeatures(m.Entry)
	}
	for _, m := range mods {
		if m.Entry == nil {
			continue
		}
		if err := f.resolveLeafrefsUnder(m.Entry); err != nil {
			return err
		}
	}
	return nil
}

func (f *Forest) indexTree(e *yang.Entry) {
	f.nodeFor(e)
	for _, c := range e.Dir {
		f.indexTree(c)
	}
}

// collectIdentitiesAndFeatures reads the "identity" and "feature"
// statements carried directly on the module statement node, since those
// are not data nodes and so do not appear in Entry.Dir. goyang's typed
// *yang.Module (e.Node, type-asserted) carries each as a slice named
// after the statement keyword, the same pattern
// util.Children/SchemaTreeRoot rely on for Entry.Dir.
func (f *Forest) collectIdentitiesAndFeatures(e *yang.Entry) {
	mod, ok := e.Node.(*yang.Module)
	if !ok || mod == nil {
		return
	}
	for _, id := range mod.Identity {
		base := ""
		if id.BaseIdentity != nil {
			base = id.BaseIdentity.Name
		}
		f.mu.Lock()
		f.identities[base] = append(f.identities[base], f.namedIdentity(id.Name, e))
		f.mu.Unlock()
	}
	for _, feat := range mod.Feature {
		f.mu.Lock()
		if _, ok := f.features[feat.Name]; !ok {
			f.features[feat.Name] = true // default-enabled until toggled
		}
		f.mu.Unlock()
	}
}

func (f *Forest) namedIdentity(name string, module *yang.Entry) *Node {
	path := "/" + module.Name + ":" + name
	f.mu.RLock()
	if existing, ok := f.byPath.get(path); ok {
		f.mu.RUnlock()
		return existing
	}
	f.mu.RUnlock()
	n := &Node{path: path, featureOn: true}
	f.mu.Lock()
	f.byPath.put(path, n)
	f.mu.Unlock()
	return n
}

// resolveLeafrefsUnder walks e's data-node subtree, resolving and caching
// the target of every leafref-typed leaf (spec.md §4.B step 7). A
// leafref whose resolution loops back on itself (A -> B -> A) is
// reported as fatal, per spec.md §4.B.
func (f *Forest) resolveLeafrefsUnder(e *yang.Entry) error {
	for _, c := range e.Dir {
		if c.Type != nil && c.Type.Kind == yang.Yleafref {
			target, err := f.ResolveLeafref(c)
			if err != nil {
				return errors.Wrapf(err, "resolving leafref at %s", c.Path())
			}
			n := f.nodeFor(c)
			n.mu.Lock()
			n.leafrefTarget = target
			n.mu.Unlock()
		}
		if err := f.resolveLeafrefsUnder(c); err != nil {
			return err
		}
	}
	return nil
}

// ResolveLeafref resolves the leafref type of schema entry e to its
// target schema node, per spec.md §4.B's "resolve_leafref(from) → target
// schema node" contract.
func (f *Forest) ResolveLeafref(e *yang.Entry) (*Node, error) {
	if e.Type == nil || e.Type.Kind != yang.Yleafref {
		return nil, errors.Errorf("%s is not a leafref", e.Path())
	}
	pathStr := e.Type.Path
	// An absolute path ("/ex:top/ex:iface/ex:name") is rooted at the
	// declaring module's top-level entry, not at e itself; a relative
	// path (built from "..") is rooted at e's parent, since the leading
	// ".." steps ascend from the leaf's own position. Starting every
	// path at e, as if all leafref paths were relative, would fail to
	// resolve any absolute path immediately (leaves have no Dir).
	var cur *yang.Entry
	if strings.HasPrefix(strings.TrimSpace(pathStr), "/") {
		cur = e
		for cur.Parent != nil {
			cur = cur.Parent
		}
	} else {
		cur = e.Parent
		if cur == nil {
			return nil, errors.Errorf("leafref %s: relative path with no parent", e.Path())
		}
	}
	visited := map[string]bool{e.Path(): true}
	for _, seg := range splitXPathSteps(pathStr) {
		if seg == ".." {
			if cur.Parent == nil {
				return nil, errors.Errorf("leafref %s: path ascends past root", e.Path())
			}
			cur = cur.Parent
			continue
		}
		name := stripModulePrefix(seg)
		next, ok := cur.Dir[name]
		if !ok {
			return nil, errors.Errorf("leafref %s: no such node %q at %s", e.Path(), name, cur.Path())
		}
		if visited[next.Path()] {
			return nil, errors.Errorf("leafref %s: cyclic path through %s", e.Path(), next.Path())
		}
		visited[next.Path()] = true
		cur = next
	}
	if cur.Type != nil && cur.Type.Kind == yang.Yleafref && cur != e {
		target, err := f.ResolveLeafref(cur)
		if err != nil {
			return nil, err
		}
		return target, nil
	}
	return f.nodeFor(cur), nil
}

func splitXPathSteps(p string) []string {
	p = strings.TrimPrefix(p, "/")
	var out []string
	for _, seg := range strings.Split(p, "/") {
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}

func stripModulePrefix(step string) string {
	if i := strings.IndexByte(step, ':'); i >= 0 {
		return step[i+1:]
	}
	return step
}

// ResolveType returns the primitive kind and facets for the type of
// schema entry e, following union first-match order (spec.md §4.F stage
// 2's "union types use first-match semantics in declaration order").
func ResolveType(e *yang.Entry) (*Primitive, error) {
	if e == nil || e.Type == nil {
		return nil, errors.New("schema: no type information")
	}
	return primitiveFromYangType(e.Type), nil
}
