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

import (
	"github.com/nmscore/netconfd/rpcerr"
)

// AppendChild attaches child as the last child of parent. It returns a
// structured error per RFC 6241 Appendix A (spec.md §4.A "Failure") if
// parent or child does not exist (bad-element), or if parent is schema-
// bound and child's name is not among parent's schema's declared
// children (unknown-element). The number of entries under parent is not
// checked, so max-elements never yields too-many-elements here.
func (t *Tree) AppendChild(parent, child Index) error {
	if err := t.checkParentage(parent, child); err != nil {
		return err
	}
	cr := t.get(child)
	cr.parent = parent
	pr := t.get(parent)
	if pr.last == NoIndex {
		pr.first, pr.last = child, child
		cr.prev, cr.next = NoIndex, NoIndex
		return nil
	}
	last := pr.last
	t.get(last).next = child
	cr.prev = last
	cr.next = NoIndex
	pr.last = child
	return nil
}

// PrependChild attaches child as the first child of parent.
func (t *Tree) PrependChild(parent, child Index) error {
	if err := t.checkParentage(parent, child); err != nil {
		return err
	}
	cr := t.get(child)
	cr.parent = parent
	pr := t.get(parent)
	if pr.first == NoIndex {
		pr.first, pr.last = child, child
		cr.prev, cr.next = NoIndex, NoIndex
		return nil
	}
	first := pr.first
	t.get(first).prev = child
	cr.next = first
	cr.prev = NoIndex
	pr.first = child
	return nil
}

// RemoveChild detaches child from its parent, leaving child's own
// subtree intact but unparented.
func (t *Tree) RemoveChild(child Index) {
	cr := t.get(child)
	parent := cr.parent
	if parent == NoIndex {
		return
	}
	pr := t.get(parent)
	if cr.prev != NoIndex {
		t.get(cr.prev).next = cr.next
	} else {
		pr.first = cr.next
	}
	if cr.next != NoIndex {
		t.get(cr.next).prev = cr.prev
	} else {
		pr.last = cr.prev
	}
	cr.parent, cr.next, cr.prev = NoIndex, NoIndex, NoIndex
}

// checkParentage validates child against parent's schema, returning the
// RFC 6241 Appendix A error taxonomy entries named in spec.md §4.A.
func (t *Tree) checkParentage(parent, child Index) error {
	pr := t.get(parent)
	if pr == nil {
		return rpcerr.New(rpcerr.TypeApplication, rpcerr.TagBadElement, "parent node does not exist")
	}
	cr := t.get(child)
	if cr == nil {
		return rpcerr.New(rpcerr.TypeApplication, rpcerr.TagBadElement, "child node does not exist")
	}
	if pr.schema == nil {
		// Schemaless tree (encoding.ModeNONE): no structural check yet;
		// binding happens later.
		return nil
	}
	allowed := false
	for _, name := range pr.schema.ChildOrder() {
		if name == cr.name {
			allowed = true
			break
		}
	}
	if !allowed {
		return rpcerr.New(rpcerr.TypeApplication, rpcerr.TagUnknownElement,
			"element "+cr.name+" is not a valid child of "+pr.schema.SchemaPath())
	}
	if pr.schema.IsList() {
		return nil // list cardinality is not checked
	}
	return nil
}

// FindChild returns the first child of parent named name in namespace ns
// (ns == "" matches parent's own effective namespace), or NoIndex.
func (t *Tree) FindChild(parent Index, name, ns string) Index {
	for c := t.get(parent).first; c != NoIndex; c = t.get(c).next {
		cr := t.get(c)
		if cr.name != name {
			continue
		}
		if ns == "" || t.EffectiveNamespace(c) == ns {
			return c
		}
	}
	return NoIndex
}

// FindChildren returns every child of parent named name in namespace ns,
// preserving order; used for list-entry lookup (multiple entries share a
// name).
func (t *Tree) FindChildren(parent Index, name, ns string) []Index {
	var out []Index
	for c := t.get(parent).first; c != NoIndex; c = t.get(c).next {
		cr := t.get(c)
		if cr.name != name {
			continue
		}
		if ns == "" || t.EffectiveNamespace(c) == ns {
			out = append(out, c)
		}
	}
	return out
}

// KeyValues returns the ordered key-leaf body values of a list-entry node,
// per its schema's KeyNames. It returns nil if i has no schema or is not a
// list entry.
func (t *Tree) KeyValues(i Index) []string {
	r := t.get(i)
	if r.schema == nil || r.kind != KindListEntry {
		return nil
	}
	names := r.schema.KeyNames()
	out := make([]string, 0, len(names))
	for _, kn := range names {
		kc := t.FindChild(i, kn, "")
		if kc == NoIndex {
			out = append(out, "")
			continue
		}
		out = append(out, t.Body(kc))
	}
	return out
}

// Visitor is called once per node during Walk, pre-order.
type Visitor func(t *Tree, i Index) error

// Walk performs a pre-order traversal of the subtree rooted at i, calling
// visit on each node including i itself. Traversal stops at the first
// error returned by visit.
func (t *Tree) Walk(i Index, visit Visitor) error {
	if err := visit(t, i); err != nil {
		return err
	}
	for c := t.get(i).first; c != NoIndex; c = t.get(c).next {
		if err := t.Walk(c, visit); err != nil {
			return err
		}
	}
	return nil
}

// Copy deep-clones the subtree rooted at src (which may belong to a
// different Tree) into t, unattached, and returns its new index.
func (t *Tree) Copy(src *Tree, srcIdx Index) Index {
	r := src.get(srcIdx)
	newIdx := t.Create(r.kind, r.name, r.ns, r.schema)
	nr := t.get(newIdx)
	nr.body = r.body
	nr.marks = r.marks
	if r.attrs != nil {
		nr.attrs = make(map[string]string, len(r.attrs))
		for k, v := range r.attrs {
			nr.attrs[k] = v
		}
	}
	for c := r.first; c != NoIndex; c = src.get(c).next {
		childCopy := t.Copy(src, c)
		_ = t.AppendChild(newIdx, childCopy)
	}
	return newIdx
}

// CloneTree returns a deep, independent copy of the whole tree t.
func (t *Tree) CloneTree() *Tree {
	out := &Tree{root: NoIndex}
	out.root = out.Copy(t, t.root)
	return out
}
