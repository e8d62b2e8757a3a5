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

// Package node implements the object tree of spec.md §3/§4.A: an ordered,
// typed, namespace-aware tree representing both configuration data and, via
// its Schema back-reference, schema instances. Nodes live in a single
// per-Tree arena addressed by integer index (spec.md §9's "arena of nodes
// with integer indices"); a parent reference is a weak index, never
// ownership, which is what lets the whole tree be freed by dropping the
// arena slice.
//
// The API surface (AppendChild/FindChild/Body/Attr) is modeled on
// andaru-opr8/dom's Node interface, generalized from that package's
// pointer-linked nodes to arena-indexed ones.
package node

import "fmt"

// Kind is the tagged-variant discriminator of an object tree node.
type Kind uint8

// Node kinds, per spec.md §3.
const (
	KindContainer Kind = iota
	KindListEntry
	KindLeaf
	KindLeafListEntry
	KindAnydata
)

func (k Kind) String() string {
	switch k {
	case KindContainer:
		return "container"
	case KindListEntry:
		return "list-entry"
	case KindLeaf:
		return "leaf"
	case KindLeafListEntry:
		return "leaf-list-entry"
	case KindAnydata:
		return "anydata"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// Marks is the bitset of spec.md §3 invariant (c): added/deleted/changed/
// default/marked-for-selection. Marks are stored on each node's record and
// stay set until ClearMarks zeroes them; they are not reset automatically
// when a diff/validate/commit cycle ends, and Copy/CloneTree carry them
// over to the copy.
type Marks uint8

// Mark bits.
const (
	MarkAdded Marks = 1 << iota
	MarkDeleted
	MarkChanged
	MarkDefault
	MarkSelected
)

// Has reports whether all bits in want are set in m.
func (m Marks) Has(want Marks) bool { return m&want == want }

// Schema is the minimal surface the node package needs from a schema back-
// reference, so that package node never imports package schema (schema, in
// turn, never needs to import node): this breaks what would otherwise be
// an import cycle between the two tightly coupled packages of spec.md §2.
type Schema interface {
	// SchemaPath returns the stable "/ns:name/…" path used as the schema
	// node's identity (spec.md §4.B "cross-cutting").
	SchemaPath() string
	// IsList reports whether this schema node describes a YANG list.
	IsList() bool
	// KeyNames returns, for a list schema node, the leaf names forming
	// the list's key, in declaration order.
	KeyNames() []string
	// ChildOrder returns the declared child names in schema order, used
	// for canonical output ordering (spec.md §4.A).
	ChildOrder() []string
	// OrderedBySystem reports whether a list schema node declares
	// "ordered-by system", which makes insertion order insignificant
	// and requires lexicographic key-tuple ordering at output time.
	OrderedBySystem() bool
}

// Index addresses a node within a Tree's arena. The root allocated by New
// is Index 0; use NoIndex when a field is genuinely absent.
type Index int32

// NoIndex is the null Index.
const NoIndex Index = -1

type rec struct {
	kind   Kind
	name   string
	ns     string
	parent Index
	first  Index
	last   Index
	next   Index
	prev   Index
	schema Schema
	body   string
	attrs  map[string]string
	marks  Marks
}

// Tree is an arena of nodes. The zero Tree is not usable; use New.
type Tree struct {
	arena []rec
	root  Index
}

// New returns a Tree whose root is a container node with the given name
// and namespace.
func New(name, ns string) *Tree {
	t := &Tree{root: NoIndex}
	t.root = t.alloc(rec{kind: KindContainer, name: name, ns: ns, parent: NoIndex, first: NoIndex, last: NoIndex, next: NoIndex, prev: NoIndex})
	return t
}

func (t *Tree) alloc(r rec) Index {
	if r.first == 0 && r.last == 0 {
		r.first, r.last = NoIndex, NoIndex
	}
	t.arena = append(t.arena, r)
	return Index(len(t.arena) - 1)
}

func (t *Tree) get(i Index) *rec {
	if i == NoIndex || int(i) >= len(t.arena) {
		return nil
	}
	return &t.arena[i]
}

// Root returns the tree's root index.
func (t *Tree) Root() Index { return t.root }

// SetRoot reassigns t's logical root to i. Readers that build their own
// root node inside an existing arena rather than reusing the one New
// allocated (encoding.XMLReader/JSONReader, whose Decode returns the
// index it created) use this to make that node the tree's root of
// record once decoding completes.
func (t *Tree) SetRoot(i Index) { t.root = i }

// Create allocates a new, unattached node of the given kind, name and
// namespace, with an optional schema back-reference, and returns its
// index. Use AppendChild to attach it to a parent.
func (t *Tree) Create(kind Kind, name, ns string, schema Schema) Index {
	return t.alloc(rec{kind: kind, name: name, ns: ns, schema: schema, parent: NoIndex, first: NoIndex, last: NoIndex, next: NoIndex, prev: NoIndex})
}

// Kind returns the kind of node i.
func (t *Tree) Kind(i Index) Kind { return t.get(i).kind }

// SetKind overrides the kind of node i. Readers that only learn whether
// an element is a leaf or a container once its content is fully seen
// (schemaless XML, where a start tag alone doesn't say) create the node
// optimistically and reclassify it here once the answer is known.
func (t *Tree) SetKind(i Index, kind Kind) { t.get(i).kind = kind }

// Name returns the local name of node i.
func (t *Tree) Name(i Index) string { return t.get(i).name }

// Namespace returns the namespace URI of node i, or "" if it inherits its
// parent's (spec.md §3 invariant (a)).
func (t *Tree) Namespace(i Index) string { return t.get(i).ns }

// EffectiveNamespace resolves node i's namespace following XML inheritance:
// if i carries no explicit namespace, walk up to the nearest ancestor that
// does.
func (t *Tree) EffectiveNamespace(i Index) string {
	for cur := i; cur != NoIndex; cur = t.get(cur).parent {
		if ns := t.get(cur).ns; ns != "" {
			return ns
		}
	}
	return ""
}

// Schema returns the schema back-reference of node i, or nil.
func (t *Tree) Schema(i Index) Schema { return t.get(i).schema }

// SetSchema attaches a schema back-reference to node i.
func (t *Tree) SetSchema(i Index, s Schema) { t.get(i).schema = s }

// Parent returns the parent of node i, or NoIndex if i is the root or
// detached.
func (t *Tree) Parent(i Index) Index { return t.get(i).parent }

// FirstChild returns the first child of node i.
func (t *Tree) FirstChild(i Index) Index { return t.get(i).first }

// NextSibling returns the next sibling of node i.
func (t *Tree) NextSibling(i Index) Index { return t.get(i).next }

// PrevSibling returns the previous sibling of node i.
func (t *Tree) PrevSibling(i Index) Index { return t.get(i).prev }

// Body returns the body text of node i (meaningful for leaf and
// leaf-list-entry nodes).
func (t *Tree) Body(i Index) string { return t.get(i).body }

// SetBody sets the body text of node i and marks it changed.
func (t *Tree) SetBody(i Index, v string) {
	r := t.get(i)
	if r.body != v {
		r.marks |= MarkChanged
	}
	r.body = v
}

// Attr returns attribute name's value on node i, and whether it is set.
func (t *Tree) Attr(i Index, name string) (string, bool) {
	r := t.get(i)
	if r.attrs == nil {
		return "", false
	}
	v, ok := r.attrs[name]
	return v, ok
}

// AttrNames returns the names of every attribute set on node i, in
// unspecified order.
func (t *Tree) AttrNames(i Index) []string {
	r := t.get(i)
	if len(r.attrs) == 0 {
		return nil
	}
	out := make([]string, 0, len(r.attrs))
	for k := range r.attrs {
		out = append(out, k)
	}
	return out
}

// SetAttr sets attribute name to value on node i.
func (t *Tree) SetAttr(i Index, name, value string) {
	r := t.get(i)
	if r.attrs == nil {
		r.attrs = map[string]string{}
	}
	r.attrs[name] = value
}

// Marks returns the current marker bitset of node i.
func (t *Tree) Marks(i Index) Marks { return t.get(i).marks }

// SetMarks ORs bits into node i's marker bitset.
func (t *Tree) SetMarks(i Index, bits Marks) { t.get(i).marks |= bits }

// ClearMarks zeroes node i's marker bitset, restoring invariant (c) of
// spec.md §3 once a diff/validate/commit cycle has concluded.
func (t *Tree) ClearMarks(i Index) { t.get(i).marks = 0 }

// Children returns the ordered slice of node i's children, in current
// insertion order (canonicalization happens at output time, see order.go).
func (t *Tree) Children(i Index) []Index {
	var out []Index
	for c := t.get(i).first; c != NoIndex; c = t.get(c).next {
		out = append(out, c)
	}
	return out
}
