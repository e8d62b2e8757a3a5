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

// Package schema implements the YANG schema model of spec.md §4.B: a
// parsed, cross-resolved tree of modules, types, groupings, augments,
// identities and features. Parsing itself is delegated to
// github.com/openconfig/goyang/pkg/yang, the same parser the teacher
// (openconfig/ygot) builds on; this package adds the resolution pass
// goyang's Entry tree does not perform on its own: identity derivation,
// a feature on/off registry and leafref target caching, each keyed by the
// node's stable schema path (spec.md §4.B "cross-cutting"). Augment
// application is not tracked and nodes are not pruned by feature (see
// AugmentsAppliedTo and Node.FeatureEnabled).
package schema

import (
	"fmt"
	"strings"
	"sync"

	log "github.com/golang/glog"
	"github.com/openconfig/goyang/pkg/yang"
	"github.com/pkg/errors"

	"github.com/nmscore/netconfd/node"
)

// Node wraps a *yang.Entry with the cross-resolved facts spec.md §4.B
// requires that goyang does not compute for us: feature-enabled state,
// the identity graph, and leafref target caching. Every Node's lifetime
// is the process lifetime: schema nodes are created once at startup and
// are immutable thereafter except for feature-enabled toggles (spec.md
// §3 "Lifecycle").
type Node struct {
	Entry *yang.Entry

	mu            sync.RWMutex
	path          string
	featureOn     bool
	leafrefTarget *Node
	identityBase  []*Node
}

// SchemaPath returns the stable "/ns:name/…" path used as the key for
// NACM data-node matching and XPath when/must evaluation (spec.md §4.B).
func (n *Node) SchemaPath() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.path
}

// IsList reports whether n describes a YANG list.
func (n *Node) IsList() bool { return n.Entry != nil && n.Entry.IsList() }

// IsLeaf reports whether n describes a YANG leaf.
func (n *Node) IsLeaf() bool { return n.Entry != nil && n.Entry.IsLeaf() }

// IsLeafList reports whether n describes a YANG leaf-list.
func (n *Node) IsLeafList() bool { return n.Entry != nil && n.Entry.IsLeafList() }

// ConfigTrue reports whether n is config-true (the default absent an
// explicit ancestor "config false").
func (n *Node) ConfigTrue() bool {
	if n.Entry == nil {
		return true
	}
	return n.Entry.Config != yang.TSFalse
}

// Mandatory reports whether n is declared mandatory true.
func (n *Node) Mandatory() bool {
	return n.Entry != nil && n.Entry.Mandatory == yang.TSTrue
}

// KeyNames returns the list key leaf names in declaration order.
func (n *Node) KeyNames() []string {
	if n.Entry == nil || n.Entry.Key == "" {
		return nil
	}
	return splitKey(n.Entry.Key)
}

func splitKey(key string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(key); i++ {
		if i == len(key) || key[i] == ' ' {
			if i > start {
				out = append(out, key[start:i])
			}
			start = i + 1
		}
	}
	return out
}

// ChildOrder returns declared child names, key leaves first in key order
// when n is a list (spec.md §4.A "Canonical order"), then the remaining
// names in lexical order; schema declaration order is not recovered.
func (n *Node) ChildOrder() []string {
	if n.Entry == nil {
		return nil
	}
	keys := map[string]bool{}
	var keyOrder []string
	for _, k := range n.KeyNames() {
		if !keys[k] {
			keys[k] = true
			keyOrder = append(keyOrder, k)
		}
	}
	var rest []string
	for _, name := range n.Entry.Dir {
		if !keys[name.Name] {
			rest = append(rest, name.Name)
		}
	}
	// goyang's Dir is a map, so the non-key names are sorted lexically
	// to give a deterministic order.
	sortStrings(rest)
	return append(keyOrder, rest...)
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// OrderedBySystem reports whether n (a list) declares "ordered-by
// system".
func (n *Node) OrderedBySystem() bool {
	if n.Entry == nil || n.Entry.ListAttr == nil {
		return false
	}
	return n.Entry.ListAttr.OrderedBy != nil && n.Entry.ListAttr.OrderedBy.Name == "system"
}

// ModuleName returns the name of the module that defines n, found by
// walking n's Entry.Parent chain to the module-level entry (per
// LoadDir, a module's own Node.Entry.Name is the module name). This is
// the "containing module" spec.md §4.D's JSON encoder needs to decide
// whether an identityref value needs a "module:" prefix.
func (n *Node) ModuleName() string {
	if n.Entry == nil {
		return ""
	}
	e := n.Entry
	for e.Parent != nil {
		e = e.Parent
	}
	return e.Name
}

// Namespace returns the XML namespace URI of the module n belongs to,
// or "" if n has no Entry or that Entry's module declares none.
func (n *Node) Namespace() string {
	if n.Entry == nil {
		return ""
	}
	e := n.Entry
	for e.Parent != nil {
		e = e.Parent
	}
	if ns := e.Namespace(); ns != nil {
		return ns.Name
	}
	return ""
}

// FeatureEnabled returns n's feature flag. The flag is set true when the
// node is created and is not derived from its "if-feature" statements or
// from Forest.SetFeature, so it reads true for every node.
func (n *Node) FeatureEnabled() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.featureOn
}

// LeafrefTarget returns the schema node a leafref-typed leaf n resolves
// to, cached by Forest.Resolve's step 7 (spec.md §4.B). It returns nil
// for a non-leafref node, or one Resolve has not yet run over.
func (n *Node) LeafrefTarget() *Node {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.leafrefTarget
}

// Forest is a fully loaded and resolved set of YANG modules: the public
// contract of spec.md §4.B.
type Forest struct {
	mu          sync.RWMutex
	modules     map[string]*Node   // by module name
	byNamespace map[string]*Node   // by module namespace URI
	byPrefix    map[string]*Node   // module's own declared prefix -> that module
	byPath      *pathIndex         // schema path -> *Node, backed by a trie
	identities  map[string][]*Node // identity name -> derived identities
	augments    map[string][]*Node // augment target path -> augmenting nodes
	features    map[string]bool    // feature name -> enabled
}

// NewForest returns an empty Forest ready for module loading.
func NewForest() *Forest {
	return &Forest{
		modules:     map[string]*Node{},
		byNamespace: map[string]*Node{},
		byPrefix:    map[string]*Node{},
		byPath:      newPathIndex(),
		identities:  map[string][]*Node{},
		augments:    map[string][]*Node{},
		features:    map[string]bool{},
	}
}

// LoadDir parses every YANG module/submodule file under loadDirs plus the
// named mainFiles, exactly as goyang's own moduleSet.Read/Process pair
// does for the teacher (ygen/codegen.go's processModules): loadDirs feed
// Modules.AddPath so imports/includes resolve, mainFiles are read
// directly, then Process runs goyang's own import/include and uses/
// augment resolution (spec.md §4.B steps 2-4) before ToEntry builds the
// Entry forest Resolve then indexes.
func (f *Forest) LoadDir(loadDirs, mainFiles []string) error {
	ms := yang.NewModules()
	for _, d := range loadDirs {
		ms.AddPath(d)
	}
	var errs []error
	for _, file := range mainFiles {
		if err := ms.Read(file); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Errorf("reading YANG files: %v", errs)
	}
	if procErrs := ms.Process(); len(procErrs) > 0 {
		return errors.Errorf("processing YANG modules: %v", procErrs)
	}

	seen := map[string]bool{}
	for _, mod := range ms.Modules {
		if seen[mod.Name] {
			continue
		}
		seen[mod.Name] = true
		entry := yang.ToEntry(mod)
		if entryErrs := entry.GetErrors(); len(entryErrs) > 0 {
			return errors.Errorf("module %s: %v", mod.Name, entryErrs)
		}
		n := &Node{Entry: entry, path: "/" + entry.Name, featureOn: true}

		f.mu.Lock()
		f.modules[mod.Name] = n
		f.byPath.put(n.path, n)
		if ns := entry.Namespace(); ns != nil {
			f.byNamespace[ns.Name] = n
		}
		if prefix := modulePrefix(entry); prefix != "" {
			f.byPrefix[prefix] = n
		}
		f.mu.Unlock()

		log.V(1).Infof("schema: loaded module %s", mod.Name)
	}
	return nil
}

// FindModuleByName returns the loaded module named name.
func (f *Forest) FindModuleByName(name string) (*Node, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	n, ok := f.modules[name]
	return n, ok
}

// FindModuleByNamespace returns the loaded module whose namespace URI is
// ns.
func (f *Forest) FindModuleByNamespace(ns string) (*Node, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	n, ok := f.byNamespace[ns]
	return n, ok
}

// FindModuleByPrefix returns the loaded module whose own "prefix"
// statement is prefix (spec.md §4.B's find_module_by_name/namespace/
// prefix contract). This is a module's own declared prefix, forest-
// wide; resolving an import alias local to one module's when/must
// expressions is ModulePrefixMap's job instead, since two different
// modules can bind the same prefix string to two different imports.
func (f *Forest) FindModuleByPrefix(prefix string) (*Node, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	n, ok := f.byPrefix[prefix]
	return n, ok
}

// FindChildSchema returns the child of parent named name in namespace ns
// (ns == "" matches any namespace, useful for same-module lookups).
func (f *Forest) FindChildSchema(parent *Node, name, ns string) (*Node, bool) {
	if parent == nil || parent.Entry == nil {
		return nil, false
	}
	e, ok := parent.Entry.Dir[name]
	if !ok {
		return nil, false
	}
	if ns != "" {
		if nsv := e.Namespace(); nsv == nil || nsv.Name != ns {
			return nil, false
		}
	}
	return f.nodeFor(e), true
}

// nodeFor returns (creating if necessary) the cached *Node wrapper for a
// *yang.Entry, keyed by its schema path.
func (f *Forest) nodeFor(e *yang.Entry) *Node {
	p := e.Path()
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.byPath.get(p); ok {
		return existing
	}
	n := &Node{Entry: e, path: p, featureOn: true}
	f.byPath.put(p, n)
	return n
}

// FeatureEnabled reports whether feature name is enabled forest-wide.
func (f *Forest) FeatureEnabled(name string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.features[name]
}

// SetFeature toggles feature name. This is the one permitted runtime
// mutation of an otherwise-immutable schema graph (spec.md §3
// "Lifecycle").
func (f *Forest) SetFeature(name string, enabled bool) {
	f.mu.Lock()
	f.features[name] = enabled
	f.mu.Unlock()
}

// IdentityDerivedFrom reports whether identity id (by bare name) is
// derived from base (by bare name), directly or transitively.
//
// Identity nodes are registered by namedIdentity without an Entry (they
// are not data nodes, so goyang never builds one for them); comparing
// via d.Entry.Name would therefore nil-dereference, so identity is
// instead read back out of the node's own indexed path.
func (f *Forest) IdentityDerivedFrom(id, base string) bool {
	if id == base {
		return true
	}
	f.mu.RLock()
	derived := f.identities[base]
	f.mu.RUnlock()
	for _, d := range derived {
		name := identityLocalName(d.path)
		if name == id || f.IdentityDerivedFrom(id, name) {
			return true
		}
	}
	return false
}

// identityLocalName strips the "/module:" prefix namedIdentity adds to an
// identity's indexed schema path, recovering its bare name.
func identityLocalName(path string) string {
	if i := strings.LastIndexByte(path, ':'); i >= 0 {
		return path[i+1:]
	}
	return path
}

// EnumValue implements xpath.SchemaResolver: spec.md §4.C's enum-value()
// reads the integer YANG assigns the enum held by tree node n, via the
// same ResolveType spec.md §4.F stage 2 uses to check a leaf's type
// facets.
func (f *Forest) EnumValue(t *node.Tree, n node.Index) (int64, bool) {
	sn, ok := t.Schema(n).(*Node)
	if !ok || sn.Entry == nil || sn.Entry.Type == nil {
		return 0, false
	}
	prim, err := ResolveType(sn.Entry)
	if err != nil || prim == nil || prim.Kind != KindEnum {
		return 0, false
	}
	v, ok := prim.Enums[t.Body(n)]
	return v, ok
}

// DerefTarget implements xpath.SchemaResolver: spec.md §4.C's deref()
// follows a leafref-typed leaf's target path from its own schema and
// returns the single tree instance whose schema path matches the
// target and whose value equals n's own, the same instance match
// validate.checkLeafref performs at commit time.
func (f *Forest) DerefTarget(t *node.Tree, n node.Index) (node.Index, bool) {
	sn, ok := t.Schema(n).(*Node)
	if !ok {
		return node.NoIndex, false
	}
	target := sn.LeafrefTarget()
	if target == nil || target.Entry == nil {
		return node.NoIndex, false
	}
	value := t.Body(n)
	found := node.NoIndex
	_ = t.Walk(t.Root(), func(tr *node.Tree, cand node.Index) error {
		if found != node.NoIndex {
			return nil
		}
		csn, ok := tr.Schema(cand).(*Node)
		if !ok || csn.Entry == nil {
			return nil
		}
		if csn.Entry.Path() == target.Entry.Path() && tr.Body(cand) == value {
			found = cand
		}
		return nil
	})
	if found == node.NoIndex {
		return node.NoIndex, false
	}
	return found, true
}

// AugmentsAppliedTo returns the augmenting nodes recorded for the data
// node at schema path target. Nothing in this package records augments
// (Resolve does not fill the table), so the result is always empty.
func (f *Forest) AugmentsAppliedTo(target string) []*Node {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]*Node(nil), f.augments[target]...)
}

// String is a debug helper, mirroring util.SchemaTypeStr's intent of
// giving a one-line description of a schema node.
func (n *Node) String() string {
	if n == nil || n.Entry == nil {
		return "<nil schema>"
	}
	return fmt.Sprintf("%s(%v)", n.Entry.Name, n.Entry.Kind)
}
