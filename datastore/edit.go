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

package datastore

import (
	"github.com/nmscore/netconfd/node"
	"github.com/nmscore/netconfd/rpcerr"
	"github.com/nmscore/netconfd/validate"
)

// opAttr is the RFC 6241 §7.2 per-node "operation" attribute.
const opAttr = "operation"

// Get returns a Snapshot of db's tree (config plus any operational
// state layered over it — this engine keeps the two in one tree).
func (s *Store) Get(db Name) (*Snapshot, error) {
	return s.Snapshot(db)
}

// GetConfig is Get restricted to db's <config> subtree; since this
// engine does not separate config and state into different trees, it
// is currently equivalent to Get. It exists as a distinct entry point
// so a future split does not change EditConfig/GetConfig's call
// shape.
func (s *Store) GetConfig(db Name) (*Snapshot, error) {
	return s.Snapshot(db)
}

// EditConfig applies the edits in patch (an unattached subtree
// matching db's own schema, built by the caller from a decoded
// <edit-config> payload) to db's in-memory tree using defaultOp as the
// fallback per-node operation where patch carries no explicit
// "operation" attribute, per RFC 6241 §7.2. It does not persist or
// validate; the caller runs package validate's Pipeline over the
// result and then either Swaps it in (test-then-set/set) or discards
// it (test-only), per spec.md §4.E/§4.F.
func (s *Store) EditConfig(db Name, patch *node.Tree, defaultOp DefaultOp, errOpt rpcerr.ErrorOption) (*node.Tree, error) {
	e, err := s.get(db)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	working := e.root.CloneTree()
	e.mu.Unlock()

	var errs rpcerr.List
	for _, child := range patch.Children(patch.Root()) {
		if err := mergeInto(working, working.Root(), patch, child, defaultOp); err != nil {
			errs = errs.Append(err)
			if errOpt == rpcerr.StopOnError || errOpt == rpcerr.RollbackOnError {
				return nil, errs.AsError()
			}
		}
	}
	if len(errs) > 0 {
		// Only StopOnError/RollbackOnError discard the merge outright (and
		// both already returned above, at the first failing step); reaching
		// here means errOpt is ContinueOnError, which keeps applying the
		// remaining patch children and must hand back what did merge
		// alongside the accumulated failures (RFC 6241 §7.2).
		return working, errs.AsError()
	}
	return working, nil
}

// mergeInto applies patchNode (a child of patchParent in patchTree) to
// dstParent in dst, honoring patchNode's own "operation" attribute if
// set, else the operation inherited from its parent (defaultOp at the
// top of the patch), per RFC 6241 §7.2's five operations:
//
//   - merge: the default. Recurse, creating dstParent's matching child
//     if absent, merging leaf bodies and container/list-entry children
//     otherwise.
//   - replace: like merge for an absent match; for an existing match,
//     the whole subtree is replaced wholesale with patchNode's.
//   - create: like merge for an absent match; data-exists if a match
//     already exists.
//   - delete: data-missing if no match exists, else remove it.
//   - remove: silently no-ops if no match exists, else remove it.
func mergeInto(dst *node.Tree, dstParent node.Index, patchTree *node.Tree, patchNode node.Index, defaultOp DefaultOp) error {
	op := defaultOp
	if v, ok := patchTree.Attr(patchNode, opAttr); ok {
		op = DefaultOp(v)
	}
	name := patchTree.Name(patchNode)
	ns := patchTree.EffectiveNamespace(patchNode)

	match := findMatch(dst, dstParent, patchTree, patchNode, name, ns)

	switch op {
	case OpDelete:
		if match == node.NoIndex {
			return rpcerr.New(rpcerr.TypeApplication, rpcerr.TagDataMissing,
				"delete: no such node "+name).AtPath(validate.InstancePath(dst, dstParent) + "/" + name)
		}
		dst.RemoveChild(match)
		return nil
	case OpRemove:
		if match != node.NoIndex {
			dst.RemoveChild(match)
		}
		return nil
	case OpCreate:
		if match != node.NoIndex {
			return rpcerr.New(rpcerr.TypeApplication, rpcerr.TagDataExists,
				"create: node already exists "+name).AtPath(validate.InstancePath(dst, match))
		}
		return createSubtree(dst, dstParent, patchTree, patchNode)
	case OpReplace:
		if match != node.NoIndex {
			dst.RemoveChild(match)
		}
		return createSubtree(dst, dstParent, patchTree, patchNode)
	case OpMerge:
		fallthrough
	default:
		if match == node.NoIndex {
			return createSubtree(dst, dstParent, patchTree, patchNode)
		}
		return mergeChildren(dst, match, patchTree, patchNode, op)
	}
}

// findMatch locates dstParent's existing child matching patchNode: by
// key-tuple equality for a list entry, by name+namespace otherwise
// (RFC 6241 §7.2's "matching node" definition). Key-tuple comparison
// relies on KeyValues, which needs a schema back-reference; a
// schema-bound patch (the normal case — decoded with
// encoding.ModeBIND against the running forest) compares correctly,
// but a schemaless list entry compares as an empty tuple against any
// same-named sibling, so unbound callers must not rely on this to
// disambiguate multiple entries of one list.
func findMatch(dst *node.Tree, dstParent node.Index, patchTree *node.Tree, patchNode node.Index, name, ns string) node.Index {
	if patchTree.Kind(patchNode) == node.KindListEntry {
		wantKeys := patchTree.KeyValues(patchNode)
		for _, c := range dst.FindChildren(dstParent, name, ns) {
			if keysEqual(dst.KeyValues(c), wantKeys) {
				return c
			}
		}
		return node.NoIndex
	}
	return dst.FindChild(dstParent, name, ns)
}

func keysEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// createSubtree deep-copies patchNode's whole subtree from patchTree
// into dst as a new child of dstParent.
func createSubtree(dst *node.Tree, dstParent node.Index, patchTree *node.Tree, patchNode node.Index) error {
	newIdx := dst.Copy(patchTree, patchNode)
	dst.SetMarks(newIdx, node.MarkAdded)
	return dst.AppendChild(dstParent, newIdx)
}

// mergeChildren recursively merges patchNode's body (for a leaf) and
// children (for a container/list-entry) into the existing match node.
func mergeChildren(dst *node.Tree, match node.Index, patchTree *node.Tree, patchNode node.Index, defaultOp DefaultOp) error {
	if patchTree.Kind(patchNode) == node.KindLeaf || patchTree.Kind(patchNode) == node.KindLeafListEntry {
		body := patchTree.Body(patchNode)
		if dst.Body(match) != body {
			dst.SetBody(match, body)
			dst.SetMarks(match, node.MarkChanged)
		}
		return nil
	}
	for _, child := range patchTree.Children(patchNode) {
		if err := mergeInto(dst, match, patchTree, child, defaultOp); err != nil {
			return err
		}
	}
	return nil
}
