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

package nacm

import (
	"strings"

	"github.com/nmscore/netconfd/node"
)

// schemaPather is the subset of node.Schema this package needs to
// derive a rule-matchable path and module name from a bound node,
// satisfied by *schema.Node without importing package schema (nacm
// only needs the node.Schema interface already exported by package
// node).
type schemaPather interface {
	SchemaPath() string
}

// moduleOf extracts the leading "ns:" module-ish prefix of a schema
// path ("/ex:top/ex:iface" -> "ex"), which is the namespace prefix the
// module was declared under — the same token a NACM module-name-glob
// rule is written against.
func moduleOf(schemaPath string) string {
	p := strings.TrimPrefix(schemaPath, "/")
	i := strings.IndexByte(p, ':')
	if i < 0 {
		return ""
	}
	return p[:i]
}

// FilterRead prunes every node of tree (starting at root) that
// username may not read, together with its descendants, in place. It
// never returns an error: read denial is always silent filtering, per
// spec.md §4.G.
func (e *Evaluator) FilterRead(tree *node.Tree, root node.Index, username string) {
	for _, child := range tree.Children(root) {
		if e.pruneOrDescend(tree, child, username) {
			tree.RemoveChild(child)
		}
	}
}

// pruneOrDescend reports whether i itself must be pruned. If i
// survives, its children are filtered recursively first so a
// surviving container never carries a denied descendant.
func (e *Evaluator) pruneOrDescend(tree *node.Tree, i node.Index, username string) bool {
	schemaPath := ""
	module := ""
	if s := tree.Schema(i); s != nil {
		if sp, ok := s.(schemaPather); ok {
			schemaPath = sp.SchemaPath()
			module = moduleOf(schemaPath)
		}
	}
	if !e.readPermitted(username, module, schemaPath) {
		return true
	}
	for _, child := range tree.Children(i) {
		if e.pruneOrDescend(tree, child, username) {
			tree.RemoveChild(child)
		}
	}
	return false
}
