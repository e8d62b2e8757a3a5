// Copyright 2018 Google Inc.
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

package encoding

import (
	"sort"
	"strconv"

	gnmipb "github.com/openconfig/gnmi/proto/gnmi"

	"github.com/nmscore/netconfd/node"
	"github.com/nmscore/netconfd/schema"
)

// ToNotification walks the subtree rooted at idx and appends one
// gnmipb.Update per leaf/leaf-list-entry it contains to a Notification,
// each Update's Path built from the schema path of the walk rather than
// re-deriving prefix/key logic a second time (spec.md §4.D's
// ToNotification/FromUpdate pair). Grounded on ygot/diff.go's
// appendUpdate and schemaPathTogNMIPath, generalized from a reflect-
// walked GoStruct to an arena node.Tree.
func ToNotification(tree *node.Tree, idx node.Index, timestamp int64) (*gnmipb.Notification, error) {
	n := &gnmipb.Notification{Timestamp: timestamp}
	if err := walkForNotification(tree, idx, &gnmipb.Path{}, n); err != nil {
		return nil, err
	}
	return n, nil
}

func walkForNotification(tree *node.Tree, idx node.Index, parent *gnmipb.Path, n *gnmipb.Notification) error {
	s, _ := tree.Schema(idx).(*schema.Node)
	elem := &gnmipb.PathElem{Name: tree.Name(idx)}
	if s != nil && s.IsList() {
		keys := s.KeyNames()
		if len(keys) > 0 {
			elem.Key = map[string]string{}
			for _, c := range tree.CanonicalChildren(idx) {
				name := tree.Name(c)
				for _, k := range keys {
					if name == k {
						elem.Key[k] = tree.Body(c)
					}
				}
			}
		}
	}
	path := &gnmipb.Path{Elem: append(append([]*gnmipb.PathElem{}, parent.Elem...), elem)}

	children := tree.CanonicalChildren(idx)
	if s != nil && (s.IsLeaf() || s.IsLeafList()) {
		val, err := typedValueFor(tree.Body(idx), s)
		if err != nil {
			return err
		}
		n.Update = append(n.Update, &gnmipb.Update{Path: path, Val: val})
		return nil
	}
	if len(children) == 0 {
		return nil
	}
	for _, c := range children {
		if err := walkForNotification(tree, c, path, n); err != nil {
			return err
		}
	}
	return nil
}

// typedValueFor renders one leaf's string body as a gnmipb.TypedValue
// per its resolved primitive kind, mirroring ygot/ytypes's own
// Go-value-to-TypedValue mapping (EncodeTypedValue) but starting from
// the leaf's canonical string body instead of a reflect.Value.
func typedValueFor(body string, s *schema.Node) (*gnmipb.TypedValue, error) {
	if s.Entry == nil || s.Entry.Type == nil {
		return &gnmipb.TypedValue{Value: &gnmipb.TypedValue_StringVal{StringVal: body}}, nil
	}
	prim, err := schema.ResolveType(s.Entry)
	if err != nil {
		return &gnmipb.TypedValue{Value: &gnmipb.TypedValue_StringVal{StringVal: body}}, nil
	}
	switch prim.Kind {
	case schema.KindInt:
		v, err := strconv.ParseInt(body, 10, 64)
		if err != nil {
			return nil, err
		}
		return &gnmipb.TypedValue{Value: &gnmipb.TypedValue_IntVal{IntVal: v}}, nil
	case schema.KindUint:
		v, err := strconv.ParseUint(body, 10, 64)
		if err != nil {
			return nil, err
		}
		return &gnmipb.TypedValue{Value: &gnmipb.TypedValue_UintVal{UintVal: v}}, nil
	case schema.KindBool:
		v, err := strconv.ParseBool(body)
		if err != nil {
			return nil, err
		}
		return &gnmipb.TypedValue{Value: &gnmipb.TypedValue_BoolVal{BoolVal: v}}, nil
	case schema.KindEmpty:
		return &gnmipb.TypedValue{Value: &gnmipb.TypedValue_BoolVal{BoolVal: true}}, nil
	default:
		return &gnmipb.TypedValue{Value: &gnmipb.TypedValue_StringVal{StringVal: body}}, nil
	}
}

// FromUpdate applies one gnmipb.Update to tree, creating any missing
// container/list-entry ancestors along the update's path and setting
// (or replacing) the leaf body at its end. It is the inverse of
// ToNotification's per-leaf walk: one call handles one Update, so a
// caller iterating a Notification's Update slice reconstructs the
// whole subtree update-by-update.
func FromUpdate(tree *node.Tree, root node.Index, u *gnmipb.Update, opts Options) (node.Index, error) {
	cur := root
	var curSchema *schema.Node
	if opts.Mode == ModeBIND {
		curSchema, _ = tree.Schema(root).(*schema.Node)
	}
	for _, elem := range u.GetPath().GetElem() {
		next := findOrCreateChild(tree, cur, curSchema, elem, opts)
		cur = next
		if opts.Mode == ModeBIND {
			curSchema, _ = tree.Schema(cur).(*schema.Node)
		}
	}
	tree.SetBody(cur, typedValueToString(u.GetVal()))
	return cur, nil
}

func findOrCreateChild(tree *node.Tree, parent node.Index, parentSchema *schema.Node, elem *gnmipb.PathElem, opts Options) node.Index {
	for _, c := range tree.CanonicalChildren(parent) {
		if tree.Name(c) != elem.Name {
			continue
		}
		if matchesKeys(tree, c, elem.Key) {
			return c
		}
	}
	var s *schema.Node
	if opts.Mode == ModeBIND && parentSchema != nil {
		s, _ = opts.Forest.FindChildSchema(parentSchema, elem.Name, "")
	}
	idx := tree.Create(kindFor(s), elem.Name, "", schemaArg(s))
	_ = tree.AppendChild(parent, idx)
	keys := make([]string, 0, len(elem.Key))
	for k := range elem.Key {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		kidx := tree.Create(node.KindLeaf, k, "", nil)
		tree.SetBody(kidx, elem.Key[k])
		_ = tree.AppendChild(idx, kidx)
	}
	return idx
}

func matchesKeys(tree *node.Tree, idx node.Index, keys map[string]string) bool {
	if len(keys) == 0 {
		return true
	}
	for _, c := range tree.CanonicalChildren(idx) {
		if v, ok := keys[tree.Name(c)]; ok && tree.Body(c) != v {
			return false
		}
	}
	return true
}

func typedValueToString(v *gnmipb.TypedValue) string {
	switch x := v.GetValue().(type) {
	case *gnmipb.TypedValue_StringVal:
		return x.StringVal
	case *gnmipb.TypedValue_IntVal:
		return strconv.FormatInt(x.IntVal, 10)
	case *gnmipb.TypedValue_UintVal:
		return strconv.FormatUint(x.UintVal, 10)
	case *gnmipb.TypedValue_BoolVal:
		return strconv.FormatBool(x.BoolVal)
	case *gnmipb.TypedValue_JsonIetfVal:
		return string(x.JsonIetfVal)
	default:
		return ""
	}
}
