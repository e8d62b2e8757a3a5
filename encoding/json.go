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

package encoding

import (
	"encoding/json"
	"io"
	"sort"
	"strings"

	"github.com/nmscore/netconfd/node"
	"github.com/nmscore/netconfd/rpcerr"
	"github.com/nmscore/netconfd/schema"
)

// JSONReader decodes RFC 7951 ("JSON Encoding of Data Modeled with
// YANG") instance data into a node.Tree. Grounded on
// ytypes/util_json.go's value-mapping rules (quoted wide integers,
// module:identity identityref prefixing), generalized from unmarshaling
// into generated Go structs to building arena-tree nodes directly.
type JSONReader struct {
	opts Options
}

// NewJSONReader returns a reader configured by opts.
func NewJSONReader(opts Options) *JSONReader { return &JSONReader{opts: opts} }

// Decode reads the single top-level member of the JSON document in r
// and returns the root index of the tree it builds in tree.
func (jr *JSONReader) Decode(r io.Reader, tree *node.Tree) (node.Index, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var raw map[string]json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return node.NoIndex, rpcerr.New(rpcerr.TypeProtocol, rpcerr.TagMalformedMessage, err.Error())
	}
	if len(raw) != 1 {
		return node.NoIndex, rpcerr.New(rpcerr.TypeProtocol, rpcerr.TagMalformedMessage, "expected exactly one top-level JSON member")
	}
	for k, v := range raw {
		local, modName := splitJSONName(k)
		var ns string
		var s *schema.Node
		if jr.opts.Mode == ModeBIND {
			mod, ok := jr.opts.Forest.FindModuleByName(modName)
			if !ok {
				return node.NoIndex, rpcerr.New(rpcerr.TypeApplication, rpcerr.TagUnknownNamespace, "no loaded module named "+modName)
			}
			ns = mod.Namespace()
			child, ok := jr.opts.Forest.FindChildSchema(mod, local, ns)
			if !ok {
				return node.NoIndex, rpcerr.New(rpcerr.TypeApplication, rpcerr.TagUnknownElement, "unknown top-level element "+local)
			}
			s = child
		}
		idxs, err := jr.decodeChild(tree, local, ns, s, v)
		if err != nil {
			return node.NoIndex, err
		}
		if len(idxs) != 1 {
			return node.NoIndex, rpcerr.New(rpcerr.TypeProtocol, rpcerr.TagMalformedMessage, "top-level element must decode to exactly one node")
		}
		return idxs[0], nil
	}
	panic("unreachable")
}

// splitJSONName splits a "module:name" RFC 7951 member name into its
// local name and module prefix; an unprefixed name returns ("", name)
// reversed to (name, "").
func splitJSONName(key string) (local, module string) {
	if i := strings.IndexByte(key, ':'); i >= 0 {
		return key[i+1:], key[:i]
	}
	return key, ""
}

// decodeChild decodes one JSON member's value into one or more sibling
// object-tree nodes (more than one for a list or leaf-list, per RFC
// 7951 §5.3/§5.4's "lists are arrays" rule), all named name.
func (jr *JSONReader) decodeChild(tree *node.Tree, name, ns string, s *schema.Node, raw json.RawMessage) ([]node.Index, error) {
	var peek interface{}
	if err := json.Unmarshal(raw, &peek); err != nil {
		return nil, rpcerr.New(rpcerr.TypeProtocol, rpcerr.TagMalformedMessage, err.Error())
	}

	switch peek.(type) {
	case []interface{}:
		var elems []json.RawMessage
		if err := json.Unmarshal(raw, &elems); err != nil {
			return nil, rpcerr.New(rpcerr.TypeProtocol, rpcerr.TagMalformedMessage, err.Error())
		}
		out := make([]node.Index, 0, len(elems))
		for _, e := range elems {
			idx, err := jr.decodeOne(tree, name, ns, s, e)
			if err != nil {
				return nil, err
			}
			out = append(out, idx)
		}
		return out, nil
	default:
		idx, err := jr.decodeOne(tree, name, ns, s, raw)
		if err != nil {
			return nil, err
		}
		return []node.Index{idx}, nil
	}
}

// decodeOne decodes a single JSON value (never a bare JSON array — that
// case is handled by decodeChild) into one object-tree node.
func (jr *JSONReader) decodeOne(tree *node.Tree, name, ns string, s *schema.Node, raw json.RawMessage) (node.Index, error) {
	var peek interface{}
	if err := json.Unmarshal(raw, &peek); err != nil {
		return node.NoIndex, rpcerr.New(rpcerr.TypeProtocol, rpcerr.TagMalformedMessage, err.Error())
	}

	switch v := peek.(type) {
	case map[string]interface{}:
		idx := tree.Create(kindFor(s), name, nsArg(s, ns), schemaArg(s))
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			return node.NoIndex, rpcerr.New(rpcerr.TypeProtocol, rpcerr.TagMalformedMessage, err.Error())
		}
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			local, modName := splitJSONName(k)
			childNS := ns
			var cs *schema.Node
			if jr.opts.Mode == ModeBIND && s != nil {
				if modName != "" && modName != s.ModuleName() {
					if mod, ok := jr.opts.Forest.FindModuleByName(modName); ok {
						childNS = mod.Namespace()
					}
				}
				child, ok := jr.opts.Forest.FindChildSchema(s, local, "")
				if !ok {
					return node.NoIndex, rpcerr.New(rpcerr.TypeApplication, rpcerr.TagUnknownElement, "unknown element "+local+" under "+s.SchemaPath())
				}
				cs = child
			}
			kids, err := jr.decodeChild(tree, local, childNS, cs, fields[k])
			if err != nil {
				return node.NoIndex, err
			}
			for _, kid := range kids {
				if err := tree.AppendChild(idx, kid); err != nil {
					return node.NoIndex, err
				}
			}
		}
		return idx, nil
	default:
		idx := tree.Create(scalarKindFor(s), name, nsArg(s, ns), schemaArg(s))
		tree.SetBody(idx, jsonScalarToBody(v))
		return idx, nil
	}
}

// scalarKindFor is kindFor's counterpart for a JSON member whose value is
// a scalar (string/number/bool/null), as opposed to an object. kindFor
// alone cannot be reused here: with s == nil (ModeNONE) it always
// answers KindContainer, which would make every schemaless scalar leaf
// indistinguishable from an empty container at encode time.
func scalarKindFor(s *schema.Node) node.Kind {
	if s != nil && s.IsLeafList() {
		return node.KindLeafListEntry
	}
	return node.KindLeaf
}

func nsArg(s *schema.Node, ns string) string {
	if s == nil {
		return ns
	}
	// The namespace is always set explicitly, inherited or not; the
	// writer re-derives xmlns-equivalent behavior from
	// EffectiveNamespace either way, so this is safe — JSON has no
	// namespace-inheritance ambiguity since every member name is
	// (optionally) module-prefixed on its own.
	return ns
}

func jsonScalarToBody(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case bool:
		if x {
			return "true"
		}
		return "false"
	case json.Number:
		return x.String()
	case string:
		return x
	default:
		return ""
	}
}

// JSONWriter encodes a node.Tree subtree as RFC 7951 JSON.
type JSONWriter struct {
	opts Options
}

// NewJSONWriter returns a writer configured by opts.
func NewJSONWriter(opts Options) *JSONWriter { return &JSONWriter{opts: opts} }

// Encode writes the subtree rooted at idx to w as a single-member JSON
// object, the member name being idx's module-qualified name.
func (jw *JSONWriter) Encode(w io.Writer, tree *node.Tree, idx node.Index) error {
	var sb strings.Builder
	sb.WriteByte('{')
	jw.writeMember(&sb, tree, idx, "")
	sb.WriteByte('}')
	if jw.opts.Pretty {
		var out strings.Builder
		if err := json.Indent(&out, []byte(sb.String()), "", "  "); err == nil {
			_, err := w.Write([]byte(out.String()))
			return err
		}
	}
	_, err := w.Write([]byte(sb.String()))
	return err
}

func (jw *JSONWriter) writeMember(sb *strings.Builder, tree *node.Tree, idx node.Index, parentModule string) {
	s, _ := tree.Schema(idx).(*schema.Node)
	module := parentModule
	if s != nil {
		module = s.ModuleName()
	}
	name := tree.Name(idx)
	if module != "" && module != parentModule {
		sb.WriteString(jsonString(module + ":" + name))
	} else {
		sb.WriteString(jsonString(name))
	}
	sb.WriteByte(':')
	jw.writeValue(sb, tree, idx, module, s)
}

func (jw *JSONWriter) writeValue(sb *strings.Builder, tree *node.Tree, idx node.Index, module string, s *schema.Node) {
	if k := tree.Kind(idx); k == node.KindLeaf || k == node.KindLeafListEntry {
		jw.writeLeafValue(sb, tree, idx, s)
		return
	}
	children := tree.CanonicalChildren(idx)
	if len(children) == 0 {
		sb.WriteString("{}")
		return
	}
	sb.WriteByte('{')
	for i, c := range children {
		if i > 0 {
			sb.WriteByte(',')
		}
		jw.writeMember(sb, tree, c, module)
	}
	sb.WriteByte('}')
}

func (jw *JSONWriter) writeLeafValue(sb *strings.Builder, tree *node.Tree, idx node.Index, s *schema.Node) {
	body := tree.Body(idx)
	if s == nil || s.Entry == nil || s.Entry.Type == nil {
		sb.WriteString(jsonString(body))
		return
	}
	prim, err := schema.ResolveType(s.Entry)
	if err != nil {
		sb.WriteString(jsonString(body))
		return
	}
	sb.WriteString(formatLeafJSON(body, prim, s.ModuleName()))
}

// formatLeafJSON renders one leaf's string body as an RFC 7951 JSON
// scalar per its resolved primitive type.
func formatLeafJSON(body string, prim *schema.Primitive, containingModule string) string {
	switch prim.Kind {
	case schema.KindInt, schema.KindUint:
		if prim.Width >= 64 {
			return jsonString(body)
		}
		return body
	case schema.KindDecimal64:
		return jsonString(body)
	case schema.KindBool:
		return body
	case schema.KindEmpty:
		return "[null]"
	case schema.KindIdentityref:
		return jsonString(qualifyIdentity(body, containingModule))
	case schema.KindUnion:
		for _, member := range prim.Union {
			return formatLeafJSON(body, member, containingModule)
		}
		return jsonString(body)
	default:
		return jsonString(body)
	}
}

// qualifyIdentity applies spec.md §4.D's identityref rule: "module:
// identity" when the identity's own module differs from the containing
// module, else bare "identity". The stored body already carries a
// "module:" prefix when decodeOne saw one on the wire; that prefix (not
// the identity's schema-declared base module) is what's compared here.
func qualifyIdentity(body, containingModule string) string {
	if i := strings.IndexByte(body, ':'); i >= 0 {
		mod, name := body[:i], body[i+1:]
		if mod == containingModule {
			return name
		}
		return mod + ":" + name
	}
	return body
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
