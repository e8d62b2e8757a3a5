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
	"bytes"
	"encoding/xml"
	"io"
	"strings"

	"github.com/nmscore/netconfd/node"
	"github.com/nmscore/netconfd/rpcerr"
	"github.com/nmscore/netconfd/schema"
)

// XMLReader decodes RFC 6241 XML instance data into a node.Tree. Its
// Begin/StartElement/CharData/EndElement callback shape is modeled on
// andaru-opr8/datastore.Decoder, rebound here to stdlib encoding/xml's
// token stream instead of that package's own (unfetchable) tokenizer.
type XMLReader struct {
	opts Options
}

// NewXMLReader returns a reader configured by opts.
func NewXMLReader(opts Options) *XMLReader { return &XMLReader{opts: opts} }

// frame tracks one open element while decoding. Namespace resolution
// itself is delegated to encoding/xml.Decoder (t.Name.Space is already
// resolved against in-scope xmlns declarations); a frame only needs to
// remember the default namespace its children inherit absent their own.
type frame struct {
	idx       node.Index
	schema    *schema.Node
	defaultNS string
}

// Decode reads one top-level element from r into tree's arena and
// returns the index of the node created for that element. The node is
// left unattached and tree's root is not changed; callers attach it or
// make it the root with SetRoot.
func (xr *XMLReader) Decode(r io.Reader, tree *node.Tree) (node.Index, error) {
	dec := xml.NewDecoder(r)
	var stack []*frame
	var rootIdx node.Index = node.NoIndex

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return node.NoIndex, rpcerr.New(rpcerr.TypeProtocol, rpcerr.TagMalformedMessage, err.Error())
		}
		switch t := tok.(type) {
		case xml.StartElement:
			var parent *frame
			if len(stack) > 0 {
				parent = stack[len(stack)-1]
			}
			ns := resolveNamespace(t, parent)
			var parentIdx node.Index = node.NoIndex
			var parentSchema *schema.Node
			if parent != nil {
				parentIdx, parentSchema = parent.idx, parent.schema
			}
			s, serr := schemaOf(xr.opts, parentSchema, t.Name.Local, ns)
			if serr != nil {
				return node.NoIndex, serr
			}
			idx := tree.Create(kindFor(s), t.Name.Local, explicitNS(t, parent, ns), schemaArg(s))
			for _, a := range t.Attr {
				if a.Name.Space == "xmlns" || a.Name.Local == "xmlns" {
					continue
				}
				tree.SetAttr(idx, a.Name.Local, a.Value)
			}
			if parent == nil {
				rootIdx = idx
			} else if err := tree.AppendChild(parentIdx, idx); err != nil {
				return node.NoIndex, err
			}
			stack = append(stack, &frame{idx: idx, schema: s, defaultNS: ns})
		case xml.CharData:
			if len(stack) > 0 {
				top := stack[len(stack)-1]
				tree.SetBody(top.idx, tree.Body(top.idx)+string(t))
			}
		case xml.EndElement:
			if len(stack) == 0 {
				return node.NoIndex, rpcerr.New(rpcerr.TypeProtocol, rpcerr.TagMalformedMessage, "unbalanced end element "+t.Name.Local)
			}
			top := stack[len(stack)-1]
			tree.SetBody(top.idx, strings.TrimSpace(tree.Body(top.idx)))
			if top.schema == nil && len(tree.Children(top.idx)) == 0 {
				tree.SetKind(top.idx, node.KindLeaf)
			}
			stack = stack[:len(stack)-1]
		}
	}
	if rootIdx == node.NoIndex {
		return node.NoIndex, rpcerr.New(rpcerr.TypeProtocol, rpcerr.TagMalformedMessage, "empty document")
	}
	return rootIdx, nil
}

func schemaArg(s *schema.Node) node.Schema {
	if s == nil {
		return nil
	}
	return s
}

// resolveNamespace computes the element's effective namespace per XML
// namespace inheritance, consulting Go's own Name.Space (already
// resolved by encoding/xml against in-scope xmlns declarations) and
// falling back to the parent's default namespace.
func resolveNamespace(t xml.StartElement, parent *frame) string {
	if t.Name.Space != "" {
		return t.Name.Space
	}
	if parent != nil {
		return parent.defaultNS
	}
	return ""
}

// explicitNS returns "" (meaning "inherit from parent", per node's
// invariant (a)) when the resolved namespace matches the parent's, and
// the namespace otherwise, so the writer only re-emits xmlns when it
// actually changes.
func explicitNS(t xml.StartElement, parent *frame, ns string) string {
	if parent != nil && parent.defaultNS == ns {
		return ""
	}
	return ns
}

// XMLWriter encodes a node.Tree subtree as RFC 6241 XML.
type XMLWriter struct {
	opts Options
}

// NewXMLWriter returns a writer configured by opts.
func NewXMLWriter(opts Options) *XMLWriter { return &XMLWriter{opts: opts} }

// Encode writes the subtree rooted at idx to w.
func (xw *XMLWriter) Encode(w io.Writer, tree *node.Tree, idx node.Index) error {
	var buf bytes.Buffer
	xw.encodeNode(&buf, tree, idx, "", 0)
	_, err := w.Write(buf.Bytes())
	return err
}

func (xw *XMLWriter) encodeNode(buf *bytes.Buffer, tree *node.Tree, idx node.Index, parentNS string, depth int) {
	indent := ""
	nl := ""
	if xw.opts.Pretty {
		indent = strings.Repeat("  ", depth)
		nl = "\n"
	}
	name := tree.Name(idx)
	ns := tree.Namespace(idx)
	buf.WriteString(indent)
	buf.WriteByte('<')
	buf.WriteString(name)
	if ns != "" && ns != parentNS {
		buf.WriteString(` xmlns="`)
		buf.WriteString(xmlEscape(ns))
		buf.WriteByte('"')
	}

	children := tree.CanonicalChildren(idx)
	body := tree.Body(idx)
	if len(children) == 0 && body == "" {
		buf.WriteString("/>")
		buf.WriteString(nl)
		return
	}
	buf.WriteByte('>')
	effNS := ns
	if effNS == "" {
		effNS = parentNS
	}
	if len(children) == 0 {
		buf.WriteString(xmlEscape(body))
	} else {
		buf.WriteString(nl)
		for _, c := range children {
			xw.encodeNode(buf, tree, c, effNS, depth+1)
		}
		buf.WriteString(indent)
	}
	buf.WriteString("</")
	buf.WriteString(name)
	buf.WriteByte('>')
	buf.WriteString(nl)
}

func xmlEscape(s string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}
