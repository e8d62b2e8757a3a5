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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nmscore/netconfd/node"
)

func TestXMLRoundTrip(t *testing.T) {
	src := `<top xmlns="urn:example:test"><name>eth0</name><mtu>1500</mtu><nested><leaf>x</leaf></nested></top>`

	tree := node.New("doc", "")
	reader := NewXMLReader(Options{Mode: ModeNONE})
	root, err := reader.Decode(strings.NewReader(src), tree)
	assert.NoError(t, err)
	assert.Equal(t, "top", tree.Name(root))
	assert.Equal(t, "urn:example:test", tree.Namespace(root))

	var buf bytes.Buffer
	writer := NewXMLWriter(Options{})
	assert.NoError(t, writer.Encode(&buf, tree, root))

	tree2 := node.New("doc", "")
	root2, err := reader.Decode(strings.NewReader(buf.String()), tree2)
	assert.NoError(t, err)

	var buf2 bytes.Buffer
	assert.NoError(t, writer.Encode(&buf2, tree2, root2))
	assert.Equal(t, buf.String(), buf2.String())
}

func TestXMLUnbalancedRejected(t *testing.T) {
	tree := node.New("doc", "")
	reader := NewXMLReader(Options{Mode: ModeNONE})
	_, err := reader.Decode(strings.NewReader(`<a><b></a></b>`), tree)
	assert.Error(t, err)
}

func TestJSONRoundTrip(t *testing.T) {
	src := `{"example:top":{"name":"eth0","enabled":true,"count":42}}`

	tree := node.New("doc", "")
	reader := NewJSONReader(Options{Mode: ModeNONE})
	root, err := reader.Decode(strings.NewReader(src), tree)
	assert.NoError(t, err)
	assert.Equal(t, "top", tree.Name(root))

	var buf bytes.Buffer
	writer := NewJSONWriter(Options{})
	assert.NoError(t, writer.Encode(&buf, tree, root))

	tree2 := node.New("doc", "")
	root2, err := reader.Decode(strings.NewReader(buf.String()), tree2)
	assert.NoError(t, err)

	var buf2 bytes.Buffer
	assert.NoError(t, writer.Encode(&buf2, tree2, root2))
	assert.Equal(t, buf.String(), buf2.String())
}

func TestJSONArrayDecodesToSiblings(t *testing.T) {
	src := `{"top":{"iface":[{"name":"a"},{"name":"b"}]}}`
	tree := node.New("doc", "")
	reader := NewJSONReader(Options{Mode: ModeNONE})
	root, err := reader.Decode(strings.NewReader(src), tree)
	assert.NoError(t, err)
	ifaces := 0
	for _, c := range tree.CanonicalChildren(root) {
		if tree.Name(c) == "iface" {
			ifaces++
		}
	}
	assert.Equal(t, 2, ifaces)
}
