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

// Package encoding implements the two wire formats of spec.md §4.D: RFC
// 6241 XML and RFC 7951 JSON, each with a reader producing a node.Tree
// and a writer producing wire bytes from one. Both readers support two
// binding modes (spec.md §4.D "Reader contract"): ModeBIND attaches
// schema.Node back-references as nodes are created (rejecting unknown
// elements immediately), and ModeNONE produces a schemaless tree whose
// binding is deferred to a later pass.
package encoding

import (
	"github.com/nmscore/netconfd/node"
	"github.com/nmscore/netconfd/rpcerr"
	"github.com/nmscore/netconfd/schema"
)

// Mode selects whether a reader binds schema as it parses.
type Mode uint8

// Binding modes.
const (
	ModeNONE Mode = iota
	ModeBIND
)

// Options configures a reader or writer.
type Options struct {
	Mode   Mode
	Forest *schema.Forest // required when Mode == ModeBIND
	Pretty bool           // writer only; default off for wire, on for files
}

// schemaOf resolves the schema.Node that should back a new child named
// (name, ns) of parent, or nil in ModeNONE. It returns a structured
// unknown-element error when binding is requested but no such child
// exists in the schema.
func schemaOf(opts Options, parentSchema *schema.Node, name, ns string) (*schema.Node, error) {
	if opts.Mode != ModeBIND {
		return nil, nil
	}
	if parentSchema == nil {
		// Top level: the element must itself name a loaded module's root
		// data node (its namespace identifies the module).
		mod, ok := opts.Forest.FindModuleByNamespace(ns)
		if !ok {
			return nil, rpcerr.New(rpcerr.TypeApplication, rpcerr.TagUnknownNamespace, "no loaded module claims namespace "+ns)
		}
		child, ok := opts.Forest.FindChildSchema(mod, name, ns)
		if !ok {
			return nil, rpcerr.New(rpcerr.TypeApplication, rpcerr.TagUnknownElement, "unknown top-level element "+name)
		}
		return child, nil
	}
	child, ok := opts.Forest.FindChildSchema(parentSchema, name, ns)
	if !ok {
		return nil, rpcerr.New(rpcerr.TypeApplication, rpcerr.TagUnknownElement, "unknown element "+name+" under "+parentSchema.SchemaPath())
	}
	return child, nil
}

// kindFor derives the object-tree Kind a new child node should take,
// from its (possibly nil) schema.
func kindFor(s *schema.Node) node.Kind {
	switch {
	case s == nil:
		return node.KindContainer
	case s.IsList():
		return node.KindListEntry
	case s.IsLeafList():
		return node.KindLeafListEntry
	case s.IsLeaf():
		return node.KindLeaf
	default:
		return node.KindContainer
	}
}
