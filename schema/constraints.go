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

package schema

import (
	"reflect"

	"github.com/openconfig/goyang/pkg/yang"
)

// Musts returns the raw XPath text of every "must" statement carried
// directly by n's statement node, in declaration order. Package validate
// evaluates each bottom-up per spec.md §4.F stage 4.
//
// goyang gives every statement kind (container, list, leaf, leaf-list,
// choice, case, anydata, augment, uses, grouping, …) its own concrete Go
// type under yang.Node, with no shared "has musts" interface; rather
// than type-switch over a dozen statement kinds, Musts reads the "Must"
// field directly off whichever concrete type n.Entry.Node is.
func (n *Node) Musts() []string {
	if n.Entry == nil || n.Entry.Node == nil {
		return nil
	}
	f := reflect.ValueOf(n.Entry.Node).Elem().FieldByName("Must")
	if !f.IsValid() {
		return nil
	}
	var out []string
	for i := 0; i < f.Len(); i++ {
		m := f.Index(i)
		if m.IsNil() {
			continue
		}
		nameField := m.Elem().FieldByName("Name")
		if nameField.IsValid() && nameField.Kind() == reflect.String {
			out = append(out, nameField.String())
		}
	}
	return out
}

// When returns the raw XPath text of n's "when" statement, or "" if n
// carries none. See Musts for why this goes through reflection rather
// than a type switch.
func (n *Node) When() string {
	if n.Entry == nil || n.Entry.Node == nil {
		return ""
	}
	f := reflect.ValueOf(n.Entry.Node).Elem().FieldByName("When")
	if !f.IsValid() || f.IsNil() {
		return ""
	}
	nameField := f.Elem().FieldByName("Name")
	if nameField.IsValid() && nameField.Kind() == reflect.String {
		return nameField.String()
	}
	return ""
}

// ModulePrefixMap returns the prefix -> namespace-URI bindings visible
// at n's declaring module, for use as an xpath.EvalContext.NSMap when
// evaluating that module's when/must expressions: the module's own
// prefix plus every "import ... { prefix ... }" binding it declares,
// resolved against f so a when/must like "other:foo = 'bar'" finds
// other's namespace and not just the declaring module's own (spec.md
// §4.B "cross-cutting"). f may be nil, in which case only the
// declaring module's own prefix is returned.
func (n *Node) ModulePrefixMap(f *Forest) map[string]string {
	out := map[string]string{}
	if n.Entry == nil {
		return out
	}
	e := n.Entry
	for e.Parent != nil {
		e = e.Parent
	}
	ns := e.Namespace()
	if ns == nil {
		return out
	}
	if prefix := modulePrefix(e); prefix != "" {
		out[prefix] = ns.Name
	}
	if f == nil || e.Node == nil {
		return out
	}
	imports := reflect.ValueOf(e.Node).Elem().FieldByName("Import")
	if !imports.IsValid() {
		return out
	}
	for i := 0; i < imports.Len(); i++ {
		imp := imports.Index(i)
		if imp.IsNil() {
			continue
		}
		imp = imp.Elem()
		nameField := imp.FieldByName("Name")
		if !nameField.IsValid() || nameField.Kind() != reflect.String {
			continue
		}
		imported, ok := f.FindModuleByName(nameField.String())
		if !ok {
			continue
		}
		prefixField := imp.FieldByName("Prefix")
		if !prefixField.IsValid() || prefixField.IsNil() {
			continue
		}
		prefixName := prefixField.Elem().FieldByName("Name")
		if !prefixName.IsValid() || prefixName.Kind() != reflect.String {
			continue
		}
		if importedNS := imported.Namespace(); importedNS != "" {
			out[prefixName.String()] = importedNS
		}
	}
	return out
}

// modulePrefix returns the "prefix" statement bound directly on
// module-level entry e, via reflection since e.Node's concrete type
// varies with statement kind (see Musts for why).
func modulePrefix(e *yang.Entry) string {
	pv := reflect.ValueOf(e.Node).Elem().FieldByName("Prefix")
	if !pv.IsValid() || pv.IsNil() {
		return ""
	}
	name := pv.Elem().FieldByName("Name")
	if !name.IsValid() {
		return ""
	}
	return name.String()
}
