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

package validate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nmscore/netconfd/node"
	"github.com/nmscore/netconfd/rpcerr"
	"github.com/nmscore/netconfd/schema"
)

const exModule = `
module ex {
  namespace "urn:ex";
  prefix ex;

  container top {
    list iface {
      key "name";
      leaf name {
        type string;
      }
    }
    leaf ref {
      type leafref {
        path "/ex:top/ex:iface/ex:name";
      }
    }
  }
}
`

func loadExForest(t *testing.T) *schema.Forest {
	t.Helper()
	dir := t.TempDir()
	file := filepath.Join(dir, "ex.yang")
	if err := os.WriteFile(file, []byte(exModule), 0o644); err != nil {
		t.Fatalf("writing test module: %v", err)
	}
	f := schema.NewForest()
	if err := f.LoadDir(nil, []string{file}); err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if err := f.Resolve(); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	return f
}

func schemaChild(t *testing.T, f *schema.Forest, parent *schema.Node, name string) *schema.Node {
	t.Helper()
	n, ok := f.FindChildSchema(parent, name, "")
	if !ok {
		t.Fatalf("no schema child %q under %v", name, parent)
	}
	return n
}

// buildTree constructs /ex:top/ex:iface[name=ifaceName]/ex:name and, if
// ref != "", a sibling /ex:top/ex:ref leaf with that body — the shape of
// spec.md §8 scenario 2 ("Leafref fails").
func buildTree(t *testing.T, f *schema.Forest, ifaceName, ref string) *node.Tree {
	t.Helper()
	mod, ok := f.FindModuleByName("ex")
	if !ok {
		t.Fatal("module ex not loaded")
	}
	top := schemaChild(t, f, mod, "top")
	iface := schemaChild(t, f, top, "iface")
	nameSchema := schemaChild(t, f, iface, "name")

	tree := node.New("top", "urn:ex")
	tree.SetSchema(tree.Root(), top)

	entry := tree.Create(node.KindListEntry, "iface", "urn:ex", iface)
	if err := tree.AppendChild(tree.Root(), entry); err != nil {
		t.Fatalf("AppendChild(iface): %v", err)
	}
	nameLeaf := tree.Create(node.KindLeaf, "name", "urn:ex", nameSchema)
	tree.SetBody(nameLeaf, ifaceName)
	if err := tree.AppendChild(entry, nameLeaf); err != nil {
		t.Fatalf("AppendChild(name): %v", err)
	}

	if ref != "" {
		refSchema := schemaChild(t, f, top, "ref")
		refLeaf := tree.Create(node.KindLeaf, "ref", "urn:ex", refSchema)
		tree.SetBody(refLeaf, ref)
		if err := tree.AppendChild(tree.Root(), refLeaf); err != nil {
			t.Fatalf("AppendChild(ref): %v", err)
		}
	}
	return tree
}

func TestLeafrefResolves(t *testing.T) {
	f := loadExForest(t)
	tree := buildTree(t, f, "eth0", "eth0")

	p := New(f)
	errs := p.Validate(tree, rpcerr.ContinueOnError)
	if len(errs) != 0 {
		t.Fatalf("expected no validation errors, got %v", errs)
	}
}

// TestLeafrefFails is spec.md §8 scenario 2: a leafref pointing at a
// name with no matching interface must fail with error-tag=data-missing.
func TestLeafrefFails(t *testing.T) {
	f := loadExForest(t)
	tree := buildTree(t, f, "eth0", "eth1")

	p := New(f)
	errs := p.Validate(tree, rpcerr.ContinueOnError)
	if len(errs) == 0 {
		t.Fatal("expected a data-missing leafref error")
	}
	found := false
	for _, e := range errs {
		if e.ErrTag == rpcerr.TagDataMissing {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected error-tag data-missing, got %v", errs)
	}
}

func TestStructuralDuplicateKey(t *testing.T) {
	f := loadExForest(t)
	mod, _ := f.FindModuleByName("ex")
	top := schemaChild(t, f, mod, "top")
	iface := schemaChild(t, f, top, "iface")
	nameSchema := schemaChild(t, f, iface, "name")

	tree := node.New("top", "urn:ex")
	tree.SetSchema(tree.Root(), top)
	for i := 0; i < 2; i++ {
		entry := tree.Create(node.KindListEntry, "iface", "urn:ex", iface)
		_ = tree.AppendChild(tree.Root(), entry)
		nameLeaf := tree.Create(node.KindLeaf, "name", "urn:ex", nameSchema)
		tree.SetBody(nameLeaf, "eth0") // same key both times
		_ = tree.AppendChild(entry, nameLeaf)
	}

	p := New(f)
	errs := p.structural(tree)
	if len(errs) == 0 {
		t.Fatal("expected a duplicate-key structural error")
	}
	if errs[0].ErrTag != rpcerr.TagDataExists {
		t.Fatalf("got tag %v, want data-exists", errs[0].ErrTag)
	}
}

func TestAnchorPattern(t *testing.T) {
	if got := anchorPattern("^abc$"); got != "^abc$" {
		t.Fatalf("anchorPattern should leave an already-anchored pattern alone, got %q", got)
	}
	if got := anchorPattern("abc"); got != "^(?:abc)$" {
		t.Fatalf("anchorPattern = %q, want ^(?:abc)$", got)
	}
}

func TestLocalName(t *testing.T) {
	if got := localName("ex:ethernet"); got != "ethernet" {
		t.Fatalf("localName = %q, want ethernet", got)
	}
	if got := localName("ethernet"); got != "ethernet" {
		t.Fatalf("localName = %q, want ethernet", got)
	}
}

const wmModule = `
module wm {
  namespace "urn:wm";
  prefix wm;

  leaf enable {
    type string;
  }

  container outer {
    when "../enable = 'true'";
    leaf inner {
      type string;
      must ". = 'fixed'";
    }
  }
}
`

func loadWMForest(t *testing.T) *schema.Forest {
	t.Helper()
	dir := t.TempDir()
	file := filepath.Join(dir, "wm.yang")
	if err := os.WriteFile(file, []byte(wmModule), 0o644); err != nil {
		t.Fatalf("writing test module: %v", err)
	}
	f := schema.NewForest()
	if err := f.LoadDir(nil, []string{file}); err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if err := f.Resolve(); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	return f
}

// buildWMTree constructs /wm:enable = enable, /wm:outer/wm:inner = "wrong"
// ("wrong" never satisfies outer/inner's "must ". = 'fixed'""), the shape
// needed to tell apart "when" excluding a subtree from "when" merely being
// false without also retracting its descendants' own failures.
func buildWMTree(t *testing.T, f *schema.Forest, enable string) *node.Tree {
	t.Helper()
	mod, ok := f.FindModuleByName("wm")
	if !ok {
		t.Fatal("module wm not loaded")
	}
	enableSchema := schemaChild(t, f, mod, "enable")
	outerSchema := schemaChild(t, f, mod, "outer")
	innerSchema := schemaChild(t, f, outerSchema, "inner")

	tree := node.New("top", "urn:wm")
	tree.SetSchema(tree.Root(), mod)

	enableLeaf := tree.Create(node.KindLeaf, "enable", "urn:wm", enableSchema)
	tree.SetBody(enableLeaf, enable)
	if err := tree.AppendChild(tree.Root(), enableLeaf); err != nil {
		t.Fatalf("AppendChild(enable): %v", err)
	}

	outer := tree.Create(node.KindContainer, "outer", "urn:wm", outerSchema)
	if err := tree.AppendChild(tree.Root(), outer); err != nil {
		t.Fatalf("AppendChild(outer): %v", err)
	}
	inner := tree.Create(node.KindLeaf, "inner", "urn:wm", innerSchema)
	tree.SetBody(inner, "wrong")
	if err := tree.AppendChild(outer, inner); err != nil {
		t.Fatalf("AppendChild(inner): %v", err)
	}
	return tree
}

// TestWhenFalseSuppressesDescendantMust: outer's "when" is false, so
// outer (and inner beneath it) must be treated as absent for the rest of
// stage 4 — inner's always-failing "must" must never surface an error.
func TestWhenFalseSuppressesDescendantMust(t *testing.T) {
	f := loadWMForest(t)
	tree := buildWMTree(t, f, "false")

	p := New(f)
	errs := p.whenMust(tree)
	if len(errs) != 0 {
		t.Fatalf("expected no errors once when=false absents the subtree, got %v", errs)
	}
}

// TestWhenTrueStillChecksDescendantMust is the control case: once "when"
// is true, inner's subtree is present again and its failing "must" must
// be reported.
func TestWhenTrueStillChecksDescendantMust(t *testing.T) {
	f := loadWMForest(t)
	tree := buildWMTree(t, f, "true")

	p := New(f)
	errs := p.whenMust(tree)
	if len(errs) == 0 {
		t.Fatal("expected inner's must failure to surface when outer is present")
	}
}

const devModule = `
module dev {
  namespace "urn:dev";
  prefix dev;

  container top {
    list iface {
      key "name";
      leaf name {
        type string;
      }
    }
    leaf ref {
      type leafref {
        path "/dev:top/dev:iface/dev:name";
      }
    }
    leaf ref-check {
      type string;
      must "deref(../ref) = 'eth0'";
    }
    leaf level {
      type enumeration {
        enum low;
        enum high;
      }
      must "enum-value(.) = 1";
    }
  }
}
`

func loadDevForest(t *testing.T) *schema.Forest {
	t.Helper()
	dir := t.TempDir()
	file := filepath.Join(dir, "dev.yang")
	if err := os.WriteFile(file, []byte(devModule), 0o644); err != nil {
		t.Fatalf("writing test module: %v", err)
	}
	f := schema.NewForest()
	if err := f.LoadDir(nil, []string{file}); err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if err := f.Resolve(); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	return f
}

// buildDevTree constructs /dev:top/dev:iface[name=eth0], a leafref
// ref=eth0 pointing at it, a ref-check leaf whose must uses deref(), and
// a level enum leaf set to levelValue.
func buildDevTree(t *testing.T, f *schema.Forest, levelValue string) *node.Tree {
	t.Helper()
	mod, ok := f.FindModuleByName("dev")
	if !ok {
		t.Fatal("module dev not loaded")
	}
	top := schemaChild(t, f, mod, "top")
	iface := schemaChild(t, f, top, "iface")
	nameSchema := schemaChild(t, f, iface, "name")
	refSchema := schemaChild(t, f, top, "ref")
	refCheckSchema := schemaChild(t, f, top, "ref-check")
	levelSchema := schemaChild(t, f, top, "level")

	tree := node.New("top", "urn:dev")
	tree.SetSchema(tree.Root(), top)

	entry := tree.Create(node.KindListEntry, "iface", "urn:dev", iface)
	if err := tree.AppendChild(tree.Root(), entry); err != nil {
		t.Fatalf("AppendChild(iface): %v", err)
	}
	nameLeaf := tree.Create(node.KindLeaf, "name", "urn:dev", nameSchema)
	tree.SetBody(nameLeaf, "eth0")
	if err := tree.AppendChild(entry, nameLeaf); err != nil {
		t.Fatalf("AppendChild(name): %v", err)
	}

	refLeaf := tree.Create(node.KindLeaf, "ref", "urn:dev", refSchema)
	tree.SetBody(refLeaf, "eth0")
	if err := tree.AppendChild(tree.Root(), refLeaf); err != nil {
		t.Fatalf("AppendChild(ref): %v", err)
	}

	refCheckLeaf := tree.Create(node.KindLeaf, "ref-check", "urn:dev", refCheckSchema)
	tree.SetBody(refCheckLeaf, "unused")
	if err := tree.AppendChild(tree.Root(), refCheckLeaf); err != nil {
		t.Fatalf("AppendChild(ref-check): %v", err)
	}

	levelLeaf := tree.Create(node.KindLeaf, "level", "urn:dev", levelSchema)
	tree.SetBody(levelLeaf, levelValue)
	if err := tree.AppendChild(tree.Root(), levelLeaf); err != nil {
		t.Fatalf("AppendChild(level): %v", err)
	}
	return tree
}

// TestDerefMustResolves exercises deref() through the real pipeline
// (schema.Forest as xpath.SchemaResolver): ref-check's "must" only
// passes if deref(../ref) actually follows the leafref to iface eth0's
// name leaf.
func TestDerefMustResolves(t *testing.T) {
	f := loadDevForest(t)
	tree := buildDevTree(t, f, "high")

	p := New(f)
	errs := p.whenMust(tree)
	if len(errs) != 0 {
		t.Fatalf("expected deref()'s must to pass, got %v", errs)
	}
}

// TestEnumValueMustFails exercises enum-value() through the real
// pipeline: level's "must" requires enum-value(.) = 1 ("high"), so
// setting level to "low" (assigned 0 by declaration order) must fail.
func TestEnumValueMustFails(t *testing.T) {
	f := loadDevForest(t)
	tree := buildDevTree(t, f, "low")

	p := New(f)
	errs := p.whenMust(tree)
	if len(errs) == 0 {
		t.Fatal("expected enum-value()'s must to fail for level=low")
	}
}

// TestEnumValueMustPasses is the control case for TestEnumValueMustFails.
func TestEnumValueMustPasses(t *testing.T) {
	f := loadDevForest(t)
	tree := buildDevTree(t, f, "high")

	p := New(f)
	errs := p.whenMust(tree)
	if len(errs) != 0 {
		t.Fatalf("expected enum-value()'s must to pass for level=high, got %v", errs)
	}
}
