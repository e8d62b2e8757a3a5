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
	"os"
	"path/filepath"
	"testing"
)

const baseModule = `
module base {
  namespace "urn:base";
  prefix bs;

  identity greeting;
}
`

const importingModule = `
module importing {
  namespace "urn:importing";
  prefix im;

  import base {
    prefix b;
  }

  container top {
    leaf ref {
      type string;
      must "b:greeting";
    }
  }
}
`

func loadImportForest(t *testing.T) *Forest {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "base.yang"), []byte(baseModule), 0o644); err != nil {
		t.Fatalf("writing base module: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "importing.yang"), []byte(importingModule), 0o644); err != nil {
		t.Fatalf("writing importing module: %v", err)
	}
	f := NewForest()
	if err := f.LoadDir([]string{dir}, []string{filepath.Join(dir, "importing.yang"), filepath.Join(dir, "base.yang")}); err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	return f
}

func TestFindModuleByPrefix(t *testing.T) {
	f := loadImportForest(t)
	n, ok := f.FindModuleByPrefix("im")
	if !ok {
		t.Fatal("expected importing module's own prefix im to resolve")
	}
	if n.Namespace() != "urn:importing" {
		t.Fatalf("FindModuleByPrefix(im) namespace = %q, want urn:importing", n.Namespace())
	}
	if _, ok := f.FindModuleByPrefix("b"); ok {
		t.Fatal("import alias b is local to the importing module, not forest-wide")
	}
}

func TestModulePrefixMapResolvesImportedPrefix(t *testing.T) {
	f := loadImportForest(t)
	mod, ok := f.FindModuleByName("importing")
	if !ok {
		t.Fatal("module importing not loaded")
	}
	top, ok := f.FindChildSchema(mod, "top", "")
	if !ok {
		t.Fatal("container top not found")
	}
	leaf, ok := f.FindChildSchema(top, "ref", "")
	if !ok {
		t.Fatal("leaf ref not found")
	}
	nsmap := leaf.ModulePrefixMap(f)
	if nsmap["im"] != "urn:importing" {
		t.Fatalf("nsmap[im] = %q, want urn:importing", nsmap["im"])
	}
	if nsmap["b"] != "urn:base" {
		t.Fatalf("nsmap[b] = %q, want urn:base (import alias left unresolved)", nsmap["b"])
	}
}

func TestSplitKey(t *testing.T) {
	got := splitKey("name  addr ")
	want := []string{"name", "addr"}
	if len(got) != len(want) {
		t.Fatalf("splitKey = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("splitKey = %v, want %v", got, want)
		}
	}
}

func TestSortStrings(t *testing.T) {
	s := []string{"c", "a", "b"}
	sortStrings(s)
	want := []string{"a", "b", "c"}
	for i := range want {
		if s[i] != want[i] {
			t.Fatalf("sortStrings = %v, want %v", s, want)
		}
	}
}

func TestFeatureToggle(t *testing.T) {
	f := NewForest()
	if f.FeatureEnabled("extra-stats") {
		t.Fatal("unregistered feature should read disabled")
	}
	f.SetFeature("extra-stats", true)
	if !f.FeatureEnabled("extra-stats") {
		t.Fatal("expected extra-stats enabled after SetFeature(true)")
	}
	f.SetFeature("extra-stats", false)
	if f.FeatureEnabled("extra-stats") {
		t.Fatal("expected extra-stats disabled after SetFeature(false)")
	}
}

func TestIdentityDerivedFrom(t *testing.T) {
	f := NewForest()
	eth := &Node{path: "/ex:ethernet", featureOn: true}
	fast := &Node{path: "/ex:fast-ethernet", featureOn: true}
	f.identities[""] = []*Node{eth}
	f.identities["ethernet"] = []*Node{fast}

	// direct derivation: fast-ethernet's base is ethernet, so the
	// identity named "fast-ethernet" is recorded under base "ethernet".
	if !f.IdentityDerivedFrom("ethernet", "ethernet") {
		t.Fatal("identity is always derived from itself")
	}

	// Identity nodes carry no *yang.Entry (they aren't data nodes), so
	// IdentityDerivedFrom must read the derived identity's name back out
	// of its indexed path rather than dereferencing a nil Entry.
	if !f.IdentityDerivedFrom("fast-ethernet", "ethernet") {
		t.Fatal("fast-ethernet should be derived from ethernet")
	}
	if f.IdentityDerivedFrom("ethernet", "fast-ethernet") {
		t.Fatal("ethernet should not be derived from fast-ethernet")
	}
}

func TestPathIndexPrefixSearch(t *testing.T) {
	idx := newPathIndex()
	a := &Node{path: "/ex:top/ex:a"}
	b := &Node{path: "/ex:top/ex:b"}
	idx.put(a.path, a)
	idx.put(b.path, b)

	found := idx.PrefixSearch("/ex:top/")
	if len(found) != 2 {
		t.Fatalf("PrefixSearch returned %d nodes, want 2", len(found))
	}
}
