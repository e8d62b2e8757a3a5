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
	"testing"

	"github.com/nmscore/netconfd/node"
	"github.com/nmscore/netconfd/rpcerr"
)

func newConnectedStore(t *testing.T) *Store {
	t.Helper()
	s := New(t.TempDir(), true, nil)
	if err := s.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = s.Disconnect() })
	return s
}

func TestConnectCreatesEmptyDatastores(t *testing.T) {
	s := newConnectedStore(t)
	for _, name := range []Name{Running, Candidate, Startup, Tmp} {
		if !s.Exists(name) {
			t.Fatalf("expected datastore %s to exist after Connect", name)
		}
		snap, err := s.Snapshot(name)
		if err != nil {
			t.Fatalf("Snapshot(%s): %v", name, err)
		}
		defer snap.Release()
		if len(snap.Tree.Children(snap.Tree.Root())) != 0 {
			t.Fatalf("expected %s to start empty", name)
		}
	}
}

// TestLockContention is spec.md §8 scenario 5: a second session's lock
// attempt on an already-locked datastore fails with lock-denied.
func TestLockContention(t *testing.T) {
	s := newConnectedStore(t)
	if err := s.Lock(Candidate, "session-1"); err != nil {
		t.Fatalf("session-1 Lock: %v", err)
	}
	err := s.Lock(Candidate, "session-2")
	if err == nil {
		t.Fatal("expected session-2's Lock to fail")
	}
	rerr, ok := err.(*rpcerr.Error)
	if !ok || rerr.ErrTag != rpcerr.TagLockDenied {
		t.Fatalf("got %v, want lock-denied", err)
	}

	// The original holder re-locking is idempotent.
	if err := s.Lock(Candidate, "session-1"); err != nil {
		t.Fatalf("re-Lock by original holder: %v", err)
	}
	if err := s.Unlock(Candidate, "session-1"); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if err := s.Lock(Candidate, "session-2"); err != nil {
		t.Fatalf("session-2 Lock after release: %v", err)
	}
}

func buildPatch(t *testing.T, ifaceName, description string, op DefaultOp) *node.Tree {
	t.Helper()
	tree := node.New("config", "")
	top := tree.Create(node.KindContainer, "top", "urn:ex", nil)
	if op != "" {
		tree.SetAttr(top, opAttr, string(op))
	}
	if err := tree.AppendChild(tree.Root(), top); err != nil {
		t.Fatalf("AppendChild(top): %v", err)
	}
	iface := tree.Create(node.KindListEntry, "iface", "urn:ex", nil)
	if err := tree.AppendChild(top, iface); err != nil {
		t.Fatalf("AppendChild(iface): %v", err)
	}
	name := tree.Create(node.KindLeaf, "name", "urn:ex", nil)
	tree.SetBody(name, ifaceName)
	if err := tree.AppendChild(iface, name); err != nil {
		t.Fatalf("AppendChild(name): %v", err)
	}
	if description != "" {
		desc := tree.Create(node.KindLeaf, "description", "urn:ex", nil)
		tree.SetBody(desc, description)
		if err := tree.AppendChild(iface, desc); err != nil {
			t.Fatalf("AppendChild(description): %v", err)
		}
	}
	return tree
}

// TestEditConfigMergeAndSwap is spec.md §8 scenario 1: edit candidate,
// validate, commit — running only changes after Swap, and a Snapshot
// taken before the Swap keeps observing the pre-commit tree (§5's
// isolation guarantee).
func TestEditConfigMergeAndSwap(t *testing.T) {
	s := newConnectedStore(t)

	preSwap, err := s.Snapshot(Running)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	defer preSwap.Release()

	patch := buildPatch(t, "eth0", "uplink", OpMerge)
	working, err := s.EditConfig(Candidate, patch, OpMerge, rpcerr.StopOnError)
	if err != nil {
		t.Fatalf("EditConfig: %v", err)
	}

	if err := s.Swap(Candidate, working); err != nil {
		t.Fatalf("Swap(Candidate): %v", err)
	}
	if err := s.Swap(Running, working.CloneTree()); err != nil {
		t.Fatalf("Swap(Running): %v", err)
	}

	if len(preSwap.Tree.Children(preSwap.Tree.Root())) != 0 {
		t.Fatal("pre-swap snapshot must still observe the empty pre-commit tree")
	}

	post, err := s.Snapshot(Running)
	if err != nil {
		t.Fatalf("Snapshot after swap: %v", err)
	}
	defer post.Release()
	top := post.Tree.FindChild(post.Tree.Root(), "top", "urn:ex")
	if top == node.NoIndex {
		t.Fatal("expected top container after commit")
	}
	iface := post.Tree.FindChild(top, "iface", "urn:ex")
	if iface == node.NoIndex {
		t.Fatal("expected iface list entry after commit")
	}
	desc := post.Tree.FindChild(iface, "description", "urn:ex")
	if desc == node.NoIndex || post.Tree.Body(desc) != "uplink" {
		t.Fatalf("expected description=uplink, got %v", desc)
	}
}

func TestEditConfigCreateConflict(t *testing.T) {
	s := newConnectedStore(t)
	patch := buildPatch(t, "eth0", "", OpMerge)
	working, err := s.EditConfig(Candidate, patch, OpMerge, rpcerr.StopOnError)
	if err != nil {
		t.Fatalf("first EditConfig: %v", err)
	}
	if err := s.Swap(Candidate, working); err != nil {
		t.Fatalf("Swap: %v", err)
	}

	again := buildPatch(t, "eth0", "", OpCreate)
	if _, err := s.EditConfig(Candidate, again, OpMerge, rpcerr.StopOnError); err == nil {
		t.Fatal("expected data-exists error recreating an existing iface")
	} else if rerr, ok := err.(*rpcerr.Error); !ok || rerr.ErrTag != rpcerr.TagDataExists {
		t.Fatalf("got %v, want data-exists", err)
	}
}

func TestEditConfigDeleteMissing(t *testing.T) {
	s := newConnectedStore(t)
	patch := buildPatch(t, "eth0", "", OpDelete)
	if _, err := s.EditConfig(Candidate, patch, OpMerge, rpcerr.StopOnError); err == nil {
		t.Fatal("expected data-missing deleting a nonexistent iface")
	} else if rerr, ok := err.(*rpcerr.Error); !ok || rerr.ErrTag != rpcerr.TagDataMissing {
		t.Fatalf("got %v, want data-missing", err)
	}
}

// TestEditConfigContinueOnErrorKeepsSuccessfulEdits exercises
// rpcerr.ContinueOnError's documented contract (rpcerr/rpcerr.go's
// "ContinueOnError keeps applying remaining steps, accumulating every
// failure into one List"): a patch with two independent top-level
// children, one that merges cleanly and one that fails (deleting a node
// that doesn't exist), must come back with both the accumulated error
// and the successfully merged edit, not a nil tree.
func TestEditConfigContinueOnErrorKeepsSuccessfulEdits(t *testing.T) {
	s := newConnectedStore(t)

	patch := node.New("config", "")
	good := buildPatch(t, "eth0", "uplink", OpMerge)
	bad := node.New("config", "")
	badChild := bad.Create(node.KindContainer, "missing", "urn:ex", nil)
	bad.SetAttr(badChild, opAttr, string(OpDelete))
	_ = bad.AppendChild(bad.Root(), badChild)

	for _, c := range good.Children(good.Root()) {
		idx := patch.Copy(good, c)
		if err := patch.AppendChild(patch.Root(), idx); err != nil {
			t.Fatalf("AppendChild(good): %v", err)
		}
	}
	for _, c := range bad.Children(bad.Root()) {
		idx := patch.Copy(bad, c)
		if err := patch.AppendChild(patch.Root(), idx); err != nil {
			t.Fatalf("AppendChild(bad): %v", err)
		}
	}

	working, err := s.EditConfig(Candidate, patch, OpMerge, rpcerr.ContinueOnError)
	if err == nil {
		t.Fatal("expected the delete-missing child to surface an error")
	}
	if working == nil {
		t.Fatal("ContinueOnError must still return the successfully merged edits, got a nil tree")
	}
	top := working.FindChild(working.Root(), "top", "urn:ex")
	if top == node.NoIndex {
		t.Fatal("expected the successful merge to still be present in the returned tree")
	}
	iface := working.FindChild(top, "iface", "urn:ex")
	if iface == node.NoIndex {
		t.Fatal("expected iface eth0 to have merged despite the sibling failure")
	}
}

func TestSwapRejectsTmp(t *testing.T) {
	s := newConnectedStore(t)
	if err := s.Swap(Tmp, node.New("config", "")); err == nil {
		t.Fatal("expected Swap(Tmp, ...) to be rejected")
	}
}

// TestPersistRoundTrip is spec.md §8 scenario 6: a committed datastore
// survives a Disconnect/Connect cycle via its backing file.
func TestPersistRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, true, nil)
	if err := s.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	patch := buildPatch(t, "eth0", "uplink", OpMerge)
	working, err := s.EditConfig(Running, patch, OpMerge, rpcerr.StopOnError)
	if err != nil {
		t.Fatalf("EditConfig: %v", err)
	}
	if err := s.Swap(Running, working); err != nil {
		t.Fatalf("Swap: %v", err)
	}
	if err := s.Persist(Running); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if err := s.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}

	s2 := New(dir, true, nil)
	if err := s2.Connect(); err != nil {
		t.Fatalf("reConnect: %v", err)
	}
	defer s2.Disconnect()
	snap, err := s2.Snapshot(Running)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	defer snap.Release()
	top := snap.Tree.FindChild(snap.Tree.Root(), "top", "urn:ex")
	if top == node.NoIndex {
		t.Fatal("expected persisted top container to survive reconnect")
	}
}

func TestReleaseHolderAndIsLocked(t *testing.T) {
	s := newConnectedStore(t)
	if err := s.Lock(Running, "sess-a"); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	holder, locked := s.IsLocked(Running)
	if !locked || holder != "sess-a" {
		t.Fatalf("IsLocked = (%q, %v), want (sess-a, true)", holder, locked)
	}
	s.ReleaseHolder("sess-a")
	if _, locked := s.IsLocked(Running); locked {
		t.Fatal("expected Running unlocked after ReleaseHolder")
	}
}

func TestCopyAndDelete(t *testing.T) {
	s := newConnectedStore(t)
	patch := buildPatch(t, "eth0", "", OpMerge)
	working, err := s.EditConfig(Running, patch, OpMerge, rpcerr.StopOnError)
	if err != nil {
		t.Fatalf("EditConfig: %v", err)
	}
	if err := s.Swap(Running, working); err != nil {
		t.Fatalf("Swap: %v", err)
	}
	if err := s.Copy(Running, Startup); err != nil {
		t.Fatalf("Copy: %v", err)
	}
	snap, err := s.Snapshot(Startup)
	if err != nil {
		t.Fatalf("Snapshot(Startup): %v", err)
	}
	defer snap.Release()
	if len(snap.Tree.Children(snap.Tree.Root())) == 0 {
		t.Fatal("expected Startup to carry Running's copied content")
	}

	if err := s.Delete(Startup); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	snap2, err := s.Snapshot(Startup)
	if err != nil {
		t.Fatalf("Snapshot(Startup) after delete: %v", err)
	}
	defer snap2.Release()
	if len(snap2.Tree.Children(snap2.Tree.Root())) != 0 {
		t.Fatal("expected Startup to be empty after Delete")
	}
}
