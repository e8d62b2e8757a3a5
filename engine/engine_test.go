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

package engine

import (
	"context"
	"testing"
	"time"

	"github.com/nmscore/netconfd/datastore"
	"github.com/nmscore/netconfd/nacm"
	"github.com/nmscore/netconfd/node"
	"github.com/nmscore/netconfd/notify"
	"github.com/nmscore/netconfd/rpcerr"
	"github.com/nmscore/netconfd/validate"
)

func newTestEngine(t *testing.T, acl *nacm.Evaluator) (*Engine, *datastore.Store) {
	t.Helper()
	store := datastore.New(t.TempDir(), true, nil)
	if err := store.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = store.Disconnect() })

	ctx := &Context{
		Store:    store,
		Pipeline: validate.New(nil),
		ACL:      acl,
		Bus:      notify.NewBus(16),
	}
	e := New(ctx)
	t.Cleanup(e.Close)
	return e, store
}

func buildPatch(name, body string) *node.Tree {
	p := node.New("top", "urn:ex")
	leaf := p.Create(node.KindContainer, name, "urn:ex", nil)
	if body != "" {
		child := p.Create(node.KindLeaf, "value", "urn:ex", nil)
		p.SetBody(child, body)
		_ = p.AppendChild(leaf, child)
	}
	_ = p.AppendChild(p.Root(), leaf)
	return p
}

func TestEditConfigTestSetThenGetConfig(t *testing.T) {
	e, store := newTestEngine(t, nil)
	ctx := context.Background()

	patch := buildPatch("iface", "eth0")
	if err := e.EditConfig(ctx, "alice", datastore.Candidate, patch, datastore.OpMerge, datastore.TestSet, rpcerr.StopOnError); err != nil {
		t.Fatalf("EditConfig: %v", err)
	}

	view, err := e.GetConfig(ctx, "alice", datastore.Candidate)
	if err != nil {
		t.Fatalf("GetConfig: %v", err)
	}
	if len(view.Children(view.Root())) != 1 {
		t.Fatalf("got %d top-level children, want 1", len(view.Children(view.Root())))
	}

	// The live store entry must reflect the swap too.
	snap, err := store.Snapshot(datastore.Candidate)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	defer snap.Release()
	if len(snap.Tree.Children(snap.Tree.Root())) != 1 {
		t.Fatal("expected the swap to have landed in the live datastore entry")
	}
}

func TestLockContentionThroughEngine(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	ctx := context.Background()

	if err := e.Lock(ctx, datastore.Candidate, "session-1"); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if err := e.Lock(ctx, datastore.Candidate, "session-2"); err == nil {
		t.Fatal("expected a second Lock to fail while session-1 holds it")
	}
	if err := e.Unlock(ctx, datastore.Candidate, "session-1"); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if err := e.Lock(ctx, datastore.Candidate, "session-2"); err != nil {
		t.Fatalf("Lock after Unlock: %v", err)
	}
}

func TestGetConfigFiltersDeniedSubtree(t *testing.T) {
	acl := nacm.New(nacm.Config{
		Enabled:      true,
		ReadDefault:  nacm.ActionPermit,
		WriteDefault: nacm.ActionDeny,
		ExecDefault:  nacm.ActionDeny,
		Groups:       map[string][]string{"limited": {"bob"}},
		RuleLists: []nacm.RuleList{{
			Name:   "deny-secret",
			Groups: []string{"limited"},
			Rules: []nacm.Rule{{
				ModuleGlob: "ex",
				Path:       "/ex:secret",
				Access:     nacm.OpRead,
				Action:     nacm.ActionDeny,
			}},
		}},
	})
	e, store := newTestEngine(t, acl)
	ctx := context.Background()

	// Seed directly via the store to isolate what's under test to
	// GetConfig's filtering. "secret" is bound to a schema whose path the
	// deny rule targets, so FilterRead has something to prune.
	seeded := node.New("top", "urn:ex")
	secret := seeded.Create(node.KindContainer, "secret", "urn:ex", pathSchema{path: "/ex:secret", children: []string{"value"}})
	value := seeded.Create(node.KindLeaf, "value", "urn:ex", nil)
	seeded.SetBody(value, "v")
	if err := seeded.AppendChild(secret, value); err != nil {
		t.Fatalf("AppendChild value: %v", err)
	}
	if err := seeded.AppendChild(seeded.Root(), secret); err != nil {
		t.Fatalf("AppendChild secret: %v", err)
	}
	merged, err := store.EditConfig(datastore.Running, seeded, datastore.OpMerge, rpcerr.StopOnError)
	if err != nil {
		t.Fatalf("seed EditConfig: %v", err)
	}
	if err := store.Swap(datastore.Running, merged); err != nil {
		t.Fatalf("Swap: %v", err)
	}

	view, err := e.GetConfig(ctx, "bob", datastore.Running)
	if err != nil {
		t.Fatalf("GetConfig: %v", err)
	}
	// bob is in "limited", whose first matching rule denies read on
	// /ex:secret, so the whole subtree must be silently pruned.
	if n := len(view.Children(view.Root())); n != 0 {
		t.Fatalf("got %d top-level children, want the denied /ex:secret subtree pruned", n)
	}
}

// pathSchema is a minimal node.Schema that gives a node a schema path
// NACM rules can match, without loading a YANG module.
type pathSchema struct {
	path     string
	children []string
}

func (s pathSchema) SchemaPath() string    { return s.path }
func (s pathSchema) IsList() bool          { return false }
func (s pathSchema) KeyNames() []string    { return nil }
func (s pathSchema) ChildOrder() []string  { return s.children }
func (s pathSchema) OrderedBySystem() bool { return false }

func TestSubscribeDeliversEvents(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	ctx := context.Background()

	events, cancel, err := e.Subscribe(ctx, "alice", notify.SubscribeOptions{})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer cancel()

	tree := node.New("notif", "urn:ex")
	_, pubErr := e.Submit(ctx, func(c *Context) (interface{}, error) {
		c.Bus.Publish(notify.Event{Module: "ex", Name: "link-event", Tree: tree, Root: tree.Root()})
		return nil, nil
	})
	if pubErr != nil {
		t.Fatalf("publish: %v", pubErr)
	}

	select {
	case ev := <-events:
		if ev.Name != "link-event" {
			t.Fatalf("got event %q, want link-event", ev.Name)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for subscribed event")
	}
}
