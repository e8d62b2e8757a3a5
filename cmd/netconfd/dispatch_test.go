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

package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nmscore/netconfd/datastore"
	"github.com/nmscore/netconfd/engine"
	"github.com/nmscore/netconfd/ipc"
	"github.com/nmscore/netconfd/notify"
	"github.com/nmscore/netconfd/schema"
	"github.com/nmscore/netconfd/validate"
)

const exModule = `
module ex {
  namespace "urn:ex";
  prefix ex;

  container top {
    leaf name {
      type string;
    }
  }
}
`

func newTestDispatchServer(t *testing.T) *dispatchServer {
	t.Helper()
	dir := t.TempDir()
	file := filepath.Join(dir, "ex.yang")
	if err := os.WriteFile(file, []byte(exModule), 0o644); err != nil {
		t.Fatalf("writing test module: %v", err)
	}
	forest := schema.NewForest()
	if err := forest.LoadDir(nil, []string{file}); err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if err := forest.Resolve(); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	store := datastore.New(t.TempDir(), true, forest)
	if err := store.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = store.Disconnect() })

	ctx := &engine.Context{
		Forest:   forest,
		Store:    store,
		Pipeline: validate.New(forest),
		Bus:      notify.NewBus(16),
	}
	eng := engine.New(ctx)
	t.Cleanup(eng.Close)
	return &dispatchServer{eng: eng, ctx: ctx}
}

func TestDispatchEditConfigThenGetConfig(t *testing.T) {
	srv := newTestDispatchServer(t)
	ctx := context.Background()

	editResp := srv.dispatch(ctx, &ipc.Request{
		Op:        ipc.OpEditConfig,
		Username:  "alice",
		Datastore: "candidate",
		Body:      `{"ex:top":{"name":"eth0"}}`,
		DefaultOp: "merge",
	})
	if editResp.Error != "" {
		t.Fatalf("edit-config: %s", editResp.Error)
	}

	getResp := srv.dispatch(ctx, &ipc.Request{
		Op:        ipc.OpGetConfig,
		Username:  "alice",
		Datastore: "candidate",
	})
	if getResp.Error != "" {
		t.Fatalf("get-config: %s", getResp.Error)
	}
	if !strings.Contains(getResp.Body, "eth0") {
		t.Fatalf("get-config body = %q, want it to contain eth0", getResp.Body)
	}
}

func TestDispatchUnknownOp(t *testing.T) {
	srv := newTestDispatchServer(t)
	resp := srv.dispatch(context.Background(), &ipc.Request{Op: "bogus"})
	if resp.Error == "" {
		t.Fatal("expected an error for an unknown op")
	}
}

func TestDispatchLockContention(t *testing.T) {
	srv := newTestDispatchServer(t)
	ctx := context.Background()

	if resp := srv.dispatch(ctx, &ipc.Request{Op: ipc.OpLock, Datastore: "candidate", Holder: "s1"}); resp.Error != "" {
		t.Fatalf("lock: %s", resp.Error)
	}
	if resp := srv.dispatch(ctx, &ipc.Request{Op: ipc.OpLock, Datastore: "candidate", Holder: "s2"}); resp.Error == "" {
		t.Fatal("expected second lock to fail")
	}
	if resp := srv.dispatch(ctx, &ipc.Request{Op: ipc.OpUnlock, Datastore: "candidate", Holder: "s1"}); resp.Error != "" {
		t.Fatalf("unlock: %s", resp.Error)
	}
}
