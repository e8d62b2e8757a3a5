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
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	log "github.com/golang/glog"
	"github.com/spf13/cobra"

	"github.com/nmscore/netconfd/config"
	"github.com/nmscore/netconfd/datastore"
	"github.com/nmscore/netconfd/encoding"
	"github.com/nmscore/netconfd/engine"
	"github.com/nmscore/netconfd/ipc"
	"github.com/nmscore/netconfd/nacm"
	"github.com/nmscore/netconfd/node"
	"github.com/nmscore/netconfd/notify"
	"github.com/nmscore/netconfd/schema"
	"github.com/nmscore/netconfd/session"
	"github.com/nmscore/netconfd/validate"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the configuration-management engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServe(cfg)
		},
	}
}

// buildEngine constructs the full engine.Context/Engine from a
// resolved config.Config, exactly the assembly spec.md §9 describes:
// schema forest, datastore, validate pipeline, NACM evaluator,
// notification bus, and session manager wired into one Context.
func buildEngine(cfg *config.Config) (*engine.Engine, *engine.Context, error) {
	forest := schema.NewForest()
	if err := forest.LoadDir(cfg.YANGDirs, []string{cfg.YANGMainFile}); err != nil {
		return nil, nil, fmt.Errorf("loading YANG modules: %w", err)
	}
	if err := forest.Resolve(); err != nil {
		return nil, nil, fmt.Errorf("resolving schema forest: %w", err)
	}

	store := datastore.New(cfg.DatastoreDir, cfg.CacheEnable, forest)
	if err := store.Connect(); err != nil {
		return nil, nil, fmt.Errorf("connecting datastore: %w", err)
	}

	acl, err := loadACL(cfg, store)
	if err != nil {
		return nil, nil, fmt.Errorf("loading NACM configuration: %w", err)
	}

	ctx := &engine.Context{
		Forest:   forest,
		Store:    store,
		Pipeline: validate.New(forest),
		ACL:      acl,
		Bus:      notify.NewBus(256),
		Sessions: session.NewManager(),
	}
	return engine.New(ctx), ctx, nil
}

// loadACL resolves NACM configuration per cfg.NACMMode. NACMModeFile
// reads the external RFC 8341 document named by cfg.NACMFile directly.
// NACMModeInline extracts the running datastore's own
// ietf-netconf-acm:nacm subtree by re-encoding it through the same XML
// writer the rest of the engine already uses and feeding that document
// back through nacm.LoadConfig, so the inline and external-file paths
// share one parser.
func loadACL(cfg *config.Config, store *datastore.Store) (*nacm.Evaluator, error) {
	switch cfg.NACMMode {
	case config.NACMModeFile:
		if cfg.NACMFile == "" {
			return nacm.New(nacm.Config{}), nil
		}
		nc, err := nacm.LoadConfigFile(cfg.NACMFile)
		if err != nil {
			return nil, err
		}
		return nacm.New(nc), nil
	default: // NACMModeInline, or unset
		snap, err := store.Snapshot(datastore.Running)
		if err != nil {
			return nil, err
		}
		defer snap.Release()
		nacmIdx, ok := findChildByName(snap.Tree, snap.Tree.Root(), "nacm")
		if !ok {
			return nacm.New(nacm.Config{}), nil
		}
		var buf bytes.Buffer
		xw := encoding.NewXMLWriter(encoding.Options{})
		if err := xw.Encode(&buf, snap.Tree, nacmIdx); err != nil {
			return nil, err
		}
		nc, err := nacm.LoadConfig(&buf)
		if err != nil {
			return nil, err
		}
		return nacm.New(nc), nil
	}
}

func findChildByName(t *node.Tree, parent node.Index, name string) (node.Index, bool) {
	for _, c := range t.Children(parent) {
		if t.Name(c) == name {
			return c, true
		}
	}
	return node.NoIndex, false
}

func runServe(cfg *config.Config) error {
	eng, ectx, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	if cfg.SocketPath == "" {
		return fmt.Errorf("socket-path must be configured")
	}
	_ = os.Remove(cfg.SocketPath)
	ln, err := net.Listen("unix", cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.SocketPath, err)
	}
	defer ln.Close()
	log.Infof("netconfd listening on %s", cfg.SocketPath)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	stopped := make(chan struct{})
	go func() {
		<-sigCh
		log.Infof("shutting down")
		close(stopped)
		ln.Close()
	}()

	srv := &dispatchServer{eng: eng, ctx: ectx}
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-stopped:
				return nil
			default:
				return fmt.Errorf("accept: %w", err)
			}
		}
		go srv.handleConn(conn)
	}
}

// dispatchServer answers ipc.Request values read off accepted
// connections by calling straight into the engine, translating
// results back to ipc.Response.
type dispatchServer struct {
	eng *engine.Engine
	ctx *engine.Context
}

func (s *dispatchServer) handleConn(conn net.Conn) {
	defer conn.Close()
	dec := ipc.NewDecoder(conn)
	for {
		req, err := dec.ReadRequest()
		if err != nil {
			return
		}
		resp := s.dispatch(context.Background(), req)
		if err := ipc.WriteResponse(conn, resp); err != nil {
			return
		}
	}
}
