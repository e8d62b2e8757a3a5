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

// Package engine wires package schema, node, datastore, validate,
// nacm, and notify into the single environment spec.md §9's design
// notes call for in place of a global "handle": an explicit Context
// value threaded through every top-level operation, plus a single
// dispatch goroutine serializing those operations per spec.md §5's
// "single-threaded cooperative event loop". Suspension points (stage 5
// plugin RPCs, lock waits, timers) all happen inside the closures
// Submit runs, exactly as spec.md §5 describes; nothing outside this
// package's Engine.run goroutine touches a Context concurrently.
package engine

import (
	"context"

	"github.com/nmscore/netconfd/datastore"
	"github.com/nmscore/netconfd/nacm"
	"github.com/nmscore/netconfd/notify"
	"github.com/nmscore/netconfd/schema"
	"github.com/nmscore/netconfd/session"
	"github.com/nmscore/netconfd/validate"
)

// Context is the environment spec.md §9 calls for: everything a
// top-level operation needs, passed explicitly rather than reached for
// through a global. ACL is a plain field, not behind a mutex: NACM
// configuration changes are applied by building a fresh
// *nacm.Evaluator and calling Engine.SetACL, which only ever runs
// inside the single dispatch goroutine, so no concurrent access to the
// field itself is possible.
type Context struct {
	Forest   *schema.Forest
	Store    *datastore.Store
	Pipeline *validate.Pipeline
	ACL      *nacm.Evaluator
	Bus      *notify.Bus
	Sessions session.Manager
}

// Engine runs a single goroutine that dispatches every top-level
// engine operation against a Context, one at a time.
type Engine struct {
	ctx   *Context
	tasks chan task
	done  chan struct{}
}

type task struct {
	fn   func(*Context) (interface{}, error)
	resp chan taskResult
}

type taskResult struct {
	val interface{}
	err error
}

// New starts an Engine dispatching against ctx. Call Close to stop it.
func New(ctx *Context) *Engine {
	e := &Engine{ctx: ctx, tasks: make(chan task, 64), done: make(chan struct{})}
	go e.run()
	return e
}

func (e *Engine) run() {
	for {
		select {
		case t, ok := <-e.tasks:
			if !ok {
				return
			}
			val, err := t.fn(e.ctx)
			t.resp <- taskResult{val: val, err: err}
		case <-e.done:
			return
		}
	}
}

// Close stops the dispatch goroutine. Pending Submit calls that have
// not yet been picked up fail with context cancellation from the
// caller's side; Close does not drain the queue.
func (e *Engine) Close() { close(e.done) }

// Submit runs fn on the engine's single dispatch goroutine and blocks
// until it completes or ctx is done. Every exported operation in this
// package is implemented as a thin wrapper around Submit so that no
// two top-level operations ever run concurrently against the same
// Context, matching spec.md §5's single-writer-at-a-time scheduling
// model (readers still use datastore's own reference-counted
// snapshots for concurrency once a snapshot has been handed out).
func (e *Engine) Submit(ctx context.Context, fn func(*Context) (interface{}, error)) (interface{}, error) {
	resp := make(chan taskResult, 1)
	select {
	case e.tasks <- task{fn: fn, resp: resp}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-e.done:
		return nil, context.Canceled
	}
	select {
	case r := <-resp:
		return r.val, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SetACL installs a freshly built Evaluator, implementing spec.md
// §4.B's "Rules are re-read whenever the NACM configuration subtree
// changes": the caller rebuilds a *nacm.Evaluator from the new
// configuration and calls SetACL rather than mutating one in place.
func (e *Engine) SetACL(ctx context.Context, acl *nacm.Evaluator) error {
	_, err := e.Submit(ctx, func(c *Context) (interface{}, error) {
		c.ACL = acl
		return nil, nil
	})
	return err
}
