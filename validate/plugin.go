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
	"context"

	log "github.com/golang/glog"
	"github.com/nmscore/netconfd/node"
	"github.com/nmscore/netconfd/rpcerr"
	"github.com/pkg/errors"
)

// Transaction carries the two trees a plugin callback observes during
// stage 5: the candidate tree that passed stages 1-4, and the reference
// ("running") tree it is being compared against.
type Transaction struct {
	Candidate *node.Tree
	Reference *node.Tree
}

// Plugin is the capability record of spec.md §9 "Plugin callbacks
// (dynamic dispatch)": a registered set of lifecycle hooks, modeled as
// plain function fields rather than an interface so a caller can
// register a partial set (a nil hook is simply skipped), the same
// registration-list dispatch shape andaru-opr8/session.Manager uses for
// its Acceptor list. Every hook is optional; RunTransaction invokes
// whichever are non-nil.
type Plugin struct {
	Name string

	OnBegin    func(ctx context.Context, tx *Transaction) error
	OnValidate func(ctx context.Context, tx *Transaction) error
	OnComplete func(ctx context.Context, tx *Transaction) error
	OnCommit   func(ctx context.Context, tx *Transaction) error
	OnAbort    func(ctx context.Context, tx *Transaction)
	OnEnd      func(ctx context.Context, tx *Transaction)

	// OnStart/OnExit run once at engine startup/shutdown, outside any
	// particular transaction.
	OnStart func(ctx context.Context) error
	OnExit  func(ctx context.Context)

	// OnStateData is invoked to fetch <get> operational state the
	// plugin, not the datastore, owns.
	OnStateData func(ctx context.Context, path string) (*node.Tree, error)

	// OnRPC is invoked for a non-standard RPC this plugin's YANG module
	// declares.
	OnRPC func(ctx context.Context, name string, input *node.Tree) (*node.Tree, error)
}

// runTransaction dispatches stage 5's begin -> validate -> complete ->
// commit phases to every registered plugin in registration order. If
// any phase returns an error for any plugin, the abort phase is
// dispatched to every plugin that was already notified of a prior phase
// (spec.md §4.F stage 5), in reverse registration order, and
// runTransaction returns an operation-failed error carrying the
// plugin's message (spec.md §7 "Plugin transaction failures").
func (p *Pipeline) runTransaction(ctx context.Context, tx *Transaction) error {
	notified := make([]*Plugin, 0, len(p.plugins))
	seen := make(map[*Plugin]bool, len(p.plugins))

	phase := func(name string, call func(pl *Plugin) error) error {
		for _, pl := range p.plugins {
			if call == nil {
				continue
			}
			if err := call(pl); err != nil {
				log.Warningf("validate: plugin %s failed at %s: %v", pl.Name, name, err)
				p.abort(ctx, tx, notified)
				return rpcerr.New(rpcerr.TypeApplication, rpcerr.TagOperationFailed,
					"plugin "+pl.Name+" failed at "+name+": "+err.Error())
			}
			if !seen[pl] {
				seen[pl] = true
				notified = append(notified, pl)
			}
		}
		return nil
	}

	if err := phase("begin", func(pl *Plugin) error {
		if pl.OnBegin == nil {
			return nil
		}
		return pl.OnBegin(ctx, tx)
	}); err != nil {
		return err
	}
	if err := phase("validate", func(pl *Plugin) error {
		if pl.OnValidate == nil {
			return nil
		}
		return pl.OnValidate(ctx, tx)
	}); err != nil {
		return err
	}
	if err := phase("complete", func(pl *Plugin) error {
		if pl.OnComplete == nil {
			return nil
		}
		return pl.OnComplete(ctx, tx)
	}); err != nil {
		return err
	}
	if err := phase("commit", func(pl *Plugin) error {
		if pl.OnCommit == nil {
			return nil
		}
		return pl.OnCommit(ctx, tx)
	}); err != nil {
		return err
	}

	for _, pl := range p.plugins {
		if pl.OnEnd != nil {
			pl.OnEnd(ctx, tx)
		}
	}
	return nil
}

// abort dispatches OnAbort to every plugin in notified, in reverse
// order, per spec.md §4.F stage 5.
func (p *Pipeline) abort(ctx context.Context, tx *Transaction, notified []*Plugin) {
	for i := len(notified) - 1; i >= 0; i-- {
		if notified[i].OnAbort != nil {
			notified[i].OnAbort(ctx, tx)
		}
	}
}

// Start dispatches OnStart to every registered plugin, in registration
// order, aborting at the first failure.
func (p *Pipeline) Start(ctx context.Context) error {
	for _, pl := range p.plugins {
		if pl.OnStart == nil {
			continue
		}
		if err := pl.OnStart(ctx); err != nil {
			return errors.Wrapf(err, "plugin %s failed to start", pl.Name)
		}
	}
	return nil
}

// Stop dispatches OnExit to every registered plugin, in reverse
// registration order.
func (p *Pipeline) Stop(ctx context.Context) {
	for i := len(p.plugins) - 1; i >= 0; i-- {
		if p.plugins[i].OnExit != nil {
			p.plugins[i].OnExit(ctx)
		}
	}
}
