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

	"github.com/nmscore/netconfd/datastore"
	"github.com/nmscore/netconfd/nacm"
	"github.com/nmscore/netconfd/node"
	"github.com/nmscore/netconfd/notify"
	"github.com/nmscore/netconfd/rpcerr"
)

// GetConfig returns a private clone of db's content with every
// subtree username may not read pruned out (spec.md §4.G). The clone
// is the engine's own copy, not the live datastore Snapshot, so the
// caller is free to encode or further mutate it without racing the
// live entry or needing to Release anything.
func (e *Engine) GetConfig(ctx context.Context, username string, db datastore.Name) (*node.Tree, error) {
	v, err := e.Submit(ctx, func(c *Context) (interface{}, error) {
		snap, err := c.Store.Snapshot(db)
		if err != nil {
			return nil, err
		}
		defer snap.Release()
		view := snap.Tree.CloneTree()
		if c.ACL != nil {
			c.ACL.FilterRead(view, view.Root(), username)
		}
		return view, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*node.Tree), nil
}

// netconfOpAttr is RFC 6241 §7.2's per-node "operation" attribute,
// whose value (when present) overrides defaultOp for that node and
// its descendants, exactly as package datastore's merge resolves it.
const netconfOpAttr = "operation"

// accessOpFor maps an RFC 6241 edit-config operation name to the NACM
// access bit it requires.
func accessOpFor(op string) nacm.AccessOp {
	switch datastore.DefaultOp(op) {
	case datastore.OpCreate:
		return nacm.OpCreate
	case datastore.OpDelete, datastore.OpRemove:
		return nacm.OpDelete
	default: // merge, replace
		return nacm.OpUpdate
	}
}

// checkWriteAccess walks every node of patch, denying the whole edit
// if username may not perform the access implied by each node's
// effective operation (its own "operation" attribute, inherited from
// the nearest ancestor that set one, defaulting to defaultOp).
// Unbound nodes (no schema back-reference, e.g. a request decoded in
// encoding.ModeNONE rather than ModeBIND) are not checked: the same
// documented limitation package datastore's findMatch already carries
// for schemaless trees applies here, since NACM has nothing to key a
// decision on without a schema path.
func checkWriteAccess(acl *nacm.Evaluator, patch *node.Tree, username string, defaultOp datastore.DefaultOp) error {
	if acl == nil {
		return nil
	}
	var errs rpcerr.List
	for _, top := range patch.Children(patch.Root()) {
		err := walkWithInheritedOp(patch, top, string(defaultOp), func(i node.Index, effectiveOp string) {
			sp, ok := patch.Schema(i).(interface{ SchemaPath() string })
			if !ok {
				return
			}
			path := sp.SchemaPath()
			module := moduleFromSchemaPath(path)
			if err := acl.CheckData(username, module, path, accessOpFor(effectiveOp)); err != nil {
				errs = errs.Append(err)
			}
		})
		if err != nil {
			return err
		}
	}
	if len(errs) > 0 {
		return errs.AsError()
	}
	return nil
}

// walkWithInheritedOp visits i and every descendant, threading the
// nearest-ancestor "operation" attribute value down so a subtree with
// no attribute of its own is checked against whatever operation its
// closest annotated ancestor (or inheritedOp, the caller's default)
// declared.
func walkWithInheritedOp(t *node.Tree, i node.Index, inheritedOp string, visit func(node.Index, string)) error {
	op := inheritedOp
	if v, ok := t.Attr(i, netconfOpAttr); ok {
		op = v
	}
	visit(i, op)
	for _, c := range t.Children(i) {
		if err := walkWithInheritedOp(t, c, op, visit); err != nil {
			return err
		}
	}
	return nil
}

func moduleFromSchemaPath(p string) string {
	p = trimLeadingSlash(p)
	for i := 0; i < len(p); i++ {
		if p[i] == ':' {
			return p[:i]
		}
		if p[i] == '/' {
			break
		}
	}
	return ""
}

func trimLeadingSlash(p string) string {
	if len(p) > 0 && p[0] == '/' {
		return p[1:]
	}
	return p
}

// EditConfig applies patch to db under defaultOp/errOpt, then honors
// testOpt: TestOnly validates the merged result without ever touching
// the live datastore entry, TestSet swaps it in unvalidated (the
// caller vouches for it), and TestThenSet (the NETCONF default) runs
// the full validate/commit pipeline before swapping.
func (e *Engine) EditConfig(ctx context.Context, username string, db datastore.Name, patch *node.Tree, defaultOp datastore.DefaultOp, testOpt datastore.TestOption, errOpt rpcerr.ErrorOption) error {
	_, err := e.Submit(ctx, func(c *Context) (interface{}, error) {
		if err := checkWriteAccess(c.ACL, patch, username, defaultOp); err != nil {
			return nil, err
		}

		reference, err := c.Store.Snapshot(db)
		if err != nil {
			return nil, err
		}
		defer reference.Release()

		// working is nil only for StopOnError/RollbackOnError, both of
		// which abort on the first failing merge step; under
		// ContinueOnError, editErr carries the accumulated per-step
		// failures but working still holds whatever did merge, per RFC
		// 6241 §7.2 and datastore.EditConfig's own contract.
		working, editErr := c.Store.EditConfig(db, patch, defaultOp, errOpt)
		if working == nil {
			return nil, editErr
		}

		switch testOpt {
		case datastore.TestOnly:
			var errs rpcerr.List
			errs = errs.Append(editErr)
			errs = append(errs, c.Pipeline.Validate(working, errOpt)...)
			if len(errs) > 0 {
				return nil, errs.AsError()
			}
			return nil, nil
		case datastore.TestSet:
			if err := c.Store.Swap(db, working); err != nil {
				return nil, err
			}
			return nil, editErr
		default:
			committed, err := c.Pipeline.Commit(ctx, working, reference.Tree)
			if err != nil {
				var errs rpcerr.List
				errs = errs.Append(editErr)
				errs = errs.Append(err)
				return nil, errs.AsError()
			}
			if err := c.Store.Swap(db, committed); err != nil {
				return nil, err
			}
			return nil, editErr
		}
	})
	return err
}

// Validate runs stages 1-4 of the validate/commit pipeline against
// db's current content without committing anything, for the NETCONF
// <validate> RPC.
func (e *Engine) Validate(ctx context.Context, db datastore.Name, errOpt rpcerr.ErrorOption) error {
	_, err := e.Submit(ctx, func(c *Context) (interface{}, error) {
		snap, err := c.Store.Snapshot(db)
		if err != nil {
			return nil, err
		}
		defer snap.Release()
		if errs := c.Pipeline.Validate(snap.Tree, errOpt); len(errs) > 0 {
			return nil, errs.AsError()
		}
		return nil, nil
	})
	return err
}

// Lock acquires db's write lock for holder.
func (e *Engine) Lock(ctx context.Context, db datastore.Name, holder string) error {
	_, err := e.Submit(ctx, func(c *Context) (interface{}, error) { return nil, c.Store.Lock(db, holder) })
	return err
}

// Unlock releases db's write lock held by holder.
func (e *Engine) Unlock(ctx context.Context, db datastore.Name, holder string) error {
	_, err := e.Submit(ctx, func(c *Context) (interface{}, error) { return nil, c.Store.Unlock(db, holder) })
	return err
}

// CopyConfig copies from's content over to's.
func (e *Engine) CopyConfig(ctx context.Context, from, to datastore.Name) error {
	_, err := e.Submit(ctx, func(c *Context) (interface{}, error) { return nil, c.Store.Copy(from, to) })
	return err
}

// DeleteConfig deletes db's content.
func (e *Engine) DeleteConfig(ctx context.Context, db datastore.Name) error {
	_, err := e.Submit(ctx, func(c *Context) (interface{}, error) { return nil, c.Store.Delete(db) })
	return err
}

// CheckRPC gates an arbitrary RPC invocation through NACM, for
// operations (like the plugin-facing RPCs package validate's stage 5
// dispatches) that aren't a datastore read/write.
func (e *Engine) CheckRPC(ctx context.Context, username, module, rpcName string) error {
	_, err := e.Submit(ctx, func(c *Context) (interface{}, error) {
		if c.ACL == nil {
			return nil, nil
		}
		return nil, c.ACL.CheckRPC(username, module, rpcName)
	})
	return err
}

// Subscribe registers a notification subscription and returns a
// channel delivering only the events username is permitted to
// receive, per spec.md §4.H/§4.G; the returned cancel function must be
// called once the subscriber disconnects.
func (e *Engine) Subscribe(ctx context.Context, username string, opts notify.SubscribeOptions) (<-chan notify.Event, func(), error) {
	v, err := e.Submit(ctx, func(c *Context) (interface{}, error) {
		return c.Bus.Subscribe(opts), nil
	})
	if err != nil {
		return nil, nil, err
	}
	sub := v.(*notify.Subscription)

	acl, _ := e.Submit(ctx, func(c *Context) (interface{}, error) { return c.ACL, nil })
	evalACL, _ := acl.(*nacm.Evaluator)

	out := make(chan notify.Event)
	go func() {
		defer close(out)
		for ev := range sub.Events() {
			if evalACL != nil && !evalACL.CheckNotification(username, ev.Module, ev.Name) {
				continue
			}
			out <- ev
		}
	}()
	return out, sub.Close, nil
}
