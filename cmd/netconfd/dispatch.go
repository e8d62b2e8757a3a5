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
	"encoding/json"
	"strings"

	"github.com/nmscore/netconfd/datastore"
	"github.com/nmscore/netconfd/encoding"
	"github.com/nmscore/netconfd/ipc"
	"github.com/nmscore/netconfd/node"
	"github.com/nmscore/netconfd/rpcerr"
	"github.com/nmscore/netconfd/schema"
)

// dispatch runs one ipc.Request against the engine and reports the
// outcome as an ipc.Response; it never panics a connection down, every
// engine error is surfaced as Response.Error instead.
func (s *dispatchServer) dispatch(ctx context.Context, req *ipc.Request) *ipc.Response {
	switch req.Op {
	case ipc.OpGetConfig:
		return s.doGetConfig(ctx, req)
	case ipc.OpEditConfig:
		return s.doEditConfig(ctx, req)
	case ipc.OpValidate:
		if err := s.eng.Validate(ctx, datastore.Name(req.Datastore), errOption(req)); err != nil {
			return errResponse(err)
		}
		return &ipc.Response{}
	case ipc.OpLock:
		if err := s.eng.Lock(ctx, datastore.Name(req.Datastore), req.Holder); err != nil {
			return errResponse(err)
		}
		return &ipc.Response{}
	case ipc.OpUnlock:
		if err := s.eng.Unlock(ctx, datastore.Name(req.Datastore), req.Holder); err != nil {
			return errResponse(err)
		}
		return &ipc.Response{}
	case ipc.OpCopyConfig:
		if err := s.eng.CopyConfig(ctx, datastore.Name(req.From), datastore.Name(req.To)); err != nil {
			return errResponse(err)
		}
		return &ipc.Response{}
	case ipc.OpDeleteConfig:
		if err := s.eng.DeleteConfig(ctx, datastore.Name(req.Datastore)); err != nil {
			return errResponse(err)
		}
		return &ipc.Response{}
	case ipc.OpCheckRPC:
		if err := s.eng.CheckRPC(ctx, req.Username, req.Module, req.RPCName); err != nil {
			return errResponse(err)
		}
		return &ipc.Response{}
	default:
		return &ipc.Response{Error: "unknown operation " + string(req.Op)}
	}
}

func (s *dispatchServer) doGetConfig(ctx context.Context, req *ipc.Request) *ipc.Response {
	view, err := s.eng.GetConfig(ctx, req.Username, datastore.Name(req.Datastore))
	if err != nil {
		return errResponse(err)
	}
	body, err := encodeConfigJSON(view, s.ctx.Forest)
	if err != nil {
		return errResponse(err)
	}
	return &ipc.Response{Body: body}
}

// encodeConfigJSON renders every top-level child of view's synthetic
// root (the root itself is an arena bookkeeping node, never real
// config, per the node package's Tree shape) as members of a single
// RFC 7951 JSON object.
func encodeConfigJSON(view *node.Tree, forest *schema.Forest) (string, error) {
	jw := encoding.NewJSONWriter(encoding.Options{Forest: forest})
	var members []string
	for _, c := range view.Children(view.Root()) {
		var buf bytes.Buffer
		if err := jw.Encode(&buf, view, c); err != nil {
			return "", err
		}
		m := strings.TrimSuffix(strings.TrimPrefix(buf.String(), "{"), "}")
		members = append(members, m)
	}
	raw := "{" + strings.Join(members, ",") + "}"
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, []byte(raw), "", "  "); err != nil {
		return raw, nil
	}
	return pretty.String(), nil
}

func (s *dispatchServer) doEditConfig(ctx context.Context, req *ipc.Request) *ipc.Response {
	patch := node.New("config", "")
	jr := encoding.NewJSONReader(encoding.Options{Mode: encoding.ModeBIND, Forest: s.ctx.Forest})
	idx, err := jr.Decode(strings.NewReader(req.Body), patch)
	if err != nil {
		return errResponse(err)
	}
	if err := patch.AppendChild(patch.Root(), idx); err != nil {
		return errResponse(err)
	}

	defaultOp := datastore.OpMerge
	if req.DefaultOp != "" {
		defaultOp = datastore.DefaultOp(req.DefaultOp)
	}
	testOpt := datastore.TestThenSet
	if req.TestOption != "" {
		testOpt = datastore.TestOption(req.TestOption)
	}
	errOpt := errOption(req)

	if err := s.eng.EditConfig(ctx, req.Username, datastore.Name(req.Datastore), patch, defaultOp, testOpt, errOpt); err != nil {
		return errResponse(err)
	}
	return &ipc.Response{}
}

// errOption maps req's wire-level error-option string onto rpcerr's
// typed ErrorOption, defaulting to stop-on-error (RFC 6241 §7.2's
// default for <edit-config>) when the caller didn't set one.
func errOption(req *ipc.Request) rpcerr.ErrorOption {
	switch rpcerr.ErrorOption(req.ErrorOption) {
	case rpcerr.ContinueOnError:
		return rpcerr.ContinueOnError
	case rpcerr.RollbackOnError:
		return rpcerr.RollbackOnError
	default:
		return rpcerr.StopOnError
	}
}

func errResponse(err error) *ipc.Response {
	return &ipc.Response{Error: err.Error()}
}
