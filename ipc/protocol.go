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

// Package ipc is the wire contract between cmd/netconfd's one-shot
// subcommands and a running "netconfd serve" engine, carried over the
// Unix-domain socket spec.md §6 calls for. It is deliberately not
// NETCONF, RESTCONF, or gNMI: those front ends are explicitly out of
// this module's scope (package session's Acceptor contract is where
// they would attach), and nothing in the retrieval pack offers a
// ready-made local control protocol, so this is a stream of JSON
// values over the socket, the smallest thing that lets requests and
// responses flow without inventing a framing format.
package ipc

import (
	"encoding/json"
	"io"
)

// Op names one engine operation a Request invokes.
type Op string

// Supported operations.
const (
	OpGetConfig    Op = "get-config"
	OpEditConfig   Op = "edit-config"
	OpValidate     Op = "validate"
	OpLock         Op = "lock"
	OpUnlock       Op = "unlock"
	OpCopyConfig   Op = "copy-config"
	OpDeleteConfig Op = "delete-config"
	OpCheckRPC     Op = "check-rpc"
)

// Request is one engine call, addressed to a single datastore unless
// Op is OpCopyConfig (which uses From/To instead).
type Request struct {
	Op          Op     `json:"op"`
	Username    string `json:"username"`
	Datastore   string `json:"datastore,omitempty"`
	From        string `json:"from,omitempty"`
	To          string `json:"to,omitempty"`
	Holder      string `json:"holder,omitempty"`
	Module      string `json:"module,omitempty"`
	RPCName     string `json:"rpc_name,omitempty"`
	Body        string `json:"body,omitempty"`          // RFC 7951 JSON, edit-config only
	DefaultOp   string `json:"default_op,omitempty"`    // merge|replace|create|delete|remove
	TestOption  string `json:"test_option,omitempty"`   // test-then-set|set|test-only
	ErrorOption string `json:"error_option,omitempty"`  // stop-on-error|continue-on-error|rollback-on-error
}

// Response carries either a result body (RFC 7951 JSON, for
// OpGetConfig) or an error message; exactly one is meaningful per the
// value of Error.
type Response struct {
	Body  string `json:"body,omitempty"`
	Error string `json:"error,omitempty"`
}

// WriteRequest encodes req to w as one JSON value.
func WriteRequest(w io.Writer, req *Request) error {
	return json.NewEncoder(w).Encode(req)
}

// WriteResponse encodes resp to w as one JSON value.
func WriteResponse(w io.Writer, resp *Response) error {
	return json.NewEncoder(w).Encode(resp)
}

// Decoder reads a stream of Request or Response values off a
// connection. A single json.Decoder must be reused across every
// Decode call on a given stream: encoding/json's Decoder may read
// ahead into its own internal buffer past one JSON value's bytes, so
// constructing a fresh Decoder per call (as this package's functions
// used to) can silently drop a pipelined message that was already
// buffered by the discarded Decoder.
type Decoder struct {
	dec *json.Decoder
}

// NewDecoder returns a Decoder reading successive values from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{dec: json.NewDecoder(r)}
}

// ReadRequest decodes the next Request from the stream.
func (d *Decoder) ReadRequest() (*Request, error) {
	var req Request
	if err := d.dec.Decode(&req); err != nil {
		return nil, err
	}
	return &req, nil
}

// ReadResponse decodes the next Response from the stream.
func (d *Decoder) ReadResponse() (*Response, error) {
	var resp Response
	if err := d.dec.Decode(&resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
