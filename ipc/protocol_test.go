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

package ipc

import (
	"bytes"
	"testing"
)

func TestRequestRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	want := &Request{Op: OpEditConfig, Username: "alice", Datastore: "candidate", Body: `{"ex:top":{}}`, DefaultOp: "merge"}
	if err := WriteRequest(&buf, want); err != nil {
		t.Fatalf("WriteRequest: %v", err)
	}
	got, err := NewDecoder(&buf).ReadRequest()
	if err != nil {
		t.Fatalf("ReadRequest: %v", err)
	}
	if got.Op != want.Op || got.Username != want.Username || got.Body != want.Body {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestResponseRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	want := &Response{Body: `{"ex:top":{}}`}
	if err := WriteResponse(&buf, want); err != nil {
		t.Fatalf("WriteResponse: %v", err)
	}
	got, err := NewDecoder(&buf).ReadResponse()
	if err != nil {
		t.Fatalf("ReadResponse: %v", err)
	}
	if got.Body != want.Body || got.Error != "" {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestResponseErrorRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteResponse(&buf, &Response{Error: "access denied"}); err != nil {
		t.Fatalf("WriteResponse: %v", err)
	}
	got, err := NewDecoder(&buf).ReadResponse()
	if err != nil {
		t.Fatalf("ReadResponse: %v", err)
	}
	if got.Error != "access denied" {
		t.Fatalf("got error %q, want %q", got.Error, "access denied")
	}
}

func TestMultipleRequestsOnOneStream(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteRequest(&buf, &Request{Op: OpValidate, Datastore: "candidate"}); err != nil {
		t.Fatalf("WriteRequest 1: %v", err)
	}
	if err := WriteRequest(&buf, &Request{Op: OpLock, Datastore: "candidate", Holder: "s1"}); err != nil {
		t.Fatalf("WriteRequest 2: %v", err)
	}
	dec := NewDecoder(&buf)
	first, err := dec.ReadRequest()
	if err != nil {
		t.Fatalf("ReadRequest 1: %v", err)
	}
	if first.Op != OpValidate {
		t.Fatalf("first.Op = %q, want %q", first.Op, OpValidate)
	}
	second, err := dec.ReadRequest()
	if err != nil {
		t.Fatalf("ReadRequest 2: %v", err)
	}
	if second.Op != OpLock || second.Holder != "s1" {
		t.Fatalf("second = %+v, want Op=%q Holder=%q", second, OpLock, "s1")
	}
}
