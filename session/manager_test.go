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

package session

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/nmscore/netconfd/transport"
)

type fakeTransport struct {
	bytes.Buffer
	username string
}

func (f *fakeTransport) Close() error        { return nil }
func (f *fakeTransport) CloseWrite() error   { return nil }
func (f *fakeTransport) Error() io.ReadWriter { return nil }
func (f *fakeTransport) Username() string    { return f.username }

var _ transport.ServerTransport = (*fakeTransport)(nil)

type fakeSession struct {
	id   ID
	user string
	done chan struct{}
}

func (s *fakeSession) ID() ID                         { return s.id }
func (s *fakeSession) Type() Type                     { return TypeServer }
func (s *fakeSession) Transport() transport.Transport { return nil }
func (s *fakeSession) Username() string               { return s.user }
func (s *fakeSession) Release()                       { close(s.done) }
func (s *fakeSession) Wait() <-chan struct{}          { return s.done }

type fakeAcceptor struct{}

func (fakeAcceptor) Supported(t transport.ServerTransport) bool { return true }

func (fakeAcceptor) Accept(ctx context.Context, t transport.ServerTransport, id ID) (Server, error) {
	return &fakeSession{id: id, user: t.Username(), done: make(chan struct{})}, nil
}

func TestAcceptTracksAndTerminates(t *testing.T) {
	mgr := NewManager(WithAcceptors(fakeAcceptor{}))

	s, err := mgr.Accept(context.Background(), &fakeTransport{username: "alice"})
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if s.Username() != "alice" {
		t.Fatalf("Username() = %q, want alice", s.Username())
	}

	if _, ok := mgr.Lookup(s.ID()); !ok {
		t.Fatal("expected session to be tracked after Accept")
	}

	if err := mgr.Terminate(s.ID()); err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	<-s.(*fakeSession).Wait()

	// Terminate's Release happens synchronously but untracking happens
	// in a background goroutine watching Wait(); poll briefly.
	for i := 0; i < 1000; i++ {
		if _, ok := mgr.Lookup(s.ID()); !ok {
			return
		}
	}
	t.Fatal("expected session to be untracked after Release")
}

func TestTerminateUnknownSession(t *testing.T) {
	mgr := NewManager(WithAcceptors(fakeAcceptor{}))
	if err := mgr.Terminate(ID(999)); err == nil {
		t.Fatal("expected an error terminating an untracked session")
	}
}

func TestAcceptNoSupportedAcceptor(t *testing.T) {
	mgr := NewManager()
	_, err := mgr.Accept(context.Background(), &fakeTransport{})
	if err == nil {
		t.Fatal("expected an error with no registered acceptors")
	}
}

func TestSessionIDsNeverZero(t *testing.T) {
	gen := &incrementingIDs{last: ^ID(0)} // one NextID call away from wrapping to 0
	if id := gen.NextID(); id == 0 {
		t.Fatal("NextID must never return the reserved zero ID")
	}
}
