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

// Package session implements the front-end-agnostic session contract
// of spec.md §6: a Manager tracks every live server session by ID,
// dispatching new connections to whichever registered Acceptor claims
// the transport. The NETCONF-framing, RESTCONF-HTTP, and CLI
// front-ends each implement Acceptor for their own transport.ServerTransport
// but live outside this module; only the registration and lifecycle
// contract lives here. Grounded on andaru-opr8/session's
// Manager/Acceptor/Server split, generalized from a single NETCONF
// transport to the three front-ends spec.md §6 names.
package session

import (
	"context"
	"fmt"

	"github.com/nmscore/netconfd/transport"
)

// ID identifies a live session. The zero value never denotes a valid
// session.
type ID uint32

// IDGenerator produces an endless, non-repeating sequence of non-zero
// session IDs. Increasing, decreasing, or random sequences are all
// legal.
type IDGenerator interface {
	NextID() ID
}

// incrementingIDs is the default IDGenerator: session IDs count up
// from 1, wrapping past the reserved zero value.
type incrementingIDs struct{ last ID }

func (g *incrementingIDs) NextID() ID {
	g.last++
	if g.last == 0 {
		g.last++
	}
	return g.last
}

// Type distinguishes a client session from a server session.
type Type int

// Session types.
const (
	TypeClient Type = 1 + iota
	TypeServer
)

func (t Type) String() string {
	switch t {
	case TypeClient:
		return "client"
	case TypeServer:
		return "server"
	default:
		return fmt.Sprintf("session.Type(%d)", int(t))
	}
}

// Session is a client's or server's view of one NETCONF/RESTCONF/CLI
// session.
type Session interface {
	ID() ID
	Type() Type
	Transport() transport.Transport
	// Username is the authenticated identity package nacm checks
	// access against.
	Username() string

	// Release ends the session and frees any resources it holds. A
	// front-end calls this when its underlying transport session ends
	// (connection close, <kill-session>, graceful client close); no
	// further sends on the session's transport are valid afterward.
	Release()
}

// Server is a session as seen by the manager that owns it: a Session
// plus a completion signal.
type Server interface {
	Session

	// Wait returns a channel closed once Release has been called.
	Wait() <-chan struct{}
}

// Acceptor is registered with a Manager to service one transport kind.
type Acceptor interface {
	// Supported reports whether this Acceptor handles the given
	// transport's concrete type.
	Supported(transport.ServerTransport) bool

	// Accept starts a new server session for the transport under the
	// given ID, returning the running session or an error if it could
	// not be started.
	Accept(ctx context.Context, t transport.ServerTransport, id ID) (Server, error)
}

// Manager tracks every live server session and dispatches new
// transports to the Acceptor that supports them.
type Manager interface {
	// Accept finds a registered Acceptor supporting t, reserves a
	// fresh session ID, and starts and tracks the resulting session.
	Accept(ctx context.Context, t transport.ServerTransport) (Server, error)

	// Terminate ends the named session immediately, returning an error
	// if no such session is tracked.
	Terminate(id ID) error

	// Lookup returns the tracked session with the given ID, if any.
	Lookup(id ID) (Server, bool)

	// Sessions returns the IDs of every currently tracked session.
	Sessions() []ID
}
