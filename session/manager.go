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
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/nmscore/netconfd/transport"
)

// Option configures a Manager built by NewManager.
type Option func(*manager)

// WithAcceptors registers the given Acceptors, tried in order when a
// new transport is offered to Accept.
func WithAcceptors(acc ...Acceptor) Option {
	return func(m *manager) { m.acc = append(m.acc, acc...) }
}

// WithIDSource overrides the default incrementing session ID
// generator.
func WithIDSource(gen IDGenerator) Option {
	return func(m *manager) { m.idgen = gen }
}

// NewManager returns a Manager configured with the given options.
func NewManager(opts ...Option) Manager {
	m := &manager{sessions: map[ID]Server{}, idgen: &incrementingIDs{}}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

const maxIDAttempts = 16

type manager struct {
	mu       sync.Mutex
	acc      []Acceptor
	sessions map[ID]Server
	idgen    IDGenerator
}

func (m *manager) Accept(ctx context.Context, t transport.ServerTransport) (Server, error) {
	var acceptor Acceptor
	for _, a := range m.acc {
		if a.Supported(t) {
			acceptor = a
			break
		}
	}
	if acceptor == nil {
		return nil, errors.Errorf("no registered acceptor for transport %T", t)
	}

	var id ID
	var server Server
	err := func() error {
		m.mu.Lock()
		defer m.mu.Unlock()

		for i := 0; i < maxIDAttempts; i++ {
			if candidate := m.idgen.NextID(); candidate != 0 {
				if _, taken := m.sessions[candidate]; !taken {
					id = candidate
					break
				}
			}
		}
		if id == 0 {
			return errors.Errorf("failed to allocate a session ID after %d attempts", maxIDAttempts)
		}

		var err error
		server, err = acceptor.Accept(ctx, t, id)
		if err != nil {
			return errors.Wrap(err, "acceptor rejected transport")
		}
		if server.ID() != id {
			return errors.Errorf("acceptor returned session ID %v, wanted %v", server.ID(), id)
		}
		m.sessions[id] = server
		return nil
	}()
	if err != nil {
		return nil, err
	}

	go func() {
		<-server.Wait()
		m.mu.Lock()
		delete(m.sessions, id)
		m.mu.Unlock()
	}()

	return server, nil
}

func (m *manager) Terminate(id ID) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return errors.Errorf("session %v does not exist", id)
	}
	s.Release()
	return nil
}

func (m *manager) Lookup(id ID) (Server, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

func (m *manager) Sessions() []ID {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]ID, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}

var _ Manager = (*manager)(nil)
