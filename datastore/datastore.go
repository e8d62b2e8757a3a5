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

// Package datastore implements the named configuration trees of spec.md
// §4.E: running/candidate/startup/tmp, each with a lock table, an
// in-memory cache coherent with an on-disk file, and the edit-config
// state machine of spec.md §4.E's diagram. Single-writer/multi-reader
// discipline (spec.md §5) is implemented with a per-entry mutex guarding
// mutation and a reference-counted Snapshot for lock-free reads: a
// reader that took a Snapshot before a Swap keeps observing the
// pre-swap tree for its entire lifetime.
package datastore

import (
	"sync"
	"time"

	log "github.com/golang/glog"
	"github.com/nmscore/netconfd/node"
	"github.com/nmscore/netconfd/rpcerr"
	"github.com/nmscore/netconfd/schema"
	"github.com/pkg/errors"
)

// Name identifies one of the four well-known datastores of spec.md §3.
type Name string

// The four named datastores.
const (
	Running   Name = "running"
	Candidate Name = "candidate"
	Startup   Name = "startup"
	Tmp       Name = "tmp"
)

var allNames = []Name{Running, Candidate, Startup, Tmp}

// State is the edit state machine of spec.md §4.E's diagram.
type State uint8

// States of the edit-config state machine.
const (
	StateIdle State = iota
	StateApplying
	StateDirty
	StateValidated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateApplying:
		return "APPLYING"
	case StateDirty:
		return "DIRTY"
	case StateValidated:
		return "VALIDATED"
	default:
		return "UNKNOWN"
	}
}

// DefaultOp is the RFC 6241 §7.2 default-operation taxonomy.
type DefaultOp string

// Default operation values.
const (
	OpMerge   DefaultOp = "merge"
	OpReplace DefaultOp = "replace"
	OpCreate  DefaultOp = "create"
	OpDelete  DefaultOp = "delete"
	OpRemove  DefaultOp = "remove"
)

// TestOption is the RFC 6241 <edit-config> test-option.
type TestOption string

// Test option values.
const (
	TestThenSet TestOption = "test-then-set"
	TestSet     TestOption = "set"
	TestOnly    TestOption = "test-only"
)

// entry is one named datastore's in-memory state.
type entry struct {
	mu      sync.Mutex
	name    Name
	root    *node.Tree
	state   State
	dirty   bool
	holder  string
	modTime time.Time
	file    string
	refs    map[*node.Tree]int
}

// Snapshot is a reference-counted, lock-free handle to a datastore's
// tree at a point in time (spec.md §5). It must be released exactly
// once.
type Snapshot struct {
	Tree *node.Tree
	e    *entry
}

// Release drops this snapshot's reference. Once every Snapshot of a
// pre-swap tree is released, nothing keeps that tree reachable (Go's
// GC, not this package, actually reclaims it); the refcount only tracks
// whether it would be safe to do so, per spec.md §5 "the previous tree
// ... is freed" discipline.
func (s *Snapshot) Release() {
	s.e.mu.Lock()
	defer s.e.mu.Unlock()
	s.e.refs[s.Tree]--
	if s.e.refs[s.Tree] <= 0 {
		delete(s.e.refs, s.Tree)
	}
}

// Store owns every named datastore entry plus the directory their
// backing files live in (spec.md §6 "Datastore files").
type Store struct {
	mu      sync.RWMutex
	entries map[Name]*entry
	dir     string
	cache   bool
	forest  *schema.Forest
}

// New returns a Store backed by files under dir. cache enables serving
// reads from the in-memory tree rather than re-reading the backing
// file (spec.md §4.E "Cache coherence"); forest, if non-nil, is used to
// schema-bind trees loaded from disk.
func New(dir string, cache bool, forest *schema.Forest) *Store {
	return &Store{
		entries: map[Name]*entry{},
		dir:     dir,
		cache:   cache,
		forest:  forest,
	}
}

// Connect loads every named datastore's backing file into memory (an
// absent file yields an empty <config/> tree), per spec.md §4.E
// "connect()/disconnect()".
func (s *Store) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range allNames {
		tree, modTime, err := s.loadFile(name)
		if err != nil {
			return errors.Wrapf(err, "datastore: loading %s", name)
		}
		s.entries[name] = &entry{
			name:    name,
			root:    tree,
			file:    s.filePath(name),
			modTime: modTime,
			refs:    map[*node.Tree]int{},
		}
		log.V(1).Infof("datastore: connected %s from %s", name, s.filePath(name))
	}
	return nil
}

// Disconnect flushes every dirty datastore to disk and releases
// in-memory state.
func (s *Store) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs rpcerr.List
	for name, e := range s.entries {
		e.mu.Lock()
		if e.dirty {
			if err := s.persistLocked(e); err != nil {
				errs = errs.Append(err)
			}
		}
		e.mu.Unlock()
		delete(s.entries, name)
	}
	return errs.AsError()
}

func (s *Store) get(db Name) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[db]
	if !ok {
		return nil, rpcerr.New(rpcerr.TypeApplication, rpcerr.TagOperationFailed, "unknown datastore "+string(db))
	}
	return e, nil
}

// Exists reports whether db is a connected datastore.
func (s *Store) Exists(db Name) bool {
	_, err := s.get(db)
	return err == nil
}

// Lock acquires the exclusive write lock on db for holder, failing with
// lock-denied if another holder already holds it (spec.md §4.E "Lock
// semantics").
func (s *Store) Lock(db Name, holder string) error {
	e, err := s.get(db)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.holder != "" && e.holder != holder {
		return rpcerr.New(rpcerr.TypeProtocol, rpcerr.TagLockDenied,
			"datastore "+string(db)+" is locked by "+e.holder)
	}
	e.holder = holder
	return nil
}

// Unlock releases db's lock, silently no-oping if already unlocked, per
// spec.md §4.E.
func (s *Store) Unlock(db Name, holder string) error {
	e, err := s.get(db)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.holder == "" {
		return nil
	}
	if e.holder != holder {
		return rpcerr.New(rpcerr.TypeProtocol, rpcerr.TagInUse,
			"datastore "+string(db)+" is locked by a different holder")
	}
	e.holder = ""
	return nil
}

// IsLocked reports db's current holder, or ("", false) if unlocked.
func (s *Store) IsLocked(db Name) (string, bool) {
	e, err := s.get(db)
	if err != nil {
		return "", false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.holder, e.holder != ""
}

// ReleaseHolder releases every lock held by holder, called by the
// process supervisor (out of scope here) on holder death per spec.md
// §4.E "On holder death".
func (s *Store) ReleaseHolder(holder string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		e.mu.Lock()
		if e.holder == holder {
			e.holder = ""
		}
		e.mu.Unlock()
	}
}

// Snapshot returns a reference-counted read handle on db's current tree
// without blocking any concurrent writer (spec.md §5).
func (s *Store) Snapshot(db Name) (*Snapshot, error) {
	e, err := s.get(db)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.refs[e.root]++
	return &Snapshot{Tree: e.root, e: e}, nil
}

// Swap atomically replaces db's tree with newTree (spec.md §4.F stage
// 6). tmp never participates in commit (spec.md §9's "Open question"
// decision recorded in DESIGN.md): Swap rejects it with
// operation-not-supported.
func (s *Store) Swap(db Name, newTree *node.Tree) error {
	if db == Tmp {
		return rpcerr.New(rpcerr.TypeApplication, rpcerr.TagOperationNotSupported,
			"tmp is a private scratch datastore and does not participate in commit")
	}
	e, err := s.get(db)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.root = newTree
	e.dirty = true
	e.modTime = time.Now()
	e.state = StateIdle
	return nil
}

// Copy replaces to's tree with a deep clone of from's, invalidating any
// cache to's reads were served from (spec.md §4.E "Cache coherence").
func (s *Store) Copy(from, to Name) error {
	fe, err := s.get(from)
	if err != nil {
		return err
	}
	te, err := s.get(to)
	if err != nil {
		return err
	}
	fe.mu.Lock()
	cloned := fe.root.CloneTree()
	fe.mu.Unlock()

	te.mu.Lock()
	defer te.mu.Unlock()
	te.root = cloned
	te.dirty = true
	te.modTime = time.Now()
	return nil
}

// Delete clears db's tree back to an empty <config/>, invalidating its
// cache.
func (s *Store) Delete(db Name) error {
	e, err := s.get(db)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.root = emptyConfigTree()
	e.dirty = true
	e.modTime = time.Now()
	return nil
}

// State returns db's current edit-state-machine state.
func (s *Store) State(db Name) State {
	e, err := s.get(db)
	if err != nil {
		return StateIdle
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Persist writes db's current tree to its backing file via
// write-to-temp + fsync + rename, unconditionally (Disconnect only does
// this for dirty entries; Persist is exposed for explicit <commit>-like
// flows that must durably persist before replying).
func (s *Store) Persist(db Name) error {
	e, err := s.get(db)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return s.persistLocked(e)
}

func emptyConfigTree() *node.Tree {
	return node.New("config", "")
}
