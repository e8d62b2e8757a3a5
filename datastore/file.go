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

package datastore

import (
	"bytes"
	"os"
	"path/filepath"
	"time"

	"github.com/nmscore/netconfd/encoding"
	"github.com/nmscore/netconfd/node"
	"github.com/pkg/errors"
)

// filePath returns the backing file for db: "<dir>/<name>_db", following
// the teacher's clixon_backend config-file naming.
func (s *Store) filePath(db Name) string {
	return filepath.Join(s.dir, string(db)+"_db")
}

// loadFile reads db's backing file, if present, into a schemaless tree
// (ModeNONE: a freshly connected store has not necessarily loaded every
// module its data references yet, so binding is deferred to validate).
// A missing file yields an empty <config/> tree, per spec.md §4.E
// "connect()".
func (s *Store) loadFile(db Name) (*node.Tree, time.Time, error) {
	path := s.filePath(db)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return emptyConfigTree(), time.Time{}, nil
	}
	if err != nil {
		return nil, time.Time{}, errors.Wrapf(err, "reading %s", path)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, time.Time{}, errors.Wrapf(err, "stat %s", path)
	}

	tree := node.New("config", "")
	reader := encoding.NewXMLReader(encoding.Options{Mode: encoding.ModeNONE})
	root, err := reader.Decode(bytes.NewReader(data), tree)
	if err != nil {
		return nil, time.Time{}, errors.Wrapf(err, "decoding %s", path)
	}
	tree.SetRoot(root)
	return tree, info.ModTime(), nil
}

// persistLocked writes e's current tree to its backing file via
// write-to-temp + fsync + rename, so a crash mid-write never leaves a
// half-written datastore file behind (spec.md §6 "Datastore files").
// Callers must hold e.mu.
func (s *Store) persistLocked(e *entry) error {
	dir := filepath.Dir(e.file)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "mkdir %s", dir)
	}
	tmp, err := os.CreateTemp(dir, ".datastore-*.tmp")
	if err != nil {
		return errors.Wrapf(err, "creating temp file in %s", dir)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once the rename below succeeds

	writer := encoding.NewXMLWriter(encoding.Options{Pretty: true})
	if err := writer.Encode(tmp, e.root, e.root.Root()); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "encoding %s", e.file)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "fsync %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "closing %s", tmpName)
	}
	if err := os.Rename(tmpName, e.file); err != nil {
		return errors.Wrapf(err, "renaming %s to %s", tmpName, e.file)
	}
	e.dirty = false
	e.modTime = time.Now()
	return nil
}
