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

package config

import (
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

const validDoc = `<netconfd>
  <yang-dir>/etc/netconfd/yang</yang-dir>
  <yang-dir>/usr/share/yang</yang-dir>
  <yang-main-file>example.yang</yang-main-file>
  <datastore-dir>/var/lib/netconfd</datastore-dir>
  <socket-path>/run/netconfd.sock</socket-path>
  <nacm-mode>inline</nacm-mode>
  <cache-enable>true</cache-enable>
</netconfd>`

func TestLoadValidDocument(t *testing.T) {
	cfg, err := Load(strings.NewReader(validDoc))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.YANGDirs) != 2 {
		t.Fatalf("got %d yang-dirs, want 2", len(cfg.YANGDirs))
	}
	if cfg.YANGMainFile != "example.yang" {
		t.Fatalf("YANGMainFile = %q", cfg.YANGMainFile)
	}
	if cfg.NACMMode != NACMModeInline {
		t.Fatalf("NACMMode = %q, want inline", cfg.NACMMode)
	}
	if !cfg.CacheEnable {
		t.Fatal("expected CacheEnable true")
	}
}

func TestLoadRejectsUnknownElement(t *testing.T) {
	doc := `<netconfd><bogus-option>x</bogus-option></netconfd>`
	if _, err := Load(strings.NewReader(doc)); err == nil {
		t.Fatal("expected an error for an unknown configuration element")
	}
}

func TestLoadRejectsBadNACMMode(t *testing.T) {
	doc := `<netconfd><nacm-mode>whatever</nacm-mode></netconfd>`
	if _, err := Load(strings.NewReader(doc)); err == nil {
		t.Fatal("expected an error for an invalid nacm-mode")
	}
}

func TestLoadRejectsWrongRoot(t *testing.T) {
	doc := `<config><socket-path>/tmp/x</socket-path></config>`
	if _, err := Load(strings.NewReader(doc)); err == nil {
		t.Fatal("expected an error for a non-<netconfd> root element")
	}
}

func TestOverlayFlagTakesPrecedence(t *testing.T) {
	cfg, err := Load(strings.NewReader(validDoc))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("socket-path", "/run/netconfd.sock", "")
	if err := fs.Set("socket-path", "/tmp/override.sock"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if err := Overlay(cfg, fs); err != nil {
		t.Fatalf("Overlay: %v", err)
	}
	if cfg.SocketPath != "/tmp/override.sock" {
		t.Fatalf("SocketPath = %q, want /tmp/override.sock", cfg.SocketPath)
	}
}

func TestOverlayPreservesFileValueWhenUnset(t *testing.T) {
	cfg, err := Load(strings.NewReader(validDoc))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := Overlay(cfg, nil); err != nil {
		t.Fatalf("Overlay: %v", err)
	}
	if cfg.DatastoreDir != "/var/lib/netconfd" {
		t.Fatalf("DatastoreDir = %q, want unchanged file value", cfg.DatastoreDir)
	}
}
