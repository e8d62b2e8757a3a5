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

package nacm

import (
	"testing"

	"github.com/nmscore/netconfd/rpcerr"
)

// TestDenyWrite is spec.md §8 scenario 3: user in group "guest", rule
// "deny *" on "*" — a write is rejected with access-denied.
func TestDenyWrite(t *testing.T) {
	cfg := Config{
		Enabled:      true,
		WriteDefault: ActionPermit,
		Groups:       map[string][]string{"guest": {"alice"}},
		RuleLists: []RuleList{
			{
				Name:   "guest-acl",
				Groups: []string{"guest"},
				Rules: []Rule{
					{ModuleGlob: "*", Access: OpCreate | OpUpdate | OpDelete, Action: ActionDeny},
				},
			},
		},
	}
	e := New(cfg)
	err := e.CheckData("alice", "nacm-example", "/nacm-example:x", OpUpdate)
	if err == nil {
		t.Fatal("expected access-denied")
	}
	rerr, ok := err.(*rpcerr.Error)
	if !ok || rerr.ErrTag != rpcerr.TagAccessDenied || rerr.ErrType != rpcerr.TypeApplication {
		t.Fatalf("got %v, want application/access-denied", err)
	}
}

// TestFilterReadScenario is spec.md §8 scenario 4: user in group
// "limited" with a read permit on one data path only — a get returns the
// tree minus nodes denied by read-default, silently pruned.
func TestFilterReadScenario(t *testing.T) {
	cfg := Config{
		Enabled:     true,
		ReadDefault: ActionDeny,
		Groups:      map[string][]string{"limited": {"bob"}},
		RuleLists: []RuleList{
			{
				Name:   "limited-acl",
				Groups: []string{"limited"},
				Rules: []Rule{
					{ModuleGlob: "ex", Path: "/ex:top/ex:public", Access: OpRead, Action: ActionPermit},
				},
			},
		},
	}
	e := New(cfg)

	if !e.readPermitted("bob", "ex", "/ex:top/ex:public") {
		t.Fatal("expected /ex:top/ex:public to be readable")
	}
	if !e.readPermitted("bob", "ex", "/ex:top/ex:public/ex:leaf") {
		t.Fatal("expected descendants of a permitted path to be readable")
	}
	if e.readPermitted("bob", "ex", "/ex:top/ex:secret") {
		t.Fatal("expected /ex:top/ex:secret to fall through to read-default=deny")
	}
}

// TestFirstMatchWins verifies spec.md §8's universal invariant: within
// one evaluation, reordering independent (disjoint-match) rules must
// not change the outcome, but a rule earlier in a list that does match
// always wins over a later one that would also match.
func TestFirstMatchWins(t *testing.T) {
	makeCfg := func(rules []Rule) Config {
		return Config{
			Enabled:      true,
			WriteDefault: ActionDeny,
			Groups:       map[string][]string{"op": {"carol"}},
			RuleLists: []RuleList{
				{Name: "ops", Groups: []string{"op"}, Rules: rules},
			},
		}
	}

	permitFirst := New(makeCfg([]Rule{
		{ModuleGlob: "ex", Access: OpUpdate, Action: ActionPermit},
		{ModuleGlob: "ex", Access: OpUpdate, Action: ActionDeny},
	}))
	if err := permitFirst.CheckData("carol", "ex", "/ex:top", OpUpdate); err != nil {
		t.Fatalf("expected the earlier permit rule to win, got %v", err)
	}

	denyFirst := New(makeCfg([]Rule{
		{ModuleGlob: "ex", Access: OpUpdate, Action: ActionDeny},
		{ModuleGlob: "ex", Access: OpUpdate, Action: ActionPermit},
	}))
	if err := denyFirst.CheckData("carol", "ex", "/ex:top", OpUpdate); err == nil {
		t.Fatal("expected the earlier deny rule to win")
	}

	// Reordering two rules with disjoint match sets (different modules)
	// must not change either outcome.
	disjointA := New(makeCfg([]Rule{
		{ModuleGlob: "other", Access: OpUpdate, Action: ActionDeny},
		{ModuleGlob: "ex", Access: OpUpdate, Action: ActionPermit},
	}))
	disjointB := New(makeCfg([]Rule{
		{ModuleGlob: "ex", Access: OpUpdate, Action: ActionPermit},
		{ModuleGlob: "other", Access: OpUpdate, Action: ActionDeny},
	}))
	if err := disjointA.CheckData("carol", "ex", "/ex:top", OpUpdate); err != nil {
		t.Fatalf("disjointA: %v", err)
	}
	if err := disjointB.CheckData("carol", "ex", "/ex:top", OpUpdate); err != nil {
		t.Fatalf("disjointB: %v", err)
	}
}

func TestEnforcementDisabledPermitsEverything(t *testing.T) {
	e := New(Config{Enabled: false, WriteDefault: ActionDeny})
	if err := e.CheckData("anyone", "ex", "/ex:top", OpUpdate); err != nil {
		t.Fatalf("expected NACM disabled to permit unconditionally, got %v", err)
	}
}

func TestRecoveryUserBypassesNACM(t *testing.T) {
	e := New(Config{
		Enabled:      true,
		WriteDefault: ActionDeny,
		RecoveryUser: "root",
	})
	if err := e.CheckData("root", "ex", "/ex:top", OpUpdate); err != nil {
		t.Fatalf("expected recovery user to bypass NACM, got %v", err)
	}
}

func TestCloseSessionEmergencyBypass(t *testing.T) {
	e := New(Config{Enabled: true, ExecDefault: ActionDeny})
	if err := e.CheckRPC("anyone", "ietf-netconf", "close-session"); err != nil {
		t.Fatalf("expected close-session to always be permitted, got %v", err)
	}
}
