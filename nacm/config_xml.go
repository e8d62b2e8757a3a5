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
	"encoding/xml"
	"io"
	"os"
)

// xmlDoc mirrors the RFC 8341 ietf-netconf-acm <nacm> container's
// shape closely enough for stdlib encoding/xml's struct-tag decoding;
// spec.md §6's "external-file mode" loads exactly this document.
type xmlDoc struct {
	XMLName      xml.Name    `xml:"nacm"`
	EnableNacm   bool        `xml:"enable-nacm"`
	ReadDefault  string      `xml:"read-default"`
	WriteDefault string      `xml:"write-default"`
	ExecDefault  string      `xml:"exec-default"`
	RecoveryUser string      `xml:"recovery-user"`
	Groups       []xmlGroup  `xml:"groups>group"`
	RuleLists    []xmlRLGrp  `xml:"rule-list"`
}

type xmlGroup struct {
	Name      string   `xml:"name"`
	UserNames []string `xml:"user-name"`
}

type xmlRLGrp struct {
	Name   string    `xml:"name"`
	Groups []string  `xml:"group"`
	Rules  []xmlRule `xml:"rule"`
}

type xmlRule struct {
	Name             string `xml:"name"`
	ModuleName       string `xml:"module-name"`
	RPCName          string `xml:"rpc-name"`
	NotificationName string `xml:"notification-name"`
	Path             string `xml:"path"`
	AccessOperations string `xml:"access-operations"`
	Action           string `xml:"action"`
}

func actionFromString(s string) Action {
	if s == "permit" {
		return ActionPermit
	}
	return ActionDeny
}

func accessFromString(s string) AccessOp {
	if s == "" || s == "*" {
		return 0
	}
	var op AccessOp
	for _, tok := range splitComma(s) {
		switch tok {
		case "create":
			op |= OpCreate
		case "read":
			op |= OpRead
		case "update":
			op |= OpUpdate
		case "delete":
			op |= OpDelete
		case "exec":
			op |= OpExec
		}
	}
	return op
}

func splitComma(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ',' || s[i] == ' ' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

// LoadConfig parses an external RFC 8341 NACM document from r into a
// Config ready for New.
func LoadConfig(r io.Reader) (Config, error) {
	var doc xmlDoc
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return Config{}, err
	}
	cfg := Config{
		Enabled:      doc.EnableNacm,
		ReadDefault:  actionFromString(doc.ReadDefault),
		WriteDefault: actionFromString(doc.WriteDefault),
		ExecDefault:  actionFromString(doc.ExecDefault),
		RecoveryUser: doc.RecoveryUser,
		Groups:       map[string][]string{},
	}
	for _, g := range doc.Groups {
		cfg.Groups[g.Name] = append(cfg.Groups[g.Name], g.UserNames...)
	}
	for _, rl := range doc.RuleLists {
		out := RuleList{Name: rl.Name, Groups: rl.Groups}
		for _, r := range rl.Rules {
			out.Rules = append(out.Rules, Rule{
				ModuleGlob:       r.ModuleName,
				RPCName:          r.RPCName,
				NotificationName: r.NotificationName,
				Path:             r.Path,
				Access:           accessFromString(r.AccessOperations),
				Action:           actionFromString(r.Action),
			})
		}
		cfg.RuleLists = append(cfg.RuleLists, out)
	}
	return cfg, nil
}

// LoadConfigFile is LoadConfig reading from the file at path.
func LoadConfigFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()
	return LoadConfig(f)
}
