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

// Package validate implements the validate/commit pipeline of spec.md
// §4.F: six ordered stages that take a candidate tree and a reference
// (normally "running") and either produce a validated tree ready for
// atomic swap, or a structured failure naming the offending instance
// path. Stage 2/3's per-type and leafref logic is grounded on
// ytypes' int_type.go/string_type.go/leafref.go validators (the
// teacher's own per-Go-struct-field YANG validation), generalized here
// from a reflected Go struct field to an arena node.Tree node.
package validate

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	log "github.com/golang/glog"
	"github.com/nmscore/netconfd/node"
	"github.com/nmscore/netconfd/rpcerr"
	"github.com/nmscore/netconfd/schema"
	"github.com/nmscore/netconfd/xpath"
	"github.com/pkg/errors"
)

// Pipeline runs the validate/commit stages of spec.md §4.F against a
// schema Forest and a registered set of plugin capability records (stage
// 5). The zero Pipeline is not usable; use New.
type Pipeline struct {
	Forest  *schema.Forest
	plugins []*Plugin
}

// New returns a Pipeline bound to forest, with no plugins registered.
func New(forest *schema.Forest) *Pipeline {
	return &Pipeline{Forest: forest}
}

// Register adds p to the ordered list of plugins dispatched during stage
// 5 (spec.md §4.F "Plugin transaction"). Plugins are notified in
// registration order on success, and in reverse order on abort.
func (p *Pipeline) Register(pl *Plugin) {
	p.plugins = append(p.plugins, pl)
}

// Validate runs stages 1-4 of spec.md §4.F against candidate, under
// errOpt's batching discipline (spec.md §7): StopOnError returns at the
// first stage that fails; ContinueOnError (the default used by the
// NETCONF <validate> RPC) runs every stage regardless and accumulates
// every failure, matching "under continue-on-error, errors are
// accumulated and returned together". Stage 5 (plugin transaction) and
// stage 6 (atomic swap) are not run here: they belong to Commit, since
// they have side effects validate-only callers must not trigger.
func (p *Pipeline) Validate(candidate *node.Tree, errOpt rpcerr.ErrorOption) rpcerr.List {
	var errs rpcerr.List

	if e := p.structural(candidate); len(e) > 0 {
		errs = append(errs, e...)
		if errOpt == rpcerr.StopOnError {
			return errs
		}
	}
	if e := p.types(candidate); len(e) > 0 {
		errs = append(errs, e...)
		if errOpt == rpcerr.StopOnError {
			return errs
		}
	}
	if e := p.references(candidate); len(e) > 0 {
		errs = append(errs, e...)
		if errOpt == rpcerr.StopOnError {
			return errs
		}
	}
	if e := p.whenMust(candidate); len(e) > 0 {
		errs = append(errs, e...)
	}
	return errs
}

// Commit runs the full six-stage pipeline: Validate (stages 1-4), then
// the plugin transaction (stage 5), then, on success, returns candidate
// ready for the caller (typically package datastore, via engine) to
// perform the atomic swap of stage 6. Rollback on any failure is the
// caller's responsibility over the reference tree, per spec.md §4.F
// "Rollback": validate never mutates candidate or reference itself.
func (p *Pipeline) Commit(ctx context.Context, candidate, reference *node.Tree) (*node.Tree, error) {
	if errs := p.Validate(candidate, rpcerr.StopOnError); len(errs) > 0 {
		return nil, errs.AsError()
	}
	tx := &Transaction{Candidate: candidate, Reference: reference}
	if err := p.runTransaction(ctx, tx); err != nil {
		return nil, err
	}
	return candidate, nil
}

// ---- stage 1: structural ----

func (p *Pipeline) structural(t *node.Tree) rpcerr.List {
	var errs rpcerr.List
	keysSeen := map[node.Index]map[string]bool{}
	_ = t.Walk(t.Root(), func(tr *node.Tree, i node.Index) error {
		if tr.Schema(i) == nil {
			errs = errs.Append(rpcerr.New(rpcerr.TypeApplication, rpcerr.TagMissingElement,
				"node has no schema binding").AtPath(instancePath(tr, i)))
			return nil
		}
		if tr.Kind(i) == node.KindListEntry {
			parent := tr.Parent(i)
			set := keysSeen[parent]
			if set == nil {
				set = map[string]bool{}
				keysSeen[parent] = set
			}
			ck := tr.Name(i) + "\x00" + strings.Join(tr.KeyValues(i), "\x00")
			if set[ck] {
				errs = errs.Append(rpcerr.New(rpcerr.TypeApplication, rpcerr.TagDataExists,
					"duplicate list entry key").AtPath(instancePath(tr, i)))
			}
			set[ck] = true
		}
		return nil
	})
	return errs
}

// ---- stage 2: type ----

func (p *Pipeline) types(t *node.Tree) rpcerr.List {
	var errs rpcerr.List
	_ = t.Walk(t.Root(), func(tr *node.Tree, i node.Index) error {
		if tr.Kind(i) != node.KindLeaf && tr.Kind(i) != node.KindLeafListEntry {
			return nil
		}
		s := tr.Schema(i)
		if s == nil {
			return nil
		}
		sn, ok := s.(*schema.Node)
		if !ok || sn.Entry == nil || sn.Entry.Type == nil {
			return nil
		}
		prim, err := schema.ResolveType(sn.Entry)
		if err != nil {
			return nil
		}
		if err := checkPrimitive(p.Forest, tr.Body(i), prim); err != nil {
			errs = errs.Append(rpcerr.New(rpcerr.TypeApplication, rpcerr.TagInvalidValue,
				err.Error()).AtPath(instancePath(tr, i)))
		}
		return nil
	})
	return errs
}

// checkPrimitive validates body against p, trying union members in
// declaration order (spec.md §4.F stage 2 "union types use first-match
// semantics"). Range/length facet *bounds* are a known gap: goyang's
// YangType.Range/Length values are not yet threaded into
// schema.Primitive.Min/Max (see schema/types.go), so only parseability,
// pattern and enum-membership facets are enforced here.
func checkPrimitive(f *schema.Forest, body string, p *schema.Primitive) error {
	switch p.Kind {
	case schema.KindInt:
		if _, err := strconv.ParseInt(strings.TrimSpace(body), 10, 64); err != nil {
			return errors.New("not a valid integer: " + body)
		}
	case schema.KindUint:
		if _, err := strconv.ParseUint(strings.TrimSpace(body), 10, 64); err != nil {
			return errors.New("not a valid unsigned integer: " + body)
		}
	case schema.KindDecimal64:
		if _, err := strconv.ParseFloat(strings.TrimSpace(body), 64); err != nil {
			return errors.New("not a valid decimal64: " + body)
		}
	case schema.KindBool:
		if body != "true" && body != "false" {
			return errors.New("not a valid boolean: " + body)
		}
	case schema.KindEnum:
		if _, ok := p.Enums[body]; !ok {
			return errors.New("not a member of the enumeration: " + body)
		}
	case schema.KindString, schema.KindBinary:
		for _, pat := range p.Patterns {
			ok, err := regexp.MatchString(anchorPattern(pat), body)
			if err != nil {
				continue
			}
			if !ok {
				return errors.New("value does not match pattern " + pat)
			}
		}
	case schema.KindBits:
		// A space-separated set of declared bit names; any non-empty
		// token list is structurally acceptable without the full bit
		// position table, which schema.Primitive does not carry.
	case schema.KindIdentityref:
		if f != nil && p.IdentityBase != "" {
			if !f.IdentityDerivedFrom(localName(body), p.IdentityBase) {
				return errors.New("identity " + body + " is not derived from " + p.IdentityBase)
			}
		}
	case schema.KindLeafref, schema.KindInstanceIdentifier, schema.KindEmpty:
		// resolved in stage 3 (reference); any string parses here.
	case schema.KindUnion:
		var lastErr error
		for _, member := range p.Union {
			if err := checkPrimitive(f, body, member); err == nil {
				return nil
			} else {
				lastErr = err
			}
		}
		if lastErr != nil {
			return errors.New("value matches no union member: " + lastErr.Error())
		}
	}
	return nil
}

func anchorPattern(pat string) string {
	if strings.HasPrefix(pat, "^") {
		return pat
	}
	return "^(?:" + pat + ")$"
}

func localName(qualified string) string {
	if i := strings.IndexByte(qualified, ':'); i >= 0 {
		return qualified[i+1:]
	}
	return qualified
}

// ---- stage 3: reference ----

func (p *Pipeline) references(t *node.Tree) rpcerr.List {
	var errs rpcerr.List
	_ = t.Walk(t.Root(), func(tr *node.Tree, i node.Index) error {
		if tr.Kind(i) != node.KindLeaf && tr.Kind(i) != node.KindLeafListEntry {
			return nil
		}
		s := tr.Schema(i)
		if s == nil {
			return nil
		}
		sn, ok := s.(*schema.Node)
		if !ok || sn.Entry == nil || sn.Entry.Type == nil {
			return nil
		}
		switch prim, _ := schema.ResolveType(sn.Entry); {
		case prim != nil && prim.Kind == schema.KindLeafref:
			if err := p.checkLeafref(t, i, sn); err != nil {
				errs = errs.Append(err)
			}
		case prim != nil && prim.Kind == schema.KindInstanceIdentifier:
			if err := p.checkInstanceIdentifier(t, i, sn); err != nil {
				errs = errs.Append(err)
			}
		}
		return nil
	})
	return errs
}

func (p *Pipeline) checkLeafref(t *node.Tree, i node.Index, sn *schema.Node) error {
	target := sn.LeafrefTarget()
	if target == nil {
		return nil // unresolved at load time is a fatal schema error, already reported at startup
	}
	value := t.Body(i)
	found := false
	_ = t.Walk(t.Root(), func(tr *node.Tree, cand node.Index) error {
		if found {
			return nil
		}
		cs := tr.Schema(cand)
		if cs == nil {
			return nil
		}
		csn, ok := cs.(*schema.Node)
		if !ok || csn.Entry == nil || target.Entry == nil {
			return nil
		}
		if csn.Entry.Path() == target.Entry.Path() && tr.Body(cand) == value {
			found = true
		}
		return nil
	})
	if !found {
		return rpcerr.New(rpcerr.TypeApplication, rpcerr.TagDataMissing,
			"leafref value "+value+" does not resolve to any instance of "+target.SchemaPath()).
			AtPath(instancePath(t, i))
	}
	return nil
}

func (p *Pipeline) checkInstanceIdentifier(t *node.Tree, i node.Index, sn *schema.Node) error {
	expr := t.Body(i)
	if strings.TrimSpace(expr) == "" {
		return nil
	}
	nsmap := sn.ModulePrefixMap(p.Forest)
	nodes, err := xpath.EvalNodeSet(expr, xpath.EvalContext{Tree: t, Node: t.Root(), NSMap: nsmap, Identities: p.Forest, Schema: p.Forest})
	if err != nil || len(nodes) == 0 {
		return rpcerr.New(rpcerr.TypeApplication, rpcerr.TagDataMissing,
			"instance-identifier "+expr+" does not resolve to any instance").
			AtPath(instancePath(t, i))
	}
	return nil
}

// ---- stage 4: when/must ----

// whenMust evaluates every "when" and "must" expression in candidate
// (spec.md §4.F stage 4) in two top-down passes. The first pass resolves
// "when" parent-before-child, so a false "when" marks its whole subtree
// absent before any of that subtree's own "when"/"must" is looked at
// (spec.md §4.F "nodes whose when evaluates false treated as absent for
// higher-level checks" — absence has to propagate downward, not just
// skip the one node it was declared on). Only once every node's absence
// is known does the second pass run "must" checks, skipping every node
// the first pass marked absent; this keeps a descendant's "must" failure
// from ever being recorded in the first place when an ancestor's "when"
// already excludes it, instead of recording then never retracting it.
func (p *Pipeline) whenMust(t *node.Tree) rpcerr.List {
	var errs rpcerr.List
	absent := map[node.Index]bool{}
	whenFailed := map[node.Index]bool{}

	var resolveWhen func(i node.Index, parentAbsent bool)
	resolveWhen = func(i node.Index, parentAbsent bool) {
		if parentAbsent {
			absent[i] = true
		} else if sn, ok := schemaNodeOf(t, i); ok {
			if w := sn.When(); w != "" {
				ok, err := xpath.EvalBoolean(w, xpath.EvalContext{Tree: t, Node: i, NSMap: sn.ModulePrefixMap(p.Forest), Identities: p.Forest, Schema: p.Forest})
				switch {
				case err != nil:
					errs = errs.Append(rpcerr.New(rpcerr.TypeApplication, rpcerr.TagOperationFailed,
						"evaluating when "+w+": "+err.Error()).AtPath(instancePath(t, i)))
					whenFailed[i] = true
				case !ok:
					absent[i] = true
				}
			}
		}
		for _, c := range t.Children(i) {
			resolveWhen(c, absent[i])
		}
	}
	resolveWhen(t.Root(), false)

	var checkMust func(i node.Index)
	checkMust = func(i node.Index) {
		if absent[i] {
			return
		}
		if sn, ok := schemaNodeOf(t, i); ok && !whenFailed[i] {
			nsmap := sn.ModulePrefixMap(p.Forest)
			for _, m := range sn.Musts() {
				ok, err := xpath.EvalBoolean(m, xpath.EvalContext{Tree: t, Node: i, NSMap: nsmap, Identities: p.Forest, Schema: p.Forest})
				if err != nil {
					errs = errs.Append(rpcerr.New(rpcerr.TypeApplication, rpcerr.TagOperationFailed,
						"evaluating must "+m+": "+err.Error()).AtPath(instancePath(t, i)))
					continue
				}
				if !ok {
					errs = errs.Append(rpcerr.New(rpcerr.TypeApplication, rpcerr.TagOperationFailed,
						"must condition failed: "+m).AtPath(instancePath(t, i)))
				}
			}
		}
		for _, c := range t.Children(i) {
			checkMust(c)
		}
	}
	checkMust(t.Root())

	if len(errs) > 0 {
		log.V(1).Infof("validate: %d when/must failure(s)", len(errs))
	}
	return errs
}

func schemaNodeOf(t *node.Tree, i node.Index) (*schema.Node, bool) {
	s := t.Schema(i)
	if s == nil {
		return nil, false
	}
	sn, ok := s.(*schema.Node)
	return sn, ok
}
