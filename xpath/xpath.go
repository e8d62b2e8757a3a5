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

package xpath

import (
	"fmt"

	"github.com/nmscore/netconfd/node"
)

// EvalBoolean parses and evaluates expr against ec, applying the XPath
// 1.0 boolean() coercion to the result. This is the contract package
// validate uses for "when" and "must" statements (spec.md §4.F stage 4):
// a must/when expression's effective value is always its boolean(),
// never its raw node-set/string/number result.
func EvalBoolean(expr string, ec EvalContext) (bool, error) {
	c, err := Parse(expr)
	if err != nil {
		return false, fmt.Errorf("xpath: parsing %q: %w", expr, err)
	}
	v, err := c.Eval(ec)
	if err != nil {
		return false, fmt.Errorf("xpath: evaluating %q: %w", expr, err)
	}
	return toBool(v), nil
}

// EvalNodeSet parses and evaluates expr against ec, requiring the result
// to be a node-set (as leafref path expressions must always be).
func EvalNodeSet(expr string, ec EvalContext) ([]node.Index, error) {
	c, err := Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("xpath: parsing %q: %w", expr, err)
	}
	v, err := c.Eval(ec)
	if err != nil {
		return nil, fmt.Errorf("xpath: evaluating %q: %w", expr, err)
	}
	if v.Kind != NodeSet {
		return nil, fmt.Errorf("xpath: %q did not evaluate to a node-set", expr)
	}
	return v.Nodes, nil
}
