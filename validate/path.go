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

package validate

import (
	"fmt"
	"strings"

	"github.com/nmscore/netconfd/node"
)

// InstancePath renders the "offending instance path" spec.md §4.F
// requires every stage failure to name, as an XPath-shaped
// "/ns:top/ns:list[key='v']/ns:leaf" string built from the node's
// ancestor chain. Package datastore reuses it to annotate edit-config
// merge failures with the same path shape.
func InstancePath(t *node.Tree, i node.Index) string {
	return instancePath(t, i)
}

// instancePath is InstancePath's unexported implementation, used by
// this package's own stage checks.
func instancePath(t *node.Tree, i node.Index) string {
	var segs []string
	for cur := i; cur != node.NoIndex; cur = t.Parent(cur) {
		seg := t.Name(cur)
		if t.Kind(cur) == node.KindListEntry {
			if s := t.Schema(cur); s != nil {
				names := s.KeyNames()
				vals := t.KeyValues(cur)
				var parts []string
				for idx, v := range vals {
					kn := ""
					if idx < len(names) {
						kn = names[idx]
					}
					parts = append(parts, fmt.Sprintf("%s='%s'", kn, v))
				}
				if len(parts) > 0 {
					seg += "[" + strings.Join(parts, "][") + "]"
				}
			}
		}
		segs = append([]string{seg}, segs...)
	}
	return "/" + strings.Join(segs, "/")
}
