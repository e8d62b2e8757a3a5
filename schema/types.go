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

package schema

import "github.com/openconfig/goyang/pkg/yang"

// PrimitiveKind enumerates the primitive YANG type kinds that package
// validate's type-checking stage (spec.md §4.F stage 2) must handle.
type PrimitiveKind uint8

// Primitive kinds.
const (
	KindString PrimitiveKind = iota
	KindInt
	KindUint
	KindDecimal64
	KindBool
	KindEnum
	KindBinary
	KindBits
	KindIdentityref
	KindLeafref
	KindInstanceIdentifier
	KindUnion
	KindEmpty
)

// Primitive is the resolved primitive type plus facets of a YANG leaf
// type, per spec.md §4.B's "resolve_type(ref) → primitive+facets"
// contract.
type Primitive struct {
	Kind PrimitiveKind

	// Width is the integer bit width (8/16/32/64) for KindInt/KindUint,
	// needed by package encoding's RFC 7951 JSON writer to decide which
	// leaves must be quoted: values whose width exceeds the JSON safe
	// integer range (int64/uint64) are emitted as strings (spec.md
	// §4.D), so only Width==64 needs the string form.
	Width uint8

	// Range/Length facets, valid for KindInt/KindUint/KindDecimal64
	// (Range) and KindString/KindBinary (Length).
	Min, Max int64
	HasRange bool

	// Pattern facets (KindString), applied in declaration order; all
	// must match per YANG 1.1 pattern conjunction.
	Patterns []string

	// Enum facets (KindEnum): name -> assigned integer value.
	Enums map[string]int64

	// FractionDigits for KindDecimal64.
	FractionDigits uint8

	// IdentityBase for KindIdentityref: the qualified base identity
	// name values must be derived from.
	IdentityBase string

	// LeafrefPath for KindLeafref: the raw path expression, already
	// resolved to a target Node at load time (see Node.leafrefTarget).
	LeafrefPath string

	// Union holds the member primitives for KindUnion, in declaration
	// order; stage 2 validation (spec.md §4.F) tries each in order and
	// accepts the first that parses the leaf's body.
	Union []*Primitive
}

// primitiveFromYangType converts a *yang.YangType to our resolved
// Primitive representation, recursing into union members.
func primitiveFromYangType(t *yang.YangType) *Primitive {
	p := &Primitive{}
	switch t.Kind {
	case yang.Ystring:
		p.Kind = KindString
		for _, pat := range t.Pattern {
			p.Patterns = append(p.Patterns, pat)
		}
		if t.Length != nil {
			p.HasRange = true
		}
	case yang.Yint8, yang.Yint16, yang.Yint32, yang.Yint64:
		p.Kind = KindInt
		p.HasRange = true
		p.Width = intWidth(t.Kind)
	case yang.Yuint8, yang.Yuint16, yang.Yuint32, yang.Yuint64:
		p.Kind = KindUint
		p.HasRange = true
		p.Width = intWidth(t.Kind)
	case yang.Ydecimal64:
		p.Kind = KindDecimal64
		p.FractionDigits = uint8(t.FractionDigits)
	case yang.Ybool:
		p.Kind = KindBool
	case yang.Yenum:
		p.Kind = KindEnum
		p.Enums = map[string]int64{}
		if t.Enum != nil {
			for _, name := range t.Enum.Names() {
				v, _ := t.Enum.ValueForName(name)
				p.Enums[name] = int64(v)
			}
		}
	case yang.Ybinary:
		p.Kind = KindBinary
	case yang.Ybits:
		p.Kind = KindBits
	case yang.Yidentityref:
		p.Kind = KindIdentityref
		if t.IdentityBase != nil {
			p.IdentityBase = t.IdentityBase.Name
		}
	case yang.Yleafref:
		p.Kind = KindLeafref
		p.LeafrefPath = t.Path
	case yang.Yinstanceidentifier:
		p.Kind = KindInstanceIdentifier
	case yang.Yempty:
		p.Kind = KindEmpty
	case yang.Yunion:
		p.Kind = KindUnion
		for _, member := range t.Type {
			p.Union = append(p.Union, primitiveFromYangType(member))
		}
	default:
		p.Kind = KindString
	}
	return p
}

func intWidth(k yang.TypeKind) uint8 {
	switch k {
	case yang.Yint8, yang.Yuint8:
		return 8
	case yang.Yint16, yang.Yuint16:
		return 16
	case yang.Yint32, yang.Yuint32:
		return 32
	default:
		return 64
	}
}
