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

package rpcerr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestListAppend(t *testing.T) {
	var l List
	l = l.Append(nil)
	assert.Empty(t, l)

	l = l.Append(New(TypeApplication, TagDataMissing, "leafref target missing").AtPath("/ex:ref"))
	assert.Len(t, l, 1)
	assert.Equal(t, TagDataMissing, l[0].ErrTag)
	assert.Equal(t, "/ex:ref", l[0].ErrPath)

	var other List
	other = other.Append(New(TypeRPC, TagLockDenied, "locked"))
	l = l.Append(other)
	assert.Len(t, l, 2)
}

func TestAsError(t *testing.T) {
	var l List
	assert.NoError(t, l.AsError())

	l = l.Append(New(TypeProtocol, TagAccessDenied, "access denied"))
	assert.Equal(t, l[0], l.AsError())

	l = l.Append(New(TypeProtocol, TagAccessDenied, "access denied again"))
	assert.Equal(t, error(l), l.AsError())
}

func TestToRESTCONF(t *testing.T) {
	l := List{New(TypeApplication, TagAccessDenied, "access denied")}
	rc := l.ToRESTCONF()
	assert.Len(t, rc, 1)
	assert.Equal(t, TagAccessDenied, rc[0].ErrorTag)
}

func TestErrorString(t *testing.T) {
	e := New(TypeApplication, TagDataMissing, "missing").AtPath("/ex:x")
	assert.Contains(t, e.Error(), "data-missing")
	assert.Contains(t, e.Error(), "/ex:x")
}
