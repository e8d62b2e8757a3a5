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

// Package rpcerr implements the RFC 6241 Appendix A error taxonomy shared
// by every stage of the edit/validate/commit pipeline and by NACM, and its
// RFC 6241 <rpc-error> / RFC 8040 §7.1 wire renderings.
package rpcerr

import (
	"encoding/xml"
	"fmt"

	"github.com/pkg/errors"
)

// Type is the error-type enumeration of RFC 6241 Appendix A.
type Type string

// Valid error-type values.
const (
	TypeTransport  Type = "transport"
	TypeRPC        Type = "rpc"
	TypeProtocol   Type = "protocol"
	TypeApplication Type = "application"
)

// Severity is the error-severity enumeration of RFC 6241 Appendix A.
type Severity string

// Valid error-severity values.
const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Tag is the error-tag enumeration of RFC 6241 Appendix A.
type Tag string

// Error tags defined by RFC 6241 Appendix A.
const (
	TagInUse                Tag = "in-use"
	TagInvalidValue         Tag = "invalid-value"
	TagTooBig               Tag = "too-big"
	TagMissingAttribute     Tag = "missing-attribute"
	TagBadAttribute         Tag = "bad-attribute"
	TagUnknownAttribute     Tag = "unknown-attribute"
	TagMissingElement       Tag = "missing-element"
	TagBadElement           Tag = "bad-element"
	TagUnknownElement       Tag = "unknown-element"
	TagUnknownNamespace     Tag = "unknown-namespace"
	TagAccessDenied         Tag = "access-denied"
	TagLockDenied           Tag = "lock-denied"
	TagResourceDenied       Tag = "resource-denied"
	TagRollbackFailed       Tag = "rollback-failed"
	TagDataExists           Tag = "data-exists"
	TagDataMissing          Tag = "data-missing"
	TagOperationNotSupported Tag = "operation-not-supported"
	TagOperationFailed      Tag = "operation-failed"
	TagMalformedMessage     Tag = "malformed-message"
)

// Error is a single structured protocol error, equivalent to one
// <rpc-error> element or one RESTCONF error object.
type Error struct {
	ErrType    Type     `xml:"error-type"`
	ErrTag     Tag      `xml:"error-tag"`
	ErrSev     Severity `xml:"error-severity"`
	ErrAppTag  string   `xml:"error-app-tag,omitempty"`
	ErrPath    string   `xml:"error-path,omitempty"`
	ErrMessage string   `xml:"error-message,omitempty"`
	ErrInfo    string   `xml:"error-info,omitempty"`
}

// New returns an Error of the given type and tag with severity "error".
func New(t Type, tag Tag, msg string) *Error {
	return &Error{ErrType: t, ErrTag: tag, ErrSev: SeverityError, ErrMessage: msg}
}

// Warningf returns an Error of the given type and tag with severity
// "warning" and a formatted message.
func Warningf(t Type, tag Tag, format string, args ...interface{}) *Error {
	return &Error{ErrType: t, ErrTag: tag, ErrSev: SeverityWarning, ErrMessage: fmt.Sprintf(format, args...)}
}

// Errorf returns an Error of the given type and tag with severity "error"
// and a formatted message.
func Errorf(t Type, tag Tag, format string, args ...interface{}) *Error {
	return &Error{ErrType: t, ErrTag: tag, ErrSev: SeverityError, ErrMessage: fmt.Sprintf(format, args...)}
}

// AtPath sets the error-path (an instance-identifier-shaped XPath string)
// of e and returns e for chaining.
func (e *Error) AtPath(path string) *Error {
	e.ErrPath = path
	return e
}

// WithAppTag sets the error-app-tag of e and returns e for chaining.
func (e *Error) WithAppTag(tag string) *Error {
	e.ErrAppTag = tag
	return e
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.ErrPath != "" {
		return fmt.Sprintf("%s: %s (%s at %s)", e.ErrTag, e.ErrMessage, e.ErrType, e.ErrPath)
	}
	return fmt.Sprintf("%s: %s (%s)", e.ErrTag, e.ErrMessage, e.ErrType)
}

// List is an ordered collection of Errors, used to report batch failures
// under continue-on-error semantics (spec.md §7).
type List []*Error

// Error implements the error interface, joining every entry's message.
func (l List) Error() string {
	var out string
	for i, e := range l {
		if i != 0 {
			out += "; "
		}
		out += e.Error()
	}
	return out
}

// ErrorOption selects how a batch of operations (an edit-config apply, a
// validate/commit pass) reacts to an error partway through, per spec.md
// §6/§7.
type ErrorOption string

// Valid error-option values.
const (
	// StopOnError aborts the batch at the first failing step.
	StopOnError ErrorOption = "stop-on-error"
	// ContinueOnError keeps applying remaining steps, accumulating every
	// failure into one List.
	ContinueOnError ErrorOption = "continue-on-error"
	// RollbackOnError aborts at the first failure and additionally
	// restores the target to its pre-batch state.
	RollbackOnError ErrorOption = "rollback-on-error"
)

// Append appends err to l. If err is a *Error it is appended directly; if
// it is a List, every entry is appended; otherwise it is wrapped as an
// operation-failed/application error, following util.Errors' accumulation
// idiom from the teacher package.
func (l List) Append(err error) List {
	if err == nil {
		return l
	}
	switch v := err.(type) {
	case *Error:
		return append(l, v)
	case List:
		return append(l, v...)
	default:
		return append(l, New(TypeApplication, TagOperationFailed, errors.Cause(v).Error()))
	}
}

// AsError returns nil if l is empty, the sole element if l has one entry,
// or l itself (satisfying error) otherwise.
func (l List) AsError() error {
	switch len(l) {
	case 0:
		return nil
	case 1:
		return l[0]
	default:
		return l
	}
}

// XMLRPCErrors is the <rpc-error>* wrapper used to marshal a List as a
// NETCONF <rpc-reply>'s error content (RFC 6241 §4.3).
type XMLRPCErrors struct {
	XMLName xml.Name `xml:"rpc-errors"`
	Errors  []xmlError `xml:"rpc-error"`
}

type xmlError struct {
	Type     Type     `xml:"error-type"`
	Tag      Tag      `xml:"error-tag"`
	Severity Severity `xml:"error-severity"`
	AppTag   string   `xml:"error-app-tag,omitempty"`
	Path     string   `xml:"error-path,omitempty"`
	Message  string   `xml:"error-message,omitempty"`
	Info     string   `xml:"error-info,omitempty"`
}

// MarshalXML renders l as a sequence of <rpc-error> elements.
func (l List) MarshalXML(enc *xml.Encoder, start xml.StartElement) error {
	start.Name = xml.Name{Local: "rpc-errors"}
	if err := enc.EncodeToken(start); err != nil {
		return err
	}
	for _, e := range l {
		xe := xmlError{
			Type: e.ErrType, Tag: e.ErrTag, Severity: e.ErrSev,
			AppTag: e.ErrAppTag, Path: e.ErrPath, Message: e.ErrMessage, Info: e.ErrInfo,
		}
		if err := enc.EncodeElement(xe, xml.StartElement{Name: xml.Name{Local: "rpc-error"}}); err != nil {
			return err
		}
	}
	return enc.EncodeToken(start.End())
}

// RESTCONFError is the RFC 8040 §7.1 error object shape, one per List
// entry, nested under an "ietf-restconf:errors" array by the RESTCONF
// front-end (out of scope here; this is the shared payload shape).
type RESTCONFError struct {
	ErrorType    Type     `json:"error-type"`
	ErrorTag     Tag      `json:"error-tag"`
	ErrorAppTag  string   `json:"error-app-tag,omitempty"`
	ErrorPath    string   `json:"error-path,omitempty"`
	ErrorMessage string   `json:"error-message,omitempty"`
}

// ToRESTCONF converts l into the RFC 8040 error-object slice.
func (l List) ToRESTCONF() []RESTCONFError {
	out := make([]RESTCONFError, 0, len(l))
	for _, e := range l {
		out = append(out, RESTCONFError{
			ErrorType: e.ErrType, ErrorTag: e.ErrTag, ErrorAppTag: e.ErrAppTag,
			ErrorPath: e.ErrPath, ErrorMessage: e.ErrMessage,
		})
	}
	return out
}
