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

// Package transport defines the low-level byte-stream contract package
// session's Acceptors run against: a NETCONF-framing front-end, a
// RESTCONF-HTTP front-end, and a CLI front-end each implement
// ServerTransport over their own wire protocol, none of which lives in
// this module (spec.md §1 scopes wire/HTTP/parser code out). Grounded
// on andaru-opr8/transport, generalized so ServerTransport carries the
// one thing every front-end can supply regardless of protocol: a
// readable/writable byte stream plus the authenticated username
// package nacm needs.
package transport

import "io"

// Transport is a bidirectional, closeable byte stream.
type Transport interface {
	io.ReadWriteCloser

	// CloseWrite half-closes the stream's write side, signalling EOF
	// to the peer without tearing down the read side.
	CloseWrite() error

	// Error returns an optional side channel for out-of-band error
	// reporting (e.g. NETCONF's framed error stream), or nil if the
	// transport has none.
	Error() io.ReadWriter
}

// ServerTransport is the server-side view of a Transport: reads carry
// client input, writes carry data back to the client.
type ServerTransport interface {
	Transport

	// Username returns the authenticated client identity on this
	// transport, consumed by package nacm as the access-control
	// subject.
	Username() string
}

// ChunkFramer is implemented by transports that support switching
// between NETCONF's two RFC 6242 framing modes (":base:1.0"
// end-of-message framing and ":base:1.1" chunked framing) once
// capability negotiation has determined which applies.
type ChunkFramer interface {
	// EnableChunkedFraming switches the transport to RFC 6242 §4.2
	// chunked framing for all subsequent reads and writes. It must be
	// called only after capability negotiation and before any further
	// I/O under the new mode.
	EnableChunkedFraming() error
}
