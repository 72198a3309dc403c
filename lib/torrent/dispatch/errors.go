// Copyright (c) 2016-2019 Uber Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package dispatch

import "fmt"

// Kind classifies why a ProtocolError was raised.
type Kind int

// Possible Kinds.
const (
	KindBadHandshake Kind = iota
	KindInfoHashMismatch
	KindPeerIDMismatch
	KindCapabilityViolation
	KindMalformedRequest
	KindUnknownMessage
)

func (k Kind) String() string {
	switch k {
	case KindBadHandshake:
		return "BadHandshake"
	case KindInfoHashMismatch:
		return "InfoHashMismatch"
	case KindPeerIDMismatch:
		return "PeerIDMismatch"
	case KindCapabilityViolation:
		return "CapabilityViolation"
	case KindMalformedRequest:
		return "MalformedRequest"
	case KindUnknownMessage:
		return "UnknownMessage"
	default:
		return "Unknown"
	}
}

// ProtocolError is a fatal, per-connection error: invalid handshake,
// info-hash mismatch, peer-id mismatch, capability violation, malformed
// request size, or an unknown typed message. Receiving one always closes the
// session; there is no retry at this layer.
type ProtocolError struct {
	Kind   Kind
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error (%s): %s", e.Kind, e.Reason)
}

func newProtocolError(k Kind, reason string) *ProtocolError {
	return &ProtocolError{Kind: k, Reason: reason}
}

// InvariantViolation indicates a bug: a routing-table or bitfield invariant
// was broken by code that is supposed to maintain it. The owning torrent
// context is poisoned rather than silently continuing.
type InvariantViolation struct {
	Component string // "RoutingTable", "Bitfield", or similar.
	Reason    string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation in %s: %s", e.Component, e.Reason)
}
