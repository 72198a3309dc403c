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

// Package ports defines the collaborator interfaces the engine consumes but
// does not implement itself -- piece selection, reciprocity, tracker
// announcement, throughput monitoring, and transport draining -- plus the
// Settings the tick loop reads at runtime. Named "ports" because, like a
// hexagonal-architecture port, every interface here is driven by this
// module and implemented by a host binary or a sibling package.
package ports

import (
	"time"

	"github.com/kraken-torrent/peercore/core"
)

// Request identifies a single outstanding block request sent to a peer.
type Request struct {
	Piece, Begin, Length int
}

// Piece carries a block of piece data received from a peer.
type Piece struct {
	Index, Begin int
	Data         []byte
}

// Picker selects which pieces to request from which peers. Its selection
// policy (rarest-first, random, endgame overlap, ...) is explicitly out of
// scope for this core; only this interface boundary is specified.
type Picker interface {
	// PickRequests returns up to upTo new requests to issue to peerID, drawn
	// from the pieces peerID is known to have that we still need.
	PickRequests(peerID core.PeerID, upTo int) []Request

	// CancelRequest withdraws a single outstanding request to peerID.
	CancelRequest(peerID core.PeerID, piece, begin, length int)

	// CancelAll withdraws every outstanding request to peerID, used when the
	// peer chokes us or disconnects.
	CancelAll(peerID core.PeerID)

	// PieceReceived delivers a completed piece payload from peerID.
	PieceReceived(peerID core.PeerID, p Piece)

	// IsInteresting reports whether peerID has at least one piece we lack.
	IsInteresting(peerID core.PeerID) bool
}

// ReciprocityController decides, on each invocation of Review, which peers
// to choke and unchoke. Its algorithm is explicitly out of scope for this
// core; the tick loop only ever calls Review at a fixed cadence.
type ReciprocityController interface {
	Review()
}

// Tracker describes a single tracker endpoint as returned by TrackerManager.
type Tracker struct {
	URL string
}

// TrackerManager abstracts announce scheduling against one or more trackers.
// The wire format of the announce itself is an explicit Non-goal.
type TrackerManager interface {
	// Current returns the tracker that the next Announce will target, or nil
	// if none is configured.
	Current() *Tracker

	// Announce fires an announce for the given event ("started", "stopped",
	// "completed", or "" for a regular interval update).
	Announce(event string) error

	// LastUpdated returns when the most recent announce attempt completed.
	LastUpdated() time.Time

	// UpdateSucceeded reports whether that most recent attempt succeeded.
	UpdateSucceeded() bool
}

// Monitor tracks per-torrent or per-peer throughput. Tick refreshes its
// internal rate window; the tick loop calls it roughly once a second.
type Monitor interface {
	Tick()
	DownloadSpeedBPS() float64
	UploadSpeedBPS() float64
}

// MessageBundle is an ordered group of messages the tick loop hands to the
// Transport atomically -- used for the peer-connected hook,
// which must deliver the bitfield-class message, the extended handshake, and
// any AllowedFast grants in a fixed order.
type MessageBundle []interface{}

// Transport abstracts the connection that actually moves bytes for one
// peer. The engine never blocks on it directly: Enqueue only appends to a
// queue the transport owns the draining of.
type Transport interface {
	// Enqueue appends bundle to the outbound queue, to be drained
	// asynchronously by ProcessQueue.
	Enqueue(bundle MessageBundle)

	// Close tears down the connection, recording reason for diagnostics.
	Close(reason string)

	// ProcessQueue signals the transport to drain whatever is currently
	// queued, if it is not already mid-send.
	ProcessQueue()
}

// Clock is the time source the engine reads instead of calling time.Now()
// directly, so tick-loop timeouts are deterministically testable. Satisfied
// by github.com/andres-erbsen/clock.Clock.
type Clock interface {
	Now() time.Time
}
