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

// Package session holds per-connection peer state: negotiated capabilities,
// the peer's bitfield, choke/interest flags, outbound queue, and the
// counters and timestamps the tick loop and dispatcher read and mutate.
//
// A PeerSession is created on a successful handshake and destroyed on
// disconnect, protocol violation, or inactivity eviction. PeerSession is NOT
// thread-safe: the dispatcher and tick loop never run concurrently for the
// same torrent, so one logical task always owns these mutations, the same
// way lib/torrent/dht.RoutingTable documents itself as unsynchronized.
package session

import (
	"sort"
	"time"

	"github.com/kraken-torrent/peercore/core"
	"github.com/kraken-torrent/peercore/lib/torrent/bitfield"
	"github.com/kraken-torrent/peercore/lib/torrent/ports"
	"github.com/kraken-torrent/peercore/lib/torrent/wire"
)

// PendingRead is an outstanding disk read queued on behalf of a peer's
// Request, not yet turned into a Piece message.
type PendingRead struct {
	Index, Begin, Length int
}

// PeerSession is the per-connection state for one remote peer within one
// torrent. It holds the owning torrent only by InfoHash -- never a pointer
// -- avoiding a PeerSession <-> TorrentContext reference cycle; callers
// borrow the TorrentContext from the engine's registry per-operation.
type PeerSession struct {
	PeerID   core.PeerID
	InfoHash core.InfoHash

	SupportsFast     bool
	SupportsExtended bool

	Bitfield *bitfield.Bitfield

	AmChoking      bool
	AmInterested   bool
	PeerChoking    bool
	PeerInterested bool

	allowedFastFromPeer map[int]struct{}
	allowedFastToPeer   map[int]struct{}
	suggestedPieces     map[int]struct{}

	// ExtendedIDs maps an extension name to the sub-id the PEER uses to
	// address it, as advertised in the peer's own ExtendedHandshakeMsg.M --
	// used to resolve inbound Extended messages via wire.ExtensionResolver.
	ExtendedIDs     wire.ExtendedIDs
	PeerMaxRequests int
	PeerListenPort  int
	PeerDHTPort     int
	PeerHasPex      bool

	outbound     []wire.Message
	pendingReads []PendingRead

	RequestingCount      int
	HaveMessagesReceived int
	PiecesReceived       int
	MaxPendingRequests   int

	LastMessageSent     time.Time
	LastMessageReceived time.Time

	// LastGoodPieceReceived and LastPieceSent track piece-level liveness
	// separately from message-level liveness, so a host can garbage-collect
	// whole torrents on a seeder/leecher TTI policy.
	LastGoodPieceReceived time.Time
	LastPieceSent         time.Time

	HandshakeComplete bool

	// IsSeeder records whether the peer's bitfield has ever been observed
	// all-true, per Have(i)'s documented "update is_seeder if all bits
	// true" transition.
	IsSeeder bool

	clk ports.Clock
}

// New creates a PeerSession for peerID on the torrent identified by
// infoHash, with a fresh all-false bitfield of numPieces bits. Am_choking
// and peer_choking start true; am_interested and peer_interested start
// false.
func New(peerID core.PeerID, infoHash core.InfoHash, numPieces int, clk ports.Clock) *PeerSession {
	now := clk.Now()
	return &PeerSession{
		PeerID:              peerID,
		InfoHash:            infoHash,
		Bitfield:            bitfield.New(numPieces),
		AmChoking:           true,
		AmInterested:        false,
		PeerChoking:         true,
		PeerInterested:      false,
		allowedFastFromPeer: make(map[int]struct{}),
		allowedFastToPeer:   make(map[int]struct{}),
		suggestedPieces:     make(map[int]struct{}),
		MaxPendingRequests:  2,
		LastMessageSent:     now,
		LastMessageReceived: now,
		clk:                 clk,
	}
}

func (s *PeerSession) String() string {
	return s.PeerID.String()
}

// Enqueue appends msg to the outbound queue, preserving FIFO send order.
func (s *PeerSession) Enqueue(msg wire.Message) {
	s.outbound = append(s.outbound, msg)
}

// EnqueuePiece appends a Piece response to the outbound queue and marks the
// obligation it fulfills as in-flight, incrementing RequestingCount. Paired
// with Cancel.
func (s *PeerSession) EnqueuePiece(msg wire.PieceMsg) {
	s.outbound = append(s.outbound, msg)
	s.RequestingCount++
}

// HasQueuedMessage reports whether any message whose ID() equals id is
// already queued; used to avoid duplicate Interested/NotInterested
// enqueues.
func (s *PeerSession) HasQueuedMessage(id wire.ID) bool {
	for _, m := range s.outbound {
		if m.ID() == id {
			return true
		}
	}
	return false
}

// DrainOutbound removes and returns every currently queued message, in
// enqueue order, decrementing RequestingCount for each Piece handed off.
// Transports call this to pull a batch to send; the queue is otherwise
// append-only from the dispatcher/tick loop's perspective.
func (s *PeerSession) DrainOutbound() []wire.Message {
	drained := s.outbound
	s.outbound = nil
	for _, m := range drained {
		if _, ok := m.(wire.PieceMsg); ok {
			s.RequestingCount--
			s.LastPieceSent = s.clk.Now()
		}
	}
	return drained
}

// QueueLen returns the number of messages currently queued for send.
func (s *PeerSession) QueueLen() int {
	return len(s.outbound)
}

// QueueRead appends a disk read to the pending-read list on behalf of a
// Request we are honoring, incrementing RequestingCount.
func (s *PeerSession) QueueRead(index, begin, length int) {
	s.pendingReads = append(s.pendingReads, PendingRead{index, begin, length})
	s.RequestingCount++
}

// FulfillRead removes the pending read matching (index, begin) -- the
// RequestingCount obligation it represented now belongs to the Piece
// message this enqueues -- and appends the completed Piece to the outbound
// queue.
func (s *PeerSession) FulfillRead(index, begin int, data []byte) {
	for i, r := range s.pendingReads {
		if r.Index == index && r.Begin == begin {
			s.pendingReads = append(s.pendingReads[:i], s.pendingReads[i+1:]...)
			break
		}
	}
	s.outbound = append(s.outbound, wire.PieceMsg{Index: index, Begin: begin, Data: data})
}

// Cancel implements cancel(piece, offset, length): it scans the outbound
// queue for a matching queued Piece payload and removes it in
// place, decrementing RequestingCount. If no queued message matches but the
// pending-reads list does, that read is cancelled and the counter
// decremented instead. At most one match is removed. Returns whether
// anything was cancelled.
func (s *PeerSession) Cancel(piece, begin, length int) bool {
	for i, m := range s.outbound {
		if p, ok := m.(wire.PieceMsg); ok &&
			p.Index == piece && p.Begin == begin && len(p.Data) == length {
			s.outbound = append(s.outbound[:i], s.outbound[i+1:]...)
			s.RequestingCount--
			return true
		}
	}
	for i, r := range s.pendingReads {
		if r.Index == piece && r.Begin == begin && r.Length == length {
			s.pendingReads = append(s.pendingReads[:i], s.pendingReads[i+1:]...)
			s.RequestingCount--
			return true
		}
	}
	return false
}

// CancelOutgoingRequests drops every not-yet-sent Request from the outbound
// queue and resets RequestingCount to just the obligations we still owe the
// peer (queued Piece payloads and pending reads). Called when the peer
// chokes us without fast-peer support, alongside the Picker-side CancelAll.
func (s *PeerSession) CancelOutgoingRequests() {
	kept := s.outbound[:0]
	for _, m := range s.outbound {
		if _, ok := m.(wire.RequestMsg); ok {
			continue
		}
		kept = append(kept, m)
	}
	s.outbound = kept

	serving := len(s.pendingReads)
	for _, m := range s.outbound {
		if _, ok := m.(wire.PieceMsg); ok {
			serving++
		}
	}
	s.RequestingCount = serving
}

// AllowFastFromPeer records that the peer has granted us permission to
// request piece i while choked (an inbound AllowedFast).
func (s *PeerSession) AllowFastFromPeer(i int) {
	s.allowedFastFromPeer[i] = struct{}{}
}

// AllowedFromPeer reports whether the peer has granted allowed-fast access
// to piece i.
func (s *PeerSession) AllowedFromPeer(i int) bool {
	_, ok := s.allowedFastFromPeer[i]
	return ok
}

// SetAllowedToPeer seeds the allowed-fast set we grant the peer, computed
// once at handshake time via wire.AllowedFastSet.
func (s *PeerSession) SetAllowedToPeer(pieces []int) {
	for _, i := range pieces {
		s.allowedFastToPeer[i] = struct{}{}
	}
}

// AllowedToPeer reports whether piece i is in the set we've granted the
// peer allowed-fast access to.
func (s *PeerSession) AllowedToPeer(i int) bool {
	_, ok := s.allowedFastToPeer[i]
	return ok
}

// AllowedToPeerSet returns the piece indices granted to the peer, in
// ascending order, for the peer-connected hook's AllowedFast burst.
func (s *PeerSession) AllowedToPeerSet() []int {
	out := make([]int, 0, len(s.allowedFastToPeer))
	for i := range s.allowedFastToPeer {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// SuggestPiece records a SuggestPiece hint from the peer.
func (s *PeerSession) SuggestPiece(i int) {
	s.suggestedPieces[i] = struct{}{}
}

// RecomputeInterest sets AmInterested according to whether the peer's
// bitfield holds any piece our own bitfield lacks. Called on Have, HaveAll,
// HaveNone, and Bitfield handling. Returns whether AmInterested transitioned
// from false to true, so callers know to enqueue Interested exactly once.
func (s *PeerSession) RecomputeInterest(ourBitfield *bitfield.Bitfield) bool {
	wasInterested := s.AmInterested
	s.AmInterested = peerHasAnyWeLack(s.Bitfield, ourBitfield)
	if s.Bitfield.AllTrue() {
		s.IsSeeder = true
	}
	return !wasInterested && s.AmInterested
}

func peerHasAnyWeLack(peer, ours *bitfield.Bitfield) bool {
	for i := 0; i < ours.Len(); i++ {
		if peer.Has(i) && !ours.Has(i) {
			return true
		}
	}
	return false
}

